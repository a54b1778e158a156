package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Cadence/internal/domain"
)

// RunRepo — журнал запусков воркеров.
//
// Терминальные переходы (completed/failed/cancelled) также обновляют
// агрегат владеющего воркера: status, total_runs, last_run_at.
// Это единственное место, где агрегатные счётчики мутируются.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// RunFilter — фильтр для списка runs.
type RunFilter struct {
	AgentID string
	Status  domain.RunStatus
	Trigger domain.TriggerType
	Limit   int
}

// CompletionStats — итоги успешного run.
type CompletionStats struct {
	DurationMs int64
	CostUSD    float64
	TokensUsed int
	ResultData map[string]any
}

// Create создаёт run в статусе pending.
func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	resultJSON, err := marshalMap(run.ResultData)
	if err != nil {
		return fmt.Errorf("marshal result_data: %w", err)
	}

	query := `
		INSERT INTO runs (id, agent_id, status, trigger, result_data, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at
	`
	err = r.pool.QueryRow(ctx, query,
		run.ID,
		run.AgentID,
		domain.RunStatusPending,
		run.Trigger,
		resultJSON,
	).Scan(&run.CreatedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	run.Status = domain.RunStatusPending
	return nil
}

// MarkRunning переводит run из pending в running и помечает воркера
// как занятого.
func (r *RunRepo) MarkRunning(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE runs
		SET status = $2, started_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, domain.RunStatusRunning, domain.RunStatusPending)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}

	_, err = tx.Exec(ctx, `
		UPDATE agents
		SET status = $2, updated_at = NOW()
		WHERE id = (SELECT agent_id FROM runs WHERE id = $1)
	`, id, domain.AgentRunning)
	if err != nil {
		return fmt.Errorf("mark agent running: %w", err)
	}

	return tx.Commit(ctx)
}

// MarkCompleted переводит run в completed с итогами и обновляет
// агрегат воркера.
func (r *RunRepo) MarkCompleted(ctx context.Context, id uuid.UUID, stats CompletionStats) error {
	resultJSON, err := marshalMap(stats.ResultData)
	if err != nil {
		return fmt.Errorf("marshal result_data: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE runs
		SET status = $2,
		    completed_at = NOW(),
		    duration_ms = $3,
		    cost_usd = $4,
		    tokens_used = $5,
		    result_data = $6
		WHERE id = $1 AND status IN ($7, $8)
	`, id, domain.RunStatusCompleted,
		stats.DurationMs, stats.CostUSD, stats.TokensUsed, resultJSON,
		domain.RunStatusPending, domain.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}

	if err := r.settleAgent(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MarkFailed переводит run в failed с текстом ошибки и обновляет
// агрегат воркера.
func (r *RunRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, durationMs int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE runs
		SET status = $2, completed_at = NOW(), duration_ms = $3, error_msg = $4
		WHERE id = $1 AND status IN ($5, $6)
	`, id, domain.RunStatusFailed, durationMs, errMsg,
		domain.RunStatusPending, domain.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}

	if err := r.settleAgent(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Cancel отменяет run. Допустимо только из pending: running run не
// имеет кооперативной отмены.
func (r *RunRepo) Cancel(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE runs
		SET status = $2, completed_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, domain.RunStatusCancelled, domain.RunStatusPending)
	if err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}

	if err := r.settleAgent(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// settleAgent обновляет агрегат воркера после терминального перехода.
func (r *RunRepo) settleAgent(ctx context.Context, tx pgx.Tx, runID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE agents
		SET status = $2,
		    total_runs = total_runs + 1,
		    last_run_at = NOW(),
		    updated_at = NOW()
		WHERE id = (SELECT agent_id FROM runs WHERE id = $1)
	`, runID, domain.AgentIdle)
	if err != nil {
		return fmt.Errorf("settle agent: %w", err)
	}
	return nil
}

// GetByID возвращает run по id.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `
		SELECT id, agent_id, status, trigger, started_at, completed_at,
		       duration_ms, cost_usd, tokens_used, result_data, error_msg, created_at
		FROM runs
		WHERE id = $1
	`
	return scanRun(r.pool.QueryRow(ctx, query, id))
}

// List возвращает runs по фильтру, новые первыми.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	query := `
		SELECT id, agent_id, status, trigger, started_at, completed_at,
		       duration_ms, cost_usd, tokens_used, result_data, error_msg, created_at
		FROM runs
		WHERE ($1 = '' OR agent_id = $1)
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR trigger = $3)
		ORDER BY created_at DESC
		LIMIT $4
	`
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, query,
		filter.AgentID, string(filter.Status), string(filter.Trigger), limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// DailyCompletedCost возвращает суммарную стоимость завершённых runs,
// созданных в календарные сутки UTC, в которые попадает момент at.
//
// Атрибуция по created_at: run, созданный до полуночи и завершившийся
// после, относится к бюджету дня создания.
func (r *RunRepo) DailyCompletedCost(ctx context.Context, at time.Time) (float64, error) {
	dayStart, dayEnd := dayBoundsUTC(at)

	var total float64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(cost_usd), 0)
		FROM runs
		WHERE status = $1 AND created_at >= $2 AND created_at < $3
	`, domain.RunStatusCompleted, dayStart, dayEnd).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("daily cost: %w", err)
	}
	return total, nil
}

// dayBoundsUTC возвращает границы календарных суток UTC [start, end)
// для момента at.
func dayBoundsUTC(at time.Time) (time.Time, time.Time) {
	start := at.UTC().Truncate(24 * time.Hour)
	return start, start.Add(24 * time.Hour)
}

func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var resultJSON []byte
	var errMsg *string

	err := row.Scan(
		&run.ID,
		&run.AgentID,
		&run.Status,
		&run.Trigger,
		&run.StartedAt,
		&run.CompletedAt,
		&run.DurationMs,
		&run.CostUSD,
		&run.TokensUsed,
		&resultJSON,
		&errMsg,
		&run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if errMsg != nil {
		run.ErrorMsg = *errMsg
	}
	if resultJSON != nil {
		if err := json.Unmarshal(resultJSON, &run.ResultData); err != nil {
			return nil, fmt.Errorf("unmarshal result_data: %w", err)
		}
	}

	return &run, nil
}

// marshalMap сериализует map в JSON; nil остаётся NULL.
func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
