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

// PipelineRepo — репозиторий pipelines, их запусков и шагов.
type PipelineRepo struct {
	pool *pgxpool.Pool
}

// NewPipelineRepo создаёт новый PipelineRepo.
func NewPipelineRepo(pool *pgxpool.Pool) *PipelineRepo {
	return &PipelineRepo{pool: pool}
}

// Upsert создаёт или обновляет определение pipeline по имени.
// Используется при посеве конфигурации на старте.
func (r *PipelineRepo) Upsert(ctx context.Context, p *domain.Pipeline) error {
	stepsJSON, err := json.Marshal(p.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	query := `
		INSERT INTO pipelines (id, name, steps, active, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (name) DO UPDATE
		SET steps = EXCLUDED.steps, active = EXCLUDED.active
		RETURNING id, created_at
	`
	err = r.pool.QueryRow(ctx, query, p.ID, p.Name, stepsJSON, p.Active).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert pipeline: %w", err)
	}
	return nil
}

// GetActiveByKey ищет активный pipeline по id или имени.
func (r *PipelineRepo) GetActiveByKey(ctx context.Context, key string) (*domain.Pipeline, error) {
	query := `
		SELECT id, name, steps, active, created_at
		FROM pipelines
		WHERE active = TRUE AND (id::text = $1 OR name = $1)
	`
	return scanPipeline(r.pool.QueryRow(ctx, query, key))
}

// List возвращает все pipelines в порядке создания.
func (r *PipelineRepo) List(ctx context.Context) ([]domain.Pipeline, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, steps, active, created_at
		FROM pipelines
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()

	var pipelines []domain.Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, *p)
	}
	return pipelines, rows.Err()
}

func scanPipeline(row pgx.Row) (*domain.Pipeline, error) {
	var p domain.Pipeline
	var stepsJSON []byte

	err := row.Scan(&p.ID, &p.Name, &stepsJSON, &p.Active, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan pipeline: %w", err)
	}

	if stepsJSON != nil {
		if err := json.Unmarshal(stepsJSON, &p.Steps); err != nil {
			return nil, fmt.Errorf("unmarshal steps: %w", err)
		}
	}
	return &p, nil
}

// --- pipeline runs ---

// CreateRun создаёт pipeline run в статусе running.
func (r *PipelineRepo) CreateRun(ctx context.Context, run *domain.PipelineRun) error {
	contextJSON, err := marshalMap(run.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	query := `
		INSERT INTO pipeline_runs (id, pipeline_id, status, current_step, total_steps, trigger, context, started_at)
		VALUES ($1, $2, $3, 0, $4, $5, $6, NOW())
		RETURNING started_at
	`
	err = r.pool.QueryRow(ctx, query,
		run.ID,
		run.PipelineID,
		domain.PipelineRunRunning,
		run.TotalSteps,
		run.Trigger,
		contextJSON,
	).Scan(&run.StartedAt)
	if err != nil {
		return fmt.Errorf("create pipeline run: %w", err)
	}
	run.Status = domain.PipelineRunRunning
	return nil
}

// GetRun возвращает pipeline run по id.
func (r *PipelineRepo) GetRun(ctx context.Context, id uuid.UUID) (*domain.PipelineRun, error) {
	query := `
		SELECT id, pipeline_id, status, current_step, total_steps, trigger, context, started_at, completed_at
		FROM pipeline_runs
		WHERE id = $1
	`
	return scanPipelineRun(r.pool.QueryRow(ctx, query, id))
}

// ListRuns возвращает последние pipeline runs, новые первыми.
func (r *PipelineRepo) ListRuns(ctx context.Context, limit int) ([]domain.PipelineRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, pipeline_id, status, current_step, total_steps, trigger, context, started_at, completed_at
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.PipelineRun
	for rows.Next() {
		pr, err := scanPipelineRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *pr)
	}
	return runs, rows.Err()
}

// UpdateRunContext перезаписывает накопленный контекст.
func (r *PipelineRepo) UpdateRunContext(ctx context.Context, id uuid.UUID, runCtx map[string]any) error {
	contextJSON, err := marshalMap(runCtx)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE pipeline_runs SET context = $2 WHERE id = $1
	`, id, contextJSON)
	if err != nil {
		return fmt.Errorf("update run context: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCurrentStep двигает указатель текущего шага. Указатель монотонно
// неубывающий: попытка отката игнорируется на уровне запроса.
func (r *PipelineRepo) SetCurrentStep(ctx context.Context, id uuid.UUID, step int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE pipeline_runs
		SET current_step = $2
		WHERE id = $1 AND current_step < $2
	`, id, step)
	if err != nil {
		return fmt.Errorf("set current step: %w", err)
	}
	return nil
}

// CompleteRun переводит pipeline run в терминальный статус.
func (r *PipelineRepo) CompleteRun(ctx context.Context, id uuid.UUID, status domain.PipelineRunStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE pipeline_runs
		SET status = $2, completed_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, status, domain.PipelineRunRunning)
	if err != nil {
		return fmt.Errorf("complete pipeline run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

func scanPipelineRun(row pgx.Row) (*domain.PipelineRun, error) {
	var pr domain.PipelineRun
	var contextJSON []byte

	err := row.Scan(
		&pr.ID,
		&pr.PipelineID,
		&pr.Status,
		&pr.CurrentStep,
		&pr.TotalSteps,
		&pr.Trigger,
		&contextJSON,
		&pr.StartedAt,
		&pr.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan pipeline run: %w", err)
	}

	if contextJSON != nil {
		if err := json.Unmarshal(contextJSON, &pr.Context); err != nil {
			return nil, fmt.Errorf("unmarshal context: %w", err)
		}
	}
	return &pr, nil
}

// --- step records ---

// CreateStep создаёт запись шага.
func (r *PipelineRepo) CreateStep(ctx context.Context, rec *domain.StepRecord) error {
	query := `
		INSERT INTO pipeline_steps (id, pipeline_run_id, step_index, agent_id, status, delay_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.PipelineRunID,
		rec.StepIndex,
		rec.AgentID,
		rec.Status,
		rec.DelayMinutes,
	)
	if err != nil {
		return fmt.Errorf("create step: %w", err)
	}
	return nil
}

// GetStep возвращает запись шага по run id и индексу.
func (r *PipelineRepo) GetStep(ctx context.Context, pipelineRunID uuid.UUID, stepIndex int) (*domain.StepRecord, error) {
	query := stepSelect + ` WHERE pipeline_run_id = $1 AND step_index = $2`
	return scanStep(r.pool.QueryRow(ctx, query, pipelineRunID, stepIndex))
}

// GetRunningStepByRunID ищет running-шаг, которому принадлежит
// указанный run воркера.
func (r *PipelineRepo) GetRunningStepByRunID(ctx context.Context, runID uuid.UUID) (*domain.StepRecord, error) {
	query := stepSelect + ` WHERE run_id = $1 AND status = $2`
	return scanStep(r.pool.QueryRow(ctx, query, runID, domain.StepRunning))
}

// UpdateStep обновляет изменяемые поля записи шага.
func (r *PipelineRepo) UpdateStep(ctx context.Context, rec *domain.StepRecord) error {
	inputJSON, err := marshalMap(rec.InputContext)
	if err != nil {
		return fmt.Errorf("marshal input_context: %w", err)
	}
	outputJSON, err := marshalMap(rec.OutputSummary)
	if err != nil {
		return fmt.Errorf("marshal output_summary: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE pipeline_steps
		SET status = $2,
		    run_id = $3,
		    input_context = $4,
		    output_summary = $5,
		    scheduled_for = $6,
		    started_at = $7,
		    completed_at = $8,
		    error = $9
		WHERE id = $1
	`, rec.ID, rec.Status, rec.RunID, inputJSON, outputJSON,
		rec.ScheduledFor, rec.StartedAt, rec.CompletedAt, nullString(rec.Error))
	if err != nil {
		return fmt.Errorf("update step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SkipPending помечает все pending/waiting шаги run как skipped.
// Вызывается при провале шага: хвост pipeline не выполняется.
func (r *PipelineRepo) SkipPending(ctx context.Context, pipelineRunID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE pipeline_steps
		SET status = $2, completed_at = NOW()
		WHERE pipeline_run_id = $1 AND status IN ($3, $4)
	`, pipelineRunID, domain.StepSkipped, domain.StepPending, domain.StepWaiting)
	if err != nil {
		return fmt.Errorf("skip pending steps: %w", err)
	}
	return nil
}

// ListDueWaiting возвращает waiting-шаги, чьё scheduled_for наступило.
func (r *PipelineRepo) ListDueWaiting(ctx context.Context, now time.Time) ([]domain.StepRecord, error) {
	query := stepSelect + `
		WHERE status = $1 AND scheduled_for IS NOT NULL AND scheduled_for <= $2
		ORDER BY scheduled_for ASC
	`
	rows, err := r.pool.Query(ctx, query, domain.StepWaiting, now)
	if err != nil {
		return nil, fmt.Errorf("list due waiting steps: %w", err)
	}
	defer rows.Close()

	return collectSteps(rows)
}

// ListSteps возвращает все шаги run в порядке индексов.
func (r *PipelineRepo) ListSteps(ctx context.Context, pipelineRunID uuid.UUID) ([]domain.StepRecord, error) {
	query := stepSelect + ` WHERE pipeline_run_id = $1 ORDER BY step_index ASC`
	rows, err := r.pool.Query(ctx, query, pipelineRunID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	return collectSteps(rows)
}

const stepSelect = `
	SELECT id, pipeline_run_id, step_index, agent_id, status, delay_minutes,
	       run_id, input_context, output_summary, scheduled_for, started_at, completed_at, error
	FROM pipeline_steps
`

func collectSteps(rows pgx.Rows) ([]domain.StepRecord, error) {
	var steps []domain.StepRecord
	for rows.Next() {
		rec, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, *rec)
	}
	return steps, rows.Err()
}

func scanStep(row pgx.Row) (*domain.StepRecord, error) {
	var rec domain.StepRecord
	var inputJSON, outputJSON []byte
	var errMsg *string

	err := row.Scan(
		&rec.ID,
		&rec.PipelineRunID,
		&rec.StepIndex,
		&rec.AgentID,
		&rec.Status,
		&rec.DelayMinutes,
		&rec.RunID,
		&inputJSON,
		&outputJSON,
		&rec.ScheduledFor,
		&rec.StartedAt,
		&rec.CompletedAt,
		&errMsg,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan step: %w", err)
	}

	if errMsg != nil {
		rec.Error = *errMsg
	}
	if inputJSON != nil {
		if err := json.Unmarshal(inputJSON, &rec.InputContext); err != nil {
			return nil, fmt.Errorf("unmarshal input_context: %w", err)
		}
	}
	if outputJSON != nil {
		if err := json.Unmarshal(outputJSON, &rec.OutputSummary); err != nil {
			return nil, fmt.Errorf("unmarshal output_summary: %w", err)
		}
	}
	return &rec, nil
}
