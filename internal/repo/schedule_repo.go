package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Cadence/internal/domain"
)

// ScheduleRepo — репозиторий расписаний.
type ScheduleRepo struct {
	pool *pgxpool.Pool
}

// NewScheduleRepo создаёт новый ScheduleRepo.
func NewScheduleRepo(pool *pgxpool.Pool) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

// Create создаёт schedule.
func (r *ScheduleRepo) Create(ctx context.Context, s *domain.Schedule) error {
	query := `
		INSERT INTO schedules (id, name, agent_id, cron_expr, message, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		s.ID,
		s.Name,
		s.AgentID,
		s.CronExpr,
		nullString(s.Message),
		s.Enabled,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

// GetByID возвращает schedule по id.
func (r *ScheduleRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	query := `
		SELECT id, name, agent_id, cron_expr, message, enabled, last_run_at, created_at, updated_at
		FROM schedules
		WHERE id = $1
	`
	return scanSchedule(r.pool.QueryRow(ctx, query, id))
}

// List возвращает все schedules в порядке создания.
func (r *ScheduleRepo) List(ctx context.Context) ([]domain.Schedule, error) {
	return r.list(ctx, `
		SELECT id, name, agent_id, cron_expr, message, enabled, last_run_at, created_at, updated_at
		FROM schedules
		ORDER BY created_at ASC
	`)
}

// ListEnabled возвращает включённые schedules в стабильном порядке
// создания. Порядок важен: тик планировщика обходит их детерминированно.
func (r *ScheduleRepo) ListEnabled(ctx context.Context) ([]domain.Schedule, error) {
	return r.list(ctx, `
		SELECT id, name, agent_id, cron_expr, message, enabled, last_run_at, created_at, updated_at
		FROM schedules
		WHERE enabled = TRUE
		ORDER BY created_at ASC
	`)
}

func (r *ScheduleRepo) list(ctx context.Context, query string) ([]domain.Schedule, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	return schedules, rows.Err()
}

// Update обновляет изменяемые поля schedule.
func (r *ScheduleRepo) Update(ctx context.Context, s *domain.Schedule) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE schedules
		SET name = $2, agent_id = $3, cron_expr = $4, message = $5, enabled = $6, updated_at = NOW()
		WHERE id = $1
	`, s.ID, s.Name, s.AgentID, s.CronExpr, nullString(s.Message), s.Enabled)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetEnabled включает или выключает schedule.
func (r *ScheduleRepo) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE schedules
		SET enabled = $2, updated_at = NOW()
		WHERE id = $1
	`, id, enabled)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет schedule.
func (r *ScheduleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// StampLastRun проставляет last_run_at. Вызывается ДО диспетчеризации,
// чтобы перекрывающийся тик не запустил schedule второй раз.
func (r *ScheduleRepo) StampLastRun(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE schedules
		SET last_run_at = $2, updated_at = NOW()
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("stamp last run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSchedule(row pgx.Row) (*domain.Schedule, error) {
	var s domain.Schedule
	var message *string

	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.AgentID,
		&s.CronExpr,
		&message,
		&s.Enabled,
		&s.LastRunAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	if message != nil {
		s.Message = *message
	}
	return &s, nil
}
