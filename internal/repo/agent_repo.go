package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Cadence/internal/domain"
)

// AgentRepo — репозиторий для работы с воркерами.
type AgentRepo struct {
	pool *pgxpool.Pool
}

// NewAgentRepo создаёт новый AgentRepo.
func NewAgentRepo(pool *pgxpool.Pool) *AgentRepo {
	return &AgentRepo{pool: pool}
}

// Upsert создаёт или обновляет воркера. Используется при посеве
// конфигурации на старте; агрегатные поля (status, total_runs,
// last_run_at) при обновлении не трогаются.
func (r *AgentRepo) Upsert(ctx context.Context, agent *domain.Agent) error {
	configJSON, err := json.Marshal(agent.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	query := `
		INSERT INTO agents (id, name, config, status, total_runs, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, config = EXCLUDED.config, updated_at = NOW()
	`
	_, err = r.pool.Exec(ctx, query,
		agent.ID,
		agent.Name,
		configJSON,
		domain.AgentIdle,
	)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

// GetByID возвращает воркера по id.
func (r *AgentRepo) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	query := `
		SELECT id, name, config, status, total_runs, last_run_at, created_at, updated_at
		FROM agents
		WHERE id = $1
	`
	return scanAgent(r.pool.QueryRow(ctx, query, id))
}

// List возвращает всех воркеров в порядке создания.
func (r *AgentRepo) List(ctx context.Context) ([]domain.Agent, error) {
	query := `
		SELECT id, name, config, status, total_runs, last_run_at, created_at, updated_at
		FROM agents
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	return collectAgents(rows)
}

// ListByDomain возвращает воркеров указанного домена (для blitz).
func (r *AgentRepo) ListByDomain(ctx context.Context, agentDomain string) ([]domain.Agent, error) {
	query := `
		SELECT id, name, config, status, total_runs, last_run_at, created_at, updated_at
		FROM agents
		WHERE config->>'domain' = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, agentDomain)
	if err != nil {
		return nil, fmt.Errorf("list agents by domain: %w", err)
	}
	defer rows.Close()

	return collectAgents(rows)
}

func collectAgents(rows pgx.Rows) ([]domain.Agent, error) {
	var agents []domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *agent)
	}
	return agents, rows.Err()
}

func scanAgent(row pgx.Row) (*domain.Agent, error) {
	var a domain.Agent
	var configJSON []byte

	err := row.Scan(
		&a.ID,
		&a.Name,
		&configJSON,
		&a.Status,
		&a.TotalRuns,
		&a.LastRunAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent: %w", err)
	}

	if configJSON != nil {
		if err := json.Unmarshal(configJSON, &a.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	return &a, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
