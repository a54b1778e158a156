package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Cadence/internal/domain"
)

// KnowledgeRepo — накопленные примеры для knowledge-коллаборатора.
type KnowledgeRepo struct {
	pool *pgxpool.Pool
}

// NewKnowledgeRepo создаёт новый KnowledgeRepo.
func NewKnowledgeRepo(pool *pgxpool.Pool) *KnowledgeRepo {
	return &KnowledgeRepo{pool: pool}
}

// AddExample сохраняет пример для воркера.
func (r *KnowledgeRepo) AddExample(ctx context.Context, agentID, summary string, score int) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO knowledge_examples (id, agent_id, summary, score, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, uuid.New(), agentID, summary, score)
	if err != nil {
		return fmt.Errorf("add example: %w", err)
	}
	return nil
}

// TopExamples возвращает лучшие примеры воркера по score.
func (r *KnowledgeRepo) TopExamples(ctx context.Context, agentID string, limit int) ([]domain.KnowledgeExample, error) {
	if limit <= 0 {
		limit = 3
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, agent_id, summary, score
		FROM knowledge_examples
		WHERE agent_id = $1
		ORDER BY score DESC, created_at DESC
		LIMIT $2
	`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("top examples: %w", err)
	}
	defer rows.Close()

	var examples []domain.KnowledgeExample
	for rows.Next() {
		var e domain.KnowledgeExample
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Summary, &e.Score); err != nil {
			return nil, fmt.Errorf("scan example: %w", err)
		}
		examples = append(examples, e)
	}
	return examples, rows.Err()
}
