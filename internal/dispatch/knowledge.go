package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/shaiso/Cadence/internal/domain"
)

const (
	defaultExampleLimit = 3
	maxExampleLen       = 500
)

// ExampleStore — хранилище накопленных примеров воркеров.
type ExampleStore interface {
	TopExamples(ctx context.Context, agentID string, limit int) ([]domain.KnowledgeExample, error)
	AddExample(ctx context.Context, agentID, summary string, score int) error
}

// KnowledgeCollaborator строит prompt-префикс из лучших примеров
// прошлых запусков воркера и пополняет хранилище после подтверждённых
// завершений. Обе стороны мягкие: ошибка чтения означает «без
// контекста», ошибка записи только логируется.
type KnowledgeCollaborator struct {
	store  ExampleStore
	limit  int
	logger *slog.Logger
}

// NewKnowledgeCollaborator создаёт KnowledgeCollaborator.
func NewKnowledgeCollaborator(store ExampleStore, logger *slog.Logger) *KnowledgeCollaborator {
	if logger == nil {
		logger = slog.Default()
	}
	return &KnowledgeCollaborator{
		store:  store,
		limit:  defaultExampleLimit,
		logger: logger,
	}
}

// BuildContext возвращает prompt-префикс с лучшими примерами воркера.
// Пустая строка — валидный результат: примеров пока нет.
func (k *KnowledgeCollaborator) BuildContext(ctx context.Context, agentID, sessionID string, hints map[string]any) (string, error) {
	examples, err := k.store.TopExamples(ctx, agentID, k.limit)
	if err != nil {
		return "", fmt.Errorf("load examples for %s: %w", agentID, err)
	}
	if len(examples) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Past results from this worker that were approved:\n")
	for i, e := range examples {
		fmt.Fprintf(&b, "%d. %s\n", i+1, e.Summary)
	}
	b.WriteString("Use them as a quality reference for the task below.")
	return b.String(), nil
}

// RecordApproved сохраняет результат подтверждённого run'а как пример.
// Ошибка записи не прерывает подтверждение — только логируется.
func (k *KnowledgeCollaborator) RecordApproved(ctx context.Context, agentID, output string) {
	output = strings.TrimSpace(output)
	if output == "" {
		return
	}
	if len(output) > maxExampleLen {
		// Режем по границе руны, чтобы не записать битый UTF-8.
		cut := maxExampleLen
		for cut > 0 && !utf8.RuneStart(output[cut]) {
			cut--
		}
		output = output[:cut]
	}

	if err := k.store.AddExample(ctx, agentID, output, 1); err != nil {
		k.logger.Warn("failed to record knowledge example",
			"agent_id", agentID,
			"error", err,
		)
	}
}
