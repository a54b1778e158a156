package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cadence/internal/dispatch"
	"github.com/shaiso/Cadence/internal/domain"
	"github.com/shaiso/Cadence/internal/repo"
)

// Store — хранилище pipelines, их запусков и шагов.
type Store interface {
	GetActiveByKey(ctx context.Context, key string) (*domain.Pipeline, error)
	CreateRun(ctx context.Context, run *domain.PipelineRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*domain.PipelineRun, error)
	UpdateRunContext(ctx context.Context, id uuid.UUID, runCtx map[string]any) error
	SetCurrentStep(ctx context.Context, id uuid.UUID, step int) error
	CompleteRun(ctx context.Context, id uuid.UUID, status domain.PipelineRunStatus) error
	CreateStep(ctx context.Context, rec *domain.StepRecord) error
	GetStep(ctx context.Context, pipelineRunID uuid.UUID, stepIndex int) (*domain.StepRecord, error)
	GetRunningStepByRunID(ctx context.Context, runID uuid.UUID) (*domain.StepRecord, error)
	UpdateStep(ctx context.Context, rec *domain.StepRecord) error
	SkipPending(ctx context.Context, pipelineRunID uuid.UUID) error
	ListDueWaiting(ctx context.Context, now time.Time) ([]domain.StepRecord, error)
}

// RunLedger — журнал запусков воркеров.
type RunLedger interface {
	Create(ctx context.Context, run *domain.Run) error
	MarkRunning(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, stats repo.CompletionStats) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, durationMs int64) error
}

// AgentStore — доступ к воркерам.
type AgentStore interface {
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
}

// Dispatcher выполняет вызов воркера.
type Dispatcher interface {
	Dispatch(ctx context.Context, agent *domain.Agent, runID uuid.UUID, message string, runCtx map[string]any) (*dispatch.Result, error)
}

// EventPublisher — опциональный издатель событий о завершении.
// Ошибки публикации мягкие и не влияют на выполнение.
type EventPublisher interface {
	PublishPipelineCompleted(ctx context.Context, run *domain.PipelineRun) error
}
