package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Cadence/internal/bridge"
	"github.com/shaiso/Cadence/internal/domain"
	"github.com/shaiso/Cadence/internal/repo"
	"github.com/shaiso/Cadence/internal/runner"
)

// PipelineStarter запускает pipeline по id или имени.
type PipelineStarter interface {
	Start(ctx context.Context, key string, trigger domain.TriggerType, initialContext map[string]any) (*domain.PipelineRun, error)
	OnRunCompleted(ctx context.Context, run *domain.Run) error
}

// ExampleRecorder пополняет knowledge-хранилище после подтверждённых
// run'ов. Запись мягкая, ошибки глотает сам recorder.
type ExampleRecorder interface {
	RecordApproved(ctx context.Context, agentID, output string)
}

// BrokerHealth — опциональная проверка соединения с event-брокером,
// отражается в ответе health-чека.
type BrokerHealth interface {
	IsConnected() bool
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	agentRepo    *repo.AgentRepo
	runRepo      *repo.RunRepo
	scheduleRepo *repo.ScheduleRepo
	pipelineRepo *repo.PipelineRepo
	runner       *runner.Runner
	pipelines    PipelineStarter
	knowledge    ExampleRecorder
	killer       bridge.SessionKiller
	broker       BrokerHealth
	logger       *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	AgentRepo    *repo.AgentRepo
	RunRepo      *repo.RunRepo
	ScheduleRepo *repo.ScheduleRepo
	PipelineRepo *repo.PipelineRepo
	Runner       *runner.Runner
	Pipelines    PipelineStarter

	// Knowledge — опциональный recorder примеров для подтверждённых run'ов.
	Knowledge ExampleRecorder

	// Killer — опциональный kill switch для bridge-сессий.
	Killer bridge.SessionKiller

	// Broker — опциональное состояние соединения с event-брокером.
	Broker BrokerHealth

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		agentRepo:    cfg.AgentRepo,
		runRepo:      cfg.RunRepo,
		scheduleRepo: cfg.ScheduleRepo,
		pipelineRepo: cfg.PipelineRepo,
		runner:       cfg.Runner,
		pipelines:    cfg.Pipelines,
		knowledge:    cfg.Knowledge,
		killer:       cfg.Killer,
		broker:       cfg.Broker,
		logger:       cfg.Logger,
	}
}

// parseUUID — разбор uuid из path value с единым сообщением об ошибке.
func parseUUID(s string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	return id, err == nil
}
