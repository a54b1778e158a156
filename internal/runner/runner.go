package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cadence/internal/dispatch"
	"github.com/shaiso/Cadence/internal/domain"
	"github.com/shaiso/Cadence/internal/repo"
	"github.com/shaiso/Cadence/internal/telemetry"
)

// RunLedger — журнал запусков.
type RunLedger interface {
	Create(ctx context.Context, run *domain.Run) error
	MarkRunning(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, stats repo.CompletionStats) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, durationMs int64) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
}

// AgentStore — доступ к воркерам.
type AgentStore interface {
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
	ListByDomain(ctx context.Context, agentDomain string) ([]domain.Agent, error)
}

// Dispatcher выполняет вызов воркера.
type Dispatcher interface {
	Dispatch(ctx context.Context, agent *domain.Agent, runID uuid.UUID, message string, runCtx map[string]any) (*dispatch.Result, error)
}

// CompletionHook вызывается после терминального перехода run.
// Pipeline Engine подписывается, чтобы продвигать шаги.
type CompletionHook interface {
	OnRunCompleted(ctx context.Context, run *domain.Run) error
}

// EventPublisher — опциональный издатель событий завершения.
type EventPublisher interface {
	PublishRunCompleted(ctx context.Context, run *domain.Run) error
}

// Runner запускает воркеров и доводит их runs до терминального статуса.
type Runner struct {
	runs    RunLedger
	agents  AgentStore
	disp    Dispatcher
	pool    dispatch.Submitter
	hook    CompletionHook
	events  EventPublisher
	metrics *telemetry.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Config — конфигурация Runner.
type Config struct {
	Runs       RunLedger
	Agents     AgentStore
	Dispatcher Dispatcher

	// Pool — пул асинхронного выполнения. nil — синхронное выполнение.
	Pool dispatch.Submitter

	// Hook — подписчик терминальных переходов (обычно Pipeline Engine).
	Hook CompletionHook

	// Events — опциональный издатель событий.
	Events EventPublisher

	// Metrics — опциональные метрики runs.
	Metrics *telemetry.Metrics

	Logger *slog.Logger

	// Now — источник времени (для тестов).
	Now func() time.Time
}

// New создаёт Runner.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		runs:    cfg.Runs,
		agents:  cfg.Agents,
		disp:    cfg.Dispatcher,
		pool:    cfg.Pool,
		hook:    cfg.Hook,
		events:  cfg.Events,
		metrics: cfg.Metrics,
		logger:  logger,
		now:     now,
	}
}

// Fire создаёт run и отправляет выполнение в пул.
//
// Возвращается сразу после постановки в очередь: созданный run ещё
// pending. Терминальный переход делает задача пула.
func (r *Runner) Fire(ctx context.Context, agentID, message string, trigger domain.TriggerType) (*domain.Run, error) {
	agent, err := r.agents.GetByID(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("resolve worker %q: %w", agentID, err)
	}

	run := &domain.Run{
		ID:      uuid.New(),
		AgentID: agent.ID,
		Trigger: trigger,
	}
	if err := r.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	r.logger.Info("run queued",
		"run_id", run.ID,
		"agent_id", agent.ID,
		"trigger", trigger,
	)

	job := func(jobCtx context.Context) {
		r.execute(jobCtx, run.ID, agent, message)
	}

	if r.pool != nil {
		if err := r.pool.Submit(job); err != nil {
			r.settleFailed(ctx, run.ID, "dispatch pool unavailable", 0)
			return nil, err
		}
		return run, nil
	}

	job(ctx)
	return run, nil
}

// FireBlitz запускает всех воркеров домена одним сообщением.
// Возвращает созданные runs; ошибка отдельного воркера не прерывает обход.
func (r *Runner) FireBlitz(ctx context.Context, agentDomain, message string) ([]domain.Run, error) {
	agents, err := r.agents.ListByDomain(ctx, agentDomain)
	if err != nil {
		return nil, fmt.Errorf("list workers for domain %q: %w", agentDomain, err)
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("no workers in domain %q: %w", agentDomain, repo.ErrNotFound)
	}

	var runs []domain.Run
	for i := range agents {
		run, err := r.Fire(ctx, agents[i].ID, message, domain.TriggerBlitz)
		if err != nil {
			r.logger.Error("blitz: failed to fire worker",
				"agent_id", agents[i].ID,
				"error", err,
			)
			continue
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

// execute выполняет run внутри пула и доводит его до терминала.
func (r *Runner) execute(ctx context.Context, runID uuid.UUID, agent *domain.Agent, message string) {
	if err := r.runs.MarkRunning(ctx, runID); err != nil {
		// Run мог быть отменён, пока стоял в очереди.
		r.logger.Warn("run not startable, skipping", "run_id", runID, "error", err)
		return
	}

	res, err := r.disp.Dispatch(ctx, agent, runID, message, nil)
	if err != nil {
		r.settleFailed(ctx, runID, err.Error(), 0)
		return
	}

	stats := repo.CompletionStats{
		DurationMs: res.DurationMs,
		CostUSD:    res.CostUSD,
		TokensUsed: res.TokensUsed,
		ResultData: map[string]any{"output": res.OutputText},
	}
	for k, v := range res.SideEffects {
		stats.ResultData[k] = v
	}

	if err := r.runs.MarkCompleted(ctx, runID, stats); err != nil {
		r.logger.Error("failed to mark run completed", "run_id", runID, "error", err)
		return
	}

	r.logger.Info("run completed",
		"run_id", runID,
		"agent_id", agent.ID,
		"duration_ms", res.DurationMs,
		"cost_usd", res.CostUSD,
	)

	r.notify(ctx, runID)
}

// settleFailed фиксирует провал run и уведомляет подписчиков.
func (r *Runner) settleFailed(ctx context.Context, runID uuid.UUID, errMsg string, durationMs int64) {
	if err := r.runs.MarkFailed(ctx, runID, errMsg, durationMs); err != nil {
		r.logger.Error("failed to mark run failed", "run_id", runID, "error", err)
		return
	}

	r.logger.Warn("run failed", "run_id", runID, "error", errMsg)
	r.notify(ctx, runID)
}

// notify перечитывает run и дёргает hook и издателя событий.
func (r *Runner) notify(ctx context.Context, runID uuid.UUID) {
	run, err := r.runs.GetByID(ctx, runID)
	if err != nil {
		r.logger.Error("failed to reload run for notification", "run_id", runID, "error", err)
		return
	}

	if r.metrics != nil && run.IsFinished() {
		r.metrics.RunsTotal.WithLabelValues(string(run.Status), string(run.Trigger)).Inc()
		if run.CostUSD > 0 {
			r.metrics.RunCostUSD.Add(run.CostUSD)
		}
	}

	if r.hook != nil {
		if err := r.hook.OnRunCompleted(ctx, run); err != nil {
			r.logger.Error("completion hook failed", "run_id", runID, "error", err)
		}
	}

	if r.events != nil {
		if err := r.events.PublishRunCompleted(ctx, run); err != nil {
			r.logger.Warn("failed to publish run event", "run_id", runID, "error", err)
		}
	}
}
