package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cadence/internal/dispatch"
	"github.com/shaiso/Cadence/internal/domain"
	"github.com/shaiso/Cadence/internal/engine"
	"github.com/shaiso/Cadence/internal/repo"
)

// Engine управляет выполнением pipelines.
//
// Шаги выполняются строго последовательно: следующий шаг стартует
// только после терминального статуса предыдущего. Шаг с delay-окном
// переходит в waiting и возобновляется sweeper'ом.
type Engine struct {
	store  Store
	runs   RunLedger
	agents AgentStore

	dispatcher Dispatcher
	submitter  dispatch.Submitter
	events     EventPublisher

	logger *slog.Logger
	now    func() time.Time
}

// Config — конфигурация Engine.
type Config struct {
	Store      Store
	Runs       RunLedger
	Agents     AgentStore
	Dispatcher Dispatcher

	// Submitter — куда уходит асинхронное выполнение шага.
	Submitter dispatch.Submitter

	// Events — опциональный издатель событий завершения.
	Events EventPublisher

	Logger *slog.Logger

	// Now — источник времени (для тестов).
	Now func() time.Time
}

// New создаёт Engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		store:      cfg.Store,
		runs:       cfg.Runs,
		agents:     cfg.Agents,
		dispatcher: cfg.Dispatcher,
		submitter:  cfg.Submitter,
		events:     cfg.Events,
		logger:     logger,
		now:        now,
	}
}

// Start запускает pipeline по id или имени.
//
// Записи всех шагов создаются сразу в статусе pending, после чего
// стартует шаг 0. Initial context доступен шаблону первого шага.
func (e *Engine) Start(ctx context.Context, key string, trigger domain.TriggerType, initialContext map[string]any) (*domain.PipelineRun, error) {
	p, err := e.store.GetActiveByKey(ctx, key)
	if err != nil {
		return nil, ErrPipelineNotFound
	}
	if len(p.Steps) == 0 {
		return nil, ErrEmptyPipeline
	}

	run := &domain.PipelineRun{
		ID:         uuid.New(),
		PipelineID: p.ID,
		TotalSteps: len(p.Steps),
		Trigger:    trigger,
		Context:    initialContext,
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create pipeline run: %w", err)
	}

	for i, step := range p.Steps {
		rec := &domain.StepRecord{
			ID:            uuid.New(),
			PipelineRunID: run.ID,
			StepIndex:     i,
			AgentID:       step.AgentID,
			Status:        domain.StepPending,
			DelayMinutes:  step.DelayMinutes,
		}
		if err := e.store.CreateStep(ctx, rec); err != nil {
			return nil, fmt.Errorf("create step %d: %w", i, err)
		}
	}

	e.logger.Info("pipeline started",
		"pipeline", p.Name,
		"pipeline_run_id", run.ID,
		"total_steps", run.TotalSteps,
		"trigger", trigger,
	)

	if err := e.advanceToStep(ctx, run.ID, p, 0, false); err != nil {
		return nil, err
	}
	return run, nil
}

// advanceToStep переводит pipeline run к шагу stepIndex.
//
// Шаг с delay-окном переводится в waiting (если это не возобновление);
// иначе шаг запускается немедленно. stepIndex за последним шагом
// завершает pipeline run.
func (e *Engine) advanceToStep(ctx context.Context, runID uuid.UUID, p *domain.Pipeline, stepIndex int, resumed bool) error {
	if stepIndex >= len(p.Steps) {
		return e.finishRun(ctx, runID, domain.PipelineRunCompleted)
	}

	rec, err := e.store.GetStep(ctx, runID, stepIndex)
	if err != nil {
		return fmt.Errorf("get step %d: %w", stepIndex, err)
	}

	if !resumed && rec.DelayMinutes > 0 {
		scheduledFor := e.now().Add(time.Duration(rec.DelayMinutes) * time.Minute)
		rec.Status = domain.StepWaiting
		rec.ScheduledFor = &scheduledFor
		if err := e.store.UpdateStep(ctx, rec); err != nil {
			return fmt.Errorf("park step %d: %w", stepIndex, err)
		}

		e.logger.Info("step parked until delay window",
			"pipeline_run_id", runID,
			"step", stepIndex,
			"scheduled_for", scheduledFor,
		)
		return nil
	}

	return e.fireStep(ctx, runID, p, rec)
}

// fireStep создаёт run воркера для шага и отправляет выполнение в пул.
func (e *Engine) fireStep(ctx context.Context, pipelineRunID uuid.UUID, p *domain.Pipeline, rec *domain.StepRecord) error {
	pr, err := e.store.GetRun(ctx, pipelineRunID)
	if err != nil {
		return fmt.Errorf("get pipeline run: %w", err)
	}

	agent, err := e.agents.GetByID(ctx, rec.AgentID)
	if err != nil {
		return e.failStep(ctx, pr, rec, fmt.Sprintf("unknown worker %q", rec.AgentID), nil)
	}

	def := p.Steps[rec.StepIndex]
	message := engine.StepMessage(def.MessageTemplate, rec.StepIndex, pr.Context)

	run := &domain.Run{
		ID:      uuid.New(),
		AgentID: rec.AgentID,
		Trigger: domain.TriggerPipeline,
	}
	if err := e.runs.Create(ctx, run); err != nil {
		return fmt.Errorf("create step run: %w", err)
	}

	startedAt := e.now()
	rec.Status = domain.StepRunning
	rec.RunID = &run.ID
	rec.InputContext = pr.Context
	rec.StartedAt = &startedAt
	if err := e.store.UpdateStep(ctx, rec); err != nil {
		return fmt.Errorf("mark step running: %w", err)
	}

	if err := e.store.SetCurrentStep(ctx, pipelineRunID, rec.StepIndex); err != nil {
		e.logger.Warn("failed to advance step pointer", "pipeline_run_id", pipelineRunID, "error", err)
	}

	if err := e.runs.MarkRunning(ctx, run.ID); err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}

	stepIndex := rec.StepIndex
	runID := run.ID
	agentCopy := agent
	pipeline := p

	job := func(jobCtx context.Context) {
		e.executeStep(jobCtx, pipelineRunID, pipeline, stepIndex, runID, agentCopy, message)
	}

	if e.submitter != nil {
		if err := e.submitter.Submit(job); err != nil {
			return e.failStep(ctx, pr, rec, "dispatch pool unavailable", &run.ID)
		}
		return nil
	}

	job(ctx)
	return nil
}

// executeStep выполняет шаг внутри пула и двигает pipeline дальше.
func (e *Engine) executeStep(ctx context.Context, pipelineRunID uuid.UUID, p *domain.Pipeline, stepIndex int, runID uuid.UUID, agent *domain.Agent, message string) {
	res, err := e.dispatcher.Dispatch(ctx, agent, runID, message, nil)
	if err != nil {
		if markErr := e.runs.MarkFailed(ctx, runID, err.Error(), 0); markErr != nil {
			e.logger.Error("failed to mark step run failed", "run_id", runID, "error", markErr)
		}
		e.failStepByIndex(ctx, pipelineRunID, stepIndex, err.Error())
		return
	}

	stats := repo.CompletionStats{
		DurationMs: res.DurationMs,
		CostUSD:    res.CostUSD,
		TokensUsed: res.TokensUsed,
		ResultData: map[string]any{"output": res.OutputText},
	}
	if err := e.runs.MarkCompleted(ctx, runID, stats); err != nil {
		e.logger.Error("failed to mark step run completed", "run_id", runID, "error", err)
	}

	if err := e.completeStep(ctx, pipelineRunID, p, stepIndex, agent.ID, res.OutputText); err != nil {
		e.logger.Error("failed to advance pipeline after step",
			"pipeline_run_id", pipelineRunID,
			"step", stepIndex,
			"error", err,
		)
	}
}

// completeStep фиксирует успех шага, накапливает контекст и запускает
// следующий шаг.
func (e *Engine) completeStep(ctx context.Context, pipelineRunID uuid.UUID, p *domain.Pipeline, stepIndex int, agentID, outputText string) error {
	rec, err := e.store.GetStep(ctx, pipelineRunID, stepIndex)
	if err != nil {
		return fmt.Errorf("get step: %w", err)
	}

	summary := engine.ExtractSummary(outputText)
	completedAt := e.now()

	rec.Status = domain.StepCompleted
	rec.OutputSummary = summary
	rec.CompletedAt = &completedAt
	if err := e.store.UpdateStep(ctx, rec); err != nil {
		return fmt.Errorf("mark step completed: %w", err)
	}

	pr, err := e.store.GetRun(ctx, pipelineRunID)
	if err != nil {
		return fmt.Errorf("get pipeline run: %w", err)
	}

	merged := engine.MergeStepOutput(pr.Context, stepIndex, agentID, summary)
	if err := e.store.UpdateRunContext(ctx, pipelineRunID, merged); err != nil {
		return fmt.Errorf("update run context: %w", err)
	}

	e.logger.Info("step completed",
		"pipeline_run_id", pipelineRunID,
		"step", stepIndex,
		"agent_id", agentID,
	)

	return e.advanceToStep(ctx, pipelineRunID, p, stepIndex+1, false)
}

// failStepByIndex — провал шага по индексу с каскадом skipped.
func (e *Engine) failStepByIndex(ctx context.Context, pipelineRunID uuid.UUID, stepIndex int, errMsg string) {
	rec, err := e.store.GetStep(ctx, pipelineRunID, stepIndex)
	if err != nil {
		e.logger.Error("failed to load failing step", "pipeline_run_id", pipelineRunID, "step", stepIndex, "error", err)
		return
	}
	pr, err := e.store.GetRun(ctx, pipelineRunID)
	if err != nil {
		e.logger.Error("failed to load pipeline run", "pipeline_run_id", pipelineRunID, "error", err)
		return
	}
	if err := e.failStep(ctx, pr, rec, errMsg, rec.RunID); err != nil {
		e.logger.Error("failed to fail step", "pipeline_run_id", pipelineRunID, "step", stepIndex, "error", err)
	}
}

// failStep фиксирует провал шага: шаг failed, хвост skipped,
// pipeline run failed.
func (e *Engine) failStep(ctx context.Context, pr *domain.PipelineRun, rec *domain.StepRecord, errMsg string, runID *uuid.UUID) error {
	completedAt := e.now()
	rec.Status = domain.StepFailed
	rec.Error = errMsg
	rec.RunID = runID
	rec.CompletedAt = &completedAt
	if err := e.store.UpdateStep(ctx, rec); err != nil {
		return fmt.Errorf("mark step failed: %w", err)
	}

	if err := e.store.SkipPending(ctx, pr.ID); err != nil {
		return fmt.Errorf("skip remaining steps: %w", err)
	}

	e.logger.Warn("step failed, skipping remaining steps",
		"pipeline_run_id", pr.ID,
		"step", rec.StepIndex,
		"error", errMsg,
	)

	return e.finishRun(ctx, pr.ID, domain.PipelineRunFailed)
}

// finishRun завершает pipeline run и публикует событие.
func (e *Engine) finishRun(ctx context.Context, pipelineRunID uuid.UUID, status domain.PipelineRunStatus) error {
	if err := e.store.CompleteRun(ctx, pipelineRunID, status); err != nil {
		return fmt.Errorf("complete pipeline run: %w", err)
	}

	e.logger.Info("pipeline finished",
		"pipeline_run_id", pipelineRunID,
		"status", status,
	)

	if e.events != nil {
		pr, err := e.store.GetRun(ctx, pipelineRunID)
		if err == nil {
			if pubErr := e.events.PublishPipelineCompleted(ctx, pr); pubErr != nil {
				e.logger.Warn("failed to publish pipeline event", "error", pubErr)
			}
		}
	}
	return nil
}

// OnRunCompleted — хук завершения run воркера.
//
// Если завершившийся run принадлежит running-шагу pipeline, шаг
// фиксируется и pipeline продвигается дальше. Runs вне pipelines
// игнорируются.
func (e *Engine) OnRunCompleted(ctx context.Context, run *domain.Run) error {
	rec, err := e.store.GetRunningStepByRunID(ctx, run.ID)
	if err != nil {
		return nil
	}

	pr, err := e.store.GetRun(ctx, rec.PipelineRunID)
	if err != nil {
		return fmt.Errorf("get pipeline run: %w", err)
	}

	p, err := e.store.GetActiveByKey(ctx, pr.PipelineID.String())
	if err != nil {
		return fmt.Errorf("get pipeline: %w", err)
	}

	if run.Status == domain.RunStatusCompleted {
		outputText, _ := run.ResultData["output"].(string)
		return e.completeStep(ctx, rec.PipelineRunID, p, rec.StepIndex, rec.AgentID, outputText)
	}

	return e.failStep(ctx, pr, rec, run.ErrorMsg, &run.ID)
}

// SweepDelayed возобновляет waiting-шаги, чьё delay-окно истекло.
// Возвращает количество возобновлённых шагов.
func (e *Engine) SweepDelayed(ctx context.Context) (int, error) {
	due, err := e.store.ListDueWaiting(ctx, e.now())
	if err != nil {
		return 0, fmt.Errorf("list due steps: %w", err)
	}

	resumed := 0
	for i := range due {
		rec := &due[i]

		pr, err := e.store.GetRun(ctx, rec.PipelineRunID)
		if err != nil {
			e.logger.Error("sweep: pipeline run missing", "pipeline_run_id", rec.PipelineRunID, "error", err)
			continue
		}
		if pr.Status.IsTerminal() {
			continue
		}

		p, err := e.store.GetActiveByKey(ctx, pr.PipelineID.String())
		if err != nil {
			e.logger.Error("sweep: pipeline definition missing", "pipeline_id", pr.PipelineID, "error", err)
			continue
		}

		e.logger.Info("resuming delayed step",
			"pipeline_run_id", rec.PipelineRunID,
			"step", rec.StepIndex,
		)

		if err := e.advanceToStep(ctx, rec.PipelineRunID, p, rec.StepIndex, true); err != nil {
			e.logger.Error("sweep: failed to resume step",
				"pipeline_run_id", rec.PipelineRunID,
				"step", rec.StepIndex,
				"error", err,
			)
			continue
		}
		resumed++
	}
	return resumed, nil
}
