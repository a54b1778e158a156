package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cadence/internal/dispatch"
	"github.com/shaiso/Cadence/internal/domain"
	"github.com/shaiso/Cadence/internal/repo"
)

// --- Fakes ---

type fakeStore struct {
	pipeline *domain.Pipeline
	runs     map[uuid.UUID]*domain.PipelineRun
	steps    []*domain.StepRecord
}

func newFakeStore(p *domain.Pipeline) *fakeStore {
	return &fakeStore{
		pipeline: p,
		runs:     make(map[uuid.UUID]*domain.PipelineRun),
	}
}

func (f *fakeStore) GetActiveByKey(_ context.Context, key string) (*domain.Pipeline, error) {
	if f.pipeline == nil || !f.pipeline.Active {
		return nil, repo.ErrNotFound
	}
	if key == f.pipeline.Name || key == f.pipeline.ID.String() {
		return f.pipeline, nil
	}
	return nil, repo.ErrNotFound
}

func (f *fakeStore) CreateRun(_ context.Context, run *domain.PipelineRun) error {
	run.Status = domain.PipelineRunRunning
	run.StartedAt = time.Now()
	f.runs[run.ID] = run
	return nil
}

func (f *fakeStore) GetRun(_ context.Context, id uuid.UUID) (*domain.PipelineRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *run
	return &copied, nil
}

func (f *fakeStore) UpdateRunContext(_ context.Context, id uuid.UUID, runCtx map[string]any) error {
	run, ok := f.runs[id]
	if !ok {
		return repo.ErrNotFound
	}
	run.Context = runCtx
	return nil
}

func (f *fakeStore) SetCurrentStep(_ context.Context, id uuid.UUID, step int) error {
	run, ok := f.runs[id]
	if !ok {
		return repo.ErrNotFound
	}
	if step > run.CurrentStep {
		run.CurrentStep = step
	}
	return nil
}

func (f *fakeStore) CompleteRun(_ context.Context, id uuid.UUID, status domain.PipelineRunStatus) error {
	run, ok := f.runs[id]
	if !ok {
		return repo.ErrNotFound
	}
	if run.Status != domain.PipelineRunRunning {
		return repo.ErrInvalidState
	}
	now := time.Now()
	run.Status = status
	run.CompletedAt = &now
	return nil
}

func (f *fakeStore) CreateStep(_ context.Context, rec *domain.StepRecord) error {
	copied := *rec
	f.steps = append(f.steps, &copied)
	return nil
}

func (f *fakeStore) GetStep(_ context.Context, pipelineRunID uuid.UUID, stepIndex int) (*domain.StepRecord, error) {
	for _, s := range f.steps {
		if s.PipelineRunID == pipelineRunID && s.StepIndex == stepIndex {
			copied := *s
			return &copied, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeStore) GetRunningStepByRunID(_ context.Context, runID uuid.UUID) (*domain.StepRecord, error) {
	for _, s := range f.steps {
		if s.Status == domain.StepRunning && s.RunID != nil && *s.RunID == runID {
			copied := *s
			return &copied, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeStore) UpdateStep(_ context.Context, rec *domain.StepRecord) error {
	for i, s := range f.steps {
		if s.ID == rec.ID {
			copied := *rec
			f.steps[i] = &copied
			return nil
		}
	}
	return repo.ErrNotFound
}

func (f *fakeStore) SkipPending(_ context.Context, pipelineRunID uuid.UUID) error {
	for _, s := range f.steps {
		if s.PipelineRunID == pipelineRunID &&
			(s.Status == domain.StepPending || s.Status == domain.StepWaiting) {
			s.Status = domain.StepSkipped
		}
	}
	return nil
}

func (f *fakeStore) ListDueWaiting(_ context.Context, now time.Time) ([]domain.StepRecord, error) {
	var due []domain.StepRecord
	for _, s := range f.steps {
		if s.Status == domain.StepWaiting && s.ScheduledFor != nil && !s.ScheduledFor.After(now) {
			due = append(due, *s)
		}
	}
	return due, nil
}

func (f *fakeStore) stepStatus(runID uuid.UUID, idx int) domain.StepStatus {
	for _, s := range f.steps {
		if s.PipelineRunID == runID && s.StepIndex == idx {
			return s.Status
		}
	}
	return ""
}

type fakeLedger struct {
	runs map[uuid.UUID]*domain.Run
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{runs: make(map[uuid.UUID]*domain.Run)}
}

func (f *fakeLedger) Create(_ context.Context, run *domain.Run) error {
	run.Status = domain.RunStatusPending
	run.CreatedAt = time.Now()
	f.runs[run.ID] = run
	return nil
}

func (f *fakeLedger) MarkRunning(_ context.Context, id uuid.UUID) error {
	run, ok := f.runs[id]
	if !ok || run.Status != domain.RunStatusPending {
		return repo.ErrInvalidState
	}
	run.MarkRunning()
	return nil
}

func (f *fakeLedger) MarkCompleted(_ context.Context, id uuid.UUID, stats repo.CompletionStats) error {
	run, ok := f.runs[id]
	if !ok {
		return repo.ErrNotFound
	}
	run.MarkCompleted(stats.DurationMs, stats.CostUSD, stats.TokensUsed, stats.ResultData)
	return nil
}

func (f *fakeLedger) MarkFailed(_ context.Context, id uuid.UUID, errMsg string, durationMs int64) error {
	run, ok := f.runs[id]
	if !ok {
		return repo.ErrNotFound
	}
	run.MarkFailed(errMsg, durationMs)
	return nil
}

type fakeAgents struct {
	agents map[string]*domain.Agent
}

func (f *fakeAgents) GetByID(_ context.Context, id string) (*domain.Agent, error) {
	agent, ok := f.agents[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return agent, nil
}

// fakeDispatcher возвращает заранее заданный результат по id воркера.
type fakeDispatcher struct {
	outputs  map[string]string
	failures map[string]error
	messages []string
}

func (f *fakeDispatcher) Dispatch(_ context.Context, agent *domain.Agent, _ uuid.UUID, message string, _ map[string]any) (*dispatch.Result, error) {
	f.messages = append(f.messages, message)
	if err, ok := f.failures[agent.ID]; ok {
		return nil, err
	}
	return &dispatch.Result{
		OutputText: f.outputs[agent.ID],
		DurationMs: 10,
	}, nil
}

// --- Helpers ---

func twoStepPipeline() *domain.Pipeline {
	return &domain.Pipeline{
		ID:     uuid.New(),
		Name:   "lead-gen",
		Active: true,
		Steps: []domain.PipelineStep{
			{AgentID: "scout", MessageTemplate: "Find leads"},
			{AgentID: "writer", MessageTemplate: "Write to {{scout_output}}"},
		},
	}
}

func testAgents(ids ...string) *fakeAgents {
	agents := make(map[string]*domain.Agent, len(ids))
	for _, id := range ids {
		agents[id] = &domain.Agent{ID: id, Name: id}
	}
	return &fakeAgents{agents: agents}
}

func newTestEngine(store *fakeStore, ledger *fakeLedger, agents *fakeAgents, disp *fakeDispatcher, now func() time.Time) *Engine {
	return New(Config{
		Store:      store,
		Runs:       ledger,
		Agents:     agents,
		Dispatcher: disp,
		Now:        now,
	})
}

// --- Tests ---

func TestEngine_Start_HappyPath(t *testing.T) {
	store := newFakeStore(twoStepPipeline())
	ledger := newFakeLedger()
	disp := &fakeDispatcher{outputs: map[string]string{
		"scout":  `{"leads": [{"n":1},{"n":2}]}`,
		"writer": "Emails drafted",
	}}

	e := newTestEngine(store, ledger, testAgents("scout", "writer"), disp, time.Now)

	pr, err := e.Start(context.Background(), "lead-gen", domain.TriggerManual, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final, _ := store.GetRun(context.Background(), pr.ID)
	if final.Status != domain.PipelineRunCompleted {
		t.Errorf("expected completed pipeline run, got %s", final.Status)
	}

	if got := store.stepStatus(pr.ID, 0); got != domain.StepCompleted {
		t.Errorf("step 0 status = %s", got)
	}
	if got := store.stepStatus(pr.ID, 1); got != domain.StepCompleted {
		t.Errorf("step 1 status = %s", got)
	}

	// Контекст накапливается под позиционным и worker-ключами.
	if final.Context["step_0_output"] == nil {
		t.Error("expected step_0_output in context")
	}
	if final.Context["scout_output"] == nil {
		t.Error("expected scout_output in context")
	}

	// Каждый шаг создал и завершил run воркера.
	completed := 0
	for _, run := range ledger.runs {
		if run.Trigger != domain.TriggerPipeline {
			t.Errorf("step run trigger = %s", run.Trigger)
		}
		if run.Status == domain.RunStatusCompleted {
			completed++
		}
	}
	if completed != 2 {
		t.Errorf("expected 2 completed runs, got %d", completed)
	}
}

func TestEngine_Start_ContextFlowsIntoTemplates(t *testing.T) {
	store := newFakeStore(twoStepPipeline())
	ledger := newFakeLedger()
	disp := &fakeDispatcher{outputs: map[string]string{
		"scout":  "plain scout notes",
		"writer": "done",
	}}

	e := newTestEngine(store, ledger, testAgents("scout", "writer"), disp, time.Now)

	if _, err := e.Start(context.Background(), "lead-gen", domain.TriggerManual, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(disp.messages) != 2 {
		t.Fatalf("expected 2 dispatches, got %d", len(disp.messages))
	}
	if disp.messages[0] != "Find leads" {
		t.Errorf("step 0 message = %q", disp.messages[0])
	}
	// Сводка шага 0 подставилась в шаблон шага 1.
	if disp.messages[1] == "Write to {{scout_output}}" {
		t.Errorf("step 1 placeholder was not resolved: %q", disp.messages[1])
	}
}

func TestEngine_Start_UnknownPipeline(t *testing.T) {
	e := newTestEngine(newFakeStore(nil), newFakeLedger(), testAgents(), &fakeDispatcher{}, time.Now)

	_, err := e.Start(context.Background(), "missing", domain.TriggerManual, nil)
	if !errors.Is(err, ErrPipelineNotFound) {
		t.Errorf("expected ErrPipelineNotFound, got %v", err)
	}
}

func TestEngine_Start_EmptyPipeline(t *testing.T) {
	empty := &domain.Pipeline{ID: uuid.New(), Name: "empty", Active: true}
	e := newTestEngine(newFakeStore(empty), newFakeLedger(), testAgents(), &fakeDispatcher{}, time.Now)

	_, err := e.Start(context.Background(), "empty", domain.TriggerManual, nil)
	if !errors.Is(err, ErrEmptyPipeline) {
		t.Errorf("expected ErrEmptyPipeline, got %v", err)
	}
}

func TestEngine_Start_FailureCascade(t *testing.T) {
	p := &domain.Pipeline{
		ID:     uuid.New(),
		Name:   "three-steps",
		Active: true,
		Steps: []domain.PipelineStep{
			{AgentID: "first"},
			{AgentID: "second"},
			{AgentID: "third"},
		},
	}
	store := newFakeStore(p)
	ledger := newFakeLedger()
	disp := &fakeDispatcher{
		outputs:  map[string]string{"first": "ok"},
		failures: map[string]error{"second": fmt.Errorf("worker crashed")},
	}

	e := newTestEngine(store, ledger, testAgents("first", "second", "third"), disp, time.Now)

	pr, err := e.Start(context.Background(), "three-steps", domain.TriggerManual, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final, _ := store.GetRun(context.Background(), pr.ID)
	if final.Status != domain.PipelineRunFailed {
		t.Errorf("expected failed pipeline run, got %s", final.Status)
	}

	if got := store.stepStatus(pr.ID, 0); got != domain.StepCompleted {
		t.Errorf("step 0 status = %s", got)
	}
	if got := store.stepStatus(pr.ID, 1); got != domain.StepFailed {
		t.Errorf("step 1 status = %s", got)
	}
	// Хвост пропускается, не выполняется.
	if got := store.stepStatus(pr.ID, 2); got != domain.StepSkipped {
		t.Errorf("step 2 status = %s", got)
	}
}

func TestEngine_Start_UnknownWorkerFailsStep(t *testing.T) {
	store := newFakeStore(twoStepPipeline())
	ledger := newFakeLedger()

	// Воркеры не зарегистрированы вовсе.
	e := newTestEngine(store, ledger, testAgents(), &fakeDispatcher{}, time.Now)

	pr, err := e.Start(context.Background(), "lead-gen", domain.TriggerManual, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final, _ := store.GetRun(context.Background(), pr.ID)
	if final.Status != domain.PipelineRunFailed {
		t.Errorf("expected failed pipeline run, got %s", final.Status)
	}
	if got := store.stepStatus(pr.ID, 0); got != domain.StepFailed {
		t.Errorf("step 0 status = %s", got)
	}
	if got := store.stepStatus(pr.ID, 1); got != domain.StepSkipped {
		t.Errorf("step 1 status = %s", got)
	}
}

func TestEngine_DelayedStep_ParksAndResumes(t *testing.T) {
	p := &domain.Pipeline{
		ID:     uuid.New(),
		Name:   "delayed",
		Active: true,
		Steps: []domain.PipelineStep{
			{AgentID: "scout"},
			{AgentID: "writer", DelayMinutes: 30},
		},
	}
	store := newFakeStore(p)
	ledger := newFakeLedger()
	disp := &fakeDispatcher{outputs: map[string]string{"scout": "found", "writer": "sent"}}

	current := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	e := newTestEngine(store, ledger, testAgents("scout", "writer"), disp, now)

	pr, err := e.Start(context.Background(), "delayed", domain.TriggerManual, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Шаг 1 припаркован, pipeline run ещё running.
	if got := store.stepStatus(pr.ID, 1); got != domain.StepWaiting {
		t.Fatalf("step 1 status = %s, expected waiting", got)
	}
	mid, _ := store.GetRun(context.Background(), pr.ID)
	if mid.Status != domain.PipelineRunRunning {
		t.Fatalf("pipeline run status = %s, expected running", mid.Status)
	}

	// До delay-окна sweep ничего не возобновляет.
	resumed, err := e.SweepDelayed(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resumed != 0 {
		t.Errorf("expected 0 resumed before window, got %d", resumed)
	}

	// После истечения окна шаг возобновляется и pipeline завершается.
	current = current.Add(31 * time.Minute)
	resumed, err = e.SweepDelayed(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resumed != 1 {
		t.Errorf("expected 1 resumed step, got %d", resumed)
	}

	final, _ := store.GetRun(context.Background(), pr.ID)
	if final.Status != domain.PipelineRunCompleted {
		t.Errorf("expected completed pipeline run, got %s", final.Status)
	}
	if got := store.stepStatus(pr.ID, 1); got != domain.StepCompleted {
		t.Errorf("step 1 status = %s", got)
	}
}

func TestEngine_SweepDelayed_SkipsTerminalParents(t *testing.T) {
	store := newFakeStore(twoStepPipeline())
	ledger := newFakeLedger()
	e := newTestEngine(store, ledger, testAgents("scout", "writer"), &fakeDispatcher{}, time.Now)

	// Waiting-шаг с завершённым родителем.
	runID := uuid.New()
	scheduledFor := time.Now().Add(-time.Hour)
	store.runs[runID] = &domain.PipelineRun{
		ID:         runID,
		PipelineID: store.pipeline.ID,
		Status:     domain.PipelineRunFailed,
	}
	store.steps = append(store.steps, &domain.StepRecord{
		ID:            uuid.New(),
		PipelineRunID: runID,
		StepIndex:     1,
		AgentID:       "writer",
		Status:        domain.StepWaiting,
		ScheduledFor:  &scheduledFor,
	})

	resumed, err := e.SweepDelayed(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resumed != 0 {
		t.Errorf("terminal parent must not be resumed, got %d", resumed)
	}
}

func TestEngine_OnRunCompleted_IgnoresForeignRuns(t *testing.T) {
	store := newFakeStore(twoStepPipeline())
	e := newTestEngine(store, newFakeLedger(), testAgents(), &fakeDispatcher{}, time.Now)

	run := &domain.Run{ID: uuid.New(), Status: domain.RunStatusCompleted}
	if err := e.OnRunCompleted(context.Background(), run); err != nil {
		t.Errorf("foreign run should be ignored, got %v", err)
	}
}
