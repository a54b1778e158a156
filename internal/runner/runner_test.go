package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cadence/internal/dispatch"
	"github.com/shaiso/Cadence/internal/domain"
	"github.com/shaiso/Cadence/internal/repo"
)

// --- Fakes ---

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

func (f *fakeLedger) GetByID(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *run
	return &copied, nil
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

func (f *fakeAgents) ListByDomain(_ context.Context, agentDomain string) ([]domain.Agent, error) {
	var out []domain.Agent
	for _, a := range f.agents {
		if a.Config.Domain == agentDomain {
			out = append(out, *a)
		}
	}
	return out, nil
}

type fakeDispatcher struct {
	result *dispatch.Result
	err    error
	calls  int
}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ *domain.Agent, _ uuid.UUID, _ string, _ map[string]any) (*dispatch.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeHook struct {
	notified []uuid.UUID
}

func (f *fakeHook) OnRunCompleted(_ context.Context, run *domain.Run) error {
	f.notified = append(f.notified, run.ID)
	return nil
}

// --- Tests ---

func scoutAgents() *fakeAgents {
	return &fakeAgents{agents: map[string]*domain.Agent{
		"scout": {ID: "scout", Config: domain.AgentConfig{Domain: "scraping"}},
		"miner": {ID: "miner", Config: domain.AgentConfig{Domain: "scraping"}},
		"poet":  {ID: "poet", Config: domain.AgentConfig{Domain: "content"}},
	}}
}

func TestRunner_Fire_Completes(t *testing.T) {
	ledger := newFakeLedger()
	hook := &fakeHook{}
	disp := &fakeDispatcher{result: &dispatch.Result{
		OutputText:  "found 5 leads",
		DurationMs:  120,
		CostUSD:     0.03,
		SideEffects: map[string]any{"leads_count": 5},
	}}

	r := New(Config{Runs: ledger, Agents: scoutAgents(), Dispatcher: disp, Hook: hook})

	run, err := r.Fire(context.Background(), "scout", "find leads", domain.TriggerManual)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Без пула выполнение синхронное: run уже терминальный.
	final, _ := ledger.GetByID(context.Background(), run.ID)
	if final.Status != domain.RunStatusCompleted {
		t.Errorf("expected completed, got %s", final.Status)
	}
	if final.ResultData["output"] != "found 5 leads" {
		t.Errorf("expected output in result data, got %v", final.ResultData)
	}
	// Side effects handler'а попадают в result data.
	if final.ResultData["leads_count"] != 5 {
		t.Errorf("expected side effects merged, got %v", final.ResultData)
	}
	if final.CostUSD != 0.03 {
		t.Errorf("expected cost recorded, got %v", final.CostUSD)
	}

	if len(hook.notified) != 1 || hook.notified[0] != run.ID {
		t.Errorf("expected completion hook notified, got %v", hook.notified)
	}
}

func TestRunner_Fire_UnknownWorker(t *testing.T) {
	r := New(Config{Runs: newFakeLedger(), Agents: scoutAgents(), Dispatcher: &fakeDispatcher{}})

	_, err := r.Fire(context.Background(), "ghost", "hello", domain.TriggerManual)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRunner_Fire_DispatchErrorFailsRun(t *testing.T) {
	ledger := newFakeLedger()
	hook := &fakeHook{}
	disp := &fakeDispatcher{err: errors.New("bridge timeout")}

	r := New(Config{Runs: ledger, Agents: scoutAgents(), Dispatcher: disp, Hook: hook})

	run, err := r.Fire(context.Background(), "scout", "find leads", domain.TriggerManual)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final, _ := ledger.GetByID(context.Background(), run.ID)
	if final.Status != domain.RunStatusFailed {
		t.Errorf("expected failed, got %s", final.Status)
	}
	if final.ErrorMsg != "bridge timeout" {
		t.Errorf("expected error message recorded, got %q", final.ErrorMsg)
	}
	// Hook уведомляется и о провалах.
	if len(hook.notified) != 1 {
		t.Errorf("expected hook notified on failure, got %v", hook.notified)
	}
}

func TestRunner_Fire_CancelledWhileQueued(t *testing.T) {
	ledger := newFakeLedger()
	disp := &fakeDispatcher{result: &dispatch.Result{OutputText: "x"}}

	// Пул, отменяющий run между постановкой в очередь и выполнением.
	pool := cancellingPool{ledger: ledger}

	r := New(Config{Runs: ledger, Agents: scoutAgents(), Dispatcher: disp, Pool: pool})

	run, err := r.Fire(context.Background(), "scout", "go", domain.TriggerManual)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final, _ := ledger.GetByID(context.Background(), run.ID)
	if final.Status != domain.RunStatusCancelled {
		t.Errorf("cancelled run must stay cancelled, got %s", final.Status)
	}
	if disp.calls != 0 {
		t.Error("cancelled run must not be dispatched")
	}
}

// cancellingPool отменяет pending run перед выполнением задачи.
type cancellingPool struct {
	ledger *fakeLedger
}

func (p cancellingPool) Submit(job func(ctx context.Context)) error {
	for _, run := range p.ledger.runs {
		if run.Status == domain.RunStatusPending {
			run.MarkCancelled()
		}
	}
	job(context.Background())
	return nil
}

func TestRunner_FireBlitz(t *testing.T) {
	ledger := newFakeLedger()
	disp := &fakeDispatcher{result: &dispatch.Result{OutputText: "ok"}}

	r := New(Config{Runs: ledger, Agents: scoutAgents(), Dispatcher: disp})

	runs, err := r.FireBlitz(context.Background(), "scraping", "sweep the web")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(runs) != 2 {
		t.Fatalf("expected 2 runs for scraping domain, got %d", len(runs))
	}
	for _, run := range runs {
		if run.Trigger != domain.TriggerBlitz {
			t.Errorf("expected blitz trigger, got %s", run.Trigger)
		}
	}
}

func TestRunner_FireBlitz_EmptyDomain(t *testing.T) {
	r := New(Config{Runs: newFakeLedger(), Agents: scoutAgents(), Dispatcher: &fakeDispatcher{}})

	_, err := r.FireBlitz(context.Background(), "nonexistent", "go")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty domain, got %v", err)
	}
}
