package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cadence/internal/bridge"
	"github.com/shaiso/Cadence/internal/domain"
)

// fakeInvoker — подменный bridge.
type fakeInvoker struct {
	output   string
	err      error
	lastReq  bridge.Request
	lastID   string
	invoked  int
}

func (f *fakeInvoker) Invoke(_ context.Context, agentID string, req bridge.Request) (string, error) {
	f.invoked++
	f.lastID = agentID
	f.lastReq = req
	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}

// fakeKnowledge — подменный knowledge-коллаборатор.
type fakeKnowledge struct {
	prefix string
	err    error
}

func (f *fakeKnowledge) BuildContext(_ context.Context, _, _ string, _ map[string]any) (string, error) {
	return f.prefix, f.err
}

func bridgeAgent(id string) *domain.Agent {
	return &domain.Agent{ID: id, Name: id}
}

func handlerAgent(id, handler string) *domain.Agent {
	return &domain.Agent{
		ID:     id,
		Name:   id,
		Config: domain.AgentConfig{SpecialHandler: handler},
	}
}

func TestDispatcher_SpecialHandlerFirst(t *testing.T) {
	registry := NewRegistry()
	called := false
	_ = registry.RegisterHandler("report", func(_ context.Context, req HandlerRequest) (*HandlerResult, error) {
		called = true
		return &HandlerResult{OutputText: "report ready", CostUSD: 0}, nil
	})

	invoker := &fakeInvoker{output: "should not be used"}
	d := New(Config{Resolver: registry, Invoker: invoker})

	res, err := d.Dispatch(context.Background(), handlerAgent("reporter", "report"), uuid.New(), "go", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !called {
		t.Error("special handler should be called")
	}
	if invoker.invoked != 0 {
		t.Error("bridge must not be consulted when a handler matches")
	}
	if res.OutputText != "report ready" {
		t.Errorf("unexpected output: %q", res.OutputText)
	}
	// Нулевая стоимость — заявленный факт.
	if res.CostUSD != 0 {
		t.Errorf("expected zero cost, got %v", res.CostUSD)
	}
}

func TestDispatcher_HandlerEmptyOutputBecomesDone(t *testing.T) {
	registry := NewRegistry()
	_ = registry.RegisterHandler("silent", func(_ context.Context, _ HandlerRequest) (*HandlerResult, error) {
		return &HandlerResult{}, nil
	})

	d := New(Config{Resolver: registry, Invoker: &fakeInvoker{}})

	res, err := d.Dispatch(context.Background(), handlerAgent("quiet", "silent"), uuid.New(), "go", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OutputText != "Done" {
		t.Errorf("expected fallback output, got %q", res.OutputText)
	}
}

func TestDispatcher_HandlerErrorPropagates(t *testing.T) {
	registry := NewRegistry()
	handlerErr := errors.New("boom")
	_ = registry.RegisterHandler("broken", func(_ context.Context, _ HandlerRequest) (*HandlerResult, error) {
		return nil, handlerErr
	})

	d := New(Config{Resolver: registry, Invoker: &fakeInvoker{}})

	_, err := d.Dispatch(context.Background(), handlerAgent("x", "broken"), uuid.New(), "go", nil)
	if !errors.Is(err, handlerErr) {
		t.Errorf("expected handler error, got %v", err)
	}
}

func TestDispatcher_BridgeFallback(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	invoker := &fakeInvoker{output: `{"result":"bridge answer","usage":{"total_cost_usd":0.05,"input_tokens":10}}`}

	d := New(Config{
		Invoker:       invoker,
		SessionPrefix: "run",
		Now:           func() time.Time { return now },
	})

	res, err := d.Dispatch(context.Background(), bridgeAgent("jake-lead-scout"), uuid.New(), "find leads", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.OutputText != "bridge answer" {
		t.Errorf("unexpected output: %q", res.OutputText)
	}
	if res.CostUSD != 0.05 {
		t.Errorf("expected cost from usage, got %v", res.CostUSD)
	}
	if invoker.lastReq.SessionID != "run-jake-lead-scout-2026-08-31" {
		t.Errorf("unexpected session id: %q", invoker.lastReq.SessionID)
	}
}

func TestDispatcher_BridgeIDOverride(t *testing.T) {
	invoker := &fakeInvoker{output: "ok"}
	d := New(Config{Invoker: invoker})

	agent := bridgeAgent("worker")
	agent.Config.BridgeID = "external-worker"

	if _, err := d.Dispatch(context.Background(), agent, uuid.New(), "go", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if invoker.lastID != "external-worker" {
		t.Errorf("expected bridge id override, got %q", invoker.lastID)
	}
}

func TestDispatcher_KnowledgePrefix(t *testing.T) {
	invoker := &fakeInvoker{output: "ok"}
	d := New(Config{
		Invoker:   invoker,
		Knowledge: &fakeKnowledge{prefix: "Past examples: ..."},
	})

	if _, err := d.Dispatch(context.Background(), bridgeAgent("w"), uuid.New(), "the task", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(invoker.lastReq.Message, "Past examples: ...") {
		t.Errorf("expected knowledge prefix, got %q", invoker.lastReq.Message)
	}
	if !strings.HasSuffix(invoker.lastReq.Message, "the task") {
		t.Errorf("original message must survive, got %q", invoker.lastReq.Message)
	}
}

func TestDispatcher_KnowledgeFailureIsSoft(t *testing.T) {
	invoker := &fakeInvoker{output: "ok"}
	d := New(Config{
		Invoker:   invoker,
		Knowledge: &fakeKnowledge{err: errors.New("store down")},
	})

	if _, err := d.Dispatch(context.Background(), bridgeAgent("w"), uuid.New(), "the task", nil); err != nil {
		t.Fatalf("knowledge failure must not fail the dispatch: %v", err)
	}
	if invoker.lastReq.Message != "the task" {
		t.Errorf("expected message without prefix, got %q", invoker.lastReq.Message)
	}
}

func TestDispatcher_RateLimit(t *testing.T) {
	invoker := &fakeInvoker{output: "ok"}
	d := New(Config{Invoker: invoker, MaxRunsPerHour: 2})

	ctx := context.Background()
	agent := bridgeAgent("w")

	// Burst равен лимиту: первые два вызова проходят.
	for i := 0; i < 2; i++ {
		if _, err := d.Dispatch(ctx, agent, uuid.New(), "go", nil); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
	}

	_, err := d.Dispatch(ctx, agent, uuid.New(), "go", nil)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestDispatcher_BridgeErrorPropagates(t *testing.T) {
	invoker := &fakeInvoker{err: errors.New("subprocess exit 1")}
	d := New(Config{Invoker: invoker})

	_, err := d.Dispatch(context.Background(), bridgeAgent("w"), uuid.New(), "go", nil)
	if err == nil || !strings.Contains(err.Error(), "subprocess exit 1") {
		t.Errorf("expected invoke error, got %v", err)
	}
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewRegistry()

	noop := func(_ context.Context, _ HandlerRequest) (*HandlerResult, error) {
		return &HandlerResult{}, nil
	}

	if err := registry.RegisterHandler("dup", noop); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if err := registry.RegisterHandler("dup", noop); !errors.Is(err, ErrHandlerAlreadyRegistered) {
		t.Errorf("expected ErrHandlerAlreadyRegistered, got %v", err)
	}
}

func TestDefaultRegistry_BuiltIns(t *testing.T) {
	registry := DefaultRegistry()

	for _, id := range []string{"noop", "context-report", "webhook"} {
		if _, ok := registry.Resolve(id); !ok {
			t.Errorf("expected built-in handler %q", id)
		}
	}
	if _, ok := registry.Resolve("missing"); ok {
		t.Error("unexpected handler for unknown id")
	}
}

func TestContextReportHandler(t *testing.T) {
	res, err := ContextReportHandler(context.Background(), HandlerRequest{
		Context: map[string]any{
			"step_0_output": map[string]any{"leads_count": 2},
			"note":          "plain",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(res.OutputText, "## note") {
		t.Errorf("expected note section, got %q", res.OutputText)
	}
	if !strings.Contains(res.OutputText, "## step_0_output") {
		t.Errorf("expected step section, got %q", res.OutputText)
	}
	if res.Extra["content_markdown"] == nil {
		t.Error("expected content_markdown side effect")
	}
}

func TestContextReportHandler_EmptyContext(t *testing.T) {
	res, err := ContextReportHandler(context.Background(), HandlerRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OutputText == "" {
		t.Error("output must not be empty")
	}
}
