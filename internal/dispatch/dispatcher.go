package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/shaiso/Cadence/internal/bridge"
	"github.com/shaiso/Cadence/internal/domain"
)

// ContextBuilder — опциональный knowledge-коллаборатор.
//
// Консультируется только перед bridge-вызовом; результат
// предшествует сообщению как prompt-префикс. Ошибки коллаборатора
// мягкие: логируются и игнорируются.
type ContextBuilder interface {
	BuildContext(ctx context.Context, agentID, sessionID string, hints map[string]any) (string, error)
}

// Result — результат диспетчеризации воркера.
type Result struct {
	// OutputText — текстовый результат. Никогда не пустой.
	OutputText string

	// DurationMs — продолжительность вызова.
	DurationMs int64

	// CostUSD — стоимость.
	CostUSD float64

	// TokensUsed — потраченные токены.
	TokensUsed int

	// SideEffects — структурированные побочные данные handler'а.
	SideEffects map[string]any
}

// Dispatcher резолвит воркера и выполняет вызов.
type Dispatcher struct {
	resolver      HandlerResolver
	invoker       bridge.Invoker
	knowledge     ContextBuilder
	limiter       *rate.Limiter
	sessionPrefix string
	logger        *slog.Logger
	now           func() time.Time
}

// Config — конфигурация Dispatcher.
type Config struct {
	// Resolver — резолюция special handler'ов.
	Resolver HandlerResolver

	// Invoker — generic bridge.
	Invoker bridge.Invoker

	// Knowledge — опциональный knowledge-коллаборатор.
	Knowledge ContextBuilder

	// MaxRunsPerHour — лимит bridge-вызовов в час (0 — без лимита).
	MaxRunsPerHour int

	// SessionPrefix — префикс daily session id (default: "run").
	SessionPrefix string

	// Logger — логгер.
	Logger *slog.Logger

	// Now — источник времени (для тестов).
	Now func() time.Time
}

// New создаёт Dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	prefix := cfg.SessionPrefix
	if prefix == "" {
		prefix = "run"
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	var limiter *rate.Limiter
	if cfg.MaxRunsPerHour > 0 {
		limiter = rate.NewLimiter(
			rate.Every(time.Hour/time.Duration(cfg.MaxRunsPerHour)),
			cfg.MaxRunsPerHour,
		)
	}

	return &Dispatcher{
		resolver:      cfg.Resolver,
		invoker:       cfg.Invoker,
		knowledge:     cfg.Knowledge,
		limiter:       limiter,
		sessionPrefix: prefix,
		logger:        logger,
		now:           now,
	}
}

// Dispatch выполняет вызов воркера и возвращает результат.
//
// Special handler вызывается напрямую; иначе сообщение уходит в
// generic bridge с per-worker-per-day session id. Ошибки вызова
// возвращаются как есть — терминальный переход run'а делает вызывающий.
func (d *Dispatcher) Dispatch(ctx context.Context, agent *domain.Agent, runID uuid.UUID, message string, runCtx map[string]any) (*Result, error) {
	start := d.now()

	if h, ok := d.resolveHandler(agent); ok {
		return d.dispatchHandler(ctx, h, agent, runID, message, runCtx, start)
	}

	return d.dispatchBridge(ctx, agent, message, runCtx, start)
}

func (d *Dispatcher) resolveHandler(agent *domain.Agent) (Handler, bool) {
	if d.resolver == nil || agent.Config.SpecialHandler == "" {
		return nil, false
	}
	return d.resolver.Resolve(agent.Config.SpecialHandler)
}

func (d *Dispatcher) dispatchHandler(ctx context.Context, h Handler, agent *domain.Agent, runID uuid.UUID, message string, runCtx map[string]any, start time.Time) (*Result, error) {
	d.logger.Debug("dispatching to special handler",
		"agent_id", agent.ID,
		"handler", agent.Config.SpecialHandler,
		"run_id", runID,
	)

	res, err := h(ctx, HandlerRequest{
		Message: message,
		RunID:   runID,
		Agent:   agent,
		Context: runCtx,
	})
	if err != nil {
		return nil, err
	}

	durationMs := res.DurationMs
	if durationMs == 0 {
		durationMs = d.now().Sub(start).Milliseconds()
	}

	outputText := res.OutputText
	if outputText == "" {
		outputText = "Done"
	}

	return &Result{
		OutputText:  outputText,
		DurationMs:  durationMs,
		CostUSD:     res.CostUSD,
		TokensUsed:  res.TokensUsed,
		SideEffects: res.Extra,
	}, nil
}

func (d *Dispatcher) dispatchBridge(ctx context.Context, agent *domain.Agent, message string, runCtx map[string]any, start time.Time) (*Result, error) {
	if d.limiter != nil && !d.limiter.Allow() {
		return nil, ErrRateLimited
	}

	sessionID := bridge.DailySessionID(d.sessionPrefix, agent.ID, d.now())

	// Knowledge-префикс: мягкий коллаборатор, ошибки игнорируются.
	if d.knowledge != nil {
		prefix, err := d.knowledge.BuildContext(ctx, agent.ID, sessionID, runCtx)
		if err != nil {
			d.logger.Warn("knowledge lookup failed, dispatching without context",
				"agent_id", agent.ID,
				"error", err,
			)
		} else if prefix != "" {
			message = prefix + "\n\n" + message
		}
	}

	raw, err := d.invoker.Invoke(ctx, agent.ResolveBridgeID(), bridge.Request{
		SessionID: sessionID,
		Message:   message,
	})
	if err != nil {
		return nil, err
	}

	parsed := bridge.ParseOutput(raw)

	return &Result{
		OutputText: parsed.Text,
		DurationMs: d.now().Sub(start).Milliseconds(),
		CostUSD:    parsed.CostUSD,
		TokensUsed: parsed.TokensUsed,
	}, nil
}
