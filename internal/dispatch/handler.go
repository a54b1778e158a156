package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Cadence/internal/domain"
)

// HandlerRequest — вход special handler'а.
type HandlerRequest struct {
	// Message — сообщение (задание) воркеру.
	Message string

	// RunID — id run'а, в рамках которого идёт вызов.
	RunID uuid.UUID

	// Agent — воркер с конфигурацией.
	Agent *domain.Agent

	// Context — накопленный контекст (для pipeline-шагов).
	Context map[string]any
}

// HandlerResult — результат special handler'а.
//
// Нулевые cost/duration — заявленный факт, а не признак ошибки:
// детерминированные handler'ы легитимно ничего не тратят.
type HandlerResult struct {
	// OutputText — текстовый результат.
	OutputText string

	// DurationMs — продолжительность; 0 означает «посчитает диспетчер».
	DurationMs int64

	// CostUSD — стоимость вызова.
	CostUSD float64

	// TokensUsed — потраченные токены.
	TokensUsed int

	// Extra — структурированные побочные данные (например, leads).
	Extra map[string]any
}

// Handler — детерминированная функция, зарегистрированная для одного
// id воркера. Вызов handler'а минует generic bridge.
type Handler func(ctx context.Context, req HandlerRequest) (*HandlerResult, error)

// HandlerResolver — инжектируемый интерфейс резолюции handler'ов.
// Движки держат resolver, а не глобальный реестр.
type HandlerResolver interface {
	Resolve(agentID string) (Handler, bool)
}

// Registry — реестр special handler'ов по id воркера.
// Заполняется один раз на старте через RegisterHandler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// RegisterHandler регистрирует handler для id воркера.
// Повторная регистрация — ошибка конфигурации.
func (r *Registry) RegisterHandler(agentID string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[agentID]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerAlreadyRegistered, agentID)
	}
	r.handlers[agentID] = h
	return nil
}

// Resolve возвращает handler для id воркера, если зарегистрирован.
func (r *Registry) Resolve(agentID string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[agentID]
	return h, ok
}
