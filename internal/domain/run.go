package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — одна попытка вызова воркера.
//
// Run создаётся когда:
// - Планировщик находит due schedule (trigger=scheduled)
// - Pipeline Engine выполняет шаг (trigger=pipeline)
// - Пользователь запускает воркера вручную (trigger=manual)
// - Blitz-запуск обходит воркеров домена (trigger=blitz)
//
// Run получает ровно один терминальный статус и после этого неизменяем.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// AgentID — воркер, который выполняется.
	AgentID string `json:"agent_id"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Trigger — источник запуска.
	Trigger TriggerType `json:"trigger"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt — время завершения (успешного или с ошибкой).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// DurationMs — продолжительность выполнения в миллисекундах.
	DurationMs int64 `json:"duration_ms"`

	// CostUSD — стоимость run в долларах.
	// Ноль — легитимное значение: special handler'ы ничего не тратят.
	CostUSD float64 `json:"cost_usd"`

	// TokensUsed — потраченные токены (для LLM-воркеров).
	TokensUsed int `json:"tokens_used"`

	// ResultData — результат выполнения (сообщение, session id, вывод).
	ResultData map[string]any `json:"result_data,omitempty"`

	// ErrorMsg — текст ошибки, если run завершился failed.
	ErrorMsg string `json:"error_msg,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус running.
func (r *Run) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// MarkCompleted переводит run в статус completed с результатами.
func (r *Run) MarkCompleted(durationMs int64, costUSD float64, tokensUsed int, resultData map[string]any) {
	now := time.Now()
	r.Status = RunStatusCompleted
	r.CompletedAt = &now
	r.DurationMs = durationMs
	r.CostUSD = costUSD
	r.TokensUsed = tokensUsed
	r.ResultData = resultData
}

// MarkFailed переводит run в статус failed с ошибкой.
func (r *Run) MarkFailed(errMsg string, durationMs int64) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.CompletedAt = &now
	r.DurationMs = durationMs
	r.ErrorMsg = errMsg
}

// MarkCancelled переводит run в статус cancelled.
// Допустимо только из pending — running run не имеет кооперативной отмены.
func (r *Run) MarkCancelled() {
	now := time.Now()
	r.Status = RunStatusCancelled
	r.CompletedAt = &now
}
