package dispatch

import "errors"

// Ошибки диспетчера.
var (
	// ErrAgentNotFound — воркер не найден.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrHandlerAlreadyRegistered — повторная регистрация handler'а.
	ErrHandlerAlreadyRegistered = errors.New("handler already registered")

	// ErrPoolStopped — пул остановлен, задача не принята.
	ErrPoolStopped = errors.New("worker pool stopped")

	// ErrRateLimited — вызов отклонён лимитером runs-per-hour.
	ErrRateLimited = errors.New("dispatch rate limit exceeded")

	// ErrWebhookRequest — ошибка webhook handler'а.
	ErrWebhookRequest = errors.New("webhook request failed")
)
