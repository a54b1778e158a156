package bridge

import "errors"

// Ошибки bridge.
var (
	// ErrInvokeFailed — агент-процесс завершился с ошибкой.
	ErrInvokeFailed = errors.New("agent invocation failed")

	// ErrInvokeTimeout — агент-процесс превысил таймаут и был убит.
	ErrInvokeTimeout = errors.New("agent invocation timed out")

	// ErrEmptyMessage — пустое сообщение для агента.
	ErrEmptyMessage = errors.New("empty agent message")

	// ErrSessionNotFound — сессия не найдена среди активных.
	ErrSessionNotFound = errors.New("session not found")
)
