package domain

import "github.com/google/uuid"

// KnowledgeExample — сохранённый пример удачного результата воркера.
// Лучшие примеры подмешиваются в промпт следующих вызовов того же
// воркера как контекст «что раньше срабатывало хорошо».
type KnowledgeExample struct {
	ID      uuid.UUID
	AgentID string
	Summary string
	Score   int
}
