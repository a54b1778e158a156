package domain

import (
	"time"

	"github.com/google/uuid"
)

// Pipeline — именованная последовательность шагов-воркеров.
//
// Шаги выполняются строго последовательно; вывод шага N попадает
// в контекст шага N+1. Между шагами допустимы delay-окна.
type Pipeline struct {
	// ID — уникальный идентификатор pipeline.
	ID uuid.UUID `json:"id"`

	// Name — уникальное имя (например, "lead-gen-weekly").
	Name string `json:"name"`

	// Steps — упорядоченный список шагов.
	Steps []PipelineStep `json:"steps"`

	// Active — неактивные pipelines не запускаются.
	Active bool `json:"active"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// PipelineStep — определение одного шага в pipeline.
type PipelineStep struct {
	// AgentID — воркер шага.
	AgentID string `json:"agent_id"`

	// MessageTemplate — шаблон сообщения с {{key}} плейсхолдерами,
	// подставляемыми из накопленного контекста. Неразрешённые
	// плейсхолдеры остаются в тексте как есть.
	MessageTemplate string `json:"message_template,omitempty"`

	// DelayMinutes — задержка перед выполнением шага.
	// Шаг с delay проходит через статус waiting и возобновляется
	// sweeper'ом после scheduled_for.
	DelayMinutes int `json:"delay_minutes,omitempty"`
}

// PipelineRun — экземпляр выполнения pipeline.
type PipelineRun struct {
	// ID — уникальный идентификатор pipeline run.
	ID uuid.UUID `json:"id"`

	// PipelineID — ссылка на определение pipeline.
	PipelineID uuid.UUID `json:"pipeline_id"`

	// Status — running/completed/failed.
	Status PipelineRunStatus `json:"status"`

	// CurrentStep — индекс текущего шага. Монотонно неубывающий.
	CurrentStep int `json:"current_step"`

	// TotalSteps — количество шагов в определении на момент запуска.
	TotalSteps int `json:"total_steps"`

	// Trigger — источник запуска pipeline.
	Trigger TriggerType `json:"trigger"`

	// Context — накопленный контекст: initial context плюс
	// step_<i>_output / <worker>_output от завершённых шагов.
	Context map[string]any `json:"context,omitempty"`

	// StartedAt — время запуска.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt — время завершения.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StepRecord — состояние одного шага внутри pipeline run.
// Создаётся для каждого шага при старте pipeline.
type StepRecord struct {
	// ID — уникальный идентификатор записи.
	ID uuid.UUID `json:"id"`

	// PipelineRunID — ссылка на родительский pipeline run.
	PipelineRunID uuid.UUID `json:"pipeline_run_id"`

	// StepIndex — позиция шага в pipeline.
	StepIndex int `json:"step_index"`

	// AgentID — воркер шага (копия из определения).
	AgentID string `json:"agent_id"`

	// Status — текущий статус шага.
	Status StepStatus `json:"status"`

	// DelayMinutes — задержка из определения шага.
	DelayMinutes int `json:"delay_minutes"`

	// RunID — run, созданный для этого шага (после начала выполнения).
	RunID *uuid.UUID `json:"run_id,omitempty"`

	// InputContext — контекст, с которым шаг был запущен.
	InputContext map[string]any `json:"input_context,omitempty"`

	// OutputSummary — извлечённая сводка вывода шага.
	OutputSummary map[string]any `json:"output_summary,omitempty"`

	// ScheduledFor — время возобновления для waiting-шага.
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt — время завершения.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error — текст ошибки при неудаче.
	Error string `json:"error,omitempty"`
}
