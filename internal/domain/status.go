package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	pending → running → completed
//	                  ↘ failed
//	          (или) → cancelled (только из pending, до диспетчеризации)
type RunStatus string

const (
	// RunStatusPending — run создан, но ещё не отправлен воркеру.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted — run успешно завершён.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed — run завершился с ошибкой.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled — run отменён до диспетчеризации.
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
// Терминальный run неизменяем.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// TriggerType — источник запуска run.
type TriggerType string

const (
	// TriggerManual — запуск пользователем через API/CLI.
	TriggerManual TriggerType = "manual"

	// TriggerScheduled — запуск планировщиком по cron-расписанию.
	TriggerScheduled TriggerType = "scheduled"

	// TriggerPipeline — запуск как шаг pipeline.
	TriggerPipeline TriggerType = "pipeline"

	// TriggerBlitz — пакетный запуск всех воркеров домена.
	TriggerBlitz TriggerType = "blitz"
)

// PipelineRunStatus — статус выполнения pipeline run.
//
// Жизненный цикл:
//
//	running → completed (все шаги завершены)
//	        ↘ failed    (любой шаг упал)
type PipelineRunStatus string

const (
	// PipelineRunRunning — pipeline выполняется.
	PipelineRunRunning PipelineRunStatus = "running"

	// PipelineRunCompleted — все шаги завершены успешно.
	PipelineRunCompleted PipelineRunStatus = "completed"

	// PipelineRunFailed — один из шагов упал; остальные пропущены.
	PipelineRunFailed PipelineRunStatus = "failed"
)

// IsTerminal возвращает true, если pipeline run завершён.
func (s PipelineRunStatus) IsTerminal() bool {
	return s == PipelineRunCompleted || s == PipelineRunFailed
}

// StepStatus — статус шага внутри pipeline run.
//
// Жизненный цикл:
//
//	pending → waiting → running → completed
//	                            ↘ failed
//	pending → running → ...               (когда delay_minutes == 0)
//
// Нетерминальные шаги становятся skipped, когда родительский
// pipeline run падает.
type StepStatus string

const (
	// StepPending — шаг создан, очередь до него не дошла.
	StepPending StepStatus = "pending"

	// StepWaiting — шаг ждёт истечения delay-окна (scheduled_for задан).
	StepWaiting StepStatus = "waiting"

	// StepRunning — шаг выполняется воркером.
	StepRunning StepStatus = "running"

	// StepCompleted — шаг успешно завершён.
	StepCompleted StepStatus = "completed"

	// StepFailed — шаг завершился с ошибкой.
	StepFailed StepStatus = "failed"

	// StepSkipped — шаг пропущен из-за падения pipeline run.
	StepSkipped StepStatus = "skipped"
)

// IsTerminal возвращает true, если статус шага финальный.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepCompleted, StepFailed, StepSkipped:
		return true
	default:
		return false
	}
}

// AgentStatus — агрегатный статус воркера.
type AgentStatus string

const (
	// AgentIdle — воркер свободен.
	AgentIdle AgentStatus = "idle"

	// AgentRunning — воркер выполняет run.
	AgentRunning AgentStatus = "running"
)
