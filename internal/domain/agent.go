package domain

import "time"

// Agent — воркер: вызываемая единица поведения со строковым id.
//
// Воркер либо имеет зарегистрированный special handler
// (детерминированный, обычно с нулевой стоимостью), либо
// маршрутизируется в generic bridge — внешний LLM-агент.
type Agent struct {
	// ID — строковый идентификатор воркера (slug, например "jake-lead-scout").
	ID string `json:"id"`

	// Name — человекочитаемое имя.
	Name string `json:"name"`

	// Config — конфигурация воркера.
	Config AgentConfig `json:"config"`

	// Status — агрегатный статус (idle/running).
	// Мутируется только Run Ledger'ом при переходах run.
	Status AgentStatus `json:"status"`

	// TotalRuns — счётчик завершённых runs.
	TotalRuns int `json:"total_runs"`

	// LastRunAt — время последнего завершённого run.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего обновления.
	UpdatedAt time.Time `json:"updated_at"`
}

// AgentConfig — конфигурация воркера (содержимое JSONB поля config).
type AgentConfig struct {
	// SpecialHandler — имя зарегистрированного special handler'а.
	// Пустая строка означает маршрутизацию в generic bridge.
	SpecialHandler string `json:"special_handler,omitempty"`

	// BridgeID — идентификатор агента во внешнем процессе.
	// По умолчанию совпадает с Agent.ID.
	BridgeID string `json:"bridge_id,omitempty"`

	// Domain — домен воркера (scraping, content, outreach).
	// Используется blitz-запуском для отбора воркеров.
	Domain string `json:"domain,omitempty"`

	// Extra — прочие настройки, передаются handler'у как есть.
	Extra map[string]any `json:"extra,omitempty"`
}

// ResolveBridgeID возвращает идентификатор для внешнего процесса.
func (a *Agent) ResolveBridgeID() string {
	if a.Config.BridgeID != "" {
		return a.Config.BridgeID
	}
	return a.ID
}
