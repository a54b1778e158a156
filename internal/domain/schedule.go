package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule — расписание автоматического запуска воркера.
//
// Планировщик каждый тик проверяет cron-выражение против текущего
// времени и создаёт run, когда расписание due. Срабатывание не чаще
// одного раза на минутный слот: перед проверкой сравнивается
// усечённый до минуты last_run_at с текущим тиком.
type Schedule struct {
	// ID — уникальный идентификатор schedule.
	ID uuid.UUID `json:"id"`

	// Name — имя расписания для удобства.
	Name string `json:"name"`

	// AgentID — воркер, который нужно запускать.
	AgentID string `json:"agent_id"`

	// CronExpr — cron-выражение из 5 полей:
	// "минуты часы день_месяца месяц день_недели"
	// Примеры:
	//   "0 9 * * *"     — каждый день в 9:00
	//   "*/5 * * * *"   — каждые 5 минут
	//   "0 4 * * 0"     — каждое воскресенье в 4:00
	// Некорректное выражение никогда не роняет тик — оно просто
	// никогда не бывает due.
	CronExpr string `json:"cron_expr"`

	// Message — сообщение, передаваемое воркеру при запуске.
	Message string `json:"message,omitempty"`

	// Enabled — флаг активности. Выключенные schedules игнорируются.
	Enabled bool `json:"enabled"`

	// LastRunAt — время последнего срабатывания.
	// Штампуется ДО диспетчеризации: защита от двойного срабатывания
	// при перекрывающихся тиках.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// CreatedAt — время создания schedule.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего обновления.
	UpdatedAt time.Time `json:"updated_at"`
}
