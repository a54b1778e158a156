// Package scheduler реализует минутный цикл планировщика.
//
// Каждый тик планировщик обходит включённые schedules в стабильном
// порядке, проверяет cron-выражение против текущего времени и запускает
// due воркеров через Runner. Параллельно тик возобновляет waiting-шаги
// pipelines, чьё delay-окно истекло.
//
// Гарантии:
//   - schedule срабатывает не чаще одного раза на минутный слот
//     (last_run_at штампуется ДО диспетчеризации);
//   - перекрывающиеся тики не выполняются (TryLock);
//   - дневной бюджет проверяется перед каждым запуском, при
//     недоступности журнала запуск разрешается (fail-open).
package scheduler
