// Package cli реализует команды cadence-cli.
//
// Структура:
//   - client.go   — HTTP-клиент для API сервера
//   - output.go   — табличный и JSON вывод
//   - agent.go    — команды для воркеров (list, show, run, blitz)
//   - run.go      — команды для журнала запусков
//   - schedule.go — команды для расписаний
//   - pipeline.go — команды для pipelines
package cli
