// Package api реализует HTTP API сервера.
//
// Структура:
//   - handler.go          — Handler с зависимостями
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — logging и recovery
//   - response.go         — унифицированные JSON-ответы
//   - dto.go              — request/response структуры
//   - agent_handler.go    — воркеры, manual и blitz запуски
//   - run_handler.go      — журнал запусков
//   - schedule_handler.go — CRUD расписаний
//   - pipeline_handler.go — pipelines и их запуски
//   - control_handler.go  — kill switch
package api
