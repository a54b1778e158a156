// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация событий
//
// Типы сообщений:
//   - run.completed      — run воркера получил терминальный статус
//   - pipeline.completed — pipeline run завершён
//
// Exchanges:
//   - cadence.events — события для внешних потребителей (дашборды)
package mq
