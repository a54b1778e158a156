// Package engine содержит чистую логику оркестрации:
//
//   - cron.go     — проверка 5-польного cron-выражения на due
//   - template.go — подстановка {{key}} плейсхолдеров в шаблоны сообщений
//   - summary.go  — извлечение сводки из вывода воркера и накопление контекста
//
// Пакет не имеет побочных эффектов и не знает о БД, очередях или
// диспетчеризации — всё это живёт в scheduler, pipeline и dispatch.
package engine
