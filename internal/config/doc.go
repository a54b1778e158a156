// Package config загружает конфигурацию сервера из YAML-файла с
// переопределением через переменные окружения.
//
// Файл конфигурации описывает воркеров, расписания и pipelines.
// Секция pipelines перечитывается на лету при изменении файла
// (fsnotify), остальные секции применяются только на старте.
package config
