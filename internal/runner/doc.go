// Package runner владеет жизненным циклом одиночного run воркера:
// создание записи в журнале, асинхронная диспетчеризация через пул,
// терминальный переход и уведомление подписчиков о завершении.
//
// Runner используется планировщиком (scheduled runs), API (manual и
// blitz runs) и обходит один и тот же путь для всех триггеров.
package runner
