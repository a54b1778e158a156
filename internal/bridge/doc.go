// Package bridge реализует generic worker bridge — фолбэк-путь
// диспетчеризации для воркеров без special handler'а.
//
// Bridge отправляет сообщение внешнему долгоживущему агент-процессу,
// идентифицируя сессию ключом «воркер + календарный день», чтобы
// повторные вызовы в течение дня делили контекст, и разбирает вывод
// процесса тремя стратегиями (см. parse.go). Downstream-потребители
// никогда не видят пустой текст: для непарсящегося вывода
// синтезируется sentinel-сообщение.
package bridge
