// Package dispatch резолвит воркеров и выполняет их вызовы.
//
// Порядок резолюции: special handler, зарегистрированный для id
// воркера (детерминированный, обычно бесплатный), иначе generic
// bridge — внешний LLM-агент. Перед bridge-вызовом опционально
// консультируется knowledge-коллаборатор; его ошибки никогда не
// роняют run.
//
// Диспетчеризация неблокирующая: тики планировщика и pipeline engine
// отправляют работу в пул воркеров (pool.go) и получают результат
// через completion callback.
package dispatch
