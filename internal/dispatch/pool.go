package dispatch

import (
	"context"
	"log/slog"
	"sync"
)

const defaultPoolSize = 8

// Submitter — инжектируемый интерфейс отправки работы.
// В тестах подменяется синхронным исполнителем.
type Submitter interface {
	Submit(job func(ctx context.Context)) error
}

// Pool — пул воркеров фиксированного размера.
//
// Тик планировщика никогда не блокируется на завершении воркера:
// задача уходит в пул, а терминальные переходы run'а делает
// completion-код самой задачи.
type Pool struct {
	jobs   chan func(ctx context.Context)
	logger *slog.Logger

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	stopped   bool
	stoppedMu sync.RWMutex
}

// PoolConfig — конфигурация пула.
type PoolConfig struct {
	// Size — количество горутин-воркеров (default: 8).
	Size int

	// QueueDepth — глубина очереди задач (default: 4×Size).
	QueueDepth int

	// Logger — логгер.
	Logger *slog.Logger
}

// NewPool создаёт и запускает пул.
func NewPool(ctx context.Context, cfg PoolConfig) *Pool {
	size := cfg.Size
	if size <= 0 {
		size = defaultPoolSize
	}

	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = size * 4
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)

	p := &Pool{
		jobs:       make(chan func(ctx context.Context), depth),
		logger:     logger,
		ctx:        ctx,
		cancelFunc: cancel,
	}

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

// Submit отправляет задачу в пул. Блокируется, если очередь полна.
//
// RLock держится на всё время отправки: Stop не может закрыть канал,
// пока хоть один submitter находится внутри send.
func (p *Pool) Submit(job func(ctx context.Context)) error {
	p.stoppedMu.RLock()
	defer p.stoppedMu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.jobs <- job:
		return nil
	case <-p.ctx.Done():
		return ErrPoolStopped
	}
}

// Stop останавливает пул и ждёт завершения принятых задач.
//
// Lock берётся до close(p.jobs): после него ни один Submit не может
// находиться в send, поэтому закрытие канала безопасно. Submitter,
// заблокированный на полной очереди, дождётся слота (воркеры ещё
// живы) и отпустит RLock.
func (p *Pool) Stop() {
	p.stoppedMu.Lock()
	if p.stopped {
		p.stoppedMu.Unlock()
		return
	}
	p.stopped = true
	p.stoppedMu.Unlock()

	close(p.jobs)
	p.wg.Wait()
	p.cancelFunc()
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for job := range p.jobs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("panic in dispatch job", "panic", r)
				}
			}()
			job(p.ctx)
		}()
	}
}
