package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cadence/internal/domain"
	"github.com/shaiso/Cadence/internal/engine"
	"github.com/shaiso/Cadence/internal/telemetry"
)

// defaultTickInterval — период тика планировщика.
const defaultTickInterval = time.Minute

// ScheduleStore — хранилище расписаний.
type ScheduleStore interface {
	ListEnabled(ctx context.Context) ([]domain.Schedule, error)
	StampLastRun(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Firer запускает воркера (обычно runner.Runner).
type Firer interface {
	Fire(ctx context.Context, agentID, message string, trigger domain.TriggerType) (*domain.Run, error)
}

// Sweeper возобновляет отложенные шаги pipelines.
type Sweeper interface {
	SweepDelayed(ctx context.Context) (int, error)
}

// Scheduler — минутный цикл: due schedules плюс sweep отложенных шагов.
type Scheduler struct {
	schedules ScheduleStore
	firer     Firer
	sweeper   Sweeper
	budget    *BudgetGuard
	metrics   *telemetry.Metrics

	tickInterval time.Duration
	logger       *slog.Logger
	now          func() time.Time

	tickMu sync.Mutex

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules ScheduleStore
	Firer     Firer

	// Sweeper — опциональный Pipeline Engine для delay-окон.
	Sweeper Sweeper

	// Budget — опциональный дневной бюджет scheduled runs.
	Budget *BudgetGuard

	// Metrics — опциональные метрики тика.
	Metrics *telemetry.Metrics

	// TickInterval — период тика (default: 1m).
	TickInterval time.Duration

	Logger *slog.Logger

	// Now — источник времени (для тестов).
	Now func() time.Time
}

// New создаёт Scheduler.
func New(cfg Config) *Scheduler {
	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		schedules:    cfg.Schedules,
		firer:        cfg.Firer,
		sweeper:      cfg.Sweeper,
		budget:       cfg.Budget,
		metrics:      cfg.Metrics,
		tickInterval: tickInterval,
		logger:       logger,
		now:          now,
	}
}

// Start запускает цикл планировщика.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	s.logger.Info("starting scheduler", "tick_interval", s.tickInterval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()

		s.Tick(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop останавливает цикл и ждёт завершения текущего тика.
func (s *Scheduler) Stop() {
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Tick выполняет один тик планировщика.
//
// Перекрывающийся тик пропускается целиком: TryLock вместо ожидания,
// чтобы медленный обход не накапливал очередь тиков.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.tickMu.TryLock() {
		s.logger.Warn("previous tick still running, skipping")
		return
	}
	defer s.tickMu.Unlock()

	now := s.now()
	fired := s.tickSchedules(ctx, now)

	var resumed int
	if s.sweeper != nil {
		var err error
		resumed, err = s.sweeper.SweepDelayed(ctx)
		if err != nil {
			s.logger.Error("delayed step sweep failed", "error", err)
		}
	}

	if s.metrics != nil {
		s.metrics.TickDuration.Observe(s.now().Sub(now).Seconds())
		if resumed > 0 {
			s.metrics.StepsResumed.Add(float64(resumed))
		}
	}

	if fired > 0 || resumed > 0 {
		s.logger.Info("scheduler tick completed",
			"runs_fired", fired,
			"steps_resumed", resumed,
		)
	}
}

// tickSchedules обходит включённые schedules и запускает due воркеров.
// Возвращает количество созданных runs.
func (s *Scheduler) tickSchedules(ctx context.Context, now time.Time) int {
	schedules, err := s.schedules.ListEnabled(ctx)
	if err != nil {
		s.logger.Error("failed to list schedules", "error", err)
		return 0
	}

	fired := 0
	for i := range schedules {
		sched := &schedules[i]

		if !s.processSchedule(ctx, sched, now) {
			continue
		}
		fired++
	}
	return fired
}

// processSchedule проверяет и при необходимости запускает один schedule.
// Возвращает true, если run был создан.
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) bool {
	// Не чаще одного срабатывания на минутный слот.
	if sched.LastRunAt != nil && engine.SameMinuteSlot(*sched.LastRunAt, now) {
		return false
	}

	if !engine.IsDue(sched.CronExpr, now) {
		return false
	}

	// Штамп ДО диспетчеризации: перекрывающийся тик не запустит
	// schedule второй раз. Штамп остаётся и при отказе бюджета —
	// слот считается израсходованным.
	if err := s.schedules.StampLastRun(ctx, sched.ID, now); err != nil {
		s.logger.Error("failed to stamp schedule",
			"schedule_id", sched.ID,
			"error", err,
		)
		return false
	}

	if s.budget != nil && !s.budget.Allow(ctx, now) {
		s.logger.Warn("schedule skipped by budget",
			"schedule_id", sched.ID,
			"schedule_name", sched.Name,
		)
		if s.metrics != nil {
			s.metrics.BudgetSkips.Inc()
		}
		return false
	}

	run, err := s.firer.Fire(ctx, sched.AgentID, sched.Message, domain.TriggerScheduled)
	if err != nil {
		s.logger.Error("failed to fire schedule",
			"schedule_id", sched.ID,
			"schedule_name", sched.Name,
			"agent_id", sched.AgentID,
			"error", err,
		)
		return false
	}

	s.logger.Info("schedule fired",
		"schedule_id", sched.ID,
		"schedule_name", sched.Name,
		"run_id", run.ID,
	)
	return true
}
