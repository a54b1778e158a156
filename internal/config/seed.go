package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Cadence/internal/domain"
)

// AgentSeeder — посев воркеров.
type AgentSeeder interface {
	Upsert(ctx context.Context, agent *domain.Agent) error
}

// ScheduleSeeder — посев расписаний.
type ScheduleSeeder interface {
	List(ctx context.Context) ([]domain.Schedule, error)
	Create(ctx context.Context, s *domain.Schedule) error
}

// PipelineSeeder — посев pipelines.
type PipelineSeeder interface {
	Upsert(ctx context.Context, p *domain.Pipeline) error
}

// Seed применяет декларации из конфигурации к БД.
//
// Воркеры и pipelines всегда upsert'ятся. Расписания создаются только
// если расписания с таким именем ещё нет: enabled-флаг и last_run_at
// живут в БД и не должны сбрасываться рестартом.
func Seed(ctx context.Context, cfg *Config, agents AgentSeeder, schedules ScheduleSeeder, pipelines PipelineSeeder, logger *slog.Logger) error {
	for _, w := range cfg.Workers {
		agent := &domain.Agent{
			ID:   w.ID,
			Name: w.Name,
			Config: domain.AgentConfig{
				SpecialHandler: w.SpecialHandler,
				BridgeID:       w.BridgeID,
				Domain:         w.Domain,
				Extra:          w.Extra,
			},
		}
		if agent.Name == "" {
			agent.Name = w.ID
		}
		if err := agents.Upsert(ctx, agent); err != nil {
			return fmt.Errorf("seed worker %q: %w", w.ID, err)
		}
	}

	if err := SeedPipelines(ctx, cfg, pipelines); err != nil {
		return err
	}

	existing, err := schedules.List(ctx)
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		known[s.Name] = struct{}{}
	}

	for _, seed := range cfg.Schedules {
		if _, ok := known[seed.Name]; ok {
			continue
		}
		s := &domain.Schedule{
			ID:       uuid.New(),
			Name:     seed.Name,
			AgentID:  seed.AgentID,
			CronExpr: seed.CronExpr,
			Message:  seed.Message,
			Enabled:  seed.ScheduleEnabled(),
		}
		if err := schedules.Create(ctx, s); err != nil {
			return fmt.Errorf("seed schedule %q: %w", seed.Name, err)
		}
		logger.Info("seeded schedule", "name", seed.Name, "cron", seed.CronExpr)
	}

	logger.Info("configuration seeded",
		"workers", len(cfg.Workers),
		"pipelines", len(cfg.Pipelines),
	)
	return nil
}

// SeedPipelines upsert'ит только pipelines. Используется при
// hot-reload конфигурации.
func SeedPipelines(ctx context.Context, cfg *Config, pipelines PipelineSeeder) error {
	for _, seed := range cfg.Pipelines {
		steps := make([]domain.PipelineStep, 0, len(seed.Steps))
		for _, st := range seed.Steps {
			steps = append(steps, domain.PipelineStep{
				AgentID:         st.AgentID,
				MessageTemplate: st.MessageTemplate,
				DelayMinutes:    st.DelayMinutes,
			})
		}

		p := &domain.Pipeline{
			ID:     uuid.New(),
			Name:   seed.Name,
			Steps:  steps,
			Active: seed.PipelineActive(),
		}
		if err := pipelines.Upsert(ctx, p); err != nil {
			return fmt.Errorf("seed pipeline %q: %w", seed.Name, err)
		}
	}
	return nil
}
