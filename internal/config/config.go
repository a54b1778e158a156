package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config — полная конфигурация сервера.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	MQ        MQConfig        `yaml:"mq"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Budget    BudgetConfig    `yaml:"budget"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Workers   []WorkerConfig  `yaml:"workers"`
	Schedules []ScheduleSeed  `yaml:"schedules"`
	Pipelines []PipelineSeed  `yaml:"pipelines"`
}

// ServerConfig — HTTP-сервер.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig — подключение к PostgreSQL.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// MQConfig — подключение к RabbitMQ. Пустой URL отключает события.
type MQConfig struct {
	URL string `yaml:"url"`
}

// BridgeConfig — вызов generic-воркеров через subprocess.
type BridgeConfig struct {
	// Binary — исполняемый файл агент-раннера (default: "agent").
	Binary string `yaml:"binary"`

	// Timeout — таймаут одного вызова.
	Timeout time.Duration `yaml:"timeout"`

	// SessionPrefix — префикс daily session id.
	SessionPrefix string `yaml:"session_prefix"`
}

// BudgetConfig — дневной бюджет scheduled runs.
type BudgetConfig struct {
	MaxCostPerRun  float64 `yaml:"max_cost_per_run"`
	MaxRunsPerHour int     `yaml:"max_runs_per_hour"`
}

// SchedulerConfig — параметры цикла планировщика.
type SchedulerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	PoolSize     int           `yaml:"pool_size"`
}

// WorkerConfig — декларация воркера для посева на старте.
type WorkerConfig struct {
	ID             string         `yaml:"id"`
	Name           string         `yaml:"name"`
	SpecialHandler string         `yaml:"special_handler"`
	BridgeID       string         `yaml:"bridge_id"`
	Domain         string         `yaml:"domain"`
	Extra          map[string]any `yaml:"extra"`
}

// ScheduleSeed — декларация расписания для посева на старте.
type ScheduleSeed struct {
	Name     string `yaml:"name"`
	AgentID  string `yaml:"agent_id"`
	CronExpr string `yaml:"cron"`
	Message  string `yaml:"message"`
	Enabled  *bool  `yaml:"enabled"`
}

// PipelineSeed — декларация pipeline.
type PipelineSeed struct {
	Name   string     `yaml:"name"`
	Active *bool      `yaml:"active"`
	Steps  []StepSeed `yaml:"steps"`
}

// StepSeed — декларация шага pipeline.
type StepSeed struct {
	AgentID         string `yaml:"agent_id"`
	MessageTemplate string `yaml:"message_template"`
	DelayMinutes    int    `yaml:"delay_minutes"`
}

// Load читает конфигурацию из файла и применяет env-переопределения.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Bridge.Binary == "" {
		c.Bridge.Binary = "agent"
	}
	if c.Bridge.Timeout <= 0 {
		c.Bridge.Timeout = 10 * time.Minute
	}
	if c.Bridge.SessionPrefix == "" {
		c.Bridge.SessionPrefix = "run"
	}
	if c.Scheduler.TickInterval <= 0 {
		c.Scheduler.TickInterval = time.Minute
	}
	if c.Scheduler.PoolSize <= 0 {
		c.Scheduler.PoolSize = 8
	}
}

// applyEnv переопределяет секреты и адреса из окружения.
func (c *Config) applyEnv() {
	if v := os.Getenv("DB_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("MQ_URL"); v != "" {
		c.MQ.URL = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

func (c *Config) validate() error {
	seen := make(map[string]struct{}, len(c.Workers))
	for _, w := range c.Workers {
		if w.ID == "" {
			return fmt.Errorf("worker without id")
		}
		if _, dup := seen[w.ID]; dup {
			return fmt.Errorf("duplicate worker id %q", w.ID)
		}
		seen[w.ID] = struct{}{}
	}

	for _, s := range c.Schedules {
		if s.AgentID == "" {
			return fmt.Errorf("schedule %q without agent_id", s.Name)
		}
		if _, known := seen[s.AgentID]; !known {
			return fmt.Errorf("schedule %q references unknown worker %q", s.Name, s.AgentID)
		}
	}

	for _, p := range c.Pipelines {
		if p.Name == "" {
			return fmt.Errorf("pipeline without name")
		}
		if len(p.Steps) == 0 {
			return fmt.Errorf("pipeline %q has no steps", p.Name)
		}
	}
	return nil
}

// ScheduleEnabled возвращает enabled с дефолтом true.
func (s ScheduleSeed) ScheduleEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// PipelineActive возвращает active с дефолтом true.
func (p PipelineSeed) PipelineActive() bool {
	return p.Active == nil || *p.Active
}
