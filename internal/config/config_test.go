package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cadence.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
server:
  addr: ":9090"
database:
  url: "postgres://localhost/cadence"
bridge:
  binary: "openclaw"
  timeout: 5m
budget:
  max_cost_per_run: 2.5
  max_runs_per_hour: 10
workers:
  - id: jake-lead-scout
    name: Jake
    domain: scraping
  - id: notifier
    special_handler: webhook
    extra:
      url: "https://hooks.example.com/x"
schedules:
  - name: morning-scan
    agent_id: jake-lead-scout
    cron: "0 9 * * *"
    message: "Scan for new leads"
pipelines:
  - name: lead-gen
    steps:
      - agent_id: jake-lead-scout
        message_template: "Find leads"
      - agent_id: notifier
        delay_minutes: 30
`

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Bridge.Binary != "openclaw" || cfg.Bridge.Timeout != 5*time.Minute {
		t.Errorf("bridge = %+v", cfg.Bridge)
	}
	if len(cfg.Workers) != 2 {
		t.Fatalf("expected 2 workers, got %d", len(cfg.Workers))
	}
	if cfg.Workers[1].Extra["url"] != "https://hooks.example.com/x" {
		t.Errorf("worker extra not parsed: %v", cfg.Workers[1].Extra)
	}
	if len(cfg.Pipelines) != 1 || len(cfg.Pipelines[0].Steps) != 2 {
		t.Errorf("pipelines not parsed: %+v", cfg.Pipelines)
	}
	if cfg.Pipelines[0].Steps[1].DelayMinutes != 30 {
		t.Errorf("delay_minutes = %d", cfg.Pipelines[0].Steps[1].DelayMinutes)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "database:\n  url: postgres://x\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("default addr = %q", cfg.Server.Addr)
	}
	if cfg.Bridge.Binary != "agent" {
		t.Errorf("default binary = %q", cfg.Bridge.Binary)
	}
	if cfg.Bridge.Timeout != 10*time.Minute {
		t.Errorf("default timeout = %v", cfg.Bridge.Timeout)
	}
	if cfg.Bridge.SessionPrefix != "run" {
		t.Errorf("default session prefix = %q", cfg.Bridge.SessionPrefix)
	}
	if cfg.Scheduler.TickInterval != time.Minute {
		t.Errorf("default tick interval = %v", cfg.Scheduler.TickInterval)
	}
	if cfg.Scheduler.PoolSize != 8 {
		t.Errorf("default pool size = %d", cfg.Scheduler.PoolSize)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_URL", "postgres://override/db")
	t.Setenv("HTTP_ADDR", ":7070")

	cfg, err := Load(writeConfig(t, "database:\n  url: postgres://file/db\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.URL != "postgres://override/db" {
		t.Errorf("env DB_URL should win, got %q", cfg.Database.URL)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("env HTTP_ADDR should win, got %q", cfg.Server.Addr)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{
			name: "duplicate worker id",
			content: `
workers:
  - id: dup
  - id: dup
`,
			wantMsg: "duplicate worker id",
		},
		{
			name: "schedule references unknown worker",
			content: `
workers:
  - id: known
schedules:
  - name: s
    agent_id: unknown
    cron: "* * * * *"
`,
			wantMsg: "unknown worker",
		},
		{
			name: "pipeline without steps",
			content: `
pipelines:
  - name: empty
`,
			wantMsg: "has no steps",
		},
		{
			name: "worker without id",
			content: `
workers:
  - name: anonymous
`,
			wantMsg: "worker without id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q should contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/cadence.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSeedDefaults(t *testing.T) {
	enabled := false
	s := ScheduleSeed{}
	if !s.ScheduleEnabled() {
		t.Error("schedules default to enabled")
	}
	s.Enabled = &enabled
	if s.ScheduleEnabled() {
		t.Error("explicit enabled=false should win")
	}

	p := PipelineSeed{}
	if !p.PipelineActive() {
		t.Error("pipelines default to active")
	}
}
