package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Cadence/internal/domain"
)

// AgentResponse — представление воркера в API.
type AgentResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Domain    string     `json:"domain,omitempty"`
	TotalRuns int        `json:"total_runs"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// AgentFromDomain конвертирует domain.Agent в AgentResponse.
func AgentFromDomain(a *domain.Agent) AgentResponse {
	return AgentResponse{
		ID:        a.ID,
		Name:      a.Name,
		Status:    string(a.Status),
		Domain:    a.Config.Domain,
		TotalRuns: a.TotalRuns,
		LastRunAt: a.LastRunAt,
		CreatedAt: a.CreatedAt,
	}
}

// RunAgentRequest — запрос ручного запуска воркера.
type RunAgentRequest struct {
	Message string `json:"message"`
}

// BlitzRequest — запрос пакетного запуска воркеров домена.
type BlitzRequest struct {
	Domain  string `json:"domain"`
	Message string `json:"message"`
}

// RunResponse — представление run в API.
type RunResponse struct {
	ID          uuid.UUID      `json:"id"`
	AgentID     string         `json:"agent_id"`
	Status      string         `json:"status"`
	Trigger     string         `json:"trigger"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
	CostUSD     float64        `json:"cost_usd"`
	TokensUsed  int            `json:"tokens_used"`
	ResultData  map[string]any `json:"result_data,omitempty"`
	ErrorMsg    string         `json:"error_msg,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r *domain.Run) RunResponse {
	return RunResponse{
		ID:          r.ID,
		AgentID:     r.AgentID,
		Status:      string(r.Status),
		Trigger:     string(r.Trigger),
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		DurationMs:  r.DurationMs,
		CostUSD:     r.CostUSD,
		TokensUsed:  r.TokensUsed,
		ResultData:  r.ResultData,
		ErrorMsg:    r.ErrorMsg,
		CreatedAt:   r.CreatedAt,
	}
}

// ConfirmRunRequest — ручное подтверждение результата run.
type ConfirmRunRequest struct {
	Output     string  `json:"output"`
	CostUSD    float64 `json:"cost_usd"`
	TokensUsed int     `json:"tokens_used"`
}

// CreateScheduleRequest — запрос создания расписания.
type CreateScheduleRequest struct {
	Name     string `json:"name"`
	AgentID  string `json:"agent_id"`
	CronExpr string `json:"cron_expr"`
	Message  string `json:"message"`
	Enabled  *bool  `json:"enabled"`
}

// UpdateScheduleRequest — запрос обновления расписания.
type UpdateScheduleRequest struct {
	Name     *string `json:"name"`
	AgentID  *string `json:"agent_id"`
	CronExpr *string `json:"cron_expr"`
	Message  *string `json:"message"`
}

// SetEnabledRequest — запрос включения/выключения расписания.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// ScheduleResponse — представление расписания в API.
type ScheduleResponse struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	AgentID   string     `json:"agent_id"`
	CronExpr  string     `json:"cron_expr"`
	Message   string     `json:"message,omitempty"`
	Enabled   bool       `json:"enabled"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextFire  *time.Time `json:"next_fire,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ScheduleFromDomain конвертирует domain.Schedule в ScheduleResponse.
func ScheduleFromDomain(s *domain.Schedule, nextFire *time.Time) ScheduleResponse {
	return ScheduleResponse{
		ID:        s.ID,
		Name:      s.Name,
		AgentID:   s.AgentID,
		CronExpr:  s.CronExpr,
		Message:   s.Message,
		Enabled:   s.Enabled,
		LastRunAt: s.LastRunAt,
		NextFire:  nextFire,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// StartPipelineRequest — запрос запуска pipeline.
type StartPipelineRequest struct {
	Context map[string]any `json:"context"`
}

// PipelineResponse — представление pipeline в API.
type PipelineResponse struct {
	ID        uuid.UUID             `json:"id"`
	Name      string                `json:"name"`
	Steps     []domain.PipelineStep `json:"steps"`
	Active    bool                  `json:"active"`
	CreatedAt time.Time             `json:"created_at"`
}

// PipelineFromDomain конвертирует domain.Pipeline в PipelineResponse.
func PipelineFromDomain(p *domain.Pipeline) PipelineResponse {
	return PipelineResponse{
		ID:        p.ID,
		Name:      p.Name,
		Steps:     p.Steps,
		Active:    p.Active,
		CreatedAt: p.CreatedAt,
	}
}

// PipelineRunResponse — представление pipeline run в API.
type PipelineRunResponse struct {
	ID          uuid.UUID           `json:"id"`
	PipelineID  uuid.UUID           `json:"pipeline_id"`
	Status      string              `json:"status"`
	CurrentStep int                 `json:"current_step"`
	TotalSteps  int                 `json:"total_steps"`
	Trigger     string              `json:"trigger"`
	Context     map[string]any      `json:"context,omitempty"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Steps       []StepRecordResponse `json:"steps,omitempty"`
}

// StepRecordResponse — представление шага pipeline run в API.
type StepRecordResponse struct {
	StepIndex     int            `json:"step_index"`
	AgentID       string         `json:"agent_id"`
	Status        string         `json:"status"`
	DelayMinutes  int            `json:"delay_minutes"`
	RunID         *uuid.UUID     `json:"run_id,omitempty"`
	OutputSummary map[string]any `json:"output_summary,omitempty"`
	ScheduledFor  *time.Time     `json:"scheduled_for,omitempty"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// PipelineRunFromDomain конвертирует domain.PipelineRun в ответ API.
func PipelineRunFromDomain(pr *domain.PipelineRun, steps []domain.StepRecord) PipelineRunResponse {
	resp := PipelineRunResponse{
		ID:          pr.ID,
		PipelineID:  pr.PipelineID,
		Status:      string(pr.Status),
		CurrentStep: pr.CurrentStep,
		TotalSteps:  pr.TotalSteps,
		Trigger:     string(pr.Trigger),
		Context:     pr.Context,
		StartedAt:   pr.StartedAt,
		CompletedAt: pr.CompletedAt,
	}

	for i := range steps {
		s := &steps[i]
		resp.Steps = append(resp.Steps, StepRecordResponse{
			StepIndex:     s.StepIndex,
			AgentID:       s.AgentID,
			Status:        string(s.Status),
			DelayMinutes:  s.DelayMinutes,
			RunID:         s.RunID,
			OutputSummary: s.OutputSummary,
			ScheduledFor:  s.ScheduledFor,
			StartedAt:     s.StartedAt,
			CompletedAt:   s.CompletedAt,
			Error:         s.Error,
		})
	}
	return resp
}
