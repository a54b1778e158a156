package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// AgentResponse — воркер из API.
type AgentResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Domain    string `json:"domain,omitempty"`
	TotalRuns int    `json:"total_runs"`
	LastRunAt string `json:"last_run_at,omitempty"`
	CreatedAt string `json:"created_at"`
}

// RunResponse — run из API.
type RunResponse struct {
	ID          string         `json:"id"`
	AgentID     string         `json:"agent_id"`
	Status      string         `json:"status"`
	Trigger     string         `json:"trigger"`
	StartedAt   string         `json:"started_at,omitempty"`
	CompletedAt string         `json:"completed_at,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
	CostUSD     float64        `json:"cost_usd"`
	TokensUsed  int            `json:"tokens_used"`
	ResultData  map[string]any `json:"result_data,omitempty"`
	ErrorMsg    string         `json:"error_msg,omitempty"`
	CreatedAt   string         `json:"created_at"`
}

// ScheduleResponse — расписание из API.
type ScheduleResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AgentID   string `json:"agent_id"`
	CronExpr  string `json:"cron_expr"`
	Message   string `json:"message,omitempty"`
	Enabled   bool   `json:"enabled"`
	LastRunAt string `json:"last_run_at,omitempty"`
	NextFire  string `json:"next_fire,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// PipelineResponse — pipeline из API.
type PipelineResponse struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Steps     []PipelineStep `json:"steps"`
	Active    bool           `json:"active"`
	CreatedAt string         `json:"created_at"`
}

// PipelineStep — шаг pipeline из API.
type PipelineStep struct {
	AgentID         string `json:"agent_id"`
	MessageTemplate string `json:"message_template,omitempty"`
	DelayMinutes    int    `json:"delay_minutes,omitempty"`
}

// PipelineRunResponse — pipeline run из API.
type PipelineRunResponse struct {
	ID          string         `json:"id"`
	PipelineID  string         `json:"pipeline_id"`
	Status      string         `json:"status"`
	CurrentStep int            `json:"current_step"`
	TotalSteps  int            `json:"total_steps"`
	Trigger     string         `json:"trigger"`
	Context     map[string]any `json:"context,omitempty"`
	StartedAt   string         `json:"started_at"`
	CompletedAt string         `json:"completed_at,omitempty"`
	Steps       []StepRecord   `json:"steps,omitempty"`
}

// StepRecord — шаг pipeline run из API.
type StepRecord struct {
	StepIndex     int            `json:"step_index"`
	AgentID       string         `json:"agent_id"`
	Status        string         `json:"status"`
	DelayMinutes  int            `json:"delay_minutes"`
	RunID         string         `json:"run_id,omitempty"`
	OutputSummary map[string]any `json:"output_summary,omitempty"`
	ScheduledFor  string         `json:"scheduled_for,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// --- Request types ---

// RunAgentRequest — ручной запуск воркера.
type RunAgentRequest struct {
	Message string `json:"message"`
}

// BlitzRequest — пакетный запуск воркеров домена.
type BlitzRequest struct {
	Domain  string `json:"domain"`
	Message string `json:"message"`
}

// CreateScheduleRequest — создание расписания.
type CreateScheduleRequest struct {
	Name     string `json:"name"`
	AgentID  string `json:"agent_id"`
	CronExpr string `json:"cron_expr"`
	Message  string `json:"message,omitempty"`
	Enabled  *bool  `json:"enabled,omitempty"`
}

// UpdateScheduleRequest — обновление расписания.
type UpdateScheduleRequest struct {
	Name     *string `json:"name,omitempty"`
	AgentID  *string `json:"agent_id,omitempty"`
	CronExpr *string `json:"cron_expr,omitempty"`
	Message  *string `json:"message,omitempty"`
}

// StartPipelineRequest — запуск pipeline.
type StartPipelineRequest struct {
	Context map[string]any `json:"context,omitempty"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	AgentID string
	Status  string
	Trigger string
	Limit   int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Cadence API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Agents ---

// ListAgents возвращает всех воркеров.
func (c *Client) ListAgents() ([]AgentResponse, error) {
	var agents []AgentResponse
	err := c.list("/api/v1/agents", nil, &agents)
	return agents, err
}

// GetAgent возвращает воркера по ID.
func (c *Client) GetAgent(id string) (*AgentResponse, error) {
	var agent AgentResponse
	err := c.get("/api/v1/agents/"+id, &agent)
	return &agent, err
}

// RunAgent запускает воркера вручную.
func (c *Client) RunAgent(id, message string) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/agents/"+id+"/run", RunAgentRequest{Message: message}, &run)
	return &run, err
}

// Blitz запускает всех воркеров домена.
func (c *Client) Blitz(domain, message string) ([]RunResponse, error) {
	var runs []RunResponse
	err := c.post("/api/v1/blitz", BlitzRequest{Domain: domain, Message: message}, &runs)
	return runs, err
}

// StopAll убивает все активные bridge-сессии.
func (c *Client) StopAll() (int, error) {
	var result struct {
		SessionsKilled int `json:"sessions_killed"`
	}
	err := c.post("/api/v1/stop-all", nil, &result)
	return result.SessionsKilled, err
}

// --- Runs ---

// ListRuns возвращает журнал запусков с фильтрацией.
func (c *Client) ListRuns(opts ListRunsOpts) ([]RunResponse, error) {
	params := url.Values{}
	if opts.AgentID != "" {
		params.Set("agent_id", opts.AgentID)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Trigger != "" {
		params.Set("trigger", opts.Trigger)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var runs []RunResponse
	err := c.list("/api/v1/runs", params, &runs)
	return runs, err
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/"+id, &run)
	return &run, err
}

// CancelRun отменяет pending run.
func (c *Client) CancelRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/runs/"+id+"/cancel", nil, &run)
	return &run, err
}

// --- Schedules ---

// ListSchedules возвращает все расписания.
func (c *Client) ListSchedules() ([]ScheduleResponse, error) {
	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", nil, &schedules)
	return schedules, err
}

// CreateSchedule создаёт расписание.
func (c *Client) CreateSchedule(req CreateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post("/api/v1/schedules", req, &schedule)
	return &schedule, err
}

// GetSchedule возвращает расписание по ID.
func (c *Client) GetSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.get("/api/v1/schedules/"+id, &schedule)
	return &schedule, err
}

// UpdateSchedule обновляет расписание.
func (c *Client) UpdateSchedule(id string, req UpdateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.put("/api/v1/schedules/"+id, req, &schedule)
	return &schedule, err
}

// DeleteSchedule удаляет расписание.
func (c *Client) DeleteSchedule(id string) error {
	return c.delete("/api/v1/schedules/" + id)
}

// EnableSchedule включает расписание.
func (c *Client) EnableSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": true}
	err := c.put("/api/v1/schedules/"+id+"/enabled", body, &schedule)
	return &schedule, err
}

// DisableSchedule выключает расписание.
func (c *Client) DisableSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": false}
	err := c.put("/api/v1/schedules/"+id+"/enabled", body, &schedule)
	return &schedule, err
}

// --- Pipelines ---

// ListPipelines возвращает все pipelines.
func (c *Client) ListPipelines() ([]PipelineResponse, error) {
	var pipelines []PipelineResponse
	err := c.list("/api/v1/pipelines", nil, &pipelines)
	return pipelines, err
}

// StartPipeline запускает pipeline по id или имени.
func (c *Client) StartPipeline(key string, initialContext map[string]any) (*PipelineRunResponse, error) {
	var pr PipelineRunResponse
	err := c.post("/api/v1/pipelines/"+key+"/start", StartPipelineRequest{Context: initialContext}, &pr)
	return &pr, err
}

// ListPipelineRuns возвращает последние pipeline runs.
func (c *Client) ListPipelineRuns(limit int) ([]PipelineRunResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	var runs []PipelineRunResponse
	err := c.list("/api/v1/pipeline-runs", params, &runs)
	return runs, err
}

// GetPipelineRun возвращает pipeline run с шагами.
func (c *Client) GetPipelineRun(id string) (*PipelineRunResponse, error) {
	var pr PipelineRunResponse
	err := c.get("/api/v1/pipeline-runs/"+id, &pr)
	return &pr, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
