package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Workers
	mux.Handle("GET /api/v1/agents", chain(http.HandlerFunc(h.ListAgents)))
	mux.Handle("GET /api/v1/agents/{id}", chain(http.HandlerFunc(h.GetAgent)))
	mux.Handle("POST /api/v1/agents/{id}/run", chain(http.HandlerFunc(h.RunAgent)))
	mux.Handle("POST /api/v1/blitz", chain(http.HandlerFunc(h.Blitz)))

	// Runs
	mux.Handle("GET /api/v1/runs", chain(http.HandlerFunc(h.ListRuns)))
	mux.Handle("GET /api/v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))
	mux.Handle("POST /api/v1/runs/{id}/cancel", chain(http.HandlerFunc(h.CancelRun)))
	mux.Handle("POST /api/v1/runs/{id}/confirm", chain(http.HandlerFunc(h.ConfirmRun)))

	// Schedules
	mux.Handle("GET /api/v1/schedules", chain(http.HandlerFunc(h.ListSchedules)))
	mux.Handle("POST /api/v1/schedules", chain(http.HandlerFunc(h.CreateSchedule)))
	mux.Handle("GET /api/v1/schedules/{id}", chain(http.HandlerFunc(h.GetSchedule)))
	mux.Handle("PUT /api/v1/schedules/{id}", chain(http.HandlerFunc(h.UpdateSchedule)))
	mux.Handle("DELETE /api/v1/schedules/{id}", chain(http.HandlerFunc(h.DeleteSchedule)))
	mux.Handle("PUT /api/v1/schedules/{id}/enabled", chain(http.HandlerFunc(h.SetScheduleEnabled)))

	// Pipelines
	mux.Handle("GET /api/v1/pipelines", chain(http.HandlerFunc(h.ListPipelines)))
	mux.Handle("POST /api/v1/pipelines/{key}/start", chain(http.HandlerFunc(h.StartPipeline)))
	mux.Handle("GET /api/v1/pipeline-runs", chain(http.HandlerFunc(h.ListPipelineRuns)))
	mux.Handle("GET /api/v1/pipeline-runs/{id}", chain(http.HandlerFunc(h.GetPipelineRun)))

	// Control
	mux.Handle("POST /api/v1/stop-all", chain(http.HandlerFunc(h.StopAll)))

	mux.Handle("GET /healthz", chain(http.HandlerFunc(h.Health)))
}

// Health — health check. Состояние брокера информационное:
// без него события не публикуются, но сервер остаётся живым.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]string{"status": "ok"}
	if h.broker != nil {
		if h.broker.IsConnected() {
			health["mq"] = "connected"
		} else {
			health["mq"] = "disconnected"
		}
	}
	Success(w, health)
}
