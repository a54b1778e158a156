package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shaiso/Cadence/internal/domain"
	"github.com/shaiso/Cadence/internal/repo"
)

// ListRuns возвращает журнал запусков с фильтрацией.
// GET /api/v1/runs?agent_id=...&status=...&trigger=...&limit=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	filter := repo.RunFilter{
		AgentID: r.URL.Query().Get("agent_id"),
		Status:  domain.RunStatus(r.URL.Query().Get("status")),
		Trigger: domain.TriggerType(r.URL.Query().Get("trigger")),
		Limit:   50,
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	runs, err := h.runRepo.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i := range runs {
		result[i] = RunFromDomain(&runs[i])
	}

	List(w, result, len(result))
}

// GetRun возвращает run по id.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(r.PathValue("id"))
	if !ok {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.runRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(run))
}

// CancelRun отменяет pending run.
// POST /api/v1/runs/{id}/cancel
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(r.PathValue("id"))
	if !ok {
		BadRequest(w, "invalid run id")
		return
	}

	if err := h.runRepo.Cancel(r.Context(), id); err != nil {
		HandleRepoError(w, h.logger, err, "run not found")
		return
	}

	run, err := h.runRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(run))
}

// ConfirmRun вручную завершает run с заявленным результатом.
//
// Используется, когда результат воркера доставлен вне системы
// (например, оператор выполнил шаг руками). Если run принадлежит
// шагу pipeline, pipeline продвигается дальше.
// POST /api/v1/runs/{id}/confirm
func (h *Handler) ConfirmRun(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(r.PathValue("id"))
	if !ok {
		BadRequest(w, "invalid run id")
		return
	}

	var req ConfirmRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	stats := repo.CompletionStats{
		CostUSD:    req.CostUSD,
		TokensUsed: req.TokensUsed,
		ResultData: map[string]any{
			"output":    req.Output,
			"confirmed": true,
		},
	}
	if err := h.runRepo.MarkCompleted(r.Context(), id, stats); err != nil {
		HandleRepoError(w, h.logger, err, "run not found")
		return
	}

	run, err := h.runRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	if h.pipelines != nil {
		if err := h.pipelines.OnRunCompleted(r.Context(), run); err != nil {
			h.logger.Error("failed to advance pipeline after confirm",
				"run_id", run.ID,
				"error", err,
			)
		}
	}

	// Подтверждённый результат — одобренный пример для knowledge-хранилища.
	if h.knowledge != nil {
		h.knowledge.RecordApproved(r.Context(), run.AgentID, req.Output)
	}

	Success(w, RunFromDomain(run))
}
