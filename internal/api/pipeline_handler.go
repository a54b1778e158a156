package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/shaiso/Cadence/internal/domain"
	"github.com/shaiso/Cadence/internal/pipeline"
)

// ListPipelines возвращает все pipelines.
// GET /api/v1/pipelines
func (h *Handler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	pipelines, err := h.pipelineRepo.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]PipelineResponse, len(pipelines))
	for i := range pipelines {
		result[i] = PipelineFromDomain(&pipelines[i])
	}

	List(w, result, len(result))
}

// StartPipeline запускает pipeline по id или имени.
// POST /api/v1/pipelines/{key}/start
func (h *Handler) StartPipeline(w http.ResponseWriter, r *http.Request) {
	var req StartPipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	pr, err := h.pipelines.Start(r.Context(), r.PathValue("key"), domain.TriggerManual, req.Context)
	if err != nil {
		if errors.Is(err, pipeline.ErrPipelineNotFound) {
			NotFound(w, "pipeline not found or inactive")
			return
		}
		if errors.Is(err, pipeline.ErrEmptyPipeline) {
			InvalidState(w, "pipeline has no steps")
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	Accepted(w, PipelineRunFromDomain(pr, nil))
}

// ListPipelineRuns возвращает последние pipeline runs.
// GET /api/v1/pipeline-runs?limit=...
func (h *Handler) ListPipelineRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = parsed
	}

	runs, err := h.pipelineRepo.ListRuns(r.Context(), limit)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]PipelineRunResponse, len(runs))
	for i := range runs {
		result[i] = PipelineRunFromDomain(&runs[i], nil)
	}

	List(w, result, len(result))
}

// GetPipelineRun возвращает pipeline run вместе с шагами.
// GET /api/v1/pipeline-runs/{id}
func (h *Handler) GetPipelineRun(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(r.PathValue("id"))
	if !ok {
		BadRequest(w, "invalid pipeline run id")
		return
	}

	pr, err := h.pipelineRepo.GetRun(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "pipeline run not found") {
		return
	}

	steps, err := h.pipelineRepo.ListSteps(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	Success(w, PipelineRunFromDomain(pr, steps))
}
