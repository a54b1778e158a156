package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/Cadence/internal/domain"
)

// ListAgents возвращает список воркеров.
// GET /api/v1/agents
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.agentRepo.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]AgentResponse, len(agents))
	for i := range agents {
		result[i] = AgentFromDomain(&agents[i])
	}

	List(w, result, len(result))
}

// GetAgent возвращает воркера по id.
// GET /api/v1/agents/{id}
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.agentRepo.GetByID(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "worker not found") {
		return
	}

	Success(w, AgentFromDomain(agent))
}

// RunAgent запускает воркера вручную.
// POST /api/v1/agents/{id}/run
func (h *Handler) RunAgent(w http.ResponseWriter, r *http.Request) {
	var req RunAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Message == "" {
		BadRequest(w, "message is required")
		return
	}

	run, err := h.runner.Fire(r.Context(), r.PathValue("id"), req.Message, domain.TriggerManual)
	if HandleRepoError(w, h.logger, err, "worker not found") {
		return
	}

	Accepted(w, RunFromDomain(run))
}

// Blitz запускает всех воркеров домена одним сообщением.
// POST /api/v1/blitz
func (h *Handler) Blitz(w http.ResponseWriter, r *http.Request) {
	var req BlitzRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Domain == "" {
		BadRequest(w, "domain is required")
		return
	}
	if req.Message == "" {
		BadRequest(w, "message is required")
		return
	}

	runs, err := h.runner.FireBlitz(r.Context(), req.Domain, req.Message)
	if HandleRepoError(w, h.logger, err, "no workers in domain") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i := range runs {
		result[i] = RunFromDomain(&runs[i])
	}

	Accepted(w, result)
}
