package api

import (
	"net/http"
)

// StopAll убивает все активные bridge-сессии (kill switch).
//
// Запущенные runs завершатся failed по ошибке subprocess; записи в
// журнале остаются нетронутыми.
// POST /api/v1/stop-all
func (h *Handler) StopAll(w http.ResponseWriter, r *http.Request) {
	if h.killer == nil {
		InvalidState(w, "kill switch is not available")
		return
	}

	killed := h.killer.StopAll()
	h.logger.Warn("kill switch activated", "sessions_killed", killed)

	Success(w, map[string]int{"sessions_killed": killed})
}
