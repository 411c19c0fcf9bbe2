package handlers

import (
	"net/http"

	"learning-platform/http/response"
	"learning-platform/logger"
)

// Health reports whether the database answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if h.Ping != nil {
		if err := h.Ping(r.Context()); err != nil {
			logger.Error("Health check failed: %v", err)
			response.ErrorResponse(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	response.SuccessResponse(w, http.StatusOK, "ok", nil)
}
