package handlers

import (
	"net/http"

	"learning-platform/http/response"
	"learning-platform/services"
	"learning-platform/utils"
)

// Register creates an account with a student or instructor profile.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req services.RegisterRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		response.ErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.Validator.Validate(req); err != nil {
		response.FromError(w, err)
		return
	}

	user, err := h.Auth.Register(r.Context(), req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.SuccessResponse(w, http.StatusCreated, "User registered", user)
}
