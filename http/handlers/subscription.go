package handlers

import (
	"errors"
	"net/http"

	"learning-platform/http/response"
	"learning-platform/utils"
)

type durationRequest struct {
	DurationMonths utils.FlexibleString `json:"duration_months"`
}

// readDuration returns duration_months from the body, 1 when omitted.
func readDuration(w http.ResponseWriter, r *http.Request) (int, bool) {
	var req durationRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil && !errors.Is(err, utils.ErrEmptyBody) {
		response.ErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return 0, false
	}
	months, ok := intField(req.DurationMonths, 1)
	if !ok {
		response.ErrorResponse(w, http.StatusBadRequest, "duration_months must be an integer")
		return 0, false
	}
	return months, true
}

// Subscribe starts a subscription for the calling student.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	months, ok := readDuration(w, r)
	if !ok {
		return
	}

	student, err := h.Subscriptions.Subscribe(r.Context(), p, months)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.SuccessResponse(w, http.StatusOK, "Subscription updated.", student.ToResponse())
}

// ExtendSubscription adds months to an active subscription. Without one the
// request succeeds and nothing changes.
func (h *Handler) ExtendSubscription(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}
	months, ok := readDuration(w, r)
	if !ok {
		return
	}

	student, extended, err := h.Subscriptions.Extend(r.Context(), p, months)
	if err != nil {
		response.FromError(w, err)
		return
	}
	msg := "Subscription extended."
	if !extended {
		msg = "No active subscription to extend."
	}
	response.SuccessResponse(w, http.StatusOK, msg, student.ToResponse())
}

// Unsubscribe cancels the subscription and drops paid enrollments.
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}

	student, err := h.Subscriptions.Unsubscribe(r.Context(), p)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.SuccessResponse(w, http.StatusOK, "Subscription cancelled.", student.ToResponse())
}

// Subscription reports the caller's current subscription state.
func (h *Handler) Subscription(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}

	student, err := h.Subscriptions.Current(r.Context(), p)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.SuccessResponse(w, http.StatusOK, "", student.ToResponse())
}
