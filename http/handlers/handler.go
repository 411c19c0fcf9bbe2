package handlers

import (
	"context"
	"net/http"
	"strconv"

	"learning-platform/http/middleware"
	"learning-platform/http/response"
	"learning-platform/metrics"
	"learning-platform/models"
	"learning-platform/services"
	"learning-platform/utils"
)

// Handler serves the platform API. Every field except Metrics and Ping is
// required.
type Handler struct {
	Verifier      *services.Verifier
	Payments      *services.PaymentService
	Subscriptions *services.SubscriptionService
	Access        *services.AccessGate
	Auth          *services.AuthService
	Validator     *utils.Validator
	Metrics       *metrics.Metrics

	// Ping checks backing stores for the health endpoint.
	Ping func(ctx context.Context) error
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		response.ErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// principal is set by middleware.RequireAuth on every authenticated route.
func principal(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		response.ErrorResponse(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
	}
	return p, ok
}

// intField parses an optional integer field, falling back to def when the
// field is absent.
func intField(raw utils.FlexibleString, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw.String())
	if err != nil {
		return 0, false
	}
	return n, true
}
