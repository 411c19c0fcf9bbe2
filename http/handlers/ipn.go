package handlers

import (
	"net/http"
	"strings"

	"learning-platform/http/response"
	"learning-platform/logger"
	"learning-platform/services"
	"learning-platform/utils"
)

// IPN receives NOWPayments instant payment notifications. The body is
// authenticated against x-nowpayments-sig before anything is parsed.
func (h *Handler) IPN(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	body, err := utils.ReadBody(r)
	if err != nil {
		response.ErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	signature := strings.TrimSpace(r.Header.Get(services.SignatureHeader))
	if signature == "" {
		h.Metrics.IPNProcessed("", "missing_signature")
		response.ErrorResponse(w, http.StatusBadRequest, "Signature missing")
		return
	}
	if !h.Verifier.Verify(body, signature) {
		h.Metrics.IPNProcessed("", "invalid_signature")
		logger.Warn("[IPN] HMAC signature does not match")
		response.ErrorResponse(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	notification, err := services.ParseNotification(body)
	if err != nil {
		response.FromError(w, err)
		return
	}

	result, err := h.Payments.ProcessNotification(r.Context(), notification)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.SuccessResponse(w, http.StatusOK, "IPN received and processed", map[string]interface{}{
		"payment_id":     result.Record.PaymentID,
		"payment_status": result.Record.Status,
		"outcome":        result.Outcome(),
	})
}
