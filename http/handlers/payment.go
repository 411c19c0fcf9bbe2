package handlers

import (
	"net/http"
	"strconv"

	"learning-platform/http/response"
	"learning-platform/logger"
	"learning-platform/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// PaymentHistory lists the caller's payment records.
func (h *Handler) PaymentHistory(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/payments/" {
		response.ErrorResponse(w, http.StatusNotFound, "Not found.")
		return
	}
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}

	records, err := h.Payments.History(r.Context(), p)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.SuccessResponse(w, http.StatusOK, "", records)
}

// ExportPayments returns the caller's payment history as an Excel workbook.
func (h *Handler) ExportPayments(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}

	records, err := h.Payments.History(r.Context(), p)
	if err != nil {
		response.FromError(w, err)
		return
	}
	data, err := services.PaymentHistoryWorkbook(records)
	if err != nil {
		response.FromError(w, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="payments.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.Warn("Writing payment export: %v", err)
	}
}
