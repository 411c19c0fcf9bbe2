package handlers

import (
	"net/http"

	"learning-platform/http/response"
	"learning-platform/services"
	"learning-platform/utils"
)

type saveInvoiceRequest struct {
	UserID           int64                `json:"user_id" validate:"required,gt=0"`
	InvoiceID        utils.FlexibleString `json:"invoice_id" validate:"required"`
	SubscriptionType string               `json:"subscription_type" validate:"max=32"`
	DurationMonths   int                  `json:"duration_months" validate:"required,min=1,max=1200"`
	PriceAmount      utils.FlexibleString `json:"price_amount"`
	PriceCurrency    string               `json:"price_currency" validate:"max=16"`
}

// SaveInvoice records an invoice created by the client checkout so later
// notifications can be matched to the student.
func (h *Handler) SaveInvoice(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req saveInvoiceRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		response.ErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.Validator.Validate(req); err != nil {
		response.FromError(w, err)
		return
	}

	record, err := h.Payments.SaveInvoice(r.Context(), services.SaveInvoiceRequest{
		UserID:           req.UserID,
		InvoiceID:        req.InvoiceID.String(),
		SubscriptionType: req.SubscriptionType,
		DurationMonths:   req.DurationMonths,
		PriceAmount:      req.PriceAmount.String(),
		PriceCurrency:    req.PriceCurrency,
	})
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.SuccessResponse(w, http.StatusCreated, "Invoice saved", record)
}
