package response

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "learning-platform/errors"
	"learning-platform/logger"
	"learning-platform/utils"
)

// StandardResponse represents the standard API response structure
type StandardResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SuccessResponse sends a success response with given status code, message, and data
func SuccessResponse(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	response := StandardResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	}
	SendJSON(w, statusCode, response)
}

// ErrorResponse sends an error response with given status code and error message
func ErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string) {
	response := StandardResponse{
		Status: "error",
		Error:  errorMsg,
	}
	SendJSON(w, statusCode, response)
}

// ValidationErrorResponse sends a 400 listing the failing fields under data.
func ValidationErrorResponse(w http.ResponseWriter, verr *utils.ValidationError) {
	SendJSON(w, http.StatusBadRequest, StandardResponse{
		Status: "error",
		Error:  verr.Error(),
		Data:   verr.Errors,
	})
}

// FromError writes err with the status code of its kind. Internal failures
// are logged and answered with a generic message.
func FromError(w http.ResponseWriter, err error) {
	var verr *utils.ValidationError
	if errors.As(err, &verr) {
		ValidationErrorResponse(w, verr)
		return
	}

	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed: %v", err)
		ErrorResponse(w, status, "Internal server error")
		return
	}
	if apperrors.IsKind(err, apperrors.SignatureInvalid) {
		ErrorResponse(w, status, "Invalid signature")
		return
	}
	ErrorResponse(w, status, publicMessage(err))
}

// StatusFor maps an error kind to an HTTP status code.
func StatusFor(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.Invalid, apperrors.SignatureInvalid:
		return http.StatusBadRequest
	case apperrors.Unauthorized:
		return http.StatusUnauthorized
	case apperrors.Forbidden:
		return http.StatusForbidden
	case apperrors.NotFound:
		return http.StatusNotFound
	case apperrors.Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage drops wrapped causes so driver details never reach clients.
func publicMessage(err error) string {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}

// SendJSON encodes and sends a JSON response
func SendJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}
