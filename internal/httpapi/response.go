package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"invoicekit/internal/account"
	"invoicekit/internal/document"
	"invoicekit/internal/logger"
	"invoicekit/internal/numbering"
	"invoicekit/internal/payment"
)

const maxBodySize = 1 << 20

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message, RequestID: requestIDFromContext(r.Context())})
}

// writeDomainError maps err to a status code and logs server-side failures.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapDomainError(err)
	if status >= http.StatusInternalServerError {
		logger.WithContext(r.Context()).Error().
			Err(err).
			Str("code", code).
			Msg("Request failed")
	}
	writeError(w, r, status, code, err.Error())
}

func mapDomainError(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, account.ErrParse), errors.Is(err, account.ErrChecksum):
		return http.StatusBadRequest, "invalid_account"
	case errors.Is(err, payment.ErrValidation):
		return http.StatusBadRequest, "invalid_payment"
	case errors.Is(err, numbering.ErrUnknownKind), errors.Is(err, document.ErrInvalidDocument):
		return http.StatusBadRequest, "invalid_document"
	case errors.Is(err, numbering.ErrCapacityExceeded):
		return http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, numbering.ErrReservationOutstanding), errors.Is(err, numbering.ErrReservationHeld):
		return http.StatusConflict, "reservation_outstanding"
	case errors.Is(err, numbering.ErrPersist), errors.Is(err, document.ErrNotFinalized):
		return http.StatusInternalServerError, "persist_failed"
	case errors.Is(err, document.ErrExport):
		return http.StatusInternalServerError, "export_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decodeJSON reads a size-limited JSON body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}
