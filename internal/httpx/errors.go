package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
)

const (
	codeInvalidJSON       = "invalid_json"
	codeInvalidInput      = "invalid_input"
	codeNotFound          = "not_found"
	codeInvalidState      = "invalid_state"
	codeAlreadyClaimed    = "already_claimed"
	codeInsufficientStock = "insufficient_stock"
	codeIneligible        = "ineligible"
	codeConflict          = "conflict"
	codeInternalError     = "internal_error"
)

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

type ineligibleDetails struct {
	Reason           string `json:"reason"`
	DaysRemaining    int    `json:"days_remaining"`
	NextEligibleDate string `json:"next_eligible_date,omitempty"`
}

type shortageDetails struct {
	Required  int `json:"required"`
	Available int `json:"available"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeDomainError maps workflow errors onto status codes. Anything it does
// not recognize is logged and hidden behind a 500.
func writeDomainError(w http.ResponseWriter, log *zap.Logger, err error) {
	var (
		inel  *bloodbank.IneligibleError
		short *bloodbank.InsufficientStockError
	)
	switch {
	case errors.As(err, &inel):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: err.Error(),
			Code:  codeIneligible,
			Details: ineligibleDetails{
				Reason:           inel.Reason,
				DaysRemaining:    inel.DaysRemaining,
				NextEligibleDate: inel.NextEligibleDate,
			},
		})
	case errors.As(err, &short):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:   err.Error(),
			Code:    codeInsufficientStock,
			Details: shortageDetails{Required: short.Required, Available: short.Available},
		})
	case errors.Is(err, bloodbank.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, codeInvalidInput, err.Error())
	case errors.Is(err, bloodbank.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, bloodbank.ErrAlreadyClaimed):
		writeError(w, http.StatusConflict, codeAlreadyClaimed, err.Error())
	case errors.Is(err, bloodbank.ErrInsufficientStock):
		writeError(w, http.StatusConflict, codeInsufficientStock, err.Error())
	case errors.Is(err, bloodbank.ErrInvalidState):
		writeError(w, http.StatusConflict, codeInvalidState, err.Error())
	case errors.Is(err, bloodbank.ErrStaleSnapshot), errors.Is(err, bloodbank.ErrDuplicateID):
		writeError(w, http.StatusConflict, codeConflict, "concurrent update, retry")
	case errors.Is(err, bloodbank.ErrIneligible):
		writeError(w, http.StatusUnprocessableEntity, codeIneligible, err.Error())
	default:
		log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
