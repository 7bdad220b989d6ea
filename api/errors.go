package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/vetclinic/practice-engine/generic"
	"github.com/vetclinic/practice-engine/treatment"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidJSON         = "invalid_json"
	CodeValidation          = "validation_failed"
	CodeNotFound            = "not_found"
	CodeInvalidTransition   = "invalid_transition"
	CodeExecutionLocked     = "execution_locked"
	CodeInsufficientBalance = "insufficient_balance"
	CodeRateLimited         = "rate_limited"
	CodeBodyTooLarge        = "body_too_large"
	CodeInternal            = "internal_error"
)

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule,omitempty"`
	Param string `json:"param,omitempty"`
}

// errorResponse maps a domain error to its HTTP status and body.
//
//	400  validation (validator tags, generic.ErrValidation, bad period)
//	404  employee or request not found
//	409  invalid status transition, execution locked by cooldown
//	422  insufficient sick-leave balance
//	500  everything else
func errorResponse(err error) (int, ErrorResponse) {
	var (
		verrs      validator.ValidationErrors
		fieldErr   *generic.ValidationError
		balanceErr *generic.InsufficientBalanceError
		cooldown   *treatment.CooldownError
	)
	switch {
	case errors.As(err, &verrs):
		details := make([]fieldError, len(verrs))
		for i, fe := range verrs {
			details[i] = fieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()}
		}
		return http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: CodeValidation, Details: details}
	case errors.As(err, &fieldErr) && fieldErr.Field != "":
		return http.StatusBadRequest, ErrorResponse{
			Error:   err.Error(),
			Code:    CodeValidation,
			Details: []fieldError{{Field: fieldErr.Field}},
		}
	case errors.Is(err, generic.ErrValidation), errors.Is(err, generic.ErrInvalidPeriod):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeValidation}
	case generic.IsNotFound(err):
		return http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: CodeNotFound}
	case errors.As(err, &cooldown):
		details := map[string]any{
			"last_executed_at":  formatTimestamp(cooldown.LastExecutedAt),
			"unlock_at":         formatTimestamp(cooldown.UnlockAt),
			"remaining_seconds": int64(cooldown.Remaining / time.Second),
			"remaining":         treatment.FormatRemaining(cooldown.Remaining),
		}
		if !cooldown.ExecutionAt.IsZero() {
			details["execution_at"] = formatTimestamp(cooldown.ExecutionAt)
		}
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Code: CodeExecutionLocked, Details: details}
	case errors.Is(err, generic.ErrExecutionLocked):
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Code: CodeExecutionLocked}
	case errors.Is(err, generic.ErrInvalidTransition):
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Code: CodeInvalidTransition}
	case errors.As(err, &balanceErr):
		return http.StatusUnprocessableEntity, ErrorResponse{
			Error: err.Error(),
			Code:  CodeInsufficientBalance,
			Details: map[string]any{
				"kind":      balanceErr.Kind,
				"available": balanceErr.Available,
				"requested": balanceErr.Requested,
			},
		}
	case errors.Is(err, generic.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: CodeInsufficientBalance}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: CodeInternal}
	}
}

// writeError logs server-side failures and writes the mapped response.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := errorResponse(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
