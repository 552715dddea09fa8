package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"sme-compliance/internal/domain"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

// writeDomainError maps use case errors onto the HTTP taxonomy.
func writeDomainError(w http.ResponseWriter, err error) {
	var ge *domain.GatewayError
	switch {
	case errors.As(err, &ge):
		writeError(w, http.StatusBadRequest, "gateway_rejected", ge.Description)
	case errors.Is(err, domain.ErrInvalidPhone):
		writeError(w, http.StatusBadRequest, "invalid_phone", domain.ErrInvalidPhone.Error())
	case errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
	case errors.Is(err, domain.ErrUnknownPlan):
		writeError(w, http.StatusBadRequest, "unknown_plan", domain.ErrUnknownPlan.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
	case errors.Is(err, domain.ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, "insufficient_credits", domain.ErrInsufficientCredits.Error())
	case errors.Is(err, domain.ErrFeatureLocked):
		writeError(w, http.StatusForbidden, "feature_locked", domain.ErrFeatureLocked.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many payment attempts, try again later")
	case errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, "already_running", err.Error())
	case errors.Is(err, domain.ErrTrackingUnavailable):
		writeError(w, http.StatusInternalServerError, "tracking_unavailable", domain.ErrTrackingUnavailable.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// decodeJSON reads at most 1 MiB and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return false
	}
	return true
}
