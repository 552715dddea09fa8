package api

import (
	"context"
	"errors"
	"math"
	"net/http"

	"sme-compliance/internal/domain"
	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/domain/payroll"
	"sme-compliance/internal/infra/logging"
	"sme-compliance/internal/usecase"
)

type grantCtxKey struct{}

// requireFeature lets the request through when the plan or a credit covers f.
func (s *Server) requireFeature(f model.Feature) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserID(r.Context())
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
				return
			}
			g, err := s.entitlements.Authorize(r.Context(), userID, f)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), grantCtxKey{}, g)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// settle consumes one credit when access came from a credit. It reports
// false after writing an error response.
func (s *Server) settle(w http.ResponseWriter, r *http.Request) bool {
	g, ok := r.Context().Value(grantCtxKey{}).(usecase.Grant)
	if !ok || !g.ViaCredit {
		return true
	}
	userID, _ := UserID(r.Context())
	if _, err := s.credits.Consume(r.Context(), usecase.ConsumeRequest{UserID: userID, Feature: g.Feature, Quantity: 1}); err != nil {
		if !errors.Is(err, domain.ErrInsufficientCredits) {
			l := logging.With(r.Context(), s.log)
			l.Error().Err(err).Str("feature", string(g.Feature)).Msg("credit settlement failed")
		}
		writeDomainError(w, err)
		return false
	}
	return true
}

type grossRequest struct {
	Gross float64 `json:"gross"`
}

type verifyRequest struct {
	Gross *float64        `json:"gross,omitempty"`
	Slip  *payroll.Result `json:"slip,omitempty"`
}

func validGross(g float64) bool {
	return g >= 0 && !math.IsNaN(g) && !math.IsInf(g, 0)
}

func (s *Server) handlePayrollCalculate(w http.ResponseWriter, r *http.Request) {
	var req grossRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validGross(req.Gross) {
		writeError(w, http.StatusBadRequest, "invalid_gross", "gross must be a non-negative amount")
		return
	}
	res := payroll.Calculate(req.Gross)
	if !s.settle(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handlePayrollVerify checks a submitted slip, or the calculator itself when only gross is given.
func (s *Server) handlePayrollVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var rep payroll.Report
	switch {
	case req.Slip != nil:
		if !validGross(req.Slip.Gross) {
			writeError(w, http.StatusBadRequest, "invalid_gross", "gross must be a non-negative amount")
			return
		}
		rep = payroll.Verify(*req.Slip)
	case req.Gross != nil:
		if !validGross(*req.Gross) {
			writeError(w, http.StatusBadRequest, "invalid_gross", "gross must be a non-negative amount")
			return
		}
		rep = payroll.VerifyGross(*req.Gross)
	default:
		writeError(w, http.StatusBadRequest, "invalid_body", "gross or slip is required")
		return
	}
	if !s.settle(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": rep, "mismatches": rep.Mismatches()})
}
