package api

import (
	"net/http"

	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/usecase"
)

type creditsRequest struct {
	Action   string        `json:"action"`
	Feature  model.Feature `json:"feature"`
	Quantity int           `json:"quantity"`
}

func (s *Server) handleGetCredits(w http.ResponseWriter, r *http.Request) {
	userID, err := UserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	balances, err := s.credits.Balances(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"credits": balances})
}

func (s *Server) handlePostCredits(w http.ResponseWriter, r *http.Request) {
	userID, err := UserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	var req creditsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Action != "consume" {
		writeError(w, http.StatusBadRequest, "invalid_action", "action must be consume")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	bal, err := s.credits.Consume(r.Context(), usecase.ConsumeRequest{UserID: userID, Feature: req.Feature, Quantity: req.Quantity})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feature": req.Feature, "balance": bal})
}

func (s *Server) handleEntitlements(w http.ResponseWriter, r *http.Request) {
	userID, err := UserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	e, err := s.entitlements.Snapshot(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
