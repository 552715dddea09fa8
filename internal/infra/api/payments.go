package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/infra/logging"
	"sme-compliance/internal/infra/metrics"
	"sme-compliance/internal/usecase"
)

const maxCallbackBytes = 64 << 10

type stkPushRequest struct {
	PhoneNumber string `json:"phone_number"`
	Amount      int64  `json:"amount"`
	Plan        string `json:"plan"`
}

type stkPushResponse struct {
	PaymentID         string `json:"payment_id"`
	Status            string `json:"status"`
	CheckoutRequestID string `json:"checkout_request_id"`
	MerchantRequestID string `json:"merchant_request_id"`
	CustomerMessage   string `json:"customer_message,omitempty"`
}

type paymentView struct {
	ID                string     `json:"id"`
	Status            string     `json:"status"`
	Amount            int64      `json:"amount"`
	Plan              string     `json:"plan"`
	PhoneNumber       string     `json:"phone_number"`
	CheckoutRequestID string     `json:"checkout_request_id"`
	MpesaReceipt      *string    `json:"mpesa_receipt,omitempty"`
	ResultCode        *int       `json:"result_code,omitempty"`
	ResultDesc        *string    `json:"result_desc,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

// callbackAck is the only body the gateway ever receives after verification.
var callbackAck = map[string]any{"ResultCode": 0, "ResultDesc": "Accepted"}

func (s *Server) handleSTKPush(w http.ResponseWriter, r *http.Request) {
	userID, err := UserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	var req stkPushRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, ack, err := s.payments.Initiate(r.Context(), usecase.InitiateRequest{
		UserID:   userID,
		Phone:    req.PhoneNumber,
		Amount:   req.Amount,
		PlanCode: req.Plan,
	})
	if err != nil {
		l := logging.With(r.Context(), s.log)
		l.Warn().Err(err).Str("plan", req.Plan).Str("phone", logging.Redact(req.PhoneNumber, s.opts.Dev)).Msg("stk push not started")
		writeDomainError(w, err)
		return
	}
	metrics.IncPayment(string(model.PaymentStatusPending))
	writeJSON(w, http.StatusOK, stkPushResponse{
		PaymentID:         p.ID,
		Status:            string(p.Status),
		CheckoutRequestID: p.CheckoutRequestID,
		MerchantRequestID: p.MerchantRequestID,
		CustomerMessage:   ack.CustomerMessage,
	})
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	userID, err := UserID(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	p, err := s.payments.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	v := paymentView{
		ID:                p.ID,
		Status:            string(p.Status),
		Amount:            p.Amount,
		Plan:              p.PlanCode,
		PhoneNumber:       p.PhoneNumber,
		CheckoutRequestID: p.CheckoutRequestID,
		MpesaReceipt:      p.MpesaReceipt,
		ResultCode:        p.ResultCode,
		ResultDesc:        p.ResultDesc,
		CreatedAt:         p.CreatedAt,
	}
	if !p.UpdatedAt.IsZero() {
		v.UpdatedAt = &p.UpdatedAt
	}
	writeJSON(w, http.StatusOK, v)
}

// handleCallback answers 401 only when the source is untrusted. Every
// verified delivery is acknowledged whatever happened downstream.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	l := logging.With(ctx, s.log)

	verdict := s.verifier.Verify(usecase.CallbackSource{
		PresentedSecret: r.Header.Get(s.opts.CallbackSecretHeader),
		ForwardedFor:    r.Header.Get("X-Forwarded-For"),
		RealIP:          r.Header.Get("X-Real-IP"),
	})
	if !verdict.Trusted {
		s.audit.Record(ctx, nil, model.EventCallbackRejected, model.AuditWarning, "", map[string]any{
			"reason":    verdict.Reason,
			"source_ip": verdict.SourceIP,
		})
		l.Warn().Str("reason", verdict.Reason).Str("source_ip", verdict.SourceIP).Msg("callback rejected")
		metrics.ObserveCallback("rejected", time.Since(start))
		writeError(w, http.StatusUnauthorized, "unauthorized", "untrusted callback source")
		return
	}
	s.audit.Record(ctx, nil, model.EventCallbackAccepted, model.AuditInfo, "", map[string]any{
		"reason":    verdict.Reason,
		"source_ip": verdict.SourceIP,
	})

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes+1))
	if err != nil || len(raw) > maxCallbackBytes {
		if err == nil {
			err = errors.New("callback body too large")
		}
		l.Warn().Err(err).Msg("callback body unreadable")
		raw = nil
	}

	out, err := s.reconcile.HandleCallback(ctx, raw)
	if err != nil {
		l.Error().Err(err).Msg("callback reconciliation error")
	}
	if out.Payment != nil {
		switch out.Result {
		case usecase.OutcomeCompleted:
			metrics.IncPayment(string(model.PaymentStatusCompleted))
			metrics.AddPaymentRevenue("KES", out.Payment.Amount)
		case usecase.OutcomeFailed:
			metrics.IncPayment(string(model.PaymentStatusFailed))
		}
	}
	metrics.ObserveCallback(out.Result, time.Since(start))
	writeJSON(w, http.StatusOK, callbackAck)
}
