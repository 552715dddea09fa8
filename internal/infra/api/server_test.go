//go:build !integration

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sme-compliance/internal/domain"
	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/domain/ports/adapter"
	"sme-compliance/internal/domain/ports/repository"
	"sme-compliance/internal/usecase"
)

// --- stubs ---

type stubPayments struct {
	initiate func(req usecase.InitiateRequest) (*model.Payment, *adapter.STKPushResponse, error)
	get      func(userID, id string) (*model.Payment, error)
}

func (s *stubPayments) Initiate(_ context.Context, req usecase.InitiateRequest) (*model.Payment, *adapter.STKPushResponse, error) {
	return s.initiate(req)
}

func (s *stubPayments) Get(_ context.Context, userID, id string) (*model.Payment, error) {
	return s.get(userID, id)
}

type stubReconcile struct {
	calls int
	out   usecase.Outcome
	err   error
}

func (s *stubReconcile) HandleCallback(context.Context, []byte) (usecase.Outcome, error) {
	s.calls++
	return s.out, s.err
}

type stubCredits struct {
	mu       sync.Mutex
	balances map[model.Feature]int
	consumed []usecase.ConsumeRequest
}

func (s *stubCredits) Balances(context.Context, string) (map[model.Feature]int, error) {
	return s.balances, nil
}

func (s *stubCredits) Consume(_ context.Context, req usecase.ConsumeRequest) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !req.Feature.Valid() {
		return 0, domain.ErrInvalidArgument
	}
	if s.balances[req.Feature] < req.Quantity {
		return 0, domain.ErrInsufficientCredits
	}
	s.balances[req.Feature] -= req.Quantity
	s.consumed = append(s.consumed, req)
	return s.balances[req.Feature], nil
}

type stubEntitlements struct {
	grant usecase.Grant
	err   error
}

func (s *stubEntitlements) Snapshot(context.Context, string) (*model.Entitlement, error) {
	return &model.Entitlement{Plan: "starter", State: model.StateActive}, nil
}

func (s *stubEntitlements) Authorize(_ context.Context, _ string, f model.Feature) (usecase.Grant, error) {
	if s.err != nil {
		return usecase.Grant{}, s.err
	}
	g := s.grant
	g.Feature = f
	return g, nil
}

type stubReminders struct{ calls int }

func (s *stubReminders) RunOnce(context.Context) (usecase.ReminderStats, error) {
	s.calls++
	return usecase.ReminderStats{Candidates: 1, Sent: 1}, nil
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (m *memAudit) Append(_ context.Context, _ repository.Tx, e *model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e.Event)
	return nil
}

// --- harness ---

type harness struct {
	srv       http.Handler
	auth      *Authenticator
	payments  *stubPayments
	reconcile *stubReconcile
	credits   *stubCredits
	ents      *stubEntitlements
	reminders *stubReminders
	audit     *memAudit
}

func newHarness(t *testing.T, policy usecase.CallbackPolicy) *harness {
	t.Helper()
	log := zerolog.Nop()
	h := &harness{
		auth: NewAuthenticator("test-secret", "authenticated"),
		payments: &stubPayments{
			initiate: func(req usecase.InitiateRequest) (*model.Payment, *adapter.STKPushResponse, error) {
				return &model.Payment{ID: "pay-1", Status: model.PaymentStatusPending, CheckoutRequestID: "ws_CO_1", MerchantRequestID: "mr-1"},
					&adapter.STKPushResponse{CheckoutRequestID: "ws_CO_1", MerchantRequestID: "mr-1", ResponseCode: "0", CustomerMessage: "Success"}, nil
			},
			get: func(string, string) (*model.Payment, error) { return nil, domain.ErrNotFound },
		},
		reconcile: &stubReconcile{out: usecase.Outcome{Result: usecase.OutcomeCompleted}},
		credits:   &stubCredits{balances: map[model.Feature]int{model.FeaturePayroll: 1, model.FeatureScan: 0}},
		ents:      &stubEntitlements{},
		reminders: &stubReminders{},
		audit:     &memAudit{},
	}
	s := NewServer(Deps{
		Payments:     h.payments,
		Reconcile:    h.reconcile,
		Verifier:     usecase.NewCallbackVerifier(policy),
		Credits:      h.credits,
		Entitlements: h.ents,
		Reminders:    h.reminders,
		Audit:        usecase.NewAuditor(h.audit, &log),
		Auth:         h.auth,
		Health: map[string]HealthCheck{
			"db": func(context.Context) error { return nil },
		},
	}, Options{CronSecret: "cron-secret"}, &log)
	h.srv = s.Router()
	return h
}

func (h *harness) do(t *testing.T, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.srv.ServeHTTP(rec, req)
	return rec
}

func (h *harness) userHeader(t *testing.T, userID string) map[string]string {
	t.Helper()
	tok, err := h.auth.Mint(userID, time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + tok}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

// --- tests ---

func TestCallback_Verification(t *testing.T) {
	policy := usecase.CallbackPolicy{Secret: "s3cret", AllowedIPs: []string{"196.201.214.0/24"}}

	t.Run("untrusted source is rejected and audited", func(t *testing.T) {
		h := newHarness(t, policy)
		rec := h.do(t, http.MethodPost, "/api/v1/payments/mpesa/callback", `{}`, map[string]string{
			"X-Mpesa-Callback-Secret": "nope",
			"X-Forwarded-For":         "196.201.214.200",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Zero(t, h.reconcile.calls)
		assert.Contains(t, h.audit.events, model.EventCallbackRejected)
	})

	t.Run("trusted source is always acknowledged", func(t *testing.T) {
		h := newHarness(t, policy)
		h.reconcile.err = errors.New("db down")
		h.reconcile.out = usecase.Outcome{Result: usecase.OutcomeError}

		rec := h.do(t, http.MethodPost, "/api/v1/payments/mpesa/callback", `{"Body":{}}`, map[string]string{
			"X-Mpesa-Callback-Secret": "s3cret",
			"X-Forwarded-For":         "196.201.214.200, 10.0.0.1",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Accepted"}`, rec.Body.String())
		assert.Equal(t, 1, h.reconcile.calls)
		assert.Contains(t, h.audit.events, model.EventCallbackAccepted)
	})
}

func TestSTKPush(t *testing.T) {
	t.Run("requires a session", func(t *testing.T) {
		h := newHarness(t, usecase.CallbackPolicy{})
		rec := h.do(t, http.MethodPost, "/api/v1/payments/mpesa/stk-push", `{}`, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = h.do(t, http.MethodPost, "/api/v1/payments/mpesa/stk-push", `{}`, map[string]string{"Authorization": "Bearer garbage"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("starts a payment for the session user", func(t *testing.T) {
		h := newHarness(t, usecase.CallbackPolicy{})
		var got usecase.InitiateRequest
		inner := h.payments.initiate
		h.payments.initiate = func(req usecase.InitiateRequest) (*model.Payment, *adapter.STKPushResponse, error) {
			got = req
			return inner(req)
		}

		rec := h.do(t, http.MethodPost, "/api/v1/payments/mpesa/stk-push",
			`{"phone_number":"0712345678","amount":999,"plan":"starter"}`, h.userHeader(t, "user-1"))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "user-1", got.UserID)
		body := decode(t, rec)
		assert.Equal(t, "pay-1", body["payment_id"])
		assert.Equal(t, "ws_CO_1", body["checkout_request_id"])
		assert.Equal(t, "pending", body["status"])
	})

	t.Run("maps errors onto statuses", func(t *testing.T) {
		cases := []struct {
			err  error
			code int
			msg  string
		}{
			{domain.ErrInvalidPhone, http.StatusBadRequest, domain.ErrInvalidPhone.Error()},
			{&domain.GatewayError{Status: 400, Code: "400.002.02", Description: "Invalid Amount"}, http.StatusBadRequest, "Invalid Amount"},
			{domain.ErrRateLimited, http.StatusTooManyRequests, ""},
			{domain.ErrTrackingUnavailable, http.StatusInternalServerError, "payment tracking is unavailable"},
		}
		for _, tc := range cases {
			h := newHarness(t, usecase.CallbackPolicy{})
			err := tc.err
			h.payments.initiate = func(usecase.InitiateRequest) (*model.Payment, *adapter.STKPushResponse, error) { return nil, nil, err }

			rec := h.do(t, http.MethodPost, "/api/v1/payments/mpesa/stk-push",
				`{"phone_number":"0712345678","amount":999,"plan":"starter"}`, h.userHeader(t, "u"))

			assert.Equal(t, tc.code, rec.Code)
			if tc.msg != "" {
				assert.Equal(t, tc.msg, decode(t, rec)["message"])
			}
		}
	})
}

func TestGetPayment_NotFound(t *testing.T) {
	h := newHarness(t, usecase.CallbackPolicy{})
	rec := h.do(t, http.MethodGet, "/api/v1/payments/abc", "", h.userHeader(t, "u"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCredits(t *testing.T) {
	h := newHarness(t, usecase.CallbackPolicy{})
	user := h.userHeader(t, "u")

	rec := h.do(t, http.MethodGet, "/api/v1/credits", "", user)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"credits":{"payroll":1,"scan":0}}`, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/v1/credits", `{"action":"consume","feature":"payroll","quantity":1}`, user)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["balance"])

	rec = h.do(t, http.MethodPost, "/api/v1/credits", `{"action":"consume","feature":"payroll","quantity":1}`, user)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "insufficient_credits", decode(t, rec)["error"])

	rec = h.do(t, http.MethodPost, "/api/v1/credits", `{"action":"refund","feature":"payroll","quantity":1}`, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/credits", `{"action":"consume","feature":"teleport","quantity":1}`, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPayroll_FeatureGate(t *testing.T) {
	t.Run("plan access does not consume credits", func(t *testing.T) {
		h := newHarness(t, usecase.CallbackPolicy{})
		rec := h.do(t, http.MethodPost, "/api/v1/payroll/calculate", `{"gross":50000}`, h.userHeader(t, "u"))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.EqualValues(t, 50000, decode(t, rec)["gross"])
		assert.Empty(t, h.credits.consumed)
	})

	t.Run("credit access consumes one credit", func(t *testing.T) {
		h := newHarness(t, usecase.CallbackPolicy{})
		h.ents.grant = usecase.Grant{ViaCredit: true}

		rec := h.do(t, http.MethodPost, "/api/v1/payroll/verify", `{"gross":120000}`, h.userHeader(t, "u"))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		report := decode(t, rec)["report"].(map[string]any)
		assert.Equal(t, true, report["passed"])
		require.Len(t, h.credits.consumed, 1)
		assert.Equal(t, model.FeaturePayroll, h.credits.consumed[0].Feature)
	})

	t.Run("locked feature", func(t *testing.T) {
		h := newHarness(t, usecase.CallbackPolicy{})
		h.ents.err = domain.ErrFeatureLocked

		rec := h.do(t, http.MethodPost, "/api/v1/payroll/calculate", `{"gross":50000}`, h.userHeader(t, "u"))

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("invalid gross", func(t *testing.T) {
		h := newHarness(t, usecase.CallbackPolicy{})
		rec := h.do(t, http.MethodPost, "/api/v1/payroll/calculate", `{"gross":-1}`, h.userHeader(t, "u"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCronReminders(t *testing.T) {
	h := newHarness(t, usecase.CallbackPolicy{})

	rec := h.do(t, http.MethodPost, "/api/v1/cron/reminders", "", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, h.audit.events, model.EventCronRejected)

	rec = h.do(t, http.MethodPost, "/api/v1/cron/reminders", "", map[string]string{"Authorization": "Bearer cron-secret"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, h.reminders.calls)
	assert.EqualValues(t, 1, decode(t, rec)["sent"])
}

func TestHealth(t *testing.T) {
	h := newHarness(t, usecase.CallbackPolicy{})
	rec := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
