//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sme-compliance/internal/domain"
	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/domain/ports/adapter"
	"sme-compliance/internal/domain/ports/repository"
)

// -----------------------------
// Utilities
// -----------------------------

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func strPtr(s string) *string { return &s }

// =============================
// Repositories
// =============================

// ---- In-memory PaymentRepository ----

type MockPaymentRepo struct {
	mu         sync.Mutex
	data       map[string]*model.Payment
	byCheckout map[string]string
	byMerchant map[string]string

	CreateFunc         func(ctx context.Context, tx repository.Tx, p *model.Payment) error
	TransitionFunc     func(ctx context.Context, tx repository.Tx, id string, res model.PaymentResult) (bool, error)
	FindByCheckoutFunc func(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error)
	MerchantLookups    int
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{
		data:       map[string]*model.Payment{},
		byCheckout: map[string]string{},
		byMerchant: map[string]string{},
	}
}

func (m *MockPaymentRepo) Create(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, ok := m.byCheckout[p.CheckoutRequestID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *p
	m.data[p.ID] = &cp
	m.byCheckout[p.CheckoutRequestID] = p.ID
	if p.MerchantRequestID != "" {
		m.byMerchant[p.MerchantRequestID] = p.ID
	}
	return nil
}

func (m *MockPaymentRepo) get(id string) (*model.Payment, error) {
	p, ok := m.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

func (m *MockPaymentRepo) FindByCheckoutRequestID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	if m.FindByCheckoutFunc != nil {
		return m.FindByCheckoutFunc(ctx, tx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(m.byCheckout[id])
}

func (m *MockPaymentRepo) FindByMerchantRequestID(_ context.Context, _ repository.Tx, id string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MerchantLookups++
	return m.get(m.byMerchant[id])
}

// Transition mirrors the conditional UPDATE: only a pending row changes.
func (m *MockPaymentRepo) Transition(ctx context.Context, tx repository.Tx, id string, res model.PaymentResult) (bool, error) {
	if m.TransitionFunc != nil {
		return m.TransitionFunc(ctx, tx, id, res)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[id]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = res.Status
	p.MpesaReceipt = res.MpesaReceipt
	code, desc := res.ResultCode, res.ResultDesc
	p.ResultCode, p.ResultDesc = &code, &desc
	p.RawCallback = res.RawCallback
	p.UpdatedAt = time.Now()
	return true, nil
}

// ---- In-memory ProfileRepository ----

type MockProfileRepo struct {
	mu   sync.Mutex
	data map[string]*model.Profile

	ActivateFunc func(ctx context.Context, tx repository.Tx, userID, plan string, end time.Time) error
	Activations  int
}

var _ repository.ProfileRepository = (*MockProfileRepo)(nil)

func NewMockProfileRepo() *MockProfileRepo {
	return &MockProfileRepo{data: map[string]*model.Profile{}}
}

func (m *MockProfileRepo) Put(p *model.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.data[p.ID] = &cp
}

func (m *MockProfileRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockProfileRepo) ActivateSubscription(ctx context.Context, tx repository.Tx, userID, plan string, end time.Time) error {
	if m.ActivateFunc != nil {
		return m.ActivateFunc(ctx, tx, userID, plan, end)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[userID]
	if !ok {
		return domain.ErrNotFound
	}
	p.SubscriptionPlan = plan
	p.SubscriptionStatus = model.SubscriptionStatusActive
	e := end
	p.SubscriptionEndDate = &e
	m.Activations++
	return nil
}

func (m *MockProfileRepo) ListEndingBetween(_ context.Context, _ repository.Tx, from, to time.Time) ([]*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Profile
	for _, p := range m.data {
		if p.SubscriptionStatus != model.SubscriptionStatusActive || p.SubscriptionEndDate == nil {
			continue
		}
		if plan, ok := model.LookupPlan(p.SubscriptionPlan); !ok || !plan.IsRecurring() {
			continue
		}
		if p.SubscriptionEndDate.Before(from) || p.SubscriptionEndDate.After(to) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// ---- In-memory FeatureCreditRepository ----

type MockCreditRepo struct {
	mu       sync.Mutex
	balances map[string]int

	IncrementErr error
	ListErr      error
}

var _ repository.FeatureCreditRepository = (*MockCreditRepo)(nil)

func NewMockCreditRepo() *MockCreditRepo {
	return &MockCreditRepo{balances: map[string]int{}}
}

func creditKey(userID string, f model.Feature) string { return userID + "|" + string(f) }

func (m *MockCreditRepo) Set(userID string, f model.Feature, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[creditKey(userID, f)] = n
}

func (m *MockCreditRepo) ListByUser(_ context.Context, _ repository.Tx, userID string) ([]*model.FeatureCredit, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.FeatureCredit
	for _, f := range model.Features {
		if n, ok := m.balances[creditKey(userID, f)]; ok {
			out = append(out, &model.FeatureCredit{UserID: userID, Feature: f, CreditBalance: n})
		}
	}
	return out, nil
}

func (m *MockCreditRepo) Balance(_ context.Context, _ repository.Tx, userID string, f model.Feature) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[creditKey(userID, f)], nil
}

func (m *MockCreditRepo) Increment(_ context.Context, _ repository.Tx, userID string, f model.Feature, n int) (int, error) {
	if m.IncrementErr != nil {
		return 0, m.IncrementErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[creditKey(userID, f)] += n
	return m.balances[creditKey(userID, f)], nil
}

func (m *MockCreditRepo) Consume(_ context.Context, _ repository.Tx, userID string, f model.Feature, n int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := creditKey(userID, f)
	if m.balances[k] < n {
		return 0, domain.ErrInsufficientCredits
	}
	m.balances[k] -= n
	return m.balances[k], nil
}

// ---- In-memory NotificationRepository ----

type MockNotificationRepo struct {
	mu    sync.Mutex
	Saved []model.Notification

	SaveFunc func(ctx context.Context, tx repository.Tx, n *model.Notification) error
}

var _ repository.NotificationRepository = (*MockNotificationRepo)(nil)

func (m *MockNotificationRepo) Save(ctx context.Context, tx repository.Tx, n *model.Notification) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	m.Saved = append(m.Saved, *n)
	return nil
}

func (m *MockNotificationRepo) ExistsForUser(_ context.Context, _ repository.Tx, userID, kind string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.Saved {
		if n.UserID == userID && n.Type == kind {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockNotificationRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Saved)
}

// ---- In-memory AuditLogRepository ----

type MockAuditRepo struct {
	mu      sync.Mutex
	Entries []model.AuditEntry
}

var _ repository.AuditLogRepository = (*MockAuditRepo)(nil)

func (m *MockAuditRepo) Append(_ context.Context, _ repository.Tx, e *model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, *e)
	return nil
}

// Count returns how many entries carry event.
func (m *MockAuditRepo) Count(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.Entries {
		if e.Event == event {
			n++
		}
	}
	return n
}

func (m *MockAuditRepo) Last(event string) (model.AuditEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Entries) - 1; i >= 0; i-- {
		if m.Entries[i].Event == event {
			return m.Entries[i], true
		}
	}
	return model.AuditEntry{}, false
}

// ---- In-memory OutboxRepository ----

type MockOutboxRepo struct {
	mu   sync.Mutex
	Msgs []*model.OutboxMessage

	EnqueueFunc func(ctx context.Context, tx repository.Tx, msgs ...*model.OutboxMessage) error
}

var _ repository.OutboxRepository = (*MockOutboxRepo)(nil)

func (m *MockOutboxRepo) Enqueue(ctx context.Context, tx repository.Tx, msgs ...*model.OutboxMessage) error {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, tx, msgs...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Msgs = append(m.Msgs, msgs...)
	return nil
}

func (m *MockOutboxRepo) ClaimDue(context.Context, int, int) ([]*model.OutboxMessage, error) {
	return nil, nil
}
func (m *MockOutboxRepo) MarkSent(context.Context, string) error { return nil }
func (m *MockOutboxRepo) MarkFailed(context.Context, string, string, int, bool) error {
	return nil
}

// Kinds lists the kinds of all enqueued messages in order.
func (m *MockOutboxRepo) Kinds() []model.OutboxKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.OutboxKind, 0, len(m.Msgs))
	for _, msg := range m.Msgs {
		out = append(out, msg.Kind)
	}
	return out
}

// ---- TransactionManager ----

// MockTxManager runs fn under a mutex with NoTX. It does not roll back.
type MockTxManager struct {
	mu         sync.Mutex
	WithTxFunc func(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, fn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, repository.NoTX)
}

// =============================
// Adapters
// =============================

type MockGateway struct {
	mu    sync.Mutex
	Calls []adapter.STKPushRequest
	n     int

	STKPushFunc func(ctx context.Context, req adapter.STKPushRequest) (*adapter.STKPushResponse, error)
}

var _ adapter.MobileMoneyGateway = (*MockGateway)(nil)

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) STKPush(ctx context.Context, req adapter.STKPushRequest) (*adapter.STKPushResponse, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	m.n++
	n := m.n
	m.mu.Unlock()
	if m.STKPushFunc != nil {
		return m.STKPushFunc(ctx, req)
	}
	return &adapter.STKPushResponse{
		MerchantRequestID: fmt.Sprintf("mr-%d", n),
		CheckoutRequestID: fmt.Sprintf("ws_CO_%d", n),
		ResponseCode:      "0",
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil
}

type MockLimiter struct {
	AllowFunc func(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Keys      []string
}

var _ adapter.RateLimiter = (*MockLimiter)(nil)

func (m *MockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.Keys = append(m.Keys, key)
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, key, limit, window)
	}
	return true, nil
}

type MockAlerter struct {
	mu     sync.Mutex
	Alerts []string
}

var _ adapter.OpsAlerter = (*MockAlerter)(nil)

func (m *MockAlerter) Alert(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, text)
	return nil
}

func (m *MockAlerter) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Alerts)
}
