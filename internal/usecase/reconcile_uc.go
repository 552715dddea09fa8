package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/rs/zerolog"

	"sme-compliance/internal/domain"
	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/domain/ports/adapter"
	"sme-compliance/internal/domain/ports/repository"
	"sme-compliance/internal/infra/logging"
)

// Reconciliation results.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeDuplicate = "duplicate"
	OutcomeUnmatched = "unmatched"
	OutcomeMalformed = "malformed"
	OutcomeError     = "error"
)

type Outcome struct {
	Result  string
	Payment *model.Payment // nil when unmatched or malformed
}

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

type ReconcileUseCase interface {
	// HandleCallback applies one gateway callback. Replays and concurrent
	// deliveries of the same callback produce side effects at most once.
	HandleCallback(ctx context.Context, raw []byte) (Outcome, error)
}

type ReconcileOptions struct {
	// PublishEvents also enqueues an event-bus message next to the webhook.
	PublishEvents bool
	// ProductName appears in SMS and email copy.
	ProductName string
}

type reconcileUC struct {
	tm            repository.TransactionManager
	payments      repository.PaymentRepository
	profiles      repository.ProfileRepository
	credits       repository.FeatureCreditRepository
	notifications repository.NotificationRepository
	outbox        repository.OutboxRepository
	alerts        adapter.OpsAlerter
	audit         *Auditor
	opts          ReconcileOptions
	log           *zerolog.Logger
	now           func() time.Time
}

func NewReconcileUseCase(
	tm repository.TransactionManager,
	payments repository.PaymentRepository,
	profiles repository.ProfileRepository,
	credits repository.FeatureCreditRepository,
	notifications repository.NotificationRepository,
	outbox repository.OutboxRepository,
	alerts adapter.OpsAlerter,
	audit *Auditor,
	opts ReconcileOptions,
	logger *zerolog.Logger,
) *reconcileUC {
	if opts.ProductName == "" {
		opts.ProductName = "SME Compliance"
	}
	l := logger.With().Str("component", "reconcile_uc").Logger()
	return &reconcileUC{
		tm:            tm,
		payments:      payments,
		profiles:      profiles,
		credits:       credits,
		notifications: notifications,
		outbox:        outbox,
		alerts:        alerts,
		audit:         audit,
		opts:          opts,
		log:           &l,
		now:           time.Now,
	}
}

func (u *reconcileUC) HandleCallback(ctx context.Context, raw []byte) (Outcome, error) {
	defer logging.TraceDuration(u.log, "ReconcileUC.HandleCallback")()

	cb, err := model.ParseSTKCallback(raw)
	if err != nil {
		u.audit.Record(ctx, nil, model.EventCallbackMalformed, model.AuditWarning, "", map[string]any{
			"error": err.Error(),
			"bytes": len(raw),
		})
		return Outcome{Result: OutcomeMalformed}, nil
	}
	ids := map[string]any{
		"checkout_request_id": cb.CheckoutRequestID,
		"merchant_request_id": cb.MerchantRequestID,
		"result_code":         cb.ResultCode,
	}

	p, err := u.match(ctx, cb)
	if errors.Is(err, domain.ErrNotFound) {
		u.audit.Record(ctx, nil, model.EventCallbackUnmatched, model.AuditWarning, "", ids)
		if cb.Succeeded() {
			u.alert(ctx, fmt.Sprintf("Paid callback with no matching payment: checkout=%s merchant=%s receipt=%s amount=%d",
				cb.CheckoutRequestID, cb.MerchantRequestID, cb.ReceiptNumber(), cb.Amount()))
		}
		u.publishUnmatched(ctx, cb, ids)
		return Outcome{Result: OutcomeUnmatched}, nil
	}
	if err != nil {
		return u.fail(ctx, "", ids, fmt.Errorf("match payment: %w", err))
	}

	log := u.log.With().Str("payment_id", p.ID).Str("checkout_request_id", p.CheckoutRequestID).Logger()
	if p.Status.IsTerminal() {
		u.audit.Record(ctx, nil, model.EventCallbackDuplicate, model.AuditInfo, p.OwnerID(), withPayment(ids, p))
		return Outcome{Result: OutcomeDuplicate, Payment: p}, nil
	}

	if cb.Succeeded() {
		return u.complete(ctx, &log, p, cb, raw, ids)
	}
	return u.failPayment(ctx, &log, p, cb, raw, ids)
}

// match prefers the checkout id and falls back to the merchant id.
func (u *reconcileUC) match(ctx context.Context, cb *model.STKCallback) (*model.Payment, error) {
	if cb.CheckoutRequestID != "" {
		p, err := u.payments.FindByCheckoutRequestID(ctx, nil, cb.CheckoutRequestID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if cb.MerchantRequestID != "" {
		return u.payments.FindByMerchantRequestID(ctx, nil, cb.MerchantRequestID)
	}
	return nil, domain.ErrNotFound
}

func (u *reconcileUC) complete(ctx context.Context, log *zerolog.Logger, p *model.Payment, cb *model.STKCallback, raw []byte, ids map[string]any) (Outcome, error) {
	receipt := cb.ReceiptNumber()
	res := model.PaymentResult{
		Status:      model.PaymentStatusCompleted,
		ResultCode:  cb.ResultCode,
		ResultDesc:  cb.ResultDesc,
		RawCallback: raw,
	}
	if receipt != "" {
		res.MpesaReceipt = &receipt
	}
	plan, known := model.LookupPlan(p.PlanCode)
	userID := p.OwnerID()
	phone := cb.PhoneNumber()

	var email string
	if userID != "" {
		if prof, err := u.profiles.FindByID(ctx, nil, userID); err == nil && prof.Email != nil {
			email = *prof.Email
		} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Warn().Err(err).Msg("profile lookup for receipt failed")
		}
	}

	now := u.now().UTC()
	completed := *p
	completed.Status = res.Status
	completed.MpesaReceipt = res.MpesaReceipt
	completed.ResultCode = &res.ResultCode
	completed.ResultDesc = &res.ResultDesc
	completed.RawCallback = raw
	completed.UpdatedAt = now

	var changed bool
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		changed, err = u.payments.Transition(ctx, tx, p.ID, res)
		if err != nil || !changed {
			return err
		}
		msgs, err := u.completionMessages(&completed, plan, phone, email, now)
		if err != nil {
			return err
		}
		return u.outbox.Enqueue(ctx, tx, msgs...)
	})
	if err != nil {
		return u.fail(ctx, userID, withPayment(ids, p), fmt.Errorf("complete payment: %w", err))
	}
	if !changed {
		u.audit.Record(ctx, nil, model.EventCallbackDuplicate, model.AuditInfo, userID, withPayment(ids, p))
		return Outcome{Result: OutcomeDuplicate, Payment: p}, nil
	}

	meta := withPayment(ids, &completed)
	meta["receipt"] = receipt
	if paid := cb.Amount(); paid != 0 && paid != p.Amount {
		meta["amount_mismatch"] = paid
	}
	u.audit.Record(ctx, nil, model.EventPaymentCompleted, model.AuditInfo, userID, meta)
	log.Info().Str("receipt", receipt).Msg("payment completed")

	if !known {
		u.audit.Record(ctx, nil, model.EventSubscriptionFailed, model.AuditError, userID, map[string]any{
			"payment_id": p.ID,
			"plan":       p.PlanCode,
			"reason":     "unknown_plan",
		})
		log.Error().Str("plan", p.PlanCode).Msg("completed payment references unknown plan")
	}

	// fan-out steps are independent; a failure is audited and the next step still runs
	u.activate(ctx, userID, plan, now)
	u.topUp(ctx, userID, plan)
	u.recordNotification(ctx, userID, phone, &completed, plan)

	if phone == "" {
		log.Debug().Msg("no phone in callback metadata; sms skipped")
	}
	if email != "" {
		u.audit.Record(ctx, nil, model.EventReceiptEmailQueued, model.AuditInfo, userID, map[string]any{"payment_id": p.ID})
	} else {
		u.audit.Record(ctx, nil, model.EventReceiptEmailSkipped, model.AuditInfo, userID, map[string]any{"payment_id": p.ID, "reason": "no_email"})
	}
	u.audit.Record(ctx, nil, model.EventWebhookQueued, model.AuditInfo, userID, map[string]any{"payment_id": p.ID, "event": model.IntegrationPaymentCompleted})

	return Outcome{Result: OutcomeCompleted, Payment: &completed}, nil
}

func (u *reconcileUC) failPayment(ctx context.Context, log *zerolog.Logger, p *model.Payment, cb *model.STKCallback, raw []byte, ids map[string]any) (Outcome, error) {
	res := model.PaymentResult{
		Status:      model.PaymentStatusFailed,
		ResultCode:  cb.ResultCode,
		ResultDesc:  cb.ResultDesc,
		RawCallback: raw,
	}
	now := u.now().UTC()
	failed := *p
	failed.Status = res.Status
	failed.ResultCode = &res.ResultCode
	failed.ResultDesc = &res.ResultDesc
	failed.RawCallback = raw
	failed.UpdatedAt = now

	var changed bool
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		changed, err = u.payments.Transition(ctx, tx, p.ID, res)
		if err != nil || !changed {
			return err
		}
		msgs, err := u.eventMessages(integrationEvent(model.IntegrationPaymentFailed, &failed, now))
		if err != nil {
			return err
		}
		return u.outbox.Enqueue(ctx, tx, msgs...)
	})
	if err != nil {
		return u.fail(ctx, p.OwnerID(), withPayment(ids, p), fmt.Errorf("fail payment: %w", err))
	}
	if !changed {
		u.audit.Record(ctx, nil, model.EventCallbackDuplicate, model.AuditInfo, p.OwnerID(), withPayment(ids, p))
		return Outcome{Result: OutcomeDuplicate, Payment: p}, nil
	}

	meta := withPayment(ids, &failed)
	meta["result_desc"] = cb.ResultDesc
	u.audit.Record(ctx, nil, model.EventPaymentFailed, model.AuditWarning, p.OwnerID(), meta)
	u.audit.Record(ctx, nil, model.EventWebhookQueued, model.AuditInfo, p.OwnerID(), map[string]any{"payment_id": p.ID, "event": model.IntegrationPaymentFailed})
	log.Info().Int("result_code", cb.ResultCode).Str("result_desc", cb.ResultDesc).Msg("payment failed")
	return Outcome{Result: OutcomeFailed, Payment: &failed}, nil
}

// publishUnmatched tells integrators about a callback that has no payment row.
// Nothing is written to payments; an enqueue failure is audited and swallowed.
func (u *reconcileUC) publishUnmatched(ctx context.Context, cb *model.STKCallback, ids map[string]any) {
	name := model.IntegrationPaymentFailed
	if cb.Succeeded() {
		name = model.IntegrationPaymentCompleted
	}
	msgs, err := u.eventMessages(unmatchedEvent(name, cb, u.now().UTC()))
	if err == nil {
		err = u.outbox.Enqueue(ctx, nil, msgs...)
	}
	if err != nil {
		_, _ = u.fail(ctx, "", ids, fmt.Errorf("queue unmatched webhook: %w", err))
		return
	}
	meta := make(map[string]any, len(ids)+2)
	for k, v := range ids {
		meta[k] = v
	}
	meta["event"] = name
	meta["matched"] = false
	u.audit.Record(ctx, nil, model.EventWebhookQueued, model.AuditInfo, "", meta)
}

// fail audits an internal error. The caller still acknowledges the gateway.
func (u *reconcileUC) fail(ctx context.Context, userID string, meta map[string]any, err error) (Outcome, error) {
	m := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		m[k] = v
	}
	m["error"] = err.Error()
	u.audit.Record(ctx, nil, model.EventCallbackError, model.AuditError, userID, m)
	u.log.Error().Err(err).Msg("callback reconciliation failed")
	return Outcome{Result: OutcomeError}, err
}

func (u *reconcileUC) activate(ctx context.Context, userID string, plan model.Plan, now time.Time) {
	if !plan.IsRecurring() {
		return
	}
	meta := map[string]any{"plan": string(plan.Code)}
	if userID == "" {
		meta["reason"] = "no_user"
		u.audit.Record(ctx, nil, model.EventSubscriptionFailed, model.AuditError, "", meta)
		return
	}
	// flat window from confirmation; repeated payments do not stack
	end := now.Add(model.SubscriptionPeriod)
	if err := u.profiles.ActivateSubscription(ctx, nil, userID, string(plan.Code), end); err != nil {
		meta["error"] = err.Error()
		u.audit.Record(ctx, nil, model.EventSubscriptionFailed, model.AuditError, userID, meta)
		return
	}
	meta["subscription_end_date"] = end.Format(time.RFC3339)
	u.audit.Record(ctx, nil, model.EventSubscriptionActivated, model.AuditInfo, userID, meta)
}

func (u *reconcileUC) topUp(ctx context.Context, userID string, plan model.Plan) {
	if !plan.IsPayPerUse() {
		return
	}
	meta := map[string]any{"plan": string(plan.Code), "feature": string(plan.CreditFor)}
	if userID == "" {
		meta["reason"] = "no_user"
		u.audit.Record(ctx, nil, model.EventCreditsTopUpFailed, model.AuditError, "", meta)
		return
	}
	bal, err := u.credits.Increment(ctx, nil, userID, plan.CreditFor, 1)
	if err != nil {
		meta["error"] = err.Error()
		u.audit.Record(ctx, nil, model.EventCreditsTopUpFailed, model.AuditError, userID, meta)
		return
	}
	meta["balance"] = bal
	u.audit.Record(ctx, nil, model.EventCreditsToppedUp, model.AuditInfo, userID, meta)
}

func (u *reconcileUC) recordNotification(ctx context.Context, userID, phone string, p *model.Payment, plan model.Plan) {
	if phone == "" || userID == "" {
		return
	}
	n := &model.Notification{
		UserID:  userID,
		Type:    model.NotificationPaymentConfirmed,
		Message: u.confirmationText(p, plan),
		Phone:   &phone,
		Status:  model.NotificationQueued,
	}
	if err := u.notifications.Save(ctx, nil, n); err != nil {
		u.audit.Record(ctx, nil, model.EventNotificationFailed, model.AuditError, userID, map[string]any{"payment_id": p.ID, "error": err.Error()})
		return
	}
	u.audit.Record(ctx, nil, model.EventNotificationRecorded, model.AuditInfo, userID, map[string]any{"payment_id": p.ID, "notification_id": n.ID})
}

func (u *reconcileUC) confirmationText(p *model.Payment, plan model.Plan) string {
	receipt := ""
	if p.MpesaReceipt != nil {
		receipt = " Ref " + *p.MpesaReceipt + "."
	}
	switch {
	case plan.IsPayPerUse():
		return fmt.Sprintf("%s: payment of KES %d received.%s 1 %s credit added to your account.", u.opts.ProductName, p.Amount, receipt, plan.Name)
	case plan.IsRecurring():
		return fmt.Sprintf("%s: payment of KES %d received.%s Your %s plan is active for 30 days.", u.opts.ProductName, p.Amount, receipt, plan.Name)
	default:
		return fmt.Sprintf("%s: payment of KES %d received.%s", u.opts.ProductName, p.Amount, receipt)
	}
}

func (u *reconcileUC) completionMessages(p *model.Payment, plan model.Plan, phone, email string, now time.Time) ([]*model.OutboxMessage, error) {
	var out []*model.OutboxMessage
	if phone != "" {
		m, err := newOutboxMessage(model.OutboxSMS, model.SMSPayload{To: phone, Message: u.confirmationText(p, plan)})
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if email != "" {
		m, err := newOutboxMessage(model.OutboxEmail, u.receiptEmail(p, plan, email, now))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	events, err := u.eventMessages(integrationEvent(model.IntegrationPaymentCompleted, p, now))
	if err != nil {
		return nil, err
	}
	return append(out, events...), nil
}

func (u *reconcileUC) eventMessages(ev model.IntegrationEvent) ([]*model.OutboxMessage, error) {
	hook, err := newOutboxMessage(model.OutboxWebhook, ev)
	if err != nil {
		return nil, err
	}
	out := []*model.OutboxMessage{hook}
	if u.opts.PublishEvents {
		bus, err := newOutboxMessage(model.OutboxEvent, ev)
		if err != nil {
			return nil, err
		}
		out = append(out, bus)
	}
	return out, nil
}

func (u *reconcileUC) receiptEmail(p *model.Payment, plan model.Plan, to string, now time.Time) model.EmailPayload {
	receipt := "-"
	if p.MpesaReceipt != nil {
		receipt = *p.MpesaReceipt
	}
	date := now.In(nairobi).Format("02 Jan 2006 15:04")
	name := plan.Name
	if name == "" {
		name = p.PlanCode
	}
	text := fmt.Sprintf("Payment receipt\n\nItem: %s\nAmount: KES %d\nM-Pesa receipt: %s\nDate: %s\n\nThank you for using %s.",
		name, p.Amount, receipt, date, u.opts.ProductName)
	body := fmt.Sprintf(`<h2>Payment receipt</h2><table><tr><td>Item</td><td>%s</td></tr><tr><td>Amount</td><td>KES %d</td></tr><tr><td>M-Pesa receipt</td><td>%s</td></tr><tr><td>Date</td><td>%s</td></tr></table><p>Thank you for using %s.</p>`,
		html.EscapeString(name), p.Amount, html.EscapeString(receipt), date, html.EscapeString(u.opts.ProductName))
	return model.EmailPayload{
		To:      to,
		Subject: fmt.Sprintf("%s receipt %s", u.opts.ProductName, receipt),
		HTML:    body,
		Text:    text,
	}
}

func (u *reconcileUC) alert(ctx context.Context, text string) {
	if u.alerts == nil {
		return
	}
	if err := u.alerts.Alert(ctx, text); err != nil {
		u.log.Warn().Err(err).Msg("ops alert failed")
	}
}

var nairobi = time.FixedZone("EAT", 3*60*60)

func integrationEvent(name string, p *model.Payment, now time.Time) model.IntegrationEvent {
	data := map[string]any{
		"payment_id":          p.ID,
		"checkout_request_id": p.CheckoutRequestID,
		"merchant_request_id": p.MerchantRequestID,
		"status":              string(p.Status),
		"amount":              p.Amount,
		"currency":            "KES",
		"plan":                p.PlanCode,
		"phone":               p.PhoneNumber,
	}
	if p.UserID != nil {
		data["user_id"] = *p.UserID
	}
	if p.MpesaReceipt != nil {
		data["mpesa_receipt"] = *p.MpesaReceipt
	}
	if p.ResultCode != nil {
		data["result_code"] = *p.ResultCode
	}
	if p.ResultDesc != nil {
		data["result_desc"] = *p.ResultDesc
	}
	return model.IntegrationEvent{Event: name, Data: data, OccurredAt: now}
}

// unmatchedEvent carries only what the callback itself reports.
func unmatchedEvent(name string, cb *model.STKCallback, now time.Time) model.IntegrationEvent {
	status := model.PaymentStatusFailed
	if cb.Succeeded() {
		status = model.PaymentStatusCompleted
	}
	data := map[string]any{
		"checkout_request_id": cb.CheckoutRequestID,
		"merchant_request_id": cb.MerchantRequestID,
		"status":              string(status),
		"currency":            "KES",
		"result_code":         cb.ResultCode,
		"result_desc":         cb.ResultDesc,
		"matched":             false,
	}
	if amount := cb.Amount(); amount != 0 {
		data["amount"] = amount
	}
	if phone := cb.PhoneNumber(); phone != "" {
		data["phone"] = phone
	}
	if receipt := cb.ReceiptNumber(); receipt != "" {
		data["mpesa_receipt"] = receipt
	}
	return model.IntegrationEvent{Event: name, Data: data, OccurredAt: now}
}

func newOutboxMessage(kind model.OutboxKind, payload any) (*model.OutboxMessage, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return &model.OutboxMessage{Kind: kind, Payload: b}, nil
}

func withPayment(base map[string]any, p *model.Payment) map[string]any {
	m := make(map[string]any, len(base)+3)
	for k, v := range base {
		m[k] = v
	}
	m["payment_id"] = p.ID
	m["status"] = string(p.Status)
	m["plan"] = p.PlanCode
	return m
}
