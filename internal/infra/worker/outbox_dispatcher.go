package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/domain/ports/adapter"
	"sme-compliance/internal/domain/ports/repository"
	"sme-compliance/internal/infra/metrics"
)

const maxBackoff = 300 * time.Second

// errPermanent marks messages that can never be delivered; they go straight to dead.
var errPermanent = errors.New("undeliverable")

// Deliverers maps outbox kinds to adapters. A nil entry makes that kind undeliverable.
type Deliverers struct {
	SMS     adapter.SMSSender
	Mail    adapter.Mailer
	Webhook adapter.WebhookPublisher
	Events  adapter.EventPublisher
}

type DispatcherOptions struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	Lease       time.Duration
}

// OutboxDispatcher delivers queued side effects with retry and backoff.
type OutboxDispatcher struct {
	repo repository.OutboxRepository
	to   Deliverers
	opts DispatcherOptions
	log  *zerolog.Logger
}

func NewOutboxDispatcher(repo repository.OutboxRepository, to Deliverers, opts DispatcherOptions, logger *zerolog.Logger) *OutboxDispatcher {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 8
	}
	if opts.Lease <= 0 {
		opts.Lease = 2 * time.Minute
	}
	l := logger.With().Str("component", "OutboxDispatcher").Logger()
	return &OutboxDispatcher{repo: repo, to: to, opts: opts, log: &l}
}

// Backoff is the delay before retry number attempts (1-based): 2^attempts seconds, capped.
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts >= 9 {
		return maxBackoff
	}
	d := time.Duration(1<<uint(attempts)) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// Run polls until ctx is cancelled.
func (d *OutboxDispatcher) Run(ctx context.Context, pool *Pool) error {
	d.log.Info().Dur("interval", d.opts.Interval).Msg("Starting outbox dispatcher")
	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("Stopping outbox dispatcher")
			return ctx.Err()
		case <-ticker.C:
			if _, err := d.DispatchOnce(ctx, pool); err != nil && !errors.Is(err, context.Canceled) {
				d.log.Error().Err(err).Msg("outbox dispatch error")
			}
		}
	}
}

// DispatchOnce claims one batch and waits for every message in it to settle.
// It returns how many messages were claimed.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context, pool *Pool) (int, error) {
	msgs, err := d.repo.ClaimDue(ctx, d.opts.BatchSize, int(d.opts.Lease/time.Second))
	if err != nil {
		return 0, fmt.Errorf("claim outbox batch: %w", err)
	}
	metrics.SetOutboxBatch(len(msgs))
	if len(msgs) == 0 {
		return 0, nil
	}

	var wg sync.WaitGroup
	for _, m := range msgs {
		m := m
		wg.Add(1)
		task := func(ctx context.Context) error {
			defer wg.Done()
			d.settle(ctx, m)
			return nil
		}
		if pool == nil {
			_ = task(ctx)
			continue
		}
		if err := pool.Submit(ctx, task); err != nil {
			// unsubmitted messages return to the queue when their lease expires
			wg.Done()
			_ = waitCtx(ctx, &wg)
			return len(msgs), err
		}
	}
	return len(msgs), waitCtx(ctx, &wg)
}

// waitCtx waits for wg unless ctx ends first; queued tasks may never run after shutdown.
func waitCtx(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *OutboxDispatcher) settle(ctx context.Context, m *model.OutboxMessage) {
	log := d.log.With().Str("outbox_id", m.ID).Str("kind", string(m.Kind)).Int("attempt", m.Attempts+1).Logger()

	err := d.deliver(ctx, m)
	if err == nil {
		if merr := d.repo.MarkSent(ctx, m.ID); merr != nil {
			log.Error().Err(merr).Msg("mark sent failed")
		}
		metrics.IncOutboxDelivery(string(m.Kind), "sent")
		log.Debug().Msg("outbox message delivered")
		return
	}

	attempts := m.Attempts + 1
	dead := errors.Is(err, errPermanent) || attempts >= d.opts.MaxAttempts
	retry := Backoff(attempts)
	if merr := d.repo.MarkFailed(ctx, m.ID, err.Error(), int(retry/time.Second), dead); merr != nil {
		log.Error().Err(merr).Msg("mark failed failed")
	}
	if dead {
		metrics.IncOutboxDelivery(string(m.Kind), "dead")
		log.Error().Err(err).Msg("outbox message dead")
		return
	}
	metrics.IncOutboxDelivery(string(m.Kind), "retry")
	log.Warn().Err(err).Dur("retry_in", retry).Msg("outbox delivery failed")
}

func (d *OutboxDispatcher) deliver(ctx context.Context, m *model.OutboxMessage) error {
	switch m.Kind {
	case model.OutboxSMS:
		var p model.SMSPayload
		if err := decode(m, &p); err != nil {
			return err
		}
		if d.to.SMS == nil {
			return fmt.Errorf("%w: no sms sender", errPermanent)
		}
		return d.to.SMS.Send(ctx, p.To, p.Message)
	case model.OutboxEmail:
		var p model.EmailPayload
		if err := decode(m, &p); err != nil {
			return err
		}
		if d.to.Mail == nil {
			return fmt.Errorf("%w: no mailer", errPermanent)
		}
		return d.to.Mail.Send(ctx, p)
	case model.OutboxWebhook:
		var ev model.IntegrationEvent
		if err := decode(m, &ev); err != nil {
			return err
		}
		if d.to.Webhook == nil {
			return fmt.Errorf("%w: no webhook endpoint", errPermanent)
		}
		return d.to.Webhook.Publish(ctx, ev)
	case model.OutboxEvent:
		var ev model.IntegrationEvent
		if err := decode(m, &ev); err != nil {
			return err
		}
		if d.to.Events == nil {
			return fmt.Errorf("%w: no event publisher", errPermanent)
		}
		return d.to.Events.Publish(ctx, ev)
	default:
		return fmt.Errorf("%w: unknown kind %q", errPermanent, m.Kind)
	}
}

func decode(m *model.OutboxMessage, v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: decode %s payload: %v", errPermanent, m.Kind, err)
	}
	return nil
}
