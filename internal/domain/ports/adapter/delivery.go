package adapter

import (
	"context"

	"sme-compliance/internal/domain/model"
)

type SMSSender interface {
	Send(ctx context.Context, to, message string) error
}

type Mailer interface {
	Send(ctx context.Context, msg model.EmailPayload) error
}

// WebhookPublisher posts integration events to the configured endpoint.
type WebhookPublisher interface {
	Publish(ctx context.Context, ev model.IntegrationEvent) error
}

// EventPublisher pushes integration events onto the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.IntegrationEvent) error
	Close() error
}

// OpsAlerter notifies operators about situations that need a human.
type OpsAlerter interface {
	Alert(ctx context.Context, text string) error
}
