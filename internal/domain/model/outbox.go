package model

import (
	"encoding/json"
	"time"
)

type OutboxKind string

const (
	OutboxSMS     OutboxKind = "sms"
	OutboxEmail   OutboxKind = "email"
	OutboxWebhook OutboxKind = "webhook"
	OutboxEvent   OutboxKind = "event"
)

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxDead    OutboxStatus = "dead"
)

// OutboxMessage is one durable side effect awaiting delivery.
type OutboxMessage struct {
	ID            string
	Kind          OutboxKind
	Payload       json.RawMessage
	Status        OutboxStatus
	Attempts      int
	NextAttemptAt time.Time
	LastError     *string
	CreatedAt     time.Time
	ProcessedAt   *time.Time
}

type SMSPayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// IntegrationEvent is the flat payload sent to the outbound webhook and the event bus.
type IntegrationEvent struct {
	Event      string         `json:"event"`
	Data       map[string]any `json:"data"`
	OccurredAt time.Time      `json:"occurred_at"`
}

const (
	IntegrationPaymentCompleted = "payment.completed"
	IntegrationPaymentFailed    = "payment.failed"
)
