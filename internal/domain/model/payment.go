package model

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // STK prompt sent; awaiting callback
	PaymentStatusCompleted PaymentStatus = "completed" // callback reported success
	PaymentStatusFailed    PaymentStatus = "failed"    // callback reported a non-zero result code
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// Payment records one attempted mobile-money charge.
type Payment struct {
	ID                string // UUID
	UserID            *string
	Amount            int64 // whole KES
	PlanCode          string
	PhoneNumber       string // normalised 2547XXXXXXXX / 2541XXXXXXXX
	Status            PaymentStatus
	CheckoutRequestID string
	MerchantRequestID string
	MpesaReceipt      *string // set only on completion
	ResultCode        *int
	ResultDesc        *string
	RawCallback       []byte // verbatim callback body, kept for audit
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OwnerID returns the owning user id or "" when the payment is not yet attributed.
func (p *Payment) OwnerID() string {
	if p == nil || p.UserID == nil {
		return ""
	}
	return *p.UserID
}

// PaymentResult is what the reconciler writes when a payment reaches a terminal state.
type PaymentResult struct {
	Status       PaymentStatus
	MpesaReceipt *string
	ResultCode   int
	ResultDesc   string
	RawCallback  []byte
}
