package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrOperationFailed     = errors.New("operation failed")
	ErrReadDatabaseRow     = errors.New("failed to read database row")
	ErrInvalidExecContext  = errors.New("invalid execution context")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrRateLimited         = errors.New("too many requests")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrFeatureLocked       = errors.New("feature not available on current plan")

	// Payment initiation
	ErrInvalidPhone        = errors.New("phone number must be a valid Kenyan mobile number")
	ErrInvalidAmount       = errors.New("amount must be a positive whole number")
	ErrUnknownPlan         = errors.New("unknown plan")
	ErrGatewayRejected     = errors.New("payment gateway rejected the request")
	ErrTrackingUnavailable = errors.New("payment tracking is unavailable")
	ErrLockHeld            = errors.New("lock is held by another worker")
)

// GatewayError carries the provider's own description of a failed request.
type GatewayError struct {
	Status      int    // HTTP status from the provider, 0 when the request was acknowledged
	Code        string // provider error or response code
	Description string
}

func (e *GatewayError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("gateway error (http %d, code %s): %s", e.Status, e.Code, e.Description)
	}
	return fmt.Sprintf("gateway error (code %s): %s", e.Code, e.Description)
}

func (e *GatewayError) Unwrap() error { return ErrGatewayRejected }
