package adapter

import (
	"context"
)

// STKPushRequest asks the gateway to prompt a handset for payment.
type STKPushRequest struct {
	Phone            string // normalised MSISDN
	Amount           int64  // whole KES
	AccountReference string
	Description      string
}

// STKPushResponse is the synchronous acknowledgment; the result arrives later on the callback URL.
type STKPushResponse struct {
	MerchantRequestID   string
	CheckoutRequestID   string
	ResponseCode        string
	ResponseDescription string
	CustomerMessage     string
}

// Accepted reports whether the gateway queued the prompt.
func (r *STKPushResponse) Accepted() bool { return r != nil && r.ResponseCode == "0" }

// MobileMoneyGateway is the hex port for push-payment providers.
type MobileMoneyGateway interface {
	Name() string
	// STKPush returns a *domain.GatewayError when the provider refuses the request.
	STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error)
}
