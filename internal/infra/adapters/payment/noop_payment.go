package payment

import (
	"context"
	"fmt"
	"sync"

	"sme-compliance/internal/domain"
	"sme-compliance/internal/domain/ports/adapter"
)

var _ adapter.MobileMoneyGateway = (*NoopGateway)(nil)

// NoopGateway acknowledges every push with sequential ids. Used in dev and tests.
type NoopGateway struct {
	mu       sync.Mutex
	seq      int64
	Requests []adapter.STKPushRequest
	// RejectWith, when set, is returned instead of an acknowledgment.
	RejectWith *domain.GatewayError
}

func NewNoopGateway() *NoopGateway {
	return &NoopGateway{}
}

func (g *NoopGateway) Name() string { return "noop" }

func (g *NoopGateway) STKPush(ctx context.Context, req adapter.STKPushRequest) (*adapter.STKPushResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Requests = append(g.Requests, req)
	if g.RejectWith != nil {
		return nil, g.RejectWith
	}
	g.seq++
	return &adapter.STKPushResponse{
		MerchantRequestID:   fmt.Sprintf("noop-mr-%d", g.seq),
		CheckoutRequestID:   fmt.Sprintf("ws_CO_noop_%d", g.seq),
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
	}, nil
}
