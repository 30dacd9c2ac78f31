package payment

import (
	"context"
	"fmt"
	"sync/atomic"

	"telegram-tarot-miniapp/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopGateway)(nil)

// NoopGateway fakes the provider for local/dev runs: every created
// payment immediately reads as succeeded.
type NoopGateway struct {
	seq atomic.Int64
}

func NewNoopGateway() *NoopGateway { return &NoopGateway{} }

func (g *NoopGateway) Name() string { return "noop" }

func (g *NoopGateway) CreatePayment(ctx context.Context, amountValue, currency, description, returnURL string, metadata map[string]string) (*adapter.CreatedPayment, error) {
	id := fmt.Sprintf("noop-%d", g.seq.Add(1))
	return &adapter.CreatedPayment{
		ProviderID:      id,
		ConfirmationURL: "https://example.invalid/pay/" + id,
	}, nil
}

func (g *NoopGateway) GetPayment(ctx context.Context, providerID string) (*adapter.ProviderPayment, error) {
	return &adapter.ProviderPayment{ID: providerID, Status: "succeeded", Paid: true}, nil
}
