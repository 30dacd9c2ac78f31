package adapter

import "context"

// CreatedPayment is what the provider returns on payment creation.
type CreatedPayment struct {
	ProviderID      string
	ConfirmationURL string
}

// ProviderPayment is the provider's view of an existing payment.
type ProviderPayment struct {
	ID       string
	Status   string
	Paid     bool
	Metadata map[string]string
}

type PaymentGateway interface {
	// CreatePayment registers a payment intent with the provider. metadata
	// travels to the provider verbatim and comes back on the webhook.
	CreatePayment(ctx context.Context, amountValue, currency, description, returnURL string, metadata map[string]string) (*CreatedPayment, error)
	// GetPayment queries current provider-side status.
	GetPayment(ctx context.Context, providerID string) (*ProviderPayment, error)
	Name() string
}
