package repository

import (
	"context"
	"time"

	"telegram-tarot-miniapp/internal/domain/model"
)

type PaymentRepository interface {
	Save(ctx context.Context, p *model.Payment) error
	FindByProviderID(ctx context.Context, providerID string) (*model.Payment, error)

	// MarkSucceeded flips the payment to succeeded and reports whether this
	// call performed the transition. A duplicate webhook delivery finds the
	// row already succeeded and gets false, which keeps the applied outcome
	// and the user notification to exactly once per provider payment id.
	// Callers activate the subscription before marking, so a payment never
	// reads succeeded with the activation still missing.
	MarkSucceeded(ctx context.Context, providerID string, paidAt time.Time) (bool, error)

	MarkCanceled(ctx context.Context, providerID string) error

	// ListPendingOlderThan feeds the reconciler with payments whose webhook
	// may have been lost.
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.Payment, error)
}
