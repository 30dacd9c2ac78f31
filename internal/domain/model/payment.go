package model

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // created on provider side, awaiting webhook
	PaymentStatusSucceeded PaymentStatus = "succeeded" // provider confirmed the charge
	PaymentStatusCanceled  PaymentStatus = "canceled"  // provider reported cancellation
)

// Payment records the external payment intent/transaction. ProviderID is
// the provider-assigned payment id and doubles as the idempotency key for
// webhook processing.
type Payment struct {
	ID         string // UUID, our internal id
	ProviderID string // provider-assigned id, unique
	UserID     string // UUID of the owning user
	TelegramID int64
	PlanType   string
	Amount     int64 // kopecks
	Currency   string
	Status     PaymentStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
	PaidAt     *time.Time
}
