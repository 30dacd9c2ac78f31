package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound             = errors.New("entity not found")
	ErrAlreadyExists        = errors.New("entity already exists")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrFreeSpreadUsed       = errors.New("free spread already used")
	ErrUnknownPlan          = errors.New("unknown subscription plan")
	ErrUnknownSpread        = errors.New("unknown spread type")
	ErrPaymentUnavailable   = errors.New("payment service unavailable")
	ErrReadingUnavailable   = errors.New("reading service unavailable")
	ErrNotOwner             = errors.New("reading belongs to another user")
)
