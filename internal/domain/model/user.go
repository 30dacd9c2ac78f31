package model

import (
	"time"

	"telegram-tarot-miniapp/internal/domain"

	"github.com/google/uuid"
)

type SubscriptionStatus int

const (
	SubscriptionStatusInactive SubscriptionStatus = 0
	SubscriptionStatusActive   SubscriptionStatus = 1
)

// SpreadType identifies one of the three reading kinds the entitlement
// model gates independently.
type SpreadType string

const (
	SpreadDailyAdvice SpreadType = "daily"
	SpreadYesNo       SpreadType = "yesno"
	SpreadThreeCards  SpreadType = "three_cards"
)

func ParseSpreadType(s string) (SpreadType, error) {
	switch SpreadType(s) {
	case SpreadDailyAdvice, SpreadYesNo, SpreadThreeCards:
		return SpreadType(s), nil
	}
	return "", domain.ErrUnknownSpread
}

// User is a domain entity representing a Telegram Mini-App user.
// Each free_* flag is a one-way latch: once a non-subscriber spends the
// free try of a spread it never resets.
type User struct {
	ID                      string
	TelegramID              int64
	Username                string
	RegisteredAt            time.Time
	LastActiveAt            time.Time
	SubscriptionStatus      SubscriptionStatus
	SubscriptionExpiry      *time.Time
	SubscriptionActivatedAt *time.Time
	FreeDailyAdviceUsed     bool
	FreeYesNoUsed           bool
	FreeThreeCardsUsed      bool
	LastDailyAdviceDate     *time.Time
}

func NewUser(id string, tgID int64, username string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if tgID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &User{
		ID:                 id,
		TelegramID:         tgID,
		Username:           username,
		RegisteredAt:       now,
		LastActiveAt:       now,
		SubscriptionStatus: SubscriptionStatusInactive,
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }
func (u *User) Touch()       { u.LastActiveAt = time.Now() }

// HasActiveSubscription is the single source of truth for paid status.
// Expiry is evaluated at read time: a row still flagged ACTIVE whose
// expiry passed counts as unsubscribed everywhere.
func (u *User) HasActiveSubscription(now time.Time) bool {
	return u.SubscriptionStatus == SubscriptionStatusActive &&
		u.SubscriptionExpiry != nil &&
		u.SubscriptionExpiry.After(now)
}

// FreeSpreadUsed reports the latch matching the spread.
func (u *User) FreeSpreadUsed(spread SpreadType) bool {
	switch spread {
	case SpreadDailyAdvice:
		return u.FreeDailyAdviceUsed
	case SpreadYesNo:
		return u.FreeYesNoUsed
	case SpreadThreeCards:
		return u.FreeThreeCardsUsed
	}
	return true
}

// Activate moves the user into paid status until expiry. Every successful
// payment resets expiry absolutely; remaining time from a prior
// subscription is not stacked.
func (u *User) Activate(expiry, now time.Time) {
	u.SubscriptionStatus = SubscriptionStatusActive
	u.SubscriptionExpiry = &expiry
	u.SubscriptionActivatedAt = &now
}
