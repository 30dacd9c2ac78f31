package model

import "time"

const (
	// UnlimitedUses marks a remaining-count field for subscribers.
	UnlimitedUses = -1

	subscriberHistoryLimit = 30
)

// Entitlement is the computed set of permissions and remaining free uses
// for a user at a point in time. The JSON shape is consumed by the
// Mini-App frontend as-is.
type Entitlement struct {
	HasSubscription bool `json:"hasSubscription"`
	IsExpired       bool `json:"isExpired"`

	CanUseYesNo       bool `json:"canUseYesNo"`
	CanUseThreeCards  bool `json:"canUseThreeCards"`
	CanUseDailyAdvice bool `json:"canUseDailyAdvice"`

	HistoryLimit int `json:"historyLimit"`

	FreeDailyAdviceUsed bool `json:"freeDailyAdviceUsed"`
	FreeYesNoUsed       bool `json:"freeYesNoUsed"`
	FreeThreeCardsUsed  bool `json:"freeThreeCardsUsed"`

	RemainingDailyAdvice int `json:"remainingDailyAdvice"`
	RemainingYesNo       int `json:"remainingYesNo"`
	RemainingThreeCards  int `json:"remainingThreeCards"`
}

// EvaluateEntitlement decides what the user may do right now. Pure: no
// I/O, total over any well-formed user. Subscribers are never constrained
// by the stored latches, so their used-flags read false regardless of the
// persisted values.
func EvaluateEntitlement(u *User, now time.Time) Entitlement {
	if u.HasActiveSubscription(now) {
		return Entitlement{
			HasSubscription:      true,
			CanUseYesNo:          true,
			CanUseThreeCards:     true,
			CanUseDailyAdvice:    true,
			HistoryLimit:         subscriberHistoryLimit,
			RemainingDailyAdvice: UnlimitedUses,
			RemainingYesNo:       UnlimitedUses,
			RemainingThreeCards:  UnlimitedUses,
		}
	}

	expired := u.SubscriptionStatus == SubscriptionStatusActive &&
		(u.SubscriptionExpiry == nil || !u.SubscriptionExpiry.After(now))

	return Entitlement{
		IsExpired:            expired,
		CanUseDailyAdvice:    !u.FreeDailyAdviceUsed,
		CanUseYesNo:          !u.FreeYesNoUsed,
		CanUseThreeCards:     !u.FreeThreeCardsUsed,
		HistoryLimit:         0,
		FreeDailyAdviceUsed:  u.FreeDailyAdviceUsed,
		FreeYesNoUsed:        u.FreeYesNoUsed,
		FreeThreeCardsUsed:   u.FreeThreeCardsUsed,
		RemainingDailyAdvice: remaining(u.FreeDailyAdviceUsed),
		RemainingYesNo:       remaining(u.FreeYesNoUsed),
		RemainingThreeCards:  remaining(u.FreeThreeCardsUsed),
	}
}

// CanUse reports the permission for a single spread.
func (e Entitlement) CanUse(spread SpreadType) bool {
	switch spread {
	case SpreadDailyAdvice:
		return e.CanUseDailyAdvice
	case SpreadYesNo:
		return e.CanUseYesNo
	case SpreadThreeCards:
		return e.CanUseThreeCards
	}
	return false
}

func remaining(used bool) int {
	if used {
		return 0
	}
	return 1
}
