package model

import (
	"fmt"
	"time"

	"telegram-tarot-miniapp/internal/domain"
)

// SubscriptionPlan is a purchasable plan with a fixed duration and price.
// Prices are stored in kopecks to avoid float errors.
type SubscriptionPlan struct {
	Type         string
	Name         string
	DurationDays int
	PriceKopecks int64
	Currency     string
}

func (p SubscriptionPlan) Duration() time.Duration {
	return time.Duration(p.DurationDays) * 24 * time.Hour
}

// PriceValue renders the amount the way the payment provider expects it,
// e.g. 29900 -> "299.00".
func (p SubscriptionPlan) PriceValue() string {
	return fmt.Sprintf("%d.%02d", p.PriceKopecks/100, p.PriceKopecks%100)
}

// The plan table is fixed product configuration, not database state.
var plans = map[string]SubscriptionPlan{
	"weekly":    {Type: "weekly", Name: "Неделя", DurationDays: 7, PriceKopecks: 9_900, Currency: "RUB"},
	"monthly":   {Type: "monthly", Name: "Месяц", DurationDays: 30, PriceKopecks: 29_900, Currency: "RUB"},
	"quarterly": {Type: "quarterly", Name: "Три месяца", DurationDays: 90, PriceKopecks: 69_900, Currency: "RUB"},
	"yearly":    {Type: "yearly", Name: "Год", DurationDays: 365, PriceKopecks: 199_900, Currency: "RUB"},
}

// FindPlan resolves a plan by its type key ("weekly", "monthly", ...).
func FindPlan(planType string) (SubscriptionPlan, error) {
	p, ok := plans[planType]
	if !ok {
		return SubscriptionPlan{}, domain.ErrUnknownPlan
	}
	return p, nil
}

// Plans returns the table in a stable order for display.
func Plans() []SubscriptionPlan {
	return []SubscriptionPlan{plans["weekly"], plans["monthly"], plans["quarterly"], plans["yearly"]}
}

