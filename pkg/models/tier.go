// Package models defines the domain entities shared across services,
// stores, and the HTTP layer.
package models

import "time"

// Tier is a subscription class. It determines available models and
// context limits; it is a read-only input to this system.
type Tier string

// Subscription tiers, lowest to highest.
const (
	TierFree    Tier = "free"
	TierBasic   Tier = "basic"
	TierPro     Tier = "pro"
	TierProPlus Tier = "pro_plus"
	TierMax     Tier = "max"
)

// IsPremium reports whether the tier is any paid tier.
func (t Tier) IsPremium() bool {
	return t != TierFree && t != ""
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierBasic, TierPro, TierProPlus, TierMax:
		return true
	}
	return false
}

// Subscription is a read-only row from the subscription store.
type Subscription struct {
	UserID    string     `db:"user_id" json:"user_id"`
	Tier      Tier       `db:"tier" json:"tier"`
	Status    string     `db:"status" json:"status"`
	PeriodEnd *time.Time `db:"period_end" json:"period_end,omitempty"`
}

// Active reports whether the subscription grants its tier at the given time.
func (s *Subscription) Active(now time.Time) bool {
	if s.Status != "active" && s.Status != "trialing" {
		return false
	}
	if s.PeriodEnd != nil && s.PeriodEnd.Before(now) {
		return false
	}
	return true
}
