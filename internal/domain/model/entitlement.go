package model

import "time"

// SubscriptionState is the derived access state of a profile.
type SubscriptionState string

const (
	StateActive      SubscriptionState = "active"
	StateGracePeriod SubscriptionState = "grace_period"
	StateExpired     SubscriptionState = "expired"
)

const (
	// SubscriptionPeriod is the flat window granted by one recurring payment.
	SubscriptionPeriod = 30 * 24 * time.Hour
	// GracePeriod is how long access survives past the end date.
	GracePeriod = 3 * 24 * time.Hour
)

// ResolveSubscriptionState is active up to and including end, grace_period for
// GracePeriod after it, expired afterwards. The free plan is always active; any
// other plan without an end date is expired.
func ResolveSubscriptionState(plan string, end *time.Time, now time.Time) SubscriptionState {
	if plan == "" || PlanCode(plan) == PlanFree {
		return StateActive
	}
	if end == nil {
		return StateExpired
	}
	if !now.After(*end) {
		return StateActive
	}
	if !now.After(end.Add(GracePeriod)) {
		return StateGracePeriod
	}
	return StateExpired
}

// CanUseFeature is the feature gate: a live subscription whose plan includes
// the feature, or a positive pay-per-use balance for it.
func CanUseFeature(state SubscriptionState, caps Capabilities, f Feature, creditBalance int) bool {
	if state != StateExpired && caps.Includes(f) {
		return true
	}
	return creditBalance > 0
}

// Entitlement is the resolved view served to the dashboard.
type Entitlement struct {
	Plan         string            `json:"plan"`
	State        SubscriptionState `json:"status"`
	EndDate      *time.Time        `json:"subscription_end_date,omitempty"`
	Capabilities Capabilities      `json:"capabilities"`
	Credits      map[Feature]int   `json:"credits"`
	Access       map[Feature]bool  `json:"access"`
}
