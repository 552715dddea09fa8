package model

import "time"

// Profile is the per-user row; only the subscription facet and contact
// details are read or written by this service.
type Profile struct {
	ID                  string // auth user id
	Email               *string
	Phone               *string
	FullName            *string
	SubscriptionPlan    string
	SubscriptionStatus  string
	SubscriptionEndDate *time.Time
	UpdatedAt           time.Time
}

const SubscriptionStatusActive = "active"

// FeatureCredit is a pay-per-use balance for one (user, feature) pair.
type FeatureCredit struct {
	UserID        string
	Feature       Feature
	CreditBalance int
	UpdatedAt     time.Time
}
