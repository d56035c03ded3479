package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription status lifecycle. Expiry transitions are owned by the
// expiry sweeper; cancellation is an explicit admin action.
const (
	SubscriptionStatusPending   = "pending"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusExpired   = "expired"
	SubscriptionStatusCancelled = "cancelled"
)

// TenantSubscription is the single logical subscription record per tenant.
// It is upserted on approval/renewal and kept forever for audit.
type TenantSubscription struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	TenantID     uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	OrgID        uuid.UUID  `json:"org_id" db:"org_id"`
	PlanType     string     `json:"plan_type" db:"plan_type"`
	PlanName     string     `json:"plan_name" db:"plan_name"`
	PlanLimits   JSONB      `json:"plan_limits" db:"plan_limits"`
	Status       string     `json:"status" db:"status"`
	StartDate    time.Time  `json:"start_date" db:"start_date"`
	EndDate      *time.Time `json:"end_date" db:"end_date"`
	AutoRenew    bool       `json:"auto_renew" db:"auto_renew"`
	RenewalCount int        `json:"renewal_count" db:"renewal_count"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// DueAt reports whether the subscription's end date has passed. A nil end
// date means the subscription never expires.
func (s *TenantSubscription) DueAt(now time.Time) bool {
	return s.EndDate != nil && !s.EndDate.After(now)
}
