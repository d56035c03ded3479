package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	EntitlementStatusActive  = "active"
	EntitlementStatusExpired = "expired"
)

// Transaction modes distinguish how an entitlement change was initiated.
const (
	TransactionModeSystem  = "system"
	TransactionModeManual  = "manual"
	TransactionModePayment = "payment"
)

// Provenance reasons recorded when a reconciliation rewrites an entitlement.
const (
	ReasonTenantSubscriptionRenewed = "tenant_subscription_renewed"
	ReasonTenantSubscriptionExpired = "tenant_subscription_expired"
)

// Entitlement sources.
const (
	SourceTenantSync = "tenant_sync"
	SourceAdmin      = "admin"
)

// UserEntitlement is the access grant consulted by content-serving code.
// Created on first assignment, mutated afterwards, never deleted.
type UserEntitlement struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	UserID           uuid.UUID  `json:"user_id" db:"user_id"`
	PlanType         string     `json:"plan_type" db:"plan_type"`
	PlanName         string     `json:"plan_name" db:"plan_name"`
	Features         JSONB      `json:"features" db:"features"`
	Status           string     `json:"status" db:"status"`
	StartDate        time.Time  `json:"start_date" db:"start_date"`
	EndDate          *time.Time `json:"end_date" db:"end_date"`
	OriginTenantID   *uuid.UUID `json:"origin_tenant_id" db:"origin_tenant_id"`
	OriginOrgID      *uuid.UUID `json:"origin_org_id" db:"origin_org_id"`
	Source           string     `json:"source" db:"source"`
	SyncedAt         *time.Time `json:"synced_at" db:"synced_at"`
	Reason           string     `json:"reason" db:"reason"`
	PreviousPlanType string     `json:"previous_plan_type" db:"previous_plan_type"`
	Metadata         JSONB      `json:"metadata" db:"metadata"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// IsActivePaid reports whether this grant counts against the
// at-most-one-active-paid-entitlement invariant.
func (e *UserEntitlement) IsActivePaid() bool {
	return e.Status == EntitlementStatusActive && e.PlanType != PlanTypeFree
}

// FullAccess reads the full_access feature flag.
func (e *UserEntitlement) FullAccess() bool {
	v, ok := e.Features[FeatureFullAccess].(bool)
	return ok && v
}

// LinkedTo reports whether this entitlement was produced by the given tenant.
func (e *UserEntitlement) LinkedTo(tenantID, orgID uuid.UUID) bool {
	return e.OriginTenantID != nil && *e.OriginTenantID == tenantID &&
		e.OriginOrgID != nil && *e.OriginOrgID == orgID
}

// EntitlementTransaction is an immutable audit entry appended to a user
// entitlement. Duplicate suppression for system assignments keys on
// (mode=system, assignment=true, plan_type).
type EntitlementTransaction struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	EntitlementID    uuid.UUID  `json:"entitlement_id" db:"entitlement_id"`
	Amount           float64    `json:"amount" db:"amount"`
	Status           string     `json:"status" db:"status"`
	Mode             string     `json:"mode" db:"mode"`
	InitiatorUserID  *uuid.UUID `json:"initiator_user_id" db:"initiator_user_id"`
	InitiatorRole    string     `json:"initiator_role" db:"initiator_role"`
	InitiatorName    string     `json:"initiator_name" db:"initiator_name"`
	InitiatorContext string     `json:"initiator_context" db:"initiator_context"`
	Reason           string     `json:"reason" db:"reason"`
	PlanType         string     `json:"plan_type" db:"plan_type"`
	Assignment       bool       `json:"assignment" db:"assignment"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
}
