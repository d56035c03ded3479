package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification events published to members during reconciliation.
const (
	EventEntitlementUpdated   = "entitlement.updated"
	EventTeacherAccessChanged = "teacher.access_changed"
	EventSubscriptionActive   = "subscription.activated"
	EventSubscriptionExpired  = "subscription.expired"
)

// NotificationMessage is the fire-and-forget payload published per user.
// Delivery is at-most-once; clients re-fetch their entitlement on receipt.
type NotificationMessage struct {
	UserID  uuid.UUID `json:"user_id"`
	Event   string    `json:"event"`
	Payload JSONB     `json:"payload"`
	SentAt  time.Time `json:"sent_at"`
}

// JSONB represents PostgreSQL JSONB type
type JSONB map[string]interface{}
