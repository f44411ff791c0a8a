package domain

import "time"

// DeliveryEventType enumerates delivery events reported by the mail provider.
type DeliveryEventType string

const (
	EventSent       DeliveryEventType = "sent"
	EventDelivered  DeliveryEventType = "delivered"
	EventBounced    DeliveryEventType = "bounced"
	EventComplained DeliveryEventType = "complained"
	EventOpened     DeliveryEventType = "opened"
	EventClicked    DeliveryEventType = "clicked"
)

// ValidDeliveryEvent reports whether t is a known event type.
func ValidDeliveryEvent(t DeliveryEventType) bool {
	switch t {
	case EventSent, EventDelivered, EventBounced, EventComplained, EventOpened, EventClicked:
		return true
	}
	return false
}

// DeliveryEvent is one append-only record in a tenant's delivery event log.
type DeliveryEvent struct {
	ID         string            `json:"id" db:"id"`
	TenantID   string            `json:"tenant_id" db:"tenant_id"`
	Type       DeliveryEventType `json:"type" db:"event_type"`
	MessageID  string            `json:"message_id,omitempty" db:"message_id"`
	OccurredAt time.Time         `json:"occurred_at" db:"occurred_at"`
}

// ReputationTier is the categorical sending-health label for a tenant.
type ReputationTier string

const (
	TierExcellent ReputationTier = "excellent"
	TierGood      ReputationTier = "good"
	TierFair      ReputationTier = "fair"
	TierPoor      ReputationTier = "poor"
	TierSuspended ReputationTier = "suspended"
)

// TenantReputationSnapshot is one time-series point of a tenant's sending
// reputation. Rates are percentages (0-100) over emails delivered in the
// trailing window. Append-only; the current reputation is the most recent
// snapshot plus any standing suspension.
type TenantReputationSnapshot struct {
	TenantID       string         `json:"tenant_id" db:"tenant_id"`
	WindowDays     int            `json:"window_days" db:"window_days"`
	Delivered      int64          `json:"delivered" db:"delivered"`
	BounceRate     float64        `json:"bounce_rate" db:"bounce_rate"`
	ComplaintRate  float64        `json:"complaint_rate" db:"complaint_rate"`
	EngagementRate float64        `json:"engagement_rate" db:"engagement_rate"`
	Tier           ReputationTier `json:"tier" db:"tier"`
	CanSend        bool           `json:"can_send" db:"can_send"`
	Warnings       []string       `json:"warnings,omitempty"`
	// Stale marks a snapshot served from cache because the event log was
	// unavailable. Stale data is surfaced, never silently replaced with zeros.
	Stale      bool      `json:"stale,omitempty"`
	ComputedAt time.Time `json:"computed_at" db:"computed_at"`
}

// SuspensionTrigger indicates what created a suspension record.
type SuspensionTrigger string

const (
	TriggerAutomatic SuspensionTrigger = "automatic"
	TriggerManual    SuspensionTrigger = "manual"
)

// SuspensionRecord is an explicit compliance block on a tenant's sending.
// It overrides any tier-derived can_send. Automatic suspensions are never
// lifted automatically; lifting is a deliberate manual action.
type SuspensionRecord struct {
	ID          string            `json:"id" db:"id"`
	TenantID    string            `json:"tenant_id" db:"tenant_id"`
	Reason      string            `json:"reason" db:"reason"`
	TriggeredBy SuspensionTrigger `json:"triggered_by" db:"triggered_by"`
	Active      bool              `json:"active" db:"active"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	LiftedAt    *time.Time        `json:"lifted_at,omitempty" db:"lifted_at"`
	LiftedBy    string            `json:"lifted_by,omitempty" db:"lifted_by"`
}
