package domain

import "time"

// ReviewState is the lifecycle state of a quarantine queue entry.
// pending is the only non-terminal state.
type ReviewState string

const (
	ReviewPending  ReviewState = "pending"
	ReviewApproved ReviewState = "approved"
	ReviewRejected ReviewState = "rejected"
)

// ReviewQueueEntry is a single work item in the quarantine review queue. Once
// resolved the entry is immutable; a fresh assessment on the same contact
// creates a new entry.
type ReviewQueueEntry struct {
	ID           string         `json:"id" db:"id"`
	TenantID     string         `json:"tenant_id" db:"tenant_id"`
	ContactID    string         `json:"contact_id" db:"contact_id"`
	ContactEmail string         `json:"contact_email" db:"contact_email"`
	Assessment   RiskAssessment `json:"assessment"`
	State        ReviewState    `json:"state" db:"state"`
	ReviewerID   string         `json:"reviewer_id,omitempty" db:"reviewer_id"`
	Notes        string         `json:"notes,omitempty" db:"notes"`
	DecidedAt    *time.Time     `json:"decided_at,omitempty" db:"decided_at"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

// Role is the platform role of a dashboard user within a tenant.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ReviewerContext identifies who is performing a review action. Passed
// explicitly into every queue call so authorization is testable without any
// session machinery.
type ReviewerContext struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Capabilities describes what review actions a role may perform.
type Capabilities struct {
	CanApprove bool `json:"can_approve"`
	CanReject  bool `json:"can_reject"`
}

// RoleCapabilities is the closed role -> capability mapping. Owners and
// admins review; editors and viewers are view-only. Unknown roles get no
// capabilities — new roles must be added here explicitly, never defaulted
// permissive.
func RoleCapabilities(r Role) Capabilities {
	switch r {
	case RoleOwner, RoleAdmin:
		return Capabilities{CanApprove: true, CanReject: true}
	case RoleEditor, RoleViewer:
		return Capabilities{}
	default:
		return Capabilities{}
	}
}
