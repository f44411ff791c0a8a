package domain

import "time"

// ContactStatus enumerates the states a contact can be in.
type ContactStatus string

const (
	ContactSubscribed   ContactStatus = "subscribed"
	ContactUnsubscribed ContactStatus = "unsubscribed"
	ContactBounced      ContactStatus = "bounced"
	ContactComplained   ContactStatus = "complained"
	ContactQuarantined  ContactStatus = "quarantined"
	// ContactSuppressed is terminal: a rejected contact stays suppressed until
	// a new explicit consent event is recorded for it.
	ContactSuppressed ContactStatus = "suppressed"
)

// SignupSource indicates where a contact entered the platform.
type SignupSource string

const (
	SourceSignupForm SignupSource = "signup_form"
	SourceBulkImport SignupSource = "bulk_import"
	SourceAPI        SignupSource = "api"
	SourceManual     SignupSource = "manual"
)

// Contact represents a prospective or existing subscriber. A contact is owned
// exclusively by its tenant (the artist account); email is unique per tenant.
type Contact struct {
	ID        string        `json:"id" db:"id"`
	TenantID  string        `json:"tenant_id" db:"tenant_id"`
	Email     string        `json:"email" db:"email"`
	Name      string        `json:"name,omitempty" db:"name"`
	Source    SignupSource  `json:"source" db:"source"`
	Status    ContactStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
}

// ConsentEvent records an explicit opt-in from a contact. A suppressed
// (rejected) contact can only re-enter the audience after one of these exists
// with a timestamp later than the rejection.
type ConsentEvent struct {
	ID         string    `json:"id" db:"id"`
	ContactID  string    `json:"contact_id" db:"contact_id"`
	TenantID   string    `json:"tenant_id" db:"tenant_id"`
	Source     string    `json:"source" db:"source"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}
