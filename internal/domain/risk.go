package domain

import "time"

// RiskFlag is a categorical signal contributing to a contact's risk score.
type RiskFlag string

const (
	FlagInvalidSyntax       RiskFlag = "invalid_syntax"
	FlagDisposableDomain    RiskFlag = "disposable_domain"
	FlagNoMXRecords         RiskFlag = "no_mx_records"
	FlagRoleAccount         RiskFlag = "role_account"
	FlagBulkImportVelocity  RiskFlag = "bulk_import_velocity"
	FlagSuspiciousTLD       RiskFlag = "suspicious_tld"
	FlagDuplicateBurst      RiskFlag = "duplicate_signup_burst"
	FlagDomainLookupUnknown RiskFlag = "domain_lookup_unknown"
)

// RiskLevel buckets a numeric score for display and filtering.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Risk level thresholds. These are the ONLY place the score buckets are
// defined; every layer (scorer, queue filters, API) derives the level through
// RiskLevelForScore instead of duplicating the cutoffs.
const (
	RiskMediumThreshold = 34
	RiskHighThreshold   = 67
)

// RiskLevelForScore maps a 0-100 score to its categorical level.
func RiskLevelForScore(score int) RiskLevel {
	switch {
	case score >= RiskHighThreshold:
		return RiskHigh
	case score >= RiskMediumThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ReviewType indicates what triggered a risk assessment.
type ReviewType string

const (
	ReviewSpamDetection ReviewType = "spam_detection"
	ReviewManualFlag    ReviewType = "manual_flag"
	ReviewBulkImport    ReviewType = "bulk_import"
)

// RiskAssessment is an immutable snapshot of a contact's computed risk at the
// time it was flagged. New signals produce new assessments, never mutations.
type RiskAssessment struct {
	ID              string     `json:"id" db:"id"`
	ContactID       string     `json:"contact_id" db:"contact_id"`
	TenantID        string     `json:"tenant_id" db:"tenant_id"`
	Score           int        `json:"score" db:"score"`
	Level           RiskLevel  `json:"level" db:"level"`
	Flags           []RiskFlag `json:"flags" db:"flags"`
	PrimaryConcern  string     `json:"primary_concern" db:"primary_concern"`
	Recommendations []string   `json:"recommendations" db:"recommendations"`
	ReviewType      ReviewType `json:"review_type" db:"review_type"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}
