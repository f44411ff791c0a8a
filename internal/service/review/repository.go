package review

import (
	"context"
	"time"

	"github.com/loopletter/reputation-core/internal/domain"
)

// Repository defines the data access contract for the review queue.
type Repository interface {
	// CreateEntry inserts a pending entry with its assessment snapshot.
	// Returns ErrDuplicatePending if the contact already has a pending entry.
	CreateEntry(ctx context.Context, e *domain.ReviewQueueEntry) error

	// GetEntry returns one entry. Returns ErrNotFound if it doesn't exist.
	GetEntry(ctx context.Context, tenantID, entryID string) (*domain.ReviewQueueEntry, error)

	// ResolveEntry transitions an entry from pending to the given terminal
	// state via compare-and-swap on state. Returns ErrInvalidTransition if
	// the entry is no longer pending (the loser of a concurrent race).
	ResolveEntry(ctx context.Context, tenantID, entryID string, state domain.ReviewState, reviewerID, notes string, decidedAt time.Time) error

	// ListEntries returns entries matching the filter, newest first.
	ListEntries(ctx context.Context, tenantID string, f Filter) ([]domain.ReviewQueueEntry, error)

	// CountByState returns filter-independent entry counts per state.
	CountByState(ctx context.Context, tenantID string) (map[domain.ReviewState]int, error)

	// GetContact returns a contact. Returns ErrNotFound if it doesn't exist.
	GetContact(ctx context.Context, tenantID, contactID string) (*domain.Contact, error)

	// UpdateContactStatus sets a contact's status.
	UpdateContactStatus(ctx context.Context, tenantID, contactID string, status domain.ContactStatus) error

	// LatestRejection returns when the contact was last rejected, or nil.
	LatestRejection(ctx context.Context, tenantID, contactID string) (*time.Time, error)

	// LatestConsent returns the contact's most recent consent event, or nil.
	LatestConsent(ctx context.Context, tenantID, contactID string) (*domain.ConsentEvent, error)

	// RecordConsent inserts an explicit consent event.
	RecordConsent(ctx context.Context, ev *domain.ConsentEvent) error
}

// Filter controls search and filtering for the review queue list. All
// provided dimensions are combined with AND semantics; zero values mean
// "don't filter on this dimension".
type Filter struct {
	// Search matches contact email (substring, case-insensitive).
	Search string
	// RiskLevel filters on the assessment's computed level.
	RiskLevel domain.RiskLevel
	// ReviewType filters on what triggered the assessment.
	ReviewType domain.ReviewType
	// State filters on lifecycle state.
	State  domain.ReviewState
	Limit  int
	Offset int
}

// Stats holds the filter-independent summary counts the dashboard cards
// render. Total always equals Pending+Approved+Rejected.
type Stats struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Total    int `json:"total"`
}
