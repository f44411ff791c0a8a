package review

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/loopletter/reputation-core/internal/domain"
	"github.com/loopletter/reputation-core/internal/pkg/logger"
)

// Service coordinates the quarantine review queue workflow.
type Service struct {
	repo Repository
}

// NewService creates a review service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Enqueue places a flagged contact into the review queue with its risk
// assessment snapshot and marks the contact quarantined.
//
// Enforces two gate invariants before creating the entry:
//   - a contact may have at most one pending entry (ErrDuplicatePending);
//   - a previously rejected contact stays suppressed unless it has a consent
//     event newer than the rejection (ErrPermanentlySuppressed).
func (s *Service) Enqueue(ctx context.Context, tenantID string, contact *domain.Contact, assessment domain.RiskAssessment) (*domain.ReviewQueueEntry, error) {
	rejectedAt, err := s.repo.LatestRejection(ctx, tenantID, contact.ID)
	if err != nil {
		return nil, fmt.Errorf("checking rejection history: %w", err)
	}
	if rejectedAt != nil {
		consent, err := s.repo.LatestConsent(ctx, tenantID, contact.ID)
		if err != nil {
			return nil, fmt.Errorf("checking consent history: %w", err)
		}
		if consent == nil || !consent.RecordedAt.After(*rejectedAt) {
			return nil, ErrPermanentlySuppressed
		}
	}

	entry := &domain.ReviewQueueEntry{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		ContactID:    contact.ID,
		ContactEmail: contact.Email,
		Assessment:   assessment,
		State:        domain.ReviewPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.CreateEntry(ctx, entry); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateContactStatus(ctx, tenantID, contact.ID, domain.ContactQuarantined); err != nil {
		// The entry exists; reviewers can still act on it. Log and move on.
		log.Printf("[Review] Failed to quarantine contact %s: %v", contact.ID, err)
	}

	log.Printf("[Review] Enqueued contact %s (score %d, %s) for tenant %s",
		logger.RedactEmail(contact.Email), assessment.Score, assessment.Level, tenantID)
	return entry, nil
}

// Approve resolves a pending entry as approved and restores the contact to
// the subscribed audience. Requires the can_approve capability.
//
// The state transition is a compare-and-swap on pending: when two reviewers
// race on the same entry, exactly one wins and the other receives
// ErrInvalidTransition.
func (s *Service) Approve(ctx context.Context, tenantID, entryID string, reviewer domain.ReviewerContext, notes string) (*domain.ReviewQueueEntry, error) {
	return s.resolve(ctx, tenantID, entryID, reviewer, notes, domain.ReviewApproved)
}

// Reject resolves a pending entry as rejected and permanently suppresses the
// contact. Requires the can_reject capability.
func (s *Service) Reject(ctx context.Context, tenantID, entryID string, reviewer domain.ReviewerContext, notes string) (*domain.ReviewQueueEntry, error) {
	return s.resolve(ctx, tenantID, entryID, reviewer, notes, domain.ReviewRejected)
}

func (s *Service) resolve(ctx context.Context, tenantID, entryID string, reviewer domain.ReviewerContext, notes string, state domain.ReviewState) (*domain.ReviewQueueEntry, error) {
	caps := domain.RoleCapabilities(reviewer.Role)
	switch state {
	case domain.ReviewApproved:
		if !caps.CanApprove {
			return nil, ErrUnauthorized
		}
	case domain.ReviewRejected:
		if !caps.CanReject {
			return nil, ErrUnauthorized
		}
	default:
		return nil, fmt.Errorf("cannot resolve entry to state %q", state)
	}

	entry, err := s.repo.GetEntry(ctx, tenantID, entryID)
	if err != nil {
		return nil, err
	}

	decidedAt := time.Now().UTC()
	if err := s.repo.ResolveEntry(ctx, tenantID, entryID, state, reviewer.ID, notes, decidedAt); err != nil {
		return nil, err
	}

	status := domain.ContactSubscribed
	if state == domain.ReviewRejected {
		status = domain.ContactSuppressed
	}
	if err := s.repo.UpdateContactStatus(ctx, tenantID, entry.ContactID, status); err != nil {
		log.Printf("[Review] Entry %s resolved but contact %s status update failed: %v",
			entryID, entry.ContactID, err)
	}

	entry.State = state
	entry.ReviewerID = reviewer.ID
	entry.Notes = notes
	entry.DecidedAt = &decidedAt

	log.Printf("[Review] Entry %s %s by %s (%s) for tenant %s",
		entryID, state, reviewer.ID, reviewer.Role, tenantID)
	return entry, nil
}

// List returns queue entries matching the filter, newest first. Filter
// dimensions combine conjunctively.
func (s *Service) List(ctx context.Context, tenantID string, f Filter) ([]domain.ReviewQueueEntry, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.ListEntries(ctx, tenantID, f)
}

// GetEntry returns a single queue entry.
func (s *Service) GetEntry(ctx context.Context, tenantID, entryID string) (*domain.ReviewQueueEntry, error) {
	return s.repo.GetEntry(ctx, tenantID, entryID)
}

// Stats returns summary counts over the whole queue. The counts are
// deliberately independent of any list filter so dashboard cards stay
// consistent while the operator narrows the table below them.
func (s *Service) Stats(ctx context.Context, tenantID string) (*Stats, error) {
	counts, err := s.repo.CountByState(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("counting review entries: %w", err)
	}
	st := &Stats{
		Pending:  counts[domain.ReviewPending],
		Approved: counts[domain.ReviewApproved],
		Rejected: counts[domain.ReviewRejected],
	}
	st.Total = st.Pending + st.Approved + st.Rejected
	return st, nil
}

// RecordConsent stores an explicit opt-in event for a contact. This is the
// only path back into the audience for a rejected contact.
func (s *Service) RecordConsent(ctx context.Context, tenantID, contactID, source string) (*domain.ConsentEvent, error) {
	if _, err := s.repo.GetContact(ctx, tenantID, contactID); err != nil {
		return nil, err
	}
	ev := &domain.ConsentEvent{
		ID:         uuid.New().String(),
		ContactID:  contactID,
		TenantID:   tenantID,
		Source:     source,
		RecordedAt: time.Now().UTC(),
	}
	if err := s.repo.RecordConsent(ctx, ev); err != nil {
		return nil, fmt.Errorf("recording consent: %w", err)
	}
	log.Printf("[Review] Consent recorded for contact %s via %s", contactID, source)
	return ev, nil
}
