// Package reputation maintains per-tenant sending reputation: an append-only
// delivery event log, trailing-window snapshots with tier and can_send
// derivation, and suspension records replicating the upstream mail provider's
// sending policy.
//
// Suspension is asymmetric by design: a threshold breach creates a
// SuspensionRecord automatically, but nothing in this package ever lifts one
// without an explicit, authorized manual action.
package reputation

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loopletter/reputation-core/internal/config"
	"github.com/loopletter/reputation-core/internal/domain"
)

// Repository defines the data access contract for the event log and
// suspension records.
type Repository interface {
	// AppendEvent appends one delivery event to the tenant's log.
	AppendEvent(ctx context.Context, ev *domain.DeliveryEvent) error

	// WindowCounts returns event counts for a tenant since the given time.
	WindowCounts(ctx context.Context, tenantID string, since time.Time) (WindowCounts, error)

	// SaveSnapshot upserts the tenant's snapshot for its day (append-only per
	// day; recomputation within a day overwrites that day's point).
	SaveSnapshot(ctx context.Context, snap *domain.TenantReputationSnapshot) error

	// SnapshotHistory returns daily snapshots for the last N days, oldest first.
	SnapshotHistory(ctx context.Context, tenantID string, days int) ([]domain.TenantReputationSnapshot, error)

	// ActiveSuspension returns the tenant's active suspension, or nil.
	ActiveSuspension(ctx context.Context, tenantID string) (*domain.SuspensionRecord, error)

	// CreateSuspension inserts a suspension record.
	CreateSuspension(ctx context.Context, rec *domain.SuspensionRecord) error

	// LiftSuspension deactivates a suspension, recording who lifted it.
	// Returns ErrNoActiveSuspension if none is active.
	LiftSuspension(ctx context.Context, tenantID, liftedBy string) error
}

// Tracker implements the reputation business logic. Safe for concurrent use.
type Tracker struct {
	repo  Repository
	cache *SnapshotCache // may be nil (cache disabled)
	cfg   config.ReputationConfig
}

// NewTracker creates a reputation tracker. cache may be nil to disable the
// read-through snapshot cache (tests, single-shot tools).
func NewTracker(repo Repository, cache *SnapshotCache, cfg config.ReputationConfig) *Tracker {
	return &Tracker{repo: repo, cache: cache, cfg: cfg}
}

// RecordEvent appends a delivery event to the tenant's log. Appends are plain
// INSERTs keyed by tenant, so concurrent writers for the same tenant never
// contend on shared state.
func (t *Tracker) RecordEvent(ctx context.Context, tenantID string, eventType domain.DeliveryEventType, messageID string, occurredAt time.Time) error {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	if !domain.ValidDeliveryEvent(eventType) {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	ev := &domain.DeliveryEvent{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		Type:       eventType,
		MessageID:  messageID,
		OccurredAt: occurredAt,
	}
	if err := t.repo.AppendEvent(ctx, ev); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	// A new event invalidates the cached snapshot; the next read recomputes.
	if t.cache != nil {
		t.cache.Invalidate(ctx, tenantID)
	}
	return nil
}

// CurrentReputation returns the tenant's reputation snapshot over the
// trailing window. Reads go through the cache; on an event-log outage the
// last known good snapshot is returned marked stale instead of fabricating
// zeros — a 0% bounce rate during an outage would let an import storm
// through unnoticed.
func (t *Tracker) CurrentReputation(ctx context.Context, tenantID string) (*domain.TenantReputationSnapshot, error) {
	if t.cache != nil {
		if snap, fresh := t.cache.Get(ctx, tenantID); fresh {
			return snap, nil
		}
	}

	snap, err := t.compute(ctx, tenantID)
	if err != nil {
		if t.cache != nil {
			if stale, ok := t.cache.GetLastGood(ctx, tenantID); ok {
				log.Printf("[Reputation] Event log unavailable for tenant %s, serving stale snapshot from %s: %v",
					tenantID, stale.ComputedAt.Format(time.RFC3339), err)
				stale.Stale = true
				stale.Warnings = append(stale.Warnings, "snapshot is stale: event log unavailable")
				return stale, nil
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	if t.cache != nil {
		t.cache.Set(ctx, snap)
	}
	if err := t.repo.SaveSnapshot(ctx, snap); err != nil {
		// Persistence of the daily time-series point is best effort; the
		// computed snapshot is still correct.
		log.Printf("[Reputation] Failed to persist snapshot for tenant %s: %v", tenantID, err)
	}
	return snap, nil
}

// compute derives a fresh snapshot from the event log. Every call uses the
// same trailing-window definition so consecutive dashboard refreshes cannot
// drift.
func (t *Tracker) compute(ctx context.Context, tenantID string) (*domain.TenantReputationSnapshot, error) {
	since := time.Now().UTC().AddDate(0, 0, -t.cfg.WindowDays)
	counts, err := t.repo.WindowCounts(ctx, tenantID, since)
	if err != nil {
		return nil, err
	}

	suspension, err := t.repo.ActiveSuspension(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	bounce, complaint, engagement, warnings := counts.Rates()
	warnings = append(warnings, thresholdWarnings(bounce, complaint, t.cfg)...)

	tier := TierFor(bounce, complaint, engagement, t.cfg)
	if suspension != nil {
		tier = domain.TierSuspended
		warnings = append(warnings, "account suspended: "+suspension.Reason)
	}

	return &domain.TenantReputationSnapshot{
		TenantID:       tenantID,
		WindowDays:     t.cfg.WindowDays,
		Delivered:      counts.Delivered,
		BounceRate:     roundRate(bounce),
		ComplaintRate:  roundRate(complaint),
		EngagementRate: roundRate(engagement),
		Tier:           tier,
		CanSend:        CanSend(bounce, complaint, suspension != nil, t.cfg),
		Warnings:       warnings,
		ComputedAt:     time.Now().UTC(),
	}, nil
}

// EvaluateSuspension checks the latest snapshot against the threshold table
// and creates an automatic SuspensionRecord on breach. Returns the new record,
// or nil when no action was taken. Idempotent: an already-suspended tenant is
// never suspended twice.
func (t *Tracker) EvaluateSuspension(ctx context.Context, tenantID string) (*domain.SuspensionRecord, error) {
	existing, err := t.repo.ActiveSuspension(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("check active suspension: %w", err)
	}
	if existing != nil {
		return nil, nil
	}

	snap, err := t.compute(ctx, tenantID)
	if err != nil {
		// Never suspend on missing data.
		return nil, fmt.Errorf("compute snapshot: %w", err)
	}

	var reason string
	switch {
	case snap.BounceRate > t.cfg.BounceRateSuspend:
		reason = fmt.Sprintf("bounce rate %.2f%% exceeded %.2f%% threshold", snap.BounceRate, t.cfg.BounceRateSuspend)
	case snap.ComplaintRate > t.cfg.ComplaintRateSuspend:
		reason = fmt.Sprintf("complaint rate %.3f%% exceeded %.3f%% threshold", snap.ComplaintRate, t.cfg.ComplaintRateSuspend)
	default:
		return nil, nil
	}

	rec := &domain.SuspensionRecord{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Reason:      reason,
		TriggeredBy: domain.TriggerAutomatic,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := t.repo.CreateSuspension(ctx, rec); err != nil {
		return nil, fmt.Errorf("create suspension: %w", err)
	}
	log.Printf("[Reputation] Tenant %s automatically suspended: %s", tenantID, reason)

	if t.cache != nil {
		t.cache.Invalidate(ctx, tenantID)
	}
	return rec, nil
}

// Suspend creates a manual suspension. Requires review capability.
func (t *Tracker) Suspend(ctx context.Context, reviewer domain.ReviewerContext, tenantID, reason string) (*domain.SuspensionRecord, error) {
	if !domain.RoleCapabilities(reviewer.Role).CanReject {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("suspension reason is required")
	}
	if existing, err := t.repo.ActiveSuspension(ctx, tenantID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	rec := &domain.SuspensionRecord{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Reason:      reason,
		TriggeredBy: domain.TriggerManual,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := t.repo.CreateSuspension(ctx, rec); err != nil {
		return nil, fmt.Errorf("create suspension: %w", err)
	}
	if t.cache != nil {
		t.cache.Invalidate(ctx, tenantID)
	}
	log.Printf("[Reputation] Tenant %s manually suspended by %s: %s", tenantID, reviewer.ID, reason)
	return rec, nil
}

// LiftSuspension restores a tenant's sending. Deliberately manual-only:
// automatic triggers can suspend, but only an authorized human lifts.
func (t *Tracker) LiftSuspension(ctx context.Context, reviewer domain.ReviewerContext, tenantID string) error {
	if !domain.RoleCapabilities(reviewer.Role).CanApprove {
		return ErrUnauthorized
	}
	if err := t.repo.LiftSuspension(ctx, tenantID, reviewer.ID); err != nil {
		return err
	}
	if t.cache != nil {
		t.cache.Invalidate(ctx, tenantID)
	}
	log.Printf("[Reputation] Suspension lifted for tenant %s by %s", tenantID, reviewer.ID)
	return nil
}

// Recompute discards any cached snapshot and derives a fresh one straight
// from the event log. Used by the admin recompute tool after backfills or
// threshold changes.
func (t *Tracker) Recompute(ctx context.Context, tenantID string) (*domain.TenantReputationSnapshot, error) {
	snap, err := t.compute(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if t.cache != nil {
		t.cache.Set(ctx, snap)
	}
	if err := t.repo.SaveSnapshot(ctx, snap); err != nil {
		log.Printf("[Reputation] Failed to persist recomputed snapshot for tenant %s: %v", tenantID, err)
	}
	return snap, nil
}

// TrendHistory returns the tenant's daily snapshot series for the dashboard
// trend chart, oldest first.
func (t *Tracker) TrendHistory(ctx context.Context, tenantID string, days int) ([]domain.TenantReputationSnapshot, error) {
	if days <= 0 {
		days = t.cfg.WindowDays
	}
	return t.repo.SnapshotHistory(ctx, tenantID, days)
}

// Recommendations turns a snapshot into operator guidance for the dashboard.
func Recommendations(snap *domain.TenantReputationSnapshot) []string {
	var recs []string
	switch snap.Tier {
	case domain.TierSuspended:
		recs = append(recs, "Sending is suspended. Resolve the listed cause, then contact support to request a manual review.")
	case domain.TierPoor:
		recs = append(recs, "Pause campaigns and clean your list: remove bounced and unengaged fans before sending again.")
	case domain.TierFair:
		recs = append(recs, "Tighten signup sources and enable double opt-in to stop list decay.")
	case domain.TierGood:
		recs = append(recs, "Reputation is healthy. Keep import volumes steady to avoid velocity flags.")
	case domain.TierExcellent:
		recs = append(recs, "Reputation is excellent. No action needed.")
	}
	if snap.Stale {
		recs = append(recs, "Metrics are stale; treat rates as a lower bound until the event log recovers.")
	}
	return recs
}

func roundRate(v float64) float64 {
	// Two decimal places is what the dashboard renders; keep the stored
	// value consistent with it.
	return float64(int64(v*100+0.5)) / 100
}
