package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/loopletter/reputation-core/internal/domain"
	"github.com/loopletter/reputation-core/internal/reputation"
)

// ReputationRepo implements reputation.Repository against PostgreSQL. The
// delivery_events table is append-only; rates are always derived by counting
// over the trailing window, never by mutating running totals.
type ReputationRepo struct{ db *sql.DB }

// NewReputationRepo creates a Postgres-backed reputation repository.
func NewReputationRepo(db *sql.DB) *ReputationRepo { return &ReputationRepo{db: db} }

func (r *ReputationRepo) AppendEvent(ctx context.Context, ev *domain.DeliveryEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO delivery_events (id, tenant_id, event_type, message_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.ID, ev.TenantID, ev.Type, ev.MessageID, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("append delivery event: %w", err)
	}
	return nil
}

func (r *ReputationRepo) WindowCounts(ctx context.Context, tenantID string, since time.Time) (reputation.WindowCounts, error) {
	var c reputation.WindowCounts
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE event_type = 'sent'),
			COUNT(*) FILTER (WHERE event_type = 'delivered'),
			COUNT(*) FILTER (WHERE event_type = 'bounced'),
			COUNT(*) FILTER (WHERE event_type = 'complained'),
			COUNT(*) FILTER (WHERE event_type = 'opened'),
			COUNT(*) FILTER (WHERE event_type = 'clicked')
		FROM delivery_events
		WHERE tenant_id = $1 AND occurred_at >= $2
	`, tenantID, since).Scan(&c.Sent, &c.Delivered, &c.Bounced, &c.Complained, &c.Opened, &c.Clicked)
	if err != nil {
		return reputation.WindowCounts{}, fmt.Errorf("window counts: %w", err)
	}
	return c, nil
}

func (r *ReputationRepo) SaveSnapshot(ctx context.Context, snap *domain.TenantReputationSnapshot) error {
	// One time-series point per tenant per day; recomputation within a day
	// overwrites that day's point.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reputation_snapshots (
			tenant_id, snapshot_date, window_days, delivered,
			bounce_rate, complaint_rate, engagement_rate,
			tier, can_send, warnings, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, snapshot_date) DO UPDATE SET
			window_days = $3, delivered = $4,
			bounce_rate = $5, complaint_rate = $6, engagement_rate = $7,
			tier = $8, can_send = $9, warnings = $10, computed_at = $11
	`, snap.TenantID, snap.ComputedAt.UTC().Format("2006-01-02"), snap.WindowDays, snap.Delivered,
		snap.BounceRate, snap.ComplaintRate, snap.EngagementRate,
		snap.Tier, snap.CanSend, pq.Array(snap.Warnings), snap.ComputedAt)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (r *ReputationRepo) SnapshotHistory(ctx context.Context, tenantID string, days int) ([]domain.TenantReputationSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tenant_id, window_days, delivered,
		       bounce_rate, complaint_rate, engagement_rate,
		       tier, can_send, warnings, computed_at
		FROM reputation_snapshots
		WHERE tenant_id = $1 AND snapshot_date >= CURRENT_DATE - $2::int
		ORDER BY snapshot_date ASC
	`, tenantID, days)
	if err != nil {
		return nil, fmt.Errorf("snapshot history: %w", err)
	}
	defer rows.Close()

	var out []domain.TenantReputationSnapshot
	for rows.Next() {
		var s domain.TenantReputationSnapshot
		var warnings pq.StringArray
		if err := rows.Scan(
			&s.TenantID, &s.WindowDays, &s.Delivered,
			&s.BounceRate, &s.ComplaintRate, &s.EngagementRate,
			&s.Tier, &s.CanSend, &warnings, &s.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		s.Warnings = warnings
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ReputationRepo) ActiveSuspension(ctx context.Context, tenantID string) (*domain.SuspensionRecord, error) {
	var rec domain.SuspensionRecord
	var liftedAt sql.NullTime
	var liftedBy sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, reason, triggered_by, active, lifted_at, lifted_by, created_at
		FROM suspensions
		WHERE tenant_id = $1 AND active = true
		ORDER BY created_at DESC
		LIMIT 1
	`, tenantID).Scan(
		&rec.ID, &rec.TenantID, &rec.Reason, &rec.TriggeredBy, &rec.Active,
		&liftedAt, &liftedBy, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active suspension: %w", err)
	}
	if liftedAt.Valid {
		rec.LiftedAt = &liftedAt.Time
	}
	rec.LiftedBy = liftedBy.String
	return &rec, nil
}

func (r *ReputationRepo) CreateSuspension(ctx context.Context, rec *domain.SuspensionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO suspensions (id, tenant_id, reason, triggered_by, active, created_at)
		VALUES ($1, $2, $3, $4, true, $5)
	`, rec.ID, rec.TenantID, rec.Reason, rec.TriggeredBy, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("create suspension: %w", err)
	}
	return nil
}

func (r *ReputationRepo) LiftSuspension(ctx context.Context, tenantID, liftedBy string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE suspensions
		SET active = false, lifted_at = NOW(), lifted_by = $1
		WHERE tenant_id = $2 AND active = true
	`, liftedBy, tenantID)
	if err != nil {
		return fmt.Errorf("lift suspension: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return reputation.ErrNoActiveSuspension
	}
	return nil
}
