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
	"github.com/loopletter/reputation-core/internal/service/review"
)

// ReviewRepo implements review.Repository against PostgreSQL.
//
// Duplicate-pending protection lives in the database: review_queue has a
// partial unique index on (tenant_id, contact_id) WHERE state = 'pending',
// so concurrent enqueues cannot slip a second pending entry past an
// application-level check.
type ReviewRepo struct{ db *sql.DB }

// NewReviewRepo creates a Postgres-backed review repository.
func NewReviewRepo(db *sql.DB) *ReviewRepo { return &ReviewRepo{db: db} }

const reviewEntryColumns = `
	id, tenant_id, contact_id, contact_email,
	risk_score, risk_level, risk_flags, primary_concern, recommendations, review_type, assessed_at,
	state, reviewer_id, notes, decided_at, created_at
`

func (r *ReviewRepo) CreateEntry(ctx context.Context, e *domain.ReviewQueueEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	assessedAt := e.Assessment.CreatedAt
	if assessedAt.IsZero() {
		assessedAt = e.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO review_queue (
			id, tenant_id, contact_id, contact_email,
			risk_score, risk_level, risk_flags, primary_concern, recommendations, review_type, assessed_at,
			state, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'pending', $12)
	`, e.ID, e.TenantID, e.ContactID, e.ContactEmail,
		e.Assessment.Score, e.Assessment.Level, pq.Array(flagStrings(e.Assessment.Flags)),
		e.Assessment.PrimaryConcern, pq.Array(e.Assessment.Recommendations), e.Assessment.ReviewType,
		assessedAt, e.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return review.ErrDuplicatePending
		}
		return fmt.Errorf("create review entry: %w", err)
	}
	return nil
}

func (r *ReviewRepo) GetEntry(ctx context.Context, tenantID, entryID string) (*domain.ReviewQueueEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+reviewEntryColumns+`
		FROM review_queue
		WHERE id = $1 AND tenant_id = $2
	`, entryID, tenantID)
	return scanReviewEntry(row)
}

func (r *ReviewRepo) ResolveEntry(ctx context.Context, tenantID, entryID string, state domain.ReviewState, reviewerID, notes string, decidedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE review_queue
		SET state = $1, reviewer_id = $2, notes = $3, decided_at = $4
		WHERE id = $5 AND tenant_id = $6 AND state = 'pending'
	`, state, reviewerID, notes, decidedAt, entryID, tenantID)
	if err != nil {
		return fmt.Errorf("resolve review entry: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Entry missing, or a concurrent reviewer already resolved it. Decide
		// which so the caller can tell a race from a bad id.
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM review_queue WHERE id = $1 AND tenant_id = $2)`,
			entryID, tenantID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("resolve review entry: %w", err)
		}
		if exists {
			return review.ErrInvalidTransition
		}
		return review.ErrNotFound
	}
	return nil
}

func (r *ReviewRepo) ListEntries(ctx context.Context, tenantID string, f review.Filter) ([]domain.ReviewQueueEntry, error) {
	query := `
		SELECT ` + reviewEntryColumns + `
		FROM review_queue
		WHERE tenant_id = $1
	`
	args := []interface{}{tenantID}

	if f.State != "" {
		args = append(args, f.State)
		query += fmt.Sprintf(" AND state = $%d", len(args))
	}
	if f.RiskLevel != "" {
		args = append(args, f.RiskLevel)
		query += fmt.Sprintf(" AND risk_level = $%d", len(args))
	}
	if f.ReviewType != "" {
		args = append(args, f.ReviewType)
		query += fmt.Sprintf(" AND review_type = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		query += fmt.Sprintf(" AND contact_email ILIKE $%d", len(args))
	}

	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list review entries: %w", err)
	}
	defer rows.Close()

	var out []domain.ReviewQueueEntry
	for rows.Next() {
		e, err := scanReviewEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *ReviewRepo) CountByState(ctx context.Context, tenantID string) (map[domain.ReviewState]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT state, COUNT(*)
		FROM review_queue
		WHERE tenant_id = $1
		GROUP BY state
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("count review entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ReviewState]int)
	for rows.Next() {
		var state domain.ReviewState
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan state count: %w", err)
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

func (r *ReviewRepo) GetContact(ctx context.Context, tenantID, contactID string) (*domain.Contact, error) {
	var c domain.Contact
	var name sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, email, name, source, status, created_at, updated_at
		FROM contacts
		WHERE id = $1 AND tenant_id = $2
	`, contactID, tenantID).Scan(
		&c.ID, &c.TenantID, &c.Email, &name, &c.Source, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, review.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	c.Name = name.String
	return &c, nil
}

func (r *ReviewRepo) UpdateContactStatus(ctx context.Context, tenantID, contactID string, status domain.ContactStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE contacts SET status = $1, updated_at = NOW()
		WHERE id = $2 AND tenant_id = $3
	`, status, contactID, tenantID)
	if err != nil {
		return fmt.Errorf("update contact status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return review.ErrNotFound
	}
	return nil
}

func (r *ReviewRepo) LatestRejection(ctx context.Context, tenantID, contactID string) (*time.Time, error) {
	var decidedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(decided_at)
		FROM review_queue
		WHERE tenant_id = $1 AND contact_id = $2 AND state = 'rejected'
	`, tenantID, contactID).Scan(&decidedAt)
	if err != nil {
		return nil, fmt.Errorf("latest rejection: %w", err)
	}
	if !decidedAt.Valid {
		return nil, nil
	}
	return &decidedAt.Time, nil
}

func (r *ReviewRepo) LatestConsent(ctx context.Context, tenantID, contactID string) (*domain.ConsentEvent, error) {
	var ev domain.ConsentEvent
	err := r.db.QueryRowContext(ctx, `
		SELECT id, contact_id, tenant_id, source, recorded_at
		FROM consent_events
		WHERE tenant_id = $1 AND contact_id = $2
		ORDER BY recorded_at DESC
		LIMIT 1
	`, tenantID, contactID).Scan(&ev.ID, &ev.ContactID, &ev.TenantID, &ev.Source, &ev.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest consent: %w", err)
	}
	return &ev, nil
}

func (r *ReviewRepo) RecordConsent(ctx context.Context, ev *domain.ConsentEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO consent_events (id, contact_id, tenant_id, source, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.ID, ev.ContactID, ev.TenantID, ev.Source, ev.RecordedAt)
	if err != nil {
		return fmt.Errorf("record consent: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReviewEntry(row rowScanner) (*domain.ReviewQueueEntry, error) {
	var e domain.ReviewQueueEntry
	var flags, recs pq.StringArray
	var reviewerID, notes, primaryConcern sql.NullString
	var decidedAt sql.NullTime

	err := row.Scan(
		&e.ID, &e.TenantID, &e.ContactID, &e.ContactEmail,
		&e.Assessment.Score, &e.Assessment.Level, &flags, &primaryConcern, &recs, &e.Assessment.ReviewType,
		&e.Assessment.CreatedAt,
		&e.State, &reviewerID, &notes, &decidedAt, &e.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, review.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan review entry: %w", err)
	}

	e.Assessment.ContactID = e.ContactID
	e.Assessment.TenantID = e.TenantID
	e.Assessment.PrimaryConcern = primaryConcern.String
	e.Assessment.Recommendations = recs
	e.Assessment.Flags = make([]domain.RiskFlag, len(flags))
	for i, f := range flags {
		e.Assessment.Flags[i] = domain.RiskFlag(f)
	}
	e.ReviewerID = reviewerID.String
	e.Notes = notes.String
	if decidedAt.Valid {
		e.DecidedAt = &decidedAt.Time
	}
	return &e, nil
}

func flagStrings(flags []domain.RiskFlag) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = string(f)
	}
	return out
}
