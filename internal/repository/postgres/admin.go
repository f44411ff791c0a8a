package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/loopletter/reputation-core/internal/admintools"
	"github.com/loopletter/reputation-core/internal/domain"
)

// adminBatchSize limits each cleanup DELETE so long-running statements never
// hold table locks against production traffic.
const adminBatchSize = 10000

// AdminRepo implements admintools.Store against PostgreSQL.
type AdminRepo struct{ db *sql.DB }

// NewAdminRepo creates a Postgres-backed admin tools repository.
func NewAdminRepo(db *sql.DB) *AdminRepo { return &AdminRepo{db: db} }

func (r *AdminRepo) DeleteOldDeliveryEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	return r.batchDelete(ctx, `
		DELETE FROM delivery_events
		WHERE id IN (
			SELECT id FROM delivery_events
			WHERE occurred_at < $1
			LIMIT $2
		)
	`, olderThan)
}

// PurgeRejectedContacts blanks PII on long-rejected contacts. The row itself
// stays: a suppressed tombstone must survive the purge or the contact could
// sign up again with no history.
func (r *AdminRepo) PurgeRejectedContacts(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE contacts c
		SET email = 'purged-' || c.id || '@invalid.local', name = '', updated_at = NOW()
		FROM review_queue rq
		WHERE rq.contact_id = c.id
		  AND rq.state = 'rejected'
		  AND rq.decided_at < $1
		  AND c.status = 'suppressed'
		  AND c.email NOT LIKE 'purged-%'
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge rejected contacts: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *AdminRepo) SearchContacts(ctx context.Context, query string, limit int) ([]domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, email, COALESCE(name, ''), source, status, created_at, updated_at
		FROM contacts
		WHERE email ILIKE $1 OR name ILIKE $1
		ORDER BY created_at DESC
		LIMIT $2
	`, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search contacts: %w", err)
	}
	defer rows.Close()

	var out []domain.Contact
	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Email, &c.Name, &c.Source, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *AdminRepo) SearchReviewEntries(ctx context.Context, query string, limit int) ([]domain.ReviewQueueEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+reviewEntryColumns+`
		FROM review_queue
		WHERE contact_email ILIKE $1
		ORDER BY created_at DESC
		LIMIT $2
	`, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search review entries: %w", err)
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

func (r *AdminRepo) SearchTenants(ctx context.Context, query string, limit int) ([]admintools.TenantSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name
		FROM tenants
		WHERE name ILIKE $1
		ORDER BY name
		LIMIT $2
	`, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search tenants: %w", err)
	}
	defer rows.Close()

	var out []admintools.TenantSummary
	for rows.Next() {
		var t admintools.TenantSummary
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *AdminRepo) QueueHealth(ctx context.Context) (admintools.QueueHealth, error) {
	var qh admintools.QueueHealth
	var oldest sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at)
		FROM review_queue
		WHERE state = 'pending'
	`).Scan(&qh.PendingDepth, &oldest)
	if err != nil {
		return admintools.QueueHealth{}, fmt.Errorf("queue health: %w", err)
	}
	if oldest.Valid {
		qh.OldestPending = &oldest.Time
	}
	return qh, nil
}

func (r *AdminRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// batchDelete runs the DELETE in a loop, passing adminBatchSize as the LIMIT
// argument, until zero rows are affected. Each batch is its own transaction;
// a mid-run failure leaves prior batches committed, which is acceptable for
// retention cleanup — the next run picks up where this one stopped.
func (r *AdminRepo) batchDelete(ctx context.Context, query string, cutoff time.Time) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res, err := r.db.ExecContext(ctx, query, cutoff, adminBatchSize)
		if err != nil {
			return total, fmt.Errorf("batch delete: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
		if n < adminBatchSize {
			return total, nil
		}
	}
}
