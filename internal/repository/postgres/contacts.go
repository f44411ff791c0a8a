package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loopletter/reputation-core/internal/domain"
)

// ErrContactExists is returned when creating a contact whose email already
// exists for the tenant.
var ErrContactExists = errors.New("contact already exists for this tenant")

// ContactRepo handles signup intake persistence: contact rows plus the
// signup_attempts log the velocity and duplicate-burst signals read from.
type ContactRepo struct{ db *sql.DB }

// NewContactRepo creates a Postgres-backed contact repository.
func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

func (r *ContactRepo) Create(ctx context.Context, c *domain.Contact) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO contacts (id, tenant_id, email, name, source, status, created_at, updated_at)
		VALUES ($1, $2, LOWER($3), $4, $5, $6, NOW(), NOW())
		ON CONFLICT (tenant_id, email) DO NOTHING
	`, c.ID, c.TenantID, c.Email, c.Name, c.Source, c.Status)
	if err != nil {
		return fmt.Errorf("create contact: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrContactExists
	}
	return nil
}

func (r *ContactRepo) GetByEmail(ctx context.Context, tenantID, email string) (*domain.Contact, error) {
	var c domain.Contact
	var name sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, email, name, source, status, created_at, updated_at
		FROM contacts
		WHERE tenant_id = $1 AND email = LOWER($2)
	`, tenantID, email).Scan(
		&c.ID, &c.TenantID, &c.Email, &name, &c.Source, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contact by email: %w", err)
	}
	c.Name = name.String
	return &c, nil
}

// RecordSignupAttempt logs one intake attempt. Every POST hits this before
// scoring so the velocity counters see the attempt that is being scored.
func (r *ContactRepo) RecordSignupAttempt(ctx context.Context, tenantID, email string, source domain.SignupSource) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO signup_attempts (id, tenant_id, email, source, attempted_at)
		VALUES ($1, $2, LOWER($3), $4, NOW())
	`, uuid.New().String(), tenantID, email, source)
	if err != nil {
		return fmt.Errorf("record signup attempt: %w", err)
	}
	return nil
}

// SignupsSince counts intake attempts for the tenant after the given time.
func (r *ContactRepo) SignupsSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM signup_attempts
		WHERE tenant_id = $1 AND attempted_at >= $2
	`, tenantID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("signups since: %w", err)
	}
	return n, nil
}

// DuplicateAttemptsSince counts intake attempts for one email after the given
// time. Repeated submissions of the same address in a short burst are a bot
// signal.
func (r *ContactRepo) DuplicateAttemptsSince(ctx context.Context, tenantID, email string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM signup_attempts
		WHERE tenant_id = $1 AND email = LOWER($2) AND attempted_at >= $3
	`, tenantID, email, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("duplicate attempts since: %w", err)
	}
	return n, nil
}
