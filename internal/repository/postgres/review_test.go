package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/loopletter/reputation-core/internal/domain"
	"github.com/loopletter/reputation-core/internal/service/review"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

func TestReviewRepo_CreateEntry_DuplicatePending(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	// The partial unique index fires a 23505 for a second pending entry.
	mock.ExpectExec("INSERT INTO review_queue").
		WillReturnError(&pq.Error{Code: "23505"})

	repo := NewReviewRepo(db)
	err := repo.CreateEntry(context.Background(), &domain.ReviewQueueEntry{
		TenantID:  "t1",
		ContactID: "c1",
		State:     domain.ReviewPending,
		CreatedAt: time.Now(),
	})
	if !errors.Is(err, review.ErrDuplicatePending) {
		t.Errorf("expected ErrDuplicatePending, got %v", err)
	}
}

func TestReviewRepo_CreateEntry_PersistsAssessmentTime(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	assessed := time.Now().Add(-time.Minute).UTC()
	created := time.Now().UTC()
	mock.ExpectExec("INSERT INTO review_queue").
		WithArgs("e1", "t1", "c1", "fan@example.com",
			40, "medium", sqlmock.AnyArg(), "Repeated signup attempts", sqlmock.AnyArg(), "spam_detection",
			assessed, created).
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewReviewRepo(db)
	err := repo.CreateEntry(context.Background(), &domain.ReviewQueueEntry{
		ID:           "e1",
		TenantID:     "t1",
		ContactID:    "c1",
		ContactEmail: "fan@example.com",
		Assessment: domain.RiskAssessment{
			Score:          40,
			Level:          domain.RiskMedium,
			Flags:          []domain.RiskFlag{domain.FlagDuplicateBurst},
			PrimaryConcern: "Repeated signup attempts",
			ReviewType:     domain.ReviewSpamDetection,
			CreatedAt:      assessed,
		},
		State:     domain.ReviewPending,
		CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReviewRepo_ResolveEntry_CASLoserGetsInvalidTransition(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	// Zero rows affected but the entry exists: a concurrent reviewer won.
	mock.ExpectExec("UPDATE review_queue").
		WithArgs(domain.ReviewApproved, "u1", "", sqlmock.AnyArg(), "e1", "t1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("e1", "t1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	repo := NewReviewRepo(db)
	err := repo.ResolveEntry(context.Background(), "t1", "e1", domain.ReviewApproved, "u1", "", time.Now())
	if !errors.Is(err, review.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReviewRepo_ResolveEntry_MissingEntryIsNotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE review_queue").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	repo := NewReviewRepo(db)
	err := repo.ResolveEntry(context.Background(), "t1", "missing", domain.ReviewRejected, "u1", "", time.Now())
	if !errors.Is(err, review.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReviewRepo_ResolveEntry_Winner(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE review_queue").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewReviewRepo(db)
	if err := repo.ResolveEntry(context.Background(), "t1", "e1", domain.ReviewApproved, "u1", "fine", time.Now()); err != nil {
		t.Errorf("winner should resolve cleanly, got %v", err)
	}
}

func TestReviewRepo_CountByState(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT state, COUNT").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"state", "count"}).
			AddRow("pending", 4).
			AddRow("approved", 2).
			AddRow("rejected", 1))

	repo := NewReviewRepo(db)
	counts, err := repo.CountByState(context.Background(), "t1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[domain.ReviewPending] != 4 || counts[domain.ReviewApproved] != 2 || counts[domain.ReviewRejected] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestReviewRepo_LatestRejection_NoneIsNil(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT MAX").
		WithArgs("t1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	repo := NewReviewRepo(db)
	ts, err := repo.LatestRejection(context.Background(), "t1", "c1")
	if err != nil {
		t.Fatalf("latest rejection: %v", err)
	}
	if ts != nil {
		t.Errorf("expected nil for contact with no rejections, got %v", ts)
	}
}

func TestReviewRepo_GetEntry_ScansAssessment(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM review_queue").
		WithArgs("e1", "t1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "contact_id", "contact_email",
			"risk_score", "risk_level", "risk_flags", "primary_concern", "recommendations", "review_type", "assessed_at",
			"state", "reviewer_id", "notes", "decided_at", "created_at",
		}).AddRow(
			"e1", "t1", "c1", "fan@mailinator.com",
			72, "high", "{disposable_domain,no_mx_records}", "Disposable email domain", "{Reject unless verified}", "spam_detection", now,
			"pending", nil, nil, nil, now,
		))

	repo := NewReviewRepo(db)
	e, err := repo.GetEntry(context.Background(), "t1", "e1")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if e.Assessment.Score != 72 || e.Assessment.Level != domain.RiskHigh {
		t.Errorf("assessment not scanned: %+v", e.Assessment)
	}
	if len(e.Assessment.Flags) != 2 || e.Assessment.Flags[0] != domain.FlagDisposableDomain {
		t.Errorf("flags not scanned: %v", e.Assessment.Flags)
	}
	if !e.Assessment.CreatedAt.Equal(now) {
		t.Errorf("assessment timestamp not scanned: %v", e.Assessment.CreatedAt)
	}
	if e.DecidedAt != nil || e.ReviewerID != "" {
		t.Errorf("pending entry must have no decision fields: %+v", e)
	}
}
