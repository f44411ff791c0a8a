package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/loopletter/reputation-core/internal/domain"
	"github.com/loopletter/reputation-core/internal/reputation"
)

func TestReputationRepo_WindowCounts(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	since := time.Now().AddDate(0, 0, -30)
	mock.ExpectQuery("SELECT(.+)FROM delivery_events").
		WithArgs("t1", since).
		WillReturnRows(sqlmock.NewRows([]string{"sent", "delivered", "bounced", "complained", "opened", "clicked"}).
			AddRow(10500, 10000, 200, 5, 2000, 800))

	repo := NewReputationRepo(db)
	counts, err := repo.WindowCounts(context.Background(), "t1", since)
	if err != nil {
		t.Fatalf("window counts: %v", err)
	}
	if counts.Delivered != 10000 || counts.Bounced != 200 || counts.Complained != 5 {
		t.Errorf("unexpected counts: %+v", counts)
	}
}

func TestReputationRepo_AppendEvent(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO delivery_events").
		WithArgs(sqlmock.AnyArg(), "t1", domain.EventBounced, "msg-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewReputationRepo(db)
	err := repo.AppendEvent(context.Background(), &domain.DeliveryEvent{
		TenantID:   "t1",
		Type:       domain.EventBounced,
		MessageID:  "msg-1",
		OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReputationRepo_ActiveSuspension_NoneIsNil(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT(.+)FROM suspensions").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewReputationRepo(db)
	rec, err := repo.ActiveSuspension(context.Background(), "t1")
	if err != nil {
		t.Fatalf("active suspension: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil without an active suspension, got %+v", rec)
	}
}

func TestReputationRepo_LiftSuspension_NoneActive(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE suspensions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewReputationRepo(db)
	err := repo.LiftSuspension(context.Background(), "t1", "u1")
	if !errors.Is(err, reputation.ErrNoActiveSuspension) {
		t.Errorf("expected ErrNoActiveSuspension, got %v", err)
	}
}

func TestAdminRepo_BatchDeleteLoopsUntilDrained(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	// First batch full, second partial: loop must stop after the second.
	mock.ExpectExec("DELETE FROM delivery_events").
		WillReturnResult(sqlmock.NewResult(0, adminBatchSize))
	mock.ExpectExec("DELETE FROM delivery_events").
		WillReturnResult(sqlmock.NewResult(0, 42))

	repo := NewAdminRepo(db)
	total, err := repo.DeleteOldDeliveryEvents(context.Background(), time.Now().AddDate(0, 0, -90))
	if err != nil {
		t.Fatalf("delete old events: %v", err)
	}
	if total != adminBatchSize+42 {
		t.Errorf("expected cumulative count %d, got %d", adminBatchSize+42, total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
