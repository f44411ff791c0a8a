package admintools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/loopletter/reputation-core/internal/config"
	"github.com/loopletter/reputation-core/internal/domain"
)

type mockStore struct {
	deletedEvents  int64
	purgedContacts int64
	lastCutoff     time.Time
	pingErr        error
	searchErr      error
	queue          QueueHealth
}

func (m *mockStore) DeleteOldDeliveryEvents(_ context.Context, olderThan time.Time) (int64, error) {
	m.lastCutoff = olderThan
	return m.deletedEvents, nil
}

func (m *mockStore) PurgeRejectedContacts(_ context.Context, olderThan time.Time) (int64, error) {
	m.lastCutoff = olderThan
	return m.purgedContacts, nil
}

func (m *mockStore) SearchContacts(_ context.Context, q string, _ int) ([]domain.Contact, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if strings.Contains("fan@example.com", q) {
		return []domain.Contact{{ID: "c1", Email: "fan@example.com"}}, nil
	}
	return nil, nil
}

func (m *mockStore) SearchReviewEntries(_ context.Context, q string, _ int) ([]domain.ReviewQueueEntry, error) {
	return nil, m.searchErr
}

func (m *mockStore) SearchTenants(_ context.Context, q string, _ int) ([]TenantSummary, error) {
	if strings.Contains("the midnight band", q) {
		return []TenantSummary{{ID: "t1", Name: "the midnight band"}}, nil
	}
	return nil, m.searchErr
}

func (m *mockStore) QueueHealth(_ context.Context) (QueueHealth, error) {
	return m.queue, nil
}

func (m *mockStore) Ping(_ context.Context) error { return m.pingErr }

type mockPinger struct{ err error }

func (p *mockPinger) Ping(_ context.Context) error { return p.err }

type mockRecomputer struct {
	snap *domain.TenantReputationSnapshot
	err  error
}

func (r *mockRecomputer) Recompute(_ context.Context, tenantID string) (*domain.TenantReputationSnapshot, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.snap, nil
}

func testRetention() config.RetentionConfig {
	return config.RetentionConfig{DeliveryEventDays: 90, RejectedFanDays: 30}
}

func TestExecute_UnknownAction(t *testing.T) {
	ex := NewExecutor(&mockStore{}, nil, &mockRecomputer{}, testRetention())

	res := ex.Execute(context.Background(), "drop_all_tables", nil)
	if res.Success {
		t.Fatal("unknown action must not succeed")
	}
	if !strings.Contains(res.Error, "unknown action") {
		t.Errorf("expected unknown-action error, got %q", res.Error)
	}
}

func TestExecute_BulkOperationAlwaysDisabled(t *testing.T) {
	ex := NewExecutor(&mockStore{}, nil, &mockRecomputer{}, testRetention())

	res := ex.Execute(context.Background(), "execute_bulk_operation", map[string]string{
		"operation": "delete_contacts",
		"confirm":   "true",
	})
	if res.Success {
		t.Fatal("bulk operations must never succeed")
	}
	if res.Error != "Bulk operations are disabled for safety" {
		t.Errorf("unexpected error message: %q", res.Error)
	}
}

func TestBulkMode_ZeroValueDisabled(t *testing.T) {
	var m BulkMode
	if m.Enabled() {
		t.Error("zero-value BulkMode must be disabled")
	}
	if DisabledBulkMode().Enabled() {
		t.Error("DisabledBulkMode must be disabled")
	}
}

func TestExecute_CleanupOldLogs(t *testing.T) {
	store := &mockStore{deletedEvents: 1234}
	ex := NewExecutor(store, nil, &mockRecomputer{}, testRetention())

	res := ex.Execute(context.Background(), "cleanup_old_logs", nil)
	if !res.Success {
		t.Fatalf("cleanup failed: %q", res.Error)
	}
	if !strings.Contains(res.Message, "1234") {
		t.Errorf("message should report deleted count, got %q", res.Message)
	}
	wantCutoff := time.Now().UTC().AddDate(0, 0, -90)
	if diff := store.lastCutoff.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Errorf("cutoff should honor the 90-day retention window, got %s", store.lastCutoff)
	}
}

func TestExecute_CleanupRejectedFans(t *testing.T) {
	store := &mockStore{purgedContacts: 7}
	ex := NewExecutor(store, nil, &mockRecomputer{}, testRetention())

	res := ex.Execute(context.Background(), "cleanup_rejected_fans", nil)
	if !res.Success {
		t.Fatalf("cleanup failed: %q", res.Error)
	}
	if !strings.Contains(res.Message, "7 contacts") {
		t.Errorf("message should report purge count, got %q", res.Message)
	}
}

func TestExecute_SearchPlatform(t *testing.T) {
	ex := NewExecutor(&mockStore{}, nil, &mockRecomputer{}, testRetention())

	res := ex.Execute(context.Background(), "search_platform", map[string]string{"query": "fan@"})
	if !res.Success {
		t.Fatalf("search failed: %q", res.Error)
	}
	results, ok := res.Data.(SearchResults)
	if !ok {
		t.Fatalf("expected SearchResults payload, got %T", res.Data)
	}
	if len(results.Contacts) != 1 {
		t.Errorf("expected one contact hit, got %d", len(results.Contacts))
	}
}

func TestExecute_SearchPlatform_RequiresQuery(t *testing.T) {
	ex := NewExecutor(&mockStore{}, nil, &mockRecomputer{}, testRetention())

	res := ex.Execute(context.Background(), "search_platform", map[string]string{"query": "  "})
	if res.Success {
		t.Fatal("empty query must be a validation failure")
	}
}

func TestExecute_SystemHealthCheck_AllHealthy(t *testing.T) {
	store := &mockStore{queue: QueueHealth{PendingDepth: 3}}
	ex := NewExecutor(store, &mockPinger{}, &mockRecomputer{}, testRetention())

	res := ex.Execute(context.Background(), "system_health_check", nil)
	if !res.Success {
		t.Fatalf("expected healthy result, got %q", res.Error)
	}
}

func TestExecute_SystemHealthCheck_ReportsDownComponents(t *testing.T) {
	store := &mockStore{pingErr: errors.New("connection refused")}
	ex := NewExecutor(store, &mockPinger{err: errors.New("timeout")}, &mockRecomputer{}, testRetention())

	res := ex.Execute(context.Background(), "system_health_check", nil)
	if res.Success {
		t.Fatal("health check must fail when components are down")
	}
	data := res.Data.(map[string]interface{})
	checks := data["checks"].(map[string]string)
	if !strings.HasPrefix(checks["database"], "down") {
		t.Errorf("database check should be down, got %q", checks["database"])
	}
	if !strings.HasPrefix(checks["cache"], "down") {
		t.Errorf("cache check should be down, got %q", checks["cache"])
	}
}

func TestExecute_RecomputeReputation(t *testing.T) {
	rec := &mockRecomputer{snap: &domain.TenantReputationSnapshot{
		TenantID: "t1",
		Tier:     domain.TierGood,
		CanSend:  true,
	}}
	ex := NewExecutor(&mockStore{}, nil, rec, testRetention())

	res := ex.Execute(context.Background(), "recompute_reputation", map[string]string{"tenant_id": "t1"})
	if !res.Success {
		t.Fatalf("recompute failed: %q", res.Error)
	}
	if !strings.Contains(res.Message, "tier=good") {
		t.Errorf("message should include the new tier, got %q", res.Message)
	}
}

func TestExecute_RecomputeReputation_RequiresTenant(t *testing.T) {
	ex := NewExecutor(&mockStore{}, nil, &mockRecomputer{}, testRetention())

	res := ex.Execute(context.Background(), "recompute_reputation", nil)
	if res.Success {
		t.Fatal("missing tenant_id must be a validation failure")
	}
}
