package reputation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/loopletter/reputation-core/internal/domain"
)

func setupTestCache(t *testing.T) (*SnapshotCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewSnapshotCache(client, 5*time.Minute), mr
}

func testSnapshot() *domain.TenantReputationSnapshot {
	return &domain.TenantReputationSnapshot{
		TenantID:      testTenant,
		WindowDays:    30,
		Delivered:     1000,
		BounceRate:    1.5,
		ComplaintRate: 0.02,
		Tier:          domain.TierGood,
		CanSend:       true,
		ComputedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestSnapshotCache_SetGet(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, testSnapshot())

	got, fresh := cache.Get(ctx, testTenant)
	if !fresh {
		t.Fatal("expected fresh cache hit after Set")
	}
	if got.BounceRate != 1.5 || got.Tier != domain.TierGood {
		t.Errorf("unexpected snapshot from cache: %+v", got)
	}
}

func TestSnapshotCache_MissOnUnknownTenant(t *testing.T) {
	cache, _ := setupTestCache(t)

	if _, fresh := cache.Get(context.Background(), "nobody"); fresh {
		t.Error("expected miss for unknown tenant")
	}
}

func TestSnapshotCache_TTLExpiry_KeepsLastGood(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, testSnapshot())
	mr.FastForward(10 * time.Minute)

	if _, fresh := cache.Get(ctx, testTenant); fresh {
		t.Error("expected fresh copy to expire after TTL")
	}
	stale, ok := cache.GetLastGood(ctx, testTenant)
	if !ok {
		t.Fatal("expected last-good copy to survive TTL expiry")
	}
	if stale.TenantID != testTenant {
		t.Errorf("unexpected last-good snapshot: %+v", stale)
	}
}

func TestSnapshotCache_InvalidateKeepsLastGood(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, testSnapshot())
	cache.Invalidate(ctx, testTenant)

	if _, fresh := cache.Get(ctx, testTenant); fresh {
		t.Error("expected invalidation to drop the fresh copy")
	}
	if _, ok := cache.GetLastGood(ctx, testTenant); !ok {
		t.Error("invalidation must keep the last-good fallback")
	}
}

func TestTracker_ServesStaleSnapshotDuringOutage(t *testing.T) {
	cache, mr := setupTestCache(t)
	repo := newMockRepo()
	tr := NewTracker(repo, cache, testCfg())
	seedEvents(t, tr, 1000, 20, 0, 300)

	// Prime the cache with a good snapshot.
	if _, err := tr.CurrentReputation(context.Background(), testTenant); err != nil {
		t.Fatalf("prime: %v", err)
	}

	// Event log goes down and the fresh copy expires.
	repo.failCounts = true
	mr.FastForward(10 * time.Minute)

	snap, err := tr.CurrentReputation(context.Background(), testTenant)
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if !snap.Stale {
		t.Error("outage snapshot must be marked stale")
	}
	if snap.BounceRate == 0 && snap.Delivered == 0 {
		t.Error("stale fallback must carry the last known good data, not zeros")
	}
}
