package reputation

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/loopletter/reputation-core/internal/domain"
)

// SnapshotCache is a Redis read-through cache for reputation snapshots.
//
// Two keys per tenant:
//   - reputation:snapshot:{tenant} with TTL — the fresh copy
//   - reputation:lastgood:{tenant} without TTL — the stale-fallback copy,
//     served (marked stale) when the event log is unreachable
//
// Cache failures are never fatal; a broken Redis degrades to recomputing on
// every read.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotCache creates a snapshot cache with the given freshness TTL.
func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SnapshotCache{client: client, ttl: ttl}
}

func freshKey(tenantID string) string { return "reputation:snapshot:" + tenantID }
func goodKey(tenantID string) string  { return "reputation:lastgood:" + tenantID }

// Get returns the cached snapshot if it is still fresh.
func (c *SnapshotCache) Get(ctx context.Context, tenantID string) (*domain.TenantReputationSnapshot, bool) {
	data, err := c.client.Get(ctx, freshKey(tenantID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[SnapshotCache] Get failed for tenant %s: %v", tenantID, err)
		}
		return nil, false
	}
	var snap domain.TenantReputationSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("[SnapshotCache] Corrupt cache entry for tenant %s: %v", tenantID, err)
		return nil, false
	}
	return &snap, true
}

// GetLastGood returns the most recent successfully computed snapshot,
// regardless of age. Used as the stale fallback during event-log outages.
func (c *SnapshotCache) GetLastGood(ctx context.Context, tenantID string) (*domain.TenantReputationSnapshot, bool) {
	data, err := c.client.Get(ctx, goodKey(tenantID)).Bytes()
	if err != nil {
		return nil, false
	}
	var snap domain.TenantReputationSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false
	}
	return &snap, true
}

// Set stores the snapshot under both the fresh and last-good keys.
func (c *SnapshotCache) Set(ctx context.Context, snap *domain.TenantReputationSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, freshKey(snap.TenantID), data, c.ttl).Err(); err != nil {
		log.Printf("[SnapshotCache] Set failed for tenant %s: %v", snap.TenantID, err)
		return
	}
	// No TTL: survives as the stale fallback.
	if err := c.client.Set(ctx, goodKey(snap.TenantID), data, 0).Err(); err != nil {
		log.Printf("[SnapshotCache] Last-good set failed for tenant %s: %v", snap.TenantID, err)
	}
}

// Invalidate drops the fresh copy so the next read recomputes. The last-good
// copy is intentionally kept for outage fallback.
func (c *SnapshotCache) Invalidate(ctx context.Context, tenantID string) {
	if err := c.client.Del(ctx, freshKey(tenantID)).Err(); err != nil {
		log.Printf("[SnapshotCache] Invalidate failed for tenant %s: %v", tenantID, err)
	}
}
