package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisLock_SingleHolder(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	first := ReviewEntryLock(client, nil, "entry-1")
	second := ReviewEntryLock(client, nil, "entry-1")

	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%t err=%v", ok, err)
	}

	ok, err = second.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("second holder must not acquire a held lock")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil || !ok {
		t.Errorf("acquire after release: ok=%t err=%v", ok, err)
	}
}

func TestRedisLock_ReleaseOnlyByOwner(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	owner := NewRedisLock(client, "entry-2", time.Minute)
	intruder := NewRedisLock(client, "entry-2", time.Minute)

	if ok, _ := owner.Acquire(ctx); !ok {
		t.Fatal("owner failed to acquire")
	}

	// A non-owner release is a no-op; the owner still holds the lock.
	if err := intruder.Release(ctx); err != nil {
		t.Fatalf("intruder release: %v", err)
	}
	if ok, _ := intruder.Acquire(ctx); ok {
		t.Error("lock must survive a release attempt by a non-owner")
	}
}

func TestRedisLock_DistinctEntriesIndependent(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	a := ReviewEntryLock(client, nil, "entry-a")
	b := ReviewEntryLock(client, nil, "entry-b")

	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("lock a failed to acquire")
	}
	if ok, _ := b.Acquire(ctx); !ok {
		t.Error("locks on different entries must not contend")
	}
}
