package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/loopletter/reputation-core/internal/admintools"
	"github.com/loopletter/reputation-core/internal/api"
	"github.com/loopletter/reputation-core/internal/auth"
	"github.com/loopletter/reputation-core/internal/config"
	"github.com/loopletter/reputation-core/internal/pkg/distlock"
	"github.com/loopletter/reputation-core/internal/reputation"
	"github.com/loopletter/reputation-core/internal/repository/postgres"
	"github.com/loopletter/reputation-core/internal/risk"
	"github.com/loopletter/reputation-core/internal/service/review"
)

// checkPortAvailable verifies that the target port is not already in use, so
// a stale process on the port fails fast with a clear message.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	log.Println("[Server] Loopletter reputation-core starting")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	log.Printf("[Server] Database host: %s", extractHost(cfg.Database.URL))

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		log.Fatalf("Database unreachable: %v", err)
	}
	cancel()
	log.Println("[Server] Database connected")

	// Redis is optional: without it the snapshot cache and cross-instance
	// review locks are disabled, and the service still works.
	var redisClient *redis.Client
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rc.Ping(context.Background()).Err(); err != nil {
		log.Printf("[Server] Redis unavailable (%v), snapshot cache disabled", err)
		rc.Close()
	} else {
		redisClient = rc
		defer redisClient.Close()
		log.Printf("[Server] Redis connected: %s", cfg.Redis.Addr)
	}

	// Repositories
	reviewRepo := postgres.NewReviewRepo(db)
	reputationRepo := postgres.NewReputationRepo(db)
	contactRepo := postgres.NewContactRepo(db)
	adminRepo := postgres.NewAdminRepo(db)

	// Services
	var cache *reputation.SnapshotCache
	if redisClient != nil {
		cache = reputation.NewSnapshotCache(redisClient, cfg.Reputation.CacheTTL())
	}
	tracker := reputation.NewTracker(reputationRepo, cache, cfg.Reputation)
	reviews := review.NewService(reviewRepo)
	intel := risk.NewDNSIntel(cfg.Risk.LookupTimeout(), cfg.Risk.ExtraDisposableDomains)
	scorer := risk.NewScorer(cfg.Risk.Weights, intel, cfg.Risk.LookupTimeout(), cfg.Risk.BulkVelocityPerMinute)

	var cachePinger admintools.Pinger
	if redisClient != nil {
		cachePinger = redisPinger{redisClient}
	}
	tools := admintools.NewExecutor(adminRepo, cachePinger, tracker, cfg.Retention)

	// HTTP
	handlers := api.NewHandlers(reviews, tracker, tools, contactRepo, scorer, cfg)
	handlers.SetLockFactory(func(entryID string) distlock.DistLock {
		return distlock.ReviewEntryLock(redisClient, db, entryID)
	})

	var authManager *auth.Manager
	if cfg.Auth.Enabled {
		baseURL := os.Getenv("BASE_URL")
		if baseURL == "" {
			baseURL = fmt.Sprintf("http://%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
		}
		authManager = auth.NewManager(&cfg.Auth, baseURL)
		authManager.CleanupExpiredSessions()
		if err := authManager.ValidateCredentials(context.Background()); err != nil {
			log.Printf("[Server] OAuth credential check failed: %v", err)
		}
	} else {
		log.Println("[Server] Auth disabled; review actions resolve to the view-only role")
	}

	server := api.NewServer(cfg.Server, handlers, authManager)

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		log.Fatalf("%v", err)
	}
	addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Server] Listening on %s", addr)
		errCh <- server.ListenAndServe(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server error: %v", err)
	case sig := <-sigCh:
		log.Printf("[Server] Received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Server] Shutdown error: %v", err)
	}
	log.Println("[Server] Stopped")
}

// redisPinger adapts the Redis client to the admin tools health check.
type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
