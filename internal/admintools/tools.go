package admintools

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/loopletter/reputation-core/internal/config"
	"github.com/loopletter/reputation-core/internal/domain"
)

// ToolResult is the uniform envelope every tool returns. Success/Error are
// mutually exclusive; Data carries tool-specific payloads.
type ToolResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func okResult(msg string, data interface{}) ToolResult {
	return ToolResult{Success: true, Message: msg, Data: data}
}

func failResult(err string) ToolResult {
	return ToolResult{Success: false, Error: err}
}

// TenantSummary is the tenant shape returned by platform search.
type TenantSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SearchResults groups cross-entity search hits.
type SearchResults struct {
	Contacts []domain.Contact          `json:"contacts"`
	Reviews  []domain.ReviewQueueEntry `json:"reviews"`
	Tenants  []TenantSummary           `json:"tenants"`
}

// QueueHealth describes the review queue backlog for the health check.
type QueueHealth struct {
	PendingDepth  int        `json:"pending_depth"`
	OldestPending *time.Time `json:"oldest_pending,omitempty"`
}

// Store is the data access surface the tools operate on.
type Store interface {
	// DeleteOldDeliveryEvents removes delivery events older than the cutoff,
	// in batches so no single statement holds table locks. Returns total rows.
	DeleteOldDeliveryEvents(ctx context.Context, olderThan time.Time) (int64, error)

	// PurgeRejectedContacts blanks PII on contacts rejected before the cutoff
	// while keeping the suppression tombstone. Returns contacts purged.
	PurgeRejectedContacts(ctx context.Context, olderThan time.Time) (int64, error)

	// SearchContacts matches contacts by email or name substring.
	SearchContacts(ctx context.Context, query string, limit int) ([]domain.Contact, error)

	// SearchReviewEntries matches queue entries by contact email substring.
	SearchReviewEntries(ctx context.Context, query string, limit int) ([]domain.ReviewQueueEntry, error)

	// SearchTenants matches tenants by name substring.
	SearchTenants(ctx context.Context, query string, limit int) ([]TenantSummary, error)

	// QueueHealth returns pending review backlog stats across all tenants.
	QueueHealth(ctx context.Context) (QueueHealth, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error
}

// Pinger verifies cache connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Recomputer forces a fresh reputation snapshot for a tenant.
type Recomputer interface {
	Recompute(ctx context.Context, tenantID string) (*domain.TenantReputationSnapshot, error)
}

const searchResultLimit = 25

// Executor dispatches admin tools by action name.
type Executor struct {
	store       Store
	cache       Pinger // may be nil (cache disabled)
	reputations Recomputer
	retention   config.RetentionConfig
	bulk        BulkMode
}

// NewExecutor wires the tool dispatcher. The bulk mode is always constructed
// disabled here; callers cannot override it.
func NewExecutor(store Store, cache Pinger, reputations Recomputer, retention config.RetentionConfig) *Executor {
	return &Executor{
		store:       store,
		cache:       cache,
		reputations: reputations,
		retention:   retention,
		bulk:        DisabledBulkMode(),
	}
}

// Execute runs the named tool. Unknown actions come back as a validation
// failure in the envelope, never as a transport error.
func (e *Executor) Execute(ctx context.Context, action string, params map[string]string) ToolResult {
	log.Printf("[AdminTools] Executing %s", action)

	switch action {
	case "cleanup_old_logs":
		return e.cleanupOldLogs(ctx)
	case "cleanup_rejected_fans":
		return e.cleanupRejectedFans(ctx)
	case "search_platform":
		return e.searchPlatform(ctx, params["query"])
	case "system_health_check":
		return e.systemHealthCheck(ctx)
	case "recompute_reputation":
		return e.recomputeReputation(ctx, params["tenant_id"])
	case "execute_bulk_operation":
		return e.executeBulkOperation()
	default:
		return failResult(fmt.Sprintf("unknown action %q", action))
	}
}

func (e *Executor) cleanupOldLogs(ctx context.Context) ToolResult {
	cutoff := time.Now().UTC().AddDate(0, 0, -e.retention.DeliveryEventDays)
	deleted, err := e.store.DeleteOldDeliveryEvents(ctx, cutoff)
	if err != nil {
		log.Printf("[AdminTools] cleanup_old_logs failed: %v", err)
		return failResult("cleanup failed: " + err.Error())
	}
	return okResult(
		fmt.Sprintf("Removed %d delivery events older than %d days", deleted, e.retention.DeliveryEventDays),
		map[string]int64{"deleted": deleted},
	)
}

func (e *Executor) cleanupRejectedFans(ctx context.Context) ToolResult {
	cutoff := time.Now().UTC().AddDate(0, 0, -e.retention.RejectedFanDays)
	purged, err := e.store.PurgeRejectedContacts(ctx, cutoff)
	if err != nil {
		log.Printf("[AdminTools] cleanup_rejected_fans failed: %v", err)
		return failResult("cleanup failed: " + err.Error())
	}
	return okResult(
		fmt.Sprintf("Purged PII for %d contacts rejected over %d days ago", purged, e.retention.RejectedFanDays),
		map[string]int64{"purged": purged},
	)
}

func (e *Executor) searchPlatform(ctx context.Context, query string) ToolResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return failResult("query parameter is required")
	}

	var results SearchResults
	var err error
	if results.Contacts, err = e.store.SearchContacts(ctx, query, searchResultLimit); err != nil {
		return failResult("search failed: " + err.Error())
	}
	if results.Reviews, err = e.store.SearchReviewEntries(ctx, query, searchResultLimit); err != nil {
		return failResult("search failed: " + err.Error())
	}
	if results.Tenants, err = e.store.SearchTenants(ctx, query, searchResultLimit); err != nil {
		return failResult("search failed: " + err.Error())
	}

	total := len(results.Contacts) + len(results.Reviews) + len(results.Tenants)
	return okResult(fmt.Sprintf("Found %d matches for %q", total, query), results)
}

func (e *Executor) systemHealthCheck(ctx context.Context) ToolResult {
	checks := map[string]string{}
	healthy := true

	if err := e.store.Ping(ctx); err != nil {
		checks["database"] = "down: " + err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if e.cache == nil {
		checks["cache"] = "disabled"
	} else if err := e.cache.Ping(ctx); err != nil {
		checks["cache"] = "down: " + err.Error()
		healthy = false
	} else {
		checks["cache"] = "ok"
	}

	data := map[string]interface{}{"checks": checks}
	if qh, err := e.store.QueueHealth(ctx); err != nil {
		checks["review_queue"] = "unknown: " + err.Error()
		healthy = false
	} else {
		checks["review_queue"] = "ok"
		data["queue"] = qh
	}

	if !healthy {
		return ToolResult{Success: false, Error: "one or more components are unhealthy", Data: data}
	}
	return okResult("All components healthy", data)
}

func (e *Executor) recomputeReputation(ctx context.Context, tenantID string) ToolResult {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return failResult("tenant_id parameter is required")
	}
	snap, err := e.reputations.Recompute(ctx, tenantID)
	if err != nil {
		log.Printf("[AdminTools] recompute_reputation failed for %s: %v", tenantID, err)
		return failResult("recompute failed: " + err.Error())
	}
	return okResult(
		fmt.Sprintf("Recomputed reputation for tenant %s: tier=%s can_send=%t", tenantID, snap.Tier, snap.CanSend),
		snap,
	)
}

func (e *Executor) executeBulkOperation() ToolResult {
	if !e.bulk.Enabled() {
		return failResult("Bulk operations are disabled for safety")
	}
	// Unreachable with the exported constructors; kept so the guard shape is
	// explicit rather than the action being deleted and re-added later.
	return failResult("Bulk operations are disabled for safety")
}
