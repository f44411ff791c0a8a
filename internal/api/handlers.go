package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/loopletter/reputation-core/internal/admintools"
	"github.com/loopletter/reputation-core/internal/auth"
	"github.com/loopletter/reputation-core/internal/config"
	"github.com/loopletter/reputation-core/internal/domain"
	"github.com/loopletter/reputation-core/internal/pkg/distlock"
	"github.com/loopletter/reputation-core/internal/repository/postgres"
	"github.com/loopletter/reputation-core/internal/reputation"
	"github.com/loopletter/reputation-core/internal/risk"
	"github.com/loopletter/reputation-core/internal/service/review"
)

// ContactStore is the intake persistence surface the handlers need. Satisfied
// by postgres.ContactRepo.
type ContactStore interface {
	Create(ctx context.Context, c *domain.Contact) error
	GetByEmail(ctx context.Context, tenantID, email string) (*domain.Contact, error)
	RecordSignupAttempt(ctx context.Context, tenantID, email string, source domain.SignupSource) error
	SignupsSince(ctx context.Context, tenantID string, since time.Time) (int, error)
	DuplicateAttemptsSince(ctx context.Context, tenantID, email string, since time.Time) (int, error)
}

// LockFactory builds the distributed lock for a review entry. nil disables
// locking (single-instance deployments and tests).
type LockFactory func(entryID string) distlock.DistLock

// Handlers contains all HTTP handlers.
type Handlers struct {
	reviews     *review.Service
	tracker     *reputation.Tracker
	tools       *admintools.Executor
	contacts    ContactStore
	scorer      *risk.Scorer
	authManager *auth.Manager
	locks       LockFactory
	cfg         *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	reviews *review.Service,
	tracker *reputation.Tracker,
	tools *admintools.Executor,
	contacts ContactStore,
	scorer *risk.Scorer,
	cfg *config.Config,
) *Handlers {
	return &Handlers{
		reviews:  reviews,
		tracker:  tracker,
		tools:    tools,
		contacts: contacts,
		scorer:   scorer,
		cfg:      cfg,
	}
}

// SetAuthManager attaches the session manager once auth is configured.
func (h *Handlers) SetAuthManager(am *auth.Manager) { h.authManager = am }

// SetLockFactory attaches the distributed lock factory for review actions.
func (h *Handlers) SetLockFactory(f LockFactory) { h.locks = f }

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// tenantID resolves the acting tenant from the query string or header.
func tenantID(r *http.Request) string {
	if t := r.URL.Query().Get("tenant_id"); t != "" {
		return t
	}
	return r.Header.Get("X-Tenant-ID")
}

// reviewer resolves the acting reviewer. With auth enabled it comes from the
// session; without it (dev mode, tests) the X-Reviewer headers are trusted,
// defaulting to the view-only role so nothing is writable by accident.
func (h *Handlers) reviewer(r *http.Request) domain.ReviewerContext {
	if h.authManager != nil {
		if s := h.authManager.GetSession(r); s != nil {
			return s.Reviewer()
		}
		return domain.ReviewerContext{Role: domain.RoleViewer}
	}
	role := domain.Role(r.Header.Get("X-Reviewer-Role"))
	if role == "" {
		role = domain.RoleViewer
	}
	id := r.Header.Get("X-Reviewer-ID")
	if id == "" {
		id = "anonymous"
	}
	return domain.ReviewerContext{ID: id, Role: role}
}

// HealthCheck reports service liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// GetReputation returns the tenant's current snapshot, trend history, and
// operator recommendations.
func (h *Handlers) GetReputation(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		respondError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	snap, err := h.tracker.CurrentReputation(r.Context(), tenant)
	if err != nil {
		if errors.Is(err, reputation.ErrUpstreamUnavailable) {
			respondSafeError(w, http.StatusServiceUnavailable, err, "Reputation data temporarily unavailable")
			return
		}
		respondSafeError(w, http.StatusInternalServerError, err, safeErrorMessage(http.StatusInternalServerError, err))
		return
	}

	history, err := h.tracker.TrendHistory(r.Context(), tenant, 0)
	if err != nil {
		// The snapshot alone is still useful; degrade to an empty trend.
		history = nil
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"reputation":      snap,
		"trend":           history,
		"recommendations": reputation.Recommendations(snap),
	})
}

// ListReviews returns queue entries with optional conjunctive filters, and
// with include_stats=true the filter-independent summary counts plus the
// caller's capabilities.
func (h *Handlers) ListReviews(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		respondError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	q := r.URL.Query()
	f := review.Filter{
		Search:     q.Get("search"),
		RiskLevel:  domain.RiskLevel(q.Get("risk_level")),
		ReviewType: domain.ReviewType(q.Get("review_type")),
		State:      domain.ReviewState(q.Get("state")),
	}

	entries, err := h.reviews.List(r.Context(), tenant, f)
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, safeErrorMessage(http.StatusInternalServerError, err))
		return
	}
	if entries == nil {
		entries = []domain.ReviewQueueEntry{}
	}

	resp := map[string]interface{}{"reviews": entries}

	if q.Get("include_stats") == "true" {
		stats, err := h.reviews.Stats(r.Context(), tenant)
		if err != nil {
			respondSafeError(w, http.StatusInternalServerError, err, safeErrorMessage(http.StatusInternalServerError, err))
			return
		}
		resp["stats"] = stats
	}

	reviewer := h.reviewer(r)
	caps := domain.RoleCapabilities(reviewer.Role)
	resp["user_info"] = map[string]interface{}{
		"role":        reviewer.Role,
		"can_approve": caps.CanApprove,
		"can_reject":  caps.CanReject,
	}

	respondJSON(w, http.StatusOK, resp)
}

type reviewDecisionRequest struct {
	Notes string `json:"notes"`
}

// ApproveReview resolves a pending entry as approved.
func (h *Handlers) ApproveReview(w http.ResponseWriter, r *http.Request) {
	h.resolveReview(w, r, domain.ReviewApproved)
}

// RejectReview resolves a pending entry as rejected.
func (h *Handlers) RejectReview(w http.ResponseWriter, r *http.Request) {
	h.resolveReview(w, r, domain.ReviewRejected)
}

func (h *Handlers) resolveReview(w http.ResponseWriter, r *http.Request, state domain.ReviewState) {
	tenant := tenantID(r)
	if tenant == "" {
		respondError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	entryID := chi.URLParam(r, "id")
	if entryID == "" {
		respondError(w, http.StatusBadRequest, "entry id is required")
		return
	}

	var body reviewDecisionRequest
	if r.Body != nil {
		// Notes are optional; an empty body is fine.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	if h.locks != nil {
		lock := h.locks(entryID)
		ok, err := lock.Acquire(r.Context())
		if err == nil && !ok {
			respondError(w, http.StatusConflict, "entry is being reviewed by someone else")
			return
		}
		if err == nil {
			defer lock.Release(context.WithoutCancel(r.Context()))
		}
		// Lock backend failure falls through: the database CAS still
		// guarantees a single winner.
	}

	reviewer := h.reviewer(r)
	var (
		entry *domain.ReviewQueueEntry
		err   error
	)
	if state == domain.ReviewApproved {
		entry, err = h.reviews.Approve(r.Context(), tenant, entryID, reviewer, body.Notes)
	} else {
		entry, err = h.reviews.Reject(r.Context(), tenant, entryID, reviewer, body.Notes)
	}
	if err != nil {
		switch {
		case errors.Is(err, review.ErrUnauthorized):
			respondError(w, http.StatusForbidden, "your role cannot perform this action")
		case errors.Is(err, review.ErrNotFound):
			respondError(w, http.StatusNotFound, "review entry not found")
		case errors.Is(err, review.ErrInvalidTransition):
			respondError(w, http.StatusConflict, "entry has already been reviewed")
		default:
			respondSafeError(w, http.StatusInternalServerError, err, safeErrorMessage(http.StatusInternalServerError, err))
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"review": entry})
}

type systemToolRequest struct {
	Action string            `json:"action"`
	Params map[string]string `json:"params"`
}

// SystemTools dispatches an admin tool by action name. Results, including
// validation failures, always come back in the ToolResult envelope.
func (h *Handlers) SystemTools(w http.ResponseWriter, r *http.Request) {
	var req systemToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Action == "" {
		respondError(w, http.StatusBadRequest, "action is required")
		return
	}

	result := h.tools.Execute(r.Context(), req.Action, req.Params)
	respondJSON(w, http.StatusOK, result)
}

type createContactRequest struct {
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Source   string `json:"source"`
}

// CreateContact is the signup intake path: every new contact is scored, and
// anything at or above the quarantine threshold goes to the review queue
// instead of straight into the audience.
func (h *Handlers) CreateContact(w http.ResponseWriter, r *http.Request) {
	var req createContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	tenant := req.TenantID
	if tenant == "" {
		tenant = tenantID(r)
	}
	if tenant == "" || strings.TrimSpace(req.Email) == "" {
		respondError(w, http.StatusBadRequest, "tenant_id and email are required")
		return
	}

	source := domain.SignupSource(req.Source)
	if source == "" {
		source = domain.SourceSignupForm
	}

	if existing, err := h.contacts.GetByEmail(r.Context(), tenant, req.Email); err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, safeErrorMessage(http.StatusInternalServerError, err))
		return
	} else if existing != nil {
		if existing.Status == domain.ContactSuppressed {
			// The review service decides whether consent newer than the
			// rejection exists; a blanket refusal here would close the one
			// sanctioned path back in.
			h.reenterSuppressed(w, r, tenant, existing, source)
			return
		}
		respondError(w, http.StatusConflict, "contact already exists")
		return
	}

	// Log the attempt first so the velocity counters include it.
	if err := h.contacts.RecordSignupAttempt(r.Context(), tenant, req.Email, source); err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, safeErrorMessage(http.StatusInternalServerError, err))
		return
	}

	minuteAgo := time.Now().UTC().Add(-time.Minute)
	signups, _ := h.contacts.SignupsSince(r.Context(), tenant, minuteAgo)
	dups, _ := h.contacts.DuplicateAttemptsSince(r.Context(), tenant, req.Email, minuteAgo)

	reviewType := domain.ReviewSpamDetection
	if source == domain.SourceBulkImport {
		reviewType = domain.ReviewBulkImport
	}

	contact := domain.Contact{
		TenantID: tenant,
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Name:     req.Name,
		Source:   source,
		Status:   domain.ContactSubscribed,
	}
	assessment := h.scorer.Assess(r.Context(), contact, risk.SignupContext{
		ReviewType:        reviewType,
		SignupsLastMinute: signups,
		DuplicateAttempts: dups - 1, // exclude the attempt being scored
	})

	quarantine := assessment.Score >= h.cfg.Risk.QuarantineThreshold
	if quarantine {
		contact.Status = domain.ContactQuarantined
	}

	if err := h.contacts.Create(r.Context(), &contact); err != nil {
		// A concurrent signup for the same email won the insert race.
		if errors.Is(err, postgres.ErrContactExists) {
			respondError(w, http.StatusConflict, "contact already exists")
			return
		}
		respondSafeError(w, http.StatusInternalServerError, err, safeErrorMessage(http.StatusInternalServerError, err))
		return
	}

	resp := map[string]interface{}{
		"contact":    contact,
		"risk_score": assessment.Score,
		"risk_level": assessment.Level,
	}

	if quarantine {
		assessment.ContactID = contact.ID
		assessment.TenantID = tenant
		entry, err := h.reviews.Enqueue(r.Context(), tenant, &contact, assessment)
		if err != nil {
			if errors.Is(err, review.ErrPermanentlySuppressed) {
				respondError(w, http.StatusForbidden, "this contact was removed and cannot be re-added without new consent")
				return
			}
			respondSafeError(w, http.StatusInternalServerError, err, safeErrorMessage(http.StatusInternalServerError, err))
			return
		}
		resp["quarantined"] = true
		resp["review_entry_id"] = entry.ID
		respondJSON(w, http.StatusAccepted, resp)
		return
	}

	respondJSON(w, http.StatusCreated, resp)
}

// reenterSuppressed handles a signup for a contact that was previously
// rejected. The contact goes back through review, and Enqueue refuses unless
// a consent event newer than the rejection exists.
func (h *Handlers) reenterSuppressed(w http.ResponseWriter, r *http.Request, tenant string, contact *domain.Contact, source domain.SignupSource) {
	if err := h.contacts.RecordSignupAttempt(r.Context(), tenant, contact.Email, source); err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, safeErrorMessage(http.StatusInternalServerError, err))
		return
	}

	assessment := h.scorer.Assess(r.Context(), *contact, risk.SignupContext{
		ReviewType: domain.ReviewManualFlag,
	})
	assessment.ContactID = contact.ID
	assessment.TenantID = tenant

	entry, err := h.reviews.Enqueue(r.Context(), tenant, contact, assessment)
	if err != nil {
		switch {
		case errors.Is(err, review.ErrPermanentlySuppressed):
			respondError(w, http.StatusForbidden, "this contact was removed and cannot be re-added without new consent")
		case errors.Is(err, review.ErrDuplicatePending):
			respondError(w, http.StatusConflict, "contact is already awaiting review")
		default:
			respondSafeError(w, http.StatusInternalServerError, err, safeErrorMessage(http.StatusInternalServerError, err))
		}
		return
	}

	contact.Status = domain.ContactQuarantined
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"contact":         contact,
		"risk_score":      assessment.Score,
		"risk_level":      assessment.Level,
		"quarantined":     true,
		"review_entry_id": entry.ID,
	})
}

type recordConsentRequest struct {
	Source string `json:"source"`
}

// RecordConsent stores an explicit opt-in event for a contact. Consent newer
// than a rejection is the only way a rejected contact can re-enter review.
func (h *Handlers) RecordConsent(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		respondError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	contactID := chi.URLParam(r, "id")
	if contactID == "" {
		respondError(w, http.StatusBadRequest, "contact id is required")
		return
	}

	var body recordConsentRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if body.Source == "" {
		body.Source = "double_opt_in"
	}

	ev, err := h.reviews.RecordConsent(r.Context(), tenant, contactID, body.Source)
	if err != nil {
		if errors.Is(err, review.ErrNotFound) {
			respondError(w, http.StatusNotFound, "contact not found")
			return
		}
		respondSafeError(w, http.StatusInternalServerError, err, safeErrorMessage(http.StatusInternalServerError, err))
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{"consent": ev})
}
