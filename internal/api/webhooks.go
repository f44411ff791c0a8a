package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/loopletter/reputation-core/internal/domain"
)

// providerEventTypes maps the mail provider's event categories onto delivery
// event types. Categories absent from the map are skipped, not errors — the
// provider adds categories without notice.
var providerEventTypes = map[string]domain.DeliveryEventType{
	"injection":      domain.EventSent,
	"delivery":       domain.EventDelivered,
	"bounce":         domain.EventBounced,
	"out_of_band":    domain.EventBounced,
	"spam_complaint": domain.EventComplained,
	"open":           domain.EventOpened,
	"initial_open":   domain.EventOpened,
	"click":          domain.EventClicked,
}

// ProviderWebhook ingests the mail provider's delivery event batches. The
// payload is an array of envelopes, each wrapping one event in a msys object
// keyed by category group:
//
//	[{"msys": {"message_event": {"type": "bounce", "message_id": "...",
//	  "timestamp": "...", "rcpt_meta": {"tenant_id": "..."}}}}]
//
// Malformed or unattributable entries are counted and skipped; one bad event
// must not reject the batch, because the provider retries the whole batch on
// any non-2xx.
func (h *Handlers) ProviderWebhook(w http.ResponseWriter, r *http.Request) {
	var batch []map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	defaultTenant := tenantID(r)
	accepted, skipped := 0, 0
	breachCandidates := make(map[string]bool)

	for _, envelope := range batch {
		msys, ok := envelope["msys"].(map[string]interface{})
		if !ok {
			skipped++
			continue
		}
		for _, raw := range msys {
			event, ok := raw.(map[string]interface{})
			if !ok {
				skipped++
				continue
			}

			category, _ := event["type"].(string)
			eventType, known := providerEventTypes[category]
			if !known {
				skipped++
				continue
			}

			tenant := defaultTenant
			if meta, ok := event["rcpt_meta"].(map[string]interface{}); ok {
				if t, ok := meta["tenant_id"].(string); ok && t != "" {
					tenant = t
				}
			}
			if tenant == "" {
				skipped++
				continue
			}

			messageID, _ := event["message_id"].(string)
			occurredAt := parseProviderTimestamp(event["timestamp"])

			if err := h.tracker.RecordEvent(r.Context(), tenant, eventType, messageID, occurredAt); err != nil {
				log.Printf("[Webhook] Failed to record %s event for tenant %s: %v", eventType, tenant, err)
				skipped++
				continue
			}
			accepted++
			if eventType == domain.EventBounced || eventType == domain.EventComplained {
				breachCandidates[tenant] = true
			}
		}
	}

	// Threshold checks run once per batch, only for tenants that took a
	// negative event. A failed check never fails the batch.
	for tenant := range breachCandidates {
		if _, err := h.tracker.EvaluateSuspension(r.Context(), tenant); err != nil {
			log.Printf("[Webhook] Suspension evaluation failed for tenant %s: %v", tenant, err)
		}
	}

	respondJSON(w, http.StatusOK, map[string]int{
		"accepted": accepted,
		"skipped":  skipped,
	})
}

// parseProviderTimestamp handles both epoch-seconds strings and RFC3339.
// A zero time tells the tracker to stamp the event on arrival.
func parseProviderTimestamp(v interface{}) time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts
	}
	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil && epoch > 0 {
		return time.Unix(epoch, 0).UTC()
	}
	return time.Time{}
}
