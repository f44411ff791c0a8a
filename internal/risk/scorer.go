// Package risk computes spam-risk assessments for inbound contacts.
//
// The scorer is a deterministic weighted sum over independent flag
// contributions: each signal that fires adds its configured weight, the total
// is clamped to [0,100], and the flags themselves travel with the score so the
// review dashboard can always show WHY a contact was held. A score is never
// opaque — any score above zero carries at least one flag and a primary
// concern.
//
// The only I/O is the domain lookup (disposable-domain set + MX records),
// injected as a DomainIntel so tests run without network. Lookup failures
// degrade to the domain_lookup_unknown flag instead of failing the whole
// assessment: an import storm during a DNS outage must not slip through
// unscored.
package risk

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/loopletter/reputation-core/internal/domain"
)

// SignupContext carries the behavioral signals observed at signup time.
// It is assembled by the caller (intake handler or bulk importer), never
// fetched by the scorer itself.
type SignupContext struct {
	ReviewType domain.ReviewType
	// SignupsLastMinute is the tenant's signup rate when this contact arrived.
	SignupsLastMinute int
	// DuplicateAttempts counts prior signup attempts for the same email
	// within the dedup window.
	DuplicateAttempts int
}

// Scorer computes risk assessments. Safe for concurrent use; all state is
// read-only after construction.
type Scorer struct {
	weights       map[domain.RiskFlag]int
	intel         DomainIntel
	lookupTimeout time.Duration
	bulkVelocity  int
}

// NewScorer builds a scorer from a flag->weight table. Weights for flags not
// present in the table default to zero, which disables the flag's score
// contribution (the flag still fires for visibility).
func NewScorer(weights map[string]int, intel DomainIntel, lookupTimeout time.Duration, bulkVelocityPerMinute int) *Scorer {
	w := make(map[domain.RiskFlag]int, len(weights))
	for name, v := range weights {
		w[domain.RiskFlag(name)] = v
	}
	if lookupTimeout <= 0 {
		lookupTimeout = 2 * time.Second
	}
	if bulkVelocityPerMinute <= 0 {
		bulkVelocityPerMinute = 100
	}
	return &Scorer{
		weights:       w,
		intel:         intel,
		lookupTimeout: lookupTimeout,
		bulkVelocity:  bulkVelocityPerMinute,
	}
}

// Assess computes a RiskAssessment for the contact. It never returns an
// error for malformed input — bad syntax is itself a flag. The returned
// assessment is not yet persisted; ID and ContactID are filled by the caller.
func (s *Scorer) Assess(ctx context.Context, contact domain.Contact, sctx SignupContext) domain.RiskAssessment {
	email := strings.ToLower(strings.TrimSpace(contact.Email))
	var flags []domain.RiskFlag

	emailDomain, syntaxOK := parseEmailDomain(email)
	if !syntaxOK {
		flags = append(flags, domain.FlagInvalidSyntax)
	}

	if syntaxOK {
		if isRoleAccount(email) {
			flags = append(flags, domain.FlagRoleAccount)
		}
		if hasSuspiciousTLD(emailDomain) {
			flags = append(flags, domain.FlagSuspiciousTLD)
		}
		flags = append(flags, s.inspectDomain(ctx, emailDomain)...)
	}

	if sctx.SignupsLastMinute > s.bulkVelocity {
		flags = append(flags, domain.FlagBulkImportVelocity)
	}
	if sctx.DuplicateAttempts > 2 {
		flags = append(flags, domain.FlagDuplicateBurst)
	}

	score := 0
	for _, f := range flags {
		score += s.weights[f]
	}
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	reviewType := sctx.ReviewType
	if reviewType == "" {
		reviewType = domain.ReviewSpamDetection
	}

	return domain.RiskAssessment{
		TenantID:        contact.TenantID,
		ContactID:       contact.ID,
		Score:           score,
		Level:           domain.RiskLevelForScore(score),
		Flags:           flags,
		PrimaryConcern:  s.primaryConcern(flags),
		Recommendations: recommendations(flags),
		ReviewType:      reviewType,
		CreatedAt:       time.Now().UTC(),
	}
}

// inspectDomain runs the bounded DomainIntel lookup and converts the result
// (or its failure) into flags.
func (s *Scorer) inspectDomain(ctx context.Context, emailDomain string) []domain.RiskFlag {
	lookupCtx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	info, err := s.intel.Inspect(lookupCtx, emailDomain)
	if err != nil {
		// Conservative default: unknown risk, not zero risk.
		log.Printf("[RiskScorer] Domain lookup failed for %s: %v", emailDomain, err)
		return []domain.RiskFlag{domain.FlagDomainLookupUnknown}
	}

	var flags []domain.RiskFlag
	if info.Disposable {
		flags = append(flags, domain.FlagDisposableDomain)
	}
	if !info.HasMX {
		flags = append(flags, domain.FlagNoMXRecords)
	}
	return flags
}

// primaryConcern picks the highest-weighted flag as the one-line summary the
// review dashboard leads with. Ties break on flag name for determinism.
func (s *Scorer) primaryConcern(flags []domain.RiskFlag) string {
	if len(flags) == 0 {
		return ""
	}
	sorted := make([]domain.RiskFlag, len(flags))
	copy(sorted, flags)
	sort.Slice(sorted, func(i, j int) bool {
		wi, wj := s.weights[sorted[i]], s.weights[sorted[j]]
		if wi != wj {
			return wi > wj
		}
		return sorted[i] < sorted[j]
	})
	return flagDescriptions[sorted[0]]
}

func recommendations(flags []domain.RiskFlag) []string {
	var recs []string
	for _, f := range flags {
		if r, ok := flagRecommendations[f]; ok {
			recs = append(recs, r)
		}
	}
	return recs
}

// parseEmailDomain validates syntax and extracts the domain part. Returns
// ok=false for anything net/mail rejects or that lacks a domain.
func parseEmailDomain(email string) (string, bool) {
	if email == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return "", false
	}
	at := strings.LastIndex(addr.Address, "@")
	if at <= 0 || at == len(addr.Address)-1 {
		return "", false
	}
	d := addr.Address[at+1:]
	if !strings.Contains(d, ".") {
		return "", false
	}
	return d, true
}

// roleAccountPrefixes are mailbox names that belong to functions, not fans.
var roleAccountPrefixes = map[string]bool{
	"admin":      true,
	"abuse":      true,
	"billing":    true,
	"contact":    true,
	"help":       true,
	"info":       true,
	"marketing":  true,
	"noreply":    true,
	"no-reply":   true,
	"office":     true,
	"postmaster": true,
	"sales":      true,
	"security":   true,
	"support":    true,
	"webmaster":  true,
}

func isRoleAccount(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 {
		return false
	}
	return roleAccountPrefixes[email[:at]]
}

// suspiciousTLDs see disproportionate abuse in signup spam.
var suspiciousTLDs = map[string]bool{
	"click": true,
	"gq":    true,
	"loan":  true,
	"ml":    true,
	"tk":    true,
	"top":   true,
	"work":  true,
	"xyz":   true,
}

func hasSuspiciousTLD(emailDomain string) bool {
	idx := strings.LastIndex(emailDomain, ".")
	if idx < 0 {
		return false
	}
	return suspiciousTLDs[emailDomain[idx+1:]]
}

var flagDescriptions = map[domain.RiskFlag]string{
	domain.FlagInvalidSyntax:       "Email address has invalid syntax",
	domain.FlagDisposableDomain:    "Email uses a disposable/throwaway domain",
	domain.FlagNoMXRecords:         "Email domain has no MX records",
	domain.FlagRoleAccount:         "Email is a role account, not a personal address",
	domain.FlagBulkImportVelocity:  "Contact arrived during an unusually fast import burst",
	domain.FlagSuspiciousTLD:       "Email domain uses a high-abuse TLD",
	domain.FlagDuplicateBurst:      "Repeated signup attempts for the same address",
	domain.FlagDomainLookupUnknown: "Domain reputation could not be verified",
}

var flagRecommendations = map[domain.RiskFlag]string{
	domain.FlagInvalidSyntax:       "Reject unless the address can be corrected with the fan",
	domain.FlagDisposableDomain:    "Reject; disposable addresses never convert and inflate bounce rates",
	domain.FlagNoMXRecords:         "Reject; mail to this domain cannot be delivered",
	domain.FlagRoleAccount:         "Verify the signup came from a real person before approving",
	domain.FlagBulkImportVelocity:  "Confirm the import source had explicit opt-in consent",
	domain.FlagSuspiciousTLD:       "Review the signup source before approving",
	domain.FlagDuplicateBurst:      "Check for bot activity on the signup form",
	domain.FlagDomainLookupUnknown: "Retry the assessment once domain lookups recover",
}

// Describe returns the human-readable description for a flag. Used by the
// admin API when rendering flag chips.
func Describe(f domain.RiskFlag) string {
	if d, ok := flagDescriptions[f]; ok {
		return d
	}
	return fmt.Sprintf("Unknown flag: %s", f)
}
