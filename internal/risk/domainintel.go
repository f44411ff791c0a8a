package risk

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// DomainInfo holds what the platform knows about an email domain.
type DomainInfo struct {
	Disposable bool
	HasMX      bool
}

// DomainIntel abstracts the disposable-domain / MX lookup so the scorer can
// be tested without network access. Implementations must honor ctx deadlines.
type DomainIntel interface {
	Inspect(ctx context.Context, domain string) (DomainInfo, error)
}

// dnsIntel is the production DomainIntel: a static disposable-domain set
// plus a live MX lookup with a bounded timeout.
type dnsIntel struct {
	resolver   *net.Resolver
	disposable map[string]bool
	timeout    time.Duration
}

// NewDNSIntel creates the default DomainIntel. extraDisposable entries are
// merged into the built-in set (lowercased).
func NewDNSIntel(timeout time.Duration, extraDisposable []string) DomainIntel {
	set := make(map[string]bool, len(knownDisposableDomains)+len(extraDisposable))
	for _, d := range knownDisposableDomains {
		set[d] = true
	}
	for _, d := range extraDisposable {
		set[strings.ToLower(strings.TrimSpace(d))] = true
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &dnsIntel{
		resolver:   &net.Resolver{},
		disposable: set,
		timeout:    timeout,
	}
}

func (d *dnsIntel) Inspect(ctx context.Context, domain string) (DomainInfo, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	info := DomainInfo{Disposable: d.disposable[domain]}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	records, err := d.resolver.LookupMX(ctx, domain)
	if err != nil {
		// NXDOMAIN and friends mean "no MX"; timeouts and server failures mean
		// "unknown" and are surfaced to the scorer as an error.
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return info, nil
		}
		return info, err
	}
	info.HasMX = len(records) > 0
	return info, nil
}

// knownDisposableDomains is a seed list of throwaway-email providers. The
// full list lives in config (risk.extra_disposable_domains) and ops can extend
// it without a rebuild.
var knownDisposableDomains = []string{
	"mailinator.com",
	"guerrillamail.com",
	"10minutemail.com",
	"tempmail.com",
	"temp-mail.org",
	"throwawaymail.com",
	"yopmail.com",
	"trashmail.com",
	"getnada.com",
	"sharklasers.com",
	"dispostable.com",
	"maildrop.cc",
	"fakeinbox.com",
	"mintemail.com",
	"mytemp.email",
}
