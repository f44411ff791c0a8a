package reputation

import (
	"fmt"

	"github.com/loopletter/reputation-core/internal/config"
	"github.com/loopletter/reputation-core/internal/domain"
)

// WindowCounts holds raw event counts over the trailing window.
type WindowCounts struct {
	Sent       int64
	Delivered  int64
	Bounced    int64
	Complained int64
	Opened     int64
	Clicked    int64
}

// Rates converts raw counts to percentage rates. The denominator is emails
// DELIVERED in the window; when nothing was recorded as delivered yet we fall
// back to sent so a tenant's first campaign doesn't divide by zero. The
// fallback is surfaced as a warning, never hidden.
func (c WindowCounts) Rates() (bounce, complaint, engagement float64, warnings []string) {
	denom := float64(c.Delivered)
	if denom == 0 {
		if c.Sent == 0 {
			return 0, 0, 0, nil
		}
		denom = float64(c.Sent)
		warnings = append(warnings, "no delivered events in window; rates computed over sent count")
	}
	bounce = float64(c.Bounced) / denom * 100
	complaint = float64(c.Complained) / denom * 100

	engaged := c.Opened
	if c.Clicked > c.Opened {
		// Some providers report clicks without opens (image blocking).
		engaged = c.Clicked
	}
	engagement = float64(engaged) / denom * 100
	return bounce, complaint, engagement, warnings
}

// TierFor derives the reputation tier from rates against the threshold table.
// Suspension is handled by the caller (an active SuspensionRecord forces
// TierSuspended regardless of rates).
func TierFor(bounce, complaint, engagement float64, th config.ReputationConfig) domain.ReputationTier {
	switch {
	case bounce > th.BounceRateSuspend || complaint > th.ComplaintRateSuspend:
		return domain.TierPoor
	case bounce > th.BounceRateWarning || complaint > th.ComplaintRateWarning || engagement < th.EngagementRateMinimum:
		return domain.TierFair
	case bounce > th.BounceRateGood || complaint > th.ComplaintRateGood:
		return domain.TierGood
	default:
		return domain.TierExcellent
	}
}

// CanSend evaluates the three independent suspension triggers with OR
// semantics: bounce threshold, complaint threshold, active suspension.
// They are never averaged.
func CanSend(bounce, complaint float64, suspended bool, th config.ReputationConfig) bool {
	if bounce > th.BounceRateSuspend {
		return false
	}
	if complaint > th.ComplaintRateSuspend {
		return false
	}
	if suspended {
		return false
	}
	return true
}

// thresholdWarnings describes which limits the tenant is approaching or over.
func thresholdWarnings(bounce, complaint float64, th config.ReputationConfig) []string {
	var warnings []string
	if bounce > th.BounceRateSuspend {
		warnings = append(warnings, fmt.Sprintf("bounce rate %.2f%% exceeds the %.2f%% suspension threshold", bounce, th.BounceRateSuspend))
	} else if bounce > th.BounceRateWarning {
		warnings = append(warnings, fmt.Sprintf("bounce rate %.2f%% is approaching the %.2f%% suspension threshold", bounce, th.BounceRateSuspend))
	}
	if complaint > th.ComplaintRateSuspend {
		warnings = append(warnings, fmt.Sprintf("complaint rate %.3f%% exceeds the %.3f%% suspension threshold", complaint, th.ComplaintRateSuspend))
	} else if complaint > th.ComplaintRateWarning {
		warnings = append(warnings, fmt.Sprintf("complaint rate %.3f%% is approaching the %.3f%% suspension threshold", complaint, th.ComplaintRateSuspend))
	}
	return warnings
}
