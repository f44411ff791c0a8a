package reputation

import "errors"

// Sentinel errors for the reputation service layer.
var (
	// ErrUnknownEventType is returned for delivery events outside the known set.
	ErrUnknownEventType = errors.New("unknown delivery event type")

	// ErrUpstreamUnavailable is returned when the event log cannot be reached
	// and no cached snapshot exists to fall back on.
	ErrUpstreamUnavailable = errors.New("event log unavailable and no cached snapshot")

	// ErrNoActiveSuspension is returned when lifting a suspension that does
	// not exist or is already lifted.
	ErrNoActiveSuspension = errors.New("no active suspension for tenant")

	// ErrUnauthorized is returned when the reviewer lacks the capability for
	// a suspension action.
	ErrUnauthorized = errors.New("reviewer is not authorized for this action")
)
