package review

import "errors"

// Sentinel errors for the review service layer.
var (
	// ErrNotFound is returned when a queue entry or contact does not exist.
	ErrNotFound = errors.New("review queue entry not found")

	// ErrDuplicatePending is returned when a contact already has a pending
	// entry. Re-flagging must never create duplicates.
	ErrDuplicatePending = errors.New("contact already has a pending review entry")

	// ErrInvalidTransition is returned when approving/rejecting an entry that
	// is not pending — including the loser of a concurrent review race.
	ErrInvalidTransition = errors.New("entry is not pending")

	// ErrUnauthorized is returned when the reviewer's role lacks the required
	// capability.
	ErrUnauthorized = errors.New("reviewer is not authorized for this action")

	// ErrPermanentlySuppressed is returned when enqueueing a rejected contact
	// without a consent event newer than the rejection.
	ErrPermanentlySuppressed = errors.New("contact was rejected and has no new consent event")
)
