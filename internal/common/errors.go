// Package common defines shared sentinel errors used across the sync core.
// Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// State-machine errors guarding status transitions.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrRetryExhausted         = errors.New("retry exhausted")

	// Conflict resolution errors.
	ErrConflictUnresolvable = errors.New("conflict unresolvable")

	// Change Applier errors. An applier wraps ErrPermanentApply to mark a
	// failure as non-retryable on the automatic path; the queue item is
	// still eligible for manual retry.
	ErrPermanentApply = errors.New("permanent apply failure")
)
