// Package queue provides the durable store for pending sync mutations.
// The claim operation is the mutual-exclusion point of the whole core:
// every status transition is a compare-and-set keyed by item id and
// expected prior status, rejected (not coerced) when the precondition
// does not hold.
package queue

import (
	"context"
	"time"

	"github.com/dstrelkov/mobsync/internal/models"
)

// Repository is the persistence contract for queue items.
type Repository interface {
	// Create persists a new PENDING item.
	Create(ctx context.Context, item *models.QueueItem) error

	// GetByID returns the item or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.QueueItem, error)

	// ClaimBatch atomically selects up to limit PENDING items for the
	// (user, device) scope and transitions them to IN_PROGRESS. Items come
	// back highest priority first, FIFO within a priority. For any
	// (entityType, entityID) only the earliest-created sibling is
	// claimable, and never while another sibling is IN_PROGRESS or an
	// earlier-created sibling sits FAILED with retry budget left.
	ClaimBatch(ctx context.Context, userID, deviceID string, limit int) ([]*models.QueueItem, error)

	// MarkSynced transitions IN_PROGRESS -> SYNCED and stamps synced_at.
	MarkSynced(ctx context.Context, id string) error

	// MarkFailed transitions any non-SYNCED status to FAILED, increments
	// retry_count (capped at max_retries) and records the reason.
	MarkFailed(ctx context.Context, id, reason string, permanent bool) error

	// MarkConflict transitions the item to CONFLICT.
	MarkConflict(ctx context.Context, id, reason string) error

	// MarkResolved transitions CONFLICT -> SYNCED once the item's conflict
	// has been resolved and the winning data re-applied.
	MarkResolved(ctx context.Context, id string) error

	// Retry transitions FAILED -> PENDING and clears the error, provided
	// the retry budget is not exhausted.
	Retry(ctx context.Context, id string) error

	// Delete removes an unclaimed item (PENDING, FAILED or CONFLICT).
	Delete(ctx context.Context, id string) error

	// SweepStuck reclaims IN_PROGRESS items claimed before the cutoff back
	// to PENDING and returns how many were reset.
	SweepStuck(ctx context.Context, cutoff time.Time) (int64, error)

	// List returns a user's items, optionally filtered by status, newest
	// first.
	List(ctx context.Context, userID string, status models.QueueStatus, limit, offset int) ([]*models.QueueItem, error)
}
