// Package services implements the sync core's behavior on top of the
// repositories: enqueueing and claiming changes, detecting and resolving
// conflicts, tracking sessions and maintaining the offline cache. Domain
// logic stays behind the ChangeApplier and SnapshotProvider boundaries.
package services

import (
	"context"

	"github.com/dstrelkov/mobsync/internal/models"
)

// ChangeApplier applies an upload/download payload for a given entity
// type. Implementations live in the domain services; the core treats any
// failure as retryable unless it wraps common.ErrPermanentApply.
type ChangeApplier interface {
	Apply(ctx context.Context, entityType, entityID string, op models.Operation, payload []byte) error
}

// VersionedSnapshot is the server-side state of an entity together with
// its monotonic version counter, used as the staleness marker for
// conflict detection.
type VersionedSnapshot struct {
	Version int64
	Data    []byte
}

// SnapshotProvider fetches current server-side state for conflict
// comparison. A nil snapshot (with nil error) signals the entity no
// longer exists server-side.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, entityType, entityID string) (*VersionedSnapshot, error)
}
