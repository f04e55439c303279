// Package sessions provides the store for sync session records. A session
// is an audit view over one run; closing it is a compare-and-set from
// IN_PROGRESS to a terminal status, so a closed session never resurrects.
package sessions

import (
	"context"

	"github.com/dstrelkov/mobsync/internal/models"
)

// Repository is the persistence contract for sync sessions.
type Repository interface {
	// Create persists a new session.
	Create(ctx context.Context, s *models.SyncSession) error

	// GetByID returns the session or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.SyncSession, error)

	// MarkInProgress transitions INITIATED -> IN_PROGRESS.
	MarkInProgress(ctx context.Context, id string) error

	// UpdateCounters stores the run's accumulated upload/download/conflict
	// counts.
	UpdateCounters(ctx context.Context, id string, uploaded, downloaded, conflictsDetected int) error

	// IncrementConflictsResolved bumps the resolved counter, capped at
	// conflicts_detected. Best-effort bookkeeping: a capped bump is a
	// silent no-op.
	IncrementConflictsResolved(ctx context.Context, id string) error

	// Close transitions IN_PROGRESS to the given terminal status, stamps
	// completed_at and derives duration_seconds.
	Close(ctx context.Context, id string, status models.SessionStatus, errorMessage string) error

	// List returns a user's sessions, newest first.
	List(ctx context.Context, userID string, limit, offset int) ([]*models.SyncSession, error)
}
