// Package conflicts provides the store for detected sync collisions.
// Resolving is a single-row compare-and-set from DETECTED to a terminal
// status; Reopen is the only way back.
package conflicts

import (
	"context"

	"github.com/dstrelkov/mobsync/internal/models"
)

// Repository is the persistence contract for conflict records.
type Repository interface {
	// Create persists a new DETECTED conflict.
	Create(ctx context.Context, c *models.Conflict) error

	// GetByID returns the conflict or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Conflict, error)

	// Resolve transitions DETECTED -> RESOLVED exactly once, recording
	// strategy, winning data and resolver identity.
	Resolve(ctx context.Context, id string, strategy models.ResolutionStrategy, resolvedData []byte, resolvedBy string) error

	// Ignore transitions DETECTED -> IGNORED.
	Ignore(ctx context.Context, id string) error

	// Reopen transitions RESOLVED or IGNORED back to DETECTED, clearing
	// resolution fields. Operator escape hatch, not a normal-path move.
	Reopen(ctx context.Context, id string) error

	// List returns a user's conflicts, optionally filtered by status,
	// newest first.
	List(ctx context.Context, userID string, status models.ConflictStatus, limit, offset int) ([]*models.Conflict, error)
}
