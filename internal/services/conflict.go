package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dstrelkov/mobsync/internal/common"
	"github.com/dstrelkov/mobsync/internal/dbx"
	"github.com/dstrelkov/mobsync/internal/logging"
	"github.com/dstrelkov/mobsync/internal/models"
	"github.com/dstrelkov/mobsync/internal/repositories/repomanager"
)

// withTx is a seam for tests running against in-memory repositories.
var withTx = dbx.WithTx

// ConflictService arbitrates detected sync collisions. Resolution writes
// the conflict record, re-applies the winning data through the change
// applier, releases the parked queue item and bumps the owning session's
// resolved counter in one transaction.
type ConflictService struct {
	db      *sql.DB
	repos   repomanager.RepositoryManager
	applier ChangeApplier
	logger  logging.Logger
}

// NewConflictService creates a ConflictService. A nil applier skips the
// re-apply step; resolutions then only update the stores.
func NewConflictService(db *sql.DB, repos repomanager.RepositoryManager, applier ChangeApplier, logger logging.Logger) *ConflictService {
	return &ConflictService{db: db, repos: repos, applier: applier, logger: logger}
}

// Record persists a freshly detected conflict.
func (s *ConflictService) Record(ctx context.Context, c *models.Conflict) error {
	if err := s.repos.Conflicts(s.db).Create(ctx, c); err != nil {
		return err
	}
	s.logger.Warn(ctx, "conflict detected",
		"conflict_id", c.ID, "user_id", c.UserID, "entity_type", c.EntityType,
		"entity_id", c.EntityID, "type", c.Type)
	return nil
}

// Get returns a single conflict.
func (s *ConflictService) Get(ctx context.Context, id string) (*models.Conflict, error) {
	return s.repos.Conflicts(s.db).GetByID(ctx, id)
}

// ResolveServerWins resolves the conflict in favor of the server copy.
func (s *ConflictService) ResolveServerWins(ctx context.Context, id, resolvedBy string) (*models.Conflict, error) {
	return s.resolve(ctx, id, models.StrategyServerWins, nil, resolvedBy)
}

// ResolveClientWins resolves the conflict in favor of the queued client
// change.
func (s *ConflictService) ResolveClientWins(ctx context.Context, id, resolvedBy string) (*models.Conflict, error) {
	return s.resolve(ctx, id, models.StrategyClientWins, nil, resolvedBy)
}

// ResolveManual resolves the conflict with caller-supplied data. With
// merge set the resolution is recorded as MERGE instead of MANUAL.
func (s *ConflictService) ResolveManual(ctx context.Context, id string, resolvedData []byte, resolvedBy string, merge bool) (*models.Conflict, error) {
	strategy := models.StrategyManual
	if merge {
		strategy = models.StrategyMerge
	}
	return s.resolve(ctx, id, strategy, resolvedData, resolvedBy)
}

// AutoResolve applies a strategy without operator-supplied data. Only
// SERVER_WINS and CLIENT_WINS can be decided automatically; anything
// else needs a human and returns common.ErrConflictUnresolvable.
func (s *ConflictService) AutoResolve(ctx context.Context, id string, strategy models.ResolutionStrategy, resolvedBy string) (*models.Conflict, error) {
	switch strategy {
	case models.StrategyServerWins, models.StrategyClientWins:
		return s.resolve(ctx, id, strategy, nil, resolvedBy)
	default:
		return nil, fmt.Errorf("strategy %s: %w", strategy, common.ErrConflictUnresolvable)
	}
}

func (s *ConflictService) resolve(ctx context.Context, id string, strategy models.ResolutionStrategy, resolvedData []byte, resolvedBy string) (*models.Conflict, error) {
	var resolved *models.Conflict
	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Conflicts(tx)
		c, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if c.Status != models.ConflictDetected {
			return fmt.Errorf("%w: conflict is %s", common.ErrInvalidStateTransition, c.Status)
		}

		winning := resolvedData
		switch strategy {
		case models.StrategyServerWins:
			winning = c.ServerData
		case models.StrategyClientWins:
			winning = c.ClientData
		}

		// The winning data goes back through the applier first: if the
		// domain write fails the conflict stays open.
		if s.applier != nil && len(winning) > 0 {
			if err := s.applier.Apply(ctx, c.EntityType, c.EntityID, models.OpUpdate, winning); err != nil {
				return fmt.Errorf("re-applying resolved data: %w", err)
			}
		}

		if err := repo.Resolve(ctx, id, strategy, winning, resolvedBy); err != nil {
			return err
		}

		// A reopened conflict may point at an item that already left
		// CONFLICT; that is not a failure of this resolution.
		if c.ItemID != "" {
			err := s.repos.Queue(tx).MarkResolved(ctx, c.ItemID)
			if err != nil && !errors.Is(err, common.ErrNotFound) && !errors.Is(err, common.ErrInvalidStateTransition) {
				return err
			}
		}
		if c.SessionID != "" {
			if err := s.repos.Sessions(tx).IncrementConflictsResolved(ctx, c.SessionID); err != nil {
				return err
			}
		}

		resolved, err = repo.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "conflict resolved",
		"conflict_id", id, "strategy", strategy, "resolved_by", resolvedBy)
	return resolved, nil
}

// Ignore dismisses a conflict without picking a winner. The queue item
// parked by the conflict is dropped: the client change it carried is
// discarded for good.
func (s *ConflictService) Ignore(ctx context.Context, id string) error {
	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Conflicts(tx)
		c, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := repo.Ignore(ctx, id); err != nil {
			return err
		}
		if c.ItemID != "" {
			err := s.repos.Queue(tx).Delete(ctx, c.ItemID)
			if err != nil && !errors.Is(err, common.ErrNotFound) && !errors.Is(err, common.ErrInvalidStateTransition) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "conflict ignored", "conflict_id", id)
	return nil
}

// Reopen puts a resolved or ignored conflict back under review.
func (s *ConflictService) Reopen(ctx context.Context, id string) error {
	if err := s.repos.Conflicts(s.db).Reopen(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "conflict reopened", "conflict_id", id)
	return nil
}

// List returns a user's conflicts, optionally filtered by status.
func (s *ConflictService) List(ctx context.Context, userID string, status models.ConflictStatus, limit, offset int) ([]*models.Conflict, error) {
	return s.repos.Conflicts(s.db).List(ctx, userID, status, limit, offset)
}
