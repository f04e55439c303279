package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dstrelkov/mobsync/internal/common"
	"github.com/dstrelkov/mobsync/internal/logging"
	"github.com/dstrelkov/mobsync/internal/models"
	"github.com/dstrelkov/mobsync/internal/repositories/conflicts"
	"github.com/dstrelkov/mobsync/internal/repositories/queue"
	"github.com/dstrelkov/mobsync/internal/repositories/repomanager"
)

const (
	defaultBatchSize    = 50
	defaultApplyRetries = 2
	defaultApplyBackoff = 100 * time.Millisecond
)

// SessionService runs bounded synchronization sessions: it drains the
// queue batch by batch, routes each item through conflict detection and
// the change applier, and keeps the session's counters current.
type SessionService struct {
	db        *sql.DB
	repos     repomanager.RepositoryManager
	applier   ChangeApplier
	snapshots SnapshotProvider
	logger    logging.Logger

	batchSize int
	// applyRetries and applyBackoff bound in-process retries of a
	// transient applier failure before the item is marked FAILED.
	applyRetries uint64
	applyBackoff time.Duration
}

// NewSessionService creates a SessionService. A non-positive batchSize
// falls back to the default.
func NewSessionService(db *sql.DB, repos repomanager.RepositoryManager, applier ChangeApplier, snapshots SnapshotProvider, logger logging.Logger, batchSize int) *SessionService {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &SessionService{
		db:           db,
		repos:        repos,
		applier:      applier,
		snapshots:    snapshots,
		logger:       logger,
		batchSize:    batchSize,
		applyRetries: defaultApplyRetries,
		applyBackoff: defaultApplyBackoff,
	}
}

// Start registers a new session and moves it straight to IN_PROGRESS.
func (s *SessionService) Start(ctx context.Context, userID, deviceID string, deviceType models.DeviceType, appVersion string, syncType models.SyncType, direction models.Direction) (*models.SyncSession, error) {
	session := models.NewSyncSession(userID, deviceID, deviceType, appVersion, syncType, direction)
	repo := s.repos.Sessions(s.db)
	if err := repo.Create(ctx, session); err != nil {
		return nil, err
	}
	if err := repo.MarkInProgress(ctx, session.ID); err != nil {
		return nil, err
	}
	session.Status = models.SessionInProgress
	s.logger.Info(ctx, "sync session started",
		"session_id", session.ID, "user_id", userID, "device_id", deviceID,
		"sync_type", syncType, "direction", direction)
	return session, nil
}

// Get returns a single session.
func (s *SessionService) Get(ctx context.Context, id string) (*models.SyncSession, error) {
	return s.repos.Sessions(s.db).GetByID(ctx, id)
}

// Run drains the queue for the session's (user, device) scope until no
// claimable items remain, then completes the session. Conflicting items
// are parked and recorded; failed applies consume their retry budget on
// later runs. A session cancelled out-of-band stops further draining
// between batches.
func (s *SessionService) Run(ctx context.Context, session *models.SyncSession) error {
	queueRepo := s.repos.Queue(s.db)
	conflictRepo := s.repos.Conflicts(s.db)
	sessionRepo := s.repos.Sessions(s.db)

	for {
		cur, err := sessionRepo.GetByID(ctx, session.ID)
		if err != nil {
			return err
		}
		if cur.Status != models.SessionInProgress {
			s.logger.Info(ctx, "sync run stopped early",
				"session_id", session.ID, "status", cur.Status)
			return nil
		}

		batch, err := queueRepo.ClaimBatch(ctx, session.UserID, session.DeviceID, s.batchSize)
		if err != nil {
			s.failQuietly(ctx, session, err)
			return err
		}
		if len(batch) == 0 {
			break
		}

		for _, item := range batch {
			s.processItem(ctx, session, item, queueRepo, conflictRepo)
		}
		if err := sessionRepo.UpdateCounters(ctx, session.ID, session.RecordsUploaded, session.RecordsDownloaded, session.ConflictsDetected); err != nil {
			s.failQuietly(ctx, session, err)
			return err
		}
	}

	return s.Complete(ctx, session)
}

// failQuietly closes the session as FAILED without masking the error that
// caused the failure.
func (s *SessionService) failQuietly(ctx context.Context, session *models.SyncSession, cause error) {
	if err := s.Fail(ctx, session, cause.Error()); err != nil {
		s.logger.Error(ctx, "session close failed", "session_id", session.ID, "error", err)
	}
}

func (s *SessionService) processItem(ctx context.Context, session *models.SyncSession, item *models.QueueItem, queueRepo queue.Repository, conflictRepo conflicts.Repository) {
	snap, err := s.snapshots.Snapshot(ctx, item.EntityType, item.EntityID)
	if err != nil {
		s.logger.Error(ctx, "snapshot lookup failed",
			"session_id", session.ID, "item_id", item.ID, "error", err)
		_ = queueRepo.MarkFailed(ctx, item.ID, err.Error(), false)
		return
	}

	if c := DetectConflict(item, snap, session.ID); c != nil {
		if err := queueRepo.MarkConflict(ctx, item.ID, string(c.Type)); err != nil {
			s.logger.Error(ctx, "mark conflict failed", "item_id", item.ID, "error", err)
			return
		}
		if err := conflictRepo.Create(ctx, c); err != nil {
			s.logger.Error(ctx, "conflict record failed", "item_id", item.ID, "error", err)
			return
		}
		session.ConflictsDetected++
		s.logger.Warn(ctx, "conflict detected during run",
			"session_id", session.ID, "item_id", item.ID, "conflict_id", c.ID, "type", c.Type)
		return
	}

	// Deleting an entity the server already removed needs no apply.
	if item.Operation == models.OpDelete && snap == nil {
		if err := queueRepo.MarkSynced(ctx, item.ID); err != nil {
			s.logger.Error(ctx, "mark synced failed", "item_id", item.ID, "error", err)
			return
		}
		s.countSynced(session)
		return
	}

	if err := s.applyWithBackoff(ctx, item); err != nil {
		permanent := errors.Is(err, common.ErrPermanentApply)
		s.logger.Error(ctx, "apply failed",
			"session_id", session.ID, "item_id", item.ID,
			"permanent", permanent, "error", err)
		_ = queueRepo.MarkFailed(ctx, item.ID, err.Error(), permanent)
		return
	}

	if err := queueRepo.MarkSynced(ctx, item.ID); err != nil {
		s.logger.Error(ctx, "mark synced failed", "item_id", item.ID, "error", err)
		return
	}
	s.countSynced(session)
}

func (s *SessionService) countSynced(session *models.SyncSession) {
	if session.Direction == models.DirectionDownload {
		session.RecordsDownloaded++
		return
	}
	session.RecordsUploaded++
}

func (s *SessionService) applyWithBackoff(ctx context.Context, item *models.QueueItem) error {
	b := retry.WithMaxRetries(s.applyRetries, retry.NewExponential(s.applyBackoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := s.applier.Apply(ctx, item.EntityType, item.EntityID, item.Operation, item.Payload)
		if err == nil {
			return nil
		}
		if errors.Is(err, common.ErrPermanentApply) {
			return err
		}
		return retry.RetryableError(err)
	})
}

// Complete closes the session as COMPLETED with its final counters.
func (s *SessionService) Complete(ctx context.Context, session *models.SyncSession) error {
	repo := s.repos.Sessions(s.db)
	if err := repo.UpdateCounters(ctx, session.ID, session.RecordsUploaded, session.RecordsDownloaded, session.ConflictsDetected); err != nil {
		return err
	}
	if err := repo.Close(ctx, session.ID, models.SessionCompleted, ""); err != nil {
		return err
	}
	session.Status = models.SessionCompleted
	s.logger.Info(ctx, "sync session completed",
		"session_id", session.ID,
		"uploaded", session.RecordsUploaded,
		"downloaded", session.RecordsDownloaded,
		"conflicts", session.ConflictsDetected)
	return nil
}

// Fail closes the session as FAILED with the given reason.
func (s *SessionService) Fail(ctx context.Context, session *models.SyncSession, reason string) error {
	if err := s.repos.Sessions(s.db).Close(ctx, session.ID, models.SessionFailed, reason); err != nil {
		return err
	}
	session.Status = models.SessionFailed
	session.ErrorMessage = reason
	s.logger.Error(ctx, "sync session failed", "session_id", session.ID, "reason", reason)
	return nil
}

// Cancel closes the session as CANCELLED. In-flight items keep their
// claim until the lease sweep returns them to PENDING.
func (s *SessionService) Cancel(ctx context.Context, sessionID, reason string) error {
	if err := s.repos.Sessions(s.db).Close(ctx, sessionID, models.SessionCancelled, reason); err != nil {
		return err
	}
	s.logger.Info(ctx, "sync session cancelled", "session_id", sessionID, "reason", reason)
	return nil
}

// List returns a user's sessions, newest first.
func (s *SessionService) List(ctx context.Context, userID string, limit, offset int) ([]*models.SyncSession, error) {
	return s.repos.Sessions(s.db).List(ctx, userID, limit, offset)
}
