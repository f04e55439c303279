package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dstrelkov/mobsync/internal/logging"
	"github.com/dstrelkov/mobsync/internal/models"
	"github.com/dstrelkov/mobsync/internal/repositories/repomanager"
)

// QueueService owns the lifecycle of queued sync mutations: enqueueing,
// claiming, retrying and sweeping leases of the durable queue.
type QueueService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	logger logging.Logger

	// leaseTimeout bounds how long a claimed item may sit IN_PROGRESS
	// before the sweep hands it back to PENDING.
	leaseTimeout time.Duration
}

// NewQueueService creates a QueueService.
func NewQueueService(db *sql.DB, repos repomanager.RepositoryManager, logger logging.Logger, leaseTimeout time.Duration) *QueueService {
	return &QueueService{db: db, repos: repos, logger: logger, leaseTimeout: leaseTimeout}
}

// Enqueue records a new pending change for later synchronization. A zero
// or out-of-range priority falls back to the default.
func (s *QueueService) Enqueue(ctx context.Context, userID, deviceID, entityType, entityID string, op models.Operation, payload []byte, baseVersion int64, priority int) (*models.QueueItem, error) {
	item := models.NewQueueItem(userID, deviceID, entityType, entityID, op, payload, baseVersion, priority)
	if err := s.repos.Queue(s.db).Create(ctx, item); err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "change enqueued",
		"item_id", item.ID, "user_id", userID, "entity_type", entityType,
		"entity_id", entityID, "operation", op, "priority", item.Priority)
	return item, nil
}

// Get returns a single queue item.
func (s *QueueService) Get(ctx context.Context, id string) (*models.QueueItem, error) {
	return s.repos.Queue(s.db).GetByID(ctx, id)
}

// ClaimBatch hands out the next batch of pending items for a device,
// marking them IN_PROGRESS.
func (s *QueueService) ClaimBatch(ctx context.Context, userID, deviceID string, limit int) ([]*models.QueueItem, error) {
	items, err := s.repos.Queue(s.db).ClaimBatch(ctx, userID, deviceID, limit)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		s.logger.Debug(ctx, "batch claimed", "user_id", userID, "device_id", deviceID, "count", len(items))
	}
	return items, nil
}

// MarkSynced finalizes a successfully applied item.
func (s *QueueService) MarkSynced(ctx context.Context, id string) error {
	return s.repos.Queue(s.db).MarkSynced(ctx, id)
}

// MarkFailed records an apply failure. Permanent failures keep the item
// out of automatic retry.
func (s *QueueService) MarkFailed(ctx context.Context, id, reason string, permanent bool) error {
	return s.repos.Queue(s.db).MarkFailed(ctx, id, reason, permanent)
}

// MarkConflict parks an item pending conflict resolution.
func (s *QueueService) MarkConflict(ctx context.Context, id, reason string) error {
	return s.repos.Queue(s.db).MarkConflict(ctx, id, reason)
}

// Retry puts a failed item back on the queue if its retry budget allows.
func (s *QueueService) Retry(ctx context.Context, id string) error {
	if err := s.repos.Queue(s.db).Retry(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "queue item requeued", "item_id", id)
	return nil
}

// Cancel removes an item that has not been claimed yet. The reason is
// logged for the audit trail; the row itself is deleted since the queue
// keeps no tombstones.
func (s *QueueService) Cancel(ctx context.Context, id, reason string) error {
	if err := s.repos.Queue(s.db).Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "queue item cancelled", "item_id", id, "reason", reason)
	return nil
}

// SweepStuck reclaims items whose claim lease expired and returns how
// many were handed back to PENDING.
func (s *QueueService) SweepStuck(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.leaseTimeout)
	n, err := s.repos.Queue(s.db).SweepStuck(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn(ctx, "stuck queue items reclaimed", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// List returns a user's queue items, optionally filtered by status.
func (s *QueueService) List(ctx context.Context, userID string, status models.QueueStatus, limit, offset int) ([]*models.QueueItem, error) {
	return s.repos.Queue(s.db).List(ctx, userID, status, limit, offset)
}
