package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dstrelkov/mobsync/internal/common"
	"github.com/dstrelkov/mobsync/internal/dbx"
	"github.com/dstrelkov/mobsync/internal/models"
)

const queueColumns = `id, user_id, device_id, entity_type, entity_id, operation, payload,
		base_version, priority, retry_count, max_retries, status, last_error, permanent,
		created_at, claimed_at, synced_at`

// PostgresRepository implements Repository over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, item *models.QueueItem) error {
	query := `
		INSERT INTO sync_queue (` + queueColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.UserID, item.DeviceID, item.EntityType, item.EntityID,
		string(item.Operation), item.Payload, item.BaseVersion, item.Priority,
		item.RetryCount, item.MaxRetries, string(item.Status), item.LastError,
		item.Permanent, item.CreatedAt, item.ClaimedAt, item.SyncedAt)
	if err != nil {
		return fmt.Errorf("failed to insert queue item: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM sync_queue WHERE id=$1`
	item, err := scanQueueItem(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select queue item: %w", err)
	}
	return item, nil
}

// ClaimBatch uses a single UPDATE over a locked sub-select so that two
// concurrent claimers never take the same row. SKIP LOCKED keeps one
// claimer from blocking behind another's in-flight transaction. RETURNING
// does not guarantee order, so the batch is re-sorted before returning.
func (r *PostgresRepository) ClaimBatch(ctx context.Context, userID, deviceID string, limit int) ([]*models.QueueItem, error) {
	query := `
		UPDATE sync_queue q SET status='IN_PROGRESS', claimed_at=now()
		WHERE q.id IN (
			SELECT c.id FROM sync_queue c
			WHERE c.user_id=$1 AND c.device_id=$2 AND c.status='PENDING'
			  AND NOT EXISTS (
				SELECT 1 FROM sync_queue s
				WHERE s.entity_type=c.entity_type AND s.entity_id=c.entity_id
				  AND s.id <> c.id
				  AND (s.status='IN_PROGRESS'
				       OR (s.status='PENDING' AND s.created_at < c.created_at)
				       OR (s.status='FAILED' AND s.retry_count < s.max_retries
				           AND s.created_at < c.created_at))
			  )
			ORDER BY c.priority ASC, c.created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + queueColumns

	rows, err := r.db.QueryContext(ctx, query, userID, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim batch: %w", err)
	}
	defer rows.Close()

	var result []*models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority < result[j].Priority
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *PostgresRepository) MarkSynced(ctx context.Context, id string) error {
	query := `UPDATE sync_queue SET status='SYNCED', synced_at=now(), claimed_at=NULL
		WHERE id=$1 AND status='IN_PROGRESS'`
	return r.execTransition(ctx, query, id)
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id, reason string, permanent bool) error {
	// retry_count only ever grows and never exceeds max_retries.
	query := `UPDATE sync_queue
		SET status='FAILED', retry_count=LEAST(retry_count+1, max_retries),
			last_error=$2, permanent=$3, claimed_at=NULL
		WHERE id=$1 AND status <> 'SYNCED'`
	res, err := r.db.ExecContext(ctx, query, id, reason, permanent)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.checkTransition(ctx, res, id)
}

func (r *PostgresRepository) MarkConflict(ctx context.Context, id, reason string) error {
	query := `UPDATE sync_queue SET status='CONFLICT', last_error=$2, claimed_at=NULL
		WHERE id=$1 AND status IN ('PENDING','IN_PROGRESS')`
	res, err := r.db.ExecContext(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.checkTransition(ctx, res, id)
}

func (r *PostgresRepository) MarkResolved(ctx context.Context, id string) error {
	query := `UPDATE sync_queue SET status='SYNCED', synced_at=now(), last_error=''
		WHERE id=$1 AND status='CONFLICT'`
	return r.execTransition(ctx, query, id)
}

func (r *PostgresRepository) Retry(ctx context.Context, id string) error {
	query := `UPDATE sync_queue SET status='PENDING', last_error=''
		WHERE id=$1 AND status='FAILED' AND retry_count < max_retries`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Distinguish unknown id, wrong state and exhausted budget.
	item, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if item.Status != models.QueueFailed {
		return fmt.Errorf("%w: cannot retry item in status %s", common.ErrInvalidStateTransition, item.Status)
	}
	return common.ErrRetryExhausted
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM sync_queue WHERE id=$1 AND status IN ('PENDING','FAILED','CONFLICT')`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.checkTransition(ctx, res, id)
}

func (r *PostgresRepository) SweepStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `UPDATE sync_queue SET status='PENDING', claimed_at=NULL
		WHERE status='IN_PROGRESS' AND claimed_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stuck items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) List(ctx context.Context, userID string, status models.QueueStatus, limit, offset int) ([]*models.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM sync_queue
		WHERE user_id=$1 AND ($2='' OR status=$2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	rows, err := r.db.QueryContext(ctx, query, userID, string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	defer rows.Close()

	var result []*models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// execTransition runs a CAS update and maps a zero rows-affected result to
// ErrNotFound or ErrInvalidStateTransition.
func (r *PostgresRepository) execTransition(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.checkTransition(ctx, res, args[0].(string))
}

func (r *PostgresRepository) checkTransition(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		item, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: item is %s", common.ErrInvalidStateTransition, item.Status)
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueItem(row rowScanner) (*models.QueueItem, error) {
	var item models.QueueItem
	var op, status string
	var claimedAt, syncedAt sql.NullTime
	err := row.Scan(
		&item.ID, &item.UserID, &item.DeviceID, &item.EntityType, &item.EntityID,
		&op, &item.Payload, &item.BaseVersion, &item.Priority, &item.RetryCount,
		&item.MaxRetries, &status, &item.LastError, &item.Permanent,
		&item.CreatedAt, &claimedAt, &syncedAt,
	)
	if err != nil {
		return nil, err
	}
	item.Operation = models.Operation(op)
	item.Status = models.QueueStatus(status)
	if claimedAt.Valid {
		item.ClaimedAt = &claimedAt.Time
	}
	if syncedAt.Valid {
		item.SyncedAt = &syncedAt.Time
	}
	return &item, nil
}
