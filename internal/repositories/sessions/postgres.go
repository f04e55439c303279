package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dstrelkov/mobsync/internal/common"
	"github.com/dstrelkov/mobsync/internal/dbx"
	"github.com/dstrelkov/mobsync/internal/models"
)

const sessionColumns = `id, user_id, device_id, device_type, app_version, sync_type, direction,
		status, records_uploaded, records_downloaded, conflicts_detected, conflicts_resolved,
		error_message, started_at, completed_at, duration_seconds`

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.SyncSession) error {
	query := `
		INSERT INTO sync_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.UserID, s.DeviceID, string(s.DeviceType), s.AppVersion,
		string(s.SyncType), string(s.Direction), string(s.Status),
		s.RecordsUploaded, s.RecordsDownloaded, s.ConflictsDetected, s.ConflictsResolved,
		s.ErrorMessage, s.StartedAt, s.CompletedAt, s.DurationSeconds)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.SyncSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM sync_sessions WHERE id=$1`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select session: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) MarkInProgress(ctx context.Context, id string) error {
	query := `UPDATE sync_sessions SET status='IN_PROGRESS' WHERE id=$1 AND status='INITIATED'`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.checkTransition(ctx, res, id)
}

func (r *PostgresRepository) UpdateCounters(ctx context.Context, id string, uploaded, downloaded, conflictsDetected int) error {
	query := `UPDATE sync_sessions
		SET records_uploaded=$2, records_downloaded=$3, conflicts_detected=$4
		WHERE id=$1`
	res, err := r.db.ExecContext(ctx, query, id, uploaded, downloaded, conflictsDetected)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) IncrementConflictsResolved(ctx context.Context, id string) error {
	query := `UPDATE sync_sessions SET conflicts_resolved=conflicts_resolved+1
		WHERE id=$1 AND conflicts_resolved < conflicts_detected`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close(ctx context.Context, id string, status models.SessionStatus, errorMessage string) error {
	query := `UPDATE sync_sessions
		SET status=$2, error_message=$3, completed_at=now(),
			duration_seconds=EXTRACT(EPOCH FROM (now() - started_at))::bigint
		WHERE id=$1 AND status='IN_PROGRESS'`
	res, err := r.db.ExecContext(ctx, query, id, string(status), errorMessage)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.checkTransition(ctx, res, id)
}

func (r *PostgresRepository) List(ctx context.Context, userID string, limit, offset int) ([]*models.SyncSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM sync_sessions
		WHERE user_id=$1 ORDER BY started_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var result []*models.SyncSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
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
		s, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: session is %s", common.ErrInvalidStateTransition, s.Status)
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.SyncSession, error) {
	var s models.SyncSession
	var deviceType, syncType, direction, status string
	var completedAt sql.NullTime
	err := row.Scan(
		&s.ID, &s.UserID, &s.DeviceID, &deviceType, &s.AppVersion, &syncType,
		&direction, &status, &s.RecordsUploaded, &s.RecordsDownloaded,
		&s.ConflictsDetected, &s.ConflictsResolved, &s.ErrorMessage,
		&s.StartedAt, &completedAt, &s.DurationSeconds,
	)
	if err != nil {
		return nil, err
	}
	s.DeviceType = models.DeviceType(deviceType)
	s.SyncType = models.SyncType(syncType)
	s.Direction = models.Direction(direction)
	s.Status = models.SessionStatus(status)
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}
	return &s, nil
}
