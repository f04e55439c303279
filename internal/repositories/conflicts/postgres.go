package conflicts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dstrelkov/mobsync/internal/common"
	"github.com/dstrelkov/mobsync/internal/dbx"
	"github.com/dstrelkov/mobsync/internal/models"
)

const conflictColumns = `id, user_id, device_id, session_id, item_id, entity_type, entity_id,
		server_data, client_data, server_version, client_base_version,
		conflict_type, strategy, status, resolved_data, resolved_by,
		detected_at, resolved_at`

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, c *models.Conflict) error {
	query := `
		INSERT INTO sync_conflicts (` + conflictColumns + `)
		VALUES ($1, $2, $3, NULLIF($4,'')::uuid, NULLIF($5,'')::uuid, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.UserID, c.DeviceID, c.SessionID, c.ItemID, c.EntityType, c.EntityID,
		c.ServerData, c.ClientData, c.ServerVersion, c.ClientBaseVersion,
		string(c.Type), string(c.Strategy), string(c.Status),
		c.ResolvedData, c.ResolvedBy, c.DetectedAt, c.ResolvedAt)
	if err != nil {
		return fmt.Errorf("failed to insert conflict: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM sync_conflicts WHERE id=$1`
	c, err := scanConflict(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select conflict: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Resolve(ctx context.Context, id string, strategy models.ResolutionStrategy, resolvedData []byte, resolvedBy string) error {
	query := `UPDATE sync_conflicts
		SET status='RESOLVED', strategy=$2, resolved_data=$3, resolved_by=$4, resolved_at=now()
		WHERE id=$1 AND status='DETECTED'`
	res, err := r.db.ExecContext(ctx, query, id, string(strategy), resolvedData, resolvedBy)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.checkTransition(ctx, res, id)
}

func (r *PostgresRepository) Ignore(ctx context.Context, id string) error {
	query := `UPDATE sync_conflicts SET status='IGNORED' WHERE id=$1 AND status='DETECTED'`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.checkTransition(ctx, res, id)
}

func (r *PostgresRepository) Reopen(ctx context.Context, id string) error {
	query := `UPDATE sync_conflicts
		SET status='DETECTED', strategy='', resolved_data=NULL, resolved_by='', resolved_at=NULL
		WHERE id=$1 AND status IN ('RESOLVED','IGNORED')`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.checkTransition(ctx, res, id)
}

func (r *PostgresRepository) List(ctx context.Context, userID string, status models.ConflictStatus, limit, offset int) ([]*models.Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM sync_conflicts
		WHERE user_id=$1 AND ($2='' OR status=$2)
		ORDER BY detected_at DESC LIMIT $3 OFFSET $4`
	rows, err := r.db.QueryContext(ctx, query, userID, string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var result []*models.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
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
		c, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: conflict is %s", common.ErrInvalidStateTransition, c.Status)
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConflict(row rowScanner) (*models.Conflict, error) {
	var c models.Conflict
	var sessionID, itemID sql.NullString
	var conflictType, strategy, status string
	var resolvedAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.UserID, &c.DeviceID, &sessionID, &itemID, &c.EntityType, &c.EntityID,
		&c.ServerData, &c.ClientData, &c.ServerVersion, &c.ClientBaseVersion,
		&conflictType, &strategy, &status, &c.ResolvedData, &c.ResolvedBy,
		&c.DetectedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	c.SessionID = sessionID.String
	c.ItemID = itemID.String
	c.Type = models.ConflictType(conflictType)
	c.Strategy = models.ResolutionStrategy(strategy)
	c.Status = models.ConflictStatus(status)
	if resolvedAt.Valid {
		c.ResolvedAt = &resolvedAt.Time
	}
	return &c, nil
}
