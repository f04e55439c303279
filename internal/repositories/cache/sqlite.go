package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dstrelkov/mobsync/internal/cachemigrations"
	"github.com/dstrelkov/mobsync/internal/common"
	"github.com/dstrelkov/mobsync/internal/dbx"
	"github.com/dstrelkov/mobsync/internal/models"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or
// *sql.Tx). Timestamps are stored as Unix seconds.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// InitDatabase opens the device-local SQLite database, runs the embedded
// migrations and returns a ready repository together with the connection.
func InitDatabase(ctx context.Context, dsn string) (*SQLiteRepository, *sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return NewSQLiteRepository(db), db, nil
}

// RunMigrations applies the embedded cache schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(cachemigrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		log.Fatal("failed to set goose dialect:", err)
	}

	return goose.UpContext(ctx, db, ".")
}

func (r *SQLiteRepository) Upsert(ctx context.Context, e *models.CacheEntry) error {
	query := ` INSERT INTO cache_entries (user_id, cache_key, cache_type, data, last_synced_at, expires_at)
			values (?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, cache_key) DO UPDATE SET cache_type = excluded.cache_type,
				data = excluded.data,
				last_synced_at = excluded.last_synced_at,
				expires_at = excluded.expires_at
	`
	var expires sql.NullInt64
	if e.ExpiresAt != nil {
		expires = sql.NullInt64{Int64: e.ExpiresAt.Unix(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		e.UserID, e.CacheKey, e.CacheType, e.Data, e.LastSyncedAt.Unix(), expires)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, userID, cacheKey string) (*models.CacheEntry, error) {
	query := `select user_id, cache_key, cache_type, data, last_synced_at, expires_at
		from cache_entries where user_id=? and cache_key=?`
	e, err := scanCacheEntry(r.db.QueryRowContext(ctx, query, userID, cacheKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select cache entry: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, userID, cacheKey string) error {
	query := `delete from cache_entries where user_id=? and cache_key=?`
	res, err := r.db.ExecContext(ctx, query, userID, cacheKey)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `delete from cache_entries where user_id=?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cache entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `delete from cache_entries where expires_at is not null and expires_at < ?`
	res, err := r.db.ExecContext(ctx, query, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) ListByUser(ctx context.Context, userID string) ([]*models.CacheEntry, error) {
	query := `select user_id, cache_key, cache_type, data, last_synced_at, expires_at
		from cache_entries where user_id=?`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select cache entries: %w", err)
	}
	defer rows.Close()

	var result []*models.CacheEntry
	for rows.Next() {
		e, err := scanCacheEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCacheEntry(row rowScanner) (*models.CacheEntry, error) {
	var e models.CacheEntry
	var lastSynced int64
	var expires sql.NullInt64
	if err := row.Scan(&e.UserID, &e.CacheKey, &e.CacheType, &e.Data, &lastSynced, &expires); err != nil {
		return nil, err
	}
	e.LastSyncedAt = time.Unix(lastSynced, 0).UTC()
	if expires.Valid {
		t := time.Unix(expires.Int64, 0).UTC()
		e.ExpiresAt = &t
	}
	return &e, nil
}
