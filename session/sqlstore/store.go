// Package sqlstore persists sessions in a SQLite database.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/misaret/nomos-go/session"
	"github.com/misaret/nomos-go/session/sqlstore/migrations"
	_ "modernc.org/sqlite"
)

// Store is a session.Store over the sessions table.
type Store struct {
	sqlDB *sql.DB
}

var _ session.Store = (*Store)(nil)

// Open opens and migrates the session database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Load(ctx context.Context, id string, now time.Time) (session.Row, error) {
	row := session.Row{ID: id}
	var expire int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT expire, data FROM sessions WHERE id = ? AND expire > ?`,
		id, toMillis(now),
	).Scan(&expire, &row.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Row{}, session.ErrNoRow
	}
	if err != nil {
		return session.Row{}, fmt.Errorf("load session: %w", err)
	}
	row.Expire = fromMillis(expire)
	return row, nil
}

func (s *Store) Save(ctx context.Context, row session.Row) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO sessions (id, expire, data) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET expire = excluded.expire, data = excluded.data`,
		row.ID, toMillis(row.Expire), blob(row.Data),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, row session.Row) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, expire, data) VALUES (?, ?, ?)`,
		row.ID, toMillis(row.Expire), blob(row.Data),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if n == 0 {
		return session.ErrRowExists
	}
	return nil
}

func (s *Store) Rename(ctx context.Context, oldID, newID string, keepOld bool) (err error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var expire int64
	var data []byte
	err = tx.QueryRowContext(ctx, `SELECT expire, data FROM sessions WHERE id = ?`, oldID).Scan(&expire, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return session.ErrNoRow
	}
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	if oldID == newID {
		return tx.Commit()
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, expire, data) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET expire = excluded.expire, data = excluded.data`,
		newID, expire, blob(data),
	); err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	if !keepOld {
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, oldID); err != nil {
			return fmt.Errorf("rename session: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM sessions WHERE expire < ?`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return n, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// blob keeps empty payloads distinct from NULL.
func blob(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
