package confirm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pending_confirmations (
	user_id    TEXT PRIMARY KEY,
	id         TEXT NOT NULL,
	operation  TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_expires ON pending_confirmations(expires_at);
`

// SQLiteStore persists pending entries in a local SQLite file so they survive restarts.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, userID string, p Pending) error {
	op, err := encodeOperation(p.Operation)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_confirmations (user_id, id, operation, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			id = excluded.id,
			operation = excluded.operation,
			expires_at = excluded.expires_at`,
		userID, p.ID, string(op), p.ExpiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert pending: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Peek(ctx context.Context, userID string) (Pending, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, operation, expires_at FROM pending_confirmations WHERE user_id = ?`, userID)
	return scanSQLite(row)
}

func (s *SQLiteStore) Take(ctx context.Context, userID string) (Pending, error) {
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM pending_confirmations WHERE user_id = ? RETURNING id, operation, expires_at`, userID)
	return scanSQLite(row)
}

func scanSQLite(row *sql.Row) (Pending, error) {
	var (
		p         Pending
		op        string
		expiresMs int64
	)
	if err := row.Scan(&p.ID, &op, &expiresMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Pending{}, ErrNoPending
		}
		return Pending{}, fmt.Errorf("read pending: %w", err)
	}
	decoded, err := decodeOperation([]byte(op))
	if err != nil {
		return Pending{}, err
	}
	p.Operation = decoded
	p.ExpiresAt = time.UnixMilli(expiresMs).UTC()
	return p, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_confirmations WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete pending: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_confirmations WHERE expires_at < ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sweep pending: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLiteStore) Close() error                   { return s.db.Close() }
