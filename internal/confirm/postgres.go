package confirm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS pending_confirmations (
	user_id    TEXT PRIMARY KEY,
	id         TEXT NOT NULL,
	operation  JSONB NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_expires ON pending_confirmations(expires_at);
`

// PostgresStore keeps pending entries in a shared Postgres database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, userID string, p Pending) error {
	op, err := encodeOperation(p.Operation)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO pending_confirmations (user_id, id, operation, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			id = EXCLUDED.id,
			operation = EXCLUDED.operation,
			expires_at = EXCLUDED.expires_at`,
		userID, p.ID, string(op), p.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert pending: %w", err)
	}
	return nil
}

func (s *PostgresStore) Peek(ctx context.Context, userID string) (Pending, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, operation::text, expires_at FROM pending_confirmations WHERE user_id = $1`, userID)
	return scanPostgres(row)
}

func (s *PostgresStore) Take(ctx context.Context, userID string) (Pending, error) {
	row := s.pool.QueryRow(ctx,
		`DELETE FROM pending_confirmations WHERE user_id = $1 RETURNING id, operation::text, expires_at`, userID)
	return scanPostgres(row)
}

func scanPostgres(row pgx.Row) (Pending, error) {
	var (
		p  Pending
		op string
	)
	if err := row.Scan(&p.ID, &op, &p.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Pending{}, ErrNoPending
		}
		return Pending{}, fmt.Errorf("read pending: %w", err)
	}
	decoded, err := decodeOperation([]byte(op))
	if err != nil {
		return Pending{}, err
	}
	p.Operation = decoded
	return p, nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM pending_confirmations WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete pending: %w", err)
	}
	return nil
}

func (s *PostgresStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pending_confirmations WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep pending: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
