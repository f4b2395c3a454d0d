// File: internal/pending/postgres.go
package pending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/internal/executor"
)

// DBPool is the slice of pgxpool.Pool the store uses, so tests can swap in
// pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	sqlCreateTable = `
        CREATE TABLE IF NOT EXISTS pending_actions (
            user_id        TEXT PRIMARY KEY,
            action         JSONB NOT NULL,
            required_route TEXT NOT NULL,
            origin_route   TEXT NOT NULL DEFAULT '',
            created_at     TIMESTAMPTZ NOT NULL
        );
    `
	sqlSelectForUpdate = `
        SELECT action, required_route, origin_route, created_at
        FROM pending_actions WHERE user_id = $1 FOR UPDATE;
    `
	sqlUpsert = `
        INSERT INTO pending_actions (user_id, action, required_route, origin_route, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user_id) DO UPDATE SET
            action = EXCLUDED.action,
            required_route = EXCLUDED.required_route,
            origin_route = EXCLUDED.origin_route,
            created_at = EXCLUDED.created_at;
    `
	sqlTake = `
        DELETE FROM pending_actions WHERE user_id = $1
        RETURNING action, required_route, origin_route, created_at;
    `
	sqlRestore = `
        INSERT INTO pending_actions (user_id, action, required_route, origin_route, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user_id) DO NOTHING;
    `
	sqlDelete = `DELETE FROM pending_actions WHERE user_id = $1;`
)

// PostgresStore keeps pending actions in PostgreSQL so a deferral survives an
// engine restart between the navigation and the drain.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore verifies the connection and creates the table if needed.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateTable); err != nil {
		return nil, fmt.Errorf("failed to create pending_actions table: %w", err)
	}
	return &PostgresStore{pool: pool, log: logger.Named("pending_store")}, nil
}

// Put upserts the slot inside a transaction so the previous value is read
// under the same row lock.
func (s *PostgresStore) Put(ctx context.Context, p PendingAction) (*PendingAction, error) {
	payload, err := executor.Marshal(p.Action)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	prev, err := scanPending(p.UserID, tx.QueryRow(ctx, sqlSelectForUpdate, p.UserID))
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, sqlUpsert, p.UserID, payload, p.RequiredRoute, p.OriginRoute, p.CreatedAt.UTC()); err != nil {
		return nil, fmt.Errorf("failed to store pending action: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return prev, nil
}

// Take pops the slot with a single DELETE ... RETURNING.
func (s *PostgresStore) Take(ctx context.Context, userID string) (*PendingAction, error) {
	return scanPending(userID, s.pool.QueryRow(ctx, sqlTake, userID))
}

func (s *PostgresStore) Restore(ctx context.Context, p PendingAction) error {
	payload, err := executor.Marshal(p.Action)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, sqlRestore, p.UserID, payload, p.RequiredRoute, p.OriginRoute, p.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to restore pending action: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, sqlDelete, userID); err != nil {
		return fmt.Errorf("failed to delete pending action: %w", err)
	}
	return nil
}

// scanPending reads one row; no row means an empty slot.
func scanPending(userID string, row pgx.Row) (*PendingAction, error) {
	var (
		payload   []byte
		required  string
		origin    string
		createdAt time.Time
	)
	if err := row.Scan(&payload, &required, &origin, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read pending action: %w", err)
	}
	action, err := executor.Unmarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("stored pending action is unreadable: %w", err)
	}
	return &PendingAction{
		UserID:        userID,
		Action:        action,
		RequiredRoute: required,
		OriginRoute:   origin,
		CreatedAt:     createdAt,
	}, nil
}
