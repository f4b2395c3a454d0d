// File: internal/pending/postgres_test.go
package pending

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/voicepilot/internal/executor"
)

// flexibleSQLMatcher makes a statement match regardless of whitespace.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

var pendingColumns = []string{"action", "required_route", "origin_route", "created_at"}

func newMockStore(t *testing.T, logger *zap.Logger) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateTable)).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	store, err := NewPostgresStore(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return store, mockPool
}

func TestNewPostgresStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = NewPostgresStore(context.Background(), mockPool, zap.NewNop())
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresPut(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 5, 2, 14, 0, 0, 0, time.UTC)
	older := executor.Click{Target: "join-session"}
	newer := executor.FillInput{Target: "title", Value: "Biology"}
	olderJSON, err := executor.Marshal(older)
	require.NoError(t, err)
	newerJSON, err := executor.Marshal(newer)
	require.NoError(t, err)

	t.Run("should return the superseded action", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		store, mockPool := newMockStore(t, zap.New(core))

		mockPool.ExpectBegin()
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectForUpdate)).
			WithArgs("u1").
			WillReturnRows(pgxmock.NewRows(pendingColumns).AddRow(olderJSON, "/sessions", "/courses", created))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsert)).
			WithArgs("u1", newerJSON, "/courses", "/", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		prev, err := store.Put(ctx, PendingAction{
			UserID: "u1", Action: newer, RequiredRoute: "/courses", OriginRoute: "/", CreatedAt: created,
		})
		require.NoError(t, err)
		require.NotNil(t, prev)
		assert.Equal(t, executor.Action(older), prev.Action)
		assert.Equal(t, "/sessions", prev.RequiredRoute)
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, logs.All(), "a closed transaction is not a rollback failure")
	})

	t.Run("should roll back when the upsert fails", func(t *testing.T) {
		store, mockPool := newMockStore(t, zap.NewNop())

		mockPool.ExpectBegin()
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectForUpdate)).
			WithArgs("u1").
			WillReturnRows(pgxmock.NewRows(pendingColumns))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsert)).
			WithArgs("u1", newerJSON, "/courses", "", pgxmock.AnyArg()).
			WillReturnError(errors.New("disk full"))
		mockPool.ExpectRollback()

		_, err := store.Put(ctx, PendingAction{UserID: "u1", Action: newer, RequiredRoute: "/courses", CreatedAt: created})
		assert.ErrorContains(t, err, "disk full")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresTake(t *testing.T) {
	ctx := context.Background()
	action := executor.SelectOption{Target: "level", Option: "beginner"}
	payload, err := executor.Marshal(action)
	require.NoError(t, err)

	store, mockPool := newMockStore(t, zap.NewNop())
	mockPool.ExpectQuery(flexibleSQLMatcher(sqlTake)).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows(pendingColumns).AddRow(payload, "/courses", "/", time.Now()))
	mockPool.ExpectQuery(flexibleSQLMatcher(sqlTake)).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows(pendingColumns))

	got, err := store.Take(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, executor.Action(action), got.Action)
	assert.Equal(t, "u1", got.UserID)

	got, err = store.Take(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresRestoreAndDelete(t *testing.T) {
	ctx := context.Background()
	action := executor.Navigate{Route: "/forum"}
	payload, err := executor.Marshal(action)
	require.NoError(t, err)

	store, mockPool := newMockStore(t, zap.NewNop())
	mockPool.ExpectExec(flexibleSQLMatcher(sqlRestore)).
		WithArgs("u1", payload, "/forum", "/", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mockPool.ExpectExec(flexibleSQLMatcher(sqlDelete)).
		WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, store.Restore(ctx, PendingAction{UserID: "u1", Action: action, RequiredRoute: "/forum", OriginRoute: "/"}))
	require.NoError(t, store.Delete(ctx, "u1"))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
