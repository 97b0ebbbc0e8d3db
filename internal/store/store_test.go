package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
)

// flexibleSQLMatcher builds a regex that is insensitive to whitespace.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T, logger *zap.Logger) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

var stamp = time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestMigrate(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	mockPool.ExpectExec("CREATE TABLE IF NOT EXISTS murphy_sessions").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPublish(t *testing.T) {
	ctx := context.Background()

	t.Run("should mirror nodes in UTC", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertNode)).
			WithArgs("s1", 3, "Setup", 2, stamp.UTC()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := s.Publish(ctx, schemas.TopicNodeDiscovered, schemas.NodeEvent{
			SessionID: "s1", Index: 3, Title: "Setup", Actions: 2, Timestamp: stamp,
		})
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should insert added edges without a transaction", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertEdge)).
			WithArgs("s1", 0, 1, "Next", "button", []byte(`{"left":1,"top":2,"right":3,"bottom":4}`), stamp.UTC()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := s.Publish(ctx, schemas.TopicEdgeRecorded, schemas.EdgeEvent{
			SessionID: "s1", Head: 0, Tail: 1, Action: "Next", Kind: "button",
			Rect: schemas.NewRect(1, 2, 3, 4), Timestamp: stamp,
		})
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should replace retargeted edges atomically", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteEdges)).
			WithArgs("s1", 0, "Next", "button").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertEdge)).
			WithArgs("s1", 0, 2, "Next", "button", pgxmock.AnyArg(), stamp.UTC()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()

		err := s.Publish(ctx, schemas.TopicEdgeRecorded, schemas.EdgeEvent{
			SessionID: "s1", Head: 0, Tail: 2, Action: "Next", Kind: "button", Replaced: true, Timestamp: stamp,
		})
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should roll back when the insert fails", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(core))
		dbErr := errors.New("constraint violated")
		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteEdges)).
			WithArgs("s1", 0, "Next", "button").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertEdge)).
			WillReturnError(dbErr)
		mockPool.ExpectRollback()

		err := s.Publish(ctx, schemas.TopicEdgeRecorded, schemas.EdgeEvent{
			SessionID: "s1", Head: 0, Tail: 2, Action: "Next", Kind: "button", Replaced: true, Timestamp: stamp,
		})
		assert.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), string(schemas.TopicEdgeRecorded))
		assert.Zero(t, logs.Len())
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should mirror resets and sessions", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertReset)).
			WithArgs("s1", "max depth", stamp.UTC()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertSession)).
			WithArgs("s1", "explorer", "exhausted", 4, 5, 1, 9, int64(90000), stamp.UTC()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, s.Publish(ctx, schemas.TopicSessionReset, schemas.ResetEvent{
			SessionID: "s1", Reason: "max depth", Timestamp: stamp,
		}))
		require.NoError(t, s.Publish(ctx, schemas.TopicSessionFinished, schemas.SessionEvent{
			SessionID: "s1", Policy: "explorer", Reason: "exhausted",
			Nodes: 4, Edges: 5, Resets: 1, Actions: 9, Duration: 90 * time.Second, Timestamp: stamp,
		}))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should ignore unrelated events", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		require.NoError(t, s.Publish(ctx, schemas.TopicActionPerformed, schemas.ActionEvent{}))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.NoError(t, s.Close())
	})
}
