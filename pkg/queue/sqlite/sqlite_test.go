package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PermAdut/autoservice-notify/pkg/queue"
	"github.com/PermAdut/autoservice-notify/pkg/queue/queuetest"
	"github.com/PermAdut/autoservice-notify/pkg/queue/sqlite"
)

func TestSQLiteCompliance(t *testing.T) {
	queuetest.RunCompliance(t, func(t *testing.T, opts ...queue.Option) queue.Store {
		path := filepath.Join(t.TempDir(), "queue.db")
		store, err := sqlite.Open(context.Background(), path, nil, opts...)
		require.NoError(t, err, "failed to open sqlite store")
		return store
	})
}

func TestOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("empty path", func(t *testing.T) {
		t.Parallel()

		_, err := sqlite.Open(ctx, "", nil)
		require.ErrorIs(t, err, sqlite.ErrEmptyPath)
	})

	t.Run("in memory database", func(t *testing.T) {
		t.Parallel()

		store, err := sqlite.Open(ctx, ":memory:", nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })

		require.NoError(t, store.Ping(ctx))
	})

	t.Run("reopening keeps jobs and skips applied migrations", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "durable.db")

		first, err := sqlite.Open(ctx, path, nil)
		require.NoError(t, err)
		id, err := first.Enqueue(ctx, queue.KindSendSMS, []byte(`{"phone":"+15550002222","message":"ok"}`))
		require.NoError(t, err)
		require.NoError(t, first.Close())

		second, err := sqlite.Open(ctx, path, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = second.Close() })

		job, err := second.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.StateWaiting, job.State)
	})

	t.Run("closed store reports storage unavailable", func(t *testing.T) {
		t.Parallel()

		store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "closed.db"), nil)
		require.NoError(t, err)
		require.NoError(t, store.Close())

		_, err = store.Enqueue(ctx, queue.KindSendSMS, []byte(`{}`))
		require.ErrorIs(t, err, queue.ErrStorageUnavailable)
		_, err = store.Stats(ctx)
		require.ErrorIs(t, err, queue.ErrStorageUnavailable)
	})
}
