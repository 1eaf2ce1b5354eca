//go:build integration

package redis_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/PermAdut/autoservice-notify/pkg/queue"
	"github.com/PermAdut/autoservice-notify/pkg/queue/queuetest"
	queueredis "github.com/PermAdut/autoservice-notify/pkg/queue/redis"
	"github.com/PermAdut/autoservice-notify/pkg/redis"
)

const testRedisURL = "redis://localhost:6379/0"

func newTestClient(t *testing.T) *goredis.Client {
	t.Helper()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = testRedisURL
	}

	ctx := context.Background()
	client, err := redis.Connect(ctx, redis.Config{URL: url, RetryAttempts: 1}, nil)
	require.NoError(t, err, "failed to connect to Redis")
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// newStore isolates each test under its own hash-tagged prefix.
func newStore(t *testing.T, opts ...queue.Option) *queueredis.Store {
	t.Helper()

	client := newTestClient(t)
	prefix := "{notify-test-" + uuid.NewString() + "}"
	t.Cleanup(func() {
		ctx := context.Background()
		iter := client.Scan(ctx, 0, prefix+":*", 100).Iterator()
		for iter.Next(ctx) {
			_ = client.Del(ctx, iter.Val()).Err()
		}
	})
	return queueredis.New(client, prefix, opts...)
}

func TestRedisCompliance(t *testing.T) {
	queuetest.RunCompliance(t, func(t *testing.T, opts ...queue.Option) queue.Store {
		return newStore(t, opts...)
	})
}

func TestCloseLeavesClientOpen(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.Close())
	require.NoError(t, store.Ping(ctx))
}

func TestUnreachableServerIsUnavailable(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	store := queueredis.New(client, "")
	ctx := context.Background()

	_, err := store.Enqueue(ctx, queue.KindSendSMS, []byte(`{}`))
	require.ErrorIs(t, err, queue.ErrStorageUnavailable)

	_, err = store.Lease(ctx, "w", 1)
	require.ErrorIs(t, err, queue.ErrStorageUnavailable)

	require.ErrorIs(t, store.Ack(ctx, "missing"), queue.ErrStorageUnavailable)
	require.ErrorIs(t, store.Ping(ctx), queue.ErrStorageUnavailable)
}
