package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalTryLock(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, err := l.TryLock(ctx, "a")
	require.NoError(t, err)

	_, err = l.TryLock(ctx, "a")
	assert.ErrorIs(t, err, ErrLocked)

	other, err := l.TryLock(ctx, "b")
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := l.TryLock(ctx, "a")
	require.NoError(t, err)
	again()
}

func TestLocalSingleWinner(t *testing.T) {
	l := NewLocal()
	var winners int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := l.TryLock(context.Background(), "same"); err == nil {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, winners)
}

// Runs against a real server when REDIS_URL is set.
func TestRedisTryLock(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	l := NewRedis(client, "test:lock:", time.Second)
	key := time.Now().Format(time.RFC3339Nano)

	release, err := l.TryLock(ctx, key)
	require.NoError(t, err)

	_, err = l.TryLock(ctx, key)
	assert.ErrorIs(t, err, ErrLocked)

	release()
	again, err := l.TryLock(ctx, key)
	require.NoError(t, err)
	again()
}
