package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queues(t *testing.T) map[string]ArchivalQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]ArchivalQueue{
		"redis":  NewRedisArchivalQueue(client, ""),
		"memory": NewMemoryArchivalQueue(),
	}
}

func TestArchivalQueueDue(t *testing.T) {
	for name, q := range queues(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.UnixMilli(1700000000000)

			require.NoError(t, q.Schedule(ctx, "late", base.Add(10*time.Minute)))
			require.NoError(t, q.Schedule(ctx, "second", base.Add(2*time.Minute)))
			require.NoError(t, q.Schedule(ctx, "first", base.Add(time.Minute)))

			due, err := q.Due(ctx, base)
			require.NoError(t, err)
			assert.Empty(t, due)

			due, err = q.Due(ctx, base.Add(5*time.Minute))
			require.NoError(t, err)
			assert.Equal(t, []string{"first", "second"}, due)

			due, err = q.Due(ctx, base.Add(5*time.Minute))
			require.NoError(t, err)
			assert.Empty(t, due, "claimed entries are not handed out twice")

			due, err = q.Due(ctx, base.Add(10*time.Minute))
			require.NoError(t, err)
			assert.Equal(t, []string{"late"}, due)
		})
	}
}

func TestArchivalQueueReschedule(t *testing.T) {
	for name, q := range queues(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.UnixMilli(1700000000000)

			require.NoError(t, q.Schedule(ctx, "chan", base.Add(time.Minute)))
			require.NoError(t, q.Schedule(ctx, "chan", base.Add(time.Hour)))

			due, err := q.Due(ctx, base.Add(2*time.Minute))
			require.NoError(t, err)
			assert.Empty(t, due)

			due, err = q.Due(ctx, base.Add(time.Hour))
			require.NoError(t, err)
			assert.Equal(t, []string{"chan"}, due)
		})
	}
}

func TestCronAddJob(t *testing.T) {
	c := NewCron(nil)
	var calls atomic.Int32
	require.NoError(t, c.AddJob("sweep", "@every 1s", func() { calls.Add(1) }))
	assert.Equal(t, 1, c.JobCount())

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	err := c.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestCronInvalidSchedule(t *testing.T) {
	c := NewCron(nil)
	assert.Error(t, c.AddJob("sweep", "invalid-cron", func() {}))
	assert.Equal(t, 0, c.JobCount())
}
