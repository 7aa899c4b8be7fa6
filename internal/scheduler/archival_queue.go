// Package scheduler holds the delayed channel-archival queue and the cron
// runner used for retention sweeps.
package scheduler

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ArchivalQueue stores channels that must be archived at a given time.
type ArchivalQueue interface {
	// Schedule records channelRef for archival at at. Rescheduling an already
	// queued channel moves its deadline.
	Schedule(ctx context.Context, channelRef string, at time.Time) error
	// Due removes and returns every channel whose deadline is <= now. Each
	// entry is handed to exactly one caller.
	Due(ctx context.Context, now time.Time) ([]string, error)
}

// DefaultArchivalKey is the Redis sorted set holding pending archivals.
const DefaultArchivalKey = "ticketbot:archival"

type redisArchivalQueue struct {
	client redis.Cmdable
	key    string
}

// NewRedisArchivalQueue keeps deadlines in a sorted set scored by unix
// milliseconds, so pending archivals survive a restart.
func NewRedisArchivalQueue(client redis.Cmdable, key string) ArchivalQueue {
	if key == "" {
		key = DefaultArchivalKey
	}
	return &redisArchivalQueue{client: client, key: key}
}

func (q *redisArchivalQueue) Schedule(ctx context.Context, channelRef string, at time.Time) error {
	return q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: channelRef,
	}).Err()
}

func (q *redisArchivalQueue) Due(ctx context.Context, now time.Time) ([]string, error) {
	members, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	claimed := make([]string, 0, len(members))
	for _, m := range members {
		// ZREM succeeds for one caller only, so concurrent pollers never
		// archive the same channel twice.
		n, err := q.client.ZRem(ctx, q.key, m).Result()
		if err != nil {
			return claimed, err
		}
		if n == 1 {
			claimed = append(claimed, m)
		}
	}
	return claimed, nil
}

type memoryArchivalQueue struct {
	mu      sync.Mutex
	pending map[string]time.Time
}

// NewMemoryArchivalQueue keeps deadlines in process memory. Pending
// archivals are lost on restart.
func NewMemoryArchivalQueue() ArchivalQueue {
	return &memoryArchivalQueue{pending: make(map[string]time.Time)}
}

func (q *memoryArchivalQueue) Schedule(_ context.Context, channelRef string, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[channelRef] = at
	return nil
}

func (q *memoryArchivalQueue) Due(_ context.Context, now time.Time) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []string
	for ref, at := range q.pending {
		if !at.After(now) {
			due = append(due, ref)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		a, b := q.pending[due[i]], q.pending[due[j]]
		if a.Equal(b) {
			return due[i] < due[j]
		}
		return a.Before(b)
	})
	for _, ref := range due {
		delete(q.pending, ref)
	}
	return due, nil
}
