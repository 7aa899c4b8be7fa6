package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/daole6868/BOT-BAO-DON-HANG/internal/scheduler"
)

// ChannelArchiver deletes a ticket channel.
type ChannelArchiver interface {
	ArchiveChannel(ctx context.Context, channelRef string) error
}

// ArchivalWorker polls the archival queue and deletes due channels.
type ArchivalWorker struct {
	queue    scheduler.ArchivalQueue
	archiver ChannelArchiver
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	maxAttempts int
	attempts    map[string]int
}

// DefaultArchivalAttempts bounds how often a failing channel is retried.
const DefaultArchivalAttempts = 10

// NewArchivalWorker builds the worker. interval defaults to five seconds.
func NewArchivalWorker(queue scheduler.ArchivalQueue, archiver ChannelArchiver, interval time.Duration, logger *zap.Logger) *ArchivalWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchivalWorker{
		queue:    queue,
		archiver: archiver,
		interval: interval,
		logger:   logger,
		now:      time.Now,

		maxAttempts: DefaultArchivalAttempts,
		attempts:    make(map[string]int),
	}
}

// Run polls until ctx is cancelled.
func (w *ArchivalWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("archival worker started", zap.Duration("interval", w.interval))
	for {
		w.RunOnce(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info("archival worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce archives every channel that is currently due and returns how
// many were handled. A failed archival is queued again one interval later,
// up to maxAttempts tries per channel.
func (w *ArchivalWorker) RunOnce(ctx context.Context) int {
	now := w.now()
	due, err := w.queue.Due(ctx, now)
	if err != nil {
		w.logger.Warn("archival queue unavailable", zap.Error(err))
	}
	for _, ref := range due {
		err := w.archiver.ArchiveChannel(ctx, ref)
		if err == nil {
			delete(w.attempts, ref)
			w.logger.Debug("auto archived", zap.String("channel_id", ref))
			continue
		}

		w.attempts[ref]++
		attempt := w.attempts[ref]
		if attempt >= w.maxAttempts {
			delete(w.attempts, ref)
			w.logger.Error("auto archival abandoned",
				zap.String("channel_id", ref), zap.Int("attempts", attempt), zap.Error(err))
			continue
		}
		if serr := w.queue.Schedule(ctx, ref, now.Add(w.interval)); serr != nil {
			delete(w.attempts, ref)
			w.logger.Error("auto archival not requeued",
				zap.String("channel_id", ref), zap.Error(err), zap.NamedError("queue_error", serr))
			continue
		}
		w.logger.Warn("auto archival failed, retrying",
			zap.String("channel_id", ref), zap.Int("attempt", attempt), zap.Error(err))
	}
	return len(due)
}
