package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cron runs named jobs on cron schedules.
type Cron struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// NewCron creates a runner. Overlapping runs of one job are skipped.
func NewCron(logger *zap.Logger) *Cron {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cron{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
	}
}

// AddJob registers fn under a standard 5-field expression or a descriptor
// such as "@every 1h".
func (c *Cron) AddJob(name, schedule string, fn func()) error {
	_, err := c.cron.AddFunc(schedule, func() {
		c.logger.Debug("cron fired", zap.String("job", name))
		fn()
	})
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", schedule, err)
	}
	c.logger.Info("job registered", zap.String("job", name), zap.String("schedule", schedule))
	return nil
}

// JobCount returns the number of registered jobs.
func (c *Cron) JobCount() int {
	return len(c.cron.Entries())
}

// Start begins the cron scheduler. Blocks until context is cancelled and
// running jobs have returned.
func (c *Cron) Start(ctx context.Context) error {
	c.cron.Start()
	c.logger.Info("scheduler started")

	<-ctx.Done()
	<-c.cron.Stop().Done()
	c.logger.Info("scheduler stopped")
	return ctx.Err()
}
