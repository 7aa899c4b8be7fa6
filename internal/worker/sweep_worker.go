package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/daole6868/BOT-BAO-DON-HANG/internal/scheduler"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/service"
)

// RetentionSweeper is the sweep entry point run by the scheduler.
type RetentionSweeper interface {
	Sweep(ctx context.Context, maxAgeDays int) (service.SweepReport, error)
}

// RegisterSweepJob schedules periodic retention sweeps on c.
func RegisterSweepJob(ctx context.Context, c *scheduler.Cron, sweeper RetentionSweeper, schedule string, maxAgeDays int, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	return c.AddJob("retention-sweep", schedule, func() {
		report, err := sweeper.Sweep(ctx, maxAgeDays)
		if err != nil {
			logger.Error("retention sweep failed", zap.Error(err))
			return
		}
		logger.Debug("retention sweep done", zap.Int("deleted", report.Deleted))
	})
}
