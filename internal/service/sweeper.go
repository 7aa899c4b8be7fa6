package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/daole6868/BOT-BAO-DON-HANG/internal/events"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/media"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/observability"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/repository"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/storage"
	apperrors "github.com/daole6868/BOT-BAO-DON-HANG/pkg/util"
)

// DefaultDeleteSpacing is the pause between two remote media deletions.
const DefaultDeleteSpacing = 300 * time.Millisecond

// SweepReport summarises one retention sweep.
type SweepReport struct {
	Cutoff         time.Time
	Examined       int
	Deleted        int
	RecordFailures int
	MediaDeleted   int
	MediaFailures  int
}

// SweeperDependencies bundles collaborators for the sweeper.
type SweeperDependencies struct {
	TicketRepo repository.TicketRepository
	Storage    storage.ObjectStorage
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Spacing    time.Duration
	Now        func() time.Time
	Sleep      func(ctx context.Context, d time.Duration) error
}

// Sweeper deletes tickets past their retention window, media first.
type Sweeper struct {
	tickets    repository.TicketRepository
	storage    storage.ObjectStorage
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	spacing    time.Duration
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewSweeper constructs the sweeper. A negative spacing disables pacing.
func NewSweeper(deps SweeperDependencies) *Sweeper {
	s := &Sweeper{
		tickets:    deps.TicketRepo,
		storage:    deps.Storage,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		spacing:    deps.Spacing,
		now:        deps.Now,
		sleep:      deps.Sleep,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.spacing == 0 {
		s.spacing = DefaultDeleteSpacing
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.sleep == nil {
		s.sleep = media.Sleep
	}
	return s
}

// Sweep deletes every ticket created more than maxAgeDays ago. Remote media
// deletion failures are logged and do not keep the record alive. Once the
// expired set is loaded the sweep runs to completion even if ctx ends.
func (s *Sweeper) Sweep(ctx context.Context, maxAgeDays int) (SweepReport, error) {
	if maxAgeDays < 1 {
		return SweepReport{}, apperrors.NewValidationError("max age must be at least one day",
			map[string]any{"max_age_days": maxAgeDays})
	}
	cutoff := s.now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
	report := SweepReport{Cutoff: cutoff}
	logger := s.logger.With(zap.Time("cutoff", cutoff))

	expired, err := s.tickets.Find(ctx, repository.TicketFilter{CreatedBefore: &cutoff})
	if err != nil {
		return report, apperrors.NewUpstreamUnavailable("find expired tickets", err)
	}
	report.Examined = len(expired)
	if len(expired) == 0 {
		logger.Debug("nothing to sweep")
		return report, nil
	}

	work := context.WithoutCancel(ctx)
	deletions := 0
	for i := range expired {
		ticket := &expired[i]
		tlog := logger.With(zap.String("ticket_id", ticket.ID), zap.String("identifier", ticket.Identifier))

		deleted, failed := 0, 0
		for _, remoteID := range ticket.RemoteIDs() {
			if deletions > 0 && s.spacing > 0 {
				_ = s.sleep(work, s.spacing)
			}
			deletions++
			if s.storage == nil {
				continue
			}
			if err := s.storage.Delete(work, remoteID); err != nil {
				failed++
				s.metrics.MediaSwept(false)
				tlog.Warn("media not deleted", zap.String("remote_id", remoteID), zap.Error(err))
				continue
			}
			deleted++
			s.metrics.MediaSwept(true)
		}
		report.MediaDeleted += deleted
		report.MediaFailures += failed

		if err := s.tickets.DeleteOne(work, ticket); err != nil {
			report.RecordFailures++
			s.metrics.TicketSwept(false)
			tlog.Error("ticket record not deleted", zap.Error(err))
			continue
		}
		report.Deleted++
		s.metrics.TicketSwept(true)
		s.publishExpired(work, ticket.ID, ticket.Identifier, deleted, failed)
	}

	logger.Info("retention sweep finished",
		zap.Int("examined", report.Examined),
		zap.Int("deleted", report.Deleted),
		zap.Int("record_failures", report.RecordFailures),
		zap.Int("media_deleted", report.MediaDeleted),
		zap.Int("media_failures", report.MediaFailures))
	return report, nil
}

func (s *Sweeper) publishExpired(ctx context.Context, ticketID, identifier string, deleted, failed int) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketExpired,
		TicketID:  ticketID,
		Timestamp: s.now(),
		Payload: events.TicketExpiredPayload{
			Identifier:    identifier,
			MediaDeleted:  deleted,
			MediaFailures: failed,
		},
	})
}
