package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/daole6868/BOT-BAO-DON-HANG/internal/chat"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/domain"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/events"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/observability"
	apperrors "github.com/daole6868/BOT-BAO-DON-HANG/pkg/util"
)

// NotifyReport summarises one duplicate notification round.
type NotifyReport struct {
	Recipients  int
	Delivered   int
	Failed      int
	SummarySent bool
}

// DuplicateNotifier warns owners and auditors about identifiers recorded
// more than once. Delivery is best effort.
type DuplicateNotifier struct {
	chat         chat.ChannelProvider
	auditChannel string
	dispatcher   events.Dispatcher
	metrics      *observability.Metrics
	logger       *zap.Logger
	now          func() time.Time
}

// NewDuplicateNotifier creates the notifier. auditChannel may be empty.
func NewDuplicateNotifier(provider chat.ChannelProvider, auditChannel string, dispatcher events.Dispatcher, metrics *observability.Metrics, logger *zap.Logger) *DuplicateNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DuplicateNotifier{
		chat:         provider,
		auditChannel: auditChannel,
		dispatcher:   dispatcher,
		metrics:      metrics,
		logger:       logger,
		now:          time.Now,
	}
}

// Notify DMs each distinct owner once, in first-seen order, then posts one
// summary to the audit channel. Fewer than two matches is a no-op.
func (n *DuplicateNotifier) Notify(ctx context.Context, identifier string, matches []domain.Ticket) NotifyReport {
	var report NotifyReport
	if len(matches) < 2 {
		return report
	}
	logger := n.logger.With(zap.String("identifier", identifier), zap.Int("matches", len(matches)))
	n.metrics.DuplicateDetected()

	content := DuplicateDirectMessage(identifier, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, t := range matches {
		if t.OwnerID == "" {
			continue
		}
		if _, ok := seen[t.OwnerID]; ok {
			continue
		}
		seen[t.OwnerID] = struct{}{}
		report.Recipients++
		if err := n.chat.SendDirect(ctx, t.OwnerID, content); err != nil {
			report.Failed++
			logger.Debug("duplicate warning not delivered", zap.String("owner_id", t.OwnerID), zap.Error(err))
			continue
		}
		report.Delivered++
	}

	if n.auditChannel == "" {
		logger.Debug("duplicate summary skipped", zap.Error(apperrors.NewConfigurationMissing("ADMIN_CHECK_CHANNEL_ID")))
	} else if err := n.chat.SendMessage(ctx, n.auditChannel, DuplicateSummaryMessage(identifier, len(matches))); err != nil {
		logger.Warn("duplicate summary not delivered", zap.Error(err))
	} else {
		report.SummarySent = true
	}

	if n.dispatcher != nil {
		ids := make([]string, 0, len(matches))
		for _, t := range matches {
			ids = append(ids, t.ID)
		}
		_ = n.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventDuplicateDetected,
			Timestamp: n.now(),
			Payload:   events.DuplicateDetectedPayload{Identifier: identifier, TicketIDs: ids},
		})
	}
	logger.Info("duplicate identifier reported",
		zap.Int("delivered", report.Delivered),
		zap.Int("failed", report.Failed),
		zap.Bool("summary_sent", report.SummarySent))
	return report
}
