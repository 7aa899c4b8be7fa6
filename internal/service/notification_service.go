package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/daole6868/BOT-BAO-DON-HANG/internal/chat"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/events"
)

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher    events.Dispatcher
	chat          chat.ChannelProvider
	logger        *zap.Logger
	adminAnnounce string
}

// NewNotificationService creates the service. adminAnnounce is the channel
// that receives "order completed" posts; empty disables them.
func NewNotificationService(dispatcher events.Dispatcher, provider chat.ChannelProvider, logger *zap.Logger, adminAnnounce string) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher:    dispatcher,
		chat:          provider,
		logger:        logger,
		adminAnnounce: adminAnnounce,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.logEvent("TicketCreated"))
	n.dispatcher.Subscribe(events.EventMediaSaved, n.handleMediaSaved)
	n.dispatcher.Subscribe(events.EventChannelReopened, n.logEvent("ChannelReopened"))
	n.dispatcher.Subscribe(events.EventTicketExpired, n.logEvent("TicketExpired"))
	n.dispatcher.Subscribe(events.EventDuplicateDetected, n.logEvent("DuplicateDetected"))
}

func (n *NotificationService) logEvent(name string) events.EventHandler {
	return func(_ context.Context, event events.Event) error {
		n.logger.Info(name, zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
		return nil
	}
}

func (n *NotificationService) handleMediaSaved(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.MediaSavedPayload)
	if !ok {
		return fmt.Errorf("media_saved: unexpected payload %T", event.Payload)
	}
	n.logger.Info("MediaSaved", zap.String("ticket_id", event.TicketID), zap.Int("saved", payload.Saved))
	if strings.TrimSpace(n.adminAnnounce) == "" || n.chat == nil {
		return nil
	}
	msg := AdminCompletedMessage(event.TicketID, payload.Identifier, payload.Description, payload.OwnerID, payload.CreatedAt)
	if err := n.chat.SendMessage(ctx, n.adminAnnounce, msg); err != nil {
		return fmt.Errorf("admin announce: %w", err)
	}
	n.logger.Debug("admin notified", zap.String("ticket_id", event.TicketID), zap.String("identifier", payload.Identifier))
	return nil
}
