package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/daole6868/BOT-BAO-DON-HANG/internal/api/dto"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/auth"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/chat"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/config"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/domain"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/events"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/media"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/observability"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/repository"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/scheduler"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/storage"
	apperrors "github.com/daole6868/BOT-BAO-DON-HANG/pkg/util"
)

// MediaIngester copies attachments into object storage.
type MediaIngester interface {
	Ingest(ctx context.Context, sources []media.Source, prefix string) (media.Result, error)
}

// DuplicateReporter is told about identifiers that match several tickets.
type DuplicateReporter interface {
	Notify(ctx context.Context, identifier string, matches []domain.Ticket) NotifyReport
}

// LifecycleSettings holds the guild layout and pacing used by the lifecycle.
type LifecycleSettings struct {
	SellerCategoryID string
	BuyerCategoryID  string
	AuditChannelID   string
	ArchiveAfter     time.Duration
	RepublishSpacing time.Duration
	HistoryLimit     int
}

// LifecycleSettingsFromConfig picks the lifecycle values out of cfg.
func LifecycleSettingsFromConfig(cfg *config.Config) LifecycleSettings {
	return LifecycleSettings{
		SellerCategoryID: cfg.Discord.SellerCategoryID,
		BuyerCategoryID:  cfg.Discord.BuyerCategoryID,
		AuditChannelID:   cfg.Discord.AdminCheckChannelID,
		ArchiveAfter:     cfg.Lifecycle.ArchiveAfter,
		RepublishSpacing: cfg.Lifecycle.RepublishSpacing,
		HistoryLimit:     cfg.Lifecycle.HistoryLimit,
	}
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	TicketRepo repository.TicketRepository
	Chat       chat.ChannelProvider
	Pipeline   MediaIngester
	Storage    storage.ObjectStorage
	Archival   scheduler.ArchivalQueue
	Notifier   DuplicateReporter
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Settings   LifecycleSettings
	Now        func() time.Time
	Sleep      func(ctx context.Context, d time.Duration) error
}

// LifecycleService drives tickets from creation to channel archival.
type LifecycleService struct {
	tickets    repository.TicketRepository
	chat       chat.ChannelProvider
	pipeline   MediaIngester
	storage    storage.ObjectStorage
	archival   scheduler.ArchivalQueue
	notifier   DuplicateReporter
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	settings   LifecycleSettings
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error

	saves   *keyedMutex
	reopens *keyedMutex
}

// SaveResult reports the outcome of a media save.
type SaveResult struct {
	Ticket *domain.Ticket
	Saved  int
	Failed int
}

// ReopenResult reports the channel a ticket is bound to after reopen.
type ReopenResult struct {
	Ticket     *domain.Ticket
	ChannelRef string
	Recreated  bool
}

const (
	defaultArchiveAfter = 10 * time.Minute
	defaultHistoryLimit = 100
)

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	s := &LifecycleService{
		tickets:    deps.TicketRepo,
		chat:       deps.Chat,
		pipeline:   deps.Pipeline,
		storage:    deps.Storage,
		archival:   deps.Archival,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		settings:   deps.Settings,
		now:        deps.Now,
		sleep:      deps.Sleep,
		saves:      newKeyedMutex(),
		reopens:    newKeyedMutex(),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.sleep == nil {
		s.sleep = media.Sleep
	}
	if s.settings.ArchiveAfter <= 0 {
		s.settings.ArchiveAfter = defaultArchiveAfter
	}
	if s.settings.HistoryLimit <= 0 {
		s.settings.HistoryLimit = defaultHistoryLimit
	}
	return s
}

// CreateSellerTicket opens a private seller channel and records the ticket.
func (s *LifecycleService) CreateSellerTicket(ctx context.Context, sub dto.SellerSubmission) (*domain.Ticket, string, error) {
	sub.Normalize()
	if err := dto.Validate(&sub); err != nil {
		return nil, "", err
	}
	logger := s.logger.With(zap.String("identifier", sub.Identifier), zap.String("owner_id", sub.OwnerID))

	channelRef, err := s.chat.CreatePrivateChannel(ctx,
		ChannelName(domain.TicketKindSeller, sub.Identifier), s.settings.SellerCategoryID, sub.OwnerID)
	if err != nil {
		return nil, "", apperrors.NewUpstreamUnavailable("create seller channel", err)
	}

	ticket := &domain.Ticket{
		Identifier:  sub.Identifier,
		Description: sub.Description,
		OwnerID:     sub.OwnerID,
		ChannelRef:  channelRef,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		s.dropChannel(ctx, channelRef, logger)
		return nil, "", apperrors.NewUpstreamUnavailable("create ticket", err)
	}
	logger = logger.With(zap.String("ticket_id", ticket.ID), zap.String("channel_id", channelRef))

	if err := s.chat.SendMessage(ctx, channelRef, SellerTicketMessage(ticket)); err != nil {
		logger.Warn("seller summary not delivered", zap.Error(err))
	}
	s.scheduleArchival(ctx, channelRef)
	s.metrics.TicketCreated(string(domain.TicketKindSeller))
	s.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.Actor{ID: sub.OwnerID},
		Payload: events.TicketCreatedPayload{
			Kind:       string(domain.TicketKindSeller),
			Identifier: ticket.Identifier,
			ChannelRef: channelRef,
		},
	})
	logger.Info("seller ticket created")
	return ticket, channelRef, nil
}

// CreateBuyerLookup opens a private buyer channel listing every ticket
// recorded under identifier, oldest first.
func (s *LifecycleService) CreateBuyerLookup(ctx context.Context, identifier, requesterID string) ([]domain.Ticket, string, error) {
	lookup := dto.BuyerLookup{Identifier: identifier, RequesterID: requesterID}
	lookup.Normalize()
	if err := dto.Validate(&lookup); err != nil {
		return nil, "", err
	}
	logger := s.logger.With(zap.String("identifier", lookup.Identifier), zap.String("requester_id", requesterID))

	matches, err := s.findByIdentifier(ctx, lookup.Identifier)
	if err != nil {
		return nil, "", err
	}

	channelRef, err := s.chat.CreatePrivateChannel(ctx,
		ChannelName(domain.TicketKindBuyer, lookup.Identifier), s.settings.BuyerCategoryID, requesterID)
	if err != nil {
		return nil, "", apperrors.NewUpstreamUnavailable("create buyer channel", err)
	}
	logger = logger.With(zap.String("channel_id", channelRef))

	for i := range matches {
		if err := s.present(ctx, channelRef, BuyerOrderMessage(&matches[i]), matches[i].Media); err != nil {
			logger.Warn("order not presented", zap.String("ticket_id", matches[i].ID), zap.Error(err))
		}
	}
	if err := s.chat.SendMessage(ctx, channelRef, BuyerClosingMessage()); err != nil {
		logger.Warn("buyer closing message not delivered", zap.Error(err))
	}
	s.scheduleArchival(ctx, channelRef)
	s.metrics.TicketCreated(string(domain.TicketKindBuyer))

	if len(matches) > 1 && s.notifier != nil {
		s.notifier.Notify(ctx, lookup.Identifier, matches)
	}
	logger.Info("buyer lookup served", zap.Int("matches", len(matches)))
	return matches, channelRef, nil
}

// SaveMedia uploads sources and appends them to the ticket bound to
// channelRef. Saves for one channel run one at a time.
func (s *LifecycleService) SaveMedia(ctx context.Context, channelRef string, sources []media.Source) (SaveResult, error) {
	unlock := s.saves.Lock(channelRef)
	defer unlock()

	ticket, err := s.ticketByChannel(ctx, channelRef)
	if err != nil {
		return SaveResult{}, err
	}
	if len(sources) == 0 {
		return SaveResult{Ticket: ticket}, nil
	}
	logger := s.logger.With(
		zap.String("ticket_id", ticket.ID),
		zap.String("identifier", ticket.Identifier),
		zap.String("channel_id", channelRef),
	)

	res, ingestErr := s.pipeline.Ingest(ctx, sources, "tickets/"+ticket.Identifier)
	s.metrics.MediaIngested(res.Succeeded, res.Failed)
	out := SaveResult{Ticket: ticket, Failed: res.Failed}

	if len(res.Manifest) > 0 {
		// Uploaded objects are recorded even if ctx ended mid-batch.
		storeCtx := context.WithoutCancel(ctx)
		updated, err := s.tickets.UpdateOne(storeCtx,
			repository.TicketFilter{ID: ticket.ID},
			repository.TicketDelta{AppendMedia: res.Manifest})
		if err != nil {
			s.discardUploads(storeCtx, res.Manifest, logger)
			if apperrors.IsNotFound(err) {
				logger.Warn("ticket vanished during media save")
				return out, err
			}
			return out, apperrors.NewUpstreamUnavailable("append media", err)
		}
		out.Ticket = updated
		out.Saved = len(res.Manifest)
	}

	logger.Info("media saved", zap.Int("saved", out.Saved), zap.Int("failed", out.Failed))
	if ingestErr != nil {
		return out, ingestErr
	}
	return out, nil
}

// SaveChannelMedia saves every attachment found in the channel's recent
// history. Only the owner or an administrator may trigger it.
func (s *LifecycleService) SaveChannelMedia(ctx context.Context, channelRef string, actor auth.Actor) (SaveResult, error) {
	ticket, err := s.ticketByChannel(ctx, channelRef)
	if err != nil {
		return SaveResult{}, err
	}
	if !auth.CanModify(actor, ticket.OwnerID) {
		return SaveResult{}, apperrors.NewForbidden("only the ticket owner or an administrator can save images")
	}

	msgs, err := s.chat.FetchRecentMessages(ctx, channelRef, s.settings.HistoryLimit)
	if err != nil {
		if errors.Is(err, chat.ErrChannelNotFound) {
			return SaveResult{}, apperrors.NewNotFound("channel", map[string]any{"channel_ref": channelRef})
		}
		return SaveResult{}, apperrors.NewUpstreamUnavailable("read channel history", err)
	}

	res, err := s.SaveMedia(ctx, channelRef, AttachmentSources(msgs))
	if err != nil {
		return res, err
	}
	if res.Saved > 0 {
		s.publish(ctx, events.Event{
			Type:     events.EventMediaSaved,
			TicketID: res.Ticket.ID,
			Actor:    events.Actor{ID: actor.ID, Admin: actor.Admin},
			Payload: events.MediaSavedPayload{
				Identifier:  res.Ticket.Identifier,
				Description: res.Ticket.Description,
				OwnerID:     res.Ticket.OwnerID,
				CreatedAt:   res.Ticket.CreatedAt,
				Saved:       res.Saved,
				Failed:      res.Failed,
			},
		})
	}
	return res, nil
}

// AttachmentSources lists the attachments of msgs, oldest message first.
// msgs is in the provider's newest-first order.
func AttachmentSources(msgs []chat.InboundMessage) []media.Source {
	var sources []media.Source
	for i := len(msgs) - 1; i >= 0; i-- {
		for _, att := range msgs[i].Attachments {
			sources = append(sources, media.Source{URL: att.URL, Filename: att.Filename})
		}
	}
	return sources
}

// ArchiveChannel deletes the chat channel. The ticket record is kept.
// A channel that is already gone counts as archived.
func (s *LifecycleService) ArchiveChannel(ctx context.Context, channelRef string) error {
	err := s.chat.DeleteChannel(ctx, channelRef)
	switch {
	case err == nil:
		s.metrics.ChannelArchived(true)
		s.logger.Info("channel archived", zap.String("channel_id", channelRef))
		return nil
	case errors.Is(err, chat.ErrChannelNotFound):
		s.logger.Debug("channel already gone", zap.String("channel_id", channelRef))
		return nil
	default:
		s.metrics.ChannelArchived(false)
		return apperrors.NewUpstreamUnavailable("delete channel", err)
	}
}

// Reopen restores the channel of the ticket currently bound to channelRef.
func (s *LifecycleService) Reopen(ctx context.Context, channelRef string) (ReopenResult, error) {
	ticket, err := s.ticketByChannel(ctx, channelRef)
	if err != nil {
		return ReopenResult{}, err
	}
	return s.ReopenTicket(ctx, ticket.ID)
}

// ReopenTicket returns the ticket's channel, recreating it in the seller
// category when it no longer exists.
func (s *LifecycleService) ReopenTicket(ctx context.Context, ticketID string) (ReopenResult, error) {
	unlock := s.reopens.Lock(ticketID)
	defer unlock()

	ticket, err := s.ticketByID(ctx, ticketID)
	if err != nil {
		return ReopenResult{}, err
	}
	if _, err := s.chat.FetchChannel(ctx, ticket.ChannelRef); err == nil {
		return ReopenResult{Ticket: ticket, ChannelRef: ticket.ChannelRef}, nil
	} else if !errors.Is(err, chat.ErrChannelNotFound) {
		return ReopenResult{}, apperrors.NewUpstreamUnavailable("fetch channel", err)
	}

	logger := s.logger.With(zap.String("ticket_id", ticket.ID), zap.String("identifier", ticket.Identifier))
	oldRef := ticket.ChannelRef
	newRef, err := s.chat.CreatePrivateChannel(ctx,
		ChannelName(domain.TicketKindSeller, ticket.Identifier), s.settings.SellerCategoryID, ticket.OwnerID)
	if err != nil {
		return ReopenResult{}, apperrors.NewUpstreamUnavailable("recreate seller channel", err)
	}

	updated, err := s.tickets.UpdateOne(ctx,
		repository.TicketFilter{ID: ticket.ID},
		repository.TicketDelta{ChannelRef: &newRef})
	if err != nil {
		s.dropChannel(ctx, newRef, logger)
		if apperrors.IsNotFound(err) {
			return ReopenResult{}, err
		}
		return ReopenResult{}, apperrors.NewUpstreamUnavailable("rebind channel", err)
	}
	logger = logger.With(zap.String("channel_id", newRef))

	if err := s.present(ctx, newRef, RestoredTicketMessage(updated), updated.Media); err != nil {
		logger.Warn("restored summary not delivered", zap.Error(err))
	}
	s.scheduleArchival(ctx, newRef)
	s.publish(ctx, events.Event{
		Type:     events.EventChannelReopened,
		TicketID: updated.ID,
		Payload:  events.ChannelReopenedPayload{OldChannelRef: oldRef, NewChannelRef: newRef},
	})
	logger.Info("ticket channel recreated", zap.String("old_channel_id", oldRef))
	return ReopenResult{Ticket: updated, ChannelRef: newRef, Recreated: true}, nil
}

// CheckIdentifier posts every ticket recorded under identifier into the
// audit channel.
func (s *LifecycleService) CheckIdentifier(ctx context.Context, identifier string) ([]domain.Ticket, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, apperrors.NewValidationError("identifier is required", nil)
	}
	if s.settings.AuditChannelID == "" {
		return nil, apperrors.NewConfigurationMissing("ADMIN_CHECK_CHANNEL_ID")
	}

	matches, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	for i := range matches {
		if err := s.present(ctx, s.settings.AuditChannelID, AuditOrderMessage(&matches[i]), matches[i].Media); err != nil {
			s.logger.Warn("audit entry not delivered", zap.String("ticket_id", matches[i].ID), zap.Error(err))
		}
	}
	if len(matches) > 1 && s.notifier != nil {
		s.notifier.Notify(ctx, identifier, matches)
	}
	return matches, nil
}

func (s *LifecycleService) findByIdentifier(ctx context.Context, identifier string) ([]domain.Ticket, error) {
	matches, err := s.tickets.Find(ctx, repository.TicketFilter{Identifier: identifier})
	if err != nil {
		return nil, apperrors.NewUpstreamUnavailable("find tickets", err)
	}
	if len(matches) == 0 {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"identifier": identifier})
	}
	return matches, nil
}

func (s *LifecycleService) ticketByChannel(ctx context.Context, channelRef string) (*domain.Ticket, error) {
	return s.findOne(ctx, repository.TicketFilter{ChannelRef: channelRef})
}

func (s *LifecycleService) ticketByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return s.findOne(ctx, repository.TicketFilter{ID: id})
}

func (s *LifecycleService) findOne(ctx context.Context, filter repository.TicketFilter) (*domain.Ticket, error) {
	if filter.IsEmpty() {
		return nil, apperrors.NewValidationError("ticket reference is required", nil)
	}
	matches, err := s.tickets.Find(ctx, filter)
	if err != nil {
		return nil, apperrors.NewUpstreamUnavailable("find ticket", err)
	}
	if len(matches) == 0 {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": filter.ID, "channel_ref": filter.ChannelRef})
	}
	return &matches[0], nil
}

// present sends msg followed by one message per media link, paced by the
// republish spacing. A failed link is logged and skipped.
func (s *LifecycleService) present(ctx context.Context, channelRef string, msg chat.Message, entries []domain.MediaEntry) error {
	if err := s.chat.SendMessage(ctx, channelRef, msg); err != nil {
		return err
	}
	for i, entry := range entries {
		if i > 0 && s.settings.RepublishSpacing > 0 {
			if err := s.sleep(ctx, s.settings.RepublishSpacing); err != nil {
				return err
			}
		}
		if err := s.chat.SendMessage(ctx, channelRef, chat.Message{Content: entry.RemoteURL}); err != nil {
			s.logger.Warn("media link not delivered",
				zap.String("channel_id", channelRef),
				zap.String("remote_id", entry.RemoteID),
				zap.Error(err))
		}
	}
	return nil
}

func (s *LifecycleService) scheduleArchival(ctx context.Context, channelRef string) {
	if s.archival == nil {
		return
	}
	at := s.now().Add(s.settings.ArchiveAfter)
	if err := s.archival.Schedule(ctx, channelRef, at); err != nil {
		s.logger.Error("archival not scheduled", zap.String("channel_id", channelRef), zap.Error(err))
	}
}

func (s *LifecycleService) dropChannel(ctx context.Context, channelRef string, logger *zap.Logger) {
	if err := s.chat.DeleteChannel(ctx, channelRef); err != nil && !errors.Is(err, chat.ErrChannelNotFound) {
		logger.Error("orphaned channel left behind", zap.String("channel_id", channelRef), zap.Error(err))
	}
}

// discardUploads removes objects whose manifest could not be recorded.
func (s *LifecycleService) discardUploads(ctx context.Context, manifest []domain.MediaEntry, logger *zap.Logger) {
	if s.storage == nil {
		return
	}
	for _, entry := range manifest {
		if err := s.storage.Delete(ctx, entry.RemoteID); err != nil {
			logger.Error("orphaned upload left behind", zap.String("remote_id", entry.RemoteID), zap.Error(err))
		}
	}
}

func (s *LifecycleService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
