// Package bot routes Discord interactions and audit commands to the ticket
// lifecycle.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/daole6868/BOT-BAO-DON-HANG/internal/api/dto"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/auth"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/chat"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/domain"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/observability"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/service"
	apperrors "github.com/daole6868/BOT-BAO-DON-HANG/pkg/util"
)

// Lifecycle is the part of the ticket engine driven by chat events.
type Lifecycle interface {
	CreateSellerTicket(ctx context.Context, sub dto.SellerSubmission) (*domain.Ticket, string, error)
	CreateBuyerLookup(ctx context.Context, identifier, requesterID string) ([]domain.Ticket, string, error)
	SaveChannelMedia(ctx context.Context, channelRef string, actor auth.Actor) (service.SaveResult, error)
	ArchiveChannel(ctx context.Context, channelRef string) error
	ReopenTicket(ctx context.Context, ticketID string) (service.ReopenResult, error)
	CheckIdentifier(ctx context.Context, identifier string) ([]domain.Ticket, error)
}

// responder is the subset of *discordgo.Session used to answer users.
type responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Config carries the channel layout the dispatcher needs.
type Config struct {
	AuditChannelID          string
	AdminRoleID             string
	SellerAnnounceChannelID string
	BuyerAnnounceChannelID  string
	QuickDeleteDelay        time.Duration
	HandlerTimeout          time.Duration
}

// Bot dispatches gateway events.
type Bot struct {
	respond   responder
	provider  chat.ChannelProvider
	lifecycle Lifecycle
	cfg       Config
	logger    *zap.Logger
	metrics   *observability.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	// mu guards closed and every wg.Add so Close never races a new handler.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	announce sync.Once
	after    func(d time.Duration, fn func())
}

// New builds a dispatcher. respond is normally the discordgo session.
func New(respond responder, provider chat.ChannelProvider, lifecycle Lifecycle, cfg Config, logger *zap.Logger, metrics *observability.Metrics) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QuickDeleteDelay <= 0 {
		cfg.QuickDeleteDelay = time.Second
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		respond:   respond,
		provider:  provider,
		lifecycle: lifecycle,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		ctx:       ctx,
		cancel:    cancel,
	}
	b.after = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	return b
}

// Register attaches the gateway handlers to session.
func (b *Bot) Register(session *discordgo.Session) {
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent
	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		b.logger.Info("logged in", zap.String("user", r.User.Username))
		b.Announce(b.ctx)
	})
	session.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		b.HandleInteraction(i)
	})
	session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		b.HandleMessage(m)
	})
}

// Announce posts the seller and buyer entry points once per process.
// Channels that are not configured are skipped.
func (b *Bot) Announce(ctx context.Context) {
	b.announce.Do(func() {
		if b.cfg.SellerAnnounceChannelID != "" {
			if err := b.provider.SendMessage(ctx, b.cfg.SellerAnnounceChannelID, service.SellerAnnounceMessage()); err != nil {
				b.logger.Warn("seller announce failed", zap.Error(err))
			}
		}
		if b.cfg.BuyerAnnounceChannelID != "" {
			if err := b.provider.SendMessage(ctx, b.cfg.BuyerAnnounceChannelID, service.BuyerAnnounceMessage()); err != nil {
				b.logger.Warn("buyer announce failed", zap.Error(err))
			}
		}
	})
}

// Close stops accepting work and waits for pending handlers.
func (b *Bot) Close() {
	b.mu.Lock()
	b.closed = true
	b.cancel()
	b.mu.Unlock()
	b.wg.Wait()
}

// begin registers one unit of in-flight work. It reports false once Close
// has been called.
func (b *Bot) begin() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.wg.Add(1)
	return true
}

// HandleInteraction routes a component press or modal submission.
func (b *Bot) HandleInteraction(i *discordgo.InteractionCreate) {
	if !b.begin() {
		return
	}
	defer b.wg.Done()

	var kind string
	var err error
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("interaction panic", zap.String("interaction", kind), zap.Any("panic", r))
			err = fmt.Errorf("panic: %v", r)
		}
		b.metrics.InteractionHandled(kind, err == nil)
	}()

	switch i.Type {
	case discordgo.InteractionMessageComponent:
		kind = i.MessageComponentData().CustomID
		err = b.handleComponent(i.Interaction, kind)
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		kind = data.CustomID
		err = b.handleModal(i.Interaction, data)
	default:
		return
	}
	if err != nil {
		b.logger.Warn("interaction failed",
			zap.String("interaction", kind),
			zap.String("channel_id", i.ChannelID),
			zap.Error(err))
	}
}

func (b *Bot) handleComponent(i *discordgo.Interaction, customID string) error {
	switch customID {
	case service.ButtonOpenSeller:
		return b.respond.InteractionRespond(i, sellerModal())
	case service.ButtonOpenBuyer:
		return b.respond.InteractionRespond(i, buyerModal())
	case service.ButtonSaveMedia:
		return b.deferred(i, func(ctx context.Context) (string, error) {
			res, err := b.lifecycle.SaveChannelMedia(ctx, i.ChannelID, actorOf(i, b.cfg.AdminRoleID))
			if err != nil {
				return "", err
			}
			if res.Failed > 0 {
				return fmt.Sprintf("✅ Uploaded %d images, %d could not be saved. **You can leave now.**", res.Saved, res.Failed), nil
			}
			return fmt.Sprintf("✅ Uploaded %d images successfully. **You can leave now.**", res.Saved), nil
		})
	case service.ButtonDeleteChannel:
		return b.quickDelete(i)
	}

	if ticketID, ok := service.TicketIDFromButton(customID); ok {
		return b.deferred(i, func(ctx context.Context) (string, error) {
			res, err := b.lifecycle.ReopenTicket(ctx, ticketID)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("✅ Order opened: <#%s>", res.ChannelRef), nil
		})
	}
	return fmt.Errorf("unknown component %q", customID)
}

func (b *Bot) handleModal(i *discordgo.Interaction, data discordgo.ModalSubmitInteractionData) error {
	values := modalValues(data)
	actor := actorOf(i, b.cfg.AdminRoleID)

	switch data.CustomID {
	case service.ModalSeller:
		return b.deferred(i, func(ctx context.Context) (string, error) {
			_, ref, err := b.lifecycle.CreateSellerTicket(ctx, dto.SellerSubmission{
				Identifier:  values[service.FieldUID],
				Description: values[service.FieldDesc],
				OwnerID:     actor.ID,
			})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("✅ Your order ticket is ready, post your images here: <#%s>", ref), nil
		})
	case service.ModalBuyer:
		return b.deferred(i, func(ctx context.Context) (string, error) {
			_, ref, err := b.lifecycle.CreateBuyerLookup(ctx, values[service.FieldUID], actor.ID)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("✅ Your orders are ready, open them here: <#%s>", ref), nil
		})
	}
	return fmt.Errorf("unknown modal %q", data.CustomID)
}

// deferred acknowledges i ephemerally, runs fn, then edits the reply with
// either its result or a user-facing error.
func (b *Bot) deferred(i *discordgo.Interaction, fn func(ctx context.Context) (string, error)) error {
	if err := b.respond.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}); err != nil {
		return fmt.Errorf("acknowledge: %w", err)
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.HandlerTimeout)
	defer cancel()

	content, opErr := fn(ctx)
	if opErr != nil {
		content = userMessage(opErr)
	}
	if _, err := b.respond.InteractionResponseEdit(i, &discordgo.WebhookEdit{Content: &content}); err != nil {
		b.logger.Warn("reply edit failed", zap.Error(err))
	}
	return opErr
}

// quickDelete answers at once and deletes the channel shortly after so the
// reply stays visible.
func (b *Bot) quickDelete(i *discordgo.Interaction) error {
	if err := b.respond.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: "🗑️ This channel will be deleted.",
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}); err != nil {
		b.logger.Warn("quick delete reply failed", zap.Error(err))
	}

	channelRef := i.ChannelID
	if !b.begin() {
		// Shutting down; the archival queue still holds the channel.
		b.logger.Warn("quick delete skipped during shutdown", zap.String("channel_id", channelRef))
		return nil
	}
	b.after(b.cfg.QuickDeleteDelay, func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(b.ctx), 30*time.Second)
		defer cancel()
		if err := b.lifecycle.ArchiveChannel(ctx, channelRef); err != nil {
			b.logger.Error("quick delete failed", zap.String("channel_id", channelRef), zap.Error(err))
		}
	})
	return nil
}

// HandleMessage serves the audit command in the audit channel.
func (b *Bot) HandleMessage(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || b.cfg.AuditChannelID == "" || m.ChannelID != b.cfg.AuditChannelID {
		return
	}
	cmd, ok := ParseAuditCommand(m.Content)
	if !ok || !b.begin() {
		return
	}
	defer b.wg.Done()

	reply := func(content string) {
		if _, err := b.respond.ChannelMessageSendReply(m.ChannelID, content, m.Reference()); err != nil {
			b.logger.Warn("audit reply failed", zap.Error(err))
		}
	}
	if cmd.Identifier == "" {
		reply("⚠️ Please enter a UID: `check <uid>`")
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.HandlerTimeout)
	defer cancel()
	matches, err := b.lifecycle.CheckIdentifier(ctx, cmd.Identifier)
	b.metrics.InteractionHandled("check", err == nil || apperrors.IsNotFound(err))
	if err != nil {
		if apperrors.IsNotFound(err) {
			reply("❌ No orders found.")
			return
		}
		b.logger.Warn("audit check failed", zap.String("identifier", cmd.Identifier), zap.Error(err))
		reply(userMessage(err))
		return
	}
	b.logger.Info("audit check served", zap.String("identifier", cmd.Identifier), zap.Int("matches", len(matches)))
}
