package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

const (
	maxChannelNameLen = 100
	maxHistoryLimit   = 100
)

// Discord implements ChannelProvider on a discordgo session bound to one guild.
type Discord struct {
	session *discordgo.Session
	guildID string
}

// NewDiscord wraps an opened session.
func NewDiscord(session *discordgo.Session, guildID string) *Discord {
	return &Discord{session: session, guildID: guildID}
}

func (d *Discord) CreatePrivateChannel(ctx context.Context, name, parentCategory, allowedIdentity string) (string, error) {
	name = truncateName(name)
	ch, err := d.session.GuildChannelCreateComplex(d.guildID, discordgo.GuildChannelCreateData{
		Name:     name,
		Type:     discordgo.ChannelTypeGuildText,
		ParentID: parentCategory,
		PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{
				// The @everyone role shares the guild's id.
				ID:   d.guildID,
				Type: discordgo.PermissionOverwriteTypeRole,
				Deny: discordgo.PermissionViewChannel,
			},
			{
				ID:   allowedIdentity,
				Type: discordgo.PermissionOverwriteTypeMember,
				Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages |
					discordgo.PermissionAttachFiles | discordgo.PermissionReadMessageHistory,
			},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord: create channel %q: %w", name, err)
	}
	return ch.ID, nil
}

func (d *Discord) DeleteChannel(ctx context.Context, channelRef string) error {
	if _, err := d.session.ChannelDelete(channelRef, discordgo.WithContext(ctx)); err != nil {
		if isUnknownChannel(err) {
			return ErrChannelNotFound
		}
		return fmt.Errorf("discord: delete channel %s: %w", channelRef, err)
	}
	return nil
}

func (d *Discord) FetchChannel(ctx context.Context, channelRef string) (string, error) {
	ch, err := d.session.Channel(channelRef, discordgo.WithContext(ctx))
	if err != nil {
		if isUnknownChannel(err) {
			return "", ErrChannelNotFound
		}
		return "", fmt.Errorf("discord: fetch channel %s: %w", channelRef, err)
	}
	return ch.ID, nil
}

func (d *Discord) SendMessage(ctx context.Context, channelRef string, msg Message) error {
	if _, err := d.session.ChannelMessageSendComplex(channelRef, toMessageSend(msg), discordgo.WithContext(ctx)); err != nil {
		if isUnknownChannel(err) {
			return ErrChannelNotFound
		}
		return fmt.Errorf("discord: send to %s: %w", channelRef, err)
	}
	return nil
}

func (d *Discord) FetchRecentMessages(ctx context.Context, channelRef string, limit int) ([]InboundMessage, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	msgs, err := d.session.ChannelMessages(channelRef, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		if isUnknownChannel(err) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("discord: read history of %s: %w", channelRef, err)
	}

	out := make([]InboundMessage, 0, len(msgs))
	for _, m := range msgs {
		in := InboundMessage{ID: m.ID}
		if m.Author != nil {
			in.AuthorID = m.Author.ID
		}
		for _, att := range m.Attachments {
			in.Attachments = append(in.Attachments, Attachment{URL: att.URL, Filename: att.Filename})
		}
		out = append(out, in)
	}
	return out, nil
}

func (d *Discord) SendDirect(ctx context.Context, identity, content string) error {
	dm, err := d.session.UserChannelCreate(identity, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: open dm with %s: %w", identity, err)
	}
	if _, err := d.session.ChannelMessageSend(dm.ID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: dm %s: %w", identity, err)
	}
	return nil
}

// truncateName cuts name to the channel name limit, counted in characters.
func truncateName(name string) string {
	if utf8.RuneCountInString(name) <= maxChannelNameLen {
		return name
	}
	return string([]rune(name)[:maxChannelNameLen])
}

// toMessageSend converts a Message into the discordgo payload.
func toMessageSend(msg Message) *discordgo.MessageSend {
	send := &discordgo.MessageSend{Content: msg.Content}
	if msg.Embed != nil {
		send.Embeds = []*discordgo.MessageEmbed{ToEmbed(msg.Embed)}
	}
	if row := ToActionsRow(msg.Buttons); row != nil {
		send.Components = []discordgo.MessageComponent{*row}
	}
	return send
}

// ToEmbed converts an Embed into a discordgo embed stamped with the current time.
func ToEmbed(e *Embed) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	if e.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
	}
	if e.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	return embed
}

// ToActionsRow renders buttons as a single row, or nil when there are none.
func ToActionsRow(buttons []Button) *discordgo.ActionsRow {
	if len(buttons) == 0 {
		return nil
	}
	row := &discordgo.ActionsRow{}
	for _, b := range buttons {
		row.Components = append(row.Components, discordgo.Button{
			Label:    b.Label,
			Style:    buttonStyle(b.Style),
			CustomID: b.ID,
		})
	}
	return row
}

func buttonStyle(s ButtonStyle) discordgo.ButtonStyle {
	switch s {
	case ButtonSuccess:
		return discordgo.SuccessButton
	case ButtonDanger:
		return discordgo.DangerButton
	default:
		return discordgo.PrimaryButton
	}
}

func isUnknownChannel(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownChannel {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}
