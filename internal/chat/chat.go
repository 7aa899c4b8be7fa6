// Package chat defines the chat-platform surface the ticket engine depends on.
package chat

import (
	"context"
	"errors"
)

// ErrChannelNotFound is returned when a referenced channel no longer exists.
var ErrChannelNotFound = errors.New("chat: channel not found")

// ButtonStyle selects the visual weight of a button.
type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota
	ButtonSuccess
	ButtonDanger
)

// Button is an action attached to an outbound message.
type Button struct {
	ID    string
	Label string
	Style ButtonStyle
}

// Embed is a titled card with a colored side bar.
type Embed struct {
	Title       string
	Description string
	Color       int
	ImageURL    string
	Footer      string
}

// Message is an outbound message. Any field may be empty.
type Message struct {
	Content string
	Embed   *Embed
	Buttons []Button
}

// Attachment is a file attached to an inbound message.
type Attachment struct {
	URL      string
	Filename string
}

// InboundMessage is a message read back from a channel's history.
type InboundMessage struct {
	ID          string
	AuthorID    string
	Attachments []Attachment
}

// ChannelProvider manages private ticket channels and direct messages.
type ChannelProvider interface {
	// CreatePrivateChannel creates a channel under parentCategory visible only
	// to allowedIdentity (and administrators).
	CreatePrivateChannel(ctx context.Context, name, parentCategory, allowedIdentity string) (string, error)
	// DeleteChannel returns ErrChannelNotFound when the channel is already gone.
	DeleteChannel(ctx context.Context, channelRef string) error
	// FetchChannel returns ErrChannelNotFound when the channel does not exist.
	FetchChannel(ctx context.Context, channelRef string) (string, error)
	SendMessage(ctx context.Context, channelRef string, msg Message) error
	// FetchRecentMessages returns up to limit messages, newest first.
	FetchRecentMessages(ctx context.Context, channelRef string, limit int) ([]InboundMessage, error)
	SendDirect(ctx context.Context, identity, content string) error
}

// Colors used by the bot's embeds.
const (
	ColorGreen   = 0x57F287
	ColorBlue    = 0x3498DB
	ColorDarkRed = 0x992D22
	ColorOrange  = 0xE67E22
	ColorPurple  = 0x9B59B6
)
