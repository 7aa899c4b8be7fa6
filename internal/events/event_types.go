package events

import (
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated     EventType = "ticket_created"
	EventMediaSaved        EventType = "media_saved"
	EventChannelReopened   EventType = "channel_reopened"
	EventTicketExpired     EventType = "ticket_expired"
	EventDuplicateDetected EventType = "duplicate_detected"
)

// Actor is the chat identity that caused the event. Empty for system jobs.
type Actor struct {
	ID    string `json:"id,omitempty"`
	Admin bool   `json:"admin,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Kind       string `json:"kind"`
	Identifier string `json:"identifier"`
	ChannelRef string `json:"channel_ref"`
}

// MediaSavedPayload payload.
type MediaSavedPayload struct {
	Identifier  string    `json:"identifier"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	Saved       int       `json:"saved"`
	Failed      int       `json:"failed"`
}

// ChannelReopenedPayload payload.
type ChannelReopenedPayload struct {
	OldChannelRef string `json:"old_channel_ref"`
	NewChannelRef string `json:"new_channel_ref"`
}

// TicketExpiredPayload payload.
type TicketExpiredPayload struct {
	Identifier    string `json:"identifier"`
	MediaDeleted  int    `json:"media_deleted"`
	MediaFailures int    `json:"media_failures"`
}

// DuplicateDetectedPayload payload.
type DuplicateDetectedPayload struct {
	Identifier string   `json:"identifier"`
	TicketIDs  []string `json:"ticket_ids"`
}
