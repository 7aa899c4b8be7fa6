package domain

import "time"

// TicketKind distinguishes the channel a ticket session was opened from.
type TicketKind string

const (
	TicketKindSeller TicketKind = "SELLER"
	TicketKindBuyer  TicketKind = "BUYER"
)

// MediaEntry references one remote object uploaded for a ticket.
type MediaEntry struct {
	RemoteURL string `json:"url"`
	RemoteID  string `json:"public_id"`
}

// Ticket is the aggregate for a seller order submission.
//
// Identifier, OwnerID and CreatedAt are written once by Create. Media only
// grows, and ChannelRef only changes when a deleted channel is recreated.
type Ticket struct {
	ID          string
	Identifier  string
	Description string
	OwnerID     string
	ChannelRef  string
	Media       []MediaEntry
	CreatedAt   time.Time
}

// RemoteIDs returns the remote ids of every stored media entry in order.
func (t *Ticket) RemoteIDs() []string {
	ids := make([]string, 0, len(t.Media))
	for _, m := range t.Media {
		if m.RemoteID != "" {
			ids = append(ids, m.RemoteID)
		}
	}
	return ids
}
