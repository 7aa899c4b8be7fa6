package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/daole6868/BOT-BAO-DON-HANG/internal/chat"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/domain"
)

// Component custom ids shared with the interaction dispatcher.
const (
	ButtonOpenSeller    = "open_seller_ticket"
	ButtonOpenBuyer     = "open_buyer_ticket"
	ButtonSaveMedia     = "save_images"
	ButtonDeleteChannel = "delete_channel"
	ViewTicketPrefix    = "view_ticket_"

	ModalSeller = "seller_modal"
	ModalBuyer  = "buyer_modal"

	FieldUID  = "uid"
	FieldDesc = "desc"
)

// ViewTicketButtonID returns the custom id of the admin "view order" button.
func ViewTicketButtonID(ticketID string) string {
	return ViewTicketPrefix + ticketID
}

// TicketIDFromButton extracts the ticket id from a view button custom id.
func TicketIDFromButton(customID string) (string, bool) {
	if !strings.HasPrefix(customID, ViewTicketPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(customID, ViewTicketPrefix)
	return id, id != ""
}

// ChannelName builds a channel name such as "ticket-seller-uid42".
func ChannelName(kind domain.TicketKind, identifier string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(identifier) {
		switch {
		case r == ' ' || r == '_':
			b.WriteRune('-')
		case r == '#' || r == '@' || r == '<' || r == '>' || r == '/' || r == '\\':
		default:
			b.WriteRune(r)
		}
	}
	return "ticket-" + strings.ToLower(string(kind)) + "-" + b.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func mention(userID string) string { return "<@" + userID + ">" }

func discordTime(t time.Time) string { return fmt.Sprintf("<t:%d:f>", t.Unix()) }

var ticketButtons = []chat.Button{
	{ID: ButtonSaveMedia, Label: "Save images", Style: chat.ButtonSuccess},
	{ID: ButtonDeleteChannel, Label: "Quick delete", Style: chat.ButtonDanger},
}

var deleteOnlyButtons = []chat.Button{
	{ID: ButtonDeleteChannel, Label: "Quick delete", Style: chat.ButtonDanger},
}

// SellerTicketMessage is the first message of a fresh seller channel.
func SellerTicketMessage(t *domain.Ticket) chat.Message {
	return chat.Message{
		Embed: &chat.Embed{
			Title: "Order: " + t.Identifier,
			Description: fmt.Sprintf("**Created by:** %s\n**UID:** %s\n**Details:** %s\n**Created:** %s\n\nPost your images in this channel, then press **Save images**.",
				mention(t.OwnerID), t.Identifier, orDash(t.Description), discordTime(t.CreatedAt)),
			Color: chat.ColorGreen,
		},
		Buttons: ticketButtons,
	}
}

// RestoredTicketMessage heads a channel recreated by reopen.
func RestoredTicketMessage(t *domain.Ticket) chat.Message {
	return chat.Message{
		Embed: &chat.Embed{
			Title:       "Seller ticket (restored)",
			Description: ticketSummary(t),
			Color:       chat.ColorGreen,
		},
		Buttons: ticketButtons,
	}
}

// BuyerOrderMessage presents one match of a buyer lookup.
func BuyerOrderMessage(t *domain.Ticket) chat.Message {
	return chat.Message{
		Embed: &chat.Embed{
			Title: "Order UID: " + t.Identifier,
			Description: fmt.Sprintf("**Seller:** %s\n**Details:** %s\n**Created:** %s",
				mention(t.OwnerID), orDash(t.Description), discordTime(t.CreatedAt)),
			Color: chat.ColorBlue,
		},
	}
}

// BuyerClosingMessage ends a buyer lookup channel.
func BuyerClosingMessage() chat.Message {
	return chat.Message{Content: "Your buyer ticket channel is ready.", Buttons: deleteOnlyButtons}
}

// AuditOrderMessage presents one match of an audit check.
func AuditOrderMessage(t *domain.Ticket) chat.Message {
	return chat.Message{
		Embed: &chat.Embed{
			Title:       "Order details (ADMIN)",
			Description: ticketSummary(t),
			Color:       chat.ColorPurple,
		},
	}
}

// AdminCompletedMessage announces a saved order to administrators.
func AdminCompletedMessage(ticketID, identifier, description, ownerID string, createdAt time.Time) chat.Message {
	return chat.Message{
		Embed: &chat.Embed{
			Title: "New order completed",
			Description: fmt.Sprintf("**UID:** %s\n**Details:** %s\n**Created by:** %s\n**Created:** %s",
				identifier, orDash(description), mention(ownerID), discordTime(createdAt)),
			Color: chat.ColorDarkRed,
		},
		Buttons: []chat.Button{{ID: ViewTicketButtonID(ticketID), Label: "View order", Style: chat.ButtonPrimary}},
	}
}

// DuplicateSummaryMessage is posted to the audit channel on duplicate UIDs.
func DuplicateSummaryMessage(identifier string, count int) chat.Message {
	return chat.Message{
		Embed: &chat.Embed{
			Title:       "Multiple orders share a UID",
			Description: fmt.Sprintf("Found %d orders with UID: %s", count, identifier),
			Color:       chat.ColorOrange,
		},
	}
}

// DuplicateDirectMessage is sent to each owner of a duplicated UID.
func DuplicateDirectMessage(identifier string, count int) string {
	return fmt.Sprintf("There are %d orders with the same UID %s. Please check.", count, identifier)
}

// SellerAnnounceMessage is posted on startup in the seller announce channel.
func SellerAnnounceMessage() chat.Message {
	return chat.Message{
		Embed: &chat.Embed{
			Title: "SUBMIT YOUR ORDER HERE",
			Description: strings.Join([]string{
				"**How it works:**",
				"1. Press **Submit order** to open a private ticket.",
				"2. Fill in the **UID** and the **order details**, then press **Submit**.",
				"3. Post your images in the new channel and press **Save images**.",
				"",
				"Spam is not tolerated.",
			}, "\n"),
			Color:  chat.ColorGreen,
			Footer: "Seller area",
		},
		Buttons: []chat.Button{{ID: ButtonOpenSeller, Label: "Submit order", Style: chat.ButtonSuccess}},
	}
}

// BuyerAnnounceMessage is posted on startup in the buyer announce channel.
func BuyerAnnounceMessage() chat.Message {
	return chat.Message{
		Embed: &chat.Embed{
			Title: "LOOK UP YOUR ORDER HERE",
			Description: strings.Join([]string{
				"**How it works:**",
				"1. Press **Find UID** to open a lookup ticket.",
				"2. Enter your **UID** and the bot shows the matching orders and their images.",
			}, "\n"),
			Color:  chat.ColorBlue,
			Footer: "Order lookup",
		},
		Buttons: []chat.Button{{ID: ButtonOpenBuyer, Label: "Find UID", Style: chat.ButtonPrimary}},
	}
}

func ticketSummary(t *domain.Ticket) string {
	return fmt.Sprintf("**UID:** %s\n**Details:** %s\n**Created by:** %s\n**Created:** %s",
		t.Identifier, orDash(t.Description), mention(t.OwnerID), discordTime(t.CreatedAt))
}
