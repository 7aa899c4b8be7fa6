package bot

import (
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/daole6868/BOT-BAO-DON-HANG/internal/auth"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/service"
	apperrors "github.com/daole6868/BOT-BAO-DON-HANG/pkg/util"
)

// AuditCommand is a parsed "check <uid>" message.
type AuditCommand struct {
	Identifier string
}

// ParseAuditCommand recognises "check <uid>" and "/check <uid>". ok is false
// for any other message; an empty Identifier means the argument is missing.
func ParseAuditCommand(content string) (cmd AuditCommand, ok bool) {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return AuditCommand{}, false
	}
	switch strings.ToLower(fields[0]) {
	case "check", "/check":
	default:
		return AuditCommand{}, false
	}
	if len(fields) > 1 {
		cmd.Identifier = fields[1]
	}
	return cmd, true
}

func sellerModal() *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: service.ModalSeller,
			Title:    "Submit order",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{CustomID: service.FieldUID, Label: "UID", Style: discordgo.TextInputShort, Required: true, MaxLength: 90},
				}},
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{CustomID: service.FieldDesc, Label: "Order details", Style: discordgo.TextInputParagraph, Required: false, MaxLength: 4000},
				}},
			},
		},
	}
}

func buyerModal() *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: service.ModalBuyer,
			Title:    "Find UID",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{CustomID: service.FieldUID, Label: "UID to look up", Style: discordgo.TextInputShort, Required: true, MaxLength: 90},
				}},
			},
		},
	}
}

// modalValues flattens submitted text inputs into custom id -> value.
func modalValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	values := make(map[string]string)
	var walk func(components []discordgo.MessageComponent)
	walk = func(components []discordgo.MessageComponent) {
		for _, c := range components {
			switch v := c.(type) {
			case *discordgo.ActionsRow:
				walk(v.Components)
			case discordgo.ActionsRow:
				walk(v.Components)
			case *discordgo.TextInput:
				values[v.CustomID] = v.Value
			case discordgo.TextInput:
				values[v.CustomID] = v.Value
			}
		}
	}
	walk(data.Components)
	return values
}

// actorOf identifies the user behind an interaction. Guild administrators
// and members holding adminRole count as admins.
func actorOf(i *discordgo.Interaction, adminRole string) auth.Actor {
	if i.Member != nil {
		actor := auth.Actor{}
		if i.Member.User != nil {
			actor.ID = i.Member.User.ID
		}
		actor.Admin = i.Member.Permissions&discordgo.PermissionAdministrator != 0 ||
			auth.HasRole(i.Member.Roles, adminRole)
		return actor
	}
	if i.User != nil {
		return auth.Actor{ID: i.User.ID}
	}
	return auth.Actor{}
}

// userMessage renders an operation error for the person who triggered it.
func userMessage(err error) string {
	derr := apperrors.ToDomainError(err)
	switch derr.Code {
	case apperrors.CodeNotFound:
		return "❌ No matching order was found."
	case apperrors.CodeForbidden:
		return "⛔ " + derr.Message + "."
	case apperrors.CodeValidationFailed:
		return "⚠️ Please check your input: " + validationSummary(derr)
	case apperrors.CodeUpstreamUnavailable:
		return "❌ Discord or the image storage is unavailable right now. Please try again."
	case apperrors.CodeConfigurationMissing:
		return "❌ The bot is not fully configured for this action."
	default:
		return "❌ Something went wrong."
	}
}

func validationSummary(derr *apperrors.DomainError) string {
	if len(derr.Details) == 0 {
		return derr.Message
	}
	parts := make([]string, 0, len(derr.Details))
	for _, field := range []string{"Identifier", "Description", "OwnerID", "RequesterID"} {
		if msg, ok := derr.Details[field]; ok {
			parts = append(parts, field+" "+toString(msg))
		}
	}
	if len(parts) == 0 {
		return derr.Message
	}
	return strings.Join(parts, "; ")
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
