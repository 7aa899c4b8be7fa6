package dto

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/daole6868/BOT-BAO-DON-HANG/internal/domain"
	apperrors "github.com/daole6868/BOT-BAO-DON-HANG/pkg/util"
)

// SellerSubmission is the seller form: order UID and optional description.
type SellerSubmission struct {
	Identifier  string `json:"uid" validate:"required,max=90,excludesall=#@<>"`
	Description string `json:"desc" validate:"max=4000"`
	OwnerID     string `json:"owner_id" validate:"required,numeric"`
}

// BuyerLookup is the buyer form: the UID to look up.
type BuyerLookup struct {
	Identifier  string `json:"uid" validate:"required,max=90,excludesall=#@<>"`
	RequesterID string `json:"requester_id" validate:"required,numeric"`
}

// Normalize trims user-entered fields.
func (s *SellerSubmission) Normalize() {
	s.Identifier = strings.TrimSpace(s.Identifier)
	s.Description = strings.TrimSpace(s.Description)
}

// Normalize trims user-entered fields.
func (b *BuyerLookup) Normalize() {
	b.Identifier = strings.TrimSpace(b.Identifier)
}

var validate = validator.New()

// Validate checks v against its struct tags and reports failures as a
// validation DomainError keyed by field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = validationMessage(fe)
	}
	return apperrors.NewValidationError("invalid input", details)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "numeric":
		return "must be a numeric id"
	case "excludesall":
		return fmt.Sprintf("must not contain any of %q", fe.Param())
	default:
		return "is invalid"
	}
}

// MediaView is one stored attachment.
type MediaView struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

// TicketView is the operator-facing representation of a ticket.
type TicketView struct {
	ID          string      `json:"id"`
	Identifier  string      `json:"uid"`
	Description string      `json:"desc"`
	OwnerID     string      `json:"owner_id"`
	ChannelRef  string      `json:"channel_id"`
	Media       []MediaView `json:"images"`
	CreatedAt   time.Time   `json:"created_at"`
}

// NewTicketView converts a domain ticket.
func NewTicketView(t domain.Ticket) TicketView {
	media := make([]MediaView, 0, len(t.Media))
	for _, m := range t.Media {
		media = append(media, MediaView{URL: m.RemoteURL, PublicID: m.RemoteID})
	}
	return TicketView{
		ID:          t.ID,
		Identifier:  t.Identifier,
		Description: t.Description,
		OwnerID:     t.OwnerID,
		ChannelRef:  t.ChannelRef,
		Media:       media,
		CreatedAt:   t.CreatedAt,
	}
}
