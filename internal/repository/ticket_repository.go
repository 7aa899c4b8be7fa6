package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/daole6868/BOT-BAO-DON-HANG/internal/domain"
	apperrors "github.com/daole6868/BOT-BAO-DON-HANG/pkg/util"
)

// TicketFilter selects tickets by exact match. Zero-valued fields are ignored.
type TicketFilter struct {
	ID            string
	Identifier    string
	ChannelRef    string
	CreatedBefore *time.Time
}

// IsEmpty reports whether the filter would match every ticket.
func (f TicketFilter) IsEmpty() bool {
	return f.ID == "" && f.Identifier == "" && f.ChannelRef == "" && f.CreatedBefore == nil
}

func (f TicketFilter) details() map[string]any {
	d := map[string]any{}
	if f.ID != "" {
		d["id"] = f.ID
	}
	if f.Identifier != "" {
		d["identifier"] = f.Identifier
	}
	if f.ChannelRef != "" {
		d["channel_ref"] = f.ChannelRef
	}
	return d
}

// TicketDelta describes the mutable part of a ticket update.
type TicketDelta struct {
	AppendMedia []domain.MediaEntry
	ChannelRef  *string
}

// TicketRepository encapsulates ticket persistence. Each call is a single
// store operation; Find returns tickets ordered by creation time, oldest first.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Find(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	UpdateOne(ctx context.Context, filter TicketFilter, delta TicketDelta) (*domain.Ticket, error)
	DeleteOne(ctx context.Context, ticket *domain.Ticket) error
}

const ticketColumns = `id, identifier, description, owner_id, channel_ref, media, created_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the Postgres repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

// prepareTicket fills the fields owned by Create.
func prepareTicket(ticket *domain.Ticket) {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}
	if ticket.Media == nil {
		ticket.Media = []domain.MediaEntry{}
	}
}

// whereClause renders filter as a SQL condition. placeholder maps the
// 1-based argument position to the dialect's bind syntax.
func whereClause(filter TicketFilter, offset int, placeholder func(int) string, timeArg func(time.Time) any) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}
	add := func(column, op string, val any) {
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf("%s %s %s", column, op, placeholder(offset+len(args))))
	}
	if filter.ID != "" {
		add("id", "=", filter.ID)
	}
	if filter.Identifier != "" {
		add("identifier", "=", filter.Identifier)
	}
	if filter.ChannelRef != "" {
		add("channel_ref", "=", filter.ChannelRef)
	}
	if filter.CreatedBefore != nil {
		add("created_at", "<", timeArg(*filter.CreatedBefore))
	}
	return strings.Join(clauses, " AND "), args
}

func pgPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

func pgTime(t time.Time) any { return t.UTC() }

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	prepareTicket(ticket)
	media, err := json.Marshal(ticket.Media)
	if err != nil {
		return fmt.Errorf("encode media: %w", err)
	}
	const query = `
        INSERT INTO tickets (id, identifier, description, owner_id, channel_ref, media, created_at)
        VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7)`
	_, err = r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.Identifier,
		ticket.Description,
		ticket.OwnerID,
		ticket.ChannelRef,
		string(media),
		ticket.CreatedAt.UTC(),
	)
	return err
}

func (r *ticketRepository) Find(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	where, args := whereClause(filter, 0, pgPlaceholder, pgTime)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at ASC, id ASC`, ticketColumns, where)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// UpdateOne appends media server-side so concurrent appends are never lost.
func (r *ticketRepository) UpdateOne(ctx context.Context, filter TicketFilter, delta TicketDelta) (*domain.Ticket, error) {
	if filter.IsEmpty() {
		return nil, apperrors.NewValidationError("update requires a filter", nil)
	}
	appendMedia := delta.AppendMedia
	if appendMedia == nil {
		appendMedia = []domain.MediaEntry{}
	}
	media, err := json.Marshal(appendMedia)
	if err != nil {
		return nil, fmt.Errorf("encode media: %w", err)
	}

	where, args := whereClause(filter, 2, pgPlaceholder, pgTime)
	query := fmt.Sprintf(`
        UPDATE tickets SET media = media || $1::jsonb, channel_ref = COALESCE($2, channel_ref)
        WHERE id = (SELECT id FROM tickets WHERE %s ORDER BY created_at ASC, id ASC LIMIT 1)
        RETURNING %s`, where, ticketColumns)

	all := append([]any{string(media), delta.ChannelRef}, args...)
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, all...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("ticket", filter.details())
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) DeleteOne(ctx context.Context, ticket *domain.Ticket) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, ticket.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewNotFound("ticket", map[string]any{"id": ticket.ID})
	}
	return nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket domain.Ticket
		media  []byte
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Identifier,
		&ticket.Description,
		&ticket.OwnerID,
		&ticket.ChannelRef,
		&media,
		&ticket.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := decodeMedia(media, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func decodeMedia(raw []byte, ticket *domain.Ticket) error {
	ticket.Media = []domain.MediaEntry{}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &ticket.Media); err != nil {
		return fmt.Errorf("decode media for ticket %s: %w", ticket.ID, err)
	}
	return nil
}
