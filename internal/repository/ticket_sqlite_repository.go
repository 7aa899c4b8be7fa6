package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/daole6868/BOT-BAO-DON-HANG/internal/domain"
	apperrors "github.com/daole6868/BOT-BAO-DON-HANG/pkg/util"
)

// sqliteTicketRepository stores tickets in SQLite. created_at is kept as
// unix milliseconds and media as a JSON array.
type sqliteTicketRepository struct {
	db *sql.DB
}

// NewSQLiteTicketRepository instantiates the SQLite repository.
func NewSQLiteTicketRepository(db *sql.DB) TicketRepository {
	return &sqliteTicketRepository{db: db}
}

func sqlitePlaceholder(int) string { return "?" }

func sqliteTime(t time.Time) any { return t.UnixMilli() }

func (r *sqliteTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	prepareTicket(ticket)
	// Millisecond precision is what the column holds; keep the caller's
	// copy identical to what a later read returns.
	ticket.CreatedAt = time.UnixMilli(ticket.CreatedAt.UnixMilli()).UTC()
	media, err := json.Marshal(ticket.Media)
	if err != nil {
		return fmt.Errorf("encode media: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tickets (id, identifier, description, owner_id, channel_ref, media, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ticket.ID, ticket.Identifier, ticket.Description, ticket.OwnerID, ticket.ChannelRef,
		string(media), ticket.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("ticket store: create: %w", err)
	}
	return nil
}

func (r *sqliteTicketRepository) Find(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	where, args := whereClause(filter, 0, sqlitePlaceholder, sqliteTime)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at ASC, id ASC`, ticketColumns, where)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ticket store: find: %w", err)
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanSQLiteTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

// UpdateOne reads and rewrites the first matching row inside one transaction.
func (r *sqliteTicketRepository) UpdateOne(ctx context.Context, filter TicketFilter, delta TicketDelta) (*domain.Ticket, error) {
	if filter.IsEmpty() {
		return nil, apperrors.NewValidationError("update requires a filter", nil)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ticket store: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	where, args := whereClause(filter, 0, sqlitePlaceholder, sqliteTime)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at ASC, id ASC LIMIT 1`, ticketColumns, where)
	ticket, err := scanSQLiteTicket(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("ticket", filter.details())
	}
	if err != nil {
		return nil, err
	}

	ticket.Media = append(ticket.Media, delta.AppendMedia...)
	if delta.ChannelRef != nil {
		ticket.ChannelRef = *delta.ChannelRef
	}
	media, err := json.Marshal(ticket.Media)
	if err != nil {
		return nil, fmt.Errorf("encode media: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tickets SET media = ?, channel_ref = ? WHERE id = ?`,
		string(media), ticket.ChannelRef, ticket.ID); err != nil {
		return nil, fmt.Errorf("ticket store: update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ticket store: commit: %w", err)
	}
	return ticket, nil
}

func (r *sqliteTicketRepository) DeleteOne(ctx context.Context, ticket *domain.Ticket) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tickets WHERE id = ?`, ticket.ID)
	if err != nil {
		return fmt.Errorf("ticket store: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFound("ticket", map[string]any{"id": ticket.ID})
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		ticket    domain.Ticket
		media     string
		createdAt int64
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Identifier,
		&ticket.Description,
		&ticket.OwnerID,
		&ticket.ChannelRef,
		&media,
		&createdAt,
	); err != nil {
		return nil, err
	}
	ticket.CreatedAt = time.UnixMilli(createdAt).UTC()
	if err := decodeMedia([]byte(media), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}
