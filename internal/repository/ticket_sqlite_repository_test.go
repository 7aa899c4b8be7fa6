package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daole6868/BOT-BAO-DON-HANG/internal/domain"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/persistence"
	apperrors "github.com/daole6868/BOT-BAO-DON-HANG/pkg/util"
)

func newTestRepo(t *testing.T) TicketRepository {
	t.Helper()
	db, err := persistence.NewSQLite(filepath.Join(t.TempDir(), "tickets.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return NewSQLiteTicketRepository(db.DB)
}

func seed(t *testing.T, repo TicketRepository, identifier, channel string, createdAt time.Time) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		Identifier: identifier,
		OwnerID:    "owner-" + channel,
		ChannelRef: channel,
		CreatedAt:  createdAt,
	}
	require.NoError(t, repo.Create(context.Background(), ticket))
	return ticket
}

func TestCreateAssignsIDAndEmptyMedia(t *testing.T) {
	repo := newTestRepo(t)
	ticket := &domain.Ticket{Identifier: "UID1", Description: "two boxes", OwnerID: "u1", ChannelRef: "c1"}

	require.NoError(t, repo.Create(context.Background(), ticket))
	assert.NotEmpty(t, ticket.ID)
	assert.False(t, ticket.CreatedAt.IsZero())

	got, err := repo.Find(context.Background(), TicketFilter{ID: ticket.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "UID1", got[0].Identifier)
	assert.Equal(t, "two boxes", got[0].Description)
	assert.Equal(t, ticket.CreatedAt, got[0].CreatedAt)
	assert.Empty(t, got[0].Media)
	assert.NotNil(t, got[0].Media)
}

func TestFindFiltersAndOrdersByCreation(t *testing.T) {
	repo := newTestRepo(t)
	base := time.Now().Add(-time.Hour)
	later := seed(t, repo, "DUP", "c2", base.Add(2*time.Minute))
	earlier := seed(t, repo, "DUP", "c1", base)
	seed(t, repo, "OTHER", "c3", base.Add(time.Minute))

	got, err := repo.Find(context.Background(), TicketFilter{Identifier: "DUP"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, earlier.ID, got[0].ID)
	assert.Equal(t, later.ID, got[1].ID)

	got, err = repo.Find(context.Background(), TicketFilter{ChannelRef: "c3"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "OTHER", got[0].Identifier)

	all, err := repo.Find(context.Background(), TicketFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFindCreatedBeforeIsStrict(t *testing.T) {
	repo := newTestRepo(t)
	cutoff := time.Now().Add(-15 * 24 * time.Hour).Truncate(time.Millisecond)
	old := seed(t, repo, "A", "c1", cutoff.Add(-time.Millisecond))
	seed(t, repo, "B", "c2", cutoff)

	got, err := repo.Find(context.Background(), TicketFilter{CreatedBefore: &cutoff})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, old.ID, got[0].ID)
}

func TestUpdateOneAppendsMediaInOrder(t *testing.T) {
	repo := newTestRepo(t)
	ticket := seed(t, repo, "UID", "chan", time.Now())
	ctx := context.Background()

	first := []domain.MediaEntry{{RemoteURL: "https://cdn/1", RemoteID: "r1"}, {RemoteURL: "https://cdn/2", RemoteID: "r2"}}
	updated, err := repo.UpdateOne(ctx, TicketFilter{ChannelRef: "chan"}, TicketDelta{AppendMedia: first})
	require.NoError(t, err)
	assert.Equal(t, first, updated.Media)

	second := []domain.MediaEntry{{RemoteURL: "https://cdn/3", RemoteID: "r3"}}
	updated, err = repo.UpdateOne(ctx, TicketFilter{ID: ticket.ID}, TicketDelta{AppendMedia: second})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3"}, updated.RemoteIDs())
	assert.Equal(t, ticket.Identifier, updated.Identifier)
	assert.Equal(t, ticket.OwnerID, updated.OwnerID)
	assert.Equal(t, ticket.CreatedAt, updated.CreatedAt)
}

func TestUpdateOneRebindsChannel(t *testing.T) {
	repo := newTestRepo(t)
	ticket := seed(t, repo, "UID", "old", time.Now())

	next := "new"
	updated, err := repo.UpdateOne(context.Background(), TicketFilter{ID: ticket.ID}, TicketDelta{ChannelRef: &next})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.ChannelRef)

	got, err := repo.Find(context.Background(), TicketFilter{ChannelRef: "old"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpdateOneNotFoundAndEmptyFilter(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.UpdateOne(context.Background(), TicketFilter{ChannelRef: "missing"}, TicketDelta{})
	assert.True(t, apperrors.IsNotFound(err))

	_, err = repo.UpdateOne(context.Background(), TicketFilter{}, TicketDelta{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
}

func TestUpdateOneConcurrentAppendsAreKept(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo, "UID", "chan", time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.UpdateOne(context.Background(), TicketFilter{ChannelRef: "chan"},
				TicketDelta{AppendMedia: []domain.MediaEntry{{RemoteURL: "u", RemoteID: "r"}}})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.Find(context.Background(), TicketFilter{ChannelRef: "chan"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Media, 8)
}

func TestDeleteOne(t *testing.T) {
	repo := newTestRepo(t)
	ticket := seed(t, repo, "UID", "chan", time.Now())

	require.NoError(t, repo.DeleteOne(context.Background(), ticket))
	got, err := repo.Find(context.Background(), TicketFilter{ID: ticket.ID})
	require.NoError(t, err)
	assert.Empty(t, got)

	err = repo.DeleteOne(context.Background(), ticket)
	assert.True(t, apperrors.IsNotFound(err))
}
