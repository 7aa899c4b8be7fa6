package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daole6868/BOT-BAO-DON-HANG/internal/api/dto"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/auth"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/chat"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/domain"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/events"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/media"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/repository"
	apperrors "github.com/daole6868/BOT-BAO-DON-HANG/pkg/util"
)

func TestCreateSellerTicket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ticket, ref, err := h.svc.CreateSellerTicket(ctx, dto.SellerSubmission{
		Identifier: " UID 42 ", Description: "two boxes", OwnerID: "1001",
	})
	require.NoError(t, err)

	assert.Equal(t, "UID 42", ticket.Identifier)
	assert.Equal(t, ref, ticket.ChannelRef)
	assert.Empty(t, ticket.Media)
	assert.Equal(t, testNow, ticket.CreatedAt)
	assert.Equal(t, createdChannel{Name: "ticket-seller-uid-42", Parent: "cat-seller", Allowed: "1001"}, h.chat.channels[ref])

	sent := h.chat.sent(ref)
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Buttons, 2)
	assert.Equal(t, ButtonSaveMedia, sent[0].Buttons[0].ID)
	assert.Equal(t, ButtonDeleteChannel, sent[0].Buttons[1].ID)

	due, err := h.archival.Due(ctx, testNow.Add(defaultArchiveAfter-time.Second))
	require.NoError(t, err)
	assert.Empty(t, due)
	due, err = h.archival.Due(ctx, testNow.Add(defaultArchiveAfter))
	require.NoError(t, err)
	assert.Equal(t, []string{ref}, due)

	stored, err := h.repo.Find(ctx, repository.TicketFilter{ChannelRef: ref})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, ticket.ID, stored[0].ID)
	assert.Len(t, h.dispatcher.ofType(events.EventTicketCreated), 1)
}

func TestCreateSellerTicketRejectsInvalidInput(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.svc.CreateSellerTicket(context.Background(), dto.SellerSubmission{Identifier: "   ", OwnerID: "1"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
	assert.Empty(t, h.chat.channels)
}

func TestCreateSellerTicketChannelFailurePersistsNothing(t *testing.T) {
	h := newHarness(t)
	h.chat.failCreate = errors.New("discord down")

	_, _, err := h.svc.CreateSellerTicket(context.Background(), dto.SellerSubmission{Identifier: "UID", OwnerID: "1"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUpstreamUnavailable))

	all, err := h.repo.Find(context.Background(), repository.TicketFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateSellerTicketDeletesChannelWhenStoreFails(t *testing.T) {
	h := newHarness(t)
	h.repo.createErr = errors.New("store down")

	_, _, err := h.svc.CreateSellerTicket(context.Background(), dto.SellerSubmission{Identifier: "UID", OwnerID: "1"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUpstreamUnavailable))
	assert.Empty(t, h.chat.channels)
	assert.Equal(t, []string{"chan-1"}, h.chat.deleted)
}

func TestSaveMediaAppendsInSourceOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.seedTicket(t, "UID1", "1001", testNow.Add(-time.Hour))

	res, err := h.svc.SaveMedia(ctx, ticket.ChannelRef, []media.Source{
		{URL: "https://ok/a.png", Filename: "a.png"},
		{URL: "https://ok/b.png", Filename: "b.png"},
		{URL: "https://ok/c.png", Filename: "c.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Saved)
	assert.Equal(t, 0, res.Failed)

	stored, err := h.repo.Find(ctx, repository.TicketFilter{ID: ticket.ID})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Len(t, stored[0].Media, 3)
	for i, prefix := range []string{"tickets/UID1/a-", "tickets/UID1/b-", "tickets/UID1/c-"} {
		assert.True(t, strings.HasPrefix(stored[0].Media[i].RemoteID, prefix), stored[0].Media[i].RemoteID)
	}
	assert.Equal(t, ticket.Identifier, stored[0].Identifier)
	assert.Equal(t, ticket.OwnerID, stored[0].OwnerID)
	assert.Equal(t, ticket.CreatedAt, stored[0].CreatedAt)

	res, err = h.svc.SaveMedia(ctx, ticket.ChannelRef, sources("https://ok/d.png"))
	require.NoError(t, err)
	assert.Len(t, res.Ticket.Media, 4, "saves are re-entrant and append")
}

func TestSaveMediaWithNoSourcesIsNoop(t *testing.T) {
	h := newHarness(t)
	ticket := h.seedTicket(t, "UID1", "1001", testNow)

	res, err := h.svc.SaveMedia(context.Background(), ticket.ChannelRef, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Saved)
	assert.Empty(t, h.storage.uploads)
}

func TestSaveMediaCountsUnfetchableSources(t *testing.T) {
	h := newHarness(t)
	ticket := h.seedTicket(t, "UID1", "1001", testNow)

	res, err := h.svc.SaveMedia(context.Background(), ticket.ChannelRef,
		sources("https://ok/1.png", "https://gone/2.png", "https://ok/3.png", "https://gone/4.png"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Saved)
	assert.Equal(t, 2, res.Failed)
	assert.Len(t, res.Ticket.Media, 2)
}

func TestSaveMediaUnknownChannel(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.SaveMedia(context.Background(), "nope", sources("https://ok/1.png"))
	assert.True(t, apperrors.IsNotFound(err))
	assert.Empty(t, h.storage.uploads)
}

func TestSaveMediaCleansUpWhenTicketVanishes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.seedTicket(t, "UID1", "1001", testNow)
	h.repo.beforeUpdate = func() {
		require.NoError(t, h.repo.TicketRepository.DeleteOne(ctx, ticket))
	}

	_, err := h.svc.SaveMedia(ctx, ticket.ChannelRef, sources("https://ok/1.png", "https://ok/2.png"))
	assert.True(t, apperrors.IsNotFound(err))
	assert.Len(t, h.storage.uploads, 2)
	assert.Equal(t, h.storage.uploads, h.storage.deletes)
}

func TestSaveChannelMedia(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.seedTicket(t, "UID1", "1001", testNow)
	h.chat.history[ticket.ChannelRef] = []chat.InboundMessage{
		{ID: "m3", AuthorID: "1001", Attachments: []chat.Attachment{{URL: "https://ok/newest.png", Filename: "newest.png"}}},
		{ID: "m2", AuthorID: "bot"},
		{ID: "m1", AuthorID: "1001", Attachments: []chat.Attachment{
			{URL: "https://ok/first.png", Filename: "first.png"},
			{URL: "https://ok/second.png", Filename: "second.png"},
		}},
	}

	_, err := h.svc.SaveChannelMedia(ctx, ticket.ChannelRef, auth.Actor{ID: "2002"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	assert.Empty(t, h.storage.uploads)

	res, err := h.svc.SaveChannelMedia(ctx, ticket.ChannelRef, auth.Actor{ID: "1001"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Saved)
	require.Len(t, h.storage.uploads, 3)
	assert.Contains(t, h.storage.uploads[0], "/first-")
	assert.Contains(t, h.storage.uploads[1], "/second-")
	assert.Contains(t, h.storage.uploads[2], "/newest-")

	saved := h.dispatcher.ofType(events.EventMediaSaved)
	require.Len(t, saved, 1)
	assert.Equal(t, ticket.ID, saved[0].TicketID)
	payload := saved[0].Payload.(events.MediaSavedPayload)
	assert.Equal(t, 3, payload.Saved)

	_, err = h.svc.SaveChannelMedia(ctx, ticket.ChannelRef, auth.Actor{ID: "9", Admin: true})
	require.NoError(t, err, "administrators may save any ticket")
}

func TestBuyerLookupSingleMatchSkipsNotifier(t *testing.T) {
	h := newHarness(t)
	seeded := h.seedTicket(t, "UID1", "1001", testNow, domain.MediaEntry{RemoteURL: "https://cdn/1", RemoteID: "r1"})

	matches, ref, err := h.svc.CreateBuyerLookup(context.Background(), "UID1", "3003")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, seeded.ID, matches[0].ID)
	assert.Empty(t, h.notifier.calls)

	assert.Equal(t, createdChannel{Name: "ticket-buyer-uid1", Parent: "cat-buyer", Allowed: "3003"}, h.chat.channels[ref])
	sent := h.chat.sent(ref)
	require.Len(t, sent, 3)
	assert.NotNil(t, sent[0].Embed)
	assert.Equal(t, "https://cdn/1", sent[1].Content)
	assert.Equal(t, ButtonDeleteChannel, sent[2].Buttons[0].ID)
}

func TestBuyerLookupDuplicatesNotifyOnce(t *testing.T) {
	h := newHarness(t)
	second := h.seedTicket(t, "DUP", "1002", testNow.Add(-time.Hour))
	first := h.seedTicket(t, "DUP", "1001", testNow.Add(-2*time.Hour))
	h.seedTicket(t, "OTHER", "1003", testNow)

	matches, _, err := h.svc.CreateBuyerLookup(context.Background(), "DUP", "3003")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, first.ID, matches[0].ID, "oldest first")
	assert.Equal(t, second.ID, matches[1].ID)

	require.Len(t, h.notifier.calls, 1)
	assert.Len(t, h.notifier.calls[0], 2)
}

func TestBuyerLookupWithoutMatches(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.svc.CreateBuyerLookup(context.Background(), "NONE", "3003")
	assert.True(t, apperrors.IsNotFound(err))
	assert.Empty(t, h.chat.channels)
}

func TestReopenRecreatesDeletedChannel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	entries := []domain.MediaEntry{
		{RemoteURL: "https://cdn/1", RemoteID: "r1"},
		{RemoteURL: "https://cdn/2", RemoteID: "r2"},
	}
	ticket := h.seedTicket(t, "UID1", "1001", testNow.Add(-time.Hour), entries...)
	require.NoError(t, h.svc.ArchiveChannel(ctx, ticket.ChannelRef))

	res, err := h.svc.ReopenTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, res.Recreated)
	assert.NotEqual(t, ticket.ChannelRef, res.ChannelRef)
	assert.Equal(t, createdChannel{Name: "ticket-seller-uid1", Parent: "cat-seller", Allowed: "1001"}, h.chat.channels[res.ChannelRef])

	stored, err := h.repo.Find(ctx, repository.TicketFilter{ChannelRef: res.ChannelRef})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, ticket.ID, stored[0].ID)
	assert.Equal(t, ticket.CreatedAt, stored[0].CreatedAt)

	sent := h.chat.sent(res.ChannelRef)
	require.Len(t, sent, 3)
	assert.Equal(t, ButtonSaveMedia, sent[0].Buttons[0].ID)
	assert.Equal(t, "https://cdn/1", sent[1].Content)
	assert.Equal(t, "https://cdn/2", sent[2].Content)

	assert.Len(t, h.dispatcher.ofType(events.EventChannelReopened), 1)
	due, err := h.archival.Due(ctx, testNow.Add(defaultArchiveAfter))
	require.NoError(t, err)
	assert.Equal(t, []string{res.ChannelRef}, due)
}

func TestReopenKeepsLiveChannel(t *testing.T) {
	h := newHarness(t)
	ticket := h.seedTicket(t, "UID1", "1001", testNow)

	res, err := h.svc.Reopen(context.Background(), ticket.ChannelRef)
	require.NoError(t, err)
	assert.False(t, res.Recreated)
	assert.Equal(t, ticket.ChannelRef, res.ChannelRef)
	assert.Len(t, h.chat.channels, 1)
}

func TestReopenUnknownTicket(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.ReopenTicket(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestArchiveChannelTwiceIsSafe(t *testing.T) {
	h := newHarness(t)
	ticket := h.seedTicket(t, "UID1", "1001", testNow)

	require.NoError(t, h.svc.ArchiveChannel(context.Background(), ticket.ChannelRef))
	require.NoError(t, h.svc.ArchiveChannel(context.Background(), ticket.ChannelRef))

	stored, err := h.repo.Find(context.Background(), repository.TicketFilter{ID: ticket.ID})
	require.NoError(t, err)
	assert.Len(t, stored, 1, "archival keeps the record")
}

func TestCheckIdentifier(t *testing.T) {
	h := newHarness(t)
	h.seedTicket(t, "DUP", "1001", testNow.Add(-time.Hour), domain.MediaEntry{RemoteURL: "https://cdn/1", RemoteID: "r1"})
	h.seedTicket(t, "DUP", "1002", testNow)

	matches, err := h.svc.CheckIdentifier(context.Background(), "DUP")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
	assert.Len(t, h.chat.sent("audit"), 3)
	assert.Len(t, h.notifier.calls, 1)

	_, err = h.svc.CheckIdentifier(context.Background(), "NONE")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCheckIdentifierWithoutAuditChannel(t *testing.T) {
	h := newHarness(t)
	h.svc.settings.AuditChannelID = ""

	_, err := h.svc.CheckIdentifier(context.Background(), "UID")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConfigurationMissing))
}

func TestChannelNameAndViewButton(t *testing.T) {
	assert.Equal(t, "ticket-seller-ab-c-d", ChannelName(domain.TicketKindSeller, "AB C_d"))
	assert.Equal(t, "ticket-buyer-x", ChannelName(domain.TicketKindBuyer, "<@x>"))
	id, ok := TicketIDFromButton(ViewTicketButtonID("t-1"))
	assert.True(t, ok)
	assert.Equal(t, "t-1", id)
	_, ok = TicketIDFromButton("save_images")
	assert.False(t, ok)
}
