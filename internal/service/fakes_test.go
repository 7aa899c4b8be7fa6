package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daole6868/BOT-BAO-DON-HANG/internal/chat"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/domain"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/events"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/media"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/persistence"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/repository"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/scheduler"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type createdChannel struct {
	Name    string
	Parent  string
	Allowed string
}

type directMessage struct {
	Identity string
	Content  string
}

type fakeChat struct {
	mu         sync.Mutex
	seq        int
	channels   map[string]createdChannel
	messages   map[string][]chat.Message
	history    map[string][]chat.InboundMessage
	dms        []directMessage
	deleted    []string
	failCreate error
	failDirect map[string]bool
}

func newFakeChat() *fakeChat {
	return &fakeChat{
		channels:   make(map[string]createdChannel),
		messages:   make(map[string][]chat.Message),
		history:    make(map[string][]chat.InboundMessage),
		failDirect: make(map[string]bool),
	}
}

func (f *fakeChat) CreatePrivateChannel(_ context.Context, name, parent, allowed string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return "", f.failCreate
	}
	f.seq++
	ref := fmt.Sprintf("chan-%d", f.seq)
	f.channels[ref] = createdChannel{Name: name, Parent: parent, Allowed: allowed}
	return ref, nil
}

func (f *fakeChat) DeleteChannel(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[ref]; !ok {
		return chat.ErrChannelNotFound
	}
	delete(f.channels, ref)
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *fakeChat) FetchChannel(_ context.Context, ref string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[ref]; !ok {
		return "", chat.ErrChannelNotFound
	}
	return ref, nil
}

func (f *fakeChat) SendMessage(_ context.Context, ref string, msg chat.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[ref] = append(f.messages[ref], msg)
	return nil
}

func (f *fakeChat) FetchRecentMessages(_ context.Context, ref string, _ int) ([]chat.InboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[ref]; !ok {
		return nil, chat.ErrChannelNotFound
	}
	return f.history[ref], nil
}

func (f *fakeChat) SendDirect(_ context.Context, identity, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDirect[identity] {
		return errors.New("dm closed")
	}
	f.dms = append(f.dms, directMessage{Identity: identity, Content: content})
	return nil
}

func (f *fakeChat) sent(ref string) []chat.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.Message(nil), f.messages[ref]...)
}

type fakeStorage struct {
	mu         sync.Mutex
	uploads    []string
	deletes    []string
	failDelete map[string]bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{failDelete: make(map[string]bool)}
}

func (s *fakeStorage) Upload(_ context.Context, _ []byte, objectPath string) (domain.MediaEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, objectPath)
	return domain.MediaEntry{RemoteURL: "https://cdn.test/" + objectPath, RemoteID: objectPath}, nil
}

func (s *fakeStorage) Delete(_ context.Context, remoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete[remoteID] {
		return errors.New("storage unavailable")
	}
	s.deletes = append(s.deletes, remoteID)
	return nil
}

// mapFetcher serves URLs that start with "https://ok/"; anything else fails.
type mapFetcher struct{}

func (mapFetcher) Fetch(_ context.Context, rawURL string) ([]byte, error) {
	if !strings.HasPrefix(rawURL, "https://ok/") {
		return nil, errors.New("status 404")
	}
	return []byte(rawURL), nil
}

type recordingNotifier struct {
	calls [][]domain.Ticket
}

func (r *recordingNotifier) Notify(_ context.Context, _ string, matches []domain.Ticket) NotifyReport {
	r.calls = append(r.calls, append([]domain.Ticket(nil), matches...))
	return NotifyReport{}
}

// hookedRepo lets a test interfere with individual store calls.
type hookedRepo struct {
	repository.TicketRepository
	createErr    error
	beforeUpdate func()
	deleteErr    map[string]error
}

func (h *hookedRepo) Create(ctx context.Context, t *domain.Ticket) error {
	if h.createErr != nil {
		return h.createErr
	}
	return h.TicketRepository.Create(ctx, t)
}

func (h *hookedRepo) UpdateOne(ctx context.Context, f repository.TicketFilter, d repository.TicketDelta) (*domain.Ticket, error) {
	if h.beforeUpdate != nil {
		h.beforeUpdate()
	}
	return h.TicketRepository.UpdateOne(ctx, f, d)
}

func (h *hookedRepo) DeleteOne(ctx context.Context, t *domain.Ticket) error {
	if err := h.deleteErr[t.ID]; err != nil {
		return err
	}
	return h.TicketRepository.DeleteOne(ctx, t)
}

type recordingDispatcher struct {
	events.Dispatcher
	mu        sync.Mutex
	published []events.Event
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{Dispatcher: events.NewInMemoryDispatcher(nil)}
}

func (r *recordingDispatcher) Publish(ctx context.Context, e events.Event) error {
	r.mu.Lock()
	r.published = append(r.published, e)
	r.mu.Unlock()
	return r.Dispatcher.Publish(ctx, e)
}

func (r *recordingDispatcher) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.published {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	repo       *hookedRepo
	chat       *fakeChat
	storage    *fakeStorage
	notifier   *recordingNotifier
	archival   scheduler.ArchivalQueue
	dispatcher *recordingDispatcher
	svc        *LifecycleService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := persistence.NewSQLite(filepath.Join(t.TempDir(), "tickets.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	h := &harness{
		repo:       &hookedRepo{TicketRepository: repository.NewSQLiteTicketRepository(db.DB)},
		chat:       newFakeChat(),
		storage:    newFakeStorage(),
		notifier:   &recordingNotifier{},
		archival:   scheduler.NewMemoryArchivalQueue(),
		dispatcher: newRecordingDispatcher(),
	}
	pipeline := media.NewPipeline(mapFetcher{}, h.storage, nil,
		media.WithSpacing(0), media.WithClock(func() time.Time { return testNow }, nil))
	h.svc = NewLifecycleService(LifecycleDependencies{
		TicketRepo: h.repo,
		Chat:       h.chat,
		Pipeline:   pipeline,
		Storage:    h.storage,
		Archival:   h.archival,
		Notifier:   h.notifier,
		Dispatcher: h.dispatcher,
		Settings: LifecycleSettings{
			SellerCategoryID: "cat-seller",
			BuyerCategoryID:  "cat-buyer",
			AuditChannelID:   "audit",
		},
		Now:   func() time.Time { return testNow },
		Sleep: func(context.Context, time.Duration) error { return nil },
	})
	return h
}

// seedTicket stores a ticket bound to a live fake channel.
func (h *harness) seedTicket(t *testing.T, identifier, owner string, createdAt time.Time, entries ...domain.MediaEntry) *domain.Ticket {
	t.Helper()
	ref, err := h.chat.CreatePrivateChannel(context.Background(), "seed", "cat-seller", owner)
	require.NoError(t, err)
	ticket := &domain.Ticket{Identifier: identifier, OwnerID: owner, ChannelRef: ref, CreatedAt: createdAt, Media: entries}
	require.NoError(t, h.repo.Create(context.Background(), ticket))
	return ticket
}

func sources(urls ...string) []media.Source {
	out := make([]media.Source, 0, len(urls))
	for _, u := range urls {
		out = append(out, media.Source{URL: u})
	}
	return out
}
