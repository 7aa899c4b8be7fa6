// Package media fetches chat attachments and copies them into object storage.
package media

import (
	"context"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/daole6868/BOT-BAO-DON-HANG/internal/domain"
	"github.com/daole6868/BOT-BAO-DON-HANG/internal/storage"
)

// DefaultUploadSpacing is the pause between two consecutive uploads.
const DefaultUploadSpacing = 500 * time.Millisecond

// Source is one attachment to ingest.
type Source struct {
	URL      string
	Filename string
}

// Fetcher downloads the bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// ItemFailure records why a single source was skipped.
type ItemFailure struct {
	Source Source
	Stage  string
	Err    error
}

// Result is the outcome of one Ingest call. Manifest is in processing order.
type Result struct {
	Manifest  []domain.MediaEntry
	Succeeded int
	Failed    int
	Failures  []ItemFailure
}

const (
	StageFetch  = "fetch"
	StageUpload = "upload"
)

// Pipeline moves attachments from the chat platform to object storage.
// It never touches the ticket store.
type Pipeline struct {
	fetcher Fetcher
	storage storage.ObjectStorage
	logger  *zap.Logger
	spacing time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	lastSuffix int64
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithSpacing overrides the delay between uploads.
func WithSpacing(d time.Duration) Option {
	return func(p *Pipeline) { p.spacing = d }
}

// WithClock replaces the wall clock and sleeper, for tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// NewPipeline builds a Pipeline.
func NewPipeline(fetcher Fetcher, store storage.ObjectStorage, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		fetcher: fetcher,
		storage: store,
		logger:  logger,
		spacing: DefaultUploadSpacing,
		now:     time.Now,
		sleep:   Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest fetches and uploads every source under prefix. A failing item is
// recorded and skipped. When ctx ends early the partial result is returned
// along with ctx.Err().
func (p *Pipeline) Ingest(ctx context.Context, sources []Source, prefix string) (Result, error) {
	res := Result{Manifest: []domain.MediaEntry{}}
	uploaded := 0

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		data, err := p.fetcher.Fetch(ctx, src.URL)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			p.fail(&res, src, StageFetch, err)
			continue
		}

		if uploaded > 0 && p.spacing > 0 {
			if err := p.sleep(ctx, p.spacing); err != nil {
				return res, err
			}
		}

		objectPath := p.objectPath(prefix, src)
		entry, err := p.storage.Upload(ctx, data, objectPath)
		uploaded++
		if err == nil && entry.RemoteID == "" {
			err = errEmptyRemoteID
		}
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			p.fail(&res, src, StageUpload, err)
			continue
		}

		res.Manifest = append(res.Manifest, entry)
		res.Succeeded++
		p.logger.Debug("media uploaded",
			zap.String("path", objectPath),
			zap.String("remote_id", entry.RemoteID),
		)
	}
	return res, nil
}

func (p *Pipeline) fail(res *Result, src Source, stage string, err error) {
	res.Failed++
	res.Failures = append(res.Failures, ItemFailure{Source: src, Stage: stage, Err: err})
	p.logger.Warn("media item skipped",
		zap.String("stage", stage),
		zap.String("url", src.URL),
		zap.Error(err),
	)
}

func (p *Pipeline) objectPath(prefix string, src Source) string {
	name := Stem(src.Filename)
	if name == "" {
		name = Stem(urlBase(src.URL))
	}
	if name == "" {
		name = "file"
	}
	return strings.TrimSuffix(prefix, "/") + "/" + name + "-" + strconv.FormatInt(p.nextSuffix(), 10)
}

// nextSuffix returns the current unix-millisecond time, bumped so that it is
// strictly greater than any suffix handed out before.
func (p *Pipeline) nextSuffix() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	ms := p.now().UnixMilli()
	if ms <= p.lastSuffix {
		ms = p.lastSuffix + 1
	}
	p.lastSuffix = ms
	return ms
}

// Stem strips the directory and the last extension from a file name.
func Stem(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

func urlBase(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return path.Base(u.Path)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
