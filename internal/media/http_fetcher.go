package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	errEmptyRemoteID = errors.New("storage returned an entry without remote id")
	// ErrTooLarge is returned when a body exceeds the fetcher's size limit.
	ErrTooLarge = errors.New("media: attachment exceeds size limit")
)

// HTTPFetcher downloads attachments over plain HTTP GET.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher builds a fetcher. maxBytes <= 0 disables the size limit.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("media: build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media: fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("media: fetch %s: status %d", rawURL, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		if resp.ContentLength > f.maxBytes {
			return nil, ErrTooLarge
		}
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("media: read %s: %w", rawURL, err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}
