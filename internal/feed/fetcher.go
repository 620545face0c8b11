package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vamosnene/vamosnene/internal/config"
	"github.com/vamosnene/vamosnene/internal/storage"
)

const (
	defaultUserAgent = "vamosnene/1.0 (+https://vamosnene.com.ar)"
	defaultTimeout   = 15 * time.Second
	defaultMaxBody   = 5 << 20
)

// ErrBodyTooLarge is returned when a feed exceeds the configured body limit.
var ErrBodyTooLarge = errors.New("feed body too large")

// ErrHTTPStatus matches any StatusError.
var ErrHTTPStatus = errors.New("unexpected HTTP status")

type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d for %s", e.Code, e.URL)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrHTTPStatus
}

// Response is a fetched feed body with its cache validators.
type Response struct {
	Body         []byte
	ContentType  string
	ETag         string
	LastModified string
	NotModified  bool
}

type Fetcher struct {
	client      *http.Client
	userAgent   string
	maxBody     int64
	ignoreCache bool
}

func NewFetcher(cfg *config.Config) *Fetcher {
	ua := defaultUserAgent
	t := defaultTimeout
	maxBody := int64(defaultMaxBody)
	if cfg != nil {
		if cfg.News.UserAgent != "" {
			ua = cfg.News.UserAgent
		}
		if cfg.News.HTTPTimeout > 0 {
			t = cfg.News.HTTPTimeout
		}
		if cfg.News.MaxBodyBytes > 0 {
			maxBody = cfg.News.MaxBodyBytes
		}
	}

	return &Fetcher{
		client: &http.Client{
			Timeout: t,
		},
		userAgent: ua,
		maxBody:   maxBody,
	}
}

// SetIgnoreCache makes Fetch skip conditional request headers.
func (f *Fetcher) SetIgnoreCache(ignore bool) {
	f.ignoreCache = ignore
}

func (f *Fetcher) Fetch(ctx context.Context, src *storage.Source) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.FeedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml, text/xml;q=0.9, */*;q=0.8")

	if !f.ignoreCache {
		if src.ETag != "" {
			req.Header.Set("If-None-Match", src.ETag)
		}
		if src.LastModified != "" {
			req.Header.Set("If-Modified-Since", src.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	out := &Response{
		ContentType:  resp.Header.Get("Content-Type"),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}

	if resp.StatusCode == http.StatusNotModified {
		out.NotModified = true
		return out, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, URL: src.FeedURL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrBodyTooLarge, f.maxBody)
	}
	out.Body = body
	return out, nil
}
