package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vamosnene/vamosnene/internal/config"
	"github.com/vamosnene/vamosnene/internal/storage"
)

func TestFetcher_Fetch(t *testing.T) {
	tests := []struct {
		name           string
		source         *storage.Source
		serverResponse func(w http.ResponseWriter, r *http.Request)
		wantBody       string
		wantNotMod     bool
		wantErr        bool
	}{
		{
			name:   "successful fetch with new content",
			source: &storage.Source{Code: "test1"},
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "vamosnene-test/1.0", r.Header.Get("User-Agent"))
				assert.Empty(t, r.Header.Get("If-None-Match"))
				w.Header().Set("Content-Type", "application/rss+xml; charset=ISO-8859-1")
				w.Header().Set("ETag", `"123"`)
				w.Header().Set("Last-Modified", "Wed, 01 Jan 2025 00:00:00 GMT")
				w.Write([]byte("<rss></rss>"))
			},
			wantBody: "<rss></rss>",
		},
		{
			name:   "not modified response with ETag",
			source: &storage.Source{Code: "test2", ETag: `"123"`},
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, `"123"`, r.Header.Get("If-None-Match"))
				w.WriteHeader(http.StatusNotModified)
			},
			wantNotMod: true,
		},
		{
			name:   "not modified response with Last-Modified",
			source: &storage.Source{Code: "test3", LastModified: "Wed, 01 Jan 2025 00:00:00 GMT"},
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Wed, 01 Jan 2025 00:00:00 GMT", r.Header.Get("If-Modified-Since"))
				w.WriteHeader(http.StatusNotModified)
			},
			wantNotMod: true,
		},
		{
			name:   "server error",
			source: &storage.Source{Code: "test4"},
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantErr: true,
		},
		{
			name:   "not found",
			source: &storage.Source{Code: "test5"},
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(tt.serverResponse))
			defer server.Close()

			tt.source.FeedURL = server.URL
			fetcher := NewFetcher(config.TestConfig())
			resp, err := fetcher.Fetch(context.Background(), tt.source)

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrHTTPStatus))
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, server.URL, se.URL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNotMod, resp.NotModified)
			assert.Equal(t, tt.wantBody, string(resp.Body))
			if tt.wantBody != "" {
				assert.Equal(t, `"123"`, resp.ETag)
				assert.Equal(t, "ISO-8859-1", CharsetFromContentType(resp.ContentType))
			}
		})
	}
}

func TestFetcher_IgnoreCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("If-None-Match"))
		assert.Empty(t, r.Header.Get("If-Modified-Since"))
		w.Write([]byte("<rss/>"))
	}))
	defer server.Close()

	fetcher := NewFetcher(config.TestConfig())
	fetcher.SetIgnoreCache(true)
	resp, err := fetcher.Fetch(context.Background(), &storage.Source{
		FeedURL: server.URL, ETag: `"abc"`, LastModified: "Wed, 01 Jan 2025 00:00:00 GMT",
	})
	require.NoError(t, err)
	assert.False(t, resp.NotModified)
}

func TestFetcher_BodyLimit(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"under limit", 99, false},
		{"at limit", 100, false},
		{"over limit", 101, true},
		{"far over limit", 4096, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(strings.Repeat("x", tt.size)))
			}))
			defer server.Close()

			cfg := config.TestConfig()
			cfg.News.MaxBodyBytes = 100
			resp, err := NewFetcher(cfg).Fetch(context.Background(), &storage.Source{FeedURL: server.URL})
			if tt.wantErr {
				require.ErrorIs(t, err, ErrBodyTooLarge)
				assert.Contains(t, err.Error(), "100 bytes")
				return
			}
			require.NoError(t, err)
			assert.Len(t, resp.Body, tt.size)
		})
	}
}

func TestFetcher_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<rss/>"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFetcher(nil).Fetch(ctx, &storage.Source{FeedURL: server.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
