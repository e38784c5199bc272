package cache_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bilusteknoloji/pipg/internal/registry/cache"
)

func TestApplyOffline(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)

	if cache.Apply(req, nil, false, cache.Offline) {
		t.Error("Offline with a cache miss should not fetch")
	}

	if cache.Apply(req, &cache.Envelope{}, true, cache.Offline) {
		t.Error("Offline with a cache hit should not need to fetch")
	}
}

func TestApplyOnlineSetsConditionalHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	env := &cache.Envelope{ETag: `"v1"`, LastModified: "Mon, 01 Jan 2024 00:00:00 GMT"}

	if !cache.Apply(req, env, true, cache.Online) {
		t.Fatal("Online should always fetch (conditionally)")
	}

	if req.Header.Get("If-None-Match") != `"v1"` {
		t.Errorf("If-None-Match = %q, want %q", req.Header.Get("If-None-Match"), `"v1"`)
	}

	if req.Header.Get("If-Modified-Since") != env.LastModified {
		t.Errorf("If-Modified-Since = %q, want %q", req.Header.Get("If-Modified-Since"), env.LastModified)
	}
}

func TestApplyOverrideIgnoresCache(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	env := &cache.Envelope{ETag: `"v1"`}

	if !cache.Apply(req, env, true, cache.Override) {
		t.Fatal("Override should always fetch")
	}

	if req.Header.Get("If-None-Match") != "" {
		t.Error("Override should not set conditional headers")
	}
}
