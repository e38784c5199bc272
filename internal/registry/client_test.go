package registry_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bilusteknoloji/pipg/internal/registry"
)

func newTestIndex(t *testing.T, handler http.HandlerFunc) (*registry.Service, registry.Index) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := registry.New(registry.WithHTTPClient(srv.Client()))

	return client, registry.Index{URL: srv.URL + "/simple"}
}

func TestSimpleIndex(t *testing.T) {
	client, idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simple/" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		w.Header().Set("Content-Type", "application/vnd.pypi.simple.v1+json")
		_, _ = w.Write([]byte(`{"projects":[{"name":"six"},{"name":"Requests"}]}`))
	})

	entries, err := client.SimpleIndex(context.Background(), idx)
	if err != nil {
		t.Fatalf("SimpleIndex() error: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	if entries[0].Name != "six" || entries[1].Name != "Requests" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestSimpleDetailNotFound(t *testing.T) {
	client, idx := newTestIndex(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	_, err := client.SimpleDetail(context.Background(), idx, "nonexistent-package-xyz")
	if err == nil {
		t.Fatal("expected error for nonexistent project, got nil")
	}
}

func TestSimpleDetailRetriesOnServerError(t *testing.T) {
	attempts := 0

	client, idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "server error", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "application/vnd.pypi.simple.v1+json")
		_, _ = w.Write([]byte(`{"name":"six","files":[]}`))
	})

	detail, err := client.SimpleDetail(context.Background(), idx, "six")
	if err != nil {
		t.Fatalf("SimpleDetail() error: %v", err)
	}

	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}

	if detail.Name != "six" {
		t.Errorf("expected name %q, got %q", "six", detail.Name)
	}
}

func TestSimpleDetailContextCanceled(t *testing.T) {
	client, idx := newTestIndex(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.pypi.simple.v1+json")
		_, _ = w.Write([]byte(`{"name":"six","files":[]}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.SimpleDetail(ctx, idx, "six")
	if err == nil {
		t.Fatal("expected error for canceled context, got nil")
	}
}

func TestSimpleDetailForbiddenTreatedAsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	client := registry.New(registry.WithHTTPClient(srv.Client()))
	idx := registry.Index{
		URL:          srv.URL + "/simple",
		Capabilities: registry.IndexCapabilities{TreatForbiddenAsNotFound: true},
	}

	_, err := client.SimpleDetail(context.Background(), idx, "torch")
	if err == nil {
		t.Fatal("expected not-found error, got nil")
	}
}
