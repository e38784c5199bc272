package registry_test

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bilusteknoloji/pipg/internal/registry"
)

const testMetadataContents = "Metadata-Version: 2.1\nName: six\nVersion: 1.17.0\n"

func buildTestWheel(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	w, err := zw.Create("six-1.17.0.dist-info/METADATA")
	if err != nil {
		t.Fatalf("creating zip entry: %v", err)
	}

	if _, err := w.Write([]byte(testMetadataContents)); err != nil {
		t.Fatalf("writing zip entry: %v", err)
	}

	if _, err := zw.Create("six.py"); err != nil {
		t.Fatalf("creating zip entry: %v", err)
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip writer: %v", err)
	}

	return buf.Bytes()
}

func TestWheelMetadataViaPEP658Sidecar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/six-1.17.0-py2.py3-none-any.whl.metadata" {
			_, _ = w.Write([]byte(testMetadataContents))

			return
		}

		http.Error(w, "unexpected request", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	client := registry.New(registry.WithHTTPClient(srv.Client()))
	idx := registry.Index{URL: srv.URL + "/simple"}
	file := registry.File{
		Filename:         "six-1.17.0-py2.py3-none-any.whl",
		URL:              srv.URL + "/six-1.17.0-py2.py3-none-any.whl",
		DistInfoMetadata: true,
	}

	body, err := client.WheelMetadata(context.Background(), idx, file)
	if err != nil {
		t.Fatalf("WheelMetadata() error: %v", err)
	}

	if string(body) != testMetadataContents {
		t.Errorf("expected %q, got %q", testMetadataContents, string(body))
	}
}

func TestWheelMetadataViaRangeRequest(t *testing.T) {
	wheel := buildTestWheel(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "six-1.17.0-py2.py3-none-any.whl", time.Time{}, bytes.NewReader(wheel))
	}))
	t.Cleanup(srv.Close)

	client := registry.New(registry.WithHTTPClient(srv.Client()))
	idx := registry.Index{URL: srv.URL + "/simple"}
	file := registry.File{
		Filename: "six-1.17.0-py2.py3-none-any.whl",
		URL:      srv.URL + "/six-1.17.0-py2.py3-none-any.whl",
	}

	body, err := client.WheelMetadata(context.Background(), idx, file)
	if err != nil {
		t.Fatalf("WheelMetadata() error: %v", err)
	}

	if string(body) != testMetadataContents {
		t.Errorf("expected %q, got %q", testMetadataContents, string(body))
	}
}

func TestWheelMetadataFallsBackToFullDownload(t *testing.T) {
	wheel := buildTestWheel(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			// Simulate an index that doesn't support HEAD or Range requests,
			// forcing the client down to the full-download path.
			w.WriteHeader(http.StatusNotImplemented)

			return
		}

		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(wheel)
	}))
	t.Cleanup(srv.Close)

	client := registry.New(registry.WithHTTPClient(srv.Client()))
	idx := registry.Index{URL: srv.URL + "/simple"}
	file := registry.File{
		Filename: "six-1.17.0-py2.py3-none-any.whl",
		URL:      srv.URL + "/six-1.17.0-py2.py3-none-any.whl",
	}

	body, err := client.WheelMetadata(context.Background(), idx, file)
	if err != nil {
		t.Fatalf("WheelMetadata() error: %v", err)
	}

	if string(body) != testMetadataContents {
		t.Errorf("expected %q, got %q", testMetadataContents, string(body))
	}
}
