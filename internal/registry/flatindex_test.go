package registry_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/bilusteknoloji/pipg/internal/registry"
)

const flatIndexHTML = `<!DOCTYPE html>
<html>
<body>
<a href="widget-1.0.0-py3-none-any.whl#sha256=aaa111">widget-1.0.0-py3-none-any.whl</a>
<a href="widget-1.1.0.tar.gz#sha256=bbb222">widget-1.1.0.tar.gz</a>
<a href="gadget-2.0.0-py3-none-any.whl#sha256=ccc333" data-requires-python="&gt;=3.9">gadget-2.0.0-py3-none-any.whl</a>
<a href="gadget-0.9.0-py3-none-any.whl#sha256=ddd444" data-yanked="superseded">gadget-0.9.0-py3-none-any.whl</a>
</body>
</html>`

func TestFlatIndexGroupsByProjectName(t *testing.T) {
	fetches := 0

	client, idx := newTestIndex(t, func(w http.ResponseWriter, _ *http.Request) {
		fetches++

		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(flatIndexHTML))
	})

	widget, err := client.FlatIndex(context.Background(), idx, "widget")
	if err != nil {
		t.Fatalf("FlatIndex() error: %v", err)
	}

	if len(widget.Files) != 2 {
		t.Fatalf("expected 2 widget files, got %d: %+v", len(widget.Files), widget.Files)
	}

	if widget.Files[0].Hashes["sha256"] != "aaa111" {
		t.Errorf("expected sha256 aaa111, got %q", widget.Files[0].Hashes["sha256"])
	}

	if widget.Files[1].PackageType != "sdist" {
		t.Errorf("expected widget-1.1.0.tar.gz to be classified as an sdist, got %q", widget.Files[1].PackageType)
	}

	gadget, err := client.FlatIndex(context.Background(), idx, "gadget")
	if err != nil {
		t.Fatalf("FlatIndex() error: %v", err)
	}

	if len(gadget.Files) != 2 {
		t.Fatalf("expected 2 gadget files, got %d: %+v", len(gadget.Files), gadget.Files)
	}

	if gadget.Files[0].RequiresPython != ">=3.9" {
		t.Errorf("expected requires-python >=3.9, got %q", gadget.Files[0].RequiresPython)
	}

	if !gadget.Files[1].Yanked || gadget.Files[1].YankedReason != "superseded" {
		t.Errorf("expected the 0.9.0 file yanked with reason superseded, got %+v", gadget.Files[1])
	}

	// A third lookup against the same index must not re-fetch the document.
	if _, err := client.FlatIndex(context.Background(), idx, "widget"); err != nil {
		t.Fatalf("FlatIndex() error: %v", err)
	}

	if fetches != 1 {
		t.Errorf("expected the flat index document to be fetched once per process, got %d fetches", fetches)
	}
}

func TestFlatIndexUnknownProjectReturnsEmpty(t *testing.T) {
	client, idx := newTestIndex(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(flatIndexHTML))
	})

	detail, err := client.FlatIndex(context.Background(), idx, "nonexistent-package-xyz")
	if err != nil {
		t.Fatalf("FlatIndex() error: %v", err)
	}

	if len(detail.Files) != 0 {
		t.Errorf("expected no files for an unlisted project, got %d", len(detail.Files))
	}
}
