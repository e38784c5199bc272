package registry

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/bilusteknoloji/pipg/internal/pep503"
	"github.com/bilusteknoloji/pipg/internal/tags"
)

// flatIndexCache holds a find-links document's parsed, grouped-by-name file
// listing. A flat index has no per-project addressing the way the Simple
// API does — it's one document listing every file the index carries — so
// it's fetched and parsed at most once per process per index URL, held in
// memory for the rest of the run, rather than revalidated against the
// on-disk envelope cache the way SimpleDetail is.
type flatIndexCache struct {
	mu      sync.Mutex
	byIndex map[string]map[string][]File // idx.URL -> normalized project name -> files
}

func newFlatIndexCache() *flatIndexCache {
	return &flatIndexCache{byIndex: make(map[string]map[string][]File)}
}

func (c *flatIndexCache) forIndex(ctx context.Context, s *Service, idx Index) (map[string][]File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if grouped, ok := c.byIndex[idx.URL]; ok {
		return grouped, nil
	}

	body, err := s.get(ctx, idx, "flat-index", "index", idx.URL)
	if err != nil {
		return nil, fmt.Errorf("fetching flat index %s: %w", idx.URL, err)
	}

	grouped, err := parseFlatIndexDocument(body, idx.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing flat index %s: %w", idx.URL, err)
	}

	c.byIndex[idx.URL] = grouped

	return grouped, nil
}

// FlatIndex resolves a project against a find-links ("flat") index: a
// single HTML document listing anchors for every file the index carries,
// the format `--find-links` URLs and local directories speak, distinct from
// the per-project Simple Repository API SimpleDetail implements. The
// document is fetched once per process per index URL (cached in byIndex)
// and re-grouped by project name on every subsequent call instead of
// re-fetched.
func (s *Service) FlatIndex(ctx context.Context, idx Index, project string) (*ProjectIndex, error) {
	grouped, err := s.flatCache.forIndex(ctx, s, idx)
	if err != nil {
		return nil, err
	}

	return &ProjectIndex{Name: project, Files: grouped[pep503.Normalize(project)]}, nil
}

// parseFlatIndexDocument walks the HTML anchor tags of a find-links
// document and groups each linked file by the project name its filename
// encodes. Grounded on datawire-ocibuild's pep503.Client.getHTML5Index
// (golang.org/x/net/html tree walk collecting <a href> and its data-*
// attributes), adapted from "list one project's files" to "group every
// anchor on the page by the name its filename implies," since a flat index
// has no directory structure separating one project's files from another's.
func parseFlatIndexDocument(body []byte, baseURL string) (map[string][]File, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL %s: %w", baseURL, err)
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	grouped := make(map[string][]File)

	visitAnchors(doc, func(node *html.Node) {
		href, attrs := anchorAttrs(node)
		if href == "" {
			return
		}

		resolved, err := base.Parse(href)
		if err != nil {
			return
		}

		filename := attrs["text"]
		if filename == "" {
			filename = resolvedFilename(resolved)
		}

		name, ok := projectNameFromFilename(filename)
		if !ok {
			return
		}

		file := File{
			Filename:       filename,
			URL:            strings.SplitN(resolved.String(), "#", 2)[0],
			Hashes:         hashesFromFragment(resolved.Fragment),
			RequiresPython: attrs["data-requires-python"],
			PackageType:    packageTypeOf(filename),
		}

		if reason, yanked := attrs["data-yanked"], attrs["data-yanked-present"] == "true"; yanked {
			file.Yanked = true
			file.YankedReason = reason
		}

		normalized := pep503.Normalize(name)
		grouped[normalized] = append(grouped[normalized], file)
	})

	return grouped, nil
}

// visitAnchors calls visit for every <a> element in the tree rooted at n.
func visitAnchors(n *html.Node, visit func(*html.Node)) {
	if n.Type == html.ElementNode && n.Data == "a" {
		visit(n)
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		visitAnchors(child, visit)
	}
}

// anchorAttrs collects an <a> node's href, its data-* attributes, and its
// rendered text content (the filename, by PEP 503 convention) in one pass.
func anchorAttrs(n *html.Node) (href string, attrs map[string]string) {
	attrs = make(map[string]string)

	for _, a := range n.Attr {
		switch {
		case a.Key == "href":
			href = a.Val
		case strings.HasPrefix(a.Key, "data-yanked"):
			attrs["data-yanked-present"] = "true"
			attrs["data-yanked"] = a.Val
		case strings.HasPrefix(a.Key, "data-"):
			attrs[a.Key] = a.Val
		}
	}

	var text strings.Builder
	collectText(n, &text)
	attrs["text"] = strings.TrimSpace(text.String())

	return href, attrs
}

func collectText(n *html.Node, w *strings.Builder) {
	if n.Type == html.TextNode {
		w.WriteString(n.Data)
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, w)
	}
}

func resolvedFilename(u *url.URL) string {
	path := u.Path

	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}

	return path
}

// hashesFromFragment parses the "#sha256=..." style fragment PEP 503
// anchors and legacy find-links pages append to a file URL.
func hashesFromFragment(fragment string) map[string]string {
	if fragment == "" {
		return nil
	}

	parts := strings.SplitN(fragment, "=", 2)
	if len(parts) != 2 {
		return nil
	}

	return map[string]string{parts[0]: parts[1]}
}

// projectNameFromFilename derives the project name a distribution filename
// encodes, without already knowing it (unlike versionFromFilename in
// candidate/filename.go, which is handed the name and only needs to strip
// it off). Wheel filenames name the project as their first "-"-separated
// field per PEP 427; source distributions are ambiguous in general (a
// project name can itself contain "-"), so sdists fall back to the
// rightmost "-" as the name/version boundary, the same heuristic
// candidate/filename.go's sdistVersion falls back to when it isn't handed a
// project name either.
var flatIndexSdistExtensions = []string{".tar.gz", ".tar.bz2", ".tar.xz", ".zip", ".tar"}

func projectNameFromFilename(filename string) (string, bool) {
	if strings.HasSuffix(filename, ".whl") {
		name, _, _, err := tags.ParseWheelFilename(filename)
		if err != nil {
			return "", false
		}

		return name, true
	}

	stem := filename

	for _, ext := range flatIndexSdistExtensions {
		if strings.HasSuffix(stem, ext) {
			stem = strings.TrimSuffix(stem, ext)

			break
		}
	}

	if stem == filename {
		// Not a recognized distribution extension at all.
		return "", false
	}

	i := strings.LastIndexByte(stem, '-')
	if i <= 0 {
		return "", false
	}

	return stem[:i], true
}
