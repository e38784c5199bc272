package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bilusteknoloji/pipg/internal/pep503"
)

// simpleIndexJSON is the PEP 691 JSON root index document.
type simpleIndexJSON struct {
	Projects []struct {
		Name string `json:"name"`
	} `json:"projects"`
}

// simpleDetailJSON is the PEP 691 JSON per-project detail document.
type simpleDetailJSON struct {
	Name  string `json:"name"`
	Files []struct {
		Filename         string            `json:"filename"`
		URL              string            `json:"url"`
		Hashes           map[string]string `json:"hashes"`
		RequiresPython   string            `json:"requires-python"`
		Yanked           any               `json:"yanked"`
		Size             int64             `json:"size"`
		DistInfoMetadata any               `json:"dist-info-metadata"`
	} `json:"files"`
}

// SimpleIndex fetches and parses an index's root project listing.
func (s *Service) SimpleIndex(ctx context.Context, idx Index) ([]IndexEntry, error) {
	url := strings.TrimRight(idx.URL, "/") + "/"

	body, err := s.get(ctx, idx, "simple-index", "index", url)
	if err != nil {
		return nil, err
	}

	var doc simpleIndexJSON
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding simple index from %s: %w", url, err)
	}

	entries := make([]IndexEntry, 0, len(doc.Projects))
	for _, p := range doc.Projects {
		entries = append(entries, IndexEntry{Name: p.Name})
	}

	return entries, nil
}

// SimpleDetail fetches and parses a project's Simple detail document.
func (s *Service) SimpleDetail(ctx context.Context, idx Index, project string) (*ProjectIndex, error) {
	normalized := pep503.Normalize(project)
	url := fmt.Sprintf("%s/%s/", strings.TrimRight(idx.URL, "/"), normalized)

	body, err := s.get(ctx, idx, "simple-detail", normalized, url)
	if err != nil {
		return nil, err
	}

	var doc simpleDetailJSON
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding project detail for %s from %s: %w", project, url, err)
	}

	result := &ProjectIndex{Name: doc.Name, Files: make([]File, 0, len(doc.Files))}

	for _, f := range doc.Files {
		file := File{
			Filename:       f.Filename,
			URL:            f.URL,
			Hashes:         f.Hashes,
			RequiresPython: f.RequiresPython,
			Size:           f.Size,
			PackageType:    packageTypeOf(f.Filename),
		}

		if reason, yanked := yankedReason(f.Yanked); yanked {
			file.Yanked = true
			file.YankedReason = reason
		}

		if hashes, ok := f.DistInfoMetadata.(map[string]any); ok {
			file.DistInfoMetadata = true
			file.MetadataHashes = make(map[string]string, len(hashes))

			for alg, v := range hashes {
				if s, ok := v.(string); ok {
					file.MetadataHashes[alg] = s
				}
			}
		} else if b, ok := f.DistInfoMetadata.(bool); ok {
			file.DistInfoMetadata = b
		}

		result.Files = append(result.Files, file)
	}

	return result, nil
}

// yankedReason interprets PEP 691's polymorphic "yanked" field: either a
// boolean or a string giving the reason.
func yankedReason(v any) (reason string, yanked bool) {
	switch t := v.(type) {
	case bool:
		return "", t
	case string:
		return t, true
	default:
		return "", false
	}
}

func packageTypeOf(filename string) string {
	if strings.HasSuffix(filename, ".whl") {
		return "bdist_wheel"
	}

	return "sdist"
}
