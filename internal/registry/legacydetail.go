package registry

import (
	"context"
	"fmt"

	"github.com/bilusteknoloji/pipg/internal/pypi"
)

// LegacyDetail fetches a project's releases from a legacy JSON-API index
// (the scheme pypi.org/pypi/<name>/json speaks, predating the Simple
// Repository API) and adapts it into the same ProjectIndex shape
// SimpleDetail returns, so callers don't need to know which API kind an
// index actually speaks. Unrelated to FlatIndex's find-links document
// despite both once sharing a name: this is a per-project JSON endpoint,
// not a single fetched-once-per-process listing.
func (s *Service) LegacyDetail(ctx context.Context, idx Index, project string) (*ProjectIndex, error) {
	client := pypi.New(pypi.WithHTTPClient(s.httpClient), pypi.WithBaseURL(idx.URL), pypi.WithLogger(s.logger))

	result := &ProjectIndex{Name: project}

	info, err := client.GetPackage(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("legacy JSON index lookup for %s at %s: %w", project, idx.URL, err)
	}

	result.Name = info.Info.Name

	for _, releases := range info.Releases {
		for _, u := range releases {
			result.Files = append(result.Files, legacyDetailFile(u))
		}
	}

	return result, nil
}

func legacyDetailFile(u pypi.URL) File {
	return File{
		Filename:       u.Filename,
		URL:            u.URL,
		Hashes:         map[string]string{"sha256": u.Digests.SHA256},
		RequiresPython: u.RequiresPython,
		Yanked:         u.Yanked,
		YankedReason:   u.YankedReason,
		Size:           u.Size,
		PackageType:    u.PackageType,
	}
}
