package pubgrub

import (
	"context"
	"testing"

	"github.com/bilusteknoloji/pipg/internal/resolver/candidate"
	"github.com/bilusteknoloji/pipg/internal/tags"
)

func TestDistributionsForReturnsDecidedPackagesOnly(t *testing.T) {
	reg := newFakeRegistry()
	reg.addSdist("a", "1.0.0", "", "b>=1.0.0")
	reg.addSdist("b", "1.2.0", "")

	req := Request{
		Requirements: []string{"a"},
		CompatTags:   tags.Tags{},
		Strategy:     candidate.Highest,
		Prerelease:   candidate.PrereleaseIfNecessary,
	}

	sol, err := Solve(context.Background(), req, reg, reg, testOptions())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	dists, err := DistributionsFor(context.Background(), req, reg, sol)
	if err != nil {
		t.Fatalf("DistributionsFor: %v", err)
	}

	for _, pkg := range []string{"a", "b"} {
		dist, ok := dists[pkg]
		if !ok {
			t.Errorf("missing distribution for %s", pkg)
			continue
		}

		if dist.IsWheel {
			t.Errorf("%s: got a wheel, want the fake sdist-only distribution", pkg)
		}

		if dist.File.Filename == "" {
			t.Errorf("%s: got an empty filename", pkg)
		}
	}

	if _, ok := dists["root"]; ok {
		t.Error("did not expect a distribution for the synthetic root package")
	}
}
