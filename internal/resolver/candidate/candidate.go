// Package candidate implements the lazy candidate selector: given a package
// name and the version set the solver currently has narrowed it to, produce
// the next version/distribution pair worth trying, without materializing
// every release up front. Generalizes the teacher's internal/resolver
// FindBestVersion (always pick the single highest non-prerelease match) into
// a restartable iterator the PubGrub solver can call repeatedly as it
// backtracks and re-narrows.
package candidate

import (
	"context"
	"fmt"
	"sort"

	"github.com/bilusteknoloji/pipg/internal/pep503"
	"github.com/bilusteknoloji/pipg/internal/pypiver"
	"github.com/bilusteknoloji/pipg/internal/registry"
	"github.com/bilusteknoloji/pipg/internal/tags"
)

// Strategy controls the direction candidates are offered in.
type Strategy int

const (
	// Highest offers the highest matching version first (pip/uv's default).
	Highest Strategy = iota
	// Lowest offers the lowest matching version first, for every package
	// in the graph — used by "resolve lowest" compatibility checks.
	Lowest
	// LowestDirect offers the lowest matching version first for packages
	// that are direct (root) requirements, and highest for everything
	// transitive — catches a project's stated lower bounds lying about
	// compatibility without forcing the whole tree to its oldest versions.
	LowestDirect
)

// PrereleasePolicy controls whether prerelease versions are offered.
type PrereleasePolicy int

const (
	// PrereleaseIfNecessary offers prereleases only when no stable version
	// in the set satisfies the current constraints, matching the teacher's
	// FindBestVersion behavior generalized to "try stable first, then fall
	// back."
	PrereleaseIfNecessary PrereleasePolicy = iota
	// PrereleaseYes always includes prereleases alongside stable versions,
	// interleaved by version order.
	PrereleaseYes
	// PrereleaseExplicit only offers prereleases for a package whose
	// specifier (in a root or a transitive requirement) names a prerelease.
	PrereleaseExplicit
	// PrereleaseNo never offers prereleases, even as a last resort.
	PrereleaseNo
)

// Distribution is one concrete, installable artifact for a resolved version:
// either a wheel compatible with the target environment or a source
// distribution.
type Distribution struct {
	Name    string
	Version pypiver.Version
	File    registry.File
	IsWheel bool
}

// Source looks up everything known about a project on an index, the
// boundary candidate depends on instead of calling the registry directly,
// so tests can substitute a fake without standing up an HTTP server.
type Source interface {
	SimpleDetail(ctx context.Context, idx registry.Index, project string) (*registry.ProjectIndex, error)
}

// Selector produces candidate distributions for packages lazily, caching
// each package's parsed, sorted release list the first time it's asked
// about so repeated Next calls during backtracking don't refetch.
type Selector struct {
	source      Source
	index       registry.Index
	tags        tags.Tags
	strategy    Strategy
	prerelease  PrereleasePolicy
	directNames map[string]bool

	// explicitPrerelease marks package names whose active specifier text
	// (root or transitive) names a pre-release version, for
	// PrereleaseExplicit. The caller shares this map with whatever else
	// discovers dependency requirements as solving proceeds (see
	// internal/pubgrub), so it grows as transitive requirements are parsed
	// rather than being fixed to the root requirements alone - unlike
	// directNames, which only ever describes root requirements and is a
	// different axis (Strategy.LowestDirect).
	explicitPrerelease map[string]bool

	cursors map[string]*cursor
}

// cursor holds one package's cached, ordered candidate list and how far
// through it the selector has offered.
type cursor struct {
	releases []release
	offset   int
}

type release struct {
	version pypiver.Version
	dists   []Distribution
}

// New creates a Selector. directNames marks package names that are root
// (direct) requirements, used by the LowestDirect strategy. explicitPrerelease
// marks package names whose active specifier text names a pre-release,
// used by PrereleaseExplicit; callers that mutate it as solving discovers
// more requirements should pass it by reference (a plain map, never
// replaced) so the Selector sees later updates.
func New(source Source, idx registry.Index, compatTags tags.Tags, strategy Strategy, prerelease PrereleasePolicy, directNames, explicitPrerelease map[string]bool) *Selector {
	return &Selector{
		source:             source,
		index:              idx,
		tags:               compatTags,
		strategy:           strategy,
		prerelease:         prerelease,
		directNames:        directNames,
		explicitPrerelease: explicitPrerelease,
		cursors:            make(map[string]*cursor),
	}
}

// Next returns the next candidate version and its distribution for pkg that
// falls within allowed, or ok=false once every candidate has been offered.
// Each call for a given package advances that package's internal cursor;
// allowed narrows (it never widens) across repeated calls as the solver
// learns more incompatibilities, so candidates already rejected are skipped
// without being re-evaluated against the registry.
func (s *Selector) Next(ctx context.Context, pkg string, allowed pypiver.Set) (pypiver.Version, Distribution, bool, error) {
	c, err := s.cursorFor(ctx, pkg)
	if err != nil {
		return pypiver.Version{}, Distribution{}, false, err
	}

	order := s.effectiveStrategy(pkg)

	for c.offset < len(c.releases) {
		idx := c.nextIndex(order)
		c.offset++

		rel := c.releases[idx]

		if !allowed.Contains(rel.version) {
			continue
		}

		if !s.prereleaseAllowed(pkg, rel.version, c, order) {
			continue
		}

		dist, ok := s.bestDistribution(rel)
		if !ok {
			continue
		}

		return rel.version, dist, true, nil
	}

	return pypiver.Version{}, Distribution{}, false, nil
}

// RemainingCount reports how many of pkg's releases currently satisfy
// allowed, without advancing any cursor or applying the prerelease policy —
// a coarse measure of how constrained a package is, for a caller (the
// solver's decision-order heuristic) that wants to compare packages before
// committing to a Next call on any of them.
func (s *Selector) RemainingCount(ctx context.Context, pkg string, allowed pypiver.Set) (int, error) {
	c, err := s.cursorFor(ctx, pkg)
	if err != nil {
		return 0, err
	}

	count := 0

	for _, rel := range c.releases {
		if allowed.Contains(rel.version) {
			count++
		}
	}

	return count, nil
}

// Resolved returns the installable distribution for a version the solver
// has already decided on, looking it up in pkg's cached release list rather
// than advancing any cursor. The solver calls Next to pick a version and
// Resolved afterward to fetch its dependency metadata, which may happen
// many propagation rounds later.
func (s *Selector) Resolved(ctx context.Context, pkg string, version pypiver.Version) (Distribution, bool, error) {
	c, err := s.cursorFor(ctx, pkg)
	if err != nil {
		return Distribution{}, false, err
	}

	for _, rel := range c.releases {
		if !rel.version.Equal(version) {
			continue
		}

		return s.bestDistribution(rel)
	}

	return Distribution{}, false, nil
}

// effectiveStrategy resolves LowestDirect into a concrete direction for pkg.
func (s *Selector) effectiveStrategy(pkg string) Strategy {
	if s.strategy != LowestDirect {
		return s.strategy
	}

	if s.directNames[pep503.Normalize(pkg)] {
		return Lowest
	}

	return Highest
}

// nextIndex returns the slice index to examine next given the release
// order. c.releases is always stored ascending; Highest walks from the end.
func (c *cursor) nextIndex(order Strategy) int {
	if order == Lowest {
		return c.offset
	}

	return len(c.releases) - 1 - c.offset
}

// prereleaseAllowed applies the PrereleasePolicy: a prerelease is rejected
// outright under No, always allowed under Yes, allowed under Explicit only
// for a package marked in explicitPrerelease, and under IfNecessary allowed
// once no stable release remains unvisited in the cursor's traversal order.
func (s *Selector) prereleaseAllowed(pkg string, v pypiver.Version, c *cursor, order Strategy) bool {
	if !v.IsPrerelease() {
		return true
	}

	switch s.prerelease {
	case PrereleaseNo:
		return false
	case PrereleaseYes:
		return true
	case PrereleaseExplicit:
		return s.explicitPrerelease[pep503.Normalize(pkg)]
	case PrereleaseIfNecessary:
		return !c.hasRemainingStable(order)
	default:
		return false
	}
}

// hasRemainingStable reports whether any release not yet visited in
// traversal order order is a stable (non-prerelease) version, used by
// PrereleaseIfNecessary to decide whether it's time to fall back to
// prereleases. c.releases is always stored ascending; which slice half
// counts as "not yet visited" depends on which end the cursor is consuming
// from.
func (c *cursor) hasRemainingStable(order Strategy) bool {
	var lo, hi int
	if order == Lowest {
		lo, hi = c.offset, len(c.releases)
	} else {
		lo, hi = 0, len(c.releases)-c.offset
	}

	for i := lo; i < hi; i++ {
		if !c.releases[i].version.IsPrerelease() {
			return true
		}
	}

	return false
}

// bestDistribution picks the highest-priority installable artifact for a
// release: the compatible wheel with the best tag priority, falling back to
// a source distribution if no wheel matches this environment.
func (s *Selector) bestDistribution(rel release) (Distribution, bool) {
	bestPriority := -1

	var best Distribution

	var sdist Distribution

	haveSdist := false

	for _, d := range rel.dists {
		if !d.IsWheel {
			sdist = d
			haveSdist = true

			continue
		}

		_, _, wheelTags, err := tags.ParseWheelFilename(d.File.Filename)
		if err != nil {
			continue
		}

		priority, ok := s.tags.Priority(wheelTags).Priority()
		if !ok {
			continue
		}

		if bestPriority == -1 || priority < bestPriority {
			bestPriority = priority
			best = d
		}
	}

	if bestPriority >= 0 {
		return best, true
	}

	if haveSdist {
		return sdist, true
	}

	return Distribution{}, false
}

// cursorFor returns pkg's cursor, fetching and grouping its releases from
// the registry on first use.
func (s *Selector) cursorFor(ctx context.Context, pkg string) (*cursor, error) {
	normalized := pep503.Normalize(pkg)

	if c, ok := s.cursors[normalized]; ok {
		return c, nil
	}

	detail, err := s.source.SimpleDetail(ctx, s.index, pkg)
	if err != nil {
		return nil, fmt.Errorf("fetching candidates for %s: %w", pkg, err)
	}

	grouped := make(map[string][]Distribution)

	var order []pypiver.Version

	seen := make(map[string]bool)

	for _, f := range detail.Files {
		if f.Yanked {
			continue
		}

		v, err := pypiver.Parse(versionFromFilename(f.Filename, detail.Name))
		if err != nil {
			continue
		}

		key := v.String()
		if !seen[key] {
			seen[key] = true

			order = append(order, v)
		}

		grouped[key] = append(grouped[key], Distribution{
			Name:    detail.Name,
			Version: v,
			File:    f,
			IsWheel: f.PackageType == "bdist_wheel",
		})
	}

	sort.Slice(order, func(i, j int) bool { return order[i].LessThan(order[j]) })

	releases := make([]release, 0, len(order))
	for _, v := range order {
		releases = append(releases, release{version: v, dists: grouped[v.String()]})
	}

	c := &cursor{releases: releases}
	s.cursors[normalized] = c

	return c, nil
}
