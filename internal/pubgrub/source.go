package pubgrub

import (
	"context"
	"fmt"

	"github.com/bilusteknoloji/pipg/internal/markers"
	"github.com/bilusteknoloji/pipg/internal/pypiver"
	"github.com/bilusteknoloji/pipg/internal/registry"
	"github.com/bilusteknoloji/pipg/internal/resolver/candidate"
)

// MetadataFetcher resolves a chosen distribution to its dist-info METADATA,
// the last piece of information the solver needs before it can turn a
// version decision into further dependency incompatibilities. Narrowed to
// just this one method so state.go can be exercised against a fake without
// pulling in a whole registry.Service.
type MetadataFetcher interface {
	WheelMetadata(ctx context.Context, idx registry.Index, file registry.File) ([]byte, error)
}

// versionSource is what solverState needs from the outside world: a way to
// pick the next candidate version for a package, and a way to turn a chosen
// candidate into the dependency terms it imposes on everything else.
// Grounded on contriboss/pubgrub-go's Source interface (GetVersions plus a
// dependency lookup), reshaped around this module's lazy candidate selector
// and registry client instead of an in-memory version list.
type versionSource interface {
	next(ctx context.Context, name Name, allowed pypiver.Set) (pypiver.Version, bool, error)
	dependencies(ctx context.Context, name Name, version pypiver.Version, env markers.Environment) ([]Term, error)

	// remainingCount reports how many versions of name currently satisfy
	// allowed, the measure solverState.pickNextPackage ranks undecided
	// packages by: picking the package with the fewest remaining
	// candidates first fails fast on over-constrained packages instead of
	// sinking propagation effort into a package with many candidates left
	// to try.
	remainingCount(ctx context.Context, name Name, allowed pypiver.Set) (int, error)
}

// registrySource is the concrete versionSource backing real resolution: it
// drives the candidate selector for version choice and fetches + parses
// dist-info METADATA for dependency terms, expanding extras into their own
// solver packages per spec.md's "extras are separate packages" design.
type registrySource struct {
	sel     *candidate.Selector
	idx     registry.Index
	fetcher MetadataFetcher

	// explicitPrerelease is the same map passed to the candidate.Selector
	// backing sel: dependencies grows it as transitive requirements are
	// parsed, so PrereleaseExplicit sees a package's specifier the moment
	// any requirement naming a pre-release is discovered, not just the
	// root ones known before solving started.
	explicitPrerelease map[string]bool
}

func newRegistrySource(sel *candidate.Selector, idx registry.Index, fetcher MetadataFetcher, explicitPrerelease map[string]bool) *registrySource {
	return &registrySource{sel: sel, idx: idx, fetcher: fetcher, explicitPrerelease: explicitPrerelease}
}

func (rs *registrySource) next(ctx context.Context, name Name, allowed pypiver.Set) (pypiver.Version, bool, error) {
	if name == PythonName || name.IsExtra() {
		return pypiver.Version{}, false, nil
	}

	v, _, ok, err := rs.sel.Next(ctx, name.Package, allowed)
	if err != nil {
		return pypiver.Version{}, false, fmt.Errorf("selecting a version for %s: %w", name, err)
	}

	return v, ok, nil
}

// remainingCount delegates to the candidate.Selector's own cached release
// list, so counting doesn't issue a second registry fetch beyond whatever
// next/dependencies already triggered for this package.
func (rs *registrySource) remainingCount(ctx context.Context, name Name, allowed pypiver.Set) (int, error) {
	if name == PythonName || name.IsExtra() {
		return 0, nil
	}

	count, err := rs.sel.RemainingCount(ctx, name.Package, allowed)
	if err != nil {
		return 0, fmt.Errorf("counting remaining candidates for %s: %w", name, err)
	}

	return count, nil
}

// dependencies fetches the dist-info METADATA for name@version and turns
// every applicable Requires-Dist line (and the Requires-Python line) into a
// dependency Term. env.Extra, set by the caller when resolving an extra
// variant's own requirements, gates `; extra == "..."` markers the same way
// PEP 508 defines.
func (rs *registrySource) dependencies(ctx context.Context, name Name, version pypiver.Version, env markers.Environment) ([]Term, error) {
	if name == PythonName {
		return nil, nil
	}

	base := name.Base()

	dist, ok, err := rs.sel.Resolved(ctx, base.Package, version)
	if err != nil {
		return nil, fmt.Errorf("looking up resolved distribution for %s %s: %w", base, version, err)
	}

	if !ok {
		return nil, nil
	}

	body, err := rs.fetcher.WheelMetadata(ctx, rs.idx, dist.File)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata for %s %s: %w", base, version, err)
	}

	meta, err := registry.ParseDistMetadata(body)
	if err != nil {
		return nil, fmt.Errorf("parsing metadata for %s %s: %w", base, version, err)
	}

	var terms []Term

	if meta.RequiresPython != "" {
		set, err := pypiver.ParseSpecifiers(meta.RequiresPython)
		if err == nil {
			terms = append(terms, Term{Name: PythonName, Positive: true, Set: set})
		}
	}

	if name.IsExtra() {
		// pkg[extra] depends on the exact same version of the bare package,
		// so picking an extra always drags its base package along.
		terms = append(terms, Term{Name: base, Positive: true, Set: pypiver.Exactly(version)})
	}

	for _, raw := range meta.RequiresDist {
		req := parseRequirement(raw)
		if req.name == "" {
			continue
		}

		reqEnv := env
		if name.IsExtra() {
			reqEnv.Extra = name.Extra
		}

		if !markers.Eval(req.marker, reqEnv) {
			continue
		}

		if req.mentionsPrerelease() {
			rs.explicitPrerelease[req.name] = true
		}

		// A requirement's own marker may gate it behind `extra == "..."`
		// without the dependent package itself being an extra variant; in
		// that case it only applies while resolving that extra, handled
		// above by reqEnv.Extra. Bare (non-extra) requirements always
		// apply to the base package.
		set, err := req.versionSet()
		if err != nil {
			continue
		}

		terms = append(terms, Term{Name: Name{Package: req.name}, Positive: true, Set: set})

		for _, extra := range req.extras {
			terms = append(terms, Term{Name: Name{Package: req.name, Extra: extra}, Positive: true, Set: set})
		}
	}

	return terms, nil
}
