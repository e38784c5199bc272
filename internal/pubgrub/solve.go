package pubgrub

import (
	"context"
	"fmt"

	"github.com/bilusteknoloji/pipg/internal/pypiver"
	"github.com/bilusteknoloji/pipg/internal/registry"
	"github.com/bilusteknoloji/pipg/internal/resolver/candidate"
	"github.com/bilusteknoloji/pipg/internal/tags"
)

// Decision is one resolved package in a completed solution.
type Decision struct {
	Name    Name
	Version pypiver.Version
}

// Edge records that one resolved package's dependency metadata named
// another as a requirement — the raw material internal/graph builds a
// Graph's edges from.
type Edge struct {
	Parent Name
	Child  Name
}

// Solution is the result of a successful Solve: every package the root
// requirements pulled in, each at a single agreed-upon version, plus the
// dependency edges between them.
type Solution struct {
	Decisions []Decision
	Edges     []Edge
}

// Request describes what Solve should resolve: the root project's direct
// requirements as PEP 508 strings, resolved against one index using
// compatTags to pick wheels.
type Request struct {
	Requirements []string
	Index        registry.Index
	CompatTags   tags.Tags
	Strategy     candidate.Strategy
	Prerelease   candidate.PrereleasePolicy
}

// Solve runs the CDCL solver to completion against a real registry:
// req.Requirements become root dependency incompatibilities, regSource and
// fetcher back the lazy candidate selector and dist-info METADATA lookups.
func Solve(ctx context.Context, req Request, regSource candidate.Source, fetcher MetadataFetcher, options SolverOptions) (*Solution, error) {
	rootDeps, names, err := rootDependencyTerms(req.Requirements)
	if err != nil {
		return nil, err
	}

	sel := candidate.New(regSource, req.Index, req.CompatTags, req.Strategy, req.Prerelease, names.direct, names.explicitPrerelease)
	source := newRegistrySource(sel, req.Index, fetcher, names.explicitPrerelease)

	return solveCore(ctx, rootDeps, source, options)
}

// rootNames separates the two distinct things the candidate selector needs
// to know about a root requirement's name: whether it's direct at all
// (candidate.Strategy.LowestDirect) and, independently, whether its own
// specifier text names a pre-release (candidate.PrereleasePolicy.Explicit) -
// a package can be either, both, or neither.
type rootNames struct {
	direct             map[string]bool
	explicitPrerelease map[string]bool
}

// rootDependencyTerms parses the root project's PEP 508 requirement strings
// into dependency terms (one per requirement, plus one per requested extra)
// and the root name classifications the candidate selector's
// Strategy/PrereleasePolicy axes need.
func rootDependencyTerms(requirements []string) ([]Term, rootNames, error) {
	names := rootNames{
		direct:             make(map[string]bool, len(requirements)),
		explicitPrerelease: make(map[string]bool, len(requirements)),
	}

	var rootDeps []Term

	for _, raw := range requirements {
		r := parseRequirement(raw)
		if r.name == "" {
			continue
		}

		names.direct[r.name] = true

		if r.mentionsPrerelease() {
			names.explicitPrerelease[r.name] = true
		}

		set, err := r.versionSet()
		if err != nil {
			return nil, rootNames{}, fmt.Errorf("parsing root requirement %q: %w", raw, err)
		}

		rootDeps = append(rootDeps, Term{Name: Name{Package: r.name}, Positive: true, Set: set})

		for _, extra := range r.extras {
			rootDeps = append(rootDeps, Term{Name: Name{Package: r.name, Extra: extra}, Positive: true, Set: set})
		}
	}

	return rootDeps, names, nil
}

// solveCore is the CDCL driver loop itself, decoupled from how versions and
// dependencies are actually looked up so it can run against either a real
// registrySource or a fake in tests. Grounded on the L-F-Z/TaskC fork's
// top-level Solve() driver loop, cross-checked against
// contriboss/pubgrub-go's propagate/resolveConflict split.
func solveCore(ctx context.Context, rootDeps []Term, source versionSource, options SolverOptions) (*Solution, error) {
	st := newSolverState(source, options)

	st.addIncompatibility(NewIncompatibilityRoot())

	for _, dep := range rootDeps {
		inc := NewIncompatibilityFromDependency(RootName, pypiver.Full(), dep)
		st.addIncompatibility(inc)

		conflict, err := st.applyConstraint(dep, inc)
		if err != nil {
			return nil, err
		}

		if conflict != nil {
			return nil, NewNoSolutionError(conflict)
		}
	}

	st.partial.addDecision(RootName, pypiver.Full())

	if err := seedPythonVersion(st, options.Env.PythonVersion); err != nil {
		return nil, err
	}

	next := RootName

	for {
		conflict, err := st.propagate(next)
		if err != nil {
			return nil, err
		}

		if conflict != nil {
			pivot, err := st.resolveConflict(conflict)
			if err != nil {
				return nil, err
			}

			next = pivot

			continue
		}

		pkg, ok, err := st.pickNextPackage(ctx)
		if err != nil {
			return nil, err
		}

		if !ok {
			break
		}

		version, found, err := st.pickVersion(ctx, pkg)
		if err != nil {
			return nil, err
		}

		if !found {
			inc := NewIncompatibilityNoVersions(Term{Name: pkg, Positive: true, Set: st.partial.allowedSet(pkg)})
			st.addIncompatibility(inc)
			next = pkg

			continue
		}

		deps, err := source.dependencies(ctx, pkg, version, options.Env)
		if err != nil {
			return nil, err
		}

		dec := st.partial.addDecision(pkg, pypiver.Exactly(version))
		dec.value = version

		conflict, err = st.registerDependencies(pkg, version, deps)
		if err != nil {
			return nil, err
		}

		if conflict != nil {
			pivot, err := st.resolveConflict(conflict)
			if err != nil {
				return nil, err
			}

			next = pivot

			continue
		}

		next = pkg
	}

	return collectSolution(ctx, st, source, options)
}

// collectSolution reads off the final decisions from the partial solution
// and recomputes each one's dependency edges by re-querying source. Edges
// are derived after the fact, from the surviving decisions only, rather
// than accumulated incrementally during solving, since a package can be
// decided and then backtracked off multiple times before the version that
// actually survives is chosen — incremental tracking would have to unwind
// discarded edges in lockstep with partialSolution.backtrack for no benefit.
func collectSolution(ctx context.Context, st *solverState, source versionSource, options SolverOptions) (*Solution, error) {
	solution := &Solution{}

	for _, a := range st.partial.decisions() {
		if a.name == RootName || a.name == PythonName {
			continue
		}

		solution.Decisions = append(solution.Decisions, Decision{Name: a.name, Version: a.value})

		deps, err := source.dependencies(ctx, a.name, a.value, options.Env)
		if err != nil {
			return nil, fmt.Errorf("collecting dependency edges for %s %s: %w", a.name, a.value, err)
		}

		for _, dep := range deps {
			if dep.Name == PythonName || !dep.Positive {
				continue
			}

			solution.Edges = append(solution.Edges, Edge{Parent: a.name, Child: dep.Name})
		}
	}

	return solution, nil
}
