package pubgrub

import (
	"context"
	"fmt"

	"github.com/bilusteknoloji/pipg/internal/resolver/candidate"
)

// DistributionsFor re-derives the installable candidate.Distribution for
// every non-extra decision in sol, by rebuilding the same kind of selector
// Solve used internally and asking it for each decision's already-chosen
// version. Kept separate from collectSolution since not every caller of
// Solve needs download-ready distributions — internal/graph and
// internal/lockfile only need the package/version/edge shape, and
// re-deriving distributions is the one part of solving that talks to the
// registry again after the fact (cheaply, since the selector's own cursor
// cache and the registry client's HTTP cache both still apply).
func DistributionsFor(ctx context.Context, req Request, regSource candidate.Source, sol *Solution) (map[string]candidate.Distribution, error) {
	_, names, err := rootDependencyTerms(req.Requirements)
	if err != nil {
		return nil, err
	}

	sel := candidate.New(regSource, req.Index, req.CompatTags, req.Strategy, req.Prerelease, names.direct, names.explicitPrerelease)

	dists := make(map[string]candidate.Distribution, len(sol.Decisions))

	for _, d := range sol.Decisions {
		if d.Name.IsExtra() {
			continue
		}

		dist, ok, err := sel.Resolved(ctx, d.Name.Package, d.Version)
		if err != nil {
			return nil, fmt.Errorf("looking up distribution for %s %s: %w", d.Name, d.Version, err)
		}

		if !ok {
			continue
		}

		dists[d.Name.Package] = dist
	}

	return dists, nil
}
