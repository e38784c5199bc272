package pubgrub

import (
	"context"
	"fmt"

	"github.com/bilusteknoloji/pipg/internal/markers"
	"github.com/bilusteknoloji/pipg/internal/resolver/candidate"
)

// SolutionBranch is one independently-solved outcome of a forked resolve,
// gated by the Python-version marker it applies under. Marker is empty when
// ForkOnPythonVersions found the candidate set wasn't actually partitioned
// and collapsed every target version back down to a single branch.
type SolutionBranch struct {
	Marker   string
	Solution *Solution
}

// ForkedSolution is the result of resolving against more than one target
// Python version at once, one branch per distinct outcome.
type ForkedSolution struct {
	Branches []SolutionBranch
}

// ForkOnPythonVersions resolves req independently for each version in
// pythonVersions (the project's requires-python range expanded to the
// interpreter versions actually worth distinguishing, e.g. "3.9" and "3.12"
// either side of a dependency's own requires-python lower bound lifting),
// then collapses the branches back to one if every version produced the same
// decisions — forking the solve only actually happens when a package's
// candidate set is partitioned by Python version, not merely annotated with
// markers that never change the outcome. Grounded on the "fork only on
// Python-version partitioning" decision recorded in DESIGN.md: every other
// marker axis (platform, implementation) is left for the resolution graph's
// edges to carry, not for the solver to fork over.
func ForkOnPythonVersions(ctx context.Context, req Request, regSource candidate.Source, fetcher MetadataFetcher, baseOptions SolverOptions, pythonVersions []string) (*ForkedSolution, error) {
	if len(pythonVersions) == 0 {
		return nil, fmt.Errorf("pubgrub: ForkOnPythonVersions requires at least one target Python version")
	}

	branches := make([]SolutionBranch, 0, len(pythonVersions))

	for _, pv := range pythonVersions {
		options := baseOptions
		options.Env.PythonVersion = pv

		sol, err := Solve(ctx, req, regSource, fetcher, options)
		if err != nil {
			return nil, fmt.Errorf("resolving for python %s: %w", pv, err)
		}

		branches = append(branches, SolutionBranch{
			Marker:   fmt.Sprintf("python_version == %q", pv),
			Solution: sol,
		})
	}

	if allBranchesAgree(branches) {
		return &ForkedSolution{Branches: []SolutionBranch{{Marker: "", Solution: branches[0].Solution}}}, nil
	}

	return &ForkedSolution{Branches: branches}, nil
}

// allBranchesAgree reports whether every branch resolved to the exact same
// set of package@version decisions, in which case forking bought nothing
// and the caller should present a single unconditional solution instead.
func allBranchesAgree(branches []SolutionBranch) bool {
	if len(branches) <= 1 {
		return true
	}

	reference := decisionSet(branches[0].Solution)

	for _, b := range branches[1:] {
		if !decisionSetsEqual(reference, decisionSet(b.Solution)) {
			return false
		}
	}

	return true
}

func decisionSet(sol *Solution) map[Name]string {
	out := make(map[Name]string, len(sol.Decisions))
	for _, d := range sol.Decisions {
		out[d.Name] = d.Version.String()
	}

	return out
}

func decisionSetsEqual(a, b map[Name]string) bool {
	if len(a) != len(b) {
		return false
	}

	for name, version := range a {
		if b[name] != version {
			return false
		}
	}

	return true
}

// markerEnvironmentFor is a convenience for callers building per-branch
// environments from a base environment plus the branch's own python_version.
// Only this package's tests call it; internal/graph's UnionForked works from
// each branch's Marker string instead.
func markerEnvironmentFor(base markers.Environment, pythonVersion string) markers.Environment {
	env := base
	env.PythonVersion = pythonVersion

	return env
}
