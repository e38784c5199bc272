// Package report turns a failed pubgrub.Solve's NoSolutionError into
// human-readable prose plus a deduplicated, typed hint list, the way a user
// actually wants to read a resolution failure instead of staring at a raw
// incompatibility set.
//
// Grounded on uv-resolver/src/pubgrub/report.rs's PubGrubReportFormatter:
// the external/derived node split for rendering a derivation tree, and the
// PubGrubHint catalog (scaled down to the hints spec.md names: prerelease
// availability, wheel tag mismatches, disabled source builds, index
// authentication failures, halting search after the first index, and a
// stricter-than-expected requires-python).
package report

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bilusteknoloji/pipg/internal/pubgrub"
)

// HintKind identifies one category of remediation hint, mirroring the
// subset of uv's PubGrubHint enum spec.md calls out by name.
type HintKind int

const (
	HintPrereleaseAvailable HintKind = iota
	HintWheelTagMismatch
	HintSourceBuildDisabled
	HintAuthenticationFailure
	HintFirstIndexHaltedSearch
	HintRequiresPythonStricter
)

func (k HintKind) String() string {
	switch k {
	case HintPrereleaseAvailable:
		return "prerelease-available"
	case HintWheelTagMismatch:
		return "wheel-tag-mismatch"
	case HintSourceBuildDisabled:
		return "source-build-disabled"
	case HintAuthenticationFailure:
		return "authentication-failure"
	case HintFirstIndexHaltedSearch:
		return "first-index-halted-search"
	case HintRequiresPythonStricter:
		return "requires-python-stricter"
	default:
		return "unknown"
	}
}

// Hint is one piece of remediation advice attached to a Report.
type Hint struct {
	Kind    HintKind
	Package string
	Message string
}

// Context carries the registry/candidate-level signals the solver itself
// never observes (HTTP status codes, tag-matching failures, which indexes
// were actually queried) but that a caller holding the registry client and
// candidate selector does — these drive the hints uv derives from outside
// the derivation tree rather than from it.
type Context struct {
	// PrereleaseOnly lists packages where every candidate version the
	// selector saw was a prerelease, but the active PrereleasePolicy
	// excluded them.
	PrereleaseOnly []string
	// WheelTagMismatch lists packages where candidates existed but none of
	// their wheels matched the target environment's compatibility tags.
	WheelTagMismatch []string
	// SourceBuildDisabled lists packages that had only a source
	// distribution available while source builds were disabled.
	SourceBuildDisabled []string
	// AuthenticationFailure maps a package name to the index URL that
	// rejected the request as unauthorized or forbidden.
	AuthenticationFailure map[string]string
	// FirstIndexHalted maps a package name to the first index URL that was
	// queried, when a multi-index search stopped there without checking
	// the rest.
	FirstIndexHalted map[string]string
}

// Report is the rendered explanation for one resolution failure: a short
// summary, the derivation tree flattened into one prose line per node
// (most-fundamental facts first), and the deduplicated hint list.
type Report struct {
	Summary    string
	Derivation []string
	Hints      []Hint
}

// Explain renders err into a Report. If err doesn't wrap a
// *pubgrub.NoSolutionError (a network or configuration error, say), the
// Report carries just err's own message with no derivation or hints.
func Explain(err error, ctx Context) *Report {
	var nse *pubgrub.NoSolutionError
	if err == nil || !errors.As(err, &nse) {
		msg := ""
		if err != nil {
			msg = err.Error()
		}

		return &Report{Summary: msg}
	}

	seen := make(map[*pubgrub.Incompatibility]bool)

	return &Report{
		Summary:    nse.Error(),
		Derivation: dedupLines(renderTree(nse.Conflict, seen)),
		Hints:      collectHints(nse.Conflict, ctx),
	}
}

// renderTree walks inc's cause chain depth-first, emitting each node's
// external fact or derived conclusion exactly once (inc pointers repeat
// across a derivation tree whenever conflict resolution reuses a learned
// incompatibility, so seen prevents re-explaining the same fact twice).
func renderTree(inc *pubgrub.Incompatibility, seen map[*pubgrub.Incompatibility]bool) []string {
	if inc == nil || seen[inc] {
		return nil
	}

	seen[inc] = true

	if inc.Cause == nil {
		if line := describeExternal(inc); line != "" {
			return []string{line}
		}

		return nil
	}

	var lines []string

	lines = append(lines, renderTree(inc.Cause.Left, seen)...)
	lines = append(lines, renderTree(inc.Cause.Right, seen)...)
	lines = append(lines, fmt.Sprintf("therefore, %s", describeIncompatibility(inc)))

	return lines
}

func dedupLines(lines []string) []string {
	seen := make(map[string]bool, len(lines))

	out := make([]string, 0, len(lines))

	for _, l := range lines {
		if seen[l] {
			continue
		}

		seen[l] = true

		out = append(out, l)
	}

	return out
}

// describeExternal renders a non-learned (externally stated) incompatibility
// — one taken directly from a package's declared dependency metadata, the
// root project's own requirements, or the candidate selector running out of
// versions — rather than one produced by conflict resolution.
func describeExternal(inc *pubgrub.Incompatibility) string {
	switch inc.Kind {
	case pubgrub.KindRoot:
		return ""
	case pubgrub.KindDependency:
		if len(inc.Terms) != 2 {
			return describeIncompatibility(inc)
		}

		parent, dep := inc.Terms[0], inc.Terms[1]

		return fmt.Sprintf("%s depends on %s", parent.Name, describeTerm(dep.Negate()))
	case pubgrub.KindNoVersions:
		if len(inc.Terms) != 1 {
			return describeIncompatibility(inc)
		}

		return fmt.Sprintf("no versions of %s are available that satisfy the request", inc.Terms[0].Name)
	default:
		return describeIncompatibility(inc)
	}
}

// describeIncompatibility renders any incompatibility as "A and B and ...
// cannot all hold," the generic fallback conflict-resolution's learned
// clauses use, since a learned incompatibility's Terms carry no record of
// which two facts it was merged from beyond the Cause pointers already
// walked separately.
func describeIncompatibility(inc *pubgrub.Incompatibility) string {
	parts := make([]string, 0, len(inc.Terms))
	for _, t := range inc.Terms {
		parts = append(parts, describeTerm(t))
	}

	if len(parts) == 0 {
		return "no solution exists"
	}

	if len(parts) == 1 {
		return fmt.Sprintf("%s cannot be satisfied", parts[0])
	}

	return strings.Join(parts, " and ") + " cannot all hold at once"
}

func describeTerm(t pubgrub.Term) string {
	return t.String()
}

// collectHints produces the tree-derivable hints (requires-python
// mismatches, visible directly in the derivation tree as a term over the
// python pseudo-package) plus every Context-supplied hint, deduplicated by
// (Kind, Package).
func collectHints(root *pubgrub.Incompatibility, ctx Context) []Hint {
	var hints []Hint

	seen := make(map[*pubgrub.Incompatibility]bool)

	walkForPythonConflicts(root, seen, &hints)

	for _, pkg := range ctx.PrereleaseOnly {
		hints = append(hints, Hint{
			Kind:    HintPrereleaseAvailable,
			Package: pkg,
			Message: fmt.Sprintf("%s has prerelease versions available, but prereleases aren't enabled for it", pkg),
		})
	}

	for _, pkg := range ctx.WheelTagMismatch {
		hints = append(hints, Hint{
			Kind:    HintWheelTagMismatch,
			Package: pkg,
			Message: fmt.Sprintf("%s has wheels available, but none match this environment's compatibility tags", pkg),
		})
	}

	for _, pkg := range ctx.SourceBuildDisabled {
		hints = append(hints, Hint{
			Kind:    HintSourceBuildDisabled,
			Package: pkg,
			Message: fmt.Sprintf("%s only publishes a source distribution, but building from source is disabled", pkg),
		})
	}

	for pkg, index := range ctx.AuthenticationFailure {
		hints = append(hints, Hint{
			Kind:    HintAuthenticationFailure,
			Package: pkg,
			Message: fmt.Sprintf("%s could not be fetched: %s rejected the request as unauthorized", pkg, index),
		})
	}

	for pkg, index := range ctx.FirstIndexHalted {
		hints = append(hints, Hint{
			Kind:    HintFirstIndexHaltedSearch,
			Package: pkg,
			Message: fmt.Sprintf("%s wasn't found on %s; a later index was never checked", pkg, index),
		})
	}

	return dedupHints(hints)
}

// walkForPythonConflicts looks for a KindNoVersions incompatibility over the
// python pseudo-package anywhere in the tree — the signature of a
// requires-python constraint the target interpreter doesn't satisfy — and
// turns each into a RequiresPythonStricter hint.
func walkForPythonConflicts(inc *pubgrub.Incompatibility, seen map[*pubgrub.Incompatibility]bool, hints *[]Hint) {
	if inc == nil || seen[inc] {
		return
	}

	seen[inc] = true

	if inc.Kind == pubgrub.KindNoVersions && len(inc.Terms) == 1 && inc.Terms[0].Name == pubgrub.PythonName {
		*hints = append(*hints, Hint{
			Kind:    HintRequiresPythonStricter,
			Package: "python",
			Message: "a dependency's requires-python is stricter than the target interpreter version",
		})
	}

	if inc.Cause != nil {
		walkForPythonConflicts(inc.Cause.Left, seen, hints)
		walkForPythonConflicts(inc.Cause.Right, seen, hints)
	}
}

func dedupHints(hints []Hint) []Hint {
	seen := make(map[string]bool, len(hints))

	out := make([]Hint, 0, len(hints))

	for _, h := range hints {
		key := fmt.Sprintf("%d|%s", h.Kind, h.Package)
		if seen[key] {
			continue
		}

		seen[key] = true

		out = append(out, h)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}

		return out[i].Package < out[j].Package
	})

	return out
}
