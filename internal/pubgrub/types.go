// Package pubgrub implements a PubGrub-derived unit-propagation /
// conflict-driven-clause-learning dependency solver over the PEP 440
// version-set algebra in internal/pypiver, replacing the teacher's
// breadth-first internal/resolver.Service.Resolve with a solver that
// backtracks instead of failing on the first conflict it meets.
//
// Grounded on contriboss/pubgrub-go's state.go/types.go: the package,
// term, incompatibility, and partial-solution vocabulary is kept close to
// that implementation's shape, renamed into this module's terms and bound
// directly to pypiver.Set rather than to that package's ecosystem-agnostic
// VersionSetConverter interface, since this solver only ever resolves one
// ecosystem.
package pubgrub

import (
	"fmt"

	"github.com/bilusteknoloji/pipg/internal/pypiver"
)

// Name identifies one solver-level package: either a plain project, an
// extra variant of a project (pkg[extra] is a distinct Name from pkg, not
// an alias of it), or the "python" pseudo-package requires-python terms are
// translated onto (see pyversion.go).
type Name struct {
	Package string
	Extra   string
}

// RootName is the synthetic package representing the user's direct
// requirements; it is always "installed" at a single fictitious version so
// every root requirement can be expressed the same way as any other
// dependency incompatibility.
var RootName = Name{Package: "<root>"}

// PythonName is the pseudo-package every requires-python constraint is
// translated onto, per spec.md's "Python-as-pseudo-package" design.
var PythonName = Name{Package: "python"}

func (n Name) String() string {
	if n.Extra == "" {
		return n.Package
	}

	return fmt.Sprintf("%s[%s]", n.Package, n.Extra)
}

// IsExtra reports whether n names an extra variant of a base package.
func (n Name) IsExtra() bool { return n.Extra != "" }

// Base returns the bare package Name, dropping any extra.
func (n Name) Base() Name { return Name{Package: n.Package} }

// Term is a single constraint on a package: either "Name's version must lie
// in Set" (Positive) or "Name's version must not lie in Set" (!Positive).
// Unlike the pack's ecosystem-agnostic Condition/VersionSetConverter split,
// Term holds a pypiver.Set directly — there is only one version algebra in
// this solver, so the indirection would exist only to satisfy a pattern.
type Term struct {
	Name     Name
	Positive bool
	Set      pypiver.Set
}

// Negate returns the logical negation of t.
func (t Term) Negate() Term {
	return Term{Name: t.Name, Positive: !t.Positive, Set: t.Set}
}

func (t Term) String() string {
	if t.Positive {
		return fmt.Sprintf("%s requires %s", t.Name, describeSet(t.Set))
	}

	return fmt.Sprintf("%s forbids %s", t.Name, describeSet(t.Set))
}

func describeSet(s pypiver.Set) string {
	if s.IsEmpty() {
		return "no versions"
	}

	return "a version set"
}

// mergeTerms combines two terms naming the same package during conflict
// resolution: two positive terms intersect their allowed sets (both must
// hold at once), two negative terms union their forbidden sets (either
// forbidding is enough to exclude a version). Terms of different polarity
// don't merge algebraically, matching contriboss/pubgrub-go's mergeTerms.
func mergeTerms(a, b Term) (Term, bool) {
	if a.Name != b.Name {
		return Term{}, false
	}

	switch {
	case a.Positive && b.Positive:
		return Term{Name: a.Name, Positive: true, Set: pypiver.Intersect(a.Set, b.Set)}, true
	case !a.Positive && !b.Positive:
		return Term{Name: a.Name, Positive: false, Set: pypiver.Union(a.Set, b.Set)}, true
	default:
		return Term{}, false
	}
}

// IncompatibilityKind records why an Incompatibility exists, for the
// diagnostic reporter (internal/pubgrub/report) to render a human-readable
// derivation tree.
type IncompatibilityKind int

const (
	// KindRoot is the synthetic incompatibility asserting the root
	// package's direct requirements.
	KindRoot IncompatibilityKind = iota
	// KindDependency states that a package version depends on a term.
	KindDependency
	// KindNoVersions states that no version satisfies a positive term at
	// all (the candidate selector was exhausted).
	KindNoVersions
	// KindConflict is a learned incompatibility, derived by resolving two
	// others during conflict analysis.
	KindConflict
)

// IncompatibilityCause links a learned (KindConflict) incompatibility back
// to the two incompatibilities it was resolved from, forming the
// derivation tree the reporter walks.
type IncompatibilityCause struct {
	Left, Right *Incompatibility
}

// Incompatibility is a set of terms that cannot all hold simultaneously —
// the solver's fundamental unit of knowledge, whether stated directly from
// a package's metadata (KindDependency) or learned during conflict
// resolution (KindConflict).
type Incompatibility struct {
	Terms []Term
	Kind  IncompatibilityKind
	Cause *IncompatibilityCause
}

func (i *Incompatibility) String() string {
	parts := make([]string, 0, len(i.Terms))
	for _, t := range i.Terms {
		parts = append(parts, t.String())
	}

	return fmt.Sprintf("{%v}", parts)
}

// termAt returns the term in i naming pkg, if any.
func (i *Incompatibility) termAt(pkg Name) (Term, bool) {
	for _, t := range i.Terms {
		if t.Name == pkg {
			return t, true
		}
	}

	return Term{}, false
}

// NewIncompatibilityRoot asserts the root package's own presence: a
// negative term over RootName with a set containing the single fictitious
// root "version," used as the base fact every direct-requirement
// incompatibility implicitly depends on.
func NewIncompatibilityRoot() *Incompatibility {
	return &Incompatibility{
		Terms: []Term{{Name: RootName, Positive: false, Set: pypiver.Full()}},
		Kind:  KindRoot,
	}
}

// NewIncompatibilityFromDependency builds "parent (at parentSet) requires
// dep" as an incompatibility: ¬(parent ∧ ¬dep), i.e. {parent positive
// parentSet, dep negated}.
func NewIncompatibilityFromDependency(parent Name, parentSet pypiver.Set, dep Term) *Incompatibility {
	return &Incompatibility{
		Terms: []Term{
			{Name: parent, Positive: true, Set: parentSet},
			dep.Negate(),
		},
		Kind: KindDependency,
	}
}

// NewIncompatibilityNoVersions asserts that term's positive form can never
// hold: the candidate selector produced no matching version at all.
func NewIncompatibilityNoVersions(term Term) *Incompatibility {
	positive := term
	positive.Positive = true

	return &Incompatibility{Terms: []Term{positive}, Kind: KindNoVersions}
}

// NewIncompatibilityConflict builds a learned incompatibility from conflict
// resolution, recording the two incompatibilities it was derived from.
func NewIncompatibilityConflict(terms []Term, left, right *Incompatibility) *Incompatibility {
	return &Incompatibility{Terms: terms, Kind: KindConflict, Cause: &IncompatibilityCause{Left: left, Right: right}}
}

// resolveIncompatibility merges conflict and cause, dropping pkg's term
// from both and keeping the union of everything else (merging terms that
// mention the same package), per contriboss/pubgrub-go's
// resolveIncompatibility. This is CDCL's learned-clause generation step.
func resolveIncompatibility(conflict, cause *Incompatibility, pkg Name) *Incompatibility {
	terms := make(map[Name]Term)

	var order []Name

	for _, t := range conflict.Terms {
		if t.Name == pkg {
			continue
		}

		terms[t.Name] = t

		order = append(order, t.Name)
	}

	for _, t := range cause.Terms {
		if t.Name == pkg {
			continue
		}

		if existing, ok := terms[t.Name]; ok {
			if merged, ok := mergeTerms(existing, t); ok {
				terms[t.Name] = merged

				continue
			}
		} else {
			order = append(order, t.Name)
		}

		terms[t.Name] = t
	}

	merged := make([]Term, 0, len(order))
	for _, name := range order {
		merged = append(merged, terms[name])
	}

	return NewIncompatibilityConflict(merged, conflict, cause)
}
