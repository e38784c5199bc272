package pubgrub

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bilusteknoloji/pipg/internal/pypiver"
)

// errNoAllowedVersions is returned by addDerivation when intersecting a new
// term into a package's accumulated constraints leaves no version allowed
// at all — the caller turns this into a KindNoVersions conflict.
var errNoAllowedVersions = errors.New("no versions allowed")

// partialSolution is the solver's working memory: every decision and
// derivation made so far, in chronological order, plus which packages have
// already been decided. Grounded on contriboss/pubgrub-go's partialSolution
// (assignments + decision-level bookkeeping), simplified to recompute a
// package's accumulated allowed set by scanning its assignments rather than
// maintaining an incremental cache — resolution graphs in this domain are
// small enough that the clarity is worth more than the constant factor.
type partialSolution struct {
	assignments   []*assignment
	decisionLevel int
	decided       map[Name]bool
}

func newPartialSolution() *partialSolution {
	// decisionLevel starts at -1 so the first addDecision call (always the
	// root package) lands at level 0, matching the convention resolveConflict
	// relies on to recognize a root-level (unsolvable) conflict.
	return &partialSolution{decided: make(map[Name]bool), decisionLevel: -1}
}

// termAllowed returns the version set a term actually permits: Set itself
// for a positive term, its complement for a negative one.
func termAllowed(t Term) pypiver.Set {
	if t.Positive {
		return t.Set
	}

	return pypiver.Complement(t.Set)
}

// hasAssignments reports whether any assignment mentions name.
func (ps *partialSolution) hasAssignments(name Name) bool {
	for _, a := range ps.assignments {
		if a.name == name {
			return true
		}
	}

	return false
}

// allowedSet is the intersection of every term recorded for name so far;
// Full() if name has never been mentioned.
func (ps *partialSolution) allowedSet(name Name) pypiver.Set {
	return ps.prefixAllowed(len(ps.assignments), name)
}

// prefixAllowed is allowedSet restricted to the first upto assignments, the
// building block satisfier/previousDecisionLevel walk forward over.
func (ps *partialSolution) prefixAllowed(upto int, name Name) pypiver.Set {
	allowed := pypiver.Full()

	for i := 0; i < upto; i++ {
		a := ps.assignments[i]
		if a.name != name {
			continue
		}

		allowed = pypiver.Intersect(allowed, termAllowed(a.term))
	}

	return allowed
}

// addDerivation records a constraint inferred by unit propagation. Returns
// errNoAllowedVersions if term leaves the package's accumulated set empty;
// changed reports whether the set actually narrowed, so the caller knows
// whether re-propagating from this package could derive anything new.
func (ps *partialSolution) addDerivation(term Term, cause *Incompatibility) (a *assignment, changed bool, err error) {
	before := ps.allowedSet(term.Name)
	after := pypiver.Intersect(before, termAllowed(term))

	if after.IsEmpty() {
		return nil, false, errNoAllowedVersions
	}

	a = &assignment{name: term.Name, term: term, decisionLevel: ps.decisionLevel, cause: cause}
	ps.assignments = append(ps.assignments, a)

	return a, !pypiver.IsSubset(before, after), nil
}

// addDecision records that the solver chose set (typically a single exact
// version) for name, starting a new decision level.
func (ps *partialSolution) addDecision(name Name, set pypiver.Set) *assignment {
	ps.decisionLevel++

	a := &assignment{
		name:          name,
		term:          Term{Name: name, Positive: true, Set: set},
		decision:      true,
		decisionLevel: ps.decisionLevel,
	}
	ps.assignments = append(ps.assignments, a)
	ps.decided[name] = true

	return a
}

// positiveUndecidedNames returns every distinct package some derivation
// positively requires but that hasn't been decided yet, in first-seen
// order. solverState.pickNextPackage ranks these by remaining candidate
// count to implement the documented decision heuristic; this type only
// collects the candidate set, since scoring them needs the version source.
func (ps *partialSolution) positiveUndecidedNames() []Name {
	var names []Name

	seen := make(map[Name]bool)

	for _, a := range ps.assignments {
		if !a.term.Positive || ps.decided[a.name] || seen[a.name] {
			continue
		}

		seen[a.name] = true
		names = append(names, a.name)
	}

	return names
}

// satisfier returns the earliest assignment after which inc became fully
// satisfied (every term true against the partial solution up to and
// including that assignment), or nil if inc is never fully satisfied by
// the current solution. This is the "most recent assignment that matters"
// used by conflict analysis to find where to backtrack to.
func (ps *partialSolution) satisfier(inc *Incompatibility) *assignment {
	for i := range ps.assignments {
		if ps.satisfiesAt(inc, i+1, Name{}) {
			return ps.assignments[i]
		}
	}

	return nil
}

// previousDecisionLevel finds the decision level at which every term in
// inc other than satisfier's own term was already satisfied — the level
// conflict resolution should backtrack to if satisfier turns out to be a
// genuine decision point.
func (ps *partialSolution) previousDecisionLevel(inc *Incompatibility, satisfier *assignment) int {
	satIndex := ps.indexOf(satisfier)
	if satIndex < 0 {
		return 0
	}

	for i := 0; i <= satIndex; i++ {
		if ps.satisfiesAt(inc, i+1, satisfier.name) {
			return ps.assignments[i].decisionLevel
		}
	}

	return 0
}

// satisfiesAt reports whether inc's terms are all satisfied by the
// assignment prefix [0, upto), ignoring the term for skip (used to exclude
// the pivot package while probing for when the *other* terms became true).
// Uses the same relationForTerm classification evaluateIncompatibility uses
// against the live partial solution, replayed against a historical prefix,
// so a term is never considered satisfied just because nothing has
// constrained its package yet.
func (ps *partialSolution) satisfiesAt(inc *Incompatibility, upto int, skip Name) bool {
	for _, t := range inc.Terms {
		if t.Name == skip {
			continue
		}

		allowed := ps.prefixAllowed(upto, t.Name)
		if relationForTerm(t, allowed, ps.prefixHasAssignment(upto, t.Name)) != relationSatisfied {
			return false
		}
	}

	return true
}

// prefixHasAssignment reports whether any of the first upto assignments
// mentions name.
func (ps *partialSolution) prefixHasAssignment(upto int, name Name) bool {
	for i := 0; i < upto; i++ {
		if ps.assignments[i].name == name {
			return true
		}
	}

	return false
}

func (ps *partialSolution) indexOf(a *assignment) int {
	for i, other := range ps.assignments {
		if other == a {
			return i
		}
	}

	return -1
}

// backtrack discards every assignment made at a decision level deeper than
// level, restoring the solver to the state it was in right after making
// the decision at level.
func (ps *partialSolution) backtrack(level int) {
	kept := ps.assignments[:0]
	decided := make(map[Name]bool)

	for _, a := range ps.assignments {
		if a.decisionLevel > level {
			continue
		}

		kept = append(kept, a)

		if a.decision {
			decided[a.name] = true
		}
	}

	ps.assignments = kept
	ps.decisionLevel = level
	ps.decided = decided
}

func (ps *partialSolution) snapshot() string {
	var b strings.Builder

	for _, a := range ps.assignments {
		fmt.Fprintf(&b, "[L%d %s] ", a.decisionLevel, a.describe())
	}

	return b.String()
}

// decisions returns every package decided so far with its chosen version
// set, in decision order — the raw material for the resolution graph
// (internal/graph) to build nodes from.
func (ps *partialSolution) decisions() []*assignment {
	var out []*assignment

	for _, a := range ps.assignments {
		if a.decision {
			out = append(out, a)
		}
	}

	return out
}
