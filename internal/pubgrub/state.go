package pubgrub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bilusteknoloji/pipg/internal/markers"
	"github.com/bilusteknoloji/pipg/internal/pypiver"
)

// SolverOptions configures one Solve call. Grounded on
// contriboss/pubgrub-go's SolverOptions (a logger plus a
// track-incompatibilities flag), extended with the marker environment this
// module's Source needs that the pack's ecosystem-agnostic solver has no
// equivalent for. The candidate-selection policy is carried by Request, not
// here.
type SolverOptions struct {
	Logger                 *slog.Logger
	TrackIncompatibilities bool
	Env                    markers.Environment
}

// solverState maintains all mutable state during CDCL-based dependency
// resolution: the partial solution, every incompatibility learned or
// declared so far (indexed by the packages it mentions, for fast
// propagation lookup), and the unit-propagation worklist. Grounded on
// contriboss/pubgrub-go's solverState.
type solverState struct {
	source            versionSource
	options           SolverOptions
	partial           *partialSolution
	incompatibilities map[Name][]*Incompatibility
	learned           []*Incompatibility
	queue             []Name
	queued            map[Name]bool
}

func newSolverState(source versionSource, options SolverOptions) *solverState {
	return &solverState{
		source:            source,
		options:           options,
		partial:           newPartialSolution(),
		incompatibilities: make(map[Name][]*Incompatibility),
		queued:            make(map[Name]bool),
	}
}

func (st *solverState) enqueue(name Name) {
	if st.queued[name] {
		return
	}

	st.queue = append(st.queue, name)
	st.queued[name] = true
}

func (st *solverState) dequeue() (Name, bool) {
	if len(st.queue) == 0 {
		return Name{}, false
	}

	name := st.queue[0]
	st.queue = st.queue[1:]
	delete(st.queued, name)

	return name, true
}

// addIncompatibility registers inc against every package it mentions, so
// propagate only ever has to look at incompatibilities relevant to the
// package that just changed.
func (st *solverState) addIncompatibility(inc *Incompatibility) {
	for _, t := range inc.Terms {
		st.incompatibilities[t.Name] = append(st.incompatibilities[t.Name], inc)
	}

	if st.options.TrackIncompatibilities {
		st.learned = append(st.learned, inc)
	}
}

// pickNextPackage chooses which undecided package to try next: the one
// with the fewest remaining candidates under its currently accumulated
// allowed set, breaking ties by name for determinism. Returns ok=false once
// nothing is left positively undecided.
func (st *solverState) pickNextPackage(ctx context.Context) (Name, bool, error) {
	candidates := st.partial.positiveUndecidedNames()
	if len(candidates) == 0 {
		return Name{}, false, nil
	}

	best := candidates[0]

	bestCount, err := st.source.remainingCount(ctx, best, st.partial.allowedSet(best))
	if err != nil {
		return Name{}, false, err
	}

	for _, name := range candidates[1:] {
		count, err := st.source.remainingCount(ctx, name, st.partial.allowedSet(name))
		if err != nil {
			return Name{}, false, err
		}

		if count < bestCount || (count == bestCount && name.String() < best.String()) {
			best, bestCount = name, count
		}
	}

	return best, true, nil
}

func (st *solverState) debug(msg string, args ...any) {
	if st.options.Logger == nil {
		return
	}

	st.options.Logger.Debug(msg, args...)
}

// propagate runs unit propagation to a fixed point starting from start (or
// from whatever's already queued, if start is the zero Name), deriving new
// constraints until nothing changes or a conflict is found. Grounded on
// contriboss/pubgrub-go's propagate.
func (st *solverState) propagate(start Name) (*Incompatibility, error) {
	if start != (Name{}) {
		st.enqueue(start)
	}

	for {
		pkg, ok := st.dequeue()
		if !ok {
			return nil, nil
		}

		for _, inc := range st.incompatibilities[pkg] {
			relation, unsatisfied, err := st.evaluateIncompatibility(inc)
			if err != nil {
				return nil, err
			}

			switch relation {
			case relationSatisfied:
				st.debug("conflict detected during propagation", "package", pkg.String(), "incompatibility", inc.String())

				return inc, nil
			case relationAlmostSatisfied:
				if unsatisfied == nil {
					continue
				}

				derived := unsatisfied.Negate()

				assign, changed, err := st.partial.addDerivation(derived, inc)
				if errors.Is(err, errNoAllowedVersions) {
					return inc, nil
				}

				if err != nil {
					return nil, err
				}

				if changed && assign != nil {
					st.enqueue(assign.name)
				}
			case relationContradicted, relationInconclusive:
				// nothing to derive
			}
		}
	}
}

// incompatibilityRelation describes how an incompatibility relates to the
// current partial solution.
type incompatibilityRelation int

const (
	relationSatisfied       incompatibilityRelation = iota // every term holds: a conflict
	relationAlmostSatisfied                                // every term but one holds: unit propagation fires
	relationContradicted                                   // some term can never hold given current assignments
	relationInconclusive                                   // more than one term is still undecided
)

// evaluateIncompatibility classifies inc against the partial solution,
// returning the one remaining unsatisfied term when relationAlmostSatisfied.
func (st *solverState) evaluateIncompatibility(inc *Incompatibility) (incompatibilityRelation, *Term, error) {
	var unsatisfied *Term

	for i := range inc.Terms {
		term := inc.Terms[i]
		allowed := st.partial.allowedSet(term.Name)

		rel := relationForTerm(term, allowed, st.partial.hasAssignments(term.Name))

		switch rel {
		case relationContradicted:
			return relationContradicted, nil, nil
		case relationSatisfied:
			continue
		default: // relationInconclusive; relationForTerm never yields relationAlmostSatisfied itself
			if unsatisfied != nil {
				return relationInconclusive, nil, nil
			}

			unsatisfied = &inc.Terms[i]
		}
	}

	if unsatisfied == nil {
		return relationSatisfied, nil, nil
	}

	return relationAlmostSatisfied, unsatisfied, nil
}

// relationForTerm classifies a single term against the accumulated allowed
// set for its package. Positive and negative terms are NOT symmetric here:
// a negative term can be "satisfied" (the partial solution already
// excludes every version it forbids) without any assignment existing for
// that package at all, since "no assignment" trivially satisfies a
// forbids-term; a positive term needs an actual assignment to count as
// satisfied, since "no assignment" means "not yet known to hold."
// Grounded on contriboss/pubgrub-go's relationForTerm.
func relationForTerm(term Term, allowed pypiver.Set, hasAssignment bool) incompatibilityRelation {
	required := termAllowed(term)

	if term.Positive {
		if pypiver.IsSubset(allowed, required) {
			if hasAssignment {
				return relationSatisfied
			}

			return relationInconclusive
		}

		if pypiver.IsDisjoint(allowed, required) {
			return relationContradicted
		}

		return relationInconclusive
	}

	// term is negative: required == Complement(term.Set), i.e. the versions
	// that don't violate the forbids-term.
	forbidden := termAllowed(term.Negate())
	if pypiver.IsDisjoint(allowed, forbidden) {
		return relationSatisfied
	}

	if pypiver.IsSubset(allowed, forbidden) {
		if hasAssignment {
			return relationContradicted
		}

		return relationInconclusive
	}

	return relationInconclusive
}

// registerDependencies adds one dependency incompatibility per term in deps
// (all originating from pkg@version), applying each as a constraint
// immediately so a conflict surfaces as soon as possible instead of waiting
// for the next propagation round.
func (st *solverState) registerDependencies(pkg Name, version pypiver.Version, deps []Term) (*Incompatibility, error) {
	parentSet := pypiver.Exactly(version)

	for _, dep := range deps {
		inc := NewIncompatibilityFromDependency(pkg, parentSet, dep)
		st.addIncompatibility(inc)

		conflict, err := st.applyConstraint(dep, inc)
		if err != nil {
			return nil, err
		}

		if conflict != nil {
			return conflict, nil
		}
	}

	return nil, nil
}

// applyConstraint derives term into the partial solution, converting a
// resulting empty allowed set into a conflict incompatibility rather than
// propagating the raw error further: the conflict carries cause's terms
// (which the partial solution now satisfies) and records a KindNoVersions
// incompatibility for term as one of its two causes.
func (st *solverState) applyConstraint(term Term, cause *Incompatibility) (*Incompatibility, error) {
	assign, _, err := st.partial.addDerivation(term, cause)
	if errors.Is(err, errNoAllowedVersions) {
		base := NewIncompatibilityNoVersions(term)
		if cause == nil {
			return base, nil
		}

		terms := make([]Term, 0, len(cause.Terms))
		terms = append(terms, cause.Terms...)

		return NewIncompatibilityConflict(terms, base, cause), nil
	}

	if err != nil {
		return nil, err
	}

	if assign != nil {
		st.enqueue(assign.name)
	}

	return nil, nil
}

// pickVersion asks the source for the next candidate version still allowed
// for name, or ok=false if the source has nothing left to offer (not itself
// an error — the caller turns that into a KindNoVersions incompatibility
// over name's allowed set and propagates it).
func (st *solverState) pickVersion(ctx context.Context, name Name) (pypiver.Version, bool, error) {
	allowed := st.partial.allowedSet(name)
	if allowed.IsEmpty() {
		return pypiver.Version{}, false, nil
	}

	return st.source.next(ctx, name, allowed)
}

// resolveConflict performs CDCL conflict analysis: walk backward from the
// conflicting incompatibility through the partial solution's assignments,
// resolving it against each satisfier's cause, until either the conflict
// traces back to a root-level decision (NoSolutionError) or a decision
// whose previous satisfier level is strictly earlier, at which point the
// solver backtracks to that level and learns the resolved incompatibility.
// Grounded on contriboss/pubgrub-go's resolveConflict.
func (st *solverState) resolveConflict(conflict *Incompatibility) (Name, error) {
	for {
		satisfier := st.partial.satisfier(conflict)
		if satisfier == nil {
			return Name{}, NewNoSolutionError(conflict)
		}

		prevLevel := st.partial.previousDecisionLevel(conflict, satisfier)
		if prevLevel < 0 {
			// Only facts recorded before the root decision itself (level -1)
			// could produce this; there's no decision to backtrack to below
			// root, so treat it the same as level 0.
			prevLevel = 0
		}

		if satisfier.decisionLevel <= 0 && satisfier.isDecision() {
			return Name{}, NewNoSolutionError(conflict)
		}

		if satisfier.isDecision() && prevLevel < satisfier.decisionLevel {
			st.partial.backtrack(prevLevel)
			st.debug("backtracked after conflict",
				"pivot", satisfier.name.String(),
				"target_level", prevLevel,
				"learned", conflict.String(),
			)
			st.addIncompatibility(conflict)

			return satisfier.name, nil
		}

		if satisfier.cause == nil {
			return Name{}, fmt.Errorf("pubgrub: derived assignment for %s has no cause", satisfier.name)
		}

		conflict = resolveIncompatibility(conflict, satisfier.cause, satisfier.name)
	}
}
