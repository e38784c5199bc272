package pubgrub

import (
	"fmt"

	"github.com/bilusteknoloji/pipg/internal/pypiver"
)

// assignment records one step of the partial solution: either a decision
// (the solver picked a concrete version for a package) or a derivation (the
// solver inferred a constraint from unit propagation). Grounded on
// contriboss/pubgrub-go's assignment/decision/derivation split.
type assignment struct {
	name          Name
	term          Term
	decision      bool
	decisionLevel int
	cause         *Incompatibility // nil for decisions
	value         pypiver.Version  // the concrete version chosen; only meaningful when decision is true and name != RootName
}

func (a *assignment) isDecision() bool { return a.decision }

func (a *assignment) describe() string {
	if a.decision {
		return fmt.Sprintf("decided %s", a.term)
	}

	return fmt.Sprintf("derived %s", a.term)
}
