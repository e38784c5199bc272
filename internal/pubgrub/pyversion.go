package pubgrub

import (
	"fmt"

	"github.com/bilusteknoloji/pipg/internal/pypiver"
)

// seedPythonVersion pins PythonName to the single concrete interpreter
// version Solve is resolving for, turning every requires-python constraint
// collected along the way into an ordinary dependency incompatibility
// against a package that's already decided — the same "python is a
// pseudo-package with one fixed version" trick uv's resolver markers use
// requires-python against, rather than resolving an interpreter the way a
// real package gets resolved.
func seedPythonVersion(st *solverState, pythonVersion string) error {
	if pythonVersion == "" {
		return fmt.Errorf("pubgrub: solving requires a target Python version (SolverOptions.Env.PythonVersion)")
	}

	v, err := pypiver.Parse(pythonVersion)
	if err != nil {
		return fmt.Errorf("parsing target Python version %q: %w", pythonVersion, err)
	}

	dec := st.partial.addDecision(PythonName, pypiver.Exactly(v))
	dec.value = v

	return nil
}
