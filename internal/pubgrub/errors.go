package pubgrub

import "fmt"

// NoSolutionError reports that no assignment of versions satisfies every
// requirement; Conflict is the root incompatibility conflict analysis
// traced the failure back to, the entry point for the diagnostic reporter
// (internal/pubgrub/report) to walk its Cause tree and explain why.
type NoSolutionError struct {
	Conflict *Incompatibility
}

// NewNoSolutionError wraps conflict. Grounded on contriboss/pubgrub-go's
// NewNoSolutionError, minus the ecosystem-agnostic Source indirection.
func NewNoSolutionError(conflict *Incompatibility) *NoSolutionError {
	return &NoSolutionError{Conflict: conflict}
}

func (e *NoSolutionError) Error() string {
	return fmt.Sprintf("no version of %s satisfies every requirement", describeConflictSubject(e.Conflict))
}

// describeConflictSubject names the package the conflict is ultimately
// about, for the one-line summary; the full derivation lives in Conflict
// itself for callers that want to render it.
func describeConflictSubject(inc *Incompatibility) string {
	for _, t := range inc.Terms {
		if t.Name != RootName {
			return t.Name.String()
		}
	}

	return "the requested packages"
}

// PackageNotFoundError reports that the registry has no project by this
// name at all, as distinct from having no version matching the current
// constraints.
type PackageNotFoundError struct {
	Name Name
}

func (e *PackageNotFoundError) Error() string {
	return fmt.Sprintf("package %s not found", e.Name)
}

// PackageVersionNotFoundError reports that the registry knows the project
// but the candidate selector was exhausted without finding a version
// matching the current constraints.
type PackageVersionNotFoundError struct {
	Name Name
}

func (e *PackageVersionNotFoundError) Error() string {
	return fmt.Sprintf("no matching version found for %s", e.Name)
}
