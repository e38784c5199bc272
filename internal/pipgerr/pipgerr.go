// Package pipgerr collects the typed error kinds every pipg component wraps
// its failures in, generalizing the retryableError{err error} pattern
// internal/pypi, internal/downloader, and internal/registry each reimplement
// on their own: a thin struct around the underlying error, an Unwrap method
// so errors.As/errors.Is keep seeing through it, and nothing else. cmd/pipg
// maps each kind to an exit code; it never inspects error strings.
package pipgerr

import (
	"errors"
	"fmt"

	"github.com/bilusteknoloji/pipg/internal/pubgrub"
)

// UserInputError wraps a malformed requirement, CLI flag, or config value —
// something only a human can fix, never worth retrying.
type UserInputError struct {
	err error
}

func NewUserInputError(err error) *UserInputError { return &UserInputError{err: err} }

func (e *UserInputError) Error() string { return fmt.Sprintf("invalid input: %s", e.err) }
func (e *UserInputError) Unwrap() error { return e.err }

// NetworkError wraps a transport-level failure reaching an index — a dial
// failure, a reset connection, or a timeout. Timeout is set when the
// underlying error is (or wraps) a context deadline/timeout, since a caller
// may want to retry those differently than a hard connection refusal.
type NetworkError struct {
	err     error
	Timeout bool
}

func NewNetworkError(err error, timeout bool) *NetworkError {
	return &NetworkError{err: err, Timeout: timeout}
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %s", e.err) }
func (e *NetworkError) Unwrap() error { return e.err }

// IndexError wraps a non-2xx response from a package index, carrying the
// status code so a caller can distinguish 401/403 (authentication) from 404
// (not found) from 5xx (retryable) without re-parsing the error string.
type IndexError struct {
	err    error
	Status int
}

func NewIndexError(err error, status int) *IndexError {
	return &IndexError{err: err, Status: status}
}

func (e *IndexError) Error() string { return fmt.Sprintf("index returned status %d: %s", e.Status, e.err) }
func (e *IndexError) Unwrap() error { return e.err }

// CacheError wraps a failure reading or writing the on-disk metadata or
// wheel cache — a corrupt entry, a permissions problem, a failed rename.
type CacheError struct {
	err error
}

func NewCacheError(err error) *CacheError { return &CacheError{err: err} }

func (e *CacheError) Error() string { return fmt.Sprintf("cache error: %s", e.err) }
func (e *CacheError) Unwrap() error { return e.err }

// MetadataError wraps a failure parsing a project's declared metadata —
// malformed core metadata, an unparseable Requires-Dist entry, a filename
// that doesn't match any known wheel/sdist convention.
type MetadataError struct {
	err error
}

func NewMetadataError(err error) *MetadataError { return &MetadataError{err: err} }

func (e *MetadataError) Error() string { return fmt.Sprintf("metadata error: %s", e.err) }
func (e *MetadataError) Unwrap() error { return e.err }

// ResolutionError wraps a pubgrub.NoSolutionError, carrying the conflict
// witness alongside it so a caller can hand it straight to
// internal/pubgrub/report.Explain without re-unwrapping.
type ResolutionError struct {
	err        error
	Derivation *pubgrub.Incompatibility
}

func NewResolutionError(err error, derivation *pubgrub.Incompatibility) *ResolutionError {
	return &ResolutionError{err: err, Derivation: derivation}
}

func (e *ResolutionError) Error() string { return fmt.Sprintf("resolution failed: %s", e.err) }
func (e *ResolutionError) Unwrap() error { return e.err }

// PolicyError wraps a request that was well-formed and resolvable in
// principle but ruled out by active policy — prereleases disabled, source
// builds disabled, an index excluded by --index-strategy.
type PolicyError struct {
	err error
}

func NewPolicyError(err error) *PolicyError { return &PolicyError{err: err} }

func (e *PolicyError) Error() string { return fmt.Sprintf("policy violation: %s", e.err) }
func (e *PolicyError) Unwrap() error { return e.err }

// Exit codes mapped from err's kind, per cmd/pipg's contract: 0 on success
// (ExitCode(nil)), 1 for a resolution failure, 2 for everything else a user
// or their environment is responsible for.
const (
	ExitSuccess           = 0
	ExitResolutionFailure = 1
	ExitUserOrEnvironment = 2
)

// ExitCode classifies err into the process exit code cmd/pipg should return.
// A *ResolutionError maps to ExitResolutionFailure; every other typed kind
// here (and anything unrecognized) maps to ExitUserOrEnvironment, matching
// spec's two-way split between "the request has no solution" and
// "something about the request, the network, or the machine is wrong."
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var re *ResolutionError
	if errors.As(err, &re) {
		return ExitResolutionFailure
	}

	return ExitUserOrEnvironment
}
