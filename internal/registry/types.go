// Package registry implements the Simple Repository API client: index
// discovery, per-project detail, and wheel metadata retrieval, with a
// content-addressed revalidating cache and multi-index search strategies.
package registry

// File is one downloadable distribution listed in a project's Simple
// detail document (PEP 503/PEP 691).
type File struct {
	Filename          string
	URL               string
	Hashes            map[string]string
	RequiresPython    string
	Yanked            bool
	YankedReason      string
	Size              int64
	DistInfoMetadata  bool              // PEP 658: a sidecar METADATA file exists
	MetadataHashes    map[string]string // hashes of the sidecar, if published
	PackageType       string            // "bdist_wheel" or "sdist", derived from the filename
}

// ProjectIndex is a project's Simple detail document: every file PyPI (or
// another index) has ever published for it.
type ProjectIndex struct {
	Name  string
	Files []File
}

// IndexEntry is one project name from an index's root listing.
type IndexEntry struct {
	Name string
}

// IndexCapabilities describes per-index quirks the status-code decision
// strategy needs, since not every index speaks the Simple API the same way
// (spec.md §9's open question about PyTorch-style indexes answering 403 for
// "not found" instead of 404).
type IndexCapabilities struct {
	// TreatForbiddenAsNotFound makes a 403 response equivalent to 404,
	// for indexes (e.g. some private PyTorch mirrors) that reject
	// unknown projects with Forbidden instead of Not Found.
	TreatForbiddenAsNotFound bool
}

// Decision is the outcome of evaluating an HTTP status code against an
// index's capabilities.
type Decision int

const (
	// DecisionOK means the response body should be used.
	DecisionOK Decision = iota
	// DecisionNotFound means the project or file doesn't exist on this index.
	DecisionNotFound
	// DecisionRetryable means the request failed transiently and should be retried.
	DecisionRetryable
	// DecisionFatal means the request failed in a way retrying won't fix.
	DecisionFatal
)

// Index identifies one configured package index by its Simple API base URL.
type Index struct {
	URL          string
	Capabilities IndexCapabilities
}
