// Package pypiver implements the PEP 440 version and specifier algebra: parsing,
// total ordering, and a version set representing specifiers as a canonical
// union of half-open intervals closed under union, intersection, and
// complement.
package pypiver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

// Version wraps a parsed PEP 440 version. Ordering and equality delegate to
// go-pep440-version; the release segments are additionally decomposed so the
// specifier algebra can compute "next release" boundaries for `~=` and
// `==X.*` without reparsing strings on every comparison.
type Version struct {
	raw     string
	v       pep440.Version
	epoch   int
	release []int
}

// releasePattern extracts the epoch and release segments from a PEP 440
// version string; the remaining pre/post/dev/local qualifiers are left to
// go-pep440-version for ordering.
var releasePattern = regexp.MustCompile(`^(?:([0-9]+)!)?([0-9]+(?:\.[0-9]+)*)`)

// Parse parses a PEP 440 version string.
func Parse(s string) (Version, error) {
	v, err := pep440.Parse(s)
	if err != nil {
		return Version{}, fmt.Errorf("parsing version %q: %w", s, err)
	}

	epoch, release, err := parseRelease(s)
	if err != nil {
		return Version{}, err
	}

	return Version{raw: s, v: v, epoch: epoch, release: release}, nil
}

func parseRelease(s string) (int, []int, error) {
	m := releasePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, nil, fmt.Errorf("parsing version %q: no release segment", s)
	}

	epoch := 0

	if m[1] != "" {
		var err error

		epoch, err = strconv.Atoi(m[1])
		if err != nil {
			return 0, nil, fmt.Errorf("parsing epoch in %q: %w", s, err)
		}
	}

	parts := strings.Split(m[2], ".")
	release := make([]int, len(parts))

	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, nil, fmt.Errorf("parsing release segment in %q: %w", s, err)
		}

		release[i] = n
	}

	return epoch, release, nil
}

// String returns the original version string.
func (v Version) String() string { return v.raw }

// Compare returns <0, 0, >0 as v is less than, equal to, or greater than other.
func (v Version) Compare(other Version) int {
	return v.v.Compare(other.v)
}

// LessThan reports whether v orders strictly before other.
func (v Version) LessThan(other Version) bool { return v.Compare(other) < 0 }

// Equal reports whether v and other are the same version.
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }

// IsPrerelease reports whether v has a pre or dev component (any_prerelease()
// per the spec's data model).
func (v Version) IsPrerelease() bool { return v.v.IsPreRelease() }

// releasePrefix returns the first n release segments, zero-padded.
func (v Version) releasePrefix(n int) []int {
	out := make([]int, n)
	copy(out, v.release)

	return out
}

// nextAfterPrefix returns the version formed by incrementing the n-th release
// segment (0-indexed) and truncating everything after it, used to compute the
// exclusive upper bound for `~=` and `==X.*` specifiers. For example
// nextAfterPrefix(1) on "1.4.2" yields "1.5".
func (v Version) nextAfterPrefix(n int) (Version, error) {
	segs := v.releasePrefix(n + 1)
	segs[n]++

	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = strconv.Itoa(s)
	}

	raw := strings.Join(parts, ".")
	if v.epoch != 0 {
		raw = strconv.Itoa(v.epoch) + "!" + raw
	}

	return Parse(raw)
}
