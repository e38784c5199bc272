package pypiver

import "sort"

// endpoint is one side of an interval boundary. A nil version means
// unbounded (-infinity when used as a lower bound, +infinity when used as an
// upper bound). open means the boundary excludes its own version (strict
// inequality); it is unbounded-agnostic so the same type serves as both a
// min and a max endpoint.
type endpoint struct {
	version *Version
	open    bool
}

func unbounded() endpoint       { return endpoint{} }
func closedAt(v Version) endpoint { return endpoint{version: &v, open: false} }
func openAt(v Version) endpoint   { return endpoint{version: &v, open: true} }
func (e endpoint) isInf() bool    { return e.version == nil }

// interval is a range between two endpoints, interpreted as
// {v : v satisfies min as a lower bound and max as an upper bound}.
type interval struct {
	min endpoint
	max endpoint
}

// validInterval reports whether the range is non-empty.
func validInterval(min, max endpoint) bool {
	if min.isInf() || max.isInf() {
		return true
	}

	c := min.version.Compare(*max.version)
	if c < 0 {
		return true
	}

	return c == 0 && !min.open && !max.open
}

// cmpBound orders two endpoints by version, treating unbounded as lower than
// every bounded endpoint: the right order for lower bounds. Callers that
// compare upper bounds check isInf themselves before calling it.
func cmpBound(a, b endpoint) int {
	switch {
	case a.isInf() && b.isInf():
		return 0
	case a.isInf():
		return -1
	case b.isInf():
		return 1
	default:
		return a.version.Compare(*b.version)
	}
}

// Set is a finite disjoint union of half-open-or-closed intervals over
// Version, canonicalized (sorted, non-overlapping, non-abutting) and closed
// under union, intersection, and complement (spec.md §3, §8 invariant 4).
type Set struct {
	intervals []interval
}

// Empty returns the unique empty set.
func Empty() Set { return Set{} }

// Full returns the set containing every version.
func Full() Set { return Set{intervals: []interval{{min: unbounded(), max: unbounded()}}} }

// AtLeast returns the set of versions >= v (or > v if !inclusive).
func AtLeast(v Version, inclusive bool) Set {
	min := openAt(v)
	if inclusive {
		min = closedAt(v)
	}

	return Set{intervals: []interval{{min: min, max: unbounded()}}}
}

// AtMost returns the set of versions <= v (or < v if !inclusive).
func AtMost(v Version, inclusive bool) Set {
	max := openAt(v)
	if inclusive {
		max = closedAt(v)
	}

	return Set{intervals: []interval{{min: unbounded(), max: max}}}
}

// Exactly returns the single-version set {v}.
func Exactly(v Version) Set {
	return Set{intervals: []interval{{min: closedAt(v), max: closedAt(v)}}}
}

// Range returns the versions between min and max, each inclusive unless its
// accompanying excl flag is set.
func Range(min Version, minExcl bool, max Version, maxExcl bool) Set {
	lo := closedAt(min)
	if minExcl {
		lo = openAt(min)
	}

	hi := closedAt(max)
	if maxExcl {
		hi = openAt(max)
	}

	if !validInterval(lo, hi) {
		return Empty()
	}

	return Set{intervals: []interval{{min: lo, max: hi}}}
}

// IsEmpty reports whether the set matches no versions.
func (s Set) IsEmpty() bool { return len(s.intervals) == 0 }

// canon sorts and merges overlapping/abutting intervals.
func (s Set) canon() Set {
	if len(s.intervals) <= 1 {
		return s
	}

	ivs := append([]interval(nil), s.intervals...)
	sort.Slice(ivs, func(i, j int) bool {
		c := cmpBound(ivs[i].min, ivs[j].min)
		if c != 0 {
			return c < 0
		}

		return !ivs[i].min.open && ivs[j].min.open
	})

	out := ivs[:0] //nolint:gocritic // intentional in-place compaction

	for _, cur := range ivs {
		if len(out) == 0 {
			out = append(out, cur)
			continue
		}

		last := &out[len(out)-1]

		if intervalsAdjoin(*last, cur) {
			if c := cmpBound(cur.max, last.max); !last.max.isInf() && (cur.max.isInf() || c > 0 || (c == 0 && !cur.max.open)) {
				last.max = cur.max
			}

			continue
		}

		out = append(out, cur)
	}

	return Set{intervals: out}
}

// intervalsAdjoin reports whether b starts at or before a's end, so the two
// overlap or touch and can be merged into a single span.
func intervalsAdjoin(a, b interval) bool {
	if a.max.isInf() {
		return true
	}

	c := cmpBound(b.min, a.max)
	if c < 0 {
		return true
	}

	if c == 0 {
		// Touching at exactly one version: mergeable unless both sides
		// exclude that version, leaving a genuine one-point gap.
		return !(b.min.open && a.max.open)
	}

	return false
}

// maxOfMins returns whichever of two lower-bound endpoints is more
// restrictive (i.e. the intersection's lower bound).
func maxOfMins(a, b endpoint) endpoint {
	switch c := cmpBound(a, b); {
	case c > 0:
		return a
	case c < 0:
		return b
	case a.isInf():
		return a
	default:
		return endpoint{version: a.version, open: a.open || b.open}
	}
}

// minOfMaxes returns whichever of two upper-bound endpoints is more
// restrictive (i.e. the intersection's upper bound).
func minOfMaxes(a, b endpoint) endpoint {
	switch c := cmpBound(a, b); {
	case a.isInf():
		return b
	case b.isInf():
		return a
	case c < 0:
		return a
	case c > 0:
		return b
	default:
		return endpoint{version: a.version, open: a.open || b.open}
	}
}

// negate flips an endpoint's openness, used when an upper bound becomes a
// lower bound (or vice versa) across the complement operation.
func negate(e endpoint) endpoint {
	if e.isInf() {
		return e
	}

	return endpoint{version: e.version, open: !e.open}
}

// Union returns the set union of a and b.
func Union(a, b Set) Set {
	merged := append(append([]interval(nil), a.intervals...), b.intervals...)

	return Set{intervals: merged}.canon()
}

// Intersect returns the set intersection of a and b.
func Intersect(a, b Set) Set {
	var out []interval

	for _, x := range a.intervals {
		for _, y := range b.intervals {
			lo := maxOfMins(x.min, y.min)
			hi := minOfMaxes(x.max, y.max)

			if validInterval(lo, hi) {
				out = append(out, interval{min: lo, max: hi})
			}
		}
	}

	return Set{intervals: out}.canon()
}

// Complement returns the complement of s relative to the full ordered line.
func Complement(s Set) Set {
	ivs := s.canon().intervals
	if len(ivs) == 0 {
		return Full()
	}

	var out []interval

	prev := unbounded()

	for _, iv := range ivs {
		if !iv.min.isInf() {
			gapMax := negate(iv.min)
			if validInterval(prev, gapMax) {
				out = append(out, interval{min: prev, max: gapMax})
			}
		}

		prev = negate(iv.max)
	}

	if last := ivs[len(ivs)-1]; !last.max.isInf() {
		out = append(out, interval{min: prev, max: unbounded()})
	}

	return Set{intervals: out}.canon()
}

// Contains reports whether v lies within the set.
func (s Set) Contains(v Version) bool {
	for _, iv := range s.intervals {
		if !iv.min.isInf() {
			c := v.Compare(*iv.min.version)
			if c < 0 || (c == 0 && iv.min.open) {
				continue
			}
		}

		if !iv.max.isInf() {
			c := v.Compare(*iv.max.version)
			if c > 0 || (c == 0 && iv.max.open) {
				continue
			}
		}

		return true
	}

	return false
}

// IsSubset reports whether every version in a is also in b.
func IsSubset(a, b Set) bool {
	return Intersect(a, b).equalIntervals(a.canon())
}

// IsDisjoint reports whether a and b share no versions.
func IsDisjoint(a, b Set) bool {
	return Intersect(a, b).IsEmpty()
}

func (s Set) equalIntervals(other Set) bool {
	a, b := s.intervals, other.intervals
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if cmpBound(a[i].min, b[i].min) != 0 || a[i].min.open != b[i].min.open {
			return false
		}

		if cmpBound(a[i].max, b[i].max) != 0 || a[i].max.open != b[i].max.open {
			return false
		}
	}

	return true
}
