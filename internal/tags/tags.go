// Package tags implements the PEP 425 / PEP 600 compatibility-tag matcher:
// the (interpreter, abi, platform) triples that decide which wheel a given
// Python environment can install, ordered by preference.
package tags

import (
	"fmt"
	"strings"
)

// Tag is a single PEP 425 compatibility tag.
type Tag struct {
	Interpreter string
	ABI         string
	Platform    string
}

func (t Tag) String() string {
	return fmt.Sprintf("%s-%s-%s", t.Interpreter, t.ABI, t.Platform)
}

// Tags is a priority-ordered compatibility tag list for one Python
// environment: index 0 is the most preferred tag, matching uv's
// Tags::from_env ordering (exact interpreter/ABI, then the stable ABI
// descending through every earlier compatible minor, then interpreter-only,
// then pure-Python, each across platform variants from most to least
// specific, finishing with the universal "any" platform).
type Tags struct {
	ordered []Tag
	rank    map[Tag]int

	// interpreters and interpreterABIs let Priority classify a miss: they
	// answer "did any of my own tags at least share this interpreter" and
	// "...this interpreter and ABI", which is what distinguishes an
	// IncompatiblePython miss from an IncompatibleAbi or IncompatiblePlatform
	// one instead of collapsing every miss into one undifferentiated result.
	interpreters    map[string]bool
	interpreterABIs map[string]map[string]bool
}

// IncompatibleTag classifies why a wheel's tags matched none of an
// environment's, ordered worst-to-best so the "closest miss" can be taken as
// the max over every tag triple a wheel filename expands to — grounded on
// uv-platform-tags/src/tags.rs's IncompatibleTag, whose derived Ord is this
// same declaration order.
type IncompatibleTag int

const (
	// Invalid means the filename carried no usable triples at all; a wheel
	// whose triples share no interpreter with this environment is Python.
	Invalid IncompatibleTag = iota
	// Python means the interpreter tag (e.g. "cp312") isn't one this
	// environment's Tags were built for.
	Python
	// Abi means the interpreter matched but the ABI tag didn't.
	Abi
	// AbiPythonVersion means the ABI tag's own embedded Python version
	// component is incompatible with the active requires-python range.
	// Reserved for parity with uv's ordering: this package's Tag triple
	// folds the ABI's version component into Interpreter/ABI directly, so
	// requires-python is instead checked at the distribution-metadata
	// level (internal/pubgrub/source.go); Priority never produces this
	// kind today.
	AbiPythonVersion
	// Platform means the interpreter and ABI matched but no platform tag
	// did - the closest possible miss.
	Platform
)

func (k IncompatibleTag) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case Python:
		return "python"
	case Abi:
		return "abi"
	case AbiPythonVersion:
		return "abi-python-version"
	case Platform:
		return "platform"
	default:
		return "unknown"
	}
}

// TagCompatibility is the outcome of matching one wheel's tag triples
// against an environment's Tags: either Compatible at some priority rank
// (lower is better, matching Tags.rank) or Incompatible at some
// IncompatibleTag, ordered so the "closest miss" can be recovered for
// diagnostics.
type TagCompatibility struct {
	compatible bool
	priority   int
	kind       IncompatibleTag
}

// Compatible reports a match at the given priority rank.
func Compatible(priority int) TagCompatibility {
	return TagCompatibility{compatible: true, priority: priority}
}

// Incompatible reports a miss of the given kind.
func Incompatible(kind IncompatibleTag) TagCompatibility {
	return TagCompatibility{kind: kind}
}

// IsCompatible reports whether the match succeeded.
func (c TagCompatibility) IsCompatible() bool { return c.compatible }

// Priority returns the match's rank and true, or (0, false) if Incompatible.
func (c TagCompatibility) Priority() (int, bool) { return c.priority, c.compatible }

// Kind returns the miss category and true, or (0, false) if Compatible.
func (c TagCompatibility) Kind() (IncompatibleTag, bool) { return c.kind, !c.compatible }

// max returns whichever of c, other represents the better outcome: any
// Compatible beats any Incompatible, two Compatibles keep the lower
// (better) priority, and two Incompatibles keep the higher (closer-miss)
// kind - the same fold uv's TagCompatibility::Ord performs when scanning a
// wheel's whole tag triple expansion.
func (c TagCompatibility) max(other TagCompatibility) TagCompatibility {
	switch {
	case c.compatible && other.compatible:
		if c.priority <= other.priority {
			return c
		}

		return other
	case c.compatible:
		return c
	case other.compatible:
		return other
	case c.kind >= other.kind:
		return c
	default:
		return other
	}
}

// New builds the ordered tag set for a CPython-family interpreter
// ("cp" or "pp") at majorMinor, compatible with the given platform
// variants (most specific first, as produced by ExpandPlatform).
// gilDisabled excludes the abi3 stable-ABI tags, matching free-threaded
// builds where the limited API doesn't apply.
func New(implementation string, majorMinor [2]int, platforms []string, gilDisabled bool) Tags {
	major, minor := majorMinor[0], majorMinor[1]
	cp := fmt.Sprintf("%s%d%d", implementation, major, minor)
	pyMajor := fmt.Sprintf("py%d", major)

	var ordered []Tag

	for _, plat := range platforms {
		ordered = append(ordered, Tag{cp, cp, plat})
	}

	if !gilDisabled {
		for m := minor; m >= 2; m-- {
			abi3 := fmt.Sprintf("%s%d%d", implementation, major, m)
			for _, plat := range platforms {
				ordered = append(ordered, Tag{abi3, "abi3", plat})
			}
		}
	}

	for _, plat := range platforms {
		ordered = append(ordered, Tag{cp, "none", plat})
	}

	for _, plat := range platforms {
		ordered = append(ordered, Tag{pyMajor, "none", plat})
	}

	ordered = append(ordered, Tag{cp, "none", "any"}, Tag{pyMajor, "none", "any"})

	return FromOrdered(ordered)
}

// FromOrdered builds a Tags from an already priority-ordered tag list
// (most preferred first), for callers that assemble their own compatibility
// list rather than deriving one from an environment via New.
func FromOrdered(ordered []Tag) Tags {
	rank := make(map[Tag]int, len(ordered))
	interpreters := make(map[string]bool, len(ordered))
	interpreterABIs := make(map[string]map[string]bool, len(ordered))

	for i, t := range ordered {
		if _, exists := rank[t]; !exists {
			rank[t] = i
		}

		interpreters[t.Interpreter] = true

		if interpreterABIs[t.Interpreter] == nil {
			interpreterABIs[t.Interpreter] = make(map[string]bool)
		}

		interpreterABIs[t.Interpreter][t.ABI] = true
	}

	return Tags{ordered: ordered, rank: rank, interpreters: interpreters, interpreterABIs: interpreterABIs}
}

// Len returns the number of distinct ranked tags, usable as a "worse than
// anything" sentinel priority.
func (t Tags) Len() int { return len(t.ordered) }

// Ordered returns the tag list in priority order, most preferred first.
func (t Tags) Ordered() []Tag { return t.ordered }

// Priority scores wheelTags, the set of tags a single wheel filename
// expands to, against t: a match returns Compatible at its best (lowest)
// rank, a miss returns Incompatible at the closest of the kinds any
// individual triple hit, per tags.rs's TagCompatibility::max fold over a
// wheel's whole tag expansion.
func (t Tags) Priority(wheelTags []Tag) TagCompatibility {
	best := Incompatible(Invalid)

	for _, wt := range wheelTags {
		var cur TagCompatibility

		if r, ok := t.rank[wt]; ok {
			cur = Compatible(r)
		} else if t.interpreterABIs[wt.Interpreter][wt.ABI] {
			cur = Incompatible(Platform)
		} else if t.interpreters[wt.Interpreter] {
			cur = Incompatible(Abi)
		} else {
			cur = Incompatible(Python)
		}

		best = best.max(cur)
	}

	return best
}

// ParseWheelFilename parses a wheel filename into its name, version, and
// the full set of compatibility tags it declares. Wheel filenames may
// compress several tags into one dot-separated field (e.g.
// "py2.py3-none-any" expands to two tags); the result is their cartesian
// product.
func ParseWheelFilename(filename string) (name, version string, wheelTags []Tag, err error) {
	filename = strings.TrimSuffix(filename, ".whl")

	parts := strings.Split(filename, "-")
	if len(parts) < 5 {
		return "", "", nil, fmt.Errorf("invalid wheel filename %q: expected at least 5 parts", filename)
	}

	interpreters := strings.Split(parts[len(parts)-3], ".")
	abis := strings.Split(parts[len(parts)-2], ".")
	platforms := strings.Split(parts[len(parts)-1], ".")

	for _, interp := range interpreters {
		for _, abi := range abis {
			for _, plat := range platforms {
				wheelTags = append(wheelTags, Tag{interp, abi, plat})
			}
		}
	}

	return parts[0], parts[1], wheelTags, nil
}
