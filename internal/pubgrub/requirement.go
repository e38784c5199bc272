package pubgrub

import (
	"strings"

	"github.com/bilusteknoloji/pipg/internal/pep503"
	"github.com/bilusteknoloji/pipg/internal/pypiver"
)

// requirement is a parsed PEP 508 dependency line, e.g.
// `requests[socks]>=2,<3; python_version >= "3.8"`. Grounded on
// deps.dev/util/pypi's ParseDependency, extended to keep the extras list
// (that package's Dependency.Extras is a single comma-joined string; the
// resolver needs each extra as its own solver package name) rather than
// discarding it the way the teacher's own resolver.ParseRequirement does.
type requirement struct {
	name      string
	extras    []string
	specifier string
	marker    string
}

const whitespace = " \t"

func parseRequirement(s string) requirement {
	var marker string

	parts := strings.SplitN(s, ";", 2)
	rest := strings.Trim(parts[0], whitespace)

	if len(parts) > 1 {
		marker = strings.TrimSpace(parts[1])
	}

	nameEnd := strings.IndexAny(rest, whitespace+"[(;<=!~>")

	var name string

	if nameEnd < 0 {
		name = rest
		rest = ""
	} else {
		name = rest[:nameEnd]
		rest = strings.TrimLeft(rest[nameEnd:], whitespace)
	}

	var extras []string

	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end > 0 {
			for _, e := range strings.Split(rest[1:end], ",") {
				if e = strings.TrimSpace(e); e != "" {
					extras = append(extras, pep503.Normalize(e))
				}
			}

			rest = strings.TrimLeft(rest[end+1:], whitespace)
		}
	}

	specifier := strings.TrimSpace(rest)
	specifier = strings.NewReplacer("(", "", ")", "").Replace(specifier)

	return requirement{
		name:      pep503.Normalize(name),
		extras:    extras,
		specifier: strings.TrimSpace(specifier),
		marker:    marker,
	}
}

// versionSet parses the requirement's specifier into a pypiver.Set, Full()
// for an unconstrained requirement.
func (r requirement) versionSet() (pypiver.Set, error) {
	if r.specifier == "" {
		return pypiver.Full(), nil
	}

	return pypiver.ParseSpecifiers(r.specifier)
}

// mentionsPrerelease reports whether this requirement's specifier text
// itself names a pre-release version (e.g. "==2.0.0a1"), the property
// candidate.PrereleaseExplicit keys off - distinct from whether the
// requirement is a root (direct) one, which is a different axis entirely
// (candidate.Strategy.LowestDirect).
func (r requirement) mentionsPrerelease() bool {
	return pypiver.MentionsPrerelease(r.specifier)
}
