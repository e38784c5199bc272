package pypiver

import (
	"fmt"
	"regexp"
	"strings"
)

// specifierPattern splits a single PEP 440 specifier clause into its
// operator and operand, e.g. ">=1.2.3" -> (">=", "1.2.3").
var specifierPattern = regexp.MustCompile(`^\s*(~=|===|==|!=|<=|>=|<|>)\s*(.+?)\s*$`)

// ParseSpecifiers parses a comma-separated PEP 440 specifier set (each
// clause ANDed together, per spec.md §4.A) into a canonical Set.
func ParseSpecifiers(s string) (Set, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Full(), nil
	}

	result := Full()

	for _, clause := range strings.Split(s, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}

		set, err := parseClause(clause)
		if err != nil {
			return Set{}, err
		}

		result = Intersect(result, set)
	}

	return result, nil
}

// MentionsPrerelease reports whether any clause of a comma-separated PEP 440
// specifier set names a pre-release or dev version as its operand (e.g.
// "==2.0.0a1" or ">=2.0.0rc1") - PEP 440's rule for opting a specific
// requirement into pre-release candidates independent of any resolver-wide
// prerelease policy. Malformed clauses are ignored here rather than erroring,
// since ParseSpecifiers is what's responsible for rejecting those; this is a
// best-effort classification used only to steer candidate selection.
func MentionsPrerelease(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}

	for _, clause := range strings.Split(s, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}

		m := specifierPattern.FindStringSubmatch(clause)
		if m == nil {
			continue
		}

		operand := strings.TrimSuffix(m[2], ".*")

		v, err := Parse(operand)
		if err != nil {
			continue
		}

		if v.IsPrerelease() {
			return true
		}
	}

	return false
}

func parseClause(clause string) (Set, error) {
	m := specifierPattern.FindStringSubmatch(clause)
	if m == nil {
		return Set{}, fmt.Errorf("parsing specifier %q: unrecognized operator", clause)
	}

	op, operand := m[1], m[2]

	switch op {
	case "===":
		return parseArbitraryEquality(operand)
	case "==":
		return parseEquality(operand)
	case "!=":
		set, err := parseEquality(operand)
		if err != nil {
			return Set{}, err
		}

		return Complement(set), nil
	case "~=":
		return parseCompatible(operand)
	case "<=":
		return parseBound(operand, AtMost, true)
	case ">=":
		return parseBound(operand, AtLeast, true)
	case "<":
		return parseBound(operand, AtMost, false)
	case ">":
		return parseBound(operand, AtLeast, false)
	default:
		return Set{}, fmt.Errorf("parsing specifier %q: unsupported operator %q", clause, op)
	}
}

func parseBound(operand string, ctor func(Version, bool) Set, inclusive bool) (Set, error) {
	v, err := Parse(operand)
	if err != nil {
		return Set{}, err
	}

	return ctor(v, inclusive), nil
}

// parseArbitraryEquality implements the `===` operator: an exact string
// comparison against the operand with no prefix matching or normalization
// (PEP 440 "arbitrary equality"). It exists for legacy, non-conforming
// version identifiers that wouldn't otherwise parse; since Version requires
// a well-formed PEP 440 string, this only supports the well-formed case and
// reduces to exact equality there.
func parseArbitraryEquality(operand string) (Set, error) {
	v, err := Parse(operand)
	if err != nil {
		return Set{}, fmt.Errorf("parsing arbitrary equality operand %q: %w", operand, err)
	}

	return Exactly(v), nil
}

func parseEquality(operand string) (Set, error) {
	if operand == "*" {
		return Full(), nil
	}

	if prefix, ok := strings.CutSuffix(operand, ".*"); ok {
		return parseWildcard(prefix)
	}

	v, err := Parse(operand)
	if err != nil {
		return Set{}, err
	}

	return Exactly(v), nil
}

// parseWildcard implements `==X.Y.*`: all versions whose release segments
// start with the given prefix, regardless of pre/post/dev/local qualifiers.
func parseWildcard(prefix string) (Set, error) {
	v, err := Parse(prefix)
	if err != nil {
		return Set{}, fmt.Errorf("parsing wildcard specifier %q.*: %w", prefix, err)
	}

	upper, err := v.nextAfterPrefix(len(v.release) - 1)
	if err != nil {
		return Set{}, fmt.Errorf("parsing wildcard specifier %q.*: %w", prefix, err)
	}

	return Range(v, false, upper, true), nil
}

// parseCompatible implements `~=`: equivalent to >=V, <(V with its
// next-to-last release segment incremented and everything after it
// dropped). Requires at least two release segments.
func parseCompatible(operand string) (Set, error) {
	v, err := Parse(operand)
	if err != nil {
		return Set{}, err
	}

	if len(v.release) < 2 {
		return Set{}, fmt.Errorf("parsing compatible release specifier %q: requires at least two release segments", operand)
	}

	upper, err := v.nextAfterPrefix(len(v.release) - 2)
	if err != nil {
		return Set{}, fmt.Errorf("parsing compatible release specifier %q: %w", operand, err)
	}

	return Range(v, false, upper, true), nil
}
