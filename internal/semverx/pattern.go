// Package semverx matches tags against version patterns (semver ranges,
// wildcards, exact versions), the way a tag reference's pattern is tested
// against catalog candidates in the Resolver.
//
// Tag versions are stored without the "v" prefix used by Go modules;
// golang.org/x/mod/semver requires the prefix, so Normalize/Denormalize
// convert at the boundary.
package semverx

import (
	"strings"

	"golang.org/x/mod/semver"
)

// Normalize adds the "v" prefix golang.org/x/mod/semver requires.
func Normalize(v string) string {
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// Denormalize strips a leading "v".
func Denormalize(v string) string {
	return strings.TrimPrefix(v, "v")
}

// Compare compares two bare (no "v" prefix) version strings.
func Compare(a, b string) int {
	return semver.Compare(Normalize(a), Normalize(b))
}

// IsValid reports whether v is syntactically a valid semantic version.
func IsValid(v string) bool {
	return semver.IsValid(Normalize(v))
}

// Pattern is a parsed version pattern: "*" (wildcard), "^1" / "^1.2" (caret
// range: compatible-with, per semver's usual meaning), "=1.2.3" (exact), or
// a bare version treated as exact.
type Pattern struct {
	raw string
}

// Parse parses a pattern's raw text.
func Parse(raw string) Pattern { return Pattern{raw: raw} }

func (p Pattern) String() string { return p.raw }

// Matches reports whether version v satisfies the pattern.
func (p Pattern) Matches(v string) bool {
	if !IsValid(v) {
		return false
	}
	raw := p.raw
	switch {
	case raw == "" || raw == "*":
		return true
	case strings.HasPrefix(raw, "^"):
		return p.matchesCaret(strings.TrimPrefix(raw, "^"), v)
	case strings.HasPrefix(raw, "="):
		return Compare(v, strings.TrimPrefix(raw, "=")) == 0
	default:
		// A bare version pattern with a trailing wildcard component, e.g.
		// "1.0.*", matches any patch/minor under that prefix; a fully
		// specified bare version is exact.
		if strings.HasSuffix(raw, "*") {
			prefix := strings.TrimSuffix(raw, "*")
			return strings.HasPrefix(v+".", prefix)
		}
		return Compare(v, raw) == 0
	}
}

// matchesCaret implements "^x[.y[.z]]": v must be >= x.y.z and share the
// same leading nonzero component (major, or minor if major is 0), matching
// the common caret-range convention used by tag-referenced dependency
// managers.
func (p Pattern) matchesCaret(base, v string) bool {
	if !IsValid(base) {
		return false
	}
	if Compare(v, base) < 0 {
		return false
	}
	baseMajor := semver.Major(Normalize(base))
	vMajor := semver.Major(Normalize(v))
	if baseMajor != "v0" {
		return baseMajor == vMajor
	}
	// ^0.y.z: compatible within the same minor.
	baseMinor := semver.MajorMinor(Normalize(base))
	vMinor := semver.MajorMinor(Normalize(v))
	return baseMinor == vMinor
}
