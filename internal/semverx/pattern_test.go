package semverx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatternMatches(t *testing.T) {
	testCases := []struct {
		name    string
		pattern string
		version string
		want    bool
	}{
		{"wildcard", "*", "1.2.3", true},
		{"empty is wildcard", "", "0.0.1", true},
		{"caret major match", "^1", "1.9.0", true},
		{"caret major mismatch", "^1", "2.0.0", false},
		{"caret below base", "^1.2", "1.1.0", false},
		{"caret zero major same minor", "^0.3", "0.3.9", true},
		{"caret zero major different minor", "^0.3", "0.4.0", false},
		{"exact match", "=1.2.3", "1.2.3", true},
		{"exact mismatch", "=1.2.3", "1.2.4", false},
		{"bare exact", "1.2.3", "1.2.3", true},
		{"bare exact mismatch", "1.2.3", "1.2.4", false},
		{"trailing wildcard", "1.0.*", "1.0.7", true},
		{"trailing wildcard mismatch", "1.0.*", "1.1.0", false},
		{"invalid version never matches", "^1", "not-a-version", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := Parse(tc.pattern)
			assert.Equal(t, tc.want, p.Matches(tc.version))
		})
	}
}

func TestCompareIgnoresVPrefix(t *testing.T) {
	assert.Equal(t, 0, Compare("1.2.3", "v1.2.3"))
	assert.Negative(t, Compare("1.0.0", "1.1.0"))
}

func TestNormalizeDenormalize(t *testing.T) {
	assert.Equal(t, "v1.2.3", Normalize("1.2.3"))
	assert.Equal(t, "v1.2.3", Normalize("v1.2.3"))
	assert.Equal(t, "1.2.3", Denormalize("v1.2.3"))
	assert.Equal(t, "1.2.3", Denormalize("1.2.3"))
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("1.2.3"))
	assert.False(t, IsValid("not-a-version"))
}
