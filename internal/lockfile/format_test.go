package lockfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tangram.systems/checkin/internal/artifact"
	"tangram.systems/checkin/internal/objectid"
)

func sampleLock() *artifact.Lock {
	return &artifact.Lock{Nodes: []artifact.LockNode{
		{
			Kind:     artifact.KindFile,
			DepOrder: []string{"a/^1", "./b.ts"},
			Dependencies: map[string]artifact.LockReferent{
				"a/^1":   {ItemID: objectid.ID("fil_a"), Options: artifact.ReferentOptions{Name: "a", Tag: "1.2.0"}},
				"./b.ts": {IsIndex: true, ItemIndex: 1},
			},
		},
		{Kind: artifact.KindFile},
	}}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	lock := sampleLock()
	data, err := Marshal(lock)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	// Dependencies travel as a JSON object, so Unmarshal returns their keys
	// in sorted order rather than the source order DepOrder had before.
	want := sampleLock()
	want.Nodes[0].DepOrder = []string{"./b.ts", "a/^1"}
	assert.Equal(t, want, decoded)
}

func TestMarshalIsPrettyPrintedWithTrailingNewline(t *testing.T) {
	data, err := Marshal(sampleLock())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "\n"))
	assert.Contains(t, string(data), "  \"kind\"")
}

func TestMarshalDeterministicAcrossMapOrder(t *testing.T) {
	a := sampleLock()
	b := sampleLock()
	// Dependencies is a Go map; iteration order is randomized by the
	// runtime, but encoding/json writes map keys in sorted order, so two
	// logically identical locks must always marshal byte-identical.
	dataA, err := Marshal(a)
	require.NoError(t, err)
	dataB, err := Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, dataA, dataB)
}

func TestUnresolvedDependencyHasNoItem(t *testing.T) {
	lock := &artifact.Lock{Nodes: []artifact.LockNode{{
		Kind:         artifact.KindFile,
		DepOrder:     []string{"a/^1"},
		Dependencies: map[string]artifact.LockReferent{"a/^1": {Options: artifact.ReferentOptions{Name: "a"}}},
	}}}
	data, err := Marshal(lock)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"index"`)
	assert.NotContains(t, string(data), `"id":"fil`)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.False(t, decoded.Nodes[0].Dependencies["a/^1"].IsIndex)
	assert.Empty(t, decoded.Nodes[0].Dependencies["a/^1"].ItemID)
}
