package emit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tangram.systems/checkin/internal/artifact"
	"tangram.systems/checkin/internal/objectid"
	"tangram.systems/checkin/internal/store"
)

func newEmitter(t *testing.T) *Emitter {
	t.Helper()
	s, err := store.NewLocal(t.TempDir())
	require.NoError(t, err)
	return &Emitter{Store: s}
}

func TestEmitDirectoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newEmitter(t)

	d := &artifact.Directory{Entries: map[string]artifact.Edge{
		"a.ts": {ArtifactID: objectid.ID("fil_aaa")},
		"sub":  {IsGraph: true, GraphID: objectid.ID("gph_bbb"), GraphIndex: 2},
	}}
	id, err := e.EmitDirectory(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, objectid.KindDirectory, id.Kind())

	data, err := e.Store.Get(ctx, id)
	require.NoError(t, err)
	decoded, err := DecodeDirectory(data)
	require.NoError(t, err)
	assert.Equal(t, d, decoded)
}

func TestEmitDirectoryDeterministic(t *testing.T) {
	ctx := context.Background()
	e := newEmitter(t)

	d1 := &artifact.Directory{Entries: map[string]artifact.Edge{
		"b.ts": {ArtifactID: objectid.ID("fil_b")},
		"a.ts": {ArtifactID: objectid.ID("fil_a")},
	}}
	d2 := &artifact.Directory{Entries: map[string]artifact.Edge{
		"a.ts": {ArtifactID: objectid.ID("fil_a")},
		"b.ts": {ArtifactID: objectid.ID("fil_b")},
	}}
	id1, err := e.EmitDirectory(ctx, d1)
	require.NoError(t, err)
	id2, err := e.EmitDirectory(ctx, d2)
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "map iteration order must not affect content addressing")
}

func TestEmitFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newEmitter(t)

	f := &artifact.File{
		BlobID:     objectid.ID("blb_xyz"),
		Executable: true,
		ModuleKind: artifact.ModuleTS,
		DepOrder:   []string{"a/^1", "./b.ts"},
		Dependencies: map[string]artifact.Referent{
			"a/^1": {
				ArtifactID: objectid.ID("fil_a1"),
				Options:    artifact.ReferentOptions{Name: "a", Tag: "1.2.0"},
			},
			"./b.ts": {
				IsGraphNode:    true,
				GraphID:        objectid.ID("gph_1"),
				GraphNodeIndex: 3,
			},
		},
	}
	id, err := e.EmitFile(ctx, f)
	require.NoError(t, err)

	data, err := e.Store.Get(ctx, id)
	require.NoError(t, err)
	decoded, err := DecodeFile(data)
	require.NoError(t, err)
	assert.Equal(t, f, decoded)
}

func TestEmitSymlinkRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newEmitter(t)

	s := &artifact.Symlink{ArtifactTarget: objectid.ID("fil_target")}
	id, err := e.EmitSymlink(ctx, s)
	require.NoError(t, err)

	data, err := e.Store.Get(ctx, id)
	require.NoError(t, err)
	decoded, err := DecodeSymlink(data)
	require.NoError(t, err)
	assert.Equal(t, s, decoded)

	pathSymlink := &artifact.Symlink{PathTarget: "../outside"}
	id2, err := e.EmitSymlink(ctx, pathSymlink)
	require.NoError(t, err)
	data2, err := e.Store.Get(ctx, id2)
	require.NoError(t, err)
	decoded2, err := DecodeSymlink(data2)
	require.NoError(t, err)
	assert.Equal(t, pathSymlink, decoded2)
}

func TestEmitSymlinkRejectsBothOrNeitherTarget(t *testing.T) {
	ctx := context.Background()
	e := newEmitter(t)

	_, err := e.EmitSymlink(ctx, &artifact.Symlink{})
	assert.Error(t, err)

	_, err = e.EmitSymlink(ctx, &artifact.Symlink{
		ArtifactTarget: objectid.ID("fil_a"),
		PathTarget:     "x",
	})
	assert.Error(t, err)
}

func TestEmitGraphRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newEmitter(t)

	g := &artifact.Graph{Nodes: []artifact.GraphNode{
		{
			Kind:         artifact.KindFile,
			RelativePath: "a.ts",
			File: &artifact.File{
				BlobID:       objectid.ID("blb_a"),
				Dependencies: map[string]artifact.Referent{"./b.ts": {IsGraphNode: true, GraphNodeIndex: 1}},
				DepOrder:     []string{"./b.ts"},
			},
		},
		{
			Kind:         artifact.KindFile,
			RelativePath: "b.ts",
			File: &artifact.File{
				BlobID:       objectid.ID("blb_b"),
				Dependencies: map[string]artifact.Referent{"./a.ts": {IsGraphNode: true, GraphNodeIndex: 0}},
				DepOrder:     []string{"./a.ts"},
			},
		},
	}}
	id, err := e.EmitGraph(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, objectid.KindGraph, id.Kind())

	data, err := e.Store.Get(ctx, id)
	require.NoError(t, err)
	decoded, err := DecodeGraph(data)
	require.NoError(t, err)
	assert.Len(t, decoded.Nodes, 2)
	// RelativePath is deliberately excluded from the canonical encoding (a
	// graph's ID must not depend on where in the tree it was found), so
	// decoding never restores it.
	assert.Empty(t, decoded.Nodes[0].RelativePath)
	assert.Equal(t, objectid.ID("blb_a"), decoded.Nodes[0].File.BlobID)
}
