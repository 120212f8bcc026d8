package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"tangram.systems/checkin/internal/artifact"
	"tangram.systems/checkin/internal/resolve"
	"tangram.systems/checkin/internal/scan"
)

func pathRef(text string) artifact.Reference {
	return artifact.Reference{Text: text, Kind: artifact.ReferencePath, Attrs: map[string]string{}}
}

func TestBuild_PathReferencesAndPackageRoot(t *testing.T) {
	entries := []scan.Entry{
		{RelPath: "a.tg.ts", Kind: scan.KindFile},
		{RelPath: "sub", Kind: scan.KindDirectory},
		{RelPath: "sub/b.tg.ts", Kind: scan.KindFile},
		{RelPath: "tangram.ts", Kind: scan.KindFile},
	}
	analyzed := map[string]AnalyzedFile{
		"a.tg.ts":     {ModuleKind: artifact.ModuleTS, References: []artifact.Reference{pathRef("./sub/b.tg.ts")}},
		"sub/b.tg.ts": {ModuleKind: artifact.ModuleTS, References: []artifact.Reference{pathRef("../tangram.ts")}},
		"tangram.ts":  {ModuleKind: artifact.ModuleTS},
	}

	g, diags, err := Build(context.Background(), entries, analyzed, &resolve.Solution{}, Options{EntryRelPath: "a.tg.ts"})
	require.NoError(t, err)
	require.Empty(t, diags)

	require.Equal(t, "", g.PackageRoot, "tangram.ts at the scan root makes the package root the root itself")

	aNode := g.Nodes[g.Root]
	require.Equal(t, "a.tg.ts", aNode.RelPath)
	require.Len(t, aNode.Deps, 1)
	require.True(t, aNode.Deps[0].Target.IsInternal)

	bIdx := aNode.Deps[0].Target.InternalIndex
	require.Equal(t, "sub/b.tg.ts", g.Nodes[bIdx].RelPath)
	require.Len(t, g.Nodes[bIdx].Deps, 1)
	require.True(t, g.Nodes[bIdx].Deps[0].Target.IsInternal)
	require.Equal(t, "tangram.ts", g.Nodes[g.Nodes[bIdx].Deps[0].Target.InternalIndex].RelPath)
}

func TestBuild_NonDestructiveExternalPathIsUnresolved(t *testing.T) {
	entries := []scan.Entry{{RelPath: "a.tg.ts", Kind: scan.KindFile}}
	analyzed := map[string]AnalyzedFile{
		"a.tg.ts": {ModuleKind: artifact.ModuleTS, References: []artifact.Reference{pathRef("../outside.ts")}},
	}

	g, _, err := Build(context.Background(), entries, analyzed, &resolve.Solution{}, Options{EntryRelPath: "a.tg.ts"})
	require.NoError(t, err)
	require.True(t, g.Nodes[g.Root].Deps[0].Target.Unresolved)
}

func TestBuild_DestructiveExternalPathIsFatal(t *testing.T) {
	entries := []scan.Entry{{RelPath: "a.tg.ts", Kind: scan.KindFile}}
	analyzed := map[string]AnalyzedFile{
		"a.tg.ts": {ModuleKind: artifact.ModuleTS, References: []artifact.Reference{pathRef("../outside.ts")}},
	}

	_, _, err := Build(context.Background(), entries, analyzed, &resolve.Solution{}, Options{EntryRelPath: "a.tg.ts", Destructive: true})
	require.Error(t, err)
}

// TestBuild_OversizedDirectoryIsBranched is spec §4.1's directory-splitting
// contract: a directory with more direct children than MaxLeafEntries has
// them replaced by a balanced tree of synthetic branch directories fanning
// out at MaxBranchChildren, with the package-root marker kept as a direct
// entry so root detection still finds it without descending into a branch.
func TestBuild_OversizedDirectoryIsBranched(t *testing.T) {
	entries := []scan.Entry{{RelPath: "tangram.ts", Kind: scan.KindFile}}
	analyzed := map[string]AnalyzedFile{"tangram.ts": {ModuleKind: artifact.ModuleTS}}
	for i := 0; i < 10; i++ {
		name := "f" + string(rune('a'+i)) + ".tg.ts"
		entries = append(entries, scan.Entry{RelPath: name, Kind: scan.KindFile})
		analyzed[name] = AnalyzedFile{ModuleKind: artifact.ModuleTS}
	}

	g, _, err := Build(context.Background(), entries, analyzed, &resolve.Solution{}, Options{
		EntryRelPath:      "tangram.ts",
		MaxLeafEntries:    5,
		MaxBranchChildren: 3,
	})
	require.NoError(t, err)

	root := g.Nodes[0]
	require.Equal(t, "", root.RelPath)
	require.LessOrEqual(t, len(root.Entries), 3+1, "root's direct entries must fit within fan-out plus the kept package-root marker")

	foundMarker := false
	var branchNames []string
	for _, e := range root.Entries {
		if e.Name == PackageRootFile {
			foundMarker = true
			continue
		}
		branchNames = append(branchNames, e.Name)
	}
	require.True(t, foundMarker, "tangram.ts must remain a direct entry of the root, never folded into a branch")
	require.NotEmpty(t, branchNames)

	// The branching must be stable across an identical second Build call
	// over the same entries: same node count and same root entries.
	g2, _, err := Build(context.Background(), entries, analyzed, &resolve.Solution{}, Options{
		EntryRelPath:      "tangram.ts",
		MaxLeafEntries:    5,
		MaxBranchChildren: 3,
	})
	require.NoError(t, err)
	require.Equal(t, len(g.Nodes), len(g2.Nodes))
	require.Equal(t, root.Entries, g2.Nodes[0].Entries)
}

func TestBuild_TagReferenceUsesSolutionBinding(t *testing.T) {
	entries := []scan.Entry{{RelPath: "a.tg.ts", Kind: scan.KindFile}}
	tagReference := artifact.Reference{Text: "d/^1", Kind: artifact.ReferenceTag, Name: "d", Pattern: "^1", Attrs: map[string]string{}}
	analyzed := map[string]AnalyzedFile{
		"a.tg.ts": {ModuleKind: artifact.ModuleTS, References: []artifact.Reference{tagReference}},
	}
	solution := &resolve.Solution{Bindings: map[string]resolve.Binding{
		"d/^1": {Version: "1.1.0", ArtifactID: "fil_d110"},
	}}

	g, _, err := Build(context.Background(), entries, analyzed, solution, Options{EntryRelPath: "a.tg.ts"})
	require.NoError(t, err)

	dep := g.Nodes[g.Root].Deps[0]
	require.False(t, dep.Target.IsInternal)
	require.Equal(t, "fil_d110", string(dep.Target.ExternalID))
	require.Equal(t, "1.1.0", dep.Options.Tag)
}
