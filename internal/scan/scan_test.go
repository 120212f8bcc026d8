package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func collect(t *testing.T, root string, opts Options) []Entry {
	t.Helper()
	var entries []Entry
	sc := New(root, opts)
	err := sc.Walk(func(e Entry, walkErr error) bool {
		require.NoError(t, walkErr)
		entries = append(entries, e)
		return true
	})
	require.NoError(t, err)
	return entries
}

func relPaths(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.RelPath
	}
	return out
}

func TestWalkSortedOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.ts"), "")
	writeFile(t, filepath.Join(root, "a.ts"), "")
	writeFile(t, filepath.Join(root, "sub", "c.ts"), "")

	entries := collect(t, root, Options{})
	assert.Equal(t, []string{"a.ts", "b.ts", "sub", "sub/c.ts"}, relPaths(entries))
}

func TestWalkHonorsIgnoreFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".tangramignore"), "*.log\n")
	writeFile(t, filepath.Join(root, "keep.ts"), "")
	writeFile(t, filepath.Join(root, "skip.log"), "")

	entries := collect(t, root, Options{})
	paths := relPaths(entries)
	assert.Contains(t, paths, "keep.ts")
	assert.NotContains(t, paths, "skip.log")
}

func TestWalkDisableIgnoreSeesEverything(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".tangramignore"), "*.log\n")
	writeFile(t, filepath.Join(root, "skip.log"), "")

	entries := collect(t, root, Options{DisableIgnore: true})
	paths := relPaths(entries)
	assert.Contains(t, paths, "skip.log")
}

func TestWalkGlobalIgnore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.ts"), "")
	writeFile(t, filepath.Join(root, "b.tmp"), "")

	entries := collect(t, root, Options{GlobalIgnore: []string{"*.tmp"}})
	paths := relPaths(entries)
	assert.Contains(t, paths, "a.ts")
	assert.NotContains(t, paths, "b.tmp")
}

func TestWalkBranchesOversizedDirectories(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 10; i++ {
		writeFile(t, filepath.Join(root, "f"+string(rune('a'+i))+".ts"), "")
	}

	entries := collect(t, root, Options{MaxLeafEntries: 4, MaxBranchChildren: 3})
	// Branching never emits synthetic branch directories as Scanner
	// entries.
	assert.Len(t, entries, 10)
	for _, e := range entries {
		assert.Equal(t, KindFile, e.Kind)
	}
}

func TestWalkSymlinkEntry(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "target.ts"), "")
	require.NoError(t, os.Symlink("target.ts", filepath.Join(root, "link.ts")))

	entries := collect(t, root, Options{})
	var found bool
	for _, e := range entries {
		if e.RelPath == "link.ts" {
			found = true
			assert.Equal(t, KindSymlink, e.Kind)
			assert.Equal(t, "target.ts", e.LinkTarget)
		}
	}
	assert.True(t, found)
}

func TestWalkMissingRootIsFatal(t *testing.T) {
	sc := New(filepath.Join(t.TempDir(), "missing"), Options{})
	err := sc.Walk(func(Entry, error) bool { return true })
	assert.Error(t, err)
}
