package lockfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tangram.systems/checkin/internal/artifact"
	"tangram.systems/checkin/internal/objectid"
)

func sampleLockWith(version objectid.ID) *artifact.Lock {
	return &artifact.Lock{Nodes: []artifact.LockNode{{
		Kind: artifact.KindFile,
		Dependencies: map[string]artifact.LockReferent{
			"d/^1": {ItemID: version, Options: artifact.ReferentOptions{Name: "d", Tag: "1.1.0"}},
		},
		DepOrder: []string{"d/^1"},
	}}}
}

func TestManager_WriteFileThenRead(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "pkg.tg.ts")
	require.NoError(t, os.WriteFile(filePath, []byte("export {};\n"), 0o644))

	m := &Manager{}
	lock := sampleLockWith("fil_d110")
	require.NoError(t, m.Write(filePath, lock, MediumFile, MediumAuto, true))

	require.FileExists(t, filePath+Ext)

	got, medium, err := m.Read(filePath)
	require.NoError(t, err)
	require.Equal(t, MediumFile, medium)
	require.Equal(t, objectid.ID("fil_d110"), got.Nodes[0].Dependencies["d/^1"].ItemID)
}

func TestManager_AutoPrefersFileForPackageRoot(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "tangram.ts")
	require.NoError(t, os.WriteFile(filePath, []byte("export {};\n"), 0o644))

	m := &Manager{}
	require.NoError(t, m.Write(filePath, sampleLockWith("fil_d110"), MediumAuto, MediumAuto, true))

	require.FileExists(t, filePath+Ext, "auto mode must prefer the sibling file medium for a package root")
}

func TestManager_AutoReusesExistingMedium(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "mod.tg.ts")
	require.NoError(t, os.WriteFile(filePath, []byte("export {};\n"), 0o644))

	m := &Manager{}
	require.NoError(t, m.Write(filePath, sampleLockWith("fil_d110"), MediumFile, MediumAuto, false))

	// A second write in auto mode, with the prior read reporting MediumFile,
	// must keep reusing the sibling file even though this is not a package
	// root (which would otherwise default auto to "attr").
	require.NoError(t, m.Write(filePath, sampleLockWith("fil_d111"), MediumAuto, MediumFile, false))
	require.FileExists(t, filePath+Ext)

	got, _, err := m.Read(filePath)
	require.NoError(t, err)
	require.Equal(t, objectid.ID("fil_d111"), got.Nodes[0].Dependencies["d/^1"].ItemID)
}

func TestManager_LockedAbortsOnDivergingContent(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "pkg.tg.ts")
	require.NoError(t, os.WriteFile(filePath, []byte("export {};\n"), 0o644))

	writer := &Manager{}
	require.NoError(t, writer.Write(filePath, sampleLockWith("fil_d100"), MediumFile, MediumAuto, true))

	locked := &Manager{Locked: true}
	err := locked.Write(filePath, sampleLockWith("fil_d110"), MediumFile, MediumFile, true)
	require.ErrorIs(t, err, ErrLockedNeedsUpdate)
}

func TestManager_LockedSucceedsWhenUnchanged(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "pkg.tg.ts")
	require.NoError(t, os.WriteFile(filePath, []byte("export {};\n"), 0o644))

	writer := &Manager{}
	require.NoError(t, writer.Write(filePath, sampleLockWith("fil_d100"), MediumFile, MediumAuto, true))

	locked := &Manager{Locked: true}
	require.NoError(t, locked.Write(filePath, sampleLockWith("fil_d100"), MediumFile, MediumFile, true), "re-running --locked with the identical lock content must succeed")
}

func TestManager_RemoveStaleFile(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "pkg.tg.ts")
	require.NoError(t, os.WriteFile(filePath, []byte("export {};\n"), 0o644))

	m := &Manager{}
	require.NoError(t, m.Write(filePath, sampleLockWith("fil_d100"), MediumFile, MediumAuto, true))
	require.FileExists(t, filePath+Ext)

	require.NoError(t, m.RemoveStale(filePath, MediumFile))
	_, err := os.Stat(filePath + Ext)
	require.True(t, os.IsNotExist(err))
}

func TestManager_ReadMissingLockReturnsAuto(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "mod.tg.ts")
	require.NoError(t, os.WriteFile(filePath, []byte("export {};\n"), 0o644))

	m := &Manager{}
	lock, medium, err := m.Read(filePath)
	require.NoError(t, err)
	require.Nil(t, lock)
	require.Equal(t, MediumAuto, medium)
}
