// Package engine orchestrates one check-in end to end: Scanner,
// ImportAnalyzer, Resolver, GraphBuilder, Canonicalizer, and
// ObjectEmitter/LockManager, wired behind a single call the way CUE's
// cmd/cue/cmd wires its own load/build/export pipeline behind one command
// handler.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"tangram.systems/checkin/internal/artifact"
	"tangram.systems/checkin/internal/canon"
	"tangram.systems/checkin/internal/catalog"
	"tangram.systems/checkin/internal/config"
	"tangram.systems/checkin/internal/diag"
	"tangram.systems/checkin/internal/emit"
	"tangram.systems/checkin/internal/fingerprint"
	"tangram.systems/checkin/internal/graph"
	"tangram.systems/checkin/internal/imports"
	"tangram.systems/checkin/internal/lockfile"
	"tangram.systems/checkin/internal/objectid"
	"tangram.systems/checkin/internal/resolve"
	"tangram.systems/checkin/internal/scan"
	"tangram.systems/checkin/internal/store"
)

// Options configures one CheckIn call.
type Options struct {
	// EntryPath is the file or directory the caller asked to check in,
	// absolute or relative to the process's working directory.
	EntryPath string

	Store   store.Store
	Catalog catalog.Client
	Config  config.Config
	Flags   resolve.Flags

	LockMedium    lockfile.Medium
	Destructive   bool
	DisableIgnore bool
	IDLookup      graph.IDLookup
}

// Result is one CheckIn's outcome.
type Result struct {
	// ArtifactID is the requested entry's final object ID. It is empty when
	// the entry ended up as a member of a cyclic graph object instead of a
	// standalone artifact; Member describes that case.
	ArtifactID objectid.ID
	Member     *canon.MemberRef

	Graph       *graph.Graph
	Solution    *resolve.Solution
	Diagnostics diag.List
	LockWritten bool

	// Shared reports that the check-in of this fingerprinted content was
	// shared between concurrent calls: it is true both for a call that was
	// served another in-flight check-in and for the call that did the work
	// while others waited on it.
	Shared bool
}

// Engine runs check-ins, deduplicating concurrent calls over the same
// content via its fingerprint table (§5).
type Engine struct {
	fingerprints *fingerprint.Table
}

// New creates an Engine.
func New() *Engine {
	return &Engine{fingerprints: fingerprint.NewTable()}
}

// CheckIn runs the full pipeline for opts.EntryPath.
func (e *Engine) CheckIn(ctx context.Context, opts Options) (*Result, error) {
	scanRoot, entryRelPath, err := resolveRootAndEntry(opts.EntryPath)
	if err != nil {
		return nil, err
	}

	entries, analyzed, diags, err := scanAndAnalyze(ctx, scanRoot, opts.Config, opts.DisableIgnore, opts.Store)
	if err != nil {
		return nil, err
	}

	fp := fingerprint.Compute(entryRelPath, contentDigest(analyzed))

	var result *Result
	fpResult, err := e.fingerprints.Do(fp, func() (objectid.ID, error) {
		r, doErr := checkInOnce(ctx, opts, scanRoot, entryRelPath, entries, analyzed, diags)
		if doErr != nil {
			return "", doErr
		}
		result = r
		return r.ArtifactID, nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		// Another goroutine's in-flight call (the singleflight "leader") did
		// the actual work; this caller only gets the shared artifact ID.
		return &Result{ArtifactID: fpResult.ArtifactID, Shared: true}, nil
	}
	result.Shared = fpResult.Shared
	return result, nil
}

// resolveRootAndEntry walks upward on disk from entryPath's directory
// looking for the nearest ancestor containing tangram.ts, promoting the
// scan root to that ancestor so GraphBuilder's own (in-memory) package-root
// search always has the whole package already within the scanned tree.
// Absent any tangram.ts, the scan root is entryPath's own directory.
func resolveRootAndEntry(entryPath string) (scanRoot, entryRelPath string, err error) {
	abs, err := filepath.Abs(entryPath)
	if err != nil {
		return "", "", fmt.Errorf("checkin: resolving entry path %q: %w", entryPath, err)
	}
	info, err := os.Lstat(abs)
	if err != nil {
		return "", "", fmt.Errorf("checkin: entry path %q: %w", entryPath, err)
	}

	dir := abs
	if !info.IsDir() {
		dir = filepath.Dir(abs)
	}

	root := dir
	for cur := dir; ; {
		if _, statErr := os.Lstat(filepath.Join(cur, graph.PackageRootFile)); statErr == nil {
			root = cur
			break
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", "", fmt.Errorf("checkin: relativizing %q to %q: %w", abs, root, err)
	}
	if rel == "." {
		rel = ""
	}
	return root, filepath.ToSlash(rel), nil
}

// scanAndAnalyze runs the Scanner and, for every file entry, the
// ImportAnalyzer, storing each file's blob along the way. A per-file error
// (unreadable file, malformed imports) is recorded as a diagnostic and does
// not abort the whole check-in; only a failure to start the walk itself
// (missing entry path) is fatal.
func scanAndAnalyze(ctx context.Context, scanRoot string, cfg config.Config, disableIgnore bool, st store.Store) ([]scan.Entry, map[string]graph.AnalyzedFile, diag.List, error) {
	var diags diag.List
	analyzed := map[string]graph.AnalyzedFile{}
	var entries []scan.Entry

	sc := scan.New(scanRoot, scan.Options{
		MaxLeafEntries:    cfg.MaxLeafEntries,
		MaxBranchChildren: cfg.MaxBranchChildren,
		GlobalIgnore:      cfg.Ignore,
		DisableIgnore:     disableIgnore,
	})

	walkErr := sc.Walk(func(ent scan.Entry, walkErr error) bool {
		if walkErr != nil {
			diags.Addf(diag.Pos{Path: ent.RelPath}, "scanning: %v", walkErr)
			return true
		}
		entries = append(entries, ent)
		if ent.Kind != scan.KindFile {
			return true
		}

		full := filepath.Join(scanRoot, filepath.FromSlash(ent.RelPath))
		data, readErr := os.ReadFile(full)
		if readErr != nil {
			diags.Addf(diag.Pos{Path: ent.RelPath}, "reading file: %v", readErr)
			return true
		}

		blobID, putErr := st.PutBlob(ctx, bytes.NewReader(data))
		if putErr != nil {
			diags.Addf(diag.Pos{Path: ent.RelPath}, "storing blob: %v", putErr)
			return true
		}

		kind := imports.DetectModuleKind(path.Base(ent.RelPath))
		mod, modDiags := imports.Analyze(ent.RelPath, kind, data)
		diags = append(diags, modDiags...)

		analyzed[ent.RelPath] = graph.AnalyzedFile{
			ModuleKind: kind,
			Executable: ent.Mode&0o111 != 0,
			BlobID:     blobID,
			References: mod.References,
		}
		return true
	})
	if walkErr != nil {
		return nil, nil, diags, walkErr
	}
	return entries, analyzed, diags, nil
}

// contentDigest folds every analyzed file's path and blob ID into one
// deterministic digest, the fingerprint table's notion of "this content",
// independent of which absolute filesystem path it was scanned from.
func contentDigest(analyzed map[string]graph.AnalyzedFile) [28]byte {
	paths := make([]string, 0, len(analyzed))
	for p := range analyzed {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	for _, p := range paths {
		buf.WriteString(p)
		buf.WriteByte(0)
		buf.WriteString(string(analyzed[p].BlobID))
		buf.WriteByte(0)
	}
	return objectid.Hash(buf.Bytes())
}

// tagRootsOf collects every tag reference across the whole scanned tree, in
// deterministic (path, then source) order: the Resolver's roots are not
// just the requested entry's own references, since a directory check-in's
// solution must account for every file the entry point transitively
// contains on disk, not only what the entry file itself imports.
func tagRootsOf(analyzed map[string]graph.AnalyzedFile) []artifact.Reference {
	paths := make([]string, 0, len(analyzed))
	for p := range analyzed {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var roots []artifact.Reference
	for _, p := range paths {
		for _, ref := range analyzed[p].References {
			if ref.Kind == artifact.ReferenceTag {
				roots = append(roots, ref)
			}
		}
	}
	return roots
}

func lockHintFrom(lock *artifact.Lock) resolve.LockHint {
	hint := resolve.LockHint{ByName: map[string]catalog.Candidate{}}
	if lock == nil {
		return hint
	}
	for _, n := range lock.Nodes {
		for _, key := range n.DepOrder {
			r := n.Dependencies[key]
			if r.Options.Name == "" || r.ItemID == "" {
				continue
			}
			hint.ByName[r.Options.Name] = catalog.Candidate{Version: r.Options.Tag, ArtifactID: r.ItemID}
		}
	}
	return hint
}

// checkInOnce performs the solve/build/canonicalize/lock pipeline for a
// single fingerprinted check-in; it never runs twice concurrently for the
// same fingerprint; see Engine.fingerprints.
func checkInOnce(ctx context.Context, opts Options, scanRoot, entryRelPath string, entries []scan.Entry, analyzed map[string]graph.AnalyzedFile, diags diag.List) (*Result, error) {
	// resolveRootAndEntry already promoted scanRoot to the nearest ancestor
	// with tangram.ts, if one exists, so checking scanRoot itself tells us
	// whether this check-in has a package root at all.
	hasPackageRoot := false
	lockFilePath := ""
	if _, err := os.Lstat(filepath.Join(scanRoot, graph.PackageRootFile)); err == nil {
		hasPackageRoot = true
		lockFilePath = filepath.Join(scanRoot, graph.PackageRootFile)
	} else if fi, err := os.Lstat(filepath.Join(scanRoot, filepath.FromSlash(entryRelPath))); err == nil && !fi.IsDir() {
		lockFilePath = filepath.Join(scanRoot, filepath.FromSlash(entryRelPath))
	}

	lockMgr := &lockfile.Manager{Locked: opts.Flags.Locked}
	var existingLock *artifact.Lock
	existingMedium := lockfile.MediumAuto
	if lockFilePath != "" {
		l, medium, err := lockMgr.Read(lockFilePath)
		if err != nil {
			return nil, fmt.Errorf("checkin: reading lock: %w", err)
		}
		existingLock, existingMedium = l, medium
	}

	solver := &resolve.Solver{
		Catalog: opts.Catalog,
		Deps:    &storeDependencyLister{Store: opts.Store},
		Lock:    lockHintFrom(existingLock),
		Flags:   opts.Flags,
	}
	solution, err := solver.Solve(ctx, tagRootsOf(analyzed))
	if err != nil {
		return nil, err
	}

	g, buildDiags, err := graph.Build(ctx, entries, analyzed, solution, graph.Options{
		EntryRelPath:      entryRelPath,
		Destructive:       opts.Destructive,
		IDLookup:          opts.IDLookup,
		MaxLeafEntries:    opts.Config.MaxLeafEntries,
		MaxBranchChildren: opts.Config.MaxBranchChildren,
	})
	diags = append(diags, buildDiags...)
	if err != nil {
		return nil, err
	}

	res, err := canon.Canonicalize(ctx, g, &emit.Emitter{Store: opts.Store})
	if err != nil {
		return nil, err
	}

	result := &Result{Graph: g, Solution: solution, Diagnostics: diags}
	if id, ok := res.ArtifactIDs[g.Root]; ok {
		result.ArtifactID = id
	} else if m, ok := res.Members[g.Root]; ok {
		member := m
		result.Member = &member
	}

	switch {
	case lockFilePath != "" && len(solution.Selected) > 0:
		lock := buildLock(g)
		if err := lockMgr.Write(lockFilePath, lock, opts.LockMedium, existingMedium, hasPackageRoot); err != nil {
			if errors.Is(err, lockfile.ErrLockedNeedsUpdate) {
				return nil, err
			}
			return nil, fmt.Errorf("checkin: writing lock: %w", err)
		}
		// Write stores nothing under --locked (it only verifies) or for
		// --lock=none.
		result.LockWritten = !opts.Flags.Locked && opts.LockMedium != lockfile.MediumNone

	case lockFilePath != "" && existingLock != nil:
		// This file (or package) no longer has any tag dependency to pin, but
		// a lock from an earlier check-in is still on disk: per §3's
		// lifecycle, a lock is materialized only when the check-in completes
		// with at least one tag dependency, so a now-empty dependency set
		// makes the existing lock stale and it is removed. --locked forbids
		// this removal the same way it forbids any other lock update.
		if opts.Flags.Locked {
			return nil, fmt.Errorf("checkin: %w", lockfile.ErrLockedNeedsUpdate)
		}
		if err := lockMgr.RemoveStale(lockFilePath, existingMedium); err != nil {
			return nil, fmt.Errorf("checkin: removing stale lock: %w", err)
		}
	}

	return result, nil
}
