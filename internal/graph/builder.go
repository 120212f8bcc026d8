package graph

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"tangram.systems/checkin/internal/artifact"
	"tangram.systems/checkin/internal/diag"
	"tangram.systems/checkin/internal/objectid"
	"tangram.systems/checkin/internal/resolve"
	"tangram.systems/checkin/internal/scan"
)

// PackageRootFile is the file whose presence in a directory promotes it to
// a package root.
const PackageRootFile = "tangram.ts"

// AnalyzedFile is one scanned file's ImportAnalyzer output, keyed by its
// path relative to the check-in root.
type AnalyzedFile struct {
	ModuleKind   artifact.ModuleKind
	Executable   bool
	BlobID       objectid.ID
	References   []artifact.Reference
}

// IDLookup resolves an id-reference's text to a target: the referenced ID
// is looked up in the store, or in a configured remote when the check-in
// is non-destructive.
type IDLookup func(ctx context.Context, id string) (objectid.ID, bool, error)

// Options configures a Build.
type Options struct {
	// EntryRelPath is the path, relative to the check-in root, that the
	// caller actually asked to check in; it may be a file or a directory.
	EntryRelPath string
	Destructive  bool
	IDLookup     IDLookup

	// MaxLeafEntries is the child-count threshold (checkin.directory.
	// max_leaf_entries) past which a directory's children are split into a
	// balanced branch tree. Zero disables splitting.
	MaxLeafEntries int
	// MaxBranchChildren is the fan-out (checkin.directory.
	// max_branch_children) of the branch directories produced above.
	MaxBranchChildren int
}

// Build assembles a Graph out of scanned entries, per-file analysis, and a
// resolved solution. Entries must be in the sorted order Scanner produces.
func Build(ctx context.Context, entries []scan.Entry, analyzed map[string]AnalyzedFile, solution *resolve.Solution, opts Options) (*Graph, diag.List, error) {
	b := &builder{
		analyzed: analyzed,
		solution: solution,
		opts:     opts,
		indexOf:  map[string]int{},
	}
	g := &Graph{}
	b.g = g

	// Root directory node ("") always exists, even for a single-file
	// check-in, so relative path lookups have a uniform base.
	rootIdx := g.AddNode(Node{Kind: artifact.KindDirectory, RelPath: ""})
	b.indexOf[""] = rootIdx

	for _, e := range entries {
		if err := b.addEntry(e); err != nil {
			return nil, b.diags, err
		}
	}

	if err := b.linkDependencies(ctx); err != nil {
		return nil, b.diags, err
	}

	b.branchOversizedDirectories()

	rootRel, err := b.packageRoot(opts.EntryRelPath)
	if err != nil {
		return nil, b.diags, err
	}
	requestedIdx, ok := b.indexOf[opts.EntryRelPath]
	if !ok {
		return nil, b.diags, fmt.Errorf("checkin: requested entry %q was not scanned", opts.EntryRelPath)
	}
	g.Root = requestedIdx
	g.PackageRoot = rootRel

	return g, b.diags, nil
}

type builder struct {
	g        *Graph
	analyzed map[string]AnalyzedFile
	solution *resolve.Solution
	opts     Options
	indexOf  map[string]int
	diags    diag.List
}

// ensureDir returns the index of the directory node for relPath, creating
// it (and any missing ancestors) if necessary. Because Scanner always
// yields a directory entry before its children, ancestors normally already
// exist; this guards the root and any scanner/analyzer disagreement.
func (b *builder) ensureDir(relPath string) int {
	if idx, ok := b.indexOf[relPath]; ok {
		return idx
	}
	parent := parentOf(relPath)
	parentIdx := b.ensureDir(parent)
	idx := b.g.AddNode(Node{Kind: artifact.KindDirectory, RelPath: relPath})
	b.indexOf[relPath] = idx
	b.attachChild(parentIdx, path.Base(relPath), Target{IsInternal: true, InternalIndex: idx})
	return idx
}

func parentOf(relPath string) string {
	dir := path.Dir(relPath)
	if dir == "." {
		return ""
	}
	return dir
}

func (b *builder) attachChild(dirIdx int, name string, t Target) {
	n := &b.g.Nodes[dirIdx]
	n.Entries = append(n.Entries, DirEntry{Name: name, Target: t})
}

func (b *builder) addEntry(e scan.Entry) error {
	parentIdx := b.ensureDir(parentOf(e.RelPath))

	switch e.Kind {
	case scan.KindDirectory:
		idx := b.ensureDir(e.RelPath)
		_ = idx
	case scan.KindFile:
		af := b.analyzed[e.RelPath]
		idx := b.g.AddNode(Node{
			Kind:       artifact.KindFile,
			RelPath:    e.RelPath,
			BlobID:     af.BlobID,
			Executable: af.Executable,
			ModuleKind: af.ModuleKind,
		})
		b.indexOf[e.RelPath] = idx
		b.attachChild(parentIdx, path.Base(e.RelPath), Target{IsInternal: true, InternalIndex: idx})
	case scan.KindSymlink:
		idx := b.g.AddNode(Node{Kind: artifact.KindSymlink, RelPath: e.RelPath})
		b.indexOf[e.RelPath] = idx
		b.attachChild(parentIdx, path.Base(e.RelPath), Target{IsInternal: true, InternalIndex: idx})
		if err := b.linkSymlink(idx, e); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) linkSymlink(idx int, e scan.Entry) error {
	n := &b.g.Nodes[idx]
	target := e.LinkTarget
	if path.IsAbs(target) {
		n.SymlinkIsPath = true
		n.SymlinkPathTarget = target
		return nil
	}
	resolved := path.Clean(path.Join(path.Dir(e.RelPath), target))
	if internalIdx, ok := b.indexOf[resolved]; ok && !strings.HasPrefix(resolved, "..") {
		n.SymlinkTarget = Target{IsInternal: true, InternalIndex: internalIdx}
		return nil
	}
	if b.opts.Destructive {
		return fmt.Errorf("checkin: destructive check-in: symlink %q escapes the entry", e.RelPath)
	}
	n.SymlinkIsPath = true
	n.SymlinkPathTarget = target
	return nil
}

// linkDependencies resolves every file's import references into DepEdges,
// after the full directory tree is known, so path references can be
// checked against it.
func (b *builder) linkDependencies(ctx context.Context) error {
	paths := make([]string, 0, len(b.analyzed))
	for p := range b.analyzed {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, relPath := range paths {
		idx, ok := b.indexOf[relPath]
		if !ok {
			continue
		}
		n := &b.g.Nodes[idx]
		for _, ref := range b.analyzed[relPath].References {
			edge, err := b.resolveReference(ctx, relPath, ref)
			if err != nil {
				return err
			}
			n.Deps = append(n.Deps, edge)
		}
	}
	return nil
}

func (b *builder) resolveReference(ctx context.Context, fromRelPath string, ref artifact.Reference) (DepEdge, error) {
	opts := artifact.ReferentOptions{
		ID:   ref.Attrs["id"],
		Path: ref.Attrs["path"],
		Name: ref.Name,
		Tag:  ref.Attrs["tag"],
	}

	switch ref.Kind {
	case artifact.ReferencePath:
		target, err := b.resolvePathReference(fromRelPath, ref)
		if err != nil {
			return DepEdge{}, err
		}
		return DepEdge{RefText: ref.Text, Target: target, Options: opts}, nil

	case artifact.ReferenceID:
		idText := strings.TrimPrefix(ref.Text, "")
		if b.opts.IDLookup == nil {
			return DepEdge{RefText: ref.Text, Target: Target{Unresolved: true}, Options: opts}, nil
		}
		id, found, err := b.opts.IDLookup(ctx, idText)
		if err != nil {
			return DepEdge{}, fmt.Errorf("checkin: looking up id reference %q: %w", ref.Text, err)
		}
		if !found {
			b.diags.Addf(diag.Pos{Path: fromRelPath}, "id reference %q not found", ref.Text)
			return DepEdge{RefText: ref.Text, Target: Target{Unresolved: true}, Options: opts}, nil
		}
		return DepEdge{RefText: ref.Text, Target: Target{ExternalID: id}, Options: opts}, nil

	case artifact.ReferenceTag:
		if b.solution == nil {
			return DepEdge{RefText: ref.Text, Target: Target{Unresolved: true}, Options: opts}, nil
		}
		binding, ok := b.solution.Bindings[ref.Text]
		if !ok || binding.Unresolved {
			return DepEdge{RefText: ref.Text, Target: Target{Unresolved: true}, Options: opts}, nil
		}
		opts.Tag = binding.Version
		return DepEdge{RefText: ref.Text, Target: Target{ExternalID: binding.ArtifactID}, Options: opts}, nil
	}
	return DepEdge{}, fmt.Errorf("checkin: unknown reference kind for %q", ref.Text)
}

func (b *builder) resolvePathReference(fromRelPath string, ref artifact.Reference) (Target, error) {
	resolved := path.Clean(path.Join(parentOf(fromRelPath), ref.Text))
	if ref.Attrs["local"] != "" {
		resolved = path.Clean(path.Join(parentOf(fromRelPath), ref.Attrs["local"]))
	}

	if strings.HasPrefix(resolved, "..") {
		if b.opts.Destructive {
			return Target{}, fmt.Errorf("checkin: destructive check-in: %q in %q escapes the entry", ref.Text, fromRelPath)
		}
		// Non-destructive: an external-path dependency reaches into the
		// store by path, same as a tag or id reference. Without a configured
		// remote this cannot be resolved here.
		return Target{Unresolved: true}, nil
	}

	idx, ok := b.indexOf[resolved]
	if !ok {
		return Target{Unresolved: true}, nil
	}
	return Target{IsInternal: true, InternalIndex: idx}, nil
}

// branchOversizedDirectories implements §4.1's directory splitting: any
// directory whose direct child count exceeds MaxLeafEntries has its children
// replaced by a balanced tree of synthetic branch directories fanning out at
// MaxBranchChildren, so two scans of the same oversized directory always
// produce the same layout regardless of how the entries happened to arrive.
// It runs once, after every real entry and dependency edge already exists,
// over a snapshot of the arena's current length: branch nodes it creates are
// never themselves re-branched by this same pass (they are built already
// within fan-out by construction).
func (b *builder) branchOversizedDirectories() {
	if b.opts.MaxLeafEntries <= 0 {
		return
	}
	// b.g.Nodes grows as splitEntries below adds branch nodes; snapshot the
	// length first so only directories that existed before branching started
	// are themselves considered for splitting; taking a *Node across an
	// AddNode call would risk a dangling pointer into a reallocated backing
	// array, so every directory is re-read from the arena by index instead.
	n := len(b.g.Nodes)
	for i := 0; i < n; i++ {
		if b.g.Nodes[i].Kind != artifact.KindDirectory || len(b.g.Nodes[i].Entries) <= b.opts.MaxLeafEntries {
			continue
		}
		relPath, entries := b.g.Nodes[i].RelPath, b.g.Nodes[i].Entries
		b.g.Nodes[i].Entries = b.splitEntries(relPath, entries)
	}
}

// splitEntries partitions entries (already in deterministic sorted order)
// into fan-out-sized synthetic branch directories, recursing until the
// top-level entry count itself fits within the fan-out. The package-root
// marker, if present, is kept as a direct entry of dirRelPath rather than
// folded into a branch, so root detection never has to search inside a
// synthetic subtree for it.
func (b *builder) splitEntries(dirRelPath string, entries []DirEntry) []DirEntry {
	fanout := b.opts.MaxBranchChildren
	if fanout <= 0 {
		fanout = len(entries)
	}

	var kept []DirEntry
	rest := entries[:0:0]
	for _, e := range entries {
		if e.Name == PackageRootFile {
			kept = append(kept, e)
			continue
		}
		rest = append(rest, e)
	}

	return append(kept, b.branchTree(dirRelPath, rest, fanout)...)
}

// branchTree groups entries into fanout-sized synthetic directory nodes
// named by their zero-padded chunk position, then recurses over the
// resulting branch entries until they themselves fit within fanout.
func (b *builder) branchTree(basePath string, entries []DirEntry, fanout int) []DirEntry {
	if len(entries) <= fanout || fanout <= 0 {
		return entries
	}

	var branches []DirEntry
	for i := 0; i < len(entries); i += fanout {
		end := i + fanout
		if end > len(entries) {
			end = len(entries)
		}
		name := fmt.Sprintf("%08d", len(branches))
		idx := b.g.AddNode(Node{
			Kind:    artifact.KindDirectory,
			RelPath: path.Join(basePath, name),
			Entries: append([]DirEntry(nil), entries[i:end]...),
		})
		branches = append(branches, DirEntry{Name: name, Target: Target{IsInternal: true, InternalIndex: idx}})
	}
	return b.branchTree(basePath, branches, fanout)
}

// packageRoot implements root detection: if entryRelPath
// (or any ancestor) has a tangram.ts sibling, the package root is the
// nearest such ancestor.
func (b *builder) packageRoot(entryRelPath string) (string, error) {
	dir := entryRelPath
	if idx, ok := b.indexOf[entryRelPath]; ok && b.g.Nodes[idx].Kind != artifact.KindDirectory {
		dir = parentOf(entryRelPath)
	}
	for {
		if b.hasPackageRootFile(dir) {
			return dir, nil
		}
		if dir == "" {
			return "", nil
		}
		dir = parentOf(dir)
	}
}

func (b *builder) hasPackageRootFile(dir string) bool {
	idx, ok := b.indexOf[dir]
	if !ok {
		return false
	}
	for _, e := range b.g.Nodes[idx].Entries {
		if e.Name == PackageRootFile {
			return true
		}
	}
	return false
}
