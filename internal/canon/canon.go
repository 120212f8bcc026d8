// Package canon implements the Canonicalizer: strongly connected component
// detection, initial labeling with mandatory external-edge-as-ID
// substitution, iterative Weisfeiler–Leman refinement, and a
// relative-path symmetry-breaking tie-break. This is the component most
// prone to non-determinism in the whole pipeline; no ecosystem library in
// the retrieval pack implements 1-WL graph canonicalization with a path
// tie-break, so it is hand-rolled directly (see DESIGN.md).
package canon

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"

	"tangram.systems/checkin/internal/artifact"
	"tangram.systems/checkin/internal/emit"
	"tangram.systems/checkin/internal/graph"
	"tangram.systems/checkin/internal/objectid"
)

// MemberRef addresses one node that ended up inside a Graph object.
type MemberRef struct {
	GraphID objectid.ID
	Index   int
}

// Result is the canonicalizer's output: every arena node's final address,
// either a standalone artifact ID or a (graph_id, index) pair.
type Result struct {
	ArtifactIDs map[int]objectid.ID
	Members     map[int]MemberRef
}

func (r *Result) idFor(idx int) (objectid.ID, bool) {
	if id, ok := r.ArtifactIDs[idx]; ok {
		return id, true
	}
	return "", false
}

// Canonicalize assigns stable IDs to every node of g, writing objects
// through e as it goes (bottom-up: SCCs with no unresolved internal
// dependency are emitted before any SCC that references them).
func Canonicalize(ctx context.Context, g *graph.Graph, e *emit.Emitter) (*Result, error) {
	sccs := tarjanSCCs(g)

	res := &Result{ArtifactIDs: map[int]objectid.ID{}, Members: map[int]MemberRef{}}

	for _, scc := range sccs {
		if len(scc) == 1 && !hasSelfEdge(g, scc[0]) {
			id, err := emitTrivial(ctx, g, scc[0], res, e)
			if err != nil {
				return nil, err
			}
			res.ArtifactIDs[scc[0]] = id
			continue
		}
		if err := emitCycle(ctx, g, scc, res, e); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// tarjanSCCs computes the strongly connected components of g's internal
// edges using Tarjan's algorithm, grounded on the same SCC-over-a-Node-graph
// shape as cuelang.org/go/internal/core/export/topological's Graph/Node
// (Outgoing edges walked from a DFS root, components popped off an explicit
// stack). A component is popped only once every node reachable from it has
// already been visited, so a component that depends on another (via an
// internal edge) is always popped after the component it depends on — the
// returned order is already the bottom-up order Canonicalize needs, with no
// reversal required.
func tarjanSCCs(g *graph.Graph) [][]int {
	n := len(g.Nodes)
	index := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	var stack []int
	next := 1
	var sccs [][]int

	var strongconnect func(v int)
	strongconnect = func(v int) {
		index[v] = next
		lowlink[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range internalTargets(g, v) {
			switch {
			case index[w] == 0:
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			case onStack[w]:
				if index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
			}
		}

		if lowlink[v] == index[v] {
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for v := 0; v < n; v++ {
		if index[v] == 0 {
			strongconnect(v)
		}
	}
	return sccs
}

func hasSelfEdge(g *graph.Graph, idx int) bool {
	for _, t := range internalTargets(g, idx) {
		if t == idx {
			return true
		}
	}
	return false
}

// internalTargets returns the arena indices of idx's internal outgoing
// edges, in no particular order (callers that need determinism sort).
func internalTargets(g *graph.Graph, idx int) []int {
	n := &g.Nodes[idx]
	var out []int
	switch n.Kind {
	case artifact.KindDirectory:
		for _, e := range n.Entries {
			if e.Target.IsInternal {
				out = append(out, e.Target.InternalIndex)
			}
		}
	case artifact.KindFile:
		for _, d := range n.Deps {
			if d.Target.IsInternal {
				out = append(out, d.Target.InternalIndex)
			}
		}
	case artifact.KindSymlink:
		if n.SymlinkTarget.IsInternal {
			out = append(out, n.SymlinkTarget.InternalIndex)
		}
	}
	return out
}

func emitTrivial(ctx context.Context, g *graph.Graph, idx int, res *Result, e *emit.Emitter) (objectid.ID, error) {
	n := &g.Nodes[idx]
	switch n.Kind {
	case artifact.KindDirectory:
		d, err := materializeDirectory(g, n, res)
		if err != nil {
			return "", err
		}
		return e.EmitDirectory(ctx, d)
	case artifact.KindFile:
		f, err := materializeFile(g, n, res)
		if err != nil {
			return "", err
		}
		return e.EmitFile(ctx, f)
	case artifact.KindSymlink:
		s, err := materializeSymlink(n, res)
		if err != nil {
			return "", err
		}
		return e.EmitSymlink(ctx, s)
	}
	return "", fmt.Errorf("checkin: unknown node kind at index %d", idx)
}

func resolveTarget(t graph.Target, res *Result) (objectid.ID, bool, error) {
	if !t.IsInternal {
		if t.Unresolved {
			return "", false, nil
		}
		return t.ExternalID, true, nil
	}
	if id, ok := res.idFor(t.InternalIndex); ok {
		return id, true, nil
	}
	if m, ok := res.Members[t.InternalIndex]; ok {
		// Addressed via graph membership; represented to callers as an
		// artifact reference pair rather than a bare ID. Callers needing
		// this must check res.Members directly; resolveTarget is used only
		// where a bare external ID is the right representation (directory
		// entries, symlink targets to already-resolved nodes outside any
		// cycle the caller is itself part of).
		return "", false, fmt.Errorf("checkin: internal target at %d resolves into graph %s[%d], not a bare ID", t.InternalIndex, m.GraphID, m.Index)
	}
	return "", false, fmt.Errorf("checkin: internal target at index %d not yet resolved (out-of-order emission)", t.InternalIndex)
}

func materializeDirectory(g *graph.Graph, n *graph.Node, res *Result) (*artifact.Directory, error) {
	d := &artifact.Directory{Entries: map[string]artifact.Edge{}}
	for _, de := range n.Entries {
		edge, err := materializeEdge(de.Target, res)
		if err != nil {
			return nil, fmt.Errorf("checkin: directory entry %q: %w", de.Name, err)
		}
		d.Entries[de.Name] = edge
	}
	return d, nil
}

func materializeEdge(t graph.Target, res *Result) (artifact.Edge, error) {
	if t.IsInternal {
		if m, ok := res.Members[t.InternalIndex]; ok {
			return artifact.Edge{IsGraph: true, GraphID: m.GraphID, GraphIndex: m.Index}, nil
		}
	}
	id, ok, err := resolveTarget(t, res)
	if err != nil {
		return artifact.Edge{}, err
	}
	if !ok {
		return artifact.Edge{}, fmt.Errorf("checkin: unresolved edge")
	}
	return artifact.Edge{ArtifactID: id}, nil
}

func materializeFile(g *graph.Graph, n *graph.Node, res *Result) (*artifact.File, error) {
	f := &artifact.File{
		BlobID:       n.BlobID,
		Executable:   n.Executable,
		ModuleKind:   n.ModuleKind,
		Dependencies: map[string]artifact.Referent{},
		DepOrder:     make([]string, 0, len(n.Deps)),
	}
	for _, d := range n.Deps {
		f.DepOrder = append(f.DepOrder, d.RefText)
		r := artifact.Referent{Options: d.Options}
		if d.Target.IsInternal {
			if m, ok := res.Members[d.Target.InternalIndex]; ok {
				r.IsGraphNode = true
				r.GraphID = m.GraphID
				r.GraphNodeIndex = m.Index
				f.Dependencies[d.RefText] = r
				continue
			}
		}
		id, ok, err := resolveTarget(d.Target, res)
		if err != nil {
			return nil, fmt.Errorf("checkin: dependency %q: %w", d.RefText, err)
		}
		if ok {
			r.ArtifactID = id
		}
		f.Dependencies[d.RefText] = r
	}
	return f, nil
}

func materializeSymlink(n *graph.Node, res *Result) (*artifact.Symlink, error) {
	if n.SymlinkIsPath {
		return &artifact.Symlink{PathTarget: n.SymlinkPathTarget}, nil
	}
	if m, ok := res.Members[n.SymlinkTarget.InternalIndex]; n.SymlinkTarget.IsInternal && ok {
		return nil, fmt.Errorf("checkin: symlink into a cyclic graph member is not representable as a bare artifact target (%s[%d])", m.GraphID, m.Index)
	}
	id, ok, err := resolveTarget(n.SymlinkTarget, res)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("checkin: symlink target unresolved")
	}
	return &artifact.Symlink{ArtifactTarget: id}, nil
}

// --- cyclic SCC handling ---

func emitCycle(ctx context.Context, g *graph.Graph, scc []int, res *Result, e *emit.Emitter) error {
	sccSet := make(map[int]bool, len(scc))
	for _, idx := range scc {
		sccSet[idx] = true
	}

	labels := make(map[int]uint64, len(scc))
	for _, idx := range scc {
		sig, err := initialSignature(g, idx, sccSet, res)
		if err != nil {
			return err
		}
		labels[idx] = hash64(sig)
	}

	// Iterative 1-WL refinement until labels stabilize (bounded by |scc| to
	// guarantee termination even in pathological inputs).
	for iter := 0; iter < len(scc)+1; iter++ {
		next := make(map[int]uint64, len(scc))
		for _, idx := range scc {
			next[idx] = refine(g, idx, sccSet, labels)
		}
		changed := false
		for _, idx := range scc {
			if next[idx] != labels[idx] {
				changed = true
			}
		}
		labels = next
		if !changed {
			break
		}
	}

	// Order: (refined_label, relative_path). Ties after WL refinement are
	// structurally symmetric nodes (e.g. a star of equivalent siblings);
	// the relative path is deterministic in the source tree and breaks
	// the tie.
	ordered := append([]int(nil), scc...)
	sort.Slice(ordered, func(i, j int) bool {
		li, lj := labels[ordered[i]], labels[ordered[j]]
		if li != lj {
			return li < lj
		}
		return g.Nodes[ordered[i]].RelPath < g.Nodes[ordered[j]].RelPath
	})

	newIndex := make(map[int]int, len(ordered))
	for i, idx := range ordered {
		newIndex[idx] = i
	}

	gr := &artifact.Graph{Nodes: make([]artifact.GraphNode, len(ordered))}
	for i, idx := range ordered {
		gn, err := materializeGraphNode(g, idx, sccSet, newIndex, res)
		if err != nil {
			return err
		}
		gr.Nodes[i] = gn
	}

	id, err := e.EmitGraph(ctx, gr)
	if err != nil {
		return err
	}
	for idx, i := range newIndex {
		res.Members[idx] = MemberRef{GraphID: id, Index: i}
	}
	return nil
}

const cyclePlaceholder = "\x00cycle\x00"

// initialSignature builds each node's starting label: internal (same-SCC)
// edges become the placeholder; edges to already-resolved nodes (other
// SCCs, processed earlier by bottom-up emission) or truly external targets
// become the target's fully-qualified object ID. Using the in-memory arena
// index here instead of the resolved ID would make the resulting hash
// depend on scan order rather than content, which is exactly the kind of
// non-determinism this package exists to avoid.
func initialSignature(g *graph.Graph, idx int, sccSet map[int]bool, res *Result) ([]byte, error) {
	n := &g.Nodes[idx]
	w := &sigWriter{}
	w.u8(byte(n.Kind))
	switch n.Kind {
	case artifact.KindDirectory:
		names := make([]string, 0, len(n.Entries))
		byName := map[string]graph.Target{}
		for _, e := range n.Entries {
			names = append(names, e.Name)
			byName[e.Name] = e.Target
		}
		sort.Strings(names)
		for _, name := range names {
			w.str(name)
			if err := w.target(byName[name], sccSet, res); err != nil {
				return nil, err
			}
		}
	case artifact.KindFile:
		w.str(string(n.BlobID))
		w.u8(b2u8(n.Executable))
		w.str(string(n.ModuleKind))
		for _, d := range n.Deps {
			w.str(d.RefText)
			if err := w.target(d.Target, sccSet, res); err != nil {
				return nil, err
			}
		}
	case artifact.KindSymlink:
		if n.SymlinkIsPath {
			w.u8(0)
			w.str(n.SymlinkPathTarget)
		} else {
			w.u8(1)
			if err := w.target(n.SymlinkTarget, sccSet, res); err != nil {
				return nil, err
			}
		}
	}
	return w.buf, nil
}

// refine implements one step of 1-WL: replace idx's label with a hash of
// (current label, sorted multiset of (edge position, neighbor current
// label)) over idx's same-SCC neighbors only.
func refine(g *graph.Graph, idx int, sccSet map[int]bool, labels map[int]uint64) uint64 {
	w := &sigWriter{}
	binary.LittleEndian.PutUint64(w.grow(8), labels[idx])

	type nb struct {
		pos   string
		label uint64
	}
	var neighbors []nb
	switch g.Nodes[idx].Kind {
	case artifact.KindDirectory:
		for _, e := range g.Nodes[idx].Entries {
			if e.Target.IsInternal && sccSet[e.Target.InternalIndex] {
				neighbors = append(neighbors, nb{pos: "entry:" + e.Name, label: labels[e.Target.InternalIndex]})
			}
		}
	case artifact.KindFile:
		for _, d := range g.Nodes[idx].Deps {
			if d.Target.IsInternal && sccSet[d.Target.InternalIndex] {
				neighbors = append(neighbors, nb{pos: "dep:" + d.RefText, label: labels[d.Target.InternalIndex]})
			}
		}
	case artifact.KindSymlink:
		t := g.Nodes[idx].SymlinkTarget
		if !g.Nodes[idx].SymlinkIsPath && t.IsInternal && sccSet[t.InternalIndex] {
			neighbors = append(neighbors, nb{pos: "symlink", label: labels[t.InternalIndex]})
		}
	}
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].pos != neighbors[j].pos {
			return neighbors[i].pos < neighbors[j].pos
		}
		return neighbors[i].label < neighbors[j].label
	})
	for _, n := range neighbors {
		w.str(n.pos)
		binary.LittleEndian.PutUint64(w.grow(8), n.label)
	}
	return hash64(w.buf)
}

func materializeGraphNode(g *graph.Graph, idx int, sccSet map[int]bool, newIndex map[int]int, res *Result) (artifact.GraphNode, error) {
	n := &g.Nodes[idx]
	gn := artifact.GraphNode{Kind: n.Kind, RelativePath: n.RelPath}

	rewrite := func(t graph.Target) (artifact.Edge, error) {
		if t.IsInternal && sccSet[t.InternalIndex] {
			return artifact.Edge{IsGraph: true, GraphIndex: newIndex[t.InternalIndex]}, nil
		}
		return materializeEdge(t, res)
	}

	switch n.Kind {
	case artifact.KindDirectory:
		d := &artifact.Directory{Entries: map[string]artifact.Edge{}}
		for _, e := range n.Entries {
			edge, err := rewrite(e.Target)
			if err != nil {
				return artifact.GraphNode{}, err
			}
			d.Entries[e.Name] = edge
		}
		gn.Directory = d
	case artifact.KindFile:
		f := &artifact.File{BlobID: n.BlobID, Executable: n.Executable, ModuleKind: n.ModuleKind, Dependencies: map[string]artifact.Referent{}}
		for _, d := range n.Deps {
			f.DepOrder = append(f.DepOrder, d.RefText)
			if d.Target.IsInternal && sccSet[d.Target.InternalIndex] {
				f.Dependencies[d.RefText] = artifact.Referent{IsGraphNode: true, GraphNodeIndex: newIndex[d.Target.InternalIndex], Options: d.Options}
				continue
			}
			r := artifact.Referent{Options: d.Options}
			id, ok, err := resolveTarget(d.Target, res)
			if err != nil {
				return artifact.GraphNode{}, err
			}
			if ok {
				r.ArtifactID = id
			}
			f.Dependencies[d.RefText] = r
		}
		gn.File = f
	case artifact.KindSymlink:
		s := &artifact.Symlink{}
		if n.SymlinkIsPath {
			s.PathTarget = n.SymlinkPathTarget
		} else if n.SymlinkTarget.IsInternal && sccSet[n.SymlinkTarget.InternalIndex] {
			// Symlink has no graph-placeholder edge type distinct from
			// ArtifactTarget, so a symlink cannot point at a node still inside
			// its own cycle: that target is always an artifact, never a
			// member index.
			return artifact.GraphNode{}, fmt.Errorf("checkin: symlink %q cannot target a node within its own cycle", n.RelPath)
		} else {
			id, ok, err := resolveTarget(n.SymlinkTarget, res)
			if err != nil {
				return artifact.GraphNode{}, err
			}
			if ok {
				s.ArtifactTarget = id
			}
		}
		gn.Symlink = s
	}
	return gn, nil
}

// --- small helpers ---

type sigWriter struct{ buf []byte }

func (w *sigWriter) grow(n int) []byte {
	start := len(w.buf)
	w.buf = append(w.buf, make([]byte, n)...)
	return w.buf[start : start+n]
}

func (w *sigWriter) u8(b byte) { w.buf = append(w.buf, b) }

func (w *sigWriter) str(s string) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	w.buf = append(w.buf, lenBuf[:]...)
	w.buf = append(w.buf, s...)
}

func (w *sigWriter) target(t graph.Target, sccSet map[int]bool, res *Result) error {
	if t.IsInternal && sccSet[t.InternalIndex] {
		w.str(cyclePlaceholder)
		return nil
	}
	id, ok, err := resolveTarget(t, res)
	if err != nil {
		return err
	}
	if !ok {
		w.str("\x00unresolved\x00")
		return nil
	}
	w.str(string(id))
	return nil
}

func b2u8(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func hash64(b []byte) uint64 {
	sum := sha256.Sum256(b)
	return binary.LittleEndian.Uint64(sum[:8])
}
