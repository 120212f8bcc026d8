package artifact

import "tangram.systems/checkin/internal/objectid"

// GraphNode is one member of a Graph object: an inline Directory, File, or
// Symlink whose internal edges reference other nodes of the same Graph by
// index rather than by artifact ID.
type GraphNode struct {
	Kind      Kind
	Directory *Directory // set iff Kind == KindDirectory
	File      *File      // set iff Kind == KindFile
	Symlink   *Symlink   // set iff Kind == KindSymlink

	// RelativePath is the node's path relative to the check-in root. It is
	// never part of content identity directly, but is the canonicalizer's
	// tie-break key and is carried here for that use.
	RelativePath string
}

// Graph is the artifact emitted for a non-trivial strongly connected
// component of the import graph. Its ID depends only on the canonical
// serialization of Nodes, never on the traversal entry point.
type Graph struct {
	Nodes []GraphNode
}

// Lock is the pinned resolution stored with one lock-bearing file (the
// package root, or a bare module file). It holds one LockNode per node of
// the check-in's graph, and each file LockNode mirrors that file's
// dependency keys 1-to-1.
type Lock struct {
	Nodes []LockNode
}

// LockNode mirrors one file (or directory/symlink, for structural
// completeness of the lock tree) and its frozen dependency bindings.
type LockNode struct {
	Kind         Kind
	Dependencies map[string]LockReferent // keyed by reference text
	DepOrder     []string
	Entries      map[string]LockEdge // for directory nodes
}

// LockReferent mirrors Referent but only ever carries the pinned {id, tag}
// pair plus the original options, matching the lock file's wire format.
type LockReferent struct {
	ItemID    objectid.ID // null in the lock file if unresolved (--unsolved-dependencies)
	ItemIndex int         // index of the target in this Lock's Nodes, if IsIndex
	IsIndex   bool
	Options   ReferentOptions
}

// LockEdge references another node in the same Lock by index.
type LockEdge struct {
	Index int
	Kind  Kind
}
