// Package graph implements the GraphBuilder: assembly of the complete
// in-memory object graph rooted at a check-in's entry point, out of scanned
// entries, analyzed imports, and the Resolver's solution.
//
// Nodes live in a flat arena addressed by integer index — following
// justin4957-graphfs's pkg/graph/builder.go (other_examples/80440d9a):
// represent cycles as an arena of nodes with integer indices, never owning
// pointers for intra-cycle edges. A Target is therefore either an arena
// index (internal, possibly cyclic) or an already-resolved external
// artifact ID; which one it is is exactly the distinction the
// Canonicalizer's external-edge substitution needs to get right.
package graph

import (
	"tangram.systems/checkin/internal/artifact"
	"tangram.systems/checkin/internal/objectid"
)

// Target is an edge's destination: either another node in this Graph's
// arena (IsInternal) or a standalone external artifact already addressable
// by ID.
type Target struct {
	IsInternal    bool
	InternalIndex int
	ExternalID    objectid.ID
	Unresolved    bool // true for null referents under --unsolved-dependencies/--no-solve
}

// DirEntry is one named child of a directory node.
type DirEntry struct {
	Name   string
	Target Target
}

// DepEdge is one dependency of a file node, keyed by its original reference
// text.
type DepEdge struct {
	RefText string
	Target  Target
	Options artifact.ReferentOptions
}

// Node is one member of the arena: a directory, file, or symlink, plus its
// outgoing edges.
type Node struct {
	Kind    artifact.Kind
	RelPath string // path relative to the check-in root; the canonicalizer's tie-break key

	// Directory fields.
	Entries []DirEntry

	// File fields.
	BlobID     objectid.ID
	Executable bool
	ModuleKind artifact.ModuleKind
	Deps       []DepEdge

	// Symlink fields.
	SymlinkTarget     Target
	SymlinkPathTarget string
	SymlinkIsPath     bool
}

// Graph is the complete in-memory object graph for one check-in.
type Graph struct {
	Nodes []Node
	// Root is the arena index of the artifact the check-in actually
	// requested (which may be a file deep inside a detected package root).
	Root int
	// PackageRoot is the relative path of the nearest ancestor directory
	// containing tangram.ts, or "" if none was found anywhere in the
	// scanned tree.
	PackageRoot string
}

// AddNode appends a node to the arena and returns its index.
func (g *Graph) AddNode(n Node) int {
	g.Nodes = append(g.Nodes, n)
	return len(g.Nodes) - 1
}
