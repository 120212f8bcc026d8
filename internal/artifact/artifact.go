// Package artifact defines the check-in engine's data model: the tagged
// variants an object graph is built from (directory, file, symlink, graph),
// plus references, referents, tags, patterns, and locks.
package artifact

import "tangram.systems/checkin/internal/objectid"

// Kind discriminates the tagged artifact variant.
type Kind int

const (
	KindDirectory Kind = iota
	KindFile
	KindSymlink
)

// ModuleKind identifies how ImportAnalyzer should treat a file's bytes.
type ModuleKind string

const (
	ModuleNone ModuleKind = ""
	ModuleTS   ModuleKind = "ts"
	ModuleJS   ModuleKind = "js"
)

// ReferenceKind classifies a parsed import specifier.
type ReferenceKind int

const (
	ReferencePath ReferenceKind = iota
	ReferenceID
	ReferenceTag
)

// Reference is a parsed import specifier: the textual key under which it
// appears in a file's dependency map, plus attributes recognized by
// ImportAnalyzer (local, path) and, for tag references, a version pattern.
type Reference struct {
	Text    string // the literal specifier, e.g. "./x.tg.ts" or "a/^1"
	Kind    ReferenceKind
	Name    string            // tag name for ReferenceKind==ReferenceTag
	Pattern string            // version pattern after "/" for tag references
	Attrs   map[string]string // local, path, and any unrecognized attributes
}

// Referent is the resolution of a Reference: a target artifact, or a node
// within a graph (either a node of an already emitted graph, identified by
// GraphID, or a node of the same Graph object as the referring file,
// identified only by GraphNodeIndex with GraphID left empty) plus
// resolution options.
type Referent struct {
	// Exactly one of {ArtifactID} or {IsGraphNode, GraphNodeIndex[, GraphID]}
	// is meaningful; a wholly zero Referent (produced under
	// --unsolved-dependencies or --no-solve) means the reference is
	// unresolved.
	ArtifactID     objectid.ID
	IsGraphNode    bool
	GraphID        objectid.ID // empty when the target is in the referrer's own Graph object
	GraphNodeIndex int

	Options ReferentOptions
}

// ReferentOptions carries the recognized attribute values used to pick a
// final target out of a resolved artifact.
type ReferentOptions struct {
	ID   string // explicit id reference text, if any
	Path string // subpath attribute
	Tag  string // resolved tag, e.g. "1.1.0"
	Name string // tag name
}

// Directory maps entry names to edges pointing at child artifacts.
type Directory struct {
	Entries map[string]Edge // name -> edge, sorted by name at serialization time
}

// Edge references a child of a Directory, either a standalone artifact ID or
// a node within a Graph object addressed by (GraphID, Index).
type Edge struct {
	ArtifactID objectid.ID
	GraphID    objectid.ID
	GraphIndex int
	IsGraph    bool
}

// File holds content bytes (by blob reference), module metadata, and a
// dependency map keyed by the original reference text.
type File struct {
	BlobID       objectid.ID
	Executable   bool
	ModuleKind   ModuleKind
	Dependencies map[string]Referent // keyed by Reference.Text, not by resolved target
	// DepOrder preserves the source order of dependency keys. Dependencies is a
	// map because the intended invariant is keyed lookup, but serialization
	// must be deterministic, so DepOrder drives iteration order.
	DepOrder []string
}

// Symlink is exclusive: exactly one of ArtifactTarget or PathTarget is set.
type Symlink struct {
	ArtifactTarget objectid.ID
	PathTarget     string
}

// Tag is a published identity of an artifact, e.g. "a/1.0.0".
type Tag struct {
	Name    string
	Version string
}

func (t Tag) String() string {
	if t.Version == "" {
		return t.Name
	}
	return t.Name + "/" + t.Version
}

// Pattern matches against tags: a semver range, wildcard, or exact version.
type Pattern struct {
	Name string
	Raw  string // e.g. "^1", "*", "=2.1", "1.0.0"
}
