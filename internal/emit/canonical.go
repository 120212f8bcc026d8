// Package emit implements canonical binary serialization of artifacts and
// the ObjectEmitter's bottom-up, idempotent store writes. The encoding is a
// small self-describing tagged binary format: every
// value is preceded by a type tag and every collection is length-prefixed.
// Directory entries are sorted by name before encoding; a File's
// dependencies are not sorted but written in their recorded source order
// (DepOrder).
//
// Ordering this bottom-up (leaves, i.e. blobs and non-cyclic children,
// before their referrers) mirrors the deterministic member ordering CUE's
// internal/mod/modzip uses when writing a module's zip archive: a parent's
// serialized form only ever references children by their already-known IDs,
// never inlines them, so a child must exist in the Store before its parent
// is serialized.
package emit

import (
	"encoding/binary"
	"fmt"
	"sort"

	"tangram.systems/checkin/internal/artifact"
	"tangram.systems/checkin/internal/objectid"
)

type tag byte

const (
	tagDirectory tag = iota + 1
	tagFile
	tagSymlink
	tagGraph
	tagEdgeArtifact
	tagEdgeGraphNode
	tagReferentNil
	tagReferentArtifact
	tagReferentGraphNode
)

type writer struct {
	buf []byte
}

func (w *writer) byte(b byte)   { w.buf = append(w.buf, b) }
func (w *writer) tag(t tag)     { w.byte(byte(t)) }
func (w *writer) bool(b bool) {
	if b {
		w.byte(1)
	} else {
		w.byte(0)
	}
}

func (w *writer) uvarint(n uint64) {
	var tmp [binary.MaxVarintLen64]byte
	l := binary.PutUvarint(tmp[:], n)
	w.buf = append(w.buf, tmp[:l]...)
}

func (w *writer) varint(n int) { w.uvarint(uint64(int64(n))) }

func (w *writer) bytes(b []byte) {
	w.uvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) string(s string) { w.bytes([]byte(s)) }

func (w *writer) id(id objectid.ID) { w.string(string(id)) }

// CanonicalDirectory serializes a Directory. Entries are sorted by name.
func CanonicalDirectory(d *artifact.Directory) []byte {
	w := &writer{}
	w.tag(tagDirectory)
	names := make([]string, 0, len(d.Entries))
	for name := range d.Entries {
		names = append(names, name)
	}
	sort.Strings(names)
	w.uvarint(uint64(len(names)))
	for _, name := range names {
		e := d.Entries[name]
		w.string(name)
		writeEdge(w, e)
	}
	return w.buf
}

func writeEdge(w *writer, e artifact.Edge) {
	if e.IsGraph {
		w.tag(tagEdgeGraphNode)
		w.id(e.GraphID)
		w.varint(e.GraphIndex)
	} else {
		w.tag(tagEdgeArtifact)
		w.id(e.ArtifactID)
	}
}

// CanonicalFile serializes a File. Dependencies are written in DepOrder
// (the order import specifiers appeared in source); the reference text
// itself, not the resolved target, is the key that makes two files with
// different reference texts distinguishable even if both resolve
// identically.
func CanonicalFile(f *artifact.File) []byte {
	w := &writer{}
	w.tag(tagFile)
	w.id(f.BlobID)
	w.bool(f.Executable)
	w.string(string(f.ModuleKind))
	w.uvarint(uint64(len(f.DepOrder)))
	for _, key := range f.DepOrder {
		r := f.Dependencies[key]
		w.string(key)
		writeReferent(w, r)
	}
	return w.buf
}

func writeReferent(w *writer, r artifact.Referent) {
	switch {
	case r.IsGraphNode:
		// GraphID names an already emitted graph; it is empty when the
		// target is another node of the same Graph object, which the index
		// alone identifies.
		w.tag(tagReferentGraphNode)
		w.id(r.GraphID)
		w.varint(r.GraphNodeIndex)
	case r.ArtifactID != "":
		w.tag(tagReferentArtifact)
		w.id(r.ArtifactID)
	default:
		w.tag(tagReferentNil)
	}
	w.string(r.Options.ID)
	w.string(r.Options.Path)
	w.string(r.Options.Tag)
	w.string(r.Options.Name)
}

// CanonicalSymlink serializes a Symlink.
func CanonicalSymlink(s *artifact.Symlink) []byte {
	w := &writer{}
	w.tag(tagSymlink)
	if s.ArtifactTarget != "" {
		w.bool(true)
		w.id(s.ArtifactTarget)
	} else {
		w.bool(false)
		w.string(s.PathTarget)
	}
	return w.buf
}

// CanonicalGraph serializes a Graph object: its ordered node list, with
// internal edges already rewritten to canonical indices by the
// canonicalizer. The graph_id is the content hash of
// exactly these bytes, so this function must not be called before node
// order and internal indices are final.
func CanonicalGraph(g *artifact.Graph) []byte {
	w := &writer{}
	w.tag(tagGraph)
	w.uvarint(uint64(len(g.Nodes)))
	for _, n := range g.Nodes {
		switch n.Kind {
		case artifact.KindDirectory:
			w.bytes(CanonicalDirectory(n.Directory))
		case artifact.KindFile:
			w.bytes(CanonicalFile(n.File))
		case artifact.KindSymlink:
			w.bytes(CanonicalSymlink(n.Symlink))
		default:
			panic(fmt.Sprintf("emit: unknown graph node kind %v", n.Kind))
		}
	}
	return w.buf
}
