package emit

import (
	"encoding/binary"
	"fmt"

	"tangram.systems/checkin/internal/artifact"
	"tangram.systems/checkin/internal/objectid"
)

// reader is the inverse of writer: it decodes the same self-describing
// tagged binary format CanonicalDirectory/CanonicalFile/CanonicalSymlink/
// CanonicalGraph produce. Decoding is needed wherever a component must read
// back an artifact the Store already holds — chiefly the Resolver's
// DependencyLister, which must learn a catalog candidate's own tag
// references before it can recurse into them (§4.3 step 4a).
type reader struct {
	buf []byte
	pos int
}

func newReader(b []byte) *reader { return &reader{buf: b} }

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, fmt.Errorf("emit: decode: unexpected end of input")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) tag() (tag, error) {
	b, err := r.byte()
	return tag(b), err
}

func (r *reader) bool() (bool, error) {
	b, err := r.byte()
	return b != 0, err
}

func (r *reader) uvarint() (uint64, error) {
	n, l := binary.Uvarint(r.buf[r.pos:])
	if l <= 0 {
		return 0, fmt.Errorf("emit: decode: invalid uvarint")
	}
	r.pos += l
	return n, nil
}

func (r *reader) varint() (int, error) {
	n, err := r.uvarint()
	return int(int64(n)), err
}

func (r *reader) bytes() ([]byte, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	if r.pos+int(n) > len(r.buf) {
		return nil, fmt.Errorf("emit: decode: length-prefixed field runs past end of input")
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

func (r *reader) string() (string, error) {
	b, err := r.bytes()
	return string(b), err
}

func (r *reader) id() (objectid.ID, error) {
	s, err := r.string()
	return objectid.ID(s), err
}

// DecodeDirectory parses bytes previously produced by CanonicalDirectory.
func DecodeDirectory(data []byte) (*artifact.Directory, error) {
	r := newReader(data)
	t, err := r.tag()
	if err != nil {
		return nil, err
	}
	if t != tagDirectory {
		return nil, fmt.Errorf("emit: decode: expected directory tag, got %d", t)
	}
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	d := &artifact.Directory{Entries: make(map[string]artifact.Edge, n)}
	for i := uint64(0); i < n; i++ {
		name, err := r.string()
		if err != nil {
			return nil, err
		}
		edge, err := readEdge(r)
		if err != nil {
			return nil, err
		}
		d.Entries[name] = edge
	}
	return d, nil
}

func readEdge(r *reader) (artifact.Edge, error) {
	t, err := r.tag()
	if err != nil {
		return artifact.Edge{}, err
	}
	switch t {
	case tagEdgeGraphNode:
		gid, err := r.id()
		if err != nil {
			return artifact.Edge{}, err
		}
		idx, err := r.varint()
		if err != nil {
			return artifact.Edge{}, err
		}
		return artifact.Edge{IsGraph: true, GraphID: gid, GraphIndex: idx}, nil
	case tagEdgeArtifact:
		id, err := r.id()
		if err != nil {
			return artifact.Edge{}, err
		}
		return artifact.Edge{ArtifactID: id}, nil
	default:
		return artifact.Edge{}, fmt.Errorf("emit: decode: unknown edge tag %d", t)
	}
}

// DecodeFile parses bytes previously produced by CanonicalFile.
func DecodeFile(data []byte) (*artifact.File, error) {
	r := newReader(data)
	t, err := r.tag()
	if err != nil {
		return nil, err
	}
	if t != tagFile {
		return nil, fmt.Errorf("emit: decode: expected file tag, got %d", t)
	}
	f := &artifact.File{Dependencies: map[string]artifact.Referent{}}
	if f.BlobID, err = r.id(); err != nil {
		return nil, err
	}
	if f.Executable, err = r.bool(); err != nil {
		return nil, err
	}
	kind, err := r.string()
	if err != nil {
		return nil, err
	}
	f.ModuleKind = artifact.ModuleKind(kind)
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	f.DepOrder = make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		key, err := r.string()
		if err != nil {
			return nil, err
		}
		ref, err := readReferent(r)
		if err != nil {
			return nil, err
		}
		f.DepOrder = append(f.DepOrder, key)
		f.Dependencies[key] = ref
	}
	return f, nil
}

func readReferent(r *reader) (artifact.Referent, error) {
	t, err := r.tag()
	if err != nil {
		return artifact.Referent{}, err
	}
	var ref artifact.Referent
	switch t {
	case tagReferentGraphNode:
		gid, err := r.id()
		if err != nil {
			return artifact.Referent{}, err
		}
		idx, err := r.varint()
		if err != nil {
			return artifact.Referent{}, err
		}
		ref.IsGraphNode = true
		ref.GraphID = gid
		ref.GraphNodeIndex = idx
	case tagReferentArtifact:
		id, err := r.id()
		if err != nil {
			return artifact.Referent{}, err
		}
		ref.ArtifactID = id
	case tagReferentNil:
		// unresolved; nothing further to read for the target itself.
	default:
		return artifact.Referent{}, fmt.Errorf("emit: decode: unknown referent tag %d", t)
	}
	var err2 error
	if ref.Options.ID, err2 = r.string(); err2 != nil {
		return artifact.Referent{}, err2
	}
	if ref.Options.Path, err2 = r.string(); err2 != nil {
		return artifact.Referent{}, err2
	}
	if ref.Options.Tag, err2 = r.string(); err2 != nil {
		return artifact.Referent{}, err2
	}
	if ref.Options.Name, err2 = r.string(); err2 != nil {
		return artifact.Referent{}, err2
	}
	return ref, nil
}

// DecodeSymlink parses bytes previously produced by CanonicalSymlink.
func DecodeSymlink(data []byte) (*artifact.Symlink, error) {
	r := newReader(data)
	t, err := r.tag()
	if err != nil {
		return nil, err
	}
	if t != tagSymlink {
		return nil, fmt.Errorf("emit: decode: expected symlink tag, got %d", t)
	}
	isArtifact, err := r.bool()
	if err != nil {
		return nil, err
	}
	s := &artifact.Symlink{}
	if isArtifact {
		if s.ArtifactTarget, err = r.id(); err != nil {
			return nil, err
		}
	} else {
		if s.PathTarget, err = r.string(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// DecodeGraph parses bytes previously produced by CanonicalGraph.
func DecodeGraph(data []byte) (*artifact.Graph, error) {
	r := newReader(data)
	t, err := r.tag()
	if err != nil {
		return nil, err
	}
	if t != tagGraph {
		return nil, fmt.Errorf("emit: decode: expected graph tag, got %d", t)
	}
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	g := &artifact.Graph{Nodes: make([]artifact.GraphNode, n)}
	for i := uint64(0); i < n; i++ {
		inner, err := r.bytes()
		if err != nil {
			return nil, err
		}
		if len(inner) == 0 {
			return nil, fmt.Errorf("emit: decode: empty graph node")
		}
		switch tag(inner[0]) {
		case tagDirectory:
			d, err := DecodeDirectory(inner)
			if err != nil {
				return nil, err
			}
			g.Nodes[i] = artifact.GraphNode{Kind: artifact.KindDirectory, Directory: d}
		case tagFile:
			f, err := DecodeFile(inner)
			if err != nil {
				return nil, err
			}
			g.Nodes[i] = artifact.GraphNode{Kind: artifact.KindFile, File: f}
		case tagSymlink:
			s, err := DecodeSymlink(inner)
			if err != nil {
				return nil, err
			}
			g.Nodes[i] = artifact.GraphNode{Kind: artifact.KindSymlink, Symlink: s}
		default:
			return nil, fmt.Errorf("emit: decode: unknown graph node tag %d", inner[0])
		}
	}
	return g, nil
}
