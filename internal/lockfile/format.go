// Package lockfile implements the lock file wire format and the
// LockManager's read/reuse/replace/stale-removal policy across its two
// media (sibling file, extended attribute) plus "none".
package lockfile

import (
	"bytes"
	"encoding/json"
	"sort"

	"tangram.systems/checkin/internal/artifact"
	"tangram.systems/checkin/internal/objectid"
)

// XattrName is the extended attribute a Lock is stored under in "attr" mode.
const XattrName = "user.tangram.lock"

// Ext is the sibling lock file suffix in "file" mode.
const Ext = ".lock"

type wireItem struct {
	Index *int   `json:"index,omitempty"`
	ID    string `json:"id,omitempty"`
}

type wireOptions struct {
	ID   string `json:"id,omitempty"`
	Path string `json:"path,omitempty"`
	Tag  string `json:"tag,omitempty"`
	Name string `json:"name,omitempty"`
}

type wireReferent struct {
	Item    *wireItem   `json:"item"`
	Options wireOptions `json:"options"`
}

type wireEdge struct {
	Index int    `json:"index"`
	Kind  string `json:"kind"`
}

type wireNode struct {
	Kind         string                  `json:"kind"`
	Dependencies map[string]wireReferent `json:"dependencies,omitempty"`
	Entries      map[string]wireEdge     `json:"entries,omitempty"`
}

type wireLock struct {
	Nodes []wireNode `json:"nodes"`
}

func kindString(k artifact.Kind) string {
	switch k {
	case artifact.KindDirectory:
		return "directory"
	case artifact.KindFile:
		return "file"
	case artifact.KindSymlink:
		return "symlink"
	default:
		return "file"
	}
}

func kindFromString(s string) artifact.Kind {
	switch s {
	case "directory":
		return artifact.KindDirectory
	case "symlink":
		return artifact.KindSymlink
	default:
		return artifact.KindFile
	}
}

// Marshal renders a Lock as utf-8, pretty-printed (two-space indent) JSON
// with a trailing newline. Map keys are emitted in sorted order, which
// encoding/json already guarantees for map[string]T, so no extra JSON
// formatting library is needed to get deterministic key ordering.
func Marshal(lock *artifact.Lock) ([]byte, error) {
	w := toWire(lock)
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal parses a lock file's bytes.
func Unmarshal(data []byte) (*artifact.Lock, error) {
	var w wireLock
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return fromWire(&w), nil
}

func toWire(lock *artifact.Lock) *wireLock {
	w := &wireLock{Nodes: make([]wireNode, len(lock.Nodes))}
	for i, n := range lock.Nodes {
		wn := wireNode{Kind: kindString(n.Kind)}
		if len(n.Dependencies) > 0 {
			wn.Dependencies = make(map[string]wireReferent, len(n.Dependencies))
			for _, key := range n.DepOrder {
				r := n.Dependencies[key]
				wr := wireReferent{Options: wireOptions(r.Options)}
				if r.IsIndex {
					idx := r.ItemIndex
					wr.Item = &wireItem{Index: &idx}
				} else if r.ItemID != "" {
					wr.Item = &wireItem{ID: string(r.ItemID)}
				}
				wn.Dependencies[key] = wr
			}
		}
		if len(n.Entries) > 0 {
			wn.Entries = make(map[string]wireEdge, len(n.Entries))
			for name, e := range n.Entries {
				wn.Entries[name] = wireEdge{Index: e.Index, Kind: kindString(e.Kind)}
			}
		}
		w.Nodes[i] = wn
	}
	return w
}

func fromWire(w *wireLock) *artifact.Lock {
	lock := &artifact.Lock{Nodes: make([]artifact.LockNode, len(w.Nodes))}
	for i, wn := range w.Nodes {
		n := artifact.LockNode{Kind: kindFromString(wn.Kind)}
		if len(wn.Dependencies) > 0 {
			n.Dependencies = make(map[string]artifact.LockReferent, len(wn.Dependencies))
			n.DepOrder = make([]string, 0, len(wn.Dependencies))
			for key, wr := range wn.Dependencies {
				n.DepOrder = append(n.DepOrder, key)
				r := artifact.LockReferent{Options: artifact.ReferentOptions(wr.Options)}
				if wr.Item != nil {
					if wr.Item.Index != nil {
						r.IsIndex = true
						r.ItemIndex = *wr.Item.Index
					} else {
						r.ItemID = objectid.ID(wr.Item.ID)
					}
				}
				n.Dependencies[key] = r
			}
			sort.Strings(n.DepOrder)
		}
		if len(wn.Entries) > 0 {
			n.Entries = make(map[string]artifact.LockEdge, len(wn.Entries))
			for name, we := range wn.Entries {
				n.Entries[name] = artifact.LockEdge{Index: we.Index, Kind: kindFromString(we.Kind)}
			}
		}
		lock.Nodes[i] = n
	}
	return lock
}
