// Package store defines the external Store contract the engine writes
// objects and blobs through, plus a local filesystem reference
// implementation. The on-disk layout shards objects by the first two
// characters of their ID, following the split-directory content-addressable
// layout used by distribution-distribution's blob store
// (other_examples/87cb5cca, "<root>/blob/<algorithm>/<split digest path>").
package store

import (
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"tangram.systems/checkin/internal/objectid"
)

// ErrNotFound is returned by Get when id is absent.
var ErrNotFound = errors.New("checkin: object not found")

// PutResult reports whether Put wrote new data or the ID already existed.
type PutResult int

const (
	PutOK PutResult = iota
	PutAlreadyPresent
)

// Store is the external collaborator the ObjectEmitter and LockManager
// write through. Implementations must make Put idempotent and safe for
// concurrent calls with the same ID.
type Store interface {
	Put(ctx context.Context, id objectid.ID, data []byte) (PutResult, error)
	Get(ctx context.Context, id objectid.ID) ([]byte, error)
	Exists(ctx context.Context, id objectid.ID) (bool, error)
	PutBlob(ctx context.Context, r io.Reader) (objectid.ID, error)
}

// Local is a filesystem-backed Store, sharded by the first two characters
// of the ID's base32 portion to keep any one directory's entry count
// bounded, the same split-directory idea distribution-distribution uses for
// its blob store.
type Local struct {
	root string
}

// NewLocal creates a Local store rooted at dir, creating it if necessary.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: dir}, nil
}

func (s *Local) pathFor(id objectid.ID) string {
	str := string(id)
	shard := str
	if _, b32, ok := strings.Cut(str, "_"); ok && len(b32) >= 2 {
		shard = b32[:2]
	}
	return filepath.Join(s.root, string(id.Kind()), shard, str)
}

func (s *Local) Put(ctx context.Context, id objectid.ID, data []byte) (PutResult, error) {
	path := s.pathFor(id)
	if _, err := os.Stat(path); err == nil {
		return PutAlreadyPresent, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "put-*.tmp")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		if os.IsExist(err) {
			return PutAlreadyPresent, nil
		}
		return 0, err
	}
	return PutOK, nil
}

func (s *Local) Get(ctx context.Context, id objectid.ID) ([]byte, error) {
	data, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *Local) Exists(ctx context.Context, id objectid.ID) (bool, error) {
	_, err := os.Stat(s.pathFor(id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *Local) PutBlob(ctx context.Context, r io.Reader) (objectid.ID, error) {
	h := sha256.New224()
	tmp, err := os.CreateTemp(s.root, "blob-*.tmp")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(io.MultiWriter(tmp, h), r); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	var digest [28]byte
	copy(digest[:], h.Sum(nil))
	id := objectid.NewFromDigest(objectid.KindBlob, digest)

	path := s.pathFor(id)
	if _, err := os.Stat(path); err == nil {
		return id, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(tmpName, path); err != nil {
		if os.IsExist(err) {
			return id, nil
		}
		return "", err
	}
	return id, nil
}
