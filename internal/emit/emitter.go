package emit

import (
	"context"
	"fmt"

	"tangram.systems/checkin/internal/artifact"
	"tangram.systems/checkin/internal/objectid"
	"tangram.systems/checkin/internal/store"
)

// Emitter serializes objects to canonical form, computes their IDs, and
// writes them through a Store. Storage is idempotent: Put
// on an existing ID is a no-op, which the Store implementation itself
// guarantees, so Emitter never checks Exists before writing.
type Emitter struct {
	Store store.Store
}

// EmitDirectory stores d and returns its content-addressed ID.
func (e *Emitter) EmitDirectory(ctx context.Context, d *artifact.Directory) (objectid.ID, error) {
	canonical := CanonicalDirectory(d)
	id := objectid.New(objectid.KindDirectory, canonical)
	if _, err := e.Store.Put(ctx, id, canonical); err != nil {
		return "", fmt.Errorf("checkin: emitting directory: %w", err)
	}
	return id, nil
}

// EmitFile stores f (its blob must already be emitted via PutBlob) and
// returns its content-addressed ID.
func (e *Emitter) EmitFile(ctx context.Context, f *artifact.File) (objectid.ID, error) {
	canonical := CanonicalFile(f)
	id := objectid.New(objectid.KindFile, canonical)
	if _, err := e.Store.Put(ctx, id, canonical); err != nil {
		return "", fmt.Errorf("checkin: emitting file: %w", err)
	}
	return id, nil
}

// EmitSymlink stores s and returns its content-addressed ID.
func (e *Emitter) EmitSymlink(ctx context.Context, s *artifact.Symlink) (objectid.ID, error) {
	if (s.ArtifactTarget == "") == (s.PathTarget == "") {
		return "", fmt.Errorf("checkin: symlink must have exactly one of artifact or path target")
	}
	canonical := CanonicalSymlink(s)
	id := objectid.New(objectid.KindSymlink, canonical)
	if _, err := e.Store.Put(ctx, id, canonical); err != nil {
		return "", fmt.Errorf("checkin: emitting symlink: %w", err)
	}
	return id, nil
}

// EmitGraph stores a fully canonicalized Graph (node order and internal
// indices already final) and returns its graph_id.
func (e *Emitter) EmitGraph(ctx context.Context, g *artifact.Graph) (objectid.ID, error) {
	canonical := CanonicalGraph(g)
	id := objectid.New(objectid.KindGraph, canonical)
	if _, err := e.Store.Put(ctx, id, canonical); err != nil {
		return "", fmt.Errorf("checkin: emitting graph: %w", err)
	}
	return id, nil
}
