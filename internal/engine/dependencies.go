package engine

import (
	"context"
	"errors"

	"tangram.systems/checkin/internal/artifact"
	"tangram.systems/checkin/internal/catalog"
	"tangram.systems/checkin/internal/emit"
	"tangram.systems/checkin/internal/imports"
	"tangram.systems/checkin/internal/store"
)

// storeDependencyLister implements resolve.DependencyLister by reading a
// candidate's artifact back out of the Store and reclassifying its
// dependency keys, so the Resolver can recurse into a package's own tag
// references (§4.3 step 4a). A candidate not yet present locally (never
// checked in on this machine) is treated as a leaf: it contributes no
// further work to the solve, which is the correct behavior for a first
// check-in of a tree whose dependencies were all published (and stored)
// independently beforehand.
type storeDependencyLister struct {
	Store store.Store
}

func (l *storeDependencyLister) ListDependencies(ctx context.Context, name string, candidate catalog.Candidate) ([]artifact.Reference, error) {
	data, err := l.Store.Get(ctx, candidate.ArtifactID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if len(data) == 0 {
		return nil, nil
	}

	switch candidate.ArtifactID.Kind() {
	case "fil":
		f, err := emit.DecodeFile(data)
		if err != nil {
			return nil, err
		}
		return tagReferencesOf(f), nil
	case "dir":
		d, err := emit.DecodeDirectory(data)
		if err != nil {
			return nil, err
		}
		root, ok := d.Entries[imports.PackageRootFile]
		if !ok || root.IsGraph {
			return nil, nil
		}
		rootData, err := l.Store.Get(ctx, root.ArtifactID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		f, err := emit.DecodeFile(rootData)
		if err != nil {
			return nil, err
		}
		return tagReferencesOf(f), nil
	default:
		// Graph members and other kinds carry no directly addressable
		// dependency set the solver can recurse into from here.
		return nil, nil
	}
}

// tagReferencesOf reclassifies f's dependency keys and returns only the
// tag references among them: path and id references are not subject to
// version resolution and have no place in the solver's work queue.
func tagReferencesOf(f *artifact.File) []artifact.Reference {
	var refs []artifact.Reference
	for _, key := range f.DepOrder {
		ref := imports.Classify(key, nil)
		if ref.Kind == artifact.ReferenceTag {
			refs = append(refs, ref)
		}
	}
	return refs
}
