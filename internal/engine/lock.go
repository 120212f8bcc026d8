package engine

import (
	"tangram.systems/checkin/internal/artifact"
	"tangram.systems/checkin/internal/graph"
)

// buildLock mirrors g's arena 1:1 into a Lock: LockNode i always describes
// g.Nodes[i], regardless of how Canonicalize later grouped those nodes into
// standalone artifacts or cyclic graph objects. A path dependency's
// LockReferent therefore addresses its target by arena index (IsIndex),
// never by a graph_id/index pair — the lock's own node order is already the
// addressing scheme a graph object would otherwise need to provide.
func buildLock(g *graph.Graph) *artifact.Lock {
	lock := &artifact.Lock{Nodes: make([]artifact.LockNode, len(g.Nodes))}
	for i, n := range g.Nodes {
		ln := artifact.LockNode{Kind: n.Kind}

		if len(n.Entries) > 0 {
			ln.Entries = make(map[string]artifact.LockEdge, len(n.Entries))
			for _, de := range n.Entries {
				target := de.Target.InternalIndex
				ln.Entries[de.Name] = artifact.LockEdge{Index: target, Kind: g.Nodes[target].Kind}
			}
		}

		if len(n.Deps) > 0 {
			ln.Dependencies = make(map[string]artifact.LockReferent, len(n.Deps))
			ln.DepOrder = make([]string, 0, len(n.Deps))
			for _, d := range n.Deps {
				ln.DepOrder = append(ln.DepOrder, d.RefText)
				ln.Dependencies[d.RefText] = lockReferentFor(d.Target, d.Options)
			}
		}

		lock.Nodes[i] = ln
	}
	return lock
}

func lockReferentFor(t graph.Target, opts artifact.ReferentOptions) artifact.LockReferent {
	if t.IsInternal {
		return artifact.LockReferent{IsIndex: true, ItemIndex: t.InternalIndex, Options: opts}
	}
	if t.Unresolved {
		return artifact.LockReferent{Options: opts}
	}
	return artifact.LockReferent{ItemID: t.ExternalID, Options: opts}
}
