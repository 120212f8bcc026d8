// Package resolve implements the Resolver: a depth-first backtracking
// search over tag references that produces a substitution mapping each
// reference to a concrete artifact ID.
//
// The search shape — enumerate a name's candidates in priority order,
// tentatively bind, recurse into the candidate's own dependencies, undo and
// try the next candidate on conflict — follows golang-dep's gps solver
// (other_examples/0f5b6b2a, b0620bbb/source_manager.go): a real backtracking
// dependency solver, unlike CUE's own resolver (internal/mod/mvs), which
// performs minimal version selection and never backtracks. The
// Requirements-style bookkeeping (tracking what is reachable from roots,
// what has already been decided) borrows CUE internal/mod/modrequirements's
// shape even though the search strategy itself comes from gps.
package resolve

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tangram.systems/checkin/internal/artifact"
	"tangram.systems/checkin/internal/catalog"
	"tangram.systems/checkin/internal/objectid"
	"tangram.systems/checkin/internal/semverx"
)

// Binding is a reference's resolved target.
type Binding struct {
	Version    string
	ArtifactID objectid.ID
	Unresolved bool // true when left null under --unsolved-dependencies
}

// Solution is the Resolver's output: a substitution from reference text to
// Binding, plus the chosen version for each distinct name (used to render
// the lockfile and to detect conflicts).
type Solution struct {
	Bindings map[string]Binding          // reference text -> binding
	Selected map[string]catalog.Candidate // name -> chosen candidate
}

// DependencyLister fetches the tag references of a candidate artifact, so
// the solver can recurse into its transitive dependencies.
type DependencyLister interface {
	ListDependencies(ctx context.Context, name string, candidate catalog.Candidate) ([]artifact.Reference, error)
}

// LockHint is the input lockfile's prior bindings, supplied to the Resolver
// as a hint when one exists.
type LockHint struct {
	// ByName maps a dependency name to the version and artifact ID the
	// existing lock pinned it to.
	ByName map[string]catalog.Candidate
}

// Flags governs the solve's behavior around the catalog, the lock, and
// conflict handling.
type Flags struct {
	Locked               bool
	NoSolve              bool
	UnsolvedDependencies bool
	Update               map[string]bool // names whose lock binding is forgotten before solving
	Deterministic        bool            // forbids contacting the catalog
	TTL                  time.Duration
}

// Solver runs the backtracking search.
type Solver struct {
	Catalog catalog.Client
	Deps    DependencyLister
	Lock    LockHint
	Flags   Flags
}

// ConflictError reports an unresolvable version conflict.
type ConflictError struct {
	Name       string
	Pattern    string
	Candidates []catalog.Candidate
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("checkin: no candidate of %q satisfies %q (considered %d candidates)", e.Name, e.Pattern, len(e.Candidates))
}

// work is one queued, not-yet-resolved reference.
type work struct {
	refText string
	name    string
	pattern string
}

type decision struct {
	name       string
	prevBound  bool
	prevValue  catalog.Candidate
}

// Solve runs the solver over roots, the root's top-level tag references.
func (s *Solver) Solve(ctx context.Context, roots []artifact.Reference) (*Solution, error) {
	sol := &Solution{Bindings: map[string]Binding{}, Selected: map[string]catalog.Candidate{}}

	if s.Flags.NoSolve {
		for _, r := range roots {
			sol.Bindings[r.Text] = Binding{Unresolved: true}
		}
		return sol, nil
	}

	lockByName := map[string]catalog.Candidate{}
	for name, c := range s.Lock.ByName {
		if s.Flags.Update[name] {
			continue
		}
		lockByName[name] = c
	}

	queue := make([]work, 0, len(roots))
	for _, r := range roots {
		queue = append(queue, work{refText: r.Text, name: r.Name, pattern: r.Pattern})
	}

	st := &state{
		solver:   s,
		lock:     lockByName,
		solution: sol,
		ctx:      ctx,
	}

	ok, err := st.solve(queue)
	if err != nil {
		return nil, err
	}
	if !ok {
		if s.Flags.UnsolvedDependencies {
			// st.solve only returns false after exhausting every option; any
			// reference never bound is recorded unresolved instead of
			// failing the whole check-in.
			for _, r := range roots {
				if _, bound := sol.Bindings[r.Text]; !bound {
					sol.Bindings[r.Text] = Binding{Unresolved: true}
				}
			}
			return sol, nil
		}
		if st.lastConflict != nil {
			return nil, fmt.Errorf("checkin: version solve failed: %w", st.lastConflict)
		}
		return nil, fmt.Errorf("checkin: version solve failed: no satisfying assignment found")
	}
	return sol, nil
}

type state struct {
	solver   *Solver
	lock     map[string]catalog.Candidate
	solution *Solution
	ctx      context.Context

	// lastConflict is the most recent exhausted-candidates conflict seen
	// during the search. Most conflicts are recovered from by backtracking,
	// not fatal, so this is only surfaced by Solve once the whole search
	// gives up with no remaining candidate anywhere in the queue.
	lastConflict *ConflictError
}

// solve tries to resolve every item in queue, recursing for each candidate
// pushed by a binding. It returns false (with no side effects left behind,
// other than what it successfully bound) if the queue cannot be fully
// resolved. Chronological backtracking falls directly out of the recursive
// structure: failing deeper in the queue unwinds back to this call, which
// then undoes its own tentative binding and tries the next candidate.
func (st *state) solve(queue []work) (bool, error) {
	if len(queue) == 0 {
		return true, nil
	}
	item := queue[0]
	rest := queue[1:]

	if existing, ok := st.solution.Selected[item.name]; ok {
		if semverx.Parse(item.pattern).Matches(existing.Version) {
			st.solution.Bindings[item.refText] = Binding{Version: existing.Version, ArtifactID: existing.ArtifactID}
			return st.solve(rest)
		}
		// Conflict on item.name: this branch of the search cannot continue
		// with the currently selected version. Report failure upward so an
		// outer candidate choice for item.name gets a chance to backtrack.
		return false, nil
	}

	candidates, err := st.candidatesFor(item)
	if err != nil {
		return false, err
	}

	for _, cand := range candidates {
		st.solution.Selected[item.name] = cand
		st.solution.Bindings[item.refText] = Binding{Version: cand.Version, ArtifactID: cand.ArtifactID}

		depRefs, err := st.solver.Deps.ListDependencies(st.ctx, item.name, cand)
		if err != nil {
			delete(st.solution.Selected, item.name)
			delete(st.solution.Bindings, item.refText)
			return false, err
		}

		next := append(append([]work(nil), rest...), refsToWork(depRefs)...)
		ok, err := st.solve(next)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}

		// Undo and try the next candidate.
		delete(st.solution.Selected, item.name)
		delete(st.solution.Bindings, item.refText)
	}

	conflict := &ConflictError{Name: item.name, Pattern: item.pattern, Candidates: candidates}
	if st.solver.Flags.Locked {
		return false, fmt.Errorf("checkin: --locked: %w", conflict)
	}
	st.lastConflict = conflict
	return false, nil
}

// candidatesFor fetches and orders item's candidates using the tie-break
// rules: (a) latest version first, (b) lexicographically smallest tag
// within equal versions, then smallest artifact ID, (c) unless --update
// named that dependency, the lock-pinned version, when it is among the
// candidates, is moved to the front, ahead of newer versions.
func (st *state) candidatesFor(item work) ([]catalog.Candidate, error) {
	if st.solver.Flags.Deterministic {
		lockCand, ok := st.lock[item.name]
		if !ok {
			return nil, fmt.Errorf("checkin: --deterministic: %q has no lock binding", item.name)
		}
		return []catalog.Candidate{lockCand}, nil
	}

	ttl := st.solver.Flags.TTL
	candidates, err := st.solver.Catalog.List(st.ctx, item.name, item.pattern, ttl)
	if err != nil {
		if lockCand, ok := st.lock[item.name]; ok {
			return []catalog.Candidate{lockCand}, nil
		}
		return nil, fmt.Errorf("checkin: catalog lookup for %q: %w", item.name, err)
	}

	// The catalog is expected to pre-filter by pattern, but a fresh
	// selection must never bind a version the pattern itself rejects, so
	// re-check rather than trust that contract blindly.
	candidates = matchingPattern(candidates, item.pattern)

	sort.SliceStable(candidates, func(i, j int) bool {
		vi, vj := candidates[i].Version, candidates[j].Version
		if c := semverx.Compare(vi, vj); c != 0 {
			return c > 0
		}
		if vi != vj {
			// Equal versions written differently: the candidates share a
			// name, so the smaller tag is the one with the smaller version text.
			return vi < vj
		}
		return candidates[i].ArtifactID < candidates[j].ArtifactID
	})

	if lockCand, ok := st.lock[item.name]; ok {
		for i, c := range candidates {
			if c.Version == lockCand.Version {
				reordered := append([]catalog.Candidate{c}, append(append([]catalog.Candidate(nil), candidates[:i]...), candidates[i+1:]...)...)
				return reordered, nil
			}
		}
	}

	return candidates, nil
}

func matchingPattern(candidates []catalog.Candidate, pattern string) []catalog.Candidate {
	pat := semverx.Parse(pattern)
	out := make([]catalog.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if pat.Matches(c.Version) {
			out = append(out, c)
		}
	}
	return out
}

func refsToWork(refs []artifact.Reference) []work {
	out := make([]work, 0, len(refs))
	for _, r := range refs {
		if r.Kind != artifact.ReferenceTag {
			continue
		}
		out = append(out, work{refText: r.Text, name: r.Name, pattern: r.Pattern})
	}
	return out
}
