// Package scan implements the Scanner component: a lazy, finite,
// restartable, deterministically ordered walk of a filesystem subtree,
// honoring nested .tangramignore files. Oversized directories are walked in
// the same sorted order as any other; their branch tree is built later by
// GraphBuilder.
package scan

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"

	"tangram.systems/checkin/internal/ignore"
)

// Kind classifies a scanned entry.
type Kind int

const (
	KindDirectory Kind = iota
	KindFile
	KindSymlink
)

// Entry is one yielded (relative_path, kind, metadata) triple.
type Entry struct {
	RelPath string
	Kind    Kind
	Mode    fs.FileMode
	Size    int64
	// LinkTarget holds the raw, unresolved symlink target text for
	// KindSymlink entries. Scanner never follows symlinks.
	LinkTarget string
}

// Options configures a scan.
type Options struct {
	MaxLeafEntries    int // checkin.directory.max_leaf_entries
	MaxBranchChildren int // checkin.directory.max_branch_children
	GlobalIgnore      []string
	// DisableIgnore turns off all ignore evaluation (nested .tangramignore
	// files and GlobalIgnore alike), the engine's --ignore=false.
	DisableIgnore bool
	Logger        *slog.Logger
}

const (
	defaultMaxLeafEntries    = 4096
	defaultMaxBranchChildren = 256
)

func (o Options) normalized() Options {
	if o.MaxLeafEntries <= 0 {
		o.MaxLeafEntries = defaultMaxLeafEntries
	}
	if o.MaxBranchChildren <= 0 {
		o.MaxBranchChildren = defaultMaxBranchChildren
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Scanner walks root and yields entries in sorted order.
type Scanner struct {
	root string
	opts Options
}

// New creates a Scanner rooted at root. A missing root is a fatal
// precondition reported at the first call to Walk.
func New(root string, opts Options) *Scanner {
	return &Scanner{root: root, opts: opts.normalized()}
}

// Walk invokes yield for every entry under the root in sorted order,
// stopping early if yield returns false. It returns a fatal error if root
// does not exist. A nested directory that cannot be read for lack of
// permission is logged as a warning through Options.Logger and skipped, and
// the walk continues past it; other read errors are reported via yield's
// error argument.
func (s *Scanner) Walk(yield func(Entry, error) bool) error {
	if _, err := os.Lstat(s.root); err != nil {
		return fmt.Errorf("checkin: entry path %q: %w", s.root, err)
	}
	stack := &ignore.Stack{}
	if !s.opts.DisableIgnore {
		var err error
		stack, err = ignore.NewStack(s.opts.GlobalIgnore)
		if err != nil {
			return fmt.Errorf("checkin: global ignore patterns: %w", err)
		}
	}
	s.walkDir(s.root, "", stack, yield)
	return nil
}

// walkDir recurses into dir (an absolute path), reporting entries with
// paths relative to s.root. It returns false if the caller's yield asked to
// stop early.
func (s *Scanner) walkDir(dir, relDir string, stack *ignore.Stack, yield func(Entry, error) bool) bool {
	if !s.opts.DisableIgnore {
		next, err := stack.Push(dir)
		if err != nil {
			return yield(Entry{}, fmt.Errorf("checkin: reading ignore file in %q: %w", dir, err))
		}
		stack = next
	}

	children, err := os.ReadDir(dir)
	if err != nil {
		if os.IsPermission(err) {
			s.opts.Logger.Warn("permission denied, skipping", "path", dir)
			return true
		}
		return yield(Entry{}, fmt.Errorf("checkin: reading directory %q: %w", dir, err))
	}

	names := make([]string, 0, len(children))
	byName := make(map[string]os.DirEntry, len(children))
	for _, c := range children {
		rel := path.Join(relDir, c.Name())
		if stack.Excludes(rel) {
			continue
		}
		names = append(names, c.Name())
		byName[c.Name()] = c
	}
	// byte-lexicographic order on the component name.
	sort.Strings(names)

	if len(names) > s.opts.MaxLeafEntries {
		return s.walkBranched(dir, relDir, names, byName, stack, yield)
	}

	for _, name := range names {
		if !s.visit(dir, relDir, name, byName[name], stack, yield) {
			return false
		}
	}
	return true
}

// walkBranched visits an oversized directory's children in consecutive
// chunks of MaxBranchChildren names, which yields them in the same sorted
// order as an ordinary directory. No branch directories are yielded as
// Scanner entries; GraphBuilder
// materializes them as ordinary Directory artifacts during emission using
// the same fan-out rule, keyed only by sorted position, so two scans of the
// same large directory always branch identically.
func (s *Scanner) walkBranched(dir, relDir string, names []string, byName map[string]os.DirEntry, stack *ignore.Stack, yield func(Entry, error) bool) bool {
	fanout := s.opts.MaxBranchChildren
	for i := 0; i < len(names); i += fanout {
		end := i + fanout
		if end > len(names) {
			end = len(names)
		}
		for _, name := range names[i:end] {
			if !s.visit(dir, relDir, name, byName[name], stack, yield) {
				return false
			}
		}
	}
	return true
}

func (s *Scanner) visit(dir, relDir, name string, de os.DirEntry, stack *ignore.Stack, yield func(Entry, error) bool) bool {
	rel := path.Join(relDir, name)
	full := path.Join(dir, name)
	info, err := os.Lstat(full)
	if err != nil {
		return yield(Entry{}, fmt.Errorf("checkin: stat %q: %w", full, err))
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(full)
		if err != nil {
			return yield(Entry{}, fmt.Errorf("checkin: readlink %q: %w", full, err))
		}
		if !yield(Entry{RelPath: rel, Kind: KindSymlink, Mode: info.Mode(), LinkTarget: target}, nil) {
			return false
		}
	case info.IsDir():
		if !yield(Entry{RelPath: rel, Kind: KindDirectory, Mode: info.Mode()}, nil) {
			return false
		}
		if !s.walkDir(full, rel, stack, yield) {
			return false
		}
	default:
		if !yield(Entry{RelPath: rel, Kind: KindFile, Mode: info.Mode(), Size: info.Size()}, nil) {
			return false
		}
	}
	_ = de
	return true
}
