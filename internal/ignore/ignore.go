// Package ignore implements the Scanner's nested .tangramignore evaluation:
// a stack of compiled pattern sets, one per directory level, where patterns
// at deeper levels override outer patterns.
package ignore

import (
	"os"
	"path"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// FileName is the ignore file Scanner looks for in every directory.
const FileName = ".tangramignore"

// Level is one directory's compiled pattern set, or nil if that directory
// had no ignore file.
type Level struct {
	dir     string
	matcher *gitignore.GitIgnore
}

// Stack is an ordered sequence of Levels from the check-in root down to the
// current directory. Deeper (later) levels take precedence over outer
// (earlier) ones.
type Stack struct {
	levels []Level
	global *gitignore.GitIgnore // from config's "ignore" option, always outermost
}

// NewStack creates an empty Stack, optionally seeded with global patterns
// from the checkin.ignore configuration value.
func NewStack(globalPatterns []string) (*Stack, error) {
	s := &Stack{}
	if len(globalPatterns) > 0 {
		m, err := gitignore.CompileIgnoreLines(globalPatterns...)
		if err != nil {
			return nil, err
		}
		s.global = m
	}
	return s, nil
}

// Push reads dir's ignore file, if present, and returns a new Stack with it
// appended as the innermost level. The receiver is not modified, so sibling
// directories can share the same outer stack.
func (s *Stack) Push(dir string) (*Stack, error) {
	data, err := os.ReadFile(path.Join(dir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	lines := strings.Split(string(data), "\n")
	m, err := gitignore.CompileIgnoreLines(lines...)
	if err != nil {
		return nil, err
	}
	next := &Stack{
		levels: append(append([]Level(nil), s.levels...), Level{dir: dir, matcher: m}),
		global: s.global,
	}
	return next, nil
}

// Excludes reports whether relPath (relative to the check-in root) is
// excluded. The innermost level whose pattern set has an opinion wins;
// absent an opinion from any level, the entry is not excluded.
func (s *Stack) Excludes(relPath string) bool {
	for i := len(s.levels) - 1; i >= 0; i-- {
		if s.levels[i].matcher.MatchesPath(relPath) {
			return true
		}
	}
	if s.global != nil {
		return s.global.MatchesPath(relPath)
	}
	return false
}
