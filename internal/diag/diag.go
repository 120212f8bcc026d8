// Package diag defines shared diagnostic types for the check-in engine,
// mirroring the shape of cuelang.org/go/cue/errors: a positioned error
// interface plus a list type that aggregates recoverable per-file
// diagnostics without aborting a check-in.
package diag

import (
	"fmt"
	"strings"
)

// Pos locates a diagnostic within a scanned tree.
type Pos struct {
	Path string // path relative to the check-in root
	Line int    // 1-based; 0 if unknown
}

func (p Pos) String() string {
	if p.Path == "" {
		return "-"
	}
	if p.Line <= 0 {
		return p.Path
	}
	return fmt.Sprintf("%s:%d", p.Path, p.Line)
}

// Error is a diagnostic associated with a position in the tree.
type Error interface {
	error
	Position() Pos
}

type posError struct {
	pos Pos
	msg string
	err error
}

func (e *posError) Error() string {
	if e.pos.Path == "" {
		return e.msg
	}
	return fmt.Sprintf("%s: %s", e.pos, e.msg)
}

func (e *posError) Position() Pos { return e.pos }

func (e *posError) Unwrap() error { return e.err }

// Newf creates a new positioned diagnostic.
func Newf(pos Pos, format string, args ...any) Error {
	return &posError{pos: pos, msg: fmt.Sprintf(format, args...)}
}

// Wrapf wraps err with additional positioned context.
func Wrapf(err error, pos Pos, format string, args ...any) Error {
	return &posError{pos: pos, msg: fmt.Sprintf(format, args...) + ": " + err.Error(), err: err}
}

// List is an accumulation of recoverable diagnostics. The zero value is an
// empty list. A *List implements error and is nil-safe: a nil or empty list
// is not itself treated as a failure by callers that check len(list) == 0.
type List []Error

// Add appends a diagnostic to the list.
func (l *List) Add(err Error) {
	*l = append(*l, err)
}

// Addf is a convenience wrapper combining Newf and Add.
func (l *List) Addf(pos Pos, format string, args ...any) {
	l.Add(Newf(pos, format, args...))
}

func (l List) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d errors:\n", len(l))
	for _, e := range l {
		b.WriteString("  ")
		b.WriteString(e.Error())
		b.WriteByte('\n')
	}
	return b.String()
}

// Err returns l as an error, or nil if l is empty. Use this at API
// boundaries so that an empty List compares equal to a nil error.
func (l List) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}
