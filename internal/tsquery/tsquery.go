// Package tsquery is the tree-sitter substrate ImportAnalyzer parses
// TypeScript/JavaScript module bytes with: pooled parsers (one pool per
// grammar) plus the compiled import/export query in queries/imports.scm.
//
// Grounded directly on bennypowers-cem's lib/treesitter.go and
// generate/queries/queries.go: parser pooling via sync.Pool, one
// *ts.Query compiled once per grammar, ts.NewQueryCursor().Matches for
// iterating matches. This package narrows that shape to exactly the two
// grammars and one query the check-in engine needs.
package tsquery

import (
	"embed"
	"fmt"
	"iter"
	"sync"

	ts "github.com/tree-sitter/go-tree-sitter"
	tstypescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

//go:embed queries/imports.scm
var queryFS embed.FS

// Language identifies which grammar a file's bytes should be parsed with.
type Language int

const (
	LanguageTypeScript Language = iota
	LanguageJavaScript
)

var grammars = struct {
	typescript *ts.Language
	javascript *ts.Language // JS is parsed with the TSX grammar's superset? no: plain TS grammar handles JS syntax fine for import/export statements.
}{
	typescript: ts.NewLanguage(tstypescript.LanguageTypescript()),
	javascript: ts.NewLanguage(tstypescript.LanguageTypescript()),
}

var parserPools = struct {
	typescript sync.Pool
	javascript sync.Pool
}{
	typescript: sync.Pool{New: func() any {
		p := ts.NewParser()
		p.SetLanguage(grammars.typescript)
		return p
	}},
	javascript: sync.Pool{New: func() any {
		p := ts.NewParser()
		p.SetLanguage(grammars.javascript)
		return p
	}},
}

func getParser(lang Language) *ts.Parser {
	switch lang {
	case LanguageJavaScript:
		return parserPools.javascript.Get().(*ts.Parser)
	default:
		return parserPools.typescript.Get().(*ts.Parser)
	}
}

func putParser(lang Language, p *ts.Parser) {
	p.Reset()
	switch lang {
	case LanguageJavaScript:
		parserPools.javascript.Put(p)
	default:
		parserPools.typescript.Put(p)
	}
}

var (
	importsQueryOnce sync.Once
	importsQuery     *ts.Query
	importsQueryErr  error
)

func loadImportsQuery() (*ts.Query, error) {
	importsQueryOnce.Do(func() {
		data, err := queryFS.ReadFile("queries/imports.scm")
		if err != nil {
			importsQueryErr = fmt.Errorf("tsquery: reading imports.scm: %w", err)
			return
		}
		// The same query text parses against either grammar object below;
		// both wrap the identical TypeScript grammar, which is a superset
		// of the JS import/export/dynamic-import syntax this query targets.
		q, qerr := ts.NewQuery(grammars.typescript, string(data))
		if qerr != nil {
			importsQueryErr = fmt.Errorf("tsquery: compiling imports.scm: %w", qerr)
			return
		}
		importsQuery = q
	})
	return importsQuery, importsQueryErr
}

// Capture is one captured node from a single query match, with its text
// already materialized against the source bytes.
type Capture struct {
	Name      string
	Text      string
	NodeID    uint64 // node.Id(), stable for the lifetime of the tree; used to correlate captures from separate matches that share an enclosing statement node
	StartByte uint
}

// Match is one query match: every capture belonging to the same import or
// export statement.
type Match struct {
	Captures []Capture
}

// Attr returns the text of the first capture named name, if any.
func (m Match) Attr(name string) (string, bool) {
	for _, c := range m.Captures {
		if c.Name == name {
			return c.Text, true
		}
	}
	return "", false
}

// ImportMatches parses src with the grammar lang selects and runs the
// import/export/dynamic-import query over the resulting tree, yielding one
// Match per query match in source order.
func ImportMatches(lang Language, src []byte) iter.Seq2[Match, error] {
	return func(yield func(Match, error) bool) {
		query, err := loadImportsQuery()
		if err != nil {
			yield(Match{}, err)
			return
		}

		parser := getParser(lang)
		defer putParser(lang, parser)

		tree := parser.Parse(src, nil)
		if tree == nil {
			yield(Match{}, fmt.Errorf("tsquery: parse returned no tree"))
			return
		}
		defer tree.Close()

		cursor := ts.NewQueryCursor()
		defer cursor.Close()

		names := query.CaptureNames()
		root := tree.RootNode()
		matches := cursor.Matches(query, root, src)
		for {
			m := matches.Next()
			if m == nil {
				return
			}
			match := Match{Captures: make([]Capture, 0, len(m.Captures))}
			for _, c := range m.Captures {
				match.Captures = append(match.Captures, Capture{
					Name:      names[c.Index],
					Text:      c.Node.Utf8Text(src),
					NodeID:    uint64(c.Node.Id()),
					StartByte: c.Node.StartByte(),
				})
			}
			if !yield(match, nil) {
				return
			}
		}
	}
}
