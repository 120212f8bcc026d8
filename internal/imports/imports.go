// Package imports implements the ImportAnalyzer: given a file's bytes and
// its detected module kind, it extracts the ordered, duplicate-preserving
// list of import specifiers and classifies each as a path, id, or tag
// reference.
//
// The per-file contract — read just enough of a file to learn its
// dependencies, recover locally on a malformed file rather than aborting the
// whole check-in — follows CUE's internal/cueimports (a reader that stops
// after a file's import section). cueimports hand-scans CUE's import-clause
// grammar byte by byte; this package instead runs a compiled tree-sitter
// query over the full parse of a TypeScript/JavaScript file
// (internal/tsquery), since specifiers here can appear inside import
// attribute objects and dynamic import() calls that a byte-scanner would
// not recognize.
package imports

import (
	"regexp"
	"sort"
	"strings"

	"tangram.systems/checkin/internal/artifact"
	"tangram.systems/checkin/internal/diag"
	"tangram.systems/checkin/internal/tsquery"
)

// PackageRootFile is the file whose presence promotes a directory to a
// package root. Exported here too (graph.PackageRootFile is the canonical
// copy) since module-kind detection and root detection both key off it.
const PackageRootFile = "tangram.ts"

// DetectModuleKind classifies a file by its name, per §4.2: filename suffix,
// with tangram.ts always being a TS module regardless of the general suffix
// rule (it already ends in .ts, so this is really just the base case).
func DetectModuleKind(name string) artifact.ModuleKind {
	switch {
	case strings.HasSuffix(name, ".ts"), strings.HasSuffix(name, ".tsx"):
		return artifact.ModuleTS
	case strings.HasSuffix(name, ".js"), strings.HasSuffix(name, ".jsx"), strings.HasSuffix(name, ".mjs"), strings.HasSuffix(name, ".cjs"):
		return artifact.ModuleJS
	default:
		return artifact.ModuleNone
	}
}

// idReferencePattern matches "<id-prefix>_<base32>", the same shape
// internal/objectid formats artifact IDs in: a short lowercase kind prefix,
// an underscore, and a lowercase Crockford base32 body.
var idReferencePattern = regexp.MustCompile(`^(dir|fil|sym|gph|blb)_[0-9a-hjkmnp-tv-z]+$`)

// Module is the ImportAnalyzer's output for one file.
type Module struct {
	Kind       artifact.ModuleKind
	References []artifact.Reference
}

// Analyze extracts path's import references from src. A malformed file is
// recovered locally per §4.2: Analyze never returns a fatal error; it
// returns an empty reference list plus a diagnostic describing the parse
// failure.
func Analyze(path string, kind artifact.ModuleKind, src []byte) (*Module, diag.List) {
	var diags diag.List
	if kind == artifact.ModuleNone {
		return &Module{Kind: kind}, diags
	}

	lang := tsquery.LanguageTypeScript
	if kind == artifact.ModuleJS {
		lang = tsquery.LanguageJavaScript
	}

	type statement struct {
		text      string
		startByte uint
		attrs     map[string]string
	}
	byNode := map[uint64]*statement{}
	var order []uint64

	parseFailed := false
	for match, err := range tsquery.ImportMatches(lang, src) {
		if err != nil {
			diags.Addf(diag.Pos{Path: path}, "parsing imports: %v", err)
			parseFailed = true
			break
		}

		if spec, ok := match.Attr("specifier"); ok {
			anchorName := "import.static"
			anchor, anchorOK := findCapture(match, anchorName)
			if !anchorOK {
				anchor, anchorOK = findCapture(match, "import.dynamic")
			}
			if !anchorOK {
				continue
			}
			st, exists := byNode[anchor.NodeID]
			if !exists {
				st = &statement{text: spec, startByte: anchor.StartByte, attrs: map[string]string{}}
				byNode[anchor.NodeID] = st
				order = append(order, anchor.NodeID)
			} else {
				st.text = spec
			}
			continue
		}

		if key, ok := match.Attr("attr.key"); ok {
			val, _ := match.Attr("attr.value")
			anchor, anchorOK := findCapture(match, "import.attrs")
			if !anchorOK {
				continue
			}
			st, exists := byNode[anchor.NodeID]
			if !exists {
				st = &statement{startByte: anchor.StartByte, attrs: map[string]string{}}
				byNode[anchor.NodeID] = st
				order = append(order, anchor.NodeID)
			}
			st.attrs[key] = val
		}
	}

	if parseFailed {
		return &Module{Kind: kind}, diags
	}

	sort.SliceStable(order, func(i, j int) bool {
		return byNode[order[i]].startByte < byNode[order[j]].startByte
	})

	m := &Module{Kind: kind}
	for _, id := range order {
		st := byNode[id]
		if st.text == "" {
			// An attrs-only node with no specifier capture in byNode (should
			// not happen given the query shape, but guards against a
			// degenerate match order).
			continue
		}
		m.References = append(m.References, Classify(st.text, st.attrs))
	}
	return m, diags
}

func findCapture(m tsquery.Match, name string) (tsquery.Capture, bool) {
	for _, c := range m.Captures {
		if c.Name == name {
			return c, true
		}
	}
	return tsquery.Capture{}, false
}

// Classify implements §4.2's specifier classification: a leading "." or "/"
// is a path reference; an id-prefix_base32 shape is an id reference;
// anything else is a tag reference, with an optional version pattern after
// the first unescaped "/". Exported so the Resolver's DependencyLister can
// reclassify a dependency's reference text read back out of the store,
// without re-running the tree-sitter query.
func Classify(text string, attrs map[string]string) artifact.Reference {
	ref := artifact.Reference{Text: text, Attrs: attrs}

	switch {
	case strings.HasPrefix(text, ".") || strings.HasPrefix(text, "/"):
		ref.Kind = artifact.ReferencePath
	case idReferencePattern.MatchString(text):
		ref.Kind = artifact.ReferenceID
	default:
		ref.Kind = artifact.ReferenceTag
		name, pattern, hasPattern := strings.Cut(text, "/")
		ref.Name = name
		if hasPattern {
			ref.Pattern = pattern
		} else {
			ref.Pattern = "*"
		}
	}
	return ref
}
