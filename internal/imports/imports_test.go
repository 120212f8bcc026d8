package imports

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tangram.systems/checkin/internal/artifact"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		text        string
		wantKind    artifact.ReferenceKind
		wantName    string
		wantPattern string
	}{
		{text: "./sibling.tg.ts", wantKind: artifact.ReferencePath},
		{text: "/abs/path.tg.ts", wantKind: artifact.ReferencePath},
		{text: "../up/one.tg.ts", wantKind: artifact.ReferencePath},
		{text: "fil_0123456789abcdefghjkmnpqrs", wantKind: artifact.ReferenceID},
		{text: "a", wantKind: artifact.ReferenceTag, wantName: "a", wantPattern: "*"},
		{text: "a/^1", wantKind: artifact.ReferenceTag, wantName: "a", wantPattern: "^1"},
		{text: "some-pkg/1.0.0", wantKind: artifact.ReferenceTag, wantName: "some-pkg", wantPattern: "1.0.0"},
	}
	for _, c := range cases {
		t.Run(c.text, func(t *testing.T) {
			ref := Classify(c.text, nil)
			require.Equal(t, c.wantKind, ref.Kind)
			if c.wantKind == artifact.ReferenceTag {
				require.Equal(t, c.wantName, ref.Name)
				require.Equal(t, c.wantPattern, ref.Pattern)
			}
			require.Equal(t, c.text, ref.Text)
		})
	}
}

func TestDetectModuleKind(t *testing.T) {
	require.Equal(t, artifact.ModuleTS, DetectModuleKind("tangram.ts"))
	require.Equal(t, artifact.ModuleTS, DetectModuleKind("component.tsx"))
	require.Equal(t, artifact.ModuleJS, DetectModuleKind("index.js"))
	require.Equal(t, artifact.ModuleJS, DetectModuleKind("index.mjs"))
	require.Equal(t, artifact.ModuleNone, DetectModuleKind("README.md"))
	require.Equal(t, artifact.ModuleNone, DetectModuleKind("data.json"))
}

func TestAnalyze_OrderAndDuplicates(t *testing.T) {
	src := []byte(`import a from "./a.tg.ts";
import b from "./b.tg.ts";
import a2 from "./a.tg.ts";
`)
	mod, diags := Analyze("entry.tg.ts", artifact.ModuleTS, src)
	require.Empty(t, diags)
	require.Len(t, mod.References, 3, "duplicate specifiers must be preserved, not deduplicated")
	require.Equal(t, "./a.tg.ts", mod.References[0].Text)
	require.Equal(t, "./b.tg.ts", mod.References[1].Text)
	require.Equal(t, "./a.tg.ts", mod.References[2].Text)
}

func TestAnalyze_NoneKindYieldsNoReferences(t *testing.T) {
	mod, diags := Analyze("README.md", artifact.ModuleNone, []byte("not a module"))
	require.Empty(t, diags)
	require.Empty(t, mod.References)
}
