package diag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewf_PositionedMessage(t *testing.T) {
	err := Newf(Pos{Path: "a.tg.ts", Line: 3}, "bad import %q", "x")
	require.Equal(t, "a.tg.ts:3: bad import \"x\"", err.Error())
	require.Equal(t, Pos{Path: "a.tg.ts", Line: 3}, err.Position())
}

func TestNewf_NoPathOmitsPrefix(t *testing.T) {
	err := Newf(Pos{}, "something went wrong")
	require.Equal(t, "something went wrong", err.Error())
}

func TestWrapf_Unwraps(t *testing.T) {
	base := errors.New("underlying")
	err := Wrapf(base, Pos{Path: "f.ts"}, "parsing")
	require.True(t, errors.Is(err, base))
	require.Contains(t, err.Error(), "underlying")
}

func TestList_ErrNilWhenEmpty(t *testing.T) {
	var l List
	require.NoError(t, l.Err())
}

func TestList_ErrNonNilWhenPopulated(t *testing.T) {
	var l List
	l.Addf(Pos{Path: "a.ts"}, "oops")
	require.Error(t, l.Err())
	require.Len(t, l, 1)
}

func TestList_ErrorStringsSingleVsMultiple(t *testing.T) {
	var l List
	l.Addf(Pos{Path: "a.ts"}, "first")
	require.Equal(t, "a.ts: first", l.Error())

	l.Addf(Pos{Path: "b.ts"}, "second")
	require.Contains(t, l.Error(), "2 errors")
}
