package objectid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeterministic(t *testing.T) {
	a := New(KindFile, []byte("hello"))
	b := New(KindFile, []byte("hello"))
	assert.Equal(t, a, b)

	c := New(KindFile, []byte("goodbye"))
	assert.NotEqual(t, a, c)
}

func TestNewKindPrefix(t *testing.T) {
	id := New(KindDirectory, []byte("x"))
	assert.Equal(t, KindDirectory, id.Kind())
	assert.Regexp(t, `^dir_[0-9a-hjkmnp-tv-z]+$`, string(id))
}

func TestKindMalformed(t *testing.T) {
	var id ID = "not-an-id"
	assert.Equal(t, Kind(""), id.Kind())
}

func TestNewFromDigestMatchesNew(t *testing.T) {
	data := []byte("content")
	digest := Hash(data)
	require.Equal(t, New(KindBlob, data), NewFromDigest(KindBlob, digest))
}

func TestEncodingHasNoPadding(t *testing.T) {
	id := New(KindFile, []byte(""))
	assert.NotContains(t, string(id), "=")
	assert.Equal(t, string(id), string(id))
}
