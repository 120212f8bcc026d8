package fingerprint

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tangram.systems/checkin/internal/objectid"
)

func TestComputeDeterministic(t *testing.T) {
	digest := objectid.Hash([]byte("content"))
	a := Compute("a/b.ts", digest)
	b := Compute("a/b.ts", digest)
	assert.Equal(t, a, b)

	other := Compute("a/c.ts", digest)
	assert.NotEqual(t, a, other)
}

func TestComputeDiffersByContentForSamePath(t *testing.T) {
	d1 := objectid.Hash([]byte("one"))
	d2 := objectid.Hash([]byte("two"))
	assert.NotEqual(t, Compute("same.ts", d1), Compute("same.ts", d2))
}

func TestTableDeduplicatesConcurrentCalls(t *testing.T) {
	table := NewTable()
	fp := Compute("entry.ts", objectid.Hash([]byte("x")))

	var calls int32
	var wg sync.WaitGroup
	results := make([]Result, 8)
	errs := make([]error, 8)

	var gate sync.WaitGroup
	gate.Add(1)
	release := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			gate.Wait()
			results[i], errs[i] = table.Do(fp, func() (objectid.ID, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return objectid.ID("fil_abc"), nil
			})
		}(i)
	}

	gate.Done() // release all goroutines at once so they race into table.Do together
	close(release)
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, objectid.ID("fil_abc"), results[i].ArtifactID)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "only one caller should have run fn")
}

func TestTablePropagatesError(t *testing.T) {
	table := NewTable()
	fp := Compute("bad.ts", objectid.Hash(nil))
	_, err := table.Do(fp, func() (objectid.ID, error) {
		return "", assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestForgetAllowsImmediateRerun(t *testing.T) {
	table := NewTable()
	fp := Compute("x.ts", objectid.Hash([]byte("x")))
	_, err := table.Do(fp, func() (objectid.ID, error) { return objectid.ID("fil_1"), nil })
	require.NoError(t, err)
	table.Forget(fp)

	var ran bool
	_, err = table.Do(fp, func() (objectid.ID, error) {
		ran = true
		return objectid.ID("fil_2"), nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}
