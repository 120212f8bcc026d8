package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tangram.systems/checkin/internal/objectid"
)

type countingFetcher struct {
	calls int
	lists []Candidate
}

func (f *countingFetcher) FetchList(ctx context.Context, name, pattern string) ([]Candidate, error) {
	f.calls++
	return f.lists, nil
}

func (f *countingFetcher) FetchGet(ctx context.Context, tag string) (objectid.ID, bool, error) {
	return "", false, nil
}

// TestCachingClient_WithinTTLReusesCache is spec §8's TTL property: the same
// request within the freshness window returns the cached candidates without
// a second fetch.
func TestCachingClient_WithinTTLReusesCache(t *testing.T) {
	fetcher := &countingFetcher{lists: []Candidate{{Version: "1.0.0", ArtifactID: "fil_a100"}}}
	c := NewCachingClient(fetcher, time.Hour)

	_, err := c.List(context.Background(), "a", "^1", time.Hour)
	require.NoError(t, err)
	_, err = c.List(context.Background(), "a", "^1", time.Hour)
	require.NoError(t, err)

	require.Equal(t, 1, fetcher.calls, "a second call within TTL must not refetch")
}

// TestCachingClient_ZeroTTLBypassesCache is spec §8's TTL property: ttl=0
// always forces a fresh fetch, never returning a cached response.
func TestCachingClient_ZeroTTLBypassesCache(t *testing.T) {
	fetcher := &countingFetcher{lists: []Candidate{{Version: "1.0.0", ArtifactID: "fil_a100"}}}
	c := NewCachingClient(fetcher, time.Hour)

	_, err := c.List(context.Background(), "a", "^1", time.Hour)
	require.NoError(t, err)
	_, err = c.List(context.Background(), "a", "^1", 0)
	require.NoError(t, err)

	require.Equal(t, 2, fetcher.calls, "ttl=0 must bypass the cache and refetch")
}

func TestCachingClient_DifferentPatternsCachedSeparately(t *testing.T) {
	fetcher := &countingFetcher{lists: []Candidate{{Version: "1.0.0", ArtifactID: "fil_a100"}}}
	c := NewCachingClient(fetcher, time.Hour)

	_, err := c.List(context.Background(), "a", "^1", time.Hour)
	require.NoError(t, err)
	_, err = c.List(context.Background(), "a", "^2", time.Hour)
	require.NoError(t, err)

	require.Equal(t, 2, fetcher.calls, "distinct (name, pattern) keys must not share a cache entry")
}
