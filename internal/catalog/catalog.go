// Package catalog defines the TagCatalogClient contract the Resolver
// consumes and a caching client wrapper, adapted from
// github.com/gregjones/httpcache's cache-wrapped-transport idiom: instead of
// caching HTTP responses by request, it caches catalog candidate lists by
// (name, pattern), honoring a per-call TTL.
package catalog

import (
	"context"
	"sync"
	"time"

	"tangram.systems/checkin/internal/objectid"
)

// Candidate is one published version of a tagged name.
type Candidate struct {
	Version    string
	ArtifactID objectid.ID
}

// Client is the external TagCatalogClient contract.
type Client interface {
	// List returns candidates for name matching pattern, sorted latest-first.
	// ttl of 0 forces a cache bypass.
	List(ctx context.Context, name, pattern string, ttl time.Duration) ([]Candidate, error)
	// Get resolves an exact tag to its artifact ID.
	Get(ctx context.Context, tag string) (objectid.ID, bool, error)
}

// Fetcher performs the uncached, underlying catalog RPC. A real deployment
// backs this with a network client; tests back it with a fixed map.
type Fetcher interface {
	FetchList(ctx context.Context, name, pattern string) ([]Candidate, error)
	FetchGet(ctx context.Context, tag string) (objectid.ID, bool, error)
}

type cacheEntry struct {
	candidates []Candidate
	fetchedAt  time.Time
}

// CachingClient wraps a Fetcher with a process-local, TTL-governed cache
// keyed by (name, pattern), mirroring httpcache's get-or-fetch-and-store
// shape.
type CachingClient struct {
	fetcher    Fetcher
	defaultTTL time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewCachingClient creates a client and records defaultTTL on it. List does
// not consult defaultTTL: every List call uses its own ttl argument, so
// callers wanting the configured default pass it explicitly, sourced from
// the tag.cache_ttl config value.
func NewCachingClient(f Fetcher, defaultTTL time.Duration) *CachingClient {
	return &CachingClient{fetcher: f, defaultTTL: defaultTTL, cache: make(map[string]cacheEntry)}
}

func cacheKey(name, pattern string) string { return name + "\x00" + pattern }

// List implements Client.
func (c *CachingClient) List(ctx context.Context, name, pattern string, ttl time.Duration) ([]Candidate, error) {
	key := cacheKey(name, pattern)

	if ttl != 0 {
		c.mu.Lock()
		entry, ok := c.cache[key]
		c.mu.Unlock()
		if ok && time.Since(entry.fetchedAt) < ttl {
			return entry.candidates, nil
		}
	}

	candidates, err := c.fetcher.FetchList(ctx, name, pattern)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{candidates: candidates, fetchedAt: now()}
	c.mu.Unlock()

	return candidates, nil
}

// Get implements Client.
func (c *CachingClient) Get(ctx context.Context, tag string) (objectid.ID, bool, error) {
	return c.fetcher.FetchGet(ctx, tag)
}

// now is a var so tests can make TTL expiry deterministic without sleeping.
var now = time.Now
