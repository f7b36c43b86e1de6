package extractor

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// recordCache is a keyed-by-video-id TTL cache of resolved Records. Each
// entry's TTL is derived per-record from Record.ExpiresAt rather than a
// single fixed cache-wide TTL, since different strategies can yield URLs
// with very different lifetimes.
type recordCache struct {
	c *gocache.Cache
}

func newRecordCache() *recordCache {
	// The janitor sweep interval only needs to be frequent enough that
	// expired entries don't linger long after their individual TTL lapses;
	// per-item TTLs are what actually gate a cache hit.
	return &recordCache{c: gocache.New(defaultExpiry, 10*time.Minute)}
}

// Get returns the cached record for videoID, or false if absent or
// expired. go-cache already evicts expired entries lazily on Get, so an
// expired record never surfaces here.
func (rc *recordCache) Get(videoID string) (Record, bool) {
	v, ok := rc.c.Get(videoID)
	if !ok {
		return Record{}, false
	}
	return v.(Record), true
}

// PutForVideo stores rec keyed by the video id it was resolved for, with a
// TTL derived from rec.ExpiresAt.
func (rc *recordCache) PutForVideo(videoID string, rec Record) {
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return
	}
	rc.c.Set(videoID, rec, ttl)
}

// Invalidate removes any cached record for videoID.
func (rc *recordCache) Invalidate(videoID string) {
	rc.c.Delete(videoID)
}
