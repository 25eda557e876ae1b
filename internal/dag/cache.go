package dag

import (
	"github.com/coocood/freecache"
	gocid "github.com/ipfs/go-cid"

	"github.com/systemshift/chanhist/internal/metrics"
)

// CommitCache keeps recently read commit objects in memory, keyed by CID.
// Commit bytes are immutable and content-addressed, so one cache can be
// shared by every channel in the process. A nil *CommitCache is a valid,
// disabled cache.
type CommitCache struct {
	cache   *freecache.Cache
	metrics metrics.Recorder
}

// NewCommitCache returns a cache of sizeMB megabytes, or nil when sizeMB is
// not positive.
func NewCommitCache(sizeMB int, rec metrics.Recorder) *CommitCache {
	if sizeMB <= 0 {
		return nil
	}
	if rec == nil {
		rec = metrics.Noop()
	}
	return &CommitCache{
		cache:   freecache.NewCache(sizeMB * 1024 * 1024),
		metrics: rec,
	}
}

// Get returns the cached bytes for c.
func (cc *CommitCache) Get(c gocid.Cid) ([]byte, bool) {
	if cc == nil {
		return nil, false
	}
	val, err := cc.cache.Get(c.Bytes())
	if err != nil {
		cc.metrics.IncCacheMisses()
		return nil, false
	}
	cc.metrics.IncCacheHits()
	return val, true
}

// Set stores data under c. Entries too large for the cache are dropped.
func (cc *CommitCache) Set(c gocid.Cid, data []byte) {
	if cc == nil {
		return
	}
	_ = cc.cache.Set(c.Bytes(), data, 0)
}
