package bucketing

import (
	"hash"
	"sync"
	"time"

	"portal-auth/internal/config"

	"github.com/spaolacci/murmur3"
)

// BucketingManager maps identifiers onto fixed bucket ranges with murmur3.
type BucketingManager struct {
	lockStripes  int
	eventBuckets int
	hasherPool   sync.Pool
}

func NewBucketingManager(cfg config.BucketingConfig) *BucketingManager {
	bm := &BucketingManager{
		lockStripes:  max(cfg.LockStripes, 1),
		eventBuckets: max(cfg.EventBuckets, 1),
	}
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return bm
}

// LockStripe returns the lock stripe (0 to LockStripes-1) guarding a session.
func (bm *BucketingManager) LockStripe(sessionID string) int {
	return bm.getBucket(sessionID, bm.lockStripes)
}

// EventBucket returns the audit partition for an identifier. Raw identifiers
// are never stored next to the bucket.
func (bm *BucketingManager) EventBucket(identifier string) int {
	return bm.getBucket(identifier, bm.eventBuckets)
}

// DateBucket returns the UTC day partition for t.
func (bm *BucketingManager) DateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (bm *BucketingManager) LockStripes() int {
	return bm.lockStripes
}

func (bm *BucketingManager) EventBuckets() int {
	return bm.eventBuckets
}

func (bm *BucketingManager) getBucket(key string, numBuckets int) int {
	return int(bm.getHash(key) % uint64(numBuckets))
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	_, _ = hasher.Write([]byte(key))
	return hasher.Sum64()
}
