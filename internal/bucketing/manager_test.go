package bucketing

import (
	"fmt"
	"testing"
	"time"

	"portal-auth/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestBucketsAreStableAndInRange(t *testing.T) {
	bm := NewBucketingManager(config.BucketingConfig{LockStripes: 16, EventBuckets: 8})

	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("session-%d", i)
		stripe := bm.LockStripe(id)
		assert.GreaterOrEqual(t, stripe, 0)
		assert.Less(t, stripe, 16)
		assert.Equal(t, stripe, bm.LockStripe(id))

		bucket := bm.EventBucket(id)
		assert.GreaterOrEqual(t, bucket, 0)
		assert.Less(t, bucket, 8)
	}
}

func TestBucketsSpread(t *testing.T) {
	bm := NewBucketingManager(config.BucketingConfig{LockStripes: 8, EventBuckets: 8})

	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		seen[bm.LockStripe(fmt.Sprintf("s%d", i))] = true
	}
	assert.Len(t, seen, 8)
}

func TestZeroCountsFallBackToOne(t *testing.T) {
	bm := NewBucketingManager(config.BucketingConfig{})
	assert.Equal(t, 1, bm.LockStripes())
	assert.Equal(t, 0, bm.EventBucket("anything"))
}

func TestDateBucket(t *testing.T) {
	bm := NewBucketingManager(config.BucketingConfig{LockStripes: 1, EventBuckets: 1})
	ts := time.Date(2024, 3, 1, 23, 30, 0, 0, time.FixedZone("TRT", 3*3600))
	assert.Equal(t, "2024-03-01", bm.DateBucket(ts))
}
