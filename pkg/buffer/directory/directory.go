// Package directory implements the buffer pool's concurrent page-id->frame
// map as an extendible hash table, grounded on
// original_source/src/hash/extendible_hash.cpp.
package directory

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"

	"storemy/pkg/primitives"
)

type entry struct {
	key   primitives.PageID
	value primitives.FrameID
}

type bucket struct {
	localDepth int
	entries    []entry
}

func newBucket(localDepth, capacity int) *bucket {
	return &bucket{localDepth: localDepth, entries: make([]entry, 0, capacity)}
}

func (b *bucket) find(key primitives.PageID) (primitives.FrameID, bool) {
	for _, e := range b.entries {
		if e.key == key {
			return e.value, true
		}
	}
	return 0, false
}

func (b *bucket) full(capacity int) bool {
	return len(b.entries) >= capacity
}

func (b *bucket) upsert(key primitives.PageID, value primitives.FrameID) (inserted bool) {
	for i, e := range b.entries {
		if e.key == key {
			b.entries[i].value = value
			return false
		}
	}
	b.entries = append(b.entries, entry{key, value})
	return true
}

func (b *bucket) remove(key primitives.PageID) bool {
	for i, e := range b.entries {
		if e.key == key {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Directory is the concurrent page-id -> frame-id map backing the buffer
// pool. All operations are serialized under a single lock, matching
// spec.md §4.2's "all operations are serialized under a single lock".
type Directory struct {
	mu          sync.Mutex
	globalDepth int
	bucketSize  int
	buckets     []*bucket // one slot per directory index, length 2^globalDepth
}

// New creates a directory with global depth 0 (a single bucket) and the
// given per-bucket capacity before a split is triggered.
func New(bucketSize int) *Directory {
	return &Directory{
		bucketSize: bucketSize,
		buckets:    []*bucket{newBucket(0, bucketSize)},
	}
}

// HashKey hashes a page id to a 64-bit value using xxhash over its
// little-endian byte representation, replacing a hand-rolled hash function
// with a well-distributed non-cryptographic one.
func HashKey(key primitives.PageID) uint64 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(key))
	return xxhash.Sum64(buf[:])
}

func (d *Directory) bucketIndex(hash uint64) int {
	mask := uint64(1<<uint(d.globalDepth)) - 1
	return int(hash & mask)
}

// Find looks up key, returning its frame and true if present.
func (d *Directory) Find(key primitives.PageID) (primitives.FrameID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b := d.buckets[d.bucketIndex(HashKey(key))]
	return b.find(key)
}

// Remove deletes key from the directory if present; it never merges or
// shrinks buckets, matching spec.md §4.2.
func (d *Directory) Remove(key primitives.PageID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	b := d.buckets[d.bucketIndex(HashKey(key))]
	return b.remove(key)
}

// Insert upserts (key, value), splitting buckets and, when necessary,
// doubling the directory until the target bucket has room. This follows
// the five-step algorithm of extendible_hash.cpp's Insert exactly.
func (d *Directory) Insert(key primitives.PageID, value primitives.FrameID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	hash := HashKey(key)
	idx := d.bucketIndex(hash)
	b := d.buckets[idx]

	if !b.upsert(key, value) {
		return // overwrote an existing entry; no split needed
	}
	// upsert appended a new entry; it may have overflowed the bucket.
	for b.full(d.bucketSize) {
		if b.localDepth == d.globalDepth {
			d.doubleDirectory()
			idx = d.bucketIndex(hash)
			b = d.buckets[idx]
		}

		d.splitBucket(idx)
		idx = d.bucketIndex(hash)
		b = d.buckets[idx]
	}
}

// doubleDirectory duplicates every slot, doubling the directory's length
// and incrementing the global depth by one (step 1).
func (d *Directory) doubleDirectory() {
	doubled := make([]*bucket, len(d.buckets)*2)
	copy(doubled, d.buckets)
	copy(doubled[len(d.buckets):], d.buckets)
	d.buckets = doubled
	d.globalDepth++
}

// splitBucket increments the local depth of the bucket at idx, redistributes
// its entries across two fresh buckets using the new depth's low bit, and
// retargets every directory slot that pointed at the old bucket (steps 2-4).
func (d *Directory) splitBucket(idx int) {
	old := d.buckets[idx]
	newLocalDepth := old.localDepth + 1
	bit := uint64(1) << uint(newLocalDepth-1)

	zero := newBucket(newLocalDepth, d.bucketSize)
	one := newBucket(newLocalDepth, d.bucketSize)

	for _, e := range old.entries {
		if HashKey(e.key)&bit == 0 {
			zero.entries = append(zero.entries, e)
		} else {
			one.entries = append(one.entries, e)
		}
	}

	lowMask := bit - 1
	suffix := uint64(idx) & lowMask
	for i := range d.buckets {
		if d.buckets[i] != old {
			continue
		}
		if uint64(i)&lowMask != suffix {
			continue
		}
		if uint64(i)&bit == 0 {
			d.buckets[i] = zero
		} else {
			d.buckets[i] = one
		}
	}
}

// GetGlobalDepth returns the directory's current global depth.
func (d *Directory) GetGlobalDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.globalDepth
}

// GetLocalDepth returns the local depth of the bucket that directory slot i
// (the raw index, not a key) points to.
func (d *Directory) GetLocalDepth(i int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buckets[i].localDepth
}

// GetNumBuckets returns the number of distinct buckets. Because buckets are
// shared across directory slots after a split, this counts unique pointers,
// not len(directory).
func (d *Directory) GetNumBuckets() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	seen := make(map[*bucket]bool, len(d.buckets))
	for _, b := range d.buckets {
		seen[b] = true
	}
	return len(seen)
}
