package btree

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storemy/pkg/buffer/pool"
	"storemy/pkg/primitives"
	"storemy/pkg/types"
)

// memDisk is an in-memory disk.Manager fake, sized to whatever page size the
// test asks for.
type memDisk struct {
	mu       sync.Mutex
	pageSize int
	pages    map[primitives.PageID][]byte
	next     int32
}

func newMemDisk(pageSize int) *memDisk {
	return &memDisk{pageSize: pageSize, pages: make(map[primitives.PageID][]byte)}
}

// ReadPage errors on a page that was never allocated, matching the real
// disk manager's EOF-on-short-read behavior — loadRootFromHeader's
// first-use fallback depends on this to tell "page 0 doesn't exist yet"
// apart from "page 0 exists and is all zero".
func (d *memDisk) ReadPage(id primitives.PageID, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pages[id]
	if !ok {
		return fmt.Errorf("memDisk: page %d never allocated", id)
	}
	copy(buf, p)
	return nil
}

func (d *memDisk) WritePage(id primitives.PageID, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(buf))
	copy(cp, buf)
	d.pages[id] = cp
	return nil
}

func (d *memDisk) AllocatePage() primitives.PageID {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := primitives.PageID(d.next)
	d.next++
	return id
}

func (d *memDisk) DeallocatePage(id primitives.PageID) {}

func (d *memDisk) WriteLog(buf []byte, offset int64) error { return nil }
func (d *memDisk) ReadLog(buf []byte, offset int64) (int, error) { return 0, nil }
func (d *memDisk) Close() error { return nil }

// newTestTree builds a tree with a page size small enough (72 bytes) to give
// Int32Key leaves a max_size of exactly 3, matching spec.md's S3 scenario.
func newTestTree(t *testing.T) (*Tree, *pool.Manager) {
	const pageSize = 72
	disk := newMemDisk(pageSize)
	bp := pool.New(16, pageSize, disk, nil)
	tree, err := Open(bp, pageSize, "idx", types.Int32KeyType)
	require.NoError(t, err)
	return tree, bp
}

func rid(n int32) primitives.RID { return primitives.RID{PageID: primitives.PageID(n), Slot: 0} }

// TestTree_ScenarioS3 reproduces spec.md's S3 exactly: max_size=3 leaf;
// insert 5,10,15,20 splits into leaves {5,10},{15,20} under a root internal
// page; removing 10 then redistributes or coalesces, leaving the tree
// sorted and searchable.
func TestTree_ScenarioS3(t *testing.T) {
	tree, _ := newTestTree(t)

	for _, k := range []int32{5, 10, 15, 20} {
		require.NoError(t, tree.Insert(types.Int32Key(k), rid(k)))
	}

	for _, k := range []int32{5, 10, 15, 20} {
		v, ok, err := tree.GetValue(types.Int32Key(k))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, rid(k), v)
	}

	assertSorted(t, tree, []int32{5, 10, 15, 20})

	require.NoError(t, tree.Remove(types.Int32Key(10)))

	_, ok, err := tree.GetValue(types.Int32Key(10))
	require.NoError(t, err)
	assert.False(t, ok)

	assertSorted(t, tree, []int32{5, 15, 20})
}

// TestTree_PropertyInOrderMatchesInsertedSet exercises testable property 3:
// in-order leaf traversal is sorted ascending and contains exactly the
// inserted keys, and GetValue agrees with the inserted map, across a larger
// unordered insert sequence that forces several splits.
func TestTree_PropertyInOrderMatchesInsertedSet(t *testing.T) {
	tree, _ := newTestTree(t)

	inserted := []int32{50, 10, 90, 30, 70, 20, 60, 80, 40, 5, 15, 25, 35, 45, 55, 65, 75, 85, 95, 1}
	for _, k := range inserted {
		require.NoError(t, tree.Insert(types.Int32Key(k), rid(k)))
	}

	want := append([]int32{}, inserted...)
	sortInt32s(want)
	assertSorted(t, tree, want)

	for _, k := range inserted {
		v, ok, err := tree.GetValue(types.Int32Key(k))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, rid(k), v)
	}
}

// TestTree_RemoveInterleavedWithInsertStaysBalanced inserts and removes
// enough keys to force both coalesce and redistribute paths, then checks
// every surviving key is still reachable and the tree stays sorted.
func TestTree_RemoveInterleavedWithInsertStaysBalanced(t *testing.T) {
	tree, _ := newTestTree(t)

	present := map[int32]bool{}
	for k := int32(0); k < 30; k++ {
		require.NoError(t, tree.Insert(types.Int32Key(k), rid(k)))
		present[k] = true
	}

	for _, k := range []int32{5, 6, 7, 15, 16, 20, 21, 22, 0, 29} {
		require.NoError(t, tree.Remove(types.Int32Key(k)))
		delete(present, k)
	}

	var want []int32
	for k := range present {
		want = append(want, k)
	}
	sortInt32s(want)
	assertSorted(t, tree, want)

	for k := range present {
		_, ok, err := tree.GetValue(types.Int32Key(k))
		require.NoError(t, err)
		assert.True(t, ok, "key %d should still be present", k)
	}
}

func TestTree_DuplicateKeyRejected(t *testing.T) {
	tree, _ := newTestTree(t)
	require.NoError(t, tree.Insert(types.Int32Key(1), rid(1)))
	assert.ErrorIs(t, tree.Insert(types.Int32Key(1), rid(2)), ErrDuplicateKey)
}

func TestTree_RemoveMissingKeyIsNoop(t *testing.T) {
	tree, _ := newTestTree(t)
	require.NoError(t, tree.Insert(types.Int32Key(1), rid(1)))
	require.NoError(t, tree.Remove(types.Int32Key(99)))
	_, ok, err := tree.GetValue(types.Int32Key(1))
	require.NoError(t, err)
	assert.True(t, ok)
}

func assertSorted(t *testing.T, tree *Tree, want []int32) {
	t.Helper()
	it, err := tree.Begin()
	require.NoError(t, err)

	var got []int32
	for !it.IsEnd() {
		k := it.Key().(types.Int32Key)
		got = append(got, int32(k))
		it.Next()
	}
	assert.Equal(t, want, got)
}

func sortInt32s(s []int32) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
