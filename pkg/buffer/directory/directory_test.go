package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"storemy/pkg/primitives"
)

// TestDirectory_FindAfterInsertAndRemove exercises testable property 2:
// Find(k) returns the last value inserted for k, or false after Remove.
func TestDirectory_FindAfterInsertAndRemove(t *testing.T) {
	d := New(2)

	d.Insert(1, 10)
	d.Insert(2, 20)
	d.Insert(1, 11) // overwrite

	v, ok := d.Find(1)
	assert.True(t, ok)
	assert.Equal(t, primitives.FrameID(11), v)

	assert.True(t, d.Remove(2))
	_, ok = d.Find(2)
	assert.False(t, ok)
}

// TestDirectory_SplitGrowsGlobalDepth forces enough insertions to overflow
// the initial bucket and verifies the local-depth <= global-depth invariant
// holds throughout, and that every previously inserted key remains findable.
func TestDirectory_SplitGrowsGlobalDepth(t *testing.T) {
	d := New(2)

	keys := make([]primitives.PageID, 0, 64)
	for i := primitives.PageID(0); i < 64; i++ {
		d.Insert(i, primitives.FrameID(i))
		keys = append(keys, i)
	}

	assert.Greater(t, d.GetGlobalDepth(), 0)
	for i := 0; i < (1 << d.GetGlobalDepth()); i++ {
		assert.LessOrEqual(t, d.GetLocalDepth(i), d.GetGlobalDepth())
	}

	for _, k := range keys {
		v, ok := d.Find(k)
		assert.True(t, ok)
		assert.Equal(t, primitives.FrameID(k), v)
	}
}

func TestDirectory_RemoveMissingIsFalse(t *testing.T) {
	d := New(4)
	assert.False(t, d.Remove(42))
}
