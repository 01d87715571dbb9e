package replacer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"storemy/pkg/primitives"
)

// TestLRU_ScenarioS1 exercises spec.md scenario S1: Insert 1,2,3,4; Erase 2;
// Victim -> 1; Victim -> 3; Victim -> 4; Victim -> none.
func TestLRU_ScenarioS1(t *testing.T) {
	r := New()

	for _, f := range []primitives.FrameID{1, 2, 3, 4} {
		r.Insert(f)
	}
	assert.True(t, r.Erase(2))
	assert.Equal(t, 3, r.Size())

	v, ok := r.Victim()
	assert.True(t, ok)
	assert.Equal(t, primitives.FrameID(1), v)

	v, ok = r.Victim()
	assert.True(t, ok)
	assert.Equal(t, primitives.FrameID(3), v)

	v, ok = r.Victim()
	assert.True(t, ok)
	assert.Equal(t, primitives.FrameID(4), v)

	_, ok = r.Victim()
	assert.False(t, ok)
	assert.Equal(t, 0, r.Size())
}

func TestLRU_ReinsertRepositions(t *testing.T) {
	r := New()
	r.Insert(1)
	r.Insert(2)
	r.Insert(1) // 1 becomes most-recently-used again

	v, _ := r.Victim()
	assert.Equal(t, primitives.FrameID(2), v)

	v, _ = r.Victim()
	assert.Equal(t, primitives.FrameID(1), v)
}

func TestLRU_EraseThenVictimNeverReturnsErased(t *testing.T) {
	r := New()
	for _, f := range []primitives.FrameID{10, 20, 30} {
		r.Insert(f)
	}
	assert.True(t, r.Erase(20))
	assert.False(t, r.Erase(20))

	seen := map[primitives.FrameID]bool{}
	for {
		v, ok := r.Victim()
		if !ok {
			break
		}
		seen[v] = true
	}
	assert.False(t, seen[20])
	assert.True(t, seen[10])
	assert.True(t, seen[30])
}
