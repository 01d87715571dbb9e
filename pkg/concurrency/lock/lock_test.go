package lock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storemy/pkg/primitives"
)

type fakeTxn struct {
	mu      sync.Mutex
	id      primitives.TxnID
	state   State
	shared  map[primitives.RID]bool
	excl    map[primitives.RID]bool
}

func newFakeTxn(id primitives.TxnID) *fakeTxn {
	return &fakeTxn{id: id, state: Growing, shared: map[primitives.RID]bool{}, excl: map[primitives.RID]bool{}}
}

func (t *fakeTxn) ID() primitives.TxnID { return t.id }
func (t *fakeTxn) GetState() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
func (t *fakeTxn) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}
func (t *fakeTxn) AddSharedLock(rid primitives.RID)      { t.shared[rid] = true }
func (t *fakeTxn) AddExclusiveLock(rid primitives.RID)   { t.excl[rid] = true }
func (t *fakeTxn) RemoveSharedLock(rid primitives.RID)   { delete(t.shared, rid) }
func (t *fakeTxn) RemoveExclusiveLock(rid primitives.RID) { delete(t.excl, rid) }

// TestLockManager_ScenarioS4 implements spec.md's S4: T(1) holds X on r;
// T(5) requests S(r) => ABORTED; T(0) requests X(r) => waits; after T(1)
// commits (and unlocks), T(0) obtains X.
func TestLockManager_ScenarioS4(t *testing.T) {
	m := New(false)
	rid := primitives.RID{PageID: 1, Slot: 0}

	t1 := newFakeTxn(1)
	require.True(t, m.LockExclusive(t1, rid))

	t5 := newFakeTxn(5)
	assert.False(t, m.LockShared(t5, rid))
	assert.Equal(t, Aborted, t5.GetState())

	t0 := newFakeTxn(0)
	gotLock := make(chan bool, 1)
	go func() {
		gotLock <- m.LockExclusive(t0, rid)
	}()

	time.Sleep(20 * time.Millisecond) // let t0 block in the wait

	t1.SetState(Committed)
	require.True(t, m.Unlock(t1, rid))

	select {
	case ok := <-gotLock:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("T(0) never obtained the exclusive lock")
	}
}

func TestLockManager_StrictTwoPLBlocksEarlyUnlock(t *testing.T) {
	m := New(true)
	rid := primitives.RID{PageID: 1, Slot: 0}

	txn := newFakeTxn(1)
	require.True(t, m.LockExclusive(txn, rid))

	assert.False(t, m.Unlock(txn, rid)) // still GROWING, strict 2PL forbids
	assert.Equal(t, Aborted, txn.GetState())
}

func TestLockManager_SharedLockIsConcurrentlyHeld(t *testing.T) {
	m := New(false)
	rid := primitives.RID{PageID: 2, Slot: 0}

	t1 := newFakeTxn(1)
	t2 := newFakeTxn(2)
	require.True(t, m.LockShared(t1, rid))
	require.True(t, m.LockShared(t2, rid))

	t1.SetState(Committed)
	t2.SetState(Committed)
	require.True(t, m.Unlock(t1, rid))
	require.True(t, m.Unlock(t2, rid))
	assert.False(t, m.IsLocked(rid))
}
