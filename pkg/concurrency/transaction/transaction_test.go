package transaction

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storemy/pkg/concurrency/lock"
	"storemy/pkg/primitives"
	"storemy/pkg/wal"
)

type fakeTable struct {
	mu      sync.Mutex
	applied []string
}

func (f *fakeTable) ApplyDelete(rid primitives.RID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, "apply_delete:"+rid.String())
	return nil
}

func (f *fakeTable) RollbackDelete(rid primitives.RID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, "rollback_delete:"+rid.String())
	return nil
}

func (f *fakeTable) UpdateTuple(rid primitives.RID, tuple []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, "update:"+rid.String()+":"+string(tuple))
	return nil
}

type fakeLog struct {
	mu            sync.Mutex
	next          primitives.LSN
	persistentLSN int32
}

func (f *fakeLog) AppendLogRecord(rec *wal.Record) (primitives.LSN, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lsn := f.next
	f.next++
	return lsn, nil
}

func (f *fakeLog) WaitForLogFlush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persistentLSN = int32(f.next) - 1
	return nil
}

func (f *fakeLog) GetPersistentLSN() int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.persistentLSN
}

func TestTransactionManager_CommitAppliesDeferredDeletes(t *testing.T) {
	lm := lock.New(false)
	log := &fakeLog{}
	mgr := New(lm, log, true)

	txn, err := mgr.Begin()
	require.NoError(t, err)

	table := &fakeTable{}
	rid := primitives.RID{PageID: 1, Slot: 0}
	require.True(t, lm.LockExclusive(txn, rid))
	txn.PushWrite(WriteRecord{Type: Delete, RID: rid, Table: table})

	require.NoError(t, mgr.Commit(txn))
	assert.Equal(t, lock.Committed, txn.GetState())
	assert.Contains(t, table.applied, "apply_delete:"+rid.String())
	assert.False(t, lm.IsLocked(rid))
}

func TestTransactionManager_AbortInvertsWriteSetLIFO(t *testing.T) {
	lm := lock.New(false)
	log := &fakeLog{}
	mgr := New(lm, log, true)

	txn, err := mgr.Begin()
	require.NoError(t, err)

	table := &fakeTable{}
	r1 := primitives.RID{PageID: 1, Slot: 0}
	r2 := primitives.RID{PageID: 1, Slot: 1}
	require.True(t, lm.LockExclusive(txn, r1))
	require.True(t, lm.LockExclusive(txn, r2))

	txn.PushWrite(WriteRecord{Type: Insert, RID: r1, Table: table})
	txn.PushWrite(WriteRecord{Type: Update, RID: r2, Tuple: []byte("old"), Table: table})

	require.NoError(t, mgr.Abort(txn))
	assert.Equal(t, lock.Aborted, txn.GetState())
	require.Len(t, table.applied, 2)
	assert.Equal(t, "update:"+r2.String()+":old", table.applied[0]) // LIFO: update undone first
	assert.Equal(t, "apply_delete:"+r1.String(), table.applied[1])
	assert.False(t, lm.IsLocked(r1))
	assert.False(t, lm.IsLocked(r2))
}
