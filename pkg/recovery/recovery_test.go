package recovery

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storemy/pkg/buffer/pool"
	"storemy/pkg/primitives"
	"storemy/pkg/wal"
)

// persistentDisk is a fake disk.Manager that actually persists page and log
// bytes in memory, so recovery can be exercised against a "fresh" pool that
// simulates a restart.
type persistentDisk struct {
	mu       sync.Mutex
	pages    map[primitives.PageID][]byte
	pageSize int
	next     primitives.PageID
	log      []byte
}

func newPersistentDisk(pageSize int) *persistentDisk {
	return &persistentDisk{pages: make(map[primitives.PageID][]byte), pageSize: pageSize}
}

func (d *persistentDisk) ReadPage(id primitives.PageID, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pages[id]; ok {
		copy(buf, p)
	}
	return nil
}

func (d *persistentDisk) WritePage(id primitives.PageID, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(buf))
	copy(cp, buf)
	d.pages[id] = cp
	return nil
}

func (d *persistentDisk) AllocatePage() primitives.PageID {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.next
	d.next++
	return id
}

func (d *persistentDisk) DeallocatePage(id primitives.PageID) {}

func (d *persistentDisk) WriteLog(buf []byte, offset int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	end := offset + int64(len(buf))
	if end > int64(len(d.log)) {
		grown := make([]byte, end)
		copy(grown, d.log)
		d.log = grown
	}
	copy(d.log[offset:end], buf)
	return nil
}

func (d *persistentDisk) ReadLog(buf []byte, offset int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if offset >= int64(len(d.log)) {
		return 0, nil
	}
	n := copy(buf, d.log[offset:])
	return n, nil
}

func (d *persistentDisk) Close() error { return nil }

// TestRecovery_ScenarioS6 implements spec.md's S6: log = BEGIN(1),
// INSERT(1,rid=R1,tA), COMMIT(1), BEGIN(2), UPDATE(2,R1,tA->tB). After
// Redo+Undo: page holds tA at R1; active_txn_ empty.
func TestRecovery_ScenarioS6(t *testing.T) {
	const pageSize = 256
	disk := newPersistentDisk(pageSize)

	setup := pool.New(4, pageSize, disk, nil)
	frame, err := setup.NewPage()
	require.NoError(t, err)
	pid := frame.PageID()
	InitRecordPage(frame.Data())
	require.NoError(t, setup.UnpinPage(pid, true))
	require.NoError(t, setup.FlushPage(pid))

	rid := primitives.RID{PageID: pid, Slot: 0}
	tupleA := []byte("aaaa")
	tupleB := []byte("bbbb")

	records := []*wal.Record{
		{Type: wal.Begin, TxnID: 1, PrevLSN: -1},
		{Type: wal.Insert, TxnID: 1, PrevLSN: 0, RID: rid, Tuple: tupleA},
		{Type: wal.Commit, TxnID: 1, PrevLSN: 1},
		{Type: wal.Begin, TxnID: 2, PrevLSN: -1},
		{Type: wal.Update, TxnID: 2, PrevLSN: 3, UpdateRID: rid, Tuple: tupleA, Tuple2: tupleB},
	}

	var offset int64
	for i, rec := range records {
		rec.LSN = primitives.LSN(i)
		buf := rec.Encode()
		require.NoError(t, disk.WriteLog(buf, offset))
		offset += int64(len(buf))
	}

	restarted := pool.New(4, pageSize, disk, nil)
	rec := New(disk, restarted, 4096)

	require.NoError(t, rec.Redo())
	require.NoError(t, rec.Undo())

	assert.Equal(t, 0, rec.ActiveTxnCount())

	f, err := restarted.FetchPage(pid)
	require.NoError(t, err)
	page := WrapRecordPage(f.Data())
	tuple, ok := page.GetTuple(rid.Slot)
	require.True(t, ok)
	assert.Equal(t, tupleA, tuple)
	require.NoError(t, restarted.UnpinPage(pid, false))
}
