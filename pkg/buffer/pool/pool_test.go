package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storemy/pkg/primitives"
)

// memDisk is a minimal in-memory disk.Manager stand-in for buffer pool tests.
type memDisk struct {
	mu       sync.Mutex
	pages    map[primitives.PageID][]byte
	pageSize int
	next     primitives.PageID
}

func newMemDisk(pageSize int) *memDisk {
	return &memDisk{pages: make(map[primitives.PageID][]byte), pageSize: pageSize}
}

func (d *memDisk) ReadPage(id primitives.PageID, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pages[id]; ok {
		copy(buf, p)
	}
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
	id := d.next
	d.next++
	return id
}

func (d *memDisk) DeallocatePage(id primitives.PageID) {}

func (d *memDisk) WriteLog(buf []byte, offset int64) error        { return nil }
func (d *memDisk) ReadLog(buf []byte, offset int64) (int, error)  { return 0, nil }
func (d *memDisk) Close() error                                   { return nil }

// alwaysFlushed satisfies LogFlusher with every page considered durable,
// since these tests exercise the pool in isolation from the log manager.
type alwaysFlushed struct{}

func (alwaysFlushed) ForceLogFlushAndWait() error { return nil }
func (alwaysFlushed) GetPersistentLSN() int32     { return 1 << 30 }

func TestPool_NewFetchUnpinRoundTrip(t *testing.T) {
	d := newMemDisk(8)
	m := New(2, 8, d, alwaysFlushed{})

	f, err := m.NewPage()
	require.NoError(t, err)
	copy(f.Data(), []byte("abcdefgh"))
	pid := f.PageID()
	require.NoError(t, m.UnpinPage(pid, true))
	require.NoError(t, m.FlushPage(pid))

	f2, err := m.FetchPage(pid)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdefgh"), f2.Data())
	require.NoError(t, m.UnpinPage(pid, false))
}

func TestPool_EvictsUnpinnedWhenFull(t *testing.T) {
	d := newMemDisk(8)
	m := New(1, 8, d, alwaysFlushed{})

	f1, err := m.NewPage()
	require.NoError(t, err)
	p1 := f1.PageID()
	require.NoError(t, m.UnpinPage(p1, false))

	f2, err := m.NewPage() // pool has 1 frame; must evict p1 to make room
	require.NoError(t, err)
	p2 := f2.PageID()
	assert.NotEqual(t, p1, p2)
	require.NoError(t, m.UnpinPage(p2, false))
}

func TestPool_NewPageFailsWhenAllPinnedAndFull(t *testing.T) {
	d := newMemDisk(8)
	m := New(1, 8, d, alwaysFlushed{})

	_, err := m.NewPage() // pins the only frame, never unpinned
	require.NoError(t, err)

	_, err = m.NewPage()
	assert.Error(t, err)
}

func TestPool_DeletePageFailsWhilePinned(t *testing.T) {
	d := newMemDisk(8)
	m := New(2, 8, d, alwaysFlushed{})

	f, err := m.NewPage()
	require.NoError(t, err)
	pid := f.PageID()

	ok, err := m.DeletePage(pid)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.UnpinPage(pid, false))
	ok, err = m.DeletePage(pid)
	require.NoError(t, err)
	assert.True(t, ok)
}
