package wal

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storemy/pkg/primitives"
)

// fakeDisk records every WriteLog call for assertions.
type fakeDisk struct {
	mu      sync.Mutex
	written [][]byte
}

func (f *fakeDisk) ReadPage(id primitives.PageID, buf []byte) error  { return nil }
func (f *fakeDisk) WritePage(id primitives.PageID, buf []byte) error { return nil }
func (f *fakeDisk) AllocatePage() primitives.PageID                  { return 0 }
func (f *fakeDisk) DeallocatePage(id primitives.PageID)              {}
func (f *fakeDisk) Close() error                                     { return nil }

func (f *fakeDisk) WriteLog(buf []byte, offset int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(buf))
	copy(cp, buf)
	f.written = append(f.written, cp)
	return nil
}

func (f *fakeDisk) ReadLog(buf []byte, offset int64) (int, error) { return 0, nil }

func TestManager_AppendAssignsMonotonicLSNs(t *testing.T) {
	d := &fakeDisk{}
	m := New(d, 4096, 50*time.Millisecond)
	m.Start()
	defer m.Stop()

	lsn1, err := m.AppendLogRecord(&Record{Type: Begin, TxnID: 1})
	require.NoError(t, err)
	lsn2, err := m.AppendLogRecord(&Record{Type: Commit, TxnID: 1, PrevLSN: lsn1})
	require.NoError(t, err)

	assert.Equal(t, primitives.LSN(0), lsn1)
	assert.Equal(t, primitives.LSN(1), lsn2)
}

func TestManager_ForceLogFlushAndWaitPersists(t *testing.T) {
	d := &fakeDisk{}
	m := New(d, 4096, time.Second) // long interval: only the forced flush should fire
	m.Start()
	defer m.Stop()

	lsn, err := m.AppendLogRecord(&Record{Type: Begin, TxnID: 1})
	require.NoError(t, err)

	require.NoError(t, m.ForceLogFlushAndWait())
	assert.GreaterOrEqual(t, m.GetPersistentLSN(), int32(lsn))

	d.mu.Lock()
	assert.Len(t, d.written, 1)
	d.mu.Unlock()
}
