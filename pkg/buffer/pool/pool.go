// Package pool implements the buffer pool manager: the component that wraps
// the replacer, the extendible-hash directory, and disk I/O behind a single
// Pin/Unpin/NewPage/DeletePage/Flush interface. A dirty victim is written
// back on eviction once the log covering it is durable, whether or not its
// transaction has committed, and the pool writes pages back only on eviction
// or an explicit flush, never at commit. Grounded on a pkg/memory/store.go PageStore of the same shape,
// adapted from its table-oriented cache to a flat single-file frame array
// addressed by primitives.PageID.
package pool

import (
	"sync"

	"storemy/pkg/buffer/directory"
	"storemy/pkg/buffer/replacer"
	"storemy/pkg/dberrors"
	"storemy/pkg/logging"
	"storemy/pkg/primitives"
	"storemy/pkg/storage/disk"
)

// LogFlusher is the seam the buffer pool needs into the log manager: before
// writing back a dirty page whose LSN exceeds the persistent LSN, WAL (§4.5)
// requires the log to be forced to disk first.
type LogFlusher interface {
	ForceLogFlushAndWait() error
	GetPersistentLSN() int32
}

// Frame owns one fixed PAGE_SIZE buffer plus the bookkeeping the pool needs
// to decide eviction, dirtiness, and WAL ordering.
type Frame struct {
	mu       sync.RWMutex
	id       primitives.FrameID
	pageID   primitives.PageID
	data     []byte
	pinCount int32
	dirty    bool
	lsn      int32 // the LSN of the last log record this page's contents reflect
}

func (f *Frame) ID() primitives.FrameID   { return f.id }
func (f *Frame) PageID() primitives.PageID { return f.pageID }
func (f *Frame) Data() []byte             { return f.data }
func (f *Frame) IsDirty() bool            { return f.dirty }
func (f *Frame) LSN() int32               { return f.lsn }

// SetLSN records that this frame's contents now reflect the given page LSN.
// flushFrameLocked compares this LSN with the log's persistent LSN before
// writing the frame back. No code in this module calls it; NewPage sets the
// LSN to -1.
func (f *Frame) SetLSN(lsn int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lsn = lsn
}

func (f *Frame) MarkDirty() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirty = true
}

// Manager is the buffer pool manager.
type Manager struct {
	mu sync.Mutex

	poolSize int
	pageSize int

	frames    []*Frame
	freeList  []primitives.FrameID
	pageTable *directory.Directory // PageID -> FrameID

	replacer *replacer.LRU
	disk     disk.Manager
	log      LogFlusher
}

// New creates a buffer pool of poolSize frames backed by disk, optionally
// wired to a log manager for the force-flush-before-write-back rule. log may
// be nil in contexts (such as recovery) that run with logging disabled.
func New(poolSize, pageSize int, disk disk.Manager, log LogFlusher) *Manager {
	frames := make([]*Frame, poolSize)
	freeList := make([]primitives.FrameID, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = &Frame{
			id:     primitives.FrameID(i),
			pageID: primitives.InvalidPageID,
			data:   make([]byte, pageSize),
		}
		freeList[i] = primitives.FrameID(i)
	}

	return &Manager{
		poolSize:  poolSize,
		pageSize:  pageSize,
		frames:    frames,
		freeList:  freeList,
		pageTable: directory.New(4),
		replacer:  replacer.New(),
		disk:      disk,
		log:       log,
	}
}

// FetchPage pins and returns the frame holding pageID, reading it from disk
// on a cache miss. Every successful FetchPage must be balanced by Unpin.
func (m *Manager) FetchPage(pageID primitives.PageID) (*Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fid, ok := m.pageTable.Find(pageID); ok {
		f := m.frames[fid]
		f.mu.Lock()
		f.pinCount++
		f.mu.Unlock()
		if f.pinCount == 1 {
			m.replacer.Erase(fid)
		}
		return f, nil
	}

	fid, err := m.allocateFrame()
	if err != nil {
		return nil, err
	}

	f := m.frames[fid]
	if err := m.disk.ReadPage(pageID, f.data); err != nil {
		m.freeList = append(m.freeList, fid)
		return nil, dberrors.Wrap(err, "FetchPage", "pool.Manager")
	}

	f.mu.Lock()
	f.pageID = pageID
	f.pinCount = 1
	f.dirty = false
	f.mu.Unlock()
	m.pageTable.Insert(pageID, fid)

	logging.WithPage(int32(pageID)).Debug("page fetched from disk")
	return f, nil
}

// NewPage allocates a fresh page id from disk, pins it in a frame, and
// returns the frame zeroed out for the caller to initialize.
func (m *Manager) NewPage() (*Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, err := m.allocateFrame()
	if err != nil {
		return nil, err
	}

	pageID := m.disk.AllocatePage()
	f := m.frames[fid]

	f.mu.Lock()
	f.pageID = pageID
	f.pinCount = 1
	f.dirty = true
	f.lsn = -1
	for i := range f.data {
		f.data[i] = 0
	}
	f.mu.Unlock()

	m.pageTable.Insert(pageID, fid)
	logging.WithPage(int32(pageID)).Debug("page allocated")
	return f, nil
}

// allocateFrame returns a free frame id, evicting an unpinned victim via the
// replacer if the free list is exhausted. Caller must hold m.mu.
func (m *Manager) allocateFrame() (primitives.FrameID, error) {
	if n := len(m.freeList); n > 0 {
		fid := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		return fid, nil
	}

	fid, ok := m.replacer.Victim()
	if !ok {
		return 0, dberrors.New(dberrors.OutOfMemory, "buffer pool exhausted: no unpinned frame to evict")
	}

	victim := m.frames[fid]
	if victim.dirty {
		if err := m.flushFrameLocked(victim); err != nil {
			return 0, err
		}
	}
	m.pageTable.Remove(victim.pageID)
	return fid, nil
}

// UnpinPage decrements the pin count of pageID, optionally marking it dirty,
// and makes it evictable once the pin count reaches zero.
func (m *Manager) UnpinPage(pageID primitives.PageID, isDirty bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.pageTable.Find(pageID)
	if !ok {
		return dberrors.New(dberrors.IO, "unpin of page not in buffer pool")
	}

	f := m.frames[fid]
	f.mu.Lock()
	if isDirty {
		f.dirty = true
	}
	if f.pinCount > 0 {
		f.pinCount--
	}
	becameEvictable := f.pinCount == 0
	f.mu.Unlock()

	if becameEvictable {
		m.replacer.Insert(fid)
	}
	return nil
}

// DeletePage removes pageID from the pool and from disk allocation. It
// fails if the page is currently pinned.
func (m *Manager) DeletePage(pageID primitives.PageID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.pageTable.Find(pageID)
	if !ok {
		m.disk.DeallocatePage(pageID)
		return true, nil
	}

	f := m.frames[fid]
	f.mu.RLock()
	pinned := f.pinCount > 0
	f.mu.RUnlock()
	if pinned {
		return false, nil
	}

	m.pageTable.Remove(pageID)
	m.replacer.Erase(fid)
	m.disk.DeallocatePage(pageID)

	f.mu.Lock()
	f.pageID = primitives.InvalidPageID
	f.dirty = false
	f.mu.Unlock()
	m.freeList = append(m.freeList, fid)
	return true, nil
}

// FlushPage forces pageID's frame to disk if dirty, observing WAL ordering:
// the covering log record must be durable first.
func (m *Manager) FlushPage(pageID primitives.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.pageTable.Find(pageID)
	if !ok {
		return nil
	}
	return m.flushFrameLocked(m.frames[fid])
}

// FlushAllPages flushes every dirty frame currently in the pool, observing
// the same WAL ordering as FlushPage. Nothing in the commit path calls it.
func (m *Manager) FlushAllPages() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range m.frames {
		f.mu.RLock()
		dirty := f.dirty && f.pageID != primitives.InvalidPageID
		f.mu.RUnlock()
		if !dirty {
			continue
		}
		if err := m.flushFrameLocked(f); err != nil {
			return err
		}
	}
	return nil
}

// flushFrameLocked writes f to disk. Caller must hold m.mu.
func (m *Manager) flushFrameLocked(f *Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.dirty {
		return nil
	}

	if m.log != nil && f.lsn > m.log.GetPersistentLSN() {
		if err := m.log.ForceLogFlushAndWait(); err != nil {
			return dberrors.Wrap(err, "flushFrameLocked", "pool.Manager")
		}
	}

	if err := m.disk.WritePage(f.pageID, f.data); err != nil {
		return dberrors.Wrap(err, "flushFrameLocked", "pool.Manager")
	}
	f.dirty = false
	logging.WithPage(int32(f.pageID)).Debug("page flushed")
	return nil
}

// PoolSize returns the number of frames the pool manages.
func (m *Manager) PoolSize() int { return m.poolSize }

// FrameSnapshot is a point-in-time copy of one frame's bookkeeping fields,
// for tools (cmd/inspector) that need to look at the pool without holding
// its lock across a render.
type FrameSnapshot struct {
	FrameID  primitives.FrameID
	PageID   primitives.PageID
	PinCount int32
	Dirty    bool
	LSN      int32
}

// Snapshot returns a copy of every frame's current state, in frame-id order.
func (m *Manager) Snapshot() []FrameSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]FrameSnapshot, len(m.frames))
	for i, f := range m.frames {
		f.mu.RLock()
		out[i] = FrameSnapshot{
			FrameID:  f.id,
			PageID:   f.pageID,
			PinCount: f.pinCount,
			Dirty:    f.dirty,
			LSN:      f.lsn,
		}
		f.mu.RUnlock()
	}
	return out
}
