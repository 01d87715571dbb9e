package wal

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"storemy/pkg/dberrors"
	"storemy/pkg/logging"
	"storemy/pkg/primitives"
	"storemy/pkg/storage/disk"
)

// Manager is the async double-buffer log manager of spec.md §4.5: appenders
// write into logBuffer under a mutex; a background thread periodically (or
// on demand) swaps buffers and writes the swapped-out one to disk, updating
// persistentLSN once the write completes. Grounded on
// original_source/src/logging/log_manager.cpp, with the C++ condition
// variable + shared_future replaced by a buffered wake channel and a
// replaceable "flush done" channel every waiter can select on.
type Manager struct {
	mu          sync.Mutex
	logBuffer   []byte
	flushBuffer []byte
	offset      int

	nextLSN       primitives.LSN
	persistentLSN primitives.LSN

	flushDone chan struct{} // closed when the in-flight flush (if any) completes
	wake      chan struct{} // buffered(1) signal to the flush goroutine

	disk          disk.Manager
	flushInterval time.Duration
	logOffset     int64 // next byte offset to write to in the log file

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New creates a log manager with two buffers of bufferSize bytes each.
func New(disk disk.Manager, bufferSize int, flushInterval time.Duration) *Manager {
	return &Manager{
		logBuffer:     make([]byte, bufferSize),
		flushBuffer:   make([]byte, bufferSize),
		persistentLSN: primitives.InvalidLSN,
		wake:          make(chan struct{}, 1),
		disk:          disk,
		flushInterval: flushInterval,
	}
}

// Start launches the background flush goroutine.
func (m *Manager) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	g, ctx := errgroup.WithContext(ctx)
	m.group = g
	g.Go(func() error {
		m.runFlushLoop(ctx)
		return nil
	})
	logging.WithComponent("wal").Info("log manager flush thread started")
}

// Stop signals the flush goroutine to exit and waits for it to drain.
func (m *Manager) Stop() error {
	if m.cancel == nil {
		return nil
	}
	m.cancel()
	m.notifyFlusher()
	err := m.group.Wait()
	logging.WithComponent("wal").Info("log manager flush thread stopped")
	return err
}

func (m *Manager) notifyFlusher() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// runFlushLoop is the background thread: wakes on LOG_TIMEOUT or on demand,
// swaps buffers if there is anything to flush, and writes the swapped buffer
// to disk outside the lock.
func (m *Manager) runFlushLoop(ctx context.Context) {
	timer := time.NewTimer(m.flushInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.flushOnce()
			return
		case <-timer.C:
			m.flushOnce()
		case <-m.wake:
			m.flushOnce()
		}
		timer.Reset(m.flushInterval)
	}
}

// flushOnce swaps the buffers (if there is anything to flush) and writes the
// swapped-out buffer to disk, publishing completion on flushDone.
func (m *Manager) flushOnce() {
	m.mu.Lock()
	if m.offset == 0 {
		m.mu.Unlock()
		return
	}

	lastLSN := m.nextLSN - 1
	m.logBuffer, m.flushBuffer = m.flushBuffer, m.logBuffer
	flushSize := m.offset
	m.offset = 0

	done := make(chan struct{})
	m.flushDone = done
	flushBuf := m.flushBuffer[:flushSize]
	offset := m.logOffset
	m.logOffset += int64(flushSize)
	m.mu.Unlock()

	if err := m.disk.WriteLog(flushBuf, offset); err != nil {
		logging.WithError(err).Error("log flush failed")
	}

	m.mu.Lock()
	m.persistentLSN = lastLSN
	m.mu.Unlock()
	close(done)
}

// AppendLogRecord serializes record, assigns its LSN, and copies it into the
// log buffer, blocking if the buffer is currently full until a flush frees
// room. It returns the assigned LSN.
func (m *Manager) AppendLogRecord(record *Record) (primitives.LSN, error) {
	m.mu.Lock()

	for {
		want := record.Size
		if want == 0 {
			want = HeaderSize + int32(record.payloadSize())
		}
		if m.offset+int(want) <= len(m.logBuffer) {
			break
		}
		m.notifyFlusher()
		done := m.flushDone
		m.mu.Unlock()
		if done != nil {
			<-done
		}
		m.mu.Lock()
	}

	record.LSN = m.nextLSN
	m.nextLSN++
	encoded := record.Encode()
	if m.offset+len(encoded) > len(m.logBuffer) {
		m.mu.Unlock()
		return 0, dberrors.New(dberrors.Serialization, "log record larger than log buffer")
	}
	copy(m.logBuffer[m.offset:], encoded)
	m.offset += len(encoded)
	lsn := record.LSN
	m.mu.Unlock()

	return lsn, nil
}

// ForceLogFlushAndWait signals the flush thread and blocks until every
// record appended before the call is durable, waiting through as many
// flushes as that takes. The buffer pool calls this before writing back a
// dirty page whose LSN is not yet persistent.
func (m *Manager) ForceLogFlushAndWait() error {
	m.mu.Lock()
	target := m.nextLSN - 1
	for m.persistentLSN < target {
		m.notifyFlusher()
		done := m.flushDone
		m.mu.Unlock()
		if done != nil {
			<-done
		}
		m.mu.Lock()
	}
	m.mu.Unlock()
	return nil
}

// WaitForLogFlush blocks on whatever flush is already in flight, without
// actively requesting a new one; it returns at once when no flush is in
// flight. The transaction manager's Commit and Abort call it in a loop until
// their record's LSN is persistent, leaving the flush itself to the timer.
func (m *Manager) WaitForLogFlush() error {
	m.mu.Lock()
	done := m.flushDone
	m.mu.Unlock()

	if done != nil {
		<-done
	}
	return nil
}

// GetPersistentLSN returns the highest LSN known to be durable on disk.
func (m *Manager) GetPersistentLSN() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int32(m.persistentLSN)
}
