// Package recovery implements ARIES-style redo/undo recovery over the
// write-ahead log, grounded on
// original_source/src/logging/log_recovery.cpp. It runs with logging
// disabled and assumes no concurrent transactions (spec.md §4.6).
package recovery

import (
	"storemy/pkg/buffer/pool"
	"storemy/pkg/dberrors"
	"storemy/pkg/logging"
	"storemy/pkg/primitives"
	"storemy/pkg/storage/disk"
	"storemy/pkg/wal"
)

// Manager replays a write-ahead log into the buffer pool's pages.
type Manager struct {
	disk       disk.Manager
	pool       *pool.Manager
	bufferSize int

	activeTxn map[primitives.TxnID]primitives.LSN
	lsnOffset map[primitives.LSN]int64
}

// New creates a recovery manager that reads the log through disk and
// applies it to pages fetched through pool.
func New(disk disk.Manager, pool *pool.Manager, bufferSize int) *Manager {
	return &Manager{disk: disk, pool: pool, bufferSize: bufferSize}
}

// Redo performs the forward pass: it replays every physical log record whose
// LSN exceeds the affected page's current LSN, and builds the active-txn and
// lsn-offset tables Undo needs. It stops cleanly at the first record it
// cannot fully deserialize (a trailing, crash-truncated record).
func (m *Manager) Redo() error {
	m.activeTxn = make(map[primitives.TxnID]primitives.LSN)
	m.lsnOffset = make(map[primitives.LSN]int64)

	buf := make([]byte, m.bufferSize)
	readOffset := int64(0)

	for {
		n, err := m.disk.ReadLog(buf, readOffset)
		if err != nil {
			return dberrors.Wrap(err, "Redo", "recovery.Manager")
		}
		if n == 0 {
			break
		}

		consumed := 0
		for {
			rec, err := wal.Decode(buf[consumed:n])
			if err != nil {
				break // incomplete record at the tail; recovery tolerates this
			}

			m.lsnOffset[rec.LSN] = readOffset
			if rec.Type == wal.Commit || rec.Type == wal.Abort {
				delete(m.activeTxn, rec.TxnID)
			} else {
				m.activeTxn[rec.TxnID] = rec.LSN
			}

			if err := m.redoOne(rec); err != nil {
				return err
			}

			consumed += int(rec.Size)
			readOffset += int64(rec.Size)
		}

		if consumed == 0 {
			break
		}
	}

	logging.WithComponent("recovery").Info("redo pass complete", "active_txns", len(m.activeTxn))
	return nil
}

func (m *Manager) redoOne(rec *wal.Record) error {
	switch rec.Type {
	case wal.Insert:
		return m.withPage(rec.RID.PageID, func(p *RecordPage) bool {
			if rec.LSN <= primitives.LSN(p.LSN()) {
				return false
			}
			_ = p.InsertTuple(rec.RID.Slot, rec.Tuple)
			p.SetLSN(int32(rec.LSN))
			return true
		})
	case wal.Update:
		return m.withPage(rec.UpdateRID.PageID, func(p *RecordPage) bool {
			if rec.LSN <= primitives.LSN(p.LSN()) {
				return false
			}
			_ = p.UpdateTuple(rec.UpdateRID.Slot, rec.Tuple2)
			p.SetLSN(int32(rec.LSN))
			return true
		})
	case wal.ApplyDelete:
		return m.withPage(rec.RID.PageID, func(p *RecordPage) bool {
			if rec.LSN <= primitives.LSN(p.LSN()) {
				return false
			}
			p.ApplyDelete(rec.RID.Slot)
			p.SetLSN(int32(rec.LSN))
			return true
		})
	case wal.MarkDelete:
		return m.withPage(rec.RID.PageID, func(p *RecordPage) bool {
			if rec.LSN <= primitives.LSN(p.LSN()) {
				return false
			}
			p.MarkDelete(rec.RID.Slot)
			p.SetLSN(int32(rec.LSN))
			return true
		})
	case wal.RollbackDelete:
		return m.withPage(rec.RID.PageID, func(p *RecordPage) bool {
			if rec.LSN <= primitives.LSN(p.LSN()) {
				return false
			}
			p.RollbackDelete(rec.RID.Slot)
			p.SetLSN(int32(rec.LSN))
			return true
		})
	case wal.NewPage:
		return m.redoNewPage(rec)
	}
	return nil
}

func (m *Manager) withPage(id primitives.PageID, fn func(*RecordPage) bool) error {
	frame, err := m.pool.FetchPage(id)
	if err != nil {
		return dberrors.Wrap(err, "withPage", "recovery.Manager")
	}
	dirty := fn(WrapRecordPage(frame.Data()))
	return m.pool.UnpinPage(id, dirty)
}

func (m *Manager) redoNewPage(rec *wal.Record) error {
	frame, err := m.pool.NewPage()
	if err != nil {
		return dberrors.Wrap(err, "redoNewPage", "recovery.Manager")
	}
	InitRecordPage(frame.Data())
	newPageID := frame.PageID()
	if err := m.pool.UnpinPage(newPageID, true); err != nil {
		return err
	}

	if rec.PrevPageID == primitives.InvalidPageID {
		return nil
	}
	return m.withPage(rec.PrevPageID, func(p *RecordPage) bool {
		if p.NextPageID() != primitives.InvalidPageID {
			return false
		}
		p.SetNextPageID(newPageID)
		return true
	})
}

// ActiveTxnCount reports how many transactions Redo left without a COMMIT or
// ABORT record, for tests and diagnostics; it should be zero after Undo.
func (m *Manager) ActiveTxnCount() int { return len(m.activeTxn) }

// Undo performs the backward pass: for every transaction left in
// activeTxn after Redo (i.e. never committed or aborted), it walks the
// prev_lsn chain back to BEGIN, inverting each record.
func (m *Manager) Undo() error {
	buf := make([]byte, m.bufferSize)

	for _, lastLSN := range m.activeTxn {
		nextOffset, ok := m.lsnOffset[lastLSN]
		if !ok {
			continue
		}

		for {
			n, err := m.disk.ReadLog(buf, nextOffset)
			if err != nil {
				return dberrors.Wrap(err, "Undo", "recovery.Manager")
			}
			rec, err := wal.Decode(buf[:n])
			if err != nil {
				return dberrors.New(dberrors.Serialization, "undo: unreadable log record")
			}

			if rec.Type == wal.Begin {
				break
			}

			if err := m.undoOne(rec); err != nil {
				return err
			}

			prevOffset, ok := m.lsnOffset[rec.PrevLSN]
			if !ok {
				break
			}
			nextOffset = prevOffset
		}
	}

	m.activeTxn = make(map[primitives.TxnID]primitives.LSN)
	m.lsnOffset = make(map[primitives.LSN]int64)
	logging.WithComponent("recovery").Info("undo pass complete")
	return nil
}

func (m *Manager) undoOne(rec *wal.Record) error {
	switch rec.Type {
	case wal.Insert:
		return m.withPage(rec.RID.PageID, func(p *RecordPage) bool {
			p.ApplyDelete(rec.RID.Slot)
			return true
		})
	case wal.Update:
		return m.withPage(rec.UpdateRID.PageID, func(p *RecordPage) bool {
			_ = p.UpdateTuple(rec.UpdateRID.Slot, rec.Tuple) // restore old image
			return true
		})
	case wal.ApplyDelete:
		return m.withPage(rec.RID.PageID, func(p *RecordPage) bool {
			_ = p.InsertTuple(rec.RID.Slot, rec.Tuple)
			return true
		})
	case wal.MarkDelete:
		return m.withPage(rec.RID.PageID, func(p *RecordPage) bool {
			p.RollbackDelete(rec.RID.Slot)
			return true
		})
	case wal.RollbackDelete:
		return m.withPage(rec.RID.PageID, func(p *RecordPage) bool {
			p.MarkDelete(rec.RID.Slot)
			return true
		})
	default:
		return dberrors.New(dberrors.Serialization, "undo: unexpected log record type")
	}
}
