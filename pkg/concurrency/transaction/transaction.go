// Package transaction implements transaction lifecycle management —
// Begin/Commit/Abort with write-set rollback, lock release, and log
// records — grounded on
// original_source/src/concurrency/transaction_manager.cpp.
package transaction

import (
	"sync"

	"storemy/pkg/concurrency/lock"
	"storemy/pkg/logging"
	"storemy/pkg/primitives"
	"storemy/pkg/wal"
)

// WType identifies the kind of write a WriteRecord rolls back.
type WType int

const (
	Insert WType = iota
	Update
	Delete
)

// TableOp is the minimal seam into whatever holds tuples: recovery and
// transaction rollback only ever need to undo a delete, redo a delete, or
// restore an old tuple image, per spec.md §9's design note.
type TableOp interface {
	ApplyDelete(rid primitives.RID) error
	RollbackDelete(rid primitives.RID) error
	UpdateTuple(rid primitives.RID, tuple []byte) error
}

// WriteRecord is one entry of a transaction's write-set: enough to invert
// the operation it describes without consulting anything else.
type WriteRecord struct {
	Type  WType
	RID   primitives.RID
	Tuple []byte // the before-image, needed only to invert an UPDATE
	Table TableOp
}

// Transaction tracks one transaction's lock sets, write-set, and log chain
// position. It implements lock.Txn so the lock manager can drive its state
// transitions directly.
type Transaction struct {
	id primitives.TxnID

	mu         sync.Mutex
	state      lock.State
	sharedSet  map[primitives.RID]struct{}
	exclSet    map[primitives.RID]struct{}
	writeSet   []WriteRecord
	prevLSN    primitives.LSN
}

func newTransaction(id primitives.TxnID) *Transaction {
	return &Transaction{
		id:        id,
		state:     lock.Growing,
		sharedSet: make(map[primitives.RID]struct{}),
		exclSet:   make(map[primitives.RID]struct{}),
		prevLSN:   primitives.InvalidLSN,
	}
}

func (t *Transaction) ID() primitives.TxnID { return t.id }

func (t *Transaction) GetState() lock.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) SetState(s lock.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

func (t *Transaction) AddSharedLock(rid primitives.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sharedSet[rid] = struct{}{}
}

func (t *Transaction) AddExclusiveLock(rid primitives.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.exclSet[rid] = struct{}{}
}

func (t *Transaction) RemoveSharedLock(rid primitives.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sharedSet, rid)
}

func (t *Transaction) RemoveExclusiveLock(rid primitives.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.exclSet, rid)
}

// PushWrite appends a write-set entry. Callers (the index/table layer) call
// this immediately after performing a physical mutation under this
// transaction, before releasing the page latch.
func (t *Transaction) PushWrite(rec WriteRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeSet = append(t.writeSet, rec)
}

func (t *Transaction) popWrite() (WriteRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.writeSet) == 0 {
		return WriteRecord{}, false
	}
	last := t.writeSet[len(t.writeSet)-1]
	t.writeSet = t.writeSet[:len(t.writeSet)-1]
	return last, true
}

func (t *Transaction) allLockedRIDs() []primitives.RID {
	t.mu.Lock()
	defer t.mu.Unlock()
	rids := make([]primitives.RID, 0, len(t.sharedSet)+len(t.exclSet))
	for rid := range t.sharedSet {
		rids = append(rids, rid)
	}
	for rid := range t.exclSet {
		rids = append(rids, rid)
	}
	return rids
}

func (t *Transaction) PrevLSN() primitives.LSN {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prevLSN
}

func (t *Transaction) setPrevLSN(lsn primitives.LSN) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prevLSN = lsn
}

// LogManager is the seam into pkg/wal the transaction manager needs for
// BEGIN/COMMIT/ABORT records and commit-durability waiting.
type LogManager interface {
	AppendLogRecord(record *wal.Record) (primitives.LSN, error)
	WaitForLogFlush() error
	GetPersistentLSN() int32
}

// Manager is the transaction manager: allocates transaction ids and drives
// Begin/Commit/Abort.
type Manager struct {
	mu     sync.Mutex
	nextID primitives.TxnID

	lockMgr        *lock.Manager
	logMgr         LogManager
	loggingEnabled bool
}

// New creates a transaction manager. logMgr may be nil when loggingEnabled
// is false (e.g. while recovery itself is running, per spec.md §4.6).
func New(lockMgr *lock.Manager, logMgr LogManager, loggingEnabled bool) *Manager {
	return &Manager{lockMgr: lockMgr, logMgr: logMgr, loggingEnabled: loggingEnabled}
}

// Begin allocates a fresh transaction and, if logging is enabled, appends
// its BEGIN record.
func (m *Manager) Begin() (*Transaction, error) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.mu.Unlock()

	txn := newTransaction(id)
	if m.loggingEnabled {
		if _, err := m.appendLog(txn, wal.Begin); err != nil {
			return nil, err
		}
	}
	logging.WithTxn(int32(id)).Debug("transaction begun")
	return txn, nil
}

func (m *Manager) appendLog(txn *Transaction, t wal.RecordType) (primitives.LSN, error) {
	rec := &wal.Record{Type: t, TxnID: txn.ID(), PrevLSN: txn.PrevLSN()}
	lsn, err := m.logMgr.AppendLogRecord(rec)
	if err != nil {
		return 0, err
	}
	txn.setPrevLSN(lsn)
	return lsn, nil
}

// Commit finalizes txn: applies deferred physical deletes from the
// write-set, appends COMMIT and waits for it to be durable, then releases
// every lock txn holds.
func (m *Manager) Commit(txn *Transaction) error {
	txn.SetState(lock.Committed)

	for {
		rec, ok := txn.popWrite()
		if !ok {
			break
		}
		if rec.Type == Delete {
			if err := rec.Table.ApplyDelete(rec.RID); err != nil {
				return err
			}
		}
	}

	if m.loggingEnabled {
		lsn, err := m.appendLog(txn, wal.Commit)
		if err != nil {
			return err
		}
		for int32(lsn) > m.logMgr.GetPersistentLSN() {
			if err := m.logMgr.WaitForLogFlush(); err != nil {
				return err
			}
		}
	}

	m.releaseLocks(txn)
	logging.WithTxn(int32(txn.ID())).Debug("transaction committed")
	return nil
}

// Abort rolls txn back: walks the write-set LIFO, inverting each record,
// appends ABORT and waits for it to be durable, then releases every lock.
func (m *Manager) Abort(txn *Transaction) error {
	txn.SetState(lock.Aborted)

	for {
		rec, ok := txn.popWrite()
		if !ok {
			break
		}
		var err error
		switch rec.Type {
		case Delete:
			err = rec.Table.RollbackDelete(rec.RID)
		case Insert:
			err = rec.Table.ApplyDelete(rec.RID)
		case Update:
			err = rec.Table.UpdateTuple(rec.RID, rec.Tuple)
		}
		if err != nil {
			return err
		}
	}

	if m.loggingEnabled {
		lsn, err := m.appendLog(txn, wal.Abort)
		if err != nil {
			return err
		}
		for int32(lsn) > m.logMgr.GetPersistentLSN() {
			if err := m.logMgr.WaitForLogFlush(); err != nil {
				return err
			}
		}
	}

	m.releaseLocks(txn)
	logging.WithTxn(int32(txn.ID())).Debug("transaction aborted")
	return nil
}

func (m *Manager) releaseLocks(txn *Transaction) {
	for _, rid := range txn.allLockedRIDs() {
		m.lockMgr.Unlock(txn, rid)
	}
}
