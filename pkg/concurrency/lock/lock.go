// Package lock implements the tuple-granularity lock manager with wait-die
// deadlock avoidance described in spec.md §4.3, grounded on
// original_source/src/concurrency/lock_manager.cpp.
package lock

import (
	"sort"
	"sync"

	"storemy/pkg/logging"
	"storemy/pkg/primitives"
)

// State is a transaction's position in the two-phase-locking state machine.
type State int32

const (
	Growing State = iota
	Shrinking
	Committed
	Aborted
)

// Txn is the seam the lock manager needs into a transaction: its identity,
// its state, and the two lock sets it must keep current. The concrete
// Transaction type lives in pkg/concurrency/transaction, which imports this
// package rather than the other way around.
type Txn interface {
	ID() primitives.TxnID
	GetState() State
	SetState(State)
	AddSharedLock(rid primitives.RID)
	AddExclusiveLock(rid primitives.RID)
	RemoveSharedLock(rid primitives.RID)
	RemoveExclusiveLock(rid primitives.RID)
}

// Mode is the granted lock type for a RID.
type Mode int

const (
	Shared Mode = iota
	Exclusive
)

type grant struct {
	mode    Mode
	holders map[primitives.TxnID]struct{}
}

func (g *grant) minHolder() primitives.TxnID {
	min := primitives.TxnID(1<<31 - 1)
	for id := range g.holders {
		if id < min {
			min = id
		}
	}
	return min
}

// Manager is the lock table: for each locked RID, a grant of holders, plus a
// per-RID condition variable waiters block on. One mutex guards both the
// grant table and the waiter map, matching spec.md §5's shared-resource note
// that an unlocker must still be able to signal after the map entry on its
// own is removed.
type Manager struct {
	mu      sync.Mutex
	table   map[primitives.RID]*grant
	waiters map[primitives.RID]*sync.Cond

	// Strict2PL gates Unlock to COMMITTED/ABORTED transactions only.
	Strict2PL bool
}

// New creates a lock manager. strict2PL selects strict two-phase locking
// (Unlock permitted only after COMMITTED/ABORTED) versus plain two-phase
// locking, where Unlock is permitted at any time and a transaction's first
// Unlock moves it from GROWING to SHRINKING.
func New(strict2PL bool) *Manager {
	return &Manager{
		table:     make(map[primitives.RID]*grant),
		waiters:   make(map[primitives.RID]*sync.Cond),
		Strict2PL: strict2PL,
	}
}

func (m *Manager) condFor(rid primitives.RID) *sync.Cond {
	c, ok := m.waiters[rid]
	if !ok {
		c = sync.NewCond(&m.mu)
		m.waiters[rid] = c
	}
	return c
}

func (m *Manager) validForLock(txn Txn) bool {
	if txn.GetState() != Growing {
		txn.SetState(Aborted)
		return false
	}
	return true
}

// LockShared acquires a SHARED lock on rid for txn, following wait-die:
// when rid is held EXCLUSIVE, txn waits only if it is older than every
// current holder; otherwise it dies (is aborted immediately).
func (m *Manager) LockShared(txn Txn, rid primitives.RID) bool {
	if !m.validForLock(txn) {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := txn.ID()

	if g, ok := m.table[rid]; ok && g.mode == Exclusive {
		if id >= g.minHolder() {
			txn.SetState(Aborted)
			logging.WithTxn(int32(id)).Debug("lock shared: died to older-holding exclusive", "rid", rid)
			return false
		}
		cond := m.condFor(rid)
		for {
			g, ok = m.table[rid]
			if !ok || g.mode == Shared {
				break
			}
			cond.Wait()
		}
	}

	if g, ok := m.table[rid]; ok {
		g.holders[id] = struct{}{}
	} else {
		m.table[rid] = &grant{mode: Shared, holders: map[primitives.TxnID]struct{}{id: {}}}
	}
	txn.AddSharedLock(rid)
	return true
}

// LockExclusive acquires an EXCLUSIVE lock on rid for txn.
func (m *Manager) LockExclusive(txn Txn, rid primitives.RID) bool {
	if !m.validForLock(txn) {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := txn.ID()

	if g, ok := m.table[rid]; ok {
		if id >= g.minHolder() {
			txn.SetState(Aborted)
			logging.WithTxn(int32(id)).Debug("lock exclusive: died to older-holding lock", "rid", rid)
			return false
		}
		cond := m.condFor(rid)
		for {
			if _, ok := m.table[rid]; !ok {
				break
			}
			cond.Wait()
		}
	}

	m.table[rid] = &grant{mode: Exclusive, holders: map[primitives.TxnID]struct{}{id: {}}}
	txn.AddExclusiveLock(rid)
	return true
}

// LockUpgrade promotes txn's SHARED lock on rid to EXCLUSIVE.
func (m *Manager) LockUpgrade(txn Txn, rid primitives.RID) bool {
	if !m.validForLock(txn) {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := txn.ID()
	g, ok := m.table[rid]
	if !ok {
		txn.SetState(Aborted)
		return false
	}
	if _, holds := g.holders[id]; g.mode != Shared || !holds {
		txn.SetState(Aborted)
		return false
	}

	txn.RemoveSharedLock(rid)
	delete(g.holders, id)

	if len(g.holders) == 0 {
		m.table[rid] = &grant{mode: Exclusive, holders: map[primitives.TxnID]struct{}{id: {}}}
		txn.AddExclusiveLock(rid)
		return true
	}

	if id >= g.minHolder() {
		txn.SetState(Aborted)
		return false
	}

	cond := m.condFor(rid)
	for {
		if _, ok := m.table[rid]; !ok {
			break
		}
		cond.Wait()
	}
	m.table[rid] = &grant{mode: Exclusive, holders: map[primitives.TxnID]struct{}{id: {}}}
	txn.AddExclusiveLock(rid)
	return true
}

// Unlock releases txn's lock on rid. Under strict 2PL this is only permitted
// once txn is COMMITTED or ABORTED.
func (m *Manager) Unlock(txn Txn, rid primitives.RID) bool {
	if m.Strict2PL && !(txn.GetState() == Committed || txn.GetState() == Aborted) {
		txn.SetState(Aborted)
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := txn.ID()
	g, ok := m.table[rid]
	if !ok {
		txn.SetState(Aborted)
		return false
	}
	if _, holds := g.holders[id]; !holds {
		txn.SetState(Aborted)
		return false
	}
	delete(g.holders, id)

	if !m.Strict2PL && txn.GetState() == Growing {
		txn.SetState(Shrinking)
	}

	if g.mode == Shared {
		txn.RemoveSharedLock(rid)
	} else {
		txn.RemoveExclusiveLock(rid)
	}

	if len(g.holders) == 0 {
		delete(m.table, rid)
		if cond, ok := m.waiters[rid]; ok {
			cond.Broadcast()
			delete(m.waiters, rid)
		}
	}
	return true
}

// IsLocked reports whether rid currently has any granted holder. The buffer
// pool does not consult it when choosing an eviction victim.
func (m *Manager) IsLocked(rid primitives.RID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.table[rid]
	return ok
}

// GrantSnapshot is a point-in-time copy of one RID's lock grant, for tools
// (cmd/inspector) that need to look at the table without holding its lock
// across a render.
type GrantSnapshot struct {
	RID     primitives.RID
	Mode    Mode
	Holders []primitives.TxnID
	Waiters bool
}

// Snapshot returns a copy of every currently granted lock, ordered by RID's
// page then slot for stable rendering.
func (m *Manager) Snapshot() []GrantSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]GrantSnapshot, 0, len(m.table))
	for rid, g := range m.table {
		holders := make([]primitives.TxnID, 0, len(g.holders))
		for id := range g.holders {
			holders = append(holders, id)
		}
		sort.Slice(holders, func(i, j int) bool { return holders[i] < holders[j] })

		_, waiting := m.waiters[rid]
		out = append(out, GrantSnapshot{RID: rid, Mode: g.mode, Holders: holders, Waiters: waiting})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RID.PageID != out[j].RID.PageID {
			return out[i].RID.PageID < out[j].RID.PageID
		}
		return out[i].RID.Slot < out[j].RID.Slot
	})
	return out
}

// String renders a lock mode as SHARED or EXCLUSIVE.
func (m Mode) String() string {
	if m == Exclusive {
		return "EXCLUSIVE"
	}
	return "SHARED"
}
