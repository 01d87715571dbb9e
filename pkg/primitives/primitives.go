// Package primitives defines the identifier types shared across the buffer
// pool, lock manager, log manager, recovery, and B+ tree packages.
package primitives

import "fmt"

// PageID identifies a page within the single file the buffer pool manages.
// It is a flat 32-bit signed integer rather than a (table, page-number) pair
// because this engine backs one B+ tree file through one buffer pool.
type PageID int32

// InvalidPageID marks the absence of a page (no parent, no next/prev leaf).
const InvalidPageID PageID = -1

// HeaderPageID is the fixed page holding the index-name -> root-page-id table.
const HeaderPageID PageID = 0

func (p PageID) String() string {
	if p == InvalidPageID {
		return "PageID(invalid)"
	}
	return fmt.Sprintf("PageID(%d)", int32(p))
}

// FrameID is the index of a frame slot in the buffer pool's frame array.
type FrameID int32

// TxnID is a monotonically increasing transaction identifier. A lower id
// means an older transaction; this ordering is load-bearing for wait-die.
type TxnID int32

// InvalidTxnID marks the absence of a transaction.
const InvalidTxnID TxnID = -1

func (t TxnID) String() string {
	return fmt.Sprintf("Txn(%d)", int32(t))
}

// LSN is a monotonically increasing log sequence number.
type LSN int32

// InvalidLSN marks a page or transaction that has never been logged.
const InvalidLSN LSN = -1

func (l LSN) String() string {
	return fmt.Sprintf("LSN(%d)", int32(l))
}

// SlotID is a slot offset within a page.
type SlotID int32

// RID (record id) is the physical address of a tuple: the page it lives on
// and its slot index within that page.
type RID struct {
	PageID PageID
	Slot   SlotID
}

func (r RID) String() string {
	return fmt.Sprintf("RID(%d,%d)", int32(r.PageID), int32(r.Slot))
}

func (r RID) Equals(other RID) bool {
	return r.PageID == other.PageID && r.Slot == other.Slot
}

// Serialize writes the RID as two little-endian int32 values, matching the
// 8-byte wire representation assumed by the log record payloads (spec §6).
func (r RID) Serialize() [8]byte {
	var buf [8]byte
	putInt32(buf[0:4], int32(r.PageID))
	putInt32(buf[4:8], int32(r.Slot))
	return buf
}

// DeserializeRID reads a RID back from its 8-byte wire representation.
func DeserializeRID(buf []byte) RID {
	return RID{
		PageID: PageID(getInt32(buf[0:4])),
		Slot:   SlotID(getInt32(buf[4:8])),
	}
}

func putInt32(buf []byte, v int32) {
	u := uint32(v)
	buf[0] = byte(u)
	buf[1] = byte(u >> 8)
	buf[2] = byte(u >> 16)
	buf[3] = byte(u >> 24)
}

func getInt32(buf []byte) int32 {
	u := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	return int32(u)
}
