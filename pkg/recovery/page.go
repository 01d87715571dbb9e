package recovery

import (
	"encoding/binary"

	"storemy/pkg/dberrors"
	"storemy/pkg/primitives"
)

// recordPageHeaderSize covers the page LSN (4B), slot count (4B), the
// free-space pointer (4B) that tracks how much of the page's tail is used by
// tuple payloads growing down from the end of the page, and the next-page-id
// link NEWPAGE recovery maintains (4B).
const recordPageHeaderSize = 16

const slotEntrySize = 9 // offset(4) + length(4) + deleted flag(1)

// RecordPage is the minimal slotted page recovery applies log records
// against. It stands in for the out-of-scope table heap page: recovery only
// ever re-applies point operations addressed by RID, never scans, so this
// implements exactly InsertTuple/UpdateTuple/ApplyDelete/MarkDelete/
// RollbackDelete over a slot directory, grounded on the operations
// original_source/src/logging/log_recovery.cpp calls on cmudb::TablePage.
type RecordPage struct {
	data []byte
}

// WrapRecordPage views an existing frame's bytes as a RecordPage.
func WrapRecordPage(data []byte) *RecordPage { return &RecordPage{data: data} }

// InitRecordPage formats a freshly allocated page's bytes as an empty
// RecordPage.
func InitRecordPage(data []byte) *RecordPage {
	p := &RecordPage{data: data}
	p.setLSN(-1)
	p.setNumSlots(0)
	p.setFreeSpacePointer(int32(len(data)))
	p.SetNextPageID(primitives.InvalidPageID)
	return p
}

func (p *RecordPage) LSN() int32 { return int32(binary.LittleEndian.Uint32(p.data[0:4])) }
func (p *RecordPage) setLSN(lsn int32) {
	binary.LittleEndian.PutUint32(p.data[0:4], uint32(lsn))
}

// SetLSN records that the page now reflects the log record with this LSN.
func (p *RecordPage) SetLSN(lsn int32) { p.setLSN(lsn) }

func (p *RecordPage) numSlots() int32 { return int32(binary.LittleEndian.Uint32(p.data[4:8])) }
func (p *RecordPage) setNumSlots(n int32) {
	binary.LittleEndian.PutUint32(p.data[4:8], uint32(n))
}

func (p *RecordPage) freeSpacePointer() int32 {
	return int32(binary.LittleEndian.Uint32(p.data[8:12]))
}
func (p *RecordPage) setFreeSpacePointer(v int32) {
	binary.LittleEndian.PutUint32(p.data[8:12], uint32(v))
}

func (p *RecordPage) NextPageID() primitives.PageID {
	return primitives.PageID(int32(binary.LittleEndian.Uint32(p.data[12:16])))
}

func (p *RecordPage) SetNextPageID(id primitives.PageID) {
	binary.LittleEndian.PutUint32(p.data[12:16], uint32(int32(id)))
}

func (p *RecordPage) slotOffset(slot primitives.SlotID) int {
	return recordPageHeaderSize + int(slot)*slotEntrySize
}

func (p *RecordPage) growSlots(slot primitives.SlotID) {
	if int32(slot) < p.numSlots() {
		return
	}
	for i := p.numSlots(); i <= int32(slot); i++ {
		off := p.slotOffset(primitives.SlotID(i))
		binary.LittleEndian.PutUint32(p.data[off:off+4], 0)
		binary.LittleEndian.PutUint32(p.data[off+4:off+8], 0)
		p.data[off+8] = 1 // new slots start deleted/empty
	}
	p.setNumSlots(int32(slot) + 1)
}

func (p *RecordPage) readSlotEntry(slot primitives.SlotID) (offset, length int32, deleted bool) {
	off := p.slotOffset(slot)
	offset = int32(binary.LittleEndian.Uint32(p.data[off : off+4]))
	length = int32(binary.LittleEndian.Uint32(p.data[off+4 : off+8]))
	deleted = p.data[off+8] != 0
	return
}

func (p *RecordPage) writeSlotEntry(slot primitives.SlotID, offset, length int32, deleted bool) {
	off := p.slotOffset(slot)
	binary.LittleEndian.PutUint32(p.data[off:off+4], uint32(offset))
	binary.LittleEndian.PutUint32(p.data[off+4:off+8], uint32(length))
	if deleted {
		p.data[off+8] = 1
	} else {
		p.data[off+8] = 0
	}
}

// setSlot writes tuple at slot, growing the slot directory if needed and
// allocating fresh space from the free-space pointer.
func (p *RecordPage) setSlot(slot primitives.SlotID, tuple []byte) error {
	p.growSlots(slot)

	dirEnd := p.slotOffset(primitives.SlotID(p.numSlots()))
	newFree := p.freeSpacePointer() - int32(len(tuple))
	if int(newFree) < dirEnd {
		return dberrors.New(dberrors.OutOfMemory, "record page out of space")
	}

	copy(p.data[newFree:], tuple)
	p.setFreeSpacePointer(newFree)
	p.writeSlotEntry(slot, newFree, int32(len(tuple)), false)
	return nil
}

// InsertTuple writes tuple at the given rid's slot, exactly as the original
// insert placed it (redo and the transaction layer both address tuples by a
// RID already chosen at first-execution time, never by append order).
func (p *RecordPage) InsertTuple(slot primitives.SlotID, tuple []byte) error {
	return p.setSlot(slot, tuple)
}

// UpdateTuple overwrites slot's payload with tuple.
func (p *RecordPage) UpdateTuple(slot primitives.SlotID, tuple []byte) error {
	return p.setSlot(slot, tuple)
}

// ApplyDelete physically removes slot's tuple, unrecoverably.
func (p *RecordPage) ApplyDelete(slot primitives.SlotID) {
	p.growSlots(slot)
	p.writeSlotEntry(slot, 0, 0, true)
}

// MarkDelete tombstones slot without discarding its payload, so
// RollbackDelete can restore visibility.
func (p *RecordPage) MarkDelete(slot primitives.SlotID) {
	p.growSlots(slot)
	offset, length, _ := p.readSlotEntry(slot)
	p.writeSlotEntry(slot, offset, length, true)
}

// RollbackDelete reverses a prior MarkDelete, restoring slot's visibility.
func (p *RecordPage) RollbackDelete(slot primitives.SlotID) {
	p.growSlots(slot)
	offset, length, _ := p.readSlotEntry(slot)
	p.writeSlotEntry(slot, offset, length, false)
}

// GetTuple returns slot's payload and whether it is currently visible.
func (p *RecordPage) GetTuple(slot primitives.SlotID) ([]byte, bool) {
	if int32(slot) >= p.numSlots() {
		return nil, false
	}
	offset, length, deleted := p.readSlotEntry(slot)
	if deleted || length == 0 {
		return nil, false
	}
	return p.data[offset : offset+length], true
}
