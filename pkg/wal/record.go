// Package wal implements the write-ahead log: the binary record format of
// spec.md §6 and the async double-buffer log manager of §4.5. Grounded on
// original_source/src/logging/log_manager.cpp and log_recovery.cpp, restyled
// into a package-per-concern layout.
package wal

import (
	"encoding/binary"

	"storemy/pkg/dberrors"
	"storemy/pkg/primitives"
)

// RecordType identifies the payload shape that follows a record's header.
type RecordType int32

const (
	Insert RecordType = iota
	Update
	ApplyDelete
	MarkDelete
	RollbackDelete
	NewPage
	Begin
	Commit
	Abort
)

// HeaderSize is the fixed 20-byte header every record starts with:
// int32 size, lsn, txn_id, prev_lsn, type.
const HeaderSize = 20

// Record is one write-ahead log entry. Only the fields relevant to its Type
// are meaningful; this mirrors the C union-like record the original engine
// serializes, flattened into one Go struct for simplicity.
type Record struct {
	Size    int32
	LSN     primitives.LSN
	TxnID   primitives.TxnID
	PrevLSN primitives.LSN
	Type    RecordType

	// INSERT / APPLYDELETE / MARKDELETE / ROLLBACKDELETE
	RID    primitives.RID
	Tuple  []byte
	Tuple2 []byte // UPDATE's new-tuple image; old tuple travels in Tuple

	// UPDATE
	UpdateRID primitives.RID

	// NEWPAGE
	PrevPageID primitives.PageID
}

// payloadSize returns the number of payload bytes (excluding the header)
// this record serializes to.
func (r *Record) payloadSize() int {
	switch r.Type {
	case Insert, ApplyDelete, MarkDelete, RollbackDelete:
		return 8 + 4 + len(r.Tuple)
	case Update:
		return 8 + 4 + len(r.Tuple) + 4 + len(r.Tuple2)
	case NewPage:
		return 4
	default: // BEGIN, COMMIT, ABORT
		return 0
	}
}

// Encode returns the full byte-exact wire representation of r, assigning its
// Size field as a side effect.
func (r *Record) Encode() []byte {
	r.Size = int32(HeaderSize + r.payloadSize())
	buf := make([]byte, r.Size)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Size))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(r.LSN))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(r.TxnID))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(r.PrevLSN))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(r.Type))

	pos := HeaderSize
	switch r.Type {
	case Insert, ApplyDelete, MarkDelete, RollbackDelete:
		rid := r.RID.Serialize()
		copy(buf[pos:], rid[:])
		pos += 8
		pos += putTuple(buf[pos:], r.Tuple)
	case Update:
		rid := r.UpdateRID.Serialize()
		copy(buf[pos:], rid[:])
		pos += 8
		pos += putTuple(buf[pos:], r.Tuple)
		pos += putTuple(buf[pos:], r.Tuple2)
	case NewPage:
		binary.LittleEndian.PutUint32(buf[pos:pos+4], uint32(r.PrevPageID))
	}
	return buf
}

func putTuple(dst []byte, tuple []byte) int {
	binary.LittleEndian.PutUint32(dst[0:4], uint32(len(tuple)))
	copy(dst[4:], tuple)
	return 4 + len(tuple)
}

func getTuple(src []byte) ([]byte, int) {
	n := binary.LittleEndian.Uint32(src[0:4])
	return src[4 : 4+n], int(4 + n)
}

// Decode reconstructs a Record from its wire representation. It returns an
// error wrapping dberrors.Serialization if buf is too short to hold a
// complete record (the tail of a crashed write), which recovery's Redo pass
// uses to stop cleanly at the first truncated record.
func Decode(buf []byte) (*Record, error) {
	if len(buf) < HeaderSize {
		return nil, dberrors.New(dberrors.Serialization, "record shorter than header")
	}

	size := int32(binary.LittleEndian.Uint32(buf[0:4]))
	if size <= 0 || int(size) > len(buf) {
		return nil, dberrors.New(dberrors.Serialization, "record size out of bounds")
	}

	r := &Record{
		Size:    size,
		LSN:     primitives.LSN(binary.LittleEndian.Uint32(buf[4:8])),
		TxnID:   primitives.TxnID(binary.LittleEndian.Uint32(buf[8:12])),
		PrevLSN: primitives.LSN(binary.LittleEndian.Uint32(buf[12:16])),
		Type:    RecordType(binary.LittleEndian.Uint32(buf[16:20])),
	}

	pos := HeaderSize
	switch r.Type {
	case Insert, ApplyDelete, MarkDelete, RollbackDelete:
		r.RID = primitives.DeserializeRID(buf[pos : pos+8])
		pos += 8
		tuple, n := getTuple(buf[pos:])
		r.Tuple = tuple
		pos += n
	case Update:
		r.UpdateRID = primitives.DeserializeRID(buf[pos : pos+8])
		pos += 8
		old, n := getTuple(buf[pos:])
		r.Tuple = old
		pos += n
		newT, n2 := getTuple(buf[pos:])
		r.Tuple2 = newT
		pos += n2
	case NewPage:
		r.PrevPageID = primitives.PageID(int32(binary.LittleEndian.Uint32(buf[pos : pos+4])))
	}
	return r, nil
}
