package btree

import (
	"encoding/binary"

	"storemy/pkg/primitives"
	"storemy/pkg/types"
)

// leafHeaderSize extends the common 20-byte header with a 4-byte
// next_page_id, the sibling pointer leaves use to chain into a sorted
// linked list for range scans (spec.md §4.7).
const leafHeaderSize = headerSize + 4

// LeafPage holds sorted (key, RID) pairs plus a pointer to the next leaf in
// key order.
type LeafPage struct {
	base
}

func WrapLeaf(data []byte, keyType types.KeyType) *LeafPage {
	return &LeafPage{base{data: data, keyType: keyType, keySize: types.KeySize(keyType)}}
}

// InitLeaf formats a freshly allocated page as an empty leaf page.
func InitLeaf(data []byte, keyType types.KeyType, parent primitives.PageID, maxSize int) *LeafPage {
	p := WrapLeaf(data, keyType)
	p.setKind(LeafKind)
	p.SetLSN(-1)
	p.SetSize(0)
	p.SetMaxSize(maxSize)
	p.SetParentPageID(parent)
	p.SetNextPageID(primitives.InvalidPageID)
	return p
}

func (p *LeafPage) MinSize() int { return p.minSizeOf(LeafKind) }

func (p *LeafPage) NextPageID() primitives.PageID {
	return primitives.PageID(int32(binary.LittleEndian.Uint32(p.data[headerSize : headerSize+4])))
}

func (p *LeafPage) SetNextPageID(id primitives.PageID) {
	binary.LittleEndian.PutUint32(p.data[headerSize:headerSize+4], uint32(int32(id)))
}

func (p *LeafPage) entryOffset(i int) int {
	return leafHeaderSize + i*(p.keySize+8)
}

func (p *LeafPage) KeyAt(i int) types.Key {
	off := p.entryOffset(i)
	return types.DecodeKey(p.keyType, p.data[off:off+p.keySize])
}

func (p *LeafPage) setKeyAt(i int, k types.Key) {
	off := p.entryOffset(i)
	copy(p.data[off:off+p.keySize], k.Bytes())
}

func (p *LeafPage) ValueAt(i int) primitives.RID {
	off := p.entryOffset(i) + p.keySize
	return primitives.DeserializeRID(p.data[off : off+8])
}

func (p *LeafPage) setValueAt(i int, v primitives.RID) {
	off := p.entryOffset(i) + p.keySize
	buf := v.Serialize()
	copy(p.data[off:off+8], buf[:])
}

func (p *LeafPage) setEntry(i int, k types.Key, v primitives.RID) {
	p.setKeyAt(i, k)
	p.setValueAt(i, v)
}

// KeyIndex returns the smallest index whose key is >= key (a lower bound),
// which is also the insertion point that keeps entries sorted.
func (p *LeafPage) KeyIndex(key types.Key) int {
	size := p.Size()
	lo, hi := 0, size
	for lo < hi {
		mid := (lo + hi) / 2
		if p.KeyAt(mid).Compare(key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Lookup returns the RID stored for key, or false if key is absent.
func (p *LeafPage) Lookup(key types.Key) (primitives.RID, bool) {
	idx := p.KeyIndex(key)
	if idx < p.Size() && p.KeyAt(idx).Compare(key) == 0 {
		return p.ValueAt(idx), true
	}
	return primitives.RID{}, false
}

// Insert inserts (key, value) in sorted order, returning false if key is
// already present (duplicate keys are rejected, per spec.md §4.8).
func (p *LeafPage) Insert(key types.Key, value primitives.RID) bool {
	idx := p.KeyIndex(key)
	if idx < p.Size() && p.KeyAt(idx).Compare(key) == 0 {
		return false
	}
	size := p.Size()
	for i := size; i > idx; i-- {
		p.setEntry(i, p.KeyAt(i-1), p.ValueAt(i-1))
	}
	p.setEntry(idx, key, value)
	p.SetSize(size + 1)
	return true
}

// RemoveByKey deletes key's entry if present, returning the new size and
// whether anything was removed.
func (p *LeafPage) RemoveByKey(key types.Key) (int, bool) {
	idx := p.KeyIndex(key)
	size := p.Size()
	if idx >= size || p.KeyAt(idx).Compare(key) != 0 {
		return size, false
	}
	for i := idx; i < size-1; i++ {
		p.setEntry(i, p.KeyAt(i+1), p.ValueAt(i+1))
	}
	p.SetSize(size - 1)
	return size - 1, true
}

// MoveHalfTo transfers the upper half of this leaf's entries into recipient
// (which must be empty) and relinks the sibling chain: recipient.next =
// this.next, this.next = recipient.
func (p *LeafPage) MoveHalfTo(recipient *LeafPage, recipientPageID primitives.PageID) {
	size := p.Size()
	min := size / 2
	n := size - min

	for i := 0; i < n; i++ {
		recipient.setEntry(i, p.KeyAt(min+i), p.ValueAt(min+i))
	}
	recipient.SetSize(n)
	p.SetSize(min)

	recipient.SetNextPageID(p.NextPageID())
	p.SetNextPageID(recipientPageID)
}

// MoveAllTo appends all of this leaf's entries onto the end of recipient and
// relinks recipient.next to skip over this (now-empty) page.
func (p *LeafPage) MoveAllTo(recipient *LeafPage) {
	base := recipient.Size()
	size := p.Size()
	for i := 0; i < size; i++ {
		recipient.setEntry(base+i, p.KeyAt(i), p.ValueAt(i))
	}
	recipient.SetSize(base + size)
	recipient.SetNextPageID(p.NextPageID())
	p.SetSize(0)
}

// MoveFirstToEndOf rotates this leaf's first entry onto the end of
// recipient, returning the new first key of this leaf (the caller's new
// separator for this leaf in its parent).
func (p *LeafPage) MoveFirstToEndOf(recipient *LeafPage) types.Key {
	k, v := p.KeyAt(0), p.ValueAt(0)
	recipient.setEntry(recipient.Size(), k, v)
	recipient.SetSize(recipient.Size() + 1)

	size := p.Size()
	for i := 0; i < size-1; i++ {
		p.setEntry(i, p.KeyAt(i+1), p.ValueAt(i+1))
	}
	p.SetSize(size - 1)
	return p.KeyAt(0)
}

// MoveLastToFrontOf rotates this leaf's last entry onto the front of
// recipient, returning that entry's key (the caller's new separator for
// recipient in the parent).
func (p *LeafPage) MoveLastToFrontOf(recipient *LeafPage) types.Key {
	size := p.Size()
	k, v := p.KeyAt(size-1), p.ValueAt(size-1)

	rsize := recipient.Size()
	for i := rsize; i > 0; i-- {
		recipient.setEntry(i, recipient.KeyAt(i-1), recipient.ValueAt(i-1))
	}
	recipient.setEntry(0, k, v)
	recipient.SetSize(rsize + 1)

	p.SetSize(size - 1)
	return k
}
