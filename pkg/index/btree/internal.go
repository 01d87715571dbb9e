package btree

import (
	"encoding/binary"

	"storemy/pkg/primitives"
	"storemy/pkg/types"
)

// InternalPage holds a sequence of (key, child_page_id) pairs. The key at
// index 0 is never read — it exists only so ValueAt(0) has a slot — per
// spec.md §3.
type InternalPage struct {
	base
}

func WrapInternal(data []byte, keyType types.KeyType) *InternalPage {
	return &InternalPage{base{data: data, keyType: keyType, keySize: types.KeySize(keyType)}}
}

// InitInternal formats a freshly allocated page as an empty internal page.
func InitInternal(data []byte, keyType types.KeyType, parent primitives.PageID, maxSize int) *InternalPage {
	p := WrapInternal(data, keyType)
	p.setKind(InternalKind)
	p.SetLSN(-1)
	p.SetSize(0)
	p.SetMaxSize(maxSize)
	p.SetParentPageID(parent)
	return p
}

func (p *InternalPage) MinSize() int { return p.minSizeOf(InternalKind) }

func (p *InternalPage) entryOffset(i int) int {
	return headerSize + i*(p.keySize+4)
}

func (p *InternalPage) KeyAt(i int) types.Key {
	off := p.entryOffset(i)
	return types.DecodeKey(p.keyType, p.data[off:off+p.keySize])
}

func (p *InternalPage) SetKeyAt(i int, k types.Key) {
	off := p.entryOffset(i)
	copy(p.data[off:off+p.keySize], k.Bytes())
}

func (p *InternalPage) ValueAt(i int) primitives.PageID {
	off := p.entryOffset(i) + p.keySize
	return primitives.PageID(int32(binary.LittleEndian.Uint32(p.data[off : off+4])))
}

func (p *InternalPage) SetValueAt(i int, v primitives.PageID) {
	off := p.entryOffset(i) + p.keySize
	binary.LittleEndian.PutUint32(p.data[off:off+4], uint32(int32(v)))
}

// ValueIndex returns the index holding child, or -1.
func (p *InternalPage) ValueIndex(child primitives.PageID) int {
	for i := 0; i < p.Size(); i++ {
		if p.ValueAt(i) == child {
			return i
		}
	}
	return -1
}

// Lookup returns the child page whose key range contains key: the largest
// index i in [1,size) with KeyAt(i) <= key, or index 0 if none.
func (p *InternalPage) Lookup(key types.Key) primitives.PageID {
	size := p.Size()
	idx := 0
	for i := 1; i < size; i++ {
		if p.KeyAt(i).Compare(key) <= 0 {
			idx = i
		} else {
			break
		}
	}
	return p.ValueAt(idx)
}

// PopulateNewRoot installs a brand new root with exactly two children.
func (p *InternalPage) PopulateNewRoot(left primitives.PageID, key types.Key, right primitives.PageID) {
	p.SetValueAt(0, left)
	p.SetKeyAt(1, key)
	p.SetValueAt(1, right)
	p.SetSize(2)
}

// InsertNodeAfter locates oldChild by its value and inserts (newKey,
// newChild) immediately after it, shifting later entries right.
func (p *InternalPage) InsertNodeAfter(oldChild primitives.PageID, newKey types.Key, newChild primitives.PageID) {
	idx := p.ValueIndex(oldChild)
	size := p.Size()
	for i := size; i > idx+1; i-- {
		p.SetKeyAt(i, p.KeyAt(i-1))
		p.SetValueAt(i, p.ValueAt(i-1))
	}
	p.SetKeyAt(idx+1, newKey)
	p.SetValueAt(idx+1, newChild)
	p.SetSize(size + 1)
}

// MoveHalfTo transfers the upper half of this page's entries (including the
// separator at index min) into recipient, which must be empty. It returns
// the moved separator key (recipient's new index-0 entry), which the caller
// promotes into the parent.
func (p *InternalPage) MoveHalfTo(recipient *InternalPage) types.Key {
	size := p.Size()
	min := size / 2
	n := size - min

	for i := 0; i < n; i++ {
		recipient.SetKeyAt(i, p.KeyAt(min+i))
		recipient.SetValueAt(i, p.ValueAt(min+i))
	}
	recipient.SetSize(n)
	p.SetSize(min)
	return recipient.KeyAt(0)
}

// MoveAllTo demotes parentSeparator into this page's index-0 slot, then
// appends all of this page's entries onto the end of recipient. Used when
// coalescing this page into its left sibling, the recipient.
func (p *InternalPage) MoveAllTo(recipient *InternalPage, parentSeparator types.Key) {
	p.SetKeyAt(0, parentSeparator)

	base := recipient.Size()
	size := p.Size()
	for i := 0; i < size; i++ {
		recipient.SetKeyAt(base+i, p.KeyAt(i))
		recipient.SetValueAt(base+i, p.ValueAt(i))
	}
	recipient.SetSize(base + size)
	p.SetSize(0)
}

// MoveFirstToEndOf rotates this page's first child (index 0) onto the end
// of recipient, attached there under parentSeparator (the key that used to
// separate this page from recipient). It returns this page's own old
// index-1 key, which becomes the new parent separator between the two.
func (p *InternalPage) MoveFirstToEndOf(recipient *InternalPage, parentSeparator types.Key) types.Key {
	firstValue := p.ValueAt(0)
	recipient.SetKeyAt(recipient.Size(), parentSeparator)
	recipient.SetValueAt(recipient.Size(), firstValue)
	recipient.SetSize(recipient.Size() + 1)

	newSeparator := p.KeyAt(1)
	size := p.Size()
	for i := 0; i < size-1; i++ {
		p.SetKeyAt(i, p.KeyAt(i+1))
		p.SetValueAt(i, p.ValueAt(i+1))
	}
	p.SetSize(size - 1)
	return newSeparator
}

// MoveLastToFrontOf rotates this page's last child onto the front of
// recipient as its new index-0 child; recipient's old first child moves to
// index 1 under parentSeparator (the key that used to separate the two).
// It returns this page's own old last key, which
// becomes the new parent separator between the two.
func (p *InternalPage) MoveLastToFrontOf(recipient *InternalPage, parentSeparator types.Key) types.Key {
	size := p.Size()
	lastValue := p.ValueAt(size - 1)
	newSeparator := p.KeyAt(size - 1)

	rsize := recipient.Size()
	for i := rsize; i > 0; i-- {
		recipient.SetKeyAt(i, recipient.KeyAt(i-1))
		recipient.SetValueAt(i, recipient.ValueAt(i-1))
	}
	recipient.SetKeyAt(1, parentSeparator)
	recipient.SetValueAt(0, lastValue)
	recipient.SetSize(rsize + 1)

	p.SetSize(size - 1)
	return newSeparator
}

// RemoveAt deletes the entry at index, shifting later entries left.
func (p *InternalPage) RemoveAt(index int) {
	size := p.Size()
	for i := index; i < size-1; i++ {
		p.SetKeyAt(i, p.KeyAt(i+1))
		p.SetValueAt(i, p.ValueAt(i+1))
	}
	p.SetSize(size - 1)
}
