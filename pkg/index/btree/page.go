// Package btree implements the on-disk B+ tree index: page layout,
// split/merge/redistribute primitives, and the search/insert/remove/iterate
// operations that drive them through the buffer pool. Grounded on
// original_source/src/page/b_plus_tree_{leaf,internal}_page.cpp and
// original_source/src/index/b_plus_tree.cpp.
package btree

import (
	"encoding/binary"

	"storemy/pkg/primitives"
	"storemy/pkg/types"
)

// PageKind tags which concrete layout a page's bytes hold, per spec.md §3's
// "page pointer reinterpret cast" design note: the in-memory view decodes by
// inspecting this 4-byte field and dispatching accordingly.
type PageKind int32

const (
	LeafKind PageKind = 1
	InternalKind PageKind = 2
)

// headerSize is the fixed 20-byte page header: kind, LSN, current size, max
// size, parent page id. The page's own id is never stored on the page
// itself — the buffer pool and directory already address it by PageID.
const headerSize = 20

// base is the shared header every B+ tree page (leaf or internal) starts
// with, embedded by LeafPage and InternalPage.
type base struct {
	data    []byte
	keyType types.KeyType
	keySize int
}

func (b *base) Kind() PageKind {
	return PageKind(int32(binary.LittleEndian.Uint32(b.data[0:4])))
}

func (b *base) setKind(k PageKind) {
	binary.LittleEndian.PutUint32(b.data[0:4], uint32(k))
}

func (b *base) LSN() int32 { return int32(binary.LittleEndian.Uint32(b.data[4:8])) }
func (b *base) SetLSN(lsn int32) {
	binary.LittleEndian.PutUint32(b.data[4:8], uint32(lsn))
}

func (b *base) Size() int { return int(int32(binary.LittleEndian.Uint32(b.data[8:12]))) }
func (b *base) SetSize(n int) {
	binary.LittleEndian.PutUint32(b.data[8:12], uint32(int32(n)))
}

func (b *base) MaxSize() int { return int(int32(binary.LittleEndian.Uint32(b.data[12:16]))) }
func (b *base) SetMaxSize(n int) {
	binary.LittleEndian.PutUint32(b.data[12:16], uint32(int32(n)))
}

func (b *base) ParentPageID() primitives.PageID {
	return primitives.PageID(int32(binary.LittleEndian.Uint32(b.data[16:20])))
}

func (b *base) SetParentPageID(id primitives.PageID) {
	binary.LittleEndian.PutUint32(b.data[16:20], uint32(int32(id)))
}

// MinSize reports the minimum occupancy this page may fall to outside of a
// transient split/merge, per spec.md §3: ceil(max/2) for internal pages,
// ceil((max+1)/2) for leaf pages.
func (b *base) minSizeOf(kind PageKind) int {
	max := b.MaxSize()
	if kind == LeafKind {
		return (max + 1 + 1) / 2
	}
	return (max + 1) / 2
}

func (b *base) IsFull() bool { return b.Size() > b.MaxSize() }

// PageKindOf reads the 4-byte kind tag of a raw page buffer without needing a key
// type, so tree traversal can dispatch to WrapLeaf/WrapInternal.
func PageKindOf(data []byte) PageKind {
	return PageKind(int32(binary.LittleEndian.Uint32(data[0:4])))
}

// entrySize returns the fixed width of one (key, value) slot: the key plus
// an int32 child-page-id (internal) or an 8-byte RID (leaf).
func entrySize(keySize int, valueSize int) int { return keySize + valueSize }

// maxSizeFor computes max_size = floor((PAGE_SIZE - header - fixedExtra) /
// entrySize) - 1, leaving one slack slot for the insert-then-split pattern
// (spec.md §4.7).
func maxSizeFor(pageSize, fixedExtra, keySize, valueSize int) int {
	usable := pageSize - headerSize - fixedExtra
	n := usable/entrySize(keySize, valueSize) - 1
	if n < 2 {
		n = 2
	}
	return n
}
