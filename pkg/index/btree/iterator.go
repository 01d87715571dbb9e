package btree

import (
	"storemy/pkg/primitives"
	"storemy/pkg/types"
)

// Iterator walks a tree's leaves in ascending key order. Begin/BeginAt are
// built out fully here rather than left unimplemented, since range scans
// are a named operation this index supports.
type Iterator struct {
	tree    *Tree
	pageID  primitives.PageID
	leaf    *LeafPage
	offset  int
	atEnd   bool
}

// Begin positions an iterator at the smallest key in the tree.
func (t *Tree) Begin() (*Iterator, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.rootPageID == primitives.InvalidPageID {
		return &Iterator{tree: t, atEnd: true}, nil
	}

	pageID := t.rootPageID
	for {
		frame, err := t.pool.FetchPage(pageID)
		if err != nil {
			return nil, err
		}
		if PageKindOf(frame.Data()) == LeafKind {
			leaf := WrapLeaf(frame.Data(), t.keyType)
			return t.newIterator(pageID, leaf), nil
		}
		internal := WrapInternal(frame.Data(), t.keyType)
		next := internal.ValueAt(0)
		_ = t.pool.UnpinPage(pageID, false)
		pageID = next
	}
}

// BeginAt positions an iterator at the first entry with key >= key.
func (t *Tree) BeginAt(key types.Key) (*Iterator, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.rootPageID == primitives.InvalidPageID {
		return &Iterator{tree: t, atEnd: true}, nil
	}

	pageID, _, leaf, err := t.findLeaf(key)
	if err != nil {
		return nil, err
	}

	it := t.newIterator(pageID, leaf)
	it.offset = leaf.KeyIndex(key)
	it.advancePastEnd()
	return it, nil
}

func (t *Tree) newIterator(pageID primitives.PageID, leaf *LeafPage) *Iterator {
	it := &Iterator{tree: t, pageID: pageID, leaf: leaf, offset: 0}
	it.advancePastEnd()
	return it
}

// advancePastEnd crosses into the next leaf (unpinning this one) whenever
// offset has run off the end of the current leaf, repeating until it finds
// a non-empty leaf or runs out of leaves.
func (it *Iterator) advancePastEnd() {
	for !it.atEnd && it.offset >= it.leaf.Size() {
		next := it.leaf.NextPageID()
		_ = it.tree.pool.UnpinPage(it.pageID, false)
		if next == primitives.InvalidPageID {
			it.atEnd = true
			it.leaf = nil
			return
		}
		frame, err := it.tree.pool.FetchPage(next)
		if err != nil {
			it.atEnd = true
			it.leaf = nil
			return
		}
		it.pageID = next
		it.leaf = WrapLeaf(frame.Data(), it.tree.keyType)
		it.offset = 0
	}
}

// IsEnd reports whether the iterator has advanced past the last entry.
func (it *Iterator) IsEnd() bool { return it.atEnd }

// Key returns the current entry's key. Calling it at IsEnd panics.
func (it *Iterator) Key() types.Key { return it.leaf.KeyAt(it.offset) }

// Value returns the current entry's RID. Calling it at IsEnd panics.
func (it *Iterator) Value() primitives.RID { return it.leaf.ValueAt(it.offset) }

// Next advances to the following entry, crossing leaf boundaries via the
// sibling chain as needed.
func (it *Iterator) Next() {
	if it.atEnd {
		return
	}
	it.offset++
	it.advancePastEnd()
}

// Close releases the pin on the iterator's current leaf, if any. Callers
// that run an iterator to IsEnd need not call Close; callers that abandon
// one early must.
func (it *Iterator) Close() error {
	if it.atEnd || it.leaf == nil {
		return nil
	}
	err := it.tree.pool.UnpinPage(it.pageID, false)
	it.atEnd = true
	it.leaf = nil
	return err
}
