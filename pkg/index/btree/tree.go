package btree

import (
	"errors"
	"sync"

	"storemy/pkg/buffer/pool"
	"storemy/pkg/primitives"
	"storemy/pkg/types"
)

// ErrDuplicateKey is returned by Insert when key is already present; this
// index does not support duplicate keys (spec.md §4.8).
var ErrDuplicateKey = errors.New("btree: duplicate key")

// Tree is a B+ tree index over one key type, backed by a buffer pool.
// Structural mutations (Insert/Remove) are serialized by a tree-wide mutex
// rather than per-page latch crabbing: the page layout tracks every node's
// parent pointer, which is enough to drive split/merge recursion without a
// pinned ancestor stack, and record-level concurrency is already the lock
// manager's job (pkg/concurrency/lock), not this index's.
type Tree struct {
	mu sync.RWMutex

	pool    *pool.Manager
	name    string
	keyType types.KeyType

	leafMax     int
	internalMax int

	rootPageID primitives.PageID
}

// Open attaches to (or creates) the named index within pool, recovering its
// root page id from the header page (spec.md §6).
func Open(p *pool.Manager, pageSize int, name string, keyType types.KeyType) (*Tree, error) {
	leafMax, internalMax := maxSizes(pageSize, keyType)
	root, err := loadRootFromHeader(p, name)
	if err != nil {
		return nil, err
	}
	return &Tree{
		pool:        p,
		name:        name,
		keyType:     keyType,
		leafMax:     leafMax,
		internalMax: internalMax,
		rootPageID:  root,
	}, nil
}

// maxSizes derives leaf and internal max occupancy from the page size
// (spec.md §4.7): leaves additionally carry a 4-byte next_page_id and an
// 8-byte RID per entry; internal pages carry a 4-byte child page id.
func maxSizes(pageSize int, keyType types.KeyType) (leafMax, internalMax int) {
	keySize := types.KeySize(keyType)
	leafMax = maxSizeFor(pageSize, 4, keySize, 8)
	internalMax = maxSizeFor(pageSize, 0, keySize, 4)
	return
}

func (t *Tree) IsEmpty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rootPageID == primitives.InvalidPageID
}

// GetValue looks up key, following internal pages down to the owning leaf.
func (t *Tree) GetValue(key types.Key) (primitives.RID, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.rootPageID == primitives.InvalidPageID {
		return primitives.RID{}, false, nil
	}

	leafPageID, _, leaf, err := t.findLeaf(key)
	if err != nil {
		return primitives.RID{}, false, err
	}
	defer func() { _ = t.pool.UnpinPage(leafPageID, false) }()

	rid, ok := leaf.Lookup(key)
	return rid, ok, nil
}

// findLeaf descends from the root to the leaf that would hold key, leaving
// that leaf pinned. The caller must unpin it.
func (t *Tree) findLeaf(key types.Key) (primitives.PageID, *pool.Frame, *LeafPage, error) {
	pageID := t.rootPageID
	for {
		frame, err := t.pool.FetchPage(pageID)
		if err != nil {
			return 0, nil, nil, err
		}
		if PageKindOf(frame.Data()) == LeafKind {
			return pageID, frame, WrapLeaf(frame.Data(), t.keyType), nil
		}
		internal := WrapInternal(frame.Data(), t.keyType)
		next := internal.Lookup(key)
		_ = t.pool.UnpinPage(pageID, false)
		pageID = next
	}
}

// setParent rewrites childID's stored parent pointer.
func (t *Tree) setParent(childID, parentID primitives.PageID) error {
	frame, err := t.pool.FetchPage(childID)
	if err != nil {
		return err
	}
	b := base{data: frame.Data()}
	b.SetParentPageID(parentID)
	return t.pool.UnpinPage(childID, true)
}

// reparentChildren rewrites the parent pointer of every child node listed
// in an internal page, used after a merge or split moves them wholesale.
func (t *Tree) reparentChildren(node *InternalPage, nodePageID primitives.PageID) error {
	for i := 0; i < node.Size(); i++ {
		if err := t.setParent(node.ValueAt(i), nodePageID); err != nil {
			return err
		}
	}
	return nil
}

// Insert adds (key, value), splitting leaves and internal pages upward as
// needed. It fails with ErrDuplicateKey if key is already present.
func (t *Tree) Insert(key types.Key, value primitives.RID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rootPageID == primitives.InvalidPageID {
		return t.startNewTree(key, value)
	}
	return t.insertIntoLeaf(key, value)
}

func (t *Tree) startNewTree(key types.Key, value primitives.RID) error {
	frame, err := t.pool.NewPage()
	if err != nil {
		return err
	}
	leaf := InitLeaf(frame.Data(), t.keyType, primitives.InvalidPageID, t.leafMax)
	leaf.Insert(key, value)
	t.rootPageID = frame.PageID()

	if err := t.pool.UnpinPage(frame.PageID(), true); err != nil {
		return err
	}
	return saveRootToHeader(t.pool, t.name, t.rootPageID)
}

func (t *Tree) insertIntoLeaf(key types.Key, value primitives.RID) error {
	leafPageID, _, leaf, err := t.findLeaf(key)
	if err != nil {
		return err
	}

	if !leaf.Insert(key, value) {
		_ = t.pool.UnpinPage(leafPageID, false)
		return ErrDuplicateKey
	}

	if !leaf.IsFull() {
		return t.pool.UnpinPage(leafPageID, true)
	}

	siblingFrame, err := t.pool.NewPage()
	if err != nil {
		_ = t.pool.UnpinPage(leafPageID, true)
		return err
	}
	sibling := InitLeaf(siblingFrame.Data(), t.keyType, leaf.ParentPageID(), t.leafMax)
	leaf.MoveHalfTo(sibling, siblingFrame.PageID())
	promotedKey := sibling.KeyAt(0)
	parentID := leaf.ParentPageID()

	if err := t.pool.UnpinPage(leafPageID, true); err != nil {
		return err
	}
	if err := t.pool.UnpinPage(siblingFrame.PageID(), true); err != nil {
		return err
	}

	return t.insertIntoParent(leafPageID, promotedKey, siblingFrame.PageID(), parentID)
}

// insertIntoParent links (left, key, right) into left's parent, allocating
// a new root if left had none, and recursing upward if the parent overflows.
func (t *Tree) insertIntoParent(left primitives.PageID, key types.Key, right primitives.PageID, parentID primitives.PageID) error {
	if parentID == primitives.InvalidPageID {
		frame, err := t.pool.NewPage()
		if err != nil {
			return err
		}
		newRoot := InitInternal(frame.Data(), t.keyType, primitives.InvalidPageID, t.internalMax)
		newRoot.PopulateNewRoot(left, key, right)
		t.rootPageID = frame.PageID()

		if err := t.setParent(left, frame.PageID()); err != nil {
			return err
		}
		if err := t.setParent(right, frame.PageID()); err != nil {
			return err
		}
		if err := t.pool.UnpinPage(frame.PageID(), true); err != nil {
			return err
		}
		return saveRootToHeader(t.pool, t.name, t.rootPageID)
	}

	frame, err := t.pool.FetchPage(parentID)
	if err != nil {
		return err
	}
	parent := WrapInternal(frame.Data(), t.keyType)
	parent.InsertNodeAfter(left, key, right)
	if err := t.setParent(right, parentID); err != nil {
		return err
	}

	if !parent.IsFull() {
		return t.pool.UnpinPage(parentID, true)
	}

	siblingFrame, err := t.pool.NewPage()
	if err != nil {
		_ = t.pool.UnpinPage(parentID, true)
		return err
	}
	sibling := InitInternal(siblingFrame.Data(), t.keyType, parent.ParentPageID(), t.internalMax)
	promotedKey := parent.MoveHalfTo(sibling)
	if err := t.reparentChildren(sibling, siblingFrame.PageID()); err != nil {
		return err
	}
	grandParent := parent.ParentPageID()

	if err := t.pool.UnpinPage(parentID, true); err != nil {
		return err
	}
	if err := t.pool.UnpinPage(siblingFrame.PageID(), true); err != nil {
		return err
	}

	return t.insertIntoParent(parentID, promotedKey, siblingFrame.PageID(), grandParent)
}

// Remove deletes key's entry if present, rebalancing (redistribute or
// coalesce) up the tree on underflow. It is a no-op if key is absent.
func (t *Tree) Remove(key types.Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rootPageID == primitives.InvalidPageID {
		return nil
	}

	leafPageID, _, leaf, err := t.findLeaf(key)
	if err != nil {
		return err
	}

	newSize, removed := leaf.RemoveByKey(key)
	if !removed {
		return t.pool.UnpinPage(leafPageID, false)
	}

	if leafPageID == t.rootPageID {
		if err := t.pool.UnpinPage(leafPageID, true); err != nil {
			return err
		}
		return t.adjustRoot(leafPageID)
	}

	if newSize >= leaf.MinSize() {
		return t.pool.UnpinPage(leafPageID, true)
	}

	return t.coalesceOrRedistributeLeaf(leafPageID, leaf)
}

// siblingDirection picks, per the corrected policy, which neighbor of the
// node at index within parent to rebalance against: its left sibling if one
// exists, otherwise its right sibling.
func siblingDirection(index int) (siblingIndex int, hasLeft bool) {
	if index > 0 {
		return index - 1, true
	}
	return index + 1, false
}

func (t *Tree) coalesceOrRedistributeLeaf(pageID primitives.PageID, leaf *LeafPage) error {
	parentID := leaf.ParentPageID()
	parentFrame, err := t.pool.FetchPage(parentID)
	if err != nil {
		return err
	}
	parent := WrapInternal(parentFrame.Data(), t.keyType)
	index := parent.ValueIndex(pageID)
	siblingIndex, hasLeft := siblingDirection(index)

	siblingID := parent.ValueAt(siblingIndex)
	siblingFrame, err := t.pool.FetchPage(siblingID)
	if err != nil {
		return err
	}
	sibling := WrapLeaf(siblingFrame.Data(), t.keyType)

	// REDESIGN FLAG fix: coalesce when the combined size still fits in one
	// page (node.size + sibling.size <= max_size), not when comparing
	// against the sibling's own min_size.
	if leaf.Size()+sibling.Size() <= leaf.MaxSize() {
		if hasLeft {
			leaf.MoveAllTo(sibling)
			if err := t.pool.UnpinPage(siblingID, true); err != nil {
				return err
			}
			if err := t.pool.UnpinPage(pageID, true); err != nil {
				return err
			}
			if _, err := t.pool.DeletePage(pageID); err != nil {
				return err
			}
			parent.RemoveAt(index)
		} else {
			sibling.MoveAllTo(leaf)
			if err := t.pool.UnpinPage(pageID, true); err != nil {
				return err
			}
			if err := t.pool.UnpinPage(siblingID, true); err != nil {
				return err
			}
			if _, err := t.pool.DeletePage(siblingID); err != nil {
				return err
			}
			parent.RemoveAt(siblingIndex)
		}
		return t.afterParentShrink(parentID, parent)
	}

	if hasLeft {
		movedKey := sibling.MoveLastToFrontOf(leaf)
		parent.SetKeyAt(index, movedKey)
	} else {
		movedKey := sibling.MoveFirstToEndOf(leaf)
		parent.SetKeyAt(siblingIndex, movedKey)
	}
	if err := t.pool.UnpinPage(pageID, true); err != nil {
		return err
	}
	if err := t.pool.UnpinPage(siblingID, true); err != nil {
		return err
	}
	return t.pool.UnpinPage(parentID, true)
}

func (t *Tree) coalesceOrRedistributeInternal(pageID primitives.PageID, node *InternalPage) error {
	parentID := node.ParentPageID()
	parentFrame, err := t.pool.FetchPage(parentID)
	if err != nil {
		return err
	}
	parent := WrapInternal(parentFrame.Data(), t.keyType)
	index := parent.ValueIndex(pageID)
	siblingIndex, hasLeft := siblingDirection(index)

	siblingID := parent.ValueAt(siblingIndex)
	siblingFrame, err := t.pool.FetchPage(siblingID)
	if err != nil {
		return err
	}
	sibling := WrapInternal(siblingFrame.Data(), t.keyType)

	if node.Size()+sibling.Size() <= node.MaxSize() {
		if hasLeft {
			sep := parent.KeyAt(index)
			node.MoveAllTo(sibling, sep)
			if err := t.reparentChildren(sibling, siblingID); err != nil {
				return err
			}
			if err := t.pool.UnpinPage(siblingID, true); err != nil {
				return err
			}
			if err := t.pool.UnpinPage(pageID, true); err != nil {
				return err
			}
			if _, err := t.pool.DeletePage(pageID); err != nil {
				return err
			}
			parent.RemoveAt(index)
		} else {
			sep := parent.KeyAt(siblingIndex)
			sibling.MoveAllTo(node, sep)
			if err := t.reparentChildren(node, pageID); err != nil {
				return err
			}
			if err := t.pool.UnpinPage(pageID, true); err != nil {
				return err
			}
			if err := t.pool.UnpinPage(siblingID, true); err != nil {
				return err
			}
			if _, err := t.pool.DeletePage(siblingID); err != nil {
				return err
			}
			parent.RemoveAt(siblingIndex)
		}
		return t.afterParentShrink(parentID, parent)
	}

	if hasLeft {
		sep := parent.KeyAt(index)
		newSep := sibling.MoveLastToFrontOf(node, sep)
		parent.SetKeyAt(index, newSep)
		if err := t.setParent(node.ValueAt(0), pageID); err != nil {
			return err
		}
	} else {
		sep := parent.KeyAt(siblingIndex)
		newSep := sibling.MoveFirstToEndOf(node, sep)
		parent.SetKeyAt(siblingIndex, newSep)
		if err := t.setParent(node.ValueAt(node.Size()-1), pageID); err != nil {
			return err
		}
	}
	if err := t.pool.UnpinPage(pageID, true); err != nil {
		return err
	}
	if err := t.pool.UnpinPage(siblingID, true); err != nil {
		return err
	}
	return t.pool.UnpinPage(parentID, true)
}

// afterParentShrink handles a parent whose size just decreased by one
// RemoveAt call: if it's the root it may need AdjustRoot, otherwise it may
// itself need to coalesce or redistribute.
func (t *Tree) afterParentShrink(parentID primitives.PageID, parent *InternalPage) error {
	if parentID == t.rootPageID {
		if err := t.pool.UnpinPage(parentID, true); err != nil {
			return err
		}
		return t.adjustRoot(parentID)
	}
	if parent.Size() >= parent.MinSize() {
		return t.pool.UnpinPage(parentID, true)
	}
	return t.coalesceOrRedistributeInternal(parentID, parent)
}

// adjustRoot collapses a root that has shrunk below useful size: an empty
// leaf root clears the tree; an internal root with one remaining child
// promotes that child to root.
func (t *Tree) adjustRoot(rootID primitives.PageID) error {
	frame, err := t.pool.FetchPage(rootID)
	if err != nil {
		return err
	}

	if PageKindOf(frame.Data()) == LeafKind {
		leaf := WrapLeaf(frame.Data(), t.keyType)
		if leaf.Size() > 0 {
			return t.pool.UnpinPage(rootID, false)
		}
		if err := t.pool.UnpinPage(rootID, false); err != nil {
			return err
		}
		if _, err := t.pool.DeletePage(rootID); err != nil {
			return err
		}
		t.rootPageID = primitives.InvalidPageID
		return saveRootToHeader(t.pool, t.name, t.rootPageID)
	}

	internal := WrapInternal(frame.Data(), t.keyType)
	if internal.Size() > 1 {
		return t.pool.UnpinPage(rootID, false)
	}
	onlyChild := internal.ValueAt(0)
	if err := t.pool.UnpinPage(rootID, false); err != nil {
		return err
	}
	if _, err := t.pool.DeletePage(rootID); err != nil {
		return err
	}
	if err := t.setParent(onlyChild, primitives.InvalidPageID); err != nil {
		return err
	}
	t.rootPageID = onlyChild
	return saveRootToHeader(t.pool, t.name, t.rootPageID)
}
