package btree

import (
	"encoding/binary"

	"storemy/pkg/dberrors"
	"storemy/pkg/primitives"
	"storemy/pkg/buffer/pool"
)

// readHeaderTable decodes the header page's packed
// {index_name_len, index_name_bytes, root_page_id} records (spec.md §6) into
// a name -> root page id map. Decoding stops at the first record whose
// length prefix is zero (an uninitialized, never-written slot).
func readHeaderTable(data []byte) map[string]primitives.PageID {
	table := make(map[string]primitives.PageID)
	off := 0
	for off+4 <= len(data) {
		nameLen := int(int32(binary.LittleEndian.Uint32(data[off : off+4])))
		if nameLen <= 0 {
			break
		}
		off += 4
		if off+nameLen+4 > len(data) {
			break
		}
		name := string(data[off : off+nameLen])
		off += nameLen
		root := primitives.PageID(int32(binary.LittleEndian.Uint32(data[off : off+4])))
		off += 4
		table[name] = root
	}
	return table
}

// writeHeaderTable packs table back into data in Go map iteration order,
// which can differ from one call to the next, zeroing the remainder of the page so the next read stops cleanly.
func writeHeaderTable(data []byte, table map[string]primitives.PageID) error {
	for i := range data {
		data[i] = 0
	}
	off := 0
	for name, root := range table {
		need := 4 + len(name) + 4
		if off+need > len(data) {
			return dberrors.New(dberrors.OutOfMemory, "header page out of space for index table")
		}
		binary.LittleEndian.PutUint32(data[off:off+4], uint32(len(name)))
		off += 4
		copy(data[off:off+len(name)], name)
		off += len(name)
		binary.LittleEndian.PutUint32(data[off:off+4], uint32(int32(root)))
		off += 4
	}
	return nil
}

// loadRootFromHeader looks up name's root page id, allocating and
// initializing the header page itself on first use.
func loadRootFromHeader(p *pool.Manager, name string) (primitives.PageID, error) {
	frame, err := p.FetchPage(primitives.HeaderPageID)
	if err != nil {
		nf, nerr := p.NewPage()
		if nerr != nil {
			return primitives.InvalidPageID, nerr
		}
		if nf.PageID() != primitives.HeaderPageID {
			_ = p.UnpinPage(nf.PageID(), false)
			return primitives.InvalidPageID, dberrors.New(dberrors.IO, "first allocated page was not the header page")
		}
		if err := writeHeaderTable(nf.Data(), map[string]primitives.PageID{}); err != nil {
			_ = p.UnpinPage(nf.PageID(), false)
			return primitives.InvalidPageID, err
		}
		if err := p.UnpinPage(nf.PageID(), true); err != nil {
			return primitives.InvalidPageID, err
		}
		return primitives.InvalidPageID, nil
	}
	defer func() { _ = p.UnpinPage(frame.PageID(), false) }()

	table := readHeaderTable(frame.Data())
	root, ok := table[name]
	if !ok {
		return primitives.InvalidPageID, nil
	}
	return root, nil
}

// saveRootToHeader records name's current root page id on the header page.
func saveRootToHeader(p *pool.Manager, name string, root primitives.PageID) error {
	frame, err := p.FetchPage(primitives.HeaderPageID)
	if err != nil {
		return err
	}

	table := readHeaderTable(frame.Data())
	table[name] = root
	if err := writeHeaderTable(frame.Data(), table); err != nil {
		_ = p.UnpinPage(frame.PageID(), false)
		return err
	}
	return p.UnpinPage(frame.PageID(), true)
}
