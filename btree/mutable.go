package btree

import (
	"fmt"
	"io"

	"github.com/darnuria/pagekv/codec"
	"github.com/darnuria/pagekv/pager"
)

// FreedPages is the list of pages made unreachable by mutations under a
// single write transaction, pending safe reclamation. It is shared by
// every mutable tree the transaction opens. Single-writer discipline
// makes it unsynchronized: exactly one writer touches it at a time.
type FreedPages struct {
	pages []PageNumber
}

func NewFreedPages() *FreedPages {
	return &FreedPages{}
}

func (f *FreedPages) Add(pages ...PageNumber) {
	f.pages = append(f.pages, pages...)
}

// Pages returns a copy of the freed page list.
func (f *FreedPages) Pages() []PageNumber {
	return append([]PageNumber(nil), f.pages...)
}

func (f *FreedPages) Len() int {
	return len(f.pages)
}

// truncate rolls the list back to a mark taken before a failed
// operation, so nothing freed on the failed path is ever reported.
func (f *FreedPages) truncate(mark int) {
	f.pages = f.pages[:mark]
}

// BtreeMut is the copy-on-write mutation engine. Every node a mutation
// touches is rewritten to a fresh page and the old page joins the freed
// set, so readers holding the pre-mutation root never observe a change.
//
// Callers must guarantee unique access for the duration of every call:
// no other live reference to the same tree root may exist while a
// mutation runs. The table layer backs this with its open-table
// registry; nothing here re-checks it.
type BtreeMut struct {
	store    *pager.Store
	cmp      codec.Compare
	freed    *FreedPages
	rootPage PageNumber // 0 while the tree is empty
	origRoot *RootPointer
	verified bool
}

// NewMut opens a mutable tree over an optional root snapshot, sharing
// the write transaction's freed-page list.
func NewMut(root *RootPointer, store *pager.Store, freed *FreedPages, cmp codec.Compare) *BtreeMut {
	t := &BtreeMut{store: store, cmp: cmp, freed: freed, origRoot: root}
	if root != nil {
		t.rootPage = root.Page
	}
	return t
}

func (t *BtreeMut) readNode(pageID PageNumber) (*node, error) {
	payload, sum, err := t.store.Read(pageID, pager.CacheClean)
	if err != nil {
		return nil, err
	}
	if !t.verified && t.origRoot != nil && pageID == t.origRoot.Page {
		if sum != t.origRoot.Checksum {
			return nil, fmt.Errorf("root page %d does not match root pointer checksum: %w",
				pageID, pager.ErrCorruptedPage)
		}
		t.verified = true
	}
	return decodeNode(payload)
}

// RootPointer returns the tree's current root snapshot, or nil when the
// tree is empty. The checksum reflects the page content at call time, so
// any reserved values must be filled before the pointer is taken.
func (t *BtreeMut) RootPointer() (*RootPointer, error) {
	if t.rootPage == 0 {
		return nil, nil
	}
	sum, err := t.store.PageChecksum(t.rootPage)
	if err != nil {
		return nil, err
	}
	return &RootPointer{Page: t.rootPage, Checksum: sum}, nil
}

// Get returns the value stored under key, borrowing from the backing page.
func (t *BtreeMut) Get(key []byte) ([]byte, bool, error) {
	if t.rootPage == 0 {
		return nil, false, nil
	}
	return lookup(t.readNode, t.rootPage, key, t.cmp)
}

// Len returns the exact number of entries in the tree.
func (t *BtreeMut) Len() (uint64, error) {
	if t.rootPage == 0 {
		return 0, nil
	}
	n, err := t.readNode(t.rootPage)
	if err != nil {
		return 0, err
	}
	return n.entryCount(), nil
}

// Range returns a bidirectional cursor over the tree as it stands now.
// The tree must not be mutated while the cursor is in use.
func (t *BtreeMut) Range(lo, hi *Bound) *Cursor {
	return &Cursor{fetch: t.readNode, root: t.rootPage, cmp: t.cmp, lo: lo, hi: hi}
}

// Drain returns a cursor that removes every entry it produces, in
// whichever order the caller consumes it.
func (t *BtreeMut) Drain(lo, hi *Bound) *DrainCursor {
	return &DrainCursor{tree: t, lo: lo, hi: hi}
}

// Dump writes a human-readable structural description of the tree.
func (t *BtreeMut) Dump(w io.Writer) error {
	return Dump(t.store, t.rootPage, w)
}

// Insert maps key to value. If the key was present the old value is
// returned, borrowing from the page that held it. A failed insert leaves
// the tree, and the freed set, exactly as they were.
func (t *BtreeMut) Insert(key, value []byte) ([]byte, bool, error) {
	if len(key) > MaxKeyLen {
		return nil, false, fmt.Errorf("key is %d bytes: %w", len(key), ErrKeyTooLarge)
	}
	if len(value) > MaxValLen {
		return nil, false, fmt.Errorf("value is %d bytes: %w", len(value), ErrValueTooLarge)
	}

	mark := t.freed.Len()
	alloc := t.store.AllocationMark()
	old, replaced, _, _, err := t.insertRoot(key, value)
	if err != nil {
		t.freed.truncate(mark)
		t.store.ReleaseAllocations(alloc)
		return nil, false, err
	}
	return old, replaced, nil
}

// InsertReserve inserts key mapped to length uninitialized bytes and
// returns a mutable guard over that range for the caller to fill in
// place. The entry is logically present as soon as this call returns.
func (t *BtreeMut) InsertReserve(key []byte, length int) (*AccessGuardMut, error) {
	if len(key) > MaxKeyLen {
		return nil, fmt.Errorf("key is %d bytes: %w", len(key), ErrKeyTooLarge)
	}
	if length > MaxValLen {
		return nil, fmt.Errorf("value is %d bytes: %w", length, ErrValueTooLarge)
	}

	mark := t.freed.Len()
	alloc := t.store.AllocationMark()
	_, _, leafPage, leafIdx, err := t.insertRoot(key, make([]byte, length))
	if err != nil {
		t.freed.truncate(mark)
		t.store.ReleaseAllocations(alloc)
		return nil, err
	}

	buf, ok := t.store.DirtyPage(leafPage)
	if !ok {
		return nil, fmt.Errorf("reserved leaf page %d is not staged", leafPage)
	}
	start, end, err := leafValueRange(buf, leafIdx)
	if err != nil {
		return nil, err
	}
	return &AccessGuardMut{buf: buf[start:end]}, nil
}

// insertRoot runs the descent and absorbs a root split or a first-entry
// root. It reports the leaf page and slot that ended up holding the key.
func (t *BtreeMut) insertRoot(key, value []byte) (old []byte, replaced bool, leafPage PageNumber, leafIdx int, err error) {
	if t.rootPage == 0 {
		leaf := &node{typ: nodeLeaf, keys: [][]byte{key}, vals: [][]byte{value}}
		pageID, err := writeNode(t.store, leaf)
		if err != nil {
			return nil, false, 0, 0, err
		}
		t.rootPage = pageID
		return nil, false, pageID, 0, nil
	}

	r, err := t.insertAt(t.rootPage, key, value)
	if err != nil {
		return nil, false, 0, 0, err
	}
	if r.split == nil {
		t.rootPage = r.page
		return r.old, r.replaced, r.leafPage, r.leafIdx, nil
	}

	root := &node{
		typ:  nodeInternal,
		keys: [][]byte{r.split.sep},
		children: []childRef{
			{page: r.page, count: r.count},
			{page: r.split.page, count: r.split.count},
		},
	}
	pageID, err := writeNode(t.store, root)
	if err != nil {
		return nil, false, 0, 0, err
	}
	t.rootPage = pageID
	return r.old, r.replaced, r.leafPage, r.leafIdx, nil
}

// splitRef carries a freshly split-off right node up to the parent,
// promoted separator first.
type splitRef struct {
	sep   []byte
	page  PageNumber
	count uint64
}

type insertResult struct {
	page     PageNumber // replacement page for the visited node
	count    uint64     // entry count of the rewritten subtree
	split    *splitRef
	old      []byte
	replaced bool
	leafPage PageNumber // page now holding the inserted key
	leafIdx  int
}

func (t *BtreeMut) insertAt(pageID PageNumber, key, value []byte) (insertResult, error) {
	n, err := t.readNode(pageID)
	if err != nil {
		return insertResult{}, err
	}

	if n.typ == nodeLeaf {
		idx, found := findKey(n.keys, key, t.cmp)
		var old []byte
		if found {
			old = n.vals[idx]
			n.vals[idx] = value
		} else {
			n.keys = insertSlice(n.keys, idx, key)
			n.vals = insertSlice(n.vals, idx, value)
		}
		t.freed.Add(pageID)

		if !n.overflows() {
			newPage, err := writeNode(t.store, n)
			if err != nil {
				return insertResult{}, err
			}
			return insertResult{
				page: newPage, count: uint64(len(n.keys)),
				old: old, replaced: found,
				leafPage: newPage, leafIdx: idx,
			}, nil
		}

		// Leaf split: the right half's first key is promoted as the
		// separator, staying present in the right leaf.
		mid := len(n.keys) / 2
		left := &node{typ: nodeLeaf, keys: n.keys[:mid], vals: n.vals[:mid]}
		right := &node{typ: nodeLeaf, keys: n.keys[mid:], vals: n.vals[mid:]}
		leftPage, err := writeNode(t.store, left)
		if err != nil {
			return insertResult{}, err
		}
		rightPage, err := writeNode(t.store, right)
		if err != nil {
			return insertResult{}, err
		}
		res := insertResult{
			page: leftPage, count: uint64(len(left.keys)),
			old: old, replaced: found,
			split: &splitRef{sep: right.keys[0], page: rightPage, count: uint64(len(right.keys))},
		}
		if idx < mid {
			res.leafPage, res.leafIdx = leftPage, idx
		} else {
			res.leafPage, res.leafIdx = rightPage, idx-mid
		}
		return res, nil
	}

	ci := childIndex(n.keys, key, t.cmp)
	r, err := t.insertAt(n.children[ci].page, key, value)
	if err != nil {
		return insertResult{}, err
	}
	n.children[ci] = childRef{page: r.page, count: r.count}
	if r.split != nil {
		n.keys = insertSlice(n.keys, ci, r.split.sep)
		n.children = insertSlice(n.children, ci+1, childRef{page: r.split.page, count: r.split.count})
	}
	t.freed.Add(pageID)

	if !n.overflows() {
		newPage, err := writeNode(t.store, n)
		if err != nil {
			return insertResult{}, err
		}
		return insertResult{
			page: newPage, count: n.entryCount(),
			old: r.old, replaced: r.replaced,
			leafPage: r.leafPage, leafIdx: r.leafIdx,
		}, nil
	}

	// Internal split: the median separator moves up, it does not stay in
	// either half.
	mid := len(n.keys) / 2
	promote := n.keys[mid]
	left := &node{typ: nodeInternal, keys: n.keys[:mid], children: n.children[:mid+1]}
	right := &node{typ: nodeInternal, keys: n.keys[mid+1:], children: n.children[mid+1:]}
	leftPage, err := writeNode(t.store, left)
	if err != nil {
		return insertResult{}, err
	}
	rightPage, err := writeNode(t.store, right)
	if err != nil {
		return insertResult{}, err
	}
	return insertResult{
		page: leftPage, count: left.entryCount(),
		old: r.old, replaced: r.replaced,
		split: &splitRef{sep: promote, page: rightPage, count: right.entryCount()},
		leafPage: r.leafPage, leafIdx: r.leafIdx,
	}, nil
}
