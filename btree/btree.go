package btree

import (
	"fmt"
	"io"

	"github.com/darnuria/pagekv/codec"
	"github.com/darnuria/pagekv/pager"
)

// Btree is an immutable traversal over a fixed root snapshot. Any number
// of Btrees may share a root concurrently with a live writer: the writer
// only ever creates new pages, so snapshot reads are never invalidated.
type Btree struct {
	store    *pager.Store
	root     *RootPointer
	hint     pager.CacheHint
	cmp      codec.Compare
	verified bool
}

// New opens a read tree over the given root snapshot. A nil root is the
// empty tree. The root page's checksum is verified against the pointer
// on first fetch.
func New(root *RootPointer, hint pager.CacheHint, store *pager.Store, cmp codec.Compare) *Btree {
	return &Btree{store: store, root: root, hint: hint, cmp: cmp}
}

func (t *Btree) readNode(pageID PageNumber) (*node, error) {
	payload, sum, err := t.store.Read(pageID, t.hint)
	if err != nil {
		return nil, err
	}
	if !t.verified && t.root != nil && pageID == t.root.Page {
		if sum != t.root.Checksum {
			return nil, fmt.Errorf("root page %d does not match root pointer checksum: %w",
				pageID, pager.ErrCorruptedPage)
		}
		t.verified = true
	}
	return decodeNode(payload)
}

// Get returns the value stored under key, or found=false. The returned
// slice borrows directly from the backing page.
func (t *Btree) Get(key []byte) ([]byte, bool, error) {
	if t.root == nil {
		return nil, false, nil
	}
	return lookup(t.readNode, t.root.Page, key, t.cmp)
}

// Len returns the exact number of entries in the tree, from the entry
// counts cached in the root.
func (t *Btree) Len() (uint64, error) {
	if t.root == nil {
		return 0, nil
	}
	n, err := t.readNode(t.root.Page)
	if err != nil {
		return 0, err
	}
	return n.entryCount(), nil
}

// Range returns a bidirectional cursor over keys within the bounds.
// A nil bound is unbounded on that side.
func (t *Btree) Range(lo, hi *Bound) *Cursor {
	var root PageNumber
	if t.root != nil {
		root = t.root.Page
	}
	return &Cursor{fetch: t.readNode, root: root, cmp: t.cmp, lo: lo, hi: hi}
}

// Dump writes a human-readable structural description of the tree.
func (t *Btree) Dump(w io.Writer) error {
	var root PageNumber
	if t.root != nil {
		root = t.root.Page
	}
	return Dump(t.store, root, w)
}

// lookup is the comparator-guided descent shared by both tree kinds.
func lookup(fetch fetchFunc, pageID PageNumber, key []byte, cmp codec.Compare) ([]byte, bool, error) {
	for {
		n, err := fetch(pageID)
		if err != nil {
			return nil, false, err
		}
		if n.typ == nodeLeaf {
			idx, found := findKey(n.keys, key, cmp)
			if !found {
				return nil, false, nil
			}
			return n.vals[idx], true, nil
		}
		pageID = n.children[childIndex(n.keys, key, cmp)].page
	}
}
