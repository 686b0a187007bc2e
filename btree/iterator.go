package btree

import (
	"fmt"

	"github.com/darnuria/pagekv/codec"
)

// Bound is one end of a key range. A nil *Bound is unbounded.
type Bound struct {
	key       []byte
	inclusive bool
}

// Included bounds a range at key, key itself inside the range.
func Included(key []byte) *Bound { return &Bound{key: key, inclusive: true} }

// Excluded bounds a range at key, key itself outside the range.
func Excluded(key []byte) *Bound { return &Bound{key: key} }

// Entry is one key-value pair yielded by a cursor. Key and Value are
// sub-slices of the backing page's payload, shared without copying; they
// stay valid for the lifetime of the issuing handle.
type Entry struct {
	Key   []byte
	Value []byte
}

type fetchFunc func(PageNumber) (*node, error)

// Cursor is a bidirectional iterator over a key range. Every step seeks
// the first (or last) entry inside the remaining bounds and then shrinks
// that bound past the returned key, so Next and NextBack can be mixed
// freely and meet in the middle without skipping or double-visiting.
type Cursor struct {
	fetch  fetchFunc
	root   PageNumber
	cmp    codec.Compare
	lo, hi *Bound
	done   bool
}

// Next returns the smallest remaining entry, or nil when exhausted.
func (c *Cursor) Next() (*Entry, error) {
	if c.done || c.root == 0 {
		c.done = true
		return nil, nil
	}
	e, err := seekEdge(c.fetch, c.root, c.cmp, c.lo, c.hi, false)
	if err != nil {
		return nil, err
	}
	if e == nil {
		c.done = true
		return nil, nil
	}
	c.lo = Excluded(e.Key)
	return e, nil
}

// NextBack returns the largest remaining entry, or nil when exhausted.
func (c *Cursor) NextBack() (*Entry, error) {
	if c.done || c.root == 0 {
		c.done = true
		return nil, nil
	}
	e, err := seekEdge(c.fetch, c.root, c.cmp, c.lo, c.hi, true)
	if err != nil {
		return nil, err
	}
	if e == nil {
		c.done = true
		return nil, nil
	}
	c.hi = Excluded(e.Key)
	return e, nil
}

func withinLower(key []byte, lo *Bound, cmp codec.Compare) bool {
	if lo == nil {
		return true
	}
	c := cmp(key, lo.key)
	return c > 0 || (c == 0 && lo.inclusive)
}

func withinUpper(key []byte, hi *Bound, cmp codec.Compare) bool {
	if hi == nil {
		return true
	}
	c := cmp(key, hi.key)
	return c < 0 || (c == 0 && hi.inclusive)
}

// firstAtLeast returns the first index whose key satisfies the lower
// bound, or len(keys).
func firstAtLeast(keys [][]byte, lo *Bound, cmp codec.Compare) int {
	i, hi := 0, len(keys)
	for i < hi {
		mid := i + (hi-i)/2
		if withinLower(keys[mid], lo, cmp) {
			hi = mid
		} else {
			i = mid + 1
		}
	}
	return i
}

// lastAtMost returns the last index whose key satisfies the upper bound,
// or -1.
func lastAtMost(keys [][]byte, hi *Bound, cmp codec.Compare) int {
	i, top := 0, len(keys)
	for i < top {
		mid := i + (top-i)/2
		if withinUpper(keys[mid], hi, cmp) {
			i = mid + 1
		} else {
			top = mid
		}
	}
	return i - 1
}

// seekEdge descends to the smallest (or, with last set, the largest)
// entry inside the bounds, or nil when the range is empty.
func seekEdge(fetch fetchFunc, pageID PageNumber, cmp codec.Compare, lo, hi *Bound, last bool) (*Entry, error) {
	n, err := fetch(pageID)
	if err != nil {
		return nil, err
	}

	if n.typ == nodeLeaf {
		if !last {
			idx := firstAtLeast(n.keys, lo, cmp)
			if idx >= len(n.keys) || !withinUpper(n.keys[idx], hi, cmp) {
				return nil, nil
			}
			return &Entry{Key: n.keys[idx], Value: n.vals[idx]}, nil
		}
		idx := lastAtMost(n.keys, hi, cmp)
		if idx < 0 || !withinLower(n.keys[idx], lo, cmp) {
			return nil, nil
		}
		return &Entry{Key: n.keys[idx], Value: n.vals[idx]}, nil
	}

	if !last {
		start := 0
		if lo != nil {
			start = childIndex(n.keys, lo.key, cmp)
		}
		for i := start; i < len(n.children); i++ {
			e, err := seekEdge(fetch, n.children[i].page, cmp, lo, hi, false)
			if err != nil {
				return nil, err
			}
			if e != nil {
				return e, nil
			}
			// The separator right of subtree i is the minimum of every
			// key further to the right; once it crosses the upper bound
			// nothing later can qualify.
			if i < len(n.keys) && !withinUpper(n.keys[i], hi, cmp) {
				return nil, nil
			}
		}
		return nil, nil
	}

	start := len(n.children) - 1
	if hi != nil {
		start = childIndex(n.keys, hi.key, cmp)
	}
	for i := start; i >= 0; i-- {
		e, err := seekEdge(fetch, n.children[i].page, cmp, lo, hi, true)
		if err != nil {
			return nil, err
		}
		if e != nil {
			return e, nil
		}
		// Keys left of separator i-1 are strictly below it; once the
		// separator falls at or under the lower bound, nothing earlier
		// can qualify.
		if i > 0 && lo != nil && cmp(n.keys[i-1], lo.key) <= 0 {
			return nil, nil
		}
	}
	return nil, nil
}

// DrainCursor yields entries like Cursor but removes each produced entry
// from the tree at the moment it is produced. Stopping after k of n
// matching entries leaves exactly the remaining n-k in the tree, and
// consuming from the back removes from the back.
type DrainCursor struct {
	tree   *BtreeMut
	lo, hi *Bound
	done   bool
}

// Next removes and returns the smallest remaining entry in the range.
func (d *DrainCursor) Next() (*Entry, error) {
	return d.step(false)
}

// NextBack removes and returns the largest remaining entry in the range.
func (d *DrainCursor) NextBack() (*Entry, error) {
	return d.step(true)
}

func (d *DrainCursor) step(back bool) (*Entry, error) {
	if d.done || d.tree.rootPage == 0 {
		d.done = true
		return nil, nil
	}
	e, err := seekEdge(d.tree.readNode, d.tree.rootPage, d.tree.cmp, d.lo, d.hi, back)
	if err != nil {
		return nil, err
	}
	if e == nil {
		d.done = true
		return nil, nil
	}
	// The removal is the side effect of producing this entry. The entry's
	// page moves to the freed set but its buffer stays live, so the
	// returned slices remain readable.
	if _, found, err := d.tree.Remove(e.Key); err != nil {
		return nil, err
	} else if !found {
		return nil, fmt.Errorf("drain lost entry for key %q", e.Key)
	}
	if back {
		d.hi = Excluded(e.Key)
	} else {
		d.lo = Excluded(e.Key)
	}
	return e, nil
}
