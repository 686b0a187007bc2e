package btree

type removeResult struct {
	page      PageNumber // replacement page, or the original when untouched
	count     uint64
	old       []byte
	found     bool
	underflow bool
}

// Remove deletes key from the tree, rebalancing underflowed nodes by
// borrowing from or merging with a sibling and collapsing the root when
// it is left with a single child. The removed value is returned
// borrowing from the page that held it. Removing an absent key rewrites
// nothing.
func (t *BtreeMut) Remove(key []byte) ([]byte, bool, error) {
	if t.rootPage == 0 {
		return nil, false, nil
	}

	mark := t.freed.Len()
	alloc := t.store.AllocationMark()
	r, err := t.removeAt(t.rootPage, key)
	if err != nil {
		t.freed.truncate(mark)
		t.store.ReleaseAllocations(alloc)
		return nil, false, err
	}
	if !r.found {
		return nil, false, nil
	}
	t.rootPage = r.page

	// Root collapse: an internal root holding a single child is replaced
	// by that child; an empty leaf root empties the tree.
	for t.rootPage != 0 {
		n, err := t.readNode(t.rootPage)
		if err != nil {
			return nil, false, err
		}
		if n.typ == nodeInternal && len(n.children) == 1 {
			t.freed.Add(t.rootPage)
			t.rootPage = n.children[0].page
			continue
		}
		if n.typ == nodeLeaf && len(n.keys) == 0 {
			t.freed.Add(t.rootPage)
			t.rootPage = 0
		}
		break
	}
	return r.old, true, nil
}

func (t *BtreeMut) removeAt(pageID PageNumber, key []byte) (removeResult, error) {
	n, err := t.readNode(pageID)
	if err != nil {
		return removeResult{}, err
	}

	if n.typ == nodeLeaf {
		idx, found := findKey(n.keys, key, t.cmp)
		if !found {
			return removeResult{page: pageID, count: n.entryCount()}, nil
		}
		old := n.vals[idx]
		n.keys = removeSlice(n.keys, idx)
		n.vals = removeSlice(n.vals, idx)
		t.freed.Add(pageID)
		newPage, err := writeNode(t.store, n)
		if err != nil {
			return removeResult{}, err
		}
		return removeResult{
			page: newPage, count: uint64(len(n.keys)),
			old: old, found: true,
			underflow: len(n.keys) < MinKeys,
		}, nil
	}

	ci := childIndex(n.keys, key, t.cmp)
	r, err := t.removeAt(n.children[ci].page, key)
	if err != nil {
		return removeResult{}, err
	}
	if !r.found {
		return removeResult{page: pageID, count: n.entryCount()}, nil
	}
	n.children[ci] = childRef{page: r.page, count: r.count}
	if r.underflow {
		if err := t.rebalance(n, ci); err != nil {
			return removeResult{}, err
		}
	}
	t.freed.Add(pageID)
	newPage, err := writeNode(t.store, n)
	if err != nil {
		return removeResult{}, err
	}
	return removeResult{
		page: newPage, count: n.entryCount(),
		old: r.old, found: true,
		underflow: len(n.keys) < MinKeys,
	}, nil
}

// rebalance restores the occupancy of parent's underflowed child ci:
// borrow one entry from a sibling with spare keys, else merge with a
// sibling. The parent node is updated in memory; the caller rewrites it.
func (t *BtreeMut) rebalance(parent *node, ci int) error {
	child, err := t.readNode(parent.children[ci].page)
	if err != nil {
		return err
	}

	var left, right *node
	if ci > 0 {
		if left, err = t.readNode(parent.children[ci-1].page); err != nil {
			return err
		}
	}
	if ci+1 < len(parent.children) {
		if right, err = t.readNode(parent.children[ci+1].page); err != nil {
			return err
		}
	}

	// Borrow from the left sibling when it has spare keys.
	if left != nil && len(left.keys) > MinKeys {
		if child.typ == nodeLeaf {
			last := len(left.keys) - 1
			child.keys = insertSlice(child.keys, 0, left.keys[last])
			child.vals = insertSlice(child.vals, 0, left.vals[last])
			left.keys = left.keys[:last]
			left.vals = left.vals[:last]
			// The separator is always the child's smallest key.
			parent.keys[ci-1] = child.keys[0]
		} else {
			last := len(left.keys) - 1
			child.keys = insertSlice(child.keys, 0, parent.keys[ci-1])
			child.children = insertSlice(child.children, 0, left.children[len(left.children)-1])
			parent.keys[ci-1] = left.keys[last]
			left.keys = left.keys[:last]
			left.children = left.children[:len(left.children)-1]
		}
		return t.rewritePair(parent, ci-1, left, ci, child)
	}

	// Borrow from the right sibling.
	if right != nil && len(right.keys) > MinKeys {
		if child.typ == nodeLeaf {
			child.keys = append(child.keys, right.keys[0])
			child.vals = append(child.vals, right.vals[0])
			right.keys = right.keys[1:]
			right.vals = right.vals[1:]
			parent.keys[ci] = right.keys[0]
		} else {
			child.keys = append(child.keys, parent.keys[ci])
			child.children = append(child.children, right.children[0])
			parent.keys[ci] = right.keys[0]
			right.keys = right.keys[1:]
			right.children = right.children[1:]
		}
		return t.rewritePair(parent, ci, child, ci+1, right)
	}

	// Merge with whichever sibling exists. The root's only child has no
	// siblings; it is left under-occupied, which only the root may be.
	if left != nil {
		return t.merge(parent, ci-1, left, child)
	}
	if right != nil {
		return t.merge(parent, ci, child, right)
	}
	return nil
}

// rewritePair writes two updated siblings to fresh pages and repoints
// the parent at them, freeing the pages they replaced.
func (t *BtreeMut) rewritePair(parent *node, ia int, a *node, ib int, b *node) error {
	t.freed.Add(parent.children[ia].page, parent.children[ib].page)
	pageA, err := writeNode(t.store, a)
	if err != nil {
		return err
	}
	pageB, err := writeNode(t.store, b)
	if err != nil {
		return err
	}
	parent.children[ia] = childRef{page: pageA, count: a.entryCount()}
	parent.children[ib] = childRef{page: pageB, count: b.entryCount()}
	return nil
}

// merge folds parent's children at sepIdx and sepIdx+1 into one node and
// drops the separator between them. A merge that would overflow the page
// byte-wise is skipped, leaving a transiently under-occupied node.
func (t *BtreeMut) merge(parent *node, sepIdx int, a, b *node) error {
	merged := &node{typ: a.typ}
	if a.typ == nodeLeaf {
		merged.keys = append(append([][]byte{}, a.keys...), b.keys...)
		merged.vals = append(append([][]byte{}, a.vals...), b.vals...)
	} else {
		merged.keys = append(append([][]byte{}, a.keys...), parent.keys[sepIdx])
		merged.keys = append(merged.keys, b.keys...)
		merged.children = append(append([]childRef{}, a.children...), b.children...)
	}
	if merged.overflows() {
		return nil
	}

	t.freed.Add(parent.children[sepIdx].page, parent.children[sepIdx+1].page)
	pageID, err := writeNode(t.store, merged)
	if err != nil {
		return err
	}
	parent.keys = removeSlice(parent.keys, sepIdx)
	parent.children = removeSlice(parent.children, sepIdx+1)
	parent.children[sepIdx] = childRef{page: pageID, count: merged.entryCount()}
	return nil
}
