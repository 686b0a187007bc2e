// Package btree implements the transactional copy-on-write B-tree the
// table layer runs on: an immutable read tree over a root snapshot, a
// mutating tree that never overwrites a live page, and bidirectional
// range/drain cursors yielding zero-copy entries.
package btree

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/darnuria/pagekv/pager"
)

type (
	PageNumber = pager.PageNumber
	Checksum   = pager.Checksum
)

// RootPointer identifies a snapshot of a tree: the root page plus the
// integrity checksum of its content. It is the sole handle needed to
// open a tree for reading. A nil *RootPointer is a logically empty tree
// with no allocated pages.
type RootPointer struct {
	Page     PageNumber
	Checksum Checksum
}

type nodeType uint8

const (
	nodeLeaf nodeType = iota
	nodeInternal
)

const (
	MaxKeys = 32
	MinKeys = MaxKeys / 2

	MaxKeyLen = 256  // in bytes
	MaxValLen = 3072 // in bytes; one entry must always fit a leaf alone

	// type(1) + numKeys(2)
	nodeHeaderSize = 3
	// page(8) + entryCount(8) per child reference
	childRefSize = 16
)

var (
	ErrKeyTooLarge   = errors.New("key exceeds maximum length")
	ErrValueTooLarge = errors.New("value exceeds maximum length")
)

// childRef points an internal node at one subtree. The entry count is
// cached here so Len never has to traverse.
type childRef struct {
	page  PageNumber
	count uint64
}

// node is the decoded form of one page. Leaf nodes hold sorted key/value
// pairs; internal nodes hold separator keys and children, where each
// separator is the smallest key of the subtree to its right.
type node struct {
	typ      nodeType
	keys     [][]byte
	vals     [][]byte   // leaf only
	children []childRef // internal only
}

func (n *node) entryCount() uint64 {
	if n.typ == nodeLeaf {
		return uint64(len(n.keys))
	}
	var total uint64
	for _, c := range n.children {
		total += c.count
	}
	return total
}

func (n *node) encodedSize() int {
	size := nodeHeaderSize
	for _, k := range n.keys {
		size += 2 + len(k)
	}
	if n.typ == nodeLeaf {
		for _, v := range n.vals {
			size += 4 + len(v)
		}
	} else {
		size += len(n.children) * childRefSize
	}
	return size
}

// overflows reports whether the node must split before being written.
func (n *node) overflows() bool {
	return len(n.keys) > MaxKeys || n.encodedSize() > pager.PayloadSize
}

// encodeNode serializes a node into a page payload.
// Format (little-endian, adapted from the row-index page codec):
//   - header: nodeType(1), numKeys(2)
//   - keys: keyLen(2) + key bytes, for every key
//   - leaf: valLen(4) + value bytes, for every value
//   - internal: page(8) + entryCount(8), for numKeys+1 children
func encodeNode(n *node) ([]byte, error) {
	size := n.encodedSize()
	if size > pager.PayloadSize {
		return nil, fmt.Errorf("node overflows page: %d bytes (max %d)", size, pager.PayloadSize)
	}
	if n.typ == nodeInternal && len(n.children) != len(n.keys)+1 {
		return nil, fmt.Errorf("internal node has %d children for %d keys", len(n.children), len(n.keys))
	}

	payload := make([]byte, size)
	payload[0] = byte(n.typ)
	binary.LittleEndian.PutUint16(payload[1:], uint16(len(n.keys)))
	offset := nodeHeaderSize

	for i, key := range n.keys {
		if len(key) > MaxKeyLen {
			return nil, fmt.Errorf("key %d is %d bytes: %w", i, len(key), ErrKeyTooLarge)
		}
		binary.LittleEndian.PutUint16(payload[offset:], uint16(len(key)))
		offset += 2
		copy(payload[offset:], key)
		offset += len(key)
	}

	if n.typ == nodeLeaf {
		for i, val := range n.vals {
			if len(val) > MaxValLen {
				return nil, fmt.Errorf("value %d is %d bytes: %w", i, len(val), ErrValueTooLarge)
			}
			binary.LittleEndian.PutUint32(payload[offset:], uint32(len(val)))
			offset += 4
			copy(payload[offset:], val)
			offset += len(val)
		}
	} else {
		for _, c := range n.children {
			binary.LittleEndian.PutUint64(payload[offset:], uint64(c.page))
			binary.LittleEndian.PutUint64(payload[offset+8:], c.count)
			offset += childRefSize
		}
	}

	return payload, nil
}

// decodeNode deserializes a node from a page payload. Keys and values
// are sub-slices of the payload, not copies: pages are immutable under
// copy-on-write, so the slices stay valid for the payload's lifetime.
func decodeNode(payload []byte) (*node, error) {
	if len(payload) < nodeHeaderSize {
		return nil, fmt.Errorf("payload too short for node header: %w", pager.ErrCorruptedPage)
	}

	n := &node{typ: nodeType(payload[0])}
	if n.typ != nodeLeaf && n.typ != nodeInternal {
		return nil, fmt.Errorf("unknown node type %d: %w", payload[0], pager.ErrCorruptedPage)
	}
	numKeys := int(binary.LittleEndian.Uint16(payload[1:]))
	offset := nodeHeaderSize

	n.keys = make([][]byte, 0, numKeys)
	for i := 0; i < numKeys; i++ {
		if offset+2 > len(payload) {
			return nil, fmt.Errorf("page overflow while reading key %d length: %w", i, pager.ErrCorruptedPage)
		}
		keyLen := int(binary.LittleEndian.Uint16(payload[offset:]))
		offset += 2
		if keyLen > MaxKeyLen || offset+keyLen > len(payload) {
			return nil, fmt.Errorf("page overflow while reading key %d data: %w", i, pager.ErrCorruptedPage)
		}
		n.keys = append(n.keys, payload[offset:offset+keyLen])
		offset += keyLen
	}

	if n.typ == nodeLeaf {
		n.vals = make([][]byte, 0, numKeys)
		for i := 0; i < numKeys; i++ {
			if offset+4 > len(payload) {
				return nil, fmt.Errorf("page overflow while reading value %d length: %w", i, pager.ErrCorruptedPage)
			}
			valLen := int(binary.LittleEndian.Uint32(payload[offset:]))
			offset += 4
			if valLen > MaxValLen || offset+valLen > len(payload) {
				return nil, fmt.Errorf("page overflow while reading value %d data: %w", i, pager.ErrCorruptedPage)
			}
			n.vals = append(n.vals, payload[offset:offset+valLen])
			offset += valLen
		}
	} else {
		n.children = make([]childRef, 0, numKeys+1)
		for i := 0; i <= numKeys; i++ {
			if offset+childRefSize > len(payload) {
				return nil, fmt.Errorf("page overflow while reading child %d: %w", i, pager.ErrCorruptedPage)
			}
			n.children = append(n.children, childRef{
				page:  PageNumber(binary.LittleEndian.Uint64(payload[offset:])),
				count: binary.LittleEndian.Uint64(payload[offset+8:]),
			})
			offset += childRefSize
		}
		if len(n.children) > 0 {
			for _, c := range n.children {
				if c.page == 0 {
					return nil, fmt.Errorf("internal node references page 0: %w", pager.ErrCorruptedPage)
				}
			}
		}
	}

	return n, nil
}

// leafValueRange walks a leaf payload and returns the byte range of the
// value at the given slot. Used to hand out a mutable window into a
// reserved entry's bytes within its live dirty buffer.
func leafValueRange(payload []byte, idx int) (int, int, error) {
	n, err := decodeNode(payload)
	if err != nil {
		return 0, 0, err
	}
	if n.typ != nodeLeaf || idx >= len(n.vals) {
		return 0, 0, fmt.Errorf("no value slot %d in leaf", idx)
	}

	offset := nodeHeaderSize
	for _, k := range n.keys {
		offset += 2 + len(k)
	}
	for i := 0; i < idx; i++ {
		offset += 4 + len(n.vals[i])
	}
	start := offset + 4
	return start, start + len(n.vals[idx]), nil
}

// writeNode serializes a node to a freshly allocated page and stages it
// in the store. Every rewritten node goes through here: new page always,
// never an overwrite.
func writeNode(store *pager.Store, n *node) (PageNumber, error) {
	payload, err := encodeNode(n)
	if err != nil {
		return 0, err
	}
	pageID, err := store.Allocate()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate node page: %w", err)
	}
	if err := store.Write(pageID, payload); err != nil {
		return 0, fmt.Errorf("failed to write node page %d: %w", pageID, err)
	}
	return pageID, nil
}
