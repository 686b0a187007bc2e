package btree

import (
	"fmt"
	"io"

	"github.com/darnuria/pagekv/pager"
)

// Dump writes a human-readable BFS dump of the tree rooted at root:
// one line per node with its keys and, for leaves, value lengths.
// Diagnostic only; the output format carries no compatibility promise.
func Dump(store *pager.Store, root PageNumber, w io.Writer) error {
	p := func(format string, args ...any) { fmt.Fprintf(w, format, args...) }

	if root == 0 {
		fmt.Fprintln(w, "(empty tree)")
		return nil
	}

	queue := []PageNumber{root}
	level := 0
	for len(queue) > 0 {
		size := len(queue)
		p("Level %d:\n", level)
		for i := 0; i < size; i++ {
			pageID := queue[i]
			payload, _, err := store.Read(pageID, pager.CacheNone)
			if err != nil {
				p("  [page %d] read error: %v\n", pageID, err)
				continue
			}
			n, err := decodeNode(payload)
			if err != nil {
				p("  [page %d] decode error: %v\n", pageID, err)
				continue
			}

			if n.typ == nodeInternal {
				p("  [page %d] INTERNAL entries=%d seps=[", pageID, n.entryCount())
				for j, k := range n.keys {
					if j > 0 {
						p(" ")
					}
					p("%s", formatKey(k))
				}
				p("] children=[")
				for j, c := range n.children {
					if j > 0 {
						p(" ")
					}
					p("%d(%d)", c.page, c.count)
					queue = append(queue, c.page)
				}
				p("]\n")
			} else {
				p("  [page %d] LEAF entries=%d\n", pageID, len(n.keys))
				for j, k := range n.keys {
					p("    %s -> %d bytes\n", formatKey(k), len(n.vals[j]))
				}
			}
		}
		p("  ---\n")
		queue = queue[size:]
		level++
	}
	return nil
}

// formatKey shows key bytes: 8-byte keys as big-endian integers, short
// printable keys quoted, everything else as hex.
func formatKey(b []byte) string {
	if len(b) == 8 {
		var v uint64
		for _, c := range b {
			v = v<<8 | uint64(c)
		}
		return fmt.Sprintf("%d", v)
	}
	printable := true
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			printable = false
			break
		}
	}
	if printable && len(b) <= 32 {
		return fmt.Sprintf("%q", string(b))
	}
	return fmt.Sprintf("0x%x", b)
}
