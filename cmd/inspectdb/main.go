// Inspect a B-tree page file: print every level of the tree rooted at
// the given page number.
// Usage: go run ./cmd/inspectdb <path-to-db-file> <root-page>
// Example: go run ./cmd/inspectdb data/store.db 7
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/darnuria/pagekv/btree"
	"github.com/darnuria/pagekv/pager"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <db-file> <root-page>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s data/store.db 7\n", os.Args[0])
		os.Exit(1)
	}
	path := os.Args[1]
	rootPage, err := strconv.ParseUint(os.Args[2], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid root page %q: %v\n", os.Args[2], err)
		os.Exit(1)
	}

	p, err := pager.NewOnDiskPager(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	store, err := pager.NewStore(p)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := btree.Dump(store, pager.PageNumber(rootPage), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
