// Package pager provides fixed-size block storage for the B-tree engine:
// the Pager interface over raw 4KB pages, a file-backed and an in-memory
// implementation, and Store, which layers checksums, a write-back dirty
// set and a clean-page read cache on top of a Pager.
package pager

const (
	// PageSize is the fixed size of every on-disk page in bytes.
	PageSize = 4096

	// pageHeaderSize holds the page's xxhash64 self-checksum.
	pageHeaderSize = 8

	// PayloadSize is the usable space per page after the checksum header.
	PayloadSize = PageSize - pageHeaderSize
)

// PageNumber identifies a fixed-size block in the store. Page 0 is
// reserved for file metadata and doubles as the "no page" sentinel.
type PageNumber uint64

// Checksum is the xxhash64 digest of a page's payload. Checksums are
// opaque and comparable for equality only.
type Checksum uint64

// Pager is the persistence abstraction: raw page I/O by page number.
type Pager interface {
	ReadPage(pageID PageNumber) ([]byte, error)
	WritePage(pageID PageNumber, data []byte) error
	AllocatePage() (PageNumber, error)
	DeallocatePage(pageID PageNumber) error
	Sync() error
	Close() error
}

// CacheHint tells Store whether pages fetched for a read snapshot should
// populate the clean-page cache.
type CacheHint int

const (
	// CacheClean caches pages read from the pager for reuse by later reads.
	CacheClean CacheHint = iota
	// CacheNone bypasses the cache, for one-shot scans.
	CacheNone
)
