package pager

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"
)

// ErrCorruptedPage is returned when a page's content does not match its
// recorded checksum, or when node structure fails a decode invariant.
var ErrCorruptedPage = errors.New("corrupted page")

const defaultCacheSize = 32 << 20 // 32MB of clean pages

// Store is the page store the B-tree engine runs on. It layers three
// things over a raw Pager:
//
//   - integrity: every page carries an xxhash64 self-checksum in its
//     header, sealed at flush time and verified on every disk read;
//   - a write-back dirty set: Write lands in memory and the buffer stays
//     mutable until Flush, which is what lets reserve-style inserts fill
//     value bytes after the page is linked into the tree;
//   - copy-on-write reclamation: freed pages queue up and only become
//     reusable once no read snapshot is outstanding.
type Store struct {
	mu        sync.Mutex
	pager     Pager
	cache     *ristretto.Cache[uint64, []byte]
	dirty     map[PageNumber][]byte // payload buffers, PayloadSize each
	allocated []PageNumber          // pages allocated since the last flush
	pending   []PageNumber          // freed, awaiting the reader boundary
	readers   int
	cacheSize int64
	log       *zap.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger installs a diagnostics logger. The default is a nop logger.
func WithLogger(log *zap.Logger) StoreOption {
	return func(s *Store) { s.log = log }
}

// WithCacheSize caps the clean-page cache at the given number of bytes.
func WithCacheSize(bytes int64) StoreOption {
	return func(s *Store) { s.cacheSize = bytes }
}

// NewStore creates a page store over the given pager.
func NewStore(p Pager, opts ...StoreOption) (*Store, error) {
	s := &Store{
		pager:     p,
		dirty:     make(map[PageNumber][]byte),
		cacheSize: defaultCacheSize,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	cache, err := ristretto.NewCache(&ristretto.Config[uint64, []byte]{
		NumCounters: 10 * s.cacheSize / PageSize,
		MaxCost:     s.cacheSize,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create page cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

// Allocate hands out a fresh page number. The page content is undefined
// until the first Write.
func (s *Store) Allocate() (PageNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pageID, err := s.pager.AllocatePage()
	if err != nil {
		return 0, err
	}
	s.allocated = append(s.allocated, pageID)
	return pageID, nil
}

// Write stages a page payload in the dirty set. The payload is copied
// into a PayloadSize buffer; the checksum is sealed later, by Flush.
func (s *Store) Write(pageID PageNumber, payload []byte) error {
	if len(payload) > PayloadSize {
		return fmt.Errorf("payload size %d exceeds page capacity %d", len(payload), PayloadSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, PayloadSize)
	copy(buf, payload)
	s.dirty[pageID] = buf
	s.cache.Del(uint64(pageID))
	return nil
}

// Read returns a page's payload and its checksum. Dirty pages are served
// from the write-back set, then the clean cache, then the pager; disk
// reads are verified against the sealed header checksum.
func (s *Store) Read(pageID PageNumber, hint CacheHint) ([]byte, Checksum, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(pageID, hint)
}

func (s *Store) readLocked(pageID PageNumber, hint CacheHint) ([]byte, Checksum, error) {
	if buf, ok := s.dirty[pageID]; ok {
		return buf, Checksum(xxhash.Sum64(buf)), nil
	}
	if payload, ok := s.cache.Get(uint64(pageID)); ok {
		return payload, Checksum(xxhash.Sum64(payload)), nil
	}

	page, err := s.pager.ReadPage(pageID)
	if err != nil {
		return nil, 0, err
	}
	stored := Checksum(binary.LittleEndian.Uint64(page[:pageHeaderSize]))
	payload := page[pageHeaderSize:]
	sum := Checksum(xxhash.Sum64(payload))
	if sum != stored {
		s.log.Warn("page checksum mismatch",
			zap.Uint64("page", uint64(pageID)),
			zap.Uint64("stored", uint64(stored)),
			zap.Uint64("computed", uint64(sum)))
		return nil, 0, fmt.Errorf("page %d: checksum mismatch: %w", pageID, ErrCorruptedPage)
	}

	if hint == CacheClean {
		s.cache.Set(uint64(pageID), payload, int64(len(payload)))
	}
	return payload, sum, nil
}

// PageChecksum computes the current checksum of a page, dirty or clean.
func (s *Store) PageChecksum(pageID PageNumber) (Checksum, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, sum, err := s.readLocked(pageID, CacheNone)
	return sum, err
}

// DirtyPage returns the live dirty buffer for a staged page, if any.
// Callers may mutate it in place up until Flush.
func (s *Store) DirtyPage(pageID PageNumber) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.dirty[pageID]
	return buf, ok
}

// MarkFreed queues pages made unreachable by a committed mutation. They
// become reusable once no read snapshot is outstanding.
func (s *Store) MarkFreed(pages ...PageNumber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, pages...)
	if s.readers == 0 {
		s.releasePendingLocked()
	}
}

// BeginRead registers a read snapshot. Pages queued by MarkFreed are not
// reused while any snapshot is open.
func (s *Store) BeginRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readers++
}

// EndRead releases a read snapshot registered by BeginRead.
func (s *Store) EndRead() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readers > 0 {
		s.readers--
	}
	if s.readers == 0 {
		s.releasePendingLocked()
	}
}

func (s *Store) releasePendingLocked() {
	if len(s.pending) == 0 {
		return
	}
	for _, pageID := range s.pending {
		s.cache.Del(uint64(pageID))
		if err := s.pager.DeallocatePage(pageID); err != nil {
			s.log.Warn("failed to deallocate freed page",
				zap.Uint64("page", uint64(pageID)), zap.Error(err))
		}
	}
	s.log.Debug("released freed pages", zap.Int("count", len(s.pending)))
	s.pending = s.pending[:0]
}

// AllocationMark marks the current position in the log of pages
// allocated since the last flush, for rolling back a failed operation.
func (s *Store) AllocationMark() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.allocated)
}

// ReleaseAllocations unstages and deallocates every page allocated after
// mark. This is the error path of a mutation that failed mid-descent:
// nothing links to the pages it had already written, so they must not
// survive into a later flush.
func (s *Store) ReleaseAllocations(mark int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mark < 0 || mark > len(s.allocated) {
		return
	}
	for _, pageID := range s.allocated[mark:] {
		delete(s.dirty, pageID)
		s.cache.Del(uint64(pageID))
		if err := s.pager.DeallocatePage(pageID); err != nil {
			s.log.Warn("failed to deallocate rolled-back page",
				zap.Uint64("page", uint64(pageID)), zap.Error(err))
		}
	}
	s.allocated = s.allocated[:mark]
}

// Flush seals checksums into page headers, writes every dirty page
// through to the pager, promotes them to the clean cache, and syncs.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for pageID, payload := range s.dirty {
		page := make([]byte, PageSize)
		binary.LittleEndian.PutUint64(page[:pageHeaderSize], xxhash.Sum64(payload))
		copy(page[pageHeaderSize:], payload)
		if err := s.pager.WritePage(pageID, page); err != nil {
			return fmt.Errorf("failed to flush page %d: %w", pageID, err)
		}
		s.cache.Set(uint64(pageID), payload, int64(len(payload)))
		delete(s.dirty, pageID)
	}
	s.allocated = s.allocated[:0]

	if err := s.pager.Sync(); err != nil {
		return fmt.Errorf("failed to sync pager: %w", err)
	}
	s.log.Debug("flushed dirty pages")
	return nil
}

// DiscardDirty throws away all staged writes and returns the pages
// allocated for them to the pager. This is the abort path: nothing
// staged since the last flush survives. Pages queued by MarkFreed stay
// queued; they belong to committed mutations waiting out the reader
// boundary, not to the aborted one.
func (s *Store) DiscardDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pageID := range s.allocated {
		if err := s.pager.DeallocatePage(pageID); err != nil {
			s.log.Warn("failed to deallocate discarded page",
				zap.Uint64("page", uint64(pageID)), zap.Error(err))
		}
	}
	s.log.Debug("discarded dirty pages",
		zap.Int("dirty", len(s.dirty)), zap.Int("allocated", len(s.allocated)))
	s.dirty = make(map[PageNumber][]byte)
	s.allocated = s.allocated[:0]
}

// Close releases the cache and closes the underlying pager.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Close()
	return s.pager.Close()
}
