package pager

import (
	"fmt"
	"os"
	"sync"
)

// OnDiskPager implements the Pager interface for disk-based storage.
type OnDiskPager struct {
	file     *os.File
	filePath string
	pageSize int
	nextPage PageNumber // Next never-used page ID
	freeList []PageNumber
	mu       sync.RWMutex
}

// NewOnDiskPager creates a new disk-based pager over the given file.
func NewOnDiskPager(path string) (*OnDiskPager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open db file %s: %w", path, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat db file: %w", err)
	}

	numPages := PageNumber(stat.Size() / int64(PageSize))
	nextPageID := numPages
	// Page 0 is reserved for metadata, so an empty file starts at 1.
	if numPages == 0 {
		nextPageID = 1
	}

	return &OnDiskPager{
		file:     file,
		filePath: path,
		pageSize: PageSize,
		nextPage: nextPageID,
	}, nil
}

// ReadPage reads a 4KB page from disk at the given page ID.
func (p *OnDiskPager) ReadPage(pageID PageNumber) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.file == nil {
		return nil, fmt.Errorf("pager file is closed")
	}

	page := make([]byte, p.pageSize)
	offset := int64(pageID) * int64(p.pageSize)

	n, err := p.file.ReadAt(page, offset)
	if err != nil {
		if n == 0 {
			return nil, fmt.Errorf("failed to read page %d: %w", pageID, err)
		}
		// Partial read at the end of the file: remainder stays zeroed.
	}

	return page, nil
}

// WritePage writes a 4KB page to disk at the given page ID.
func (p *OnDiskPager) WritePage(pageID PageNumber, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return fmt.Errorf("pager file is closed")
	}
	if len(data) != p.pageSize {
		return fmt.Errorf("data size %d does not match page size %d", len(data), p.pageSize)
	}

	offset := int64(pageID) * int64(p.pageSize)
	if _, err := p.file.WriteAt(data, offset); err != nil {
		return fmt.Errorf("failed to write page %d: %w", pageID, err)
	}

	return nil
}

// AllocatePage allocates a new page and returns its ID, reusing a
// deallocated page when one is available.
func (p *OnDiskPager) AllocatePage() (PageNumber, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return 0, fmt.Errorf("pager file is closed")
	}

	if n := len(p.freeList); n > 0 {
		pageID := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return pageID, nil
	}

	pageID := p.nextPage
	p.nextPage++

	// Extend the file so the page exists even before its first write.
	emptyPage := make([]byte, p.pageSize)
	offset := int64(pageID) * int64(p.pageSize)
	if _, err := p.file.WriteAt(emptyPage, offset); err != nil {
		return 0, fmt.Errorf("failed to allocate page %d: %w", pageID, err)
	}

	return pageID, nil
}

// DeallocatePage returns a page to the free list for reuse. The page
// content stays on disk untouched until the ID is reallocated.
func (p *OnDiskPager) DeallocatePage(pageID PageNumber) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return fmt.Errorf("pager file is closed")
	}
	if pageID == 0 || pageID >= p.nextPage {
		return fmt.Errorf("cannot deallocate page %d: out of range", pageID)
	}

	p.freeList = append(p.freeList, pageID)
	return nil
}

// Sync flushes all pending writes to disk.
func (p *OnDiskPager) Sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return fmt.Errorf("pager file is closed")
	}
	return p.file.Sync()
}

// Close closes the db file.
func (p *OnDiskPager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return nil // Already closed
	}

	if err := p.file.Sync(); err != nil {
		p.file.Close()
		return fmt.Errorf("failed to sync before close: %w", err)
	}

	err := p.file.Close()
	p.file = nil
	return err
}

// TotalPages returns the number of page slots in the file, including
// the reserved metadata page and any deallocated pages.
func (p *OnDiskPager) TotalPages() PageNumber {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nextPage
}
