package pager

import (
	"fmt"
	"sync"
)

// InMemoryPager keeps pages in a map. It backs tests and throwaway
// databases; the contract matches OnDiskPager exactly.
type InMemoryPager struct {
	pages    map[PageNumber][]byte
	nextPage PageNumber
	freeList []PageNumber
	mu       sync.RWMutex
}

func NewInMemoryPager() *InMemoryPager {
	return &InMemoryPager{
		pages:    make(map[PageNumber][]byte),
		nextPage: 1,
	}
}

func (p *InMemoryPager) ReadPage(pageID PageNumber) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	data, ok := p.pages[pageID]
	if !ok {
		return nil, fmt.Errorf("page %d not found", pageID)
	}
	return append([]byte(nil), data...), nil
}

func (p *InMemoryPager) WritePage(pageID PageNumber, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(data) != PageSize {
		return fmt.Errorf("data size %d does not match page size %d", len(data), PageSize)
	}
	p.pages[pageID] = append([]byte(nil), data...)
	return nil
}

func (p *InMemoryPager) AllocatePage() (PageNumber, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.freeList); n > 0 {
		id := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		p.pages[id] = make([]byte, PageSize)
		return id, nil
	}
	id := p.nextPage
	p.nextPage++
	p.pages[id] = make([]byte, PageSize)
	return id, nil
}

func (p *InMemoryPager) DeallocatePage(pageID PageNumber) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pages[pageID]; !ok {
		return fmt.Errorf("page %d not found", pageID)
	}
	delete(p.pages, pageID)
	p.freeList = append(p.freeList, pageID)
	return nil
}

func (p *InMemoryPager) Sync() error {
	return nil
}

func (p *InMemoryPager) Close() error {
	return nil
}

// TotalPages returns the number of page IDs ever handed out, plus the
// reserved metadata page.
func (p *InMemoryPager) TotalPages() PageNumber {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nextPage
}
