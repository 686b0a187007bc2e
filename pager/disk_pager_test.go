package pager

import (
	"bytes"
	"path/filepath"
	"testing"
)

// TestDiskPagerBasicOperations tests allocate, write, read, sync and
// reopen against a real file.
func TestDiskPagerBasicOperations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	p, err := NewOnDiskPager(dbPath)
	if err != nil {
		t.Fatalf("Failed to create disk pager: %v", err)
	}
	defer p.Close()

	// Page 0 is reserved, so the first allocation is page 1.
	pageID, err := p.AllocatePage()
	if err != nil {
		t.Fatalf("Failed to allocate page: %v", err)
	}
	if pageID != 1 {
		t.Errorf("Expected first page ID to be 1, got %d", pageID)
	}

	testData := make([]byte, PageSize)
	copy(testData, []byte("hello, disk pager"))
	if err := p.WritePage(pageID, testData); err != nil {
		t.Fatalf("Failed to write page: %v", err)
	}

	readData, err := p.ReadPage(pageID)
	if err != nil {
		t.Fatalf("Failed to read page: %v", err)
	}
	if !bytes.Equal(testData, readData) {
		t.Errorf("Data mismatch after read back")
	}

	pageID2, err := p.AllocatePage()
	if err != nil {
		t.Fatalf("Failed to allocate second page: %v", err)
	}
	if pageID2 != 2 {
		t.Errorf("Expected second page ID to be 2, got %d", pageID2)
	}

	if err := p.Sync(); err != nil {
		t.Fatalf("Failed to sync: %v", err)
	}

	// Reopen and check persistence.
	p.Close()
	reopened, err := NewOnDiskPager(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen pager: %v", err)
	}
	defer reopened.Close()

	persisted, err := reopened.ReadPage(pageID)
	if err != nil {
		t.Fatalf("Failed to read persisted page: %v", err)
	}
	if !bytes.Equal(testData, persisted) {
		t.Errorf("Data mismatch after reopen")
	}
}

// TestDiskPagerFreeList tests that deallocated pages are reused before
// the file grows.
func TestDiskPagerFreeList(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "freelist.db")

	p, err := NewOnDiskPager(dbPath)
	if err != nil {
		t.Fatalf("Failed to create disk pager: %v", err)
	}
	defer p.Close()

	first, _ := p.AllocatePage()
	second, _ := p.AllocatePage()

	if err := p.DeallocatePage(first); err != nil {
		t.Fatalf("Failed to deallocate page: %v", err)
	}

	reused, err := p.AllocatePage()
	if err != nil {
		t.Fatalf("Failed to allocate after deallocate: %v", err)
	}
	if reused != first {
		t.Errorf("Expected freed page %d to be reused, got %d", first, reused)
	}

	fresh, _ := p.AllocatePage()
	if fresh != second+1 {
		t.Errorf("Expected fresh allocation %d, got %d", second+1, fresh)
	}
}

// TestDiskPagerBoundsChecks tests that reads and writes outside the file
// are rejected.
func TestDiskPagerBoundsChecks(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bounds.db")

	p, err := NewOnDiskPager(dbPath)
	if err != nil {
		t.Fatalf("Failed to create disk pager: %v", err)
	}
	defer p.Close()

	if _, err := p.ReadPage(42); err == nil {
		t.Errorf("Expected error reading unallocated page")
	}
	if err := p.DeallocatePage(42); err == nil {
		t.Errorf("Expected error deallocating unallocated page")
	}
	if err := p.WritePage(1, make([]byte, 16)); err == nil {
		t.Errorf("Expected error writing short page")
	}
}

func TestDiskPagerTotalPagesAfterReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "persist.db")

	p, err := NewOnDiskPager(dbPath)
	if err != nil {
		t.Fatalf("Failed to create disk pager: %v", err)
	}
	for i := 0; i < 4; i++ {
		id, err := p.AllocatePage()
		if err != nil {
			t.Fatalf("Failed to allocate page: %v", err)
		}
		if err := p.WritePage(id, make([]byte, PageSize)); err != nil {
			t.Fatalf("Failed to write page: %v", err)
		}
	}
	total := p.TotalPages()
	p.Close()

	reopened, err := NewOnDiskPager(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen pager: %v", err)
	}
	defer reopened.Close()
	if reopened.TotalPages() != total {
		t.Errorf("Expected %d pages after reopen, got %d", total, reopened.TotalPages())
	}
}
