package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darnuria/pagekv/btree"
	"github.com/darnuria/pagekv/codec"
	"github.com/darnuria/pagekv/pager"
)

func mustCommit(t *testing.T, store *pager.Store, roots map[string]*btree.RootPointer, mutate func(tbl *Table[string, uint64])) map[string]*btree.RootPointer {
	t.Helper()
	txn := NewWriteTransaction(store, roots)
	tbl, err := OpenTable(txn, wordCounts)
	require.NoError(t, err)
	mutate(tbl)
	require.NoError(t, tbl.Close())
	out, err := txn.Commit()
	require.NoError(t, err)
	return out
}

func TestSingleMutableHandlePerName(t *testing.T) {
	store := newTestStore(t)
	txn := NewWriteTransaction(store, nil)

	first, err := OpenTable(txn, wordCounts)
	require.NoError(t, err)

	_, err = OpenTable(txn, wordCounts)
	assert.ErrorIs(t, err, ErrTableAlreadyOpen)

	// A different name is fine while the first stays open.
	other := TableDefinition[string, uint64]{
		Name:  "other_counts",
		Key:   codec.String{},
		Value: codec.Uint64{},
	}
	_, err = OpenTable(txn, other)
	require.NoError(t, err)

	// Closing releases the name for reopening in the same transaction.
	require.NoError(t, first.Close())
	reopened, err := OpenTable(txn, wordCounts)
	require.NoError(t, err)
	require.NotNil(t, reopened)
}

func TestReopenedTableSeesEarlierWrites(t *testing.T) {
	store := newTestStore(t)
	txn := NewWriteTransaction(store, nil)

	tbl, err := OpenTable(txn, wordCounts)
	require.NoError(t, err)
	_, err = tbl.Insert("carried", 7)
	require.NoError(t, err)
	require.NoError(t, tbl.Close())

	tbl, err = OpenTable(txn, wordCounts)
	require.NoError(t, err)
	guard, err := tbl.Get("carried")
	require.NoError(t, err)
	require.NotNil(t, guard)
	v, err := guard.Value()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), v)
}

func TestCommitRequiresClosedTables(t *testing.T) {
	store := newTestStore(t)
	txn := NewWriteTransaction(store, nil)

	tbl, err := OpenTable(txn, wordCounts)
	require.NoError(t, err)

	_, err = txn.Commit()
	require.Error(t, err, "commit with an open table must fail")

	require.NoError(t, tbl.Close())
	roots, err := txn.Commit()
	require.NoError(t, err)
	assert.Contains(t, roots, wordCounts.Name)

	_, err = txn.Commit()
	assert.ErrorIs(t, err, ErrTxnFinished)
	_, err = OpenTable(txn, wordCounts)
	assert.ErrorIs(t, err, ErrTxnFinished)
}

func TestAbortDiscardsWrites(t *testing.T) {
	store := newTestStore(t)

	// Commit a baseline.
	txn := NewWriteTransaction(store, nil)
	tbl, err := OpenTable(txn, wordCounts)
	require.NoError(t, err)
	_, err = tbl.Insert("keep", 1)
	require.NoError(t, err)
	require.NoError(t, tbl.Close())
	roots, err := txn.Commit()
	require.NoError(t, err)

	// Stage more writes, then abort.
	txn2 := NewWriteTransaction(store, roots)
	tbl2, err := OpenTable(txn2, wordCounts)
	require.NoError(t, err)
	_, err = tbl2.Insert("discard", 2)
	require.NoError(t, err)
	_, err = tbl2.Remove("keep")
	require.NoError(t, err)
	require.NoError(t, tbl2.Close())
	require.NoError(t, txn2.Abort())

	// The committed roots still describe the baseline.
	ro := OpenReadOnlyTable(store, roots[wordCounts.Name], pager.CacheClean, wordCounts)
	defer ro.Close()

	guard, err := ro.Get("keep")
	require.NoError(t, err)
	require.NotNil(t, guard)
	guard, err = ro.Get("discard")
	require.NoError(t, err)
	assert.Nil(t, guard)
}

func TestCommitAcrossTransactions(t *testing.T) {
	store := newTestStore(t)

	committed := mustCommit(t, store, nil, func(tbl *Table[string, uint64]) {
		for i, w := range []string{"a", "b", "c"} {
			_, err := tbl.Insert(w, uint64(i))
			require.NoError(t, err)
		}
	})
	committed = mustCommit(t, store, committed, func(tbl *Table[string, uint64]) {
		_, err := tbl.Remove("b")
		require.NoError(t, err)
		_, err = tbl.Insert("d", 9)
		require.NoError(t, err)
	})

	ro := OpenReadOnlyTable(store, committed[wordCounts.Name], pager.CacheClean, wordCounts)
	defer ro.Close()

	n, err := ro.Len()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	it, err := ro.Iter()
	require.NoError(t, err)
	var keys []string
	for {
		k, _, err := it.Next()
		require.NoError(t, err)
		if k == nil {
			break
		}
		key, err := k.Value()
		require.NoError(t, err)
		keys = append(keys, key)
	}
	assert.Equal(t, []string{"a", "c", "d"}, keys)
}

// A close that cannot take the root pointer must leave the table's last
// committed root in place rather than publishing a nil one.
func TestCloseFailureKeepsCommittedRoot(t *testing.T) {
	p := pager.NewInMemoryPager()
	store, err := pager.NewStore(p)
	require.NoError(t, err)

	committed := mustCommit(t, store, nil, func(tbl *Table[string, uint64]) {
		_, err := tbl.Insert("stable", 1)
		require.NoError(t, err)
	})
	root := committed[wordCounts.Name]
	require.NotNil(t, root)
	require.NoError(t, store.Close())

	// Scramble the root page on the backing pager so its stored checksum
	// no longer matches its payload.
	bad := make([]byte, pager.PageSize)
	for i := range bad {
		bad[i] = 0xA5
	}
	require.NoError(t, p.WritePage(root.Page, bad))

	// A fresh store has no cached copy of the good bytes.
	cold, err := pager.NewStore(p)
	require.NoError(t, err)
	t.Cleanup(func() { cold.Close() })

	txn := NewWriteTransaction(cold, committed)
	tbl, err := OpenTable(txn, wordCounts)
	require.NoError(t, err)
	require.Error(t, tbl.Close())

	// The failed close published nothing; the commit carries the root
	// the table had going in.
	out, err := txn.Commit()
	require.NoError(t, err)
	require.NotNil(t, out[wordCounts.Name])
	assert.Equal(t, *root, *out[wordCounts.Name])
}

func TestAbortWithOpenTableIsReported(t *testing.T) {
	store := newTestStore(t)
	txn := NewWriteTransaction(store, nil)

	tbl, err := OpenTable(txn, wordCounts)
	require.NoError(t, err)
	_, err = tbl.Insert("k", 1)
	require.NoError(t, err)

	// The abort still discards, but the dangling handle is an error.
	require.Error(t, txn.Abort())
	_, err = txn.Commit()
	assert.ErrorIs(t, err, ErrTxnFinished)
}

func TestTransactionIDsAreUnique(t *testing.T) {
	store := newTestStore(t)
	a := NewWriteTransaction(store, nil)
	b := NewWriteTransaction(store, nil)
	assert.NotEqual(t, a.ID(), b.ID())
}
