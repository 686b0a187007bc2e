package btree

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darnuria/pagekv/pager"
)

func collect(t *testing.T, c *Cursor) [][]byte {
	t.Helper()
	var keys [][]byte
	for {
		e, err := c.Next()
		require.NoError(t, err)
		if e == nil {
			return keys
		}
		keys = append(keys, append([]byte(nil), e.Key...))
	}
}

func TestCursorFullScanIsSorted(t *testing.T) {
	tree, _, _ := newTestTree(t)
	const n = 800
	fill(t, tree, n)

	keys := collect(t, tree.Range(nil, nil))
	require.Len(t, keys, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, testKey(i), keys[i])
	}
}

func TestCursorRespectsBounds(t *testing.T) {
	tree, _, _ := newTestTree(t)
	fill(t, tree, 100)

	// Inclusive bounds include both endpoints.
	keys := collect(t, tree.Range(Included(testKey(10)), Included(testKey(20))))
	require.Len(t, keys, 11)
	assert.Equal(t, testKey(10), keys[0])
	assert.Equal(t, testKey(20), keys[10])

	// Exclusive bounds drop them.
	keys = collect(t, tree.Range(Excluded(testKey(10)), Excluded(testKey(20))))
	require.Len(t, keys, 9)
	assert.Equal(t, testKey(11), keys[0])
	assert.Equal(t, testKey(19), keys[8])

	// Bounds need not be stored keys.
	keys = collect(t, tree.Range(Included([]byte("key00010x")), Included([]byte("key00013x"))))
	require.Len(t, keys, 3)
	assert.Equal(t, testKey(11), keys[0])

	// An empty window yields nothing.
	keys = collect(t, tree.Range(Excluded(testKey(10)), Excluded(testKey(11))))
	assert.Empty(t, keys)
}

func TestCursorBackward(t *testing.T) {
	tree, _, _ := newTestTree(t)
	const n = 300
	fill(t, tree, n)

	c := tree.Range(nil, nil)
	for i := n - 1; i >= 0; i-- {
		e, err := c.NextBack()
		require.NoError(t, err)
		require.NotNil(t, e, "cursor ended early at %d", i)
		assert.Equal(t, testKey(i), e.Key)
	}
	e, err := c.NextBack()
	require.NoError(t, err)
	assert.Nil(t, e)
}

// Alternating Next and NextBack must meet in the middle without yielding
// any entry twice.
func TestCursorMeetsInMiddle(t *testing.T) {
	tree, _, _ := newTestTree(t)
	const n = 101
	fill(t, tree, n)

	c := tree.Range(nil, nil)
	lo, hi := 0, n-1
	for lo <= hi {
		e, err := c.Next()
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, testKey(lo), e.Key)
		lo++
		if lo > hi {
			break
		}
		e, err = c.NextBack()
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, testKey(hi), e.Key)
		hi--
	}

	e, err := c.Next()
	require.NoError(t, err)
	assert.Nil(t, e, "exhausted cursor must stay exhausted")
	e, err = c.NextBack()
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestCursorOnEmptyTree(t *testing.T) {
	tree, _, _ := newTestTree(t)

	c := tree.Range(nil, nil)
	e, err := c.Next()
	require.NoError(t, err)
	assert.Nil(t, e)
	e, err = c.NextBack()
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestDrainRemovesWhatItYields(t *testing.T) {
	tree, _, _ := newTestTree(t)
	const n = 100
	fill(t, tree, n)

	// Drain [25, 75) forward, stopping after 10 entries.
	d := tree.Drain(Included(testKey(25)), Excluded(testKey(75)))
	for i := 0; i < 10; i++ {
		e, err := d.Next()
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, testKey(25+i), e.Key)
		assert.Equal(t, testValue(25+i), e.Value)
	}

	// Exactly the yielded ten are gone; the rest of the range stays.
	count, err := tree.Len()
	require.NoError(t, err)
	assert.Equal(t, uint64(n-10), count)
	for i := 0; i < n; i++ {
		_, found, err := tree.Get(testKey(i))
		require.NoError(t, err)
		assert.Equal(t, i < 25 || i >= 35, found, "key %d", i)
	}
}

func TestDrainBackward(t *testing.T) {
	tree, _, _ := newTestTree(t)
	const n = 50
	fill(t, tree, n)

	d := tree.Drain(nil, nil)
	for i := n - 1; i >= n-5; i-- {
		e, err := d.NextBack()
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, testKey(i), e.Key)
	}

	count, err := tree.Len()
	require.NoError(t, err)
	assert.Equal(t, uint64(n-5), count)
}

func TestDrainToExhaustionEmptiesRange(t *testing.T) {
	tree, _, _ := newTestTree(t)
	const n = 200
	fill(t, tree, n)

	d := tree.Drain(nil, nil)
	seen := 0
	for {
		e, err := d.Next()
		require.NoError(t, err)
		if e == nil {
			break
		}
		seen++
	}
	assert.Equal(t, n, seen)

	count, err := tree.Len()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestReversedComparatorIteratesHighToLow(t *testing.T) {
	reversed := func(a, b []byte) int { return bytes.Compare(b, a) }
	p := pager.NewInMemoryPager()
	store, err := pager.NewStore(p)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	tree := NewMut(nil, store, NewFreedPages(), reversed)

	for i := 0; i <= 10; i++ {
		_, _, err := tree.Insert(testKey(i), testValue(i))
		require.NoError(t, err)
	}

	// Under a reversed order the lower bound is the numerically larger
	// key: [7, 3] yields 7,6,5,4,3.
	keys := collect(t, tree.Range(Included(testKey(7)), Included(testKey(3))))
	require.Len(t, keys, 5)
	for i, want := range []int{7, 6, 5, 4, 3} {
		assert.Equal(t, testKey(want), keys[i])
	}
}
