package table

import (
	"fmt"
	"io"

	"github.com/darnuria/pagekv/btree"
	"github.com/darnuria/pagekv/codec"
	"github.com/darnuria/pagekv/pager"
)

// TableDefinition names a table and binds its key and value codecs.
// Definitions are cheap values meant to be declared once, package-level.
type TableDefinition[K, V any] struct {
	Name  string
	Key   codec.Key[K]
	Value codec.Value[V]
}

// ReadableTable is the read surface shared by Table and ReadOnlyTable.
type ReadableTable[K, V any] interface {
	Get(key K) (*AccessGuard[V], error)
	Range(lo, hi Bound[K]) (*RangeIter[K, V], error)
	Iter() (*RangeIter[K, V], error)
	Len() (uint64, error)
	IsEmpty() (bool, error)
}

var (
	_ ReadableTable[string, string] = (*Table[string, string])(nil)
	_ ReadableTable[string, string] = (*ReadOnlyTable[string, string])(nil)
)

// Table is the mutable handle on one named table inside a write
// transaction. At most one exists per name per transaction; Close it to
// publish its root back to the transaction.
type Table[K, V any] struct {
	name   string
	def    TableDefinition[K, V]
	txn    *WriteTransaction
	tree   *btree.BtreeMut
	closed bool
}

// OpenTable opens the named table for writing inside txn. It fails with
// ErrTableAlreadyOpen if txn already holds a handle for the same name.
func OpenTable[K, V any](txn *WriteTransaction, def TableDefinition[K, V]) (*Table[K, V], error) {
	if txn.done {
		return nil, ErrTxnFinished
	}
	if err := txn.registerOpenTable(def.Name); err != nil {
		return nil, err
	}
	return &Table[K, V]{
		name: def.Name,
		def:  def,
		txn:  txn,
		tree: btree.NewMut(txn.roots[def.Name], txn.store, txn.freed, def.Key.Compare),
	}, nil
}

// Close publishes the table's current root back to its transaction and
// releases the name for reopening. If the root cannot be resolved, the
// transaction keeps the previous root for this name: a root that was
// never obtained is never published. Closing twice is a no-op.
func (t *Table[K, V]) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	root, err := t.tree.RootPointer()
	if err != nil {
		t.txn.releaseTable(t.name)
		return fmt.Errorf("table %q: root pointer: %w", t.name, err)
	}
	t.txn.closeTable(t.name, root)
	return nil
}

// Insert stores value under key, replacing any previous value. When a
// value was replaced, its bytes come back in a guard; the returned guard
// is nil for a fresh key.
func (t *Table[K, V]) Insert(key K, value V) (*AccessGuard[V], error) {
	if t.closed {
		return nil, ErrTableClosed
	}
	kb, err := t.def.Key.Encode(key)
	if err != nil {
		return nil, fmt.Errorf("encode key: %w", err)
	}
	vb, err := t.def.Value.Encode(value)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	old, replaced, err := t.tree.Insert(kb, vb)
	if err != nil {
		return nil, err
	}
	if !replaced {
		return nil, nil
	}
	return newGuard(old, t.def.Value), nil
}

// InsertReserve links key to a zero-filled value of the given byte
// length and returns a mutable guard over it, letting the caller encode
// in place instead of through an intermediate buffer. The guard stays
// writable until the transaction commits.
func (t *Table[K, V]) InsertReserve(key K, length int) (*btree.AccessGuardMut, error) {
	if t.closed {
		return nil, ErrTableClosed
	}
	kb, err := t.def.Key.Encode(key)
	if err != nil {
		return nil, fmt.Errorf("encode key: %w", err)
	}
	return t.tree.InsertReserve(kb, length)
}

// Remove deletes key, returning the removed value in a guard, or nil if
// the key was absent.
func (t *Table[K, V]) Remove(key K) (*AccessGuard[V], error) {
	if t.closed {
		return nil, ErrTableClosed
	}
	kb, err := t.def.Key.Encode(key)
	if err != nil {
		return nil, fmt.Errorf("encode key: %w", err)
	}
	old, found, err := t.tree.Remove(kb)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return newGuard(old, t.def.Value), nil
}

// PopFirst removes and returns the lowest entry, or nils on an empty
// table.
func (t *Table[K, V]) PopFirst() (*AccessGuard[K], *AccessGuard[V], error) {
	return t.pop(false)
}

// PopLast removes and returns the highest entry, or nils on an empty
// table.
func (t *Table[K, V]) PopLast() (*AccessGuard[K], *AccessGuard[V], error) {
	return t.pop(true)
}

func (t *Table[K, V]) pop(back bool) (*AccessGuard[K], *AccessGuard[V], error) {
	if t.closed {
		return nil, nil, ErrTableClosed
	}
	cur := t.tree.Range(nil, nil)
	var (
		e   *btree.Entry
		err error
	)
	if back {
		e, err = cur.NextBack()
	} else {
		e, err = cur.Next()
	}
	if err != nil {
		return nil, nil, err
	}
	if e == nil {
		return nil, nil, nil
	}
	// The removal rewrites the leaf the entry borrows from, so the key
	// must be copied out before Remove runs.
	key := append([]byte(nil), e.Key...)
	old, found, err := t.tree.Remove(key)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, fmt.Errorf("table %q: entry vanished during pop", t.name)
	}
	return newOwnedGuard(key, t.def.Key), newGuard(old, t.def.Value), nil
}

// Get returns the value stored under key in a guard, or nil if absent.
// The guard borrows from the page; it is valid until the next mutation.
func (t *Table[K, V]) Get(key K) (*AccessGuard[V], error) {
	if t.closed {
		return nil, ErrTableClosed
	}
	kb, err := t.def.Key.Encode(key)
	if err != nil {
		return nil, fmt.Errorf("encode key: %w", err)
	}
	val, found, err := t.tree.Get(kb)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return newGuard(val, t.def.Value), nil
}

// Range iterates entries between the given bounds in key order. The
// table must not be mutated while the iterator is in use.
func (t *Table[K, V]) Range(lo, hi Bound[K]) (*RangeIter[K, V], error) {
	if t.closed {
		return nil, ErrTableClosed
	}
	blo, bhi, err := encodeBounds(lo, hi, t.def.Key)
	if err != nil {
		return nil, err
	}
	return &RangeIter[K, V]{inner: t.tree.Range(blo, bhi), def: t.def}, nil
}

// Iter iterates the whole table in key order.
func (t *Table[K, V]) Iter() (*RangeIter[K, V], error) {
	return t.Range(Unbounded[K](), Unbounded[K]())
}

// Drain iterates entries between the given bounds, removing each one as
// it is produced. Entries never visited stay in the table.
func (t *Table[K, V]) Drain(lo, hi Bound[K]) (*DrainIter[K, V], error) {
	if t.closed {
		return nil, ErrTableClosed
	}
	blo, bhi, err := encodeBounds(lo, hi, t.def.Key)
	if err != nil {
		return nil, err
	}
	return &DrainIter[K, V]{inner: t.tree.Drain(blo, bhi), def: t.def}, nil
}

// Len returns the number of entries.
func (t *Table[K, V]) Len() (uint64, error) {
	if t.closed {
		return 0, ErrTableClosed
	}
	return t.tree.Len()
}

// IsEmpty reports whether the table holds no entries.
func (t *Table[K, V]) IsEmpty() (bool, error) {
	n, err := t.Len()
	return n == 0, err
}

// Dump writes a per-level rendering of the tree to w, for debugging.
func (t *Table[K, V]) Dump(w io.Writer) error {
	if t.closed {
		return ErrTableClosed
	}
	return t.tree.Dump(w)
}

// ReadOnlyTable reads one table at a fixed root. It pins the store's
// read snapshot from open to Close, so pages freed by later writes are
// not reused underneath it.
type ReadOnlyTable[K, V any] struct {
	def    TableDefinition[K, V]
	store  *pager.Store
	tree   *btree.Btree
	closed bool
}

// OpenReadOnlyTable opens a read-only view of def at the given root. A
// nil root is an empty table. The hint controls whether fetched pages
// populate the clean-page cache. The view must be Closed to release its
// snapshot.
func OpenReadOnlyTable[K, V any](store *pager.Store, root *btree.RootPointer, hint pager.CacheHint, def TableDefinition[K, V]) *ReadOnlyTable[K, V] {
	store.BeginRead()
	return &ReadOnlyTable[K, V]{
		def:   def,
		store: store,
		tree:  btree.New(root, hint, store, def.Key.Compare),
	}
}

// Close releases the table's read snapshot. Closing twice is a no-op.
func (t *ReadOnlyTable[K, V]) Close() {
	if t.closed {
		return
	}
	t.store.EndRead()
	t.closed = true
}

// Get returns the value stored under key in a guard, or nil if absent.
func (t *ReadOnlyTable[K, V]) Get(key K) (*AccessGuard[V], error) {
	if t.closed {
		return nil, ErrTableClosed
	}
	kb, err := t.def.Key.Encode(key)
	if err != nil {
		return nil, fmt.Errorf("encode key: %w", err)
	}
	val, found, err := t.tree.Get(kb)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return newGuard(val, t.def.Value), nil
}

// Range iterates entries between the given bounds in key order.
func (t *ReadOnlyTable[K, V]) Range(lo, hi Bound[K]) (*RangeIter[K, V], error) {
	if t.closed {
		return nil, ErrTableClosed
	}
	blo, bhi, err := encodeBounds(lo, hi, t.def.Key)
	if err != nil {
		return nil, err
	}
	return &RangeIter[K, V]{inner: t.tree.Range(blo, bhi), def: t.def}, nil
}

// Iter iterates the whole table in key order.
func (t *ReadOnlyTable[K, V]) Iter() (*RangeIter[K, V], error) {
	return t.Range(Unbounded[K](), Unbounded[K]())
}

// Len returns the number of entries.
func (t *ReadOnlyTable[K, V]) Len() (uint64, error) {
	if t.closed {
		return 0, ErrTableClosed
	}
	return t.tree.Len()
}

// IsEmpty reports whether the table holds no entries.
func (t *ReadOnlyTable[K, V]) IsEmpty() (bool, error) {
	n, err := t.Len()
	return n == 0, err
}

// Dump writes a per-level rendering of the tree to w, for debugging.
func (t *ReadOnlyTable[K, V]) Dump(w io.Writer) error {
	if t.closed {
		return ErrTableClosed
	}
	return t.tree.Dump(w)
}

func encodeBounds[K any](lo, hi Bound[K], k codec.Key[K]) (*btree.Bound, *btree.Bound, error) {
	blo, err := lo.encode(k)
	if err != nil {
		return nil, nil, fmt.Errorf("encode lower bound: %w", err)
	}
	bhi, err := hi.encode(k)
	if err != nil {
		return nil, nil, fmt.Errorf("encode upper bound: %w", err)
	}
	return blo, bhi, nil
}
