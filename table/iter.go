package table

import "github.com/darnuria/pagekv/btree"

// RangeIter walks a bounded key range from both ends: Next yields in
// ascending key order, NextBack in descending, and the two converge
// without ever yielding the same entry twice. Exhaustion is signaled by
// nil guards and a nil error.
type RangeIter[K, V any] struct {
	inner *btree.Cursor
	def   TableDefinition[K, V]
}

// Next yields the next entry in ascending order.
func (it *RangeIter[K, V]) Next() (*AccessGuard[K], *AccessGuard[V], error) {
	return it.wrap(it.inner.Next())
}

// NextBack yields the next entry in descending order.
func (it *RangeIter[K, V]) NextBack() (*AccessGuard[K], *AccessGuard[V], error) {
	return it.wrap(it.inner.NextBack())
}

func (it *RangeIter[K, V]) wrap(e *btree.Entry, err error) (*AccessGuard[K], *AccessGuard[V], error) {
	if err != nil || e == nil {
		return nil, nil, err
	}
	return newGuard(e.Key, it.def.Key), newGuard(e.Value, it.def.Value), nil
}

// DrainIter is a RangeIter that removes every entry it yields. Stopping
// early leaves the unvisited remainder in the table.
type DrainIter[K, V any] struct {
	inner *btree.DrainCursor
	def   TableDefinition[K, V]
}

// Next removes and yields the next entry in ascending order.
func (it *DrainIter[K, V]) Next() (*AccessGuard[K], *AccessGuard[V], error) {
	return it.wrap(it.inner.Next())
}

// NextBack removes and yields the next entry in descending order.
func (it *DrainIter[K, V]) NextBack() (*AccessGuard[K], *AccessGuard[V], error) {
	return it.wrap(it.inner.NextBack())
}

func (it *DrainIter[K, V]) wrap(e *btree.Entry, err error) (*AccessGuard[K], *AccessGuard[V], error) {
	if err != nil || e == nil {
		return nil, nil, err
	}
	// The entry's page moved to the freed set when the drain removed it,
	// but the buffer stays live for the rest of the transaction.
	return newGuard(e.Key, it.def.Key), newGuard(e.Value, it.def.Value), nil
}
