package table

import (
	"github.com/darnuria/pagekv/btree"
	"github.com/darnuria/pagekv/codec"
)

// Bound is one end of a typed range. The zero value is unbounded.
type Bound[K any] struct {
	key       *K
	inclusive bool
}

// Included bounds a range at key, key itself in range.
func Included[K any](key K) Bound[K] {
	return Bound[K]{key: &key, inclusive: true}
}

// Excluded bounds a range at key, key itself out of range.
func Excluded[K any](key K) Bound[K] {
	return Bound[K]{key: &key}
}

// Unbounded leaves the range open on this end.
func Unbounded[K any]() Bound[K] {
	return Bound[K]{}
}

func (b Bound[K]) encode(k codec.Key[K]) (*btree.Bound, error) {
	if b.key == nil {
		return nil, nil
	}
	data, err := k.Encode(*b.key)
	if err != nil {
		return nil, err
	}
	if b.inclusive {
		return btree.Included(data), nil
	}
	return btree.Excluded(data), nil
}
