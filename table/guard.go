package table

import "github.com/darnuria/pagekv/codec"

// AccessGuard is the handle through which all reads flow: a typed view
// of a value's bytes that decodes on demand, never eagerly. The bytes
// either borrow directly from a live page or are an owned copy (used
// when the backing page is gone, e.g. the key of a just-removed entry);
// decode behavior is identical either way. Borrowed guards are valid
// exactly as long as the handle that issued them.
type AccessGuard[T any] struct {
	data  []byte
	owned bool
	codec codec.Value[T]
}

func newGuard[T any](data []byte, c codec.Value[T]) *AccessGuard[T] {
	return &AccessGuard[T]{data: data, codec: c}
}

func newOwnedGuard[T any](data []byte, c codec.Value[T]) *AccessGuard[T] {
	return &AccessGuard[T]{data: data, owned: true, codec: c}
}

// Value decodes the guarded bytes under the guard's codec.
func (g *AccessGuard[T]) Value() (T, error) {
	return g.codec.Decode(g.data)
}

// Bytes returns the guarded encoding without decoding it.
func (g *AccessGuard[T]) Bytes() []byte {
	return g.data
}

// Owned reports whether the guard carries its own copy of the bytes
// rather than borrowing from a page.
func (g *AccessGuard[T]) Owned() bool {
	return g.owned
}
