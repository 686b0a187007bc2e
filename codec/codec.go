// Package codec defines the byte-encoding contract between typed tables
// and the B-tree engine: per-type encode/decode, and for key types a
// total-order comparator over the raw encodings. The tree's traversal
// order is defined entirely by the key codec's comparator.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTypeMismatch is returned when stored bytes cannot be decoded under
// the requested type's codec, e.g. a table opened with a different value
// type than it was created with.
var ErrTypeMismatch = errors.New("stored bytes do not match the requested type")

// Compare is a total order over two byte encodings, with the usual
// negative/zero/positive convention.
type Compare func(a, b []byte) int

// Value encodes and decodes one value type. Decoding happens on demand,
// never eagerly, so implementations must not retain the input slice.
type Value[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
	TypeName() string
}

// Key is a Value whose encodings carry a total order. The default codecs
// below order byte-lexicographically; Reverse flips any key's order.
type Key[T any] interface {
	Value[T]
	Compare(a, b []byte) int
}

// Bytes is the identity codec for raw byte slices.
type Bytes struct{}

func (Bytes) Encode(v []byte) ([]byte, error) { return v, nil }
func (Bytes) Decode(data []byte) ([]byte, error) {
	return data, nil
}
func (Bytes) TypeName() string        { return "bytes" }
func (Bytes) Compare(a, b []byte) int { return bytes.Compare(a, b) }

// String is the codec for Go strings, ordered byte-lexicographically.
type String struct{}

func (String) Encode(v string) ([]byte, error)    { return []byte(v), nil }
func (String) Decode(data []byte) (string, error) { return string(data), nil }
func (String) TypeName() string                   { return "string" }
func (String) Compare(a, b []byte) int            { return bytes.Compare(a, b) }

// Uint64 encodes big-endian so that byte order equals numeric order.
type Uint64 struct{}

func (Uint64) Encode(v uint64) ([]byte, error) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf, nil
}

func (Uint64) Decode(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("uint64 wants 8 bytes, got %d: %w", len(data), ErrTypeMismatch)
	}
	return binary.BigEndian.Uint64(data), nil
}

func (Uint64) TypeName() string        { return "uint64" }
func (Uint64) Compare(a, b []byte) int { return bytes.Compare(a, b) }

type reversed[T any] struct {
	inner Key[T]
}

// Reverse wraps a key codec with the opposite ordering. Encoding is
// untouched; only Compare flips, so ranges iterate high-to-low.
func Reverse[T any](k Key[T]) Key[T] {
	return reversed[T]{inner: k}
}

func (r reversed[T]) Encode(v T) ([]byte, error)    { return r.inner.Encode(v) }
func (r reversed[T]) Decode(data []byte) (T, error) { return r.inner.Decode(data) }
func (r reversed[T]) TypeName() string              { return "reverse(" + r.inner.TypeName() + ")" }
func (r reversed[T]) Compare(a, b []byte) int       { return r.inner.Compare(b, a) }
