package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// CBOR is a value codec for arbitrary Go structs, serialized with CBOR.
// It is a value codec only: CBOR encodings carry no useful byte order,
// so it cannot serve as a key type.
type CBOR[T any] struct{}

func (CBOR[T]) Encode(v T) ([]byte, error) {
	data, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cbor encode: %w", err)
	}
	return data, nil
}

func (CBOR[T]) Decode(data []byte) (T, error) {
	var v T
	if err := cbor.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("cbor decode: %v: %w", err, ErrTypeMismatch)
	}
	return v, nil
}

func (CBOR[T]) TypeName() string {
	return "cbor(" + reflect.TypeOf((*T)(nil)).Elem().String() + ")"
}
