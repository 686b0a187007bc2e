package btree

import "github.com/darnuria/pagekv/codec"

// findKey locates target among sorted keys: the index where it sits (or
// would be inserted) and whether it is an exact match.
func findKey(keys [][]byte, target []byte, cmp codec.Compare) (int, bool) {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if cmp(keys[mid], target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(keys) && cmp(keys[lo], target) == 0 {
		return lo, true
	}
	return lo, false
}

// childIndex returns which child of an internal node covers key: the
// number of separators <= key, a separator being the smallest key of
// the subtree to its right.
func childIndex(seps [][]byte, key []byte, cmp codec.Compare) int {
	lo, hi := 0, len(seps)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if cmp(seps[mid], key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func insertSlice[T any](s []T, i int, v T) []T {
	var zero T
	s = append(s, zero)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeSlice[T any](s []T, i int) []T {
	return append(s[:i], s[i+1:]...)
}
