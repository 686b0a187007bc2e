package btree

// AccessGuardMut is a mutable window over the bytes reserved for a value
// by InsertReserve. The window points into the leaf page's live dirty
// buffer, so the caller fills the value in place with no staging copy.
// It is valid until the owning table handle closes.
type AccessGuardMut struct {
	buf []byte
}

// Bytes returns the reserved byte range for the caller to fill. Its
// length equals the length passed to InsertReserve.
func (g *AccessGuardMut) Bytes() []byte {
	return g.buf
}

// Len returns the reserved length.
func (g *AccessGuardMut) Len() int {
	return len(g.buf)
}
