// Package buffer implements the bounds-checked growable byte storage
// used for every piece of transient data in the connection and session
// layers.  Overflow is reported as an error instead of corrupting memory.
package buffer

import (
	"bytes"

	"reactnet/internal/errors"
)

// Buffer is a byte buffer with a hard capacity limit.  The zero value
// is unusable; create one with [New].
type Buffer struct {
	data  []byte
	limit int
}

// New allocates a Buffer that may hold at most limit bytes.  A limit
// below one is raised to one, matching the minimum allocation of the
// allocator it replaces.
func New(limit int) *Buffer {
	if limit < 1 {
		limit = 1
	}
	return &Buffer{limit: limit}
}

// Len returns the number of bytes stored.
func (b *Buffer) Len() int { return len(b.data) }

// Cap returns the capacity limit.
func (b *Buffer) Cap() int { return b.limit }

// Free returns the number of bytes that can still be appended.
func (b *Buffer) Free() int { return b.limit - len(b.data) }

// Bytes returns the stored bytes.  The slice aliases the buffer until
// the next mutation.
func (b *Buffer) Bytes() []byte { return b.data }

// String returns the stored bytes as a string.
func (b *Buffer) String() string { return string(b.data) }

// WriteByte appends c, failing with [errors.ErrCapacity] when full.
func (b *Buffer) WriteByte(c byte) error {
	if len(b.data)+1 > b.limit {
		return errors.ErrCapacity
	}
	b.data = append(b.data, c)
	return nil
}

// Write appends p in full or not at all.
func (b *Buffer) Write(p []byte) (int, error) {
	if len(b.data)+len(p) > b.limit {
		return 0, errors.ErrCapacity
	}
	b.data = append(b.data, p...)
	return len(p), nil
}

// WriteString appends s in full or not at all.
func (b *Buffer) WriteString(s string) (int, error) {
	if len(b.data)+len(s) > b.limit {
		return 0, errors.ErrCapacity
	}
	b.data = append(b.data, s...)
	return len(s), nil
}

// Consume removes the first n bytes.
func (b *Buffer) Consume(n int) {
	if n >= len(b.data) {
		b.data = b.data[:0]
		return
	}
	b.data = b.data[:copy(b.data, b.data[n:])]
}

// HasSuffix reports whether the stored bytes end with suffix.
func (b *Buffer) HasSuffix(suffix []byte) bool { return bytes.HasSuffix(b.data, suffix) }

// Clone returns a copy of the stored bytes that does not alias the
// buffer.
func (b *Buffer) Clone() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Reset empties the buffer but keeps its allocation.
func (b *Buffer) Reset() { b.data = b.data[:0] }

// Resize changes the capacity limit.  Shrinking below the stored length
// fails with [errors.ErrCapacity].
func (b *Buffer) Resize(limit int) error {
	if limit < len(b.data) {
		return errors.ErrCapacity
	}
	b.limit = limit
	return nil
}

// Release drops the backing storage.  The buffer may be reused after
// Release; it simply starts empty.
func (b *Buffer) Release() { b.data = nil }
