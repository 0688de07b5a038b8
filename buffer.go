package zlink

import "bytes"

// Profile selects how a Buffer manages its backing storage.
type Profile int

const (
	// ProfileHeap grows the backing array on demand; it has no hard
	// capacity. This is the default.
	ProfileHeap Profile = iota
	// ProfileFixed never grows past its initial capacity class; a frame
	// that would overflow it fails with a BufferOverflow error instead.
	ProfileFixed
)

// Class is a selectable initial (and, in the fixed profile, maximum) buffer
// capacity. A Buffer is built with exactly the one Class passed to
// NewBuffer; there is no selection among several enabled classes.
type Class int

const (
	Class2KiB  Class = 2 * 1024
	Class4KiB  Class = 4 * 1024
	Class16KiB Class = 16 * 1024
	Class1MiB  Class = 1024 * 1024
)

// Buffer is a growable-or-fixed byte buffer with NUL-delimited frame
// boundary detection. One is owned per ReadConnection.
type Buffer struct {
	data     []byte
	consumed int
	filled   int
	profile  Profile
}

// NewBuffer allocates a Buffer of the given profile and initial capacity
// class.
func NewBuffer(profile Profile, class Class) *Buffer {
	return &Buffer{
		data:    make([]byte, int(class)),
		profile: profile,
	}
}

// Tail returns the writable suffix of the backing array: the region a
// transport may read into. The slice is invalidated by the next call to
// CommitFill, Grow, or Compact.
func (b *Buffer) Tail() []byte {
	return b.data[b.filled:]
}

// Full reports whether the buffer has no remaining writable tail.
func (b *Buffer) Full() bool {
	return b.filled == len(b.data)
}

// CommitFill records that n bytes were written into the slice most recently
// returned by Tail.
func (b *Buffer) CommitFill(n int) {
	b.filled += n
}

// Grow doubles the backing array in the heap profile (the selected class is
// only an initial hint there, not a hard cap) or reports BufferOverflow in
// the fixed profile.
func (b *Buffer) Grow() error {
	if b.profile == ProfileFixed {
		return &Error{Kind: BufferOverflow, Detail: "frame exceeds fixed buffer capacity"}
	}
	b.data = append(b.data, make([]byte, len(b.data))...)
	return nil
}

// FindFrame scans forward from the consumed offset for the next NUL byte
// using a fast byte-seek primitive. On success it returns the frame bytes
// (excluding the NUL, aliasing the backing array) and advances the consumed
// offset past it; the returned slice is only valid until the next call that
// mutates the buffer.
func (b *Buffer) FindFrame() (frame []byte, ok bool) {
	region := b.data[b.consumed:b.filled]
	idx := bytes.IndexByte(region, 0)
	if idx < 0 {
		return nil, false
	}
	frame = region[:idx]
	b.consumed += idx + 1
	return frame, true
}

// Compact shifts the unconsumed suffix to the front of the backing array
// once the consumed prefix has reached half of the total capacity,
// bounding the cost of the copy against the growth it avoids.
func (b *Buffer) Compact() {
	if b.consumed == 0 || b.consumed < len(b.data)/2 {
		return
	}
	n := copy(b.data, b.data[b.consumed:b.filled])
	b.filled = n
	b.consumed = 0
}

// Reset discards all buffered data. ReadConnection never calls it: a
// BufferOverflow from a fixed-profile buffer leaves the buffered bytes in
// place.
func (b *Buffer) Reset() {
	b.consumed = 0
	b.filled = 0
}

// Len reports the number of unconsumed, filled bytes currently buffered.
func (b *Buffer) Len() int {
	return b.filled - b.consumed
}

// Cap reports the current capacity of the backing array.
func (b *Buffer) Cap() int {
	return len(b.data)
}
