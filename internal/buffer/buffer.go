// Package buffer implements DataBuffer, the sum type over owned and
// borrowed byte sequences that flows through the send and receive
// queues (spec.md §3's "DataBuffer").
package buffer

import "sync/atomic"

// Kind discriminates the DataBuffer variant. Validation of the
// discriminator must precede any field access (spec.md §9's rule for
// tagged unions), which is why every accessor below switches on Kind
// rather than assuming a field is populated.
type Kind int

const (
	KindBlob Kind = iota
	KindSharedBlob
	KindBlobBuffer
	KindConstBuffer
	KindConstBufferArray
	KindMutableBuffer
	KindMutableBufferArray
	KindString
)

// Buffer is a DataBuffer value: an append-only-from-producer,
// consume-from-front byte sequence that can describe its content as a
// scatter/gather array without copying.
type Buffer interface {
	Kind() Kind
	// Len returns the total number of unconsumed bytes.
	Len() int
	// Segments returns the unconsumed content as a scatter/gather array,
	// suitable for writev/sendmsg. The caller must not retain or mutate
	// the returned slices across a Consume call.
	Segments() [][]byte
	// Consume returns a view with the first n bytes removed. Consuming
	// exactly Len() bytes from a pooled variant releases it back to the
	// pool. n must satisfy 0 <= n <= Len().
	Consume(n int) Buffer
	// Contiguous reports whether Segments() returns exactly one slice,
	// which is what SendQueueEntry.batchable (spec.md §3) keys off of
	// for scatter/gather coalescing.
	Contiguous() bool
}

// blob is a single owned, heap-allocated byte slice.
type blob struct {
	data []byte
}

// NewBlob wraps an owned byte slice, consumed from the front as bytes drain.
func NewBlob(data []byte) Buffer { return &blob{data: data} }

func (b *blob) Kind() Kind        { return KindBlob }
func (b *blob) Len() int          { return len(b.data) }
func (b *blob) Contiguous() bool  { return true }
func (b *blob) Segments() [][]byte {
	if len(b.data) == 0 {
		return nil
	}
	return [][]byte{b.data}
}
func (b *blob) Consume(n int) Buffer {
	if n >= len(b.data) {
		return &blob{}
	}
	return &blob{data: b.data[n:]}
}

// sharedBlob is a reference-counted byte slice shared by multiple
// consumers (e.g. a broadcast send). The backing array is released only
// when every view has consumed it in full.
type sharedBlob struct {
	data []byte
	off  int
	refs *int32
}

// NewSharedBlob wraps data with a shared reference count starting at 1.
// Share() must be called once per additional holder.
func NewSharedBlob(data []byte) Buffer {
	refs := int32(1)
	return &sharedBlob{data: data, refs: &refs}
}

// Share increments the reference count and returns a second independent
// view over the same backing array.
func (b *sharedBlob) Share() Buffer {
	atomic.AddInt32(b.refs, 1)
	return &sharedBlob{data: b.data, off: b.off, refs: b.refs}
}

func (b *sharedBlob) Kind() Kind       { return KindSharedBlob }
func (b *sharedBlob) Len() int         { return len(b.data) - b.off }
func (b *sharedBlob) Contiguous() bool { return true }
func (b *sharedBlob) Segments() [][]byte {
	if b.off >= len(b.data) {
		return nil
	}
	return [][]byte{b.data[b.off:]}
}
func (b *sharedBlob) Consume(n int) Buffer {
	off := b.off + n
	if off > len(b.data) {
		off = len(b.data)
	}
	if off >= len(b.data) {
		atomic.AddInt32(b.refs, -1)
	}
	return &sharedBlob{data: b.data, off: off, refs: b.refs}
}

// blobBuffer is a pool-backed byte slice: Get on construction, Put on
// full consumption, per internal/buffer's size-bucketed pool.
type blobBuffer struct {
	data     []byte
	base     []byte
	released bool
}

// NewBlobBuffer takes ownership of a buffer obtained from Get(size);
// it releases it back to the pool once fully consumed.
func NewBlobBuffer(data []byte) Buffer { return &blobBuffer{data: data, base: data} }

func (b *blobBuffer) Kind() Kind       { return KindBlobBuffer }
func (b *blobBuffer) Len() int         { return len(b.data) }
func (b *blobBuffer) Contiguous() bool { return true }
func (b *blobBuffer) Segments() [][]byte {
	if len(b.data) == 0 {
		return nil
	}
	return [][]byte{b.data}
}
func (b *blobBuffer) Consume(n int) Buffer {
	if n >= len(b.data) {
		if !b.released {
			Put(b.base)
		}
		return &blobBuffer{released: true}
	}
	return &blobBuffer{data: b.data[n:], base: b.base}
}

// constBufferArray is a read-only, caller-owned scatter array: zero-copy
// view over buffers the caller guarantees outlive the send.
type constBufferArray struct {
	segs [][]byte
}

// NewConstBuffer wraps a single read-only caller-owned buffer.
func NewConstBuffer(data []byte) Buffer {
	if len(data) == 0 {
		return &constBufferArray{}
	}
	return &constBufferArray{segs: [][]byte{data}}
}

// NewConstBufferArray wraps multiple read-only caller-owned buffers as
// one logical DataBuffer (the "_array" / "_ptr_array" variants collapse
// to the same representation in Go, which has no pointer-to-iovec
// distinction worth preserving).
func NewConstBufferArray(segs [][]byte) Buffer {
	return &constBufferArray{segs: segs}
}

func (b *constBufferArray) Kind() Kind {
	if len(b.segs) <= 1 {
		return KindConstBuffer
	}
	return KindConstBufferArray
}
func (b *constBufferArray) Len() int {
	n := 0
	for _, s := range b.segs {
		n += len(s)
	}
	return n
}
func (b *constBufferArray) Contiguous() bool { return len(b.segs) <= 1 }
func (b *constBufferArray) Segments() [][]byte {
	out := make([][]byte, 0, len(b.segs))
	for _, s := range b.segs {
		if len(s) > 0 {
			out = append(out, s)
		}
	}
	return out
}
func (b *constBufferArray) Consume(n int) Buffer {
	segs := consumeSegments(b.segs, n)
	return &constBufferArray{segs: segs}
}

// mutableBufferArray is the writable counterpart, used for receive-side
// scatter reads into caller-supplied buffers.
type mutableBufferArray struct {
	segs [][]byte
}

// NewMutableBuffer wraps a single writable caller-owned buffer.
func NewMutableBuffer(data []byte) Buffer {
	if len(data) == 0 {
		return &mutableBufferArray{}
	}
	return &mutableBufferArray{segs: [][]byte{data}}
}

// NewMutableBufferArray wraps multiple writable caller-owned buffers.
func NewMutableBufferArray(segs [][]byte) Buffer {
	return &mutableBufferArray{segs: segs}
}

func (b *mutableBufferArray) Kind() Kind {
	if len(b.segs) <= 1 {
		return KindMutableBuffer
	}
	return KindMutableBufferArray
}
func (b *mutableBufferArray) Len() int {
	n := 0
	for _, s := range b.segs {
		n += len(s)
	}
	return n
}
func (b *mutableBufferArray) Contiguous() bool    { return len(b.segs) <= 1 }
func (b *mutableBufferArray) Segments() [][]byte  { return b.segs }
func (b *mutableBufferArray) Consume(n int) Buffer {
	return &mutableBufferArray{segs: consumeSegments(b.segs, n)}
}

// str wraps an immutable Go string without copying it into a []byte
// until a syscall boundary actually needs one.
type str struct {
	s string
}

// NewString wraps a Go string as a DataBuffer.
func NewString(s string) Buffer { return &str{s: s} }

func (b *str) Kind() Kind       { return KindString }
func (b *str) Len() int         { return len(b.s) }
func (b *str) Contiguous() bool { return true }
func (b *str) Segments() [][]byte {
	if b.s == "" {
		return nil
	}
	return [][]byte{[]byte(b.s)}
}
func (b *str) Consume(n int) Buffer {
	if n >= len(b.s) {
		return &str{}
	}
	return &str{s: b.s[n:]}
}

// consumeSegments drops n leading bytes across a scatter array, slicing
// the first partially-consumed segment rather than copying.
func consumeSegments(segs [][]byte, n int) [][]byte {
	i := 0
	for i < len(segs) && n >= len(segs[i]) {
		n -= len(segs[i])
		i++
	}
	if i >= len(segs) {
		return nil
	}
	out := make([][]byte, 0, len(segs)-i)
	out = append(out, segs[i][n:])
	out = append(out, segs[i+1:]...)
	return out
}

// TotalLen sums Len() across a set of buffers; a small helper used by
// the send queue to maintain its size counter without re-deriving it.
func TotalLen(buffers ...Buffer) int {
	n := 0
	for _, b := range buffers {
		n += b.Len()
	}
	return n
}
