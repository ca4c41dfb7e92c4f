// Package pool provides pooled byte buffers for row assembly and block
// serialization.
package pool

import (
	"sync"
)

const (
	// RowBufferDefaultSize is the initial capacity of a row buffer. Rows
	// longer than this grow the buffer by doubling.
	RowBufferDefaultSize = 16 * 1024 // 16KiB

	// RowBufferMaxThreshold is the largest buffer returned to the pool;
	// anything bigger is dropped so one huge row doesn't pin memory.
	RowBufferMaxThreshold = 1024 * 1024 // 1MiB
)

// ByteBuffer is a minimal growable byte buffer. The underlying slice is
// exported so hot paths can append directly.
type ByteBuffer struct {
	B []byte
}

// NewByteBuffer creates a ByteBuffer with the given initial capacity.
func NewByteBuffer(defaultSize int) *ByteBuffer {
	return &ByteBuffer{B: make([]byte, 0, defaultSize)}
}

// Bytes returns the underlying byte slice.
func (bb *ByteBuffer) Bytes() []byte { return bb.B }

// Len returns the current length of the buffer.
func (bb *ByteBuffer) Len() int { return len(bb.B) }

// Cap returns the current capacity of the buffer.
func (bb *ByteBuffer) Cap() int { return cap(bb.B) }

// Reset empties the buffer but keeps its capacity for reuse.
func (bb *ByteBuffer) Reset() { bb.B = bb.B[:0] }

// MustWrite appends data, growing the buffer as needed.
func (bb *ByteBuffer) MustWrite(data []byte) {
	bb.B = append(bb.B, data...)
}

// WriteByte appends a single byte.
func (bb *ByteBuffer) WriteByte(c byte) {
	bb.B = append(bb.B, c)
}

// Grow ensures the buffer can hold requiredBytes more bytes without
// reallocating. Small buffers grow by RowBufferDefaultSize; larger ones by
// 25% of capacity.
func (bb *ByteBuffer) Grow(requiredBytes int) {
	available := cap(bb.B) - len(bb.B)
	if available >= requiredBytes {
		return
	}

	growBy := RowBufferDefaultSize
	if cap(bb.B) > 4*RowBufferDefaultSize {
		growBy = cap(bb.B) / 4
	}
	if growBy < requiredBytes {
		growBy = requiredBytes
	}

	newBuf := make([]byte, len(bb.B), len(bb.B)+growBy)
	copy(newBuf, bb.B)
	bb.B = newBuf
}

var rowBufferPool = sync.Pool{
	New: func() any {
		return NewByteBuffer(RowBufferDefaultSize)
	},
}

// GetRowBuffer obtains a reset buffer from the pool.
func GetRowBuffer() *ByteBuffer {
	bb := rowBufferPool.Get().(*ByteBuffer)
	bb.Reset()

	return bb
}

// PutRowBuffer returns a buffer to the pool. Oversized buffers are dropped.
func PutRowBuffer(bb *ByteBuffer) {
	if bb == nil || cap(bb.B) > RowBufferMaxThreshold {
		return
	}
	rowBufferPool.Put(bb)
}
