// Package buffer implements the growable byte buffer that underlies all
// per-connection socket I/O.
//
// Memory layout:
//
//	0 ---------- readPos ---------- writePos ---------- cap(buf)
//	| prependable (reclaimed) |   readable   |   writable    |
//
// A Buffer is owned by exactly one connection and must never be shared
// across goroutines concurrently.
package buffer

import (
	"golang.org/x/sys/unix"
)

// extensionSize is the size of the on-stack scatter-read extension used to
// drain an edge-triggered socket in a single syscall without pre-growing
// the buffer for rare large messages.
const extensionSize = 65536

// InitialSize is the default capacity for a freshly constructed Buffer.
const InitialSize = 1024

// Buffer is a contiguous byte region with two cursors, readPos <= writePos,
// tracking the readable region [readPos, writePos) and the writable region
// [writePos, cap).
type Buffer struct {
	buf      []byte
	readPos  int
	writePos int
}

// New returns a Buffer with the given initial capacity.
func New(initialSize int) *Buffer {
	if initialSize <= 0 {
		initialSize = InitialSize
	}
	return &Buffer{buf: make([]byte, initialSize)}
}

// ReadableBytes returns the number of bytes available to read.
func (b *Buffer) ReadableBytes() int { return b.writePos - b.readPos }

// WritableBytes returns the number of bytes available to write.
func (b *Buffer) WritableBytes() int { return len(b.buf) - b.writePos }

// PrependableBytes returns the size of the reclaimable region before readPos.
func (b *Buffer) PrependableBytes() int { return b.readPos }

// Peek returns a view of the readable region without consuming it.
func (b *Buffer) Peek() []byte { return b.buf[b.readPos:b.writePos] }

// Retrieve advances readPos by n. Panics if n exceeds the readable region,
// mirroring the teacher's assert-on-violation failure model.
func (b *Buffer) Retrieve(n int) {
	if n > b.ReadableBytes() {
		panic("buffer: retrieve past writePos")
	}
	b.readPos += n
}

// RetrieveUntil advances readPos up to (but not past) end, an absolute index
// into the buffer's backing slice (readPos plus an offset into Peek()).
func (b *Buffer) RetrieveUntil(end int) {
	if end < b.readPos || end > b.writePos {
		panic("buffer: retrieveUntil out of range")
	}
	b.Retrieve(end - b.readPos)
}

// RetrieveAll zeroes the buffer contents and resets both cursors to 0.
// Idempotent: calling it twice in a row is equivalent to calling it once.
func (b *Buffer) RetrieveAll() {
	for i := range b.buf {
		b.buf[i] = 0
	}
	b.readPos = 0
	b.writePos = 0
}

// RetrieveToString copies the readable region into an owned string, then
// resets the buffer via RetrieveAll.
func (b *Buffer) RetrieveToString() string {
	s := string(b.Peek())
	b.RetrieveAll()
	return s
}

// EnsureWritable guarantees WritableBytes() >= need, growing the backing
// array or compacting the readable region to offset 0 as appropriate.
func (b *Buffer) EnsureWritable(need int) {
	if b.WritableBytes() >= need {
		return
	}
	b.makeSpace(need)
}

// Append copies data into the writable region, growing or compacting first
// if necessary, and advances writePos.
func (b *Buffer) Append(data []byte) {
	b.EnsureWritable(len(data))
	copy(b.buf[b.writePos:], data)
	b.writePos += len(data)
}

// makeSpace implements spec.md's growth-or-compaction rule: if the combined
// writable + prependable space is still insufficient, the backing array is
// resized; otherwise the readable bytes are shifted down to offset 0.
func (b *Buffer) makeSpace(need int) {
	if b.WritableBytes()+b.PrependableBytes() < need {
		grown := make([]byte, b.writePos+need+1)
		copy(grown, b.buf)
		b.buf = grown
		return
	}
	readable := b.ReadableBytes()
	copy(b.buf, b.buf[b.readPos:b.writePos])
	b.readPos = 0
	b.writePos = readable
}

// ReadFd performs a scatter read from fd: the writable tail of the buffer is
// used as the first iovec and a 64 KiB on-stack extension as the second, so
// a single readv(2) drains edge-triggered readiness without requiring the
// buffer to be pre-grown for large messages. If the kernel reports more
// bytes than the writable tail held, the overflow is appended from the
// extension, growing the buffer at most once.
func (b *Buffer) ReadFd(fd int) (int, error) {
	var extension [extensionSize]byte
	writable := b.WritableBytes()

	n, err := unix.Readv(fd, [][]byte{b.buf[b.writePos:], extension[:]})
	if err != nil {
		return n, err
	}

	if n <= writable {
		b.writePos += n
	} else {
		b.writePos = len(b.buf)
		b.Append(extension[:n-writable])
	}
	return n, nil
}

// WriteFd writes the readable region to fd and advances readPos by the
// number of bytes accepted by the kernel.
func (b *Buffer) WriteFd(fd int) (int, error) {
	n, err := unix.Write(fd, b.Peek())
	if n > 0 {
		b.readPos += n
	}
	return n, err
}
