//go:build linux

// Package conn implements the per-connection read->process->write state
// machine described in spec.md §4.5, backed by buffer.Buffer and driven by
// httpserver's parser/responder.
package conn

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/lcf163/mywebserver/internal/buffer"
	"github.com/lcf163/mywebserver/internal/dbpool"
	"github.com/lcf163/mywebserver/internal/httpserver"
)

// ErrClosed names the closed-connection condition. No Conn method returns
// it: Close on an already-closed Conn returns nil, and ReadOnce and
// WriteOnce do not check the closed flag.
var ErrClosed = errors.New("conn: closed")

const gatherWriteThreshold = 10 * 1024 // 10 KiB, per spec.md §4.5

// Conn is one accepted connection's full I/O and parsing state. It is
// manipulated by exactly one worker goroutine at a time (the one-shot
// concurrency invariant of spec.md §5), except for Close/generation
// bookkeeping which the reactor goroutine may also touch.
type Conn struct {
	fd         int
	peer       string
	edgeTrig   bool
	srcDir     string
	generation atomic.Uint64 // bumped on every Init, guards stale timer callbacks

	readBuf  *buffer.Buffer
	writeBuf *buffer.Buffer
	request  *httpserver.Request
	response *httpserver.Response

	iovBase [2][]byte // iov[0] headers, iov[1] mmapped body

	closed atomic.Bool
}

// New allocates an empty, closed Conn slot.
func New() *Conn {
	c := &Conn{
		readBuf:  buffer.New(buffer.InitialSize),
		writeBuf: buffer.New(buffer.InitialSize),
		request:  httpserver.NewRequest(),
	}
	c.closed.Store(true)
	return c
}

// Init resets the slot for a newly accepted fd and returns the generation
// stamp timer callbacks must present to Close to avoid acting on a stale,
// since-reused slot.
func (c *Conn) Init(fd int, peer string, srcDir string, edgeTrig bool) uint64 {
	c.fd = fd
	c.peer = peer
	c.srcDir = srcDir
	c.edgeTrig = edgeTrig
	c.readBuf.RetrieveAll()
	c.writeBuf.RetrieveAll()
	c.request.Reset()
	c.response = nil
	c.iovBase[0], c.iovBase[1] = nil, nil
	gen := c.generation.Add(1)
	c.closed.Store(false)
	return gen
}

// Fd returns the connection's file descriptor.
func (c *Conn) Fd() int { return c.fd }

// Generation returns the current init stamp, for timer-callback staleness
// checks.
func (c *Conn) Generation() uint64 { return c.generation.Load() }

// Closed reports whether the connection has been torn down.
func (c *Conn) Closed() bool { return c.closed.Load() }

// ReadOnce drains readable data into the read buffer. In edge-triggered
// mode it loops until EAGAIN to fully drain one readiness notification; in
// level-triggered mode a single read suffices. It returns the last observed
// length; length<=0 with err==EAGAIN means "readiness drained", any other
// non-positive result is a hard failure the caller should treat as a close.
func (c *Conn) ReadOnce() (int, error) {
	var n int
	var err error
	for {
		n, err = c.readBuf.ReadFd(c.fd)
		if n <= 0 {
			return n, err
		}
		if !c.edgeTrig {
			return n, nil
		}
	}
}

// Process feeds the read buffer to the parser. A false return means the
// request is incomplete and the caller should re-arm readable interest; a
// true return means a response has been built into the write buffer and the
// caller should re-arm writable interest.
//
// request is reset at the top of every call, mirroring the original's
// request.init() at the top of process(): a keep-alive connection's second
// and later requests must start from StageRequestLine rather than seeing
// the previous request's StageDone and replaying its stale response.
func (c *Conn) Process(db *dbpool.Pool) bool {
	c.request.Reset()
	if c.readBuf.ReadableBytes() == 0 {
		return false
	}

	result := c.request.Parse(c.readBuf, db)
	switch result {
	case httpserver.Incomplete:
		return false
	case httpserver.Complete:
		c.unmapResponse()
		c.response = httpserver.NewResponse(c.srcDir, c.request.Path, c.request.IsKeepAlive(), 200)
	case httpserver.BadRequest:
		c.unmapResponse()
		c.response = httpserver.NewResponse(c.srcDir, c.request.Path, false, 400)
	}

	c.response.MakeResponse(c.writeBuf)
	c.iovBase[0] = c.writeBuf.Peek()
	if c.response.FileLen() > 0 && c.response.File() != nil {
		c.iovBase[1] = c.response.File()
	} else {
		c.iovBase[1] = nil
	}
	return true
}

// WriteOnce gather-writes the pending iovecs. It loops while edge-triggered
// or while more than 10 KiB remains (spec.md §4.5's cap on a single burst),
// advancing both iovec bases/lengths and the write buffer's read cursor as
// bytes are accepted by the kernel.
func (c *Conn) WriteOnce() (int, error) {
	var n int
	var err error
	for {
		if len(c.iovBase[0]) == 0 && len(c.iovBase[1]) == 0 {
			return n, nil
		}

		n, err = unix.Writev(c.fd, [][]byte{c.iovBase[0], c.iovBase[1]})
		if err != nil {
			return n, err
		}
		if n <= 0 {
			return n, nil
		}

		if n >= len(c.iovBase[0]) {
			consumed := len(c.iovBase[0])
			c.iovBase[0] = nil
			c.writeBuf.RetrieveAll()
			rest := n - consumed
			if rest > 0 && len(c.iovBase[1]) > 0 {
				c.iovBase[1] = c.iovBase[1][rest:]
			}
		} else {
			c.writeBuf.Retrieve(n)
			c.iovBase[0] = c.iovBase[0][n:]
		}

		if c.BytesToWrite() == 0 {
			return n, nil
		}
		if !c.edgeTrig && c.BytesToWrite() <= gatherWriteThreshold {
			return n, nil
		}
	}
}

// BytesToWrite reports the combined length of the pending iovecs.
func (c *Conn) BytesToWrite() int { return len(c.iovBase[0]) + len(c.iovBase[1]) }

// KeepAlive reports whether the current request asked to reuse the
// connection (HTTP/1.1, Connection: keep-alive).
func (c *Conn) KeepAlive() bool { return c.request.IsKeepAlive() }

// unmapResponse releases the current response's mmapped body, if any. Every
// request on a keep-alive connection builds its own Response, so this must
// run before each replacement, not just once at Close.
func (c *Conn) unmapResponse() {
	if c.response != nil {
		c.response.Unmap()
	}
}

// Close releases the mmapped response body (if any), closes the fd, and
// marks the connection closed. Idempotent.
func (c *Conn) Close() error {
	c.unmapResponse()
	if c.closed.Swap(true) {
		return nil // already closed
	}
	return unix.Close(c.fd)
}

// IsEAGAIN reports whether err is the kernel's "would block" signal for a
// non-blocking socket.
func IsEAGAIN(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}
