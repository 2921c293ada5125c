//go:build linux

// Package server implements the Reactor: the single-threaded event loop
// that owns the listening socket, the Poller, the TimerHeap, and a
// fixed-size slot map of ConnectionState, dispatching readiness events to a
// bounded WorkerPool and driving per-connection lifecycle. Modeled on
// gaio's watcher.loop()/handlePending/handleEvents discipline: one
// goroutine owns the poller and timer heap, so per-connection state never
// needs locking so long as each fd carries at most one in-flight event.
package server

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"go.uber.org/zap"

	"github.com/lcf163/mywebserver/internal/conn"
	"github.com/lcf163/mywebserver/internal/dbpool"
	"github.com/lcf163/mywebserver/internal/poller"
	"github.com/lcf163/mywebserver/internal/timer"
	"github.com/lcf163/mywebserver/internal/workerpool"
)

// MaxFD bounds the number of simultaneously open connections, per spec.md §4.8.
const MaxFD = 65536

// ErrServerClosed is returned once the reactor has shut down.
var ErrServerClosed = errors.New("server: closed")

// Config carries the subset of config.Config the reactor needs directly.
type Config struct {
	Port          int
	TrigMode      int
	IdleTimeout   time.Duration
	LingerOn      bool
	WorkerCount   int
	MaxQueueDepth int
	SrcDir        string
}

// Reactor is the server's main event loop.
type Reactor struct {
	cfg    Config
	log    *zap.Logger
	db     *dbpool.Pool
	pool   *poller.Poller
	timers *timer.Heap
	work   *workerpool.Pool

	listenFd     int
	listenEvent  poller.Interest
	connEvent    poller.Interest
	connEdgeTrig bool

	slots     [MaxFD]*conn.Conn
	userCount atomic.Int64

	closed atomic.Bool
}

// New wires up a Reactor from cfg, a logger, and a database pool.
func New(cfg Config, log *zap.Logger, db *dbpool.Pool) (*Reactor, error) {
	p, err := poller.Open(1024)
	if err != nil {
		return nil, fmt.Errorf("server: open poller: %w", err)
	}

	r := &Reactor{
		cfg:    cfg,
		log:    log,
		db:     db,
		pool:   p,
		timers: timer.New(),
		work:   workerpool.New(cfg.WorkerCount, cfg.MaxQueueDepth),
	}
	r.initEventMode(cfg.TrigMode)

	if err := r.initSocket(); err != nil {
		p.Close()
		return nil, err
	}
	return r, nil
}

// initEventMode sets up listener/connection interest masks per the
// trigger-mode matrix of spec.md §4.8.
func (r *Reactor) initEventMode(trigMode int) {
	r.listenEvent = poller.PeerClosed
	r.connEvent = poller.OneShot | poller.PeerClosed

	switch trigMode {
	case 0:
	case 1:
		r.connEvent |= poller.EdgeTrig
	case 2:
		r.listenEvent |= poller.EdgeTrig
	case 3:
		r.listenEvent |= poller.EdgeTrig
		r.connEvent |= poller.EdgeTrig
	default:
		r.listenEvent |= poller.EdgeTrig
		r.connEvent |= poller.EdgeTrig
	}
	r.connEdgeTrig = r.connEvent&poller.EdgeTrig != 0
}

func (r *Reactor) initSocket() error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return fmt.Errorf("server: socket: %w", err)
	}

	if r.cfg.LingerOn {
		ling := unix.Linger{Onoff: 1, Linger: 20}
		if err := unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &ling); err != nil {
			unix.Close(fd)
			return fmt.Errorf("server: setsockopt linger: %w", err)
		}
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return fmt.Errorf("server: setsockopt reuseaddr: %w", err)
	}

	addr := &unix.SockaddrInet4{Port: r.cfg.Port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return fmt.Errorf("server: bind port %d: %w", r.cfg.Port, err)
	}
	if err := unix.Listen(fd, 6); err != nil {
		unix.Close(fd)
		return fmt.Errorf("server: listen: %w", err)
	}
	if err := r.pool.Add(fd, r.listenEvent|poller.Readable); err != nil {
		unix.Close(fd)
		return fmt.Errorf("server: register listener: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return fmt.Errorf("server: set nonblocking: %w", err)
	}

	r.listenFd = fd
	r.log.Info("server listening", zap.Int("port", r.cfg.Port))
	return nil
}

// Run blocks, driving the reactor loop until Close is called.
func (r *Reactor) Run() error {
	r.log.Info("reactor start")
	for !r.closed.Load() {
		waitMs := -1
		if r.cfg.IdleTimeout > 0 {
			waitMs = r.timers.NextTickMs()
		}

		events, err := r.pool.Wait(waitMs)
		if err != nil {
			r.log.Error("poller wait failed", zap.Error(err))
			return fmt.Errorf("server: poll: %w", err)
		}

		for _, ev := range events {
			r.dispatch(ev)
		}
	}
	return ErrServerClosed
}

func (r *Reactor) dispatch(ev poller.Event) {
	if ev.Fd == r.listenFd {
		r.dealListen()
		return
	}

	c := r.slots[ev.Fd]
	if c == nil || c.Closed() {
		return
	}

	if ev.Ready&poller.ErrOrHup != 0 {
		r.closeConn(c)
		return
	}
	if ev.Ready&poller.Readable != 0 {
		r.extendTimer(c)
		gen := c.Generation()
		_ = r.work.Submit(func() { r.onRead(c, gen) })
		return
	}
	if ev.Ready&poller.Writable != 0 {
		r.extendTimer(c)
		gen := c.Generation()
		_ = r.work.Submit(func() { r.onWrite(c, gen) })
	}
}

func (r *Reactor) dealListen() {
	for {
		fd, _, err := unix.Accept(r.listenFd)
		if err != nil {
			return
		}
		if int(r.userCount.Load()) >= MaxFD {
			sendBusy(fd)
			unix.Close(fd)
			r.log.Warn("connection pool full")
			continue
		}
		r.addClient(fd)

		if r.listenEvent&poller.EdgeTrig == 0 {
			return // level-triggered: one accept per readiness is enough
		}
	}
}

func sendBusy(fd int) {
	msg := []byte("HTTP/1.1 503 Service Unavailable\r\nConnection: close\r\nContent-Length: 11\r\n\r\nServer busy")
	unix.Write(fd, msg)
}

func (r *Reactor) addClient(fd int) {
	unix.SetNonblock(fd, true)

	c := r.slots[fd]
	if c == nil {
		c = conn.New()
		r.slots[fd] = c
	}
	c.Init(fd, "", r.cfg.SrcDir, r.connEdgeTrig)
	r.userCount.Add(1)

	if r.cfg.IdleTimeout > 0 {
		gen := c.Generation()
		r.timers.Add(fd, r.cfg.IdleTimeout, func() {
			if c.Generation() == gen && !c.Closed() {
				r.closeConn(c)
			}
		})
	}

	if err := r.pool.Add(fd, poller.Readable|r.connEvent); err != nil {
		r.log.Warn("poller add failed", zap.Int("fd", fd), zap.Error(err))
		r.closeConn(c)
	}
}

func (r *Reactor) extendTimer(c *conn.Conn) {
	if r.cfg.IdleTimeout <= 0 {
		return
	}
	r.timers.Adjust(c.Fd(), r.cfg.IdleTimeout)
}

func (r *Reactor) closeConn(c *conn.Conn) {
	if c.Closed() {
		return
	}
	r.pool.Remove(c.Fd())
	c.Close()
	r.userCount.Add(-1)
}

// onRead runs on a worker goroutine: drain the socket, then hand off to
// onProcess. gen guards against acting on a slot that has since been
// reused by a different connection.
func (r *Reactor) onRead(c *conn.Conn, gen uint64) {
	if c.Generation() != gen || c.Closed() {
		return
	}
	n, err := c.ReadOnce()
	if n <= 0 && !conn.IsEAGAIN(err) {
		r.closeConn(c)
		return
	}
	r.onProcess(c, gen)
}

// onProcess runs the parser/responder and re-arms the appropriate
// direction of interest.
func (r *Reactor) onProcess(c *conn.Conn, gen uint64) {
	if c.Generation() != gen || c.Closed() {
		return
	}
	if c.Process(r.db) {
		if err := r.pool.Modify(c.Fd(), poller.Writable|r.connEvent); err != nil {
			r.closeConn(c)
		}
		return
	}
	if err := r.pool.Modify(c.Fd(), poller.Readable|r.connEvent); err != nil {
		r.closeConn(c)
	}
}

// onWrite runs on a worker goroutine: flush the pending iovecs, then either
// loop back to onProcess (keep-alive) or close the connection.
func (r *Reactor) onWrite(c *conn.Conn, gen uint64) {
	if c.Generation() != gen || c.Closed() {
		return
	}
	n, err := c.WriteOnce()

	if c.BytesToWrite() == 0 {
		if c.KeepAlive() {
			r.onProcess(c, gen)
			return
		}
		r.closeConn(c)
		return
	}

	if n < 0 && conn.IsEAGAIN(err) {
		if err := r.pool.Modify(c.Fd(), poller.Writable|r.connEvent); err != nil {
			r.closeConn(c)
		}
		return
	}
	r.closeConn(c)
}

// Close shuts the reactor down: stops accepting, drains the worker pool,
// and releases the poller and listener.
func (r *Reactor) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.work.Shutdown()
	r.pool.Close()
	return unix.Close(r.listenFd)
}

// UserCount reports the number of currently open connections.
func (r *Reactor) UserCount() int64 { return r.userCount.Load() }
