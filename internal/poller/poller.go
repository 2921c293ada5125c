//go:build linux

// Package poller is a thin wrapper over Linux epoll, giving the reactor a
// uniform add/modify/remove/wait surface independent of the raw epoll
// event-mask bit layout.
package poller

import (
	"golang.org/x/sys/unix"
)

// Interest is a bitmask of readiness conditions a caller wants to observe.
type Interest uint32

const (
	Readable   Interest = unix.EPOLLIN
	Writable   Interest = unix.EPOLLOUT
	PeerClosed Interest = unix.EPOLLRDHUP
	Err        Interest = unix.EPOLLERR
	Hup        Interest = unix.EPOLLHUP
	OneShot    Interest = unix.EPOLLONESHOT
	EdgeTrig   Interest = unix.EPOLLET
)

// ErrOrHup is the subset of interest bits that indicate the connection
// should be torn down rather than re-armed.
const ErrOrHup = PeerClosed | Err | Hup

// Event reports the fd and ready mask of a single readiness notification.
type Event struct {
	Fd    int
	Ready Interest
}

// Poller owns one epoll instance.
type Poller struct {
	epfd   int
	events []unix.EpollEvent
}

// Open creates a new epoll instance sized for up to maxEvents readiness
// notifications per Wait call.
func Open(maxEvents int) (*Poller, error) {
	if maxEvents <= 0 {
		maxEvents = 1024
	}
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Poller{epfd: fd, events: make([]unix.EpollEvent, maxEvents)}, nil
}

// Add registers fd with the given interest set.
func (p *Poller) Add(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: uint32(interest), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Modify re-arms fd with a new interest set, used after one-shot
// consumption of a previous event.
func (p *Poller) Modify(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: uint32(interest), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Remove unregisters fd.
func (p *Poller) Remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks up to timeoutMs (or indefinitely if negative) and returns the
// ready events in a newly allocated slice. An interrupted wait (EINTR)
// returns no events and no error.
func (p *Poller) Wait(timeoutMs int) ([]Event, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Event, n)
	for i := 0; i < n; i++ {
		out[i] = Event{Fd: int(p.events[i].Fd), Ready: Interest(p.events[i].Events)}
	}
	return out, nil
}

// Close releases the epoll file descriptor.
func (p *Poller) Close() error {
	return unix.Close(p.epfd)
}
