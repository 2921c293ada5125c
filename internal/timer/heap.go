// Package timer implements an indexed binary min-heap of idle-connection
// timers, supporting O(log n) add/adjust/remove by connection id.
package timer

import (
	"container/heap"
	"time"
)

// Callback fires when a timer node expires.
type Callback func()

// node is a single scheduled timeout, ordered by Expires.
type node struct {
	id      int
	expires time.Time
	cb      Callback
	index   int // position in the heap slice, maintained by heap.Interface
}

// innerHeap implements container/heap.Interface and keeps index up to date
// on every swap, which is what lets Heap look up and mutate an arbitrary
// node by id in O(log n) via the id->index map in Heap.
type innerHeap []*node

func (h innerHeap) Len() int            { return len(h) }
func (h innerHeap) Less(i, j int) bool  { return h[i].expires.Before(h[j].expires) }
func (h innerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *innerHeap) Push(x any) {
	n := x.(*node)
	n.index = len(*h)
	*h = append(*h, n)
}

func (h *innerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Heap is an indexed min-heap of timer nodes keyed by connection id.
type Heap struct {
	h   innerHeap
	ref map[int]*node
	now func() time.Time // overridable for tests
}

// New returns an empty Heap.
func New() *Heap {
	return &Heap{ref: make(map[int]*node), now: time.Now}
}

// Add registers (or reschedules, if id is already present) a timer that
// fires cb after timeout elapses.
func (h *Heap) Add(id int, timeout time.Duration, cb Callback) {
	if n, ok := h.ref[id]; ok {
		n.expires = h.now().Add(timeout)
		n.cb = cb
		heap.Fix(&h.h, n.index)
		return
	}
	n := &node{id: id, expires: h.now().Add(timeout), cb: cb}
	h.ref[id] = n
	heap.Push(&h.h, n)
}

// Adjust reschedules an existing timer's expiry. It is a programming error
// to call Adjust for an id that was never Added.
func (h *Heap) Adjust(id int, timeout time.Duration) {
	n, ok := h.ref[id]
	if !ok {
		panic("timer: adjust on unknown id")
	}
	n.expires = h.now().Add(timeout)
	heap.Fix(&h.h, n.index)
}

// Del removes the timer for id, if present.
func (h *Heap) Del(id int) {
	n, ok := h.ref[id]
	if !ok {
		return
	}
	heap.Remove(&h.h, n.index)
	delete(h.ref, id)
}

// Len reports the number of scheduled timers.
func (h *Heap) Len() int { return h.h.Len() }

// Tick invokes and removes every timer whose expiry has already passed.
// Callback invocations happen on the calling goroutine; a callback must not
// re-enter the Heap other than through this public API, which is safe
// because the expired node is removed only after its callback returns.
func (h *Heap) Tick() {
	for h.h.Len() > 0 {
		n := h.h[0]
		if n.expires.After(h.now()) {
			return
		}
		n.cb()
		if cur, ok := h.ref[n.id]; ok && cur == n {
			heap.Remove(&h.h, n.index)
			delete(h.ref, n.id)
		}
	}
}

// NextTickMs runs Tick() first. It returns 0 if the root had already
// expired (its callback has then run), -1 if the heap is empty (no
// deadline), and otherwise the milliseconds until the root expires.
func (h *Heap) NextTickMs() int {
	expired := h.h.Len() > 0 && !h.h[0].expires.After(h.now())
	h.Tick()
	if expired {
		return 0
	}
	if h.h.Len() == 0 {
		return -1
	}
	ms := h.h[0].expires.Sub(h.now()).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return int(ms)
}
