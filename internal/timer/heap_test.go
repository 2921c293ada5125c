package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeapOrdersByExpiry(t *testing.T) {
	h := New()
	fired := make([]int, 0, 3)
	h.Add(3, 30*time.Millisecond, func() { fired = append(fired, 3) })
	h.Add(1, 10*time.Millisecond, func() { fired = append(fired, 1) })
	h.Add(2, 20*time.Millisecond, func() { fired = append(fired, 2) })

	// force-expire everything by moving the clock forward
	h.now = func() time.Time { return time.Now().Add(time.Hour) }
	h.Tick()
	assert.Equal(t, []int{1, 2, 3}, fired)
	assert.Equal(t, 0, h.Len())
}

func TestHeapAddThenDelThenAddRestoresPresence(t *testing.T) {
	h := New()
	h.Add(42, time.Minute, func() {})
	h.Del(42)
	_, present := h.ref[42]
	require.False(t, present)

	h.Add(42, time.Minute, func() {})
	n, present := h.ref[42]
	require.True(t, present)
	assert.Equal(t, 42, n.id)
}

func TestNextTickMsZeroForExpiredRoot(t *testing.T) {
	h := New()
	ran := false
	h.Add(1, time.Millisecond, func() { ran = true })
	h.now = func() time.Time { return time.Now().Add(time.Hour) }

	ms := h.NextTickMs()
	assert.Equal(t, 0, ms)
	assert.True(t, ran)
	assert.Equal(t, -1, h.NextTickMs())
}

func TestAdjustReordersHeap(t *testing.T) {
	h := New()
	order := make([]int, 0, 2)
	h.Add(1, 10*time.Millisecond, func() { order = append(order, 1) })
	h.Add(2, 20*time.Millisecond, func() { order = append(order, 2) })

	h.Adjust(1, time.Hour) // push id 1 far into the future

	h.now = func() time.Time { return time.Now().Add(30 * time.Millisecond) }
	h.Tick()
	assert.Equal(t, []int{2}, order)
	assert.Equal(t, 1, h.Len())
}
