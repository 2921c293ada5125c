package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferInvariants(t *testing.T) {
	b := New(16)
	assert.Equal(t, 0, b.ReadableBytes())
	assert.Equal(t, 16, b.WritableBytes())
	assert.Equal(t, 0, b.PrependableBytes())

	b.Append([]byte("hello"))
	assert.Equal(t, 5, b.ReadableBytes())
	assert.Equal(t, 11, b.WritableBytes())

	b.Retrieve(2)
	assert.Equal(t, 2, b.PrependableBytes())
	assert.Equal(t, "llo", string(b.Peek()))
}

func TestBufferRetrieveAllIdempotent(t *testing.T) {
	b := New(16)
	b.Append([]byte("payload"))
	b.RetrieveAll()
	b.RetrieveAll()
	assert.Equal(t, 0, b.ReadableBytes())
	assert.Equal(t, 0, b.PrependableBytes())
}

func TestBufferCompactsBeforeGrowing(t *testing.T) {
	b := New(8)
	b.Append([]byte("abcdefgh")) // fills capacity exactly
	b.Retrieve(6)                // readPos=6, writePos=8, 2 bytes readable
	before := cap(b.buf)

	b.EnsureWritable(5) // writable(0)+prependable(6) >= 5: compact, no grow
	assert.Equal(t, before, cap(b.buf))
	assert.Equal(t, 0, b.readPos)
	assert.Equal(t, "gh", string(b.Peek()))
}

func TestBufferGrowsWhenCompactionInsufficient(t *testing.T) {
	b := New(8)
	b.Append([]byte("abcdefgh"))
	b.Retrieve(1) // only 1 byte prependable, 7 readable

	b.EnsureWritable(20)
	require.GreaterOrEqual(t, b.WritableBytes(), 20)
	assert.Equal(t, "bcdefgh", string(b.Peek()))
}

func TestRetrieveUntil(t *testing.T) {
	b := New(32)
	b.Append([]byte("GET / HTTP/1.1\r\n"))
	idx := b.readPos
	for idx < b.writePos-1 && !(b.buf[idx] == '\r' && b.buf[idx+1] == '\n') {
		idx++
	}
	b.RetrieveUntil(idx + 2)
	assert.Equal(t, 0, b.ReadableBytes())
}
