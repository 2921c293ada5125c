package httpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcf163/mywebserver/internal/buffer"
)

func TestParseGetRoot(t *testing.T) {
	buf := buffer.New(128)
	buf.Append([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))

	req := NewRequest()
	result := req.Parse(buf, nil)

	require.Equal(t, Complete, result)
	assert.Equal(t, "/index.html", req.Path)
	assert.False(t, req.IsKeepAlive())
}

func TestParseIncompleteRequestLine(t *testing.T) {
	buf := buffer.New(128)
	buf.Append([]byte("GET / HTTP/1.1"))

	req := NewRequest()
	assert.Equal(t, Incomplete, req.Parse(buf, nil))
}

func TestParseBadRequest(t *testing.T) {
	buf := buffer.New(128)
	buf.Append([]byte("NOPE\r\n"))

	req := NewRequest()
	assert.Equal(t, BadRequest, req.Parse(buf, nil))
}

func TestParseKeepAliveHeader(t *testing.T) {
	buf := buffer.New(256)
	buf.Append([]byte("GET /index HTTP/1.1\r\nConnection: keep-alive\r\n\r\n"))

	req := NewRequest()
	require.Equal(t, Complete, req.Parse(buf, nil))
	assert.Equal(t, "/index.html", req.Path)
	assert.True(t, req.IsKeepAlive())
}

func TestParseBodyExactContentLength(t *testing.T) {
	body := "username=alice&password=secret"
	raw := "POST /login.html HTTP/1.1\r\n" +
		"Content-Type: application/x-www-form-urlencoded\r\n" +
		"Content-Length: " + itoa(len(body)) + "\r\n\r\n" + body

	buf := buffer.New(256)
	buf.Append([]byte(raw))

	req := NewRequest()
	require.Equal(t, Complete, req.Parse(buf, nil))
	assert.Equal(t, body, req.Body)
	assert.Equal(t, 0, buf.ReadableBytes())
}

func TestParseBodyOneByteShortIsIncomplete(t *testing.T) {
	raw := "POST /login.html HTTP/1.1\r\n" +
		"Content-Length: 10\r\n\r\n123456789" // 9 bytes, declared 10

	buf := buffer.New(256)
	buf.Append([]byte(raw))

	req := NewRequest()
	assert.Equal(t, Incomplete, req.Parse(buf, nil))
}

func TestParseBodyBytesPastContentLengthLeaveTrailer(t *testing.T) {
	raw := "POST /login.html HTTP/1.1\r\n" +
		"Content-Length: 5\r\n\r\n" + "abcde" + "NEXT"

	buf := buffer.New(256)
	buf.Append([]byte(raw))

	req := NewRequest()
	require.Equal(t, Complete, req.Parse(buf, nil))
	assert.Equal(t, "abcde", req.Body)
	assert.Equal(t, "NEXT", string(buf.Peek()))
}

func TestFormURLDecodingSingleByte(t *testing.T) {
	// %41 -> 'A', matching standard decoding, not the two-ASCII-digit bug.
	form := parseFormURLEncoded("name=%41%2B&q=a+b")
	assert.Equal(t, "A+", form["name"])
	assert.Equal(t, "a b", form["q"])
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}
