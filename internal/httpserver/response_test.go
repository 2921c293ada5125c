//go:build linux

package httpserver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcf163/mywebserver/internal/buffer"
)

func writeTestSite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>hi</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "404.html"), []byte("not found"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "secret"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret", "top.txt"), []byte("shh"), 0o600))
	return dir
}

func TestResolvePathRejectsTraversal(t *testing.T) {
	dir := writeTestSite(t)
	_, ok := resolvePath(dir, "/../../../../etc/passwd")
	assert.False(t, ok)
}

func TestResolvePathAllowsWithinRoot(t *testing.T) {
	dir := writeTestSite(t)
	full, ok := resolvePath(dir, "/index.html")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "index.html"), full)
}

func TestMakeResponseServesFile(t *testing.T) {
	dir := writeTestSite(t)
	buf := buffer.New(256)
	resp := NewResponse(dir, "/index.html", true, 200)
	require.NoError(t, resp.MakeResponse(buf))

	assert.Contains(t, string(buf.Peek()), "HTTP/1.1 200 OK")
	assert.Contains(t, string(buf.Peek()), "Connection: keep-alive")
	assert.Equal(t, int64(len("<h1>hi</h1>")), resp.FileLen())
	assert.Equal(t, "<h1>hi</h1>", string(resp.File()))
	resp.Unmap()
	resp.Unmap() // idempotent
}

func TestMakeResponseMissingFileFallsBackTo404(t *testing.T) {
	dir := writeTestSite(t)
	buf := buffer.New(256)
	resp := NewResponse(dir, "/nope.html", true, 200)
	require.NoError(t, resp.MakeResponse(buf))

	assert.Equal(t, 404, resp.Code)
	assert.Contains(t, string(buf.Peek()), "HTTP/1.1 404 Not Found")
}

func TestMakeResponseTraversalFallsBackTo403(t *testing.T) {
	dir := writeTestSite(t)
	// no 403.html in this fixture: MakeResponse should still not panic and
	// should fall back to the inline error body.
	buf := buffer.New(256)
	resp := NewResponse(dir, "/../escape.html", true, 200)
	require.NoError(t, resp.MakeResponse(buf))
	assert.Equal(t, 403, resp.Code)
}
