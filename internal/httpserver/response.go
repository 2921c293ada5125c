//go:build linux

package httpserver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/lcf163/mywebserver/internal/buffer"
)

var suffixType = map[string]string{
	".html": "text/html",
	".xml":  "text/xml",
	".xhtml": "application/xhtml+xml",
	".txt":  "text/plain",
	".rtf":  "application/rtf",
	".pdf":  "application/pdf",
	".word": "application/nsword",
	".png":  "image/png",
	".gif":  "image/gif",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".au":   "audio/basic",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".avi":  "video/x-msvideo",
	".gz":   "application/x-gzip",
	".tar":  "application/x-tar",
	".css":  "text/css",
	".js":   "text/javascript",
}

var codeStatus = map[int]string{
	200: "OK",
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
}

var codePath = map[int]string{
	400: "/400.html",
	403: "/403.html",
	404: "/404.html",
}

// Response builds a status line + headers + mmap-backed body for one HTTP
// response, mirroring the original ResponseBuilder's mmap ownership rules:
// the mapping is released via Unmap before Close and before the next Init.
type Response struct {
	SrcDir    string
	Path      string
	KeepAlive bool
	Code      int

	mapped   []byte
	fileSize int64
}

// NewResponse constructs a Response that will serve srcDir+path.
func NewResponse(srcDir, path string, keepAlive bool, code int) *Response {
	return &Response{SrcDir: srcDir, Path: path, KeepAlive: keepAlive, Code: code}
}

// resolvePath canonicalizes path under srcDir, rejecting any resolution
// that escapes srcDir via ".." traversal — the §9 fix to the original's
// unmitigated path handling.
func resolvePath(srcDir, path string) (string, bool) {
	full := filepath.Join(srcDir, filepath.Clean("/"+path))
	cleanRoot := filepath.Clean(srcDir)
	if full != cleanRoot && !strings.HasPrefix(full, cleanRoot+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

// MakeResponse resolves the target file, writes status/headers into buf,
// and mmaps the body for iovec delivery. On any resource error it rewrites
// the response to the matching error page.
func (r *Response) MakeResponse(buf *buffer.Buffer) error {
	full, ok := resolvePath(r.SrcDir, r.Path)
	var st os.FileInfo
	var statErr error
	if ok {
		st, statErr = os.Stat(full)
	}

	missingOrForbidden := !ok || statErr != nil || st.IsDir() || st.Mode().Perm()&0o444 == 0
	if missingOrForbidden {
		code := 404
		if !ok || (statErr == nil && (st.IsDir() || st.Mode().Perm()&0o444 == 0)) {
			code = 403
		}
		r.Code = code
		r.Path = codePath[code]
		r.KeepAlive = false
		full, _ = resolvePath(r.SrcDir, r.Path)
		st, statErr = os.Stat(full)
		if statErr != nil {
			r.addStateAndHeaders(buf, 0)
			r.errorContent(buf, "resource not found")
			return nil
		}
	}

	r.fileSize = st.Size()
	r.addStateAndHeaders(buf, r.fileSize)

	f, err := os.Open(full)
	if err != nil {
		r.errorContent(buf, "cannot open file")
		return nil
	}
	defer f.Close()

	if st.Size() == 0 {
		return nil
	}

	mapped, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		r.errorContent(buf, "mmap failed")
		return nil
	}
	r.mapped = mapped
	return nil
}

func (r *Response) addStateAndHeaders(buf *buffer.Buffer, contentLength int64) {
	reason, ok := codeStatus[r.Code]
	if !ok {
		reason = "Bad Request"
	}
	buf.Append([]byte(fmt.Sprintf("HTTP/1.1 %d %s\r\n", r.Code, reason)))

	if r.KeepAlive {
		buf.Append([]byte("Connection: keep-alive\r\n"))
		buf.Append([]byte("keep-alive: max=6, timeout=120\r\n"))
	} else {
		buf.Append([]byte("Connection: close\r\n"))
	}
	buf.Append([]byte(fmt.Sprintf("Content-Type: %s\r\n", r.fileType())))
	buf.Append([]byte(fmt.Sprintf("Content-Length: %d\r\n\r\n", contentLength)))
}

func (r *Response) fileType() string {
	ext := filepath.Ext(r.Path)
	if ct, ok := suffixType[ext]; ok {
		return ct
	}
	return "text/plain"
}

// errorContent emits an inline error body (used when mmap or stat fails
// entirely, so there is no file to serve).
func (r *Response) errorContent(buf *buffer.Buffer, message string) {
	reason := codeStatus[r.Code]
	body := fmt.Sprintf("<html><title>Error</title><body>%d : %s\n%s\n</body></html>", r.Code, reason, message)
	buf.Append([]byte(fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))))
	buf.Append([]byte(body))
}

// File returns the mmapped body, or nil if none is mapped.
func (r *Response) File() []byte { return r.mapped }

// FileLen returns the size of the mapped body.
func (r *Response) FileLen() int64 { return r.fileSize }

// Unmap releases the mmapped region. Idempotent.
func (r *Response) Unmap() {
	if r.mapped != nil {
		unix.Munmap(r.mapped)
		r.mapped = nil
	}
}
