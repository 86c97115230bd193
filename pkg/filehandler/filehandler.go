// Package filehandler implements the file-serving decision tree: a
// regular file streams through the conditional engine and the wire's
// chunked-vs-raw framing; a directory (when listings are enabled)
// renders through pkg/dirlisting; anything else is 403.
package filehandler

import (
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/xqyjlj/uhttpd/pkg/codec"
	"github.com/xqyjlj/uhttpd/pkg/conditional"
	"github.com/xqyjlj/uhttpd/pkg/constants"
	"github.com/xqyjlj/uhttpd/pkg/dirlisting"
	"github.com/xqyjlj/uhttpd/pkg/errors"
	"github.com/xqyjlj/uhttpd/pkg/pathresolver"
	"github.com/xqyjlj/uhttpd/pkg/request"
	"github.com/xqyjlj/uhttpd/pkg/wire"
)

// MIMELookup resolves a Content-Type from a lowercased file extension
// (including the leading "."), which mimeFor extracts by scanning the
// name right-to-left to the last "." or "/"; a collaborator this core
// never owns.
type MIMELookup func(name string) string

// Options configures a single request's handling.
type Options struct {
	NoDirLists bool
	MIME       MIMELookup
}

// inode extracts the inode number backing fi when the underlying stat_t
// is available (every platform this module targets); falls back to 0
// on a platform where the type assertion fails, which only degrades
// ETag uniqueness, not correctness.
func inode(fi os.FileInfo) uint64 {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return uint64(st.Ino)
	}
	return 0
}

func mimeFor(name string, lookup MIMELookup) string {
	slash := strings.LastIndexByte(name, '/')
	dot := strings.LastIndexByte(name[slash+1:], '.')
	if dot < 0 {
		return "application/octet-stream"
	}
	ext := strings.ToLower(name[slash+1+dot:])
	if mime := lookup(ext); mime != "" {
		return mime
	}
	return "application/octet-stream"
}

// Serve dispatches req against info, writing the full response (status
// line, headers, and body) through conn. It never writes a second
// response after the first has begun; any I/O failure aborts and is
// returned for the caller to log and tear the connection down.
func Serve(conn *wire.Conn, req *request.Request, info *pathresolver.PathInfo, opts Options) error {
	switch {
	case info.Stat.Mode().IsRegular():
		return serveFile(conn, req, info, opts)
	case info.Stat.IsDir():
		if opts.NoDirLists {
			return serveForbidden(conn, req.Version, "directory listings are disabled")
		}
		return serveDirectory(conn, req, info, opts)
	default:
		return serveForbidden(conn, req.Version, "not a regular file or directory")
	}
}

func serveFile(conn *wire.Conn, req *request.Request, info *pathresolver.PathInfo, opts Options) error {
	etag := codec.ETag(inode(info.Stat), info.Stat.Size(), info.Stat.ModTime())
	mtime := info.Stat.ModTime()

	decision := conditional.Evaluate(&req.Headers, req.Method, etag, mtime)
	switch decision {
	case conditional.NotModified:
		return sendStatusOnly(conn, req.Version, 304, "Not Modified", etag, mtime, true)
	case conditional.PreconditionFailed:
		return sendStatusOnly(conn, req.Version, 412, "Precondition Failed", etag, mtime, false)
	}

	f, err := os.Open(info.Phys)
	if err != nil {
		return serveForbidden(conn, req.Version, "file open failed")
	}
	defer f.Close()

	mime := mimeFor(info.Name, opts.MIME)

	var headers strings.Builder
	headers.WriteString(statusLine(req.Version, 200, "OK"))
	headers.WriteString("Connection: close\r\n")
	headers.WriteString("Date: " + codec.FormatHTTPDate(time.Now()) + "\r\n")
	headers.WriteString("ETag: " + etag + "\r\n")
	headers.WriteString("Last-Modified: " + codec.FormatHTTPDate(mtime) + "\r\n")
	headers.WriteString("Content-Type: " + mime + "\r\n")
	headers.WriteString("Content-Length: " + itoa(info.Stat.Size()) + "\r\n")
	chunked := req.Version == request.Version11 && req.Method != request.MethodHead
	if chunked {
		headers.WriteString("Transfer-Encoding: chunked\r\n")
	}
	headers.WriteString("\r\n")

	if err := conn.Send([]byte(headers.String())); err != nil {
		return err
	}
	if req.Method == request.MethodHead {
		return nil
	}

	buf := make([]byte, constants.StreamChunkSize)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if err := conn.SendFragment(req.Version, buf[:n]); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return errors.NewIOError("read file", readErr)
		}
	}
	return conn.EndBody(req.Version)
}

func serveDirectory(conn *wire.Conn, req *request.Request, info *pathresolver.PathInfo, opts Options) error {
	buf, err := dirlisting.Render(info.Phys, info.Name, opts.MIME)
	if err != nil {
		return serveForbidden(conn, req.Version, "directory read failed")
	}
	defer buf.Close()

	var headers strings.Builder
	headers.WriteString(statusLine(req.Version, 200, "OK"))
	headers.WriteString("Connection: close\r\n")
	headers.WriteString("Date: " + codec.FormatHTTPDate(time.Now()) + "\r\n")
	headers.WriteString("Content-Type: text/html\r\n")
	chunked := req.Version == request.Version11 && req.Method != request.MethodHead
	if chunked {
		headers.WriteString("Transfer-Encoding: chunked\r\n")
	} else {
		headers.WriteString("Content-Length: " + itoa(buf.Size()) + "\r\n")
	}
	headers.WriteString("\r\n")

	if err := conn.Send([]byte(headers.String())); err != nil {
		return err
	}
	if req.Method == request.MethodHead {
		return nil
	}

	r, err := buf.Reader()
	if err != nil {
		return err
	}
	defer r.Close()

	out := make([]byte, constants.StreamChunkSize)
	for {
		n, readErr := r.Read(out)
		if n > 0 {
			if err := conn.SendFragment(req.Version, out[:n]); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return errors.NewIOError("read listing", readErr)
		}
	}
	return conn.EndBody(req.Version)
}

// serveForbidden emits a 403 with a short plain-text body for anything
// that is neither a servable file nor a listable directory.
func serveForbidden(conn *wire.Conn, version request.Version, reason string) error {
	body := "403 Forbidden: " + reason + "\n"

	var headers strings.Builder
	headers.WriteString(statusLine(version, 403, "Forbidden"))
	headers.WriteString("Connection: close\r\n")
	headers.WriteString("Content-Type: text/plain\r\n")
	if version == request.Version11 {
		headers.WriteString("Transfer-Encoding: chunked\r\n")
	} else {
		headers.WriteString("Content-Length: " + itoa(int64(len(body))) + "\r\n")
	}
	headers.WriteString("\r\n")

	if err := conn.Send([]byte(headers.String())); err != nil {
		return err
	}
	if err := conn.SendFragment(version, []byte(body)); err != nil {
		return err
	}
	return conn.EndBody(version)
}

// sendStatusOnly emits a conditional-engine response (304 or 412) with
// no body: 304 carries ETag/Last-Modified/Date validators, 412 carries
// only Connection: close.
func sendStatusOnly(conn *wire.Conn, version request.Version, code int, reason, etag string, mtime time.Time, includeValidators bool) error {
	var headers strings.Builder
	headers.WriteString(statusLine(version, code, reason))
	headers.WriteString("Connection: close\r\n")
	if includeValidators {
		headers.WriteString("Date: " + codec.FormatHTTPDate(time.Now()) + "\r\n")
		headers.WriteString("ETag: " + etag + "\r\n")
		headers.WriteString("Last-Modified: " + codec.FormatHTTPDate(mtime) + "\r\n")
	}
	headers.WriteString("\r\n")
	return conn.Send([]byte(headers.String()))
}

func statusLine(version request.Version, code int, reason string) string {
	return version.String() + " " + itoa(int64(code)) + " " + reason + "\r\n"
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
