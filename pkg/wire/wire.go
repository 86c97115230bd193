// Package wire implements the connection I/O primitives: deadline-bounded
// send/recv with short-write looping over either a plain or TLS-hooked
// connection, and the chunked-encoding helpers the file handler uses for
// HTTP/1.1 framing.
package wire

import (
	"io"
	"net"
	"time"

	"github.com/xqyjlj/uhttpd/pkg/constants"
	"github.com/xqyjlj/uhttpd/pkg/errors"
	"github.com/xqyjlj/uhttpd/pkg/request"
)

// Hooks is the send-recv-close contract a TLS backend implements so its
// traffic can replace the plain socket's. A Conn wraps either a bare
// net.Conn or a Hooks implementation interchangeably.
type Hooks interface {
	Send(b []byte) (int, error)
	Recv(b []byte) (int, error)
	Close() error
}

// netConnHooks adapts a net.Conn to Hooks for the unencrypted case.
type netConnHooks struct{ net.Conn }

func (h netConnHooks) Send(b []byte) (int, error) { return h.Write(b) }
func (h netConnHooks) Recv(b []byte) (int, error) { return h.Read(b) }

// Conn is a single connection's I/O primitives: deadline-bounded send
// and recv with short-write looping, over either a plain socket or a
// TLS hook pair.
type Conn struct {
	conn    net.Conn // always set; used for SetDeadline even under TLS hooks
	hooks   Hooks
	timeout time.Duration
}

// New wraps conn with plain-socket hooks.
func New(conn net.Conn, timeout time.Duration) *Conn {
	return &Conn{conn: conn, hooks: netConnHooks{conn}, timeout: timeout}
}

// NewWithHooks wraps conn for deadline purposes but routes Send/Recv/Close
// through hooks (the TLS case).
func NewWithHooks(conn net.Conn, hooks Hooks, timeout time.Duration) *Conn {
	return &Conn{conn: conn, hooks: hooks, timeout: timeout}
}

// Send writes all of b, looping over short writes, bounded by the
// connection's network timeout. A zero-length write mid-loop or an
// EOF-like zero return is treated as the connection having closed rather
// than retried, so a dead peer cannot spin the write loop.
func (c *Conn) Send(b []byte) error {
	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return errors.NewIOError("set write deadline", err)
		}
		defer c.conn.SetWriteDeadline(time.Time{})
	}

	written := 0
	for written < len(b) {
		n, err := c.hooks.Send(b[written:])
		if err != nil {
			return errors.NewIOError("send", err)
		}
		if n == 0 {
			return errors.NewIOError("send", io.ErrClosedPipe)
		}
		written += n
	}
	return nil
}

// Recv reads into b once, bounded by the network timeout, and returns
// the byte count read. A zero count is reported as an I/O error wrapping
// io.EOF (connection closed), so callers never see n==0 with a nil
// error.
func (c *Conn) Recv(b []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, errors.NewIOError("set read deadline", err)
		}
		defer c.conn.SetReadDeadline(time.Time{})
	}

	n, err := c.hooks.Recv(b)
	if err != nil {
		return n, errors.NewIOError("recv", err)
	}
	if n == 0 {
		return 0, errors.NewIOError("recv", io.EOF)
	}
	return n, nil
}

// Close invokes the underlying hooks' close (the TLS close hook, or the
// raw socket close).
func (c *Conn) Close() error {
	return c.hooks.Close()
}

// EncodeChunk renders a single HTTP/1.1 chunk for payload. A zero-length
// payload produces the terminator chunk ("0\r\n\r\n"); otherwise it emits
// the uppercase-hex length with no leading zeros, CRLF, the payload, and
// a trailing CRLF.
func EncodeChunk(payload []byte) []byte {
	if len(payload) == 0 {
		return []byte(constants.ChunkTerminator)
	}
	size := []byte(hexUpper(len(payload)))
	out := make([]byte, 0, len(size)+2+len(payload)+2)
	out = append(out, size...)
	out = append(out, '\r', '\n')
	out = append(out, payload...)
	out = append(out, '\r', '\n')
	return out
}

func hexUpper(n int) string {
	if n == 0 {
		return "0"
	}
	const digits = "0123456789ABCDEF"
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = digits[n&0xf]
		n >>= 4
	}
	return string(buf[i:])
}

// SendChunk writes a single chunk-encoded fragment. An empty payload
// emits the chunked terminator.
func (c *Conn) SendChunk(payload []byte) error {
	return c.Send(EncodeChunk(payload))
}

// SendFragment writes a body fragment using version-aware framing:
// HTTP/1.1 chunk-encodes it, HTTP/1.0 (and 0.9) send it raw. The file
// and directory handlers stop after headers for HEAD and never call
// this; the short 401/403/404 bodies are sent whatever the method.
func (c *Conn) SendFragment(version request.Version, payload []byte) error {
	if version == request.Version11 {
		return c.SendChunk(payload)
	}
	if len(payload) == 0 {
		return nil
	}
	return c.Send(payload)
}

// EndBody terminates a response body: HTTP/1.1 sends the empty chunk,
// HTTP/1.0 sends nothing further (the connection close itself signals
// end-of-body).
func (c *Conn) EndBody(version request.Version) error {
	if version == request.Version11 {
		return c.SendChunk(nil)
	}
	return nil
}
