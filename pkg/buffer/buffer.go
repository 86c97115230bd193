// Package buffer provides a memory-efficient scratch store that spills to
// disk once it grows past a configured threshold: the directory-listing
// HTML renderer uses it to render a listing of unknown size without an
// unbounded []byte, and pkg/request's header accumulator uses the
// size-bounded variant (NewBounded) so a client trickling a header block
// cannot consume unbounded memory or disk. A response body is already
// bounded by the file being served, but request input is
// attacker-controlled, and on resource-constrained embedded targets a
// hard ceiling matters for both backing stores, not just the in-memory
// one.
package buffer

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/xqyjlj/uhttpd/pkg/errors"
)

const (
	// DefaultMemoryLimit is the default threshold before a Buffer spills
	// to disk.
	DefaultMemoryLimit = 4 * 1024 * 1024 // 4MB
)

// Buffer stores data either in memory or spooled to a temporary file once
// it exceeds a configured limit.
type Buffer struct {
	buf     bytes.Buffer
	file    *os.File
	path    string
	size    int64
	limit   int64
	maxSize int64 // 0 means unbounded
	mu      sync.Mutex
	closed  bool
}

// New creates a new Buffer with the provided memory limit and no overall
// size cap (suitable for a response body, whose total size is already
// bounded by the file being served).
func New(limit int64) *Buffer {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &Buffer{limit: limit}
}

// NewBounded creates a Buffer that spills to disk past limit bytes in
// memory, the same as New, but additionally refuses to grow past
// maxSize total bytes across memory and disk combined. Use this for
// attacker-controlled input (e.g. accumulating request headers) where
// nothing else caps how much a slow or malicious client can make the
// server store.
func NewBounded(limit, maxSize int64) *Buffer {
	b := New(limit)
	b.maxSize = maxSize
	return b
}

// NewWithData creates a new buffer preloaded with data.
func NewWithData(data []byte) *Buffer {
	b := &Buffer{
		limit: DefaultMemoryLimit,
		size:  int64(len(data)),
	}
	b.buf.Write(data)
	return b
}

// Write stores p, spilling to disk once above the configured memory
// threshold.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errors.NewIOError("write", nil)
	}

	if b.maxSize > 0 && b.size+int64(len(p)) > b.maxSize {
		return 0, errors.NewMalformedInputError("write", "buffer exceeds configured maximum size", nil)
	}

	b.size += int64(len(p))

	if b.file == nil && int64(b.buf.Len()+len(p)) <= b.limit {
		return b.buf.Write(p)
	}

	if b.file == nil {
		tmp, err := os.CreateTemp("", "uhttpd-buffer-*.tmp")
		if err != nil {
			return 0, errors.NewIOError("create scratch file", err)
		}

		b.file = tmp
		b.path = tmp.Name()

		if b.buf.Len() > 0 {
			if _, err := tmp.Write(b.buf.Bytes()); err != nil {
				b.Close()
				return 0, errors.NewIOError("spill to scratch file", err)
			}
		}

		b.buf.Reset()
	}

	n, err := b.file.Write(p)
	if err != nil {
		return n, errors.NewIOError("write scratch file", err)
	}
	return n, nil
}

// Bytes returns the in-memory data. If the payload spilled to disk this is
// empty; use Reader instead when the caller cannot assume an in-memory
// payload.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file != nil {
		return nil
	}
	return b.buf.Bytes()
}

// Path returns the filesystem path backing the spilled payload, or "" if
// the buffer never spilled.
func (b *Buffer) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.path
}

// Size returns the total number of bytes written.
func (b *Buffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// IsSpilled reports whether the buffer has spilled to disk.
func (b *Buffer) IsSpilled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file != nil
}

// Reader returns a fresh reader over the stored data, regardless of
// whether it lives in memory or on disk.
func (b *Buffer) Reader() (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.NewIOError("reader", nil)
	}

	if b.file != nil {
		if err := b.file.Sync(); err != nil {
			return nil, errors.NewIOError("sync scratch file", err)
		}

		f, err := os.Open(b.path)
		if err != nil {
			return nil, errors.NewIOError("open scratch file", err)
		}
		return f, nil
	}

	return io.NopCloser(bytes.NewReader(b.buf.Bytes())), nil
}

// Close flushes and removes the underlying temp file, if any. Safe for
// concurrent and repeated calls.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if b.file != nil {
		err := b.file.Close()
		if removeErr := os.Remove(b.path); removeErr != nil && err == nil {
			err = errors.NewIOError("remove scratch file", removeErr)
		}
		b.file = nil
		b.path = ""
		if err != nil {
			return errors.NewIOError("close scratch file", err)
		}
	}
	return nil
}

// Reset clears the buffer and prepares it for reuse.
func (b *Buffer) Reset() error {
	if err := b.Close(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf.Reset()
	b.size = 0
	b.closed = false
	return nil
}
