// Package constants defines magic numbers and default values used
// throughout the uhttpd core.
package constants

import "time"

// Network timeouts
const (
	// DefaultNetworkTimeout bounds every individual send/recv wait
	// (Config.NetworkTimeout) when a deployment does not set one.
	DefaultNetworkTimeout = 30 * time.Second
)

// Streaming and buffer limits
const (
	// StreamChunkSize is the fixed-size buffer used to stream a regular
	// file's body.
	StreamChunkSize = 64 * 1024

	// DefaultScratchMemLimit bounds the in-memory portion of a
	// buffer.Buffer before it spills to disk (directory-listing HTML,
	// request header accumulation).
	DefaultScratchMemLimit = 1 * 1024 * 1024 // 1MB

	// MaxHeaderBytes caps the size of a request's header section.
	MaxHeaderBytes = 64 * 1024
)

// Wire-format constants
const (
	// HTTPDateLayout is the RFC 1123 date format used for Last-Modified,
	// Date, and If-Modified-Since/If-Unmodified-Since headers:
	// "Wkd, DD Mon YYYY HH:MM:SS GMT".
	HTTPDateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

	// ChunkTerminator is the HTTP/1.1 chunked-encoding terminator emitted
	// by an empty wire.Conn.SendChunk call.
	ChunkTerminator = "0\r\n\r\n"

	// AuthFailureBody is the fixed plain-text body sent with every 401
	// response. Its length (23 bytes) is part of the wire contract.
	AuthFailureBody = "Authorization Required\n"
)

// DefaultIndexFiles is the ordered list of filenames tried, in order, when
// a directory is requested with a trailing slash and no path_info residue.
var DefaultIndexFiles = []string{"index.html", "index.htm"}
