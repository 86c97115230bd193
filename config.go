// Package uhttpd is the root facade tying the path resolver, conditional
// engine, auth engine, file handler, and connection registry into a
// single embeddable origin server core. ServeRequest takes a
// *registry.Client and an *auth.RealmSet, so callers still import
// pkg/registry and pkg/auth.
package uhttpd

import (
	"time"

	"github.com/xqyjlj/uhttpd/pkg/wire"
)

// Config is the shared, read-only-after-startup configuration this core
// consumes. Parsing Config from flags, files, or environment is a
// bootstrap concern this core does not own; callers hand it an
// already-populated value.
type Config struct {
	// Docroot is the absolute filesystem path all served content is
	// jailed under.
	Docroot string

	// Realm is the value advertised in WWW-Authenticate: Basic
	// realm="<Realm>" challenges.
	Realm string

	// NetworkTimeout bounds every individual send/recv wait on a
	// connection. Zero selects constants.DefaultNetworkTimeout.
	NetworkTimeout time.Duration

	// NoSymlinks selects the path resolver's canonicalization mode: true
	// resolves every symlink (realpath-equivalent); false is lexical-only.
	NoSymlinks bool

	// NoDirLists disables directory-index rendering; a directory request
	// is served 403 instead.
	NoDirLists bool

	// IndexFiles is the ordered list of filenames tried, in order, when a
	// directory is requested with a trailing slash.
	IndexFiles []string

	// MIME resolves a file's Content-Type from its extension,
	// right-to-left from the last "." or "/".
	MIME MIMELookup

	// TLS optionally routes send/recv/close through a TLS implementation
	// instead of the plain socket. Nil means plaintext HTTP.
	TLS TLSHooks
}

// MIMELookup resolves a file extension (including the leading ".") to a
// Content-Type, or "" if unknown (the caller falls back to
// application/octet-stream).
type MIMELookup func(ext string) string

// TLSHooks is the optional TLS collaborator contract: send, recv, and
// close routed through the TLS backend. It is exactly pkg/wire.Hooks,
// aliased here so callers configuring a Config never need to import
// pkg/wire themselves.
type TLSHooks = wire.Hooks

// EventLoop is the external event-loop collaborator contract: the
// bootstrap code this core's demo program stands in for, not something
// the core implements itself.
type EventLoop interface {
	Attach(fd int, onReadable, onWritable func()) error
	Detach(fd int) error
	CancelTimeout(handle any)
}
