// Package registry owns the Listener and Client lifecycle: a Client
// exists in the registry from Add until Remove, and removal invokes the
// TLS close hook (if any) and closes the connection exactly once. The
// registry holds no timers; timeouts are per-call deadlines in pkg/wire.
package registry

import (
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/xqyjlj/uhttpd/pkg/timing"
	"github.com/xqyjlj/uhttpd/pkg/wire"
)

// Listener is an accepting socket plus the local address it is bound to.
// Config is intentionally opaque here (root package owns its shape); the
// registry only needs to track which listener a Client came from.
type Listener struct {
	Addr net.Addr
	raw  net.Listener
}

// NewListener wraps raw for registry bookkeeping.
func NewListener(raw net.Listener) *Listener {
	return &Listener{Addr: raw.Addr(), raw: raw}
}

// Close closes the underlying accepting socket.
func (l *Listener) Close() error {
	return l.raw.Close()
}

// Client is a single accepted connection's registry-owned state: the
// live net.Conn, which Listener it was accepted on, a per-request Timer
// for diagnostic logging of time spent in the Responding state, and the
// optional TLS hooks ServeRequest wired up for this connection.
// SetTLSHooks must be called, if at all, before the connection is ever
// handed to Remove/Shutdown, so the close path has hooks to invoke.
type Client struct {
	ID     uint64
	Conn   net.Conn
	Parent *Listener
	Timer  *timing.Timer

	mu       sync.Mutex
	closed   bool
	tlsHooks wire.Hooks
}

// SetTLSHooks records the TLS send/recv/close hooks this connection is
// using, so that Remove/Shutdown can invoke the TLS close hook before
// closing the raw descriptor. A nil hooks value (the plaintext case) is
// the default and requires no call.
func (c *Client) SetTLSHooks(hooks wire.Hooks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tlsHooks = hooks
}

// Registry tracks every live Client, keyed by ID, guaranteeing a Client
// is removed (and its descriptor closed) at most once.
type Registry struct {
	mu      sync.Mutex
	clients map[uint64]*Client
	nextID  uint64
	log     *logrus.Logger
}

// New creates an empty Registry. A nil logger falls back to logrus's
// standard logger, matching the ambient-logging convention used
// throughout this module.
func New(log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{clients: make(map[uint64]*Client), log: log}
}

// Add registers conn (accepted on parent) and returns the Client owning
// it. The Client is live in the registry from this call until Remove or
// Shutdown closes it.
func (r *Registry) Add(conn net.Conn, parent *Listener) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	c := &Client{
		ID:     r.nextID,
		Conn:   conn,
		Parent: parent,
		Timer:  timing.NewTimer(),
	}
	r.clients[c.ID] = c

	r.log.WithFields(logrus.Fields{
		"client_id": c.ID,
		"remote":    conn.RemoteAddr().String(),
	}).Debug("client accepted")

	return c
}

// Lookup returns the Client with the given ID, or nil if it is not (or
// no longer) registered.
func (r *Registry) Lookup(id uint64) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clients[id]
}

// Remove tears a client down: it invokes the TLS close hook if one was
// recorded via SetTLSHooks, then closes the raw connection and drops
// the client from the registry. Safe to
// call more than once or concurrently; only the first call actually
// closes anything.
func (r *Registry) Remove(c *Client) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	hooks := c.tlsHooks
	c.mu.Unlock()

	r.mu.Lock()
	delete(r.clients, c.ID)
	r.mu.Unlock()

	metrics := c.Timer.GetMetrics()
	r.log.WithFields(logrus.Fields{
		"client_id":  c.ID,
		"responding": metrics.Responding.String(),
	}).Debug("client removed")

	var hookErr error
	if hooks != nil {
		if hookErr = hooks.Close(); hookErr != nil {
			r.log.WithFields(logrus.Fields{
				"client_id": c.ID,
				"error":     hookErr.Error(),
			}).Warn("error closing TLS hooks during remove")
		}
	}

	connErr := c.Conn.Close()
	if hookErr != nil {
		return hookErr
	}
	return connErr
}

// Shutdown removes and closes every currently registered client, the way
// a listener's own shutdown tears down all of its accepted connections.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.Unlock()

	for _, c := range clients {
		if err := r.Remove(c); err != nil {
			r.log.WithFields(logrus.Fields{
				"client_id": c.ID,
				"error":     err.Error(),
			}).Warn("error closing client during shutdown")
		}
	}
}

// Len reports the number of currently registered clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
