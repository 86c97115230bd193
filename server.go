package uhttpd

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/xqyjlj/uhttpd/pkg/auth"
	"github.com/xqyjlj/uhttpd/pkg/constants"
	"github.com/xqyjlj/uhttpd/pkg/filehandler"
	"github.com/xqyjlj/uhttpd/pkg/pathresolver"
	"github.com/xqyjlj/uhttpd/pkg/registry"
	"github.com/xqyjlj/uhttpd/pkg/request"
	"github.com/xqyjlj/uhttpd/pkg/wire"
)

// ServeRequest drives one connection through Reading -> Dispatching ->
// Responding -> Closing. It always returns StateClosing; the caller (the
// event-loop collaborator) is responsible for calling
// registry.Registry.Remove on the client once this returns — teardown
// stays outside the handler itself.
func ServeRequest(cfg *Config, client *registry.Client, realms *auth.RealmSet, log *logrus.Logger) State {
	if log == nil {
		log = logrus.StandardLogger()
	}

	conn := newConn(cfg, client)
	reader := bufio.NewReader(client.Conn)

	req, err := request.Parse(reader)
	if err != nil {
		log.WithFields(logrus.Fields{
			"client_id": client.ID,
			"error":     err.Error(),
		}).Debug("failed to parse request")
		return StateClosing
	}

	indexFiles := cfg.IndexFiles
	if len(indexFiles) == 0 {
		indexFiles = constants.DefaultIndexFiles
	}

	info, err := pathresolver.Resolve(cfg.Docroot, req.URI, cfg.NoSymlinks, indexFiles)
	if err != nil {
		writeSimple(conn, req.Version, 404, "Not Found", "404 Not Found\n")
		return StateClosing
	}

	if info.Redirected {
		writeRedirect(conn, req.Version, info.RedirectLocation)
		return StateClosing
	}

	if realms != nil && realms.Len() > 0 {
		if _, authErr := realms.Check(req, info); authErr != nil {
			writeUnauthorized(conn, req.Version, cfg.Realm)
			return StateClosing
		}
	}

	client.Timer.StartResponding()
	mime := filehandler.MIMELookup(func(ext string) string {
		if cfg.MIME == nil {
			return ""
		}
		return cfg.MIME(ext)
	})
	if err := filehandler.Serve(conn, req, info, filehandler.Options{NoDirLists: cfg.NoDirLists, MIME: mime}); err != nil {
		log.WithFields(logrus.Fields{
			"client_id": client.ID,
			"error":     err.Error(),
		}).Debug("error while serving request")
	}
	client.Timer.EndResponding()

	return StateClosing
}

// newConn builds this request's I/O primitives and, when Config.TLS is
// set, records the hooks on client so Registry.Remove can invoke the TLS
// close hook ahead of the raw socket close.
func newConn(cfg *Config, client *registry.Client) *wire.Conn {
	timeout := cfg.NetworkTimeout
	if timeout == 0 {
		timeout = constants.DefaultNetworkTimeout
	}
	if cfg.TLS != nil {
		client.SetTLSHooks(cfg.TLS)
		return wire.NewWithHooks(client.Conn, cfg.TLS, timeout)
	}
	return wire.New(client.Conn, timeout)
}

func writeSimple(conn *wire.Conn, version request.Version, code int, reason, body string) error {
	var b strings.Builder
	b.WriteString(version.String() + " " + strconv.Itoa(code) + " " + reason + "\r\n")
	b.WriteString("Connection: close\r\n")
	b.WriteString("Content-Type: text/plain\r\n")
	if version == request.Version11 {
		b.WriteString("Transfer-Encoding: chunked\r\n")
	} else {
		b.WriteString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n")
	}
	b.WriteString("\r\n")

	if err := conn.Send([]byte(b.String())); err != nil {
		return err
	}
	if err := conn.SendFragment(version, []byte(body)); err != nil {
		return err
	}
	return conn.EndBody(version)
}

// writeRedirect emits the 302 Found response for a directory requested
// without a trailing slash.
func writeRedirect(conn *wire.Conn, version request.Version, location string) error {
	var b strings.Builder
	b.WriteString(version.String() + " 302 Found\r\n")
	b.WriteString("Location: " + location + "\r\n")
	b.WriteString("Connection: close\r\n")
	b.WriteString("Content-Length: 0\r\n")
	b.WriteString("\r\n")
	return conn.Send([]byte(b.String()))
}

// writeUnauthorized emits the 401 challenge: a WWW-Authenticate header
// naming realm and the fixed 23-byte body.
func writeUnauthorized(conn *wire.Conn, version request.Version, realm string) error {
	body := constants.AuthFailureBody

	var b strings.Builder
	b.WriteString(version.String() + " 401 Authorization Required\r\n")
	b.WriteString(`WWW-Authenticate: Basic realm="` + realm + `"` + "\r\n")
	b.WriteString("Connection: close\r\n")
	b.WriteString("Content-Type: text/plain\r\n")
	if version == request.Version11 {
		b.WriteString("Transfer-Encoding: chunked\r\n")
	} else {
		b.WriteString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n")
	}
	b.WriteString("\r\n")

	if err := conn.Send([]byte(b.String())); err != nil {
		return err
	}
	if err := conn.SendFragment(version, []byte(body)); err != nil {
		return err
	}
	return conn.EndBody(version)
}
