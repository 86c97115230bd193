package filehandler_test

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xqyjlj/uhttpd/pkg/filehandler"
	"github.com/xqyjlj/uhttpd/pkg/pathresolver"
	"github.com/xqyjlj/uhttpd/pkg/request"
	"github.com/xqyjlj/uhttpd/pkg/wire"
)

func staticMIME(ext string) string {
	switch ext {
	case ".txt":
		return "text/plain"
	case ".html":
		return "text/html"
	default:
		return ""
	}
}

// drain reads everything written to conn's peer within a short window and
// returns it on the channel, unblocking wire.Conn.Send over the
// synchronous net.Pipe transport.
func drain(peer net.Conn) <-chan string {
	out := make(chan string, 1)
	go func() {
		var sb strings.Builder
		buf := make([]byte, 4096)
		for {
			peer.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
			n, err := peer.Read(buf)
			if n > 0 {
				sb.Write(buf[:n])
			}
			if err != nil {
				break
			}
		}
		out <- sb.String()
	}()
	return out
}

func TestServeRegularFileGet(t *testing.T) {
	docroot := t.TempDir()
	if err := os.WriteFile(filepath.Join(docroot, "a.txt"), []byte("hello world"), 0644); err != nil {
		t.Fatal(err)
	}

	info, err := pathresolver.Resolve(docroot, "/a.txt", false, nil)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	server, client := net.Pipe()
	defer client.Close()
	out := drain(client)

	req := &request.Request{Method: request.MethodGet, Version: request.Version11}
	conn := wire.New(server, time.Second)

	if err := filehandler.Serve(conn, req, info, filehandler.Options{MIME: staticMIME}); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	server.Close()

	resp := <-out
	if !strings.HasPrefix(resp, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("unexpected status line in: %q", resp)
	}
	if !strings.Contains(resp, "Content-Type: text/plain\r\n") {
		t.Errorf("missing Content-Type: %q", resp)
	}
	if !strings.Contains(resp, "Transfer-Encoding: chunked\r\n") {
		t.Errorf("expected chunked framing for HTTP/1.1 GET: %q", resp)
	}
	if !strings.Contains(resp, "hello world") {
		t.Errorf("expected the body to be present: %q", resp)
	}
	if !strings.HasSuffix(resp, "0\r\n\r\n") {
		t.Errorf("expected the chunk terminator at the end: %q", resp)
	}
}

func TestServeRegularFileHeadSuppressesChunking(t *testing.T) {
	docroot := t.TempDir()
	payload := strings.Repeat("x", 1024)
	if err := os.WriteFile(filepath.Join(docroot, "big.bin"), []byte(payload), 0644); err != nil {
		t.Fatal(err)
	}

	info, err := pathresolver.Resolve(docroot, "/big.bin", false, nil)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	server, client := net.Pipe()
	defer client.Close()
	out := drain(client)

	req := &request.Request{Method: request.MethodHead, Version: request.Version11}
	conn := wire.New(server, time.Second)

	if err := filehandler.Serve(conn, req, info, filehandler.Options{MIME: staticMIME}); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	server.Close()

	resp := <-out
	if strings.Contains(resp, "Transfer-Encoding") {
		t.Errorf("HEAD must not advertise chunked framing: %q", resp)
	}
	if !strings.Contains(resp, "Content-Length: 1024\r\n") {
		t.Errorf("expected Content-Length: 1024: %q", resp)
	}
	if strings.Contains(resp, "xxxx") {
		t.Error("HEAD must not include a body")
	}
}

func TestServeNotModifiedSkipsBody(t *testing.T) {
	docroot := t.TempDir()
	if err := os.WriteFile(filepath.Join(docroot, "a.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	info, err := pathresolver.Resolve(docroot, "/a.txt", false, nil)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	req := &request.Request{Method: request.MethodGet, Version: request.Version10}
	req.Headers.Add("If-Modified-Since", "Fri, 01 Jan 2100 00:00:00 GMT")

	server, client := net.Pipe()
	defer client.Close()
	out := drain(client)

	conn := wire.New(server, time.Second)
	if err := filehandler.Serve(conn, req, info, filehandler.Options{MIME: staticMIME}); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	server.Close()

	resp := <-out
	if !strings.HasPrefix(resp, "HTTP/1.0 304 Not Modified\r\n") {
		t.Fatalf("unexpected status line: %q", resp)
	}
	if strings.Contains(resp, "hello") {
		t.Error("304 must not carry a body")
	}
}

func TestServeDirectoryListing(t *testing.T) {
	docroot := t.TempDir()
	if err := os.Mkdir(filepath.Join(docroot, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(docroot, "sub", "a.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	info, err := pathresolver.Resolve(docroot, "/sub/", false, nil)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	server, client := net.Pipe()
	defer client.Close()
	out := drain(client)

	req := &request.Request{Method: request.MethodGet, Version: request.Version11}
	conn := wire.New(server, time.Second)

	if err := filehandler.Serve(conn, req, info, filehandler.Options{MIME: staticMIME}); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	server.Close()

	resp := <-out
	if !strings.Contains(resp, "Content-Type: text/html\r\n") {
		t.Errorf("expected an HTML listing: %q", resp)
	}
	if !strings.Contains(resp, "a.txt") {
		t.Errorf("expected the listing to mention a.txt: %q", resp)
	}
}

func TestServeDirectoryListingDisabledIsForbidden(t *testing.T) {
	docroot := t.TempDir()
	// t.TempDir creates 0700 directories; the resolver requires the
	// final component to be world-readable.
	if err := os.Chmod(docroot, 0755); err != nil {
		t.Fatal(err)
	}

	info, err := pathresolver.Resolve(docroot, "", false, nil)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	server, client := net.Pipe()
	defer client.Close()
	out := drain(client)

	req := &request.Request{Method: request.MethodGet, Version: request.Version11}
	conn := wire.New(server, time.Second)

	if err := filehandler.Serve(conn, req, info, filehandler.Options{MIME: staticMIME, NoDirLists: true}); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	server.Close()

	resp := <-out
	if !strings.HasPrefix(resp, "HTTP/1.1 403 Forbidden\r\n") {
		t.Fatalf("expected a 403 when directory listings are disabled: %q", resp)
	}
}
