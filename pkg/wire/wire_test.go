package wire_test

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/xqyjlj/uhttpd/pkg/request"
	"github.com/xqyjlj/uhttpd/pkg/wire"
)

func TestEncodeChunkNonEmpty(t *testing.T) {
	got := wire.EncodeChunk([]byte("hello"))
	want := "5\r\nhello\r\n"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEncodeChunkTerminator(t *testing.T) {
	got := wire.EncodeChunk(nil)
	if string(got) != "0\r\n\r\n" {
		t.Fatalf("got %q", got)
	}
}

func TestEncodeChunkUppercaseNoLeadingZero(t *testing.T) {
	got := wire.EncodeChunk(bytes.Repeat([]byte("a"), 0x2AB))
	if !strings.HasPrefix(string(got), "2AB\r\n") {
		t.Fatalf("expected hex length 2AB in uppercase with no leading zero, got %q", got[:8])
	}
}

func TestChunkFramingRoundTrip(t *testing.T) {
	fragments := [][]byte{[]byte("first"), []byte("second"), []byte("")}
	var buf bytes.Buffer
	for _, f := range fragments {
		buf.Write(wire.EncodeChunk(f))
	}

	// Decode it back by hand and confirm it reassembles the original
	// concatenation followed by the terminator.
	raw := buf.Bytes()
	var decoded bytes.Buffer
	for len(raw) > 0 {
		nl := bytes.IndexByte(raw, '\n')
		if nl < 0 {
			t.Fatal("malformed chunk stream")
		}
		sizeLine := raw[:nl-1] // strip trailing \r
		raw = raw[nl+1:]
		var size int64
		for _, c := range sizeLine {
			size <<= 4
			switch {
			case c >= '0' && c <= '9':
				size |= int64(c - '0')
			case c >= 'A' && c <= 'F':
				size |= int64(c-'A') + 10
			}
		}
		if size == 0 {
			break
		}
		decoded.Write(raw[:size])
		raw = raw[size+2:] // skip payload + trailing CRLF
	}

	if decoded.String() != "firstsecond" {
		t.Fatalf("decoded %q", decoded.String())
	}
}

func TestConnSendRecvOverPipe(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sc := wire.New(server, time.Second)
	cc := wire.New(client, time.Second)

	done := make(chan error, 1)
	go func() {
		done <- sc.Send([]byte("hello, world"))
	}()

	buf := make([]byte, 64)
	n, err := cc.Recv(buf)
	if err != nil {
		t.Fatalf("recv failed: %v", err)
	}
	if string(buf[:n]) != "hello, world" {
		t.Fatalf("got %q", buf[:n])
	}
	if err := <-done; err != nil {
		t.Fatalf("send failed: %v", err)
	}
}

func TestSendFragmentVersionAware(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sc := wire.New(server, time.Second)

	done := make(chan error, 1)
	go func() {
		done <- sc.SendFragment(request.Version10, []byte("raw body"))
	}()

	buf := make([]byte, 64)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(buf[:n]) != "raw body" {
		t.Fatalf("HTTP/1.0 fragment should be raw, got %q", buf[:n])
	}
	<-done
}

func TestRecvZeroIsClosed(t *testing.T) {
	server, client := net.Pipe()
	cc := wire.New(client, time.Second)
	server.Close()

	buf := make([]byte, 16)
	_, err := cc.Recv(buf)
	if err == nil {
		t.Fatal("expected an error after peer closed the connection")
	}
}
