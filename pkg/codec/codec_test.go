package codec_test

import (
	"strings"
	"testing"
	"time"

	"github.com/xqyjlj/uhttpd/pkg/codec"
)

func TestPercentRoundTrip(t *testing.T) {
	samples := []string{"", "abc123-_.~", "hello world", "/a/b/c", "日本語"}
	for _, s := range samples {
		enc := codec.PercentEncode(s)
		for i := 0; i < len(enc); i++ {
			c := enc[i]
			ok := c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' ||
				c == '-' || c == '_' || c == '.' || c == '~' || c == '%'
			if !ok {
				t.Fatalf("encode(%q) contains disallowed byte %q", s, c)
			}
		}
		dec, err := codec.PercentDecode(enc)
		if err != nil {
			t.Fatalf("decode(encode(%q)) failed: %v", s, err)
		}
		if dec != s {
			t.Fatalf("round trip mismatch: %q != %q", dec, s)
		}
	}
}

func TestPercentDecodeSlashEscape(t *testing.T) {
	got, err := codec.PercentDecode("a%2fb")
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got != "a/b" {
		t.Fatalf("got %q, want a/b", got)
	}
}

func TestPercentDecodeMalformed(t *testing.T) {
	cases := []string{"%", "%2", "%zz", "abc%"}
	for _, c := range cases {
		if _, err := codec.PercentDecode(c); err == nil {
			t.Errorf("expected error decoding %q", c)
		}
	}
}

func TestHTTPDateRoundTrip(t *testing.T) {
	ts := time.Date(2020, time.August, 18, 12, 0, 0, 0, time.UTC)
	s := codec.FormatHTTPDate(ts)
	if s != "Tue, 18 Aug 2020 12:00:00 GMT" {
		t.Fatalf("unexpected format: %q", s)
	}
	parsed, err := codec.ParseHTTPDate(s)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !parsed.Equal(ts) {
		t.Fatalf("parsed %v, want %v", parsed, ts)
	}
}

func TestETagStability(t *testing.T) {
	mtime := time.Unix(1597752000, 0)
	tag1 := codec.ETag(0x1a, 0x200, mtime)
	tag2 := codec.ETag(0x1a, 0x200, mtime)
	if tag1 != tag2 {
		t.Fatalf("expected stable tag, got %q vs %q", tag1, tag2)
	}
	if !strings.HasPrefix(tag1, `"1a-200-`) {
		t.Fatalf("unexpected tag format: %q", tag1)
	}

	changed := codec.ETag(0x1a, 0x200, mtime.Add(time.Second))
	if changed == tag1 {
		t.Fatal("expected tag to change when mtime changes")
	}
}

func TestDecodeBasicCredentials(t *testing.T) {
	// base64("alice:secret")
	user, pass, err := codec.DecodeBasicCredentials("YWxpY2U6c2VjcmV0")
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if user != "alice" || pass != "secret" {
		t.Fatalf("got %q/%q", user, pass)
	}
}

func TestDecodeBasicCredentialsInvalid(t *testing.T) {
	if _, _, err := codec.DecodeBasicCredentials("not-base64!!"); err == nil {
		t.Fatal("expected an error for invalid base64")
	}
}
