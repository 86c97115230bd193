// Package codec provides the small wire-format encoders the server
// leans on: percent-decode/encode, Base64 decode for Basic auth,
// HTTP-date format/parse, and ETag construction.
package codec

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xqyjlj/uhttpd/pkg/constants"
	"github.com/xqyjlj/uhttpd/pkg/errors"
)

func isUnreserved(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '_' || b == '.' || b == '~':
		return true
	}
	return false
}

func hexVal(b byte) (byte, bool) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', true
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, true
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}

// PercentEncode encodes s per RFC 3986's unreserved set
// (ALPHA / DIGIT / "-" / "_" / "." / "~"), emitting lowercase hex for
// everything else.
func PercentEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02x", c)
	}
	return b.String()
}

// PercentDecode decodes a percent-encoded path. "%HH" requires exactly
// two hex digits (either case); a malformed escape fails the decode.
// Bytes that are not part of a "%HH" escape pass
// through unchanged — the decoder never inserts a NUL that was not
// already present in the input.
func PercentDecode(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(s) {
			return "", errors.NewMalformedInputError("decode", "truncated percent-escape", nil)
		}
		hi, ok1 := hexVal(s[i+1])
		lo, ok2 := hexVal(s[i+2])
		if !ok1 || !ok2 {
			return "", errors.NewMalformedInputError("decode", "invalid percent-escape", nil)
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return b.String(), nil
}

// FormatHTTPDate formats t in RFC 1123 GMT form
// ("Wkd, DD Mon YYYY HH:MM:SS GMT"), as used for Last-Modified and Date.
func FormatHTTPDate(t time.Time) string {
	return t.UTC().Format(constants.HTTPDateLayout)
}

// ParseHTTPDate parses an RFC 1123 GMT date as sent in If-Modified-Since
// or If-Unmodified-Since. Clients sometimes send the obsolete RFC 850 or
// asctime forms; those are accepted as a fallback the way a tolerant
// origin server should.
func ParseHTTPDate(s string) (time.Time, error) {
	if t, err := time.Parse(constants.HTTPDateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC850, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.ANSIC, s); err == nil {
		return t, nil
	}
	return time.Time{}, errors.NewMalformedInputError("parse", "unrecognized HTTP-date", nil)
}

// ETag formats the weak entity tag
// "<hex-inode>-<hex-size>-<hex-mtime>", lowercase hex.
func ETag(inode uint64, size int64, mtime time.Time) string {
	return fmt.Sprintf(`"%x-%x-%x"`, inode, size, mtime.Unix())
}

// DecodeBasicCredentials base64-decodes a Basic-auth payload and splits
// it into user and password at the first colon.
func DecodeBasicCredentials(b64 string) (user, pass string, err error) {
	raw, decErr := base64.StdEncoding.DecodeString(b64)
	if decErr != nil {
		return "", "", errors.NewMalformedInputError("decode", "invalid base64 in Authorization header", decErr)
	}
	user, pass, ok := strings.Cut(string(raw), ":")
	if !ok {
		return "", "", errors.NewMalformedInputError("decode", "malformed user:pass payload", nil)
	}
	return user, pass, nil
}

// ParseContentLength parses a Content-Length header value, returning an
// error for negative or unparsable values.
func ParseContentLength(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, errors.NewMalformedInputError("parse", "invalid Content-Length", err)
	}
	return n, nil
}
