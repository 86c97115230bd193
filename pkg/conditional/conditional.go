// Package conditional implements the precondition engine: evaluating
// If-Modified-Since, If-Match, If-Range, If-Unmodified-Since, and
// If-None-Match in that fixed order and stopping at the first failure.
package conditional

import (
	"strings"
	"time"

	"github.com/xqyjlj/uhttpd/pkg/codec"
	"github.com/xqyjlj/uhttpd/pkg/errors"
	"github.com/xqyjlj/uhttpd/pkg/request"
)

// Decision is the outcome of evaluating a request's preconditions
// against the current entity tag and modification time.
type Decision int

const (
	// Pass means no precondition failed; serve the entity normally.
	Pass Decision = iota
	// NotModified means a 304 should be sent with no body.
	NotModified
	// PreconditionFailed means a 412 should be sent with no body.
	PreconditionFailed
)

func parseTokens(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' '
	})
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func tokenMatches(tokens []string, tag string) bool {
	for _, t := range tokens {
		if t == "*" || t == tag {
			return true
		}
	}
	return false
}

// Evaluate runs the fixed-order precondition check against headers,
// given the entity's current ETag and Last-Modified time. method
// distinguishes the If-None-Match GET/HEAD-vs-other outcome (304 vs
// 412).
//
// If-Modified-Since is checked ahead of If-Match, inverting the RFC's
// recommended precedence; kept for wire compatibility with existing
// deployments.
func Evaluate(headers *request.Headers, method request.Method, etag string, mtime time.Time) Decision {
	if v, ok := headers.Get("If-Modified-Since"); ok {
		if since, err := codec.ParseHTTPDate(v); err == nil {
			if !mtime.After(since) {
				return NotModified
			}
		}
	}

	if v, ok := headers.Get("If-Match"); ok {
		if !tokenMatches(parseTokens(v), etag) {
			return PreconditionFailed
		}
	}

	if _, ok := headers.Get("If-Range"); ok {
		// Ranges are unsupported; any If-Range presence is rejected
		// with 412 rather than falling back to an unconditional
		// response. Non-conforming, kept for wire compatibility.
		return PreconditionFailed
	}

	if v, ok := headers.Get("If-Unmodified-Since"); ok {
		if since, err := codec.ParseHTTPDate(v); err == nil {
			if !since.After(mtime) {
				return PreconditionFailed
			}
		}
	}

	if v, ok := headers.Get("If-None-Match"); ok {
		if tokenMatches(parseTokens(v), etag) {
			if method == request.MethodGet || method == request.MethodHead {
				return NotModified
			}
			return PreconditionFailed
		}
	}

	return Pass
}

// ToError converts a Decision into the *errors.Error the file handler
// dispatches on, or nil for Pass.
func ToError(d Decision) error {
	switch d {
	case NotModified:
		return errors.NewNotModifiedError("evaluate")
	case PreconditionFailed:
		return errors.NewPreconditionFailedError("evaluate", "conditional request precondition failed")
	default:
		return nil
	}
}
