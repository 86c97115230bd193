// Package pathresolver translates a request-URI into a physical file:
// URL decoding, the longest-prefix canonicalize walk, symlink policy,
// the docroot jail check, index-file fallback, and trailing-slash
// redirection.
package pathresolver

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/xqyjlj/uhttpd/pkg/codec"
	"github.com/xqyjlj/uhttpd/pkg/errors"
)

// PathInfo is the result of resolving a request-URI against a docroot.
type PathInfo struct {
	Docroot string // absolute filesystem path bounding all served content

	Phys string // resolved physical path; always docroot or docroot+"/"+rest
	Name string // Phys minus the docroot prefix: the URL path within docroot

	PathInfoSuffix string // trailing component unmatched by the filesystem
	Query          string // verbatim query string (without the leading '?')

	Redirected       bool   // true: the caller answers 302 Found with RedirectLocation
	RedirectLocation string // Location header value when Redirected

	Stat os.FileInfo // snapshot corresponding to Phys
}

// WorldReadable reports whether fi's "other" permission bits include
// read access. Exported for reuse by pkg/dirlisting, which needs the
// same check for the files it lists.
func WorldReadable(fi os.FileInfo) bool {
	return fi.Mode().Perm()&0004 != 0
}

// WorldExecutable reports whether fi's "other" permission bits include
// execute/traverse access. A subdirectory needs this to appear in a
// listing, the same way a directory needs it to be traversed at all.
func WorldExecutable(fi os.FileInfo) bool {
	return fi.Mode().Perm()&0001 != 0
}

// canonicalizeLexical collapses "//", drops "/./", and deletes the
// preceding segment for "/x/..", without touching the filesystem. This is
// exactly what path.Clean already does for a slash-separated path.
func canonicalizeLexical(p string) string {
	return path.Clean(p)
}

// canonicalizeSymlinks resolves every symlink in p, the way a realpath(3)
// call would; a nonexistent trailing component fails the call.
func canonicalizeSymlinks(p string) (string, error) {
	return filepath.EvalSymlinks(p)
}

// canonicalize applies the mode selected by noSymlinks and stats the
// result, requiring the final component to be world-readable.
func canonicalize(candidate string, noSymlinks bool) (string, os.FileInfo, bool) {
	var canon string
	if noSymlinks {
		c, err := canonicalizeSymlinks(candidate)
		if err != nil {
			return "", nil, false
		}
		canon = c
	} else {
		canon = canonicalizeLexical(candidate)
	}

	fi, err := os.Stat(canon)
	if err != nil {
		return "", nil, false
	}
	if !WorldReadable(fi) {
		return "", nil, false
	}
	return canon, fi, true
}

// inJail reports whether canon lies within docroot (equal to it, or
// nested under it at a "/" boundary).
func inJail(docroot, canon string) bool {
	if canon == docroot {
		return true
	}
	return strings.HasPrefix(canon, docroot+"/")
}

// Resolve translates rawURL (opaque bytes that may contain "?query")
// into a PathInfo, or returns a *errors.Error of Kind NotFound/
// MalformedInput when nothing matches (the caller responds 404).
func Resolve(docroot, rawURL string, noSymlinks bool, indexFiles []string) (*PathInfo, error) {
	urlPath, query, _ := strings.Cut(rawURL, "?")

	decoded, err := codec.PercentDecode(urlPath)
	if err != nil {
		return nil, err
	}

	if !strings.HasPrefix(decoded, "/") {
		decoded = "/" + decoded
	}

	// Walk prefixes from longest to shortest at '/' boundaries: the
	// first candidate whose canonical form exists and is readable wins,
	// and the remainder becomes path_info for a downstream CGI handler.
	segments := strings.Split(strings.Trim(decoded, "/"), "/")
	if decoded == "/" {
		segments = nil
	}

	for cut := len(segments); cut >= 0; cut-- {
		prefix := "/" + strings.Join(segments[:cut], "/")
		candidate := docroot + prefix
		canon, fi, ok := canonicalize(candidate, noSymlinks)
		if !ok {
			continue
		}
		if !inJail(docroot, canon) {
			return nil, errors.NewNotFoundError("resolve", "canonical path escapes docroot")
		}

		pathInfoSuffix := strings.Join(segments[cut:], "/")

		info := &PathInfo{
			Docroot:        docroot,
			Phys:           canon,
			Name:           strings.TrimPrefix(canon, docroot),
			PathInfoSuffix: pathInfoSuffix,
			Query:          query,
			Stat:           fi,
		}
		if info.Name == "" {
			info.Name = "/"
		}

		if fi.Mode().IsRegular() {
			return info, nil
		}

		if fi.IsDir() {
			if pathInfoSuffix != "" {
				// A directory matched but a suffix remains unconsumed;
				// that suffix is reserved for CGI dispatch, out of this
				// core's scope, so treat it as not found here.
				return nil, errors.NewNotFoundError("resolve", "path info beyond a directory is unsupported")
			}
			if !strings.HasSuffix(urlPath, "/") {
				loc := info.Name + "/"
				if query != "" {
					loc += "?" + query
				}
				info.Redirected = true
				info.RedirectLocation = loc
				return info, nil
			}
			return resolveIndex(info, indexFiles), nil
		}

		// Neither a regular file nor a directory (device, socket, ...):
		// the file handler turns this into 403.
		return info, nil
	}

	return nil, errors.NewNotFoundError("resolve", "no path segment resolved under docroot")
}

// resolveIndex tries each configured index filename in order under the
// directory described by info, replacing Phys/Stat with the first
// regular file found. If none match, info is returned unchanged and
// represents the directory itself.
func resolveIndex(info *PathInfo, indexFiles []string) *PathInfo {
	for _, idx := range indexFiles {
		candidate := filepath.Join(info.Phys, idx)
		fi, err := os.Stat(candidate)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		info.Phys = candidate
		info.Name = strings.TrimPrefix(candidate, info.Docroot)
		info.Stat = fi
		return info
	}
	return info
}
