// Package auth implements the Basic-authentication engine:
// longest-prefix realm matching and dual plaintext/crypt(3) credential
// verification, isolated behind a small Verifier capability so the
// system-database, shadow, and plaintext backends are interchangeable.
package auth

import (
	"strings"

	"github.com/GehirnInc/crypt"
	_ "github.com/GehirnInc/crypt/apr1_crypt"
	_ "github.com/GehirnInc/crypt/md5_crypt"
	_ "github.com/GehirnInc/crypt/sha256_crypt"
	_ "github.com/GehirnInc/crypt/sha512_crypt"

	"github.com/xqyjlj/uhttpd/pkg/auth/syspasswd"
	"github.com/xqyjlj/uhttpd/pkg/codec"
	"github.com/xqyjlj/uhttpd/pkg/constants"
	"github.com/xqyjlj/uhttpd/pkg/errors"
	"github.com/xqyjlj/uhttpd/pkg/pathresolver"
	"github.com/xqyjlj/uhttpd/pkg/request"
)

// Verifier checks a candidate password against whatever form of secret a
// realm was configured with.
type Verifier interface {
	Verify(candidate string) bool
}

// PlaintextVerifier matches a candidate password against a secret stored
// as-is. Both the plaintext and the crypt(3) comparisons are always
// attempted regardless of the secret's apparent form, so this is never
// skipped just because the stored value happens to look like a hash.
type PlaintextVerifier struct {
	Stored string
}

// Verify reports whether candidate equals the stored secret exactly.
func (v PlaintextVerifier) Verify(candidate string) bool {
	return candidate == v.Stored
}

// CryptVerifier matches a candidate password against a crypt(3)-style
// hash ("$id$salt$hash"), supporting the MD5, APR1, SHA-256 and SHA-512
// crypt variants registered by the blank imports above.
type CryptVerifier struct {
	Stored string
}

// Verify reports whether candidate hashes to the stored value. A stored
// value with no recognized "$id$" prefix (or an empty string) never
// matches; this is not an error; it simply means the crypt comparison
// contributes nothing for that realm entry.
func (v CryptVerifier) Verify(candidate string) (ok bool) {
	if v.Stored == "" || !strings.HasPrefix(v.Stored, "$") {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	crypter := crypt.NewFromHash(v.Stored)
	return crypter.Verify(v.Stored, []byte(candidate)) == nil
}

// multiVerifier reports a match if any of its members does. Realm entries
// always carry both a PlaintextVerifier and a CryptVerifier over the same
// stored value, so whichever form the secret turns out to be in, the
// right one fires.
type multiVerifier []Verifier

func (m multiVerifier) Verify(candidate string) bool {
	for _, v := range m {
		if v.Verify(candidate) {
			return true
		}
	}
	return false
}

// AuthRealm binds a docroot-relative path prefix, a required username,
// and the verifier that checks the password for it.
type AuthRealm struct {
	Path     string
	Username string
	Verifier Verifier
}

// RealmSet is an insertion-ordered collection of realms, matched by
// longest path prefix first: the most specific realm covering the
// request path wins.
type RealmSet struct {
	realms []AuthRealm
}

// Add registers a realm covering path for username. If secret begins
// with "$p$", the remainder is a system account name resolved through
// syspasswd.Resolve and the realm is built over its stored hash instead
// of secret itself.
func (s *RealmSet) Add(path, username, secret string) error {
	stored := secret
	if rest, ok := strings.CutPrefix(secret, "$p$"); ok {
		hash, err := syspasswd.Resolve(rest)
		if err != nil {
			return err
		}
		stored = hash
	}

	s.realms = append(s.realms, AuthRealm{
		Path:     path,
		Username: username,
		Verifier: multiVerifier{PlaintextVerifier{Stored: stored}, CryptVerifier{Stored: stored}},
	})
	return nil
}

// Lookup returns the realm with the longest Path that is a
// case-insensitive prefix of name, or ok=false if no configured realm
// covers it.
func (s *RealmSet) Lookup(name string) (AuthRealm, bool) {
	lower := strings.ToLower(name)
	best := -1
	var match AuthRealm
	for _, r := range s.realms {
		if !strings.HasPrefix(lower, strings.ToLower(r.Path)) {
			continue
		}
		if len(r.Path) > best {
			best = len(r.Path)
			match = r
		}
	}
	return match, best >= 0
}

// lookupByUser returns the realm with the longest Path that is a
// case-insensitive prefix of name AND whose Username equals username,
// or ok=false if none matches both. Multiple realms can share a Path
// with different usernames, so this is a distinct scan from Lookup, not
// just a filtered version of its result.
func (s *RealmSet) lookupByUser(name, username string) (AuthRealm, bool) {
	lower := strings.ToLower(name)
	best := -1
	var match AuthRealm
	for _, r := range s.realms {
		if r.Username != username {
			continue
		}
		if !strings.HasPrefix(lower, strings.ToLower(r.Path)) {
			continue
		}
		if len(r.Path) > best {
			best = len(r.Path)
			match = r
		}
	}
	return match, best >= 0
}

// Len reports the number of configured realms.
func (s *RealmSet) Len() int { return len(s.realms) }

// Check gates a request: find the realm covering the path (pass
// through unauthenticated if none), require and parse an
// Authorization: Basic header, and verify the username and password.
// A nil error means the request may proceed, with realmPath naming the
// realm it authenticated against ("" when the path is unprotected); a
// non-nil error is always a *errors.Error of KindUnauthorized, with
// realmPath available for building the WWW-Authenticate challenge. On
// success, req.Realm records the authenticated realm's path.
func (s *RealmSet) Check(req *request.Request, pathInfo *pathresolver.PathInfo) (realmPath string, err error) {
	realm, ok := s.Lookup(pathInfo.Name)
	if !ok {
		return "", nil
	}

	hv, ok := req.Headers.Get("Authorization")
	if !ok {
		return realm.Path, errors.NewUnauthorizedError("check", "no Authorization header")
	}

	// Header name lookup was case-insensitive; the scheme itself is not.
	scheme, payload, ok := strings.Cut(hv, " ")
	if !ok || scheme != "Basic" {
		return realm.Path, errors.NewUnauthorizedError("check", "unsupported authorization scheme")
	}

	user, pass, decErr := codec.DecodeBasicCredentials(strings.TrimSpace(payload))
	if decErr != nil {
		return realm.Path, errors.NewUnauthorizedError("check", "malformed Basic credentials")
	}

	// Rescan for the realm matching both path and the decoded username
	// rather than trusting the longest-prefix match above: a second
	// realm can be registered for the same path under a different
	// username, and the credentials presented decide which one applies.
	matched, ok := s.lookupByUser(pathInfo.Name, user)
	if !ok || !matched.Verifier.Verify(pass) {
		return realm.Path, errors.NewUnauthorizedError("check", "credential mismatch")
	}

	req.Realm = matched.Path
	return matched.Path, nil
}

// ChallengeBody is the fixed 401 response body sent alongside a
// WWW-Authenticate challenge.
func ChallengeBody() string {
	return constants.AuthFailureBody
}
