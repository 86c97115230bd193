// Package syspasswd resolves a Unix account name to its stored
// password-hash field, reading /etc/shadow when available and falling
// back to /etc/passwd, backing the "$p$<account>" realm syntax.
package syspasswd

import (
	"bufio"
	"os"
	"strings"

	"github.com/xqyjlj/uhttpd/pkg/errors"
)

const (
	shadowPath = "/etc/shadow"
	passwdPath = "/etc/passwd"
)

// lookupField scans a colon-separated account database file (passwd(5)
// or shadow(5) layout) for username and returns its hash field (index 1
// in both formats).
func lookupField(path, username string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 2 {
			continue
		}
		if fields[0] == username {
			return fields[1], true
		}
	}
	return "", false
}

// Resolve returns the stored hash for username, preferring /etc/shadow
// (only readable as root on most systems) and falling back to
// /etc/passwd's password field (a hash, or historically "x"/"*" when a
// shadow database is in use).
func Resolve(username string) (string, error) {
	if hash, ok := lookupField(shadowPath, username); ok {
		return hash, nil
	}
	if hash, ok := lookupField(passwdPath, username); ok {
		return hash, nil
	}
	return "", errors.NewNotFoundError("resolve", "no system account named "+username)
}
