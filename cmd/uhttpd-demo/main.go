// Command uhttpd-demo is a minimal single-threaded accept loop built on
// net.Listener, demonstrating the bootstrap collaborator the core
// leaves to its embedder: real deployments wire their own event loop,
// config parsing, and MIME table.
package main

import (
	"flag"
	"net"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	uhttpd "github.com/xqyjlj/uhttpd"
	"github.com/xqyjlj/uhttpd/pkg/auth"
	"github.com/xqyjlj/uhttpd/pkg/registry"
)

var builtinMIME = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".txt":  "text/plain",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".gif":  "image/gif",
}

func lookupMIME(ext string) string {
	return builtinMIME[ext]
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	docroot := flag.String("docroot", ".", "document root")
	realmPath := flag.String("realm-path", "", "URL prefix to protect with Basic auth (empty disables auth)")
	realmUser := flag.String("realm-user", "", "username required for realm-path")
	realmPass := flag.String("realm-pass", "", "password (or $p$<account> for a system account) required for realm-path")
	noSymlinks := flag.Bool("no-symlinks", false, "resolve every symlink and require world-readable targets")
	noDirLists := flag.Bool("no-dirlists", false, "disable directory index rendering")
	timeout := flag.Duration("timeout", 30*time.Second, "per-connection network timeout")
	flag.Parse()

	log := logrus.StandardLogger()

	// The resolver's jail check assumes an absolute docroot.
	absRoot, err := filepath.Abs(*docroot)
	if err != nil {
		log.WithError(err).Fatal("failed to resolve docroot")
	}

	var realms *auth.RealmSet
	if *realmPath != "" {
		realms = &auth.RealmSet{}
		if err := realms.Add(*realmPath, *realmUser, *realmPass); err != nil {
			log.WithError(err).Fatal("failed to configure auth realm")
		}
	}

	cfg := &uhttpd.Config{
		Docroot:        absRoot,
		Realm:          "restricted",
		NetworkTimeout: *timeout,
		NoSymlinks:     *noSymlinks,
		NoDirLists:     *noDirLists,
		MIME:           lookupMIME,
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.WithError(err).Fatal("failed to listen")
	}
	defer ln.Close()

	reg := registry.New(log)
	listener := registry.NewListener(ln)

	log.WithField("addr", ln.Addr().String()).Info("uhttpd-demo listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.WithError(err).Warn("accept failed")
			continue
		}

		client := reg.Add(conn, listener)
		uhttpd.ServeRequest(cfg, client, realms, log)
		reg.Remove(client)
	}
}
