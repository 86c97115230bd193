// Package dirlisting renders the two-pass HTML directory index:
// sub-directories first (world-executable), then files
// (world-readable), each sorted case-sensitive ASCII alphabetical, into a
// pkg/buffer.Buffer scratch store instead of an unbounded string so a
// directory with a very large number of entries cannot exhaust memory.
package dirlisting

import (
	"html/template"
	"os"
	"sort"
	"strings"

	"github.com/xqyjlj/uhttpd/pkg/buffer"
	"github.com/xqyjlj/uhttpd/pkg/codec"
	"github.com/xqyjlj/uhttpd/pkg/constants"
	"github.com/xqyjlj/uhttpd/pkg/errors"
	"github.com/xqyjlj/uhttpd/pkg/pathresolver"
)

// MIMELookup resolves a file's content type from its extension, matching
// the collaborator signature the file handler is given.
type MIMELookup func(ext string) string

// mimeFor extracts the extension from the last "." and queries lookup
// with it, exactly as pkg/filehandler's mimeFor does for a served file:
// a listing entry must resolve Content-Type the same way the file
// handler itself would if that entry were requested directly.
func mimeFor(name string, lookup MIMELookup) string {
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 {
		return "application/octet-stream"
	}
	ext := strings.ToLower(name[dot:])
	if mime := lookup(ext); mime != "" {
		return mime
	}
	return "application/octet-stream"
}

// entry is one rendered row: a directory or a world-readable file.
type entry struct {
	Name    string
	Href    string
	MIME    string
	ModTime string
	SizeKiB int64
	IsDir   bool
}

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
<head><title>Index of {{.Title}}</title></head>
<body>
<h1>Index of {{.Title}}</h1>
<table>
<tr><th>Name</th><th>Type</th><th>Last Modified</th><th>Size (KiB)</th></tr>
{{if .HasParent}}<tr><td><a href="../">../</a></td><td>-</td><td>-</td><td>-</td></tr>
{{end}}{{range .Entries}}<tr><td><a href="{{.Href}}">{{.Name}}{{if .IsDir}}/{{end}}</a></td><td>{{.MIME}}</td><td>{{.ModTime}}</td><td>{{.SizeKiB}}</td></tr>
{{end}}</table>
</body>
</html>
`))

type listingData struct {
	Title     string
	HasParent bool
	Entries   []entry
}

// Render reads the directory at phys and writes its HTML index into a
// fresh buffer.Buffer, scoped by urlName (the URL path this directory is
// served at, used for the page title and the ".." link). mimeLookup
// resolves each file's Content-Type; urlName is used for the title shown
// to the user, not for constructing hrefs (those are always relative).
func Render(phys, urlName string, mimeLookup func(ext string) string) (*buffer.Buffer, error) {
	dirents, err := os.ReadDir(phys)
	if err != nil {
		return nil, errors.NewIOError("read directory", err)
	}

	var dirs, files []entry
	for _, de := range dirents {
		if de.Name() == "." {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			continue
		}

		if de.IsDir() {
			if !pathresolver.WorldExecutable(fi) {
				continue
			}
			dirs = append(dirs, entry{
				Name:    de.Name(),
				Href:    codec.PercentEncode(de.Name()) + "/",
				MIME:    "-",
				ModTime: codec.FormatHTTPDate(fi.ModTime()),
				IsDir:   true,
			})
			continue
		}

		if !pathresolver.WorldReadable(fi) {
			continue
		}
		files = append(files, entry{
			Name:    de.Name(),
			Href:    codec.PercentEncode(de.Name()),
			MIME:    mimeFor(de.Name(), mimeLookup),
			ModTime: codec.FormatHTTPDate(fi.ModTime()),
			SizeKiB: (fi.Size() + 1023) / 1024,
		})
	}

	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	entries := make([]entry, 0, len(dirs)+len(files))
	entries = append(entries, dirs...)
	entries = append(entries, files...)

	data := listingData{
		Title:     urlName,
		HasParent: urlName != "/" && urlName != "",
		Entries:   entries,
	}

	buf := buffer.New(constants.DefaultScratchMemLimit)
	if err := listingTemplate.Execute(buf, data); err != nil {
		buf.Close()
		return nil, errors.NewInternalError("render", "directory listing template failed", err)
	}
	return buf, nil
}
