package refdir

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/go-git/go-refdb/plumbing"
	"github.com/go-git/go-refdb/utils/ioutil"
)

const logsPath = "logs"

// ReflogWriter appends reference change records under the logs
// directory, mirroring the reference namespace. The database only
// tells it when to write or delete; the content format is a single
// line per change: old and new object ids, the recording identity,
// and the message.
type ReflogWriter struct {
	fs    billy.Filesystem
	ident string
}

func newReflogWriter(fs billy.Filesystem) *ReflogWriter {
	return &ReflogWriter{
		fs:    fs,
		ident: "go-refdb <go-refdb@localhost>",
	}
}

// SetIdent sets the identity recorded with each entry, in the
// "name <email>" form.
func (w *ReflogWriter) SetIdent(ident string) {
	w.ident = ident
}

// Create creates the log directory scaffolding.
func (w *ReflogWriter) Create() error {
	for _, path := range []string{
		logsPath,
		w.fs.Join(logsPath, refsPath),
		w.fs.Join(logsPath, refsHeadsPath),
	} {
		if err := w.fs.MkdirAll(path, defaultDirectoryMode); err != nil {
			return err
		}
	}

	return nil
}

// LogFor returns the path of the log file for name.
func (w *ReflogWriter) LogFor(name plumbing.ReferenceName) string {
	return w.fs.Join(logsPath, refPath(w.fs, name.String()))
}

// Log appends a record of the update. With deref, an update applied
// through a symbolic reference is recorded both at the symbolic name
// and at the leaf.
func (w *ReflogWriter) Log(u *RefUpdate, msg string, deref bool) error {
	old := plumbing.ZeroHash
	if u.ref != nil {
		old = u.ref.Hash()
	}

	if err := w.append(u.name, old, u.newHash, msg); err != nil {
		return err
	}

	if deref && u.ref != nil && u.ref.Type() == plumbing.SymbolicReference {
		leaf := u.ref.Leaf().Name()
		if leaf != u.name {
			return w.append(leaf, old, u.newHash, msg)
		}
	}

	return nil
}

// Delete removes the log file of name, if it exists.
func (w *ReflogWriter) Delete(name plumbing.ReferenceName) {
	_ = w.fs.Remove(w.LogFor(name))
}

// Rename moves the log file of from to to, keeping history across a
// reference rename.
func (w *ReflogWriter) Rename(from, to plumbing.ReferenceName) {
	src := w.LogFor(from)
	if _, err := w.fs.Stat(src); err != nil {
		return
	}

	dst := w.LogFor(to)
	if i := strings.LastIndex(dst, "/"); i > 0 {
		if err := w.fs.MkdirAll(dst[:i], defaultDirectoryMode); err != nil {
			return
		}
	}

	_ = w.fs.Rename(src, dst)
}

func (w *ReflogWriter) append(name plumbing.ReferenceName, old, new plumbing.Hash, msg string) (err error) {
	path := w.LogFor(name)
	if i := strings.LastIndex(path, "/"); i > 0 {
		if err := w.fs.MkdirAll(path[:i], defaultDirectoryMode); err != nil {
			return err
		}
	}

	f, err := w.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	defer ioutil.CheckClose(f, &err)

	msg = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, msg)

	now := time.Now()
	_, zone := now.Zone()
	_, err = fmt.Fprintf(f, "%s %s %s %d %+03d%02d\t%s\n",
		old, new, w.ident, now.Unix(), zone/3600, abs(zone%3600)/60, msg)

	return err
}

func abs(v int) int {
	if v < 0 {
		return -v
	}

	return v
}
