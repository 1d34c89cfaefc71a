package refdir

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-git/go-refdb/plumbing"
	"github.com/go-git/go-refdb/utils/ioutil"
	"github.com/go-git/go-refdb/utils/sync"
	"github.com/go-git/go-refdb/utils/trace"
)

// maxLooseRefSize caps how much of a loose ref file is read. A
// symbolic ref that fills the whole buffer may have been truncated
// and reads as no value at all rather than risk a wrong answer.
const maxLooseRefSize = 4096

// looseRef couples a reference with the snapshot of the loose file it
// was read from.
type looseRef struct {
	*plumbing.Reference
	snapshot *FileSnapshot
}

// looseScanner walks the loose ref tree, reconciling what is on disk
// with the previously cached list. newLoose stays nil until the first
// divergence from the cached list is observed; symbolic collects every
// symbolic ref encountered, so resolution after the scan can reuse the
// consistent view.
type looseScanner struct {
	d        *RefDirectory
	prefix   string
	curLoose RefList[*looseRef]

	curIdx   int
	newLoose *RefListBuilder[*looseRef]
	symbolic *RefListBuilder[*plumbing.Reference]
}

// scanLoose scans HEAD and the refs tree when prefix is empty, or
// only the named subtree, reconciling against cur. Entries of cur
// outside the prefix are preserved unchanged.
func (d *RefDirectory) scanLoose(prefix string, cur RefList[*looseRef]) (*looseScanner, error) {
	s := &looseScanner{
		d:        d,
		prefix:   prefix,
		curLoose: cur,
		symbolic: NewRefListBuilder[*plumbing.Reference](4),
	}

	if prefix == "" {
		if err := s.scanOne(plumbing.HEAD.String()); err != nil {
			return nil, err
		}
		if err := s.scanTree(refsPath+"/", refsPath); err != nil {
			return nil, err
		}
	} else {
		if i := cur.Find(plumbing.ReferenceName(prefix)); i < 0 {
			s.curIdx = -(i + 1)
		} else {
			s.curIdx = i
		}
		if err := s.scanTree(prefix, strings.TrimSuffix(prefix, "/")); err != nil {
			return nil, err
		}
	}

	s.finish()

	return s, nil
}

// scanTree descends dir, visiting its entries in name order, where a
// directory name sorts as if it ended in "/", the same ordering the
// sorted ref lists use for the names below it.
func (s *looseScanner) scanTree(prefix, dir string) error {
	entries, err := s.d.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name()+"/")
		} else {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, n := range names {
		if strings.HasSuffix(n, "/") {
			n = strings.TrimSuffix(n, "/")
			if err := s.scanTree(prefix+n+"/", dir+"/"+n); err != nil {
				return err
			}
			continue
		}

		if strings.HasSuffix(n, LockSuffix) {
			continue
		}

		if err := s.scanOne(prefix + n); err != nil {
			return err
		}
	}

	return nil
}

// scanOne reconciles a single on-disk name against the cached list.
// Cached entries sorting before name have no file anymore and are
// dropped.
func (s *looseScanner) scanOne(name string) error {
	for s.curIdx < s.curLoose.Len() && s.curLoose.At(s.curIdx).Name() < plumbing.ReferenceName(name) {
		s.diverge()
		s.curIdx++
	}

	var cur *looseRef
	positional := s.curIdx < s.curLoose.Len() &&
		s.curLoose.At(s.curIdx).Name() == plumbing.ReferenceName(name)
	if positional {
		cur = s.curLoose.At(s.curIdx)
	}

	n, err := s.d.scanRef(cur, name)
	if err != nil {
		return err
	}

	if n == nil {
		// Unreadable or possibly truncated: the entry has no value.
		if positional {
			s.diverge()
			s.curIdx++
		}
		return nil
	}

	// Diverge before advancing, so a replaced entry is not carried
	// into the fresh list.
	if n != cur {
		s.diverge()
	}
	if positional {
		s.curIdx++
	}
	s.keep(n)

	if n.Type() == plumbing.SymbolicReference {
		s.symbolic.Add(n.Reference)
	}

	return nil
}

// diverge switches from the positional fast path to building a fresh
// list, seeded with the entries confirmed unchanged so far.
func (s *looseScanner) diverge() {
	if s.newLoose != nil {
		return
	}

	s.newLoose = NewRefListBuilder[*looseRef](s.curLoose.Len() + 1)
	for i := 0; i < s.curIdx; i++ {
		s.newLoose.Add(s.curLoose.At(i))
	}
}

func (s *looseScanner) keep(ref *looseRef) {
	if s.newLoose != nil {
		s.newLoose.Add(ref)
	}
}

// finish drops leftover cached entries under the prefix, which no
// longer exist on disk, and carries over the entries past it.
func (s *looseScanner) finish() {
	for s.curIdx < s.curLoose.Len() {
		name := s.curLoose.At(s.curIdx).Name().String()
		if s.prefix != "" && !strings.HasPrefix(name, s.prefix) {
			break
		}

		s.diverge()
		s.curIdx++
	}

	if s.newLoose == nil {
		return
	}

	for ; s.curIdx < s.curLoose.Len(); s.curIdx++ {
		s.newLoose.Add(s.curLoose.At(s.curIdx))
	}
}

// scanRef reads the loose ref file for name, reusing cur when its
// snapshot shows the file unchanged. It returns nil for files that do
// not exist, are empty, or look truncated.
func (d *RefDirectory) scanRef(cur *looseRef, name string) (_ *looseRef, err error) {
	path := refPath(d.fs, name)

	if cur != nil {
		if !cur.snapshot.IsModified(d.fs, path) {
			return cur, nil
		}

		// Reuse the interned name of the cached entry.
		name = cur.Name().String()
	}

	fi, err := d.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}
	snapshot := SnapshotFromInfo(fi)

	f, err := d.fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}
	defer ioutil.CheckClose(f, &err)

	bufp := sync.GetByteSlice()
	defer sync.PutByteSlice(bufp)
	buf := (*bufp)[:maxLooseRefSize]

	n := 0
	for n < len(buf) {
		r, err := f.Read(buf[n:])
		n += r
		if err != nil {
			break
		}
	}

	if n == 0 {
		return nil, nil
	}

	content := buf[:n]
	if target, ok := trimPrefixBytes(content, symbolicRefPrefix); ok {
		if n == maxLooseRefSize {
			// A full buffer cannot be told apart from a truncated
			// symbolic ref. Treat it as no value.
			trace.General.Printf("refdir: %s: symbolic ref fills the read buffer, ignoring", name)
			return nil, nil
		}

		targetName := string(trimRight(target))
		if cur != nil && cur.Type() == plumbing.SymbolicReference &&
			cur.TargetName().String() == targetName {
			cur.snapshot.SetClean(snapshot)
			return cur, nil
		}

		ref := plumbing.NewSymbolicReference(
			plumbing.ReferenceName(name),
			plumbing.NewHashReference(plumbing.ReferenceName(targetName), plumbing.ZeroHash),
		).WithStorage(plumbing.LooseStorage)

		return &looseRef{Reference: ref, snapshot: snapshot}, nil
	}

	line := trimRight(content)
	if len(line) < plumbing.HexSize || !plumbing.IsHash(string(line[:plumbing.HexSize])) {
		prefix := line
		if len(prefix) > plumbing.HexSize {
			prefix = prefix[:plumbing.HexSize]
		}
		trace.General.Printf("refdir: %s: not a reference: %q", name, prefix)
		return nil, fmt.Errorf("%s: not a valid reference: %q", name, prefix)
	}

	id := plumbing.NewHash(string(line[:plumbing.HexSize]))
	if cur != nil && cur.Type() == plumbing.HashReference && cur.Hash() == id {
		cur.snapshot.SetClean(snapshot)
		return cur, nil
	}

	ref := plumbing.NewHashReference(plumbing.ReferenceName(name), id).
		WithStorage(plumbing.LooseStorage)

	return &looseRef{Reference: ref, snapshot: snapshot}, nil
}

var symbolicRefPrefix = []byte("ref: ")

func trimPrefixBytes(b, prefix []byte) ([]byte, bool) {
	if len(b) < len(prefix) || string(b[:len(prefix)]) != string(prefix) {
		return nil, false
	}

	return b[len(prefix):], true
}

func trimRight(b []byte) []byte {
	end := len(b)
	for end > 0 {
		switch b[end-1] {
		case ' ', '\t', '\r', '\n':
			end--
		default:
			return b[:end]
		}
	}

	return b[:0]
}
