package refdir

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-git/go-refdb/plumbing"
	"github.com/go-git/go-refdb/utils/ioutil"
	"github.com/go-git/go-refdb/utils/sync"
)

const (
	packedRefsPath   = "packed-refs"
	packedRefsHeader = "# pack-refs with:"
	packedRefsPeeled = "peeled"
)

var (
	// ErrPackedRefsBadFormat is returned when the packed-refs file is
	// corrupt.
	ErrPackedRefsBadFormat = errors.New("malformed packed-refs")
)

// packedRefList is the parsed content of the packed-refs file plus
// the snapshot of the file it was read from.
type packedRefList struct {
	RefList[*plumbing.Reference]
	snapshot *FileSnapshot
}

var noPackedRefs = &packedRefList{snapshot: MissingSnapshot}

// parsePackedRefs reads the line oriented packed-refs format:
// an optional "# pack-refs with:" header carrying space separated
// flags, direct refs as "<40-hex> SP <name>", and "^<40-hex>" lines
// supplying the peeled target of the ref on the previous line. When
// the header declares "peeled", a direct ref without a "^" line is
// known not to be a tag. Input is expected sorted by name; unsorted
// input is sorted before returning.
func parsePackedRefs(r io.Reader) (RefList[*plumbing.Reference], error) {
	br := sync.GetBufioReader(r)
	defer sync.PutBufioReader(br)

	b := NewRefListBuilder[*plumbing.Reference](16)

	peeled := false
	sorted := true
	last := ""
	first := true

	for {
		read, err := br.ReadString('\n')
		if read == "" && err != nil {
			if err == io.EOF {
				break
			}

			return RefList[*plumbing.Reference]{}, err
		}

		// ReadString returns a copy, so names sliced from line do not
		// pin the read buffer.
		line := strings.TrimRight(read, "\r\n")
		if line == "" {
			if err == io.EOF {
				break
			}
			continue
		}

		switch {
		case first && strings.HasPrefix(line, packedRefsHeader):
			for _, flag := range strings.Fields(line[len(packedRefsHeader):]) {
				if flag == packedRefsPeeled {
					peeled = true
				}
				// Unknown flags are ignored.
			}
		case line[0] == '^':
			if b.Len() == 0 {
				return RefList[*plumbing.Reference]{},
					fmt.Errorf("%w: peeled line %q before any ref", ErrPackedRefsBadFormat, line)
			}

			id := line[1:]
			if !plumbing.IsHash(id) {
				return RefList[*plumbing.Reference]{},
					fmt.Errorf("%w: invalid object id %q", ErrPackedRefsBadFormat, id)
			}

			prev := b.At(b.Len() - 1)
			peeledRef := plumbing.NewPeeledTagReference(prev.Name(), prev.Hash(), plumbing.NewHash(id)).
				WithStorage(plumbing.PackedStorage)
			b.Set(b.Len()-1, peeledRef)
		default:
			if len(line) < plumbing.HexSize+2 || line[plumbing.HexSize] != ' ' ||
				!plumbing.IsHash(line[:plumbing.HexSize]) {
				return RefList[*plumbing.Reference]{},
					fmt.Errorf("%w: %q", ErrPackedRefsBadFormat, line)
			}

			id := plumbing.NewHash(line[:plumbing.HexSize])
			name := line[plumbing.HexSize+1:]

			var ref *plumbing.Reference
			if peeled {
				ref = plumbing.NewPeeledReference(plumbing.ReferenceName(name), id)
			} else {
				ref = plumbing.NewHashReference(plumbing.ReferenceName(name), id)
			}
			b.Add(ref.WithStorage(plumbing.PackedStorage))

			if sorted && last > name {
				sorted = false
			}
			last = name
		}

		first = false

		if err == io.EOF {
			break
		}
	}

	if !sorted {
		b.Sort()
	}

	return b.ToRefList(), nil
}

// writePackedRefs emits refs in the canonical packed-refs form: the
// peeled header, one line per ref, and a "^" line after every peeled
// tag.
func writePackedRefs(w io.Writer, refs RefList[*plumbing.Reference]) error {
	buf := sync.GetBytesBuffer()
	defer sync.PutBytesBuffer(buf)

	buf.WriteString(packedRefsHeader)
	buf.WriteByte(' ')
	buf.WriteString(packedRefsPeeled)
	buf.WriteByte('\n')

	for i := 0; i < refs.Len(); i++ {
		ref := refs.At(i)

		buf.WriteString(ref.Hash().String())
		buf.WriteByte(' ')
		buf.WriteString(ref.Name().String())
		buf.WriteByte('\n')

		if peeled := ref.PeeledHash(); ref.IsPeeled() && peeled != ref.Hash() {
			buf.WriteByte('^')
			buf.WriteString(peeled.String())
			buf.WriteByte('\n')
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// readPackedRefList parses the packed-refs file, coupling the result
// with a snapshot of the file. A missing file yields noPackedRefs.
func (d *RefDirectory) readPackedRefList() (_ *packedRefList, err error) {
	fi, err := d.fs.Stat(packedRefsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return noPackedRefs, nil
		}

		return nil, err
	}

	f, err := d.fs.Open(packedRefsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return noPackedRefs, nil
		}

		return nil, err
	}

	defer ioutil.CheckClose(f, &err)

	refs, err := parsePackedRefs(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", packedRefsPath, err)
	}

	return &packedRefList{RefList: refs, snapshot: SnapshotFromInfo(fi)}, nil
}

// packedRefs returns the cached packed-refs list, re-reading the file
// when the snapshot shows it changed. The cache is installed with
// compare-and-set; a miss means another reader installed an
// equivalent result first.
func (d *RefDirectory) packedRefs() (*packedRefList, error) {
	cur := d.packed.Load()
	if !cur.snapshot.IsModified(d.fs, packedRefsPath) {
		return cur, nil
	}

	fresh, err := d.readPackedRefList()
	if err != nil {
		return nil, err
	}

	if d.packed.CompareAndSwap(cur, fresh) {
		d.modCnt.Add(1)
	} else {
		fresh = d.packed.Load()
	}

	return fresh, nil
}

// commitPackedRefs writes refs through lck, which must already be
// held on the packed-refs file, and installs the new list in the
// cache.
func (d *RefDirectory) commitPackedRefs(lck *LockFile, refs RefList[*plumbing.Reference], old *packedRefList) error {
	if err := writePackedRefs(lck, refs); err != nil {
		lck.Unlock()
		return fmt.Errorf("cannot write %s: %w", packedRefsPath, err)
	}

	lck.SetFSync(d.options.FSync)
	lck.SetNeedSnapshot(true)
	if err := lck.WaitForStatChange(); err != nil {
		lck.Unlock()
		return err
	}

	if err := lck.Commit(); err != nil {
		return err
	}

	n := &packedRefList{RefList: refs, snapshot: lck.CommitSnapshot()}
	if d.packed.CompareAndSwap(old, n) {
		d.modCnt.Add(1)
	}

	return nil
}
