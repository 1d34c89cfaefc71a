package refdir

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-refdb/plumbing"
)

const defaultDirectoryMode = os.ModeDir | os.ModePerm

var (
	// ErrLockFailed is returned when the lock file of a reference or
	// of packed-refs cannot be acquired.
	ErrLockFailed = errors.New("cannot lock reference")
	// ErrReferenceHasChanged is returned when the reference on disk no
	// longer matches the expected old value.
	ErrReferenceHasChanged = errors.New("reference has changed concurrently")
	// ErrNoObjectPeeler is returned by Peel when the database was
	// built without access to the object graph.
	ErrNoObjectPeeler = errors.New("object peeler not configured")
)

// RefUpdate is a handle for updating or deleting a single reference.
type RefUpdate struct {
	db   *RefDirectory
	name plumbing.ReferenceName

	// ref is the value observed when the handle was created, nil for
	// a reference that does not exist yet.
	ref *plumbing.Reference

	// detach records that a symbolic reference must be replaced by a
	// direct reference at commit, instead of following it to its
	// leaf.
	detach bool

	newHash plumbing.Hash
	msg     string
}

// NewUpdate constructs an update handle for name. With detach, an
// existing symbolic reference is replaced by a direct reference at
// commit rather than updated through its leaf.
func (d *RefDirectory) NewUpdate(name plumbing.ReferenceName, detach bool) (*RefUpdate, error) {
	packed, err := d.packedRefs()
	if err != nil {
		return nil, err
	}

	ref, err := d.readRef(name.String(), packed)
	if err != nil {
		return nil, err
	}
	if ref != nil {
		ref, err = d.resolve(ref, 0, "", nil, packed)
		if err != nil {
			return nil, err
		}
	}
	d.fireRefsChanged()

	u := &RefUpdate{db: d, name: name, ref: ref}
	if detach && ref != nil && ref.Type() == plumbing.SymbolicReference {
		u.detach = true
	}

	return u, nil
}

// Name returns the name the handle was created for.
func (u *RefUpdate) Name() plumbing.ReferenceName {
	return u.name
}

// OldRef returns the resolved value observed when the handle was
// created, nil when the reference did not exist.
func (u *RefUpdate) OldRef() *plumbing.Reference {
	return u.ref
}

// SetReflogMessage sets the message recorded in the reflog by Update
// and Delete.
func (u *RefUpdate) SetReflogMessage(msg string) {
	u.msg = msg
}

// destination returns the name the write applies to: the leaf of a
// symbolic reference, unless the update is detached.
func (u *RefUpdate) destination() plumbing.ReferenceName {
	if u.ref != nil && u.ref.Type() == plumbing.SymbolicReference && !u.detach {
		return u.ref.Leaf().Name()
	}

	return u.name
}

// Update writes id as the new value of the reference, through the
// lock file protocol. The write fails with ErrReferenceHasChanged if
// the reference no longer holds the value observed when the handle
// was created. A reference that did not exist when the handle was
// created is written without this check.
func (u *RefUpdate) Update(id plumbing.Hash) error {
	name := u.destination()
	u.newHash = id

	ref := plumbing.NewHashReference(name, id)
	if err := u.db.writeLooseRef(ref, u.expectedOld(name)); err != nil {
		return err
	}

	if err := u.db.reflog.Log(u, u.msg, true); err != nil {
		return err
	}

	u.db.fireRefsChanged()

	return nil
}

// Link makes the reference symbolic, pointing at target.
func (u *RefUpdate) Link(target plumbing.ReferenceName) error {
	ref := plumbing.NewSymbolicReference(u.name,
		plumbing.NewHashReference(target, plumbing.ZeroHash))

	if err := u.db.writeLooseRef(ref, nil); err != nil {
		return err
	}

	u.db.fireRefsChanged()

	return nil
}

// expectedOld returns the old value the on-disk reference must still
// hold for the write at name to proceed, or nil to skip the check.
func (u *RefUpdate) expectedOld(name plumbing.ReferenceName) *plumbing.Reference {
	if u.ref == nil {
		return nil
	}

	leaf := u.ref.Leaf()
	if leaf.Name() != name && u.name != name {
		return nil
	}

	return leaf
}

// Delete removes the reference: from packed-refs under its lock when
// packed, from the loose cache, and finally the loose file itself,
// pruning directories the removal left empty.
func (u *RefUpdate) Delete() (err error) {
	d := u.db
	name := u.name

	packed, err := d.packedRefs()
	if err != nil {
		return err
	}

	if packed.Contains(name) {
		if err := d.rewritePackedRefsWithout(name, packed); err != nil {
			return err
		}
	}

	for {
		curList := d.loose.Load()
		idx := curList.Find(name)
		if idx < 0 {
			break
		}

		rm := curList.Remove(idx)
		if d.loose.CompareAndSwap(curList, &rm) {
			break
		}
	}

	path := refPath(d.fs, name.String())
	_, statErr := d.fs.Stat(path)
	if statErr == nil {
		if err := d.fs.Remove(path); err != nil {
			return err
		}
	} else if !os.IsNotExist(statErr) {
		return statErr
	}

	d.removeEmptyParents(name)
	d.reflog.Delete(name)

	d.modCnt.Add(1)
	d.fireRefsChanged()

	return nil
}

// removeEmptyParents prunes directories the deletion of name left
// empty, up to two levels below the top of its path.
func (d *RefDirectory) removeEmptyParents(name plumbing.ReferenceName) {
	parts := strings.Split(name.String(), "/")
	levels := levelsIn(name.String()) - 2

	for i := len(parts) - 1; i > 0 && levels > 0; i-- {
		dir := d.fs.Join(parts[:i]...)
		if err := d.fs.Remove(dir); err != nil {
			// Not empty or shared with other refs.
			return
		}
		levels--
	}
}

// rewritePackedRefsWithout rewrites packed-refs without name, under
// the packed-refs lock.
func (d *RefDirectory) rewritePackedRefsWithout(name plumbing.ReferenceName, old *packedRefList) error {
	lck := NewLockFile(d.fs, packedRefsPath)
	held, err := lck.Lock()
	if err != nil {
		return err
	}
	if !held {
		return fmt.Errorf("%w: %s", ErrLockFailed, packedRefsPath)
	}

	// Re-read while holding the lock, the file may have been
	// rewritten since the caller sampled it.
	cur, err := d.readPackedRefList()
	if err != nil {
		lck.Unlock()
		return err
	}

	idx := cur.Find(name)
	if idx < 0 {
		lck.Unlock()
		if d.packed.CompareAndSwap(old, cur) {
			d.modCnt.Add(1)
		}
		return nil
	}

	return d.commitPackedRefs(lck, cur.RefList.Remove(idx), old)
}

// writeLooseRef writes ref as a loose file through its lock file,
// verifying old when given.
func (d *RefDirectory) writeLooseRef(ref *plumbing.Reference, old *plumbing.Reference) error {
	name := ref.Name()
	path := refPath(d.fs, name.String())

	if i := strings.LastIndex(name.String(), "/"); i > 0 {
		dir := refPath(d.fs, name.String()[:i])
		if err := d.fs.MkdirAll(dir, defaultDirectoryMode); err != nil {
			return err
		}
	}

	lck := NewLockFile(d.fs, path)
	held, err := lck.Lock()
	if err != nil {
		return err
	}
	if !held {
		return fmt.Errorf("%w: %s", ErrLockFailed, name)
	}

	if old != nil {
		cur, err := d.scanRef(nil, name.String())
		if err != nil {
			lck.Unlock()
			return err
		}

		curHash := plumbing.ZeroHash
		if cur != nil {
			r := cur.Reference
			if r.Type() == plumbing.SymbolicReference {
				r, err = d.resolve(r, 0, "", nil, d.packed.Load())
				if err != nil {
					lck.Unlock()
					return err
				}
			}
			if r != nil {
				curHash = r.Hash()
			}
		} else if packedRef, ok := d.packed.Load().Get(name); ok {
			curHash = packedRef.Hash()
		}

		if curHash != old.Hash() {
			lck.Unlock()
			return ErrReferenceHasChanged
		}
	}

	var content string
	switch ref.Type() {
	case plumbing.SymbolicReference:
		content = fmt.Sprintf("ref: %s\n", ref.TargetName())
	case plumbing.HashReference:
		content = fmt.Sprintln(ref.Hash().String())
	}

	if _, err := lck.Write([]byte(content)); err != nil {
		lck.Unlock()
		return fmt.Errorf("cannot write %s: %w", name, err)
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

	d.stored(ref.WithStorage(plumbing.LooseStorage), lck.CommitSnapshot())

	return nil
}

// stored installs the written reference in the loose cache and bumps
// the modification counter.
func (d *RefDirectory) stored(ref *plumbing.Reference, snapshot *FileSnapshot) {
	if !cacheableRefName(ref.Name().String()) {
		d.modCnt.Add(1)
		return
	}

	entry := &looseRef{Reference: ref, snapshot: snapshot}

	for {
		curList := d.loose.Load()
		n := curList.Put(entry)
		if d.loose.CompareAndSwap(curList, &n) {
			break
		}
	}

	d.modCnt.Add(1)
}

// RefRename renames a reference, carrying its reflog along.
type RefRename struct {
	db  *RefDirectory
	src *RefUpdate
	dst *RefUpdate
}

// NewRename constructs a rename of from onto to, built on two update
// handles.
func (d *RefDirectory) NewRename(from, to plumbing.ReferenceName) (*RefRename, error) {
	src, err := d.NewUpdate(from, true)
	if err != nil {
		return nil, err
	}

	dst, err := d.NewUpdate(to, true)
	if err != nil {
		return nil, err
	}

	return &RefRename{db: d, src: src, dst: dst}, nil
}

// Rename performs the rename: the destination is written with the
// source leaf value, the source is deleted, the reflog follows, and a
// HEAD pointing at the source is relinked to the destination.
func (r *RefRename) Rename() error {
	src := r.src.ref
	if src == nil {
		return plumbing.ErrReferenceNotFound
	}

	id := src.Hash()
	if id.IsZero() {
		return plumbing.ErrReferenceNotFound
	}

	if conflicting, err := r.db.IsNameConflicting(r.dst.name); err != nil {
		return err
	} else if conflicting {
		return fmt.Errorf("cannot rename %s to %s: name conflict", r.src.name, r.dst.name)
	}

	// Move the reflog first: deleting the source removes its log, and
	// the destination write then appends after the carried history.
	r.db.reflog.Rename(r.src.name, r.dst.name)

	if err := r.dst.Update(id); err != nil {
		r.db.reflog.Rename(r.dst.name, r.src.name)
		return err
	}

	if err := r.src.Delete(); err != nil {
		// Roll the destination back, the rename must not duplicate
		// the reference.
		r.db.reflog.Rename(r.dst.name, r.src.name)
		_ = r.dst.Delete()
		return err
	}

	head, err := r.db.readRef(plumbing.HEAD.String(), r.db.packed.Load())
	if err == nil && head != nil && head.Type() == plumbing.SymbolicReference &&
		head.TargetName() == r.src.name {
		u := &RefUpdate{db: r.db, name: plumbing.HEAD}
		if err := u.Link(r.dst.name); err != nil {
			return err
		}
	}

	return nil
}

// PackRefs migrates all loose references into the packed-refs file,
// removing the loose files once the new packed-refs file has been
// committed. The packed-refs lock is released by that commit, before
// the loose files are removed.
func (d *RefDirectory) PackRefs() error {
	packed, err := d.packedRefs()
	if err != nil {
		return err
	}

	oldLoose := d.loose.Load()
	scan, err := d.scanLoose("", *oldLoose)
	if err != nil {
		return err
	}

	loose := *oldLoose
	if scan.newLoose != nil {
		loose = scan.newLoose.ToRefList()
	}

	b := NewRefListBuilder[*plumbing.Reference](loose.Len() + packed.Len())
	var packedNames []plumbing.ReferenceName
	for i := 0; i < loose.Len(); i++ {
		entry := loose.At(i)

		// HEAD, other top-level refs, and symbolic refs stay loose.
		if entry.Type() != plumbing.HashReference {
			continue
		}
		if !strings.HasPrefix(entry.Name().String(), "refs/") {
			continue
		}

		ref := entry.Reference
		if d.options.Peeler != nil && !ref.IsPeeled() {
			peeled, err := d.Peel(ref)
			if err != nil {
				return err
			}
			ref = peeled.Leaf()
		}

		b.Add(ref.WithStorage(plumbing.PackedStorage))
		packedNames = append(packedNames, entry.Name())
	}

	if b.Len() == 0 {
		return nil
	}

	for i := 0; i < packed.Len(); i++ {
		ref := packed.At(i)
		if !loose.Contains(ref.Name()) {
			b.Add(ref)
		}
	}
	b.Sort()

	lck := NewLockFile(d.fs, packedRefsPath)
	held, err := lck.Lock()
	if err != nil {
		return err
	}
	if !held {
		return fmt.Errorf("%w: %s", ErrLockFailed, packedRefsPath)
	}

	if err := d.commitPackedRefs(lck, b.ToRefList(), packed); err != nil {
		return err
	}

	// Delete the loose files while their values are safe in
	// packed-refs.
	for _, name := range packedNames {
		path := refPath(d.fs, name.String())
		if err := d.fs.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		d.removeEmptyParents(name)
	}

	// Only the loose cache is stale now; the packed cache was
	// installed by the commit.
	empty := EmptyRefList[*looseRef]()
	d.loose.Store(&empty)

	d.modCnt.Add(1)
	d.fireRefsChanged()

	return nil
}
