// Package refdir implements the filesystem backed reference database
// of a git repository directory: loose ref files under "refs/" plus
// the packed-refs file, unified into a single namespace with
// lock-free, snapshot-invalidated caches for readers and lock-file
// serialized writers.
package refdir

import (
	"strings"
	"sync/atomic"

	"github.com/go-git/go-billy/v5"

	"github.com/go-git/go-refdb/plumbing"
)

const (
	refsPath      = "refs"
	refsHeadsPath = "refs/heads"
	refsTagsPath  = "refs/tags"
)

// refSearchPaths is the ordered list of prefixes tried when resolving
// a short reference name. The first match wins.
var refSearchPaths = []string{
	"",
	"refs/",
	"refs/tags/",
	"refs/heads/",
	"refs/remotes/",
}

// additionalRefNames are the top-level pseudo refs reported by
// AdditionalRefs. They are read on demand and never enter the loose
// cache.
var additionalRefNames = []plumbing.ReferenceName{
	"MERGE_HEAD",
	"FETCH_HEAD",
	"ORIG_HEAD",
	"CHERRY_PICK_HEAD",
}

// ObjectPeeler follows tag objects to the underlying non-tag object.
// Peel returns its input unchanged when the id does not name a tag.
type ObjectPeeler interface {
	Peel(plumbing.Hash) (plumbing.Hash, error)
}

// Options holds configuration for the reference database.
type Options struct {
	// FSync flushes ref writes to stable storage before the commit
	// rename.
	FSync bool
	// Peeler provides access to the object graph for Peel. Without
	// one, peeling unpeeled references fails.
	Peeler ObjectPeeler
	// OnRefsChanged is invoked, at most once per observed change,
	// whenever the database notices the reference namespace changed,
	// through its own writes or externally. The first advance of the
	// change counter of a fresh database is not reported.
	OnRefsChanged func()
}

// RefDirectory is a reference database stored in a repository
// directory. It is safe for concurrent use: reads are lock-free
// against two atomically swapped immutable caches, writes serialize
// on filesystem lock files.
type RefDirectory struct {
	fs      billy.Filesystem
	options Options
	reflog  *ReflogWriter

	loose  atomic.Pointer[RefList[*looseRef]]
	packed atomic.Pointer[packedRefList]

	modCnt       atomic.Uint64
	lastNotified atomic.Uint64
}

// New returns a reference database over the given repository
// directory.
func New(fs billy.Filesystem) *RefDirectory {
	return NewWithOptions(fs, Options{})
}

// NewWithOptions returns a reference database over the given
// repository directory with the given options.
func NewWithOptions(fs billy.Filesystem, o Options) *RefDirectory {
	d := &RefDirectory{
		fs:      fs,
		options: o,
	}
	d.reflog = newReflogWriter(fs)

	empty := EmptyRefList[*looseRef]()
	d.loose.Store(&empty)
	d.packed.Store(noPackedRefs)

	return d
}

// Reflog returns the reflog writer of this database.
func (d *RefDirectory) Reflog() *ReflogWriter {
	return d.reflog
}

// Create creates the folder scaffolding of the reference database:
// the refs tree and the reflog directory.
func (d *RefDirectory) Create() error {
	for _, path := range []string{refsPath, refsHeadsPath, refsTagsPath} {
		if err := d.fs.MkdirAll(path, defaultDirectoryMode); err != nil {
			return err
		}
	}

	return d.reflog.Create()
}

// Refresh invalidates both caches, so the next read fully rescans the
// loose tree and re-parses packed-refs.
func (d *RefDirectory) Refresh() {
	empty := EmptyRefList[*looseRef]()
	d.loose.Store(&empty)
	d.packed.Store(noPackedRefs)
}

// Ref searches for name along the short-name search path and returns
// the first match, with any symbolic chain resolved. It returns
// plumbing.ErrReferenceNotFound when no candidate exists.
func (d *RefDirectory) Ref(name string) (*plumbing.Reference, error) {
	packed, err := d.packedRefs()
	if err != nil {
		return nil, err
	}

	for _, prefix := range refSearchPaths {
		ref, err := d.readRef(prefix+name, packed)
		if err != nil {
			return nil, err
		}
		if ref == nil {
			continue
		}

		ref, err = d.resolve(ref, 0, "", nil, packed)
		if err != nil {
			return nil, err
		}

		d.fireRefsChanged()

		if ref == nil {
			return nil, plumbing.ErrReferenceNotFound
		}
		return ref, nil
	}

	d.fireRefsChanged()

	return nil, plumbing.ErrReferenceNotFound
}

// Refs returns all references whose names begin with prefix, keyed by
// name, with every symbolic reference resolved to its leaf. Broken
// symbolic references are omitted. A name both loose and packed takes
// its loose value. Prefix is "" for all references, or a "refs/..."
// subtree ending in "/".
func (d *RefDirectory) Refs(prefix string) (map[plumbing.ReferenceName]*plumbing.Reference, error) {
	packed, err := d.packedRefs()
	if err != nil {
		return nil, err
	}

	scanPrefix := ""
	if strings.HasPrefix(prefix, "refs/") && strings.HasSuffix(prefix, "/") {
		scanPrefix = prefix
	}

	oldLoose := d.loose.Load()
	scan, err := d.scanLoose(scanPrefix, *oldLoose)
	if err != nil {
		return nil, err
	}

	loose := *oldLoose
	if scan.newLoose != nil {
		n := scan.newLoose.ToRefList()
		if d.loose.CompareAndSwap(oldLoose, &n) {
			d.modCnt.Add(1)
			loose = n
		} else {
			loose = *d.loose.Load()
		}
	}

	d.fireRefsChanged()

	res := make(map[plumbing.ReferenceName]*plumbing.Reference)

	for i := 0; i < packed.Len(); i++ {
		ref := packed.At(i)
		if !strings.HasPrefix(ref.Name().String(), prefix) {
			continue
		}
		if loose.Contains(ref.Name()) {
			continue
		}
		res[ref.Name()] = ref
	}

	for i := 0; i < loose.Len(); i++ {
		entry := loose.At(i)
		if entry.Type() == plumbing.SymbolicReference {
			continue
		}
		if !strings.HasPrefix(entry.Name().String(), prefix) {
			continue
		}

		res[entry.Name()] = entry.Reference
	}

	// The symbolic refs the scan turned up resolve against the same
	// consistent view it produced.
	for i := 0; i < scan.symbolic.Len(); i++ {
		ref := scan.symbolic.At(i)
		if !strings.HasPrefix(ref.Name().String(), prefix) {
			continue
		}

		resolved, err := d.resolve(ref, 0, scanPrefix, &loose, packed)
		if err != nil {
			return nil, err
		}
		if resolved == nil || resolved.Hash().IsZero() {
			// Broken chain: missing leaf or too deep.
			continue
		}

		res[resolved.Name()] = resolved
	}

	return res, nil
}

// AdditionalRefs returns the top-level pseudo references that
// currently exist, resolved.
func (d *RefDirectory) AdditionalRefs() ([]*plumbing.Reference, error) {
	packed, err := d.packedRefs()
	if err != nil {
		return nil, err
	}

	var refs []*plumbing.Reference
	for _, name := range additionalRefNames {
		entry, err := d.scanRef(nil, name.String())
		if err != nil {
			return nil, err
		}
		if entry == nil {
			continue
		}

		ref, err := d.resolve(entry.Reference, 0, "", nil, packed)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			refs = append(refs, ref)
		}
	}

	return refs, nil
}

// IsNameConflicting reports whether name cannot be created because an
// existing reference is an ancestor path of it, or because references
// exist below name.
func (d *RefDirectory) IsNameConflicting(name plumbing.ReferenceName) (bool, error) {
	packed, err := d.packedRefs()
	if err != nil {
		return false, err
	}

	// An existing ref refs/heads/a blocks refs/heads/a/b, and any
	// prefix segment of name blocks name itself.
	s := name.String()
	for i := strings.LastIndex(s, "/"); i > 0; i = strings.LastIndex(s[:i], "/") {
		ancestor := s[:i]
		ref, err := d.readRef(ancestor, packed)
		if err != nil {
			return false, err
		}
		if ref != nil {
			return true, nil
		}
	}

	descendants, err := d.Refs(s + "/")
	if err != nil {
		return false, err
	}

	return len(descendants) > 0, nil
}

// Peel determines the peeled value of the leaf of ref, parsing the
// object graph when it is not yet known. The peeled value is memoized
// back into the loose cache only when the leaf is still the cached
// value.
func (d *RefDirectory) Peel(ref *plumbing.Reference) (*plumbing.Reference, error) {
	leaf := ref.Leaf()
	if leaf.IsPeeled() || leaf.Hash().IsZero() {
		return ref, nil
	}

	if d.options.Peeler == nil {
		return nil, ErrNoObjectPeeler
	}

	peeled, err := d.options.Peeler.Peel(leaf.Hash())
	if err != nil {
		return nil, err
	}

	var newLeaf *plumbing.Reference
	if peeled == leaf.Hash() {
		newLeaf = plumbing.NewPeeledReference(leaf.Name(), leaf.Hash())
	} else {
		newLeaf = plumbing.NewPeeledTagReference(leaf.Name(), leaf.Hash(), peeled)
	}
	newLeaf = newLeaf.WithStorage(leaf.Storage())

	// Memoize if and only if the leaf is still what the cache holds.
	curList := d.loose.Load()
	if i := curList.Find(leaf.Name()); i >= 0 {
		cur := curList.At(i)
		if cur.Reference == leaf {
			entry := &looseRef{Reference: newLeaf, snapshot: cur.snapshot}
			n := curList.Set(i, entry)
			d.loose.CompareAndSwap(curList, &n)
		}
	}

	return recreate(ref, newLeaf), nil
}

// recreate rebuilds the symbolic chain of old on top of a replacement
// leaf.
func recreate(old, leaf *plumbing.Reference) *plumbing.Reference {
	if old.Type() == plumbing.SymbolicReference {
		return plumbing.NewSymbolicReference(old.Name(), recreate(old.Target(), leaf)).
			WithStorage(old.Storage())
	}

	return leaf
}

// readRef returns the current value of name, preferring the loose
// cache and falling back to packed. It returns nil when the name does
// not exist in either store.
func (d *RefDirectory) readRef(name string, packed *packedRefList) (*plumbing.Reference, error) {
	curList := d.loose.Load()
	refName := plumbing.ReferenceName(name)

	idx := curList.Find(refName)
	if idx >= 0 {
		cur := curList.At(idx)
		n, err := d.scanRef(cur, name)
		if err != nil {
			return nil, err
		}

		if n == nil {
			// The loose file vanished; drop the cache entry and use
			// the packed value, if any.
			rm := curList.Remove(idx)
			if d.loose.CompareAndSwap(curList, &rm) {
				d.modCnt.Add(1)
			}

			ref, _ := packed.Get(refName)
			return ref, nil
		}

		if n != cur {
			set := curList.Set(idx, n)
			if d.loose.CompareAndSwap(curList, &set) {
				d.modCnt.Add(1)
			}
		}

		return n.Reference, nil
	}

	entry, err := d.scanRef(nil, name)
	if err != nil {
		return nil, err
	}

	if entry == nil {
		ref, _ := packed.Get(refName)
		return ref, nil
	}

	if cacheableRefName(name) {
		add := curList.Add(idx, entry)
		if d.loose.CompareAndSwap(curList, &add) {
			d.modCnt.Add(1)
		}
	}

	return entry.Reference, nil
}

// cacheableRefName reports whether a loose name belongs in the scan
// cache. Top-level pseudo refs other than HEAD never enter it.
func cacheableRefName(name string) bool {
	return name == plumbing.HEAD.String() || strings.HasPrefix(name, "refs/")
}

// resolve follows the symbolic chain of ref, bounded by
// plumbing.MaxResolveDepth. When the target name falls under prefix
// and loose is given, the already consistent scanned view is
// preferred over a fresh disk read. A nil result means the chain is
// too deep; a target that cannot be found leaves ref unresolved.
func (d *RefDirectory) resolve(ref *plumbing.Reference, depth int, prefix string,
	loose *RefList[*looseRef], packed *packedRefList,
) (*plumbing.Reference, error) {
	if ref.Type() != plumbing.SymbolicReference {
		return ref, nil
	}

	if depth == plumbing.MaxResolveDepth {
		return nil, nil
	}

	targetName := ref.TargetName()

	var dst *plumbing.Reference
	if loose != nil && (prefix == "" || strings.HasPrefix(targetName.String(), prefix)) {
		if entry, ok := loose.Get(targetName); ok {
			dst = entry.Reference
		} else if packedRef, ok := packed.Get(targetName); ok {
			dst = packedRef
		}
	} else {
		var err error
		dst, err = d.readRef(targetName.String(), packed)
		if err != nil {
			return nil, err
		}
	}

	if dst == nil {
		// Unresolvable target, return the reference unchanged.
		return ref, nil
	}

	dst, err := d.resolve(dst, depth+1, prefix, loose, packed)
	if err != nil || dst == nil {
		return nil, err
	}

	return plumbing.NewSymbolicReference(ref.Name(), dst).WithStorage(ref.Storage()), nil
}

// fireRefsChanged dispatches the change callback when the
// modification counter advanced past the last notified value. Exactly
// one caller notifies per distinct transition; the initial transition
// away from zero is suppressed.
func (d *RefDirectory) fireRefsChanged() {
	last := d.lastNotified.Load()
	curr := d.modCnt.Load()

	if last != curr && d.lastNotified.CompareAndSwap(last, curr) && last != 0 {
		if fn := d.options.OnRefsChanged; fn != nil {
			fn()
		}
	}
}

// refPath maps a reference name to its path inside the repository
// directory.
func refPath(fs billy.Filesystem, name string) string {
	return fs.Join(strings.Split(name, "/")...)
}

// levelsIn counts the path segments of a reference name.
func levelsIn(name string) int {
	return strings.Count(name, "/") + 1
}
