package refdir

import (
	"sort"

	"github.com/go-git/go-refdb/plumbing"
)

// Named is satisfied by values addressable by reference name.
type Named interface {
	Name() plumbing.ReferenceName
}

// RefList is an immutable, name-sorted, duplicate-free sequence of
// references. All mutating operations return a new list, the receiver
// is never changed.
type RefList[T Named] struct {
	refs []T
}

// EmptyRefList returns a list with no elements.
func EmptyRefList[T Named]() RefList[T] {
	return RefList[T]{}
}

// Len returns the number of elements in the list.
func (l RefList[T]) Len() int {
	return len(l.refs)
}

// At returns the element at position i.
func (l RefList[T]) At(i int) T {
	return l.refs[i]
}

// Find locates name by binary search. It returns the non-negative
// index of name if present, otherwise -(insertion point) - 1, where
// the insertion point is the index the name would be inserted at to
// keep the list sorted.
func (l RefList[T]) Find(name plumbing.ReferenceName) int {
	i := sort.Search(len(l.refs), func(i int) bool {
		return l.refs[i].Name() >= name
	})

	if i < len(l.refs) && l.refs[i].Name() == name {
		return i
	}

	return -(i + 1)
}

// Contains reports whether name is present in the list.
func (l RefList[T]) Contains(name plumbing.ReferenceName) bool {
	return l.Find(name) >= 0
}

// Get returns the element with the given name, if present.
func (l RefList[T]) Get(name plumbing.ReferenceName) (ref T, ok bool) {
	if i := l.Find(name); i >= 0 {
		return l.refs[i], true
	}

	return
}

// Add returns a new list with ref inserted at index i. A negative i,
// as returned by a failed Find, is converted back to the insertion
// point it encodes.
func (l RefList[T]) Add(i int, ref T) RefList[T] {
	if i < 0 {
		i = -(i + 1)
	}

	refs := make([]T, 0, len(l.refs)+1)
	refs = append(refs, l.refs[:i]...)
	refs = append(refs, ref)
	refs = append(refs, l.refs[i:]...)

	return RefList[T]{refs: refs}
}

// Set returns a new list with the element at index i replaced by ref.
func (l RefList[T]) Set(i int, ref T) RefList[T] {
	refs := make([]T, len(l.refs))
	copy(refs, l.refs)
	refs[i] = ref

	return RefList[T]{refs: refs}
}

// Remove returns a new list without the element at index i.
func (l RefList[T]) Remove(i int) RefList[T] {
	refs := make([]T, 0, len(l.refs)-1)
	refs = append(refs, l.refs[:i]...)
	refs = append(refs, l.refs[i+1:]...)

	return RefList[T]{refs: refs}
}

// Put returns a new list with ref inserted at its sorted position,
// replacing any existing element of the same name.
func (l RefList[T]) Put(ref T) RefList[T] {
	i := l.Find(ref.Name())
	if i >= 0 {
		return l.Set(i, ref)
	}

	return l.Add(i, ref)
}

// RefListBuilder accumulates references for bulk construction of a
// RefList.
type RefListBuilder[T Named] struct {
	refs []T
}

// NewRefListBuilder returns a builder with capacity for n references.
func NewRefListBuilder[T Named](n int) *RefListBuilder[T] {
	return &RefListBuilder[T]{refs: make([]T, 0, n)}
}

// Add appends ref to the builder. Callers adding out of order must
// call Sort before ToRefList.
func (b *RefListBuilder[T]) Add(ref T) {
	b.refs = append(b.refs, ref)
}

// Len returns the number of references added so far.
func (b *RefListBuilder[T]) Len() int {
	return len(b.refs)
}

// At returns the reference at position i.
func (b *RefListBuilder[T]) At(i int) T {
	return b.refs[i]
}

// Set replaces the reference at position i.
func (b *RefListBuilder[T]) Set(i int, ref T) {
	b.refs[i] = ref
}

// Sort orders the contents by name. The sort is stable, so of two
// entries with equal names the one added first stays first.
func (b *RefListBuilder[T]) Sort() {
	sort.SliceStable(b.refs, func(i, j int) bool {
		return b.refs[i].Name() < b.refs[j].Name()
	})
}

// ToRefList freezes the builder contents into a RefList. The builder
// must not be used afterwards.
func (b *RefListBuilder[T]) ToRefList() RefList[T] {
	return RefList[T]{refs: b.refs}
}
