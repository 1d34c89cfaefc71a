package plumbing

import (
	"errors"
	"fmt"
	"strings"
)

const (
	refPrefix       = "refs/"
	refHeadPrefix   = refPrefix + "heads/"
	refTagPrefix    = refPrefix + "tags/"
	refRemotePrefix = refPrefix + "remotes/"
	refNotePrefix   = refPrefix + "notes/"
	symrefPrefix    = "ref: "
)

// MaxResolveDepth is the maximum length of a chain of symbolic
// references followed while resolving. Chains deeper than this are
// considered broken and resolve to no reference at all.
const MaxResolveDepth = 5

// ErrReferenceNotFound is returned when a reference does not exist.
var ErrReferenceNotFound = errors.New("reference not found")

// ReferenceType reference type's
type ReferenceType int8

const (
	InvalidReference  ReferenceType = 0
	HashReference     ReferenceType = 1
	SymbolicReference ReferenceType = 2
)

func (r ReferenceType) String() string {
	switch r {
	case InvalidReference:
		return "invalid-reference"
	case HashReference:
		return "hash-reference"
	case SymbolicReference:
		return "symbolic-reference"
	}

	return ""
}

// Storage describes where a reference is persisted.
type Storage int8

const (
	// NewStorage is a reference that has not been persisted yet.
	NewStorage Storage = iota
	// LooseStorage is a reference stored in a file under the
	// repository directory.
	LooseStorage
	// PackedStorage is a reference stored as a line of the
	// packed-refs file.
	PackedStorage
	// LoosePackedStorage is a reference stored both loose and packed;
	// the loose value shadows the packed one.
	LoosePackedStorage
	// NetworkStorage is a reference advertised by a remote. It never
	// arises from on-disk storage.
	NetworkStorage
)

func (s Storage) String() string {
	switch s {
	case NewStorage:
		return "new"
	case LooseStorage:
		return "loose"
	case PackedStorage:
		return "packed"
	case LoosePackedStorage:
		return "loose-packed"
	case NetworkStorage:
		return "network"
	}

	return ""
}

// IsLoose reports whether the reference is backed by a loose file.
func (s Storage) IsLoose() bool {
	return s == LooseStorage || s == LoosePackedStorage
}

// IsPacked reports whether the reference appears in the packed-refs
// file.
func (s Storage) IsPacked() bool {
	return s == PackedStorage || s == LoosePackedStorage
}

// ReferenceName reference name's
type ReferenceName string

const (
	// HEAD is the reference the working tree is checked out from.
	HEAD ReferenceName = "HEAD"
	// Master is the default branch name in older repositories.
	Master ReferenceName = "refs/heads/master"
)

// NewBranchReferenceName returns a reference name describing a branch
// based on his short name.
func NewBranchReferenceName(name string) ReferenceName {
	return ReferenceName(refHeadPrefix + name)
}

// NewNoteReferenceName returns a reference name describing a note
// based on his short name.
func NewNoteReferenceName(name string) ReferenceName {
	return ReferenceName(refNotePrefix + name)
}

// NewRemoteReferenceName returns a reference name describing a remote
// branch based on his short name and the remote name.
func NewRemoteReferenceName(remote, name string) ReferenceName {
	return ReferenceName(refRemotePrefix + remote + "/" + name)
}

// NewRemoteHEADReferenceName returns a reference name describing a the
// HEAD branch of a remote.
func NewRemoteHEADReferenceName(remote string) ReferenceName {
	return ReferenceName(refRemotePrefix + remote + "/" + HEAD.String())
}

// NewTagReferenceName returns a reference name describing a tag based
// on short his name.
func NewTagReferenceName(name string) ReferenceName {
	return ReferenceName(refTagPrefix + name)
}

// IsBranch check if a reference is a branch
func (r ReferenceName) IsBranch() bool {
	return strings.HasPrefix(string(r), refHeadPrefix)
}

// IsNote check if a reference is a note
func (r ReferenceName) IsNote() bool {
	return strings.HasPrefix(string(r), refNotePrefix)
}

// IsRemote check if a reference is a remote
func (r ReferenceName) IsRemote() bool {
	return strings.HasPrefix(string(r), refRemotePrefix)
}

// IsTag check if a reference is a tag
func (r ReferenceName) IsTag() bool {
	return strings.HasPrefix(string(r), refTagPrefix)
}

func (r ReferenceName) String() string {
	return string(r)
}

// Short returns the short name of a ReferenceName
func (r ReferenceName) Short() string {
	s := string(r)
	res := s
	for _, format := range [...]string{refHeadPrefix, refTagPrefix, refNotePrefix, refRemotePrefix} {
		if strings.HasPrefix(s, format) {
			res = s[len(format):]
			break
		}
	}

	return res
}

type peelState int8

const (
	peelUnknown peelState = iota
	peelNonTag
	peelTag
)

// Reference is an immutable snapshot of a git reference. A direct
// reference carries an object id and, once peeled, the non-tag object
// it ultimately points at. A symbolic reference carries another
// Reference as its target.
type Reference struct {
	t       ReferenceType
	n       ReferenceName
	h       Hash
	peeled  Hash
	peel    peelState
	storage Storage
	target  *Reference
}

// NewReferenceFromStrings creates a reference from name and target as
// string, the resulting reference can be a SymbolicReference or a
// HashReference base on the target provided. The target of a symbolic
// reference built this way is an unresolved, unpeeled direct
// reference with no object id.
func NewReferenceFromStrings(name, target string) *Reference {
	n := ReferenceName(name)

	if strings.HasPrefix(target, symrefPrefix) {
		target := ReferenceName(target[len(symrefPrefix):])
		return NewSymbolicReference(n, NewHashReference(target, ZeroHash))
	}

	return NewHashReference(n, NewHash(target))
}

// NewSymbolicReference creates a new SymbolicReference reference,
// pointing at target.
func NewSymbolicReference(n ReferenceName, target *Reference) *Reference {
	return &Reference{
		t:      SymbolicReference,
		n:      n,
		target: target,
	}
}

// NewHashReference creates a new, unpeeled HashReference reference.
func NewHashReference(n ReferenceName, h Hash) *Reference {
	return &Reference{
		t: HashReference,
		n: n,
		h: h,
	}
}

// NewPeeledTagReference creates a HashReference to a tag object whose
// peeled, non-tag target is already known.
func NewPeeledTagReference(n ReferenceName, h, peeled Hash) *Reference {
	return &Reference{
		t:      HashReference,
		n:      n,
		h:      h,
		peeled: peeled,
		peel:   peelTag,
	}
}

// NewPeeledReference creates a HashReference to an object known not
// to be a tag. Its own id is its peeled value.
func NewPeeledReference(n ReferenceName, h Hash) *Reference {
	return &Reference{
		t:    HashReference,
		n:    n,
		h:    h,
		peel: peelNonTag,
	}
}

// Type return the type of a reference
func (r *Reference) Type() ReferenceType {
	return r.t
}

// Name return the name of a reference
func (r *Reference) Name() ReferenceName {
	return r.n
}

// Hash returns the object id of a reference. For a symbolic reference
// it is the object id of the leaf, which is the zero hash while the
// target is unresolved.
func (r *Reference) Hash() Hash {
	if r.t == SymbolicReference {
		return r.Leaf().Hash()
	}

	return r.h
}

// Target returns the target of a symbolic reference, nil for a direct
// reference.
func (r *Reference) Target() *Reference {
	return r.target
}

// TargetName returns the name of the target of a symbolic reference.
func (r *Reference) TargetName() ReferenceName {
	if r.target == nil {
		return ""
	}

	return r.target.Name()
}

// Leaf returns the terminal direct reference reached by following
// symbolic targets. A direct reference is its own leaf.
func (r *Reference) Leaf() *Reference {
	l := r
	for l.t == SymbolicReference {
		l = l.target
	}

	return l
}

// IsPeeled reports whether the peeled value of the reference is
// known. Symbolic references delegate to their leaf.
func (r *Reference) IsPeeled() bool {
	if r.t == SymbolicReference {
		return r.Leaf().IsPeeled()
	}

	return r.peel != peelUnknown
}

// PeeledHash returns the peeled, non-tag object id of the reference,
// or the zero hash when it has not been peeled yet. Symbolic
// references delegate to their leaf.
func (r *Reference) PeeledHash() Hash {
	if r.t == SymbolicReference {
		return r.Leaf().PeeledHash()
	}

	switch r.peel {
	case peelTag:
		return r.peeled
	case peelNonTag:
		return r.h
	}

	return ZeroHash
}

// Storage returns where the reference is persisted.
func (r *Reference) Storage() Storage {
	return r.storage
}

// WithStorage returns a copy of the reference with the given storage.
func (r *Reference) WithStorage(s Storage) *Reference {
	n := *r
	n.storage = s
	return &n
}

// WithTarget returns a copy of a symbolic reference pointing at the
// given target.
func (r *Reference) WithTarget(target *Reference) *Reference {
	n := *r
	n.target = target
	return &n
}

// Strings dump a reference as a [2]string
func (r *Reference) Strings() [2]string {
	var o [2]string
	o[0] = r.Name().String()

	switch r.Type() {
	case HashReference:
		o[1] = r.Hash().String()
	case SymbolicReference:
		o[1] = symrefPrefix + r.TargetName().String()
	}

	return o
}

func (r *Reference) String() string {
	s := r.Strings()
	return fmt.Sprintf("%s %s", s[1], s[0])
}
