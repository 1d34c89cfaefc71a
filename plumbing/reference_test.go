package plumbing

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type ReferenceSuite struct {
	suite.Suite
}

func TestReferenceSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(ReferenceSuite))
}

const (
	ExampleReferenceName ReferenceName = "refs/heads/v4"
)

func (s *ReferenceSuite) TestReferenceTypeString() {
	s.Equal("symbolic-reference", SymbolicReference.String())
}

func (s *ReferenceSuite) TestStorageString() {
	s.Equal("new", NewStorage.String())
	s.Equal("loose", LooseStorage.String())
	s.Equal("packed", PackedStorage.String())
	s.Equal("loose-packed", LoosePackedStorage.String())
	s.Equal("network", NetworkStorage.String())
}

func (s *ReferenceSuite) TestStoragePredicates() {
	s.True(LooseStorage.IsLoose())
	s.True(LoosePackedStorage.IsLoose())
	s.False(PackedStorage.IsLoose())

	s.True(PackedStorage.IsPacked())
	s.True(LoosePackedStorage.IsPacked())
	s.False(NewStorage.IsPacked())
}

func (s *ReferenceSuite) TestReferenceNameShort() {
	s.Equal("v4", ExampleReferenceName.Short())
}

func (s *ReferenceSuite) TestReferenceNameWithSlash() {
	r := ReferenceName("refs/remotes/origin/feature/AllowSlashes")
	s.Equal("origin/feature/AllowSlashes", r.Short())
}

func (s *ReferenceSuite) TestNewReferenceFromStrings() {
	r := NewReferenceFromStrings("refs/heads/v4", "6ecf0ef2c2dffb796033e5a02219af86ec6584e5")
	s.Equal(HashReference, r.Type())
	s.Equal(ExampleReferenceName, r.Name())
	s.Equal(NewHash("6ecf0ef2c2dffb796033e5a02219af86ec6584e5"), r.Hash())

	r = NewReferenceFromStrings("HEAD", "ref: refs/heads/v4")
	s.Equal(SymbolicReference, r.Type())
	s.Equal(HEAD, r.Name())
	s.Equal(ExampleReferenceName, r.TargetName())
	s.True(r.Hash().IsZero())
}

func (s *ReferenceSuite) TestNewSymbolicReference() {
	target := NewHashReference(ExampleReferenceName, NewHash("6ecf0ef2c2dffb796033e5a02219af86ec6584e5"))
	r := NewSymbolicReference(HEAD, target)
	s.Equal(SymbolicReference, r.Type())
	s.Equal(HEAD, r.Name())
	s.Equal(ExampleReferenceName, r.TargetName())
	s.Equal(target, r.Leaf())
	s.Equal(target.Hash(), r.Hash())
}

func (s *ReferenceSuite) TestNewHashReference() {
	r := NewHashReference(ExampleReferenceName, NewHash("6ecf0ef2c2dffb796033e5a02219af86ec6584e5"))
	s.Equal(HashReference, r.Type())
	s.Equal(ExampleReferenceName, r.Name())
	s.Equal(NewHash("6ecf0ef2c2dffb796033e5a02219af86ec6584e5"), r.Hash())
	s.False(r.IsPeeled())
	s.True(r.PeeledHash().IsZero())
}

func (s *ReferenceSuite) TestNewPeeledTagReference() {
	tag := NewHash("2222222222222222222222222222222222222222")
	peeled := NewHash("3333333333333333333333333333333333333333")

	r := NewPeeledTagReference("refs/tags/v1", tag, peeled)
	s.True(r.IsPeeled())
	s.Equal(tag, r.Hash())
	s.Equal(peeled, r.PeeledHash())
}

func (s *ReferenceSuite) TestNewPeeledReference() {
	id := NewHash("1111111111111111111111111111111111111111")

	r := NewPeeledReference("refs/heads/a", id)
	s.True(r.IsPeeled())
	s.Equal(id, r.Hash())
	s.Equal(id, r.PeeledHash())
}

func (s *ReferenceSuite) TestLeafFollowsChain() {
	leaf := NewHashReference(Master, NewHash("6ecf0ef2c2dffb796033e5a02219af86ec6584e5"))
	mid := NewSymbolicReference("refs/heads/alias", leaf)
	top := NewSymbolicReference(HEAD, mid)

	s.Equal(leaf, top.Leaf())
	s.Equal(leaf.Hash(), top.Hash())
	s.Equal(ReferenceName("refs/heads/alias"), top.TargetName())
}

func (s *ReferenceSuite) TestWithStorage() {
	r := NewHashReference(Master, NewHash("6ecf0ef2c2dffb796033e5a02219af86ec6584e5"))
	s.Equal(NewStorage, r.Storage())

	l := r.WithStorage(LooseStorage)
	s.Equal(LooseStorage, l.Storage())
	s.Equal(NewStorage, r.Storage())
	s.Equal(r.Hash(), l.Hash())
}

func (s *ReferenceSuite) TestNewBranchReferenceName() {
	r := NewBranchReferenceName("foo")
	s.Equal("refs/heads/foo", r.String())
}

func (s *ReferenceSuite) TestNewNoteReferenceName() {
	r := NewNoteReferenceName("foo")
	s.Equal("refs/notes/foo", r.String())
}

func (s *ReferenceSuite) TestNewRemoteReferenceName() {
	r := NewRemoteReferenceName("bar", "foo")
	s.Equal("refs/remotes/bar/foo", r.String())
}

func (s *ReferenceSuite) TestNewRemoteHEADReferenceName() {
	r := NewRemoteHEADReferenceName("foo")
	s.Equal("refs/remotes/foo/HEAD", r.String())
}

func (s *ReferenceSuite) TestNewTagReferenceName() {
	r := NewTagReferenceName("foo")
	s.Equal("refs/tags/foo", r.String())
}

func (s *ReferenceSuite) TestIsBranch() {
	s.True(ExampleReferenceName.IsBranch())
}

func (s *ReferenceSuite) TestIsNote() {
	r := ReferenceName("refs/notes/foo")
	s.True(r.IsNote())
}

func (s *ReferenceSuite) TestIsRemote() {
	r := ReferenceName("refs/remotes/origin/master")
	s.True(r.IsRemote())
}

func (s *ReferenceSuite) TestIsTag() {
	r := ReferenceName("refs/tags/v3.1.1")
	s.True(r.IsTag())
}

func (s *ReferenceSuite) TestString() {
	r := NewHashReference(Master, NewHash("6ecf0ef2c2dffb796033e5a02219af86ec6584e5"))
	s.Equal("6ecf0ef2c2dffb796033e5a02219af86ec6584e5 refs/heads/master", r.String())

	sym := NewSymbolicReference(HEAD, NewHashReference(Master, ZeroHash))
	s.Equal("ref: refs/heads/master HEAD", sym.String())
}
