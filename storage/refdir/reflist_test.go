package refdir

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/go-git/go-refdb/plumbing"
)

type RefListSuite struct {
	suite.Suite
}

func TestRefListSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(RefListSuite))
}

func ref(name string) *plumbing.Reference {
	return plumbing.NewHashReference(plumbing.ReferenceName(name),
		plumbing.NewHash("6ecf0ef2c2dffb796033e5a02219af86ec6584e5"))
}

func (s *RefListSuite) newList(names ...string) RefList[*plumbing.Reference] {
	b := NewRefListBuilder[*plumbing.Reference](len(names))
	for _, n := range names {
		b.Add(ref(n))
	}
	b.Sort()
	return b.ToRefList()
}

func (s *RefListSuite) TestFindPresent() {
	l := s.newList("refs/heads/a", "refs/heads/b", "refs/heads/c")

	s.Equal(0, l.Find("refs/heads/a"))
	s.Equal(1, l.Find("refs/heads/b"))
	s.Equal(2, l.Find("refs/heads/c"))
}

func (s *RefListSuite) TestFindAbsentReturnsInsertionPoint() {
	l := s.newList("refs/heads/a", "refs/heads/c")

	s.Equal(-1, l.Find("refs/heads/0"))
	s.Equal(-2, l.Find("refs/heads/b"))
	s.Equal(-3, l.Find("refs/heads/d"))
}

func (s *RefListSuite) TestContainsAndGet() {
	l := s.newList("refs/heads/a")

	s.True(l.Contains("refs/heads/a"))
	s.False(l.Contains("refs/heads/b"))

	r, ok := l.Get("refs/heads/a")
	s.True(ok)
	s.Equal(plumbing.ReferenceName("refs/heads/a"), r.Name())

	_, ok = l.Get("refs/heads/b")
	s.False(ok)
}

func (s *RefListSuite) TestAddDoesNotMutateReceiver() {
	l := s.newList("refs/heads/a", "refs/heads/c")

	n := l.Add(l.Find("refs/heads/b"), ref("refs/heads/b"))

	s.Equal(2, l.Len())
	s.Equal(3, n.Len())
	s.Equal(plumbing.ReferenceName("refs/heads/b"), n.At(1).Name())
}

func (s *RefListSuite) TestSetReplaces() {
	l := s.newList("refs/heads/a", "refs/heads/b")

	replacement := plumbing.NewHashReference("refs/heads/b",
		plumbing.NewHash("1111111111111111111111111111111111111111"))
	n := l.Set(1, replacement)

	s.Equal(replacement.Hash(), n.At(1).Hash())
	s.NotEqual(replacement.Hash(), l.At(1).Hash())
}

func (s *RefListSuite) TestRemove() {
	l := s.newList("refs/heads/a", "refs/heads/b", "refs/heads/c")

	n := l.Remove(1)

	s.Equal(3, l.Len())
	s.Equal(2, n.Len())
	s.False(n.Contains("refs/heads/b"))
	s.True(n.Contains("refs/heads/a"))
	s.True(n.Contains("refs/heads/c"))
}

func (s *RefListSuite) TestPutInsertsOrReplaces() {
	l := s.newList("refs/heads/a", "refs/heads/c")

	n := l.Put(ref("refs/heads/b"))
	s.Equal(3, n.Len())
	s.Equal(1, n.Find("refs/heads/b"))

	replacement := plumbing.NewHashReference("refs/heads/a",
		plumbing.NewHash("1111111111111111111111111111111111111111"))
	n = n.Put(replacement)
	s.Equal(3, n.Len())
	s.Equal(replacement.Hash(), n.At(0).Hash())
}

func (s *RefListSuite) TestBuilderSortIsStable() {
	b := NewRefListBuilder[*plumbing.Reference](3)
	first := plumbing.NewHashReference("refs/heads/a",
		plumbing.NewHash("1111111111111111111111111111111111111111"))
	second := plumbing.NewHashReference("refs/heads/a",
		plumbing.NewHash("2222222222222222222222222222222222222222"))
	b.Add(ref("refs/heads/z"))
	b.Add(first)
	b.Add(second)
	b.Sort()

	l := b.ToRefList()
	s.Equal(first.Hash(), l.At(0).Hash())
	s.Equal(second.Hash(), l.At(1).Hash())
	s.Equal(plumbing.ReferenceName("refs/heads/z"), l.At(2).Name())
}

func (s *RefListSuite) TestEmptyRefList() {
	l := EmptyRefList[*plumbing.Reference]()
	s.Equal(0, l.Len())
	s.Equal(-1, l.Find("refs/heads/a"))
}
