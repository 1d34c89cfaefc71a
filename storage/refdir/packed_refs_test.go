package refdir

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/go-git/go-refdb/plumbing"
)

type PackedRefsSuite struct {
	suite.Suite
}

func TestPackedRefsSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(PackedRefsSuite))
}

const packedRefsFixture = `# pack-refs with: peeled
1111111111111111111111111111111111111111 refs/heads/a
2222222222222222222222222222222222222222 refs/tags/v1
^3333333333333333333333333333333333333333
`

func (s *PackedRefsSuite) TestParsePeeledHeader() {
	refs, err := parsePackedRefs(strings.NewReader(packedRefsFixture))
	s.Require().NoError(err)
	s.Equal(2, refs.Len())

	a, ok := refs.Get("refs/heads/a")
	s.Require().True(ok)
	s.Equal(plumbing.NewHash("1111111111111111111111111111111111111111"), a.Hash())
	s.Equal(plumbing.PackedStorage, a.Storage())

	// With the peeled header, a ref without a ^ line is known to be
	// its own peel.
	s.True(a.IsPeeled())
	s.Equal(a.Hash(), a.PeeledHash())

	v1, ok := refs.Get("refs/tags/v1")
	s.Require().True(ok)
	s.Equal(plumbing.NewHash("2222222222222222222222222222222222222222"), v1.Hash())
	s.True(v1.IsPeeled())
	s.Equal(plumbing.NewHash("3333333333333333333333333333333333333333"), v1.PeeledHash())
}

func (s *PackedRefsSuite) TestParseWithoutHeader() {
	refs, err := parsePackedRefs(strings.NewReader(
		"1111111111111111111111111111111111111111 refs/heads/a\n"))
	s.Require().NoError(err)
	s.Equal(1, refs.Len())

	a, _ := refs.Get("refs/heads/a")
	s.False(a.IsPeeled())
}

func (s *PackedRefsSuite) TestParseUnknownHeaderFlagsIgnored() {
	refs, err := parsePackedRefs(strings.NewReader(
		"# pack-refs with: peeled fully-peeled sorted\n" +
			"1111111111111111111111111111111111111111 refs/heads/a\n"))
	s.Require().NoError(err)
	s.Equal(1, refs.Len())

	a, _ := refs.Get("refs/heads/a")
	s.True(a.IsPeeled())
}

func (s *PackedRefsSuite) TestParsePeeledLineBeforeAnyRef() {
	_, err := parsePackedRefs(strings.NewReader(
		"^3333333333333333333333333333333333333333\n"))
	s.ErrorIs(err, ErrPackedRefsBadFormat)
}

func (s *PackedRefsSuite) TestParseMalformedLine() {
	_, err := parsePackedRefs(strings.NewReader("not a packed ref\n"))
	s.ErrorIs(err, ErrPackedRefsBadFormat)

	_, err = parsePackedRefs(strings.NewReader(
		"zzzz111111111111111111111111111111111111 refs/heads/a\n"))
	s.ErrorIs(err, ErrPackedRefsBadFormat)
}

func (s *PackedRefsSuite) TestParseUnsortedInputIsSorted() {
	refs, err := parsePackedRefs(strings.NewReader(
		"2222222222222222222222222222222222222222 refs/heads/b\n" +
			"1111111111111111111111111111111111111111 refs/heads/a\n"))
	s.Require().NoError(err)
	s.Equal(2, refs.Len())
	s.Equal(plumbing.ReferenceName("refs/heads/a"), refs.At(0).Name())
	s.Equal(plumbing.ReferenceName("refs/heads/b"), refs.At(1).Name())
}

func (s *PackedRefsSuite) TestParseMissingFinalNewline() {
	refs, err := parsePackedRefs(strings.NewReader(
		"1111111111111111111111111111111111111111 refs/heads/a"))
	s.Require().NoError(err)
	s.Equal(1, refs.Len())
}

func (s *PackedRefsSuite) TestRoundTripCanonicalInput() {
	refs, err := parsePackedRefs(strings.NewReader(packedRefsFixture))
	s.Require().NoError(err)

	var buf bytes.Buffer
	s.Require().NoError(writePackedRefs(&buf, refs))

	s.Equal(packedRefsFixture, buf.String())
}

func (s *PackedRefsSuite) TestWriteEmitsPeeledTagSideline() {
	b := NewRefListBuilder[*plumbing.Reference](2)
	b.Add(plumbing.NewPeeledReference("refs/heads/a",
		plumbing.NewHash("1111111111111111111111111111111111111111")))
	b.Add(plumbing.NewPeeledTagReference("refs/tags/v1",
		plumbing.NewHash("2222222222222222222222222222222222222222"),
		plumbing.NewHash("3333333333333333333333333333333333333333")))

	var buf bytes.Buffer
	s.Require().NoError(writePackedRefs(&buf, b.ToRefList()))

	s.Equal(packedRefsFixture, buf.String())
}
