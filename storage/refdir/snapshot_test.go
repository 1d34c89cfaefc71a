package refdir

import (
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/suite"
)

type SnapshotSuite struct {
	suite.Suite
}

func TestSnapshotSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(SnapshotSuite))
}

func (s *SnapshotSuite) TestTakeSnapshotMissing() {
	fs := osfs.New(s.T().TempDir())

	snapshot, err := TakeSnapshot(fs, "missing")
	s.Require().NoError(err)
	s.Equal(MissingSnapshot, snapshot)
	s.True(snapshot.IsMissing())
}

func (s *SnapshotSuite) TestUnchangedFileIsNotModified() {
	fs := osfs.New(s.T().TempDir())
	s.Require().NoError(util.WriteFile(fs, "f", []byte("content\n"), 0666))

	snapshot, err := TakeSnapshot(fs, "f")
	s.Require().NoError(err)

	s.False(snapshot.IsModified(fs, "f"))
}

func (s *SnapshotSuite) TestSizeChangeIsModified() {
	fs := osfs.New(s.T().TempDir())
	s.Require().NoError(util.WriteFile(fs, "f", []byte("content\n"), 0666))

	snapshot, err := TakeSnapshot(fs, "f")
	s.Require().NoError(err)

	s.Require().NoError(util.WriteFile(fs, "f", []byte("longer content\n"), 0666))
	s.True(snapshot.IsModified(fs, "f"))
}

func (s *SnapshotSuite) TestRemovedFileIsModified() {
	fs := osfs.New(s.T().TempDir())
	s.Require().NoError(util.WriteFile(fs, "f", []byte("content\n"), 0666))

	snapshot, err := TakeSnapshot(fs, "f")
	s.Require().NoError(err)

	s.Require().NoError(fs.Remove("f"))
	s.True(snapshot.IsModified(fs, "f"))
}

func (s *SnapshotSuite) TestMissingSnapshotSeesCreation() {
	fs := osfs.New(s.T().TempDir())

	snapshot, err := TakeSnapshot(fs, "f")
	s.Require().NoError(err)
	s.False(snapshot.IsModified(fs, "f"))

	s.Require().NoError(util.WriteFile(fs, "f", []byte("content\n"), 0666))
	s.True(snapshot.IsModified(fs, "f"))
}

func (s *SnapshotSuite) TestSetCleanAdoptsFresherRead() {
	fs := osfs.New(s.T().TempDir())
	s.Require().NoError(util.WriteFile(fs, "f", []byte("content\n"), 0666))

	older, err := TakeSnapshot(fs, "f")
	s.Require().NoError(err)

	time.Sleep(5 * time.Millisecond)

	newer, err := TakeSnapshot(fs, "f")
	s.Require().NoError(err)

	older.SetClean(newer)
	s.Equal(newer.LastRead(), older.LastRead())

	// The fresher snapshot keeps its own read time.
	newer.SetClean(older)
	s.Equal(older.LastRead(), newer.LastRead())
}
