package refdir

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/go-git/go-billy/v5"
)

// FileSnapshot records the observable state of a file at the moment it
// was read, so later reads can cheaply detect external changes without
// comparing content.
type FileSnapshot struct {
	modTime  time.Time
	size     int64
	lastRead atomic.Int64 // unix nanoseconds
}

// MissingSnapshot represents a file that did not exist when it was
// checked.
var MissingSnapshot = &FileSnapshot{size: -1}

// SnapshotFromInfo captures a snapshot from an already obtained
// os.FileInfo.
func SnapshotFromInfo(fi os.FileInfo) *FileSnapshot {
	s := &FileSnapshot{
		modTime: fi.ModTime(),
		size:    fi.Size(),
	}
	s.lastRead.Store(time.Now().UnixNano())

	return s
}

// TakeSnapshot stats path and captures a snapshot of it. A missing
// file yields MissingSnapshot.
func TakeSnapshot(fs billy.Filesystem, path string) (*FileSnapshot, error) {
	fi, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return MissingSnapshot, nil
		}

		return nil, err
	}

	return SnapshotFromInfo(fi), nil
}

// IsMissing reports whether the snapshot was taken of a file that did
// not exist.
func (s *FileSnapshot) IsMissing() bool {
	return s.size < 0
}

// IsModified re-stats path and reports whether its modification time
// or size differ from the snapshot. A file that went missing, or
// appeared after a missing snapshot, counts as modified.
func (s *FileSnapshot) IsModified(fs billy.Filesystem, path string) bool {
	fi, err := fs.Stat(path)
	if err != nil {
		return !s.IsMissing()
	}

	if s.IsMissing() {
		return true
	}

	return !s.modTime.Equal(fi.ModTime()) || s.size != fi.Size()
}

// SetClean adopts the fresher read time of other. It is called when
// the content behind both snapshots compared equal. Only the read time
// changes: the recorded modification time and size stay as they were,
// so IsModified keeps reporting a file whose timestamp changed as
// modified, and its content is read again on the next check.
func (s *FileSnapshot) SetClean(other *FileSnapshot) {
	if s == MissingSnapshot || other == nil {
		return
	}

	if t := other.lastRead.Load(); t > s.lastRead.Load() {
		s.lastRead.Store(t)
	}
}

// LastRead returns the time the snapshotted content was last read.
func (s *FileSnapshot) LastRead() time.Time {
	return time.Unix(0, s.lastRead.Load())
}
