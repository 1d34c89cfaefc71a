package refdir

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/go-git/go-refdb/utils/ioutil"
)

// LockSuffix is appended to a file name to form the name of its lock
// file.
const LockSuffix = ".lock"

var (
	// ErrLockNotHeld is returned when an operation requires the lock
	// to be held and it is not.
	ErrLockNotHeld = errors.New("lock file is not held")
)

// LockFile is an advisory, exclusive-writer lock on a target file,
// implemented as a sibling ".lock" file created with O_EXCL. Content
// written through the lock is staged in the lock file and atomically
// renamed over the target on Commit.
type LockFile struct {
	fs       billy.Filesystem
	path     string
	lockPath string

	f     billy.File
	held  bool
	fsync bool

	needSnapshot   bool
	commitSnapshot *FileSnapshot
}

// NewLockFile returns a lock for the file at path. The lock is not
// acquired until Lock is called.
func NewLockFile(fs billy.Filesystem, path string) *LockFile {
	return &LockFile{
		fs:       fs,
		path:     path,
		lockPath: path + LockSuffix,
	}
}

// Lock attempts to acquire the lock by creating the lock file. It
// returns false without error if another process already holds it.
func (l *LockFile) Lock() (bool, error) {
	f, err := l.fs.OpenFile(l.lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("cannot lock %s: %w", l.path, err)
	}

	l.f = f
	l.held = true
	l.commitSnapshot = nil

	return true, nil
}

// Write streams bytes into the lock file. The target file is not
// touched until Commit.
func (l *LockFile) Write(p []byte) (int, error) {
	if !l.held {
		return 0, ErrLockNotHeld
	}

	return l.f.Write(p)
}

// SetFSync forces a durable flush of the lock file before Commit
// renames it into place.
func (l *LockFile) SetFSync(on bool) {
	l.fsync = on
}

// SetNeedSnapshot requests that a FileSnapshot of the committed file
// be captured during Commit, available through CommitSnapshot.
func (l *LockFile) SetNeedSnapshot(on bool) {
	l.needSnapshot = on
}

// CommitSnapshot returns the snapshot captured by the last successful
// Commit, when SetNeedSnapshot was enabled.
func (l *LockFile) CommitSnapshot() *FileSnapshot {
	return l.commitSnapshot
}

// WaitForStatChange waits until the lock file's modification time
// differs from that of the target file, so observers polling the
// target can detect the upcoming rename even on filesystems with
// coarse timestamp resolution. The lock file is re-touched between
// short sleeps when the filesystem supports it.
func (l *LockFile) WaitForStatChange() error {
	if !l.held {
		return ErrLockNotHeld
	}

	old, err := l.fs.Stat(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			// No previous file, any timestamp differs.
			return nil
		}

		return err
	}

	ch, canTouch := l.fs.(billy.Change)
	for i := 0; i < 16; i++ {
		cur, err := l.fs.Stat(l.lockPath)
		if err != nil {
			return err
		}

		if !cur.ModTime().Equal(old.ModTime()) {
			return nil
		}

		time.Sleep(time.Millisecond << uint(i%4))
		if canTouch {
			now := time.Now()
			if err := ch.Chtimes(l.lockPath, now, now); err != nil {
				return err
			}
		}
	}

	return nil
}

// Commit atomically renames the lock file onto the target. A failed
// Commit releases the lock and leaves the previous target content in
// place.
func (l *LockFile) Commit() (err error) {
	if !l.held {
		return ErrLockNotHeld
	}

	if l.fsync {
		if s, ok := l.f.(interface{ Sync() error }); ok {
			if err := s.Sync(); err != nil {
				l.Unlock()
				return fmt.Errorf("cannot sync %s: %w", l.lockPath, err)
			}
		}
	}

	if err := l.f.Close(); err != nil {
		l.f = nil
		l.Unlock()
		return fmt.Errorf("cannot close %s: %w", l.lockPath, err)
	}
	l.f = nil

	if err := l.fs.Rename(l.lockPath, l.path); err != nil {
		l.Unlock()
		return fmt.Errorf("cannot commit %s: %w", l.path, err)
	}

	l.held = false

	if l.needSnapshot {
		snapshot, err := TakeSnapshot(l.fs, l.path)
		if err != nil {
			return err
		}
		l.commitSnapshot = snapshot
	}

	return nil
}

// Unlock releases the lock without committing, removing the lock
// file. It is safe to call when the lock is not held.
func (l *LockFile) Unlock() {
	if !l.held {
		return
	}

	if l.f != nil {
		var err error
		ioutil.CheckClose(l.f, &err)
		l.f = nil
	}

	_ = l.fs.Remove(l.lockPath)
	l.held = false
}
