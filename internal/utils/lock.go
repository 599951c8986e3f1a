package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/mitchellh/go-homedir"
)

const (
	lockFileSuffix = ".lock"
)

// CommitLock serializes writers of a change log and the files committed
// alongside it.
type CommitLock struct {
	lock *flock.Flock
	path string
}

// NewCommitLock creates a new lock guarding the given change log path.
func NewCommitLock(logPath string) (*CommitLock, error) {
	absPath, err := ExpandPath(logPath)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute change log path: %w", err)
	}
	lockPath := absPath + lockFileSuffix
	return &CommitLock{
		lock: flock.New(lockPath),
		path: lockPath,
	}, nil
}

// Lock acquires the commit lock, waiting if necessary.
// It will print a message if it has to wait.
func (l *CommitLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}

	if !locked {
		fmt.Fprintf(os.Stderr, "Another dexhound process is committing to this change log, waiting for it to finish...\n")
		if err := l.lock.Lock(); err != nil {
			return fmt.Errorf("failed to acquire lock on %s after waiting: %w", l.path, err)
		}
	}
	return nil
}

// Unlock releases the commit lock.
func (l *CommitLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		// Suppress error if the lock file doesn't exist, as it means we don't hold the lock.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}

// WriteFileAtomic writes data next to path and renames it into place, so
// readers see either the old content or the new one.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// DefaultDBPath is where the offset history database lives unless configured.
func DefaultDBPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "dexhound", "dexhound.sqlite"), nil
}
