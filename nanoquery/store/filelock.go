package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockTimeout    = 3 * time.Second
	lockMaxRetries = 3
	lockRetryDelay = 100 * time.Millisecond
)

// ReadLock is a shared lock held while a store file is read.
// *flock.Flock satisfies it.
type ReadLock interface {
	TryRLockContext(ctx context.Context, retryInterval time.Duration) (bool, error)
	Unlock() error
}

// LockOpener returns the lock guarding the file at path
type LockOpener func(path string) ReadLock

func openFlock(path string) ReadLock {
	return flock.New(path)
}

// lockPath is the sidecar file other writers of path lock
func lockPath(path string) string {
	return path + ".lock"
}

// readShared reads path while holding a shared lock on its sidecar file.
// A missing file reads as empty.
func readShared(fs FileSystem, open LockOpener, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	lock := open(lockPath(path))
	if err := acquireShared(ctx, lock); err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	if _, err := fs.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

func acquireShared(ctx context.Context, lock ReadLock) error {
	for i := 0; i < lockMaxRetries; i++ {
		locked, err := lock.TryRLockContext(ctx, lockRetryDelay)
		if err != nil {
			return fmt.Errorf("failed to acquire lock: %w", err)
		}
		if locked {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	return fmt.Errorf("failed to acquire lock after %d attempts", lockMaxRetries)
}
