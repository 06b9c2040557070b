package store_test

import (
	"context"
	"sync"
	"time"

	"github.com/arthur-debert/nanoquery/nanoquery/store"
)

// MockReadLock provides a mock implementation of store.ReadLock
type MockReadLock struct {
	mu        sync.Mutex
	isLocked  bool
	lockError error

	LockAttempts   int
	UnlockAttempts int
}

// TryRLockContext implements store.ReadLock
func (m *MockReadLock) TryRLockContext(ctx context.Context, retryInterval time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LockAttempts++
	if m.lockError != nil {
		return false, m.lockError
	}
	if m.isLocked {
		return false, nil
	}
	m.isLocked = true
	return true, nil
}

// Unlock implements store.ReadLock
func (m *MockReadLock) Unlock() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UnlockAttempts++
	m.isLocked = false
	return nil
}

// IsLocked returns whether the lock is currently held
func (m *MockReadLock) IsLocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isLocked
}

// MockLocks hands out one MockReadLock per path
type MockLocks struct {
	mu    sync.Mutex
	locks map[string]*MockReadLock

	// DefaultLockError is injected into every new lock
	DefaultLockError error
}

// NewMockLocks creates an empty set of mock locks
func NewMockLocks() *MockLocks {
	return &MockLocks{locks: make(map[string]*MockReadLock)}
}

// Open is a store.LockOpener
func (f *MockLocks) Open(path string) store.ReadLock {
	f.mu.Lock()
	defer f.mu.Unlock()

	if lock, exists := f.locks[path]; exists {
		return lock
	}
	lock := &MockReadLock{lockError: f.DefaultLockError}
	f.locks[path] = lock
	return lock
}

// GetLock returns the mock lock created for path, or nil
func (f *MockLocks) GetLock(path string) *MockReadLock {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locks[path]
}
