// Package lock provides the inter-process lock guarding the store's
// read-modify-write cycle. The lock is a sidecar file next to the store;
// acquisition is bounded by a timeout and fails with a busy error rather
// than hanging.
package lock

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/zjrosen/flowstate/internal/domain"
	"github.com/zjrosen/flowstate/internal/log"
)

// retryInterval is how often a blocked acquirer re-attempts the lock.
const retryInterval = 10 * time.Millisecond

// FileLock is an advisory lock over a sidecar lock file. One FileLock guards
// one store path; it is safe for concurrent use within a process, but the
// point of it is exclusion across processes.
type FileLock struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// New creates a FileLock for the given lock file path. The file is created
// lazily on first acquisition.
func New(path string) *FileLock {
	return &FileLock{path: path}
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.path }

// Acquire takes the exclusive lock, retrying until timeout elapses. On
// expiry it returns a *domain.LockTimeoutError (matching
// domain.ErrLockTimeout); it never blocks indefinitely.
func (l *FileLock) Acquire(timeout time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return fmt.Errorf("lock %s already held by this handle", l.path)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644) //nolint:gosec // G304: sidecar lock path derives from the store dir
	if err != nil {
		return fmt.Errorf("opening lock file: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		locked, err := tryLock(f)
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("locking %s: %w", l.path, err)
		}
		if locked {
			l.file = f
			log.Debug(log.CatLock, "lock acquired", "path", l.path)
			return nil
		}
		if time.Now().After(deadline) {
			_ = f.Close()
			log.Warn(log.CatLock, "lock acquisition timed out", "path", l.path, "timeout", timeout)
			return &domain.LockTimeoutError{Path: l.path, Timeout: timeout.String()}
		}
		time.Sleep(retryInterval)
	}
}

// Release drops the lock and closes the underlying file. Releasing an
// unheld lock is a no-op.
func (l *FileLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := unlock(l.file)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("unlocking %s: %w", l.path, err)
	}
	if closeErr != nil {
		return fmt.Errorf("closing lock file: %w", closeErr)
	}
	log.Debug(log.CatLock, "lock released", "path", l.path)
	return nil
}
