// Package filelock guards the cookie jar and token files with a sibling
// ".lock" file so two processes sharing a path do not interleave writes.
package filelock

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// DefaultTimeout is how long callers usually wait for a lock.
const DefaultTimeout = 5 * time.Second

// staleAfter is the age at which a leftover lock file is considered
// abandoned by a crashed process and removed.
const staleAfter = 30 * time.Second

// FileLock provides file-based locking to prevent concurrent access
type FileLock struct {
	path     string
	file     *os.File
	acquired bool
	mu       sync.Mutex
}

// New creates a lock for the file at path
func New(path string) *FileLock {
	return &FileLock{
		path: path + ".lock",
	}
}

// Path returns the lock file path
func (fl *FileLock) Path() string {
	return fl.path
}

// Lock acquires the file lock, polling until timeout
func (fl *FileLock) Lock(timeout time.Duration) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.acquired {
		return fmt.Errorf("lock already acquired: %s", fl.path)
	}

	deadline := time.Now().Add(timeout)
	for {
		file, err := os.OpenFile(fl.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
		if err == nil {
			fl.file = file
			fl.acquired = true
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to acquire lock: %w", err)
		}

		if fl.removeStale() {
			continue
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("timeout acquiring lock %s after %v", fl.path, timeout)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (fl *FileLock) removeStale() bool {
	info, err := os.Stat(fl.path)
	if err != nil || time.Since(info.ModTime()) < staleAfter {
		return false
	}
	log.Printf("Removing stale lock file %s", fl.path)
	return os.Remove(fl.path) == nil
}

// Unlock releases the file lock
func (fl *FileLock) Unlock() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if !fl.acquired {
		return nil
	}

	var err error
	if fl.file != nil {
		err = fl.file.Close()
		fl.file = nil
	}

	if removeErr := os.Remove(fl.path); removeErr != nil && !os.IsNotExist(removeErr) {
		if err == nil {
			err = fmt.Errorf("failed to remove lock file: %w", removeErr)
		}
	}

	fl.acquired = false
	return err
}

// WithLock executes fn while holding the lock
func (fl *FileLock) WithLock(timeout time.Duration, fn func() error) error {
	if err := fl.Lock(timeout); err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	return fn()
}
