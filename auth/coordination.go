package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/naotama2002/odesk-go/internal/filelock"
	apierrors "github.com/naotama2002/odesk-go/pkg/errors"
)

const (
	// maxBrowserLockAge bounds how long a browser flow may hold the lock
	maxBrowserLockAge = 30 * time.Minute
	peerPollInterval  = time.Second
)

// browserLock marks the process currently running the browser flow for
// one token file.
type browserLock struct {
	PID       int    `json:"pid"`
	Callback  string `json:"callback"`
	Timestamp int64  `json:"timestamp"`
}

// coordinator keeps two terminals from opening the authorization page for
// the same application at once. The second one waits for the token the
// first one stores.
type coordinator struct {
	path string
}

// newCoordinator returns nil unless the token is kept in a file
func newCoordinator(store TokenStore) *coordinator {
	fs, ok := store.(*FileTokenStore)
	if !ok || fs == nil {
		return nil
	}
	return &coordinator{path: fs.Path() + ".browser"}
}

// claim takes the browser lock, or returns the live peer holding it.
func (c *coordinator) claim(callback string) (*browserLock, error) {
	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	var peer *browserLock
	err := filelock.New(c.path).WithLock(filelock.DefaultTimeout, func() error {
		peer = c.read()
		if peer != nil {
			return nil
		}

		data, err := json.Marshal(browserLock{
			PID:       os.Getpid(),
			Callback:  callback,
			Timestamp: time.Now().UnixMilli(),
		})
		if err != nil {
			return err
		}
		return os.WriteFile(c.path, data, 0600)
	})
	return peer, err
}

// read returns the current holder, clearing a lock left by a dead or
// stalled process.
func (c *coordinator) read() *browserLock {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil
	}

	var lock browserLock
	if err := json.Unmarshal(data, &lock); err != nil || !lock.valid() {
		log.Println("Found invalid browser lock, deleting it")
		_ = os.Remove(c.path)
		return nil
	}
	if lock.PID == os.Getpid() {
		return nil
	}
	return &lock
}

func (c *coordinator) release() {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to remove browser lock: %v", err)
	}
}

// waitForPeer polls the store until the peer saves a token, gives up the
// lock, or ctx ends.
func (c *coordinator) waitForPeer(ctx context.Context, store TokenStore) (string, error) {
	ticker := time.NewTicker(peerPollInterval)
	defer ticker.Stop()

	for {
		token, err := store.Load()
		if err != nil {
			return "", err
		}
		if token != "" {
			return token, nil
		}
		if _, err := os.Stat(c.path); os.IsNotExist(err) {
			return "", apierrors.NewAuthorizationFailed(StepRedirect, "other process finished without a token")
		}

		select {
		case <-ctx.Done():
			return "", apierrors.Wrap(ctx.Err(), apierrors.AuthorizationFailed, "timeout waiting for other process").WithStep(StepRedirect)
		case <-ticker.C:
		}
	}
}

func (l browserLock) valid() bool {
	if time.Since(time.UnixMilli(l.Timestamp)) > maxBrowserLockAge {
		return false
	}
	return pidRunning(l.PID)
}

func pidRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
