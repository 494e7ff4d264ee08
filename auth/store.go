package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/naotama2002/odesk-go/internal/filelock"
)

// TokenStore persists a token between processes
type TokenStore interface {
	// Load returns "" and no error when nothing is stored.
	Load() (string, error)
	Save(token string) error
	Delete() error
}

// storedToken is the on-disk format
type storedToken struct {
	Token      string    `json:"token"`
	ObtainedAt time.Time `json:"obtained_at"`
}

// FileTokenStore keeps the token in a JSON file guarded by a lock file
type FileTokenStore struct {
	path string
}

// NewFileTokenStore creates a store at path
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Path returns the token file path
func (f *FileTokenStore) Path() string {
	return f.path
}

// Load reads the token with file locking
func (f *FileTokenStore) Load() (string, error) {
	if !f.dirExists() {
		return "", nil
	}

	var stored storedToken
	err := filelock.New(f.path).WithLock(filelock.DefaultTimeout, func() error {
		data, err := os.ReadFile(f.path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("failed to read token file: %w", err)
		}

		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("failed to parse token file: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return stored.Token, nil
}

// Save writes the token with file locking
func (f *FileTokenStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.MarshalIndent(storedToken{Token: token, ObtainedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	return filelock.New(f.path).WithLock(filelock.DefaultTimeout, func() error {
		if err := os.WriteFile(f.path, data, 0600); err != nil {
			return fmt.Errorf("failed to write token file: %w", err)
		}
		return nil
	})
}

// Delete removes the token file
func (f *FileTokenStore) Delete() error {
	if !f.dirExists() {
		return nil
	}
	return filelock.New(f.path).WithLock(filelock.DefaultTimeout, func() error {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete token file: %w", err)
		}
		return nil
	})
}

func (f *FileTokenStore) dirExists() bool {
	_, err := os.Stat(filepath.Dir(f.path))
	return err == nil
}
