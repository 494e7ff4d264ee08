package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
)

const (
	// configDirEnv overrides where tokens are kept
	configDirEnv = "ODESK_CONFIG_DIR"
	// defaultConfigDirName is created under the home directory
	defaultConfigDirName = ".odesk-go"
	// tokenFileName holds the cached token for one application key
	tokenFileName = "token.json"
)

// ConfigDir returns the directory for cached tokens
func ConfigDir() string {
	if dir := os.Getenv(configDirEnv); dir != "" {
		return dir
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home dir can't be determined
		return defaultConfigDirName
	}

	return filepath.Join(homeDir, defaultConfigDirName)
}

// AppKeyHash returns a short stable directory name for an application key
func AppKeyHash(appKey string) string {
	hash := sha256.Sum256([]byte(appKey))
	return hex.EncodeToString(hash[:])[:16]
}

// DefaultTokenPath returns where the token for appKey is cached
func DefaultTokenPath(appKey string) string {
	return filepath.Join(ConfigDir(), AppKeyHash(appKey), tokenFileName)
}
