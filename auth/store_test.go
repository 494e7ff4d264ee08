package auth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileTokenStore(t *testing.T) {
	store := NewFileTokenStore(filepath.Join(t.TempDir(), "app", "token.json"))

	token, err := store.Load()
	if err != nil {
		t.Fatalf("Load from missing directory failed: %v", err)
	}
	if token != "" {
		t.Errorf("Expected no token, got %s", token)
	}
	if err := store.Delete(); err != nil {
		t.Errorf("Delete of missing token failed: %v", err)
	}

	if err := store.Save("abc"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("Token file not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected 0600 permissions, got %o", info.Mode().Perm())
	}

	token, err = store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if token != "abc" {
		t.Errorf("Expected abc, got %s", token)
	}

	if err := store.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	token, err = store.Load()
	if err != nil {
		t.Fatalf("Load after delete failed: %v", err)
	}
	if token != "" {
		t.Errorf("Expected no token after delete, got %s", token)
	}
}

func TestFileTokenStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, []byte("not json"), 0600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if _, err := NewFileTokenStore(path).Load(); err == nil {
		t.Error("Expected error for corrupt token file")
	}
}

func TestDefaultTokenPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ODESK_CONFIG_DIR", dir)

	if ConfigDir() != dir {
		t.Errorf("Expected config dir %s, got %s", dir, ConfigDir())
	}

	path := DefaultTokenPath("app-key")
	if !strings.HasPrefix(path, dir) {
		t.Errorf("Expected path under %s, got %s", dir, path)
	}
	if filepath.Base(path) != "token.json" {
		t.Errorf("Expected token.json, got %s", filepath.Base(path))
	}
	if len(AppKeyHash("app-key")) != 16 {
		t.Errorf("Expected 16 character hash, got %s", AppKeyHash("app-key"))
	}
	if AppKeyHash("app-key") == AppKeyHash("other-key") {
		t.Error("Different keys should hash differently")
	}
}
