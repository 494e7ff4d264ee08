package cookiejar

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cookie.txt")

	jar, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if jar.Path() != path {
		t.Errorf("Expected path %s, got %s", path, jar.Path())
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Cookie file should be created: %v", err)
	}
	if jar.Len() != 0 {
		t.Errorf("New jar should be empty, got %d cookies", jar.Len())
	}
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("Expected error for empty path")
	}
}

func TestOpenCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookie.txt")
	if err := os.WriteFile(path, []byte("# Netscape HTTP Cookie File"), 0600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Error("Expected error for a file that is not a JSON jar")
	}
}

func TestCookiesSurviveReopen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			http.SetCookie(w, &http.Cookie{Name: "session_id", Value: "abc", Path: "/"})
			http.SetCookie(w, &http.Cookie{Name: "short", Value: "x", Path: "/", MaxAge: 3600})
			return
		}
		c, err := r.Cookie("session_id")
		if err != nil || c.Value != "abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "cookie.txt")
	jar, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	client := &http.Client{Jar: jar}
	resp, err := client.Get(server.URL + "/login")
	if err != nil {
		t.Fatalf("Login request failed: %v", err)
	}
	_ = resp.Body.Close()

	if jar.Len() != 2 {
		t.Fatalf("Expected 2 persisted cookies, got %d", jar.Len())
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}

	client = &http.Client{Jar: reopened}
	resp, err = client.Get(server.URL + "/frobs")
	if err != nil {
		t.Fatalf("Follow-up request failed: %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected session cookie to be replayed, got status %d", resp.StatusCode)
	}
}

func TestDefaultPathSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookie.txt")
	jar, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	keys, _ := url.Parse("https://www.odesk.com/api/auth/v1/keys/frobs?x=1")
	jar.SetCookies(keys, []*http.Cookie{{Name: "scoped", Value: "v"}})

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}

	root, _ := url.Parse("https://www.odesk.com/")
	if got := reopened.Cookies(root); len(got) != 0 {
		t.Errorf("Cookie must keep its default path after reload, got %v on /", got)
	}
	tokens, _ := url.Parse("https://www.odesk.com/api/auth/v1/keys/tokens")
	if got := reopened.Cookies(tokens); len(got) != 1 || got[0].Value != "v" {
		t.Errorf("Expected the cookie under its default path, got %v", got)
	}
}

func TestCookiePath(t *testing.T) {
	tests := []struct {
		rawURL, attr, expected string
	}{
		{"https://h/api/auth/v1/keys", "", "/api/auth/v1"},
		{"https://h/login", "", "/"},
		{"https://h", "", "/"},
		{"https://h/api/x", "/", "/"},
		{"https://h/api/x", "relative", "/api"},
	}
	for _, tt := range tests {
		u, _ := url.Parse(tt.rawURL)
		if got := cookiePath(u, &http.Cookie{Path: tt.attr}); got != tt.expected {
			t.Errorf("cookiePath(%s, %q): expected %s, got %s", tt.rawURL, tt.attr, tt.expected, got)
		}
	}
}

func TestExpiredCookiesAreDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookie.txt")
	jar, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	u, _ := url.Parse("http://example.com/login")
	jar.SetCookies(u, []*http.Cookie{
		{Name: "keep", Value: "1", Path: "/"},
		{Name: "gone", Value: "1", Path: "/", Expires: time.Now().Add(50 * time.Millisecond)},
	})
	if jar.Len() != 2 {
		t.Fatalf("Expected 2 cookies, got %d", jar.Len())
	}

	time.Sleep(100 * time.Millisecond)

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	if reopened.Len() != 1 {
		t.Errorf("Expected the expired cookie to be dropped, got %d cookies", reopened.Len())
	}

	cookies := reopened.Cookies(u)
	if len(cookies) != 1 || cookies[0].Name != "keep" {
		t.Errorf("Expected only 'keep' cookie, got %v", cookies)
	}
}

func TestDeletionRemovesEntry(t *testing.T) {
	jar, err := Open(filepath.Join(t.TempDir(), "cookie.txt"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	u, _ := url.Parse("http://example.com/")
	jar.SetCookies(u, []*http.Cookie{{Name: "session_id", Value: "abc", Path: "/"}})
	jar.SetCookies(u, []*http.Cookie{{Name: "session_id", Value: "", Path: "/", MaxAge: -1}})

	if jar.Len() != 0 {
		t.Errorf("Expected deleted cookie to be removed, got %d", jar.Len())
	}
	if len(jar.Cookies(u)) != 0 {
		t.Error("Deleted cookie should not be sent")
	}
}
