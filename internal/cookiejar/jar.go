// Package cookiejar provides an http.CookieJar that survives process
// restarts by mirroring every cookie it is handed into a JSON file.
// Nonweb mode needs this so the session opened by the login step is still
// there for the frob, authorize and token steps, and for later runs.
package cookiejar

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	stdjar "net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/naotama2002/odesk-go/internal/filelock"
)

// entry is one persisted cookie together with the URL that set it, so it
// can be replayed into the in-memory jar with the same scoping.
type entry struct {
	URL    string       `json:"url"`
	Cookie *http.Cookie `json:"cookie"`
}

// Jar is a file-backed cookie jar
type Jar struct {
	path    string
	inner   *stdjar.Jar
	lock    *filelock.FileLock
	mu      sync.Mutex
	entries map[string]entry
}

// Open loads the jar at path, creating the file if it does not exist.
func Open(path string) (*Jar, error) {
	if path == "" {
		return nil, fmt.Errorf("cookie file path is empty")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("can not create cookie file directory: %w", err)
		}
	}
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("can not create cookie file: %w", err)
	}
	_ = fh.Close()

	inner, err := stdjar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	j := &Jar{
		path:    path,
		inner:   inner,
		lock:    filelock.New(path),
		entries: make(map[string]entry),
	}
	if err := j.load(); err != nil {
		return nil, err
	}
	return j, nil
}

// Path returns the file the jar persists to
func (j *Jar) Path() string {
	return j.path
}

// Cookies implements http.CookieJar
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	return j.inner.Cookies(u)
}

// SetCookies implements http.CookieJar and rewrites the backing file.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.inner.SetCookies(u, cookies)

	j.mu.Lock()
	defer j.mu.Unlock()

	scope := scopeOf(u)
	for _, c := range cookies {
		key := entryKey(u, c)
		if isDeletion(c) {
			delete(j.entries, key)
			continue
		}
		j.entries[key] = entry{URL: scope, Cookie: absolute(c)}
	}

	if err := j.save(); err != nil {
		log.Printf("Warning: failed to persist cookies to %s: %v", j.path, err)
	}
}

// Len returns the number of cookies held for persistence
func (j *Jar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

func (j *Jar) load() error {
	var stored []entry
	err := j.lock.WithLock(filelock.DefaultTimeout, func() error {
		data, err := os.ReadFile(j.path)
		if err != nil {
			return fmt.Errorf("failed to read cookie file: %w", err)
		}
		if len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("failed to parse cookie file: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	now := time.Now()
	for _, e := range stored {
		if e.Cookie == nil {
			continue
		}
		if !e.Cookie.Expires.IsZero() && e.Cookie.Expires.Before(now) {
			continue
		}
		u, err := url.Parse(e.URL)
		if err != nil {
			log.Printf("Warning: skipping cookie with bad URL %q: %v", e.URL, err)
			continue
		}
		j.inner.SetCookies(u, []*http.Cookie{e.Cookie})
		j.entries[entryKey(u, e.Cookie)] = e
	}
	return nil
}

// save must be called with j.mu held.
func (j *Jar) save() error {
	stored := make([]entry, 0, len(j.entries))
	for _, e := range j.entries {
		stored = append(stored, e)
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}

	return j.lock.WithLock(filelock.DefaultTimeout, func() error {
		if err := os.WriteFile(j.path, data, 0600); err != nil {
			return fmt.Errorf("failed to write cookie file: %w", err)
		}
		return nil
	})
}

// scopeOf keeps the request path so a cookie without a Path attribute
// gets the same default path when it is replayed.
func scopeOf(u *url.URL) string {
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}).String()
}

func entryKey(u *url.URL, c *http.Cookie) string {
	domain := c.Domain
	if domain == "" {
		domain = u.Hostname()
	}
	return domain + "|" + cookiePath(u, c) + "|" + c.Name
}

// cookiePath is the path a cookie is scoped to, RFC 6265 section 5.1.4.
func cookiePath(u *url.URL, c *http.Cookie) string {
	if strings.HasPrefix(c.Path, "/") {
		return c.Path
	}
	p := u.Path
	i := strings.LastIndex(p, "/")
	if !strings.HasPrefix(p, "/") || i == 0 {
		return "/"
	}
	return p[:i]
}

// absolute pins a Max-Age cookie to a wall-clock expiry so a reload
// later does not extend its lifetime.
func absolute(c *http.Cookie) *http.Cookie {
	if c.MaxAge <= 0 {
		return c
	}
	cc := *c
	cc.Expires = time.Now().Add(time.Duration(c.MaxAge) * time.Second)
	cc.MaxAge = 0
	return &cc
}

func isDeletion(c *http.Cookie) bool {
	return c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(time.Now()))
}
