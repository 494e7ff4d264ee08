// Package odesktest runs an in-process stand-in for the oDesk auth and
// resource endpoints. It checks every api_sig it receives, so tests that
// pass against it are also checking the signing rules.
package odesktest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"

	"github.com/naotama2002/odesk-go/signature"
)

// Endpoint paths served by the fake
const (
	PathLogin     = "/login"
	PathAuth      = "/services/api/auth"
	PathFrobs     = "/api/auth/v1/keys/frobs.xml"
	PathTokens    = "/api/auth/v1/keys/tokens.xml"
	PathResources = "/api/"
)

const sessionCookie = "odesk_session"

// Request is what a resource endpoint received
type Request struct {
	Method string
	Path   string
	Params url.Values
}

// Server is a fake oDesk API
type Server struct {
	*httptest.Server

	AppKey   string
	Secret   string
	Username string
	Password string
	Frob     string
	Token    string

	// RequireLogin makes frob issuance depend on the login cookie.
	RequireLogin bool

	// Resource answers signed resource calls; the default writes {"ok":true}.
	Resource func(w http.ResponseWriter, r *Request)

	mu       sync.Mutex
	fail     map[string]int
	calls    map[string]int
	approved map[string]bool
	requests []Request
}

// New starts a fake service for the given application key and secret
func New(appKey, secret string) *Server {
	s := &Server{
		AppKey:   appKey,
		Secret:   secret,
		Username: "user",
		Password: "pass",
		Frob:     "frob-123",
		Token:    "token-456",
		fail:     make(map[string]int),
		calls:    make(map[string]int),
		approved: make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(PathLogin, s.handleLogin)
	mux.HandleFunc(PathAuth, s.handleAuth)
	mux.HandleFunc(PathFrobs, s.handleFrobs)
	mux.HandleFunc(PathTokens, s.handleTokens)
	mux.HandleFunc(PathResources, s.handleResource)
	s.Server = httptest.NewServer(mux)
	return s
}

// LoginURL returns the login endpoint
func (s *Server) LoginURL() string { return s.URL + PathLogin }

// AuthURL returns the authorize endpoint
func (s *Server) AuthURL() string { return s.URL + PathAuth }

// FrobsURL returns the frob issuance endpoint
func (s *Server) FrobsURL() string { return s.URL + PathFrobs }

// TokensURL returns the token exchange endpoint
func (s *Server) TokensURL() string { return s.URL + PathTokens }

// ResourceURL returns a resource endpoint under /api/
func (s *Server) ResourceURL(name string) string { return s.URL + PathResources + name }

// FailWith makes every call to path answer with status until cleared
// with status 0.
func (s *Server) FailWith(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.fail, path)
		return
	}
	s.fail[path] = status
}

// Calls returns how often path was hit
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// TotalCalls returns the number of requests served
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// Requests returns the resource calls received so far
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// begin records a call and reports a forced failure, if any.
func (s *Server) begin(w http.ResponseWriter, path string) bool {
	s.mu.Lock()
	s.calls[path]++
	status := s.fail[path]
	s.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return false
	}
	return true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, PathLogin) {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.Form.Get("action") != "login" || r.Form.Get("login") != s.Username || r.Form.Get("password") != s.Password {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "logged-in", Path: "/"})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleFrobs(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, PathFrobs) {
		return
	}
	if !s.checkSig(w, r, nil) {
		return
	}
	if s.RequireLogin {
		if c, err := r.Cookie(sessionCookie); err != nil || c.Value == "" {
			writeXML(w, `<response error="not logged in"></response>`)
			return
		}
	}
	writeXML(w, fmt.Sprintf(`<response><frob>%s</frob></response>`, s.Frob))
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, PathAuth) {
		return
	}
	frob := r.FormValue("frob")
	if !s.checkSig(w, r, signature.Params{"frob": frob}) {
		return
	}
	if r.FormValue("do") != "agree" || frob != s.Frob {
		http.Error(w, "unknown frob", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.approved[frob] = true
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, PathTokens) {
		return
	}
	frob := r.FormValue("frob")
	if !s.checkSig(w, r, signature.Params{"frob": frob}) {
		return
	}

	s.mu.Lock()
	approved := s.approved[frob]
	s.mu.Unlock()
	if !approved {
		writeXML(w, `<response><error>frob not approved</error></response>`)
		return
	}
	writeXML(w, fmt.Sprintf(`<response><token>%s</token></response>`, s.Token))
}

// Approve marks a frob as agreed, as a browser user would.
func (s *Server) Approve(frob string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approved[frob] = true
}

func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, PathResources) {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	signed := signature.Params{}
	for k := range r.Form {
		if k != signature.KeySignature {
			signed[k] = r.Form.Get(k)
		}
	}
	if !s.checkSig(w, r, signed) {
		return
	}
	if r.Form.Get("api_token") != s.Token {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	req := Request{Method: r.Method, Path: r.URL.Path, Params: r.Form}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.Resource != nil {
		s.Resource(w, &req)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// checkSig verifies api_key and api_sig against the params the service
// signs for this endpoint.
func (s *Server) checkSig(w http.ResponseWriter, r *http.Request, signed signature.Params) bool {
	if r.FormValue(signature.KeyAPIKey) != s.AppKey {
		http.Error(w, "unknown api_key", http.StatusForbidden)
		return false
	}
	if r.FormValue(signature.KeySignature) != signature.Sign(s.Secret, s.AppKey, signed) {
		http.Error(w, "invalid api_sig", http.StatusForbidden)
		return false
	}
	return true
}

func writeXML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/xml")
	_, _ = fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>`+body)
}
