// Package auth runs the oDesk frob/token handshake and caches the token
// it produces.
//
// A Session moves through Unauthenticated → FrobIssued → Authorized. In
// nonweb mode Auth drives the whole handshake itself (login, frob,
// authorize, token). In web mode the user's browser is sent to
// AuthorizationURL and the frob that comes back is handed to ExchangeFrob.
// Once a token is cached it is trusted until ForceReauth; the service's
// expiry is never checked.
package auth

import (
	"context"
	stderrors "errors"
	"log"
	"sync"

	"github.com/naotama2002/odesk-go/internal/httpclient"
	apierrors "github.com/naotama2002/odesk-go/pkg/errors"
	"github.com/naotama2002/odesk-go/signature"
)

// ErrNotAuthenticated is the cause carried when a session has no token and
// can not start a handshake on its own (web mode without a frob).
var ErrNotAuthenticated = stderrors.New("not authenticated: no cached token")

// Sender performs one HTTP call
type Sender interface {
	Send(ctx context.Context, method, rawURL string) (*httpclient.Result, error)
}

// Options configure a Session
type Options struct {
	Mode      Mode
	Username  string
	Password  string
	Endpoints Endpoints
	// Store persists the token between processes; nil keeps it in memory only.
	Store TokenStore
}

// Session owns the authorization state for one set of credentials
type Session struct {
	creds     Credentials
	opts      Options
	transport Sender

	// handshake admits one handshake at a time; callers queue on it.
	handshake chan struct{}

	mu          sync.Mutex
	state       State
	frob        string
	token       string
	storeLoaded bool
}

// NewSession validates the credentials and returns an Unauthenticated session
func NewSession(creds Credentials, transport Sender, opts Options) (*Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, apierrors.NewConfigurationError("session transport can not be nil")
	}
	if opts.Mode == "" {
		opts.Mode = ModeNonWeb
	}
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	opts.Endpoints = opts.Endpoints.withDefaults()

	return &Session{
		creds:     creds,
		opts:      opts,
		transport: transport,
		handshake: make(chan struct{}, 1),
	}, nil
}

// Mode returns the operating mode
func (s *Session) Mode() Mode {
	return s.opts.Mode
}

// Credentials returns the application credentials
func (s *Session) Credentials() Credentials {
	return s.creds
}

// State returns the current handshake state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Token returns the cached token, if any
func (s *Session) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.token != ""
}

// SetToken caches a token obtained elsewhere, e.g. from a browser cookie
func (s *Session) SetToken(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.frob = ""
	s.state = Authorized
}

// WithToken returns an independent Authorized session that shares this
// session's credentials, options and transport but not its store.
func (s *Session) WithToken(token string) *Session {
	s.mu.Lock()
	opts := s.opts
	s.mu.Unlock()
	opts.Store = nil
	clone := &Session{
		creds:       s.creds,
		opts:        opts,
		transport:   s.transport,
		handshake:   make(chan struct{}, 1),
		storeLoaded: true,
	}
	clone.SetToken(token)
	return clone
}

// ForceReauth drops the cached token and frob so the next Auth starts over
func (s *Session) ForceReauth() error {
	s.mu.Lock()
	s.token = ""
	s.frob = ""
	s.state = Unauthenticated
	s.storeLoaded = true
	s.mu.Unlock()

	if s.opts.Store != nil {
		if err := s.opts.Store.Delete(); err != nil {
			return apierrors.Wrap(err, apierrors.ConfigurationError, "failed to delete stored token")
		}
	}
	log.Println("Cached token cleared, next call re-authorizes")
	return nil
}

// ReceiveFrob records a frob handed back by the authorization page. It is
// ignored when a token is already cached.
func (s *Session) ReceiveFrob(frob string) {
	if frob == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Authorized {
		return
	}
	s.frob = frob
	s.state = FrobIssued
}

// ExchangeFrob records frob and trades it for a token
func (s *Session) ExchangeFrob(ctx context.Context, frob string) (string, error) {
	s.ReceiveFrob(frob)
	return s.Auth(ctx)
}

// Login sets the nonweb username and password and authorizes
func (s *Session) Login(ctx context.Context, username, password string) (string, error) {
	s.mu.Lock()
	s.opts.Username = username
	s.opts.Password = password
	s.mu.Unlock()
	return s.Auth(ctx)
}

// AuthorizationURL is where web mode sends the user's browser
func (s *Session) AuthorizationURL() string {
	return s.opts.Endpoints.Auth + "?" + signature.SignedQuery(s.creds.Secret, s.creds.AppKey, nil)
}

// Auth returns a token, running the handshake if none is cached. A cached
// token is returned without any network call. Concurrent callers wait for
// the handshake in flight and share its result.
func (s *Session) Auth(ctx context.Context) (string, error) {
	if token, ok := s.Token(); ok {
		return token, nil
	}

	select {
	case s.handshake <- struct{}{}:
	case <-ctx.Done():
		return "", apierrors.Wrap(ctx.Err(), apierrors.AuthorizationFailed, "gave up waiting for handshake")
	}
	defer func() { <-s.handshake }()

	// Another caller may have finished the handshake while we waited.
	if token, ok := s.Token(); ok {
		return token, nil
	}
	if token := s.loadStored(); token != "" {
		return token, nil
	}

	s.mu.Lock()
	state, frob := s.state, s.frob
	s.mu.Unlock()

	var (
		token string
		err   error
	)
	switch {
	case state == FrobIssued:
		token, err = s.RequestToken(ctx, frob)
	case s.opts.Mode == ModeNonWeb:
		token, err = s.runNonWeb(ctx)
	default:
		return "", apierrors.Wrap(ErrNotAuthenticated, apierrors.AuthorizationFailed, "browser authorization required").WithStep(StepRedirect)
	}

	if err != nil {
		s.reset()
		return "", err
	}

	s.SetToken(token)
	s.saveStored(token)
	log.Println("Authorization complete")
	return token, nil
}

func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.frob = ""
	s.state = Unauthenticated
}

// loadStored consults the token store once per session.
func (s *Session) loadStored() string {
	s.mu.Lock()
	if s.storeLoaded || s.opts.Store == nil {
		s.mu.Unlock()
		return ""
	}
	s.storeLoaded = true
	s.mu.Unlock()

	token, err := s.opts.Store.Load()
	if err != nil {
		log.Printf("Warning: failed to load stored token: %v", err)
		return ""
	}
	if token == "" {
		return ""
	}
	log.Println("Using stored token")
	s.SetToken(token)
	return token
}

func (s *Session) saveStored(token string) {
	if s.opts.Store == nil {
		return
	}
	if err := s.opts.Store.Save(token); err != nil {
		log.Printf("Warning: failed to save token: %v", err)
	}
}
