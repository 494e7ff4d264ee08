package auth

import (
	"fmt"
	"strings"

	apierrors "github.com/naotama2002/odesk-go/pkg/errors"
)

// Mode selects how a session obtains its first token
type Mode string

const (
	// ModeWeb sends the user's browser to the authorization page and waits
	// for the service to hand a frob back.
	ModeWeb Mode = "web"
	// ModeNonWeb logs in with a username and password and runs the whole
	// frob/token handshake without a browser.
	ModeNonWeb Mode = "nonweb"
)

// ParseMode parses "web" or "nonweb"
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeWeb:
		return ModeWeb, nil
	case ModeNonWeb:
		return ModeNonWeb, nil
	default:
		return "", apierrors.NewConfigurationError(fmt.Sprintf("invalid mode %q: must be web or nonweb", s))
	}
}

// State is where a session is in the handshake
type State int

const (
	Unauthenticated State = iota
	FrobIssued
	Authorized
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case FrobIssued:
		return "frob_issued"
	case Authorized:
		return "authorized"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handshake step names carried by AuthorizationFailed errors
const (
	StepLogin     = "login"
	StepFrob      = "frob"
	StepAuthorize = "authorize"
	StepToken     = "token"
	StepRedirect  = "redirect"
)

// Credentials identify the application to the service
type Credentials struct {
	AppKey string
	Secret string
}

// Validate fails when either half of the credentials is missing
func (c Credentials) Validate() error {
	if c.Secret == "" {
		return apierrors.NewConfigurationError(`you must define "secret key"`)
	}
	if c.AppKey == "" {
		return apierrors.NewConfigurationError(`you must define "application key"`)
	}
	return nil
}

// Endpoints are the fixed auth URLs of the service
type Endpoints struct {
	Login  string
	Auth   string
	Frobs  string
	Tokens string
}

// DefaultEndpoints returns the production oDesk URLs
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Login:  "https://www.odesk.com/login",
		Auth:   "https://www.odesk.com/services/api/auth",
		Frobs:  "https://www.odesk.com/api/auth/v1/keys/frobs.xml",
		Tokens: "https://www.odesk.com/api/auth/v1/keys/tokens.xml",
	}
}

// withDefaults fills empty endpoints from DefaultEndpoints
func (e Endpoints) withDefaults() Endpoints {
	d := DefaultEndpoints()
	if e.Login == "" {
		e.Login = d.Login
	}
	if e.Auth == "" {
		e.Auth = d.Auth
	}
	if e.Frobs == "" {
		e.Frobs = d.Frobs
	}
	if e.Tokens == "" {
		e.Tokens = d.Tokens
	}
	return e
}
