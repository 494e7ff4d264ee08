// Package client sends signed calls to the oDesk REST API.
//
// A Client owns the transport, the nonweb cookie jar and an auth.Session.
// Every call obtains a token from the session, adds api_token (and
// http_method for PUT and DELETE), signs the full parameter set and
// dispatches it. GET stays GET on the wire; every other method is POSTed.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/naotama2002/odesk-go/auth"
	"github.com/naotama2002/odesk-go/internal/cookiejar"
	"github.com/naotama2002/odesk-go/internal/httpclient"
	apierrors "github.com/naotama2002/odesk-go/pkg/errors"
	"github.com/naotama2002/odesk-go/signature"
)

// Version of the client library
const Version = "1.0"

// DefaultCookieFile is where nonweb mode keeps its session cookies
const DefaultCookieFile = "./cookie.txt"

// Parameters the client injects into every signed call
const (
	KeyToken      = "api_token"
	KeyHTTPMethod = "http_method"
)

// Method is the logical HTTP method of an API call
type Method string

const (
	MethodGet    Method = http.MethodGet
	MethodPost   Method = http.MethodPost
	MethodPut    Method = http.MethodPut
	MethodDelete Method = http.MethodDelete
)

// ParseMethod parses a method name case-insensitively
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToUpper(strings.TrimSpace(s))); m {
	case MethodGet, MethodPost, MethodPut, MethodDelete:
		return m, nil
	default:
		return "", apierrors.NewConfigurationError(fmt.Sprintf("unsupported method %q", s))
	}
}

// wire is the verb actually sent; the service only accepts GET and POST.
func (m Method) wire() string {
	if m == MethodGet {
		return http.MethodGet
	}
	return http.MethodPost
}

// Config holds everything needed to talk to the API
type Config struct {
	AppKey string
	Secret string

	// Mode defaults to nonweb.
	Mode     auth.Mode
	Username string
	Password string

	// InsecureSkipVerify disables TLS certificate checks. Insecure.
	InsecureSkipVerify bool
	// CookieFile persists the nonweb session; defaults to DefaultCookieFile.
	CookieFile       string
	Proxy            string
	ProxyCredentials string

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	// Endpoints override the auth URLs; empty fields use the oDesk defaults.
	Endpoints auth.Endpoints
	// TokenStore persists the token between runs; nil keeps it in memory.
	TokenStore auth.TokenStore

	// ReauthOnUnauthorized drops the token and retries once when a call
	// answers 401.
	ReauthOnUnauthorized bool

	// Transport replaces the HTTP transport built from the fields above.
	Transport auth.Sender
}

// Client is an authorized oDesk API client
type Client struct {
	config    Config
	transport auth.Sender
	session   *auth.Session
	jar       *cookiejar.Jar
}

// New validates config and wires the transport, cookie jar and session.
// No network call is made until the first request.
func New(config Config) (*Client, error) {
	creds := auth.Credentials{AppKey: config.AppKey, Secret: config.Secret}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if config.Mode == "" {
		config.Mode = auth.ModeNonWeb
	}
	mode, err := auth.ParseMode(string(config.Mode))
	if err != nil {
		return nil, err
	}
	config.Mode = mode

	c := &Client{config: config, transport: config.Transport}

	if c.transport == nil {
		httpConfig := httpclient.DefaultConfig()
		if config.Timeout > 0 {
			httpConfig.Timeout = config.Timeout
		}
		if config.RetryDelay > 0 {
			httpConfig.RetryDelay = config.RetryDelay
		}
		httpConfig.MaxRetries = config.MaxRetries
		httpConfig.InsecureSkipVerify = config.InsecureSkipVerify
		httpConfig.Proxy = config.Proxy
		httpConfig.ProxyCredentials = config.ProxyCredentials

		if mode == auth.ModeNonWeb {
			cookieFile := config.CookieFile
			if cookieFile == "" {
				cookieFile = DefaultCookieFile
			}
			jar, err := cookiejar.Open(cookieFile)
			if err != nil {
				return nil, apierrors.Wrap(err, apierrors.ConfigurationError, "can not use cookie file")
			}
			c.jar = jar
			httpConfig.Jar = jar
		}

		transport, err := httpclient.New(httpConfig)
		if err != nil {
			return nil, err
		}
		c.transport = transport
	}

	session, err := auth.NewSession(creds, c.transport, auth.Options{
		Mode:      mode,
		Username:  config.Username,
		Password:  config.Password,
		Endpoints: config.Endpoints,
		Store:     config.TokenStore,
	})
	if err != nil {
		return nil, err
	}
	c.session = session

	log.Printf("oDesk client ready (mode %s)", mode)
	return c, nil
}

// Session returns the authorization session
func (c *Client) Session() *auth.Session {
	return c.session
}

// CookieFile returns the nonweb cookie file in use, or "" without one
func (c *Client) CookieFile() string {
	if c.jar == nil {
		return ""
	}
	return c.jar.Path()
}

// Auth obtains a token, running the handshake if needed
func (c *Client) Auth(ctx context.Context) (string, error) {
	return c.session.Auth(ctx)
}

// WithToken returns a client that signs with token and shares everything
// else with c. Web apps use it to serve each browser with its own token.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.session = c.session.WithToken(token)
	return &clone
}

// Get performs a signed GET
func (c *Client) Get(ctx context.Context, baseURL string, params signature.Params) ([]byte, error) {
	return c.Request(ctx, MethodGet, baseURL, params)
}

// Post performs a signed POST
func (c *Client) Post(ctx context.Context, baseURL string, params signature.Params) ([]byte, error) {
	return c.Request(ctx, MethodPost, baseURL, params)
}

// Put performs a signed PUT, tunnelled over POST
func (c *Client) Put(ctx context.Context, baseURL string, params signature.Params) ([]byte, error) {
	return c.Request(ctx, MethodPut, baseURL, params)
}

// Delete performs a signed DELETE, tunnelled over POST
func (c *Client) Delete(ctx context.Context, baseURL string, params signature.Params) ([]byte, error) {
	return c.Request(ctx, MethodDelete, baseURL, params)
}

// GetJSON performs a signed GET and decodes the JSON answer into v
func (c *Client) GetJSON(ctx context.Context, baseURL string, params signature.Params, v any) error {
	body, err := c.Get(ctx, baseURL, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apierrors.Wrap(err, apierrors.RequestFailed, "failed to decode response").
			WithStatusCode(http.StatusOK).WithResponse(body)
	}
	return nil
}
