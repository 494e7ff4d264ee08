// Package httpclient is the transport under the signed oDesk calls. Only
// GET and POST go over the wire; every non-GET call moves its query string
// into a form-encoded body.
package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/naotama2002/odesk-go/pkg/errors"
)

// DefaultUserAgent identifies the client to the service
const DefaultUserAgent = "odesk-go client/1.0"

// Config holds HTTP client configuration
type Config struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	// InsecureSkipVerify disables TLS certificate verification. This is
	// insecure and only meant for self-signed test deployments.
	InsecureSkipVerify bool

	// Proxy is a forward proxy as host:port or a full URL.
	Proxy string
	// ProxyCredentials is "user:password" for the proxy.
	ProxyCredentials string

	// Jar keeps cookies between calls; nil disables cookies.
	Jar http.CookieJar

	UserAgent      string
	DefaultHeaders map[string]string
}

// DefaultConfig returns a default HTTP client configuration
func DefaultConfig() *Config {
	return &Config{
		Timeout:        30 * time.Second,
		MaxRetries:     0,
		RetryDelay:     time.Second,
		UserAgent:      DefaultUserAgent,
		DefaultHeaders: make(map[string]string),
	}
}

// Client wraps http.Client with the transport contract
type Client struct {
	httpClient *http.Client
	config     *Config
}

// Result is what one call produced on the wire
type Result struct {
	StatusCode int
	Header     http.Header
	// RawHeader is the status line and header block as text.
	RawHeader string
	Body      []byte
}

// String returns the response body as a string
func (r *Result) String() string {
	return string(r.Body)
}

// New creates a new HTTP client with the given configuration
func New(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.InsecureSkipVerify {
		log.Println("Warning: TLS certificate verification is disabled")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	if config.Proxy != "" {
		proxyURL, err := ParseProxy(config.Proxy, config.ProxyCredentials)
		if err != nil {
			return nil, apierrors.Wrap(err, apierrors.ConfigurationError, "invalid proxy")
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	httpClient := &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}
	if config.Jar != nil {
		httpClient.Jar = config.Jar
	}

	return &Client{
		httpClient: httpClient,
		config:     config,
	}, nil
}

// ParseProxy turns "host:port" or a proxy URL plus optional "user:pass"
// credentials into a proxy URL.
func ParseProxy(proxy, credentials string) (*url.URL, error) {
	if !strings.Contains(proxy, "://") {
		proxy = "http://" + proxy
	}
	u, err := url.Parse(proxy)
	if err != nil {
		return nil, fmt.Errorf("failed to parse proxy %q: %w", proxy, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy %q has no host", proxy)
	}

	if credentials != "" {
		user, pass, found := strings.Cut(credentials, ":")
		if found {
			u.User = url.UserPassword(user, pass)
		} else {
			u.User = url.User(user)
		}
	}
	return u, nil
}

// Send performs a call and returns whatever status the service answered
// with. The error is only set for transport-level failures.
func (c *Client) Send(ctx context.Context, method, rawURL string) (*Result, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("Retrying %s (attempt %d/%d)", redact(rawURL), attempt+1, c.config.MaxRetries+1)
			select {
			case <-ctx.Done():
				return nil, apierrors.NewTransportError(ctx.Err(), "request cancelled")
			case <-time.After(c.config.RetryDelay):
			}
		}

		result, err := c.doSingle(ctx, method, rawURL)
		if err == nil && result.StatusCode < 500 {
			return result, nil
		}

		// Context cancellation is final
		if ctx.Err() != nil {
			return nil, apierrors.NewTransportError(ctx.Err(), "request cancelled")
		}

		if err == nil {
			// 5xx: hand back the last response once retries run out
			if attempt == c.config.MaxRetries {
				return result, nil
			}
			continue
		}
		lastErr = err
	}

	if c.config.MaxRetries == 0 {
		return nil, lastErr
	}
	return nil, apierrors.NewTransportError(lastErr, fmt.Sprintf("request failed after %d attempts", c.config.MaxRetries+1))
}

// doSingle performs a single HTTP request
func (c *Client) doSingle(ctx context.Context, method, rawURL string) (*Result, error) {
	httpReq, err := c.newRequest(ctx, method, rawURL)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("X-Request-Id", requestID)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		err = unwrapURLError(err)
		log.Printf("[%s] %s %s failed: %v", requestID, httpReq.Method, redact(rawURL), err)
		return nil, apierrors.NewTransportError(err, "HTTP request failed")
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apierrors.NewTransportError(err, "failed to read response body")
	}

	log.Printf("[%s] %s %s -> %d (%v)", requestID, httpReq.Method, redact(rawURL), httpResp.StatusCode, time.Since(start).Round(time.Millisecond))

	return &Result{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		RawHeader:  rawHeader(httpResp),
		Body:       body,
	}, nil
}

// newRequest builds the wire request. GET keeps its query in the URL;
// anything else is sent as POST with the query as a form body.
func (c *Client) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	verb := http.MethodGet
	target := rawURL
	var body io.Reader

	if !strings.EqualFold(method, http.MethodGet) {
		verb = http.MethodPost
		var form string
		target, form, _ = strings.Cut(rawURL, "?")
		body = strings.NewReader(form)
	}

	httpReq, err := http.NewRequestWithContext(ctx, verb, target, body)
	if err != nil {
		return nil, apierrors.NewTransportError(unwrapURLError(err), "failed to create HTTP request")
	}

	for key, value := range c.config.DefaultHeaders {
		httpReq.Header.Set(key, value)
	}
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	if verb == http.MethodPost {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
	}

	return httpReq, nil
}

func rawHeader(resp *http.Response) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\r\n", resp.Proto, resp.Status)
	_ = resp.Header.Write(&b)
	b.WriteString("\r\n")
	return b.String()
}

// redact drops the query string, which carries signatures, tokens and
// login credentials.
func redact(rawURL string) string {
	target, _, _ := strings.Cut(rawURL, "?")
	return target
}

// unwrapURLError strips the *url.Error wrapper, whose message repeats the
// full URL including its query.
func unwrapURLError(err error) error {
	if urlErr, ok := err.(*url.Error); ok {
		return urlErr.Err
	}
	return err
}
