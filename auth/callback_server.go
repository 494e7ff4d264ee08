package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/browser"

	apierrors "github.com/naotama2002/odesk-go/pkg/errors"
)

const (
	defaultCallbackAddr    = "127.0.0.1:3334"
	defaultCallbackPath    = "/callback"
	defaultCallbackTimeout = 5 * time.Minute
)

const successPage = `<html>
<head><title>Authorization Successful</title></head>
<body>
	<h1>Authorization Successful</h1>
	<p>You can close this window and return to the application.</p>
	<script>window.close();</script>
</body>
</html>`

// CallbackOptions configure the local server that receives the frob when
// web mode is driven from a terminal. The application's callback URL
// registered with oDesk must point at Addr and Path.
type CallbackOptions struct {
	Addr    string
	Path    string
	Timeout time.Duration
	// OpenBrowser opens the authorization URL; defaults to the system browser.
	OpenBrowser func(url string) error
}

func (o CallbackOptions) withDefaults() CallbackOptions {
	if o.Addr == "" {
		o.Addr = defaultCallbackAddr
	}
	if o.Path == "" {
		o.Path = defaultCallbackPath
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultCallbackTimeout
	}
	if o.OpenBrowser == nil {
		o.OpenBrowser = browser.OpenURL
	}
	return o
}

// CallbackServer receives the frob the authorization page redirects with
type CallbackServer struct {
	server   *http.Server
	listener net.Listener
	path     string
	frobs    chan string
}

// StartCallbackServer listens on opts.Addr and serves opts.Path
func StartCallbackServer(opts CallbackOptions) (*CallbackServer, error) {
	opts = opts.withDefaults()

	listener, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return nil, apierrors.Wrap(err, apierrors.ConfigurationError, "failed to start callback server")
	}

	cs := &CallbackServer{
		listener: listener,
		path:     opts.Path,
		frobs:    make(chan string, 1),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET(opts.Path, cs.handleCallback)

	cs.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := cs.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Callback server error: %v", err)
		}
	}()

	log.Printf("Callback server listening on %s", cs.URL())
	return cs, nil
}

func (cs *CallbackServer) handleCallback(c *gin.Context) {
	frob := c.Query("frob")
	if frob == "" {
		c.String(http.StatusBadRequest, "frob not found")
		return
	}

	select {
	case cs.frobs <- frob:
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(successPage))
	default:
		c.String(http.StatusConflict, "Authorization flow not in progress")
	}
}

// URL returns the callback URL the server answers on
func (cs *CallbackServer) URL() string {
	return fmt.Sprintf("http://%s%s", cs.listener.Addr().String(), cs.path)
}

// WaitForFrob blocks until a frob arrives or ctx ends
func (cs *CallbackServer) WaitForFrob(ctx context.Context) (string, error) {
	select {
	case frob := <-cs.frobs:
		return frob, nil
	case <-ctx.Done():
		return "", apierrors.Wrap(ctx.Err(), apierrors.AuthorizationFailed, "timeout waiting for frob").WithStep(StepRedirect)
	}
}

// Close stops the server
func (cs *CallbackServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return cs.server.Shutdown(ctx)
}

// BrowserAuthorize completes web mode from a terminal: it opens the
// authorization page in the user's browser, waits for the frob on a local
// callback server and exchanges it. A cached token short-circuits all of it.
func BrowserAuthorize(ctx context.Context, s *Session, opts CallbackOptions) (string, error) {
	token, err := s.Auth(ctx)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, ErrNotAuthenticated) {
		return "", err
	}
	opts = opts.withDefaults()

	if coord := newCoordinator(s.opts.Store); coord != nil {
		peer, err := coord.claim(opts.Addr)
		switch {
		case err != nil:
			log.Printf("Warning: failed to coordinate browser authorization: %v", err)
		case peer != nil:
			log.Printf("Process %d is already authorizing in the browser, waiting for its token", peer.PID)
			waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
			token, err := coord.waitForPeer(waitCtx, s.opts.Store)
			cancel()
			if err == nil {
				s.SetToken(token)
				return token, nil
			}
			if ctx.Err() != nil {
				return "", err
			}
			log.Println("Taking over browser authorization")
		default:
			defer coord.release()
		}
	}

	cs, err := StartCallbackServer(opts)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := cs.Close(); err != nil {
			log.Printf("Warning: failed to stop callback server: %v", err)
		}
	}()

	authURL := s.AuthorizationURL()
	log.Printf("Please authorize this client by visiting:\n%s", authURL)
	if err := opts.OpenBrowser(authURL); err != nil {
		log.Println("Could not open browser automatically. Please copy and paste the URL above into your browser.")
	} else {
		log.Println("Browser opened automatically.")
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	frob, err := cs.WaitForFrob(waitCtx)
	if err != nil {
		return "", err
	}
	return s.ExchangeFrob(ctx, frob)
}
