// Package webauth runs web mode inside a gin application.
//
// Each browser gets its own token: Middleware redirects a visitor without
// one to the oDesk authorization page, exchanges the frob the service
// sends back, and keeps the token in a cookie. Handlers fetch a client
// signing with that browser's token through ClientFrom.
package webauth

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/naotama2002/odesk-go/client"
	apierrors "github.com/naotama2002/odesk-go/pkg/errors"
)

const (
	// DefaultCookieName holds the token in the browser
	DefaultCookieName = "odesk_api_token"
	// DefaultMaxAge keeps the cookie for an hour
	DefaultMaxAge = 3600

	clientKey = "odesk.client"
)

// Options tune the token cookie
type Options struct {
	CookieName string
	MaxAge     int
	Path       string
	Domain     string
	Secure     bool
}

func (o Options) withDefaults() Options {
	if o.CookieName == "" {
		o.CookieName = DefaultCookieName
	}
	if o.MaxAge == 0 {
		o.MaxAge = DefaultMaxAge
	}
	if o.Path == "" {
		o.Path = "/"
	}
	return o
}

// Auth authorizes browsers against one web-mode client
type Auth struct {
	api  *client.Client
	opts Options
}

// New returns an Auth for api, which should be in web mode
func New(api *client.Client, opts Options) *Auth {
	return &Auth{api: api, opts: opts.withDefaults()}
}

// Middleware is shorthand for New(api, Options{}).Middleware()
func Middleware(api *client.Client) gin.HandlerFunc {
	return New(api, Options{}).Middleware()
}

// Middleware makes sure the request carries a token before the handler runs
func (a *Auth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, err := c.Cookie(a.opts.CookieName); err == nil && token != "" {
			c.Set(clientKey, a.api.WithToken(token))
			c.Next()
			return
		}

		if frob := c.Query("frob"); frob != "" {
			token, err := a.api.Session().RequestToken(c.Request.Context(), frob)
			if err != nil {
				log.Printf("Frob exchange failed: %v", err)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization failed"})
				return
			}
			a.setCookie(c, token, a.opts.MaxAge)
			c.Set(clientKey, a.api.WithToken(token))
			c.Next()
			return
		}

		c.Redirect(http.StatusFound, a.api.Session().AuthorizationURL())
		c.Abort()
	}
}

// Forget drops the browser's token so its next request authorizes again
func (a *Auth) Forget(c *gin.Context) {
	a.setCookie(c, "", -1)
}

// Fail answers a handler error. A token the service rejected is forgotten
// and the browser sent back through authorization.
func (a *Auth) Fail(c *gin.Context, err error) {
	status := apierrors.StatusCode(err)
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		a.Forget(c)
		c.Redirect(http.StatusFound, a.api.Session().AuthorizationURL())
		c.Abort()
		return
	}

	log.Printf("API call failed: %v", err)
	c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "oDesk API call failed"})
}

func (a *Auth) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(a.opts.CookieName, value, maxAge, a.opts.Path, a.opts.Domain, a.opts.Secure, true)
}

// ClientFrom returns the client Middleware stored for this request
func ClientFrom(c *gin.Context) (*client.Client, bool) {
	v, ok := c.Get(clientKey)
	if !ok {
		return nil, false
	}
	api, ok := v.(*client.Client)
	return api, ok
}
