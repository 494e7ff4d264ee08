package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/naotama2002/odesk-go/auth"
	"github.com/naotama2002/odesk-go/client"
	"github.com/naotama2002/odesk-go/internal/odesktest"
	"github.com/naotama2002/odesk-go/jobs"
	"github.com/naotama2002/odesk-go/webauth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setup(t *testing.T) (*odesktest.Server, *gin.Engine, *client.Client) {
	t.Helper()
	server := odesktest.New("app-key", "app-secret")
	server.Resource = func(w http.ResponseWriter, _ *odesktest.Request) {
		_, _ = w.Write([]byte(`{"jobs":{"lister":{"total_items":"1"},"job":{"op_title":"Build a site"}}}`))
	}

	api, err := client.New(client.Config{
		AppKey: "app-key",
		Secret: "app-secret",
		Mode:   auth.ModeWeb,
		Endpoints: auth.Endpoints{
			Auth:   server.AuthURL(),
			Tokens: server.TokensURL(),
		},
	})
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}
	return server, newRouter(api, webauth.Options{}, server.ResourceURL("profiles/v1/search/jobs.json")), api
}

func TestIndexRedirects(t *testing.T) {
	server, router, api := setup(t)
	defer server.Close()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusFound {
		t.Fatalf("Expected 302, got %d", w.Code)
	}
	if w.Header().Get("Location") != api.Session().AuthorizationURL() {
		t.Errorf("Unexpected redirect %s", w.Header().Get("Location"))
	}
}

func TestIndexAfterAuthorization(t *testing.T) {
	server, router, _ := setup(t)
	defer server.Close()
	server.Approve(server.Frob)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?frob="+server.Frob, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result jobs.Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Response is not JSON: %v", err)
	}
	if len(result.Jobs.Job) != 1 || result.Jobs.Job[0].Title != "Build a site" {
		t.Errorf("Unexpected result %+v", result)
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != webauth.DefaultCookieName || cookies[0].Value != server.Token {
		t.Fatalf("Expected the token cookie, got %v", cookies)
	}

	// The cookie alone authorizes the next visit
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with cookie, got %d", w.Code)
	}
	if n := server.Calls(odesktest.PathTokens); n != 1 {
		t.Errorf("Expected a single token exchange, got %d", n)
	}
}

func TestPublicRoutes(t *testing.T) {
	server, router, _ := setup(t)
	defer server.Close()

	for _, path := range []string{"/healthz", "/logout"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, w.Code)
		}
	}
}
