package auth

import (
	"context"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/naotama2002/odesk-go/internal/httpclient"
	apierrors "github.com/naotama2002/odesk-go/pkg/errors"
	"github.com/naotama2002/odesk-go/signature"
)

// authResponse covers both frobs.xml and tokens.xml. The root element name
// is not checked.
type authResponse struct {
	Frob      string `xml:"frob"`
	Token     string `xml:"token"`
	ErrorAttr string `xml:"error,attr"`
	ErrorElem string `xml:"error"`
}

func (r *authResponse) serviceError() string {
	if r.ErrorAttr != "" {
		return r.ErrorAttr
	}
	return strings.TrimSpace(r.ErrorElem)
}

// runNonWeb performs login, frob, authorize and token in order.
func (s *Session) runNonWeb(ctx context.Context) (string, error) {
	s.mu.Lock()
	username, password := s.opts.Username, s.opts.Password
	s.mu.Unlock()

	if username != "" {
		s.login(ctx, username, password)
	} else {
		log.Println("No username configured, relying on the cookie session for the frob step")
	}

	frob, err := s.requestFrob(ctx)
	if err != nil {
		return "", err
	}
	s.ReceiveFrob(frob)

	if err := s.authorize(ctx, frob); err != nil {
		return "", err
	}

	return s.RequestToken(ctx, frob)
}

// login is best effort: its outcome only shows in the steps after it.
func (s *Session) login(ctx context.Context, username, password string) {
	log.Printf("Authorization step %s", StepLogin)

	query := signature.BuildQuery(signature.Params{
		"login":    username,
		"password": password,
		"action":   "login",
	})
	result, err := s.transport.Send(ctx, http.MethodPost, s.opts.Endpoints.Login+"?"+query)
	if err != nil {
		log.Printf("Warning: login request failed: %v", err)
		return
	}
	if result.StatusCode != http.StatusOK {
		log.Printf("Warning: login returned HTTP %d", result.StatusCode)
	}
}

func (s *Session) requestFrob(ctx context.Context) (string, error) {
	log.Printf("Authorization step %s", StepFrob)

	rawURL := s.opts.Endpoints.Frobs + "?" + signature.SignedQuery(s.creds.Secret, s.creds.AppKey, nil)
	resp, err := s.call(ctx, StepFrob, http.MethodPost, rawURL)
	if err != nil {
		return "", err
	}

	frob := strings.TrimSpace(resp.Frob)
	if frob == "" {
		return "", apierrors.NewAuthorizationFailed(StepFrob, "can not get frob").WithDetails(resp.serviceError())
	}
	return frob, nil
}

// authorize agrees to the frob. The signature covers the frob only, not
// the do=agree flag.
func (s *Session) authorize(ctx context.Context, frob string) error {
	log.Printf("Authorization step %s", StepAuthorize)

	sig := signature.Sign(s.creds.Secret, s.creds.AppKey, signature.Params{"frob": frob})
	rawURL := s.opts.Endpoints.Auth + "?" + signature.KeysQuery(s.creds.AppKey, sig) + "&" +
		signature.BuildQuery(signature.Params{"do": "agree", "frob": frob})

	result, err := s.transport.Send(ctx, http.MethodPost, rawURL)
	if err != nil {
		return apierrors.Wrap(err, apierrors.AuthorizationFailed, "authorize request failed").WithStep(StepAuthorize)
	}
	if result.StatusCode != http.StatusOK {
		return apierrors.NewAuthorizationFailed(StepAuthorize, "can not authorize frob").
			WithStatusCode(result.StatusCode).WithResponse(result.Body)
	}
	return nil
}

// RequestToken exchanges an approved frob for a token without caching
// it. Web handlers that keep one token per browser use this directly.
func (s *Session) RequestToken(ctx context.Context, frob string) (string, error) {
	log.Printf("Authorization step %s", StepToken)

	if frob == "" {
		return "", apierrors.NewAuthorizationFailed(StepToken, "frob is empty")
	}

	params := signature.Params{"frob": frob}
	rawURL := s.opts.Endpoints.Tokens + "?" + signature.SignedQuery(s.creds.Secret, s.creds.AppKey, params)
	resp, err := s.call(ctx, StepToken, http.MethodGet, rawURL)
	if err != nil {
		return "", err
	}

	token := strings.TrimSpace(resp.Token)
	if token == "" {
		return "", apierrors.NewAuthorizationFailed(StepToken, "can not get token").WithDetails(resp.serviceError())
	}
	return token, nil
}

// call sends a signed auth request and decodes the XML answer.
func (s *Session) call(ctx context.Context, step, method, rawURL string) (*authResponse, error) {
	result, err := s.transport.Send(ctx, method, rawURL)
	if err != nil {
		return nil, apierrors.Wrap(err, apierrors.AuthorizationFailed, step+" request failed").WithStep(step)
	}
	if result.StatusCode != http.StatusOK {
		return nil, apierrors.NewAuthorizationFailed(step, fmt.Sprintf("API return code - %d", result.StatusCode)).
			WithStatusCode(result.StatusCode).WithResponse(result.Body)
	}
	return parseAuthResponse(step, result)
}

func parseAuthResponse(step string, result *httpclient.Result) (*authResponse, error) {
	if len(result.Body) == 0 {
		return nil, apierrors.NewAuthorizationFailed(step, "empty response").WithStatusCode(result.StatusCode)
	}

	var resp authResponse
	if err := xml.Unmarshal(result.Body, &resp); err != nil {
		return nil, apierrors.Wrap(err, apierrors.AuthorizationFailed, "unparseable response").
			WithStep(step).WithResponse(result.Body)
	}
	return &resp, nil
}
