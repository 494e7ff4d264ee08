package client

import (
	"context"
	"log"
	"net/http"
	"strings"

	apierrors "github.com/naotama2002/odesk-go/pkg/errors"
	"github.com/naotama2002/odesk-go/signature"
)

// SignedRequest is a call ready for the wire
type SignedRequest struct {
	Method Method
	// URL is baseURL?api_key=..&api_sig=..&<params>.
	URL string
	// Params is what was signed, including api_token and http_method.
	Params    signature.Params
	Signature string
}

// Sign builds the signed request for token. api_key and api_sig passed in
// params are dropped; the client always supplies its own.
func (c *Client) Sign(method Method, baseURL string, params signature.Params, token string) *SignedRequest {
	if m, err := ParseMethod(string(method)); err == nil {
		method = m
	}

	signed := params.Clone()
	delete(signed, signature.KeyAPIKey)
	delete(signed, signature.KeySignature)
	signed[KeyToken] = token

	switch method {
	case MethodPut, MethodDelete:
		signed[KeyHTTPMethod] = strings.ToLower(string(method))
	default:
		delete(signed, KeyHTTPMethod)
	}

	sig := signature.Sign(c.config.Secret, c.config.AppKey, signed)
	rawURL := baseURL + "?" + signature.KeysQuery(c.config.AppKey, sig)
	if query := signature.BuildQuery(signed); query != "" {
		rawURL += "&" + query
	}

	return &SignedRequest{
		Method:    method,
		URL:       rawURL,
		Params:    signed,
		Signature: sig,
	}
}

// Request performs a signed call and returns the raw response body. Only a
// 200 with a non-empty body counts as success.
func (c *Client) Request(ctx context.Context, method Method, baseURL string, params signature.Params) ([]byte, error) {
	body, err := c.request(ctx, method, baseURL, params)
	if err == nil || !c.config.ReauthOnUnauthorized || apierrors.StatusCode(err) != http.StatusUnauthorized {
		return body, err
	}

	log.Println("Token rejected, re-authorizing")
	if err := c.session.ForceReauth(); err != nil {
		return nil, err
	}
	return c.request(ctx, method, baseURL, params)
}

func (c *Client) request(ctx context.Context, method Method, baseURL string, params signature.Params) ([]byte, error) {
	method, err := ParseMethod(string(method))
	if err != nil {
		return nil, err
	}

	token, err := c.session.Auth(ctx)
	if err != nil {
		return nil, err
	}

	req := c.Sign(method, baseURL, params, token)
	result, err := c.transport.Send(ctx, req.Method.wire(), req.URL)
	if err != nil {
		return nil, apierrors.Wrap(err, apierrors.RequestFailed, "API call failed")
	}
	if result.StatusCode != http.StatusOK {
		return nil, apierrors.NewRequestFailed(result.StatusCode, result.Body)
	}
	if len(result.Body) == 0 {
		return nil, apierrors.New(apierrors.RequestFailed, "empty response").WithStatusCode(result.StatusCode)
	}
	return result.Body, nil
}
