// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubVerifier maps tokens to canned results.
type stubVerifier struct {
	infos  map[string]*AuthInfo
	errors map[string]error
}

func (s *stubVerifier) VerifyToken(_ context.Context, token string) (*AuthInfo, error) {
	if err, ok := s.errors[token]; ok {
		return nil, err
	}
	if info, ok := s.infos[token]; ok {
		return info, nil
	}
	return nil, &InvalidTokenError{Description: "unknown token"}
}

func futureExpiry() *time.Time {
	t := time.Now().Add(time.Hour)
	return &t
}

func pastExpiry() *time.Time {
	t := time.Now().Add(-time.Hour)
	return &t
}

func newAuthedHandler(v Verifier, opts *MiddlewareOptions) (http.Handler, *AuthInfo) {
	var seen AuthInfo
	inner := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if info, ok := AuthInfoFromContext(req.Context()); ok {
			seen = *info
		}
		w.WriteHeader(http.StatusOK)
	})
	return RequireBearerToken(v, opts)(inner), &seen
}

func doAuthedRequest(t *testing.T, handler http.Handler, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareValidToken(t *testing.T) {
	v := &stubVerifier{infos: map[string]*AuthInfo{
		"good": {TokenUniqueID: "good", UserID: "u1", Scopes: []string{"mcp:read"}, ExpiresAt: futureExpiry()},
	}}
	handler, seen := newAuthedHandler(v, &MiddlewareOptions{RequiredScopes: []string{"mcp:read"}})

	rec := doAuthedRequest(t, handler, "Bearer good")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", seen.UserID)

	// The Bearer scheme is case-insensitive.
	rec = doAuthedRequest(t, handler, "bearer good")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareMissingHeader(t *testing.T) {
	handler, _ := newAuthedHandler(&stubVerifier{}, nil)
	rec := doAuthedRequest(t, handler, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
}

func TestMiddlewareMalformedHeader(t *testing.T) {
	handler, _ := newAuthedHandler(&stubVerifier{}, nil)
	for _, header := range []string{"good", "Basic dXNlcjpwYXNz"} {
		rec := doAuthedRequest(t, handler, header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestMiddlewareExpiredToken(t *testing.T) {
	v := &stubVerifier{infos: map[string]*AuthInfo{
		"stale": {TokenUniqueID: "stale", ExpiresAt: pastExpiry()},
	}}
	handler, _ := newAuthedHandler(v, &MiddlewareOptions{ResourceMetadataURL: "https://mcp.example/.well-known/oauth-protected-resource"})

	rec := doAuthedRequest(t, handler, "Bearer stale")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	challenge := rec.Header().Get("WWW-Authenticate")
	assert.Contains(t, challenge, `error="invalid_token"`)
	assert.Contains(t, challenge, `error_description="Token has expired"`)
	assert.Contains(t, challenge, `resource_metadata="https://mcp.example/.well-known/oauth-protected-resource"`)
}

func TestMiddlewareNoExpiry(t *testing.T) {
	v := &stubVerifier{infos: map[string]*AuthInfo{
		"eternal": {TokenUniqueID: "eternal"},
	}}
	handler, _ := newAuthedHandler(v, nil)

	rec := doAuthedRequest(t, handler, "Bearer eternal")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Token has no expiration time")
}

func TestMiddlewareInsufficientScope(t *testing.T) {
	v := &stubVerifier{infos: map[string]*AuthInfo{
		"narrow": {TokenUniqueID: "narrow", Scopes: []string{"mcp:read"}, ExpiresAt: futureExpiry()},
	}}
	handler, _ := newAuthedHandler(v, &MiddlewareOptions{RequiredScopes: []string{"mcp:read", "mcp:write"}})

	rec := doAuthedRequest(t, handler, "Bearer narrow")
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="insufficient_scope"`)
	assert.Contains(t, rec.Body.String(), "insufficient_scope")
}

func TestMiddlewareInactiveToken(t *testing.T) {
	v := &stubVerifier{errors: map[string]error{"revoked": ErrInactiveToken}}
	handler, _ := newAuthedHandler(v, nil)

	rec := doAuthedRequest(t, handler, "Bearer revoked")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
}

func TestMiddlewareVerificationFailedStatus(t *testing.T) {
	v := &stubVerifier{errors: map[string]error{
		"forbidden": &VerificationFailedError{Description: "nope", StatusCode: http.StatusForbidden},
		"teapot":    &VerificationFailedError{Description: "nope", StatusCode: http.StatusTeapot},
		"plain":     &VerificationFailedError{Description: "nope"},
	}}
	handler, _ := newAuthedHandler(v, nil)

	rec := doAuthedRequest(t, handler, "Bearer forbidden")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.True(t, strings.Contains(rec.Header().Get("WWW-Authenticate"), "Bearer"))

	rec = doAuthedRequest(t, handler, "Bearer teapot")
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))

	rec = doAuthedRequest(t, handler, "Bearer plain")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
