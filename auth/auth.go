// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package auth validates OAuth 2.0 Bearer access tokens for MCP servers.
//
// A [TokenVerifier] combines one or more verification strategies — local JWT
// signature checks against a JWKS endpoint, RFC 7662 remote introspection,
// and OIDC userinfo enrichment — and [RequireBearerToken] applies a verifier
// in front of an http.Handler.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AuthInfo describes a validated access token. It is attached to the
// request context by the middleware; handlers retrieve it with
// [AuthInfoFromContext].
type AuthInfo struct {
	// TokenUniqueID identifies the token for caching: the JWT ID claim when
	// available, otherwise the token itself.
	TokenUniqueID string
	// ClientID of the OAuth client the token was issued to.
	ClientID string
	// UserID is the subject of the token.
	UserID string
	// Scopes granted to the token.
	Scopes []string
	// ExpiresAt is the token's expiry. The middleware rejects tokens
	// without one.
	ExpiresAt *time.Time
	// Audience values of the token.
	Audience []string
	// Extra holds claims or userinfo fields not mapped above.
	Extra map[string]any
}

// HasScope reports whether the token grants the scope.
func (a *AuthInfo) HasScope(scope string) bool {
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ErrInactiveToken is reported when introspection answers active=false: the
// token is revoked or expired at the authorization server.
var ErrInactiveToken = errors.New("token is not active")

// ErrInsufficientScope is reported when a token lacks a required scope.
var ErrInsufficientScope = errors.New("insufficient scope")

// ErrNoStrategy is reported by a verifier configured without any usable
// strategy.
var ErrNoStrategy = errors.New("no token verification strategy configured")

// An InvalidTokenError describes a token that failed local validation.
type InvalidTokenError struct {
	Description string
}

func (e *InvalidTokenError) Error() string { return e.Description }

// A VerificationFailedError describes a remote verification failure, with
// the upstream HTTP status when one was received.
type VerificationFailedError struct {
	Description string
	StatusCode  int // 0 when no HTTP status applies
}

func (e *VerificationFailedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token verification failed (status %d): %s", e.StatusCode, e.Description)
	}
	return fmt.Sprintf("token verification failed: %s", e.Description)
}

// A JWKSError describes a failure to fetch, parse or apply the JSON web key
// set.
type JWKSError struct {
	Err error
}

func (e *JWKSError) Error() string { return fmt.Sprintf("jwks: %v", e.Err) }

func (e *JWKSError) Unwrap() error { return e.Err }

// authInfoContextKey keys AuthInfo in request contexts.
type authInfoContextKey struct{}

// AuthInfoFromContext returns the AuthInfo attached by the middleware, if
// any.
func AuthInfoFromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(authInfoContextKey{}).(*AuthInfo)
	return info, ok
}

// ContextWithAuthInfo returns a context carrying the AuthInfo. Exposed for
// tests and custom middleware.
func ContextWithAuthInfo(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authInfoContextKey{}, info)
}
