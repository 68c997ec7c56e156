// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// MiddlewareOptions configures [RequireBearerToken].
type MiddlewareOptions struct {
	// RequiredScopes must all be granted by the token, or the request is
	// rejected with 403 insufficient_scope.
	RequiredScopes []string
	// ResourceMetadataURL, if set, is advertised in WWW-Authenticate so
	// clients can discover the protected resource metadata (RFC 9728).
	ResourceMetadataURL string
	// Logger for rejected requests. Defaults to slog.Default.
	Logger *slog.Logger
}

// RequireBearerToken returns middleware that authenticates every request
// with the verifier before invoking the wrapped handler.
//
// The request must carry "Authorization: Bearer <token>" (scheme
// case-insensitive). Validated requests proceed with the token's [AuthInfo]
// in the context; failures map to 401, 403 or the verifier's status, with a
// WWW-Authenticate challenge where OAuth requires one.
func RequireBearerToken(verifier Verifier, opts *MiddlewareOptions) func(http.Handler) http.Handler {
	var o MiddlewareOptions
	if opts != nil {
		o = *opts
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			info, err := validateRequest(req, verifier, &o)
			if err != nil {
				o.Logger.Debug("request rejected by auth middleware", "error", err)
				writeAuthError(w, err, o.ResourceMetadataURL)
				return
			}
			next.ServeHTTP(w, req.WithContext(ContextWithAuthInfo(req.Context(), info)))
		})
	}
}

func validateRequest(req *http.Request, verifier Verifier, opts *MiddlewareOptions) (*AuthInfo, error) {
	header := strings.TrimSpace(req.Header.Get("Authorization"))
	if header == "" {
		return nil, &InvalidTokenError{Description: "Missing access token in Authorization header"}
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return nil, &InvalidTokenError{Description: "Invalid Authorization header format, expected 'Bearer TOKEN'"}
	}

	info, err := verifier.VerifyToken(req.Context(), strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}

	// A token without an expiry cannot be trusted, and an expired one must
	// not pass even if the verifier's cache still knows it.
	switch {
	case info.ExpiresAt == nil:
		return nil, &InvalidTokenError{Description: "Token has no expiration time"}
	case !time.Now().Before(*info.ExpiresAt):
		return nil, &InvalidTokenError{Description: "Token has expired"}
	}

	for _, scope := range opts.RequiredScopes {
		if !info.HasScope(scope) {
			return nil, ErrInsufficientScope
		}
	}
	return info, nil
}

// writeAuthError maps a verification failure to its HTTP response:
//
//   - invalid or inactive tokens: 401 with a Bearer challenge
//   - insufficient scope: 403 with a Bearer challenge
//   - remote verification failure with status 403: 403 with a challenge;
//     other statuses pass through without one
//   - anything else: 400
func writeAuthError(w http.ResponseWriter, err error, resourceMetadataURL string) {
	var (
		status    int
		errorCode string
		challenge bool
	)

	var invalidErr *InvalidTokenError
	var failedErr *VerificationFailedError
	switch {
	case errors.As(err, &invalidErr), errors.Is(err, ErrInactiveToken):
		status, errorCode, challenge = http.StatusUnauthorized, "invalid_token", true
	case errors.Is(err, ErrInsufficientScope):
		status, errorCode, challenge = http.StatusForbidden, "insufficient_scope", true
	case errors.As(err, &failedErr):
		errorCode = "invalid_token"
		if failedErr.StatusCode == http.StatusForbidden {
			status, challenge = http.StatusForbidden, true
		} else if failedErr.StatusCode != 0 {
			status = failedErr.StatusCode
		} else {
			status = http.StatusBadRequest
		}
	default:
		status, errorCode = http.StatusBadRequest, "invalid_request"
	}

	if challenge {
		value := fmt.Sprintf("Bearer error=%q, error_description=%q", errorCode, err.Error())
		if resourceMetadataURL != "" {
			value += fmt.Sprintf(", resource_metadata=%q", resourceMetadataURL)
		}
		w.Header().Set("WWW-Authenticate", value)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": err.Error(),
	})
}
