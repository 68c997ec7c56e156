// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Helpers shared by the HTTP-based transports.

// DefaultMaxBodyBytes is the default maximum size (in bytes) for HTTP
// request bodies accepted by the SSE and streamable handlers.
//
// The limit exists so that an oversized or malicious request cannot exhaust
// server memory before the payload is even parsed.
const DefaultMaxBodyBytes int64 = 1_000_000

// effectiveMaxBodyBytes converts the user-configured maxBodyBytes value to
// an effective limit.
//
// Semantics:
//   - maxBodyBytes == 0: use DefaultMaxBodyBytes
//   - maxBodyBytes  < 0: no limit
//   - maxBodyBytes  > 0: use maxBodyBytes
func effectiveMaxBodyBytes(maxBodyBytes int64) int64 {
	switch {
	case maxBodyBytes == 0:
		return DefaultMaxBodyBytes
	case maxBodyBytes < 0:
		return 0
	default:
		return maxBodyBytes
	}
}

func isMaxBytesError(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func writeRequestBodyTooLarge(w http.ResponseWriter) {
	// http.MaxBytesReader already arranges to close the connection; request
	// closure explicitly as well.
	w.Header().Set("Connection", "close")
	http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
}

// acceptsContentType reports whether the request's Accept headers include
// the given media type. Multiple Accept headers and quality parameters are
// tolerated.
func acceptsContentType(req *http.Request, want string) bool {
	for _, header := range req.Header.Values("Accept") {
		for part := range strings.SplitSeq(header, ",") {
			mediaType, _, _ := strings.Cut(strings.TrimSpace(part), ";")
			if strings.TrimSpace(mediaType) == want {
				return true
			}
		}
	}
	return false
}

// hasContentType reports whether the request's Content-Type names the given
// media type, ignoring parameters such as charset.
func hasContentType(req *http.Request, want string) bool {
	ct := req.Header.Get("Content-Type")
	mediaType, _, _ := strings.Cut(ct, ";")
	return strings.TrimSpace(mediaType) == want
}

// An IDGenerator produces opaque identifiers for sessions and streams.
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator is the default [IDGenerator], producing UUIDv4 strings.
type UUIDGenerator struct{}

// Generate implements the [IDGenerator] interface.
func (UUIDGenerator) Generate() string {
	return uuid.NewString()
}

// checkOrigins enforces an optional DNS-rebinding allow-list: when
// configured, the Host and Origin headers must be present and match one of
// the allowed values, case-insensitively.
func checkOrigins(req *http.Request, allowedHosts, allowedOrigins []string) bool {
	if len(allowedHosts) > 0 && !matchesAllowList(req.Host, allowedHosts) {
		return false
	}
	if len(allowedOrigins) > 0 && !matchesAllowList(req.Header.Get("Origin"), allowedOrigins) {
		return false
	}
	return true
}

func matchesAllowList(value string, allowed []string) bool {
	if value == "" {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return true
		}
	}
	return false
}
