// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwksCache fetches and caches the signing keys of a JWKS endpoint.
// Validation takes a read lock; the periodic refresh takes the write lock.
type jwksCache struct {
	uri     string
	client  *http.Client
	refresh time.Duration

	mu      sync.RWMutex
	keys    map[string]any // kid → public key
	fetched time.Time
}

func newJWKSCache(uri string, client *http.Client, refresh time.Duration) *jwksCache {
	return &jwksCache{uri: uri, client: client, refresh: refresh}
}

// jsonWebKey is the subset of RFC 7517 the verifier consumes.
type jsonWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	// RSA
	N string `json:"n"`
	E string `json:"e"`
	// EC
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

type jsonWebKeySet struct {
	Keys []jsonWebKey `json:"keys"`
}

// keyfunc resolves a token's signing key by kid, fetching the key set on
// first use and when the cache outlives the refresh interval.
func (c *jwksCache) keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		c.mu.RLock()
		stale := c.keys == nil || time.Since(c.fetched) > c.refresh
		c.mu.RUnlock()
		if stale {
			if err := c.populate(ctx); err != nil {
				return nil, err
			}
		}

		kid, _ := token.Header["kid"].(string)
		c.mu.RLock()
		defer c.mu.RUnlock()
		if kid == "" {
			// Without a kid, a sole key is unambiguous.
			if len(c.keys) == 1 {
				for _, k := range c.keys {
					return k, nil
				}
			}
			return nil, fmt.Errorf("token has no kid and key set has %d keys", len(c.keys))
		}
		key, ok := c.keys[kid]
		if !ok {
			return nil, fmt.Errorf("no key with kid %q", kid)
		}
		return key, nil
	}
}

func (c *jwksCache) populate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.uri, nil)
	if err != nil {
		return &JWKSError{Err: err}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return &JWKSError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &JWKSError{Err: fmt.Errorf("fetching key set: status %s", resp.Status)}
	}
	var set jsonWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return &JWKSError{Err: fmt.Errorf("decoding key set: %w", err)}
	}

	keys := make(map[string]any, len(set.Keys))
	for _, k := range set.Keys {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		key, err := k.publicKey()
		if err != nil {
			// Skip unusable keys rather than rejecting the whole set.
			continue
		}
		keys[k.Kid] = key
	}
	if len(keys) == 0 {
		return &JWKSError{Err: fmt.Errorf("key set at %s contains no usable signing keys", c.uri)}
	}

	c.mu.Lock()
	c.keys = keys
	c.fetched = time.Now()
	c.mu.Unlock()
	return nil
}

func (k *jsonWebKey) publicKey() (any, error) {
	switch k.Kty {
	case "RSA":
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, fmt.Errorf("decoding modulus: %w", err)
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, fmt.Errorf("decoding exponent: %w", err)
		}
		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(n),
			E: int(new(big.Int).SetBytes(e).Int64()),
		}, nil
	case "EC":
		var curve elliptic.Curve
		switch k.Crv {
		case "P-256":
			curve = elliptic.P256()
		case "P-384":
			curve = elliptic.P384()
		case "P-521":
			curve = elliptic.P521()
		default:
			return nil, fmt.Errorf("unsupported curve %q", k.Crv)
		}
		x, err := base64.RawURLEncoding.DecodeString(k.X)
		if err != nil {
			return nil, fmt.Errorf("decoding x: %w", err)
		}
		y, err := base64.RawURLEncoding.DecodeString(k.Y)
		if err != nil {
			return nil, fmt.Errorf("decoding y: %w", err)
		}
		return &ecdsa.PublicKey{
			Curve: curve,
			X:     new(big.Int).SetBytes(x),
			Y:     new(big.Int).SetBytes(y),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported key type %q", k.Kty)
	}
}

// verifyJWT validates a JWT's signature against the cached key set and its
// exp, aud and iss claims against the verifier's expectations.
func (v *TokenVerifier) verifyJWT(ctx context.Context, accessToken string) (*AuthInfo, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "PS256", "PS384", "PS512"}),
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(accessToken, claims, v.jwks.keyfunc(ctx), parserOpts...)
	if err != nil {
		var jwksErr *JWKSError
		if errors.As(err, &jwksErr) {
			return nil, jwksErr
		}
		return nil, &InvalidTokenError{Description: err.Error()}
	}
	if !token.Valid {
		return nil, &InvalidTokenError{Description: "invalid token"}
	}

	info := &AuthInfo{}
	if jti, _ := claims["jti"].(string); jti != "" {
		info.TokenUniqueID = jti
	} else {
		info.TokenUniqueID = accessToken
	}
	if sub, _ := claims["sub"].(string); sub != "" {
		info.UserID = sub
	}
	if cid, _ := claims["client_id"].(string); cid != "" {
		info.ClientID = cid
	} else if azp, _ := claims["azp"].(string); azp != "" {
		info.ClientID = azp
	}
	if aud, err := claims.GetAudience(); err == nil {
		info.Audience = []string(aud)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		info.ExpiresAt = &t
	}
	if scope, _ := claims["scope"].(string); scope != "" {
		info.Scopes = strings.Fields(scope)
	}

	// Preserve the remaining claims.
	known := map[string]bool{"jti": true, "sub": true, "client_id": true, "azp": true, "aud": true, "exp": true, "scope": true, "iss": true, "iat": true, "nbf": true}
	for k, val := range claims {
		if !known[k] {
			if info.Extra == nil {
				info.Extra = make(map[string]any)
			}
			info.Extra[k] = val
		}
	}
	return info, nil
}
