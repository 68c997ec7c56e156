// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// jwksRefreshInterval is how long fetched signing keys are trusted
	// before a re-fetch.
	jwksRefreshInterval = 24 * time.Hour
	// remoteVerificationInterval bounds revocation latency when local JWKS
	// validation is combined with a remote strategy: a token is re-checked
	// remotely when its last full validation is older than this.
	remoteVerificationInterval = 15 * time.Minute
	// defaultCacheCapacity is the default size of the recently-validated
	// token cache.
	defaultCacheCapacity = 1000
)

// A Verifier validates Bearer access tokens.
type Verifier interface {
	// VerifyToken validates the access token and describes it. Failures are
	// reported as *InvalidTokenError, ErrInactiveToken,
	// *VerificationFailedError or *JWKSError.
	VerifyToken(ctx context.Context, accessToken string) (*AuthInfo, error)
}

// A Strategy is one token verification method. The concrete strategies are
// [JWKSStrategy], [IntrospectionStrategy] and [UserInfoStrategy]. For best
// performance combine JWKS with one remote strategy: signature checks stay
// local, and remote checks run at most every 15 minutes per token.
type Strategy interface {
	apply(cfg *verifierConfig) error
}

// JWKSStrategy verifies JWT signatures against the authorization server's
// JSON Web Key Set.
type JWKSStrategy struct {
	// URI of the JWKS endpoint.
	URI string
}

func (s JWKSStrategy) apply(cfg *verifierConfig) error {
	u, err := url.Parse(s.URI)
	if err != nil {
		return fmt.Errorf("invalid jwks uri: %w", err)
	}
	cfg.jwksURI = u.String()
	return nil
}

// IntrospectionStrategy verifies tokens against an RFC 7662 introspection
// endpoint.
type IntrospectionStrategy struct {
	// URI of the introspection endpoint.
	URI string
	// ClientID and ClientSecret authenticate the introspection request.
	ClientID     string
	ClientSecret string
	// UseBasicAuth selects HTTP Basic authentication; otherwise the client
	// credentials are sent as form fields.
	UseBasicAuth bool
	// ExtraParams are added to the introspection request body, e.g.
	// token_type_hint=access_token.
	ExtraParams url.Values
}

func (s IntrospectionStrategy) apply(cfg *verifierConfig) error {
	u, err := url.Parse(s.URI)
	if err != nil {
		return fmt.Errorf("invalid introspection uri: %w", err)
	}
	cfg.introspectionURI = u.String()
	cfg.clientID = s.ClientID
	cfg.clientSecret = s.ClientSecret
	cfg.useBasicAuth = s.UseBasicAuth
	cfg.extraParams = s.ExtraParams
	cfg.hasRemote = true
	return nil
}

// UserInfoStrategy verifies tokens against an OIDC userinfo endpoint and
// enriches AuthInfo with the returned profile.
type UserInfoStrategy struct {
	// URI of the userinfo endpoint.
	URI string
}

func (s UserInfoStrategy) apply(cfg *verifierConfig) error {
	u, err := url.Parse(s.URI)
	if err != nil {
		return fmt.Errorf("invalid userinfo uri: %w", err)
	}
	cfg.userinfoURI = u.String()
	cfg.hasRemote = true
	return nil
}

type verifierConfig struct {
	jwksURI          string
	introspectionURI string
	clientID         string
	clientSecret     string
	useBasicAuth     bool
	extraParams      url.Values
	userinfoURI      string
	hasRemote        bool
}

// VerifierOptions configures a [TokenVerifier].
type VerifierOptions struct {
	// Strategies to combine. At least one is required.
	Strategies []Strategy
	// Audience, if non-empty, must appear among the token's aud values.
	Audience string
	// Issuer, if non-empty, must equal the token's iss value (trailing
	// slashes ignored).
	Issuer string
	// CacheCapacity bounds the recently-validated token cache used when
	// JWKS is combined with a remote strategy. Defaults to 1000.
	CacheCapacity int
	// HTTPClient for endpoint calls. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Logger for verification diagnostics. Defaults to slog.Default.
	Logger *slog.Logger
}

// A TokenVerifier is the generic [Verifier]: it applies its configured
// strategies in the order JWKS, introspection, userinfo.
type TokenVerifier struct {
	cfg      verifierConfig
	audience string
	issuer   string
	client   *http.Client
	logger   *slog.Logger

	jwks     *jwksCache
	jwtCache *jwtCache // non-nil only when JWKS is combined with a remote strategy
}

// NewTokenVerifier returns a verifier for the given options.
func NewTokenVerifier(opts VerifierOptions) (*TokenVerifier, error) {
	if len(opts.Strategies) == 0 {
		return nil, ErrNoStrategy
	}
	var cfg verifierConfig
	for _, s := range opts.Strategies {
		if err := s.apply(&cfg); err != nil {
			return nil, err
		}
	}
	v := &TokenVerifier{
		cfg:      cfg,
		audience: opts.Audience,
		issuer:   strings.TrimRight(opts.Issuer, "/"),
		client:   opts.HTTPClient,
		logger:   opts.Logger,
	}
	if v.client == nil {
		v.client = http.DefaultClient
	}
	if v.logger == nil {
		v.logger = slog.Default()
	}
	if cfg.jwksURI != "" {
		v.jwks = newJWKSCache(cfg.jwksURI, v.client, jwksRefreshInterval)
	}
	// The token cache only pays off when a cheap local check can stand in
	// for the remote one.
	if cfg.jwksURI != "" && cfg.hasRemote {
		capacity := opts.CacheCapacity
		if capacity <= 0 {
			capacity = defaultCacheCapacity
		}
		v.jwtCache = newJWTCache(remoteVerificationInterval, capacity)
	}
	return v, nil
}

// VerifyToken implements the [Verifier] interface.
func (v *TokenVerifier) VerifyToken(ctx context.Context, accessToken string) (*AuthInfo, error) {
	// Local JWKS verification first, when configured.
	if v.jwks != nil {
		info, err := v.verifyJWT(ctx, accessToken)
		if err != nil {
			return nil, err
		}
		if v.jwtCache == nil {
			return info, nil
		}
		// The signature is good; skip the remote round trip if this token
		// was fully validated recently.
		if v.jwtCache.isRecent(info.TokenUniqueID) {
			return info, nil
		}
		if v.cfg.introspectionURI != "" {
			fresh, err := v.verifyIntrospection(ctx, accessToken)
			if err != nil {
				return nil, err
			}
			v.jwtCache.record(info.TokenUniqueID)
			return fresh, nil
		}
		// Userinfo is consulted only when introspection is not configured.
		fresh, err := v.verifyUserInfo(ctx, accessToken, info.TokenUniqueID)
		if err != nil {
			return nil, err
		}
		info.Extra = fresh.Extra
		v.jwtCache.record(info.TokenUniqueID)
		return info, nil
	}

	if v.cfg.introspectionURI != "" {
		return v.verifyIntrospection(ctx, accessToken)
	}
	if v.cfg.userinfoURI != "" {
		return v.verifyUserInfo(ctx, accessToken, "")
	}
	return nil, ErrNoStrategy
}

// introspectionResponse is the RFC 7662 response body.
type introspectionResponse struct {
	Active   bool     `json:"active"`
	Scope    string   `json:"scope"`
	ClientID string   `json:"client_id"`
	Username string   `json:"username"`
	Sub      string   `json:"sub"`
	Aud      audience `json:"aud"`
	Iss      string   `json:"iss"`
	Exp      int64    `json:"exp"`
	JTI      string   `json:"jti"`
}

// audience unmarshals the aud claim, which may be a string or an array.
type audience []string

func (a *audience) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = audience{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*a = audience(many)
	return nil
}

func (v *TokenVerifier) verifyIntrospection(ctx context.Context, token string) (*AuthInfo, error) {
	form := url.Values{"token": {token}}
	if !v.cfg.useBasicAuth {
		form.Set("client_id", v.cfg.clientID)
		form.Set("client_secret", v.cfg.clientSecret)
	}
	for key, values := range v.cfg.extraParams {
		for _, value := range values {
			form.Add(key, value)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.introspectionURI, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &VerificationFailedError{Description: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if v.cfg.useBasicAuth {
		req.SetBasicAuth(v.cfg.clientID, v.cfg.clientSecret)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, &VerificationFailedError{Description: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &VerificationFailedError{
			Description: strings.TrimSpace(string(body)),
			StatusCode:  resp.StatusCode,
		}
	}

	var ir introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return nil, &VerificationFailedError{Description: fmt.Sprintf("decoding introspection response: %v", err)}
	}
	if !ir.Active {
		return nil, ErrInactiveToken
	}

	if v.audience != "" && !contains(ir.Aud, v.audience) {
		return nil, &VerificationFailedError{
			Description: fmt.Sprintf("none of the token audiences %v are allowed, expected %q", []string(ir.Aud), v.audience),
			StatusCode:  http.StatusUnauthorized,
		}
	}
	if v.issuer != "" {
		if ir.Iss == "" {
			return nil, &InvalidTokenError{Description: "issuer (iss) is missing"}
		}
		if strings.TrimRight(ir.Iss, "/") != v.issuer {
			return nil, &VerificationFailedError{
				Description: fmt.Sprintf("issuer %q is not allowed, expected %q", ir.Iss, v.issuer),
				StatusCode:  http.StatusUnauthorized,
			}
		}
	}

	info := &AuthInfo{
		TokenUniqueID: ir.JTI,
		ClientID:      ir.ClientID,
		UserID:        ir.Sub,
		Audience:      ir.Aud,
	}
	if info.TokenUniqueID == "" {
		info.TokenUniqueID = token
	}
	if info.UserID == "" {
		info.UserID = ir.Username
	}
	if ir.Scope != "" {
		info.Scopes = strings.Fields(ir.Scope)
	}
	if ir.Exp > 0 {
		exp := time.Unix(ir.Exp, 0)
		info.ExpiresAt = &exp
	}
	return info, nil
}

func (v *TokenVerifier) verifyUserInfo(ctx context.Context, token, tokenUniqueID string) (*AuthInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.userinfoURI, nil)
	if err != nil {
		return nil, &VerificationFailedError{Description: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, &VerificationFailedError{Description: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		description := strings.TrimSpace(string(body))
		if description == "" {
			description = "Unauthorized!"
		}
		return nil, &VerificationFailedError{Description: description, StatusCode: resp.StatusCode}
	}

	var claims map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, &VerificationFailedError{Description: fmt.Sprintf("decoding userinfo response: %v", err)}
	}

	if tokenUniqueID == "" {
		tokenUniqueID = token
	}
	return &AuthInfo{TokenUniqueID: tokenUniqueID, Extra: claims}, nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
