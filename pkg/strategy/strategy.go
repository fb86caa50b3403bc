// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package strategy defines the capability record a host application fills in
// to drive the engine. Each field is one primitive data operation (look up a
// client, look up a user, sign a token, persist or delete a token); every
// normative OAuth 2.0 / OIDC rule is layered on top by the engine and never
// implemented by the host. Fields are optional — which ones are required
// depends on the modes the strategy declares.
package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

// Modes a strategy can operate in.
const (
	// ModeLoginSignup supports username/password login and signup only.
	ModeLoginSignup = "loginsignup"

	// ModeLoginSignupFIP adds federated-identity-provider login and signup.
	ModeLoginSignupFIP = "loginsignupfip"

	// ModeOpenID enables the full OAuth 2.0 / OIDC surface: the four grant
	// types, introspection, revocation and userinfo.
	ModeOpenID = "openid"
)

// Client is a service account registered with the authorization server.
type Client struct {
	// ClientID identifies the service account.
	ClientID string

	// ClientSecret is the shared secret, if one is set.
	ClientSecret string

	// Scopes is the ordered set of scopes the client may be granted.
	Scopes []string

	// Audiences is the ordered set of audiences tokens for this client carry.
	Audiences []string

	// AuthMethods lists the token endpoint auth methods the client uses.
	// Containing "client_secret_post" marks the client private: the secret is
	// then required even where it is otherwise optional.
	AuthMethods []string
}

// EndUser is a local user account. The engine treats ID as an opaque subject.
type EndUser struct {
	// ID becomes the "sub" claim of tokens issued for this user.
	ID string

	// ClientIDs lists the clients explicitly linked to this user. An empty
	// list means the user is accessible by any client.
	ClientIDs []string
}

// IdentityClaims is the profile material a strategy returns for a user,
// filtered by the requested scopes.
type IdentityClaims struct {
	// ID is the user's opaque identifier.
	ID string

	// ClientIDs lists the clients explicitly linked to the user, used for
	// the client-ownership check before signing an id_token.
	ClientIDs []string

	// Claims holds the identity claims themselves (given_name, email, ...).
	Claims jwt.MapClaims
}

// FIPProfile is the raw profile a federated identity provider returns on a
// successful login/signup callback.
type FIPProfile struct {
	// ID is the user's identifier at the provider.
	ID string

	FirstName     string
	LastName      string
	Email         string
	ProfileImgURL string

	// AccessToken and RefreshToken are the provider-side tokens, passed
	// through so the host can store them alongside the user.
	AccessToken  string
	RefreshToken string
}

// NewFIPUser is the normalized registration payload derived from a FIPProfile
// by the engine before the host persists a federated user.
type NewFIPUser struct {
	// Provider names the federated identity provider (e.g. "facebook").
	Provider string

	// ProviderUserID is the user's identifier at the provider.
	ProviderUserID string

	FirstName     string
	LastName      string
	Email         string
	ProfileImgURL string

	AccessToken  string
	RefreshToken string
}

// TokenExpiry configures per-type token lifespans.
type TokenExpiry struct {
	AccessToken       time.Duration
	RefreshToken      time.Duration
	IDToken           time.Duration
	AuthorizationCode time.Duration
}

// Default token lifespans, used when TokenExpiry leaves a field unset.
const (
	DefaultAccessTokenExpiry       = time.Hour
	DefaultRefreshTokenExpiry      = 30 * 24 * time.Hour
	DefaultIDTokenExpiry           = time.Hour
	DefaultAuthorizationCodeExpiry = 10 * time.Minute
)

// Config is the engine configuration a strategy supplies through GetConfig.
// It is passed explicitly at claim-construction time; the engine reads no
// ambient state.
type Config struct {
	// Issuer becomes the "iss" claim of every token the engine mints.
	Issuer string

	// Expiry configures per-type token lifespans.
	Expiry TokenExpiry
}

// ExpiryFor returns the configured lifespan for a token type, falling back
// to the default when unset.
func (c *Config) ExpiryFor(tokenType string) time.Duration {
	switch tokenType {
	case "refresh_token":
		if c.Expiry.RefreshToken > 0 {
			return c.Expiry.RefreshToken
		}
		return DefaultRefreshTokenExpiry
	case "id_token":
		if c.Expiry.IDToken > 0 {
			return c.Expiry.IDToken
		}
		return DefaultIDTokenExpiry
	case "code":
		if c.Expiry.AuthorizationCode > 0 {
			return c.Expiry.AuthorizationCode
		}
		return DefaultAuthorizationCodeExpiry
	default:
		if c.Expiry.AccessToken > 0 {
			return c.Expiry.AccessToken
		}
		return DefaultAccessTokenExpiry
	}
}

// Strategy is the capability record. Nil fields are capabilities the host
// does not provide; Validate reports which ones the declared modes require.
type Strategy struct {
	// Name identifies the strategy (e.g. "postgres", "mock").
	Name string

	// Modes lists the modes this strategy supports.
	Modes []string

	// ScopesSupported and ClaimsSupported are advertised in the discovery
	// document when the openid mode is active.
	ScopesSupported []string
	ClaimsSupported []string

	// GetConfig returns the issuer and token-lifespan configuration.
	GetConfig func(ctx context.Context) (*Config, error)

	// GetClient looks up a service account. When clientSecret is non-empty
	// the lookup must also authenticate it.
	GetClient func(ctx context.Context, clientID, clientSecret string) (*Client, error)

	// GetServiceAccount is an alternate service-account lookup some hosts
	// expose for non-OAuth surfaces. The engine registers it but its core
	// flows only consume GetClient.
	GetServiceAccount func(ctx context.Context, clientID, clientSecret string) (*Client, error)

	// GetEndUser authenticates a username/password pair for a client.
	// Returns nil (no error) when the user does not exist or the password
	// does not match.
	GetEndUser func(ctx context.Context, clientID, username, password string) (*EndUser, error)

	// CreateEndUser registers a new username/password user.
	CreateEndUser func(ctx context.Context, clientID, username, password string) (*EndUser, error)

	// GetFIPUser looks up the local user linked to a federated identity.
	// Returns nil (no error) when no local user is linked.
	GetFIPUser func(ctx context.Context, provider string, profile *FIPProfile) (*EndUser, error)

	// CreateFIPUser registers a local user for a federated identity.
	CreateFIPUser func(ctx context.Context, user *NewFIPUser) (*EndUser, error)

	// GetIdentityClaims returns the user's identity claims for the scopes.
	GetIdentityClaims func(ctx context.Context, clientID, userID string, scopes []string) (*IdentityClaims, error)

	// GenerateToken signs or mints a token of the given type from claims.
	// tokenType is one of "access_token", "refresh_token", "id_token", "code".
	GenerateToken func(ctx context.Context, tokenType string, claims jwt.MapClaims) (string, error)

	// GetTokenClaims resolves any token of the given type back to its claims.
	// Per-type specializations below take precedence when set.
	GetTokenClaims func(ctx context.Context, tokenType, token string) (jwt.MapClaims, error)

	GetAccessTokenClaims       func(ctx context.Context, token string) (jwt.MapClaims, error)
	GetIDTokenClaims           func(ctx context.Context, token string) (jwt.MapClaims, error)
	GetRefreshTokenClaims      func(ctx context.Context, token string) (jwt.MapClaims, error)
	GetAuthorizationCodeClaims func(ctx context.Context, token string) (jwt.MapClaims, error)

	// DeleteRefreshToken revokes a refresh token. Deleting a token that no
	// longer exists must not be an error.
	DeleteRefreshToken func(ctx context.Context, token string) error

	// GetJWKS returns the public signing keys, when the host signs
	// asymmetrically. Optional; its presence is advertised in discovery.
	GetJWKS func(ctx context.Context) (*jose.JSONWebKeySet, error)
}

// HasMode reports whether the strategy declares the given mode.
func (s *Strategy) HasMode(mode string) bool {
	for _, m := range s.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// hasTokenClaimsGetter reports whether claims for the given token type can
// be resolved, either through a specialization or the generic getter.
func (s *Strategy) hasTokenClaimsGetter(tokenType string) bool {
	if s.GetTokenClaims != nil {
		return true
	}
	switch tokenType {
	case "access_token":
		return s.GetAccessTokenClaims != nil
	case "id_token":
		return s.GetIDTokenClaims != nil
	case "refresh_token":
		return s.GetRefreshTokenClaims != nil
	case "code":
		return s.GetAuthorizationCodeClaims != nil
	}
	return false
}

// Validate checks that the strategy declares a name, at least one known
// mode, and every primitive its modes require.
func (s *Strategy) Validate() error {
	if s == nil {
		return fmt.Errorf("strategy is required")
	}
	if s.Name == "" {
		return fmt.Errorf("strategy name is required")
	}
	if len(s.Modes) == 0 {
		return fmt.Errorf("strategy must declare at least one mode")
	}
	for _, m := range s.Modes {
		switch m {
		case ModeLoginSignup, ModeLoginSignupFIP, ModeOpenID:
		default:
			return fmt.Errorf("unknown mode %q", m)
		}
	}

	if s.GetConfig == nil {
		return fmt.Errorf("strategy %s: get_config is required", s.Name)
	}
	if s.GenerateToken == nil {
		return fmt.Errorf("strategy %s: generate_token is required", s.Name)
	}

	if s.HasMode(ModeLoginSignup) || s.HasMode(ModeLoginSignupFIP) {
		if s.GetEndUser == nil {
			return fmt.Errorf("strategy %s: get_end_user is required by mode %s", s.Name, ModeLoginSignup)
		}
		if s.CreateEndUser == nil {
			return fmt.Errorf("strategy %s: create_end_user is required by mode %s", s.Name, ModeLoginSignup)
		}
	}
	if s.HasMode(ModeLoginSignupFIP) {
		if s.GetFIPUser == nil {
			return fmt.Errorf("strategy %s: get_fip_user is required by mode %s", s.Name, ModeLoginSignupFIP)
		}
		if s.CreateFIPUser == nil {
			return fmt.Errorf("strategy %s: create_fip_user is required by mode %s", s.Name, ModeLoginSignupFIP)
		}
	}
	if s.HasMode(ModeOpenID) {
		if s.GetClient == nil {
			return fmt.Errorf("strategy %s: get_client is required by mode %s", s.Name, ModeOpenID)
		}
		if s.GetEndUser == nil {
			return fmt.Errorf("strategy %s: get_end_user is required by mode %s", s.Name, ModeOpenID)
		}
		if s.GetIdentityClaims == nil {
			return fmt.Errorf("strategy %s: get_identity_claims is required by mode %s", s.Name, ModeOpenID)
		}
		for _, tokenType := range []string{"access_token", "id_token", "refresh_token", "code"} {
			if !s.hasTokenClaimsGetter(tokenType) {
				return fmt.Errorf("strategy %s: claims for %q cannot be resolved; set GetTokenClaims or the per-type getter", s.Name, tokenType)
			}
		}
	}

	return nil
}
