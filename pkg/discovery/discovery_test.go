// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/userin/pkg/events"
	"github.com/stacklok/userin/pkg/strategy"
)

func baseStrategy(modes ...string) *strategy.Strategy {
	strat := &strategy.Strategy{
		Name:  "mock",
		Modes: modes,
		GetConfig: func(_ context.Context) (*strategy.Config, error) {
			return &strategy.Config{Issuer: "https://auth.example.com"}, nil
		},
		GenerateToken: func(_ context.Context, tokenType string, _ jwt.MapClaims) (string, error) {
			return tokenType + "-1", nil
		},
		GetTokenClaims: func(_ context.Context, _, _ string) (jwt.MapClaims, error) {
			return nil, nil
		},
		GetEndUser: func(_ context.Context, _, username, _ string) (*strategy.EndUser, error) {
			return &strategy.EndUser{ID: username}, nil
		},
		CreateEndUser: func(_ context.Context, _, username, _ string) (*strategy.EndUser, error) {
			return &strategy.EndUser{ID: username}, nil
		},
		GetFIPUser: func(_ context.Context, _ string, profile *strategy.FIPProfile) (*strategy.EndUser, error) {
			return &strategy.EndUser{ID: profile.ID}, nil
		},
		CreateFIPUser: func(_ context.Context, user *strategy.NewFIPUser) (*strategy.EndUser, error) {
			return &strategy.EndUser{ID: user.ProviderUserID}, nil
		},
		GetClient: func(_ context.Context, clientID, _ string) (*strategy.Client, error) {
			return &strategy.Client{ClientID: clientID}, nil
		},
		GetIdentityClaims: func(_ context.Context, _, userID string, _ []string) (*strategy.IdentityClaims, error) {
			return &strategy.IdentityClaims{ID: userID}, nil
		},
		ScopesSupported: []string{"openid", "profile", "offline_access"},
		ClaimsSupported: []string{"sub", "email"},
	}
	return strat
}

func newStore(t *testing.T, strat *strategy.Strategy) *events.Store {
	t.Helper()
	store, err := events.New(strat)
	require.NoError(t, err)
	return store
}

func TestBuild_OpenIDMode(t *testing.T) {
	t.Parallel()
	store := newStore(t, baseStrategy(strategy.ModeOpenID))

	errs, doc := Build(context.Background(), store)
	require.Empty(t, errs)
	require.NotNil(t, doc)

	assert.Equal(t, "https://auth.example.com", doc.Issuer)
	assert.Equal(t, "https://auth.example.com/oauth2/token", doc.TokenEndpoint)
	assert.Equal(t, "https://auth.example.com/oauth2/authorize", doc.AuthorizationEndpoint)
	assert.Equal(t, "https://auth.example.com/oauth2/introspect", doc.IntrospectionEndpoint)
	assert.Equal(t, "https://auth.example.com/oauth2/revoke", doc.RevocationEndpoint)
	assert.Equal(t, "https://auth.example.com/oauth2/userinfo", doc.UserinfoEndpoint)

	assert.Equal(t, []string{
		"refresh_token", "authorization_code", "password", "client_credentials",
	}, doc.GrantTypesSupported)
	assert.Equal(t, []string{
		"code", "token", "id_token",
		"code token", "code id_token", "token id_token",
		"code token id_token",
	}, doc.ResponseTypesSupported)
	assert.Equal(t, []string{"plain", "S256"}, doc.CodeChallengeMethodsSupported)
	assert.Equal(t, []string{"client_secret_post"}, doc.TokenEndpointAuthMethodsSupported)
	assert.Equal(t, []string{"openid", "profile", "offline_access"}, doc.ScopesSupported)
	assert.Equal(t, []string{"sub", "email"}, doc.ClaimsSupported)

	// No get_jwks handler registered, no jwks_uri advertised.
	assert.Empty(t, doc.JWKSURI)
}

func TestBuild_JWKSURIRequiresHandler(t *testing.T) {
	t.Parallel()
	strat := baseStrategy(strategy.ModeOpenID)
	strat.GetJWKS = func(_ context.Context) (*jose.JSONWebKeySet, error) {
		return &jose.JSONWebKeySet{}, nil
	}
	store := newStore(t, strat)

	errs, doc := Build(context.Background(), store)
	require.Empty(t, errs)
	assert.Equal(t, "https://auth.example.com/.well-known/jwks.json", doc.JWKSURI)
}

func TestBuild_FIPOnlyMode(t *testing.T) {
	t.Parallel()
	store := newStore(t, baseStrategy(strategy.ModeLoginSignupFIP))

	errs, doc := Build(context.Background(), store)
	require.Empty(t, errs)

	assert.Equal(t, []string{"refresh_token", "authorization_code"}, doc.GrantTypesSupported)
	assert.Equal(t, []string{"code"}, doc.ResponseTypesSupported)
	assert.Equal(t, []string{"plain", "S256"}, doc.CodeChallengeMethodsSupported)
	assert.NotEmpty(t, doc.AuthorizationEndpoint)

	// OIDC-only fields stay out of the document.
	assert.Empty(t, doc.UserinfoEndpoint)
	assert.Empty(t, doc.TokenEndpointAuthMethodsSupported)
	assert.Empty(t, doc.ScopesSupported)
	assert.Empty(t, doc.ClaimsSupported)
}

func TestBuild_LoginSignupMode(t *testing.T) {
	t.Parallel()
	store := newStore(t, baseStrategy(strategy.ModeLoginSignup))

	errs, doc := Build(context.Background(), store)
	require.Empty(t, errs)

	assert.Equal(t, []string{"refresh_token"}, doc.GrantTypesSupported)
	assert.Empty(t, doc.ResponseTypesSupported)
	assert.Empty(t, doc.CodeChallengeMethodsSupported)
	assert.Empty(t, doc.AuthorizationEndpoint)
}

func TestBuild_TrailingIssuerSlash(t *testing.T) {
	t.Parallel()
	strat := baseStrategy(strategy.ModeLoginSignup)
	strat.GetConfig = func(_ context.Context) (*strategy.Config, error) {
		return &strategy.Config{Issuer: "https://auth.example.com/"}, nil
	}
	store := newStore(t, strat)

	errs, doc := Build(context.Background(), store)
	require.Empty(t, errs)
	assert.Equal(t, "https://auth.example.com/oauth2/token", doc.TokenEndpoint)
}
