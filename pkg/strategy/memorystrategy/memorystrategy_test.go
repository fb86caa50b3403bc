// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package memorystrategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stacklok/userin/pkg/events"
	"github.com/stacklok/userin/pkg/grants"
	"github.com/stacklok/userin/pkg/lifecycle"
	"github.com/stacklok/userin/pkg/strategy"
)

func newStore(t *testing.T) (*Store, *events.Store) {
	t.Helper()
	s, err := New(Options{
		Issuer:          "https://auth.example.com",
		ScopesSupported: []string{"openid", "profile", "offline_access"},
	})
	require.NoError(t, err)

	s.AddClient(&strategy.Client{
		ClientID:     "app123",
		ClientSecret: "s3cret",
		Scopes:       []string{"openid", "profile", "offline_access"},
		Audiences:    []string{"https://api.example.com"},
	})
	s.AddUser("nic@x.com", "123456",
		&strategy.EndUser{ID: "user-1"},
		jwt.MapClaims{"email": "nic@x.com", "given_name": "Nic"},
	)

	store, err := events.New(s.Strategy())
	require.NoError(t, err)
	return s, store
}

func TestPasswordGrantEndToEnd(t *testing.T) {
	t.Parallel()
	_, store := newStore(t)

	errs, resp := grants.Token(context.Background(), store, &grants.TokenRequest{
		GrantType: grants.GrantTypePassword,
		ClientID:  "app123",
		Username:  "nic@x.com",
		Password:  "123456",
		Scope:     "openid profile offline_access",
	})
	require.Empty(t, errs)
	require.NotNil(t, resp)

	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.IDToken)
	assert.NotEmpty(t, resp.RefreshToken)

	ierrs, info := lifecycle.Introspect(context.Background(), store, &lifecycle.IntrospectRequest{
		ClientID:      "app123",
		ClientSecret:  "s3cret",
		Token:         resp.AccessToken,
		TokenTypeHint: "access_token",
	})
	require.Empty(t, ierrs)
	assert.True(t, info.Active)
	assert.Equal(t, "user-1", info.Subject)
	assert.Equal(t, "https://auth.example.com", info.Issuer)

	uerrs, userinfo := lifecycle.UserInfo(context.Background(), store, "Bearer "+resp.AccessToken)
	require.Empty(t, uerrs)
	assert.Equal(t, "nic@x.com", userinfo["email"])
	assert.Equal(t, "Nic", userinfo["given_name"])
}

func TestRefreshTokenRevocation(t *testing.T) {
	t.Parallel()
	_, store := newStore(t)

	errs, resp := grants.Token(context.Background(), store, &grants.TokenRequest{
		GrantType: grants.GrantTypePassword,
		ClientID:  "app123",
		Username:  "nic@x.com",
		Password:  "123456",
		Scope:     "profile offline_access",
	})
	require.Empty(t, errs)

	// The refresh token exchanges until revoked.
	errs, exchanged := grants.Token(context.Background(), store, &grants.TokenRequest{
		GrantType:    grants.GrantTypeRefreshToken,
		ClientID:     "app123",
		RefreshToken: resp.RefreshToken,
	})
	require.Empty(t, errs)
	assert.Equal(t, "profile offline_access", exchanged.Scope)

	rerrs := lifecycle.Revoke(context.Background(), store, "Bearer "+resp.AccessToken, &lifecycle.RevokeRequest{
		ClientID: "app123",
		Token:    resp.RefreshToken,
	})
	require.Empty(t, rerrs)

	errs, _ = grants.Token(context.Background(), store, &grants.TokenRequest{
		GrantType:    grants.GrantTypeRefreshToken,
		ClientID:     "app123",
		RefreshToken: resp.RefreshToken,
	})
	require.NotEmpty(t, errs)
	assert.Equal(t, "Invalid refresh_token", errs[0].Message)

	// Revoking again stays successful.
	rerrs = lifecycle.Revoke(context.Background(), store, "Bearer "+resp.AccessToken, &lifecycle.RevokeRequest{
		ClientID: "app123",
		Token:    resp.RefreshToken,
	})
	assert.Empty(t, rerrs)
}

func TestTokenTypeConfusionRejected(t *testing.T) {
	t.Parallel()
	s, store := newStore(t)

	errs, resp := grants.Token(context.Background(), store, &grants.TokenRequest{
		GrantType: grants.GrantTypePassword,
		ClientID:  "app123",
		Username:  "nic@x.com",
		Password:  "123456",
		Scope:     "profile",
	})
	require.Empty(t, errs)

	// An access token presented as a refresh token resolves to nothing.
	claims, err := s.getTokenClaims(context.Background(), "refresh_token", resp.AccessToken)
	require.NoError(t, err)
	assert.Nil(t, claims)
}

func TestJWKSVerifiesIssuedTokens(t *testing.T) {
	t.Parallel()
	s, store := newStore(t)

	errs, resp := grants.Token(context.Background(), store, &grants.TokenRequest{
		GrantType: grants.GrantTypePassword,
		ClientID:  "app123",
		Username:  "nic@x.com",
		Password:  "123456",
		Scope:     "profile",
	})
	require.Empty(t, errs)

	jwks, err := s.getJWKS(context.Background())
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 1)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(resp.AccessToken, claims, func(tok *jwt.Token) (any, error) {
		kid, _ := tok.Header["kid"].(string)
		keys := jwks.Key(kid)
		require.Len(t, keys, 1)
		return keys[0].Key, nil
	}, jwt.WithValidMethods([]string{"EdDSA"}))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims["sub"])
	assert.Equal(t, "https://auth.example.com", claims["iss"])
}

func TestCreateEndUser(t *testing.T) {
	t.Parallel()
	s, _ := newStore(t)

	created, err := s.createEndUser(context.Background(), "app123", "new@x.com", "pw")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	// Duplicate signup is refused.
	_, err = s.createEndUser(context.Background(), "app123", "new@x.com", "pw")
	require.Error(t, err)

	// The new user can log in.
	user, err := s.getEndUser(context.Background(), "app123", "new@x.com", "pw")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, created.ID, user.ID)
}
