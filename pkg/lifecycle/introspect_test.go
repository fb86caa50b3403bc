// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/userin/pkg/events"
	"github.com/stacklok/userin/pkg/oautherr"
)

func TestIntrospect_ActiveAccessToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	token := f.mint(t, events.GenerateAccessToken, "app123", "user-1", []string{"openid", "profile"})

	errs, resp := Introspect(context.Background(), f.store, &IntrospectRequest{
		ClientID:      "app123",
		Token:         token,
		TokenTypeHint: "access_token",
	})
	require.Empty(t, errs)
	require.NotNil(t, resp)

	assert.True(t, resp.Active)
	assert.Equal(t, "https://auth.example.com", resp.Issuer)
	assert.Equal(t, "user-1", resp.Subject)
	assert.Equal(t, "https://api.example.com", resp.Audience)
	assert.Equal(t, "app123", resp.ClientID)
	assert.Equal(t, "openid profile", resp.Scope)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.NotZero(t, resp.ExpiresAt)
	assert.NotZero(t, resp.IssuedAt)
}

func TestIntrospect_RefreshTokenHint(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	token := f.mint(t, events.GenerateRefreshToken, "app123", "user-1", []string{"offline_access"})

	errs, resp := Introspect(context.Background(), f.store, &IntrospectRequest{
		ClientID:      "app123",
		Token:         token,
		TokenTypeHint: "refresh_token",
	})
	require.Empty(t, errs)
	assert.True(t, resp.Active)
	assert.Equal(t, "offline_access", resp.Scope)
}

func TestIntrospect_Inactive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  func(t *testing.T, f *testFixture) *IntrospectRequest
	}{
		{
			name: "unknown token",
			req: func(_ *testing.T, _ *testFixture) *IntrospectRequest {
				return &IntrospectRequest{ClientID: "app123", Token: "nope", TokenTypeHint: "access_token"}
			},
		},
		{
			name: "unknown client",
			req: func(t *testing.T, f *testFixture) *IntrospectRequest {
				token := f.mint(t, events.GenerateAccessToken, "app123", "user-1", []string{"profile"})
				return &IntrospectRequest{ClientID: "ghost", Token: token, TokenTypeHint: "access_token"}
			},
		},
		{
			name: "expired token",
			req: func(t *testing.T, f *testFixture) *IntrospectRequest {
				token := f.mint(t, events.GenerateAccessToken, "app123", "user-1", []string{"profile"})
				f.signer.expire(token)
				return &IntrospectRequest{ClientID: "app123", Token: token, TokenTypeHint: "access_token"}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)

			errs, resp := Introspect(context.Background(), f.store, tc.req(t, f))
			require.Empty(t, errs)
			require.NotNil(t, resp)
			assert.False(t, resp.Active)
			assert.Empty(t, resp.Scope)
			assert.Empty(t, resp.TokenType)
		})
	}
}

func TestIntrospect_PrivateClient(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	token := f.mint(t, events.GenerateAccessToken, "app456", "user-1", []string{"profile"})

	errs, _ := Introspect(context.Background(), f.store, &IntrospectRequest{
		ClientID:      "app456",
		Token:         token,
		TokenTypeHint: "access_token",
	})
	require.NotEmpty(t, errs)
	assert.Equal(t, "Missing required 'client_secret'", errs[0].Message)

	errs, _ = Introspect(context.Background(), f.store, &IntrospectRequest{
		ClientID:      "app456",
		ClientSecret:  "wrong",
		Token:         token,
		TokenTypeHint: "access_token",
	})
	require.NotEmpty(t, errs)
	assert.Equal(t, oautherr.CategoryInvalidClient, errs[0].Category)

	errs, resp := Introspect(context.Background(), f.store, &IntrospectRequest{
		ClientID:      "app456",
		ClientSecret:  "s3cret",
		Token:         token,
		TokenTypeHint: "access_token",
	})
	require.Empty(t, errs)
	assert.True(t, resp.Active)
}

func TestIntrospect_ClientIDMismatch(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	token := f.mint(t, events.GenerateAccessToken, "app123", "user-1", []string{"profile"})

	errs, _ := Introspect(context.Background(), f.store, &IntrospectRequest{
		ClientID:      "app456",
		ClientSecret:  "s3cret",
		Token:         token,
		TokenTypeHint: "access_token",
	})
	require.NotEmpty(t, errs)
	assert.Equal(t, oautherr.CategoryInvalidClient, errs[0].Category)
	assert.Equal(t, "Unauthorized access", errs[0].Message)
}

func TestIntrospect_InputValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	errs, _ := Introspect(context.Background(), f.store, &IntrospectRequest{ClientID: "app123", Token: "x"})
	require.NotEmpty(t, errs)
	assert.Equal(t, "Missing required 'token_type_hint'", errs[0].Message)

	errs, _ = Introspect(context.Background(), f.store, &IntrospectRequest{
		ClientID: "app123", Token: "x", TokenTypeHint: "code",
	})
	require.NotEmpty(t, errs)
	assert.Equal(t, oautherr.CategoryInvalidRequest, errs[0].Category)
	assert.Equal(t, "token_type_hint 'code' is not supported", errs[0].Message)

	errs, _ = Introspect(context.Background(), f.store, &IntrospectRequest{
		Token: "x", TokenTypeHint: "access_token",
	})
	require.NotEmpty(t, errs)
	assert.Equal(t, "Missing required 'client_id'", errs[0].Message)
}
