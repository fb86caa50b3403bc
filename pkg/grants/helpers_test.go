// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/userin/pkg/events"
	"github.com/stacklok/userin/pkg/strategy"
)

// memorySigner mints opaque tokens and remembers the claims behind them, so
// tests can mint codes and refresh tokens through the real synthesis path.
type memorySigner struct {
	mu     sync.Mutex
	n      int
	claims map[string]jwt.MapClaims
}

func newMemorySigner() *memorySigner {
	return &memorySigner{claims: make(map[string]jwt.MapClaims)}
}

func (m *memorySigner) generate(_ context.Context, tokenType string, claims jwt.MapClaims) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	token := fmt.Sprintf("%s-%d", tokenType, m.n)
	m.claims[token] = claims
	return token, nil
}

func (m *memorySigner) lookup(_ context.Context, _, token string) (jwt.MapClaims, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claims[token], nil
}

// testUsers are the accounts the fixture strategy authenticates.
var testUsers = map[string]*strategy.EndUser{
	"nic@x.com": {ID: "user-1"},
	"bob@x.com": {ID: "user-2", ClientIDs: []string{"another_app"}},
}

// openIDStrategy is the fixture strategy for the full OIDC surface.
func openIDStrategy(signer *memorySigner) *strategy.Strategy {
	return &strategy.Strategy{
		Name:  "mock",
		Modes: []string{strategy.ModeOpenID},
		GetConfig: func(_ context.Context) (*strategy.Config, error) {
			return &strategy.Config{Issuer: "https://auth.example.com"}, nil
		},
		GetClient: func(_ context.Context, clientID, clientSecret string) (*strategy.Client, error) {
			if clientID != "app123" {
				return nil, nil
			}
			if clientSecret != "" && clientSecret != "s3cret" {
				return nil, nil
			}
			return &strategy.Client{
				ClientID:     "app123",
				ClientSecret: "s3cret",
				Scopes:       []string{"openid", "profile", "offline_access"},
				Audiences:    []string{"https://api.example.com"},
			}, nil
		},
		GetEndUser: func(_ context.Context, _, username, password string) (*strategy.EndUser, error) {
			if password != "123456" {
				return nil, nil
			}
			return testUsers[username], nil
		},
		GetIdentityClaims: func(_ context.Context, _, userID string, _ []string) (*strategy.IdentityClaims, error) {
			return &strategy.IdentityClaims{
				ID:     userID,
				Claims: jwt.MapClaims{"email": "nic@x.com"},
			}, nil
		},
		GenerateToken:  signer.generate,
		GetTokenClaims: signer.lookup,
	}
}

func newOpenIDStore(t *testing.T) (*events.Store, *memorySigner) {
	t.Helper()
	signer := newMemorySigner()
	store, err := events.New(openIDStrategy(signer))
	require.NoError(t, err)
	return store, signer
}

// mintCode issues an authorization code through the synthesized generator.
func mintCode(t *testing.T, store *events.Store, scopes []string, extra jwt.MapClaims) string {
	t.Helper()
	errs, v := store.Exec(context.Background(), events.GenerateAuthorizationCode, events.Payload{
		"client_id": "app123",
		"user_id":   "user-1",
		"audiences": []string{"https://api.example.com"},
		"scopes":    scopes,
		"extra":     extra,
	})
	require.Empty(t, errs)
	return v.(*events.GeneratedToken).Token
}

// mintRefreshToken issues a refresh token through the synthesized generator.
func mintRefreshToken(t *testing.T, store *events.Store, scopes []string) string {
	t.Helper()
	errs, v := store.Exec(context.Background(), events.GenerateRefreshToken, events.Payload{
		"client_id": "app123",
		"user_id":   "user-1",
		"audiences": []string{"https://api.example.com"},
		"scopes":    scopes,
	})
	require.Empty(t, errs)
	return v.(*events.GeneratedToken).Token
}
