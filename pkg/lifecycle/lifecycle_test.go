// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/userin/pkg/events"
	"github.com/stacklok/userin/pkg/oauth2util"
	"github.com/stacklok/userin/pkg/strategy"
)

// memorySigner mints opaque tokens and remembers the claims behind them.
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

// expire rewrites a minted token's exp claim into the past.
func (m *memorySigner) expire(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims[token]["exp"] = int64(1000)
}

// testFixture carries the store plus the side-effect observers the tests
// assert against.
type testFixture struct {
	store   *events.Store
	signer  *memorySigner
	deleted []string
}

// user-1 has no linked clients; user-2 is linked to another_app only.
var identityClientIDs = map[string][]string{
	"user-2": {"another_app"},
}

// newFixture builds a store over two clients: app123 is public, app456 is
// private (client_secret_post).
func newFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{signer: newMemorySigner()}
	strat := &strategy.Strategy{
		Name:  "mock",
		Modes: []string{strategy.ModeOpenID},
		GetConfig: func(_ context.Context) (*strategy.Config, error) {
			return &strategy.Config{Issuer: "https://auth.example.com"}, nil
		},
		GetClient: func(_ context.Context, clientID, clientSecret string) (*strategy.Client, error) {
			if clientSecret != "" && clientSecret != "s3cret" {
				return nil, nil
			}
			switch clientID {
			case "app123":
				return &strategy.Client{ClientID: "app123", Scopes: []string{"openid", "profile"}}, nil
			case "app456":
				return &strategy.Client{
					ClientID:    "app456",
					Scopes:      []string{"openid", "profile"},
					AuthMethods: []string{oauth2util.TokenEndpointAuthMethodClientSecretPost},
				}, nil
			}
			return nil, nil
		},
		GetEndUser: func(_ context.Context, _, username, _ string) (*strategy.EndUser, error) {
			return &strategy.EndUser{ID: username}, nil
		},
		GetIdentityClaims: func(_ context.Context, _, userID string, _ []string) (*strategy.IdentityClaims, error) {
			return &strategy.IdentityClaims{
				ID:        userID,
				ClientIDs: identityClientIDs[userID],
				Claims:    jwt.MapClaims{"email": userID + "@x.com"},
			}, nil
		},
		GenerateToken:  f.signer.generate,
		GetTokenClaims: f.signer.lookup,
		DeleteRefreshToken: func(_ context.Context, token string) error {
			f.deleted = append(f.deleted, token)
			return nil
		},
	}
	store, err := events.New(strat)
	require.NoError(t, err)
	f.store = store
	return f
}

// mint issues a token of the given type for clientID/userID.
func (f *testFixture) mint(t *testing.T, name events.Name, clientID, userID string, scopes []string) string {
	t.Helper()
	errs, v := f.store.Exec(context.Background(), name, events.Payload{
		"client_id": clientID,
		"user_id":   userID,
		"audiences": []string{"https://api.example.com"},
		"scopes":    scopes,
	})
	require.Empty(t, errs)
	return v.(*events.GeneratedToken).Token
}
