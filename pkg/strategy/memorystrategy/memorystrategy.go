// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package memorystrategy provides a complete in-memory strategy: clients,
// end users and federated users held in maps, tokens minted as EdDSA-signed
// JWTs with the public key exposed as a JWKS. It backs the package tests and
// serves as a starting point for hosts writing their own strategy.
package memorystrategy

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/stacklok/userin/pkg/strategy"
)

// Options configures a Store.
type Options struct {
	// Issuer becomes the "iss" claim of minted tokens.
	Issuer string

	// Modes the strategy declares. Defaults to openid.
	Modes []string

	// Expiry overrides the default per-type token lifespans.
	Expiry strategy.TokenExpiry

	// ScopesSupported and ClaimsSupported feed the discovery document.
	ScopesSupported []string
	ClaimsSupported []string
}

type userRecord struct {
	user     strategy.EndUser
	password string
	profile  jwt.MapClaims
}

// Store is the in-memory backing state. Safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	opts    Options
	signKey ed25519.PrivateKey
	keyID   string

	clients  map[string]*strategy.Client
	users    map[string]*userRecord       // keyed by username
	fipUsers map[string]*strategy.EndUser // keyed by provider:providerUserID
	refresh  map[string]bool              // active refresh token jtis
}

// New builds a Store with a fresh signing key.
func New(opts Options) (*Store, error) {
	if len(opts.Modes) == 0 {
		opts.Modes = []string{strategy.ModeOpenID}
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return &Store{
		opts:     opts,
		signKey:  priv,
		keyID:    uuid.NewString(),
		clients:  make(map[string]*strategy.Client),
		users:    make(map[string]*userRecord),
		fipUsers: make(map[string]*strategy.EndUser),
		refresh:  make(map[string]bool),
	}, nil
}

// AddClient registers a service account.
func (s *Store) AddClient(client *strategy.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ClientID] = client
}

// AddUser registers an end user with its password and identity claims.
func (s *Store) AddUser(username, password string, user *strategy.EndUser, profile jwt.MapClaims) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = &userRecord{user: *user, password: password, profile: profile}
}

// Strategy assembles the capability record over this store.
func (s *Store) Strategy() *strategy.Strategy {
	return &strategy.Strategy{
		Name:            "memory",
		Modes:           s.opts.Modes,
		ScopesSupported: s.opts.ScopesSupported,
		ClaimsSupported: s.opts.ClaimsSupported,

		GetConfig:          s.getConfig,
		GetClient:          s.getClient,
		GetEndUser:         s.getEndUser,
		CreateEndUser:      s.createEndUser,
		GetFIPUser:         s.getFIPUser,
		CreateFIPUser:      s.createFIPUser,
		GetIdentityClaims:  s.getIdentityClaims,
		GenerateToken:      s.generateToken,
		GetTokenClaims:     s.getTokenClaims,
		DeleteRefreshToken: s.deleteRefreshToken,
		GetJWKS:            s.getJWKS,
	}
}

func (s *Store) getConfig(_ context.Context) (*strategy.Config, error) {
	return &strategy.Config{Issuer: s.opts.Issuer, Expiry: s.opts.Expiry}, nil
}

func (s *Store) getClient(_ context.Context, clientID, clientSecret string) (*strategy.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[clientID]
	if !ok {
		return nil, nil
	}
	if clientSecret != "" && clientSecret != client.ClientSecret {
		return nil, nil
	}
	return client, nil
}

func (s *Store) getEndUser(_ context.Context, _, username, password string) (*strategy.EndUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[username]
	if !ok || rec.password != password {
		return nil, nil
	}
	user := rec.user
	return &user, nil
}

func (s *Store) createEndUser(_ context.Context, _, username, password string) (*strategy.EndUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[username]; exists {
		return nil, fmt.Errorf("user %q already exists", username)
	}
	rec := &userRecord{
		user:     strategy.EndUser{ID: uuid.NewString()},
		password: password,
		profile:  jwt.MapClaims{"email": username},
	}
	s.users[username] = rec
	user := rec.user
	return &user, nil
}

func (s *Store) getFIPUser(_ context.Context, provider string, profile *strategy.FIPProfile) (*strategy.EndUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fipUsers[provider+":"+profile.ID], nil
}

func (s *Store) createFIPUser(_ context.Context, user *strategy.NewFIPUser) (*strategy.EndUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := &strategy.EndUser{ID: uuid.NewString()}
	s.fipUsers[user.Provider+":"+user.ProviderUserID] = created
	return created, nil
}

func (s *Store) getIdentityClaims(_ context.Context, _, userID string, _ []string) (*strategy.IdentityClaims, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.users {
		if rec.user.ID == userID {
			return &strategy.IdentityClaims{
				ID:        userID,
				ClientIDs: rec.user.ClientIDs,
				Claims:    rec.profile,
			}, nil
		}
	}
	// Federated users have no stored profile beyond their subject.
	for _, user := range s.fipUsers {
		if user.ID == userID {
			return &strategy.IdentityClaims{ID: userID, ClientIDs: user.ClientIDs}, nil
		}
	}
	return nil, nil
}

func (s *Store) generateToken(_ context.Context, tokenType string, claims jwt.MapClaims) (string, error) {
	jti := uuid.NewString()
	signed := jwt.MapClaims{"jti": jti, "token_use": tokenType}
	for k, v := range claims {
		signed[k] = v
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, signed)
	tok.Header["kid"] = s.keyID
	token, err := tok.SignedString(s.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", tokenType, err)
	}

	if tokenType == "refresh_token" {
		s.mu.Lock()
		s.refresh[jti] = true
		s.mu.Unlock()
	}
	return token, nil
}

// getTokenClaims verifies the signature and the token_use marker. Expiry is
// deliberately not validated here; the engine re-checks it on every read and
// owns the resulting error.
func (s *Store) getTokenClaims(_ context.Context, tokenType, token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return s.signKey.Public(), nil
	}, jwt.WithValidMethods([]string{"EdDSA"}), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, nil //nolint:nilerr // an unverifiable token is an unknown token
	}
	if use, _ := claims["token_use"].(string); use != tokenType {
		return nil, nil
	}
	if tokenType == "refresh_token" {
		jti, _ := claims["jti"].(string)
		s.mu.RLock()
		active := s.refresh[jti]
		s.mu.RUnlock()
		if !active {
			return nil, nil
		}
	}
	return claims, nil
}

func (s *Store) deleteRefreshToken(_ context.Context, token string) error {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return s.signKey.Public(), nil
	}, jwt.WithValidMethods([]string{"EdDSA"}), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil // deleting an unknown token is a no-op
	}
	jti, _ := claims["jti"].(string)
	s.mu.Lock()
	delete(s.refresh, jti)
	s.mu.Unlock()
	return nil
}

func (s *Store) getJWKS(_ context.Context) (*jose.JSONWebKeySet, error) {
	return &jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       s.signKey.Public(),
		KeyID:     s.keyID,
		Algorithm: "EdDSA",
		Use:       "sig",
	}}}, nil
}
