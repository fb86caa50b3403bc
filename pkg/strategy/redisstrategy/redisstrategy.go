// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package redisstrategy persists token state in Redis: tokens are opaque
// identifiers whose claims live as JSON under prefixed keys, expiring with
// the token's own exp claim. It covers the token primitives of a strategy;
// client and user lookups stay with the host, which composes a TokenStore
// into its own record via Bind.
package redisstrategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stacklok/userin/pkg/strategy"
)

// DefaultPrefix namespaces token keys when none is configured.
const DefaultPrefix = "userin"

// TokenStore implements the token primitives over a Redis client.
type TokenStore struct {
	client *redis.Client
	prefix string
}

// New builds a TokenStore. The prefix namespaces every key, letting several
// instances share one Redis database.
func New(client *redis.Client, prefix string) *TokenStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &TokenStore{client: client, prefix: prefix}
}

// Bind installs the token primitives on a strategy record.
func (s *TokenStore) Bind(strat *strategy.Strategy) {
	strat.GenerateToken = s.GenerateToken
	strat.GetTokenClaims = s.GetTokenClaims
	strat.DeleteRefreshToken = s.DeleteRefreshToken
}

func (s *TokenStore) key(tokenType, token string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, tokenType, token)
}

// GenerateToken mints an opaque token and persists its claims. The key's TTL
// follows the exp claim, so Redis retires the record with the token.
func (s *TokenStore) GenerateToken(ctx context.Context, tokenType string, claims jwt.MapClaims) (string, error) {
	data, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s claims: %w", tokenType, err)
	}

	var ttl time.Duration
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		ttl = time.Until(exp.Time)
		if ttl <= 0 {
			return "", fmt.Errorf("refusing to store an already expired %s", tokenType)
		}
	}

	token := uuid.NewString()
	if err := s.client.Set(ctx, s.key(tokenType, token), data, ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store %s claims: %w", tokenType, err)
	}
	return token, nil
}

// GetTokenClaims resolves an opaque token back to its claims. An unknown or
// already-expired token is nil claims, not an error.
func (s *TokenStore) GetTokenClaims(ctx context.Context, tokenType, token string) (jwt.MapClaims, error) {
	data, err := s.client.Get(ctx, s.key(tokenType, token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s claims: %w", tokenType, err)
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, fmt.Errorf("failed to decode %s claims: %w", tokenType, err)
	}
	return claims, nil
}

// DeleteRefreshToken drops a refresh token's claims. Deleting a token that
// no longer exists is a no-op.
func (s *TokenStore) DeleteRefreshToken(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key("refresh_token", token)).Err(); err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return nil
}
