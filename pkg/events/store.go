// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stacklok/userin/pkg/oautherr"
	"github.com/stacklok/userin/pkg/strategy"
)

// Store maps event names to handler pipelines. A Store is created per engine
// instance from a strategy and holds no request state; once plugin
// registration is done it is read-only and safe for concurrent dispatch.
type Store struct {
	handlers    map[Name]*Handler
	strategyRef *strategy.Strategy
}

// New builds a Store from a strategy: it validates the strategy, registers
// every primitive the strategy implements, then synthesizes the composite
// events for names still unset.
func New(strat *strategy.Strategy) (*Store, error) {
	if err := strat.Validate(); err != nil {
		return nil, fmt.Errorf("invalid strategy: %w", err)
	}

	s := &Store{
		handlers:    make(map[Name]*Handler),
		strategyRef: strat,
	}
	s.registerPrimitives(strat)
	s.synthesize(strat)
	return s, nil
}

// NewEmpty returns a store with no handlers registered, for hosts that
// assemble pipelines handler-by-handler through Register instead of from a
// strategy record. No composite synthesis is performed.
func NewEmpty() *Store {
	return &Store{handlers: make(map[Name]*Handler)}
}

// Strategy returns the strategy the store was built from.
func (s *Store) Strategy() *strategy.Strategy {
	return s.strategyRef
}

// Register appends a handler to the named event's pipeline, creating the
// pipeline if needed. Unknown event names are rejected. Registering while
// requests are in flight is not supported; gate endpoint availability around
// plugin installation in the surrounding server.
func (s *Store) Register(name Name, fn Func) error {
	if !IsKnown(name) {
		return fmt.Errorf("unknown event %q", name)
	}
	if fn == nil {
		return fmt.Errorf("event %q: handler is required", name)
	}
	h, ok := s.handlers[name]
	if !ok {
		h = &Handler{name: name}
		s.handlers[name] = h
	}
	h.append(fn)
	return nil
}

// Has reports whether at least one handler is registered for the event.
func (s *Store) Has(name Name) bool {
	_, ok := s.handlers[name]
	return ok
}

// Handler returns the pipeline for an event, or nil.
func (s *Store) Handler(name Name) *Handler {
	return s.handlers[name]
}

// Exec dispatches an event. A missing handler is reported through the same
// error channel as any other failure.
func (s *Store) Exec(ctx context.Context, name Name, p Payload) ([]*oautherr.Error, any) {
	h, ok := s.handlers[name]
	if !ok {
		return oautherr.List(oautherr.NewInternalServerError(
			fmt.Sprintf("Missing '%s' handler", name))), nil
	}
	return h.Exec(ctx, p)
}

// registerPrimitives bulk-registers every primitive the strategy implements.
// The typed strategy fields are adapted to the uniform Func signature; a nil
// typed result is returned as an untyped nil so chaining and presence checks
// behave.
func (s *Store) registerPrimitives(strat *strategy.Strategy) {
	if strat.GetConfig != nil {
		s.mustRegister(GetConfig, func(ctx context.Context, _ any, _ Payload) (any, error) {
			cfg, err := strat.GetConfig(ctx)
			if err != nil || cfg == nil {
				return nil, err
			}
			return cfg, nil
		})
	}
	if strat.GetClient != nil {
		s.mustRegister(GetClient, clientLookupFunc(strat.GetClient))
	}
	if strat.GetServiceAccount != nil {
		s.mustRegister(GetServiceAccount, clientLookupFunc(strat.GetServiceAccount))
	}
	if strat.GetEndUser != nil {
		s.mustRegister(GetEndUser, func(ctx context.Context, _ any, p Payload) (any, error) {
			user, err := strat.GetEndUser(ctx, p.String("client_id"), p.String("username"), p.String("password"))
			if err != nil || user == nil {
				return nil, err
			}
			return user, nil
		})
	}
	if strat.CreateEndUser != nil {
		s.mustRegister(CreateEndUser, func(ctx context.Context, _ any, p Payload) (any, error) {
			user, err := strat.CreateEndUser(ctx, p.String("client_id"), p.String("username"), p.String("password"))
			if err != nil || user == nil {
				return nil, err
			}
			return user, nil
		})
	}
	if strat.GetFIPUser != nil {
		s.mustRegister(GetFIPUser, func(ctx context.Context, _ any, p Payload) (any, error) {
			profile, _ := p["user"].(*strategy.FIPProfile)
			user, err := strat.GetFIPUser(ctx, p.String("provider"), profile)
			if err != nil || user == nil {
				return nil, err
			}
			return user, nil
		})
	}
	if strat.CreateFIPUser != nil {
		s.mustRegister(CreateFIPUser, func(ctx context.Context, _ any, p Payload) (any, error) {
			newUser, _ := p["user"].(*strategy.NewFIPUser)
			user, err := strat.CreateFIPUser(ctx, newUser)
			if err != nil || user == nil {
				return nil, err
			}
			return user, nil
		})
	}
	if strat.GetIdentityClaims != nil {
		s.mustRegister(GetIdentityClaims, func(ctx context.Context, _ any, p Payload) (any, error) {
			identity, err := strat.GetIdentityClaims(ctx, p.String("client_id"), p.String("user_id"), p.Strings("scopes"))
			if err != nil || identity == nil {
				return nil, err
			}
			return identity, nil
		})
	}
	if strat.GenerateToken != nil {
		s.mustRegister(GenerateToken, func(ctx context.Context, _ any, p Payload) (any, error) {
			token, err := strat.GenerateToken(ctx, p.String("type"), p.Claims("claims"))
			if err != nil || token == "" {
				return nil, err
			}
			return token, nil
		})
	}
	if strat.GetTokenClaims != nil {
		s.mustRegister(GetTokenClaims, func(ctx context.Context, _ any, p Payload) (any, error) {
			claims, err := strat.GetTokenClaims(ctx, p.String("type"), p.String("token"))
			if err != nil || claims == nil {
				return nil, err
			}
			return claims, nil
		})
	}
	if strat.GetAccessTokenClaims != nil {
		s.mustRegister(GetAccessTokenClaims, tokenClaimsFunc(strat.GetAccessTokenClaims))
	}
	if strat.GetIDTokenClaims != nil {
		s.mustRegister(GetIDTokenClaims, tokenClaimsFunc(strat.GetIDTokenClaims))
	}
	if strat.GetRefreshTokenClaims != nil {
		s.mustRegister(GetRefreshTokenClaims, tokenClaimsFunc(strat.GetRefreshTokenClaims))
	}
	if strat.GetAuthorizationCodeClaims != nil {
		s.mustRegister(GetAuthorizationCodeClaims, tokenClaimsFunc(strat.GetAuthorizationCodeClaims))
	}
	if strat.DeleteRefreshToken != nil {
		s.mustRegister(DeleteRefreshToken, func(ctx context.Context, _ any, p Payload) (any, error) {
			return nil, strat.DeleteRefreshToken(ctx, p.String("token"))
		})
	}
	if strat.GetJWKS != nil {
		s.mustRegister(GetJWKS, func(ctx context.Context, _ any, _ Payload) (any, error) {
			jwks, err := strat.GetJWKS(ctx)
			if err != nil || jwks == nil {
				return nil, err
			}
			return jwks, nil
		})
	}
}

// mustRegister registers a handler for a name known at compile time.
func (s *Store) mustRegister(name Name, fn Func) {
	if err := s.Register(name, fn); err != nil {
		panic(err)
	}
}

func clientLookupFunc(lookup func(ctx context.Context, clientID, clientSecret string) (*strategy.Client, error)) Func {
	return func(ctx context.Context, _ any, p Payload) (any, error) {
		client, err := lookup(ctx, p.String("client_id"), p.String("client_secret"))
		if err != nil || client == nil {
			return nil, err
		}
		return client, nil
	}
}

func tokenClaimsFunc(lookup func(ctx context.Context, token string) (jwt.MapClaims, error)) Func {
	return func(ctx context.Context, _ any, p Payload) (any, error) {
		claims, err := lookup(ctx, p.String("token"))
		if err != nil || claims == nil {
			return nil, err
		}
		return claims, nil
	}
}
