// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events implements the engine's event-handler registry. Every data
// operation the engine performs is dispatched by name to an ordered handler
// pipeline; the base of each pipeline is a strategy primitive, and plugins
// may append further handlers that augment the base result. The registry
// also synthesizes composite operations (generate_access_token and friends)
// out of the primitives the strategy supplies.
package events

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stacklok/userin/pkg/oautherr"
)

// Name identifies an event the registry can dispatch.
type Name string

// Primitive events, implemented by the host strategy.
const (
	GetConfig                  Name = "get_config"
	GetClient                  Name = "get_client"
	GetServiceAccount          Name = "get_service_account"
	GetEndUser                 Name = "get_end_user"
	CreateEndUser              Name = "create_end_user"
	GetFIPUser                 Name = "get_fip_user"
	CreateFIPUser              Name = "create_fip_user"
	GetIdentityClaims          Name = "get_identity_claims"
	GenerateToken              Name = "generate_token"
	GetTokenClaims             Name = "get_token_claims"
	GetAccessTokenClaims       Name = "get_access_token_claims"
	GetIDTokenClaims           Name = "get_id_token_claims"
	GetRefreshTokenClaims      Name = "get_refresh_token_claims"
	GetAuthorizationCodeClaims Name = "get_authorization_code_claims"
	DeleteRefreshToken         Name = "delete_refresh_token"
	GetJWKS                    Name = "get_jwks"
)

// Composite events, synthesized by the registry from primitives when the
// strategy does not provide them directly.
const (
	GenerateAccessToken       Name = "generate_access_token"
	GenerateRefreshToken      Name = "generate_refresh_token"
	GenerateIDToken           Name = "generate_id_token"
	GenerateAuthorizationCode Name = "generate_authorization_code"
	ProcessFIPAuthResponse    Name = "process_fip_auth_response"
)

// Token types used with generate_token and get_token_claims.
const (
	TokenTypeAccessToken  = "access_token"
	TokenTypeRefreshToken = "refresh_token"
	TokenTypeIDToken      = "id_token"
	TokenTypeCode         = "code"
)

var knownNames = map[Name]struct{}{
	GetConfig:                  {},
	GetClient:                  {},
	GetServiceAccount:          {},
	GetEndUser:                 {},
	CreateEndUser:              {},
	GetFIPUser:                 {},
	CreateFIPUser:              {},
	GetIdentityClaims:          {},
	GenerateToken:              {},
	GetTokenClaims:             {},
	GetAccessTokenClaims:       {},
	GetIDTokenClaims:           {},
	GetRefreshTokenClaims:      {},
	GetAuthorizationCodeClaims: {},
	DeleteRefreshToken:         {},
	GetJWKS:                    {},
	GenerateAccessToken:        {},
	GenerateRefreshToken:       {},
	GenerateIDToken:            {},
	GenerateAuthorizationCode:  {},
	ProcessFIPAuthResponse:     {},
}

// IsKnown reports whether name is an event the registry dispatches.
func IsKnown(name Name) bool {
	_, ok := knownNames[name]
	return ok
}

// Payload carries an event's named inputs.
type Payload map[string]any

// String reads a string field, tolerating absent or non-string values.
func (p Payload) String(key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}

// Strings reads a string-list field.
func (p Payload) Strings(key string) []string {
	if p == nil {
		return nil
	}
	list, _ := p[key].([]string)
	return list
}

// Claims reads a claims field.
func (p Payload) Claims(key string) jwt.MapClaims {
	if p == nil {
		return nil
	}
	claims, _ := p[key].(jwt.MapClaims)
	return claims
}

// Func is one link in an event's handler chain. root is the previous link's
// non-nil result, or nil for the first link. A Func may return an
// *oautherr.Error (or oautherr.Errors) to control how the failure is
// categorized; any other error is reported as internal_server_error.
type Func func(ctx context.Context, root any, p Payload) (any, error)

// Handler is the ordered handler pipeline for one event name. Handlers are
// appended, never removed, for the lifetime of the store.
type Handler struct {
	name  Name
	chain []Func
}

// Name returns the event name the handler serves.
func (h *Handler) Name() Name {
	return h.name
}

// append adds a link to the end of the chain.
func (h *Handler) append(fn Func) {
	h.chain = append(h.chain, fn)
}

// Exec runs the chain in registration order, threading each link's non-nil
// result into the next link's root. It returns the error list and the final
// result; it never panics across the call boundary.
func (h *Handler) Exec(ctx context.Context, p Payload) (errs []*oautherr.Error, result any) {
	defer func() {
		if r := recover(); r != nil {
			errs = oautherr.List(oautherr.NewInternalServerError(
				fmt.Sprintf("The '%s' handler panicked: %v", h.name, r)))
			result = nil
		}
	}()

	var root any
	for _, fn := range h.chain {
		out, err := fn(ctx, root, p)
		if err != nil {
			return oautherr.Unpack(err), nil
		}
		if out != nil {
			root = out
		}
	}
	return nil, root
}

// GeneratedToken is the result of the synthesized generate_* events.
type GeneratedToken struct {
	// Token is the serialized token, as produced by the generate_token
	// primitive.
	Token string `json:"token"`

	// ExpiresIn is the token lifespan in seconds.
	ExpiresIn int64 `json:"expires_in"`
}
