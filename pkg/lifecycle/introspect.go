// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/userin/pkg/events"
	"github.com/stacklok/userin/pkg/logger"
	"github.com/stacklok/userin/pkg/oauth2util"
	"github.com/stacklok/userin/pkg/oautherr"
	"github.com/stacklok/userin/pkg/strategy"
)

// claimsEventForHint maps a token_type_hint to the event resolving its
// claims.
var claimsEventForHint = map[string]events.Name{
	events.TokenTypeAccessToken:  events.GetAccessTokenClaims,
	events.TokenTypeRefreshToken: events.GetRefreshTokenClaims,
	events.TokenTypeIDToken:      events.GetIDTokenClaims,
}

// IntrospectRequest is the introspection endpoint payload.
type IntrospectRequest struct {
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret,omitempty"`
	Token         string `json:"token"`
	TokenTypeHint string `json:"token_type_hint"`
}

// IntrospectResponse is the RFC 7662 projection of a token's claims. An
// inactive token carries nothing but active:false, so claim fields leak
// nothing about tokens the caller does not hold.
type IntrospectResponse struct {
	Active    bool   `json:"active"`
	Issuer    string `json:"iss,omitempty"`
	Subject   string `json:"sub,omitempty"`
	Audience  string `json:"aud,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Scope     string `json:"scope,omitempty"`
	TokenType string `json:"token_type,omitempty"`
}

var inactive = &IntrospectResponse{Active: false}

// Introspect reports whether a token is active and, when it is, a fixed
// projection of its claims. A token that cannot be resolved degrades to
// active:false rather than an error.
func Introspect(ctx context.Context, store *events.Store, req *IntrospectRequest) ([]*oautherr.Error, *IntrospectResponse) {
	if req == nil || req.TokenTypeHint == "" {
		return missingField("token_type_hint"), nil
	}
	claimsEvent, ok := claimsEventForHint[req.TokenTypeHint]
	if !ok {
		return oautherr.List(oautherr.NewInvalidRequestError(
			fmt.Sprintf("token_type_hint '%s' is not supported", req.TokenTypeHint))), nil
	}

	if errs := requireHandlers(store, events.GetClient, claimsEvent); len(errs) > 0 {
		return errs, nil
	}
	switch {
	case req.ClientID == "":
		return missingField("client_id"), nil
	case req.Token == "":
		return missingField("token"), nil
	}

	// The client and the token's claims have no data dependency; resolve
	// them together.
	var (
		client *strategy.Client
		claims jwt.MapClaims

		clientErrs []*oautherr.Error
		claimsErrs []*oautherr.Error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		client, clientErrs = clientFor(gctx, store, req.ClientID, "")
		return nil
	})
	g.Go(func() error {
		claims, claimsErrs = claimsFor(gctx, store, claimsEvent, req.Token)
		return nil
	})
	_ = g.Wait()

	// A failed or empty lookup on either side never surfaces as an error;
	// the token is simply reported inactive.
	if len(clientErrs) > 0 || len(claimsErrs) > 0 || client == nil || claims == nil {
		logger.Debugw("introspection degraded to inactive",
			"token_type_hint", req.TokenTypeHint,
			"client_found", client != nil,
		)
		return nil, inactive
	}

	if oauth2util.IsPrivateClient(client.AuthMethods) {
		if req.ClientSecret == "" {
			return missingField("client_secret"), nil
		}
		verified, errs := clientFor(ctx, store, req.ClientID, req.ClientSecret)
		if len(errs) > 0 {
			return errs, nil
		}
		if verified == nil {
			return oautherr.List(oautherr.NewInvalidClientError("Invalid client_id or client_secret")), nil
		}
	}

	if err := oauth2util.VerifyClaimsNotExpired(claims); err != nil {
		return nil, inactive
	}
	if claimsClientID := oauth2util.ClaimString(claims, "client_id"); claimsClientID != "" && claimsClientID != req.ClientID {
		return oautherr.List(oautherr.NewInvalidClientError("Unauthorized access")), nil
	}

	resp := &IntrospectResponse{
		Active:    true,
		Issuer:    oauth2util.ClaimString(claims, "iss"),
		Subject:   oauth2util.ClaimString(claims, "sub"),
		Audience:  oauth2util.ClaimString(claims, "aud"),
		ClientID:  oauth2util.ClaimString(claims, "client_id"),
		Scope:     oauth2util.ClaimString(claims, "scope"),
		TokenType: "Bearer",
	}
	if exp, ok := oauth2util.ClaimInt64(claims, "exp"); ok {
		resp.ExpiresAt = exp
	}
	if iat, ok := oauth2util.ClaimInt64(claims, "iat"); ok {
		resp.IssuedAt = iat
	}
	return nil, resp
}
