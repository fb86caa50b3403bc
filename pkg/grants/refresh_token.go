// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"

	"github.com/stacklok/userin/pkg/events"
	"github.com/stacklok/userin/pkg/oauth2util"
	"github.com/stacklok/userin/pkg/oautherr"
	"github.com/stacklok/userin/pkg/strategy"
)

// RefreshTokenRequest is the payload of a refresh_token exchange.
type RefreshTokenRequest struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// RefreshToken exchanges a refresh token for a fresh access token. The
// issued scope set is inherited from the refresh token's own claims — a
// caller can never widen scope through a refresh request — and a new
// refresh_token is never issued.
func RefreshToken(ctx context.Context, store *events.Store, req *RefreshTokenRequest) ([]*oautherr.Error, *TokenResponse) {
	if errs := requireHandlers(store,
		events.GetRefreshTokenClaims,
		events.GetClient,
		events.GenerateAccessToken,
		events.GetConfig,
	); errs != nil {
		return errs, nil
	}

	if req == nil || req.RefreshToken == "" {
		return missingField("refresh_token"), nil
	}

	claims, errs := claimsFor(ctx, store, events.GetRefreshTokenClaims, req.RefreshToken)
	if errs != nil {
		return errs, nil
	}
	if claims == nil {
		return oautherr.List(oautherr.NewInvalidTokenError("Invalid refresh_token")), nil
	}
	if err := oauth2util.VerifyClaimsNotExpired(claims); err != nil {
		return oautherr.List(err), nil
	}

	clientID := req.ClientID
	if claimClientID := oauth2util.ClaimString(claims, "client_id"); claimClientID != "" {
		if claimClientID != req.ClientID {
			return oautherr.List(oautherr.NewInvalidClientError("Unauthorized access")), nil
		}
		clientID = claimClientID
	}

	// Scope is inherited from the refresh token, never from the request.
	scopes := oauth2util.ParseScopes(oauth2util.ClaimString(claims, "scope"))
	if oauth2util.HasScope(scopes, oauth2util.ScopeOpenID) {
		if errs := requireHandlers(store, events.GenerateIDToken); errs != nil {
			return errs, nil
		}
	}

	clientErrs, v := store.Exec(ctx, events.GetClient, events.Payload{
		"client_id":     clientID,
		"client_secret": req.ClientSecret,
	})
	if len(clientErrs) > 0 {
		return oautherr.Prefix("Failed to retrieve client", clientErrs), nil
	}
	client, _ := v.(*strategy.Client)
	if client == nil {
		return oautherr.List(oautherr.NewInvalidClientError("Invalid client_id")), nil
	}
	if err := oauth2util.VerifyScopes(scopes, client.Scopes); err != nil {
		return oautherr.List(err), nil
	}

	payload := events.Payload{
		"client_id": clientID,
		"user_id":   oauth2util.ClaimString(claims, "sub"),
		"audiences": oauth2util.ParseScopes(oauth2util.ClaimString(claims, "aud")),
		"scopes":    scopes,
	}

	accessToken, errs := generate(ctx, store, events.GenerateAccessToken, payload)
	if errs != nil {
		return errs, nil
	}

	resp := &TokenResponse{
		AccessToken: accessToken.Token,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   accessToken.ExpiresIn,
		Scope:       oauth2util.FormatScopes(scopes),
	}

	if oauth2util.HasScope(scopes, oauth2util.ScopeOpenID) {
		idToken, errs := generate(ctx, store, events.GenerateIDToken, payload)
		if errs != nil {
			return errs, nil
		}
		resp.IDToken = idToken.Token
	}

	return nil, resp
}
