// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/userin/pkg/events"
	"github.com/stacklok/userin/pkg/logger"
	"github.com/stacklok/userin/pkg/oauth2util"
	"github.com/stacklok/userin/pkg/oautherr"
	"github.com/stacklok/userin/pkg/strategy"
)

// RevokeRequest is the revocation endpoint payload. Token is the refresh
// token being revoked; the caller proves possession of a live access token
// through the Authorization header.
type RevokeRequest struct {
	ClientID string `json:"client_id,omitempty"`
	Token    string `json:"token"`
}

// Revoke invalidates a refresh token. Revoking a token that is already
// expired, already revoked, or otherwise unresolvable succeeds with no
// error.
func Revoke(ctx context.Context, store *events.Store, authorization string, req *RevokeRequest) []*oautherr.Error {
	if errs := requireHandlers(store,
		events.GetAccessTokenClaims,
		events.GetRefreshTokenClaims,
		events.DeleteRefreshToken,
	); len(errs) > 0 {
		return errs
	}

	accessToken, errs := bearerToken(authorization)
	if len(errs) > 0 {
		return errs
	}
	if req == nil || req.Token == "" {
		return missingField("token")
	}

	// The access token's claims and the refresh token's claims have no data
	// dependency; resolve them together.
	var (
		accessClaims  jwt.MapClaims
		refreshClaims jwt.MapClaims

		accessErrs  []*oautherr.Error
		refreshErrs []*oautherr.Error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		accessClaims, accessErrs = claimsFor(gctx, store, events.GetAccessTokenClaims, accessToken)
		return nil
	})
	g.Go(func() error {
		refreshClaims, refreshErrs = claimsFor(gctx, store, events.GetRefreshTokenClaims, req.Token)
		return nil
	})
	_ = g.Wait()

	if len(accessErrs) > 0 {
		return accessErrs
	}
	if accessClaims == nil {
		return oautherr.List(oautherr.NewInvalidTokenError("Invalid access_token"))
	}
	if err := oauth2util.VerifyClaimsNotExpired(accessClaims); err != nil {
		return oautherr.List(err)
	}

	clientID := req.ClientID
	claimsClientID := oauth2util.ClaimString(accessClaims, "client_id")
	clientFailed := false
	if clientID != "" || claimsClientID != "" {
		if clientID == "" || claimsClientID == "" || clientID != claimsClientID {
			return oautherr.List(oautherr.NewInvalidClientError("Unauthorized access"))
		}
		if errs := requireHandlers(store, events.GetClient); len(errs) > 0 {
			return errs
		}
		var client *strategy.Client
		client, errs = clientFor(ctx, store, clientID, "")
		clientFailed = len(errs) > 0 || client == nil
	}

	// Idempotent path: nothing left to revoke, or nothing provably owned.
	if len(refreshErrs) > 0 || refreshClaims == nil || clientFailed ||
		oauth2util.VerifyClaimsNotExpired(refreshClaims) != nil {
		logger.Debugw("refresh token already revoked or unresolvable", "client_id", clientID)
		return nil
	}

	if refreshClientID := oauth2util.ClaimString(refreshClaims, "client_id"); refreshClientID != "" && refreshClientID != clientID {
		return oautherr.List(oautherr.NewInvalidClientError("Unauthorized access"))
	}

	if errs, _ := store.Exec(ctx, events.DeleteRefreshToken, events.Payload{"token": req.Token}); len(errs) > 0 {
		return oautherr.Prefix("Failed to execute 'delete_refresh_token'", errs)
	}
	return nil
}
