// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"

	"github.com/stacklok/userin/pkg/events"
	"github.com/stacklok/userin/pkg/oauth2util"
	"github.com/stacklok/userin/pkg/oautherr"
	"github.com/stacklok/userin/pkg/strategy"
)

// UserInfo resolves the identity claims behind a bearer access token. The
// result is the strategy's identity claims plus an active marker.
func UserInfo(ctx context.Context, store *events.Store, authorization string) ([]*oautherr.Error, map[string]any) {
	if errs := requireHandlers(store, events.GetAccessTokenClaims, events.GetIdentityClaims); len(errs) > 0 {
		return errs, nil
	}

	accessToken, errs := bearerToken(authorization)
	if len(errs) > 0 {
		return errs, nil
	}

	claims, errs := claimsFor(ctx, store, events.GetAccessTokenClaims, accessToken)
	if len(errs) > 0 {
		return errs, nil
	}
	if claims == nil {
		return oautherr.List(oautherr.NewInvalidTokenError("Invalid access_token")), nil
	}
	if err := oauth2util.VerifyClaimsNotExpired(claims); err != nil {
		return oautherr.List(err), nil
	}

	clientID := oauth2util.ClaimString(claims, "client_id")
	userID := oauth2util.ClaimString(claims, "sub")
	scopes := oauth2util.ParseScopes(oauth2util.ClaimString(claims, "scope"))

	identityErrs, v := store.Exec(ctx, events.GetIdentityClaims, events.Payload{
		"client_id": clientID,
		"user_id":   userID,
		"scopes":    scopes,
	})
	if len(identityErrs) > 0 {
		return oautherr.Prefix("Failed to retrieve identity claims", identityErrs), nil
	}
	identity, _ := v.(*strategy.IdentityClaims)
	if identity == nil {
		return oautherr.List(oautherr.NewInvalidTokenError("Invalid access_token")), nil
	}
	if err := oauth2util.VerifyClientID(clientID, identity.ClientIDs); err != nil {
		return oautherr.List(err), nil
	}

	info := make(map[string]any, len(identity.Claims)+1)
	for k, val := range identity.Claims {
		info[k] = val
	}
	info["active"] = true
	return nil, info
}
