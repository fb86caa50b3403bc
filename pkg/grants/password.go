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

// UserCredentials is a username/password pair.
type UserCredentials struct {
	Username string
	Password string
}

// PasswordRequest is the payload of a resource-owner password grant.
type PasswordRequest struct {
	ClientID     string
	ClientSecret string
	User         *UserCredentials
	Scopes       []string
}

// Password authenticates a resource owner's credentials and issues tokens.
// A failed lookup and a wrong password are indistinguishable to the caller.
func Password(ctx context.Context, store *events.Store, req *PasswordRequest) ([]*oautherr.Error, *TokenResponse) {
	if errs := requireHandlers(store,
		events.GetClient,
		events.GetEndUser,
		events.GenerateAccessToken,
		events.GetConfig,
	); errs != nil {
		return errs, nil
	}

	if req == nil || req.ClientID == "" {
		return missingField("client_id"), nil
	}
	if req.User == nil || req.User.Username == "" {
		return missingField("user.username"), nil
	}
	if req.User.Password == "" {
		return missingField("user.password"), nil
	}

	wantIDToken := oauth2util.HasScope(req.Scopes, oauth2util.ScopeOpenID)
	wantRefreshToken := oauth2util.HasScope(req.Scopes, oauth2util.ScopeOfflineAccess)
	if wantIDToken {
		if errs := requireHandlers(store, events.GenerateIDToken); errs != nil {
			return errs, nil
		}
	}
	if wantRefreshToken {
		if errs := requireHandlers(store, events.GenerateRefreshToken); errs != nil {
			return errs, nil
		}
	}

	clientErrs, v := store.Exec(ctx, events.GetClient, events.Payload{
		"client_id":     req.ClientID,
		"client_secret": req.ClientSecret,
	})
	if len(clientErrs) > 0 {
		return oautherr.Prefix("Failed to retrieve client", clientErrs), nil
	}
	client, _ := v.(*strategy.Client)
	if client == nil {
		return oautherr.List(oautherr.NewInvalidClientError("Invalid client_id")), nil
	}

	userErrs, v := store.Exec(ctx, events.GetEndUser, events.Payload{
		"client_id": req.ClientID,
		"username":  req.User.Username,
		"password":  req.User.Password,
	})
	if len(userErrs) > 0 {
		return oautherr.Prefix("Failed to retrieve end user", userErrs), nil
	}
	user, _ := v.(*strategy.EndUser)
	if user == nil {
		return oautherr.List(oautherr.NewInvalidRequestError("Incorrect username or password")), nil
	}

	if err := oauth2util.VerifyClientID(req.ClientID, user.ClientIDs); err != nil {
		return oautherr.List(err), nil
	}
	if err := oauth2util.VerifyScopes(req.Scopes, client.Scopes); err != nil {
		return oautherr.List(err), nil
	}

	payload := events.Payload{
		"client_id": req.ClientID,
		"user_id":   user.ID,
		"audiences": client.Audiences,
		"scopes":    req.Scopes,
	}

	accessToken, errs := generate(ctx, store, events.GenerateAccessToken, payload)
	if errs != nil {
		return errs, nil
	}

	resp := &TokenResponse{
		AccessToken: accessToken.Token,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   accessToken.ExpiresIn,
		Scope:       oauth2util.FormatScopes(req.Scopes),
	}

	if wantIDToken {
		idToken, errs := generate(ctx, store, events.GenerateIDToken, payload)
		if errs != nil {
			return errs, nil
		}
		resp.IDToken = idToken.Token
	}

	if wantRefreshToken {
		refreshToken, errs := generate(ctx, store, events.GenerateRefreshToken, payload)
		if errs != nil {
			return errs, nil
		}
		resp.RefreshToken = refreshToken.Token
	}

	return nil, resp
}
