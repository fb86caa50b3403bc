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

// ClientCredentialsRequest is the payload of a client_credentials grant.
type ClientCredentialsRequest struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// ClientCredentials issues an access token to a service account. The secret
// is always required. Access is delegated to a service, not a user, so the
// response never carries an id_token or a refresh_token, whatever scopes
// were requested.
func ClientCredentials(ctx context.Context, store *events.Store, req *ClientCredentialsRequest) ([]*oautherr.Error, *TokenResponse) {
	if errs := requireHandlers(store,
		events.GetClient,
		events.GenerateAccessToken,
		events.GetConfig,
	); errs != nil {
		return errs, nil
	}

	if req == nil || req.ClientID == "" {
		return missingField("client_id"), nil
	}
	if req.ClientSecret == "" {
		return missingField("client_secret"), nil
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
		return oautherr.List(oautherr.NewInvalidClientError("Invalid client_id or client_secret")), nil
	}

	if err := oauth2util.VerifyScopes(req.Scopes, client.Scopes); err != nil {
		return oautherr.List(err), nil
	}

	accessToken, errs := generate(ctx, store, events.GenerateAccessToken, events.Payload{
		"client_id": req.ClientID,
		"audiences": client.Audiences,
		"scopes":    req.Scopes,
	})
	if errs != nil {
		return errs, nil
	}

	return nil, &TokenResponse{
		AccessToken: accessToken.Token,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   accessToken.ExpiresIn,
		Scope:       oauth2util.FormatScopes(req.Scopes),
	}
}
