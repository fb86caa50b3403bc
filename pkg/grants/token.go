// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"
	"fmt"

	"github.com/stacklok/userin/pkg/events"
	"github.com/stacklok/userin/pkg/logger"
	"github.com/stacklok/userin/pkg/oauth2util"
	"github.com/stacklok/userin/pkg/oautherr"
)

// TokenRequest is the wire-shaped payload of a token endpoint request, as a
// transport layer parses it.
type TokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Code         string `json:"code,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Token dispatches a token request to the processor for its grant_type,
// performing the cross-cutting input checks first.
func Token(ctx context.Context, store *events.Store, req *TokenRequest) ([]*oautherr.Error, *TokenResponse) {
	if req == nil || req.GrantType == "" {
		return missingField("grant_type"), nil
	}

	logger.Debugw("processing token request",
		"grant_type", req.GrantType,
		"client_id", req.ClientID,
	)

	switch req.GrantType {
	case GrantTypeAuthorizationCode:
		return AuthorizationCode(ctx, store, &AuthorizationCodeRequest{
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
			Code:         req.Code,
			RedirectURI:  req.RedirectURI,
			CodeVerifier: req.CodeVerifier,
		})
	case GrantTypeClientCredentials:
		return ClientCredentials(ctx, store, &ClientCredentialsRequest{
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
			Scopes:       oauth2util.ParseScopes(req.Scope),
		})
	case GrantTypePassword:
		return Password(ctx, store, &PasswordRequest{
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
			User: &UserCredentials{
				Username: req.Username,
				Password: req.Password,
			},
			Scopes: oauth2util.ParseScopes(req.Scope),
		})
	case GrantTypeRefreshToken:
		return RefreshToken(ctx, store, &RefreshTokenRequest{
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
			RefreshToken: req.RefreshToken,
		})
	default:
		return oautherr.List(oautherr.NewUnsupportedGrantTypeError(
			fmt.Sprintf("grant_type '%s' is not supported", req.GrantType))), nil
	}
}
