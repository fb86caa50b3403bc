// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package grants implements the OAuth 2.0 token acquisition flows:
// authorization_code, client_credentials, password and refresh_token, plus
// the grant_type dispatcher a token endpoint delegates to. Each processor is
// a validation pipeline over the event store: required handlers, required
// payload fields, domain checks, then token generation.
package grants

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stacklok/userin/pkg/events"
	"github.com/stacklok/userin/pkg/oautherr"
)

// Supported grant_type values.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypePassword          = "password"
	GrantTypeRefreshToken      = "refresh_token"
)

// TokenTypeBearer is the token_type of every issued access token.
const TokenTypeBearer = "bearer"

// TokenResponse is the successful result of a token request. It is built per
// request and never stored.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	IDToken      string `json:"id_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// requireHandlers reports the first required event with no registered
// handler. Contract violations of this kind surface through the same error
// channel as everything else; they never crash the process.
func requireHandlers(store *events.Store, names ...events.Name) []*oautherr.Error {
	for _, name := range names {
		if !store.Has(name) {
			return oautherr.List(oautherr.NewInternalServerError(
				fmt.Sprintf("Missing '%s' handler", name)))
		}
	}
	return nil
}

// missingField builds the uniform invalid_request error for an absent
// required payload field.
func missingField(name string) []*oautherr.Error {
	return oautherr.List(oautherr.NewInvalidRequestError(
		fmt.Sprintf("Missing required '%s'", name)))
}

// generate runs one of the synthesized generate_* events and unwraps the
// result.
func generate(ctx context.Context, store *events.Store, name events.Name, p events.Payload) (*events.GeneratedToken, []*oautherr.Error) {
	errs, v := store.Exec(ctx, name, p)
	if len(errs) > 0 {
		return nil, oautherr.Prefix(fmt.Sprintf("Failed to execute '%s'", name), errs)
	}
	generated, ok := v.(*events.GeneratedToken)
	if !ok || generated == nil {
		return nil, oautherr.List(oautherr.NewInternalServerError(
			fmt.Sprintf("The '%s' handler returned no token", name)))
	}
	return generated, nil
}

// claimsFor fetches a token's claims through the named get_*_claims event.
// A handler failure is wrapped; an empty result is reported as nil claims
// with no error, letting the caller decide how much to reveal.
func claimsFor(ctx context.Context, store *events.Store, name events.Name, token string) (jwt.MapClaims, []*oautherr.Error) {
	errs, v := store.Exec(ctx, name, events.Payload{"token": token})
	if len(errs) > 0 {
		return nil, oautherr.Prefix(fmt.Sprintf("Failed to execute '%s'", name), errs)
	}
	claims, _ := v.(jwt.MapClaims)
	return claims, nil
}
