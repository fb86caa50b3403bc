// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package fip implements the federated-identity-provider authorization flow:
// a user authenticated by an external provider (Facebook, Google, ...) is
// resolved to a local account and issued the artifacts named by
// response_type. Login requires the account to exist; signup creates it on
// first contact.
package fip

import (
	"context"
	"fmt"

	"github.com/stacklok/userin/pkg/events"
	"github.com/stacklok/userin/pkg/grants"
	"github.com/stacklok/userin/pkg/logger"
	"github.com/stacklok/userin/pkg/oauth2util"
	"github.com/stacklok/userin/pkg/oautherr"
	"github.com/stacklok/userin/pkg/strategy"
)

// response_type components.
const (
	ResponseTypeCode    = "code"
	ResponseTypeToken   = "token"
	ResponseTypeIDToken = "id_token"
)

// AuthRequest is the payload of a federated authorization response, as the
// host's provider callback assembles it.
type AuthRequest struct {
	// ClientID of the relying party. Required in OpenID mode only.
	ClientID string

	// Provider is the federated identity provider's name.
	Provider string

	// User is the profile the provider returned.
	User *strategy.FIPProfile

	// ResponseType is a space-separated combination of code, token and
	// id_token.
	ResponseType string

	Scopes []string
}

// AuthResponse carries only the artifacts the request named.
type AuthResponse struct {
	Code              string `json:"code,omitempty"`
	AccessToken       string `json:"access_token,omitempty"`
	TokenType         string `json:"token_type,omitempty"`
	ExpiresIn         int64  `json:"expires_in,omitempty"`
	IDToken           string `json:"id_token,omitempty"`
	RefreshToken      string `json:"refresh_token,omitempty"`
	UserAlreadyExists bool   `json:"user_already_exists,omitempty"`
}

// Login resolves an already-registered federated user and issues the
// requested artifacts.
func Login(ctx context.Context, store *events.Store, req *AuthRequest) ([]*oautherr.Error, *AuthResponse) {
	return process(ctx, store, req, false)
}

// Signup registers the federated user on first contact. An existing account
// is not an error; the response flags it and the flow proceeds as a login.
func Signup(ctx context.Context, store *events.Store, req *AuthRequest) ([]*oautherr.Error, *AuthResponse) {
	return process(ctx, store, req, true)
}

func process(ctx context.Context, store *events.Store, req *AuthRequest, signup bool) ([]*oautherr.Error, *AuthResponse) {
	strat := store.Strategy()
	openIDMode := strat != nil && strat.HasMode(strategy.ModeOpenID)

	required := []events.Name{events.GetFIPUser}
	if signup {
		required = append(required, events.ProcessFIPAuthResponse, events.CreateFIPUser)
	}
	if openIDMode {
		required = append(required, events.GetClient)
	}
	if errs := requireHandlers(store, required...); len(errs) > 0 {
		return errs, nil
	}

	switch {
	case req == nil || req.User == nil:
		return missingField("user"), nil
	case req.User.ID == "":
		return missingField("user.id"), nil
	case req.Provider == "":
		return missingField("strategy"), nil
	case req.ResponseType == "":
		return missingField("response_type"), nil
	case openIDMode && req.ClientID == "":
		return missingField("client_id"), nil
	}

	responseTypes, errs := parseResponseTypes(req.ResponseType)
	if len(errs) > 0 {
		return errs, nil
	}

	user, alreadyExists, errs := resolveUser(ctx, store, req, signup)
	if len(errs) > 0 {
		return errs, nil
	}

	var audiences []string
	if openIDMode {
		client, errs := lookupClient(ctx, store, req.ClientID)
		if len(errs) > 0 {
			return errs, nil
		}
		audiences = client.Audiences
		if err := oauth2util.VerifyScopes(req.Scopes, client.Scopes); err != nil {
			return oautherr.List(err), nil
		}
		if err := oauth2util.VerifyClientID(req.ClientID, user.ClientIDs); err != nil {
			return oautherr.List(err), nil
		}
	}

	// id_token issuance is gated twice over: never outside OpenID mode, and
	// never without the openid scope. An ungated request for it is not an
	// error; the artifact is simply not produced.
	issueIDToken := responseTypes[ResponseTypeIDToken] &&
		openIDMode && oauth2util.HasScope(req.Scopes, oauth2util.ScopeOpenID)
	issueRefreshToken := responseTypes[ResponseTypeToken] &&
		oauth2util.HasScope(req.Scopes, oauth2util.ScopeOfflineAccess)

	var artifactHandlers []events.Name
	if responseTypes[ResponseTypeCode] {
		artifactHandlers = append(artifactHandlers, events.GenerateAuthorizationCode)
	}
	if responseTypes[ResponseTypeToken] {
		artifactHandlers = append(artifactHandlers, events.GenerateAccessToken)
	}
	if issueIDToken {
		artifactHandlers = append(artifactHandlers, events.GenerateIDToken)
	}
	if issueRefreshToken {
		artifactHandlers = append(artifactHandlers, events.GenerateRefreshToken)
	}
	if errs := requireHandlers(store, artifactHandlers...); len(errs) > 0 {
		return errs, nil
	}

	payload := events.Payload{
		"client_id": req.ClientID,
		"user_id":   user.ID,
		"audiences": audiences,
		"scopes":    req.Scopes,
	}

	resp := &AuthResponse{UserAlreadyExists: alreadyExists}
	if responseTypes[ResponseTypeCode] {
		code, errs := generate(ctx, store, events.GenerateAuthorizationCode, payload)
		if len(errs) > 0 {
			return errs, nil
		}
		resp.Code = code.Token
	}
	if responseTypes[ResponseTypeToken] {
		access, errs := generate(ctx, store, events.GenerateAccessToken, payload)
		if len(errs) > 0 {
			return errs, nil
		}
		resp.AccessToken = access.Token
		resp.TokenType = grants.TokenTypeBearer
		resp.ExpiresIn = access.ExpiresIn
	}
	if issueIDToken {
		idToken, errs := generate(ctx, store, events.GenerateIDToken, payload)
		if len(errs) > 0 {
			return errs, nil
		}
		resp.IDToken = idToken.Token
	}
	if issueRefreshToken {
		refresh, errs := generate(ctx, store, events.GenerateRefreshToken, payload)
		if len(errs) > 0 {
			return errs, nil
		}
		resp.RefreshToken = refresh.Token
	}

	logger.Debugw("processed federated authorization",
		"provider", req.Provider,
		"signup", signup,
		"response_type", req.ResponseType,
	)
	return nil, resp
}

// parseResponseTypes validates a space-separated response_type value.
func parseResponseTypes(responseType string) (map[string]bool, []*oautherr.Error) {
	types := map[string]bool{}
	for _, rt := range oauth2util.ParseScopes(responseType) {
		switch rt {
		case ResponseTypeCode, ResponseTypeToken, ResponseTypeIDToken:
			types[rt] = true
		default:
			return nil, oautherr.List(oautherr.NewInvalidRequestError(
				fmt.Sprintf("response_type '%s' is not supported", rt)))
		}
	}
	return types, nil
}

// resolveUser maps the provider's profile to a local account. Signup
// registers the profile when no account exists yet.
func resolveUser(ctx context.Context, store *events.Store, req *AuthRequest, signup bool) (*strategy.EndUser, bool, []*oautherr.Error) {
	errs, v := store.Exec(ctx, events.GetFIPUser, events.Payload{
		"provider": req.Provider,
		"user":     req.User,
	})
	if len(errs) > 0 {
		return nil, false, oautherr.Prefix("Failed to execute 'get_fip_user'", errs)
	}
	user, _ := v.(*strategy.EndUser)
	if user != nil {
		return user, signup, nil
	}
	if !signup {
		return nil, false, oautherr.List(oautherr.NewInvalidRequestError(
			fmt.Sprintf("User '%s' not found", req.User.ID)))
	}

	errs, v = store.Exec(ctx, events.ProcessFIPAuthResponse, events.Payload{
		"provider": req.Provider,
		"user":     req.User,
	})
	if len(errs) > 0 {
		return nil, false, oautherr.Prefix("Failed to execute 'process_fip_auth_response'", errs)
	}
	newUser, _ := v.(*strategy.NewFIPUser)
	if newUser == nil {
		return nil, false, oautherr.List(oautherr.NewInternalServerError(
			"The 'process_fip_auth_response' handler returned no user"))
	}

	errs, v = store.Exec(ctx, events.CreateFIPUser, events.Payload{"user": newUser})
	if len(errs) > 0 {
		return nil, false, oautherr.Prefix("Failed to execute 'create_fip_user'", errs)
	}
	user, _ = v.(*strategy.EndUser)
	if user == nil {
		return nil, false, oautherr.List(oautherr.NewInternalServerError(
			"The 'create_fip_user' handler returned no user"))
	}
	return user, false, nil
}

// lookupClient resolves the relying party.
func lookupClient(ctx context.Context, store *events.Store, clientID string) (*strategy.Client, []*oautherr.Error) {
	errs, v := store.Exec(ctx, events.GetClient, events.Payload{"client_id": clientID})
	if len(errs) > 0 {
		return nil, oautherr.Prefix("Failed to execute 'get_client'", errs)
	}
	client, _ := v.(*strategy.Client)
	if client == nil {
		return nil, oautherr.List(oautherr.NewInvalidClientError("Invalid client_id"))
	}
	return client, nil
}

func requireHandlers(store *events.Store, names ...events.Name) []*oautherr.Error {
	for _, name := range names {
		if !store.Has(name) {
			return oautherr.List(oautherr.NewInternalServerError(
				fmt.Sprintf("Missing '%s' handler", name)))
		}
	}
	return nil
}

func missingField(name string) []*oautherr.Error {
	return oautherr.List(oautherr.NewInvalidRequestError(
		fmt.Sprintf("Missing required '%s'", name)))
}

// generate runs one of the generate_* events and unwraps the result.
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
