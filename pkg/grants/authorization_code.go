// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stacklok/userin/pkg/events"
	"github.com/stacklok/userin/pkg/oauth2util"
	"github.com/stacklok/userin/pkg/oautherr"
	"github.com/stacklok/userin/pkg/strategy"
)

// AuthorizationCodeRequest is the payload of an authorization_code exchange.
type AuthorizationCodeRequest struct {
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	CodeVerifier string
}

// AuthorizationCode exchanges an authorization code for tokens. The issued
// scope set is the one recorded on the code; redirect_uri, client ownership
// and the PKCE challenge are re-verified on every exchange.
func AuthorizationCode(ctx context.Context, store *events.Store, req *AuthorizationCodeRequest) ([]*oautherr.Error, *TokenResponse) {
	if errs := requireHandlers(store,
		events.GetClient,
		events.GetAuthorizationCodeClaims,
		events.GenerateAccessToken,
		events.GetConfig,
	); errs != nil {
		return errs, nil
	}

	if req == nil || req.Code == "" {
		return missingField("code"), nil
	}
	if req.RedirectURI == "" {
		return missingField("redirect_uri"), nil
	}

	claims, errs := claimsFor(ctx, store, events.GetAuthorizationCodeClaims, req.Code)
	if errs != nil {
		return errs, nil
	}
	if claims == nil {
		return oautherr.List(oautherr.NewInvalidTokenError("Invalid authorization code")), nil
	}
	if err := oauth2util.VerifyClaimsNotExpired(claims); err != nil {
		return oautherr.List(err), nil
	}

	// The code's redirect_uri claim must exactly string-match the request's.
	if oauth2util.ClaimString(claims, "redirect_uri") != req.RedirectURI {
		return oautherr.List(oautherr.NewInvalidRequestError("Invalid 'redirect_uri'")), nil
	}

	if codeClientID := oauth2util.ClaimString(claims, "client_id"); codeClientID != "" && codeClientID != req.ClientID {
		return oautherr.List(oautherr.NewInvalidClientError("Unauthorized access")), nil
	}

	if errs := verifyCodeChallenge(claims, req.CodeVerifier); errs != nil {
		return errs, nil
	}

	scopes := oauth2util.ParseScopes(oauth2util.ClaimString(claims, "scope"))
	if oauth2util.HasScope(scopes, oauth2util.ScopeOpenID) {
		if errs := requireHandlers(store, events.GenerateIDToken); errs != nil {
			return errs, nil
		}
	}
	if oauth2util.HasScope(scopes, oauth2util.ScopeOfflineAccess) {
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
	if err := oauth2util.VerifyScopes(scopes, client.Scopes); err != nil {
		return oautherr.List(err), nil
	}

	userID := oauth2util.ClaimString(claims, "sub")
	audiences := oauth2util.ParseScopes(oauth2util.ClaimString(claims, "aud"))
	extra := jwt.MapClaims{}
	if nonce := oauth2util.ClaimString(claims, "nonce"); nonce != "" {
		extra["nonce"] = nonce
	}

	basePayload := events.Payload{
		"client_id": req.ClientID,
		"user_id":   userID,
		"audiences": audiences,
		"scopes":    scopes,
	}

	accessToken, errs := generate(ctx, store, events.GenerateAccessToken, basePayload)
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
		idPayload := events.Payload{
			"client_id": req.ClientID,
			"user_id":   userID,
			"audiences": audiences,
			"scopes":    scopes,
			"extra":     extra,
		}
		idToken, errs := generate(ctx, store, events.GenerateIDToken, idPayload)
		if errs != nil {
			return errs, nil
		}
		resp.IDToken = idToken.Token
	}

	if oauth2util.HasScope(scopes, oauth2util.ScopeOfflineAccess) {
		refreshToken, errs := generate(ctx, store, events.GenerateRefreshToken, basePayload)
		if errs != nil {
			return errs, nil
		}
		resp.RefreshToken = refreshToken.Token
	}

	return nil, resp
}

// verifyCodeChallenge enforces RFC 7636 on codes that carry a challenge.
// Codes without one exchange without a verifier.
func verifyCodeChallenge(claims jwt.MapClaims, verifier string) []*oautherr.Error {
	challenge := oauth2util.ClaimString(claims, "code_challenge")
	method := oauth2util.ClaimString(claims, "code_challenge_method")
	if challenge == "" && method == "" {
		return nil
	}
	if challenge == "" {
		return oautherr.List(oautherr.NewInvalidRequestError("Missing required 'code_challenge'"))
	}
	if method == "" {
		return oautherr.List(oautherr.NewInvalidRequestError("Missing required 'code_challenge_method'"))
	}
	if method != oauth2util.PKCEMethodPlain && method != oauth2util.PKCEMethodS256 {
		return oautherr.List(oautherr.NewInvalidRequestError(
			fmt.Sprintf("Invalid 'code_challenge_method' '%s'", method)))
	}
	if verifier == "" {
		return oautherr.List(oautherr.NewInvalidRequestError("Missing required 'code_verifier'"))
	}
	if !oauth2util.VerifierMatchesChallenge(verifier, challenge, method) {
		return oautherr.List(oautherr.NewInvalidRequestError("Invalid 'code_verifier'"))
	}
	return nil
}
