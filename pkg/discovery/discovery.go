// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package discovery builds the OAuth 2.0 Authorization Server Metadata
// document (RFC 8414, extended with the OIDC Discovery fields). The document
// is a pure function of the strategy's modes and the handlers actually
// registered; it advertises nothing the engine cannot serve.
package discovery

import (
	"context"
	"strings"

	"github.com/stacklok/userin/pkg/events"
	"github.com/stacklok/userin/pkg/grants"
	"github.com/stacklok/userin/pkg/oauth2util"
	"github.com/stacklok/userin/pkg/oautherr"
	"github.com/stacklok/userin/pkg/strategy"
)

// Endpoint paths relative to the issuer.
const (
	AuthorizationPath = "/oauth2/authorize"
	TokenPath         = "/oauth2/token"
	IntrospectionPath = "/oauth2/introspect"
	RevocationPath    = "/oauth2/revoke"
	UserinfoPath      = "/oauth2/userinfo"
	JWKSPath          = "/.well-known/jwks.json"
)

// Document is the discovery metadata document.
type Document struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint,omitempty"`
	TokenEndpoint         string `json:"token_endpoint"`
	IntrospectionEndpoint string `json:"introspection_endpoint,omitempty"`
	RevocationEndpoint    string `json:"revocation_endpoint,omitempty"`
	UserinfoEndpoint      string `json:"userinfo_endpoint,omitempty"`
	JWKSURI               string `json:"jwks_uri,omitempty"`

	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ClaimsSupported                   []string `json:"claims_supported,omitempty"`
}

// oidcResponseTypes is the full response_type combination set an OpenID
// provider advertises.
var oidcResponseTypes = []string{
	"code",
	"token",
	"id_token",
	"code token",
	"code id_token",
	"token id_token",
	"code token id_token",
}

// Build assembles the document for a store. The issuer is resolved through
// get_config; everything else is derived from the strategy's modes and the
// registered handlers.
func Build(ctx context.Context, store *events.Store) ([]*oautherr.Error, *Document) {
	errs, v := store.Exec(ctx, events.GetConfig, events.Payload{})
	if len(errs) > 0 {
		return oautherr.Prefix("Failed to retrieve configuration", errs), nil
	}
	cfg, _ := v.(*strategy.Config)
	if cfg == nil || cfg.Issuer == "" {
		return oautherr.List(oautherr.NewInternalServerError(
			"The 'get_config' handler returned no issuer")), nil
	}
	issuer := strings.TrimSuffix(cfg.Issuer, "/")

	strat := store.Strategy()
	openIDMode := strat != nil && strat.HasMode(strategy.ModeOpenID)
	fipMode := strat != nil && strat.HasMode(strategy.ModeLoginSignupFIP)

	grantTypes := []string{grants.GrantTypeRefreshToken}
	if fipMode || openIDMode {
		grantTypes = append(grantTypes, grants.GrantTypeAuthorizationCode)
	}
	if openIDMode {
		grantTypes = append(grantTypes, grants.GrantTypePassword, grants.GrantTypeClientCredentials)
	}

	doc := &Document{
		Issuer:                issuer,
		TokenEndpoint:         issuer + TokenPath,
		IntrospectionEndpoint: issuer + IntrospectionPath,
		RevocationEndpoint:    issuer + RevocationPath,
		GrantTypesSupported:   grantTypes,
	}

	codesSupported := fipMode || openIDMode
	if codesSupported {
		doc.AuthorizationEndpoint = issuer + AuthorizationPath
		doc.CodeChallengeMethodsSupported = []string{
			oauth2util.PKCEMethodPlain,
			oauth2util.PKCEMethodS256,
		}
	}
	switch {
	case openIDMode:
		doc.ResponseTypesSupported = oidcResponseTypes
	case fipMode:
		doc.ResponseTypesSupported = []string{"code"}
	}

	if openIDMode {
		doc.UserinfoEndpoint = issuer + UserinfoPath
		doc.TokenEndpointAuthMethodsSupported = []string{
			oauth2util.TokenEndpointAuthMethodClientSecretPost,
		}
		doc.ScopesSupported = strat.ScopesSupported
		doc.ClaimsSupported = strat.ClaimsSupported
	}

	if store.Has(events.GetJWKS) {
		doc.JWKSURI = issuer + JWKSPath
	}
	return nil, doc
}
