// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stacklok/userin/pkg/oauth2util"
	"github.com/stacklok/userin/pkg/oautherr"
	"github.com/stacklok/userin/pkg/strategy"
)

// synthesize constructs the composite events out of the primitives the
// strategy supplied. Each one is guarded: a name the strategy (or an earlier
// synthesis) already registered is left untouched.
//
// Synthesized generators expect a payload of:
//
//	client_id  string
//	user_id    string
//	audiences  []string
//	scopes     []string
//	extra      jwt.MapClaims (optional; code challenges, nonce, redirect_uri)
//
// and return a *GeneratedToken.
func (s *Store) synthesize(strat *strategy.Strategy) {
	if strat.GenerateToken != nil {
		if !s.Has(GenerateAccessToken) {
			s.mustRegister(GenerateAccessToken, s.synthGenerate(TokenTypeAccessToken))
		}
		if !s.Has(GenerateRefreshToken) {
			s.mustRegister(GenerateRefreshToken, s.synthGenerate(TokenTypeRefreshToken))
		}
		if !s.Has(GenerateAuthorizationCode) {
			s.mustRegister(GenerateAuthorizationCode, s.synthGenerate(TokenTypeCode))
		}
		// generate_id_token needs both generate_token and get_identity_claims;
		// with either absent it stays unregistered and callers get the uniform
		// missing-handler error.
		if !s.Has(GenerateIDToken) && strat.GetIdentityClaims != nil {
			s.mustRegister(GenerateIDToken, s.synthGenerateIDToken())
		}
	}

	if strat.GetTokenClaims != nil {
		for name, tokenType := range map[Name]string{
			GetAccessTokenClaims:       TokenTypeAccessToken,
			GetIDTokenClaims:           TokenTypeIDToken,
			GetRefreshTokenClaims:      TokenTypeRefreshToken,
			GetAuthorizationCodeClaims: TokenTypeCode,
		} {
			if s.Has(name) {
				continue
			}
			s.mustRegister(name, s.synthTokenClaims(tokenType))
		}
	}

	if !s.Has(ProcessFIPAuthResponse) {
		s.mustRegister(ProcessFIPAuthResponse, synthProcessFIPAuthResponse)
	}
}

// execConfig resolves the engine configuration through the get_config event.
func (s *Store) execConfig(ctx context.Context) (*strategy.Config, error) {
	errs, v := s.Exec(ctx, GetConfig, Payload{})
	if len(errs) > 0 {
		return nil, oautherr.Errors(oautherr.Prefix("Failed to retrieve configuration", errs))
	}
	cfg, ok := v.(*strategy.Config)
	if !ok || cfg == nil {
		return nil, oautherr.NewInternalServerError("The 'get_config' handler returned no configuration")
	}
	return cfg, nil
}

// synthGenerate wraps the generate_token primitive for one token type,
// assembling the OIDC claims before signing.
func (s *Store) synthGenerate(tokenType string) Func {
	return func(ctx context.Context, _ any, p Payload) (any, error) {
		cfg, err := s.execConfig(ctx)
		if err != nil {
			return nil, err
		}
		expiresIn := cfg.ExpiryFor(tokenType)

		claims := oauth2util.ToOIDCClaims(&oauth2util.ClaimsInput{
			Issuer:    cfg.Issuer,
			ClientID:  p.String("client_id"),
			UserID:    p.String("user_id"),
			Audiences: p.Strings("audiences"),
			Scopes:    p.Strings("scopes"),
			ExpiresIn: expiresIn,
			Extra:     p.Claims("extra"),
		})

		return s.signClaims(ctx, tokenType, claims, expiresIn)
	}
}

// synthGenerateIDToken merges the user's identity claims into the OIDC claims
// and verifies the client is authorized for the user before signing.
func (s *Store) synthGenerateIDToken() Func {
	return func(ctx context.Context, _ any, p Payload) (any, error) {
		cfg, err := s.execConfig(ctx)
		if err != nil {
			return nil, err
		}
		expiresIn := cfg.ExpiryFor(TokenTypeIDToken)
		clientID := p.String("client_id")
		userID := p.String("user_id")

		errs, v := s.Exec(ctx, GetIdentityClaims, Payload{
			"client_id": clientID,
			"user_id":   userID,
			"scopes":    p.Strings("scopes"),
		})
		if len(errs) > 0 {
			return nil, oautherr.Errors(oautherr.Prefix("Failed to retrieve identity claims", errs))
		}
		identity, ok := v.(*strategy.IdentityClaims)
		if !ok || identity == nil {
			return nil, oautherr.NewInternalServerError(
				fmt.Sprintf("The 'get_identity_claims' handler returned no claims for user '%s'", userID))
		}
		if err := oauth2util.VerifyClientID(clientID, identity.ClientIDs); err != nil {
			return nil, err
		}

		extra := jwt.MapClaims{}
		for k, v := range identity.Claims {
			extra[k] = v
		}
		for k, v := range p.Claims("extra") {
			extra[k] = v
		}

		claims := oauth2util.ToOIDCClaims(&oauth2util.ClaimsInput{
			Issuer:    cfg.Issuer,
			ClientID:  clientID,
			UserID:    userID,
			Audiences: p.Strings("audiences"),
			Scopes:    p.Strings("scopes"),
			ExpiresIn: expiresIn,
			Extra:     extra,
		})

		return s.signClaims(ctx, TokenTypeIDToken, claims, expiresIn)
	}
}

// signClaims runs the generate_token primitive and packages the result.
func (s *Store) signClaims(ctx context.Context, tokenType string, claims jwt.MapClaims, expiresIn time.Duration) (*GeneratedToken, error) {
	errs, v := s.Exec(ctx, GenerateToken, Payload{
		"type":   tokenType,
		"claims": claims,
	})
	if len(errs) > 0 {
		return nil, oautherr.Errors(oautherr.Prefix(
			fmt.Sprintf("Failed to generate %s", tokenType), errs))
	}
	token, _ := v.(string)
	if token == "" {
		return nil, oautherr.NewInternalServerError(
			fmt.Sprintf("The 'generate_token' handler returned no %s", tokenType))
	}
	return &GeneratedToken{
		Token:     token,
		ExpiresIn: int64(expiresIn / time.Second),
	}, nil
}

// synthTokenClaims adapts the generic get_token_claims primitive to one of
// its per-type specializations.
func (s *Store) synthTokenClaims(tokenType string) Func {
	return func(ctx context.Context, _ any, p Payload) (any, error) {
		errs, v := s.Exec(ctx, GetTokenClaims, Payload{
			"type":  tokenType,
			"token": p.String("token"),
		})
		if len(errs) > 0 {
			return nil, oautherr.Errors(errs)
		}
		return v, nil
	}
}

// synthProcessFIPAuthResponse maps a federated profile payload into the
// normalized local user-registration payload. Pure; requires no primitive.
func synthProcessFIPAuthResponse(_ context.Context, _ any, p Payload) (any, error) {
	profile, _ := p["user"].(*strategy.FIPProfile)
	if profile == nil || profile.ID == "" {
		return nil, oautherr.NewInvalidRequestError("Missing required 'user.id'")
	}
	provider := p.String("provider")
	if provider == "" {
		return nil, oautherr.NewInvalidRequestError("Missing required 'strategy'")
	}
	return &strategy.NewFIPUser{
		Provider:       provider,
		ProviderUserID: profile.ID,
		FirstName:      profile.FirstName,
		LastName:       profile.LastName,
		Email:          profile.Email,
		ProfileImgURL:  profile.ProfileImgURL,
		AccessToken:    profile.AccessToken,
		RefreshToken:   profile.RefreshToken,
	}, nil
}
