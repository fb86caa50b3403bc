// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth2util

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ClaimsInput is the material ToOIDCClaims assembles a claims object from.
type ClaimsInput struct {
	// Issuer becomes the "iss" claim.
	Issuer string

	// ClientID becomes the "client_id" claim.
	ClientID string

	// UserID becomes the "sub" claim. Left out when empty (service-to-service
	// tokens have no subject).
	UserID string

	// Audiences becomes the space-joined "aud" claim.
	Audiences []string

	// Scopes becomes the space-joined "scope" claim, order preserved.
	Scopes []string

	// ExpiresIn controls the "exp" claim relative to "iat".
	ExpiresIn time.Duration

	// Extra claims merged into the result. Reserved claim names in Extra do
	// not override the computed ones.
	Extra jwt.MapClaims
}

// ToOIDCClaims builds the canonical claims object for a token or code. The
// result is constructed once and never mutated afterwards; "exp" and "iat"
// are Unix seconds.
func ToOIDCClaims(in *ClaimsInput) jwt.MapClaims {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":       in.Issuer,
		"client_id": in.ClientID,
		"aud":       FormatScopes(in.Audiences),
		"scope":     FormatScopes(in.Scopes),
		"iat":       now.Unix(),
		"exp":       now.Add(in.ExpiresIn).Unix(),
	}
	if in.UserID != "" {
		claims["sub"] = in.UserID
	}
	for k, v := range in.Extra {
		if _, reserved := claims[k]; reserved {
			continue
		}
		claims[k] = v
	}
	return claims
}

// ClaimString reads a string claim, tolerating absent or non-string values.
func ClaimString(claims jwt.MapClaims, name string) string {
	if claims == nil {
		return ""
	}
	s, _ := claims[name].(string)
	return s
}

// ClaimInt64 reads a numeric claim. JSON decoding yields float64; values
// recorded in-process may be int64 or int.
func ClaimInt64(claims jwt.MapClaims, name string) (int64, bool) {
	if claims == nil {
		return 0, false
	}
	switch v := claims[name].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
