// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth2util

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stacklok/userin/pkg/oautherr"
)

// TokenEndpointAuthMethodClientSecretPost marks a client as private: the
// client must present its secret even where the secret is otherwise optional.
const TokenEndpointAuthMethodClientSecretPost = "client_secret_post"

// VerifyScopes checks that every requested scope is present in the service
// account's scope set. The returned invalid_scope error enumerates all
// offending scopes.
func VerifyScopes(scopes, serviceAccountScopes []string) *oautherr.Error {
	var denied []string
	for _, s := range scopes {
		if !HasScope(serviceAccountScopes, s) {
			denied = append(denied, s)
		}
	}
	if len(denied) > 0 {
		return oautherr.NewInvalidScopeError(
			fmt.Sprintf("Access denied to the following scopes: %s", strings.Join(denied, ", ")))
	}
	return nil
}

// VerifyClientID checks that the client is allowed to act for the user. A
// user with linked clients rejects any client not in the list. A user with
// no linked clients is accessible by any client: single-tenant deployments
// never link clients to users, and tightening this would lock them out. Hosts
// that need strict linkage must record client_ids on every user.
func VerifyClientID(clientID string, userClientIDs []string) *oautherr.Error {
	if len(userClientIDs) == 0 {
		return nil
	}
	for _, id := range userClientIDs {
		if id == clientID {
			return nil
		}
	}
	return oautherr.NewInvalidClientError("Invalid client_id")
}

// VerifyClaimsNotExpired checks the "exp" claim. A missing or non-numeric
// "exp" never fails; only an expiry strictly in the past does.
func VerifyClaimsNotExpired(claims jwt.MapClaims) *oautherr.Error {
	exp, ok := ClaimInt64(claims, "exp")
	if !ok {
		return nil
	}
	if time.Now().UnixMilli() > exp*1000 {
		return oautherr.NewInvalidTokenError("Token or code has expired")
	}
	return nil
}

// IsPrivateClient reports whether the service account requires its secret on
// every call: auth_methods is non-empty and contains client_secret_post.
func IsPrivateClient(authMethods []string) bool {
	for _, m := range authMethods {
		if m == TokenEndpointAuthMethodClientSecretPost {
			return true
		}
	}
	return false
}
