// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oauth2util provides the pure OAuth 2.0 / OIDC parameter helpers the
// engine is built on: scope list conversion, claim assembly, expiry and
// authorization checks, and PKCE challenge computation. Nothing in this
// package performs I/O.
package oauth2util

import "strings"

// Well-known scopes the engine gates token issuance on.
const (
	// ScopeOpenID gates id_token issuance.
	ScopeOpenID = "openid"

	// ScopeOfflineAccess gates refresh_token issuance.
	ScopeOfflineAccess = "offline_access"
)

// ParseScopes converts a space-delimited value into an ordered scope list.
// Empty segments are dropped; order is preserved. The same form is used for
// audience lists.
func ParseScopes(s string) []string {
	return strings.Fields(s)
}

// FormatScopes joins a scope list into the space-delimited wire form,
// preserving order.
func FormatScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// HasScope reports whether scope is present in the list.
func HasScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}
