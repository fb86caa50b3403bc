// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth2util

import (
	"golang.org/x/oauth2"
)

// PKCE code challenge methods (RFC 7636 Section 4.2).
const (
	PKCEMethodPlain = "plain"
	PKCEMethodS256  = "S256"
)

// CodeVerifierToChallenge computes the S256 code_challenge for a verifier:
// BASE64URL(SHA256(code_verifier)), unpadded.
//
// This delegates to oauth2.S256ChallengeFromVerifier() from golang.org/x/oauth2.
func CodeVerifierToChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// GenerateCodeVerifier generates a cryptographically random code_verifier per
// RFC 7636 Section 4.1 (43 characters from the base64url alphabet).
//
// This delegates to oauth2.GenerateVerifier() from golang.org/x/oauth2. It
// panics on crypto/rand read failure.
func GenerateCodeVerifier() string {
	return oauth2.GenerateVerifier()
}

// VerifierMatchesChallenge reports whether the verifier reproduces the stored
// challenge under the stored method. Unknown methods never match.
func VerifierMatchesChallenge(verifier, challenge, method string) bool {
	switch method {
	case PKCEMethodPlain:
		return verifier == challenge
	case PKCEMethodS256:
		return CodeVerifierToChallenge(verifier) == challenge
	default:
		return false
	}
}
