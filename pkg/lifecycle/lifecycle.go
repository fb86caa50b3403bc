// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package lifecycle implements the post-issuance token operations:
// introspection (RFC 7662), revocation (RFC 7009) and the OIDC userinfo
// projection. Like the grant processors, each operation is a validation
// pipeline over the event store; token and client lookups with no data
// dependency run concurrently.
package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stacklok/userin/pkg/events"
	"github.com/stacklok/userin/pkg/oautherr"
	"github.com/stacklok/userin/pkg/strategy"
)

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

// bearerToken extracts the access token from an Authorization header value.
// The scheme comparison is case-insensitive.
func bearerToken(header string) (string, []*oautherr.Error) {
	if header == "" {
		return "", missingField("authorization")
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", oautherr.List(oautherr.NewInvalidRequestError(
			"Invalid 'authorization' header. Expecting a bearer token."))
	}
	return strings.TrimSpace(token), nil
}

// claimsFor fetches a token's claims through the named get_*_claims event.
// An empty result comes back as nil claims with no error.
func claimsFor(ctx context.Context, store *events.Store, name events.Name, token string) (jwt.MapClaims, []*oautherr.Error) {
	errs, v := store.Exec(ctx, name, events.Payload{"token": token})
	if len(errs) > 0 {
		return nil, oautherr.Prefix(fmt.Sprintf("Failed to execute '%s'", name), errs)
	}
	claims, _ := v.(jwt.MapClaims)
	return claims, nil
}

// clientFor looks up a client through the get_client event.
func clientFor(ctx context.Context, store *events.Store, clientID, clientSecret string) (*strategy.Client, []*oautherr.Error) {
	p := events.Payload{"client_id": clientID}
	if clientSecret != "" {
		p["client_secret"] = clientSecret
	}
	errs, v := store.Exec(ctx, events.GetClient, p)
	if len(errs) > 0 {
		return nil, oautherr.Prefix("Failed to execute 'get_client'", errs)
	}
	client, _ := v.(*strategy.Client)
	return client, nil
}
