// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oautherr defines the error values exchanged between the engine's
// packages. Errors carry the OAuth 2.0 error category (RFC 6749 Section 5.2)
// and the HTTP status code the category maps to, so a host's transport layer
// can render the standard {error, error_description} body without inspecting
// messages. Operations return error slices; an underlying cause is never
// collapsed into the contextual error prepended on top of it.
package oautherr

import (
	"fmt"
	"net/http"
)

// OAuth 2.0 error categories.
const (
	CategoryInvalidRequest       = "invalid_request"
	CategoryUnsupportedGrantType = "unsupported_grant_type"
	CategoryInvalidGrant         = "invalid_grant"
	CategoryInvalidScope         = "invalid_scope"
	CategoryInvalidClaim         = "invalid_claim"
	CategoryUnauthorizedClient   = "unauthorized_client"
	CategoryInternalServerError  = "internal_server_error"
	CategoryInvalidClient        = "invalid_client"
	CategoryInvalidToken         = "invalid_token"
)

// statusForCategory maps an error category to the HTTP status code a
// transport layer should respond with.
var statusForCategory = map[string]int{
	CategoryInvalidRequest:       http.StatusBadRequest,
	CategoryUnsupportedGrantType: http.StatusBadRequest,
	CategoryInvalidGrant:         http.StatusBadRequest,
	CategoryInvalidScope:         http.StatusBadRequest,
	CategoryInvalidClaim:         http.StatusBadRequest,
	CategoryUnauthorizedClient:   http.StatusBadRequest,
	CategoryInternalServerError:  http.StatusBadRequest,
	CategoryInvalidClient:        http.StatusUnauthorized,
	CategoryInvalidToken:         http.StatusForbidden,
}

// Error is an OAuth 2.0 error value.
type Error struct {
	// Category is the OAuth 2.0 error code string (e.g. "invalid_request").
	Category string

	// Message is the human-readable error description.
	Message string

	// Code is the HTTP status code derived from the category.
	Code int

	// Cause is the underlying error, if any.
	Cause error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Category, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an error with the status code implied by the category.
func New(category, message string) *Error {
	code, ok := statusForCategory[category]
	if !ok {
		code = http.StatusBadRequest
	}
	return &Error{
		Category: category,
		Message:  message,
		Code:     code,
	}
}

// NewInvalidRequestError creates an invalid_request error.
func NewInvalidRequestError(message string) *Error {
	return New(CategoryInvalidRequest, message)
}

// NewUnsupportedGrantTypeError creates an unsupported_grant_type error.
func NewUnsupportedGrantTypeError(message string) *Error {
	return New(CategoryUnsupportedGrantType, message)
}

// NewInvalidGrantError creates an invalid_grant error.
func NewInvalidGrantError(message string) *Error {
	return New(CategoryInvalidGrant, message)
}

// NewInvalidScopeError creates an invalid_scope error.
func NewInvalidScopeError(message string) *Error {
	return New(CategoryInvalidScope, message)
}

// NewInvalidClaimError creates an invalid_claim error.
func NewInvalidClaimError(message string) *Error {
	return New(CategoryInvalidClaim, message)
}

// NewUnauthorizedClientError creates an unauthorized_client error.
func NewUnauthorizedClientError(message string) *Error {
	return New(CategoryUnauthorizedClient, message)
}

// NewInternalServerError creates an internal_server_error error.
func NewInternalServerError(message string) *Error {
	return New(CategoryInternalServerError, message)
}

// NewInvalidClientError creates an invalid_client error.
func NewInvalidClientError(message string) *Error {
	return New(CategoryInvalidClient, message)
}

// NewInvalidTokenError creates an invalid_token error.
func NewInvalidTokenError(message string) *Error {
	return New(CategoryInvalidToken, message)
}

// FromErr converts an arbitrary error into an *Error. An *Error passes
// through unchanged; anything else is categorized as internal_server_error
// with the original error preserved as the cause.
func FromErr(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	e := New(CategoryInternalServerError, err.Error())
	e.Cause = err
	return e
}

// Is reports whether err is an *Error with the given category.
func Is(err error, category string) bool {
	e, ok := err.(*Error)
	return ok && e.Category == category
}

// List builds an error slice from one or more errors.
func List(errs ...*Error) []*Error {
	return errs
}

// Prefix prepends a contextual error to an existing error list. The head
// error inherits the category and status of the first underlying error so
// that wrapping never changes how the failure is reported; the underlying
// errors remain in the list.
func Prefix(message string, errs []*Error) []*Error {
	if len(errs) == 0 {
		return nil
	}
	head := &Error{
		Category: errs[0].Category,
		Message:  message,
		Code:     errs[0].Code,
	}
	return append([]*Error{head}, errs...)
}

// Errors is an error list that itself satisfies error, allowing a nested
// operation's full error list to cross a single-error boundary without being
// collapsed into one value.
type Errors []*Error

// Error joins the messages of every error in the list.
func (es Errors) Error() string {
	switch len(es) {
	case 0:
		return ""
	case 1:
		return es[0].Error()
	}
	msg := es[0].Error()
	for _, e := range es[1:] {
		msg += "; " + e.Error()
	}
	return msg
}

// Unpack flattens an error into an error list, splicing Errors values and
// converting anything else through FromErr.
func Unpack(err error) []*Error {
	if err == nil {
		return nil
	}
	if es, ok := err.(Errors); ok {
		return es
	}
	return []*Error{FromErr(err)}
}

// Contains reports whether any error in the list has the given category.
func Contains(errs []*Error, category string) bool {
	for _, e := range errs {
		if e != nil && e.Category == category {
			return true
		}
	}
	return false
}
