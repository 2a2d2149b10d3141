// Package oautherr carries the OAuth 2.1 error taxonomy as typed values.
// Expected protocol failures (bad grant, bad scope) travel as *Error so the
// boundary can map them to the standard wire codes without leaking which
// specific check failed; infrastructure faults travel as the retryable
// ErrStoreUnavailable or fatal ErrSigningUnavailable sentinels instead.
package oautherr

import (
	"errors"
	"fmt"
)

// Standard OAuth 2.1 error codes (RFC 6749 §5.2).
const (
	CodeInvalidRequest       = "invalid_request"
	CodeInvalidClient        = "invalid_client"
	CodeInvalidGrant         = "invalid_grant"
	CodeUnsupportedGrantType = "unsupported_grant_type"
	CodeInvalidScope         = "invalid_scope"
	CodeAccessDenied         = "access_denied"
	CodeServerError          = "server_error"
)

// Error is a protocol-level failure surfaced to the client with a standard
// code. Description stays generic: the server never reveals why validation
// failed beyond the code itself.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

var (
	ErrInvalidRequest       = &Error{Code: CodeInvalidRequest}
	ErrInvalidClient        = &Error{Code: CodeInvalidClient}
	ErrInvalidGrant         = &Error{Code: CodeInvalidGrant}
	ErrUnsupportedGrantType = &Error{Code: CodeUnsupportedGrantType}
	ErrInvalidScope         = &Error{Code: CodeInvalidScope}
	ErrAccessDenied         = &Error{Code: CodeAccessDenied}
)

// Infrastructure faults, kept distinct from grant failures: a caller may
// retry a store timeout, never an invalid_grant.
var (
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrSigningUnavailable = errors.New("signing unavailable")
)

// StoreUnavailable wraps a store fault so it surfaces as retryable.
func StoreUnavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// SigningUnavailable wraps a signer fault so it surfaces as non-retryable
// misconfiguration.
func SigningUnavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrSigningUnavailable, err)
}

// AsError extracts the protocol error if err carries one.
func AsError(err error) (*Error, bool) {
	var oe *Error
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}
