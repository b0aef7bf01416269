// Package common provides shared constants, types, and utilities
// used across the ovpn3 client.
package common

import "errors"

// Sentinel errors for ovpn3 operations.
// These can be checked with errors.Is() for proper error handling.
var (
	// Session readiness errors, recognized from the daemon's error text.
	ErrBackendNotReady        = errors.New("backend VPN process is not ready")
	ErrMissingUserCredentials = errors.New("missing user credentials")

	// ErrUserInputSlotMismatch is returned when the daemon echoes back a
	// user input slot other than the one that was requested.
	ErrUserInputSlotMismatch = errors.New("mismatch in user input queue slot")

	// Decoding errors.
	ErrDecode = errors.New("decode error")
	ErrJSON   = errors.New("invalid JSON document")

	// Negotiation errors.
	ErrRetriesExhausted = errors.New("readiness retries exhausted")
	ErrNoCredential     = errors.New("no credential available")

	// Lookup errors.
	ErrNotFound      = errors.New("not found")
	ErrAmbiguousName = errors.New("name matches more than one object")

	// ErrStreamClosed is returned by a signal stream after Close.
	ErrStreamClosed = errors.New("signal stream closed")

	// Credential errors.
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrCredentialStorage   = errors.New("failed to store credentials")
	ErrDecryption          = errors.New("decryption error")

	// Configuration errors.
	ErrConfigLoad = errors.New("failed to load configuration")
	ErrConfigSave = errors.New("failed to save configuration")
)

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
