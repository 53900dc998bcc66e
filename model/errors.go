package model

import "errors"

// Sentinel error kinds per the error-handling design: loader/manager failures
// are wrapped with these so callers can classify without string matching.
var (
	ErrCredentialMissing  = errors.New("credential missing")
	ErrAuthFailed         = errors.New("authentication failed")
	ErrTransport          = errors.New("transport error")
	ErrTimeout            = errors.New("timeout")
	ErrStorage            = errors.New("storage error")
	ErrLocator            = errors.New("locator error")
	ErrBackendUnavailable = errors.New("kv backend unavailable")
	ErrSerializer         = errors.New("serializer error")
	ErrNotFound           = errors.New("key not found")
)
