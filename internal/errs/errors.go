// Package errs defines the reconciler's error taxonomy. Every adapter and
// sink returns one of these types so the reconciler loop can decide, by
// type switch, whether a failure is fatal at startup or merely skips the
// current tick.
package errs

import "fmt"

// ConfigurationError means a component's configuration is invalid. It is
// always fatal at startup — the daemon must not start with a configuration
// it cannot act on.
type ConfigurationError struct {
	Component string
	Field     string
	Message   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: invalid configuration for %q: %s", e.Component, e.Field, e.Message)
}

// NetworkError means a transport-level failure occurred (connection
// refused, DNS failure, timeout). Adapters treat it as transient: log and
// skip this component for the current tick.
type NetworkError struct {
	Component string
	Cause     error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Component, e.Cause)
}

func (e *NetworkError) Unwrap() error { return e.Cause }

// AuthFailedError means the remote end rejected credentials (401/403, or a
// SIEM token that a retried re-authentication still could not refresh).
type AuthFailedError struct {
	Component string
	Message   string
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %s", e.Component, e.Message)
}

// ApiError means the remote end responded but with an unexpected status
// code or error body (anything other than the auth/not-found cases each
// adapter already handles specially).
type ApiError struct {
	Component  string
	StatusCode int
	Message    string
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("%s: api error (status %d): %s", e.Component, e.StatusCode, e.Message)
}

// ParseError means a response body could not be decoded into the expected
// shape.
type ParseError struct {
	Component   string
	RawResponse string
	Cause       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse error: %v", e.Component, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// InvalidInputError means a value already in hand (an IP string, a
// decision, a config field) failed local validation before any network
// call was attempted.
type InvalidInputError struct {
	Component string
	Field     string
	Value     string
	Message   string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("%s: invalid input %q=%q: %s", e.Component, e.Field, e.Value, e.Message)
}

// SubsystemError wraps a failure from a local OS-level subsystem call
// (e.g. invoking nft) that is neither a network nor a parse failure.
type SubsystemError struct {
	Component string
	Operation string
	Cause     error
}

func (e *SubsystemError) Error() string {
	return fmt.Sprintf("%s: subsystem error during %s: %v", e.Component, e.Operation, e.Cause)
}

func (e *SubsystemError) Unwrap() error { return e.Cause }
