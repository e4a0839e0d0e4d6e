package bump

import (
	"errors"
	"fmt"
)

// ConfigurationError means an input the run cannot start without is missing,
// it is always returned before any network request is made.
type ConfigurationError struct {
	Missing string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: no %s available", e.Missing)
}

type ParseErrorReason string

const (
	NoNodeId      ParseErrorReason = "no_node_id"
	NoDestination ParseErrorReason = "no_destination"
	InvalidUrl    ParseErrorReason = "invalid_url"
)

type ParseError struct {
	Reason ParseErrorReason
	Url    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse bump url %q: %s", e.Url, e.Reason)
}

// ErrNotAuthenticated is returned when the session cookies do not log in to the site.
var ErrNotAuthenticated = errors.New("session is not authenticated, cookies may be expired or invalid")

// ErrTokenNotFound is wrapped by TokenFetchError when the listing page has no usable form token.
var ErrTokenNotFound = errors.New("no form_token or form_build_id found")

// TokenFetchError means the listing page could not be loaded or had no token.
// Status is 0 if no response was received.
type TokenFetchError struct {
	Status int
	Err    error
}

func (e *TokenFetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch form token: unexpected status %d", e.Status)
	}
	return fmt.Sprintf("fetch form token: %s", e.Err.Error())
}

func (e *TokenFetchError) Unwrap() error {
	return e.Err
}
