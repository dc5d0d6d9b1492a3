// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"errors"
	"fmt"
	"net/http"
)

// Errors returned by the lookup clients.
var (
	// ErrNotFound means the service answered but knows no mapping.
	ErrNotFound = errors.New("no result")

	// ErrUnreachable means the request never got an HTTP response.
	ErrUnreachable = errors.New("service unreachable")

	// ErrInvalidResponse means the service answered with a body we could not use.
	ErrInvalidResponse = errors.New("invalid response")
)

// APIError is an unexpected HTTP status from a lookup service.
type APIError struct {
	Service    string
	StatusCode int
	Key        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d for %s", e.Service, e.StatusCode, e.Key)
}

// IsNotFound reports whether err means "the service has no answer".
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsUnreachable reports whether err means the service could not be reached.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}
