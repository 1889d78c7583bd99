package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNetwork marks transport failures: the request never got a response.
	ErrNetwork = errors.New("unable to connect to server; check your internet connection or verify the API URL")

	// ErrUnauthorized marks 401/403 responses. Authenticated calls that fail
	// this way have already torn the session down when the error is returned.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound marks 404 responses.
	ErrNotFound = errors.New("not found")
)

// Error is a non-2xx response from the backend.
type Error struct {
	Op      string
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.Status)
}

// Unwrap lets callers test the status class with errors.Is.
func (e *Error) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// IsUnauthorized reports whether err came from a 401/403.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
