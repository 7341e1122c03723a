package ynab

import (
	"errors"
	"fmt"
	"net"
	"unicode/utf8"

	applog "budgetreport/internal/log"
)

// APIError reports a non-2xx response or a body that could not be decoded.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
	// Populated from the error envelope when the server sent one.
	ID     string
	Name   string
	Detail string
	// Parse is set when the status was fine but the JSON was not.
	Parse string
}

func (e *APIError) Error() string {
	if e.Parse != "" {
		return fmt.Sprintf("budget API %s: unexpected response: %s", e.Endpoint, e.Parse)
	}
	if e.Detail != "" {
		return fmt.Sprintf("budget API %s: status %d: %s (%s)", e.Endpoint, e.StatusCode, e.Detail, e.Name)
	}
	return fmt.Sprintf("budget API %s: status %d: %s", e.Endpoint, e.StatusCode, truncate(e.Body, 200))
}

func (e *APIError) ErrorType() string { return applog.ErrorTypeAPI }

// NetworkError reports a transport failure: DNS, refused connection, timeout.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("budget API %s: network error: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) ErrorType() string {
	var ne net.Error
	if errors.As(e.Err, &ne) && ne.Timeout() {
		return applog.ErrorTypeTimeout
	}
	return applog.ErrorTypeNetwork
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 401
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
