package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

const maxStatusBodyLength = 512

// User-facing messages for normalized provider failures.
const (
	msgInvalidCredential = "invalid or expired API key: check that the API key is correct"
	msgAccessDenied      = "access denied: check the API key permissions or account status"
	msgRateLimited       = "too many requests: please retry later"
	msgProviderInternal  = "provider internal error: please retry later"
	msgNetworkError      = "network connection failed: check the network connection"
	msgFmtAPICallFailed  = "API call failed: %s"
	msgFmtUnknownFailure = "provider call failed: %s"
)

// StatusError is returned by provider strategies when the remote endpoint
// answers with a non-success HTTP status.
type StatusError struct {
	Body       string
	StatusCode int
}

// NewStatusError builds a StatusError, truncating the body to keep log lines short.
func NewStatusError(statusCode int, body string) *StatusError {
	if len(body) > maxStatusBodyLength {
		body = body[:maxStatusBodyLength]
	}

	return &StatusError{StatusCode: statusCode, Body: body}
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}

	return fmt.Sprintf("status %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// NormalizeError maps a raw provider failure onto the error taxonomy.
//
// HTTP 401, 403, 429 and 500 map to dedicated kinds, transport failures map
// to KindNetworkError and everything else becomes KindUnknownProviderError
// carrying the original message. Already classified errors pass through.
func NormalizeError(backend string, err error) error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return normalizeStatus(backend, statusErr)
	}

	if isTransportError(err) {
		return NewError(KindNetworkError, backend, msgNetworkError, err)
	}

	return NewError(KindUnknownProviderError, backend, fmt.Sprintf(msgFmtUnknownFailure, err.Error()), err)
}

func normalizeStatus(backend string, statusErr *StatusError) error {
	switch statusErr.StatusCode {
	case http.StatusUnauthorized:
		return NewError(KindInvalidCredential, backend, msgInvalidCredential, statusErr)
	case http.StatusForbidden:
		return NewError(KindAccessDenied, backend, msgAccessDenied, statusErr)
	case http.StatusTooManyRequests:
		return NewError(KindRateLimited, backend, msgRateLimited, statusErr)
	case http.StatusInternalServerError:
		return NewError(KindProviderInternalError, backend, msgProviderInternal, statusErr)
	default:
		return NewError(
			KindUnknownProviderError,
			backend,
			fmt.Sprintf(msgFmtAPICallFailed, statusErr.Error()),
			statusErr,
		)
	}
}

func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr)
}
