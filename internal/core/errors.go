package core

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable classification of a service failure.
type ErrorKind string

// Error kinds shared by the synthesis, chat and recognition services.
const (
	KindUnsupported           ErrorKind = "unsupported"
	KindEmptyInput            ErrorKind = "empty_input"
	KindInvalidConfig         ErrorKind = "invalid_config"
	KindInvalidCredential     ErrorKind = "invalid_credential"
	KindAccessDenied          ErrorKind = "access_denied"
	KindRateLimited           ErrorKind = "rate_limited"
	KindProviderInternalError ErrorKind = "provider_internal_error"
	KindNetworkError          ErrorKind = "network_error"
	KindSynthesisFailed       ErrorKind = "synthesis_failed"
	KindUnknownProviderError  ErrorKind = "unknown_provider_error"
	KindNotImplemented        ErrorKind = "not_implemented"
)

// Sentinel errors for use with errors.Is. They match any *Error of the same kind.
var (
	ErrUnsupported           = &Error{Kind: KindUnsupported}
	ErrEmptyInput            = &Error{Kind: KindEmptyInput}
	ErrInvalidConfig         = &Error{Kind: KindInvalidConfig}
	ErrInvalidCredential     = &Error{Kind: KindInvalidCredential}
	ErrAccessDenied          = &Error{Kind: KindAccessDenied}
	ErrRateLimited           = &Error{Kind: KindRateLimited}
	ErrProviderInternalError = &Error{Kind: KindProviderInternalError}
	ErrNetworkError          = &Error{Kind: KindNetworkError}
	ErrSynthesisFailed       = &Error{Kind: KindSynthesisFailed}
	ErrUnknownProviderError  = &Error{Kind: KindUnknownProviderError}
	ErrNotImplemented        = &Error{Kind: KindNotImplemented}
)

// Error is a classified failure. Message is safe to show to end users; Err
// keeps the underlying cause for operator logs.
type Error struct {
	Err     error
	Kind    ErrorKind
	Backend string
	Message string
}

// NewError builds a classified error.
func NewError(kind ErrorKind, backend, message string, cause error) *Error {
	return &Error{
		Err:     cause,
		Kind:    kind,
		Backend: backend,
		Message: message,
	}
}

// Errorf builds a classified error with a formatted message and no cause.
func Errorf(kind ErrorKind, backend, format string, args ...any) *Error {
	return NewError(kind, backend, fmt.Sprintf(format, args...), nil)
}

func (e *Error) Error() string {
	message := e.Message
	if message == "" {
		message = string(e.Kind)
	}

	if e.Backend == "" {
		return message
	}

	return fmt.Sprintf("%s [%s]", message, e.Backend)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := target.(*Error)
	if !ok {
		return false
	}

	return sentinel.Message == "" && sentinel.Backend == "" && sentinel.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or an empty
// kind when err is not classified.
func KindOf(err error) ErrorKind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}

	return ""
}
