package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/voice-assistant/internal/core"
)

const maxJSONBodyBytes = 1 << 20

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// WriteServiceError writes err with the status of its kind.
func WriteServiceError(w http.ResponseWriter, err error) {
	kind := core.KindOf(err)
	WriteJSON(w, StatusForKind(kind), ErrorResponse{Error: err.Error(), Kind: string(kind)})
}

// StatusForKind maps an error kind onto an HTTP status.
func StatusForKind(kind core.ErrorKind) int {
	switch kind {
	case core.KindUnsupported, core.KindEmptyInput, core.KindInvalidConfig:
		return http.StatusBadRequest
	case core.KindInvalidCredential:
		return http.StatusUnauthorized
	case core.KindAccessDenied:
		return http.StatusForbidden
	case core.KindRateLimited:
		return http.StatusTooManyRequests
	case core.KindNotImplemented:
		return http.StatusNotImplemented
	case core.KindProviderInternalError, core.KindNetworkError, core.KindUnknownProviderError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeConfigError writes a failed validation as a 400.
func writeConfigError(w http.ResponseWriter, result core.ValidationResult) {
	WriteError(w, http.StatusBadRequest, "config error: "+strings.Join(result.Errors(), ", "))
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}

		return fmt.Errorf("invalid JSON body: %w", err)
	}

	return nil
}

func timestamp() string {
	return time.Now().Format(time.RFC3339)
}
