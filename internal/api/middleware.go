package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/book-expert/voice-assistant/internal/gate"
)

const headerRequestID = "X-Request-ID"

// RequestID echoes the caller's request ID or assigns a new one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r)
	})
}

// AccessLog logs one line per request.
func AccessLog(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.Info("%s %s -> %d (%d bytes, %s) id=%s",
				r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start), w.Header().Get(headerRequestID))
		})
	}
}

// Recoverer turns a handler panic into a 500 JSON response.
func Recoverer(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rv := recover(); rv != nil {
					if rv == http.ErrAbortHandler {
						panic(rv)
					}

					log.Error("Recovered from panic in %s %s: %v", r.Method, r.URL.Path, rv)
					WriteError(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// ParentAuth requires a valid parent session, read from the session cookie
// or a bearer token.
func ParentAuth(sessions *gate.Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if cookie, err := r.Cookie(gate.SessionCookieName); err == nil {
				token = cookie.Value
			} else if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				token = strings.TrimPrefix(auth, "Bearer ")
			}

			if sessions.Verify(token) != nil {
				WriteError(w, http.StatusUnauthorized, "parent login required")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
