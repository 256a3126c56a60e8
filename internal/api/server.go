// Package api exposes the assistant over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/book-expert/voice-assistant/internal/core"
	"github.com/book-expert/voice-assistant/internal/gate"
	"github.com/book-expert/voice-assistant/internal/llm"
	"github.com/book-expert/voice-assistant/internal/metrics"
)

// ChatService answers chat requests.
type ChatService interface {
	Validate(cfg llm.ProviderConfig) core.ValidationResult
	Call(ctx context.Context, cfg llm.ProviderConfig, messages []llm.Message) (string, error)
	TestConnection(ctx context.Context, cfg llm.ProviderConfig) llm.ConnectionResult
}

// SpeechService synthesizes speech and previews the spoken text.
type SpeechService interface {
	core.Synthesizer
	Preview(raw string) string
}

// RecognitionService transcribes audio.
type RecognitionService interface {
	Validate(engine, language, credential string) core.ValidationResult
	Recognize(ctx context.Context, req core.RecognitionRequest) (string, error)
}

// Dependencies are the services behind the HTTP handlers.
type Dependencies struct {
	Chat          ChatService
	Speech        SpeechService
	Recognition   RecognitionService
	Gate          *gate.Gate
	Sessions      *gate.Sessions
	Log           *logger.Logger
	Version       string
	DefaultEngine string
}

// Timeouts bound the HTTP server.
type Timeouts struct {
	Read  time.Duration
	Write time.Duration
	Idle  time.Duration
}

// Server wraps the HTTP server.
type Server struct {
	http *http.Server
	log  *logger.Logger
}

// NewRouter builds the route tree.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Recoverer(deps.Log))
	r.Use(AccessLog(deps.Log))
	r.Use(metrics.InstrumentHandler)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	assistant := &assistantHandler{deps: deps}
	parent := &parentHandler{gate: deps.Gate, sessions: deps.Sessions, log: deps.Log}

	r.Route("/api", func(r chi.Router) {
		assistant.Routes(r)
		parent.Routes(r)
	})

	return r
}

// NewServer creates a server listening on addr.
func NewServer(addr string, timeouts Timeouts, deps Dependencies) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(deps),
			ReadHeaderTimeout: timeouts.Read,
			ReadTimeout:       timeouts.Read,
			WriteTimeout:      timeouts.Write,
			IdleTimeout:       timeouts.Idle,
		},
		log: deps.Log,
	}
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.System("HTTP server listening on %s", s.http.Addr)

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.System("HTTP server shutting down")

	return s.http.Shutdown(ctx)
}
