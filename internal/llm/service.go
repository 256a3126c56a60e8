// Package llm dispatches chat requests to the supported language model
// providers and maps their failures onto the shared error taxonomy.
package llm

import (
	"context"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-assistant/internal/core"
	"github.com/book-expert/voice-assistant/internal/metrics"
)

// Defaults for provider calls.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxTokens = 1000
)

const (
	logFmtCall          = "Calling LLM: provider=%s, model=%s, messages=%d, api_key=%s"
	logFmtCallFailed    = "LLM call failed [%s] (%s): %v"
	logFmtCallSucceeded = "LLM call succeeded [%s]: %d characters"
	msgConnectionOK     = "API connection test succeeded"
	metricsService      = "llm"
	connectionTestInput = "Hello"
	connectionTestTemp  = 0.1
)

// Error codes reported by TestConnection.
const (
	CodeInvalidAPIKey    = "invalid_api_key"
	CodePermissionDenied = "permission_denied"
	CodeRateLimit        = "rate_limit"
	CodeConnectionError  = "connection_error"
	CodeUnknown          = "unknown"
)

// ConnectionResult reports the outcome of TestConnection.
type ConnectionResult struct {
	ErrorCode *string `json:"error_code"`
	Message   string  `json:"message"`
	Success   bool    `json:"success"`
}

// Option configures a Service.
type Option func(*Service)

// WithEndpoint overrides the endpoint of a provider.
func WithEndpoint(provider ProviderID, endpoint string) Option {
	return func(s *Service) {
		s.endpoints[provider] = endpoint
	}
}

// WithTimeout bounds every provider call.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.client = NewChatClient(timeout)
		}
	}
}

// WithMaxTokens sets the completion token budget.
func WithMaxTokens(maxTokens int) Option {
	return func(s *Service) {
		if maxTokens > 0 {
			s.maxTokens = maxTokens
		}
	}
}

// Service is the chat dispatch service.
type Service struct {
	client    *ChatClient
	endpoints map[ProviderID]string
	log       *logger.Logger
	maxTokens int
}

// NewService creates a Service with the default provider endpoints.
func NewService(log *logger.Logger, opts ...Option) *Service {
	service := &Service{
		client:    NewChatClient(DefaultTimeout),
		endpoints: make(map[ProviderID]string, len(providerSpecs)),
		log:       log,
		maxTokens: DefaultMaxTokens,
	}

	for id, spec := range providerSpecs {
		service.endpoints[id] = spec.endpoint
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// Validate checks cfg against the provider catalogue.
func (s *Service) Validate(cfg ProviderConfig) core.ValidationResult {
	return Validate(cfg)
}

// Call sends messages to the configured provider and returns the reply text.
// Provider failures are returned as *core.Error with a normalized kind.
func (s *Service) Call(ctx context.Context, cfg ProviderConfig, messages []Message) (string, error) {
	id, err := ParseProvider(cfg.Provider)
	if err != nil {
		return "", err
	}

	if cfg.Credential == "" {
		return "", core.Errorf(core.KindInvalidConfig, cfg.Provider, "API key cannot be empty")
	}

	spec := providerSpecs[id]

	model := cfg.Model
	if spec.fixedModel || model == "" {
		model = spec.defaultModel
	}

	s.log.Info(logFmtCall, id, model, len(messages), core.MaskCredential(cfg.Credential))

	req := ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: cfg.Temperature,
		MaxTokens:   s.maxTokens,
		Stream:      false,
	}

	reply, callErr := s.client.Complete(ctx, s.endpoints[id], cfg.Credential, req)
	if callErr != nil {
		normalized := core.NormalizeError(string(id), callErr)
		kind := core.KindOf(normalized)

		s.log.Error(logFmtCallFailed, id, kind, callErr)
		metrics.ObserveProviderCall(metricsService, string(id), string(kind))

		return "", normalized
	}

	s.log.Info(logFmtCallSucceeded, id, len([]rune(reply)))
	metrics.ObserveProviderCall(metricsService, string(id), "")

	return reply, nil
}

// TestConnection sends a minimal prompt and reports whether the provider
// accepted the credential.
func (s *Service) TestConnection(ctx context.Context, cfg ProviderConfig) ConnectionResult {
	cfg.Temperature = connectionTestTemp

	_, err := s.Call(ctx, cfg, []Message{{Role: "user", Content: connectionTestInput}})
	if err == nil {
		return ConnectionResult{Success: true, Message: msgConnectionOK}
	}

	code := connectionErrorCode(core.KindOf(err))

	return ConnectionResult{Message: err.Error(), ErrorCode: &code}
}

func connectionErrorCode(kind core.ErrorKind) string {
	switch kind {
	case core.KindInvalidCredential:
		return CodeInvalidAPIKey
	case core.KindAccessDenied:
		return CodePermissionDenied
	case core.KindRateLimited:
		return CodeRateLimit
	case core.KindNetworkError:
		return CodeConnectionError
	default:
		return CodeUnknown
	}
}
