// Package asr dispatches speech recognition requests.
//
// The browser engine runs on the client; the server only acknowledges it.
// The whisper engine uploads the audio to a transcription endpoint.
package asr

import (
	"context"
	"strings"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-assistant/internal/core"
	"github.com/book-expert/voice-assistant/internal/metrics"
)

// EngineID names a recognition backend.
type EngineID string

// Known engines.
const (
	EngineBrowser EngineID = "browser"
	EngineWhisper EngineID = "whisper"
)

// Defaults.
const (
	DefaultTimeout  = 30 * time.Second
	DefaultLanguage = "zh-CN"
	// BrowserPlaceholder is returned for the browser engine, whose
	// recognition happens in the frontend.
	BrowserPlaceholder = "浏览器ASR在前端处理"
)

const (
	logFmtRecognize       = "ASR request: engine=%s, language=%s, bytes=%d, api_key=%s"
	logFmtRecognizeFailed = "ASR failed [%s] (%s): %v"
	metricsService        = "asr"
)

var languages = map[string]string{
	"zh-CN": "中文",
	"en-US": "英语",
	"ja-JP": "日语",
	"ko-KR": "韩语",
}

// ParseEngine maps a configuration string onto a known engine.
func ParseEngine(name string) (EngineID, error) {
	switch EngineID(strings.TrimSpace(name)) {
	case EngineBrowser:
		return EngineBrowser, nil
	case EngineWhisper:
		return EngineWhisper, nil
	default:
		return "", core.Errorf(core.KindUnsupported, name, "unsupported ASR engine: %s", name)
	}
}

// Engines lists the supported engines.
func Engines() []string {
	return []string{string(EngineBrowser), string(EngineWhisper)}
}

// Languages returns the supported languages keyed by regional code.
func Languages() map[string]string {
	supported := make(map[string]string, len(languages))
	for code, name := range languages {
		supported[code] = name
	}

	return supported
}

// LanguageCode reduces a regional code such as "zh-CN" to "zh".
func LanguageCode(language string) string {
	code, _, _ := strings.Cut(language, "-")

	return code
}

// Validate checks a recognition configuration.
func Validate(engine, language, credential string) core.ValidationResult {
	result := core.NewValidationResult()

	id, engineErr := ParseEngine(engine)
	if engineErr != nil {
		result.AddError("unsupported ASR engine: %s", engine)
	}

	if _, known := languages[language]; !known {
		result.AddWarning("language %s may not be supported", language)
	}

	if id == EngineWhisper && credential == "" {
		result.AddError("the whisper engine requires an API key")
	}

	return result
}

// Option configures a Service.
type Option func(*Service)

// WithWhisperClient replaces the transcription client.
func WithWhisperClient(client *WhisperClient) Option {
	return func(s *Service) {
		if client != nil {
			s.whisper = client
		}
	}
}

// Service is the speech recognition dispatch service.
type Service struct {
	whisper *WhisperClient
	log     *logger.Logger
}

// NewService creates a Service using the public transcription endpoint.
func NewService(log *logger.Logger, opts ...Option) *Service {
	service := &Service{
		whisper: NewWhisperClient(DefaultWhisperURL, DefaultTimeout),
		log:     log,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// Validate checks a recognition configuration.
func (s *Service) Validate(engine, language, credential string) core.ValidationResult {
	return Validate(engine, language, credential)
}

// Recognize returns the transcript of req.Audio.
func (s *Service) Recognize(ctx context.Context, req core.RecognitionRequest) (string, error) {
	id, err := ParseEngine(req.Engine)
	if err != nil {
		return "", err
	}

	if req.Language == "" {
		req.Language = DefaultLanguage
	}

	s.log.Info(logFmtRecognize, id, req.Language, len(req.Audio), core.MaskCredential(req.Credential))

	switch id {
	case EngineBrowser:
		return BrowserPlaceholder, nil
	case EngineWhisper:
		return s.recognizeWhisper(ctx, req)
	default:
		return "", core.Errorf(core.KindUnsupported, req.Engine, "unsupported ASR engine: %s", req.Engine)
	}
}

func (s *Service) recognizeWhisper(ctx context.Context, req core.RecognitionRequest) (string, error) {
	backend := string(EngineWhisper)

	if req.Credential == "" {
		return "", core.Errorf(core.KindInvalidConfig, backend, "the whisper engine requires an API key")
	}

	if len(req.Audio) == 0 {
		return "", core.Errorf(core.KindEmptyInput, backend, "audio cannot be empty")
	}

	transcript, err := s.whisper.Transcribe(ctx, req.Credential, req.Audio, req.Filename, LanguageCode(req.Language))
	if err != nil {
		normalized := core.NormalizeError(backend, err)
		kind := core.KindOf(normalized)

		s.log.Error(logFmtRecognizeFailed, backend, kind, err)
		metrics.ObserveProviderCall(metricsService, backend, string(kind))

		return "", normalized
	}

	metrics.ObserveProviderCall(metricsService, backend, "")

	return transcript, nil
}
