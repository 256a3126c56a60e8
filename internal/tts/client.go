// Package tts turns assistant replies into spoken audio.
//
// The Client validates a request, cleans the text with the Sanitizer and runs
// the selected engine with a bounded retry loop. Every attempt writes to its
// own temporary file; failed attempts never leave a file behind.
package tts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/voice-assistant/internal/core"
	"github.com/book-expert/voice-assistant/internal/fileutil"
	"github.com/book-expert/voice-assistant/internal/metrics"
	"github.com/book-expert/voice-assistant/internal/tts/text"
)

// Retry defaults.
const (
	DefaultMaxAttempts = 2
	DefaultRetryDelay  = time.Second
)

const artifactExtension = ".mp3"

// Log and error messages.
const (
	logFmtAttempt        = "TTS attempt %d/%d [%s]: voice=%s rate=%s volume=%s"
	logFmtAttemptFailed  = "TTS attempt %d/%d [%s] failed: %v"
	logFmtSynthesized    = "TTS synthesized [%s]: %d characters, %s"
	logFmtNothingToSpeak = "TTS text is empty after cleaning, skipping synthesis [%s]"
	logFmtExhausted      = "CRITICAL: speech synthesis failed permanently [%s] after %d attempts, check the network and the engine installation: %v"
	logFmtRemoveFailed   = "Failed to remove temp artifact '%s': %v"
	msgSynthesisFailed   = "speech synthesis failed"
	msgEmptyText         = "text cannot be empty"
)

// ErrEmptyArtifact indicates that the engine reported success but wrote no audio.
var ErrEmptyArtifact = errors.New("synthesized audio file is empty")

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithEngine registers or replaces the engine for id.
func WithEngine(id EngineID, engine Engine) ClientOption {
	return func(c *Client) {
		c.engines[id] = engine
	}
}

// WithMaxAttempts sets the total number of engine invocations per request.
func WithMaxAttempts(attempts int) ClientOption {
	return func(c *Client) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
	}
}

// WithRetryDelay sets the pause between failed attempts.
func WithRetryDelay(delay time.Duration) ClientOption {
	return func(c *Client) {
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

// WithTempDir sets the directory for temporary artifacts.
func WithTempDir(dir string) ClientOption {
	return func(c *Client) {
		if dir != "" {
			c.tempDir = dir
		}
	}
}

// WithSanitizer replaces the default Sanitizer.
func WithSanitizer(sanitizer *text.Sanitizer) ClientOption {
	return func(c *Client) {
		if sanitizer != nil {
			c.sanitizer = sanitizer
		}
	}
}

// Client is the speech synthesis service. It is safe for concurrent use.
type Client struct {
	engines     map[EngineID]Engine
	sanitizer   *text.Sanitizer
	log         *logger.Logger
	tempDir     string
	maxAttempts int
	retryDelay  time.Duration
}

// NewClient creates a Client with the edge and azure engines registered.
func NewClient(log *logger.Logger, opts ...ClientOption) *Client {
	client := &Client{
		engines: map[EngineID]Engine{
			EngineEdge:  NewEdgeEngine(DefaultEdgeBinary),
			EngineAzure: AzureEngine{},
		},
		sanitizer:   text.NewSanitizer(),
		log:         log,
		tempDir:     os.TempDir(),
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Preview returns what would be spoken for raw without synthesizing it.
func (c *Client) Preview(raw string) string {
	return c.sanitizer.Sanitize(raw)
}

// Synthesize validates req, cleans its text and runs the engine.
//
// A result with Empty set means nothing was left to speak. On success the
// caller owns the artifact and must remove it.
func (c *Client) Synthesize(ctx context.Context, req core.SynthesisRequest) (*core.SynthesisResult, error) {
	engineID, err := ParseEngine(req.Engine)
	if err != nil {
		return nil, err
	}

	engine, registered := c.engines[engineID]
	if !registered {
		return nil, core.Errorf(core.KindUnsupported, req.Engine, "unsupported TTS engine: %s", req.Engine)
	}

	if strings.TrimSpace(req.Text) == "" {
		return nil, core.NewError(core.KindEmptyInput, req.Engine, msgEmptyText, nil)
	}

	if req.Voice == "" {
		req.Voice = DefaultVoice
	}

	validationErr := ValidateConfig(req.Engine, req.Voice, req.Rate, req.Volume).Err(req.Engine)
	if validationErr != nil {
		return nil, validationErr
	}

	spoken := c.sanitizer.Sanitize(req.Text)
	if spoken == "" {
		c.log.Warn(logFmtNothingToSpeak, req.Engine)
		metrics.SynthesisRequestsTotal.WithLabelValues(req.Engine, metrics.OutcomeEmpty).Inc()

		return &core.SynthesisResult{Empty: true}, nil
	}

	job := Job{
		Text:   spoken,
		Voice:  req.Voice,
		Rate:   FormatPercent(req.Rate),
		Volume: FormatPercent(req.Volume),
	}

	artifact, err := c.synthesizeWithRetry(ctx, engineID, engine, job)
	if err != nil {
		metrics.SynthesisRequestsTotal.WithLabelValues(req.Engine, metrics.OutcomeFailure).Inc()

		return nil, err
	}

	metrics.SynthesisRequestsTotal.WithLabelValues(req.Engine, metrics.OutcomeSuccess).Inc()
	metrics.SynthesisArtifactBytes.Observe(float64(artifact.Size))

	return &core.SynthesisResult{Artifact: artifact, SpokenText: spoken}, nil
}

func (c *Client) synthesizeWithRetry(
	ctx context.Context,
	engineID EngineID,
	engine Engine,
	job Job,
) (*core.Artifact, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		c.log.Info(logFmtAttempt, attempt, c.maxAttempts, engineID, job.Voice, job.Rate, job.Volume)

		artifact, attemptErr := c.attempt(ctx, engine, job)
		if attemptErr == nil {
			metrics.SynthesisAttemptsTotal.WithLabelValues(string(engineID), metrics.OutcomeSuccess).Inc()
			c.log.Info(logFmtSynthesized, engineID, len([]rune(job.Text)), fileutil.FormatFileSize(artifact.Size))

			return artifact, nil
		}

		metrics.SynthesisAttemptsTotal.WithLabelValues(string(engineID), metrics.OutcomeFailure).Inc()
		c.log.Error(logFmtAttemptFailed, attempt, c.maxAttempts, engineID, attemptErr)

		// An engine that is not implemented will not start working on retry.
		if errors.Is(attemptErr, core.ErrNotImplemented) {
			return nil, attemptErr
		}

		lastErr = attemptErr

		if attempt == c.maxAttempts {
			break
		}

		waitErr := c.wait(ctx)
		if waitErr != nil {
			lastErr = waitErr

			break
		}
	}

	c.log.Error(logFmtExhausted, engineID, c.maxAttempts, lastErr)

	return nil, core.NewError(
		core.KindSynthesisFailed,
		string(engineID),
		msgSynthesisFailed,
		lastErr,
	)
}

// attempt runs the engine once. The artifact is removed on every failure
// path, including cancellation.
func (c *Client) attempt(ctx context.Context, engine Engine, job Job) (*core.Artifact, error) {
	dirErr := fileutil.EnsureDir(c.tempDir)
	if dirErr != nil {
		return nil, dirErr
	}

	artifact := &core.Artifact{Path: filepath.Join(c.tempDir, "tts-"+uuid.NewString()+artifactExtension)}

	synthErr := engine.Synthesize(ctx, job, artifact.Path)
	if synthErr == nil {
		synthErr = ctx.Err()
	}

	if synthErr == nil {
		info, statErr := os.Stat(artifact.Path)

		switch {
		case statErr != nil:
			synthErr = fmt.Errorf("failed to stat synthesized audio: %w", statErr)
		case info.Size() == 0:
			synthErr = ErrEmptyArtifact
		default:
			artifact.Size = info.Size()

			return artifact, nil
		}
	}

	removeErr := artifact.Remove()
	if removeErr != nil {
		c.log.Warn(logFmtRemoveFailed, artifact.Path, removeErr)
	}

	return nil, synthErr
}

func (c *Client) wait(ctx context.Context) error {
	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("synthesis retry cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// FormatPercent renders a multiplier as a signed percentage offset from 1.0,
// for example 1.2 as "+20%" and 0.8 as "-20%".
func FormatPercent(multiplier float64) string {
	offset := int(math.Round((multiplier - 1) * 100))

	return fmt.Sprintf("%+d%%", offset)
}
