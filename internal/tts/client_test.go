package tts_test

import (
	"context"
	"errors"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-assistant/internal/core"
	"github.com/book-expert/voice-assistant/internal/tts"
	"github.com/book-expert/voice-assistant/internal/tts/text"
)

var errEngineDown = errors.New("engine unavailable")

// attemptFunc scripts one engine invocation.
type attemptFunc func(ctx context.Context, outputPath string) error

func writeAudio(_ context.Context, outputPath string) error {
	return os.WriteFile(outputPath, []byte("ID3-fake-mp3"), 0o600)
}

func writeEmpty(_ context.Context, outputPath string) error {
	return os.WriteFile(outputPath, nil, 0o600)
}

func writePartialThenFail(_ context.Context, outputPath string) error {
	writeErr := os.WriteFile(outputPath, []byte("partial"), 0o600)
	if writeErr != nil {
		return writeErr
	}

	return errEngineDown
}

func blockUntilCancelled(ctx context.Context, outputPath string) error {
	writeErr := os.WriteFile(outputPath, []byte("partial"), 0o600)
	if writeErr != nil {
		return writeErr
	}

	<-ctx.Done()

	return ctx.Err()
}

// scriptedEngine replays a fixed list of outcomes and records every job.
type scriptedEngine struct {
	attempts []attemptFunc
	jobs     []tts.Job
	mu       sync.Mutex
}

func (e *scriptedEngine) Synthesize(ctx context.Context, job tts.Job, outputPath string) error {
	e.mu.Lock()
	index := len(e.jobs)
	e.jobs = append(e.jobs, job)
	e.mu.Unlock()

	if index >= len(e.attempts) {
		return writeAudio(ctx, outputPath)
	}

	return e.attempts[index](ctx, outputPath)
}

func (e *scriptedEngine) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.jobs)
}

func newTestClient(t *testing.T, engine tts.Engine, opts ...tts.ClientOption) (*tts.Client, string) {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "tts-test.log")
	require.NoError(t, err)

	tempDir := t.TempDir()
	options := append([]tts.ClientOption{
		tts.WithEngine(tts.EngineEdge, engine),
		tts.WithTempDir(tempDir),
		tts.WithRetryDelay(time.Millisecond),
	}, opts...)

	return tts.NewClient(testLogger, options...), tempDir
}

func validRequest(input string) core.SynthesisRequest {
	return core.SynthesisRequest{
		Text:   input,
		Engine: "edge",
		Voice:  tts.DefaultVoice,
		Rate:   1.2,
		Volume: 0.8,
	}
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "temporary artifacts leaked")
}

func TestSynthesize_Success(t *testing.T) {
	t.Parallel()

	engine := &scriptedEngine{attempts: []attemptFunc{writeAudio}}
	client, tempDir := newTestClient(t, engine)

	result, err := client.Synthesize(context.Background(), validRequest("Visit https://example.com now"))
	require.NoError(t, err)
	require.False(t, result.Empty)
	require.NotNil(t, result.Artifact)

	assert.Equal(t, "Visit now", result.SpokenText)
	assert.Positive(t, result.Artifact.Size)
	assert.FileExists(t, result.Artifact.Path)

	require.Len(t, engine.jobs, 1)
	assert.Equal(t, tts.Job{Text: "Visit now", Voice: tts.DefaultVoice, Rate: "+20%", Volume: "-20%"}, engine.jobs[0])

	require.NoError(t, result.Artifact.Remove())
	requireEmptyDir(t, tempDir)
}

func TestSynthesize_RetryExhaustionCleansUp(t *testing.T) {
	t.Parallel()

	engine := &scriptedEngine{attempts: []attemptFunc{writePartialThenFail, writePartialThenFail, writeAudio}}
	client, tempDir := newTestClient(t, engine, tts.WithMaxAttempts(2))

	result, err := client.Synthesize(context.Background(), validRequest("Hello there, friend"))
	require.Error(t, err)
	require.Nil(t, result)

	require.ErrorIs(t, err, core.ErrSynthesisFailed)
	require.ErrorIs(t, err, errEngineDown)
	assert.Equal(t, 2, engine.calls())
	requireEmptyDir(t, tempDir)
}

func TestSynthesize_FailureMessageOmitsEngineOutput(t *testing.T) {
	t.Parallel()

	engineOutput := errors.New("Traceback (most recent call last): File \"/usr/lib/edge_tts/communicate.py\"")
	failWithTraceback := func(context.Context, string) error { return engineOutput }

	engine := &scriptedEngine{attempts: []attemptFunc{failWithTraceback}}
	client, _ := newTestClient(t, engine, tts.WithMaxAttempts(1))

	_, err := client.Synthesize(context.Background(), validRequest("Hello there, friend"))
	require.ErrorIs(t, err, core.ErrSynthesisFailed)
	require.ErrorIs(t, err, engineOutput)
	assert.NotContains(t, err.Error(), "Traceback")
	assert.Contains(t, err.Error(), "speech synthesis failed")
}

func TestSynthesize_EmptyArtifactIsRetried(t *testing.T) {
	t.Parallel()

	engine := &scriptedEngine{attempts: []attemptFunc{writeEmpty, writeAudio}}
	client, tempDir := newTestClient(t, engine)

	result, err := client.Synthesize(context.Background(), validRequest("Hello there, friend"))
	require.NoError(t, err)
	assert.Equal(t, 2, engine.calls())

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, result.Artifact.Remove())
}

func TestSynthesize_EmptyArtifactExhausts(t *testing.T) {
	t.Parallel()

	engine := &scriptedEngine{attempts: []attemptFunc{writeEmpty, writeEmpty}}
	client, tempDir := newTestClient(t, engine)

	_, err := client.Synthesize(context.Background(), validRequest("Hello there, friend"))
	require.ErrorIs(t, err, tts.ErrEmptyArtifact)
	require.ErrorIs(t, err, core.ErrSynthesisFailed)
	requireEmptyDir(t, tempDir)
}

func TestSynthesize_RejectsBeforeInvokingEngine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expected error
		name     string
		req      core.SynthesisRequest
	}{
		{name: "blank text", req: validRequest("  \n\t "), expected: core.ErrEmptyInput},
		{
			name:     "unknown engine",
			req:      core.SynthesisRequest{Text: "hello there", Engine: "espeak", Rate: 1, Volume: 1},
			expected: core.ErrUnsupported,
		},
		{
			name:     "rate out of range",
			req:      core.SynthesisRequest{Text: "hello there", Engine: "edge", Rate: 3.0, Volume: 1},
			expected: core.ErrInvalidConfig,
		},
		{
			name:     "volume out of range",
			req:      core.SynthesisRequest{Text: "hello there", Engine: "edge", Rate: 1, Volume: 0.1},
			expected: core.ErrInvalidConfig,
		},
		{
			name:     "rate NaN",
			req:      core.SynthesisRequest{Text: "hello there", Engine: "edge", Rate: math.NaN(), Volume: 1},
			expected: core.ErrInvalidConfig,
		},
		{
			name:     "rate infinite",
			req:      core.SynthesisRequest{Text: "hello there", Engine: "edge", Rate: math.Inf(1), Volume: 1},
			expected: core.ErrInvalidConfig,
		},
		{
			name:     "volume NaN",
			req:      core.SynthesisRequest{Text: "hello there", Engine: "edge", Rate: 1, Volume: math.NaN()},
			expected: core.ErrInvalidConfig,
		},
		{
			name:     "volume negative infinity",
			req:      core.SynthesisRequest{Text: "hello there", Engine: "edge", Rate: 1, Volume: math.Inf(-1)},
			expected: core.ErrInvalidConfig,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			engine := &scriptedEngine{}
			client, _ := newTestClient(t, engine)

			_, err := client.Synthesize(context.Background(), testCase.req)
			require.ErrorIs(t, err, testCase.expected)
			assert.Zero(t, engine.calls())
		})
	}
}

func TestSynthesize_NothingToSpeak(t *testing.T) {
	t.Parallel()

	engine := &scriptedEngine{}
	client, tempDir := newTestClient(t, engine, tts.WithSanitizer(text.NewSanitizer(text.WithPlaceholder(""))))

	result, err := client.Synthesize(context.Background(), validRequest("<>[]"))
	require.NoError(t, err)
	assert.True(t, result.Empty)
	assert.Nil(t, result.Artifact)
	assert.Zero(t, engine.calls())
	requireEmptyDir(t, tempDir)
}

func TestSynthesize_AzureNotImplemented(t *testing.T) {
	t.Parallel()

	client, tempDir := newTestClient(t, &scriptedEngine{})

	req := validRequest("Hello there, friend")
	req.Engine = "azure"

	_, err := client.Synthesize(context.Background(), req)
	require.ErrorIs(t, err, core.ErrNotImplemented)
	requireEmptyDir(t, tempDir)
}

func TestSynthesize_CancellationRemovesArtifact(t *testing.T) {
	t.Parallel()

	engine := &scriptedEngine{attempts: []attemptFunc{blockUntilCancelled}}
	client, tempDir := newTestClient(t, engine, tts.WithMaxAttempts(1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Synthesize(ctx, validRequest("Hello there, friend"))
	require.ErrorIs(t, err, core.ErrSynthesisFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	requireEmptyDir(t, tempDir)
}

func TestSynthesize_CancelledDuringRetryWait(t *testing.T) {
	t.Parallel()

	engine := &scriptedEngine{attempts: []attemptFunc{writePartialThenFail, writeAudio}}
	client, tempDir := newTestClient(t, engine, tts.WithRetryDelay(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Synthesize(ctx, validRequest("Hello there, friend"))
	require.ErrorIs(t, err, core.ErrSynthesisFailed)
	assert.Equal(t, 1, engine.calls())
	requireEmptyDir(t, tempDir)
}

func TestPreview(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, &scriptedEngine{})

	assert.Equal(t, "Visit now", client.Preview("Visit https://example.com now"))
}

func TestFormatPercent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expected   string
		multiplier float64
	}{
		{multiplier: 1.2, expected: "+20%"},
		{multiplier: 0.8, expected: "-20%"},
		{multiplier: 1.0, expected: "+0%"},
		{multiplier: 0.5, expected: "-50%"},
		{multiplier: 2.0, expected: "+100%"},
		{multiplier: 1.15, expected: "+15%"},
		{multiplier: 0.9, expected: "-10%"},
	}

	for _, testCase := range tests {
		assert.Equal(t, testCase.expected, tts.FormatPercent(testCase.multiplier), testCase.multiplier)
	}
}
