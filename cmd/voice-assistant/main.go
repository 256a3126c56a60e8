// main package for the voice-assistant service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/book-expert/voice-assistant/internal/api"
	"github.com/book-expert/voice-assistant/internal/asr"
	"github.com/book-expert/voice-assistant/internal/config"
	"github.com/book-expert/voice-assistant/internal/gate"
	"github.com/book-expert/voice-assistant/internal/llm"
	"github.com/book-expert/voice-assistant/internal/objectstore"
	"github.com/book-expert/voice-assistant/internal/tts"
	"github.com/book-expert/voice-assistant/internal/tts/text"
	"github.com/book-expert/voice-assistant/internal/worker"
)

const (
	bootstrapLogFile = "voice-assistant-bootstrap.log"
	serviceLogFile   = "voice-assistant.log"
	shutdownTimeout  = 10 * time.Second
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, serviceLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, finalLog)
}

// serve wires the services and runs the HTTP server, the word list watcher
// and the optional NATS worker until ctx is done or one of them fails.
func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	speech := newSpeechClient(cfg, log)

	parentGate, err := gate.New(cfg.Parent.StateDir, log)
	if err != nil {
		return fmt.Errorf("failed to open parent mode state: %w", err)
	}

	sessions, err := newSessions(cfg, log)
	if err != nil {
		return err
	}

	server := api.NewServer(cfg.Server.Addr, api.Timeouts{
		Read:  config.Seconds(cfg.Server.ReadTimeoutSeconds),
		Write: config.Seconds(cfg.Server.WriteTimeoutSeconds),
		Idle:  config.Seconds(cfg.Server.IdleTimeoutSeconds),
	}, api.Dependencies{
		Chat:          newChatService(cfg, log),
		Speech:        speech,
		Recognition:   newRecognitionService(cfg, log),
		Gate:          parentGate,
		Sessions:      sessions,
		Log:           log,
		Version:       cfg.Server.Version,
		DefaultEngine: cfg.TTS.DefaultEngine,
	})

	group, groupCtx := errgroup.WithContext(ctx)

	if cfg.NATS.Enabled {
		cleanup, workerErr := startWorker(groupCtx, group, cfg, speech, log)
		if workerErr != nil {
			return workerErr
		}
		defer cleanup()
	}

	group.Go(server.Start)
	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		return parentGate.Words.Watch(groupCtx)
	})

	log.System("Voice assistant %s initialized. Serving HTTP on %s", cfg.Server.Version, cfg.Server.Addr)

	return group.Wait()
}

func newSpeechClient(cfg *config.Config, log *logger.Logger) *tts.Client {
	var sanitizerOpts []text.Option
	if cfg.TTS.Placeholder != "" {
		sanitizerOpts = append(sanitizerOpts, text.WithPlaceholder(cfg.TTS.Placeholder))
	}

	return tts.NewClient(log,
		tts.WithEngine(tts.EngineEdge, tts.NewEdgeEngine(cfg.TTS.EdgeBinary)),
		tts.WithMaxAttempts(cfg.TTS.MaxAttempts),
		tts.WithRetryDelay(cfg.RetryDelay()),
		tts.WithTempDir(cfg.TTS.TempDir),
		tts.WithSanitizer(text.NewSanitizer(sanitizerOpts...)),
	)
}

func newChatService(cfg *config.Config, log *logger.Logger) *llm.Service {
	opts := []llm.Option{
		llm.WithTimeout(config.Seconds(cfg.LLM.TimeoutSeconds)),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
	}

	if cfg.LLM.DeepSeekEndpoint != "" {
		opts = append(opts, llm.WithEndpoint(llm.ProviderDeepSeek, cfg.LLM.DeepSeekEndpoint))
	}

	if cfg.LLM.KimiEndpoint != "" {
		opts = append(opts, llm.WithEndpoint(llm.ProviderKimi, cfg.LLM.KimiEndpoint))
	}

	return llm.NewService(log, opts...)
}

func newRecognitionService(cfg *config.Config, log *logger.Logger) *asr.Service {
	client := asr.NewWhisperClient(cfg.ASR.WhisperEndpoint, config.Seconds(cfg.ASR.TimeoutSeconds))

	return asr.NewService(log, asr.WithWhisperClient(client))
}

func newSessions(cfg *config.Config, log *logger.Logger) (*gate.Sessions, error) {
	secret := cfg.Parent.SessionSecret
	if secret == "" {
		secret = uuid.NewString() + uuid.NewString()

		log.Warn("parent.session_secret is not set; parent sessions will not survive a restart")
	}

	if cfg.Parent.PasswordHash == "" {
		log.Warn("parent.password_hash is not set; parent login is disabled")
	}

	sessions, err := gate.NewSessions(cfg.Parent.PasswordHash, []byte(secret), cfg.SessionTTL())
	if err != nil {
		return nil, fmt.Errorf("failed to create parent sessions: %w", err)
	}

	return sessions, nil
}

// startWorker connects to NATS and runs the synthesis worker inside group.
// The returned cleanup closes the pool and the connection.
func startWorker(
	ctx context.Context,
	group *errgroup.Group,
	cfg *config.Config,
	synthesizer *tts.Client,
	log *logger.Logger,
) (func(), error) {
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name("voice-assistant"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.New(
		jetstreamContext, cfg.NATS.AudioObjectStoreBucket, objectstore.WithTTL(cfg.AudioTTL()),
	)
	if err != nil {
		natsConnection.Close()

		return nil, err
	}

	pool, err := ants.NewPool(cfg.NATS.PoolSize)
	if err != nil {
		natsConnection.Close()

		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	synthesisWorker, err := worker.NewNatsWorker(
		natsConnection, cfg.NATS.SynthesisSubject, cfg.NATS.QueueGroup, store, synthesizer, pool, log,
	)
	if err != nil {
		pool.Release()
		natsConnection.Close()

		return nil, err
	}

	group.Go(func() error {
		return synthesisWorker.Run(ctx)
	})

	cleanup := func() {
		pool.Release()
		natsConnection.Close()
	}

	return cleanup, nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
