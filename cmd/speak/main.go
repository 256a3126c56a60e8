// Command speak previews or synthesizes assistant replies from the shell.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-assistant/internal/config"
	"github.com/book-expert/voice-assistant/internal/core"
	"github.com/book-expert/voice-assistant/internal/fileutil"
	"github.com/book-expert/voice-assistant/internal/tts"
	"github.com/book-expert/voice-assistant/internal/tts/text"
)

// Flag descriptions.
const (
	flagTextDesc    = "Text to speak"
	flagOutputDesc  = "Output file path (.mp3)"
	flagEngineDesc  = "Synthesis engine (edge, azure)"
	flagVoiceDesc   = "Voice name"
	flagRateDesc    = "Speaking rate multiplier (0.5-2.0)"
	flagVolumeDesc  = "Volume multiplier (0.5-1.5)"
	flagPreviewDesc = "Print the text that would be spoken and exit"
	flagConfigDesc  = "Path to a TOML configuration file"
	flagVerboseDesc = "Enable verbose logging"
)

// Flag names.
const (
	flagText    = "text"
	flagOutput  = "output"
	flagEngine  = "engine"
	flagVoice   = "voice"
	flagRate    = "rate"
	flagVolume  = "volume"
	flagPreview = "preview"
	flagConfig  = "config"
	flagVerbose = "verbose"
)

// Error messages.
const (
	errTextRequired         = "--text must be provided"
	errFmtInvalidSettings   = "invalid settings: %w"
	errFmtFailedToLoad      = "failed to load configuration: %w"
	errFmtFailedToInitLog   = "failed to initialize logger: %w"
	errFmtFailedToSynthesis = "failed to synthesize speech: %w"
	errFmtFailedToWrite     = "failed to write %s: %w"
)

// Log and output messages.
const (
	logSynthesizing = "Synthesizing %d characters with %s/%s to %s"
	logGenerated    = "Generated %s (%s) in %s"
	outGenerated    = "Generated: %s (%s, %s)\n"
	outNothingToSay = "Nothing to speak after cleaning; no file written."
)

// File names and defaults.
const (
	logFileDefault    = "speak.log"
	logFileVerbose    = "speak-verbose.log"
	defaultOutput     = "output.mp3"
	defaultMultiplier = 1.0
)

// ErrTextRequired is returned when no text is given.
var ErrTextRequired = errors.New(errTextRequired)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text    string
	output  string
	engine  string
	voice   string
	config  string
	rate    float64
	volume  float64
	preview bool
	verbose bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout)
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

// run is the main application entry point, returning an error on failure.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	validationErr := validateFlags(flags)
	if validationErr != nil {
		return validationErr
	}

	cfg, err := loadConfig(flags.config)
	if err != nil {
		return err
	}

	logFileName := logFileDefault
	if flags.verbose {
		logFileName = logFileVerbose
	}

	appLog, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return fmt.Errorf(errFmtFailedToInitLog, err)
	}
	defer appLog.Close()

	client := newClient(cfg, appLog)

	if flags.preview {
		_, printErr := fmt.Fprintln(stdout, client.Preview(flags.text))

		return printErr
	}

	return synthesize(ctx, client, cfg, appLog, flags, stdout)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("speak", flag.ContinueOnError)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.output, flagOutput, defaultOutput, flagOutputDesc)
	flagSet.StringVar(&flags.engine, flagEngine, "", flagEngineDesc)
	flagSet.StringVar(&flags.voice, flagVoice, tts.DefaultVoice, flagVoiceDesc)
	flagSet.Float64Var(&flags.rate, flagRate, defaultMultiplier, flagRateDesc)
	flagSet.Float64Var(&flags.volume, flagVolume, defaultMultiplier, flagVolumeDesc)
	flagSet.BoolVar(&flags.preview, flagPreview, false, flagPreviewDesc)
	flagSet.StringVar(&flags.config, flagConfig, "", flagConfigDesc)
	flagSet.BoolVar(&flags.verbose, flagVerbose, false, flagVerboseDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, err
	}

	return flags, nil
}

// validateFlags checks the arguments at the application boundary. An unset
// engine is checked as edge; both engines share one voice catalogue.
func validateFlags(flags appFlags) error {
	if flags.text == "" {
		return ErrTextRequired
	}

	if flags.preview {
		return nil
	}

	engine := flags.engine
	if engine == "" {
		engine = string(tts.EngineEdge)
	}

	result := tts.ValidateConfig(engine, flags.voice, flags.rate, flags.volume)
	if !result.Valid() {
		return fmt.Errorf(errFmtInvalidSettings, result.Err(engine))
	}

	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := &config.Config{}
		cfg.ApplyDefaults()

		return cfg, nil
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf(errFmtFailedToLoad, err)
	}

	return cfg, nil
}

func newClient(cfg *config.Config, appLog *logger.Logger) *tts.Client {
	var sanitizerOpts []text.Option
	if cfg.TTS.Placeholder != "" {
		sanitizerOpts = append(sanitizerOpts, text.WithPlaceholder(cfg.TTS.Placeholder))
	}

	return tts.NewClient(appLog,
		tts.WithEngine(tts.EngineEdge, tts.NewEdgeEngine(cfg.TTS.EdgeBinary)),
		tts.WithMaxAttempts(cfg.TTS.MaxAttempts),
		tts.WithRetryDelay(cfg.RetryDelay()),
		tts.WithTempDir(cfg.TTS.TempDir),
		tts.WithSanitizer(text.NewSanitizer(sanitizerOpts...)),
	)
}

// synthesize runs one synthesis and moves the artifact to the output path.
func synthesize(
	ctx context.Context,
	client *tts.Client,
	cfg *config.Config,
	appLog *logger.Logger,
	flags appFlags,
	stdout io.Writer,
) error {
	engine := flags.engine
	if engine == "" {
		engine = cfg.TTS.DefaultEngine
	}

	appLog.Info(logSynthesizing, len([]rune(flags.text)), engine, flags.voice, flags.output)

	start := time.Now()

	result, err := client.Synthesize(ctx, core.SynthesisRequest{
		Text:   flags.text,
		Engine: engine,
		Voice:  flags.voice,
		Rate:   flags.rate,
		Volume: flags.volume,
	})
	if err != nil {
		return fmt.Errorf(errFmtFailedToSynthesis, err)
	}

	if result.Empty {
		_, printErr := fmt.Fprintln(stdout, outNothingToSay)

		return printErr
	}

	defer func() {
		removeErr := result.Artifact.Remove()
		if removeErr != nil {
			appLog.Warn("Failed to remove temporary artifact %s: %v", result.Artifact.Path, removeErr)
		}
	}()

	audio, err := result.Artifact.ReadAll()
	if err != nil {
		return fmt.Errorf(errFmtFailedToWrite, flags.output, err)
	}

	writeErr := fileutil.WriteFileAtomic(flags.output, audio)
	if writeErr != nil {
		return fmt.Errorf(errFmtFailedToWrite, flags.output, writeErr)
	}

	size := fileutil.FormatFileSize(result.Artifact.Size)
	elapsed := fileutil.FormatDuration(time.Since(start))

	appLog.Info(logGenerated, flags.output, size, elapsed)

	_, printErr := fmt.Fprintf(stdout, outGenerated, flags.output, size, elapsed)

	return printErr
}
