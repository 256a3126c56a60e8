// Package config provides the configuration structure for the voice assistant.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Defaults applied to zero-valued settings.
const (
	DefaultAddr                = ":5000"
	DefaultVersion             = "1.0.0"
	DefaultReadTimeoutSeconds  = 15
	DefaultWriteTimeoutSeconds = 120
	DefaultIdleTimeoutSeconds  = 60
	DefaultProviderTimeout     = 30
	DefaultMaxTokens           = 1000
	DefaultEngine              = "edge"
	DefaultEdgeBinary          = "edge-tts"
	DefaultMaxAttempts         = 2
	DefaultRetryDelayMillis    = 1000
	DefaultSessionTTLMinutes   = 120
	DefaultSynthesisSubject    = "speech.synthesize"
	DefaultQueueGroup          = "speech-workers"
	DefaultAudioBucket         = "SPEECH_AUDIO"
	DefaultPoolSize            = 4
	DefaultAudioTTLMinutes     = 60
	defaultStateDirName        = "parent_mode"
	defaultLogsDirName         = "logs"
)

var (
	// ErrInvalidAttempts indicates a non-positive retry count.
	ErrInvalidAttempts = errors.New("tts.max_attempts must be at least 1")
	// ErrNegativeDuration indicates a negative timeout or delay.
	ErrNegativeDuration = errors.New("timeouts and delays cannot be negative")
	// ErrNATSURLEmpty indicates that the worker is enabled without a server URL.
	ErrNATSURLEmpty = errors.New("nats.url is required when nats.enabled is true")
	// ErrInvalidPoolSize indicates a non-positive worker pool size.
	ErrInvalidPoolSize = errors.New("nats.pool_size must be at least 1")
)

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Addr                string `toml:"addr"`
	Version             string `toml:"version"`
	ReadTimeoutSeconds  int    `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `toml:"write_timeout_seconds"`
	IdleTimeoutSeconds  int    `toml:"idle_timeout_seconds"`
}

// LLMConfig holds the chat provider settings.
type LLMConfig struct {
	DeepSeekEndpoint string `toml:"deepseek_endpoint"`
	KimiEndpoint     string `toml:"kimi_endpoint"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	MaxTokens        int    `toml:"max_tokens"`
}

// TTSConfig holds the speech synthesis settings.
type TTSConfig struct {
	DefaultEngine    string `toml:"default_engine"`
	EdgeBinary       string `toml:"edge_binary"`
	TempDir          string `toml:"temp_dir"`
	Placeholder      string `toml:"placeholder"`
	MaxAttempts      int    `toml:"max_attempts"`
	RetryDelayMillis int    `toml:"retry_delay_ms"`
}

// ASRConfig holds the speech recognition settings.
type ASRConfig struct {
	WhisperEndpoint string `toml:"whisper_endpoint"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// ParentConfig holds the parent-mode settings. An empty password hash
// disables parent login.
type ParentConfig struct {
	StateDir          string `toml:"state_dir"`
	PasswordHash      string `toml:"password_hash"`
	SessionSecret     string `toml:"session_secret"`
	SessionTTLMinutes int    `toml:"session_ttl_minutes"`
}

// NATSConfig holds the configuration for the optional NATS worker.
type NATSConfig struct {
	URL                    string `toml:"url"`
	SynthesisSubject       string `toml:"synthesis_subject"`
	QueueGroup             string `toml:"queue_group"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
	PoolSize               int    `toml:"pool_size"`
	AudioTTLMinutes        int    `toml:"audio_ttl_minutes"`
	Enabled                bool   `toml:"enabled"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Server ServerConfig `toml:"server"`
	LLM    LLMConfig    `toml:"llm"`
	TTS    TTSConfig    `toml:"tts"`
	ASR    ASRConfig    `toml:"asr"`
	Parent ParentConfig `toml:"parent"`
	NATS   NATSConfig   `toml:"nats"`
	Paths  PathsConfig  `toml:"paths"`
}

// Load loads the configuration through the central configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg)
}

// LoadFile loads the configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}

	var cfg Config

	decodeErr := toml.Unmarshal(data, &cfg)
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to parse configuration file %s: %w", path, decodeErr)
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyDefaults fills zero-valued settings.
func (c *Config) ApplyDefaults() {
	setDefault(&c.Server.Addr, DefaultAddr)
	setDefault(&c.Server.Version, DefaultVersion)
	setDefault(&c.Server.ReadTimeoutSeconds, DefaultReadTimeoutSeconds)
	setDefault(&c.Server.WriteTimeoutSeconds, DefaultWriteTimeoutSeconds)
	setDefault(&c.Server.IdleTimeoutSeconds, DefaultIdleTimeoutSeconds)

	setDefault(&c.LLM.TimeoutSeconds, DefaultProviderTimeout)
	setDefault(&c.LLM.MaxTokens, DefaultMaxTokens)

	setDefault(&c.TTS.DefaultEngine, DefaultEngine)
	setDefault(&c.TTS.EdgeBinary, DefaultEdgeBinary)
	setDefault(&c.TTS.TempDir, os.TempDir())
	setDefault(&c.TTS.MaxAttempts, DefaultMaxAttempts)
	setDefault(&c.TTS.RetryDelayMillis, DefaultRetryDelayMillis)

	setDefault(&c.ASR.TimeoutSeconds, DefaultProviderTimeout)

	setDefault(&c.Paths.BaseLogsDir, filepath.Join(os.TempDir(), "voice-assistant", defaultLogsDirName))
	setDefault(&c.Parent.StateDir, filepath.Join(filepath.Dir(c.Paths.BaseLogsDir), defaultStateDirName))
	setDefault(&c.Parent.SessionTTLMinutes, DefaultSessionTTLMinutes)

	setDefault(&c.NATS.SynthesisSubject, DefaultSynthesisSubject)
	setDefault(&c.NATS.QueueGroup, DefaultQueueGroup)
	setDefault(&c.NATS.AudioObjectStoreBucket, DefaultAudioBucket)
	setDefault(&c.NATS.PoolSize, DefaultPoolSize)
	setDefault(&c.NATS.AudioTTLMinutes, DefaultAudioTTLMinutes)
}

// Validate reports settings that cannot be used.
func (c *Config) Validate() error {
	for _, value := range []int{
		c.Server.ReadTimeoutSeconds,
		c.Server.WriteTimeoutSeconds,
		c.Server.IdleTimeoutSeconds,
		c.LLM.TimeoutSeconds,
		c.ASR.TimeoutSeconds,
		c.TTS.RetryDelayMillis,
		c.Parent.SessionTTLMinutes,
		c.NATS.AudioTTLMinutes,
	} {
		if value < 0 {
			return ErrNegativeDuration
		}
	}

	if c.TTS.MaxAttempts < 1 {
		return ErrInvalidAttempts
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return ErrNATSURLEmpty
		}

		if c.NATS.PoolSize < 1 {
			return ErrInvalidPoolSize
		}
	}

	return nil
}

// Seconds converts a whole number of seconds to a duration.
func Seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

// RetryDelay returns the pause between synthesis attempts.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.TTS.RetryDelayMillis) * time.Millisecond
}

// AudioTTL returns how long uploaded audio is kept in the object store.
func (c *Config) AudioTTL() time.Duration {
	return time.Duration(c.NATS.AudioTTLMinutes) * time.Minute
}

// SessionTTL returns the parent session lifetime.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Parent.SessionTTLMinutes) * time.Minute
}

func setDefault[T comparable](field *T, fallback T) {
	var zero T
	if *field == zero {
		*field = fallback
	}
}
