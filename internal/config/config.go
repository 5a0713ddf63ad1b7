// Package config provides configuration management for voxmemo.
//
// Values are layered: built-in defaults, then an optional YAML file named by
// VOXMEMO_CONFIG, then environment variables with the VOXMEMO_ prefix. A
// .env file in the working directory is loaded first so the OpenAI API key
// can live outside the shell profile. The merged result is validated before
// it is returned.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for voxmemo.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Audio    AudioConfig    `yaml:"audio"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Log      LogConfig      `yaml:"log"`
	Web      WebConfig      `yaml:"web"`
}

// StorageConfig contains memory store configuration.
type StorageConfig struct {
	Engine      string `yaml:"engine" validate:"oneof=sqlite postgres"`             // sqlite (default) or postgres
	DataPath    string `yaml:"data_path" validate:"required"`                       // Directory for the SQLite file and logs
	PostgresDSN string `yaml:"postgres_dsn" validate:"required_if=Engine postgres"` // Used when Engine is postgres
}

// OpenAIConfig contains settings for the hosted transcription and analysis models.
type OpenAIConfig struct {
	APIKey             string `yaml:"api_key"`                                 // Bearer token; the only secret
	BaseURL            string `yaml:"base_url" validate:"required,url"`        // default: https://api.openai.com
	AnalysisModel      string `yaml:"analysis_model" validate:"required"`      // default: gpt-4o-mini
	TranscriptionModel string `yaml:"transcription_model" validate:"required"` // default: whisper-1
	Language           string `yaml:"language" validate:"required"`            // Recognition language (default: en)
	RequestsPerMinute  int    `yaml:"requests_per_minute" validate:"gte=1"`    // Analysis call ceiling
}

// SampleRatePlaceholder in CaptureCommand is replaced with SampleRate.
const SampleRatePlaceholder = "{rate}"

// AudioConfig contains microphone capture settings.
type AudioConfig struct {
	RecordingsDir  string        `yaml:"recordings_dir" validate:"required"`
	CaptureCommand string        `yaml:"capture_command" validate:"required"` // Must write raw S16LE mono PCM to stdout; {rate} expands to SampleRate
	SampleRate     int           `yaml:"sample_rate" validate:"gte=8000,lte=48000"`
	TickInterval   time.Duration `yaml:"tick_interval" validate:"gt=0"`
	MaxSamples     int           `yaml:"max_samples" validate:"gte=1"`
}

// PipelineConfig bounds the asynchronous pipeline steps.
type PipelineConfig struct {
	TranscriptionTimeout time.Duration `yaml:"transcription_timeout" validate:"gt=0"`
	AnalysisTimeout      time.Duration `yaml:"analysis_timeout" validate:"gt=0"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	File       string `yaml:"file"` // empty: <data_path>/voxmemo.log
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=1"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
}

// WebConfig contains the optional local snapshot feed settings.
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host" validate:"required"`
	Port    int    `yaml:"port" validate:"gte=1,lte=65535"`
}

// Addr returns host:port for the snapshot feed listener.
func (w WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// CaptureCommandLine returns CaptureCommand with SampleRatePlaceholder
// expanded.
func (a AudioConfig) CaptureCommandLine() string {
	return strings.ReplaceAll(a.CaptureCommand, SampleRatePlaceholder, strconv.Itoa(a.SampleRate))
}

// captureRate returns the rate passed to the capture command with -r or
// --rate, if it names one literally.
func (a AudioConfig) captureRate() (int, bool) {
	fields := strings.Fields(a.CaptureCommand)
	for i, f := range fields {
		var value string
		switch {
		case f == "-r" || f == "--rate":
			if i+1 < len(fields) {
				value = fields[i+1]
			}
		case strings.HasPrefix(f, "--rate="):
			value = strings.TrimPrefix(f, "--rate=")
		default:
			continue
		}
		if rate, err := strconv.Atoi(value); err == nil {
			return rate, true
		}
	}
	return 0, false
}

// LogFile returns the configured log file, defaulting into the data directory.
func (c *Config) LogFile() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(c.Storage.DataPath, "voxmemo.log")
}

// SQLitePath returns the path of the SQLite database file.
func (c *Config) SQLitePath() string {
	return c.Storage.SQLitePath()
}

// SQLitePath returns the SQLite database file inside DataPath.
func (s StorageConfig) SQLitePath() string {
	return filepath.Join(s.DataPath, "voxmemo.db")
}

// LoadConfig loads .env, the optional YAML file named by VOXMEMO_CONFIG and
// the environment, in that order, and validates the result.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to load .env: %w", err)
	}
	return LoadFile(os.Getenv("VOXMEMO_CONFIG"))
}

// LoadFile is LoadConfig without the .env step. An empty path skips the YAML
// layer.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: invalid configuration: %w", err)
	}
	if rate, ok := c.Audio.captureRate(); ok && rate != c.Audio.SampleRate {
		return fmt.Errorf("config: capture command records at %d Hz but sample_rate is %d; use %s in the command",
			rate, c.Audio.SampleRate, SampleRatePlaceholder)
	}
	return nil
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
		},
		OpenAI: OpenAIConfig{
			BaseURL:            "https://api.openai.com",
			AnalysisModel:      "gpt-4o-mini",
			TranscriptionModel: "whisper-1",
			Language:           "en",
			RequestsPerMinute:  20,
		},
		Audio: AudioConfig{
			RecordingsDir:  filepath.Join(os.TempDir(), "voxmemo"),
			CaptureCommand: "arecord -q -f S16_LE -r " + SampleRatePlaceholder + " -c 1 -t raw",
			SampleRate:     16000,
			TickInterval:   50 * time.Millisecond,
			MaxSamples:     100,
		},
		Pipeline: PipelineConfig{
			TranscriptionTimeout: 60 * time.Second,
			AnalysisTimeout:      60 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Web: WebConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    6464,
		},
	}
}

// applyEnv overrides cfg with any VOXMEMO_ variables that are set. The
// current value of each field acts as the default.
func applyEnv(cfg *Config) {
	cfg.Storage.Engine = getEnv("VOXMEMO_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.DataPath = getEnv("VOXMEMO_DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.PostgresDSN = getEnv("VOXMEMO_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	cfg.OpenAI.APIKey = getEnv("VOXMEMO_OPENAI_API_KEY", getEnv("OPENAI_API_KEY", cfg.OpenAI.APIKey))
	cfg.OpenAI.BaseURL = getEnv("VOXMEMO_OPENAI_BASE_URL", cfg.OpenAI.BaseURL)
	cfg.OpenAI.AnalysisModel = getEnv("VOXMEMO_ANALYSIS_MODEL", cfg.OpenAI.AnalysisModel)
	cfg.OpenAI.TranscriptionModel = getEnv("VOXMEMO_TRANSCRIPTION_MODEL", cfg.OpenAI.TranscriptionModel)
	cfg.OpenAI.Language = getEnv("VOXMEMO_LANGUAGE", cfg.OpenAI.Language)
	cfg.OpenAI.RequestsPerMinute = getEnvInt("VOXMEMO_REQUESTS_PER_MINUTE", cfg.OpenAI.RequestsPerMinute)

	cfg.Audio.RecordingsDir = getEnv("VOXMEMO_RECORDINGS_DIR", cfg.Audio.RecordingsDir)
	cfg.Audio.CaptureCommand = getEnv("VOXMEMO_CAPTURE_COMMAND", cfg.Audio.CaptureCommand)
	cfg.Audio.SampleRate = getEnvInt("VOXMEMO_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.TickInterval = getEnvDuration("VOXMEMO_TICK_INTERVAL", cfg.Audio.TickInterval)
	cfg.Audio.MaxSamples = getEnvInt("VOXMEMO_MAX_SAMPLES", cfg.Audio.MaxSamples)

	cfg.Pipeline.TranscriptionTimeout = getEnvDuration("VOXMEMO_TRANSCRIPTION_TIMEOUT", cfg.Pipeline.TranscriptionTimeout)
	cfg.Pipeline.AnalysisTimeout = getEnvDuration("VOXMEMO_ANALYSIS_TIMEOUT", cfg.Pipeline.AnalysisTimeout)

	cfg.Log.Level = getEnv("VOXMEMO_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("VOXMEMO_LOG_FILE", cfg.Log.File)

	cfg.Web.Enabled = getEnvBool("VOXMEMO_ENABLE_WEB", cfg.Web.Enabled)
	cfg.Web.Host = getEnv("VOXMEMO_WEB_HOST", cfg.Web.Host)
	cfg.Web.Port = getEnvInt("VOXMEMO_WEB_PORT", cfg.Web.Port)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable ("750ms", "1m")
// or returns a default value when unset or unparsable.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
