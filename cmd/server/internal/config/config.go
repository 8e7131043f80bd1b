package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the unified runtime configuration.
type Config struct {
	Server    ServerConfig
	Data      DataConfig
	Log       LogConfig
	Models    ModelConfig
	Dialogue  DialogueConfig
	Pipeline  PipelineConfig
	Fallbacks FallbackConfig
}

// ServerConfig holds server options. Mode selects the active front ends:
// "api" (submission API), "watch" (directory watcher) or "both".
type ServerConfig struct {
	Env  string // dev, staging, production
	Port string
	Mode string
}

// DataConfig holds data directory and database options.
type DataConfig struct {
	DBPath     string
	InputDir   string // downloaded / watched audio lands here
	OutputDir  string // transcript artifacts
	ScratchDir string // per-run intermediate files
	WatchDir   string // watcher inbox (watch mode)
}

// LogConfig holds logging options.
type LogConfig struct {
	Level           string // debug, info, warn, error
	PipelineLogPath string // rotating pipeline event log, empty = stdout only
}

// ModelConfig holds endpoints and selectors for the external model services.
type ModelConfig struct {
	WhisperURL       string
	WhisperModel     string
	EnhancerURL      string
	SeparatorURL     string
	DiarizerURL      string
	LLMURL           string
	LLMAPIKey        string
	LLMModel         string
	Device           string // auto, cpu, cuda, mps
	ComputePrecision string // float16, float32, int8
	RequestTimeout   time.Duration
	LLMRetryAttempts int // extra attempts per extractor call, 0 = no retry

	HealthCheckInterval      time.Duration
	HealthCheckFailThreshold int
}

// DialogueConfig holds dialogue-rejection thresholds.
type DialogueConfig struct {
	MinDuration   time.Duration // recordings shorter than this are rejected
	MinTurnCount  int           // speaker turns required to count as dialogue
	MinSilenceGap time.Duration // silence gap that separates two turns
}

// PipelineConfig holds orchestration policies.
type PipelineConfig struct {
	Workers        int  // concurrent runs in api mode; watch mode is serial
	DeleteOriginal bool // remove source audio after persistence or rejection
	NoiseThreshold float64
}

// FallbackConfig holds the default value substituted for each text-analytics
// extractor when its output fails schema validation.
type FallbackConfig struct {
	Sentiment string
	Topic     string
	Role      string
	Summary   string
	Profanity bool
	Conflict  bool
}

// GlobalConfig is the process-wide configuration instance.
var GlobalConfig *Config

// LoadConfig builds the configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Env:  getEnv("ENV", "dev"),
			Port: getEnv("PORT", "8000"),
			Mode: getEnv("MODE", "api"),
		},
		Data: DataConfig{
			DBPath:     getEnv("DB_PATH", "./callytics.sqlite"),
			InputDir:   getEnv("INPUT_DIR", "./.data/input"),
			OutputDir:  getEnv("OUTPUT_DIR", "./.data/output"),
			ScratchDir: getEnv("SCRATCH_DIR", "./.temp"),
			WatchDir:   getEnv("WATCH_DIR", "./.data/inbox"),
		},
		Log: LogConfig{
			Level:           getEnv("LOG_LEVEL", "info"),
			PipelineLogPath: getEnv("PIPELINE_LOG_PATH", ""),
		},
		Models: ModelConfig{
			WhisperURL:               getEnv("WHISPER_API_URL", "http://whisper:8082"),
			WhisperModel:             getEnv("WHISPER_MODEL", "large-v3"),
			EnhancerURL:              getEnv("ENHANCER_API_URL", "http://enhancer:8083"),
			SeparatorURL:             getEnv("SEPARATOR_API_URL", "http://separator:8084"),
			DiarizerURL:              getEnv("DIARIZER_API_URL", "http://pyannote:8388"),
			LLMURL:                   getEnv("LLM_API_URL", "http://llm:8000/v1/chat/completions"),
			LLMAPIKey:                getEnv("LLM_API_KEY", ""),
			LLMModel:                 getEnv("LLM_MODEL", "llama-3.1-8b-instruct"),
			Device:                   getEnv("DEVICE", "auto"),
			ComputePrecision:         getEnv("COMPUTE_PRECISION", "float16"),
			RequestTimeout:           getEnvDuration("MODEL_REQUEST_TIMEOUT", 10*time.Minute),
			LLMRetryAttempts:         getEnvInt("LLM_RETRY_ATTEMPTS", 0),
			HealthCheckInterval:      getEnvDuration("HEALTH_CHECK_INTERVAL", 5*time.Minute),
			HealthCheckFailThreshold: getEnvInt("HEALTH_CHECK_FAIL_THRESHOLD", 3),
		},
		Dialogue: DialogueConfig{
			MinDuration:   getEnvDuration("DIALOGUE_MIN_DURATION", 5*time.Second),
			MinTurnCount:  getEnvInt("DIALOGUE_MIN_TURN_COUNT", 3),
			MinSilenceGap: getEnvDuration("DIALOGUE_MIN_SILENCE_GAP", 300*time.Millisecond),
		},
		Pipeline: PipelineConfig{
			Workers:        getEnvInt("PIPELINE_WORKERS", 2),
			DeleteOriginal: getEnvBool("DELETE_ORIGINAL", false),
			NoiseThreshold: getEnvFloat("NOISE_THRESHOLD", 0.005),
		},
		Fallbacks: FallbackConfig{
			Sentiment: getEnv("FALLBACK_SENTIMENT", "Neutral"),
			Topic:     getEnv("FALLBACK_TOPIC", "Unknown"),
			Role:      getEnv("FALLBACK_ROLE", "Unknown"),
			Summary:   getEnv("FALLBACK_SUMMARY", ""),
			Profanity: getEnvBool("FALLBACK_PROFANITY", false),
			Conflict:  getEnvBool("FALLBACK_CONFLICT", false),
		},
	}

	GlobalConfig = cfg
	return cfg, nil
}

// ValidateConfig verifies the loaded configuration and reports every problem
// found, not just the first.
func ValidateConfig(cfg *Config) error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid PORT value: %s (must be 1-65535)", cfg.Server.Port))
	}

	validModes := map[string]bool{"api": true, "watch": true, "both": true}
	if !validModes[cfg.Server.Mode] {
		errors = append(errors, fmt.Sprintf("invalid MODE: %s (must be: api, watch, both)", cfg.Server.Mode))
	}

	validEnvs := map[string]bool{"dev": true, "development": true, "staging": true, "production": true}
	if !validEnvs[cfg.Server.Env] {
		errors = append(errors, fmt.Sprintf("invalid ENV: %s (must be: dev, development, staging, production)", cfg.Server.Env))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Log.Level] {
		errors = append(errors, fmt.Sprintf("invalid LOG_LEVEL: %s (must be: debug, info, warn, error)", cfg.Log.Level))
	}

	if cfg.Data.DBPath == "" {
		errors = append(errors, "DB_PATH is required")
	}

	if cfg.Pipeline.Workers < 1 {
		errors = append(errors, fmt.Sprintf("invalid PIPELINE_WORKERS: %d (must be >= 1)", cfg.Pipeline.Workers))
	}

	if cfg.Dialogue.MinTurnCount < 1 {
		errors = append(errors, fmt.Sprintf("invalid DIALOGUE_MIN_TURN_COUNT: %d (must be >= 1)", cfg.Dialogue.MinTurnCount))
	}

	if cfg.Pipeline.NoiseThreshold < 0 {
		errors = append(errors, fmt.Sprintf("invalid NOISE_THRESHOLD: %g (must be >= 0)", cfg.Pipeline.NoiseThreshold))
	}

	validSentiments := map[string]bool{"Positive": true, "Negative": true, "Neutral": true}
	if !validSentiments[cfg.Fallbacks.Sentiment] {
		errors = append(errors, fmt.Sprintf("invalid FALLBACK_SENTIMENT: %s (must be: Positive, Negative, Neutral)", cfg.Fallbacks.Sentiment))
	}

	if (cfg.Server.Mode == "watch" || cfg.Server.Mode == "both") && cfg.Data.WatchDir == "" {
		errors = append(errors, "WATCH_DIR is required in watch mode")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// IsProduction reports whether the server runs in production.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// GetServerAddr returns the HTTP listen address.
func (c *Config) GetServerAddr() string {
	return ":" + c.Server.Port
}

// PrintConfig renders the configuration with secrets masked.
func (c *Config) PrintConfig() string {
	return fmt.Sprintf(`Configuration Loaded:
  Environment: %s
  Server Port: %s
  Mode: %s
  Database: %s
  Directories:
    - Input: %s
    - Output: %s
    - Scratch: %s
    - Watch: %s
  Models:
    - Whisper: %s (%s)
    - Enhancer: %s
    - Separator: %s
    - Diarizer: %s
    - LLM: %s (%s, key: %s)
    - Device: %s / %s
  Dialogue Thresholds:
    - Min Duration: %s
    - Min Turn Count: %d
    - Min Silence Gap: %s
  Pipeline:
    - Workers: %d
    - Delete Original: %v
    - Noise Threshold: %g`,
		c.Server.Env,
		c.Server.Port,
		c.Server.Mode,
		c.Data.DBPath,
		c.Data.InputDir,
		c.Data.OutputDir,
		c.Data.ScratchDir,
		c.Data.WatchDir,
		c.Models.WhisperURL,
		c.Models.WhisperModel,
		c.Models.EnhancerURL,
		c.Models.SeparatorURL,
		c.Models.DiarizerURL,
		c.Models.LLMURL,
		c.Models.LLMModel,
		maskSecret(c.Models.LLMAPIKey),
		c.Models.Device,
		c.Models.ComputePrecision,
		c.Dialogue.MinDuration,
		c.Dialogue.MinTurnCount,
		c.Dialogue.MinSilenceGap,
		c.Pipeline.Workers,
		c.Pipeline.DeleteOriginal,
		c.Pipeline.NoiseThreshold,
	)
}

// helpers

// getEnv returns the environment value or a default when unset.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// maskSecret redacts sensitive values for display.
func maskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}
