package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	ModelBackend string

	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	ReferrerURL       string
	SiteTitle         string

	ModelName          string
	DetectionModelName string
	FastModelName      string
	FastContentType    string

	ClaudeAPIKey string
	ClaudeModel  string
	OllamaHost   string
	OllamaModel  string

	Temperature    float64
	MaxTokens      int
	TopP           float64
	RetryCount     int
	RequestTimeout time.Duration
	Streaming      bool

	ListenAddr         string
	CaptureDir         string
	CaptureMaxWidth    int
	CaptureJPEGQuality int
	ClassifyTables     string
	DBPath             string

	LogLevel     string
	LogFile      string
	MaxLogSizeMB int
	MockMode     bool
}

func Load() *Config {
	cfg := &Config{
		ModelBackend:       getEnv("MODEL_BACKEND", "openrouter"),
		OpenRouterAPIKey:   getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL:  getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		ReferrerURL:        getEnv("OPENROUTER_REFERRER_URL", "acecoder.dev"),
		SiteTitle:          getEnv("OPENROUTER_SITE_TITLE", "AceCoder"),
		ModelName:          getEnv("MODEL_NAME", "google/gemini-2.5-pro-preview-03-25"),
		DetectionModelName: getEnv("DETECTION_MODEL_NAME", "google/gemini-2.0-flash-lite-001"),
		FastModelName:      getEnv("FAST_MODEL_NAME", "google/gemini-2.5-pro-preview-03-25"),
		FastContentType:    getEnv("FAST_MODE_CONTENT_TYPE", "general"),
		ClaudeAPIKey:       getEnv("CLAUDE_API_KEY", ""),
		ClaudeModel:        getEnv("CLAUDE_MODEL", "claude-opus-4-6"),
		OllamaHost:         getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel:        getEnv("OLLAMA_MODEL", "llava"),
		Temperature:        getFloat("TEMPERATURE", 0.1),
		MaxTokens:          getInt("MAX_TOKENS", 8192),
		TopP:               getFloat("TOP_P", 0.95),
		RetryCount:         getInt("RETRY_COUNT", 2),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 120*time.Second),
		Streaming:          getBool("STREAMING", true),
		ListenAddr:         getEnv("LISTEN_ADDR", "127.0.0.1:7777"),
		CaptureDir:         getEnv("CAPTURE_DIR", ""),
		CaptureMaxWidth:    getInt("CAPTURE_MAX_WIDTH", 1920),
		CaptureJPEGQuality: getInt("CAPTURE_JPEG_QUALITY", 70),
		ClassifyTables:     getEnv("CLASSIFY_TABLES", ""),
		DBPath:             getEnv("DB_PATH", defaultDBPath()),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFile:            getEnv("LOG_FILE", ""),
		MaxLogSizeMB:       getInt("MAX_LOG_SIZE_MB", 50),
		MockMode:           getBool("MOCK_MODE", false),
	}
	if cfg.MockMode {
		cfg.ModelBackend = "mock"
	}
	return cfg
}

// ErrMissingAPIKey is returned by Validate when the selected backend needs a
// credential that is not set.
var ErrMissingAPIKey = errors.New("api key not set")

// Validate reports configuration problems that make every model call
// impossible. A non-nil result does not stop the process; callers run with the
// assistant disabled.
func (c *Config) Validate() error {
	switch c.ModelBackend {
	case "claude":
		if c.ClaudeAPIKey == "" {
			return errors.Join(ErrMissingAPIKey, errors.New("CLAUDE_API_KEY is required when MODEL_BACKEND=claude"))
		}
	case "ollama", "mock":
	default:
		if c.OpenRouterAPIKey == "" {
			return errors.Join(ErrMissingAPIKey, errors.New("OPENROUTER_API_KEY is required when MODEL_BACKEND=openrouter"))
		}
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("TEMPERATURE must be within [0, 2]")
	}
	if c.MaxTokens <= 0 {
		return errors.New("MAX_TOKENS must be positive")
	}
	if c.RetryCount < 0 {
		return errors.New("RETRY_COUNT must not be negative")
	}
	return nil
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".screensolve", "runs.db")
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return n
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if f, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return f
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if b, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return b
	}
	return defaultVal
}

// getDuration accepts Go duration strings ("90s") or a bare number of seconds.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	raw := getEnv(key, "")
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}
