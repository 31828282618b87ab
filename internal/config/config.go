package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"invoicekit/internal/logger"
)

// Counter store backends.
const (
	BackendFile = "file"
	BackendBolt = "bolt"
)

type Config struct {
	// Document numbering
	CounterBackend string
	CounterPath    string

	// Reference data and output
	BanksFile string
	ExportDir string

	// HTTP API
	HTTPAddr string

	// Company registry (ARES)
	AresBaseURL string
	AresTimeout time.Duration

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	timeoutSecs, err := getEnvInt("ARES_TIMEOUT_SECONDS", 12)
	if err != nil {
		return nil, err
	}

	config := &Config{
		CounterBackend: getEnv("COUNTER_BACKEND", BackendFile),
		CounterPath:    getEnv("COUNTER_PATH", "./data/counters.json"),
		BanksFile:      getEnv("BANKS_FILE", ""),
		ExportDir:      getEnv("EXPORT_DIR", "./out"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8085"),
		AresBaseURL:    getEnv("ARES_BASE_URL", "https://ares.gov.cz/ekonomicke-subjekty-v-be/rest"),
		AresTimeout:    time.Duration(timeoutSecs) * time.Second,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:  getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:      getEnv("LOG_OUTPUT", "stderr"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.CounterBackend {
	case BackendFile, BackendBolt:
	default:
		return fmt.Errorf("COUNTER_BACKEND must be %q or %q, got %q", BackendFile, BackendBolt, c.CounterBackend)
	}
	if c.CounterPath == "" {
		return fmt.Errorf("COUNTER_PATH is required")
	}
	if c.AresTimeout <= 0 {
		return fmt.Errorf("ARES_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %s", key, value)
	}
	return n, nil
}
