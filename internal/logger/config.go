package logger

import (
	"io"
	"os"
	"strconv"
)

// Config controls logger construction.
type Config struct {
	Level       string    // debug, info, warn, error
	Format      string    // json, text
	Output      io.Writer // overrides the stdout/file selection below when set
	ServiceName string

	// Environment is local, dev or prod. Non-local environments also write
	// to File with rotation.
	Environment string
	File        string
	FileOnly    bool

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultConfig returns a JSON info-level stdout configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "nutrilens",
		Environment: "local",
	}
}

// ConfigFromEnv reads LOG_* and APP_ENV variables over DefaultConfig.
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()
	cfg.Level = envString("LOG_LEVEL", cfg.Level)
	cfg.Format = envString("LOG_FORMAT", cfg.Format)
	cfg.ServiceName = envString("SERVICE_NAME", cfg.ServiceName)
	cfg.Environment = envString("APP_ENV", cfg.Environment)
	cfg.File = envString("LOG_FILE", "/var/log/nutrilens/app.log")
	cfg.FileOnly = envBool("LOG_FILE_ONLY", false)
	cfg.MaxSizeMB = envInt("LOG_MAX_SIZE", 100)
	cfg.MaxBackups = envInt("LOG_MAX_BACKUPS", 7)
	cfg.MaxAgeDays = envInt("LOG_MAX_AGE", 30)
	cfg.Compress = envBool("LOG_COMPRESS", true)
	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	i, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return i
}
