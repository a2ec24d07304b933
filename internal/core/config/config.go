// Package config provides configuration management for the displayrules compiler.
package config

import (
	"fmt"
	"net/url"
	"runtime"
)

// CompilerConfig holds configuration for compiling displays into pages.
type CompilerConfig struct {
	OutputDir       string
	MacroFile       string
	ContinueOnError bool
	Parallelism     int
	LogLevel        string
	LogFormat       string
	DBURL           string
}

// DefaultCompilerConfig returns configuration with default values.
func DefaultCompilerConfig() *CompilerConfig {
	return &CompilerConfig{
		OutputDir:       "./out",
		MacroFile:       "",
		ContinueOnError: false,
		Parallelism:     runtime.NumCPU(),
		LogLevel:        "info",
		LogFormat:       "json",
		DBURL:           "",
	}
}

// HasCredentials reports whether a database URL embeds a password.
// Passwords belong in the environment (DR_DB_URL), never in config files.
func HasCredentials(dbURL string) bool {
	if dbURL == "" {
		return false
	}
	u, err := url.Parse(dbURL)
	if err != nil || u.User == nil {
		return false
	}
	_, ok := u.User.Password()
	return ok
}

// RedactURL returns dbURL with any password replaced, for logging.
func RedactURL(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}

func validLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func validFormat(format string) bool {
	return format == "json" || format == "text"
}

// validateConfig checks parallelism, output directory and logging settings.
func validateConfig(cfg *CompilerConfig) error {
	if cfg.OutputDir == "" {
		return fmt.Errorf("output_dir must not be empty")
	}
	if cfg.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive, got %d", cfg.Parallelism)
	}
	if !validLevel(cfg.LogLevel) {
		return fmt.Errorf("log level must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}
	if !validFormat(cfg.LogFormat) {
		return fmt.Errorf("log format must be json or text, got %q", cfg.LogFormat)
	}
	return nil
}
