package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*CompilerConfig, error) {
	v := viper.New()

	// Set defaults matching DefaultCompilerConfig
	v.SetDefault("compiler.output_dir", "./out")
	v.SetDefault("compiler.macro_file", "")
	v.SetDefault("compiler.continue_on_error", false)
	v.SetDefault("compiler.parallelism", runtime.NumCPU())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("db.url", "")

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Checked before env binding: only the file layer is inspected,
		// DR_DB_URL may carry a password
		if err := validateNoCredentialsInConfig(v); err != nil {
			return nil, err
		}
	}

	// Bind environment variables with DR_ prefix
	v.SetEnvPrefix("DR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &CompilerConfig{
		OutputDir:       v.GetString("compiler.output_dir"),
		MacroFile:       v.GetString("compiler.macro_file"),
		ContinueOnError: v.GetBool("compiler.continue_on_error"),
		Parallelism:     v.GetInt("compiler.parallelism"),
		LogLevel:        v.GetString("log.level"),
		LogFormat:       v.GetString("log.format"),
		DBURL:           v.GetString("db.url"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateNoCredentialsInConfig enforces environment-only database passwords (12-factor principle).
func validateNoCredentialsInConfig(v *viper.Viper) error {
	if v.IsSet("db.password") || HasCredentials(v.GetString("db.url")) {
		return fmt.Errorf("database credentials not allowed in config files (use DR_DB_URL environment variable)")
	}
	return nil
}
