// Copyright 2024 KB Ingest Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Backend  BackendConfig     `mapstructure:"backend"`
	Gateway  GatewayConfig     `mapstructure:"gateway"`
	Services map[string]string `mapstructure:"services"`
	Import   ImportConfig      `mapstructure:"import"`
	Probe    ProbeConfig       `mapstructure:"probe"`
	Smoke    SmokeConfig       `mapstructure:"smoke"`
	History  HistoryConfig     `mapstructure:"history"`
	Logging  LoggingConfig     `mapstructure:"logging"`
}

// BackendConfig contains RAG backend configuration
type BackendConfig struct {
	URL string `mapstructure:"url"`
}

// GatewayConfig contains message gateway configuration
type GatewayConfig struct {
	URL string `mapstructure:"url"`
}

// ImportConfig contains bulk-import settings
type ImportConfig struct {
	CollectedDir string  `mapstructure:"collected_dir"`
	Workers      int     `mapstructure:"workers"`
	RatePerSec   float64 `mapstructure:"rate_per_sec"`
}

// ProbeConfig contains search-probe settings
type ProbeConfig struct {
	Query string `mapstructure:"query"`
	TopK  int    `mapstructure:"top_k"`
}

// SmokeConfig contains smoke-test settings
type SmokeConfig struct {
	ResponseWait time.Duration `mapstructure:"response_wait"`
}

// HistoryConfig contains the import-run ledger configuration
type HistoryConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed for field '%s': %s", e.Field, e.Message)
}

// Load loads configuration from file and environment variables.
// Environment variables take precedence over config file values. The config
// file is optional: a missing default file falls back to defaults, but an
// explicitly provided path that does not exist is an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := setConfigFile(v, configPath); err != nil {
		return nil, fmt.Errorf("failed to set config file: %w", err)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("KB_INGEST")

	if err := v.ReadInConfig(); err != nil {
		// No config file at the default locations is fine; defaults and
		// environment variables still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && v.ConfigFileUsed() != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	setEnvironmentMappings(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Backend and gateway defaults
	v.SetDefault("backend.url", "http://localhost:8003")
	v.SetDefault("gateway.url", "http://localhost:8000")

	// Import defaults
	v.SetDefault("import.collected_dir", "./collected_data")
	v.SetDefault("import.workers", 1)
	v.SetDefault("import.rate_per_sec", 0.0)

	// Probe defaults
	v.SetDefault("probe.query", "emergency")
	v.SetDefault("probe.top_k", 3)

	// Smoke-test defaults
	v.SetDefault("smoke.response_wait", 10*time.Second)

	// History ledger defaults
	v.SetDefault("history.db_path", "./import_history.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// setConfigFile sets the configuration file path with fallback logic
func setConfigFile(v *viper.Viper, configPath string) error {
	// Check for CONFIG_PATH environment variable
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return fmt.Errorf("config file specified by CONFIG_PATH does not exist: %s", envPath)
		}
		v.SetConfigFile(envPath)
		return nil
	}

	// Use provided config path
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("config file does not exist: %s", configPath)
		}
		v.SetConfigFile(configPath)
		return nil
	}

	// Default fallback locations; missing files are tolerated for a CLI run
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	return nil
}

// setEnvironmentMappings sets explicit environment variable mappings
func setEnvironmentMappings(v *viper.Viper) {
	envMappings := map[string]string{
		"RAG_BACKEND_URL": "backend.url",
		"GATEWAY_URL":     "gateway.url",
		"COLLECTED_DIR":   "import.collected_dir",
		"HISTORY_DB_PATH": "history.db_path",
		"LOG_LEVEL":       "logging.level",
		"LOG_FORMAT":      "logging.format",
		"LOG_OUTPUT":      "logging.output",
	}

	for envVar, configKey := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			v.Set(configKey, value)
		}
	}
}

// validateConfig validates the configuration for required fields and valid values
func validateConfig(config *Config) error {
	var errors []ValidationError

	if config.Backend.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "backend.url",
			Message: "RAG backend URL is required. Set via config file or RAG_BACKEND_URL environment variable",
		})
	}

	if config.Gateway.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "gateway.url",
			Message: "gateway URL is required. Set via config file or GATEWAY_URL environment variable",
		})
	}

	if config.Import.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "import.workers",
			Message: "workers must be at least 1",
		})
	}

	if config.Import.RatePerSec < 0 {
		errors = append(errors, ValidationError{
			Field:   "import.rate_per_sec",
			Message: "rate_per_sec must not be negative",
		})
	}

	if config.Probe.TopK <= 0 {
		errors = append(errors, ValidationError{
			Field:   "probe.top_k",
			Message: "top_k must be greater than 0",
		})
	}

	if config.Smoke.ResponseWait < 0 {
		errors = append(errors, ValidationError{
			Field:   "smoke.response_wait",
			Message: "response_wait must not be negative",
		})
	}

	if config.History.DBPath == "" {
		errors = append(errors, ValidationError{
			Field:   "history.db_path",
			Message: "history database path is required",
		})
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, config.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("log level must be one of: %s", strings.Join(validLogLevels, ", ")),
		})
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, config.Logging.Format) {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("log format must be one of: %s", strings.Join(validLogFormats, ", ")),
		})
	}

	if len(errors) > 0 {
		var errorMessages []string
		for _, err := range errors {
			errorMessages = append(errorMessages, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errorMessages, "\n"))
	}

	return nil
}

// contains checks if a slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// WatchConfig enables configuration hot-reloading for development
func WatchConfig(configPath string, callback func(*Config)) error {
	v := viper.New()

	if err := setConfigFile(v, configPath); err != nil {
		return err
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		fmt.Printf("Config file changed: %s\n", e.Name)

		config, err := Load(configPath)
		if err != nil {
			fmt.Printf("Failed to reload config: %v\n", err)
			return
		}

		callback(config)
	})

	return nil
}
