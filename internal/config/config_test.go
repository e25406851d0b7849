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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}
	return configPath
}

func TestLoadConfig(t *testing.T) {
	configPath := writeConfig(t, `
backend:
  url: "http://rag-backend:8003"
gateway:
  url: "http://gateway:8000"
services:
  backend: "http://rag-backend:8003"
  dashboard: "http://dashboard:8080"
import:
  collected_dir: "./collected"
  workers: 4
  rate_per_sec: 2.5
probe:
  query: "pharmacy"
  top_k: 5
smoke:
  response_wait: 3s
history:
  db_path: "./runs.db"
logging:
  level: "debug"
  format: "json"
  output: "stdout"
`)

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Backend.URL != "http://rag-backend:8003" {
		t.Errorf("Expected backend URL 'http://rag-backend:8003', got '%s'", config.Backend.URL)
	}

	if config.Gateway.URL != "http://gateway:8000" {
		t.Errorf("Expected gateway URL 'http://gateway:8000', got '%s'", config.Gateway.URL)
	}

	if len(config.Services) != 2 || config.Services["dashboard"] != "http://dashboard:8080" {
		t.Errorf("Unexpected services map: %v", config.Services)
	}

	if config.Import.Workers != 4 {
		t.Errorf("Expected import workers 4, got %d", config.Import.Workers)
	}

	if config.Import.RatePerSec != 2.5 {
		t.Errorf("Expected rate_per_sec 2.5, got %f", config.Import.RatePerSec)
	}

	if config.Probe.Query != "pharmacy" {
		t.Errorf("Expected probe query 'pharmacy', got '%s'", config.Probe.Query)
	}

	if config.Smoke.ResponseWait != 3*time.Second {
		t.Errorf("Expected response_wait 3s, got %v", config.Smoke.ResponseWait)
	}
}

func TestLoadDefaults(t *testing.T) {
	// No config file at all: defaults apply
	config, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config with defaults: %v", err)
	}

	if config.Backend.URL != "http://localhost:8003" {
		t.Errorf("Expected default backend URL 'http://localhost:8003', got '%s'", config.Backend.URL)
	}

	if config.Import.Workers != 1 {
		t.Errorf("Expected default workers 1, got %d", config.Import.Workers)
	}

	if config.Probe.Query != "emergency" {
		t.Errorf("Expected default probe query 'emergency', got '%s'", config.Probe.Query)
	}

	if config.Smoke.ResponseWait != 10*time.Second {
		t.Errorf("Expected default response_wait 10s, got %v", config.Smoke.ResponseWait)
	}

	if config.Logging.Level != "info" {
		t.Errorf("Expected default log level 'info', got '%s'", config.Logging.Level)
	}
}

func TestLoadMissingExplicitConfigFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Expected error for explicitly provided missing config file")
	}
	if !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestEnvironmentVariableOverrides(t *testing.T) {
	configPath := writeConfig(t, `
backend:
  url: "http://from-file:8003"
logging:
  level: "info"
`)

	t.Setenv("RAG_BACKEND_URL", "http://from-env:9999")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("HISTORY_DB_PATH", "/tmp/env-runs.db")

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Backend.URL != "http://from-env:9999" {
		t.Errorf("Expected env override for backend URL, got '%s'", config.Backend.URL)
	}

	if config.Logging.Level != "warn" {
		t.Errorf("Expected env override for log level, got '%s'", config.Logging.Level)
	}

	if config.History.DBPath != "/tmp/env-runs.db" {
		t.Errorf("Expected env override for history db path, got '%s'", config.History.DBPath)
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		errContains string
	}{
		{
			name: "zero workers",
			content: `
import:
  workers: 0
`,
			errContains: "workers must be at least 1",
		},
		{
			name: "negative rate",
			content: `
import:
  rate_per_sec: -1
`,
			errContains: "rate_per_sec must not be negative",
		},
		{
			name: "invalid log level",
			content: `
logging:
  level: "verbose"
`,
			errContains: "log level must be one of",
		},
		{
			name: "invalid log format",
			content: `
logging:
  format: "xml"
`,
			errContains: "log format must be one of",
		},
		{
			name: "zero top_k",
			content: `
probe:
  top_k: 0
`,
			errContains: "top_k must be greater than 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, tt.content)

			_, err := Load(configPath)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Expected error containing %q, got: %v", tt.errContains, err)
			}
		})
	}
}

func TestValidationErrorType(t *testing.T) {
	err := ValidationError{Field: "backend.url", Message: "required"}
	if !strings.Contains(err.Error(), "backend.url") {
		t.Errorf("Unexpected validation error string: %s", err.Error())
	}
}
