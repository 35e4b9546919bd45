package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var daemonEnvKeys = []string{
	"STEPVIEW_DATA_DIR",
	"STEPVIEW_SETTINGS",
	"STEPVIEW_STORAGE",
	"STEPVIEW_HTTP_ADDR",
	"STEPVIEW_ALLOWED_ORIGINS",
	"STEPVIEW_NOTIFY",
	"STEPVIEW_JIRA_USER",
	"STEPVIEW_JIRA_TOKEN",
	"STEPVIEW_RPS",
	"STEPVIEW_FETCH_CONCURRENCY",
}

func TestDaemonConfigFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(t *testing.T, cfg DaemonConfig)
	}{
		{
			name:    "no environment variables uses defaults",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg DaemonConfig) {
				defaults := DefaultDaemonConfig()
				if cfg.StorageBackend != defaults.StorageBackend {
					t.Errorf("StorageBackend = %v, want %v", cfg.StorageBackend, defaults.StorageBackend)
				}
				if cfg.HTTPAddr != defaults.HTTPAddr {
					t.Errorf("HTTPAddr = %v, want %v", cfg.HTTPAddr, defaults.HTTPAddr)
				}
				if cfg.NotifyMode != defaults.NotifyMode {
					t.Errorf("NotifyMode = %v, want %v", cfg.NotifyMode, defaults.NotifyMode)
				}
				if cfg.RequestsPerSecond != defaults.RequestsPerSecond {
					t.Errorf("RequestsPerSecond = %v, want %v", cfg.RequestsPerSecond, defaults.RequestsPerSecond)
				}
			},
		},
		{
			name: "valid custom configuration",
			envVars: map[string]string{
				"STEPVIEW_DATA_DIR":          "/tmp/stepview-test",
				"STEPVIEW_STORAGE":           "badger",
				"STEPVIEW_HTTP_ADDR":         "",
				"STEPVIEW_ALLOWED_ORIGINS":   "https://a.example.com, https://b.example.com",
				"STEPVIEW_NOTIFY":            "log",
				"STEPVIEW_JIRA_USER":         "me@example.com",
				"STEPVIEW_JIRA_TOKEN":        "secret",
				"STEPVIEW_RPS":               "20",
				"STEPVIEW_FETCH_CONCURRENCY": "4",
			},
			check: func(t *testing.T, cfg DaemonConfig) {
				if cfg.DataDir != "/tmp/stepview-test" {
					t.Errorf("DataDir = %v", cfg.DataDir)
				}
				if cfg.SettingsPath != filepath.Join("/tmp/stepview-test", "settings.yaml") {
					t.Errorf("SettingsPath = %v", cfg.SettingsPath)
				}
				if cfg.DBPath() != filepath.Join("/tmp/stepview-test", "badger") {
					t.Errorf("DBPath = %v", cfg.DBPath())
				}
				if cfg.HTTPAddr != "" {
					t.Errorf("HTTPAddr = %q, want empty (disabled)", cfg.HTTPAddr)
				}
				if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
					t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
				}
				if cfg.RequestsPerSecond != 20 || cfg.FetchConcurrency != 4 {
					t.Errorf("RPS/Concurrency = %d/%d", cfg.RequestsPerSecond, cfg.FetchConcurrency)
				}
				if strings.Contains(cfg.String(), "secret") {
					t.Errorf("String() leaks the token: %s", cfg.String())
				}
			},
		},
		{
			name:    "invalid int value",
			envVars: map[string]string{"STEPVIEW_RPS": "fast"},
			wantErr: true,
		},
		{
			name:    "unknown backend",
			envVars: map[string]string{"STEPVIEW_STORAGE": "postgres"},
			wantErr: true,
		},
		{
			name:    "unknown notify mode",
			envVars: map[string]string{"STEPVIEW_NOTIFY": "email"},
			wantErr: true,
		},
		{
			name:    "rps out of range",
			envVars: map[string]string{"STEPVIEW_RPS": "0"},
			wantErr: true,
		},
		{
			name:    "origin without scheme",
			envVars: map[string]string{"STEPVIEW_ALLOWED_ORIGINS": "example.com"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range daemonEnvKeys {
				_ = os.Unsetenv(key)
			}
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}
			defer func() {
				for _, key := range daemonEnvKeys {
					_ = os.Unsetenv(key)
				}
			}()

			cfg, err := DaemonConfigFromEnv()
			if (err != nil) != tt.wantErr {
				t.Errorf("DaemonConfigFromEnv() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestDaemonConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *DaemonConfig)
		wantErr bool
	}{
		{"default config is valid", func(c *DaemonConfig) {}, false},
		{"empty data dir", func(c *DaemonConfig) { c.DataDir = " " }, true},
		{"concurrency too high", func(c *DaemonConfig) { c.FetchConcurrency = 64 }, true},
		{"concurrency at bounds", func(c *DaemonConfig) { c.FetchConcurrency = 32 }, false},
		{"notify none", func(c *DaemonConfig) { c.NotifyMode = NotifyNone }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultDaemonConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
