package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Storage backends
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Notification modes
const (
	NotifyTerminal = "terminal"
	NotifyLog      = "log"
	NotifyNone     = "none"
)

// DaemonConfig holds process-level configuration for the stepview daemon.
// Tracker behavior lives in the resolved Settings, not here.
type DaemonConfig struct {
	// DataDir holds the database and the control socket
	// Default: ~/.stepview
	DataDir string

	// SettingsPath is the YAML/JSONC settings file watched for changes
	// Default: <DataDir>/settings.yaml
	SettingsPath string

	// StorageBackend selects the inbox store: "sqlite" or "badger"
	// Default: "sqlite"
	StorageBackend string

	// HTTPAddr is the listen address of the inbox HTTP surface.
	// Empty disables the HTTP surface.
	// Default: "127.0.0.1:4319"
	HTTPAddr string

	// AllowedOrigins are the UI origins allowed to subscribe to alert broadcasts.
	// The tracker base URL is always allowed.
	AllowedOrigins []string

	// NotifyMode selects the notification sink: "terminal", "log" or "none"
	// Default: "terminal"
	NotifyMode string

	// JiraUser and JiraToken authenticate tracker requests. With a user the
	// token is sent as basic auth, otherwise as a bearer token.
	JiraUser  string
	JiraToken string

	// RequestsPerSecond rate-limits tracker requests
	// Default: 8, Range: 1-100
	RequestsPerSecond int

	// FetchConcurrency bounds parallel related-issue fetches
	// Default: 6, Range: 1-32
	FetchConcurrency int
}

// DefaultDaemonConfig returns the default daemon configuration
func DefaultDaemonConfig() DaemonConfig {
	dataDir := ".stepview"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".stepview")
	}
	return DaemonConfig{
		DataDir:           dataDir,
		SettingsPath:      DefaultSettingsPath(dataDir),
		StorageBackend:    BackendSQLite,
		HTTPAddr:          "127.0.0.1:4319",
		NotifyMode:        NotifyTerminal,
		RequestsPerSecond: 8,
		FetchConcurrency:  6,
	}
}

// DefaultSettingsPath returns the settings file location inside a data
// directory
func DefaultSettingsPath(dataDir string) string {
	return filepath.Join(dataDir, "settings.yaml")
}

// DBPath returns the storage location for the configured backend
func (c DaemonConfig) DBPath() string {
	if c.StorageBackend == BackendBadger {
		return filepath.Join(c.DataDir, "badger")
	}
	return filepath.Join(c.DataDir, "stepview.db")
}

// SocketPath returns the control socket location
func (c DaemonConfig) SocketPath() string {
	return filepath.Join(c.DataDir, "stepview.sock")
}

// Validate checks if the configuration has valid values
func (c DaemonConfig) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}

	if c.StorageBackend != BackendSQLite && c.StorageBackend != BackendBadger {
		return fmt.Errorf("storage_backend must be 'sqlite' or 'badger' (got %q)", c.StorageBackend)
	}

	switch c.NotifyMode {
	case NotifyTerminal, NotifyLog, NotifyNone:
	default:
		return fmt.Errorf("notify_mode must be 'terminal', 'log' or 'none' (got %q)", c.NotifyMode)
	}

	if c.RequestsPerSecond < 1 || c.RequestsPerSecond > 100 {
		return fmt.Errorf("requests_per_second must be between 1 and 100 (got %d)", c.RequestsPerSecond)
	}
	if c.FetchConcurrency < 1 || c.FetchConcurrency > 32 {
		return fmt.Errorf("fetch_concurrency must be between 1 and 32 (got %d)", c.FetchConcurrency)
	}

	for _, origin := range c.AllowedOrigins {
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("allowed origin %q must start with http:// or https://", origin)
		}
	}

	return nil
}

// String returns a human-readable representation of the config
func (c DaemonConfig) String() string {
	token := ""
	if c.JiraToken != "" {
		token = "<set>"
	}
	return fmt.Sprintf(
		"DaemonConfig{DataDir: %s, Settings: %s, Backend: %s, HTTP: %s, "+
			"Origins: %v, Notify: %s, User: %s, Token: %s, RPS: %d, Concurrency: %d}",
		c.DataDir, c.SettingsPath, c.StorageBackend, c.HTTPAddr,
		c.AllowedOrigins, c.NotifyMode, c.JiraUser, token,
		c.RequestsPerSecond, c.FetchConcurrency,
	)
}

// DaemonConfigFromEnv creates a DaemonConfig from environment variables,
// falling back to defaults
//
// Environment variables:
//   - STEPVIEW_DATA_DIR: Data directory (default: ~/.stepview)
//   - STEPVIEW_SETTINGS: Settings file path (default: <data dir>/settings.yaml)
//   - STEPVIEW_STORAGE: Storage backend, sqlite or badger (default: sqlite)
//   - STEPVIEW_HTTP_ADDR: HTTP listen address, empty string disables (default: 127.0.0.1:4319)
//   - STEPVIEW_ALLOWED_ORIGINS: Comma separated UI origins
//   - STEPVIEW_NOTIFY: Notification sink, terminal, log or none (default: terminal)
//   - STEPVIEW_JIRA_USER: Account for basic auth
//   - STEPVIEW_JIRA_TOKEN: API token
//   - STEPVIEW_RPS: Tracker requests per second (default: 8)
//   - STEPVIEW_FETCH_CONCURRENCY: Parallel related-issue fetches (default: 6)
//
// Returns an error if any environment variable has an invalid value.
func DaemonConfigFromEnv() (DaemonConfig, error) {
	cfg := DefaultDaemonConfig()

	dataDirSet := os.Getenv("STEPVIEW_DATA_DIR") != ""
	if err := parseEnvString("STEPVIEW_DATA_DIR", &cfg.DataDir); err != nil {
		return cfg, err
	}
	if dataDirSet {
		cfg.SettingsPath = DefaultSettingsPath(cfg.DataDir)
	}
	if err := parseEnvString("STEPVIEW_SETTINGS", &cfg.SettingsPath); err != nil {
		return cfg, err
	}
	if err := parseEnvString("STEPVIEW_STORAGE", &cfg.StorageBackend); err != nil {
		return cfg, err
	}
	if addr, ok := os.LookupEnv("STEPVIEW_HTTP_ADDR"); ok {
		cfg.HTTPAddr = addr
	}
	if err := parseEnvList("STEPVIEW_ALLOWED_ORIGINS", &cfg.AllowedOrigins); err != nil {
		return cfg, err
	}
	if err := parseEnvString("STEPVIEW_NOTIFY", &cfg.NotifyMode); err != nil {
		return cfg, err
	}
	if err := parseEnvString("STEPVIEW_JIRA_USER", &cfg.JiraUser); err != nil {
		return cfg, err
	}
	if err := parseEnvString("STEPVIEW_JIRA_TOKEN", &cfg.JiraToken); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("STEPVIEW_RPS", &cfg.RequestsPerSecond); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("STEPVIEW_FETCH_CONCURRENCY", &cfg.FetchConcurrency); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid daemon configuration from environment: %w", err)
	}

	return cfg, nil
}
