package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/steveyegge/stepview/internal/types"
)

// SettingsKey is the key of the stored settings document in the synced
// key-value namespace
const SettingsKey = "settings"

// KV is the key-value store holding settings overrides
type KV interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Set(ctx context.Context, namespace, key string, value []byte) error
}

// Source resolves settings on every read. Layers, lowest first: defaults,
// the preset matching host and issue key, the settings file, the stored
// overrides and the environment. Nothing is cached between reads.
type Source struct {
	path      string
	store     KV
	namespace string
	logger    *slog.Logger
}

// NewSource creates a settings source. path and store may both be empty.
func NewSource(path string, store KV, namespace string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{path: path, store: store, namespace: namespace, logger: logger}
}

// Path returns the settings file location
func (s *Source) Path() string {
	return s.path
}

// Raw returns the merged user layers (file, stored overrides, environment)
// without defaults or presets. Read failures degrade to "not set".
func (s *Source) Raw(ctx context.Context) RawSettings {
	raw, err := LoadFile(s.path)
	if err != nil {
		s.logger.Warn("failed to load settings file, using defaults", "path", s.path, "error", err)
		raw = RawSettings{}
	}

	if s.store != nil {
		data, err := s.store.Get(ctx, s.namespace, SettingsKey)
		if err != nil {
			s.logger.Warn("failed to read stored settings", "error", err)
		} else {
			raw = raw.overlay(DecodeRaw(data))
		}
	}

	if err := ApplyEnv(&raw); err != nil {
		s.logger.Warn("ignoring malformed environment setting", "error", err)
	}
	return raw
}

// Resolve returns the settings in effect for an issue. An empty key skips
// preset matching.
func (s *Source) Resolve(ctx context.Context, issueKey string) types.Settings {
	raw := s.Raw(ctx)
	var preset *Preset
	if issueKey != "" && raw.BaseURL != nil {
		preset = PresetFor(Hostname(*raw.BaseURL), issueKey)
	}
	return Resolve(raw, preset)
}

// Settings returns the settings that are not tied to an issue (alert
// polling)
func (s *Source) Settings(ctx context.Context) types.Settings {
	return s.Resolve(ctx, "")
}

// Store saves overrides to the synced namespace, merged over what is
// already stored there
func (s *Source) Store(ctx context.Context, overrides RawSettings) error {
	if s.store == nil {
		return fmt.Errorf("failed to store settings: no store configured")
	}
	current := RawSettings{}
	if data, err := s.store.Get(ctx, s.namespace, SettingsKey); err == nil {
		current = DecodeRaw(data)
	}
	data, err := EncodeRaw(current.overlay(overrides))
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, s.namespace, SettingsKey, data); err != nil {
		return fmt.Errorf("failed to store settings: %w", err)
	}
	return nil
}

// EnsureFile writes the defaults to the settings file when none exists yet.
// It reports whether a file was created.
func (s *Source) EnsureFile() (bool, error) {
	if s.path == "" {
		return false, nil
	}
	if _, err := os.Stat(s.path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to stat settings file: %w", err)
	}
	if err := SaveFile(s.path, Raw(DefaultSettings())); err != nil {
		return false, err
	}
	return true, nil
}

// Hostname extracts the lowercase host of a base URL
func Hostname(baseURL string) string {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
