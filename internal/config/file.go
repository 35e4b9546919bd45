package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// LoadFile reads stored settings from path. YAML is the default format;
// files ending in .json or .jsonc are parsed as JSON after stripping
// comments and trailing commas. A missing file yields empty settings.
func LoadFile(path string) (RawSettings, error) {
	var raw RawSettings
	if path == "" {
		return raw, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return raw, nil
		}
		return raw, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	if err := decodeSettings(path, data, &raw); err != nil {
		return RawSettings{}, err
	}
	return raw, nil
}

// SaveFile writes settings to path in the format implied by its extension
func SaveFile(path string, raw RawSettings) error {
	var (
		data []byte
		err  error
	)
	if isJSONPath(path) {
		data, err = json.MarshalIndent(raw, "", "  ")
	} else {
		data, err = yaml.Marshal(raw)
	}
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings file %s: %w", path, err)
	}
	return nil
}

func decodeSettings(path string, data []byte, raw *RawSettings) error {
	if isJSONPath(path) {
		if err := json.Unmarshal(jsonc.ToJSON(data), raw); err != nil {
			return fmt.Errorf("failed to parse settings file %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, raw); err != nil {
		return fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	return nil
}

func isJSONPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".json" || ext == ".jsonc"
}
