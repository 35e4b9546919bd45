package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment overrides for stored settings
const (
	EnvBaseURL          = "STEPVIEW_BASE_URL"
	EnvAlertEnabled     = "STEPVIEW_ALERT_ENABLED"
	EnvAlertIntervalMin = "STEPVIEW_ALERT_INTERVAL_MIN"
	EnvAlertLookbackMin = "STEPVIEW_ALERT_LOOKBACK_MIN"
	EnvMaxRelated       = "STEPVIEW_MAX_RELATED"
	EnvLinkTypeFilter   = "STEPVIEW_LINK_TYPES"
)

// ApplyEnv overlays STEPVIEW_* environment variables onto raw settings.
// Numeric values are carried as text and clamped later by Resolve, so a
// malformed number never fails here. A malformed boolean is reported and
// left unset.
func ApplyEnv(raw *RawSettings) error {
	var errs []string

	var baseURL string
	if err := parseEnvString(EnvBaseURL, &baseURL); err == nil && baseURL != "" {
		raw.BaseURL = &baseURL
	}

	if os.Getenv(EnvAlertEnabled) != "" {
		var enabled bool
		if err := parseEnvBool(EnvAlertEnabled, &enabled); err != nil {
			errs = append(errs, err.Error())
		} else {
			raw.AlertEnabled = &enabled
		}
	}

	for key, dest := range map[string]**IntText{
		EnvAlertIntervalMin: &raw.AlertIntervalMin,
		EnvAlertLookbackMin: &raw.AlertLookbackMin,
		EnvMaxRelated:       &raw.MaxRelatedIssues,
	} {
		if value := os.Getenv(key); value != "" {
			v := IntText(value)
			*dest = &v
		}
	}

	var linkTypes string
	if err := parseEnvString(EnvLinkTypeFilter, &linkTypes); err == nil && linkTypes != "" {
		raw.LinkTypeFilter = &linkTypes
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid settings environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	*dest = value
	return nil
}

// parseEnvList parses a comma separated list, dropping empty entries
func parseEnvList(key string, dest *[]string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dest = out
	return nil
}
