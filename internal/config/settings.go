package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/stepview/internal/types"
)

// DefaultStepRegex matches "step 3", "step:3", "step-3" in a summary
const DefaultStepRegex = `(?:^|\s)step[:\-_ ]?(\d+)`

var defaultStepPattern = regexp.MustCompile("(?i)" + DefaultStepRegex)

// Defaults applied before presets and stored values
const (
	DefaultAlertIntervalMin   = 3
	DefaultAlertLookbackMin   = 10
	DefaultMaxRelatedIssues   = 50
	DefaultProductLabelPrefix = "product:"
	DefaultStepLabelPrefix    = "step:"
)

// IntText is a user-supplied integer that may arrive as a number or as text.
// It is parsed leniently on resolve: a leading integer is accepted and
// anything else falls back to the default.
type IntText string

// UnmarshalJSON accepts numbers, strings and null
func (t *IntText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = IntText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*t = IntText(n.String())
		return nil
	}
	// Anything else (objects, arrays, booleans) is treated as absent
	*t = ""
	return nil
}

// UnmarshalYAML accepts any scalar
func (t *IntText) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		*t = ""
		return nil
	}
	*t = IntText(node.Value)
	return nil
}

// Int parses the leading integer of the text, mirroring lenient form input
func (t IntText) Int() (int, bool) {
	s := strings.TrimSpace(string(t))
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if errors.Is(err, strconv.ErrRange) {
		// Too many digits still means "very large"; clamping takes over
		if s[0] == '-' {
			return math.MinInt, true
		}
		return math.MaxInt, true
	}
	if err != nil {
		return 0, false
	}
	return n, true
}

// RawSettings is the stored, user-editable shape of the settings. Every
// field is optional; nil means "not set at this layer".
type RawSettings struct {
	BaseURL            *string  `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	AlertEnabled       *bool    `yaml:"alert_enabled,omitempty" json:"alert_enabled,omitempty"`
	AlertIntervalMin   *IntText `yaml:"alert_interval_min,omitempty" json:"alert_interval_min,omitempty"`
	AlertLookbackMin   *IntText `yaml:"alert_lookback_min,omitempty" json:"alert_lookback_min,omitempty"`
	ProductLabelPrefix *string  `yaml:"product_label_prefix,omitempty" json:"product_label_prefix,omitempty"`
	StepLabelPrefix    *string  `yaml:"step_label_prefix,omitempty" json:"step_label_prefix,omitempty"`
	StepRegex          *string  `yaml:"step_regex,omitempty" json:"step_regex,omitempty"`
	MaxRelatedIssues   *IntText `yaml:"max_related_issues,omitempty" json:"max_related_issues,omitempty"`
	ProductFieldID     *string  `yaml:"product_field_id,omitempty" json:"product_field_id,omitempty"`
	StepFieldID        *string  `yaml:"step_field_id,omitempty" json:"step_field_id,omitempty"`
	LinkTypeFilter     *string  `yaml:"link_type_filter,omitempty" json:"link_type_filter,omitempty"` // comma separated
}

// overlay copies every field set in o onto r
func (r RawSettings) overlay(o RawSettings) RawSettings {
	if o.BaseURL != nil {
		r.BaseURL = o.BaseURL
	}
	if o.AlertEnabled != nil {
		r.AlertEnabled = o.AlertEnabled
	}
	if o.AlertIntervalMin != nil {
		r.AlertIntervalMin = o.AlertIntervalMin
	}
	if o.AlertLookbackMin != nil {
		r.AlertLookbackMin = o.AlertLookbackMin
	}
	if o.ProductLabelPrefix != nil {
		r.ProductLabelPrefix = o.ProductLabelPrefix
	}
	if o.StepLabelPrefix != nil {
		r.StepLabelPrefix = o.StepLabelPrefix
	}
	if o.StepRegex != nil {
		r.StepRegex = o.StepRegex
	}
	if o.MaxRelatedIssues != nil {
		r.MaxRelatedIssues = o.MaxRelatedIssues
	}
	if o.ProductFieldID != nil {
		r.ProductFieldID = o.ProductFieldID
	}
	if o.StepFieldID != nil {
		r.StepFieldID = o.StepFieldID
	}
	if o.LinkTypeFilter != nil {
		r.LinkTypeFilter = o.LinkTypeFilter
	}
	return r
}

// DefaultSettings returns the resolved defaults. No base URL is configured
// by default, so alert polling stays idle until one is set.
func DefaultSettings() types.Settings {
	return Resolve(RawSettings{}, nil)
}

// Resolve merges defaults, an optional preset and the stored values (in that
// order of precedence, lowest first) and clamps every numeric field.
// Out-of-range or malformed input is never surfaced: it is defaulted or
// clamped.
func Resolve(stored RawSettings, preset *Preset) types.Settings {
	merged := RawSettings{}
	if preset != nil {
		merged = merged.overlay(preset.Settings)
	}
	merged = merged.overlay(stored)

	s := types.Settings{
		AlertEnabled:       true,
		AlertIntervalMin:   resolveInt(merged.AlertIntervalMin, DefaultAlertIntervalMin),
		AlertLookbackMin:   resolveInt(merged.AlertLookbackMin, DefaultAlertLookbackMin),
		MaxRelatedIssues:   resolveInt(merged.MaxRelatedIssues, DefaultMaxRelatedIssues),
		ProductLabelPrefix: nonEmpty(merged.ProductLabelPrefix, DefaultProductLabelPrefix),
		StepLabelPrefix:    nonEmpty(merged.StepLabelPrefix, DefaultStepLabelPrefix),
		StepRegex:          nonEmpty(merged.StepRegex, DefaultStepRegex),
		ProductFieldID:     trimmed(merged.ProductFieldID),
		StepFieldID:        trimmed(merged.StepFieldID),
		LinkTypeFilter:     ParseLinkTypeFilter(trimmed(merged.LinkTypeFilter)),
	}
	if merged.AlertEnabled != nil {
		s.AlertEnabled = *merged.AlertEnabled
	}
	s.BaseURL = strings.TrimRight(trimmed(merged.BaseURL), "/")

	s.AlertIntervalMin = clamp(s.AlertIntervalMin, types.MinAlertIntervalMin, types.MaxAlertIntervalMin)
	s.AlertLookbackMin = clamp(s.AlertLookbackMin, types.MinAlertLookbackMin, types.MaxAlertLookbackMin)
	if s.MaxRelatedIssues < types.MinMaxRelatedIssues {
		s.MaxRelatedIssues = DefaultMaxRelatedIssues
	}

	re, err := regexp.Compile("(?i)" + s.StepRegex)
	if err != nil {
		s.StepRegex = DefaultStepRegex
		re = defaultStepPattern
	}
	return s.WithStepPattern(re)
}

// ParseLinkTypeFilter splits a comma separated list into a lowercase set
func ParseLinkTypeFilter(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, part := range strings.Split(text, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name != "" {
			out[name] = struct{}{}
		}
	}
	return out
}

// Raw converts resolved settings back into the stored shape
func Raw(s types.Settings) RawSettings {
	interval := IntText(strconv.Itoa(s.AlertIntervalMin))
	lookback := IntText(strconv.Itoa(s.AlertLookbackMin))
	maxRelated := IntText(strconv.Itoa(s.MaxRelatedIssues))
	enabled := s.AlertEnabled
	linkTypes := strings.Join(s.LinkTypes(), ",")
	return RawSettings{
		BaseURL:            &s.BaseURL,
		AlertEnabled:       &enabled,
		AlertIntervalMin:   &interval,
		AlertLookbackMin:   &lookback,
		ProductLabelPrefix: &s.ProductLabelPrefix,
		StepLabelPrefix:    &s.StepLabelPrefix,
		StepRegex:          &s.StepRegex,
		MaxRelatedIssues:   &maxRelated,
		ProductFieldID:     &s.ProductFieldID,
		StepFieldID:        &s.StepFieldID,
		LinkTypeFilter:     &linkTypes,
	}
}

// DecodeRaw parses a stored settings document (JSON). Decode failures yield
// empty settings, which resolve to defaults.
func DecodeRaw(data []byte) RawSettings {
	var raw RawSettings
	if len(data) == 0 {
		return raw
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return RawSettings{}
	}
	return raw
}

// EncodeRaw serializes settings for the synced key-value namespace
func EncodeRaw(raw RawSettings) ([]byte, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	return data, nil
}

func resolveInt(v *IntText, def int) int {
	if v == nil {
		return def
	}
	n, ok := v.Int()
	if !ok {
		return def
	}
	return n
}

func nonEmpty(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func trimmed(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

func clamp(n, lo, hi int) int {
	return max(lo, min(hi, n))
}
