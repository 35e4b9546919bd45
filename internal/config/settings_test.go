package config

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/stepview/internal/types"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	assert.Equal(t, "", s.BaseURL)
	assert.True(t, s.AlertEnabled)
	assert.Equal(t, 3, s.AlertIntervalMin)
	assert.Equal(t, 10, s.AlertLookbackMin)
	assert.Equal(t, "product:", s.ProductLabelPrefix)
	assert.Equal(t, "step:", s.StepLabelPrefix)
	assert.Equal(t, DefaultStepRegex, s.StepRegex)
	assert.Equal(t, 50, s.MaxRelatedIssues)
	assert.Empty(t, s.LinkTypeFilter)
	require.NotNil(t, s.StepPattern())
	assert.NoError(t, s.Validate())
}

func TestResolveClampsNumericFields(t *testing.T) {
	tests := []struct {
		name         string
		interval     string
		lookback     string
		maxRelated   string
		wantInterval int
		wantLookback int
		wantMax      int
	}{
		{"in range", "5", "60", "20", 5, 60, 20},
		{"below minimum", "0", "1", "0", 1, 3, 50},
		{"above maximum", "99", "1000", "500", 30, 180, 500},
		{"negative", "-4", "-10", "-1", 1, 3, 50},
		{"garbage falls back to defaults", "abc", "", "x1", 3, 10, 50},
		{"leading integer accepted", "7min", "15 minutes", "12abc", 7, 15, 12},
		{"whitespace around number", "  8 ", "\t20", " 3", 8, 20, 3},
		{"decimal truncates", "2.9", "4.5", "1.1", 2, 4, 1},
		{"explicit plus sign", "+6", "+30", "+9", 6, 30, 9},
		{"overflow saturates", "99999999999999999999", "99999999999999999999", "99999999999999999999", 30, 180, math.MaxInt},
		{"negative overflow saturates", "-99999999999999999999", "-99999999999999999999", "-99999999999999999999", 1, 3, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := RawSettings{
				AlertIntervalMin: intPtr(tt.interval),
				AlertLookbackMin: intPtr(tt.lookback),
				MaxRelatedIssues: intPtr(tt.maxRelated),
			}
			s := Resolve(raw, nil)
			assert.Equal(t, tt.wantInterval, s.AlertIntervalMin)
			assert.Equal(t, tt.wantLookback, s.AlertLookbackMin)
			assert.Equal(t, tt.wantMax, s.MaxRelatedIssues)
			assert.NoError(t, s.Validate())
		})
	}
}

// Any text, however malformed, must resolve into the valid ranges.
func TestResolveNeverProducesOutOfRange(t *testing.T) {
	inputs := []string{
		"", " ", "0", "-0", "1", "30", "31", "180", "181", "-2147483648",
		"9223372036854775807", "99999999999999999999999", "NaN", "Infinity",
		"-Infinity", "1e9", "0x10", "３", "十", "null", "true", "[]", "{}",
	}
	for _, a := range inputs {
		for _, b := range inputs {
			s := Resolve(RawSettings{
				AlertIntervalMin: intPtr(a),
				AlertLookbackMin: intPtr(b),
				MaxRelatedIssues: intPtr(a),
			}, nil)
			if s.AlertIntervalMin < 1 || s.AlertIntervalMin > 30 {
				t.Fatalf("interval %d out of range for %q", s.AlertIntervalMin, a)
			}
			if s.AlertLookbackMin < 3 || s.AlertLookbackMin > 180 {
				t.Fatalf("lookback %d out of range for %q", s.AlertLookbackMin, b)
			}
			if s.MaxRelatedIssues < 1 {
				t.Fatalf("max related %d below 1 for %q", s.MaxRelatedIssues, a)
			}
		}
	}
}

func TestResolveJSONInputs(t *testing.T) {
	tests := []struct {
		name         string
		doc          string
		wantInterval int
		wantLookback int
	}{
		{"numbers", `{"alert_interval_min": 12, "alert_lookback_min": 40}`, 12, 40},
		{"strings", `{"alert_interval_min": "12", "alert_lookback_min": "40"}`, 12, 40},
		{"null", `{"alert_interval_min": null}`, 3, 10},
		{"objects are ignored", `{"alert_interval_min": {"a": 1}, "alert_lookback_min": [5]}`, 3, 10},
		{"booleans are ignored", `{"alert_interval_min": true}`, 3, 10},
		{"huge number clamps", `{"alert_interval_min": 1e308}`, 1, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := DecodeRaw([]byte(tt.doc))
			s := Resolve(raw, nil)
			assert.Equal(t, tt.wantInterval, s.AlertIntervalMin)
			assert.Equal(t, tt.wantLookback, s.AlertLookbackMin)
		})
	}
}

func TestDecodeRawInvalidDocument(t *testing.T) {
	raw := DecodeRaw([]byte(`{not json`))
	assert.Equal(t, RawSettings{}, raw)
	assert.Equal(t, RawSettings{}, DecodeRaw(nil))
}

func TestResolveYAMLInputs(t *testing.T) {
	doc := `
base_url: https://example.atlassian.net///
alert_enabled: false
alert_interval_min: "45"
alert_lookback_min: 2
max_related_issues: 0
link_type_filter: " Relates, Blocks ,,"
`
	var raw RawSettings
	require.NoError(t, yaml.Unmarshal([]byte(doc), &raw))

	s := Resolve(raw, nil)
	assert.Equal(t, "https://example.atlassian.net", s.BaseURL)
	assert.False(t, s.AlertEnabled)
	assert.Equal(t, 30, s.AlertIntervalMin)
	assert.Equal(t, 3, s.AlertLookbackMin)
	assert.Equal(t, 50, s.MaxRelatedIssues)
	assert.Equal(t, []string{"blocks", "relates"}, s.LinkTypes())
	assert.True(t, s.AllowsLinkType("RELATES"))
	assert.False(t, s.AllowsLinkType("Duplicates"))
}

func TestResolvePrecedence(t *testing.T) {
	preset := PresetByName("scrum")
	require.NotNil(t, preset)

	t.Run("preset overrides defaults", func(t *testing.T) {
		s := Resolve(RawSettings{}, preset)
		assert.Equal(t, 80, s.MaxRelatedIssues)
		assert.Equal(t, []string{"relates"}, s.LinkTypes())
		assert.Equal(t, 3, s.AlertIntervalMin)
	})

	t.Run("stored overrides preset", func(t *testing.T) {
		s := Resolve(RawSettings{MaxRelatedIssues: intPtr("10"), LinkTypeFilter: strPtr("")}, preset)
		assert.Equal(t, 10, s.MaxRelatedIssues)
		assert.Empty(t, s.LinkTypeFilter)
	})

	t.Run("empty prefixes fall back", func(t *testing.T) {
		s := Resolve(RawSettings{ProductLabelPrefix: strPtr(""), StepLabelPrefix: strPtr("")}, nil)
		assert.Equal(t, "product:", s.ProductLabelPrefix)
		assert.Equal(t, "step:", s.StepLabelPrefix)
	})
}

func TestResolveStepRegex(t *testing.T) {
	t.Run("custom pattern is case-insensitive", func(t *testing.T) {
		s := Resolve(RawSettings{StepRegex: strPtr(`phase-(\d+)`)}, nil)
		require.NotNil(t, s.StepPattern())
		m := s.StepPattern().FindStringSubmatch("PHASE-4 rollout")
		require.Len(t, m, 2)
		assert.Equal(t, "4", m[1])
	})

	t.Run("invalid pattern falls back to default", func(t *testing.T) {
		s := Resolve(RawSettings{StepRegex: strPtr(`step(`)}, nil)
		assert.Equal(t, DefaultStepRegex, s.StepRegex)
		require.NotNil(t, s.StepPattern())
		assert.True(t, s.StepPattern().MatchString("Step 2 checkout"))
	})
}

func TestRawRoundTripThroughResolve(t *testing.T) {
	original := Resolve(RawSettings{
		BaseURL:          strPtr("https://jira.example.com"),
		AlertIntervalMin: intPtr("9"),
		LinkTypeFilter:   strPtr("Relates,Blocks"),
		StepFieldID:      strPtr("customfield_10020"),
	}, nil)

	data, err := EncodeRaw(Raw(original))
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.Equal(t, "9", generic["alert_interval_min"])

	again := Resolve(DecodeRaw(data), nil)
	assert.Equal(t, original.String(), again.String())
}

func TestPresetFor(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		key      string
		wantName string
	}{
		{"matching host and project", "dhwoo.atlassian.net", "SCRUM-12", "scrum"},
		{"host is case-insensitive", "DHWOO.atlassian.net", "scrum-3", "scrum"},
		{"other project", "dhwoo.atlassian.net", "OPS-1", ""},
		{"other host", "acme.atlassian.net", "SCRUM-12", ""},
		{"prefix must end at dash", "dhwoo.atlassian.net", "SCRUMMY-1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PresetFor(tt.host, tt.key)
			if tt.wantName == "" {
				assert.Nil(t, p)
				return
			}
			require.NotNil(t, p)
			assert.Equal(t, tt.wantName, p.Name)
		})
	}
}

func TestSettingsValidateRejectsUnclamped(t *testing.T) {
	s := types.Settings{AlertIntervalMin: 0, AlertLookbackMin: 10, MaxRelatedIssues: 1}
	err := s.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfigurationInvalid)
}
