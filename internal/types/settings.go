package types

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Settings is the validated configuration record handed to every component.
// It is only produced by config.Resolve, which clamps all numeric fields.
type Settings struct {
	BaseURL            string
	AlertEnabled       bool
	AlertIntervalMin   int
	AlertLookbackMin   int
	ProductLabelPrefix string
	StepLabelPrefix    string
	StepRegex          string
	MaxRelatedIssues   int
	ProductFieldID     string
	StepFieldID        string
	LinkTypeFilter     map[string]struct{} // lowercase link type names; empty accepts all

	stepPattern *regexp.Regexp
}

// Bounds enforced on every resolve
const (
	MinAlertIntervalMin = 1
	MaxAlertIntervalMin = 30
	MinAlertLookbackMin = 3
	MaxAlertLookbackMin = 180
	MinMaxRelatedIssues = 1
)

// Validate reports out-of-range fields. Resolved settings always pass.
func (s Settings) Validate() error {
	if s.AlertIntervalMin < MinAlertIntervalMin || s.AlertIntervalMin > MaxAlertIntervalMin {
		return fmt.Errorf("%w: alert_interval_min must be between %d and %d (got %d)",
			ErrConfigurationInvalid, MinAlertIntervalMin, MaxAlertIntervalMin, s.AlertIntervalMin)
	}
	if s.AlertLookbackMin < MinAlertLookbackMin || s.AlertLookbackMin > MaxAlertLookbackMin {
		return fmt.Errorf("%w: alert_lookback_min must be between %d and %d (got %d)",
			ErrConfigurationInvalid, MinAlertLookbackMin, MaxAlertLookbackMin, s.AlertLookbackMin)
	}
	if s.MaxRelatedIssues < MinMaxRelatedIssues {
		return fmt.Errorf("%w: max_related_issues must be at least %d (got %d)",
			ErrConfigurationInvalid, MinMaxRelatedIssues, s.MaxRelatedIssues)
	}
	return nil
}

// WithStepPattern returns a copy carrying the compiled step regex
func (s Settings) WithStepPattern(re *regexp.Regexp) Settings {
	s.stepPattern = re
	return s
}

// StepPattern returns the compiled, case-insensitive step regex, or nil when
// the configured pattern did not compile.
func (s Settings) StepPattern() *regexp.Regexp {
	return s.stepPattern
}

// AllowsLinkType reports whether a link of the given type passes the filter
func (s Settings) AllowsLinkType(name string) bool {
	if len(s.LinkTypeFilter) == 0 {
		return true
	}
	_, ok := s.LinkTypeFilter[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// LinkTypes returns the filter as a sorted slice
func (s Settings) LinkTypes() []string {
	out := make([]string, 0, len(s.LinkTypeFilter))
	for name := range s.LinkTypeFilter {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// String returns a human-readable representation of the settings
func (s Settings) String() string {
	return fmt.Sprintf(
		"Settings{BaseURL: %s, AlertEnabled: %t, Interval: %dm, Lookback: %dm, "+
			"ProductPrefix: %q, StepPrefix: %q, StepRegex: %q, MaxRelated: %d, "+
			"ProductField: %q, StepField: %q, LinkTypes: %v}",
		s.BaseURL, s.AlertEnabled, s.AlertIntervalMin, s.AlertLookbackMin,
		s.ProductLabelPrefix, s.StepLabelPrefix, s.StepRegex, s.MaxRelatedIssues,
		s.ProductFieldID, s.StepFieldID, s.LinkTypes(),
	)
}
