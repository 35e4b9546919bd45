package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var settingKeys = map[string]func(raw *RawSettings, value string) error{
	"base_url":             stringSetter(func(r *RawSettings, v *string) { r.BaseURL = v }),
	"product_label_prefix": stringSetter(func(r *RawSettings, v *string) { r.ProductLabelPrefix = v }),
	"step_label_prefix":    stringSetter(func(r *RawSettings, v *string) { r.StepLabelPrefix = v }),
	"step_regex":           stringSetter(func(r *RawSettings, v *string) { r.StepRegex = v }),
	"product_field_id":     stringSetter(func(r *RawSettings, v *string) { r.ProductFieldID = v }),
	"step_field_id":        stringSetter(func(r *RawSettings, v *string) { r.StepFieldID = v }),
	"link_type_filter":     stringSetter(func(r *RawSettings, v *string) { r.LinkTypeFilter = v }),
	"alert_interval_min":   intSetter(func(r *RawSettings, v *IntText) { r.AlertIntervalMin = v }),
	"alert_lookback_min":   intSetter(func(r *RawSettings, v *IntText) { r.AlertLookbackMin = v }),
	"max_related_issues":   intSetter(func(r *RawSettings, v *IntText) { r.MaxRelatedIssues = v }),
	"alert_enabled": func(raw *RawSettings, value string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("alert_enabled must be true or false (got %q)", value)
		}
		raw.AlertEnabled = &b
		return nil
	},
}

func stringSetter(set func(*RawSettings, *string)) func(*RawSettings, string) error {
	return func(raw *RawSettings, value string) error {
		set(raw, &value)
		return nil
	}
}

func intSetter(set func(*RawSettings, *IntText)) func(*RawSettings, string) error {
	return func(raw *RawSettings, value string) error {
		v := IntText(value)
		if _, ok := v.Int(); !ok {
			return fmt.Errorf("%q is not a number", value)
		}
		set(raw, &v)
		return nil
	}
}

// SettingKeys lists the names accepted by ParseAssignment
func SettingKeys() []string {
	keys := make([]string, 0, len(settingKeys))
	for k := range settingKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseAssignment builds a single-field override from a "key value" pair
// as typed on the command line
func ParseAssignment(key, value string) (RawSettings, error) {
	var raw RawSettings
	set, ok := settingKeys[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return raw, fmt.Errorf("unknown setting %q (known: %s)", key, strings.Join(SettingKeys(), ", "))
	}
	if err := set(&raw, value); err != nil {
		return RawSettings{}, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return raw, nil
}
