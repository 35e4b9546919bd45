package config

import (
	"strings"
)

// Preset is a bundle of settings overrides applied when the tracker host and
// the issue's project match. Stored settings still win over a preset.
type Preset struct {
	Name       string
	Hostname   string // lowercase host, no port
	ProjectKey string
	Settings   RawSettings
}

// Matches reports whether the preset applies to an issue on the given host
func (p *Preset) Matches(hostname, issueKey string) bool {
	if p == nil {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(hostname), p.Hostname) {
		return false
	}
	return strings.HasPrefix(strings.ToUpper(issueKey), strings.ToUpper(p.ProjectKey)+"-")
}

func strPtr(s string) *string { return &s }

func intPtr(s string) *IntText {
	v := IntText(s)
	return &v
}

// ScrumPreset tunes related-issue discovery for the SCRUM project
var ScrumPreset = Preset{
	Name:       "scrum",
	Hostname:   "dhwoo.atlassian.net",
	ProjectKey: "SCRUM",
	Settings: RawSettings{
		MaxRelatedIssues: intPtr("80"),
		LinkTypeFilter:   strPtr("Relates"),
	},
}

// Presets is the built-in preset table, checked in order
var Presets = []*Preset{&ScrumPreset}

// PresetFor returns the first preset matching the host and issue key, or nil
func PresetFor(hostname, issueKey string) *Preset {
	for _, p := range Presets {
		if p.Matches(hostname, issueKey) {
			return p
		}
	}
	return nil
}

// PresetByName looks a preset up by name (case-insensitive)
func PresetByName(name string) *Preset {
	for _, p := range Presets {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}
