package types

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// Capacity and paging limits shared by the alert engine, storage backends
// and the HTTP surface.
const (
	// SeenMarkerCap is the number of most-recently-seen markers retained
	SeenMarkerCap = 400
	// InboxPersistCap is the maximum number of alert items persisted
	InboxPersistCap = 120
	// InboxExposeCap is the maximum number of alert items returned to a UI surface
	InboxExposeCap = 40
	// AlertPageSize is the page size of the recently-updated query
	AlertPageSize = 25
	// MaxRecommended caps the recommendation result list
	MaxRecommended = 6
	// MaxSummaryTokens caps normalized summary tokens per issue
	MaxSummaryTokens = 6
	// NotificationIDMax is the maximum length of a sanitized notification id
	NotificationIDMax = 180
	// NotificationBodyMax is the maximum length of a notification body
	NotificationBodyMax = 240
)

// Step ordering sentinels. Numbered steps sort by their number; unnumbered
// steps sort after them and the unspecified step sorts last.
const (
	OrderUnspecified = math.MaxInt
	OrderUnnumbered  = math.MaxInt - 1
)

// Fallback classification names
const (
	ProductUnclassified = "unclassified"
	StepUnspecified     = "unspecified"
)

var issueKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]+-\d+$`)

// IsIssueKey reports whether key looks like a tracker issue key (PROJ-123)
func IsIssueKey(key string) bool {
	return issueKeyPattern.MatchString(key)
}

// ProjectFromKey returns the project part of an issue key ("PROJ" for "PROJ-12")
func ProjectFromKey(key string) string {
	idx := strings.Index(key, "-")
	if idx <= 0 {
		return ""
	}
	return strings.ToUpper(key[:idx])
}

// Issue is a read-only view of a tracker work item
type Issue struct {
	Key        string         `json:"key"`
	Summary    string         `json:"summary"`
	Status     string         `json:"status,omitempty"`
	Project    string         `json:"project,omitempty"`
	Labels     []string       `json:"labels,omitempty"`
	Components []string       `json:"components,omitempty"`
	Links      []IssueLink    `json:"links,omitempty"`
	Updated    string         `json:"updated,omitempty"` // ISO-8601, kept verbatim (part of the dedup marker)
	Fields     map[string]any `json:"fields,omitempty"`  // Raw custom fields used by product/step field resolution
}

// Validate checks that the issue carries the fields the alert engine relies on
func (i *Issue) Validate() error {
	if strings.TrimSpace(i.Key) == "" {
		return fmt.Errorf("%w: missing key", ErrMalformedRecord)
	}
	if strings.TrimSpace(i.Updated) == "" {
		return fmt.Errorf("%w: %s has no updated timestamp", ErrMalformedRecord, i.Key)
	}
	return nil
}

// UpdatedTime parses Updated. Tracker timestamps come in a few ISO-8601
// variants; the zero time is returned when none match.
func (i *Issue) UpdatedTime() time.Time {
	return ParseTimestamp(i.Updated)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.000Z0700",
}

// ParseTimestamp parses a tracker timestamp, returning the zero time on failure
func ParseTimestamp(text string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t
		}
	}
	return time.Time{}
}

// IssueLink is one entry of an issue's link list. Exactly one of
// OutwardKey / InwardKey is normally set.
type IssueLink struct {
	Type       string `json:"type"`
	OutwardKey string `json:"outward_key,omitempty"`
	InwardKey  string `json:"inward_key,omitempty"`
}

// ProductGroup is the top level of the product/step taxonomy
type ProductGroup struct {
	Name  string      `json:"name"`
	Count int         `json:"count"`
	Steps []StepGroup `json:"steps"`
}

// StepGroup is the second level of the taxonomy
type StepGroup struct {
	ID     string  `json:"id"`
	Order  int     `json:"order"`
	Title  string  `json:"title"`
	Issues []Issue `json:"issues"`
}

// Numbered reports whether the step carries a numeric order
func (s StepGroup) Numbered() bool {
	return s.Order != OrderUnspecified && s.Order != OrderUnnumbered
}

// RecommendedIssue is a scored look-alike candidate
type RecommendedIssue struct {
	Issue   Issue    `json:"issue"`
	Score   int      `json:"score"`
	Reasons []string `json:"reasons"`
}

// ReasonText joins the reasons the way they are shown to the user
func (r RecommendedIssue) ReasonText() string {
	if len(r.Reasons) == 0 {
		return "similar attributes"
	}
	return strings.Join(r.Reasons, " + ")
}

// Verdict is a pass/fail decision recorded for a walkthrough step
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
)

// IsValid checks if the verdict value is valid
func (v Verdict) IsValid() bool {
	switch v {
	case VerdictPass, VerdictFail:
		return true
	}
	return false
}

// FlowStep is one entry of the flattened walkthrough sequence
type FlowStep struct {
	ID      string  `json:"id"` // product + ":" + step id
	Product string  `json:"product"`
	Title   string  `json:"title"`
	Order   int     `json:"order"`
	Issues  []Issue `json:"issues"`
}

// AlertItem is one entry of the notification inbox. ID is the dedup marker.
type AlertItem struct {
	ID           string    `json:"id"`
	Key          string    `json:"key"`
	Summary      string    `json:"summary"`
	Status       string    `json:"status"`
	Updated      string    `json:"updated"`
	UpdatedLabel string    `json:"updated_label,omitempty"`
	Link         string    `json:"link"`
	CreatedAt    time.Time `json:"created_at"`
	IsRead       bool      `json:"is_read"`
}

// Marker builds the dedup identity of an alert
func Marker(key, updated string) string {
	return key + ":" + updated
}

// InboxPayload is returned by every inbox protocol operation
type InboxPayload struct {
	Items       []AlertItem `json:"items"`
	UnreadCount int         `json:"unread_count"`
}

// PollResult summarizes one poll cycle
type PollResult struct {
	NewCount int         `json:"new_count"`
	NewItems []AlertItem `json:"new_items,omitempty"`
	Skipped  bool        `json:"skipped,omitempty"` // alerts disabled or no base URL
}
