// Package session holds the working state of one user: the active issue,
// its grouped related issues, the recommendations and the step
// walkthrough. Refreshes are tagged with a generation so that a slow
// refresh never overwrites the result of a newer one.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/steveyegge/stepview/internal/recommend"
	"github.com/steveyegge/stepview/internal/stepflow"
	"github.com/steveyegge/stepview/internal/types"
)

var browsePattern = regexp.MustCompile(`(?i)/browse/([A-Z][A-Z0-9]+-\d+)(?:[/?#]|$)`)
var barePattern = regexp.MustCompile(`(?i)^[A-Z][A-Z0-9]+-\d+$`)

// ExtractIssueKey finds the issue key in an issue page URL
// (".../browse/ABC-12") or accepts a bare key. Keys are uppercased.
func ExtractIssueKey(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if barePattern.MatchString(text) {
		return strings.ToUpper(text), true
	}
	if m := browsePattern.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1]), true
	}
	return "", false
}

// Result is the outcome of one refresh
type Result struct {
	IssueKey     string                   `json:"issue_key"`
	Issue        types.Issue              `json:"issue"`
	Groups       []types.ProductGroup     `json:"groups"`
	TotalRelated int                      `json:"total_related"` // related keys before truncation
	Truncated    int                      `json:"truncated"`
	Recommended  []types.RecommendedIssue `json:"recommended"`
	Generation   uint64                   `json:"generation"`
}

// Related returns the number of related issues that were grouped
func (r *Result) Related() int {
	total := 0
	for _, g := range r.Groups {
		total += g.Count
	}
	return total
}

// Session is the explicit working context. The zero value is not usable;
// call New.
type Session struct {
	generation atomic.Uint64

	// PreserveProgress keeps walkthrough progress across refreshes that
	// produce the same step sequence. Off by default: every refresh starts
	// the walkthrough over.
	PreserveProgress bool

	mu        sync.RWMutex
	activeKey string
	last      *Result
	tracker   *stepflow.Tracker
}

// New creates an empty session
func New() *Session {
	return &Session{tracker: stepflow.NewTracker()}
}

// ActiveKey returns the key of the issue being analyzed, or ""
func (s *Session) ActiveKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeKey
}

// Last returns the most recently applied result, or nil
func (s *Session) Last() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Tracker returns the step walkthrough
func (s *Session) Tracker() *stepflow.Tracker {
	return s.tracker
}

// Generation returns the latest issued refresh token
func (s *Session) Generation() uint64 {
	return s.generation.Load()
}

// Suggestions re-ranks the session's recommendations for one step
func (s *Session) Suggestions(step types.FlowStep) recommend.StepSuggestions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return recommend.StepSuggestions{}
	}
	return recommend.ForStep(step, s.last.Recommended, s.last.IssueKey)
}

// Clear forgets the active issue. Any in-flight refresh becomes stale.
func (s *Session) Clear() {
	s.generation.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeKey = ""
	s.last = nil
	s.tracker.Initialize(nil)
}

// begin marks key active and issues a new generation token
func (s *Session) begin(key string) uint64 {
	token := s.generation.Add(1)
	s.mu.Lock()
	s.activeKey = key
	s.mu.Unlock()
	return token
}

// isLatest reports whether token is still the newest one issued
func (s *Session) isLatest(token uint64) bool {
	return s.generation.Load() == token
}

// apply installs res when its token is still the latest and resets the
// walkthrough from its groups
func (s *Session) apply(token uint64, res *Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isLatest(token) {
		return false
	}
	res.Generation = token
	s.last = res
	if s.PreserveProgress {
		s.tracker.InitializePreserving(res.Groups)
	} else {
		s.tracker.Initialize(res.Groups)
	}
	return true
}

// Snapshot is the persisted walkthrough progress of one issue
type Snapshot struct {
	IssueKey string                   `json:"issue_key"`
	Cursor   int                      `json:"cursor"`
	Results  map[string]types.Verdict `json:"results"`
	SavedAt  time.Time                `json:"saved_at"`
}

// SnapshotKey is the local-namespace key of the saved walkthrough
const SnapshotKey = "walkthrough"

// KV is the local working-state store
type KV interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Set(ctx context.Context, namespace, key string, value []byte) error
}

// Save persists the walkthrough progress of the active issue
func (s *Session) Save(ctx context.Context, kv KV, namespace string) error {
	key := s.ActiveKey()
	if key == "" {
		return nil
	}
	snap := Snapshot{
		IssueKey: key,
		Cursor:   s.tracker.Cursor(),
		Results:  s.tracker.Results(),
		SavedAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := kv.Set(ctx, namespace, SnapshotKey, data); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Resume restores saved progress when it belongs to the active issue. A
// missing or unreadable snapshot is not an error.
func (s *Session) Resume(ctx context.Context, kv KV, namespace string) (bool, error) {
	data, err := kv.Get(ctx, namespace, SnapshotKey)
	if err != nil {
		return false, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if len(data) == 0 {
		return false, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return false, nil
	}
	if snap.IssueKey == "" || snap.IssueKey != s.ActiveKey() {
		return false, nil
	}
	return s.tracker.Restore(snap.Cursor, snap.Results), nil
}
