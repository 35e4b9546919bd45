// Package stepflow walks the grouped steps one at a time and records a
// pass/fail verdict per step.
package stepflow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/steveyegge/stepview/internal/types"
)

// ErrNoCurrentStep is returned when a decision is recorded on an empty flow
var ErrNoCurrentStep = errors.New("no current step")

// Summary counts the verdicts recorded so far
type Summary struct {
	Pass  int `json:"pass"`
	Fail  int `json:"fail"`
	Total int `json:"total"` // number of steps in the flow
}

// String formats the summary the way it is shown at the end of a walkthrough
func (s Summary) String() string {
	return fmt.Sprintf("PASS %d, FAIL %d (of %d steps)", s.Pass, s.Fail, s.Total)
}

// Tracker is a cursor over the flattened step sequence. It is safe for
// concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	steps   []types.FlowStep
	cursor  int
	results map[string]types.Verdict
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{results: make(map[string]types.Verdict)}
}

// Flatten turns product groups into the walkthrough sequence, preserving
// their order. Flow step ids are "<product>:<step id>".
func Flatten(groups []types.ProductGroup) []types.FlowStep {
	var steps []types.FlowStep
	for _, product := range groups {
		for _, step := range product.Steps {
			steps = append(steps, types.FlowStep{
				ID:      product.Name + ":" + step.ID,
				Product: product.Name,
				Title:   step.Title,
				Order:   step.Order,
				Issues:  step.Issues,
			})
		}
	}
	return steps
}

// Initialize replaces the sequence with the flattened groups and discards
// the cursor and every recorded verdict, even when the new sequence is
// identical to the old one.
func (t *Tracker) Initialize(groups []types.ProductGroup) {
	steps := Flatten(groups)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = steps
	t.cursor = 0
	t.results = make(map[string]types.Verdict)
}

// InitializePreserving replaces the sequence but keeps the cursor and
// verdicts when the flattened step ids are unchanged. It reports whether
// progress was kept.
func (t *Tracker) InitializePreserving(groups []types.ProductGroup) bool {
	steps := Flatten(groups)

	t.mu.Lock()
	defer t.mu.Unlock()

	same := len(steps) == len(t.steps)
	for i := 0; same && i < len(steps); i++ {
		same = steps[i].ID == t.steps[i].ID
	}
	t.steps = steps
	if same && len(steps) > 0 {
		return true
	}
	t.cursor = 0
	t.results = make(map[string]types.Verdict)
	return false
}

// Current returns the step under the cursor
func (t *Tracker) Current() (types.FlowStep, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.steps) == 0 {
		return types.FlowStep{}, false
	}
	return t.steps[t.cursor], true
}

// RecordDecision stores v for the current step and moves to the next one.
// It reports whether the cursor advanced; false means the last step was
// just decided.
func (t *Tracker) RecordDecision(v types.Verdict) (bool, error) {
	if !v.IsValid() {
		return false, fmt.Errorf("invalid verdict %q", v)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.steps) == 0 {
		return false, ErrNoCurrentStep
	}
	t.results[t.steps[t.cursor].ID] = v
	return t.advanceLocked(), nil
}

// Advance moves the cursor forward. It is a no-op at the last step.
func (t *Tracker) Advance() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.advanceLocked()
}

func (t *Tracker) advanceLocked() bool {
	if len(t.steps) == 0 || t.cursor >= len(t.steps)-1 {
		return false
	}
	t.cursor++
	return true
}

// Complete reports whether the cursor sits on the last step and that step
// has a verdict
func (t *Tracker) Complete() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.steps) == 0 || t.cursor != len(t.steps)-1 {
		return false
	}
	_, decided := t.results[t.steps[t.cursor].ID]
	return decided
}

// Results returns a copy of the recorded verdicts keyed by flow step id
func (t *Tracker) Results() map[string]types.Verdict {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]types.Verdict, len(t.results))
	for id, v := range t.results {
		out[id] = v
	}
	return out
}

// Summary counts the recorded verdicts
func (t *Tracker) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := Summary{Total: len(t.steps)}
	for _, v := range t.results {
		switch v {
		case types.VerdictPass:
			s.Pass++
		case types.VerdictFail:
			s.Fail++
		}
	}
	return s
}

// Cursor returns the current position
func (t *Tracker) Cursor() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cursor
}

// Len returns the number of steps
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.steps)
}

// Steps returns a copy of the flow sequence
func (t *Tracker) Steps() []types.FlowStep {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]types.FlowStep(nil), t.steps...)
}

// Restore reapplies saved progress onto the current sequence. Verdicts for
// step ids no longer in the sequence are dropped and the cursor is clamped.
// It reports whether anything was restored.
func (t *Tracker) Restore(cursor int, results map[string]types.Verdict) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.steps) == 0 {
		return false
	}

	known := make(map[string]struct{}, len(t.steps))
	for _, step := range t.steps {
		known[step.ID] = struct{}{}
	}
	restored := false
	for id, v := range results {
		if _, ok := known[id]; ok && v.IsValid() {
			t.results[id] = v
			restored = true
		}
	}
	if cursor > 0 {
		t.cursor = min(cursor, len(t.steps)-1)
		restored = true
	}
	return restored
}
