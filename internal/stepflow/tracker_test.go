package stepflow

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/stepview/internal/types"
)

func sampleGroups() []types.ProductGroup {
	return []types.ProductGroup{
		{Name: "Payments", Count: 1, Steps: []types.StepGroup{
			{ID: "step-1-login", Order: 1, Title: "Step 1 - login", Issues: []types.Issue{{Key: "REL-103"}}},
		}},
		{Name: "Search", Count: 2, Steps: []types.StepGroup{
			{ID: "step-1-login", Order: 1, Title: "Step 1 - login", Issues: []types.Issue{{Key: "REL-101"}}},
			{ID: "step-2-checkout", Order: 2, Title: "Step 2 - checkout", Issues: []types.Issue{{Key: "REL-102"}}},
		}},
	}
}

func TestFlatten(t *testing.T) {
	steps := Flatten(sampleGroups())
	require.Len(t, steps, 3)
	assert.Equal(t, "Payments:step-1-login", steps[0].ID)
	assert.Equal(t, "Search:step-1-login", steps[1].ID)
	assert.Equal(t, "Search:step-2-checkout", steps[2].ID)
	assert.Equal(t, "Search", steps[2].Product)
	assert.Equal(t, "REL-102", steps[2].Issues[0].Key)
}

func TestEmptyTracker(t *testing.T) {
	tr := NewTracker()

	_, ok := tr.Current()
	assert.False(t, ok)
	assert.False(t, tr.Advance())
	assert.False(t, tr.Complete())

	advanced, err := tr.RecordDecision(types.VerdictPass)
	assert.False(t, advanced)
	assert.True(t, errors.Is(err, ErrNoCurrentStep))
	assert.Empty(t, tr.Results())
}

func TestWalkthrough(t *testing.T) {
	tr := NewTracker()
	tr.Initialize(sampleGroups())

	cur, ok := tr.Current()
	require.True(t, ok)
	assert.Equal(t, "Payments:step-1-login", cur.ID)

	advanced, err := tr.RecordDecision(types.VerdictPass)
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Equal(t, 1, tr.Cursor())

	advanced, err = tr.RecordDecision(types.VerdictFail)
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.False(t, tr.Complete())

	advanced, err = tr.RecordDecision(types.VerdictPass)
	require.NoError(t, err)
	assert.False(t, advanced, "last step does not advance")
	assert.Equal(t, 2, tr.Cursor())
	assert.True(t, tr.Complete())

	// Re-deciding the last step overwrites its verdict
	_, err = tr.RecordDecision(types.VerdictFail)
	require.NoError(t, err)

	summary := tr.Summary()
	assert.Equal(t, Summary{Pass: 1, Fail: 2, Total: 3}, summary)
	assert.Equal(t, "PASS 1, FAIL 2 (of 3 steps)", summary.String())

	results := tr.Results()
	assert.Equal(t, types.VerdictFail, results["Search:step-1-login"])
	results["Search:step-1-login"] = types.VerdictPass
	assert.Equal(t, types.VerdictFail, tr.Results()["Search:step-1-login"], "Results returns a copy")
}

func TestAdvanceSaturates(t *testing.T) {
	tr := NewTracker()
	tr.Initialize(sampleGroups())

	assert.True(t, tr.Advance())
	assert.True(t, tr.Advance())
	assert.False(t, tr.Advance())
	assert.Equal(t, 2, tr.Cursor())
	assert.False(t, tr.Complete(), "no verdict recorded on the last step")
}

func TestRecordDecisionRejectsUnknownVerdict(t *testing.T) {
	tr := NewTracker()
	tr.Initialize(sampleGroups())

	_, err := tr.RecordDecision(types.Verdict("skip"))
	assert.Error(t, err)
	assert.Equal(t, 0, tr.Cursor())
}

// Rebuilding from identical groups discards progress.
func TestInitializeDiscardsProgress(t *testing.T) {
	tr := NewTracker()
	tr.Initialize(sampleGroups())
	_, _ = tr.RecordDecision(types.VerdictPass)
	_, _ = tr.RecordDecision(types.VerdictPass)

	tr.Initialize(sampleGroups())
	assert.Equal(t, 0, tr.Cursor())
	assert.Empty(t, tr.Results())
	assert.Equal(t, 3, tr.Len())
}

// The alternative interpretation keeps progress when the sequence is unchanged.
func TestInitializePreserving(t *testing.T) {
	t.Run("identical sequence keeps progress", func(t *testing.T) {
		tr := NewTracker()
		tr.Initialize(sampleGroups())
		_, _ = tr.RecordDecision(types.VerdictFail)

		kept := tr.InitializePreserving(sampleGroups())
		assert.True(t, kept)
		assert.Equal(t, 1, tr.Cursor())
		assert.Equal(t, types.VerdictFail, tr.Results()["Payments:step-1-login"])
	})

	t.Run("changed sequence resets", func(t *testing.T) {
		tr := NewTracker()
		tr.Initialize(sampleGroups())
		_, _ = tr.RecordDecision(types.VerdictFail)

		groups := sampleGroups()
		groups[1].Steps = groups[1].Steps[:1]
		kept := tr.InitializePreserving(groups)
		assert.False(t, kept)
		assert.Equal(t, 0, tr.Cursor())
		assert.Empty(t, tr.Results())
		assert.Equal(t, 2, tr.Len())
	})

	t.Run("empty sequence resets", func(t *testing.T) {
		tr := NewTracker()
		assert.False(t, tr.InitializePreserving(nil))
		assert.Equal(t, 0, tr.Len())
	})
}

func TestTrackerConcurrentUse(t *testing.T) {
	tr := NewTracker()
	tr.Initialize(sampleGroups())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = tr.RecordDecision(types.VerdictPass)
			} else {
				_, _ = tr.Current()
				_ = tr.Summary()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2, tr.Cursor())
	assert.Equal(t, 3, tr.Summary().Pass)
}

func TestRestore(t *testing.T) {
	tr := NewTracker()
	assert.False(t, tr.Restore(1, map[string]types.Verdict{"Search:step-1-login": types.VerdictPass}))

	tr.Initialize(sampleGroups())
	restored := tr.Restore(9, map[string]types.Verdict{
		"Search:step-1-login":   types.VerdictPass,
		"Gone:step-9":           types.VerdictFail,
		"Payments:step-1-login": "maybe",
	})
	require.True(t, restored)
	assert.Equal(t, 2, tr.Cursor())
	assert.Equal(t, map[string]types.Verdict{"Search:step-1-login": types.VerdictPass}, tr.Results())

	fresh := NewTracker()
	fresh.Initialize(sampleGroups())
	assert.False(t, fresh.Restore(0, nil))
}
