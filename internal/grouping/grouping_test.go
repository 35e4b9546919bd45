package grouping

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/stepview/internal/config"
	"github.com/steveyegge/stepview/internal/types"
)

func settingsWith(raw config.RawSettings) types.Settings {
	return config.Resolve(raw, nil)
}

func str(s string) *string { return &s }

func TestExtractRelatedKeys(t *testing.T) {
	base := types.Issue{
		Key: "BASE-1",
		Links: []types.IssueLink{
			{Type: "Relates", OutwardKey: "a-1"},
			{Type: "Blocks", InwardKey: "B-2"},
			{Type: "relates", OutwardKey: "A-1", InwardKey: "C-3"},
			{Type: "Cloners", OutwardKey: "base-1"},
			{Type: "Relates", InwardKey: "D-4"},
		},
	}

	t.Run("empty filter accepts all types", func(t *testing.T) {
		ext := ExtractRelatedKeys(base, config.DefaultSettings())
		assert.Equal(t, []string{"A-1", "B-2", "C-3", "D-4"}, ext.Keys)
		assert.Equal(t, 4, ext.Total)
		assert.Equal(t, 0, ext.Truncated)
	})

	t.Run("filter is case-insensitive", func(t *testing.T) {
		ext := ExtractRelatedKeys(base, settingsWith(config.RawSettings{LinkTypeFilter: str("RELATES")}))
		assert.Equal(t, []string{"A-1", "C-3", "D-4"}, ext.Keys)
	})

	t.Run("truncation is reported", func(t *testing.T) {
		limit := config.IntText("2")
		ext := ExtractRelatedKeys(base, settingsWith(config.RawSettings{MaxRelatedIssues: &limit}))
		assert.Equal(t, []string{"A-1", "B-2"}, ext.Keys)
		assert.Equal(t, 4, ext.Total)
		assert.Equal(t, 2, ext.Truncated)
	})

	t.Run("no links", func(t *testing.T) {
		ext := ExtractRelatedKeys(types.Issue{Key: "X-1"}, config.DefaultSettings())
		assert.Empty(t, ext.Keys)
		assert.Zero(t, ext.Total)
	})
}

func TestParseStepBody(t *testing.T) {
	tests := []struct {
		in    string
		id    string
		order int
		title string
	}{
		{"", "step-unspecified", types.OrderUnspecified, "unspecified"},
		{"   ", "step-unspecified", types.OrderUnspecified, "unspecified"},
		{"01-login", "step-1-login", 1, "Step 1 - login"},
		{"2: Checkout Flow", "step-2-checkout-flow", 2, "Step 2 - Checkout Flow"},
		{"3", "step-3-base", 3, "Step 3"},
		{"10_Pay & Ship", "step-10-pay-ship", 10, "Step 10 - Pay & Ship"},
		{"Smoke Test", "step-smoke-test", types.OrderUnnumbered, "Smoke Test"},
		{"로그인", "step--", types.OrderUnnumbered, "로그인"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseStepBody(tt.in)
			assert.Equal(t, tt.id, got.ID)
			assert.Equal(t, tt.order, got.Order)
			assert.Equal(t, tt.title, got.Title)
		})
	}
}

func TestPickProduct(t *testing.T) {
	s := settingsWith(config.RawSettings{ProductFieldID: str("customfield_1")})

	tests := []struct {
		name  string
		issue types.Issue
		want  string
	}{
		{"string field wins", types.Issue{Fields: map[string]any{"customfield_1": " Search "}, Labels: []string{"product:Other"}}, "Search"},
		{"option object", types.Issue{Fields: map[string]any{"customfield_1": map[string]any{"value": "Billing"}}}, "Billing"},
		{"option falls back to name", types.Issue{Fields: map[string]any{"customfield_1": map[string]any{"name": "Cart", "id": "9"}}}, "Cart"},
		{"array joined", types.Issue{Fields: map[string]any{"customfield_1": []any{"A", map[string]any{"name": "B"}, nil, float64(3)}}}, "A, B, 3"},
		{"number", types.Issue{Fields: map[string]any{"customfield_1": float64(42)}}, "42"},
		{"label prefix is case-insensitive", types.Issue{Labels: []string{"misc", "Product: Search"}}, "Search"},
		{"first matching label", types.Issue{Labels: []string{"product:A", "product:B"}}, "A"},
		{"empty label body", types.Issue{Labels: []string{"product:  "}}, "unclassified"},
		{"nothing", types.Issue{}, "unclassified"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PickProduct(tt.issue, s))
		})
	}
}

func TestPickStep(t *testing.T) {
	s := settingsWith(config.RawSettings{StepFieldID: str("customfield_2")})

	tests := []struct {
		name   string
		issue  types.Issue
		wantID string
	}{
		{"field wins", types.Issue{Fields: map[string]any{"customfield_2": "4 - pay"}, Labels: []string{"step:1"}}, "step-4-pay"},
		{"label", types.Issue{Labels: []string{"STEP:02-checkout"}}, "step-2-checkout"},
		{"empty label is unspecified", types.Issue{Labels: []string{"step:"}, Summary: "Step 3 here"}, "step-unspecified"},
		{"summary regex", types.Issue{Summary: "Login broken at STEP-3"}, "step-3-base"},
		{"summary regex needs boundary", types.Issue{Summary: "footstep3 issue"}, "step-unspecified"},
		{"nothing", types.Issue{Summary: "crash"}, "step-unspecified"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantID, PickStep(tt.issue, s).ID)
		})
	}
}

func scenarioIssues() (types.Issue, map[string]types.Issue) {
	base := types.Issue{
		Key: "COMMONR-380",
		Links: []types.IssueLink{
			{Type: "Relates", OutwardKey: "REL-101"},
			{Type: "Relates", OutwardKey: "REL-102"},
			{Type: "Relates", InwardKey: "REL-103"},
		},
	}
	related := map[string]types.Issue{
		"REL-101": {Key: "REL-101", Labels: []string{"product:Search", "step:01-login"}},
		"REL-102": {Key: "REL-102", Labels: []string{"product:Search", "step:02-checkout"}},
		"REL-103": {Key: "REL-103", Labels: []string{"product:Payments", "step:01-login"}},
	}
	return base, related
}

func TestGroupScenario(t *testing.T) {
	base, related := scenarioIssues()
	s := config.DefaultSettings()

	ext := ExtractRelatedKeys(base, s)
	require.Equal(t, []string{"REL-101", "REL-102", "REL-103"}, ext.Keys)

	issues := make([]types.Issue, 0, len(ext.Keys))
	for _, key := range ext.Keys {
		issues = append(issues, related[key])
	}
	groups := Group(issues, s)

	require.Len(t, groups, 2)
	assert.Equal(t, "Payments", groups[0].Name)
	assert.Equal(t, 1, groups[0].Count)
	require.Len(t, groups[0].Steps, 1)
	assert.Equal(t, "Step 1 - login", groups[0].Steps[0].Title)

	assert.Equal(t, "Search", groups[1].Name)
	assert.Equal(t, 2, groups[1].Count)
	require.Len(t, groups[1].Steps, 2)
	assert.Equal(t, "Step 1 - login", groups[1].Steps[0].Title)
	assert.Equal(t, "Step 2 - checkout", groups[1].Steps[1].Title)
	assert.Equal(t, "REL-102", groups[1].Steps[1].Issues[0].Key)

	assert.Equal(t, 3, TotalIssues(groups))
}

func TestGroupOrdering(t *testing.T) {
	issues := []types.Issue{
		{Key: "A-3", Labels: []string{"product:P", "step:Zeta"}},
		{Key: "A-2", Labels: []string{"product:P"}},
		{Key: "A-1", Labels: []string{"product:P", "step:10-final"}},
		{Key: "A-9", Labels: []string{"product:P", "step:2"}},
		{Key: "A-4", Labels: []string{"product:P", "step:Alpha"}},
		{Key: "A-5", Labels: []string{"product:P", "step:2"}},
	}
	groups := Group(issues, config.DefaultSettings())
	require.Len(t, groups, 1)

	var ids []string
	for _, step := range groups[0].Steps {
		ids = append(ids, step.ID)
	}
	assert.Equal(t, []string{"step-2-base", "step-10-final", "step-alpha", "step-zeta", "step-unspecified"}, ids)

	assert.Equal(t, "A-5", groups[0].Steps[0].Issues[0].Key)
	assert.Equal(t, "A-9", groups[0].Steps[0].Issues[1].Key)
	assert.True(t, groups[0].Steps[0].Numbered())
	assert.False(t, groups[0].Steps[2].Numbered())
}

func TestGroupDeterministic(t *testing.T) {
	var issues []types.Issue
	products := []string{"Search", "Payments", "Cart", ""}
	steps := []string{"01-login", "02-checkout", "smoke", "", "3"}
	for i := 0; i < 40; i++ {
		issue := types.Issue{Key: "K-" + string(rune('A'+i%26)) + string(rune('0'+i%10))}
		if p := products[i%len(products)]; p != "" {
			issue.Labels = append(issue.Labels, "product:"+p)
		}
		if st := steps[i%len(steps)]; st != "" {
			issue.Labels = append(issue.Labels, "step:"+st)
		}
		issues = append(issues, issue)
	}

	s := config.DefaultSettings()
	first, err := json.Marshal(Group(issues, s))
	require.NoError(t, err)

	r := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := append([]types.Issue(nil), issues...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		again, err := json.Marshal(Group(shuffled, s))
		require.NoError(t, err)
		assert.JSONEq(t, string(first), string(again))
	}
}
