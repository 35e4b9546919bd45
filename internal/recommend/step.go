package recommend

import (
	"sort"
	"strings"

	"github.com/steveyegge/stepview/internal/types"
)

// MaxStepSuggestions caps each suggestion list of a step
const MaxStepSuggestions = 3

// StepSuggestions are the recommendations re-ranked for one walkthrough step,
// split by whether they live in the same project as the base issue.
type StepSuggestions struct {
	SameProject  []types.RecommendedIssue
	CrossProject []types.RecommendedIssue
}

// Empty reports whether there is nothing to suggest
func (s StepSuggestions) Empty() bool {
	return len(s.SameProject) == 0 && len(s.CrossProject) == 0
}

// ForStep re-ranks recs for a step. Keywords come from the step title and
// the summaries of the step's issues; each keyword found in a recommendation
// summary adds StepTokenWeight to its score.
func ForStep(step types.FlowStep, recs []types.RecommendedIssue, baseKey string) StepSuggestions {
	var text strings.Builder
	text.WriteString(step.Title)
	for _, issue := range step.Issues {
		text.WriteString(" ")
		text.WriteString(issue.Summary)
	}
	tokens := Tokenize(text.String())
	baseProject := types.ProjectFromKey(baseKey)

	ranked := make([]types.RecommendedIssue, 0, len(recs))
	for _, rec := range recs {
		summary := NormalizeText(rec.Issue.Summary)
		score := rec.Score
		for _, token := range tokens {
			if strings.Contains(summary, token) {
				score += StepTokenWeight
			}
		}
		if score > 0 {
			rec.Score = score
			ranked = append(ranked, rec)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	var out StepSuggestions
	for _, rec := range ranked {
		project := types.ProjectFromKey(rec.Issue.Key)
		if project != "" && project == baseProject {
			if len(out.SameProject) < MaxStepSuggestions {
				out.SameProject = append(out.SameProject, rec)
			}
			continue
		}
		if len(out.CrossProject) < MaxStepSuggestions {
			out.CrossProject = append(out.CrossProject, rec)
		}
	}
	return out
}
