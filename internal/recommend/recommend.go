// Package recommend ranks look-alike issues by label, component and summary
// keyword overlap with a base issue.
package recommend

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/steveyegge/stepview/internal/types"
)

// Limits on the base issue attributes used for matching and querying
const (
	MaxBaseLabels     = 8
	MaxBaseComponents = 6
	MaxTokenScore     = 3
	CandidatePoolSize = 35
)

// Score weights
const (
	LabelWeight     = 3
	ComponentWeight = 2
	StepTokenWeight = 2
)

var (
	nonWord    = regexp.MustCompile(`[^a-z0-9\x{AC00}-\x{D7A3}\s]`)
	whitespace = regexp.MustCompile(`\s+`)
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "this": {}, "that": {},
	"step": {}, "test": {}, "issue": {}, "jira": {},
	"기능": {}, "이슈": {}, "관련": {}, "수정": {}, "추가": {}, "화면": {}, "버튼": {}, "처리": {},
}

// NormalizeText lowercases text, replaces everything outside ASCII letters,
// digits, Hangul syllables and whitespace with a space, and collapses runs
// of whitespace.
func NormalizeText(text string) string {
	out := nonWord.ReplaceAllString(strings.ToLower(text), " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(out, " "))
}

// Tokenize returns up to MaxSummaryTokens distinct keywords of a summary,
// dropping stop words and tokens shorter than two characters.
func Tokenize(summary string) []string {
	normalized := NormalizeText(summary)
	if normalized == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var tokens []string
	for _, token := range strings.Split(normalized, " ") {
		if len([]rune(token)) < 2 {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
		if len(tokens) == types.MaxSummaryTokens {
			break
		}
	}
	return tokens
}

// baseProfile is the part of the base issue that candidates are compared to
type baseProfile struct {
	labels     []string
	components []string
	labelSet   map[string]struct{}
	compSet    map[string]struct{}
	tokens     []string
}

func profile(base types.Issue) baseProfile {
	p := baseProfile{
		labelSet: make(map[string]struct{}),
		compSet:  make(map[string]struct{}),
		tokens:   Tokenize(base.Summary),
	}
	for _, label := range base.Labels {
		if label == "" {
			continue
		}
		if len(p.labels) == MaxBaseLabels {
			break
		}
		p.labels = append(p.labels, label)
		p.labelSet[strings.ToLower(label)] = struct{}{}
	}
	for _, comp := range base.Components {
		if comp == "" {
			continue
		}
		if len(p.components) == MaxBaseComponents {
			break
		}
		p.components = append(p.components, comp)
		p.compSet[strings.ToLower(comp)] = struct{}{}
	}
	return p
}

// Score ranks candidates against base. Only candidates with a positive score
// are kept; results are ordered by score then by most recent update, and cut
// to MaxRecommended.
func Score(base types.Issue, candidates []types.Issue) []types.RecommendedIssue {
	p := profile(base)
	baseKey := strings.ToUpper(base.Key)

	var scored []types.RecommendedIssue
	for _, c := range candidates {
		if strings.ToUpper(c.Key) == baseKey {
			continue
		}
		score, reasons := scoreOne(p, c)
		if score > 0 {
			scored = append(scored, types.RecommendedIssue{Issue: c, Score: score, Reasons: reasons})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Issue.Updated > scored[j].Issue.Updated
	})
	if len(scored) > types.MaxRecommended {
		scored = scored[:types.MaxRecommended]
	}
	return scored
}

func scoreOne(p baseProfile, c types.Issue) (int, []string) {
	score := 0
	var reasons []string

	var commonLabels []string
	for _, label := range c.Labels {
		if _, ok := p.labelSet[strings.ToLower(label)]; ok {
			commonLabels = append(commonLabels, strings.ToLower(label))
		}
	}
	if len(commonLabels) > 0 {
		score += len(commonLabels) * LabelWeight
		reasons = append(reasons, "labels "+strings.Join(firstN(commonLabels, 2), ", "))
	}

	var commonComps []string
	for _, comp := range c.Components {
		if _, ok := p.compSet[strings.ToLower(comp)]; ok && comp != "" {
			commonComps = append(commonComps, strings.ToLower(comp))
		}
	}
	if len(commonComps) > 0 {
		score += len(commonComps) * ComponentWeight
		reasons = append(reasons, "components "+strings.Join(firstN(commonComps, 2), ", "))
	}

	summary := NormalizeText(c.Summary)
	matches := 0
	for _, token := range p.tokens {
		if strings.Contains(summary, token) {
			matches++
		}
	}
	if matches > 0 {
		score += min(MaxTokenScore, matches)
		reasons = append(reasons, fmt.Sprintf("%d summary keywords", matches))
	}

	return score, reasons
}

// BuildQuery returns the loose search used to gather the candidate pool for
// base: any shared label, component or summary keyword, updated within 180
// days. Without any attribute it falls back to recent activity.
func BuildQuery(base types.Issue) string {
	p := profile(base)

	var clauses []string
	if len(p.labels) > 0 {
		clauses = append(clauses, "labels in ("+quoteList(p.labels)+")")
	}
	if len(p.components) > 0 {
		clauses = append(clauses, "component in ("+quoteList(p.components)+")")
	}
	if len(p.tokens) > 0 {
		parts := make([]string, len(p.tokens))
		for i, token := range p.tokens {
			parts[i] = "summary ~ " + Quote(token)
		}
		clauses = append(clauses, strings.Join(parts, " OR "))
	}

	core := "updated >= -90d"
	if len(clauses) > 0 {
		core = "(" + strings.Join(clauses, " OR ") + ")"
	}
	return fmt.Sprintf("key != %s AND %s AND updated >= -180d ORDER BY updated DESC", Quote(base.Key), core)
}

// CandidateFields are the fields requested for candidate issues
var CandidateFields = []string{"summary", "status", "labels", "components", "updated"}

// Quote renders a JQL string literal
func Quote(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `"`, `\"`)
	return `"` + value + `"`
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = Quote(v)
	}
	return strings.Join(quoted, ",")
}

func firstN(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}
