// Package grouping turns an issue's link list into a product/step taxonomy.
//
// Every function here is pure: no network or storage access, and identical
// inputs always produce identical output (ordering and step ids included).
package grouping

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/steveyegge/stepview/internal/types"
)

// Extraction is the result of collecting related keys from a base issue
type Extraction struct {
	// Keys are the related issue keys to fetch, in encounter order
	Keys []string
	// Total is the number of distinct related keys before truncation
	Total int
	// Truncated is the number of keys dropped by MaxRelatedIssues
	Truncated int
}

// ExtractRelatedKeys collects the outward and inward keys of base's links,
// honoring the link type filter. Keys are uppercased and deduplicated, the
// base key itself is dropped, and the list is cut to MaxRelatedIssues.
func ExtractRelatedKeys(base types.Issue, s types.Settings) Extraction {
	baseKey := strings.ToUpper(base.Key)
	seen := make(map[string]struct{})
	var all []string

	add := func(key string) {
		key = strings.ToUpper(strings.TrimSpace(key))
		if key == "" || key == baseKey {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		all = append(all, key)
	}

	for _, link := range base.Links {
		if !s.AllowsLinkType(link.Type) {
			continue
		}
		add(link.OutwardKey)
		add(link.InwardKey)
	}

	limit := s.MaxRelatedIssues
	if limit < 1 {
		limit = 1
	}
	keys := all
	if len(keys) > limit {
		keys = keys[:limit]
	}
	return Extraction{
		Keys:      keys,
		Total:     len(all),
		Truncated: len(all) - len(keys),
	}
}

// StepInfo is the resolved step of one issue
type StepInfo struct {
	ID    string
	Order int
	Title string
}

// PickProduct resolves the product name of an issue: the configured custom
// field wins, then the first label carrying the product prefix.
func PickProduct(issue types.Issue, s types.Settings) string {
	if text := FieldText(issue, s.ProductFieldID); text != "" {
		return text
	}
	if body, ok := labelBody(issue.Labels, s.ProductLabelPrefix); ok {
		if body = strings.TrimSpace(body); body != "" {
			return body
		}
	}
	return types.ProductUnclassified
}

// PickStep resolves the step of an issue: custom field, then step label,
// then the first capture of the step pattern on the summary.
func PickStep(issue types.Issue, s types.Settings) StepInfo {
	if text := FieldText(issue, s.StepFieldID); text != "" {
		return ParseStepBody(text)
	}
	if body, ok := labelBody(issue.Labels, s.StepLabelPrefix); ok {
		return ParseStepBody(body)
	}
	if re := s.StepPattern(); re != nil {
		if m := re.FindStringSubmatch(issue.Summary); len(m) > 1 && m[1] != "" {
			return ParseStepBody(m[1])
		}
	}
	return ParseStepBody("")
}

var (
	numberedStep = regexp.MustCompile(`^(\d+)[\s:_-]*(.*)$`)
	nonSlug      = regexp.MustCompile(`[^a-z0-9]+`)
)

// ParseStepBody turns step text into a StepInfo. A leading integer becomes
// the order ("02-checkout" is step 2); text without one sorts after every
// numbered step, and empty text is the unspecified step.
func ParseStepBody(text string) StepInfo {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return StepInfo{
			ID:    "step-" + types.StepUnspecified,
			Order: types.OrderUnspecified,
			Title: types.StepUnspecified,
		}
	}

	if m := numberedStep.FindStringSubmatch(cleaned); m != nil {
		order, err := strconv.Atoi(m[1])
		if err == nil && order < types.OrderUnnumbered {
			rest := strings.TrimSpace(m[2])
			slug := slugify(rest)
			if slug == "" {
				slug = "base"
			}
			title := fmt.Sprintf("Step %d", order)
			if rest != "" {
				title = fmt.Sprintf("Step %d - %s", order, rest)
			}
			return StepInfo{
				ID:    fmt.Sprintf("step-%d-%s", order, slug),
				Order: order,
				Title: title,
			}
		}
	}

	return StepInfo{
		ID:    "step-" + slugify(cleaned),
		Order: types.OrderUnnumbered,
		Title: cleaned,
	}
}

// Group classifies related issues into products and steps. Products sort by
// name, steps by (order, title) and issues within a step by key.
func Group(issues []types.Issue, s types.Settings) []types.ProductGroup {
	type productNode struct {
		group types.ProductGroup
		steps map[string]*types.StepGroup
	}
	products := make(map[string]*productNode)

	for _, issue := range issues {
		name := PickProduct(issue, s)
		step := PickStep(issue, s)

		node, ok := products[name]
		if !ok {
			node = &productNode{
				group: types.ProductGroup{Name: name},
				steps: make(map[string]*types.StepGroup),
			}
			products[name] = node
		}
		node.group.Count++

		sg, ok := node.steps[step.ID]
		if !ok {
			sg = &types.StepGroup{ID: step.ID, Order: step.Order, Title: step.Title}
			node.steps[step.ID] = sg
		}
		sg.Issues = append(sg.Issues, issue)
	}

	out := make([]types.ProductGroup, 0, len(products))
	for _, node := range products {
		steps := make([]types.StepGroup, 0, len(node.steps))
		for _, sg := range node.steps {
			sort.SliceStable(sg.Issues, func(i, j int) bool {
				return sg.Issues[i].Key < sg.Issues[j].Key
			})
			steps = append(steps, *sg)
		}
		sort.Slice(steps, func(i, j int) bool {
			if steps[i].Order != steps[j].Order {
				return steps[i].Order < steps[j].Order
			}
			if steps[i].Title != steps[j].Title {
				return steps[i].Title < steps[j].Title
			}
			return steps[i].ID < steps[j].ID
		})
		node.group.Steps = steps
		out = append(out, node.group)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// TotalIssues sums the issue counts of all products
func TotalIssues(groups []types.ProductGroup) int {
	total := 0
	for _, g := range groups {
		total += g.Count
	}
	return total
}

// FieldText renders a custom field value as text. Strings and numbers are
// used as is; option objects contribute their value, name or id; arrays are
// joined with ", ".
func FieldText(issue types.Issue, fieldID string) string {
	if fieldID == "" || issue.Fields == nil {
		return ""
	}
	value, ok := issue.Fields[fieldID]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if text := scalarText(item); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.TrimSpace(strings.Join(parts, ", "))
	default:
		return strings.TrimSpace(scalarText(v))
	}
}

func scalarText(value any) string {
	if m, ok := value.(map[string]any); ok {
		for _, key := range []string{"value", "name", "id"} {
			if text := primitiveText(m[key]); text != "" {
				return text
			}
		}
		return ""
	}
	return primitiveText(value)
}

func primitiveText(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return ""
}

// labelBody returns the text after prefix of the first label that starts
// with it (case-insensitive)
func labelBody(labels []string, prefix string) (string, bool) {
	if prefix == "" {
		return "", false
	}
	lower := strings.ToLower(prefix)
	for _, label := range labels {
		if len(label) >= len(prefix) && strings.ToLower(label[:len(prefix)]) == lower {
			return label[len(prefix):], true
		}
	}
	return "", false
}

func slugify(text string) string {
	return nonSlug.ReplaceAllString(strings.ToLower(text), "-")
}
