package jira

import (
	"encoding/json"
	"strings"

	"github.com/steveyegge/stepview/internal/types"
)

// searchResponse mirrors the subset of /rest/api/3/search we read
type searchResponse struct {
	Issues []rawIssue `json:"issues"`
}

// rawIssue mirrors one tracker issue. Fields stays raw so custom fields can
// be kept verbatim for product/step resolution.
type rawIssue struct {
	Key    string                     `json:"key"`
	Fields map[string]json.RawMessage `json:"fields"`
}

type issueFields struct {
	Summary    string       `json:"summary"`
	Updated    string       `json:"updated"`
	Labels     []string     `json:"labels"`
	Status     *namedField  `json:"status"`
	Project    *keyedField  `json:"project"`
	Components []namedField `json:"components"`
	IssueLinks []rawLink    `json:"issuelinks"`
}

type namedField struct {
	Name string `json:"name"`
}

type keyedField struct {
	Key string `json:"key"`
}

type rawLink struct {
	Type         namedField  `json:"type"`
	OutwardIssue *keyedField `json:"outwardIssue"`
	InwardIssue  *keyedField `json:"inwardIssue"`
}

// Fields decoded into issueFields and not copied into Issue.Fields
var standardFields = map[string]struct{}{
	"summary": {}, "updated": {}, "labels": {}, "status": {},
	"project": {}, "components": {}, "issuelinks": {},
	"assignee": {}, "reporter": {},
}

// toIssue converts the wire shape into the local model. Fields that fail to
// decode are left empty rather than failing the whole record.
func (r rawIssue) toIssue() types.Issue {
	issue := types.Issue{
		Key:     strings.ToUpper(strings.TrimSpace(r.Key)),
		Project: types.ProjectFromKey(r.Key),
	}

	var std issueFields
	if len(r.Fields) > 0 {
		if data, err := json.Marshal(r.Fields); err == nil {
			_ = json.Unmarshal(data, &std)
		}
	}

	issue.Summary = std.Summary
	issue.Updated = std.Updated
	if std.Status != nil {
		issue.Status = std.Status.Name
	}
	if std.Project != nil && std.Project.Key != "" {
		issue.Project = strings.ToUpper(std.Project.Key)
	}
	for _, label := range std.Labels {
		if label != "" {
			issue.Labels = append(issue.Labels, label)
		}
	}
	for _, c := range std.Components {
		if c.Name != "" {
			issue.Components = append(issue.Components, c.Name)
		}
	}
	for _, l := range std.IssueLinks {
		link := types.IssueLink{Type: l.Type.Name}
		if l.OutwardIssue != nil {
			link.OutwardKey = l.OutwardIssue.Key
		}
		if l.InwardIssue != nil {
			link.InwardKey = l.InwardIssue.Key
		}
		issue.Links = append(issue.Links, link)
	}

	for name, raw := range r.Fields {
		if _, ok := standardFields[name]; ok {
			continue
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil || value == nil {
			continue
		}
		if issue.Fields == nil {
			issue.Fields = make(map[string]any)
		}
		issue.Fields[name] = value
	}

	return issue
}
