// Package reasoning analyzes a mind map for issues and root causes, drafts
// resolution plans, and synthesizes prioritized micro-tasks.
package reasoning

import (
	"github.com/clearity-app/clearity/internal/mindmap"
)

// TaskStatus tracks a task's lifecycle.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// Issue is a detected problem grouping one or more nodes. Severity is the
// maximum severity among its constituents, never an average.
type Issue struct {
	Type        string           `json:"issue_type"`
	Description string           `json:"description"`
	Severity    mindmap.Severity `json:"severity"`
	NodeIDs     []string         `json:"node_ids,omitempty"`
}

// RootCause explains why one or more issues exist.
type RootCause struct {
	CauseID     string   `json:"cause_id"`
	Explanation string   `json:"short_explanation"`
	IssueTypes  []string `json:"linked_issues,omitempty"`
}

// Plan is an ordered list of steps resolving exactly one issue.
type Plan struct {
	IssueType string   `json:"issue_id"`
	Steps     []string `json:"steps"`
}

// Task is a small actionable step offered to the user.
type Task struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	RelatedIssue     string     `json:"related_issue,omitempty"`
	NodeIDs          []string   `json:"node_ids,omitempty"`
	PriorityScore    float64    `json:"priority_score"`
	KPI              string     `json:"kpi"`
	Subtasks         []string   `json:"subtasks"`
	EstimatedTimeMin int        `json:"estimated_time_min"`
	ContextHint      string     `json:"context_hint,omitempty"`
	Status           TaskStatus `json:"status"`
}

// Analysis is the engine's full output for one turn.
type Analysis struct {
	Issues         []Issue     `json:"issues"`
	RootCauses     []RootCause `json:"root_causes"`
	Plans          []Plan      `json:"plans"`
	Tasks          []Task      `json:"tasks"`
	SuggestedFocus string      `json:"suggested_issue_to_focus_now,omitempty"`
	SuggestedStep  string      `json:"suggested_step_now,omitempty"`
}

// Empty returns an analysis with no findings, the degenerate-graph result.
func Empty() *Analysis {
	return &Analysis{
		Issues:     []Issue{},
		RootCauses: []RootCause{},
		Plans:      []Plan{},
		Tasks:      []Task{},
	}
}

// IssueByType returns the issue with the given type key, or nil.
func (a *Analysis) IssueByType(t string) *Issue {
	for i := range a.Issues {
		if a.Issues[i].Type == t {
			return &a.Issues[i]
		}
	}
	return nil
}
