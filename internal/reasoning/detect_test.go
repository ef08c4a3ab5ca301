package reasoning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearity-app/clearity/internal/mindmap"
)

func stressedGraph() *mindmap.Graph {
	return &mindmap.Graph{
		ID:      "m1",
		MapName: "too many plates",
		Nodes: []mindmap.Node{
			{ID: "p1", Label: "Startup", Emotion: mindmap.EmotionRed,
				IssueSeverity: mindmap.SeverityHigh, ImportanceScore: 0.9, Visible: true},
			{ID: "p2", Label: "Day job", Emotion: mindmap.EmotionOrange,
				IssueSeverity: mindmap.SeverityMedium, ImportanceScore: 0.7, Visible: true},
			{ID: "n1", ParentID: "p1", Label: "Runway", Emotion: mindmap.EmotionRed,
				IssueSeverity: mindmap.SeverityHigh, ImportanceScore: 0.8, Visible: true},
		},
		Connections: []mindmap.Connection{
			{Type: mindmap.ConnConflict, FromID: "p1", ToID: "p2", Strength: mindmap.StrengthHigh},
		},
	}
}

func TestDetectIssuesFindsConflict(t *testing.T) {
	issues := detectIssues(stressedGraph())

	var conflict *Issue
	for i := range issues {
		if issues[i].Type == "focus_conflict" {
			conflict = &issues[i]
		}
	}
	require.NotNil(t, conflict)
	assert.Equal(t, mindmap.SeverityHigh, conflict.Severity)
	assert.ElementsMatch(t, []string{"p1", "p2"}, conflict.NodeIDs)
}

func TestDetectIssuesGroupsSevereNodesByRoot(t *testing.T) {
	issues := detectIssues(stressedGraph())

	var pressure *Issue
	for i := range issues {
		if issues[i].Type == "startup_pressure" {
			pressure = &issues[i]
		}
	}
	require.NotNil(t, pressure)
	assert.Equal(t, mindmap.SeverityHigh, pressure.Severity)
	assert.Contains(t, pressure.NodeIDs, "p1")
	assert.Contains(t, pressure.NodeIDs, "n1")
}

func TestDetectIssuesIgnoresWeakSignals(t *testing.T) {
	g := &mindmap.Graph{
		Nodes: []mindmap.Node{
			{ID: "a", Label: "A", IssueSeverity: mindmap.SeverityLow, Visible: true},
			{ID: "b", Label: "B", IssueSeverity: mindmap.SeverityNone, Visible: true},
		},
		Connections: []mindmap.Connection{
			{Type: mindmap.ConnConflict, FromID: "a", ToID: "b", Strength: mindmap.StrengthLow},
		},
	}
	assert.Empty(t, detectIssues(g))
}

func TestDetectIssuesSkipsHiddenNodes(t *testing.T) {
	g := stressedGraph()
	for i := range g.Nodes {
		g.Nodes[i].Visible = false
	}
	g.Connections = nil
	assert.Empty(t, detectIssues(g))
}

func TestInferRootCauses(t *testing.T) {
	g := stressedGraph()
	g.Connections = append(g.Connections, mindmap.Connection{
		Type: mindmap.ConnSharedRootCause, FromID: "p1", ToID: "p2",
		Strength: mindmap.StrengthMedium, RootCauseID: "fear_wrong_choice",
	})
	issues := detectIssues(g)

	causes := inferRootCauses(g, issues)

	var fear *RootCause
	for i := range causes {
		if causes[i].CauseID == "fear_wrong_choice" {
			fear = &causes[i]
		}
	}
	require.NotNil(t, fear)
	assert.Contains(t, fear.IssueTypes, "focus_conflict")
}

func TestInferRootCausesFromCommonAncestor(t *testing.T) {
	g := &mindmap.Graph{
		Nodes: []mindmap.Node{
			{ID: "p1", Label: "Launch", Visible: true},
			{ID: "n1", ParentID: "p1", Label: "Pricing", Emotion: mindmap.EmotionRed,
				IssueSeverity: mindmap.SeverityHigh, Visible: true},
			{ID: "n2", ParentID: "p1", Label: "Scope creep", Emotion: mindmap.EmotionOrange,
				IssueSeverity: mindmap.SeverityHigh, Visible: true},
		},
		Connections: []mindmap.Connection{
			{Type: mindmap.ConnConflict, FromID: "n1", ToID: "n2", Strength: mindmap.StrengthHigh},
		},
	}
	issues := detectIssues(g)
	require.Len(t, issues, 2)

	// No shared_root_cause edge anywhere; the common ancestor is the signal.
	causes := inferRootCauses(g, issues)
	require.Len(t, causes, 1)
	assert.Equal(t, "launch_root", causes[0].CauseID)
	assert.ElementsMatch(t, []string{"focus_conflict", "launch_pressure"}, causes[0].IssueTypes)
}

func TestInferRootCausesNeedsTwoIssuesPerRoot(t *testing.T) {
	g := &mindmap.Graph{
		Nodes: []mindmap.Node{
			{ID: "p1", Label: "Solo worry", Emotion: mindmap.EmotionRed,
				IssueSeverity: mindmap.SeverityHigh, Visible: true},
			{ID: "p2", Label: "Fine area", Visible: true},
		},
	}
	issues := detectIssues(g)
	require.Len(t, issues, 1)

	assert.Empty(t, inferRootCauses(g, issues), "a lone issue under a root is not a pattern")
}

func TestAppendIssueMergesByType(t *testing.T) {
	issues := appendIssue(nil, Issue{Type: "x", Severity: mindmap.SeverityLow, NodeIDs: []string{"a"}})
	issues = appendIssue(issues, Issue{Type: "x", Severity: mindmap.SeverityHigh, NodeIDs: []string{"a", "b"}})

	require.Len(t, issues, 1)
	assert.Equal(t, mindmap.SeverityHigh, issues[0].Severity)
	assert.ElementsMatch(t, []string{"a", "b"}, issues[0].NodeIDs)
}
