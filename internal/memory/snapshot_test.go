package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearity-app/clearity/internal/mindmap"
	"github.com/clearity-app/clearity/internal/reasoning"
)

func snapshotGraph() *mindmap.Graph {
	return &mindmap.Graph{
		MapName:      "startup vs job",
		CentralTheme: "which path to commit to",
		Nodes: []mindmap.Node{
			{ID: "p1", Label: "Startup", Emotion: mindmap.EmotionRed,
				IssueSeverity: mindmap.SeverityHigh, IsCoreIssue: true, Visible: true},
			{ID: "p2", Label: "Day job", Emotion: mindmap.EmotionYellow,
				IssueSeverity: mindmap.SeverityHigh, Visible: true},
			{ID: "p3", Label: "Hidden", Emotion: mindmap.EmotionRed,
				IssueSeverity: mindmap.SeverityHigh, IsCoreIssue: true, Visible: false},
		},
	}
}

func TestBuildPayload(t *testing.T) {
	a := reasoning.Empty()
	a.Issues = []reasoning.Issue{
		{Type: "focus_conflict", Severity: mindmap.SeverityHigh},
		{Type: "done_issue", Severity: mindmap.SeverityLow},
	}
	a.Tasks = []reasoning.Task{
		{Name: "Pick criteria", RelatedIssue: "focus_conflict", Status: reasoning.TaskPending},
		{Name: "Old chore", RelatedIssue: "done_issue", Status: reasoning.TaskCompleted},
	}

	p := BuildPayload(snapshotGraph(), a, "red", "torn between paths")

	assert.Equal(t, SchemaVersion, p.SchemaVersion)
	assert.Equal(t, "startup vs job", p.MapName)
	assert.Equal(t, "red", p.EmotionalState)

	// Hidden nodes never surface in the prompt-facing summary.
	require.Len(t, p.KeyNodes, 2)
	assert.Equal(t, "Startup", p.KeyNodes[0].Label, "core issues come first")
	assert.True(t, p.KeyNodes[0].IsCoreIssue)

	assert.Equal(t, []string{"focus_conflict"}, p.UnresolvedIssues,
		"issues with all tasks completed are resolved")
	assert.Equal(t, []string{"Pick criteria"}, p.ActiveTasks)
}

func TestBuildPayloadIssueWithoutTasksIsUnresolved(t *testing.T) {
	a := reasoning.Empty()
	a.Issues = []reasoning.Issue{{Type: "avoidance", Severity: mindmap.SeverityMedium}}

	p := BuildPayload(nil, a, "", "")

	assert.Equal(t, []string{"avoidance"}, p.UnresolvedIssues)
	assert.Equal(t, string(mindmap.EmotionGrey), p.EmotionalState)
}

func TestBuildPayloadKeepsFullGraph(t *testing.T) {
	g := snapshotGraph()
	g.Fields = []mindmap.Field{{ID: "startups", Label: "Startups"}}
	g.Connections = []mindmap.Connection{
		{Type: mindmap.ConnConflict, FromID: "p1", ToID: "p2", Strength: mindmap.StrengthHigh},
	}

	p := BuildPayload(g, reasoning.Empty(), "red", "")

	require.Len(t, p.Nodes, 3, "soft-deleted nodes stay in the payload")
	require.Len(t, p.Connections, 1)
	require.Len(t, p.Fields, 1)

	raw, err := EncodePayload(p)
	require.NoError(t, err)
	out, err := DecodePayload(raw)
	require.NoError(t, err)

	restored := out.Graph()
	require.NotNil(t, restored)
	assert.Equal(t, "startup vs job", restored.MapName)

	hidden := restored.NodeByID("p3")
	require.NotNil(t, hidden, "a soft-deleted node survives the round trip")
	assert.False(t, hidden.Visible)
	assert.Equal(t, "Hidden", hidden.Label)

	require.Len(t, restored.Connections, 1)
	assert.Equal(t, mindmap.ConnConflict, restored.Connections[0].Type)
}

func TestPayloadRoundTrip(t *testing.T) {
	in := BuildPayload(snapshotGraph(), reasoning.Empty(), "red", "summary")

	raw, err := EncodePayload(in)
	require.NoError(t, err)

	out, err := DecodePayload(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodePayloadToleratesOldVersions(t *testing.T) {
	// A v1 payload: no schema_version, no unresolved_issues, no active_tasks.
	raw := []byte(`{"map_name": "old map", "central_theme": "from before"}`)

	p, err := DecodePayload(raw)
	require.NoError(t, err)

	assert.Equal(t, 1, p.SchemaVersion)
	assert.Equal(t, "old map", p.MapName)
	assert.Equal(t, string(mindmap.EmotionGrey), p.EmotionalState)
	assert.NotNil(t, p.KeyNodes)
	assert.NotNil(t, p.UnresolvedIssues)
	assert.NotNil(t, p.ActiveTasks)
	assert.NotNil(t, p.Nodes)
	assert.NotNil(t, p.Connections)
	assert.Nil(t, p.Graph(), "summary-only payloads have no graph to rebuild")
}

func TestDecodePayloadRejectsGarbage(t *testing.T) {
	_, err := DecodePayload([]byte("not json"))
	assert.Error(t, err)
}
