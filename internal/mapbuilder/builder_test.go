package mapbuilder

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearity-app/clearity/internal/apperrors"
	"github.com/clearity-app/clearity/internal/llm"
	"github.com/clearity-app/clearity/internal/mindmap"
)

type stubProvider struct {
	jsonText string
	err      error
}

func (s *stubProvider) Complete(_ context.Context, _ llm.Request) (*llm.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Text: s.jsonText}, nil
}

func (s *stubProvider) CompleteJSON(_ context.Context, _ llm.Request, out any) error {
	if s.err != nil {
		return s.err
	}
	return json.Unmarshal([]byte(s.jsonText), out)
}

const wireJSON = `{
	"map_name": "too many plates",
	"central_theme": "spread thin",
	"fields": [{"id": "startups", "label": "Startups"}, {"id": "astrology", "label": "Nope"}],
	"projects": [
		{"id": "p1", "label": "Startup", "fields": ["startups"], "emotion": "red",
		 "clarity": "low", "issue_severity": "high", "importance_score": 0.9,
		 "nodes": [
			{"id": "n1", "label": "Runway", "emotion": "red", "importance_score": 0.8,
			 "is_core_issue": true, "fields": ["startups"]},
			{"id": "n2", "label": "", "emotion": "red"}
		 ]},
		{"id": "p2", "label": "Day job", "emotion": "sparkly", "importance_score": 7}
	],
	"connections": [
		{"type": "conflict", "from_id": "p1", "to_id": "p2", "strength": "high"},
		{"type": "conflict", "from_id": "p1", "to_id": "p1", "strength": "high"},
		{"type": "dependency", "from_id": "ghost", "to_id": "", "strength": "low"}
	]
}`

func newTestBuilder(p llm.Provider) *Builder {
	return New(p, nil, zerolog.Nop())
}

func TestBuildOrUpdateFirstTurn(t *testing.T) {
	b := newTestBuilder(&stubProvider{jsonText: wireJSON})

	g, err := b.BuildOrUpdate(context.Background(), nil, Input{UserMessage: "help"})
	require.NoError(t, err)

	assert.Equal(t, "too many plates", g.MapName)
	require.Len(t, g.Nodes, 3, "empty-label nodes are dropped")

	// Unknown taxonomy entries never make it into the graph.
	require.Len(t, g.Fields, 1)
	assert.Equal(t, "startups", g.Fields[0].ID)

	var startup, dayJob, runway *mindmap.Node
	for i := range g.Nodes {
		switch g.Nodes[i].Label {
		case "Startup":
			startup = &g.Nodes[i]
		case "Day job":
			dayJob = &g.Nodes[i]
		case "Runway":
			runway = &g.Nodes[i]
		}
	}
	require.NotNil(t, startup)
	require.NotNil(t, dayJob)
	require.NotNil(t, runway)

	assert.NotEqual(t, "p1", startup.ID, "provisional ids are replaced")
	assert.Equal(t, startup.ID, runway.ParentID)
	assert.True(t, runway.IsCoreIssue)
	assert.Equal(t, mindmap.EmotionGrey, dayJob.Emotion, "unknown emotion falls back to grey")
	assert.Equal(t, 1.0, dayJob.ImportanceScore, "scores clamp into range")

	// Self-loops and dangling endpoints are filtered; the one real edge is
	// remapped onto the generated ids.
	require.Len(t, g.Connections, 1)
	assert.Equal(t, startup.ID, g.Connections[0].FromID)
	assert.Equal(t, dayJob.ID, g.Connections[0].ToID)

	require.NoError(t, mindmap.Validate(g))
}

func TestBuildOrUpdateSecondTurnMergesByLabel(t *testing.T) {
	b := newTestBuilder(&stubProvider{jsonText: wireJSON})

	first, err := b.BuildOrUpdate(context.Background(), nil, Input{UserMessage: "one"})
	require.NoError(t, err)

	second, err := b.BuildOrUpdate(context.Background(), first, Input{UserMessage: "two"})
	require.NoError(t, err)

	assert.Len(t, second.Nodes, len(first.Nodes), "re-mention must not duplicate nodes")
	assert.Equal(t, first.MapName, second.MapName)
}

func TestBuildOrUpdatePropagatesProviderError(t *testing.T) {
	wantErr := apperrors.NewProviderError(apperrors.ProviderTimeout, 0, "slow")
	b := newTestBuilder(&stubProvider{err: wantErr})

	_, err := b.BuildOrUpdate(context.Background(), nil, Input{UserMessage: "x"})
	var pe *apperrors.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, apperrors.IsRecoverable(err))
}

func TestBuildOrUpdateRejectsEmptyOutput(t *testing.T) {
	b := newTestBuilder(&stubProvider{jsonText: `{}`})

	_, err := b.BuildOrUpdate(context.Background(), nil, Input{UserMessage: "x"})
	var se *apperrors.SchemaError
	require.ErrorAs(t, err, &se)
	assert.True(t, apperrors.IsRecoverable(err))
}

func TestBuildOrUpdateRejectsEmptyProjectLabel(t *testing.T) {
	b := newTestBuilder(&stubProvider{jsonText: `{
		"map_name": "m", "projects": [{"id": "p1", "label": "  "}]
	}`})

	_, err := b.BuildOrUpdate(context.Background(), nil, Input{UserMessage: "x"})
	var se *apperrors.SchemaError
	assert.ErrorAs(t, err, &se)
}

func TestBuildOrUpdateWithoutProvider(t *testing.T) {
	b := newTestBuilder(nil)
	_, err := b.BuildOrUpdate(context.Background(), nil, Input{UserMessage: "x"})
	assert.True(t, apperrors.IsRecoverable(err))
}
