package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearity-app/clearity/internal/apperrors"
	"github.com/clearity-app/clearity/internal/memory"
	"github.com/clearity-app/clearity/internal/mindmap"
	"github.com/clearity-app/clearity/internal/reasoning"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUserSession(t *testing.T, s *Store) (*User, *Session) {
	t.Helper()
	ctx := context.Background()
	u := &User{Email: "dana@example.com"}
	require.NoError(t, s.CreateUser(ctx, u))
	sess := &Session{UserID: u.ID, Title: "first chat"}
	require.NoError(t, s.CreateSession(ctx, sess))
	return u, sess
}

func TestUserCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	u := &User{Email: "sam@example.com", PasswordHash: "h", Salt: "s"}
	require.NoError(t, s.CreateUser(ctx, u))
	require.NotEmpty(t, u.ID)

	got, err := s.GetUserByEmail(ctx, "sam@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// Duplicate email rejected by the unique index.
	assert.Error(t, s.CreateUser(ctx, &User{Email: "sam@example.com"}))
}

func TestEnsureUserIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureUser(ctx, "local"))
	require.NoError(t, s.EnsureUser(ctx, "local"))

	u, err := s.GetUser(ctx, "local")
	require.NoError(t, err)
	assert.True(t, u.IsAnonymous)
}

func TestSessionLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	u, sess := seedUserSession(t, s)

	sessions, err := s.ListSessionsByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	require.NoError(t, s.TouchSession(ctx, sess.ID, "ignored, title already set"))
	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "first chat", got.Title)

	require.NoError(t, s.DeleteSession(ctx, sess.ID))
	_, err = s.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, s.DeleteSession(ctx, sess.ID), apperrors.ErrNotFound)
}

func TestMessagesWindow(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_, sess := seedUserSession(t, s)

	for _, content := range []string{"one", "two", "three"} {
		require.NoError(t, s.AddMessage(ctx, &Message{SessionID: sess.ID, Role: "user", Content: content}))
	}

	msgs, err := s.RecentMessages(ctx, sess.ID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Content, "window keeps the newest, in order")
	assert.Equal(t, "three", msgs[1].Content)

	n, err := s.CountMessages(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func storedGraph() *mindmap.Graph {
	return &mindmap.Graph{
		MapName:      "test map",
		CentralTheme: "testing",
		Fields:       []mindmap.Field{{ID: "career", Label: "Career"}},
		Nodes: []mindmap.Node{
			{ID: "p1", Label: "Project", Emotion: mindmap.EmotionGreen, Clarity: mindmap.ClarityHigh,
				IssueSeverity: mindmap.SeverityLow, Status: "active", ImportanceScore: 0.7,
				Fields: []string{"career"}, Visible: true},
			{ID: "n1", ParentID: "p1", Label: "Step one", Emotion: mindmap.EmotionYellow,
				IssueSeverity: mindmap.SeverityNone, Status: "active", ImportanceScore: 0.4,
				IsCoreIssue: true, Visible: true},
		},
		Connections: []mindmap.Connection{
			{Type: mindmap.ConnDependency, FromID: "p1", ToID: "n1",
				Strength: mindmap.StrengthMedium, RootCauseID: "rc1"},
		},
	}
}

func TestGraphRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_, sess := seedUserSession(t, s)

	_, err := s.GetGraphBySession(ctx, sess.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	g := storedGraph()
	require.NoError(t, s.SaveGraph(ctx, sess.ID, g))

	got, err := s.GetGraphBySession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, g.MapName, got.MapName)
	assert.Equal(t, g.Fields, got.Fields)
	require.Len(t, got.Nodes, 2)
	assert.Equal(t, g.Nodes[0].Fields, got.Nodes[0].Fields)
	assert.True(t, got.Nodes[1].IsCoreIssue)
	assert.Equal(t, g.Connections, got.Connections)
}

func TestSaveGraphReplacesPrevious(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_, sess := seedUserSession(t, s)

	require.NoError(t, s.SaveGraph(ctx, sess.ID, storedGraph()))

	updated := storedGraph()
	updated.Nodes = updated.Nodes[:1]
	updated.Connections = nil
	require.NoError(t, s.SaveGraph(ctx, sess.ID, updated))

	got, err := s.GetGraphBySession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.Nodes, 1)
	assert.Empty(t, got.Connections)
}

func TestAnalysisAndTasks(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	u, sess := seedUserSession(t, s)

	a := reasoning.Empty()
	a.Issues = []reasoning.Issue{{Type: "avoidance", Description: "putting it off", Severity: mindmap.SeverityMedium}}
	a.Plans = []reasoning.Plan{{IssueType: "avoidance", Steps: []string{"start tiny"}}}
	a.Tasks = []reasoning.Task{
		{Name: "Low", RelatedIssue: "avoidance", PriorityScore: 0.3, KPI: "done",
			Subtasks: []string{"a"}, EstimatedTimeMin: 30, Status: reasoning.TaskPending},
		{Name: "High", RelatedIssue: "avoidance", PriorityScore: 0.9, KPI: "done",
			NodeIDs: []string{"p1"}, EstimatedTimeMin: 15, Status: reasoning.TaskPending},
	}
	require.NoError(t, s.SaveAnalysis(ctx, sess.ID, a))

	got, err := s.LatestAnalysis(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Issues, got.Issues)
	assert.Equal(t, a.Plans, got.Plans)
	require.Len(t, got.Tasks, 2)
	assert.Equal(t, "High", got.Tasks[0].Name, "tasks come back priority-ordered")
	assert.Equal(t, []string{"p1"}, got.Tasks[0].NodeIDs)

	owner, err := s.TaskOwner(ctx, got.Tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, owner)

	require.NoError(t, s.UpdateTaskStatus(ctx, got.Tasks[0].ID, reasoning.TaskCompleted))
	tasks, err := s.ListTasks(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, reasoning.TaskCompleted, tasks[0].Status)

	assert.ErrorIs(t, s.UpdateTaskStatus(ctx, "missing", reasoning.TaskPending), apperrors.ErrNotFound)
}

func TestSnapshotsRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	u, sess := seedUserSession(t, s)

	for i := 0; i < 4; i++ {
		snap := &memory.Snapshot{
			UserID:    u.ID,
			SessionID: sess.ID,
			Payload:   memory.Payload{MapName: "map", EmotionalState: "red"},
		}
		require.NoError(t, s.SaveSnapshot(ctx, snap))
	}

	snaps, err := s.ListSnapshotsByUser(ctx, u.ID, 3)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, "map", snaps[0].Payload.MapName)
	assert.Equal(t, memory.SchemaVersion, snaps[0].Payload.SchemaVersion)
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_, sess := seedUserSession(t, s)

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx *Store) error {
		if err := tx.AddMessage(ctx, &Message{SessionID: sess.ID, Role: "user", Content: "lost"}); err != nil {
			return err
		}
		if err := tx.SaveGraph(ctx, sess.ID, storedGraph()); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := s.CountMessages(ctx, sess.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "rolled-back message must not persist")
	_, err = s.GetGraphBySession(ctx, sess.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// A successful transaction commits everything.
	require.NoError(t, s.WithinTx(ctx, func(tx *Store) error {
		return tx.AddMessage(ctx, &Message{SessionID: sess.ID, Role: "user", Content: "kept"})
	}))
	n, err = s.CountMessages(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
