package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clearity-app/clearity/internal/apperrors"
	"github.com/clearity-app/clearity/internal/reasoning"
)

// analysisPayload is the stored portion of an analysis. Tasks live in their
// own table because their status mutates after the turn.
type analysisPayload struct {
	Issues         []reasoning.Issue     `json:"issues"`
	RootCauses     []reasoning.RootCause `json:"root_causes"`
	Plans          []reasoning.Plan      `json:"plans"`
	SuggestedFocus string                `json:"suggested_issue_to_focus_now,omitempty"`
	SuggestedStep  string                `json:"suggested_step_now,omitempty"`
}

// SaveAnalysis records a turn's analysis and its tasks.
func (s *Store) SaveAnalysis(ctx context.Context, sessionID string, a *reasoning.Analysis) error {
	payload, err := json.Marshal(analysisPayload{
		Issues:         a.Issues,
		RootCauses:     a.RootCauses,
		Plans:          a.Plans,
		SuggestedFocus: a.SuggestedFocus,
		SuggestedStep:  a.SuggestedStep,
	})
	if err != nil {
		return apperrors.NewPersistenceError("save analysis", err)
	}

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, session_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), sessionID, string(payload), now); err != nil {
		return apperrors.NewPersistenceError("save analysis", err)
	}

	for i := range a.Tasks {
		if err := s.insertTask(ctx, sessionID, &a.Tasks[i], now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertTask(ctx context.Context, sessionID string, t *reasoning.Task, now time.Time) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	nodeIDs, err := json.Marshal(t.NodeIDs)
	if err != nil {
		return apperrors.NewPersistenceError("save task", err)
	}
	subtasks, err := json.Marshal(t.Subtasks)
	if err != nil {
		return apperrors.NewPersistenceError("save task", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, session_id, name, related_issue, node_ids,
		   priority_score, kpi, subtasks, estimated_time_min, context_hint, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, sessionID, t.Name, t.RelatedIssue, string(nodeIDs),
		t.PriorityScore, t.KPI, string(subtasks), t.EstimatedTimeMin,
		t.ContextHint, t.Status, now); err != nil {
		return apperrors.NewPersistenceError("save task", err)
	}
	return nil
}

// LatestAnalysis returns the session's most recent analysis joined with its
// current task rows, or ErrNotFound.
func (s *Store) LatestAnalysis(ctx context.Context, sessionID string) (*reasoning.Analysis, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM analyses WHERE session_id = ?
		 ORDER BY created_at DESC LIMIT 1`, sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("latest analysis", err)
	}

	var p analysisPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, apperrors.NewPersistenceError("latest analysis", err)
	}
	tasks, err := s.ListTasks(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	a := reasoning.Empty()
	a.Issues = p.Issues
	a.RootCauses = p.RootCauses
	a.Plans = p.Plans
	a.Tasks = tasks
	a.SuggestedFocus = p.SuggestedFocus
	a.SuggestedStep = p.SuggestedStep
	return a, nil
}

// ListTasks returns a session's tasks by descending priority.
func (s *Store) ListTasks(ctx context.Context, sessionID string) ([]reasoning.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, related_issue, node_ids, priority_score, kpi,
		        subtasks, estimated_time_min, context_hint, status
		 FROM tasks WHERE session_id = ?
		 ORDER BY priority_score DESC, estimated_time_min ASC`, sessionID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list tasks", err)
	}
	defer rows.Close()

	var out []reasoning.Task
	for rows.Next() {
		var t reasoning.Task
		var nodeIDs, subtasks string
		if err := rows.Scan(&t.ID, &t.Name, &t.RelatedIssue, &nodeIDs, &t.PriorityScore,
			&t.KPI, &subtasks, &t.EstimatedTimeMin, &t.ContextHint, &t.Status); err != nil {
			return nil, apperrors.NewPersistenceError("list tasks", err)
		}
		if err := json.Unmarshal([]byte(nodeIDs), &t.NodeIDs); err != nil {
			return nil, apperrors.NewPersistenceError("list tasks", err)
		}
		if err := json.Unmarshal([]byte(subtasks), &t.Subtasks); err != nil {
			return nil, apperrors.NewPersistenceError("list tasks", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TaskOwner resolves the user owning a task, through its session.
func (s *Store) TaskOwner(ctx context.Context, taskID string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx,
		`SELECT s.user_id FROM tasks t JOIN sessions s ON s.id = t.session_id
		 WHERE t.id = ?`, taskID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.ErrNotFound
	}
	if err != nil {
		return "", apperrors.NewPersistenceError("task owner", err)
	}
	return userID, nil
}

// UpdateTaskStatus transitions a task's lifecycle state.
func (s *Store) UpdateTaskStatus(ctx context.Context, taskID string, status reasoning.TaskStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ? WHERE id = ?`, status, taskID)
	if err != nil {
		return apperrors.NewPersistenceError("update task", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
