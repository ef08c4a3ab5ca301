package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clearity-app/clearity/internal/apperrors"
	"github.com/clearity-app/clearity/internal/mindmap"
)

// GetGraphBySession loads the session's mind map, or ErrNotFound when the
// session has no map yet.
func (s *Store) GetGraphBySession(ctx context.Context, sessionID string) (*mindmap.Graph, error) {
	g := &mindmap.Graph{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, map_name, central_theme, created_at, updated_at
		 FROM mindmaps WHERE session_id = ?`, sessionID).
		Scan(&g.ID, &g.MapName, &g.CentralTheme, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("get mindmap", err)
	}

	if g.Fields, err = s.loadFields(ctx, g.ID); err != nil {
		return nil, err
	}
	if g.Nodes, err = s.loadNodes(ctx, g.ID); err != nil {
		return nil, err
	}
	if g.Connections, err = s.loadConnections(ctx, g.ID); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Store) loadFields(ctx context.Context, mapID string) ([]mindmap.Field, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field_id, label FROM mindmap_fields WHERE map_id = ? ORDER BY field_id`, mapID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("load fields", err)
	}
	defer rows.Close()

	var out []mindmap.Field
	for rows.Next() {
		var f mindmap.Field
		if err := rows.Scan(&f.ID, &f.Label); err != nil {
			return nil, apperrors.NewPersistenceError("load fields", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) loadNodes(ctx context.Context, mapID string) ([]mindmap.Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, parent_id, label, emotion, clarity, issue_severity, status,
		        importance_score, is_core_issue, is_visible, fields
		 FROM nodes WHERE map_id = ? ORDER BY rowid`, mapID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("load nodes", err)
	}
	defer rows.Close()

	var out []mindmap.Node
	for rows.Next() {
		var n mindmap.Node
		var fieldsJSON string
		if err := rows.Scan(&n.ID, &n.ParentID, &n.Label, &n.Emotion, &n.Clarity,
			&n.IssueSeverity, &n.Status, &n.ImportanceScore, &n.IsCoreIssue,
			&n.Visible, &fieldsJSON); err != nil {
			return nil, apperrors.NewPersistenceError("load nodes", err)
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &n.Fields); err != nil {
			return nil, apperrors.NewPersistenceError("load nodes", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) loadConnections(ctx context.Context, mapID string) ([]mindmap.Connection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, from_id, to_id, strength, root_cause_id
		 FROM connections WHERE map_id = ? ORDER BY rowid`, mapID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("load connections", err)
	}
	defer rows.Close()

	var out []mindmap.Connection
	for rows.Next() {
		var c mindmap.Connection
		if err := rows.Scan(&c.Type, &c.FromID, &c.ToID, &c.Strength, &c.RootCauseID); err != nil {
			return nil, apperrors.NewPersistenceError("load connections", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveGraph writes the session's entire mind map, replacing what was there.
// Intended to run inside WithinTx with the rest of the turn's writes.
func (s *Store) SaveGraph(ctx context.Context, sessionID string, g *mindmap.Graph) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mindmaps (id, session_id, map_name, central_theme, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   map_name = excluded.map_name,
		   central_theme = excluded.central_theme,
		   updated_at = excluded.updated_at`,
		g.ID, sessionID, g.MapName, g.CentralTheme, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return apperrors.NewPersistenceError("save mindmap", err)
	}

	// The upsert may have kept an older map id; read back the canonical one.
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM mindmaps WHERE session_id = ?`, sessionID).Scan(&g.ID); err != nil {
		return apperrors.NewPersistenceError("save mindmap", err)
	}

	for _, table := range []string{"mindmap_fields", "nodes", "connections"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE map_id = ?`, g.ID); err != nil {
			return apperrors.NewPersistenceError("save mindmap", err)
		}
	}

	for _, f := range g.Fields {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO mindmap_fields (map_id, field_id, label) VALUES (?, ?, ?)`,
			g.ID, f.ID, f.Label); err != nil {
			return apperrors.NewPersistenceError("save mindmap", err)
		}
	}
	for i := range g.Nodes {
		n := &g.Nodes[i]
		fieldsJSON, err := json.Marshal(n.Fields)
		if err != nil {
			return apperrors.NewPersistenceError("save mindmap", err)
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO nodes (id, map_id, parent_id, label, emotion, clarity,
			   issue_severity, status, importance_score, is_core_issue, is_visible, fields)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			n.ID, g.ID, n.ParentID, n.Label, n.Emotion, n.Clarity,
			n.IssueSeverity, n.Status, n.ImportanceScore, n.IsCoreIssue,
			n.Visible, string(fieldsJSON)); err != nil {
			return apperrors.NewPersistenceError("save mindmap", err)
		}
	}
	for _, c := range g.Connections {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO connections (map_id, type, from_id, to_id, strength, root_cause_id)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			g.ID, c.Type, c.FromID, c.ToID, c.Strength, c.RootCauseID); err != nil {
			return apperrors.NewPersistenceError("save mindmap", err)
		}
	}
	return nil
}
