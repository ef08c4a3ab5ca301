package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clearity-app/clearity/internal/apperrors"
)

// Message is one chat turn half, user or assistant.
type Message struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}

// AddMessage appends a message to a session.
func (s *Store) AddMessage(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.Role, m.Content, m.CreatedAt)
	if err != nil {
		return apperrors.NewPersistenceError("add message", err)
	}
	return nil
}

// RecentMessages returns the last limit messages of a session in
// chronological order.
func (s *Store) RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM (
		   SELECT id, session_id, role, content, created_at
		   FROM messages WHERE session_id = ?
		   ORDER BY created_at DESC, id DESC LIMIT ?
		 ) ORDER BY created_at ASC, id ASC`,
		sessionID, limit)
	if err != nil {
		return nil, apperrors.NewPersistenceError("recent messages", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, apperrors.NewPersistenceError("recent messages", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("recent messages", err)
	}
	return out, nil
}

// CountMessages returns how many messages a session holds.
func (s *Store) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, apperrors.NewPersistenceError("count messages", err)
	}
	return n, nil
}
