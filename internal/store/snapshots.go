package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clearity-app/clearity/internal/apperrors"
	"github.com/clearity-app/clearity/internal/memory"
)

// SaveSnapshot records a cross-session memory snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, snap *memory.Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	raw, err := memory.EncodePayload(snap.Payload)
	if err != nil {
		return apperrors.NewPersistenceError("save snapshot", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, user_id, session_id, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.UserID, snap.SessionID, string(raw), snap.CreatedAt); err != nil {
		return apperrors.NewPersistenceError("save snapshot", err)
	}
	return nil
}

// ListSnapshotsByUser returns the user's most recent snapshots, newest first.
// A payload that no longer decodes is skipped rather than failing the read.
func (s *Store) ListSnapshotsByUser(ctx context.Context, userID string, limit int) ([]memory.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, session_id, payload, created_at
		 FROM snapshots WHERE user_id = ?
		 ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list snapshots", err)
	}
	defer rows.Close()

	var out []memory.Snapshot
	for rows.Next() {
		var snap memory.Snapshot
		var raw string
		if err := rows.Scan(&snap.ID, &snap.UserID, &snap.SessionID, &raw, &snap.CreatedAt); err != nil {
			return nil, apperrors.NewPersistenceError("list snapshots", err)
		}
		payload, err := memory.DecodePayload([]byte(raw))
		if err != nil {
			continue
		}
		snap.Payload = payload
		out = append(out, snap)
	}
	return out, rows.Err()
}
