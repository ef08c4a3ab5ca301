package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clearity-app/clearity/internal/lru"
)

// Store is the persistence surface the manager needs.
type Store interface {
	ListSnapshotsByUser(ctx context.Context, userID string, limit int) ([]Snapshot, error)
}

// Manager retrieves recent snapshots for a user, fronted by an LRU cache
// keyed on user id. Writers must Invalidate after persisting a new snapshot.
type Manager struct {
	store  Store
	cache  *lru.Cache[string, []Snapshot]
	limit  int
	logger zerolog.Logger
}

// NewManager creates a manager. limit caps how many snapshots a retrieval
// returns, newest first.
func NewManager(store Store, limit, cacheSize int, logger zerolog.Logger) *Manager {
	if limit <= 0 {
		limit = 3
	}
	if cacheSize <= 0 {
		cacheSize = 256
	}
	return &Manager{
		store:  store,
		cache:  lru.New[string, []Snapshot](cacheSize),
		limit:  limit,
		logger: logger.With().Str("component", "memory").Logger(),
	}
}

// RetrieveRecent returns the user's most recent snapshots, newest first.
// A missing user simply has no memories; that is not an error.
func (m *Manager) RetrieveRecent(ctx context.Context, userID string) ([]Snapshot, error) {
	if userID == "" {
		return nil, nil
	}
	if snaps, ok := m.cache.Get(userID); ok {
		return snaps, nil
	}

	snaps, err := m.store.ListSnapshotsByUser(ctx, userID, m.limit)
	if err != nil {
		return nil, err
	}
	m.cache.Put(userID, snaps)
	return snaps, nil
}

// Invalidate drops the cached snapshots for a user. Called after every
// snapshot write so the next session sees the latest state.
func (m *Manager) Invalidate(userID string) {
	if userID == "" {
		return
	}
	m.cache.Delete(userID)
}

// FormatForPrompt renders snapshots as a text block for provider prompts.
// Returns an empty string when there is nothing to remember.
func FormatForPrompt(snaps []Snapshot) string {
	if len(snaps) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("What we know from previous sessions:\n")
	for _, s := range snaps {
		p := s.Payload
		fmt.Fprintf(&b, "- %s", p.MapName)
		if p.CentralTheme != "" {
			fmt.Fprintf(&b, " (%s)", p.CentralTheme)
		}
		fmt.Fprintf(&b, ", emotional state: %s\n", p.EmotionalState)
		if p.Summary != "" {
			fmt.Fprintf(&b, "  %s\n", p.Summary)
		}
		if len(p.UnresolvedIssues) > 0 {
			fmt.Fprintf(&b, "  open issues: %s\n", strings.Join(p.UnresolvedIssues, ", "))
		}
		if len(p.ActiveTasks) > 0 {
			fmt.Fprintf(&b, "  tasks in flight: %s\n", strings.Join(p.ActiveTasks, "; "))
		}
	}
	return b.String()
}
