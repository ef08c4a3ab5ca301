// Package memory derives cross-session snapshots from a finished turn and
// retrieves them when a new session starts.
package memory

import (
	"encoding/json"
	"time"

	"github.com/clearity-app/clearity/internal/mindmap"
	"github.com/clearity-app/clearity/internal/reasoning"
)

// SchemaVersion is the payload version written by this build. Readers accept
// older payloads and default the fields they lack. Version 3 added the full
// graph serialization; version 2 payloads carry the summary only.
const SchemaVersion = 3

const (
	maxKeyNodes    = 8
	maxActiveTasks = 5
)

// Snapshot is one persisted memory record.
type Snapshot struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Payload   Payload   `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// KeyNode is the compact projection of a node worth remembering.
type KeyNode struct {
	Label       string           `json:"label"`
	Emotion     mindmap.Emotion  `json:"emotion"`
	Severity    mindmap.Severity `json:"severity"`
	IsCoreIssue bool             `json:"is_core_issue,omitempty"`
}

// Payload is what a snapshot carries across sessions: the complete graph,
// soft-deleted nodes included, so the map can be reconstructed even after it
// is gone, plus the bounded summary fields the retrieval path ships to
// prompts instead of the raw graph.
type Payload struct {
	SchemaVersion    int                  `json:"schema_version"`
	MapName          string               `json:"map_name"`
	CentralTheme     string               `json:"central_theme"`
	EmotionalState   string               `json:"emotional_state"`
	Summary          string               `json:"summary,omitempty"`
	Fields           []mindmap.Field      `json:"fields"`
	Nodes            []mindmap.Node       `json:"nodes"`
	Connections      []mindmap.Connection `json:"connections"`
	KeyNodes         []KeyNode            `json:"key_nodes"`
	UnresolvedIssues []string             `json:"unresolved_issues"`
	ActiveTasks      []string             `json:"active_tasks"`
}

// Graph reconstructs the serialized mind map. Nil for payloads written before
// the full graph was part of the snapshot.
func (p Payload) Graph() *mindmap.Graph {
	if len(p.Nodes) == 0 {
		return nil
	}
	g := &mindmap.Graph{
		MapName:      p.MapName,
		CentralTheme: p.CentralTheme,
	}
	g.Fields = append([]mindmap.Field(nil), p.Fields...)
	g.Connections = append([]mindmap.Connection(nil), p.Connections...)
	g.Nodes = make([]mindmap.Node, len(p.Nodes))
	for i, n := range p.Nodes {
		n.Fields = append([]string(nil), n.Fields...)
		g.Nodes[i] = n
	}
	return g
}

// EncodePayload serializes a payload for storage.
func EncodePayload(p Payload) ([]byte, error) {
	p.SchemaVersion = SchemaVersion
	return json.Marshal(p)
}

// DecodePayload deserializes a stored payload. Older versions are accepted;
// fields they lack come back zero-valued with safe defaults filled in.
func DecodePayload(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, err
	}
	if p.SchemaVersion == 0 {
		p.SchemaVersion = 1
	}
	if p.EmotionalState == "" {
		p.EmotionalState = string(mindmap.EmotionGrey)
	}
	if p.Fields == nil {
		p.Fields = []mindmap.Field{}
	}
	if p.Nodes == nil {
		p.Nodes = []mindmap.Node{}
	}
	if p.Connections == nil {
		p.Connections = []mindmap.Connection{}
	}
	if p.KeyNodes == nil {
		p.KeyNodes = []KeyNode{}
	}
	if p.UnresolvedIssues == nil {
		p.UnresolvedIssues = []string{}
	}
	if p.ActiveTasks == nil {
		p.ActiveTasks = []string{}
	}
	return p, nil
}

// BuildPayload derives a snapshot payload from the turn's final graph and
// analysis. The full node and connection lists go in verbatim, hidden nodes
// included; key nodes are the visible core issues and high-severity nodes;
// unresolved issues are those whose tasks are not all completed.
func BuildPayload(g *mindmap.Graph, a *reasoning.Analysis, emotionalState, summary string) Payload {
	p := Payload{
		SchemaVersion:    SchemaVersion,
		EmotionalState:   emotionalState,
		Summary:          summary,
		Fields:           []mindmap.Field{},
		Nodes:            []mindmap.Node{},
		Connections:      []mindmap.Connection{},
		KeyNodes:         []KeyNode{},
		UnresolvedIssues: []string{},
		ActiveTasks:      []string{},
	}
	if p.EmotionalState == "" {
		p.EmotionalState = string(mindmap.EmotionGrey)
	}
	if g != nil {
		p.MapName = g.MapName
		p.CentralTheme = g.CentralTheme
		p.Fields = append(p.Fields, g.Fields...)
		p.Connections = append(p.Connections, g.Connections...)
		for _, n := range g.Nodes {
			n.Fields = append([]string(nil), n.Fields...)
			p.Nodes = append(p.Nodes, n)
		}
		p.KeyNodes = keyNodes(g)
	}
	if a != nil {
		p.UnresolvedIssues = unresolvedIssues(a)
		for _, t := range a.Tasks {
			if t.Status == reasoning.TaskCompleted {
				continue
			}
			if len(p.ActiveTasks) >= maxActiveTasks {
				break
			}
			p.ActiveTasks = append(p.ActiveTasks, t.Name)
		}
	}
	return p
}

func keyNodes(g *mindmap.Graph) []KeyNode {
	out := []KeyNode{}
	add := func(n *mindmap.Node) {
		if len(out) >= maxKeyNodes {
			return
		}
		out = append(out, KeyNode{
			Label:       n.Label,
			Emotion:     n.Emotion,
			Severity:    n.IssueSeverity,
			IsCoreIssue: n.IsCoreIssue,
		})
	}
	// Core issues first, then remaining high-severity nodes.
	for i := range g.Nodes {
		if n := &g.Nodes[i]; n.Visible && n.IsCoreIssue {
			add(n)
		}
	}
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if !n.Visible || n.IsCoreIssue {
			continue
		}
		if mindmap.SeverityRank(n.IssueSeverity) >= mindmap.SeverityRank(mindmap.SeverityHigh) {
			add(n)
		}
	}
	return out
}

// unresolvedIssues returns issue types that still have open work: at least
// one non-completed linked task, or no tasks at all.
func unresolvedIssues(a *reasoning.Analysis) []string {
	out := []string{}
	for _, is := range a.Issues {
		resolved := false
		hasTasks := false
		open := false
		for _, t := range a.Tasks {
			if t.RelatedIssue != is.Type {
				continue
			}
			hasTasks = true
			if t.Status != reasoning.TaskCompleted {
				open = true
			}
		}
		resolved = hasTasks && !open
		if !resolved {
			out = append(out, is.Type)
		}
	}
	return out
}
