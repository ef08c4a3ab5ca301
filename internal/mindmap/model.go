// Package mindmap holds the in-memory mind-map graph model: fields, nodes,
// connections, plus the validation and merge rules applied to it on every
// turn. Pure data, no I/O.
package mindmap

import (
	"strings"
	"time"
)

// Emotion is the color annotation derived from the user's emotional context.
type Emotion string

const (
	EmotionRed    Emotion = "red"    // overwhelm, anxiety, stress
	EmotionOrange Emotion = "orange" // frustration, chaos, confusion
	EmotionYellow Emotion = "yellow" // uncertainty, doubt, ambivalence
	EmotionGreen  Emotion = "green"  // hope, progress, clarity
	EmotionBlue   Emotion = "blue"   // calm, stability, control
	EmotionPurple Emotion = "purple" // excitement, passion, creativity
	EmotionGrey   Emotion = "grey"   // unknown, not enough data
)

// Clarity describes how well the user understands an area. Empty means unset.
type Clarity string

const (
	ClarityLow    Clarity = "low"
	ClarityMedium Clarity = "medium"
	ClarityHigh   Clarity = "high"
)

// Severity grades an issue signal on a node.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SeverityRank orders severities for max/threshold comparisons.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 0
	}
}

// Strength grades a connection.
type Strength string

const (
	StrengthLow    Strength = "low"
	StrengthMedium Strength = "medium"
	StrengthHigh   Strength = "high"
)

// StrengthRank orders strengths for threshold comparisons.
func StrengthRank(s Strength) int {
	switch s {
	case StrengthLow:
		return 1
	case StrengthMedium:
		return 2
	case StrengthHigh:
		return 3
	default:
		return 0
	}
}

// ConnectionType classifies an edge between two nodes.
type ConnectionType string

const (
	ConnDependency      ConnectionType = "dependency"
	ConnConflict        ConnectionType = "conflict"
	ConnSharedRootCause ConnectionType = "shared_root_cause"
)

// Field is one entry of the fixed life-area taxonomy. Fields are pre-seeded,
// never user-created.
type Field struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// KnownFields is the closed taxonomy of life areas.
var KnownFields = []Field{
	{ID: "startups", Label: "Startups"},
	{ID: "career", Label: "Career"},
	{ID: "education", Label: "Education"},
	{ID: "health", Label: "Health"},
	{ID: "mental_health", Label: "Mental Health"},
	{ID: "relationships", Label: "Relationships"},
	{ID: "money", Label: "Money"},
	{ID: "family", Label: "Family"},
	{ID: "personal_growth", Label: "Personal Growth"},
}

// IsKnownField reports whether id belongs to the fixed taxonomy.
func IsKnownField(id string) bool {
	for _, f := range KnownFields {
		if f.ID == id {
			return true
		}
	}
	return false
}

// FieldLabel returns the display label for a taxonomy id, or a titled
// fallback for resilience against old snapshots.
func FieldLabel(id string) string {
	for _, f := range KnownFields {
		if f.ID == id {
			return f.Label
		}
	}
	words := strings.Split(id, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Node is the single recursive entity of the graph: a project when ParentID
// is empty, a child node otherwise. Parent links must form a forest within
// one mind map.
type Node struct {
	ID              string   `json:"id"`
	ParentID        string   `json:"parent_id,omitempty"`
	Label           string   `json:"label"`
	Fields          []string `json:"fields,omitempty"`
	Emotion         Emotion  `json:"emotion"`
	Clarity         Clarity  `json:"clarity,omitempty"`
	IssueSeverity   Severity `json:"issue_severity"`
	Status          string   `json:"status"`
	ImportanceScore float64  `json:"importance_score"`
	IsCoreIssue     bool     `json:"is_core_issue"`
	Visible         bool     `json:"is_visible"`
}

// IsProject reports whether the node is a hierarchy root.
func (n *Node) IsProject() bool { return n.ParentID == "" }

// Connection is a typed edge between two nodes of the same mind map.
type Connection struct {
	Type        ConnectionType `json:"type"`
	FromID      string         `json:"from_id"`
	ToID        string         `json:"to_id"`
	Strength    Strength       `json:"strength"`
	RootCauseID string         `json:"root_cause_id,omitempty"`
}

// Key identifies a connection for supersede-on-reassert semantics.
func (c *Connection) Key() ConnectionKey {
	return ConnectionKey{From: c.FromID, To: c.ToID, Type: c.Type}
}

// ConnectionKey is the identity of a connection: endpoints plus type.
type ConnectionKey struct {
	From string
	To   string
	Type ConnectionType
}

// Graph is one mind map instance: the root metadata plus its node arena and
// connection list.
type Graph struct {
	ID           string       `json:"id"`
	MapName      string       `json:"map_name"`
	CentralTheme string       `json:"central_theme"`
	Fields       []Field      `json:"fields,omitempty"`
	Nodes        []Node       `json:"nodes,omitempty"`
	Connections  []Connection `json:"connections,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// NodeByID returns a pointer into the arena, or nil.
func (g *Graph) NodeByID(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// Projects returns the root nodes, visible ones first.
func (g *Graph) Projects() []*Node {
	var out []*Node
	for i := range g.Nodes {
		if g.Nodes[i].IsProject() {
			out = append(out, &g.Nodes[i])
		}
	}
	return out
}

// Children returns direct children of the node with the given id.
func (g *Graph) Children(id string) []*Node {
	var out []*Node
	for i := range g.Nodes {
		if g.Nodes[i].ParentID == id {
			out = append(out, &g.Nodes[i])
		}
	}
	return out
}

// RootOf walks parent links to the hierarchy root of the given node id.
// Assumes a validated (acyclic) graph.
func (g *Graph) RootOf(id string) string {
	seen := 0
	cur := id
	for seen <= len(g.Nodes) {
		n := g.NodeByID(cur)
		if n == nil || n.ParentID == "" {
			return cur
		}
		cur = n.ParentID
		seen++
	}
	return cur
}

// IsEmpty reports a degenerate graph (no nodes, or a single node).
func (g *Graph) IsEmpty() bool {
	return g == nil || len(g.Nodes) <= 1
}

// Clone returns a deep copy. Merge never mutates its inputs; callers keep the
// pre-turn graph for fallback.
func (g *Graph) Clone() *Graph {
	if g == nil {
		return nil
	}
	out := &Graph{
		ID:           g.ID,
		MapName:      g.MapName,
		CentralTheme: g.CentralTheme,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}
	out.Fields = append([]Field(nil), g.Fields...)
	out.Connections = append([]Connection(nil), g.Connections...)
	out.Nodes = make([]Node, len(g.Nodes))
	for i, n := range g.Nodes {
		cp := n
		cp.Fields = append([]string(nil), n.Fields...)
		out.Nodes[i] = cp
	}
	return out
}

// NormalizeLabel is the node-matching key: lowercase, trimmed, inner
// whitespace collapsed. The merge policy matches nodes on this key.
func NormalizeLabel(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), " ")
}
