package mindmap

import (
	"github.com/clearity-app/clearity/internal/apperrors"
)

var validEmotions = map[Emotion]bool{
	EmotionRed: true, EmotionOrange: true, EmotionYellow: true,
	EmotionGreen: true, EmotionBlue: true, EmotionPurple: true, EmotionGrey: true,
}

var validClarities = map[Clarity]bool{
	"": true, ClarityLow: true, ClarityMedium: true, ClarityHigh: true,
}

var validSeverities = map[Severity]bool{
	SeverityNone: true, SeverityLow: true, SeverityMedium: true, SeverityHigh: true,
}

var validStrengths = map[Strength]bool{
	StrengthLow: true, StrengthMedium: true, StrengthHigh: true,
}

var validConnTypes = map[ConnectionType]bool{
	ConnDependency: true, ConnConflict: true, ConnSharedRootCause: true,
}

// Validate checks the graph invariants: parent links form a forest, every
// connection joins two distinct existing nodes, enum fields stay in their
// domains and scores stay in [0,1]. Any violation rejects the graph whole.
func Validate(g *Graph) error {
	if g == nil {
		return apperrors.NewInvariantError("forest", "graph is nil")
	}

	byID := make(map[string]*Node, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.ID == "" {
			return apperrors.NewInvariantError("forest", "node %q has empty id", n.Label)
		}
		if _, dup := byID[n.ID]; dup {
			return apperrors.NewInvariantError("forest", "duplicate node id %s", n.ID)
		}
		byID[n.ID] = n
	}

	for i := range g.Nodes {
		if err := validateNode(&g.Nodes[i], byID, len(g.Nodes)); err != nil {
			return err
		}
	}

	for i := range g.Connections {
		if err := validateConnection(&g.Connections[i], byID); err != nil {
			return err
		}
	}

	return nil
}

func validateNode(n *Node, byID map[string]*Node, total int) error {
	if !validEmotions[n.Emotion] {
		return apperrors.NewInvariantError("enum", "node %s: unknown emotion %q", n.ID, n.Emotion)
	}
	if !validClarities[n.Clarity] {
		return apperrors.NewInvariantError("enum", "node %s: unknown clarity %q", n.ID, n.Clarity)
	}
	if !validSeverities[n.IssueSeverity] {
		return apperrors.NewInvariantError("enum", "node %s: unknown issue severity %q", n.ID, n.IssueSeverity)
	}
	if n.ImportanceScore < 0 || n.ImportanceScore > 1 {
		return apperrors.NewInvariantError("range", "node %s: importance_score %v outside [0,1]", n.ID, n.ImportanceScore)
	}
	for _, f := range n.Fields {
		if !IsKnownField(f) {
			return apperrors.NewInvariantError("enum", "node %s: unknown field %q", n.ID, f)
		}
	}

	// Forest property: following parent links must terminate at a root within
	// len(nodes) steps, without leaving the graph.
	steps := 0
	cur := n
	for cur.ParentID != "" {
		parent, ok := byID[cur.ParentID]
		if !ok {
			return apperrors.NewInvariantError("forest", "node %s: parent %s not in graph", cur.ID, cur.ParentID)
		}
		steps++
		if steps > total {
			return apperrors.NewInvariantError("forest", "node %s: parent chain contains a cycle", n.ID)
		}
		cur = parent
	}
	return nil
}

func validateConnection(c *Connection, byID map[string]*Node) error {
	if !validConnTypes[c.Type] {
		return apperrors.NewInvariantError("enum", "connection %s->%s: unknown type %q", c.FromID, c.ToID, c.Type)
	}
	if !validStrengths[c.Strength] {
		return apperrors.NewInvariantError("enum", "connection %s->%s: unknown strength %q", c.FromID, c.ToID, c.Strength)
	}
	if c.FromID == c.ToID {
		return apperrors.NewInvariantError("endpoint", "connection is a self-loop on %s", c.FromID)
	}
	if _, ok := byID[c.FromID]; !ok {
		return apperrors.NewInvariantError("endpoint", "connection from %s: endpoint not in graph", c.FromID)
	}
	if _, ok := byID[c.ToID]; !ok {
		return apperrors.NewInvariantError("endpoint", "connection to %s: endpoint not in graph", c.ToID)
	}
	return nil
}
