package mindmap

import "time"

// Merge applies a partial graph produced by the map builder onto an existing
// graph and returns the result. Pure and deterministic; neither input is
// mutated.
//
// Policy:
//   - Incoming nodes are matched by normalized label against existing visible
//     nodes, preferring a match under the same parent subtree, then falling
//     back to a map-wide match. A match updates emotion, clarity, severity,
//     importance, status, core-issue flag and visibility in place
//     (last-write-wins per field); no duplicate node is created.
//   - Unmatched incoming nodes are appended (new project when no parent is
//     indicated, new child node otherwise).
//   - Connections are additive: an existing connection is never deleted, only
//     superseded in strength when re-asserted with the same (from, to, type).
//   - Visibility false is a soft delete. History stays reconstructable.
//
// Merging an empty delta returns the existing graph unchanged.
func Merge(existing, delta *Graph) *Graph {
	if existing == nil {
		out := delta.Clone()
		if out != nil {
			out.UpdatedAt = now()
		}
		return out
	}
	out := existing.Clone()
	if delta == nil || (len(delta.Nodes) == 0 && len(delta.Connections) == 0 &&
		delta.CentralTheme == "" && len(delta.Fields) == 0) {
		return out
	}

	// map_name never changes once set; central_theme may be refined.
	if out.MapName == "" {
		out.MapName = delta.MapName
	}
	if delta.CentralTheme != "" {
		out.CentralTheme = delta.CentralTheme
	}
	mergeFields(out, delta.Fields)

	// incoming id -> id in the merged graph, so delta connections that
	// reference incoming nodes land on the right endpoints.
	idMap := make(map[string]string, len(delta.Nodes))

	for i := range delta.Nodes {
		in := &delta.Nodes[i]
		parentID := resolveParent(in.ParentID, idMap)
		if match := matchNode(out, in.Label, parentID); match != nil {
			updateNode(match, in)
			idMap[in.ID] = match.ID
			continue
		}
		appended := *in
		appended.ParentID = parentID
		appended.Fields = append([]string(nil), in.Fields...)
		out.Nodes = append(out.Nodes, appended)
		idMap[in.ID] = appended.ID
	}

	for _, c := range delta.Connections {
		merged := c
		if mapped, ok := idMap[c.FromID]; ok {
			merged.FromID = mapped
		}
		if mapped, ok := idMap[c.ToID]; ok {
			merged.ToID = mapped
		}
		if merged.FromID == merged.ToID {
			continue
		}
		upsertConnection(out, merged)
	}

	out.UpdatedAt = now()
	return out
}

// now is a package variable so merge tests stay deterministic.
var now = time.Now

func resolveParent(parentID string, idMap map[string]string) string {
	if parentID == "" {
		return ""
	}
	if mapped, ok := idMap[parentID]; ok {
		return mapped
	}
	return parentID
}

// matchNode finds an existing visible node for an incoming label. Subtree
// scope first: a node under the same parent wins over a map-wide match.
func matchNode(g *Graph, label, parentID string) *Node {
	key := NormalizeLabel(label)
	if key == "" {
		return nil
	}

	var anywhere *Node
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if !n.Visible || NormalizeLabel(n.Label) != key {
			continue
		}
		if n.ParentID == parentID {
			return n
		}
		if anywhere == nil {
			anywhere = n
		}
	}
	return anywhere
}

func updateNode(dst *Node, src *Node) {
	if src.Emotion != "" {
		dst.Emotion = src.Emotion
	}
	if src.Clarity != "" {
		dst.Clarity = src.Clarity
	}
	if src.IssueSeverity != "" {
		dst.IssueSeverity = src.IssueSeverity
	}
	if src.Status != "" {
		dst.Status = src.Status
	}
	if src.ImportanceScore > 0 {
		dst.ImportanceScore = src.ImportanceScore
	}
	dst.IsCoreIssue = src.IsCoreIssue
	dst.Visible = src.Visible
	for _, f := range src.Fields {
		if !containsString(dst.Fields, f) {
			dst.Fields = append(dst.Fields, f)
		}
	}
}

func mergeFields(g *Graph, incoming []Field) {
	for _, f := range incoming {
		found := false
		for _, have := range g.Fields {
			if have.ID == f.ID {
				found = true
				break
			}
		}
		if !found {
			g.Fields = append(g.Fields, f)
		}
	}
}

func upsertConnection(g *Graph, c Connection) {
	key := c.Key()
	for i := range g.Connections {
		if g.Connections[i].Key() == key {
			g.Connections[i].Strength = c.Strength
			if c.RootCauseID != "" {
				g.Connections[i].RootCauseID = c.RootCauseID
			}
			return
		}
	}
	g.Connections = append(g.Connections, c)
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
