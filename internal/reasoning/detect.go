package reasoning

import (
	"fmt"
	"strings"

	"github.com/clearity-app/clearity/internal/mindmap"
)

// Detection thresholds: a node must carry at least medium severity, a
// conflict edge at least medium strength, to raise an issue on its own.
const (
	nodeSeverityThreshold  = mindmap.SeverityMedium
	conflictStrengthThresh = mindmap.StrengthMedium
)

// detectIssues scans the graph for issue signals without any provider help:
// conflict connections above the strength threshold and visible nodes above
// the severity threshold, grouped by their hierarchy root. Issue severity is
// the maximum among constituents.
func detectIssues(g *mindmap.Graph) []Issue {
	if g.IsEmpty() {
		return nil
	}

	var issues []Issue

	// Conflict edges: both endpoints pulled into one focus_conflict issue.
	for _, c := range g.Connections {
		if c.Type != mindmap.ConnConflict {
			continue
		}
		if mindmap.StrengthRank(c.Strength) < mindmap.StrengthRank(conflictStrengthThresh) {
			continue
		}
		from := g.NodeByID(c.FromID)
		to := g.NodeByID(c.ToID)
		if from == nil || to == nil {
			continue
		}
		sev := maxSeverity(strengthAsSeverity(c.Strength), from.IssueSeverity, to.IssueSeverity)
		issues = appendIssue(issues, Issue{
			Type:        "focus_conflict",
			Description: fmt.Sprintf("%s and %s pull in opposite directions", from.Label, to.Label),
			Severity:    sev,
			NodeIDs:     []string{from.ID, to.ID},
		})
	}

	// High-severity nodes, grouped per hierarchy root.
	byRoot := map[string][]*mindmap.Node{}
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if !n.Visible {
			continue
		}
		if mindmap.SeverityRank(n.IssueSeverity) < mindmap.SeverityRank(nodeSeverityThreshold) {
			continue
		}
		root := g.RootOf(n.ID)
		byRoot[root] = append(byRoot[root], n)
	}
	for rootID, nodes := range byRoot {
		root := g.NodeByID(rootID)
		label := rootID
		if root != nil {
			label = root.Label
		}
		sev := mindmap.SeverityNone
		ids := make([]string, 0, len(nodes))
		for _, n := range nodes {
			sev = maxSeverity(sev, n.IssueSeverity)
			ids = append(ids, n.ID)
		}
		issues = appendIssue(issues, Issue{
			Type:        slug(label) + "_pressure",
			Description: fmt.Sprintf("Several things under %q need attention", label),
			Severity:    sev,
			NodeIDs:     ids,
		})
	}

	return issues
}

// inferRootCauses groups issues that share a shared_root_cause connection or
// a common hierarchy root. An issue may link to multiple root causes.
func inferRootCauses(g *mindmap.Graph, issues []Issue) []RootCause {
	if len(issues) == 0 {
		return nil
	}

	// Issues touched by nodes on either side of a shared_root_cause edge
	// group under that edge's cause id.
	causes := map[string]*RootCause{}
	for _, c := range g.Connections {
		if c.Type != mindmap.ConnSharedRootCause {
			continue
		}
		causeID := c.RootCauseID
		if causeID == "" {
			causeID = "shared_pattern"
		}
		for i := range issues {
			if !issueTouches(&issues[i], c.FromID, c.ToID) {
				continue
			}
			rc, ok := causes[causeID]
			if !ok {
				rc = &RootCause{
					CauseID:     causeID,
					Explanation: "Multiple areas trace back to the same underlying pattern",
				}
				causes[causeID] = rc
			}
			if !containsString(rc.IssueTypes, issues[i].Type) {
				rc.IssueTypes = append(rc.IssueTypes, issues[i].Type)
			}
		}
	}

	// Structural grouping: issues whose nodes resolve to the same hierarchy
	// root point at one underlying area even without an explicit edge. Only a
	// root shared by at least two issues counts as a grouping signal.
	byRoot := map[string][]string{}
	for i := range issues {
		seen := map[string]bool{}
		for _, id := range issues[i].NodeIDs {
			root := g.RootOf(id)
			if root == "" || seen[root] {
				continue
			}
			seen[root] = true
			if !containsString(byRoot[root], issues[i].Type) {
				byRoot[root] = append(byRoot[root], issues[i].Type)
			}
		}
	}
	for rootID, types := range byRoot {
		if len(types) < 2 {
			continue
		}
		label := rootID
		if root := g.NodeByID(rootID); root != nil {
			label = root.Label
		}
		causeID := slug(label) + "_root"
		rc, ok := causes[causeID]
		if !ok {
			rc = &RootCause{
				CauseID:     causeID,
				Explanation: fmt.Sprintf("Several issues concentrate under %q", label),
			}
			causes[causeID] = rc
		}
		for _, ty := range types {
			if !containsString(rc.IssueTypes, ty) {
				rc.IssueTypes = append(rc.IssueTypes, ty)
			}
		}
	}

	out := make([]RootCause, 0, len(causes))
	for _, rc := range causes {
		out = append(out, *rc)
	}
	return out
}

func issueTouches(is *Issue, nodeIDs ...string) bool {
	for _, want := range nodeIDs {
		for _, have := range is.NodeIDs {
			if have == want {
				return true
			}
		}
	}
	return false
}

// appendIssue merges by type key, keeping max severity and the node union.
func appendIssue(issues []Issue, in Issue) []Issue {
	for i := range issues {
		if issues[i].Type != in.Type {
			continue
		}
		issues[i].Severity = maxSeverity(issues[i].Severity, in.Severity)
		for _, id := range in.NodeIDs {
			if !containsString(issues[i].NodeIDs, id) {
				issues[i].NodeIDs = append(issues[i].NodeIDs, id)
			}
		}
		return issues
	}
	return append(issues, in)
}

func maxSeverity(sevs ...mindmap.Severity) mindmap.Severity {
	out := mindmap.SeverityNone
	for _, s := range sevs {
		if mindmap.SeverityRank(s) > mindmap.SeverityRank(out) {
			out = s
		}
	}
	return out
}

func strengthAsSeverity(s mindmap.Strength) mindmap.Severity {
	switch s {
	case mindmap.StrengthHigh:
		return mindmap.SeverityHigh
	case mindmap.StrengthMedium:
		return mindmap.SeverityMedium
	default:
		return mindmap.SeverityLow
	}
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" {
		out = "area"
	}
	return out
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
