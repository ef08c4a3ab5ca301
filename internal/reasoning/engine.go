package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clearity-app/clearity/internal/llm"
	"github.com/clearity-app/clearity/internal/mindmap"
	"github.com/clearity-app/clearity/internal/prompts"
)

// Config tunes the engine.
type Config struct {
	MaxTasksPerTurn int
}

// Signal carries the turn context the engine reasons against.
type Signal struct {
	UserMessage string
	Emotion     string
	Intensity   string
	Summary     string
}

// Engine is the reasoning and action engine: issue detection, root cause
// inference, plan drafting and task synthesis.
type Engine struct {
	provider llm.Provider
	prompts  *prompts.Prompts
	cfg      Config
	logger   zerolog.Logger
}

// NewEngine creates an engine. provider may be nil; analysis then relies on
// graph-scan detection and heuristic task synthesis only.
func NewEngine(provider llm.Provider, p *prompts.Prompts, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.MaxTasksPerTurn <= 0 {
		cfg.MaxTasksPerTurn = 5
	}
	if p == nil {
		p = prompts.Default()
	}
	return &Engine{
		provider: provider,
		prompts:  p,
		cfg:      cfg,
		logger:   logger.With().Str("component", "reasoning").Logger(),
	}
}

// Analyze inspects the graph and produces issues, root causes, plans and
// ranked tasks. Degenerate graphs yield an empty analysis. Provider failures
// degrade to the deterministic heuristic path; Analyze itself only errors on
// context cancellation.
func (e *Engine) Analyze(ctx context.Context, g *mindmap.Graph, sig Signal) (*Analysis, error) {
	if g.IsEmpty() {
		return Empty(), nil
	}

	detected := detectIssues(g)

	var out *Analysis
	if e.provider != nil {
		llmOut, err := e.analyzeWithProvider(ctx, g, sig)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn().Err(err).Msg("provider analysis failed, using heuristic fallback")
			out = e.heuristicAnalysis(g, detected)
		} else {
			out = e.reconcile(llmOut, detected)
		}
	} else {
		out = e.heuristicAnalysis(g, detected)
	}

	e.finalize(g, out)
	return out, nil
}

// wire types for the provider's JSON schema.
type llmAnalysis struct {
	Issues []struct {
		ID          string   `json:"id"`
		Description string   `json:"description"`
		Projects    []string `json:"projects"`
		Severity    string   `json:"severity"`
	} `json:"issues"`
	RootCauses []struct {
		ID           string   `json:"id"`
		Explanation  string   `json:"short_explanation"`
		LinkedIssues []string `json:"linked_issues"`
	} `json:"root_causes"`
	Plans []struct {
		IssueID string   `json:"issue_id"`
		Steps   []string `json:"steps"`
	} `json:"plans"`
	Tasks []struct {
		Name             string   `json:"name"`
		RelatedIssue     string   `json:"related_issue"`
		RelatedProjects  []string `json:"related_projects"`
		PriorityScore    float64  `json:"priority_score"`
		KPI              string   `json:"kpi"`
		Subtasks         []string `json:"subtasks"`
		EstimatedTimeMin int      `json:"estimated_time_min"`
		ContextHint      string   `json:"context_hint"`
	} `json:"tasks"`
	SuggestedFocus string `json:"suggested_issue_to_focus_now"`
	SuggestedStep  string `json:"suggested_step_now"`
}

func (e *Engine) analyzeWithProvider(ctx context.Context, g *mindmap.Graph, sig Signal) (*llmAnalysis, error) {
	graphJSON, err := json.Marshal(graphSummary(g))
	if err != nil {
		return nil, fmt.Errorf("marshal graph: %w", err)
	}

	var parts []string
	parts = append(parts, "User message: "+sig.UserMessage)
	parts = append(parts, fmt.Sprintf("\nMind map %q (%s):", g.MapName, g.CentralTheme))
	parts = append(parts, string(graphJSON))
	if sig.Emotion != "" {
		parts = append(parts, fmt.Sprintf("\nUser emotion: %s (intensity: %s)", sig.Emotion, sig.Intensity))
	}
	if sig.Summary != "" {
		parts = append(parts, "Context: "+sig.Summary)
	}
	if sig.Intensity == "high" {
		parts = append(parts, "\nNote: User is highly overwhelmed. Tasks should be extra small and safe.")
	}
	parts = append(parts, "\nAnalyze what's wrong, why, and generate concrete tasks. Return ONLY JSON.")

	var out llmAnalysis
	err = e.provider.CompleteJSON(ctx, llm.Request{
		System:      e.prompts.Reasoning,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: strings.Join(parts, "\n")}},
		Tier:        llm.TierDeep,
		Temperature: 0.6,
		MaxTokens:   3000,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// reconcile converts provider output into the engine's model, unioned with
// the deterministically detected issues so a provider that under-reports
// never hides a strong graph signal.
func (e *Engine) reconcile(in *llmAnalysis, detected []Issue) *Analysis {
	out := Empty()

	for _, is := range in.Issues {
		if is.ID == "" {
			continue
		}
		out.Issues = appendIssue(out.Issues, Issue{
			Type:        is.ID,
			Description: is.Description,
			Severity:    parseSeverity(is.Severity),
		})
	}
	for _, d := range detected {
		out.Issues = appendIssue(out.Issues, d)
	}

	for _, rc := range in.RootCauses {
		if rc.ID == "" {
			continue
		}
		out.RootCauses = append(out.RootCauses, RootCause{
			CauseID:     rc.ID,
			Explanation: rc.Explanation,
			IssueTypes:  rc.LinkedIssues,
		})
	}

	seenPlan := map[string]bool{}
	for _, p := range in.Plans {
		// An issue may hold at most one plan.
		if p.IssueID == "" || seenPlan[p.IssueID] || len(p.Steps) == 0 {
			continue
		}
		seenPlan[p.IssueID] = true
		out.Plans = append(out.Plans, Plan{IssueType: p.IssueID, Steps: p.Steps})
	}

	for _, t := range in.Tasks {
		if t.Name == "" {
			continue
		}
		out.Tasks = append(out.Tasks, Task{
			ID:               uuid.New().String(),
			Name:             t.Name,
			RelatedIssue:     t.RelatedIssue,
			KPI:              t.KPI,
			Subtasks:         t.Subtasks,
			EstimatedTimeMin: t.EstimatedTimeMin,
			ContextHint:      t.ContextHint,
			Status:           TaskPending,
		})
	}

	out.SuggestedFocus = in.SuggestedFocus
	out.SuggestedStep = in.SuggestedStep
	return out
}

// heuristicAnalysis is the provider-free path: detected issues, root causes
// from graph structure, template plans, one starter task per issue.
func (e *Engine) heuristicAnalysis(g *mindmap.Graph, detected []Issue) *Analysis {
	out := Empty()
	out.Issues = detected
	out.RootCauses = inferRootCauses(g, detected)

	for _, is := range detected {
		out.Plans = append(out.Plans, Plan{
			IssueType: is.Type,
			Steps: []string{
				"Write down what is actually at stake here",
				"Pick the single smallest piece you can act on",
				"Decide what done looks like for that piece",
			},
		})
		label := is.Type
		if n := firstNodeLabel(g, is.NodeIDs); n != "" {
			label = n
		}
		out.Tasks = append(out.Tasks, Task{
			ID:           uuid.New().String(),
			Name:         fmt.Sprintf("List what is weighing on %s", label),
			RelatedIssue: is.Type,
			NodeIDs:      is.NodeIDs,
			KPI:          "You have written at least 5 bullet points",
			Subtasks: []string{
				"Set a 10 minute timer",
				"Write every open question, no filtering",
				"Mark the one that bothers you most",
			},
			EstimatedTimeMin: 15,
			ContextHint:      "Quiet space, no phone",
			Status:           TaskPending,
		})
	}

	if len(detected) > 0 {
		out.SuggestedFocus = detected[0].Type
		out.SuggestedStep = "Start with the smallest concrete piece of the most severe issue"
	}
	return out
}

// finalize recomputes priorities from the scoring policy, links tasks to
// nodes, caps and ranks. Provider-supplied scores are advisory only; the
// policy keeps the severity monotonicity contract.
func (e *Engine) finalize(g *mindmap.Graph, a *Analysis) {
	for i := range a.Tasks {
		t := &a.Tasks[i]
		sev := mindmap.SeverityNone
		if is := a.IssueByType(t.RelatedIssue); is != nil {
			sev = is.Severity
			if len(t.NodeIDs) == 0 {
				t.NodeIDs = append([]string(nil), is.NodeIDs...)
			}
		}
		importance := nodeImportance(g, t.NodeIDs)
		t.PriorityScore = PriorityScore(sev, importance, t.EstimatedTimeMin)
		if t.EstimatedTimeMin <= 0 {
			t.EstimatedTimeMin = defaultTaskMin
		}
		if t.Status == "" {
			t.Status = TaskPending
		}
	}
	a.Tasks = rankTasks(a.Tasks, e.cfg.MaxTasksPerTurn)

	if a.SuggestedFocus == "" && len(a.Issues) > 0 {
		focus := a.Issues[0]
		for _, is := range a.Issues[1:] {
			if mindmap.SeverityRank(is.Severity) > mindmap.SeverityRank(focus.Severity) {
				focus = is
			}
		}
		a.SuggestedFocus = focus.Type
	}
}

// nodeImportance is the max importance among the task's nodes, defaulting to
// the midpoint when the task is not anchored to any node.
func nodeImportance(g *mindmap.Graph, nodeIDs []string) float64 {
	best := -1.0
	for _, id := range nodeIDs {
		if n := g.NodeByID(id); n != nil && n.ImportanceScore > best {
			best = n.ImportanceScore
		}
	}
	if best < 0 {
		return 0.5
	}
	return best
}

func firstNodeLabel(g *mindmap.Graph, ids []string) string {
	for _, id := range ids {
		if n := g.NodeByID(id); n != nil {
			return n.Label
		}
	}
	return ""
}

func parseSeverity(s string) mindmap.Severity {
	switch mindmap.Severity(strings.ToLower(s)) {
	case mindmap.SeverityLow:
		return mindmap.SeverityLow
	case mindmap.SeverityMedium:
		return mindmap.SeverityMedium
	case mindmap.SeverityHigh:
		return mindmap.SeverityHigh
	default:
		return mindmap.SeverityMedium
	}
}

// graphSummary is the compact projection sent to the provider: visible nodes
// and connections only, no timestamps.
func graphSummary(g *mindmap.Graph) map[string]any {
	type nodeView struct {
		ID         string  `json:"id"`
		ParentID   string  `json:"parent_id,omitempty"`
		Label      string  `json:"label"`
		Emotion    string  `json:"emotion"`
		Severity   string  `json:"issue_severity"`
		Importance float64 `json:"importance_score"`
		CoreIssue  bool    `json:"is_core_issue,omitempty"`
	}
	var nodes []nodeView
	for _, n := range g.Nodes {
		if !n.Visible {
			continue
		}
		nodes = append(nodes, nodeView{
			ID:         n.ID,
			ParentID:   n.ParentID,
			Label:      n.Label,
			Emotion:    string(n.Emotion),
			Severity:   string(n.IssueSeverity),
			Importance: n.ImportanceScore,
			CoreIssue:  n.IsCoreIssue,
		})
	}
	return map[string]any{
		"nodes":       nodes,
		"connections": g.Connections,
	}
}
