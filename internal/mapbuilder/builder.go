// Package mapbuilder turns a user message into a mind-map delta via the
// reasoning provider and merges it onto the session's graph.
package mapbuilder

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clearity-app/clearity/internal/apperrors"
	"github.com/clearity-app/clearity/internal/llm"
	"github.com/clearity-app/clearity/internal/mindmap"
	"github.com/clearity-app/clearity/internal/prompts"
)

// Input is the turn context the builder works from.
type Input struct {
	UserMessage string
	Emotion     string
	Intensity   string
	Summary     string
	Memories    string
}

// Builder drives the map-building stage.
type Builder struct {
	provider llm.Provider
	prompts  *prompts.Prompts
	logger   zerolog.Logger
}

// New creates a builder.
func New(provider llm.Provider, p *prompts.Prompts, logger zerolog.Logger) *Builder {
	if p == nil {
		p = prompts.Default()
	}
	return &Builder{
		provider: provider,
		prompts:  p,
		logger:   logger.With().Str("component", "mapbuilder").Logger(),
	}
}

// wire types for the provider's map schema. Projects nest their nodes one
// level deep; the flat graph model is produced during conversion.
type wireMap struct {
	MapName      string          `json:"map_name"`
	CentralTheme string          `json:"central_theme"`
	Fields       []wireField     `json:"fields"`
	Projects     []wireProject   `json:"projects"`
	Connections  []wireConnection `json:"connections"`
}

type wireField struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type wireProject struct {
	ID              string     `json:"id"`
	Label           string     `json:"label"`
	Fields          []string   `json:"fields"`
	Emotion         string     `json:"emotion"`
	Clarity         string     `json:"clarity"`
	IssueSeverity   string     `json:"issue_severity"`
	Status          string     `json:"status"`
	ImportanceScore float64    `json:"importance_score"`
	Nodes           []wireNode `json:"nodes"`
}

type wireNode struct {
	ID              string   `json:"id"`
	Label           string   `json:"label"`
	Emotion         string   `json:"emotion"`
	ImportanceScore float64  `json:"importance_score"`
	IsCoreIssue     bool     `json:"is_core_issue"`
	IsVisible       *bool    `json:"is_visible"`
	IssueSeverity   string   `json:"issue_severity"`
	Clarity         string   `json:"clarity"`
	Fields          []string `json:"fields"`
}

type wireConnection struct {
	Type        string `json:"type"`
	FromID      string `json:"from_id"`
	ToID        string `json:"to_id"`
	Strength    string `json:"strength"`
	RootCauseID string `json:"root_cause_id"`
}

// BuildOrUpdate asks the provider for a map delta and merges it onto prior.
// Provider and schema failures come back as errors; the caller keeps prior
// and continues the turn degraded. prior may be nil on a first turn.
func (b *Builder) BuildOrUpdate(ctx context.Context, prior *mindmap.Graph, in Input) (*mindmap.Graph, error) {
	if b.provider == nil {
		return nil, apperrors.NewProviderError(apperrors.ProviderUpstreamFailure, 0, "no provider configured")
	}

	var wire wireMap
	err := b.provider.CompleteJSON(ctx, llm.Request{
		System:      b.prompts.MapBuilder,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: b.userPrompt(prior, in)}},
		Tier:        llm.TierFast,
		Temperature: 0.4,
		MaxTokens:   2500,
		JSONMode:    true,
	}, &wire)
	if err != nil {
		return nil, err
	}

	delta, err := b.toDelta(prior, &wire)
	if err != nil {
		return nil, err
	}

	merged := mindmap.Merge(prior, delta)
	if err := mindmap.Validate(merged); err != nil {
		return nil, apperrors.NewSchemaError("map_builder", "merged graph invalid", err)
	}
	return merged, nil
}

func (b *Builder) userPrompt(prior *mindmap.Graph, in Input) string {
	var parts []string
	parts = append(parts, "User message: "+in.UserMessage)
	if in.Emotion != "" {
		parts = append(parts, fmt.Sprintf("Detected emotion: %s (intensity: %s)", in.Emotion, in.Intensity))
	}
	if in.Summary != "" {
		parts = append(parts, "Situation: "+in.Summary)
	}
	if in.Memories != "" {
		parts = append(parts, in.Memories)
	}
	if prior != nil && !prior.IsEmpty() {
		parts = append(parts, fmt.Sprintf(
			"Existing map %q already has these projects (reuse their ids where they still apply): %s",
			prior.MapName, strings.Join(projectSummaries(prior), "; ")))
	}
	parts = append(parts, "Update the mind map. Return ONLY JSON.")
	return strings.Join(parts, "\n\n")
}

func projectSummaries(g *mindmap.Graph) []string {
	var out []string
	for _, p := range g.Projects() {
		if !p.Visible {
			continue
		}
		var childLabels []string
		for _, c := range g.Children(p.ID) {
			if c.Visible {
				childLabels = append(childLabels, c.Label)
			}
		}
		s := fmt.Sprintf("%s (id=%s", p.Label, p.ID)
		if len(childLabels) > 0 {
			s += ", nodes: " + strings.Join(childLabels, ", ")
		}
		out = append(out, s+")")
	}
	return out
}

// toDelta flattens the wire shape into a graph delta. Provider-invented ids
// are replaced with fresh uuids unless they reference a node that already
// exists; connection endpoints follow the remap.
func (b *Builder) toDelta(prior *mindmap.Graph, wire *wireMap) (*mindmap.Graph, error) {
	if wire.MapName == "" && len(wire.Projects) == 0 {
		return nil, apperrors.NewSchemaError("map_builder", "empty map output", nil)
	}

	delta := &mindmap.Graph{
		MapName:      wire.MapName,
		CentralTheme: wire.CentralTheme,
	}
	for _, f := range wire.Fields {
		if mindmap.IsKnownField(f.ID) {
			delta.Fields = append(delta.Fields, mindmap.Field{ID: f.ID, Label: mindmap.FieldLabel(f.ID)})
		}
	}

	// A provisional id is kept only when it names a prior node with the same
	// label; anything else gets a fresh uuid so reused short ids can never
	// collide with existing nodes.
	idMap := map[string]string{}
	resolve := func(provisional, label string) string {
		if provisional != "" {
			if mapped, ok := idMap[provisional]; ok {
				return mapped
			}
			if prior != nil {
				if n := prior.NodeByID(provisional); n != nil &&
					mindmap.NormalizeLabel(n.Label) == mindmap.NormalizeLabel(label) {
					idMap[provisional] = provisional
					return provisional
				}
			}
		}
		id := uuid.New().String()
		if provisional != "" {
			idMap[provisional] = id
		}
		return id
	}

	for _, p := range wire.Projects {
		if strings.TrimSpace(p.Label) == "" {
			return nil, apperrors.NewSchemaError("map_builder", "project with empty label", nil)
		}
		projectID := resolve(p.ID, p.Label)
		delta.Nodes = append(delta.Nodes, mindmap.Node{
			ID:              projectID,
			Label:           p.Label,
			Fields:          knownFieldsOnly(p.Fields),
			Emotion:         parseEmotion(p.Emotion),
			Clarity:         mindmap.Clarity(p.Clarity),
			IssueSeverity:   parseSeverity(p.IssueSeverity),
			Status:          defaultStatus(p.Status),
			ImportanceScore: clampScore(p.ImportanceScore),
			Visible:         true,
		})
		for _, n := range p.Nodes {
			if strings.TrimSpace(n.Label) == "" {
				continue
			}
			visible := true
			if n.IsVisible != nil {
				visible = *n.IsVisible
			}
			delta.Nodes = append(delta.Nodes, mindmap.Node{
				ID:              resolve(n.ID, n.Label),
				ParentID:        projectID,
				Label:           n.Label,
				Fields:          knownFieldsOnly(n.Fields),
				Emotion:         parseEmotion(n.Emotion),
				Clarity:         mindmap.Clarity(n.Clarity),
				IssueSeverity:   parseSeverity(n.IssueSeverity),
				Status:          "active",
				ImportanceScore: clampScore(n.ImportanceScore),
				IsCoreIssue:     n.IsCoreIssue,
				Visible:         visible,
			})
		}
	}

	for _, c := range wire.Connections {
		from, okFrom := idMap[c.FromID]
		to, okTo := idMap[c.ToID]
		if !okFrom {
			from = c.FromID
		}
		if !okTo {
			to = c.ToID
		}
		if from == "" || to == "" || from == to {
			continue
		}
		delta.Connections = append(delta.Connections, mindmap.Connection{
			Type:        mindmap.ConnectionType(c.Type),
			FromID:      from,
			ToID:        to,
			Strength:    defaultStrength(c.Strength),
			RootCauseID: c.RootCauseID,
		})
	}

	return delta, nil
}

func knownFieldsOnly(ids []string) []string {
	var out []string
	for _, id := range ids {
		if mindmap.IsKnownField(id) {
			out = append(out, id)
		}
	}
	return out
}

func parseEmotion(s string) mindmap.Emotion {
	switch e := mindmap.Emotion(strings.ToLower(s)); e {
	case mindmap.EmotionRed, mindmap.EmotionOrange, mindmap.EmotionYellow,
		mindmap.EmotionGreen, mindmap.EmotionBlue, mindmap.EmotionPurple:
		return e
	default:
		return mindmap.EmotionGrey
	}
}

func parseSeverity(s string) mindmap.Severity {
	switch sev := mindmap.Severity(strings.ToLower(s)); sev {
	case mindmap.SeverityLow, mindmap.SeverityMedium, mindmap.SeverityHigh:
		return sev
	default:
		return mindmap.SeverityNone
	}
}

func defaultStatus(s string) string {
	if s == "" {
		return "active"
	}
	return s
}

func defaultStrength(s string) mindmap.Strength {
	switch st := mindmap.Strength(strings.ToLower(s)); st {
	case mindmap.StrengthLow, mindmap.StrengthHigh:
		return st
	default:
		return mindmap.StrengthMedium
	}
}

func clampScore(v float64) float64 {
	if v <= 0 {
		return 0.5
	}
	if v > 1 {
		return 1
	}
	return v
}
