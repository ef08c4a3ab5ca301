package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/clearity-app/clearity/internal/llm"
	"github.com/clearity-app/clearity/internal/mindmap"
	"github.com/clearity-app/clearity/internal/reasoning"
	"github.com/clearity-app/clearity/internal/store"
)

// fallbackReply acknowledges the message when the provider cannot compose a
// real reply. The turn still lands; the graph and tasks carry the substance.
const fallbackReply = "I hear you. I've noted what you shared and I'm keeping track of it. " +
	"Tell me more whenever you're ready, and we'll untangle it piece by piece."

// composeReply asks the provider for the user-facing reply. Returns the
// acknowledgment fallback and degraded=true when the provider fails.
func (o *Orchestrator) composeReply(ctx context.Context, message string, cls Classification,
	g *mindmap.Graph, a *reasoning.Analysis, memories string, history []store.Message) (string, bool) {

	if o.provider == nil {
		return fallbackReply, true
	}

	msgs := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == llm.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: message})

	resp, err := o.provider.Complete(ctx, llm.Request{
		System:      o.prompts.Orchestrator + "\n\n" + replyContext(cls, g, a, memories),
		Messages:    msgs,
		Tier:        llm.TierFast,
		Temperature: 0.7,
		MaxTokens:   600,
	})
	if err != nil {
		o.recordProviderError("reply", err)
		return fallbackReply, true
	}
	return strings.TrimSpace(resp.Text), false
}

// replyContext renders the internal state the reply should draw on, paced
// down to one insight, one focus and at most a couple of actions.
func replyContext(cls Classification, g *mindmap.Graph, a *reasoning.Analysis, memories string) string {
	var b strings.Builder
	b.WriteString("Internal context for this turn (never quote verbatim):\n")
	fmt.Fprintf(&b, "- Emotion: %s (%s), intent: %s\n", cls.Emotion, cls.EmotionIntensity, cls.UserIntent)
	if cls.Summary != "" {
		fmt.Fprintf(&b, "- Situation: %s\n", cls.Summary)
	}
	if memories != "" {
		b.WriteString("- " + strings.ReplaceAll(strings.TrimSpace(memories), "\n", "\n  ") + "\n")
	}
	if g != nil && !g.IsEmpty() {
		var labels []string
		for _, p := range g.Projects() {
			if p.Visible {
				labels = append(labels, p.Label)
			}
		}
		fmt.Fprintf(&b, "- Mind map %q covers: %s\n", g.MapName, strings.Join(labels, ", "))
	}
	if a != nil {
		if a.SuggestedFocus != "" {
			fmt.Fprintf(&b, "- Suggested focus: %s\n", a.SuggestedFocus)
		}
		if a.SuggestedStep != "" {
			fmt.Fprintf(&b, "- Suggested next step: %s\n", a.SuggestedStep)
		}
		for i, t := range a.Tasks {
			if i >= 2 {
				break
			}
			fmt.Fprintf(&b, "- Candidate micro-task: %s (~%d min, done when: %s)\n",
				t.Name, t.EstimatedTimeMin, t.KPI)
		}
	}
	return b.String()
}
