package pipeline

import (
	"context"
	"strings"

	"github.com/clearity-app/clearity/internal/llm"
	"github.com/clearity-app/clearity/internal/store"
)

// Classification is the orchestrator's read of a user message.
type Classification struct {
	Emotion          string `json:"emotion"`
	EmotionIntensity string `json:"emotion_intensity"`
	UserIntent       string `json:"user_intent"`
	Summary          string `json:"summary"`
	SessionStage     string `json:"session_stage"`
}

// defaultClassification is the fallback when the provider cannot classify.
func defaultClassification() Classification {
	return Classification{
		Emotion:          "uncertainty",
		EmotionIntensity: "medium",
		UserIntent:       "understanding",
		SessionStage:     "early",
	}
}

// classify reads emotion, intensity and intent from the message. Returns the
// default classification and degraded=true when the provider fails.
func (o *Orchestrator) classify(ctx context.Context, message string, history []store.Message) (Classification, bool) {
	if o.provider == nil {
		return defaultClassification(), true
	}

	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, m := range history {
			b.WriteString(m.Role + ": " + m.Content + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Current message: " + message)

	var cls Classification
	err := o.provider.CompleteJSON(ctx, llm.Request{
		System:      o.prompts.Classifier,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
		Tier:        llm.TierFast,
		Temperature: 0.2,
		MaxTokens:   300,
		JSONMode:    true,
	}, &cls)
	if err != nil {
		o.recordProviderError("classify", err)
		return defaultClassification(), true
	}

	if cls.Emotion == "" {
		cls.Emotion = "uncertainty"
	}
	if cls.EmotionIntensity == "" {
		cls.EmotionIntensity = "medium"
	}
	if cls.UserIntent == "" {
		cls.UserIntent = "understanding"
	}
	if cls.SessionStage == "" {
		cls.SessionStage = "early"
	}
	return cls, false
}
