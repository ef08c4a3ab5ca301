// Package llm defines the reasoning provider interface and its OpenRouter
// implementation. The pipeline never depends on provider wire shapes beyond
// this contract.
package llm

import (
	"context"
)

// Role constants for Message.Role.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single turn in a provider conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tier selects the model class for a call.
type Tier string

const (
	TierFast Tier = "fast" // cheap model: classification, map building, replies
	TierDeep Tier = "deep" // stronger model: issue and root-cause reasoning
)

// Request is the input to a provider call.
type Request struct {
	Messages    []Message
	System      string
	Tier        Tier
	Temperature float64
	MaxTokens   int
	JSONMode    bool // ask for a JSON object response
}

// Response is the provider's completion.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Provider is the reasoning provider abstraction. Every call carries a
// timeout through ctx; failures come back as *apperrors.ProviderError.
type Provider interface {
	// Complete sends a completion request and waits for the full response.
	Complete(ctx context.Context, req Request) (*Response, error)

	// CompleteJSON sends a JSON-mode request and unmarshals the response
	// into out. Unparseable output is a malformed_output provider error.
	CompleteJSON(ctx context.Context, req Request, out any) error
}
