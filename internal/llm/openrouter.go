package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clearity-app/clearity/internal/apperrors"
	"github.com/clearity-app/clearity/internal/retry"
)

const (
	defaultBaseURL   = "https://openrouter.ai/api/v1"
	defaultMaxTokens = 2000
	refererHeader    = "https://clearity.app"
	titleHeader      = "Clearity"
)

// OpenRouterProvider implements Provider against an OpenRouter-compatible
// chat completions API.
type OpenRouterProvider struct {
	apiKey    string
	baseURL   string
	fastModel string
	deepModel string
	timeout   time.Duration
	client    *http.Client
	retryCfg  retry.Config
	logger    zerolog.Logger
}

// OpenRouterOption configures the provider.
type OpenRouterOption func(*OpenRouterProvider)

func WithBaseURL(u string) OpenRouterOption {
	return func(p *OpenRouterProvider) { p.baseURL = strings.TrimRight(u, "/") }
}

func WithModels(fast, deep string) OpenRouterOption {
	return func(p *OpenRouterProvider) { p.fastModel, p.deepModel = fast, deep }
}

func WithTimeout(d time.Duration) OpenRouterOption {
	return func(p *OpenRouterProvider) { p.timeout = d }
}

func WithHTTPClient(c *http.Client) OpenRouterOption {
	return func(p *OpenRouterProvider) { p.client = c }
}

func WithRetry(cfg retry.Config) OpenRouterOption {
	return func(p *OpenRouterProvider) { p.retryCfg = cfg }
}

func WithLogger(l zerolog.Logger) OpenRouterOption {
	return func(p *OpenRouterProvider) { p.logger = l.With().Str("component", "llm").Logger() }
}

// NewOpenRouterProvider constructs a provider client.
func NewOpenRouterProvider(apiKey string, opts ...OpenRouterOption) *OpenRouterProvider {
	p := &OpenRouterProvider{
		apiKey:    apiKey,
		baseURL:   defaultBaseURL,
		fastModel: "openai/gpt-4o-mini",
		deepModel: "openai/gpt-4o",
		timeout:   60 * time.Second,
		client:    &http.Client{},
		retryCfg:  retry.DefaultConfig(),
		logger:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ---- OpenRouter wire types ----

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *OpenRouterProvider) model(tier Tier) string {
	if tier == TierDeep {
		return p.deepModel
	}
	return p.fastModel
}

// Complete sends a blocking completion request with one bounded retry on
// transient failures.
func (p *OpenRouterProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	var out *Response
	err := retry.Do(ctx, p.retryCfg, func(ctx context.Context) error {
		resp, err := p.doComplete(ctx, req)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	return out, err
}

func (p *OpenRouterProvider) doComplete(ctx context.Context, req Request) (*Response, error) {
	cr := chatRequest{
		Model:       p.model(req.Tier),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if cr.MaxTokens == 0 {
		cr.MaxTokens = defaultMaxTokens
	}
	if req.System != "" {
		cr.Messages = append(cr.Messages, Message{Role: RoleSystem, Content: req.System})
	}
	cr.Messages = append(cr.Messages, req.Messages...)
	if req.JSONMode {
		cr.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(cr)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("HTTP-Referer", refererHeader)
	httpReq.Header.Set("X-Title", titleHeader)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			return nil, &apperrors.ProviderError{Kind: apperrors.ProviderTimeout, Message: "provider call timed out", Err: err}
		}
		return nil, &apperrors.ProviderError{Kind: apperrors.ProviderUpstreamFailure, Message: "provider unreachable", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperrors.ProviderError{Kind: apperrors.ProviderUpstreamFailure, Message: "read body", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		kind := apperrors.ProviderUpstreamFailure
		if resp.StatusCode == http.StatusTooManyRequests {
			kind = apperrors.ProviderRateLimited
		}
		return nil, apperrors.NewProviderError(kind, resp.StatusCode, truncate(string(raw), 200))
	}

	var cresp chatResponse
	if err := json.Unmarshal(raw, &cresp); err != nil {
		return nil, &apperrors.ProviderError{Kind: apperrors.ProviderMalformedOutput, Message: "unparseable response body", Err: err}
	}
	if cresp.Error != nil {
		return nil, apperrors.NewProviderError(apperrors.ProviderUpstreamFailure, resp.StatusCode, cresp.Error.Message)
	}
	if len(cresp.Choices) == 0 {
		return nil, apperrors.NewProviderError(apperrors.ProviderMalformedOutput, resp.StatusCode, "response has no choices")
	}

	content := cresp.Choices[0].Message.Content
	if content == "" {
		// Reasoning models sometimes put the answer in the reasoning field.
		content = cresp.Choices[0].Message.Reasoning
	}
	if content == "" {
		return nil, apperrors.NewProviderError(apperrors.ProviderMalformedOutput, resp.StatusCode, "empty completion content")
	}

	p.logger.Debug().
		Str("model", cr.Model).
		Dur("elapsed", time.Since(start)).
		Int("prompt_tokens", cresp.Usage.PromptTokens).
		Int("completion_tokens", cresp.Usage.CompletionTokens).
		Msg("provider completion")

	return &Response{
		Text:         content,
		Model:        cresp.Model,
		InputTokens:  cresp.Usage.PromptTokens,
		OutputTokens: cresp.Usage.CompletionTokens,
	}, nil
}

// CompleteJSON requests a JSON object and unmarshals it into out, stripping
// markdown fences some models wrap around JSON.
func (p *OpenRouterProvider) CompleteJSON(ctx context.Context, req Request, out any) error {
	req.JSONMode = true
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return err
	}
	return DecodeJSON(resp.Text, out)
}

// DecodeJSON parses provider text into out, tolerating ```json fences.
func DecodeJSON(text string, out any) error {
	cleaned := StripFences(text)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return &apperrors.ProviderError{
			Kind:    apperrors.ProviderMalformedOutput,
			Message: fmt.Sprintf("invalid JSON completion: %s", truncate(cleaned, 120)),
			Err:     err,
		}
	}
	return nil
}

// StripFences removes a surrounding markdown code fence if present.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
