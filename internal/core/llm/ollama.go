package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// DefaultOllamaURL is the local Ollama daemon.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaClient calls a locally hosted model through Ollama's chat endpoint.
type OllamaClient struct {
	api     *api.Client
	modelID string
	initErr error
}

func NewOllamaClient(baseURL, modelID string, httpClient *http.Client) *OllamaClient {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &OllamaClient{modelID: modelID}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		c.initErr = fmt.Errorf("ollama url %q: %w", baseURL, err)
		return c
	}
	c.api = api.NewClient(base, httpClient)
	return c
}

func (c *OllamaClient) ModelID() string { return c.modelID }

func (c *OllamaClient) Run(ctx context.Context, systemPrompt string, messages []Message) (*ModelResponse, error) {
	if c.initErr != nil {
		return nil, &ModelCallError{Provider: ProviderOllama, Model: c.modelID, Err: c.initErr}
	}

	stream := false
	req := &api.ChatRequest{Model: c.modelID, Stream: &stream}
	// the chat endpoint has no system slot, so the prompt goes first as a system turn
	req.Messages = append(req.Messages, api.Message{Role: string(RoleSystem), Content: systemPrompt})
	for _, m := range messages {
		req.Messages = append(req.Messages, api.Message{Role: string(m.Role), Content: m.Content})
	}

	var (
		content, thinking strings.Builder
		metrics           api.Metrics
	)
	start := time.Now()
	err := c.api.Chat(ctx, req, func(r api.ChatResponse) error {
		content.WriteString(r.Message.Content)
		thinking.WriteString(r.Message.Thinking)
		if r.Done {
			metrics = r.Metrics
		}
		return nil
	})
	if err != nil {
		return nil, &ModelCallError{Provider: ProviderOllama, Model: c.modelID, Err: err}
	}

	resp := newResponse(c.modelID)
	resp.Content = content.String()
	resp.Reason = thinking.String()
	if resp.Reason == "" {
		resp.Reason = resp.Content
	}
	resp.InputTokens = metrics.PromptEvalCount
	resp.OutputTokens = metrics.EvalCount
	resp.ResponseTimeMs = time.Since(start).Milliseconds()
	return resp, nil
}

var _ Client = (*OllamaClient)(nil)
