package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// NewGeminiAPI opens the shared Gemini API client. Close it on shutdown.
func NewGeminiAPI(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key not set")
	}
	return genai.NewClient(ctx, option.WithAPIKey(apiKey))
}

// GeminiClient calls a Gemini model through a chat session.
type GeminiClient struct {
	client  *genai.Client
	modelID string
}

func NewGeminiClient(client *genai.Client, modelID string) *GeminiClient {
	if modelID == "" {
		modelID = "gemini-1.5-flash"
	}
	return &GeminiClient{client: client, modelID: modelID}
}

func (g *GeminiClient) ModelID() string { return g.modelID }

func (g *GeminiClient) Run(ctx context.Context, systemPrompt string, messages []Message) (*ModelResponse, error) {
	history, last, err := geminiHistory(messages)
	if err != nil {
		return nil, &ModelCallError{Provider: ProviderGemini, Model: g.modelID, Err: err}
	}

	m := g.client.GenerativeModel(g.modelID)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}
	cs := m.StartChat()
	cs.History = history

	start := time.Now()
	res, err := cs.SendMessage(ctx, genai.Text(last))
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return nil, &ModelCallError{Provider: ProviderGemini, Model: g.modelID, Err: err}
	}

	return geminiResponse(g.modelID, res, elapsed), nil
}

// geminiResponse keeps the text parts of the first candidate. Token counts
// stay zero when the response carries no usage metadata.
func geminiResponse(modelID string, res *genai.GenerateContentResponse, elapsedMs int64) *ModelResponse {
	resp := newResponse(modelID)
	resp.ResponseTimeMs = elapsedMs
	if res == nil {
		return resp
	}
	if len(res.Candidates) > 0 && res.Candidates[0].Content != nil {
		var b strings.Builder
		for _, p := range res.Candidates[0].Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		resp.Content = b.String()
	}
	resp.Reason = resp.Content
	if res.UsageMetadata != nil {
		resp.InputTokens = int(res.UsageMetadata.PromptTokenCount)
		resp.OutputTokens = int(res.UsageMetadata.CandidatesTokenCount)
	}
	return resp
}

// geminiHistory splits messages into prior chat history and the final user text.
func geminiHistory(messages []Message) ([]*genai.Content, string, error) {
	turns := normalizeTurns(messages)
	if len(turns) == 0 || turns[len(turns)-1].Role != RoleUser {
		return nil, "", fmt.Errorf("conversation must end with a user turn")
	}

	history := make([]*genai.Content, 0, len(turns)-1)
	for _, m := range turns[:len(turns)-1] {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return history, turns[len(turns)-1].Content, nil
}

var _ Client = (*GeminiClient)(nil)
