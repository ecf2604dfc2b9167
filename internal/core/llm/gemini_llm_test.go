package llm

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiHistory(t *testing.T) {
	history, last, err := geminiHistory([]Message{
		UserMessage("first"),
		{Role: RoleAssistant, Content: "reply"},
		UserMessage("second"),
	})
	require.NoError(t, err)
	assert.Equal(t, "second", last)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)

	_, _, err = geminiHistory([]Message{UserMessage("a"), {Role: RoleAssistant, Content: "b"}})
	assert.Error(t, err)
}

func TestGeminiResponse(t *testing.T) {
	tests := []struct {
		name    string
		res     *genai.GenerateContentResponse
		content string
		in, out int
	}{
		{
			name: "text parts and usage",
			res: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: []genai.Part{
					genai.Text("The average is "),
					genai.Blob{MIMEType: "image/png", Data: []byte{0x89}},
					genai.Text("42.5."),
				}}}},
				UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 31, CandidatesTokenCount: 7, TotalTokenCount: 38},
			},
			content: "The average is 42.5.",
			in:      31,
			out:     7,
		},
		{
			name: "no usage metadata",
			res: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []genai.Part{genai.Text("hi")}}}},
			},
			content: "hi",
		},
		{
			name: "no candidates",
			res:  &genai.GenerateContentResponse{UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 4}},
			in:   4,
		},
		{
			name: "nil response",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := geminiResponse("gemini-1.5-flash", tt.res, 120)

			assert.NotEmpty(t, resp.ID)
			assert.Equal(t, "gemini-1.5-flash", resp.ModelName)
			assert.Equal(t, RoleAssistant, resp.Role)
			assert.Equal(t, tt.content, resp.Content)
			assert.Equal(t, tt.content, resp.Reason)
			assert.Equal(t, tt.in, resp.InputTokens)
			assert.Equal(t, tt.out, resp.OutputTokens)
			assert.EqualValues(t, 120, resp.ResponseTimeMs)
		})
	}
}

func TestGeminiClient_RunRejectsConversationWithoutUserTurn(t *testing.T) {
	c := NewGeminiClient(nil, "gemini-1.5-flash")
	assert.Equal(t, "gemini-1.5-flash", c.ModelID())

	_, err := c.Run(context.Background(), "sys", []Message{{Role: RoleAssistant, Content: "hello"}})
	var mce *ModelCallError
	require.ErrorAs(t, err, &mce)
	assert.Equal(t, ProviderGemini, mce.Provider)
}
