// Package llm is the uniform chat-completion contract over the supported
// model providers, plus the registry that maps symbolic model keys to them.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged text turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserMessage is shorthand for a user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// ModelResponse is the normalized result of one completion call.
type ModelResponse struct {
	ID             string `json:"id"`
	ModelName      string `json:"model_name"`
	Role           Role   `json:"role"`
	Content        string `json:"content"`
	Reason         string `json:"reason"`
	InputTokens    int    `json:"input_tokens"`
	OutputTokens   int    `json:"output_tokens"`
	ResponseTimeMs int64  `json:"response_time_ms"`
}

func newResponse(model string) *ModelResponse {
	return &ModelResponse{ID: uuid.NewString(), ModelName: model, Role: RoleAssistant}
}

// Client runs a single completion. messages are ordered oldest to newest and
// systemPrompt is delivered out of band in whatever way the provider expects.
// Implementations never retry.
type Client interface {
	ModelID() string
	Run(ctx context.Context, systemPrompt string, messages []Message) (*ModelResponse, error)
}

// ModelCallError wraps a failed provider call.
type ModelCallError struct {
	Provider Provider
	Model    string
	Err      error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("llm: %s model %s: %v", e.Provider, e.Model, e.Err)
}

func (e *ModelCallError) Unwrap() error { return e.Err }

// normalizeTurns drops system turns and leading assistant turns, and merges
// consecutive turns of the same role. Providers with a native chat history
// reject conversations that do not start with a user turn or do not alternate.
func normalizeTurns(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			continue
		}
		if len(out) == 0 && m.Role != RoleUser {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content = strings.TrimRight(out[n-1].Content, "\n") + "\n\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}
