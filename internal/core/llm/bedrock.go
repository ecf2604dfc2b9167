package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// Converser is the slice of the Bedrock runtime API the client needs.
type Converser interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient calls a Bedrock model through the Converse API.
type BedrockClient struct {
	api     Converser
	modelID string
}

func NewBedrockClient(api Converser, modelID string) *BedrockClient {
	return &BedrockClient{api: api, modelID: modelID}
}

func (c *BedrockClient) ModelID() string { return c.modelID }

func (c *BedrockClient) Run(ctx context.Context, systemPrompt string, messages []Message) (*ModelResponse, error) {
	turns := normalizeTurns(messages)
	if len(turns) == 0 {
		return nil, &ModelCallError{Provider: ProviderBedrock, Model: c.modelID, Err: fmt.Errorf("no user turn to send")}
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(c.modelID),
		Messages: make([]brtypes.Message, 0, len(turns)),
	}
	if systemPrompt != "" {
		input.System = []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: systemPrompt},
		}
	}
	for _, m := range turns {
		role := brtypes.ConversationRoleUser
		if m.Role == RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		input.Messages = append(input.Messages, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
		})
	}

	start := time.Now()
	out, err := c.api.Converse(ctx, input)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return nil, &ModelCallError{Provider: ProviderBedrock, Model: c.modelID, Err: err}
	}

	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return nil, &ModelCallError{Provider: ProviderBedrock, Model: c.modelID, Err: fmt.Errorf("unexpected output %T", out.Output)}
	}

	var content, reason []string
	for _, block := range msg.Value.Content {
		switch b := block.(type) {
		case *brtypes.ContentBlockMemberText:
			content = append(content, b.Value)
		case *brtypes.ContentBlockMemberReasoningContent:
			if rt, ok := b.Value.(*brtypes.ReasoningContentBlockMemberReasoningText); ok {
				reason = append(reason, aws.ToString(rt.Value.Text))
			}
		}
	}

	resp := newResponse(c.modelID)
	resp.Content = strings.Join(content, "")
	resp.Reason = strings.Join(reason, "")
	if resp.Reason == "" {
		// non-reasoning models report their answer as the reason
		resp.Reason = resp.Content
	}
	resp.ResponseTimeMs = elapsed
	if out.Usage != nil {
		resp.InputTokens = int(aws.ToInt32(out.Usage.InputTokens))
		resp.OutputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}
	return resp, nil
}

var _ Client = (*BedrockClient)(nil)
