package agents

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/datanooblol/leonidas/internal/core/llm"
	"github.com/datanooblol/leonidas/internal/core/metadata"
)

// ErrEmptySQL is returned when the model answered with nothing usable.
var ErrEmptySQL = errors.New("agents: model returned no SQL")

// SQLAgent turns table metadata and a user question into one SQL statement.
type SQLAgent struct {
	client       llm.Client
	systemPrompt string
	log          *logrus.Logger
}

func NewSQLAgent(client llm.Client, systemPrompt string, log *logrus.Logger) *SQLAgent {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SQLAgent{client: client, systemPrompt: systemPrompt, log: log}
}

// BuildSQLRequest is the synthetic user turn that closes the SQL agent's conversation.
func BuildSQLRequest(tables []metadata.TableMetadata, userText string) string {
	return fmt.Sprintf("METADATAS:\n\n%s\n\nUSER QUERY:\n%s", metadata.RenderAll(tables), userText)
}

// Run sends conversation (ending with the BuildSQLRequest turn) and extracts
// the SQL from the reply's last ```sql block. A reply without a block is used
// verbatim and logged as a warning.
func (a *SQLAgent) Run(ctx context.Context, conversation []llm.Message) (string, *llm.ModelResponse, error) {
	resp, err := a.client.Run(ctx, a.systemPrompt, conversation)
	if err != nil {
		return "", nil, err
	}

	sql, fenced := ExtractFencedBlock(resp.Content, "sql")
	if !fenced {
		a.log.WithFields(logrus.Fields{
			"model": resp.ModelName,
			"chars": len(resp.Content),
		}).Warn("sql agent: no ```sql block in model output, using whole response")
	}
	if sql == "" {
		return "", resp, ErrEmptySQL
	}
	return sql, resp, nil
}
