package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/datanooblol/leonidas/internal/core/agents"
	"github.com/datanooblol/leonidas/internal/core/catalog"
	"github.com/datanooblol/leonidas/internal/core/llm"
	"github.com/datanooblol/leonidas/internal/core/metadata"
	"github.com/datanooblol/leonidas/internal/core/prompts"
	"github.com/datanooblol/leonidas/internal/models"
)

// ChatStore is the persistence a chat turn touches.
type ChatStore interface {
	ownershipStore
	GetSelectedFiles(ctx context.Context, projectID string) ([]models.File, error)
	AppendMessage(ctx context.Context, m *models.ChatMessage) error
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error)
	ListMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
	TouchSession(ctx context.Context, id string) error
}

// ModelSource hands out a model client per symbolic key.
type ModelSource interface {
	Create(ctx context.Context, key string) (llm.Client, error)
	Keys() []string
}

type SQLGenerator interface {
	Run(ctx context.Context, conversation []llm.Message) (string, *llm.ModelResponse, error)
}

type ChartBuilder interface {
	Run(ctx context.Context, frame *catalog.Frame, conversation []llm.Message, userText string) (json.RawMessage, *llm.ModelResponse)
}

// TurnCatalog is the per-turn analytic catalog.
type TurnCatalog interface {
	Register(ctx context.Context, name string, source any, description string, metadata map[string]any) error
	Seal(ctx context.Context) error
	Query(ctx context.Context, sqlText string) (*catalog.Frame, error)
	Close() error
}

// CatalogOpener returns a fresh catalog able to read every registered source.
type CatalogOpener func(ctx context.Context) (TurnCatalog, error)

// SourceResolver maps a file record to the path the catalog reads.
type SourceResolver func(f models.File) string

// ChatConfig holds the per-turn limits.
type ChatConfig struct {
	DefaultModel  string
	HistoryLimit  int
	LLMTimeout    time.Duration
	QueryTimeout  time.Duration
	ChartTimeout  time.Duration
	ChartsEnabled bool
}

type SendMessageRequest struct {
	Content      string `json:"content"`
	ChatWithData bool   `json:"chat_with_data"`
	WithChart    bool   `json:"with_chart"`
	Model        string `json:"model,omitempty"`
}

const (
	titleSQL     = "Generated SQL Query"
	titleResults = "Query Results"
	titleChart   = "Chart"
)

// ChatService runs one chat turn: record the user message, answer it either
// plainly or grounded on the project's selected files, record the answer.
// It keeps no state between turns.
type ChatService struct {
	store   ChatStore
	models  ModelSource
	prompts *prompts.Store
	open    CatalogOpener
	resolve SourceResolver
	cfg     ChatConfig
	log     *logrus.Logger

	// NewSQLAgent and NewChartAgent bind the agents to the turn's model.
	NewSQLAgent   func(client llm.Client) SQLGenerator
	NewChartAgent func(client llm.Client) ChartBuilder
}

func NewChatService(store ChatStore, registry ModelSource, tmpl *prompts.Store, open CatalogOpener, resolve SourceResolver, cfg ChatConfig, log *logrus.Logger) *ChatService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if tmpl == nil {
		tmpl = prompts.Default()
	}
	if cfg.HistoryLimit < 0 {
		cfg.HistoryLimit = 0
	}
	s := &ChatService{
		store: store, models: registry, prompts: tmpl,
		open: open, resolve: resolve, cfg: cfg, log: log,
	}
	s.NewSQLAgent = func(c llm.Client) SQLGenerator {
		return agents.NewSQLAgent(c, tmpl.MustGet(prompts.GenerateSQL), log)
	}
	s.NewChartAgent = func(c llm.Client) ChartBuilder {
		return agents.NewChartAgent(c, tmpl.MustGet(prompts.ChartBuilder), log)
	}
	return s
}

// AvailableModels lists the registry keys a request may name.
func (s *ChatService) AvailableModels() []string {
	return s.models.Keys()
}

func (s *ChatService) DefaultModel() string {
	return s.cfg.DefaultModel
}

// GetHistory returns the session's messages oldest first.
func (s *ChatService) GetHistory(ctx context.Context, userID, sessionID string) ([]models.ChatMessage, error) {
	if _, err := ownedSession(ctx, s.store, sessionID, userID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, sessionID)
}

// usage sums model accounting across the calls of one turn.
type usage struct {
	input, output int
	latencyMs     int64
}

func (u *usage) add(r *llm.ModelResponse) {
	if r == nil {
		return
	}
	u.input += r.InputTokens
	u.output += r.OutputTokens
	u.latencyMs += r.ResponseTimeMs
}

// SendMessage runs one turn and returns the persisted assistant message.
// The user message is stored before any model call, so it survives a failed turn.
func (s *ChatService) SendMessage(ctx context.Context, userID, sessionID string, req SendMessageRequest) (*models.ChatMessage, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, invalid("content", "must not be empty")
	}

	session, err := ownedSession(ctx, s.store, sessionID, userID)
	if err != nil {
		return nil, err
	}

	key := req.Model
	if key == "" {
		key = s.cfg.DefaultModel
	}
	client, err := s.models.Create(ctx, key)
	if errors.Is(err, llm.ErrUnknownModel) {
		return nil, invalid("model", fmt.Sprintf("unknown model %q", key))
	}
	if err != nil {
		return nil, &PipelineError{Stage: StageResolveModel, Err: err}
	}

	log := s.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"project_id": session.ProjectID,
		"model":      key,
	})

	userMsg := &models.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Role:      models.RoleUser,
		Content:   req.Content,
	}
	if err := s.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, &PipelineError{Stage: StagePersist, Err: err}
	}

	history, err := s.buildContext(ctx, sessionID, userMsg.ID)
	if err != nil {
		return nil, &PipelineError{Stage: StagePersist, Err: err}
	}

	var selected []models.File
	if req.ChatWithData {
		selected, err = s.store.GetSelectedFiles(ctx, session.ProjectID)
		if err != nil {
			return nil, &PipelineError{Stage: StagePersist, Err: err}
		}
	}

	var (
		answer    *llm.ModelResponse
		artifacts []models.Artifact
		acct      usage
	)
	start := time.Now()
	if len(selected) > 0 {
		answer, artifacts, err = s.groundedTurn(ctx, client, history, selected, req, &acct, log)
	} else {
		answer, err = s.plainTurn(ctx, client, history, req.Content)
		acct.add(answer)
	}
	if err != nil {
		log.WithError(err).Error("chat: turn aborted")
		return nil, err
	}

	reply := &models.ChatMessage{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		UserID:         userID,
		Role:           models.RoleAssistant,
		Content:        answer.Content,
		ModelName:      answer.ModelName,
		Reason:         answer.Reason,
		InputTokens:    acct.input,
		OutputTokens:   acct.output,
		ResponseTimeMs: acct.latencyMs,
		Artifacts:      artifacts,
	}
	if err := s.store.AppendMessage(ctx, reply); err != nil {
		return nil, &PipelineError{Stage: StagePersist, Err: err}
	}
	if err := s.store.TouchSession(ctx, sessionID); err != nil {
		log.WithError(err).Warn("chat: could not refresh session timestamp")
	}

	log.WithFields(logrus.Fields{
		"grounded":      len(selected) > 0,
		"artifacts":     len(artifacts),
		"input_tokens":  acct.input,
		"output_tokens": acct.output,
		"latency_ms":    time.Since(start).Milliseconds(),
	}).Info("chat: turn completed")
	return reply, nil
}

// buildContext returns up to HistoryLimit prior turns, oldest first. The
// message just recorded for this turn is left out; callers append it themselves.
func (s *ChatService) buildContext(ctx context.Context, sessionID, currentID string) ([]llm.Message, error) {
	if s.cfg.HistoryLimit == 0 {
		return nil, nil
	}
	recent, err := s.store.RecentMessages(ctx, sessionID, s.cfg.HistoryLimit+1)
	if err != nil {
		return nil, err
	}

	prior := make([]models.ChatMessage, 0, len(recent))
	for _, m := range recent {
		if m.ID != currentID {
			prior = append(prior, m)
		}
	}
	if len(prior) > s.cfg.HistoryLimit {
		prior = prior[:s.cfg.HistoryLimit]
	}

	out := make([]llm.Message, 0, len(prior))
	for i := len(prior) - 1; i >= 0; i-- {
		role := llm.RoleUser
		if prior[i].Role == models.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: prior[i].Content})
	}
	return out, nil
}

func withTurn(history []llm.Message, content string) []llm.Message {
	out := make([]llm.Message, 0, len(history)+1)
	out = append(out, history...)
	return append(out, llm.UserMessage(content))
}

func (s *ChatService) callModel(ctx context.Context, client llm.Client, prompt string, conv []llm.Message) (*llm.ModelResponse, error) {
	cctx, cancel := s.timeout(ctx, s.cfg.LLMTimeout)
	defer cancel()
	return client.Run(cctx, s.prompts.MustGet(prompt), conv)
}

func (s *ChatService) plainTurn(ctx context.Context, client llm.Client, history []llm.Message, content string) (*llm.ModelResponse, error) {
	resp, err := s.callModel(ctx, client, prompts.ChatWithBro, withTurn(history, content))
	if err != nil {
		return nil, &PipelineError{Stage: StageAnswer, Err: err}
	}
	return resp, nil
}

func (s *ChatService) groundedTurn(
	ctx context.Context,
	client llm.Client,
	history []llm.Message,
	files []models.File,
	req SendMessageRequest,
	acct *usage,
	log *logrus.Entry,
) (*llm.ModelResponse, []models.Artifact, error) {
	tables := make([]metadata.TableMetadata, 0, len(files))
	for _, f := range files {
		tables = append(tables, metadata.FromFile(f))
	}

	sqlCtx, cancel := s.timeout(ctx, s.cfg.LLMTimeout)
	sqlText, sqlResp, err := s.NewSQLAgent(client).Run(sqlCtx, withTurn(history, agents.BuildSQLRequest(tables, req.Content)))
	cancel()
	acct.add(sqlResp)
	if err != nil {
		return nil, nil, &PipelineError{Stage: StageGenerateSQL, Err: err}
	}
	artifacts := []models.Artifact{{Type: models.ArtifactSQL, Content: sqlText, Title: titleSQL}}

	frame, err := s.runQuery(ctx, files, sqlText)
	if err != nil {
		return nil, nil, err
	}
	artifacts = append(artifacts, models.Artifact{Type: models.ArtifactResults, Content: frame.Records(), Title: titleResults})
	log.WithField("rows", frame.Len()).Debug("chat: query executed")

	grounded := fmt.Sprintf("CONTEXT:\n\n%s\n\nUSER_INPUT:\n\n%s\n\n", frame.Markdown(), req.Content)
	answer, err := s.callModel(ctx, client, prompts.ChatWithData, withTurn(history, grounded))
	if err != nil {
		return nil, nil, &PipelineError{Stage: StageAnswer, Err: err}
	}
	acct.add(answer)

	if req.WithChart && s.cfg.ChartsEnabled {
		chart, chartResp := s.buildChart(ctx, client, frame, history, req.Content, log)
		acct.add(chartResp)
		if chart != nil {
			artifacts = append(artifacts, models.Artifact{Type: models.ArtifactChart, Content: chart, Title: titleChart})
		}
	}
	return answer, artifacts, nil
}

// runQuery registers every file in a fresh catalog and runs sqlText against it.
func (s *ChatService) runQuery(ctx context.Context, files []models.File, sqlText string) (*catalog.Frame, error) {
	qctx, cancel := s.timeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	cat, err := s.open(qctx)
	if err != nil {
		return nil, &PipelineError{Stage: StageRegister, Err: err}
	}
	defer func() {
		if err := cat.Close(); err != nil {
			s.log.WithError(err).Warn("chat: closing catalog")
		}
	}()

	for _, f := range files {
		name := metadata.TableName(f.Filename)
		if err := cat.Register(qctx, name, s.resolve(f), f.Description, nil); err != nil {
			return nil, &PipelineError{Stage: StageRegister, Err: fmt.Errorf("file %s: %w", f.ID, err)}
		}
	}

	// model-written SQL only sees the tables registered above
	if err := cat.Seal(qctx); err != nil {
		return nil, &PipelineError{Stage: StageRegister, Err: err}
	}

	frame, err := cat.Query(qctx, sqlText)
	if err != nil {
		return nil, &PipelineError{Stage: StageQuery, Err: err}
	}
	return frame, nil
}

// buildChart never fails the turn; a panicking builder yields no chart.
func (s *ChatService) buildChart(ctx context.Context, client llm.Client, frame *catalog.Frame, history []llm.Message, content string, log *logrus.Entry) (chart json.RawMessage, resp *llm.ModelResponse) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Warn("chat: chart builder panicked")
			chart, resp = nil, nil
		}
	}()
	cctx, cancel := s.timeout(ctx, s.cfg.ChartTimeout)
	defer cancel()
	return s.NewChartAgent(client).Run(cctx, frame, history, content)
}

func (s *ChatService) timeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
