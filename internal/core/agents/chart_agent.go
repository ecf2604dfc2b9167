package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	starjson "go.starlark.net/lib/json"
	starmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/datanooblol/leonidas/internal/core/catalog"
	"github.com/datanooblol/leonidas/internal/core/llm"
)

const (
	defaultMaxSteps  = 5_000_000
	defaultChartRows = 50
	chartEntryPoint  = "create_chart"
)

// ChartBuildError is why a chart was not produced. It never leaves the agent.
type ChartBuildError struct {
	Stage string
	Err   error
}

func (e *ChartBuildError) Error() string {
	return fmt.Sprintf("chart %s: %v", e.Stage, e.Err)
}

func (e *ChartBuildError) Unwrap() error { return e.Err }

// ChartAgent asks a model for a create_chart(data) function and evaluates it
// in a Starlark interpreter with no load, filesystem or network access.
type ChartAgent struct {
	client       llm.Client
	systemPrompt string
	log          *logrus.Logger

	// MaxSteps bounds the interpreter; zero means the default.
	MaxSteps uint64
	// PromptRows caps how many result rows are shown to the model.
	PromptRows int
}

func NewChartAgent(client llm.Client, systemPrompt string, log *logrus.Logger) *ChartAgent {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ChartAgent{client: client, systemPrompt: systemPrompt, log: log}
}

// BuildChartRequest renders the result preview the chart model sees.
func BuildChartRequest(frame *catalog.Frame, maxRows int, userText string) string {
	var b strings.Builder
	b.WriteString("DATA:\n\n")
	b.WriteString(frame.Head(maxRows).Markdown())
	if n := frame.Len(); n > maxRows {
		fmt.Fprintf(&b, "\n\n(%d of %d rows shown; create_chart receives all rows)", maxRows, n)
	}
	b.WriteString("\n\nCOLUMNS: ")
	if frame != nil {
		b.WriteString(strings.Join(frame.ColumnNames(), ", "))
	}
	b.WriteString("\n\nUSER_INPUT:\n\n")
	b.WriteString(userText)
	return b.String()
}

// Run returns the Plotly figure JSON for frame, or nil when anything goes
// wrong. The model response is returned whenever the model was reached so
// callers can account for its tokens.
func (a *ChartAgent) Run(ctx context.Context, frame *catalog.Frame, conversation []llm.Message, userText string) (chart json.RawMessage, resp *llm.ModelResponse) {
	defer func() {
		if r := recover(); r != nil {
			a.log.WithField("panic", r).Warn("chart agent: recovered from panic")
			chart = nil
		}
	}()

	rows := a.PromptRows
	if rows <= 0 {
		rows = defaultChartRows
	}

	msgs := make([]llm.Message, 0, len(conversation)+1)
	msgs = append(msgs, conversation...)
	msgs = append(msgs, llm.UserMessage(BuildChartRequest(frame, rows, userText)))

	resp, err := a.client.Run(ctx, a.systemPrompt, msgs)
	if err != nil {
		a.log.WithError(err).Warn("chart agent: model call failed")
		return nil, nil
	}

	code, ok := ExtractFencedBlock(resp.Content, "python")
	if !ok {
		a.logFailure(&ChartBuildError{Stage: "extract", Err: fmt.Errorf("no ```python block in model output")})
		return nil, resp
	}

	fig, err := a.Execute(ctx, code, frame.Records())
	if err != nil {
		a.logFailure(err)
		return nil, resp
	}

	out, err := json.Marshal(fig)
	if err != nil {
		a.logFailure(&ChartBuildError{Stage: "encode", Err: err})
		return nil, resp
	}
	return out, resp
}

func (a *ChartAgent) logFailure(err error) {
	a.log.WithError(err).Warn("chart agent: no chart produced")
}

// Execute evaluates code, calls create_chart(data) and validates that the
// result looks like a Plotly figure: a dict holding a "data" list.
func (a *ChartAgent) Execute(ctx context.Context, code string, data []map[string]any) (map[string]any, error) {
	steps := a.MaxSteps
	if steps == 0 {
		steps = defaultMaxSteps
	}

	thread := &starlark.Thread{
		Name: "chart",
		Print: func(_ *starlark.Thread, msg string) {
			a.log.WithField("source", "create_chart").Debug(msg)
		},
		// Load is left nil so any load() statement fails.
	}
	thread.SetMaxExecutionSteps(steps)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	predeclared := starlark.StringDict{
		"json": starjson.Module,
		"math": starmath.Module,
	}
	opts := &syntax.FileOptions{Set: true, TopLevelControl: true, GlobalReassign: true}

	start := time.Now()
	globals, err := starlark.ExecFileOptions(opts, thread, "chart.star", code, predeclared)
	if err != nil {
		return nil, &ChartBuildError{Stage: "exec", Err: err}
	}

	fn, ok := globals[chartEntryPoint].(starlark.Callable)
	if !ok {
		return nil, &ChartBuildError{Stage: "lookup", Err: fmt.Errorf("%s is not defined", chartEntryPoint)}
	}

	arg, err := toStarlark(data)
	if err != nil {
		return nil, &ChartBuildError{Stage: "convert", Err: err}
	}

	ret, err := starlark.Call(thread, fn, starlark.Tuple{arg}, nil)
	if err != nil {
		return nil, &ChartBuildError{Stage: "call", Err: err}
	}

	value, err := fromStarlark(ret)
	if err != nil {
		return nil, &ChartBuildError{Stage: "convert", Err: err}
	}
	fig, ok := value.(map[string]any)
	if !ok {
		return nil, &ChartBuildError{Stage: "validate", Err: fmt.Errorf("%s returned %s, want dict", chartEntryPoint, ret.Type())}
	}
	if _, ok := fig["data"].([]any); !ok {
		return nil, &ChartBuildError{Stage: "validate", Err: fmt.Errorf(`figure has no "data" list`)}
	}

	a.log.WithFields(logrus.Fields{
		"steps":      thread.ExecutionSteps(),
		"latency_ms": time.Since(start).Milliseconds(),
	}).Debug("chart agent: figure built")
	return fig, nil
}
