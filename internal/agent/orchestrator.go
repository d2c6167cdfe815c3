package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/rys/internal/metrics"
	"github.com/kalambet/rys/internal/tools"
)

const (
	DefaultMaxRounds = 10
	DefaultMaxTokens = 4096

	// NoReplyPlaceholder is returned when the model answers with empty text.
	NoReplyPlaceholder = "(no reply)"
	// ExhaustedMessage is returned when every round requested tools.
	ExhaustedMessage = "Reached the maximum number of tool rounds. Please simplify the request and try again."
)

type Outcome string

const (
	OutcomeAnswered  Outcome = "answered"
	OutcomeExhausted Outcome = "exhausted"
)

type Result struct {
	Text    string
	Rounds  int
	Outcome Outcome
}

// Invoker runs one tool call and reports the result as text.
type Invoker interface {
	Invoke(ctx context.Context, name string, raw map[string]any, c tools.Caller) string
}

// SchemaSource lists the tools offered to the model.
type SchemaSource interface {
	Schemas() []tools.Schema
}

type Options struct {
	MaxRounds       int
	MaxTokens       int
	ToolParallelism int // calls of one round run concurrently when > 1
	Now             func() time.Time
	Logger          *slog.Logger
}

// Orchestrator drives the bounded ask-model, run-tools loop.
type Orchestrator struct {
	model     Model
	schemas   SchemaSource
	invoker   Invoker
	maxRounds int
	maxTokens int
	parallel  int
	now       func() time.Time
	logger    *slog.Logger
}

func New(model Model, schemas SchemaSource, invoker Invoker, opts Options) *Orchestrator {
	o := &Orchestrator{
		model:     model,
		schemas:   schemas,
		invoker:   invoker,
		maxRounds: opts.MaxRounds,
		maxTokens: opts.MaxTokens,
		parallel:  opts.ToolParallelism,
		now:       opts.Now,
		logger:    opts.Logger,
	}
	if o.maxRounds <= 0 {
		o.maxRounds = DefaultMaxRounds
	}
	if o.maxTokens <= 0 {
		o.maxTokens = DefaultMaxTokens
	}
	if o.parallel <= 0 {
		o.parallel = 1
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Run answers message on behalf of userID in chatID. Model errors end the run
// and are returned unchanged in their chain; tool failures never do.
func (o *Orchestrator) Run(ctx context.Context, userID, chatID, message string) (Result, error) {
	h := NewHistory(SystemPrompt(o.now()), message)
	caller := tools.Caller{UserID: userID, ChatID: chatID}
	schemas := o.schemas.Schemas()

	for round := 1; round <= o.maxRounds; round++ {
		resp, err := o.model.Complete(ctx, Request{
			Turns:     h.Turns(),
			Tools:     schemas,
			MaxTokens: o.maxTokens,
		})
		if err != nil {
			metrics.AgentRuns.WithLabelValues("failed").Inc()
			return Result{Rounds: round}, fmt.Errorf("model round %d: %w", round, err)
		}

		o.logger.Debug("model round", "user_id", userID, "round", round, "tool_calls", len(resp.ToolCalls))

		if len(resp.ToolCalls) == 0 {
			text := resp.Content
			if text == "" {
				text = NoReplyPlaceholder
			}
			o.finish(round, OutcomeAnswered)
			return Result{Text: text, Rounds: round, Outcome: OutcomeAnswered}, nil
		}

		results := o.runCalls(ctx, resp.ToolCalls, caller)
		if err := h.Append(resp.Content, resp.ToolCalls, results); err != nil {
			return Result{Rounds: round}, err
		}
	}

	o.logger.Info("tool rounds exhausted", "user_id", userID, "rounds", o.maxRounds)
	o.finish(o.maxRounds, OutcomeExhausted)
	return Result{Text: ExhaustedMessage, Rounds: o.maxRounds, Outcome: OutcomeExhausted}, nil
}

func (o *Orchestrator) finish(rounds int, outcome Outcome) {
	metrics.AgentRounds.Observe(float64(rounds))
	metrics.AgentRuns.WithLabelValues(string(outcome)).Inc()
}

// runCalls executes calls and returns their results indexed like calls,
// whatever order they complete in.
func (o *Orchestrator) runCalls(ctx context.Context, calls []ToolCall, caller tools.Caller) []string {
	results := make([]string, len(calls))
	var g errgroup.Group
	g.SetLimit(o.parallel)
	for i, c := range calls {
		g.Go(func() error {
			o.logger.Debug("tool call", "tool", c.Name, "user_id", caller.UserID)
			results[i] = o.invoker.Invoke(ctx, c.Name, parseArgs(c.Arguments), caller)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// parseArgs decodes a JSON object; anything else yields empty arguments.
func parseArgs(raw string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}
