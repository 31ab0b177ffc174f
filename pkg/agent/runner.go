package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/wicaksono/opsagent/pkg/action"
	"github.com/wicaksono/opsagent/pkg/llm"
	"github.com/wicaksono/opsagent/pkg/workflow"
)

const (
	defaultMaxRounds          = 10
	defaultMaxConcurrentTools = 4
	defaultSystemPrompt       = "You are an infrastructure assistant. Use the available tools to answer questions and manage systems."
)

// Runner drives one chat turn to completion: it sends the conversation
// plus the advertised tool schemas to the backend, executes Read tool
// calls directly, routes Write and Destructive calls through the
// confirmation workflow, and repeats until a final answer or the round
// cap.
type Runner struct {
	client  ChatClient
	actions *action.Registry
	engine  *workflow.Engine
	logger  zerolog.Logger

	maxRounds          int
	maxConcurrentTools int
}

// Config holds runner configuration
type Config struct {
	Client             ChatClient
	Actions            *action.Registry
	Engine             *workflow.Engine
	Logger             zerolog.Logger
	MaxRounds          int
	MaxConcurrentTools int
}

// NewRunner creates an agent runner
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("chat client is required")
	}
	if cfg.Actions == nil {
		return nil, fmt.Errorf("action registry is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("workflow engine is required")
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = defaultMaxRounds
	}
	if cfg.MaxConcurrentTools <= 0 {
		cfg.MaxConcurrentTools = defaultMaxConcurrentTools
	}

	return &Runner{
		client:             cfg.Client,
		actions:            cfg.Actions,
		engine:             cfg.Engine,
		logger:             cfg.Logger,
		maxRounds:          cfg.MaxRounds,
		maxConcurrentTools: cfg.MaxConcurrentTools,
	}, nil
}

// toolOutcome is the per-call result of one round, kept in call order
type toolOutcome struct {
	call    llm.ToolCall
	content string
	pending *PendingAction
}

// Run executes one chat turn. It always returns a final answer with
// any pending-confirmation markers, or an explicit terminal error.
func (r *Runner) Run(ctx context.Context, params RunParams) (Result, error) {
	systemPrompt := params.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	messages := make([]llm.Message, 0, len(params.History)+2)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	messages = append(messages, params.History...)
	messages = append(messages, llm.Message{Role: "user", Content: params.Prompt})

	schemas := r.actions.Tools().Schemas()

	result := Result{}

	for round := 0; round < r.maxRounds; round++ {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		completion, err := r.client.Chat(ctx, messages, schemas)
		if err != nil {
			return Result{}, err
		}

		if completion.IsFinal() {
			result.Answer = completion.Content
			result.Rounds = round + 1
			return result, nil
		}

		r.logger.Debug().
			Int("round", round+1).
			Int("tool_calls", len(completion.ToolCalls)).
			Msg("Executing tool calls")

		outcomes := r.executeRound(ctx, completion.ToolCalls, params.Actor)

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})

		for _, outcome := range outcomes {
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    outcome.content,
				ToolCallID: outcome.call.ID,
			})
			result.ToolCalls = append(result.ToolCalls, outcome.call)
			if outcome.pending != nil {
				result.Pending = append(result.Pending, *outcome.pending)
			}
		}
	}

	return Result{}, fmt.Errorf("%w after %d rounds", ErrLoopExceeded, r.maxRounds)
}

// executeRound runs all tool calls of one completion. Calls are
// handler-independent, so they execute concurrently, bounded to avoid
// unbounded fan-out against external systems. Outcomes keep call order.
func (r *Runner) executeRound(ctx context.Context, calls []llm.ToolCall, actor string) []toolOutcome {
	outcomes := make([]toolOutcome, len(calls))

	var wg sync.WaitGroup
	sem := make(chan struct{}, r.maxConcurrentTools)

	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcomes[i] = r.executeCall(ctx, call, actor)
		}(i, call)
	}

	wg.Wait()
	return outcomes
}

// executeCall handles a single tool call. Read actions invoke
// immediately; Write and Destructive actions become proposals and the
// backend gets a pending-confirmation marker instead of a result. One
// call's failure is reported as that call's result and never aborts
// the round.
func (r *Runner) executeCall(ctx context.Context, call llm.ToolCall, actor string) toolOutcome {
	outcome := toolOutcome{call: call}

	if r.actions.RequiresConfirmation(call.Name) {
		req, err := r.engine.Propose(ctx, call.Name, call.Arguments, actor)
		if err != nil {
			r.logger.Warn().Err(err).Str("tool", call.Name).Msg("Failed to propose action")
			outcome.content = errorPayload(err)
			return outcome
		}

		outcome.pending = &PendingAction{
			RequestID: req.ID,
			Action:    req.Action,
			Risk:      req.Risk,
		}
		outcome.content = encodePayload(map[string]interface{}{
			"status":     "pending_confirmation",
			"request_id": req.ID,
			"risk":       req.Risk,
			"detail":     "action requires human confirmation before it runs",
		})

		r.logger.Info().
			Str("tool", call.Name).
			Str("request_id", req.ID).
			Str("risk", string(req.Risk)).
			Msg("Tool call routed to confirmation workflow")

		return outcome
	}

	result, err := r.actions.Tools().Invoke(ctx, call.Name, call.Arguments)
	if err != nil {
		r.logger.Warn().Err(err).Str("tool", call.Name).Msg("Tool call failed")
		outcome.content = errorPayload(err)
		return outcome
	}

	outcome.content = encodePayload(result)
	return outcome
}

// encodePayload renders a tool result for the backend
func encodePayload(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// errorPayload renders a tool failure as an error result the backend
// can react to
func errorPayload(err error) string {
	return encodePayload(map[string]interface{}{"error": err.Error()})
}
