package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wicaksono/opsagent/pkg/action"
	"github.com/wicaksono/opsagent/pkg/llm"
	"github.com/wicaksono/opsagent/pkg/tool"
	"github.com/wicaksono/opsagent/pkg/workflow"
)

// scriptedClient returns canned completions in order and records every
// message list it was called with.
type scriptedClient struct {
	completions []*llm.Completion
	err         error
	calls       [][]llm.Message
}

func (c *scriptedClient) Chat(ctx context.Context, messages []llm.Message, tools []tool.Schema) (*llm.Completion, error) {
	c.calls = append(c.calls, messages)
	if c.err != nil {
		return nil, c.err
	}
	if len(c.completions) == 0 {
		return &llm.Completion{Content: "done"}, nil
	}
	next := c.completions[0]
	c.completions = c.completions[1:]
	return next, nil
}

func newRunnerFixture(t *testing.T, client ChatClient) (*Runner, *action.Registry, *workflow.Engine) {
	t.Helper()

	actions := action.NewRegistry(tool.NewRegistry())

	require.NoError(t, actions.Register(action.Definition{
		Definition: tool.Definition{
			Name:        "list_projects",
			Description: "List all projects",
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				return []string{"dashboard", "dns-filter"}, nil
			},
		},
		Risk:     action.RiskRead,
		Category: action.CategoryProject,
	}))
	require.NoError(t, actions.Register(action.Definition{
		Definition: tool.Definition{
			Name:        "restart_service",
			Description: "Restart a system service",
			Parameters: []tool.Parameter{
				{Name: "service", Type: "string", Description: "Service name", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				return map[string]interface{}{"restarted": true}, nil
			},
		},
		Risk:     action.RiskDestructive,
		Category: action.CategoryService,
	}))
	require.NoError(t, actions.Register(action.Definition{
		Definition: tool.Definition{
			Name:        "broken_probe",
			Description: "A probe that always fails",
			Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				return nil, errors.New("probe offline")
			},
		},
		Risk:     action.RiskRead,
		Category: action.CategoryMonitoring,
	}))

	engine, err := workflow.NewEngine(workflow.EngineOptions{
		Actions: actions,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	runner, err := NewRunner(Config{
		Client:  client,
		Actions: actions,
		Engine:  engine,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	return runner, actions, engine
}

func TestRunner_FinalAnswerFirstRound(t *testing.T) {
	client := &scriptedClient{completions: []*llm.Completion{{Content: "everything is fine"}}}
	runner, _, _ := newRunnerFixture(t, client)

	result, err := runner.Run(context.Background(), RunParams{Prompt: "status?", Actor: "admin"})
	require.NoError(t, err)

	assert.Equal(t, "everything is fine", result.Answer)
	assert.Empty(t, result.Pending)
	assert.Equal(t, 1, result.Rounds)

	// System prompt + user prompt were sent
	require.Len(t, client.calls, 1)
	assert.Equal(t, "system", client.calls[0][0].Role)
	assert.Equal(t, "status?", client.calls[0][len(client.calls[0])-1].Content)
}

// One round requests a Read tool and a Destructive tool: the Read call
// executes inline, the Destructive call becomes a proposal with a
// pending-confirmation marker, and nothing blocks on confirmation.
func TestRunner_MixedReadAndDestructiveRound(t *testing.T) {
	client := &scriptedClient{completions: []*llm.Completion{
		{ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "list_projects", Arguments: map[string]interface{}{}},
			{ID: "call_2", Name: "restart_service", Arguments: map[string]interface{}{"service": "nginx"}},
		}},
		{Content: "listed projects; restart awaits confirmation"},
	}}
	runner, _, engine := newRunnerFixture(t, client)

	result, err := runner.Run(context.Background(), RunParams{Prompt: "tidy up", Actor: "admin"})
	require.NoError(t, err)

	assert.Equal(t, "listed projects; restart awaits confirmation", result.Answer)
	assert.Equal(t, 2, result.Rounds)
	require.Len(t, result.Pending, 1)
	assert.Equal(t, "restart_service", result.Pending[0].Action)
	assert.Equal(t, action.RiskDestructive, result.Pending[0].Risk)
	assert.Len(t, result.ToolCalls, 2)

	// The proposal sits in the workflow, unexecuted
	pending := engine.ListPending()
	require.Len(t, pending, 1)
	assert.Equal(t, result.Pending[0].RequestID, pending[0].ID)
	assert.Equal(t, workflow.StatusProposed, pending[0].Status)

	// Second round saw tool results in call order
	secondRound := client.calls[1]
	var readResult []string
	require.NoError(t, json.Unmarshal([]byte(secondRound[len(secondRound)-2].Content), &readResult))
	assert.Equal(t, []string{"dashboard", "dns-filter"}, readResult)

	var marker map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(secondRound[len(secondRound)-1].Content), &marker))
	assert.Equal(t, "pending_confirmation", marker["status"])
	assert.Equal(t, result.Pending[0].RequestID, marker["request_id"])
}

func TestRunner_PartialToolFailureContinues(t *testing.T) {
	client := &scriptedClient{completions: []*llm.Completion{
		{ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "broken_probe", Arguments: map[string]interface{}{}},
			{ID: "call_2", Name: "list_projects", Arguments: map[string]interface{}{}},
		}},
		{Content: "one probe is offline"},
	}}
	runner, _, _ := newRunnerFixture(t, client)

	result, err := runner.Run(context.Background(), RunParams{Prompt: "check probes", Actor: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "one probe is offline", result.Answer)

	// The failing call produced an error payload, the other succeeded
	secondRound := client.calls[1]
	var errPayload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(secondRound[len(secondRound)-2].Content), &errPayload))
	assert.Contains(t, errPayload["error"], "probe offline")
}

func TestRunner_UnknownToolReportedToBackend(t *testing.T) {
	client := &scriptedClient{completions: []*llm.Completion{
		{ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "imaginary_tool", Arguments: map[string]interface{}{}},
		}},
		{Content: "that tool does not exist"},
	}}
	runner, _, _ := newRunnerFixture(t, client)

	result, err := runner.Run(context.Background(), RunParams{Prompt: "do magic", Actor: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "that tool does not exist", result.Answer)
}

func TestRunner_RoundCapExceeded(t *testing.T) {
	// Backend asks for tools forever
	loop := &llm.Completion{ToolCalls: []llm.ToolCall{
		{ID: "c", Name: "list_projects", Arguments: map[string]interface{}{}},
	}}
	client := &scriptedClient{}
	for i := 0; i < 20; i++ {
		client.completions = append(client.completions, loop)
	}
	runner, _, _ := newRunnerFixture(t, client)
	runner.maxRounds = 3

	_, err := runner.Run(context.Background(), RunParams{Prompt: "loop", Actor: "admin"})
	assert.ErrorIs(t, err, ErrLoopExceeded)
	assert.Len(t, client.calls, 3)
}

func TestRunner_BackendErrorSurfaces(t *testing.T) {
	client := &scriptedClient{err: &llm.ServiceError{Message: "backend down"}}
	runner, _, _ := newRunnerFixture(t, client)

	_, err := runner.Run(context.Background(), RunParams{Prompt: "hello", Actor: "admin"})

	var svcErr *llm.ServiceError
	assert.ErrorAs(t, err, &svcErr)
}

func TestRunner_CancelledContext(t *testing.T) {
	client := &scriptedClient{completions: []*llm.Completion{{Content: "unused"}}}
	runner, _, engine := newRunnerFixture(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, RunParams{Prompt: "hello", Actor: "admin"})
	assert.ErrorIs(t, err, context.Canceled)

	// Cancellation never implicitly rejects proposals
	assert.Empty(t, engine.ListPending())
}
