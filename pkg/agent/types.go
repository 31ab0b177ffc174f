package agent

import (
	"context"
	"errors"

	"github.com/wicaksono/opsagent/pkg/action"
	"github.com/wicaksono/opsagent/pkg/llm"
	"github.com/wicaksono/opsagent/pkg/tool"
)

// ErrLoopExceeded is returned when a chat turn hits the round cap
// without producing a final answer.
var ErrLoopExceeded = errors.New("maximum agent rounds exceeded")

// ChatClient is the completion backend surface the loop depends on
type ChatClient interface {
	Chat(ctx context.Context, messages []llm.Message, tools []tool.Schema) (*llm.Completion, error)
}

// RunParams contains the input for one chat turn
type RunParams struct {
	Prompt       string        `json:"prompt"`
	History      []llm.Message `json:"history,omitempty"`
	SystemPrompt string        `json:"system_prompt,omitempty"`
	Actor        string        `json:"actor"`
}

// PendingAction marks a Write or Destructive tool call that was turned
// into a proposal and awaits out-of-band confirmation.
type PendingAction struct {
	RequestID string           `json:"request_id"`
	Action    string           `json:"action"`
	Risk      action.RiskClass `json:"risk"`
}

// Result is the outcome of a chat turn: a final answer, possibly with
// pending-confirmation markers for risky actions.
type Result struct {
	Answer    string          `json:"answer"`
	Pending   []PendingAction `json:"pending,omitempty"`
	ToolCalls []llm.ToolCall  `json:"tool_calls,omitempty"`
	Rounds    int             `json:"rounds"`
}
