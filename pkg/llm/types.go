package llm

import (
	"encoding/json"

	"github.com/wicaksono/opsagent/pkg/tool"
)

// Message represents a message in the conversation
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a function invocation requested by the backend
type ToolCall struct {
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Completion is the outcome of a chat round: either a final textual
// answer or a non-empty ordered list of requested tool calls.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// IsFinal reports whether the completion carries no tool calls
func (c *Completion) IsFinal() bool {
	return len(c.ToolCalls) == 0
}

// chatRequest is the wire request for the chat endpoint
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Tools    []tool.Schema `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
}

// chatResponse is one wire response object. In streaming mode each
// newline-delimited fragment has this shape.
type chatResponse struct {
	Message struct {
		Role      string         `json:"role"`
		Content   string         `json:"content"`
		ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
	} `json:"message"`
	Done bool `json:"done"`
}

type wireToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// decodeArguments handles both object-encoded and string-encoded
// function arguments, which vary across backends.
func decodeArguments(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}

	args := map[string]interface{}{}
	if err := json.Unmarshal(raw, &args); err == nil {
		return args, nil
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, err
	}
	if encoded == "" {
		return map[string]interface{}{}, nil
	}
	if err := json.Unmarshal([]byte(encoded), &args); err != nil {
		return nil, err
	}
	return args, nil
}
