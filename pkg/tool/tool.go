package tool

import (
	"context"
	"time"
)

// Handler is the function signature for tool execution. It receives
// arguments that already passed schema validation.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Parameter defines a single parameter accepted by a tool
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
}

// Definition defines a tool's metadata and handler
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Handler     Handler     `json:"-"`
	Timeout     time.Duration
}

// Schema is the function-calling surface advertised to the LLM backend
type Schema struct {
	Type     string         `json:"type"`
	Function FunctionSchema `json:"function"`
}

// FunctionSchema describes one callable function
type FunctionSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}
