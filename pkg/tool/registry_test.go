package tool

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoDefinition() Definition {
	return Definition{
		Name:        "echo",
		Description: "Echo tool",
		Parameters: []Parameter{
			{
				Name:        "message",
				Type:        "string",
				Description: "Message to echo",
				Required:    true,
			},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return args["message"], nil
		},
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	err := r.Register(echoDefinition())
	assert.NoError(t, err)

	def, err := r.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", def.Name)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(echoDefinition()))

	err := r.Register(echoDefinition())
	assert.ErrorIs(t, err, ErrDuplicateTool)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_Register_InvalidDefinition(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		def  Definition
	}{
		{
			name: "empty name",
			def: Definition{
				Description: "Test",
				Handler:     func(ctx context.Context, args map[string]interface{}) (interface{}, error) { return nil, nil },
			},
		},
		{
			name: "empty description",
			def: Definition{
				Name:    "test",
				Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) { return nil, nil },
			},
		},
		{
			name: "nil handler",
			def: Definition{
				Name:        "test",
				Description: "Test",
			},
		},
		{
			name: "bad parameter type",
			def: Definition{
				Name:        "test",
				Description: "Test",
				Parameters:  []Parameter{{Name: "x", Type: "decimal", Description: "X"}},
				Handler:     func(ctx context.Context, args map[string]interface{}) (interface{}, error) { return nil, nil },
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.def)
			assert.Error(t, err)
		})
	}
}

func TestRegistry_Get_Unknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("nonexistent")

	var unknownErr *UnknownToolError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "nonexistent", unknownErr.Name)
}

func TestRegistry_Schemas_RegistrationOrder(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{"charlie", "alpha", "bravo"} {
		def := echoDefinition()
		def.Name = name
		require.NoError(t, r.Register(def))
	}

	schemas := r.Schemas()
	require.Len(t, schemas, 3)
	assert.Equal(t, "charlie", schemas[0].Function.Name)
	assert.Equal(t, "alpha", schemas[1].Function.Name)
	assert.Equal(t, "bravo", schemas[2].Function.Name)

	for _, schema := range schemas {
		assert.Equal(t, "function", schema.Type)
		assert.Equal(t, "object", schema.Function.Parameters["type"])
	}
}

func TestRegistry_Invoke_Success(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoDefinition()))

	result, err := r.Invoke(context.Background(), "echo", map[string]interface{}{
		"message": "Hello, World!",
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello, World!", result)
}

func TestRegistry_Invoke_UnknownTool(t *testing.T) {
	r := NewRegistry()

	_, err := r.Invoke(context.Background(), "nonexistent", nil)

	var unknownErr *UnknownToolError
	assert.ErrorAs(t, err, &unknownErr)
}

func TestRegistry_Invoke_InvalidArguments(t *testing.T) {
	r := NewRegistry()

	handlerCalled := false
	def := echoDefinition()
	def.Handler = func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		handlerCalled = true
		return nil, nil
	}
	require.NoError(t, r.Register(def))

	// Missing required parameter
	_, err := r.Invoke(context.Background(), "echo", map[string]interface{}{})

	var invalidErr *InvalidArgumentsError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, "echo", invalidErr.Tool)
	assert.NotEmpty(t, invalidErr.Fields)
	assert.False(t, handlerCalled, "handler must not run on validation failure")

	// Wrong type
	handlerCalled = false
	_, err = r.Invoke(context.Background(), "echo", map[string]interface{}{"message": 42})
	assert.ErrorAs(t, err, &invalidErr)
	assert.False(t, handlerCalled)

	// Unknown field rejected
	_, err = r.Invoke(context.Background(), "echo", map[string]interface{}{
		"message": "hi",
		"extra":   true,
	})
	assert.ErrorAs(t, err, &invalidErr)
}

func TestRegistry_Invoke_HandlerError(t *testing.T) {
	r := NewRegistry()

	cause := errors.New("disk on fire")
	def := echoDefinition()
	def.Name = "failing"
	def.Handler = func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return nil, cause
	}
	require.NoError(t, r.Register(def))

	_, err := r.Invoke(context.Background(), "failing", map[string]interface{}{"message": "x"})

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "failing", execErr.Tool)
	assert.ErrorIs(t, err, cause)
}

func TestRegistry_Invoke_Timeout(t *testing.T) {
	r := NewRegistry()

	def := echoDefinition()
	def.Name = "slow"
	def.Timeout = 20 * time.Millisecond
	def.Handler = func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		select {
		case <-time.After(5 * time.Second):
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	require.NoError(t, r.Register(def))

	_, err := r.Invoke(context.Background(), "slow", map[string]interface{}{"message": "x"})

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.ErrorIs(t, execErr.Err, context.DeadlineExceeded)
}

func TestRegistry_Invoke_ConcurrentTools(t *testing.T) {
	r := NewRegistry()

	for i := 0; i < 4; i++ {
		def := echoDefinition()
		def.Name = fmt.Sprintf("tool_%d", i)
		require.NoError(t, r.Register(def))
	}

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		name := fmt.Sprintf("tool_%d", i)
		go func() {
			_, err := r.Invoke(context.Background(), name, map[string]interface{}{"message": name})
			done <- err
		}()
	}

	for i := 0; i < 4; i++ {
		assert.NoError(t, <-done)
	}
}
