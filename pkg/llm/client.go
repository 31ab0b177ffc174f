package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/wicaksono/opsagent/pkg/tool"
)

const (
	chatPath  = "/api/chat"
	probePath = "/api/tags"

	healthCheckTimeout = 3 * time.Second
)

// Client talks to the external completion backend. Transient network
// failures on the chat path are retried with exponential backoff; the
// health probe is a single short-timeout request with no retry.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	retry      RetryPolicy
	logger     zerolog.Logger
}

// Options configures the LLM client
type Options struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Retry   RetryPolicy
	Logger  zerolog.Logger
}

// NewClient creates a new LLM client
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}

	return &Client{
		baseURL:    opts.BaseURL,
		model:      opts.Model,
		httpClient: &http.Client{Timeout: timeout},
		retry:      opts.Retry,
		logger:     opts.Logger,
	}
}

// Chat sends the conversation and advertised tool schemas to the
// backend and returns either a final answer or the requested tool calls.
func (c *Client) Chat(ctx context.Context, messages []Message, tools []tool.Schema) (*Completion, error) {
	return retry(ctx, c.retry, func(ctx context.Context) (*Completion, error) {
		return c.chatOnce(ctx, messages, tools)
	})
}

func (c *Client) chatOnce(ctx context.Context, messages []Message, tools []tool.Schema) (*Completion, error) {
	body, err := c.postChat(ctx, chatRequest{
		Model:    c.model,
		Messages: messages,
		Tools:    tools,
		Stream:   false,
	})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var resp chatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, &ServiceError{Message: "malformed backend response", Cause: err}
	}

	completion := &Completion{Content: resp.Message.Content}
	for _, tc := range resp.Message.ToolCalls {
		args, err := decodeArguments(tc.Function.Arguments)
		if err != nil {
			return nil, &ServiceError{Message: fmt.Sprintf("malformed tool call arguments for %s", tc.Function.Name), Cause: err}
		}
		completion.ToolCalls = append(completion.ToolCalls, ToolCall{
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	c.logger.Debug().
		Int("tool_calls", len(completion.ToolCalls)).
		Bool("final", completion.IsFinal()).
		Msg("Chat completion received")

	return completion, nil
}

// ChatStream opens a fresh stream and emits text fragments until the
// backend signals completion or ctx is cancelled. Tool schemas are
// advertised the same way as Chat; pass nil for a plain completion.
// Malformed fragments are skipped, not fatal. The channels are closed
// when the stream ends; errs carries at most one error.
func (c *Client) ChatStream(ctx context.Context, messages []Message, tools []tool.Schema) (<-chan string, <-chan error) {
	fragments := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(fragments)
		defer close(errs)

		body, err := c.postChat(ctx, chatRequest{
			Model:    c.model,
			Messages: messages,
			Tools:    tools,
			Stream:   true,
		})
		if err != nil {
			errs <- err
			return
		}
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var fragment chatResponse
			if err := json.Unmarshal(line, &fragment); err != nil {
				c.logger.Warn().Err(err).Msg("Skipping malformed stream fragment")
				continue
			}

			if fragment.Message.Content != "" {
				select {
				case fragments <- fragment.Message.Content:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}

			if fragment.Done {
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			errs <- &ServiceError{Message: "stream read failed", Cause: err}
		}
	}()

	return fragments, errs
}

// HealthCheck probes backend availability with a single short-timeout
// request. Used by readiness checks, never by the chat path.
func (c *Client) HealthCheck(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+probePath, nil)
	if err != nil {
		return &ServiceError{Message: "failed to build health probe", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ServiceError{Message: "backend unreachable", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ServiceError{StatusCode: resp.StatusCode, Message: "backend unhealthy"}
	}

	return nil
}

// postChat issues the chat request and returns the response body on
// HTTP 200. Non-2xx statuses become ServiceErrors carrying the status.
func (c *Client) postChat(ctx context.Context, payload chatRequest) (io.ReadCloser, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &ServiceError{Message: "failed to encode request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(data))
	if err != nil {
		return nil, &ServiceError{Message: "failed to build request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ServiceError{Message: "request failed", Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &ServiceError{
			StatusCode: resp.StatusCode,
			Message:    string(bytes.TrimSpace(detail)),
		}
	}

	return resp.Body, nil
}
