package a2a

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClientConfig holds configuration for the A2A client
type ClientConfig struct {
	// Timeout for HTTP requests; streaming requests are bounded by ctx only.
	Timeout time.Duration
	// Custom HTTP client (optional)
	HTTPClient *http.Client
	// BaseURL overrides the URL from the agent card.
	BaseURL string
	// Additional headers to include in requests
	Headers map[string]string
	Logger  *zap.Logger
}

// DefaultClientConfig returns a default client configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout: 30 * time.Second,
		Headers: make(map[string]string),
	}
}

// Client is an A2A client for communicating with one remote agent.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	agentCard  *AgentCard
	baseURL    string
	logger     *zap.Logger
}

// NewClient creates a new A2A client
func NewClient(agentCard *AgentCard, config *ClientConfig) (*Client, error) {
	if agentCard == nil {
		return nil, fmt.Errorf("agent card cannot be nil")
	}
	if config == nil {
		config = DefaultClientConfig()
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = agentCard.URL
	}
	if baseURL == "" {
		return nil, fmt.Errorf("agent card %s has no url", agentCard.Name)
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		agentCard:  agentCard,
		baseURL:    baseURL,
		logger:     logger.With(zap.String("component", "a2a_client"), zap.String("agent", agentCard.Name)),
	}, nil
}

// AgentCard returns the card the client was built from.
func (c *Client) AgentCard() *AgentCard {
	return c.agentCard
}

// SendMessage sends a message and returns the agent's reply, a *Task or a *Message.
func (c *Client) SendMessage(ctx context.Context, params *MessageSendParams) (Event, error) {
	var result json.RawMessage
	if err := c.call(ctx, MethodSendMessage, params, &result); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	ev, err := DecodeEvent(result)
	if err != nil {
		return nil, NewInvalidAgentResponseError(err.Error())
	}
	return ev, nil
}

// SendMessageStream sends a message and calls handler for every streamed event
// until the server closes the stream.
func (c *Client) SendMessageStream(ctx context.Context, params *MessageSendParams, handler func(Event) error) error {
	request, err := NewJSONRPCRequest(uuid.NewString(), MethodStreamMessage, params)
	if err != nil {
		return err
	}
	resp, err := c.post(ctx, request, "text/event-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		// A JSON-RPC error comes back as a plain JSON body.
		var rpc rawResponse
		if err := json.NewDecoder(resp.Body).Decode(&rpc); err == nil && rpc.Error != nil {
			return rpc.Error
		}
		return &ClientError{StatusCode: resp.StatusCode, Body: "expected text/event-stream, got " + ct}
	}

	return readSSE(ctx, resp.Body, func(data []byte) error {
		var rpc rawResponse
		if err := json.Unmarshal(data, &rpc); err != nil {
			c.logger.Warn("Failed to parse SSE data", zap.ByteString("data", data), zap.Error(err))
			return nil
		}
		if rpc.Error != nil {
			return rpc.Error
		}
		ev, err := DecodeEvent(rpc.Result)
		if err != nil {
			c.logger.Warn("Skipping unknown stream event", zap.Error(err))
			return nil
		}
		return handler(ev)
	})
}

// GetTask retrieves task details by ID
func (c *Client) GetTask(ctx context.Context, params *TaskQueryParams) (*Task, error) {
	var task Task
	if err := c.call(ctx, MethodGetTask, params, &task); err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// CancelTask cancels a task by ID
func (c *Client) CancelTask(ctx context.Context, params *TaskIDParams) (*Task, error) {
	var task Task
	if err := c.call(ctx, MethodCancelTask, params, &task); err != nil {
		return nil, fmt.Errorf("failed to cancel task: %w", err)
	}
	return &task, nil
}

// call performs one JSON-RPC round trip and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	request, err := NewJSONRPCRequest(uuid.NewString(), method, params)
	if err != nil {
		return err
	}

	c.logger.Debug("Sending request", zap.String("method", method))
	resp, err := c.post(ctx, request, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var rpc rawResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return &ClientError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if rpc.Error != nil {
		return rpc.Error
	}
	if len(rpc.Result) == 0 {
		return NewInvalidAgentResponseError("response has neither result nor error")
	}
	return json.Unmarshal(rpc.Result, out)
}

func (c *Client) post(ctx context.Context, request *JSONRPCRequest, accept string) (*http.Response, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	for key, value := range c.config.Headers {
		httpReq.Header.Set(key, value)
	}

	httpClient := c.httpClient
	if accept == "text/event-stream" && httpClient.Timeout > 0 {
		// The overall client timeout would cut long streams short.
		streaming := *httpClient
		streaming.Timeout = 0
		httpClient = &streaming
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, &ClientError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ClientError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return resp, nil
}

// readSSE calls onData with the payload of every server-sent event in body.
func readSSE(ctx context.Context, body io.Reader, onData func([]byte) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var data bytes.Buffer
	flush := func() error {
		if data.Len() == 0 {
			return nil
		}
		defer data.Reset()
		return onData(bytes.Clone(data.Bytes()))
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read SSE stream: %w", err)
	}
	return flush()
}
