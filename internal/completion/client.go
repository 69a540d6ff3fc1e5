// Package completion calls the Anthropic Messages API with a single
// user-role prompt and reports usage and stop reason.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const apiVersion = "2023-06-01"

// StopMaxTokens is the stop reason of an output cut off by the token limit.
const StopMaxTokens = "max_tokens"

var (
	// ErrModelNotFound is a configuration error: the model id is wrong.
	ErrModelNotFound = errors.New("model not found")
	// ErrOverloaded is the provider's transient overload response.
	ErrOverloaded = errors.New("provider overloaded")
)

// Request is one completion call.
type Request struct {
	Model     string
	MaxTokens int
	Prompt    string
}

// Response is the generated text with its accounting.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
	StopReason   string
}

// Truncated reports whether the output hit the token limit.
func (r *Response) Truncated() bool {
	return r.StopReason == StopMaxTokens
}

// Completer is what the extract and merge stages call.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// StatusError is a non-200 response. It unwraps to ErrModelNotFound for 404
// and ErrOverloaded for 529.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("anthropic error (status %d): %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrModelNotFound
	case 529:
		return ErrOverloaded
	}
	return nil
}

// IsOverloaded is the retry predicate for overload responses.
func IsOverloaded(err error) bool {
	return errors.Is(err, ErrOverloaded)
}

// Client handles completion calls over HTTP
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a client. timeout bounds each call.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends one prompt and blocks until the response or the timeout.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(messagesRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Messages:  []message{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var out messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &Response{
		Text:         strings.TrimSpace(text.String()),
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
		StopReason:   out.StopReason,
	}, nil
}

// Pricing converts token usage to USD.
type Pricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// Cost of one response.
func (p Pricing) Cost(r *Response) float64 {
	if r == nil {
		return 0
	}
	return float64(r.InputTokens)*p.InputPerMTok/1_000_000 + float64(r.OutputTokens)*p.OutputPerMTok/1_000_000
}
