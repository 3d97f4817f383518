// Package llmclient implements the LLM Client (spec §4.3): a single
// chat-completion operation with bounded retry and best-effort JSON
// repair. It follows the teacher's plain net/http JSON client style
// (pkg/runbook.GitHubClient) rather than the teacher's gRPC-based
// pkg/llm.Client, because the generated protobuf stub that client
// depends on (proto.LLMServiceClient) was never retrieved alongside it —
// see DESIGN.md.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/newsgraph/extractor/pkg/httpretry"
)

// Typed failures (spec §4.3).
var (
	ErrTimeout         = errors.New("llmclient: request timed out")
	ErrRateLimited     = errors.New("llmclient: rate limited")
	ErrResponseInvalid = errors.New("llmclient: response was not valid JSON even after repair")
	ErrUnavailable     = errors.New("llmclient: provider unavailable")
)

// Request is a single completion request.
type Request struct {
	ModelID     string
	Prompt      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// chatRequestBody is the wire shape sent to the configured endpoint,
// modeled on the common OpenAI-compatible chat-completions contract.
type chatRequestBody struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponseBody struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Client is a singleton HTTP connection to a chat-completion endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	policy     httpretry.Policy
	logger     *slog.Logger
}

// New creates a Client. baseURL is the completions endpoint
// (e.g. "https://api.example.com/v1/chat/completions").
func New(baseURL, apiKey string, policy httpretry.Policy, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		apiKey:     apiKey,
		policy:     policy,
		logger:     logger,
	}
}

// Generate sends req and returns the model's response text. It retries
// transient failures per the client's policy and repairs mildly
// malformed JSON in the provider's own response envelope before
// returning ErrResponseInvalid.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	var result string
	err := httpretry.Do(ctx, c.policy, func(ctx context.Context) (httpretry.Action, error) {
		text, action, err := c.generateOnce(ctx, req)
		if err != nil {
			return action, err
		}
		result = text
		return httpretry.NoRetry, nil
	})
	if err != nil {
		return "", c.classifyFinal(err)
	}
	return result, nil
}

// Ping checks whether the completion endpoint is reachable, for the
// health endpoint's upstream check. Any HTTP response, including an
// error status, counts as reachable — only transport-level failures
// (DNS, connection refused, timeout) are reported as unreachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("llmclient: building ping request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	return nil
}

func (c *Client) generateOnce(ctx context.Context, req Request) (string, httpretry.Action, error) {
	body := chatRequestBody{
		Model:       req.ModelID,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", httpretry.NoRetry, fmt.Errorf("llmclient: encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", httpretry.NoRetry, fmt.Errorf("llmclient: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", httpretry.NoRetry, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", httpretry.ClassifyError(err), err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", httpretry.Retry, fmt.Errorf("llmclient: reading response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", httpretry.Retry, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return "", httpretry.Retry, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", httpretry.NoRetry, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(data))
	}

	var parsed chatResponseBody
	if err := json.Unmarshal(repairJSON(data), &parsed); err != nil {
		return "", httpretry.NoRetry, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if parsed.Error != nil {
		return "", httpretry.NoRetry, fmt.Errorf("%w: %s", ErrUnavailable, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", httpretry.NoRetry, fmt.Errorf("%w: no choices in response", ErrResponseInvalid)
	}
	return parsed.Choices[0].Message.Content, httpretry.NoRetry, nil
}

// classifyFinal maps a context-deadline error from the outer timeout to
// ErrTimeout, otherwise passes the retry loop's last error through.
func (c *Client) classifyFinal(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
