// Package llmclient calls the configured LLM provider for the agent
// stages in §4.8. It follows kadirpekel-hector's llms package in spirit
// (an HTTP client wrapping a provider's chat-completion endpoint, SSE
// streaming parsed incrementally) but exposes a single blocking Generate
// call, since every stage needs the complete response before it can parse
// its structured output — none of them consume partial tokens.
package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/resilience"
)

// Config configures the LLM HTTP client.
type Config struct {
	Endpoint    string
	Model       string
	APIKey      string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// Message is one turn in a chat-style prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest is one stage invocation's prompt.
type GenerateRequest struct {
	Messages    []Message
	Temperature *float64
	MaxTokens   *int
}

// GenerateResponse is the model's full response plus usage accounting.
type GenerateResponse struct {
	Content      string
	FinishReason string
	PromptTokens int
	OutputTokens int
}

// Client calls a chat-completions-compatible streaming endpoint.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
}

// New builds a Client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: resilience.NewBreaker(resilience.BreakerConfig{Name: "llm", ConsecutiveFailures: 3}),
		retry:   resilience.DefaultRetryConfig(),
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

type sseChunk struct {
	Choices []struct {
		Delta        struct{ Content string } `json:"delta"`
		FinishReason string                    `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		OutputTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate sends req and returns the concatenated response, retrying
// transient failures and tripping the breaker after repeated outages.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	temp := c.cfg.Temperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	maxTokens := c.cfg.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	var result *GenerateResponse
	err := resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		out, err := c.breaker.Execute(ctx, func(ctx context.Context) (any, error) {
			return c.doGenerate(ctx, req.Messages, temp, maxTokens)
		})
		if err != nil {
			return err
		}
		result = out.(*GenerateResponse)
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDependency, "llmclient: generate failed", err)
	}
	return result, nil
}

func (c *Client) doGenerate(ctx context.Context, messages []Message, temperature float64, maxTokens int) (*GenerateResponse, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, resilience.Retryable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, resilience.Retryable(fmt.Errorf("llm provider returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("llm provider returned %d", resp.StatusCode)
	}

	var content strings.Builder
	result := &GenerateResponse{}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}
		var chunk sseChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue // malformed SSE frame, skip rather than fail the whole stream
		}
		for _, choice := range chunk.Choices {
			content.WriteString(choice.Delta.Content)
			if choice.FinishReason != "" {
				result.FinishReason = choice.FinishReason
			}
		}
		if chunk.Usage.PromptTokens > 0 {
			result.PromptTokens = chunk.Usage.PromptTokens
		}
		if chunk.Usage.OutputTokens > 0 {
			result.OutputTokens = chunk.Usage.OutputTokens
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, resilience.Retryable(err)
	}
	result.Content = content.String()
	return result, nil
}
