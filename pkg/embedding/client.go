// Package embedding calls the configured embedding provider over HTTP to
// turn chunk text into vectors for pkg/vectorindex. The client shape
// (http.Client + JSON request/response, wrapped in retry/backoff) follows
// kadirpekel-hector's pkg/httpclient pattern; retry/backoff itself is
// delegated to pkg/resilience so the policy stays one implementation shared
// with the LLM client.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/resilience"
)

// Config configures the embedding HTTP client.
type Config struct {
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// Client calls an embeddings endpoint compatible with the OpenAI
// embeddings request/response shape (model, input[] -> data[].embedding).
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
}

// New builds a Client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: resilience.NewBreaker(resilience.BreakerConfig{Name: "embedding"}),
		retry:   resilience.DefaultRetryConfig(),
	}
}

// ModelName returns the configured embedding model identifier, recorded on
// each persisted KnowledgeChunk so a later re-embedding migration knows
// which rows are stale.
func (c *Client) ModelName() string { return c.cfg.Model }

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed converts a batch of texts into vectors, in input order. The call is
// retried on transient network/5xx errors and short-circuited by a breaker
// once the provider has failed enough consecutive times.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var result [][]float32
	err := resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		out, err := c.breaker.Execute(ctx, func(ctx context.Context) (any, error) {
			return c.doEmbed(ctx, texts)
		})
		if err != nil {
			return err
		}
		result = out.([][]float32)
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDependency, "embedding: request failed", err)
	}
	return result, nil
}

func (c *Client) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.cfg.Model, Input: texts})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.Retryable(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.Retryable(err)
	}
	if resp.StatusCode >= 500 {
		return nil, resilience.Retryable(fmt.Errorf("embedding provider returned %d: %s", resp.StatusCode, payload))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("embedding provider returned %d: %s", resp.StatusCode, payload)
	}

	var parsed embedResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("decoding embedding response: %w", err)
	}
	out := make([][]float32, len(parsed.Data))
	for _, d := range parsed.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}
