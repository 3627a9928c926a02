package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Turnstyle/ria-hunter-sub007/internal/domain"
	"github.com/Turnstyle/ria-hunter-sub007/internal/metrics"
)

// Config holds OpenAI-compatible embedding client configuration.
type Config struct {
	APIKey    string
	BaseURL   string // empty uses api.openai.com
	Model     string
	Dimension int
	Timeout   time.Duration
}

// OpenAIClient embeds text through any OpenAI-compatible embeddings endpoint.
type OpenAIClient struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dimension int
	metrics   *metrics.Metrics
}

// NewOpenAIClient creates a client. A missing API key is a configuration error;
// callers treat it as "no embedding provider".
func NewOpenAIClient(cfg Config, m *metrics.Metrics) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, domain.ConfigurationError("embedding API key is not set", nil)
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 768
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIClient{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     openai.EmbeddingModel(cfg.Model),
		dimension: cfg.Dimension,
		metrics:   m,
	}, nil
}

func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          texts,
		Model:          c.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		Dimensions:     c.dimension,
	})
	if err != nil {
		c.metrics.Embedding(string(c.model), "error")
		return nil, domain.UpstreamError("create embeddings", describeAPIError(err))
	}
	if len(resp.Data) != len(texts) {
		c.metrics.Embedding(string(c.model), "error")
		return nil, domain.UpstreamError(
			fmt.Sprintf("embedding count mismatch: got %d, want %d", len(resp.Data), len(texts)), nil)
	}
	c.metrics.Embedding(string(c.model), "ok")

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, domain.UpstreamError(fmt.Sprintf("embedding index %d out of range", d.Index), nil)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func (c *OpenAIClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *OpenAIClient) Model() string { return string(c.model) }

func (c *OpenAIClient) Dimension() int { return c.dimension }

// describeAPIError pulls the provider's message out of go-openai error types.
func describeAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		var parsed struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(reqErr.Body, &parsed) == nil && parsed.Detail != "" {
			return fmt.Errorf("embedding API error %d: %s", reqErr.HTTPStatusCode, parsed.Detail)
		}
		return fmt.Errorf("embedding API error %d: %w", reqErr.HTTPStatusCode, reqErr.Err)
	}
	return err
}
