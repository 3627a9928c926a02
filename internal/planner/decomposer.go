package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Turnstyle/ria-hunter-sub007/internal/domain"
	"github.com/Turnstyle/ria-hunter-sub007/internal/llm"
	"github.com/Turnstyle/ria-hunter-sub007/internal/storage"
)

// Decomposition is the AI decomposition of a query.
type Decomposition struct {
	SemanticQuery     string            `json:"semantic_query"`
	StructuredFilters StructuredFilters `json:"structured_filters"`
}

// StructuredFilters are the filters the model extracted.
type StructuredFilters struct {
	Location string         `json:"location"`
	MinAUM   storage.Number `json:"min_aum"`
	Services []string       `json:"services"`
}

// Decomposer breaks a query into a semantic query and structured filters.
type Decomposer interface {
	Decompose(ctx context.Context, query string) (*Decomposition, error)
}

const decomposeSystemPrompt = `You translate questions about registered investment advisers (RIAs) into search parameters.
Reply with a single JSON object and nothing else:
{"semantic_query": string, "structured_filters": {"location": string, "min_aum": number|null, "services": [string]}}
- semantic_query: the question rewritten for semantic search over firm descriptions.
- location: "City, ST" or "ST" or "" when no place is named. Use two-letter state codes.
- min_aum: minimum assets under management in US dollars, or null.
- services: investment services or fund types mentioned (e.g. "venture capital", "retirement planning").`

// LLMDecomposer asks a generation provider for a JSON decomposition.
type LLMDecomposer struct {
	provider llm.Provider
}

// NewLLMDecomposer returns nil when provider is nil so callers can treat it as absent.
func NewLLMDecomposer(provider llm.Provider) *LLMDecomposer {
	if provider == nil {
		return nil
	}
	return &LLMDecomposer{provider: provider}
}

// Decompose implements Decomposer.
func (d *LLMDecomposer) Decompose(ctx context.Context, query string) (*Decomposition, error) {
	if d == nil || d.provider == nil {
		return nil, domain.ConfigurationError("query decomposition provider not configured", llm.ErrNotConfigured)
	}

	text, err := d.provider.GenerateText(ctx, llm.Request{
		System:      decomposeSystemPrompt,
		Prompt:      fmt.Sprintf("Question: %s", query),
		JSON:        true,
		MaxTokens:   300,
		Temperature: llm.Float32(0),
	})
	if err != nil {
		return nil, err
	}
	return ParseDecomposition(text)
}

// ParseDecomposition decodes a model reply, tolerating markdown code fences.
func ParseDecomposition(text string) (*Decomposition, error) {
	raw := strings.TrimSpace(text)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		raw = raw[start : end+1]
	}

	var d Decomposition
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, domain.UpstreamError("malformed decomposition output", err)
	}
	d.SemanticQuery = strings.TrimSpace(d.SemanticQuery)
	if d.SemanticQuery == "" {
		return nil, domain.ValidationError("decomposition missing semantic_query", nil)
	}
	return &d, nil
}
