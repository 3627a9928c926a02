// Package search wires the query pipeline: plan, route, retrieve, merge, and optionally
// render a briefing and answer from it.
package search

import (
	"context"
	"strings"
	"time"

	"github.com/Turnstyle/ria-hunter-sub007/internal/answer"
	"github.com/Turnstyle/ria-hunter-sub007/internal/domain"
	"github.com/Turnstyle/ria-hunter-sub007/internal/metrics"
	"github.com/Turnstyle/ria-hunter-sub007/internal/observability"
	"github.com/Turnstyle/ria-hunter-sub007/internal/planner"
	"github.com/Turnstyle/ria-hunter-sub007/internal/retrieval"
	"github.com/Turnstyle/ria-hunter-sub007/internal/storage"
)

// Request is one search.
type Request struct {
	Query     string             `json:"query"`
	Limit     int                `json:"limit,omitempty"`
	Offset    int                `json:"offset,omitempty"`
	Overrides *planner.Overrides `json:"overrides,omitempty"`
}

// Response is the result of a search.
type Response struct {
	Results           []storage.SearchResult    `json:"results"`
	QueryPlan         *planner.QueryPlan        `json:"queryPlan"`
	Routing           retrieval.RoutingDecision `json:"routing"`
	Strategy          string                    `json:"strategy"`
	AvailableResults  int                       `json:"availableResults"`
	ElapsedMS         int64                     `json:"elapsedMs"`
	Attempts          []retrieval.Attempt       `json:"attempts,omitempty"`
	RejectedOverrides []string                  `json:"rejectedOverrides,omitempty"`
}

// AskResponse is a search plus the answer generated from its briefing.
type AskResponse struct {
	Answer   string `json:"answer"`
	Fallback bool   `json:"fallback"`
	*Response
}

// Config holds paging limits.
type Config struct {
	DefaultLimit int
	MaxLimit     int
}

// Components are the pipeline stages. Store is only used for readiness checks.
type Components struct {
	Planner   *planner.Planner
	Router    *retrieval.Router
	Executor  *retrieval.Executor
	Builder   *answer.Builder
	Generator *answer.Generator
	Store     storage.FirmStore
}

// Service runs searches and answers.
type Service struct {
	planner   *planner.Planner
	router    *retrieval.Router
	executor  *retrieval.Executor
	builder   *answer.Builder
	generator *answer.Generator
	store     storage.FirmStore
	config    Config
	logger    *observability.Logger
	metrics   *metrics.Metrics
}

// NewService creates a Service.
func NewService(c Components, cfg Config, logger *observability.Logger, m *metrics.Metrics) *Service {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	if c.Builder == nil {
		c.Builder = answer.NewBuilder(0, 0)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		planner:   c.Planner,
		router:    c.Router,
		executor:  c.Executor,
		builder:   c.Builder,
		generator: c.Generator,
		store:     c.Store,
		config:    cfg,
		logger:    logger.WithComponent("search"),
		metrics:   m,
	}
}

// Search plans, routes, retrieves and merges. Missing query text is the only error.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.ValidationError("query text is required", nil)
	}
	log := s.logger.WithContext(ctx)

	plan, err := s.planner.Decompose(ctx, query)
	if err != nil {
		return nil, err
	}

	var rejected []string
	if req.Overrides != nil {
		applied, r := planner.ApplyOverrides(*plan, *req.Overrides)
		plan, rejected = &applied, r
		if len(rejected) > 0 {
			log.Warn().Strs("rejected", rejected).Msg("Ignoring invalid search overrides")
		}
	}

	decision := s.router.Route(ctx, query, retrieval.HintFromPlan(plan))
	limit := s.limit(req.Limit, decision.TopN)
	offset := max(req.Offset, 0)

	exec := s.executor.Execute(ctx, retrieval.Request{
		Query:    query,
		Plan:     plan,
		Decision: decision,
		Limit:    limit,
		Offset:   offset,
	})
	merged := retrieval.Merge(exec.Rows, retrieval.MergeOptionsFor(plan, decision, limit))

	elapsed := time.Since(start)
	s.metrics.ObserveSearch(elapsed)
	log.Info().
		Str("strategy", exec.Strategy).
		Str("route", string(decision.Strategy)).
		Bool("superlative", decision.IsSuperlativeQuery).
		Int("results", len(merged.Results)).
		Int("available", merged.AvailableResults).
		Dur("elapsed", elapsed).
		Msg("Search complete")

	return &Response{
		Results:           merged.Results,
		QueryPlan:         plan,
		Routing:           decision,
		Strategy:          exec.Strategy,
		AvailableResults:  merged.AvailableResults,
		ElapsedMS:         elapsed.Milliseconds(),
		Attempts:          exec.Attempts,
		RejectedOverrides: rejected,
	}, nil
}

// limit resolves the page size. An explicit limit wins over a "top N" in the query.
func (s *Service) limit(requested, topN int) int {
	limit := requested
	if limit <= 0 {
		limit = s.config.DefaultLimit
		if topN > 0 {
			limit = topN
		}
	}
	return min(limit, s.config.MaxLimit)
}

// BuildContext renders the briefing for a result set.
func (s *Service) BuildContext(results []storage.SearchResult, query string) string {
	return s.builder.Build(results, query)
}

// Answer generates a buffered answer from a briefing.
func (s *Service) Answer(ctx context.Context, query, contextText string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", domain.ValidationError("query text is required", nil)
	}
	return s.generator.Answer(ctx, query, contextText)
}

// StreamAnswer streams an answer generated from a briefing.
func (s *Service) StreamAnswer(ctx context.Context, query, contextText string) (<-chan answer.Chunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ValidationError("query text is required", nil)
	}
	return s.generator.Stream(ctx, query, contextText), nil
}

// Ask searches and answers from the rendered briefing.
func (s *Service) Ask(ctx context.Context, req Request) (*AskResponse, error) {
	resp, err := s.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	query := strings.TrimSpace(req.Query)
	res, err := s.generator.Generate(ctx, query, s.builder.Build(resp.Results, query))
	if err != nil {
		return nil, err
	}
	return &AskResponse{Answer: res.Text, Fallback: res.Fallback, Response: resp}, nil
}

// AskStream searches and streams the answer. The search response is available before
// the first chunk.
func (s *Service) AskStream(ctx context.Context, req Request) (*Response, <-chan answer.Chunk, error) {
	resp, err := s.Search(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	query := strings.TrimSpace(req.Query)
	return resp, s.generator.Stream(ctx, query, s.builder.Build(resp.Results, query)), nil
}

// Ready checks the firm store.
func (s *Service) Ready(ctx context.Context) error {
	if s.store == nil {
		return domain.ConfigurationError("firm store not configured", nil)
	}
	return s.store.Ping(ctx)
}
