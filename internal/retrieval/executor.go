package retrieval

import (
	"context"
	"time"

	"github.com/Turnstyle/ria-hunter-sub007/internal/domain"
	"github.com/Turnstyle/ria-hunter-sub007/internal/embedding"
	"github.com/Turnstyle/ria-hunter-sub007/internal/metrics"
	"github.com/Turnstyle/ria-hunter-sub007/internal/observability"
	"github.com/Turnstyle/ria-hunter-sub007/internal/planner"
	"github.com/Turnstyle/ria-hunter-sub007/internal/storage"
)

// Strategy names reported in results and metrics.
const (
	NameSemantic      = "semantic"
	NameStructured    = "structured"
	NameExecutive     = "executive"
	NameSuperlative   = "superlative"
	NameStructuredAUM = "structured_aum"
	NameNone          = "none"
)

// Strategy is one retrieval attempt.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, req *Request) ([]storage.SearchResult, error)
}

// Request is the input of one execution.
type Request struct {
	// Query is the raw user text; Plan.SemanticQuery may be a rewrite of it.
	Query    string
	Plan     *planner.QueryPlan
	Decision RoutingDecision
	Limit    int
	Offset   int
}

func (r *Request) semanticQuery() string {
	if r.Plan != nil && r.Plan.SemanticQuery != "" {
		return r.Plan.SemanticQuery
	}
	return r.Query
}

// sortByAUM reports whether rows should be ordered by resolved AUM before windowing.
func (r *Request) sortByAUM() bool {
	return r.Decision.SortByAUM || (r.Plan != nil && r.Plan.Constraints.SortBy == storage.SortByAUM)
}

// windowInMemory reports whether offset is applied after fetching, because the rows are
// re-sorted or filtered by city variants before paging.
func (r *Request) windowInMemory() bool {
	return r.sortByAUM() || len(r.Plan.CityVariants()) > 0
}

func (r *Request) descending() bool {
	if r.Plan != nil && r.Plan.Constraints.SortOrder == planner.SortAsc {
		return false
	}
	return r.Decision.SortOrder != planner.SortAsc
}

// Attempt records one strategy attempt.
type Attempt struct {
	Strategy string        `json:"strategy"`
	Rows     int           `json:"rows"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// ExecutionResult is the outcome of Execute. Rows is never nil.
type ExecutionResult struct {
	Rows     []storage.SearchResult `json:"rows"`
	Strategy string                 `json:"strategy"`
	Attempts []Attempt              `json:"attempts"`
}

// ExecutorConfig holds executor settings.
type ExecutorConfig struct {
	Dimension            int
	MatchThreshold       float64
	SuperlativeScanLimit int
	EnrichmentWindow     int
	MaxExecutives        int
}

// Executor runs strategy chains against the firm store.
type Executor struct {
	logger     *observability.Logger
	metrics    *metrics.Metrics
	strategies map[string]Strategy
}

// NewExecutor creates an executor. embedder may be nil, in which case semantic attempts fail
// over to structured retrieval.
func NewExecutor(store storage.FirmStore, embedder embedding.Embedder, cfg ExecutorConfig, logger *observability.Logger, m *metrics.Metrics) *Executor {
	if cfg.Dimension <= 0 {
		cfg.Dimension = 768
	}
	if cfg.SuperlativeScanLimit <= 0 {
		cfg.SuperlativeScanLimit = 500
	}
	if cfg.EnrichmentWindow <= 0 {
		cfg.EnrichmentWindow = 50
	}
	if cfg.MaxExecutives <= 0 {
		cfg.MaxExecutives = 5
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	logger = logger.WithComponent("executor")

	deps := &retriever{store: store, embedder: embedder, cfg: cfg, logger: logger, metrics: m}
	e := &Executor{logger: logger, metrics: m, strategies: map[string]Strategy{}}
	for _, s := range []Strategy{
		&semanticStrategy{deps},
		&structuredStrategy{deps},
		&executiveStrategy{deps},
		&superlativeStrategy{deps},
		&structuredAUMStrategy{deps},
	} {
		e.strategies[s.Name()] = s
	}
	return e
}

// Chain returns the ordered strategy names for a decision.
func Chain(d RoutingDecision) []string {
	switch {
	case d.Strategy == planner.StrategyExecutive:
		return []string{NameExecutive, NameSemantic, NameStructured}
	case d.IsSuperlativeQuery:
		return []string{NameSuperlative, NameStructuredAUM}
	case d.Strategy == planner.StrategyStructured:
		return []string{NameStructured}
	default:
		return []string{NameSemantic, NameStructured}
	}
}

// Execute walks the strategy chain until an attempt returns rows. It never returns an
// error: failures are logged, counted and the next strategy runs.
func (e *Executor) Execute(ctx context.Context, req Request) ExecutionResult {
	if req.Limit <= 0 {
		req.Limit = 10
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	log := e.logger.WithContext(ctx)
	result := ExecutionResult{Rows: []storage.SearchResult{}, Strategy: NameNone}

	for _, name := range Chain(req.Decision) {
		s := e.strategies[name]
		start := time.Now()
		rows, err := s.Attempt(ctx, &req)
		elapsed := time.Since(start)

		attempt := Attempt{Strategy: name, Rows: len(rows), Duration: elapsed}
		switch {
		case err != nil:
			attempt.Error = err.Error()
			e.metrics.ObserveStrategy(name, "error", elapsed)
			log.Warn().
				Err(err).
				Str("strategy", name).
				Str("error_type", string(domain.TypeOf(err))).
				Dur("elapsed", elapsed).
				Msg("Retrieval attempt failed, falling back")
		case len(rows) == 0:
			e.metrics.ObserveStrategy(name, "empty", elapsed)
			log.Debug().Str("strategy", name).Msg("Retrieval attempt returned no rows")
		default:
			e.metrics.ObserveStrategy(name, "ok", elapsed)
		}
		result.Attempts = append(result.Attempts, attempt)

		if err == nil && len(rows) > 0 {
			for i := range rows {
				if rows[i].SearchStrategy == "" {
					rows[i].SearchStrategy = name
				}
			}
			result.Rows = rows
			result.Strategy = name
			log.Info().
				Str("strategy", name).
				Int("rows", len(rows)).
				Int("attempts", len(result.Attempts)).
				Msg("Retrieval complete")
			return result
		}
	}

	log.Warn().Int("attempts", len(result.Attempts)).Msg("All retrieval strategies returned nothing")
	return result
}
