package planner

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Turnstyle/ria-hunter-sub007/internal/cache"
	"github.com/Turnstyle/ria-hunter-sub007/internal/domain"
	"github.com/Turnstyle/ria-hunter-sub007/internal/location"
	"github.com/Turnstyle/ria-hunter-sub007/internal/metrics"
	"github.com/Turnstyle/ria-hunter-sub007/internal/observability"
)

// Config holds planner settings.
type Config struct {
	CacheTTL time.Duration
	// DecomposeTimeout bounds the AI decomposition call. Zero means no extra bound.
	DecomposeTimeout time.Duration
}

// Planner builds QueryPlans, preferring the AI decomposition when one is configured.
type Planner struct {
	decomposer Decomposer
	cache      cache.Client
	config     Config
	logger     *observability.Logger
	metrics    *metrics.Metrics
}

// New creates a Planner. decomposer and c may be nil.
func New(decomposer Decomposer, c cache.Client, cfg Config, logger *observability.Logger, m *metrics.Metrics) *Planner {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Planner{
		decomposer: decomposer,
		cache:      c,
		config:     cfg,
		logger:     logger.WithComponent("planner"),
		metrics:    m,
	}
}

// Decompose plans query. It only fails for empty query text.
func (p *Planner) Decompose(ctx context.Context, query string) (*QueryPlan, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ValidationError("query text is required", nil)
	}
	log := p.logger.WithContext(ctx)

	key := cache.QueryKeyExact("plan", query)
	var cached QueryPlan
	err := cache.GetJSON(ctx, p.cache, key, &cached)
	if p.cache != nil {
		p.metrics.CacheLookup("plan", err == nil)
	}
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		log.Warn().Err(err).Msg("Plan cache read failed")
	}

	var plan *QueryPlan
	if p.decomposer != nil {
		plan, err = p.decomposeAI(ctx, query)
		if err != nil {
			log.Warn().Err(err).Str("error_type", string(domain.TypeOf(err))).Msg("AI decomposition failed, using fallback")
		}
	}
	if plan == nil {
		plan = Fallback(query)
	}

	log.Debug().
		Str("intent", string(plan.Intent)).
		Str("hint", string(plan.SearchStrategy)).
		Str("source", string(plan.Source)).
		Str("city", plan.City()).
		Str("state", plan.State()).
		Float64("confidence", plan.Confidence).
		Msg("Query planned")

	if err := cache.SetJSON(ctx, p.cache, key, plan, p.config.CacheTTL); err != nil {
		log.Warn().Err(err).Msg("Plan cache write failed")
	}
	return plan, nil
}

func (p *Planner) decomposeAI(ctx context.Context, query string) (*QueryPlan, error) {
	if p.config.DecomposeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.DecomposeTimeout)
		defer cancel()
	}
	d, err := p.decomposer.Decompose(ctx, query)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, domain.UpstreamError("empty decomposition", nil)
	}
	return fromDecomposition(query, d), nil
}

// fromDecomposition merges the model's filters with the deterministic phrasing rules.
// Intent, sort order and the hint always come from the raw query.
func fromDecomposition(query string, d *Decomposition) *QueryPlan {
	var loc *location.Location
	if where := strings.TrimSpace(d.StructuredFilters.Location); where != "" {
		if parsed := placeFromPhrase(where); !parsed.IsZero() {
			loc = &parsed
		}
	}
	if loc == nil {
		loc = detectLocation(query)
	}

	constraints := deriveConstraints(query)
	if d.StructuredFilters.MinAUM.Positive() {
		v := d.StructuredFilters.MinAUM.Value
		constraints.MinAUM = &v
	}

	intent := deriveIntent(query, loc)
	confidence := 0.8
	if loc != nil {
		confidence += 0.1
	}

	return &QueryPlan{
		Intent:             intent,
		NormalizedLocation: loc,
		Constraints:        constraints,
		SearchStrategy:     deriveHint(query, intent, loc),
		Confidence:         clamp01(confidence),
		SemanticQuery:      d.SemanticQuery,
		Source:             SourceAI,
		Services:           d.StructuredFilters.Services,
	}
}

// Fallback is the deterministic local decomposition.
func Fallback(query string) *QueryPlan {
	query = strings.TrimSpace(query)
	loc := detectLocation(query)
	constraints := deriveConstraints(query)
	intent := deriveIntent(query, loc)

	confidence := 0.4
	if loc != nil {
		if loc.City != "" {
			confidence += 0.25
		}
		if loc.State != "" {
			confidence += 0.15
		}
	}
	if constraints.SortBy != "" || constraints.MinAUM != nil {
		confidence += 0.1
	}

	return &QueryPlan{
		Intent:             intent,
		NormalizedLocation: loc,
		Constraints:        constraints,
		SearchStrategy:     deriveHint(query, intent, loc),
		Confidence:         clamp01(confidence),
		SemanticQuery:      query,
		Source:             SourceFallback,
	}
}
