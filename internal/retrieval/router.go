// Package retrieval routes a planned query to a retrieval strategy, runs it against the
// firm store with cascading fallbacks, and merges the rows into a ranked result set.
package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Turnstyle/ria-hunter-sub007/internal/cache"
	"github.com/Turnstyle/ria-hunter-sub007/internal/domain"
	"github.com/Turnstyle/ria-hunter-sub007/internal/llm"
	"github.com/Turnstyle/ria-hunter-sub007/internal/metrics"
	"github.com/Turnstyle/ria-hunter-sub007/internal/observability"
	"github.com/Turnstyle/ria-hunter-sub007/internal/planner"
)

// RoutingDecision tells the executor which strategy chain to run and how to order results.
type RoutingDecision struct {
	Strategy           planner.Strategy `json:"strategy"`
	IsSuperlativeQuery bool             `json:"isSuperlativeQuery"`
	SortByAUM          bool             `json:"sortByAUM"`
	SortOrder          string           `json:"sortOrder,omitempty"`
	TopN               int              `json:"topN,omitempty"`
	Confidence         float64          `json:"confidence"`
	Reason             string           `json:"reason"`
}

// RouteHint carries what the planner already decided.
type RouteHint struct {
	Strategy  planner.Strategy
	SortOrder string
	// Heuristic is set when the plan came from the keyword fallback rather than the AI planner.
	Heuristic  bool
	Confidence float64
}

// weakHintConfidence is the plan confidence below which a heuristic hint is checked
// with the AI classifier.
const weakHintConfidence = 0.5

// HintFromPlan extracts the routing hint from a plan.
func HintFromPlan(p *planner.QueryPlan) RouteHint {
	if p == nil {
		return RouteHint{}
	}
	return RouteHint{
		Strategy:   p.SearchStrategy,
		SortOrder:  p.Constraints.SortOrder,
		Heuristic:  p.Source == planner.SourceFallback,
		Confidence: p.Confidence,
	}
}

// weak reports whether the hint is too uncertain to route on when a classifier is available.
func (h RouteHint) weak() bool {
	return h.Strategy == "" || (h.Heuristic && h.Confidence < weakHintConfidence)
}

// Classifier is the optional AI strategy classifier.
type Classifier interface {
	Classify(ctx context.Context, query string) (planner.Strategy, float64, error)
}

// RouterConfig holds router configuration.
type RouterConfig struct {
	CacheTTL time.Duration
}

// Router classifies queries into strategies. It does not depend on the planner's output
// beyond the optional hint.
type Router struct {
	cache      cache.Client
	classifier Classifier
	config     RouterConfig
	logger     *observability.Logger
	metrics    *metrics.Metrics
	group      singleflight.Group
}

// NewRouter creates a router. c and classifier may be nil.
func NewRouter(c cache.Client, classifier Classifier, cfg RouterConfig, logger *observability.Logger, m *metrics.Metrics) *Router {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Router{
		cache:      c,
		classifier: classifier,
		config:     cfg,
		logger:     logger.WithComponent("router"),
		metrics:    m,
	}
}

var (
	routeSuperlative = regexp.MustCompile(`(?i)\b(largest|biggest|top|smallest|highest|richest|leading|lowest|most\s+(assets|aum|money))\b`)
	routeAscending   = regexp.MustCompile(`(?i)\b(smallest|lowest)\b`)
	routeTopNAfter   = regexp.MustCompile(`(?i)\b(?:top|largest|biggest|smallest)\s+(\d{1,3})\b`)
	routeTopNBefore  = regexp.MustCompile(`(?i)\b(\d{1,3})\s+(?:largest|biggest|top|smallest|highest)\b`)
	routeExecutive   = regexp.MustCompile(`(?i)\b(ceo|cfo|coo|cio|cco|founder|president|executives?|managing\s+(partner|director)|principal|who\s+(is|runs|owns|leads)|named|works\s+at)\b`)
	routeQuotedName  = regexp.MustCompile(`["“][^"”]{3,}["”]`)
)

// classification is the cached heuristic result for a query.
type classification struct {
	Superlative bool `json:"superlative"`
	Ascending   bool `json:"ascending"`
	Executive   bool `json:"executive"`
	TopN        int  `json:"topN,omitempty"`
}

// Route classifies query. It never fails: classifier and cache errors degrade to heuristics.
func (r *Router) Route(ctx context.Context, query string, hint RouteHint) RoutingDecision {
	c := r.classify(ctx, query)
	log := r.logger.WithContext(ctx)

	d := RoutingDecision{Strategy: planner.StrategyHybrid, TopN: c.TopN}

	switch {
	case c.Executive:
		d.Strategy = planner.StrategyExecutive
		d.Confidence = 0.85
		d.Reason = "executive or person-name phrasing"
	case c.Superlative:
		d.Confidence = 0.9
		d.Reason = "superlative phrasing"
	case r.classifier != nil && hint.weak():
		strategy, conf, err := r.classifier.Classify(ctx, query)
		if err != nil || !validStrategy(strategy) {
			log.Warn().Err(err).Str("strategy", string(strategy)).Msg("AI route classification failed")
			d.Confidence = 0.5
			d.Reason = "classifier unavailable"
			if hint.Strategy != "" {
				d.Strategy = hint.Strategy
				d.Reason = "classifier unavailable, planner hint"
			}
			break
		}
		d.Strategy = strategy
		d.Confidence = conf
		d.Reason = "AI classifier"
	case hint.Strategy != "":
		d.Strategy = hint.Strategy
		d.Confidence = 0.7
		d.Reason = "planner hint"
	default:
		d.Confidence = 0.5
		d.Reason = "default"
	}

	if c.Superlative {
		d.IsSuperlativeQuery = true
		d.SortByAUM = true
		d.SortOrder = planner.SortDesc
		if hint.SortOrder == planner.SortAsc || c.Ascending {
			d.SortOrder = planner.SortAsc
		}
	}
	d.Confidence = clamp01(d.Confidence)

	log.Debug().
		Str("strategy", string(d.Strategy)).
		Bool("superlative", d.IsSuperlativeQuery).
		Str("sort_order", d.SortOrder).
		Str("reason", d.Reason).
		Msg("Query routed")
	return d
}

// classify runs the keyword heuristics through the cache. Concurrent fills for the
// same key share one computation.
func (r *Router) classify(ctx context.Context, query string) classification {
	if r.cache == nil {
		return classifyHeuristic(query)
	}

	key := cache.QueryKey("route", query)
	var c classification
	err := cache.GetJSON(ctx, r.cache, key, &c)
	r.metrics.CacheLookup("route", err == nil)
	if err == nil {
		return c
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		r.logger.Warn().Err(err).Msg("Route cache read failed")
	}

	v, _, _ := r.group.Do(key, func() (any, error) {
		c := classifyHeuristic(query)
		if err := cache.SetJSON(ctx, r.cache, key, c, r.config.CacheTTL); err != nil {
			r.logger.Warn().Err(err).Msg("Route cache write failed")
		}
		return c, nil
	})
	return v.(classification)
}

func classifyHeuristic(query string) classification {
	c := classification{
		Superlative: routeSuperlative.MatchString(query),
		Ascending:   routeAscending.MatchString(query),
		Executive:   routeExecutive.MatchString(query) || routeQuotedName.MatchString(query),
	}
	for _, re := range []*regexp.Regexp{routeTopNAfter, routeTopNBefore} {
		if m := re.FindStringSubmatch(query); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				c.TopN = n
				c.Superlative = true
				break
			}
		}
	}
	return c
}

func validStrategy(s planner.Strategy) bool {
	switch s {
	case planner.StrategyHybrid, planner.StrategyStructured, planner.StrategyExecutive:
		return true
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

const classifySystemPrompt = `Classify a question about registered investment advisers into one retrieval strategy.
Reply with JSON only: {"strategy": "hybrid" | "structured" | "executive_search", "confidence": number between 0 and 1}
- structured: the question only filters or ranks firms by location, size or counts.
- executive_search: the question asks about a specific person or firm executives.
- hybrid: anything that needs matching firm descriptions (services, specialties, client types).`

// LLMClassifier asks a generation provider for a strategy.
type LLMClassifier struct {
	provider llm.Provider
}

// NewLLMClassifier returns nil when provider is nil.
func NewLLMClassifier(provider llm.Provider) *LLMClassifier {
	if provider == nil {
		return nil
	}
	return &LLMClassifier{provider: provider}
}

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, query string) (planner.Strategy, float64, error) {
	if c == nil || c.provider == nil {
		return "", 0, domain.ConfigurationError("route classifier not configured", llm.ErrNotConfigured)
	}
	text, err := c.provider.GenerateText(ctx, llm.Request{
		System:      classifySystemPrompt,
		Prompt:      fmt.Sprintf("Question: %s", query),
		JSON:        true,
		MaxTokens:   60,
		Temperature: llm.Float32(0),
	})
	if err != nil {
		return "", 0, err
	}

	raw := strings.TrimSpace(text)
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		raw = raw[start : end+1]
	}
	var out struct {
		Strategy   string  `json:"strategy"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return "", 0, domain.UpstreamError("malformed classifier output", err)
	}
	strategy := planner.Strategy(strings.ToLower(strings.TrimSpace(out.Strategy)))
	if !validStrategy(strategy) {
		return "", 0, domain.ValidationError(fmt.Sprintf("unknown strategy %q", out.Strategy), nil)
	}
	if out.Confidence <= 0 {
		out.Confidence = 0.6
	}
	return strategy, out.Confidence, nil
}
