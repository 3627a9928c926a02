// Package planner turns raw query text into a structured QueryPlan.
package planner

import (
	"math"
	"strings"

	"github.com/Turnstyle/ria-hunter-sub007/internal/location"
	"github.com/Turnstyle/ria-hunter-sub007/internal/storage"
)

// Intent is the coarse shape of a query.
type Intent string

const (
	IntentSuperlative Intent = "superlative"
	IntentLocation    Intent = "location"
	IntentExecutive   Intent = "executive"
	IntentMixed       Intent = "mixed"
)

// Strategy names a retrieval strategy. The planner only emits it as a hint.
type Strategy string

const (
	StrategyHybrid     Strategy = "hybrid"
	StrategyStructured Strategy = "structured"
	StrategyExecutive  Strategy = "executive_search"
)

// Source records which path produced a plan.
type Source string

const (
	SourceAI       Source = "ai"
	SourceFallback Source = "fallback"
)

// Sort orders.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Constraints are filters and ordering derived from the query phrasing.
type Constraints struct {
	SortBy              string   `json:"sortBy,omitempty"`
	SortOrder           string   `json:"sortOrder,omitempty"`
	MinAUM              *float64 `json:"minAum,omitempty"`
	RequirePrivateFunds bool     `json:"requirePrivateFunds,omitempty"`
}

// QueryPlan is the structured form of a user query.
type QueryPlan struct {
	Intent             Intent             `json:"intent"`
	NormalizedLocation *location.Location `json:"normalizedLocation,omitempty"`
	Constraints        Constraints        `json:"constraints"`
	SearchStrategy     Strategy           `json:"searchStrategy"`
	Confidence         float64            `json:"confidence"`
	SemanticQuery      string             `json:"semanticQuery"`
	Source             Source             `json:"source"`
	Services           []string           `json:"services,omitempty"`
}

// City returns the normalized city, if any.
func (p *QueryPlan) City() string {
	if p == nil || p.NormalizedLocation == nil {
		return ""
	}
	return p.NormalizedLocation.City
}

// State returns the normalized two-letter state, if any.
func (p *QueryPlan) State() string {
	if p == nil || p.NormalizedLocation == nil {
		return ""
	}
	return p.NormalizedLocation.State
}

// CityVariants returns the spellings to match against stored city values.
func (p *QueryPlan) CityVariants() []string {
	if p == nil || p.NormalizedLocation == nil || p.NormalizedLocation.City == "" {
		return nil
	}
	return p.NormalizedLocation.Variants
}

// HasLocation reports whether the plan filters by city or state.
func (p *QueryPlan) HasLocation() bool {
	return p != nil && p.NormalizedLocation != nil && !p.NormalizedLocation.IsZero()
}

// MinAUMValue returns the minimum AUM filter or 0.
func (p *QueryPlan) MinAUMValue() float64 {
	if p == nil || p.Constraints.MinAUM == nil {
		return 0
	}
	return *p.Constraints.MinAUM
}

// Overrides are caller-supplied constraints that take precedence over derived ones.
type Overrides struct {
	SortBy              string   `json:"sortBy,omitempty"`
	SortOrder           string   `json:"sortOrder,omitempty"`
	MinAUM              *float64 `json:"minAum,omitempty"`
	RequirePrivateFunds *bool    `json:"requirePrivateFunds,omitempty"`
	City                string   `json:"city,omitempty"`
	State               string   `json:"state,omitempty"`
}

var allowedSortFields = map[string]bool{
	storage.SortByAUM:       true,
	storage.SortByEmployees: true,
	storage.SortByFunds:     true,
}

var allowedSortOrders = map[string]bool{SortAsc: true, SortDesc: true}

// ApplyOverrides returns a copy of plan with valid overrides applied and the names of
// the overrides that were rejected. Rejected values leave the derived value in place.
func ApplyOverrides(plan QueryPlan, o Overrides) (QueryPlan, []string) {
	var rejected []string

	if o.SortBy != "" {
		sortBy := strings.ToLower(strings.TrimSpace(o.SortBy))
		if allowedSortFields[sortBy] {
			plan.Constraints.SortBy = sortBy
		} else {
			rejected = append(rejected, "sortBy")
		}
	}
	if o.SortOrder != "" {
		order := strings.ToLower(strings.TrimSpace(o.SortOrder))
		if allowedSortOrders[order] {
			plan.Constraints.SortOrder = order
		} else {
			rejected = append(rejected, "sortOrder")
		}
	}
	if o.MinAUM != nil {
		v := *o.MinAUM
		if v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
			plan.Constraints.MinAUM = &v
		} else {
			rejected = append(rejected, "minAum")
		}
	}
	if o.RequirePrivateFunds != nil {
		plan.Constraints.RequirePrivateFunds = *o.RequirePrivateFunds
	}

	if o.City == "" && o.State == "" {
		return plan, rejected
	}

	var loc location.Location
	if plan.NormalizedLocation != nil {
		loc = *plan.NormalizedLocation
	}
	if o.State != "" {
		if code, ok := location.StateCode(o.State); ok {
			loc.State = code
		} else {
			rejected = append(rejected, "state")
		}
	}
	if city := strings.TrimSpace(o.City); city != "" {
		state := loc.State
		loc = location.Normalize(city)
		if loc.State == "" || o.State != "" {
			loc.State = state
		}
		loc.Confidence = 1
	}
	if !loc.IsZero() {
		plan.NormalizedLocation = &loc
	}
	return plan, rejected
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
