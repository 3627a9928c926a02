package retrieval

import (
	"sort"

	"github.com/Turnstyle/ria-hunter-sub007/internal/planner"
	"github.com/Turnstyle/ria-hunter-sub007/internal/storage"
)

// MergeOptions control residual filtering, ordering and truncation.
type MergeOptions struct {
	SortBy              string
	SortOrder           string
	MinAUM              float64
	RequirePrivateFunds bool
	Limit               int
}

// MergeResult is the final page plus the number of rows available before truncation.
type MergeResult struct {
	Results          []storage.SearchResult
	AvailableResults int
}

// MergeOptionsFor derives merge options from a plan and routing decision.
func MergeOptionsFor(plan *planner.QueryPlan, d RoutingDecision, limit int) MergeOptions {
	opts := MergeOptions{Limit: limit, SortOrder: d.SortOrder}
	if plan != nil {
		opts.SortBy = plan.Constraints.SortBy
		if plan.Constraints.SortOrder != "" {
			opts.SortOrder = plan.Constraints.SortOrder
		}
		opts.MinAUM = plan.MinAUMValue()
		opts.RequirePrivateFunds = plan.Constraints.RequirePrivateFunds
	}
	if d.SortByAUM {
		opts.SortBy = storage.SortByAUM
	}
	return opts
}

// Merge deduplicates rows by identity key keeping the first occurrence, applies the
// residual filters, stable-sorts by the requested field and truncates to Limit.
func Merge(rows []storage.SearchResult, opts MergeOptions) MergeResult {
	seen := make(map[string]bool, len(rows))
	out := make([]storage.SearchResult, 0, len(rows))
	for _, r := range rows {
		key := r.IdentityKey()
		if seen[key] {
			continue
		}
		seen[key] = true

		if opts.MinAUM > 0 && r.ResolvedAUM() < opts.MinAUM {
			continue
		}
		if opts.RequirePrivateFunds && r.ResolvedFundCount() <= 0 && len(r.PrivateFunds) == 0 {
			continue
		}
		out = append(out, r)
	}

	if value := sortValue(opts.SortBy); value != nil {
		desc := opts.SortOrder != planner.SortAsc
		sort.SliceStable(out, func(i, j int) bool {
			a, b := value(&out[i]), value(&out[j])
			if desc {
				return a > b
			}
			return a < b
		})
	}

	available := len(out)
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return MergeResult{Results: out, AvailableResults: available}
}

func sortValue(field string) func(*storage.SearchResult) float64 {
	switch field {
	case storage.SortByAUM:
		return (*storage.SearchResult).ResolvedAUM
	case storage.SortByEmployees:
		return func(r *storage.SearchResult) float64 { return r.EmployeeCount.Float() }
	case storage.SortByFunds:
		return (*storage.SearchResult).ResolvedFundCount
	default:
		return nil
	}
}
