package planner

import (
	"context"
	"testing"
	"time"

	"github.com/Turnstyle/ria-hunter-sub007/internal/cache"
	"github.com/Turnstyle/ria-hunter-sub007/internal/domain"
	"github.com/Turnstyle/ria-hunter-sub007/internal/llm"
	"github.com/Turnstyle/ria-hunter-sub007/internal/location"
	"github.com/Turnstyle/ria-hunter-sub007/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDecomposer struct {
	result *Decomposition
	err    error
	calls  int
}

func (f *fakeDecomposer) Decompose(_ context.Context, _ string) (*Decomposition, error) {
	f.calls++
	return f.result, f.err
}

func TestFallback(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		wantIntent  Intent
		wantCity    string
		wantState   string
		wantSortBy  string
		wantOrder   string
		wantMinAUM  float64
		wantPrivate bool
		wantHint    Strategy
	}{
		{
			name:       "superlative with ambiguous city",
			query:      "10 largest RIAs in St. Louis",
			wantIntent: IntentSuperlative,
			wantCity:   "St. Louis",
			wantState:  "MO",
			wantSortBy: storage.SortByAUM,
			wantOrder:  SortDesc,
			wantHint:   StrategyStructured,
		},
		{
			name:       "ascending with city and state",
			query:      "smallest advisers in Austin, TX",
			wantIntent: IntentSuperlative,
			wantCity:   "Austin",
			wantState:  "TX",
			wantSortBy: storage.SortByAUM,
			wantOrder:  SortAsc,
			wantHint:   StrategyStructured,
		},
		{
			name:        "state name with filters",
			query:       "venture capital firms in Missouri with over $500 million",
			wantIntent:  IntentLocation,
			wantState:   "MO",
			wantMinAUM:  500e6,
			wantPrivate: true,
			wantHint:    StrategyHybrid,
		},
		{
			name:       "executive lookup",
			query:      "Who is the CEO of Edward Jones",
			wantIntent: IntentExecutive,
			wantHint:   StrategyExecutive,
		},
		{
			name:       "literal state code",
			query:      "retirement planning advisers CA",
			wantIntent: IntentLocation,
			wantState:  "CA",
			wantHint:   StrategyHybrid,
		},
		{
			name:       "trailing state without comma",
			query:      "top firms in Kansas City MO by employees",
			wantIntent: IntentSuperlative,
			wantCity:   "Kansas City",
			wantState:  "MO",
			wantSortBy: storage.SortByEmployees,
			wantOrder:  SortDesc,
			wantHint:   StrategyHybrid,
		},
		{
			name:       "metro synonym",
			query:      "wealth managers in NYC over $1.5B",
			wantIntent: IntentLocation,
			wantCity:   "New York",
			wantState:  "NY",
			wantMinAUM: 1.5e9,
			wantHint:   StrategyHybrid,
		},
		{
			name:       "no location",
			query:      "ESG focused sustainable investing",
			wantIntent: IntentMixed,
			wantHint:   StrategyHybrid,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan := Fallback(tc.query)

			assert.Equal(t, tc.wantIntent, plan.Intent)
			assert.Equal(t, tc.wantCity, plan.City())
			assert.Equal(t, tc.wantState, plan.State())
			assert.Equal(t, tc.wantSortBy, plan.Constraints.SortBy)
			assert.Equal(t, tc.wantOrder, plan.Constraints.SortOrder)
			assert.Equal(t, tc.wantMinAUM, plan.MinAUMValue())
			assert.Equal(t, tc.wantPrivate, plan.Constraints.RequirePrivateFunds)
			assert.Equal(t, tc.wantHint, plan.SearchStrategy)
			assert.Equal(t, SourceFallback, plan.Source)
			assert.Equal(t, tc.query, plan.SemanticQuery)
			assert.GreaterOrEqual(t, plan.Confidence, 0.0)
			assert.LessOrEqual(t, plan.Confidence, 1.0)
			if tc.wantCity != "" {
				require.NotEmpty(t, plan.CityVariants())
				assert.Equal(t, tc.wantCity, plan.CityVariants()[0])
			}
		})
	}
}

func TestPlanner_AIPath(t *testing.T) {
	d := &fakeDecomposer{result: &Decomposition{
		SemanticQuery: "venture capital advisers",
		StructuredFilters: StructuredFilters{
			Location: "Saint Louis, MO",
			MinAUM:   storage.Num(1e9),
			Services: []string{"venture capital"},
		},
	}}
	p := New(d, nil, Config{}, nil, nil)

	plan, err := p.Decompose(context.Background(), "biggest VC advisers around st louis")
	require.NoError(t, err)

	assert.Equal(t, SourceAI, plan.Source)
	assert.Equal(t, "venture capital advisers", plan.SemanticQuery)
	assert.Equal(t, "St. Louis", plan.City())
	assert.Equal(t, "MO", plan.State())
	assert.Equal(t, 1e9, plan.MinAUMValue())
	assert.True(t, plan.Constraints.RequirePrivateFunds)
	assert.Equal(t, IntentSuperlative, plan.Intent)
	assert.Equal(t, []string{"venture capital"}, plan.Services)
}

func TestPlanner_FallsBackOnDecomposerFailure(t *testing.T) {
	tests := []struct {
		name string
		d    *fakeDecomposer
	}{
		{"error", &fakeDecomposer{err: domain.UpstreamError("timeout", context.DeadlineExceeded)}},
		{"nil result", &fakeDecomposer{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := New(tc.d, nil, Config{DecomposeTimeout: time.Second}, nil, nil)
			plan, err := p.Decompose(context.Background(), "largest RIAs in St. Louis")
			require.NoError(t, err)
			assert.Equal(t, SourceFallback, plan.Source)
			assert.Equal(t, "St. Louis", plan.City())
			assert.Equal(t, 1, tc.d.calls)
		})
	}
}

func TestPlanner_EmptyQuery(t *testing.T) {
	p := New(nil, nil, Config{}, nil, nil)
	_, err := p.Decompose(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}

func TestPlanner_Cache(t *testing.T) {
	c := cache.NewMemoryClient(10, 0)
	defer c.Close()

	d := &fakeDecomposer{result: &Decomposition{SemanticQuery: "family office advisers"}}
	p := New(d, c, Config{CacheTTL: time.Minute}, nil, nil)
	ctx := context.Background()

	first, err := p.Decompose(ctx, "Family office advisers in Denver")
	require.NoError(t, err)
	second, err := p.Decompose(ctx, "  Family office advisers   in Denver ")
	require.NoError(t, err)

	assert.Equal(t, 1, d.calls, "second lookup is served from cache")
	assert.Equal(t, first.SemanticQuery, second.SemanticQuery)
	assert.Equal(t, first.City(), second.City())

	require.NoError(t, c.DeleteByPrefix(ctx, "plan:"))
	_, err = p.Decompose(ctx, "Family office advisers in Denver")
	require.NoError(t, err)
	assert.Equal(t, 2, d.calls)
}

func TestPlanner_CacheKeepsCaseSensitivePlans(t *testing.T) {
	c := cache.NewMemoryClient(10, 0)
	defer c.Close()
	ctx := context.Background()

	uncached, err := New(nil, nil, Config{}, nil, nil).Decompose(ctx, "RIAs near Boston MA")
	require.NoError(t, err)
	require.Equal(t, "MA", uncached.State())

	p := New(nil, c, Config{CacheTTL: time.Minute}, nil, nil)
	lower, err := p.Decompose(ctx, "rias near boston ma")
	require.NoError(t, err)
	upper, err := p.Decompose(ctx, "RIAs near Boston MA")
	require.NoError(t, err)

	assert.Equal(t, uncached.State(), upper.State())
	assert.Equal(t, uncached.City(), upper.City())
	assert.Equal(t, uncached.SearchStrategy, upper.SearchStrategy)

	fresh, err := New(nil, nil, Config{}, nil, nil).Decompose(ctx, "rias near boston ma")
	require.NoError(t, err)
	assert.Equal(t, fresh.State(), lower.State())
}

func TestApplyOverrides(t *testing.T) {
	base := *Fallback("largest RIAs in St. Louis")
	minAUM := 2e9
	negative := -5.0
	yes := true

	t.Run("valid overrides win", func(t *testing.T) {
		got, rejected := ApplyOverrides(base, Overrides{
			SortBy:              "Employees",
			SortOrder:           "ASC",
			MinAUM:              &minAUM,
			RequirePrivateFunds: &yes,
		})
		assert.Empty(t, rejected)
		assert.Equal(t, storage.SortByEmployees, got.Constraints.SortBy)
		assert.Equal(t, SortAsc, got.Constraints.SortOrder)
		assert.Equal(t, 2e9, got.MinAUMValue())
		assert.True(t, got.Constraints.RequirePrivateFunds)
	})

	t.Run("invalid values are ignored", func(t *testing.T) {
		got, rejected := ApplyOverrides(base, Overrides{
			SortBy:    "legal_name; DROP TABLE ria_profiles",
			SortOrder: "sideways",
			MinAUM:    &negative,
			State:     "Atlantis",
		})
		assert.ElementsMatch(t, []string{"sortBy", "sortOrder", "minAum", "state"}, rejected)
		assert.Equal(t, base.Constraints, got.Constraints)
		assert.Equal(t, "MO", got.State())
	})

	t.Run("location override", func(t *testing.T) {
		got, rejected := ApplyOverrides(base, Overrides{City: "ft worth", State: "texas"})
		assert.Empty(t, rejected)
		assert.Equal(t, "Fort Worth", got.City())
		assert.Equal(t, "TX", got.State())
		assert.Equal(t, "St. Louis", base.City(), "input plan is not mutated")
	})

	t.Run("state only", func(t *testing.T) {
		plan := *Fallback("ESG investing")
		got, _ := ApplyOverrides(plan, Overrides{State: "il"})
		assert.Equal(t, "IL", got.State())
		assert.Empty(t, got.City())
	})
}

func TestParseDecomposition(t *testing.T) {
	d, err := ParseDecomposition("```json\n{\"semantic_query\":\"hedge funds\",\"structured_filters\":{\"location\":\"TX\",\"min_aum\":\"1000000\"}}\n```")
	require.NoError(t, err)
	assert.Equal(t, "hedge funds", d.SemanticQuery)
	assert.Equal(t, "TX", d.StructuredFilters.Location)
	assert.Equal(t, 1e6, d.StructuredFilters.MinAUM.Float())

	_, err = ParseDecomposition("I cannot help with that")
	assert.True(t, domain.IsType(err, domain.ErrorTypeUpstream))

	_, err = ParseDecomposition(`{"structured_filters":{}}`)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}

func TestLLMDecomposer_NotConfigured(t *testing.T) {
	assert.Nil(t, NewLLMDecomposer(nil))

	var d *LLMDecomposer
	_, err := d.Decompose(context.Background(), "q")
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfiguration))
	assert.ErrorIs(t, err, llm.ErrNotConfigured)
}

func TestSignificantTerms(t *testing.T) {
	loc := location.Normalize("St. Louis")
	loc.State = "MO"
	assert.Empty(t, SignificantTerms("10 largest RIAs in St. Louis, MO", &loc))
	assert.Equal(t, []string{"edward", "jones"}, SignificantTerms("Edward Jones advisers", nil))
}
