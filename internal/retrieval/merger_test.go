package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Turnstyle/ria-hunter-sub007/internal/planner"
	"github.com/Turnstyle/ria-hunter-sub007/internal/storage"
)

func TestMerge_DeduplicatesKeepingFirst(t *testing.T) {
	rows := []storage.SearchResult{
		{CRDNumber: "1", LegalName: "First", Source: storage.SourceSemantic},
		{CRDNumber: "2", LegalName: "Second"},
		{CRDNumber: "1", LegalName: "First again", Source: storage.SourceStructured},
		{LegalName: "No CRD", City: "Austin", State: "TX"},
		{LegalName: "no crd ", City: " AUSTIN", State: "tx"},
	}

	res := Merge(rows, MergeOptions{})

	assert.Equal(t, 3, res.AvailableResults)
	assert.Len(t, res.Results, 3)
	assert.Equal(t, "First", res.Results[0].LegalName)
	assert.Equal(t, storage.SourceSemantic, res.Results[0].Source)
	assert.Equal(t, "No CRD", res.Results[2].LegalName)
}

func TestMerge_SortsMissingAUMLast(t *testing.T) {
	rows := []storage.SearchResult{
		{CRDNumber: "null"},
		{CRDNumber: "500", AUM: storage.Num(500)},
		{CRDNumber: "garbage", AUM: storage.Number{Raw: "n/a"}},
		{CRDNumber: "1000", AUM: storage.Num(1000)},
	}

	res := Merge(rows, MergeOptions{SortBy: storage.SortByAUM, SortOrder: planner.SortDesc})
	assert.Equal(t, []string{"1000", "500", "null", "garbage"}, crds(res.Results))

	res = Merge(rows, MergeOptions{SortBy: storage.SortByAUM, SortOrder: planner.SortDesc, Limit: 2})
	assert.Equal(t, []string{"1000", "500"}, crds(res.Results))
	assert.Equal(t, 4, res.AvailableResults)
}

func TestMerge_Options(t *testing.T) {
	rows := []storage.SearchResult{
		{CRDNumber: "a", AUM: storage.Num(5e8), EmployeeCount: storage.Num(40)},
		{CRDNumber: "b", AUM: storage.Num(2e9), EmployeeCount: storage.Num(10), PrivateFundCount: storage.Num(3)},
		{CRDNumber: "c", VCTotalAUM: storage.Num(1.5e9), VCFundCount: storage.Num(1), EmployeeCount: storage.Num(25)},
		{CRDNumber: "d", AUM: storage.Num(1e9), PrivateFunds: []storage.PrivateFund{{FundName: "D Fund"}}},
	}

	tests := []struct {
		name string
		opts MergeOptions
		want []string
	}{
		{"no sort keeps order", MergeOptions{}, []string{"a", "b", "c", "d"}},
		{"aum descending resolves legacy column", MergeOptions{SortBy: storage.SortByAUM}, []string{"b", "c", "d", "a"}},
		{"aum ascending", MergeOptions{SortBy: storage.SortByAUM, SortOrder: planner.SortAsc}, []string{"a", "d", "c", "b"}},
		{"employees", MergeOptions{SortBy: storage.SortByEmployees}, []string{"a", "c", "b", "d"}},
		{"funds", MergeOptions{SortBy: storage.SortByFunds}, []string{"b", "c", "a", "d"}},
		{"min aum", MergeOptions{MinAUM: 1e9}, []string{"b", "c", "d"}},
		{"private funds", MergeOptions{RequirePrivateFunds: true}, []string{"b", "c", "d"}},
		{"filters then limit", MergeOptions{MinAUM: 1e9, SortBy: storage.SortByAUM, Limit: 1}, []string{"b"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, crds(Merge(rows, tc.opts).Results))
		})
	}
}

func TestMerge_Empty(t *testing.T) {
	res := Merge(nil, MergeOptions{Limit: 10})
	assert.NotNil(t, res.Results)
	assert.Empty(t, res.Results)
	assert.Zero(t, res.AvailableResults)
}

func TestMergeOptionsFor(t *testing.T) {
	floor := 5e8
	plan := &planner.QueryPlan{Constraints: planner.Constraints{
		SortBy:              storage.SortByEmployees,
		SortOrder:           planner.SortAsc,
		MinAUM:              &floor,
		RequirePrivateFunds: true,
	}}

	opts := MergeOptionsFor(plan, RoutingDecision{}, 7)
	assert.Equal(t, MergeOptions{SortBy: storage.SortByEmployees, SortOrder: planner.SortAsc, MinAUM: floor, RequirePrivateFunds: true, Limit: 7}, opts)

	opts = MergeOptionsFor(plan, RoutingDecision{SortByAUM: true, SortOrder: planner.SortDesc}, 7)
	assert.Equal(t, storage.SortByAUM, opts.SortBy)
	assert.Equal(t, planner.SortAsc, opts.SortOrder)

	opts = MergeOptionsFor(nil, RoutingDecision{SortByAUM: true, SortOrder: planner.SortDesc}, 3)
	assert.Equal(t, MergeOptions{SortBy: storage.SortByAUM, SortOrder: planner.SortDesc, Limit: 3}, opts)
}

func TestExtractPersonName(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{`which firm does "Jane Smith" run`, "Jane Smith"},
		{"advisers named John Q Public at Edward Jones", "John Q Public"},
		{"who is Warren Buffett", "Warren Buffett"},
		{"Who is the CEO of Edward Jones", "Edward Jones"},
		{"executives at firms run by Mary Ellen O'Neil", "Mary Ellen O'Neil"},
		{"CEO of RIA firms", ""},
		{"venture capital firms", ""},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractPersonName(tc.query))
		})
	}
}
