package retrieval

import (
	"context"
	"errors"

	"github.com/Turnstyle/ria-hunter-sub007/internal/embedding"
	"github.com/Turnstyle/ria-hunter-sub007/internal/llm"
	"github.com/Turnstyle/ria-hunter-sub007/internal/location"
	"github.com/Turnstyle/ria-hunter-sub007/internal/planner"
	"github.com/Turnstyle/ria-hunter-sub007/internal/storage"
	"github.com/Turnstyle/ria-hunter-sub007/internal/storage/storagetest"
)

const testDim = 8

var errBoom = errors.New("boom")

// stLouisStore holds three St. Louis spellings, a giant without a narrative, a legacy
// schema row and an out-of-state firm.
func stLouisStore() *storagetest.Store {
	return &storagetest.Store{
		Profiles: []storage.SearchResult{
			{CRDNumber: "100", LegalName: "GATEWAY VENTURE ADVISORS", City: "ST. LOUIS", State: "MO", AUM: storage.Num(8e8), EmployeeCount: storage.Num(20), PrivateFundCount: storage.Num(2)},
			{CRDNumber: "200", LegalName: "ARCH WEALTH PARTNERS", City: "SAINT LOUIS", State: "MO", AUM: storage.Num(4.5e8), EmployeeCount: storage.Num(12)},
			{CRDNumber: "300", LegalName: "MISSISSIPPI GIANT CAPITAL", City: "ST LOUIS", State: "MO", AUM: storage.Num(9e11), EmployeeCount: storage.Num(9000)},
			{CRDNumber: "400", LegalName: "LEGACY GROWTH LLC", City: "CLAYTON", State: "MO", VCTotalAUM: storage.Num(1.2e8), VCFundCount: storage.Num(2)},
			{CRDNumber: "500", LegalName: "BAYSIDE ADVISERS", City: "SAN FRANCISCO", State: "CA", AUM: storage.Num(2e9), PrivateFundCount: storage.Num(6)},
		},
		Matches: []storage.HybridMatch{
			{CRDNumber: "100", Similarity: 0.91, CombinedRank: 0.8},
			{CRDNumber: "200", Similarity: 0.82, CombinedRank: 0.7},
			{CRDNumber: "500", Similarity: 0.75, CombinedRank: 0.6},
		},
		Executives: []storage.Executive{
			{CRDNumber: "100", Name: "Jane Smith", Title: "Managing Partner"},
			{CRDNumber: "100", Name: "Robert Jones"},
			{CRDNumber: "300", Name: "Alice Giant", Title: "CEO"},
		},
		Funds: []storage.PrivateFund{
			{CRDNumber: "100", FundName: "Gateway Fund I", FundType: "Venture Capital Fund", GrossAssetValue: storage.Num(1e8)},
		},
	}
}

func stLouisPlan(query string) *planner.QueryPlan {
	loc := location.Normalize("St. Louis")
	loc.State = "MO"
	return &planner.QueryPlan{
		Intent:             planner.IntentLocation,
		NormalizedLocation: &loc,
		SearchStrategy:     planner.StrategyHybrid,
		SemanticQuery:      query,
		Source:             planner.SourceFallback,
	}
}

func newTestExecutor(store storage.FirmStore, embedder embedding.Embedder) *Executor {
	return NewExecutor(store, embedder, ExecutorConfig{Dimension: testDim}, nil, nil)
}

// wrongDimEmbedder returns vectors of the wrong length, or none at all.
type wrongDimEmbedder struct{ dim int }

func (w wrongDimEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, w.dim)
	}
	return out, nil
}

func (w wrongDimEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	v, _ := w.Embed(ctx, []string{text})
	return v[0], nil
}

func (w wrongDimEmbedder) Model() string  { return "wrong" }
func (w wrongDimEmbedder) Dimension() int { return w.dim }

type failingEmbedder struct{ wrongDimEmbedder }

func (failingEmbedder) EmbedSingle(context.Context, string) ([]float32, error) {
	return nil, errBoom
}

type stubProvider struct {
	text string
	err  error
}

func (s stubProvider) Name() string { return "stub" }

func (s stubProvider) GenerateText(context.Context, llm.Request) (string, error) {
	return s.text, s.err
}

func (s stubProvider) StreamText(_ context.Context, _ llm.Request, onFragment func(string) error) error {
	if s.err != nil {
		return s.err
	}
	return onFragment(s.text)
}
