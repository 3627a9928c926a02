// Package storagetest provides an in-memory storage.FirmStore for tests.
package storagetest

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/Turnstyle/ria-hunter-sub007/internal/storage"
)

// Store is an in-memory FirmStore. Matches plays the role of the hybrid search
// function's ranked output; the location filters are applied like the SQL function does.
type Store struct {
	Profiles   []storage.SearchResult
	Matches    []storage.HybridMatch
	Executives []storage.Executive
	Funds      []storage.PrivateFund

	HybridErr          error
	ProfilesErr        error
	QueryErr           error
	ExecutivesErr      error
	FundsErr           error
	SearchExecutiveErr error
	PingErr            error

	mu    sync.Mutex
	calls map[string]int
	last  map[string]any
}

var _ storage.FirmStore = (*Store)(nil)

// Calls returns how many times method was invoked.
func (s *Store) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// LastHybridParams returns the parameters of the most recent HybridSearch call.
func (s *Store) LastHybridParams() storage.HybridSearchParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, _ := s.last["HybridSearch"].(storage.HybridSearchParams)
	return p
}

// LastProfileQuery returns the most recent QueryProfiles argument.
func (s *Store) LastProfileQuery() storage.ProfileQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, _ := s.last["QueryProfiles"].(storage.ProfileQuery)
	return q
}

func (s *Store) record(method string, arg any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
		s.last = map[string]any{}
	}
	s.calls[method]++
	s.last[method] = arg
}

func (s *Store) HybridSearch(_ context.Context, p storage.HybridSearchParams) ([]storage.HybridMatch, error) {
	s.record("HybridSearch", p)
	if s.HybridErr != nil {
		return nil, s.HybridErr
	}
	byCRD := s.profileMap()
	var out []storage.HybridMatch
	for _, m := range s.Matches {
		prof, ok := byCRD[m.CRDNumber]
		if !ok {
			continue
		}
		if p.State != "" && !strings.EqualFold(prof.State, p.State) {
			continue
		}
		if m.Similarity < p.MatchThreshold {
			continue
		}
		out = append(out, m)
	}
	return page(out, p.Offset, p.MatchCount), nil
}

func (s *Store) ProfilesByCRD(_ context.Context, crds []string) ([]storage.SearchResult, error) {
	s.record("ProfilesByCRD", crds)
	if s.ProfilesErr != nil {
		return nil, s.ProfilesErr
	}
	want := make(map[string]bool, len(crds))
	for _, c := range crds {
		want[c] = true
	}
	var out []storage.SearchResult
	for _, r := range s.Profiles {
		if want[r.CRDNumber] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) QueryProfiles(_ context.Context, q storage.ProfileQuery) ([]storage.SearchResult, error) {
	s.record("QueryProfiles", q)
	if s.QueryErr != nil {
		return nil, s.QueryErr
	}
	exclude := make(map[string]bool, len(q.ExcludeCRDs))
	for _, c := range q.ExcludeCRDs {
		exclude[c] = true
	}

	var out []storage.SearchResult
	for _, r := range s.Profiles {
		if q.State != "" && !strings.EqualFold(r.State, q.State) {
			continue
		}
		if len(q.CityVariants)+len(q.NameTerms) > 0 && !matchesAnyTerm(r, q) {
			continue
		}
		if q.MinAUM > 0 && r.ResolvedAUM() < q.MinAUM {
			continue
		}
		if q.RequirePrivateFunds && r.ResolvedFundCount() <= 0 {
			continue
		}
		if exclude[r.CRDNumber] {
			continue
		}
		out = append(out, r)
	}

	value := func(r *storage.SearchResult) float64 {
		switch q.SortBy {
		case storage.SortByEmployees:
			return r.EmployeeCount.Float()
		case storage.SortByFunds:
			return r.ResolvedFundCount()
		default:
			return r.ResolvedAUM()
		}
	}
	desc := q.SortDesc || q.SortBy == ""
	sort.SliceStable(out, func(i, j int) bool {
		a, b := value(&out[i]), value(&out[j])
		// zero plays the role of NULL and sorts last in both directions
		if (a == 0) != (b == 0) {
			return b == 0
		}
		if a == b {
			return out[i].CRDNumber < out[j].CRDNumber
		}
		if desc {
			return a > b
		}
		return a < b
	})

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	return page(out, q.Offset, limit), nil
}

func (s *Store) ExecutivesByCRD(_ context.Context, crds []string) (map[string][]storage.Executive, error) {
	s.record("ExecutivesByCRD", crds)
	if s.ExecutivesErr != nil {
		return nil, s.ExecutivesErr
	}
	want := toSet(crds)
	out := map[string][]storage.Executive{}
	for _, e := range s.Executives {
		if want[e.CRDNumber] {
			out[e.CRDNumber] = append(out[e.CRDNumber], e)
		}
	}
	return out, nil
}

func (s *Store) PrivateFundsByCRD(_ context.Context, crds []string) (map[string][]storage.PrivateFund, error) {
	s.record("PrivateFundsByCRD", crds)
	if s.FundsErr != nil {
		return nil, s.FundsErr
	}
	want := toSet(crds)
	out := map[string][]storage.PrivateFund{}
	for _, f := range s.Funds {
		if want[f.CRDNumber] {
			out[f.CRDNumber] = append(out[f.CRDNumber], f)
		}
	}
	return out, nil
}

func (s *Store) SearchExecutives(_ context.Context, name string, limit int) ([]storage.Executive, error) {
	s.record("SearchExecutives", name)
	if s.SearchExecutiveErr != nil {
		return nil, s.SearchExecutiveErr
	}
	var out []storage.Executive
	for _, e := range s.Executives {
		if strings.Contains(strings.ToLower(e.Name), strings.ToLower(name)) {
			out = append(out, e)
		}
	}
	return page(out, 0, limit), nil
}

func (s *Store) Ping(context.Context) error {
	s.record("Ping", nil)
	return s.PingErr
}

func (s *Store) profileMap() map[string]storage.SearchResult {
	m := make(map[string]storage.SearchResult, len(s.Profiles))
	for _, r := range s.Profiles {
		m[r.CRDNumber] = r
	}
	return m
}

func matchesAnyTerm(r storage.SearchResult, q storage.ProfileQuery) bool {
	city := strings.ToLower(r.City)
	for _, v := range q.CityVariants {
		if strings.Contains(city, strings.ToLower(v)) {
			return true
		}
	}
	name := strings.ToLower(r.LegalName)
	for _, t := range q.NameTerms {
		if strings.Contains(name, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[s] = true
	}
	return m
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	if offset > 0 {
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
