package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/Turnstyle/ria-hunter-sub007/internal/domain"
	"github.com/Turnstyle/ria-hunter-sub007/internal/embedding"
	"github.com/Turnstyle/ria-hunter-sub007/internal/location"
	"github.com/Turnstyle/ria-hunter-sub007/internal/metrics"
	"github.com/Turnstyle/ria-hunter-sub007/internal/observability"
	"github.com/Turnstyle/ria-hunter-sub007/internal/planner"
	"github.com/Turnstyle/ria-hunter-sub007/internal/storage"
)

const (
	aumOverFetchFactor = 3
	aumOverFetchMin    = 100
	executiveMatchCap  = 50
)

// retriever holds the dependencies shared by all strategies.
type retriever struct {
	store    storage.FirmStore
	embedder embedding.Embedder
	cfg      ExecutorConfig
	logger   *observability.Logger
	metrics  *metrics.Metrics
}

type semanticStrategy struct{ *retriever }

func (s *semanticStrategy) Name() string { return NameSemantic }

// Attempt embeds the query, calls the hybrid search function, loads full profiles,
// supplements missing high-AUM firms at the location and enriches the page.
func (s *semanticStrategy) Attempt(ctx context.Context, req *Request) ([]storage.SearchResult, error) {
	rows, err := s.semanticRows(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	inMemory := req.windowInMemory()
	target := req.Limit
	if inMemory {
		target += req.Offset
	}
	if len(rows) < target && hasLocation(req) && (inMemory || req.Offset == 0) {
		rows = append(rows, s.supplement(ctx, req, rows, target-len(rows))...)
	}
	if req.sortByAUM() {
		sortByResolvedAUM(rows, req.descending())
	}
	if inMemory {
		rows = window(rows, req.Offset)
	}

	s.enrich(ctx, rows)
	return rows, nil
}

// semanticRows returns filtered, unenriched rows in similarity order. When rows are
// sorted or filtered in memory it over-fetches from offset zero. City variants are
// matched here because the search function's single ILIKE misses alternate spellings.
func (s *retriever) semanticRows(ctx context.Context, req *Request) ([]storage.SearchResult, error) {
	if s.embedder == nil {
		return nil, domain.ConfigurationError("embedding provider not configured", nil)
	}
	text := req.semanticQuery()
	vec, err := s.embedder.EmbedSingle(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if err := embedding.ValidateDimension(vec, s.cfg.Dimension); err != nil {
		return nil, domain.ValidationError("query embedding rejected", err)
	}

	params := storage.HybridSearchParams{
		QueryText:      text,
		Embedding:      vec,
		MatchThreshold: s.cfg.MatchThreshold,
		MatchCount:     req.Limit,
		Offset:         req.Offset,
		State:          planState(req),
	}
	if req.windowInMemory() {
		params.MatchCount = max((req.Limit+req.Offset)*aumOverFetchFactor, aumOverFetchMin)
		params.Offset = 0
	}

	matches, err := s.store.HybridSearch(ctx, params)
	if err != nil {
		return nil, domain.UpstreamError("hybrid search failed", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	crds := make([]string, 0, len(matches))
	for _, m := range matches {
		crds = append(crds, m.CRDNumber)
	}
	profiles, err := s.store.ProfilesByCRD(ctx, crds)
	if err != nil {
		return nil, domain.UpstreamError("profile lookup failed", err)
	}
	byCRD := make(map[string]storage.SearchResult, len(profiles))
	for _, p := range profiles {
		byCRD[p.CRDNumber] = p
	}

	rows := make([]storage.SearchResult, 0, len(matches))
	for _, m := range matches {
		p, ok := byCRD[m.CRDNumber]
		if !ok {
			continue
		}
		m.Apply(&p)
		p.Source = storage.SourceSemantic
		if !matchesFilters(&p, req) {
			continue
		}
		rows = append(rows, p)
	}
	return rows, nil
}

// supplement fetches the largest firms at the location that the similarity search missed.
// Failures are logged and yield nothing.
func (s *retriever) supplement(ctx context.Context, req *Request, have []storage.SearchResult, need int) []storage.SearchResult {
	exclude := make([]string, 0, len(have))
	for _, r := range have {
		if r.CRDNumber != "" {
			exclude = append(exclude, r.CRDNumber)
		}
	}
	extra, err := storage.TopByAUM(ctx, s.store, planState(req), req.Plan.CityVariants(), exclude, need)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Supplement lookup failed")
		return nil
	}

	zero := 0.0
	out := make([]storage.SearchResult, 0, len(extra))
	for _, r := range extra {
		if !matchesFilters(&r, req) {
			continue
		}
		r.Similarity = &zero
		r.Source = storage.SourceSupplement
		out = append(out, r)
	}
	return out
}

type structuredStrategy struct{ *retriever }

func (s *structuredStrategy) Name() string { return NameStructured }

// Attempt filters ria_profiles by state, location variants and name tokens.
func (s *structuredStrategy) Attempt(ctx context.Context, req *Request) ([]storage.SearchResult, error) {
	q := s.profileQuery(req)
	q.NameTerms = planner.SignificantTerms(req.Query, locationOf(req))
	return s.queryAndEnrich(ctx, q, storage.SourceStructured)
}

type structuredAUMStrategy struct{ *retriever }

func (s *structuredAUMStrategy) Name() string { return NameStructuredAUM }

// Attempt lists the location's firms by resolved AUM.
func (s *structuredAUMStrategy) Attempt(ctx context.Context, req *Request) ([]storage.SearchResult, error) {
	q := s.profileQuery(req)
	q.SortBy = storage.SortByAUM
	q.SortDesc = req.descending()
	return s.queryAndEnrich(ctx, q, storage.SourceStructured)
}

func (s *retriever) profileQuery(req *Request) storage.ProfileQuery {
	q := storage.ProfileQuery{
		State:        planState(req),
		CityVariants: req.Plan.CityVariants(),
		MinAUM:       req.Plan.MinAUMValue(),
		SortBy:       storage.SortByAUM,
		SortDesc:     req.descending(),
		Limit:        req.Limit,
		Offset:       req.Offset,
	}
	if req.Plan != nil {
		q.RequirePrivateFunds = req.Plan.Constraints.RequirePrivateFunds
		if req.Plan.Constraints.SortBy != "" {
			q.SortBy = req.Plan.Constraints.SortBy
		}
	}
	if req.Decision.SortByAUM {
		q.SortBy = storage.SortByAUM
	}
	return q
}

func (s *retriever) queryAndEnrich(ctx context.Context, q storage.ProfileQuery, source string) ([]storage.SearchResult, error) {
	rows, err := s.store.QueryProfiles(ctx, q)
	if err != nil {
		return nil, domain.UpstreamError("structured query failed", err)
	}
	for i := range rows {
		rows[i].Source = source
	}
	s.enrich(ctx, rows)
	return rows, nil
}

type executiveStrategy struct{ *retriever }

func (s *executiveStrategy) Name() string { return NameExecutive }

// Attempt finds firms through control persons whose name matches the query.
func (s *executiveStrategy) Attempt(ctx context.Context, req *Request) ([]storage.SearchResult, error) {
	name := ExtractPersonName(req.Query)
	if name == "" {
		return nil, domain.ValidationError("no person name in query", nil)
	}

	execs, err := s.store.SearchExecutives(ctx, name, executiveMatchCap)
	if err != nil {
		return nil, domain.UpstreamError("executive search failed", err)
	}
	if len(execs) == 0 {
		return nil, nil
	}

	var crds []string
	matched := make(map[string][]storage.Executive)
	for _, e := range execs {
		if _, seen := matched[e.CRDNumber]; !seen {
			crds = append(crds, e.CRDNumber)
		}
		matched[e.CRDNumber] = append(matched[e.CRDNumber], e)
	}

	profiles, err := s.store.ProfilesByCRD(ctx, crds)
	if err != nil {
		return nil, domain.UpstreamError("profile lookup failed", err)
	}
	byCRD := make(map[string]storage.SearchResult, len(profiles))
	for _, p := range profiles {
		byCRD[p.CRDNumber] = p
	}

	rows := make([]storage.SearchResult, 0, len(crds))
	for _, crd := range crds {
		p, ok := byCRD[crd]
		if !ok {
			continue
		}
		p.Source = storage.SourceExecutive
		p.Executives = matched[crd]
		rows = append(rows, p)
	}
	rows = window(rows, req.Offset)

	s.attachFunds(ctx, rows)
	return rows, nil
}

type superlativeStrategy struct{ *retriever }

func (s *superlativeStrategy) Name() string { return NameSuperlative }

// Attempt runs the semantic path, then an exhaustive AUM scan over the same location,
// merges both preferring semantic provenance and orders by resolved AUM.
func (s *superlativeStrategy) Attempt(ctx context.Context, req *Request) ([]storage.SearchResult, error) {
	semantic, err := s.semanticRows(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(semantic) == 0 {
		return nil, nil
	}

	scanQuery := storage.ProfileQuery{
		State:        planState(req),
		CityVariants: req.Plan.CityVariants(),
		MinAUM:       req.Plan.MinAUMValue(),
		SortBy:       storage.SortByAUM,
		SortDesc:     req.descending(),
		Limit:        s.cfg.SuperlativeScanLimit,
	}
	if req.Plan != nil {
		scanQuery.RequirePrivateFunds = req.Plan.Constraints.RequirePrivateFunds
	}
	scanned, err := s.store.QueryProfiles(ctx, scanQuery)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Superlative AUM scan failed, using semantic rows only")
	}

	seen := make(map[string]bool, len(semantic)+len(scanned))
	rows := make([]storage.SearchResult, 0, len(semantic)+len(scanned))
	for _, r := range semantic {
		seen[r.IdentityKey()] = true
		rows = append(rows, r)
	}
	for _, r := range scanned {
		if seen[r.IdentityKey()] {
			continue
		}
		seen[r.IdentityKey()] = true
		r.Source = storage.SourceAUMScan
		rows = append(rows, r)
	}

	sortByResolvedAUM(rows, req.descending())
	rows = window(rows, req.Offset)

	n := min(len(rows), max(s.cfg.EnrichmentWindow, req.Limit))
	s.enrich(ctx, rows[:n])
	for i := n; i < len(rows); i++ {
		ensureArrays(&rows[i])
	}
	return rows, nil
}

// matchesFilters applies the location and minimum AUM filters in memory.
func matchesFilters(r *storage.SearchResult, req *Request) bool {
	if state := planState(req); state != "" && !strings.EqualFold(strings.TrimSpace(r.State), state) {
		return false
	}
	if variants := req.Plan.CityVariants(); len(variants) > 0 && !location.MatchesAny(r.City, variants) {
		return false
	}
	if floor := req.Plan.MinAUMValue(); floor > 0 && r.ResolvedAUM() < floor {
		return false
	}
	return true
}

func hasLocation(req *Request) bool {
	return planState(req) != "" || len(req.Plan.CityVariants()) > 0
}

func planState(req *Request) string { return req.Plan.State() }

func locationOf(req *Request) *location.Location {
	if req.Plan == nil {
		return nil
	}
	return req.Plan.NormalizedLocation
}

func sortByResolvedAUM(rows []storage.SearchResult, desc bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].ResolvedAUM(), rows[j].ResolvedAUM()
		if desc {
			return a > b
		}
		return a < b
	})
}

func window(rows []storage.SearchResult, offset int) []storage.SearchResult {
	if offset <= 0 {
		return rows
	}
	if offset >= len(rows) {
		return nil
	}
	return rows[offset:]
}

var (
	quotedName   = regexp.MustCompile(`["“]([^"”]{3,})["”]`)
	namedPhrase  = regexp.MustCompile(`(?i)\b(?:named|called)\s+([A-Za-z][A-Za-z.'\-]*(?:\s+[A-Za-z][A-Za-z.'\-]*){0,2})`)
	whoIsPhrase  = regexp.MustCompile(`(?i)\bwho\s+is\s+([A-Za-z][A-Za-z.'\-]*(?:\s+[A-Za-z][A-Za-z.'\-]*){0,2})`)
	notAPersonRE = regexp.MustCompile(`(?i)^(the|a|an|ceo|cfo|coo|cio|cco|president|founder|owner|head|chief|managing|principal|in|at|of|running|behind)\b`)
)

// ExtractPersonName pulls a person-name fragment from quoted text, "named X", "who is X"
// or the last run of two or more capitalized words.
func ExtractPersonName(query string) string {
	if m := quotedName.FindStringSubmatch(query); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := namedPhrase.FindStringSubmatch(query); m != nil {
		return trimNameTail(m[1])
	}
	if m := whoIsPhrase.FindStringSubmatch(query); m != nil && !notAPersonRE.MatchString(m[1]) {
		return trimNameTail(m[1])
	}
	return lastCapitalizedRun(query)
}

var nameTailStops = map[string]bool{"at": true, "in": true, "from": true, "of": true, "with": true, "and": true, "who": true}

func trimNameTail(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if nameTailStops[strings.ToLower(w)] {
			words = words[:i]
			break
		}
	}
	return strings.Join(words, " ")
}

func lastCapitalizedRun(query string) string {
	var best, run []string
	flush := func() {
		if len(run) >= 2 {
			best = append([]string(nil), run...)
		}
		run = run[:0]
	}
	for _, w := range strings.Fields(query) {
		w = strings.Trim(w, ",.?!;:()")
		if isCapitalizedWord(w) {
			run = append(run, w)
			continue
		}
		flush()
	}
	flush()
	return strings.Join(best, " ")
}

// isCapitalizedWord accepts "Smith" and "O'Neil" but not acronyms such as "CEO" or "RIA".
func isCapitalizedWord(w string) bool {
	runes := []rune(w)
	if len(runes) < 2 || !unicode.IsUpper(runes[0]) {
		return false
	}
	for _, r := range runes[1:] {
		if unicode.IsLower(r) {
			return true
		}
	}
	return false
}
