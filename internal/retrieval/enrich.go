package retrieval

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Turnstyle/ria-hunter-sub007/internal/storage"
)

// enrich attaches executives and private funds to rows in place. The two lookups run
// concurrently and a failed lookup leaves empty arrays instead of failing the request.
func (s *retriever) enrich(ctx context.Context, rows []storage.SearchResult) {
	crds := crdSet(rows)
	if len(crds) == 0 {
		for i := range rows {
			ensureArrays(&rows[i])
		}
		return
	}

	var (
		execs map[string][]storage.Executive
		funds map[string][]storage.PrivateFund
		g     errgroup.Group
	)
	g.Go(func() error {
		m, err := s.store.ExecutivesByCRD(ctx, crds)
		if err != nil {
			s.logger.Warn().Err(err).Int("firms", len(crds)).Msg("Executive enrichment failed")
			s.metrics.EnrichmentFailed("executives")
			return nil
		}
		execs = m
		return nil
	})
	g.Go(func() error {
		m, err := s.store.PrivateFundsByCRD(ctx, crds)
		if err != nil {
			s.logger.Warn().Err(err).Int("firms", len(crds)).Msg("Private fund enrichment failed")
			s.metrics.EnrichmentFailed("private_funds")
			return nil
		}
		funds = m
		return nil
	})
	_ = g.Wait()

	for i := range rows {
		r := &rows[i]
		if e := execs[r.CRDNumber]; len(e) > 0 {
			r.Executives = e[:min(len(e), s.cfg.MaxExecutives)]
		}
		if f := funds[r.CRDNumber]; len(f) > 0 {
			r.PrivateFunds = f
		}
		ensureArrays(r)
	}
}

// attachFunds is the funds-only enrichment used when executives are already attached.
func (s *retriever) attachFunds(ctx context.Context, rows []storage.SearchResult) {
	crds := crdSet(rows)
	if len(crds) > 0 {
		funds, err := s.store.PrivateFundsByCRD(ctx, crds)
		if err != nil {
			s.logger.Warn().Err(err).Int("firms", len(crds)).Msg("Private fund enrichment failed")
			s.metrics.EnrichmentFailed("private_funds")
		}
		for i := range rows {
			if f := funds[rows[i].CRDNumber]; len(f) > 0 {
				rows[i].PrivateFunds = f
			}
		}
	}
	for i := range rows {
		ensureArrays(&rows[i])
	}
}

func crdSet(rows []storage.SearchResult) []string {
	seen := make(map[string]bool, len(rows))
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.CRDNumber == "" || seen[r.CRDNumber] {
			continue
		}
		seen[r.CRDNumber] = true
		out = append(out, r.CRDNumber)
	}
	return out
}

// ensureArrays keeps enrichment fields as [] rather than null in JSON.
func ensureArrays(r *storage.SearchResult) {
	if r.Executives == nil {
		r.Executives = []storage.Executive{}
	}
	if r.PrivateFunds == nil {
		r.PrivateFunds = []storage.PrivateFund{}
	}
}
