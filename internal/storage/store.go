package storage

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound indicates a missing record.
var ErrNotFound = errors.New("record not found")

// DB is the subset of *sql.DB used by the store.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PingContext(ctx context.Context) error
}

// Sort fields accepted by QueryProfiles.
const (
	SortByAUM       = "aum"
	SortByEmployees = "employees"
	SortByFunds     = "funds"
)

// HybridSearchParams are the inputs of the hybrid similarity + full-text function.
type HybridSearchParams struct {
	QueryText      string
	Embedding      []float32
	MatchThreshold float64
	MatchCount     int
	Offset         int
	State          string
}

// ProfileQuery describes a structured filter/sort/paginate request over ria_profiles.
type ProfileQuery struct {
	State string
	// CityVariants and NameTerms are OR-combined substring predicates.
	CityVariants        []string
	NameTerms           []string
	MinAUM              float64
	RequirePrivateFunds bool
	ExcludeCRDs         []string
	SortBy              string
	SortDesc            bool
	Limit               int
	Offset              int
}

// FirmStore is the data store consumed by the retrieval executor.
type FirmStore interface {
	HybridSearch(ctx context.Context, p HybridSearchParams) ([]HybridMatch, error)
	ProfilesByCRD(ctx context.Context, crds []string) ([]SearchResult, error)
	QueryProfiles(ctx context.Context, q ProfileQuery) ([]SearchResult, error)
	ExecutivesByCRD(ctx context.Context, crds []string) (map[string][]Executive, error)
	PrivateFundsByCRD(ctx context.Context, crds []string) (map[string][]PrivateFund, error)
	SearchExecutives(ctx context.Context, name string, limit int) ([]Executive, error)
	Ping(ctx context.Context) error
}

// TopByAUM returns the largest firms matching the location filter that are not in exclude.
func TopByAUM(ctx context.Context, s FirmStore, state string, cityVariants, exclude []string, limit int) ([]SearchResult, error) {
	return s.QueryProfiles(ctx, ProfileQuery{
		State:        state,
		CityVariants: cityVariants,
		ExcludeCRDs:  exclude,
		SortBy:       SortByAUM,
		SortDesc:     true,
		Limit:        limit,
	})
}
