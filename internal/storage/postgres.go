package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresConfig holds pool settings for Open.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open opens a lib/pq connection pool and verifies connectivity.
func Open(ctx context.Context, cfg PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// PostgresStore implements FirmStore over the ria_profiles schema.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const profileColumns = `crd_number, legal_name, city, state, aum, employee_count,
	private_fund_count, private_fund_aum, vc_total_aum, vc_fund_count, activity_score`

// resolvedAUMExpr mirrors SearchResult.ResolvedAUM.
const resolvedAUMExpr = `(CASE WHEN aum > 0 THEN aum ELSE vc_total_aum END)`

const resolvedFundCountExpr = `(CASE WHEN private_fund_count > 0 THEN private_fund_count ELSE vc_fund_count END)`

var sortColumns = map[string]string{
	SortByAUM:       resolvedAUMExpr,
	SortByEmployees: "employee_count",
	SortByFunds:     resolvedFundCountExpr,
}

// HybridSearch calls search_rias_hybrid, which blends pgvector similarity with
// full-text rank. Its city_filter is always NULL: the function's single ILIKE drops
// alternate spellings ("Saint Louis" for "St. Louis"), so callers match city variants
// on the returned rows and location_match_score stays 0.
func (s *PostgresStore) HybridSearch(ctx context.Context, p HybridSearchParams) ([]HybridMatch, error) {
	query := `
		SELECT crd_number, similarity, combined_rank, semantic_score, fts_score, location_match_score
		FROM search_rias_hybrid($1::text, $2::vector, $3::float8, $4::int, $5::text, $6::text, $7::int)
	`
	rows, err := s.db.QueryContext(ctx, query,
		p.QueryText,
		VectorLiteral(p.Embedding),
		p.MatchThreshold,
		p.MatchCount,
		nullIfEmpty(p.State),
		nil,
		p.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	defer rows.Close()

	var out []HybridMatch
	for rows.Next() {
		var m HybridMatch
		var sim, rank, sem, fts, loc sql.NullFloat64
		if err := rows.Scan(&m.CRDNumber, &sim, &rank, &sem, &fts, &loc); err != nil {
			return nil, fmt.Errorf("scan hybrid match: %w", err)
		}
		m.Similarity, m.CombinedRank = sim.Float64, rank.Float64
		m.SemanticScore, m.FTSScore, m.LocationMatchScore = sem.Float64, fts.Float64, loc.Float64
		out = append(out, m)
	}
	return out, rows.Err()
}

// ProfilesByCRD loads profiles for crds. Order follows the database, not the input.
func (s *PostgresStore) ProfilesByCRD(ctx context.Context, crds []string) ([]SearchResult, error) {
	if len(crds) == 0 {
		return nil, nil
	}
	query := `SELECT ` + profileColumns + ` FROM ria_profiles WHERE crd_number = ANY($1)`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(crds))
	if err != nil {
		return nil, fmt.Errorf("profiles by crd: %w", err)
	}
	defer rows.Close()
	return scanProfiles(rows)
}

// QueryProfiles runs a structured filter over ria_profiles. Missing sort values sort last
// in both directions.
func (s *PostgresStore) QueryProfiles(ctx context.Context, q ProfileQuery) ([]SearchResult, error) {
	query, args := buildProfileQuery(q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()
	return scanProfiles(rows)
}

func buildProfileQuery(q ProfileQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if q.State != "" {
		where = append(where, "UPPER(state) = "+arg(strings.ToUpper(q.State)))
	}

	var ors []string
	for _, v := range q.CityVariants {
		if v = strings.TrimSpace(v); v != "" {
			ors = append(ors, "city ILIKE "+arg("%"+escapeLike(v)+"%"))
		}
	}
	for _, t := range q.NameTerms {
		if t = strings.TrimSpace(t); t != "" {
			ors = append(ors, "legal_name ILIKE "+arg("%"+escapeLike(t)+"%"))
		}
	}
	if len(ors) > 0 {
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}

	if q.MinAUM > 0 {
		where = append(where, "COALESCE("+resolvedAUMExpr+", 0) >= "+arg(q.MinAUM))
	}
	if q.RequirePrivateFunds {
		where = append(where, "COALESCE("+resolvedFundCountExpr+", 0) > 0")
	}
	if len(q.ExcludeCRDs) > 0 {
		where = append(where, "NOT (crd_number = ANY("+arg(pq.Array(q.ExcludeCRDs))+"))")
	}

	var b strings.Builder
	b.WriteString("SELECT " + profileColumns + " FROM ria_profiles")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}

	col, ok := sortColumns[q.SortBy]
	if !ok {
		col = resolvedAUMExpr
	}
	dir := "ASC"
	if q.SortDesc || q.SortBy == "" {
		dir = "DESC"
	}
	b.WriteString(" ORDER BY " + col + " " + dir + " NULLS LAST, crd_number")

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	b.WriteString(" LIMIT " + arg(limit))
	if q.Offset > 0 {
		b.WriteString(" OFFSET " + arg(q.Offset))
	}
	return b.String(), args
}

// ExecutivesByCRD returns control persons grouped by firm.
func (s *PostgresStore) ExecutivesByCRD(ctx context.Context, crds []string) (map[string][]Executive, error) {
	out := make(map[string][]Executive)
	if len(crds) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT crd_number, person_name, title
		FROM control_persons
		WHERE crd_number = ANY($1)
		ORDER BY crd_number, person_name
	`, pq.Array(crds))
	if err != nil {
		return nil, fmt.Errorf("executives by crd: %w", err)
	}
	defer rows.Close()

	execs, err := scanExecutives(rows)
	if err != nil {
		return nil, err
	}
	for _, e := range execs {
		out[e.CRDNumber] = append(out[e.CRDNumber], e)
	}
	return out, nil
}

// PrivateFundsByCRD returns private funds grouped by firm, largest first.
func (s *PostgresStore) PrivateFundsByCRD(ctx context.Context, crds []string) (map[string][]PrivateFund, error) {
	out := make(map[string][]PrivateFund)
	if len(crds) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT crd_number, fund_name, fund_type, gross_asset_value, min_investment
		FROM ria_private_funds
		WHERE crd_number = ANY($1)
		ORDER BY crd_number, gross_asset_value DESC NULLS LAST
	`, pq.Array(crds))
	if err != nil {
		return nil, fmt.Errorf("private funds by crd: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f PrivateFund
		var fundType sql.NullString
		if err := rows.Scan(&f.CRDNumber, &f.FundName, &fundType, &f.GrossAssetValue, &f.MinInvestment); err != nil {
			return nil, fmt.Errorf("scan private fund: %w", err)
		}
		f.FundType = fundType.String
		out[f.CRDNumber] = append(out[f.CRDNumber], f)
	}
	return out, rows.Err()
}

// SearchExecutives finds control persons whose name contains name.
func (s *PostgresStore) SearchExecutives(ctx context.Context, name string, limit int) ([]Executive, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT crd_number, person_name, title
		FROM control_persons
		WHERE person_name ILIKE $1
		ORDER BY person_name, crd_number
		LIMIT $2
	`, "%"+escapeLike(strings.TrimSpace(name))+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search executives: %w", err)
	}
	defer rows.Close()
	return scanExecutives(rows)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func scanProfiles(rows *sql.Rows) ([]SearchResult, error) {
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var name, city, state sql.NullString
		var activity sql.NullFloat64
		if err := rows.Scan(
			&r.CRDNumber, &name, &city, &state,
			&r.AUM, &r.EmployeeCount, &r.PrivateFundCount, &r.PrivateFundAUM,
			&r.VCTotalAUM, &r.VCFundCount, &activity,
		); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		r.LegalName, r.City, r.State = name.String, city.String, state.String
		if activity.Valid {
			r.ActivityScore = ptr(activity.Float64)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanExecutives(rows *sql.Rows) ([]Executive, error) {
	var out []Executive
	for rows.Next() {
		var e Executive
		var title sql.NullString
		if err := rows.Scan(&e.CRDNumber, &e.Name, &title); err != nil {
			return nil, fmt.Errorf("scan executive: %w", err)
		}
		e.Title = title.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// VectorLiteral formats v as a pgvector text literal: [0.1,0.2,...].
func VectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
