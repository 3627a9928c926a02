// Package storage provides firm-profile models and the Postgres-backed firm store.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Number is a lenient numeric field. Profile columns arrive as numbers, numeric strings,
// nulls or junk ("n/a"); Float coerces anything non-numeric to zero.
type Number struct {
	Value float64
	Valid bool
	// Raw keeps a non-numeric source value so it round-trips to clients unchanged.
	Raw string
}

// Num returns a valid Number.
func Num(v float64) Number { return Number{Value: v, Valid: true} }

// Float returns the value, or 0 when missing or non-numeric.
func (n Number) Float() float64 {
	if n.Valid {
		return n.Value
	}
	return 0
}

// Positive reports whether the value is present and > 0.
func (n Number) Positive() bool { return n.Valid && n.Value > 0 }

// IsZero lets `omitzero` drop absent values.
func (n Number) IsZero() bool { return !n.Valid && n.Raw == "" }

// Scan implements sql.Scanner.
func (n *Number) Scan(src any) error {
	*n = Number{}
	switch v := src.(type) {
	case nil:
	case float64:
		n.Value, n.Valid = v, true
	case float32:
		n.Value, n.Valid = float64(v), true
	case int64:
		n.Value, n.Valid = float64(v), true
	case []byte:
		n.setString(string(v))
	case string:
		n.setString(v)
	default:
		return fmt.Errorf("storage.Number: unsupported scan type %T", src)
	}
	return nil
}

func (n *Number) setString(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	cleaned := strings.NewReplacer(",", "", "$", "").Replace(s)
	if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
		n.Value, n.Valid = f, true
		return
	}
	n.Raw = s
}

func (n Number) MarshalJSON() ([]byte, error) {
	switch {
	case n.Valid:
		return json.Marshal(n.Value)
	case n.Raw != "":
		return json.Marshal(n.Raw)
	default:
		return []byte("null"), nil
	}
}

func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n.setString(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		n.Raw = string(data)
		return nil
	}
	n.Value, n.Valid = f, true
	return nil
}

// Executive is a control person attached to a firm.
type Executive struct {
	CRDNumber string `json:"-"`
	Name      string `json:"name"`
	Title     string `json:"title,omitempty"`
}

// PrivateFund is a private fund record reported by a firm.
type PrivateFund struct {
	CRDNumber       string `json:"-"`
	FundName        string `json:"fund_name"`
	FundType        string `json:"fund_type,omitempty"`
	GrossAssetValue Number `json:"gross_asset_value,omitzero"`
	MinInvestment   Number `json:"min_investment,omitzero"`
}

// Result provenance tags.
const (
	SourceSemantic   = "semantic"
	SourceStructured = "structured"
	SourceExecutive  = "executive"
	SourceSupplement = "supplement"
	SourceAUMScan    = "aum_scan"
)

// SearchResult is one firm returned to callers.
type SearchResult struct {
	CRDNumber        string `json:"crd_number"`
	LegalName        string `json:"legal_name"`
	City             string `json:"city"`
	State            string `json:"state"`
	AUM              Number `json:"aum"`
	EmployeeCount    Number `json:"employee_count,omitzero"`
	PrivateFundCount Number `json:"private_fund_count"`
	PrivateFundAUM   Number `json:"private_fund_aum"`

	// Legacy schema aliases. Read through ResolvedAUM / ResolvedFundCount.
	VCTotalAUM  Number `json:"vc_total_aum,omitzero"`
	VCFundCount Number `json:"vc_fund_count,omitzero"`

	Similarity         *float64 `json:"similarity,omitempty"`
	CombinedRank       *float64 `json:"combined_rank,omitempty"`
	SemanticScore      *float64 `json:"semantic_score,omitempty"`
	FTSScore           *float64 `json:"fts_score,omitempty"`
	LocationMatchScore *float64 `json:"location_match_score,omitempty"`
	ActivityScore      *float64 `json:"activity_score,omitempty"`
	Source             string   `json:"source,omitempty"`
	SearchStrategy     string   `json:"searchStrategy,omitempty"`

	Executives   []Executive   `json:"executives"`
	PrivateFunds []PrivateFund `json:"private_funds"`
}

// ResolvedAUM prefers the current aum column and falls back to vc_total_aum.
func (r *SearchResult) ResolvedAUM() float64 {
	if r.AUM.Positive() {
		return r.AUM.Value
	}
	return r.VCTotalAUM.Float()
}

// ResolvedFundCount prefers private_fund_count and falls back to vc_fund_count.
func (r *SearchResult) ResolvedFundCount() float64 {
	if r.PrivateFundCount.Positive() {
		return r.PrivateFundCount.Value
	}
	return r.VCFundCount.Float()
}

// IdentityKey is the CRD number, or name|city|state for rows without one.
func (r *SearchResult) IdentityKey() string {
	if crd := strings.TrimSpace(r.CRDNumber); crd != "" {
		return crd
	}
	return strings.ToLower(strings.Join([]string{
		strings.TrimSpace(r.LegalName),
		strings.TrimSpace(r.City),
		strings.TrimSpace(r.State),
	}, "|"))
}

// HybridMatch is one row of the hybrid similarity + full-text search function.
type HybridMatch struct {
	CRDNumber          string
	Similarity         float64
	CombinedRank       float64
	SemanticScore      float64
	FTSScore           float64
	LocationMatchScore float64
}

// Apply copies match scores onto r.
func (m HybridMatch) Apply(r *SearchResult) {
	r.Similarity = ptr(m.Similarity)
	r.CombinedRank = ptr(m.CombinedRank)
	r.SemanticScore = ptr(m.SemanticScore)
	r.FTSScore = ptr(m.FTSScore)
	r.LocationMatchScore = ptr(m.LocationMatchScore)
}

func ptr(v float64) *float64 { return &v }
