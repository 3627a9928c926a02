package location

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantCity  string
		wantState string
		contains  []string
	}{
		{
			name:     "dotted saint",
			input:    "St. Louis",
			wantCity: "St. Louis",
			contains: []string{"St. Louis", "ST. LOUIS", "St Louis", "SAINT LOUIS", "stlouis", "saintlouis"},
		},
		{
			name:     "spelled saint",
			input:    "saint louis",
			wantCity: "St. Louis",
			contains: []string{"St. Louis", "ST LOUIS", "Saint Louis"},
		},
		{
			name:     "fort abbreviation",
			input:    "Ft. Worth",
			wantCity: "Fort Worth",
			contains: []string{"FORT WORTH", "Ft Worth", "Ft. Worth"},
		},
		{
			name:     "mount in the middle",
			input:    "Lake Mt Pleasant",
			wantCity: "Lake Mount Pleasant",
			contains: []string{"LAKE MT. PLEASANT"},
		},
		{
			name:      "metro synonym",
			input:     "NYC",
			wantCity:  "New York",
			wantState: "NY",
			contains:  []string{"New York", "NEW YORK", "New York City", "newyork"},
		},
		{
			name:      "synonym to saint form",
			input:     "stl",
			wantCity:  "St. Louis",
			wantState: "MO",
			contains:  []string{"SAINT LOUIS"},
		},
		{
			name:     "diacritics folded",
			input:    "Española",
			wantCity: "Espanola",
			contains: []string{"ESPANOLA", "Española"},
		},
		{
			name:     "plain city with extra spaces",
			input:    "  kansas   city ",
			wantCity: "Kansas City",
			contains: []string{"Kansas City", "KANSAS CITY", "kansascity"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.input)
			assert.Equal(t, tc.wantCity, got.City)
			assert.Equal(t, tc.wantState, got.State)
			require.NotEmpty(t, got.Variants)
			assert.Equal(t, tc.wantCity, got.Variants[0], "canonical form leads")
			for _, v := range tc.contains {
				assert.Contains(t, got.Variants, v)
			}
			assert.GreaterOrEqual(t, got.Confidence, 0.0)
			assert.LessOrEqual(t, got.Confidence, 1.0)
		})
	}
}

func TestNormalize_SaintSpellingsShareMatches(t *testing.T) {
	for _, input := range []string{"St. Louis", "Saint Louis", "ST LOUIS", "st louis"} {
		loc := Normalize(input)
		for _, stored := range []string{"ST. LOUIS", "SAINT LOUIS", "ST LOUIS", "St. Louis County"} {
			assert.True(t, MatchesAny(stored, loc.Variants), "%q should match stored %q", input, stored)
		}
		assert.False(t, MatchesAny("KANSAS CITY", loc.Variants))
	}
}

func TestNormalize_ShortSynonymsDoNotLeak(t *testing.T) {
	loc := Normalize("LA")
	assert.Equal(t, "Los Angeles", loc.City)
	assert.False(t, MatchesAny("DALLAS", loc.Variants))
	assert.True(t, MatchesAny("LOS ANGELES", loc.Variants))

	la := Normalize("Los Angeles")
	assert.NotContains(t, la.Variants, "LA")
}

func TestNewNormalizer_VariantsAreDeterministic(t *testing.T) {
	first := NewNormalizer()
	for key, aliases := range first.metroAliases {
		assert.True(t, slices.IsSorted(aliases), "aliases of %q", key)
	}

	inputs := []string{"New York", "San Francisco", "St. Louis", "Washington", "Kansas City"}
	want := make(map[string][]string, len(inputs))
	for _, in := range inputs {
		want[in] = first.Normalize(in).Variants
	}
	for i := 0; i < 20; i++ {
		n := NewNormalizer()
		for _, in := range inputs {
			require.Equal(t, want[in], n.Normalize(in).Variants, "normalizer %d, input %q", i, in)
		}
	}
}

func TestNormalize_Empty(t *testing.T) {
	assert.True(t, Normalize("   ").IsZero())
	assert.Empty(t, Normalize("").Variants)

	punct := Normalize("...")
	assert.NotEmpty(t, punct.Variants, "non-empty input always yields variants")
}

func TestSplitCityState(t *testing.T) {
	tests := []struct {
		input     string
		wantCity  string
		wantState string
	}{
		{"St. Louis, MO", "St. Louis", "MO"},
		{"Austin, texas", "Austin", "TX"},
		{"Springfield, zz", "Springfield", "ZZ"},
		{"Springfield, Nowhere", "Springfield", ""},
		{"mo", "", "MO"},
		{"Boston", "Boston", ""},
		{"", "", ""},
		{" , ", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			city, state := SplitCityState(tc.input)
			assert.Equal(t, tc.wantCity, city)
			assert.Equal(t, tc.wantState, state)
		})
	}
}

func TestParse(t *testing.T) {
	loc := Parse("saint louis, mo")
	assert.Equal(t, "St. Louis", loc.City)
	assert.Equal(t, "MO", loc.State)

	stateOnly := Parse("CA")
	assert.Empty(t, stateOnly.City)
	assert.Equal(t, "CA", stateOnly.State)
}

func TestStateCode(t *testing.T) {
	code, ok := StateCode("New  York")
	assert.True(t, ok)
	assert.Equal(t, "NY", code)

	code, ok = StateCode("mo")
	assert.True(t, ok)
	assert.Equal(t, "MO", code)

	_, ok = StateCode("Atlantis")
	assert.False(t, ok)

	assert.Contains(t, StateNames(), "missouri")
}
