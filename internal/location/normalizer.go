// Package location canonicalizes free-text place names into a city, state and the
// spelling variants the firm directory actually stores ("ST. LOUIS", "SAINT LOUIS", ...).
package location

import (
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Location is a normalized place.
type Location struct {
	City  string `json:"city,omitempty"`
	State string `json:"state,omitempty"`
	// Variants lists spellings to match against stored city values, canonical first.
	Variants   []string `json:"variants,omitempty"`
	Confidence float64  `json:"confidence"`
}

// IsZero reports whether neither a city nor a state is known.
func (l Location) IsZero() bool { return l.City == "" && l.State == "" }

type metro struct {
	city  string
	state string
}

// prefixFamilies are interchangeable leading words. The first entry is the canonical spelling.
var prefixFamilies = [][]string{
	{"st.", "st", "saint"},
	{"fort", "ft", "ft."},
	{"mount", "mt", "mt."},
}

const minReverseAlias = 5

// Normalizer produces Locations. The zero value is not usable; call NewNormalizer.
type Normalizer struct {
	aliases      map[string]metro    // cleaned alias -> metro
	metroAliases map[string][]string // cleaned canonical city -> aliases
	title        cases.Caser
}

// NewNormalizer builds a Normalizer with the built-in metro synonym table.
func NewNormalizer() *Normalizer {
	n := &Normalizer{
		aliases:      buildMetroAliases(),
		metroAliases: make(map[string][]string),
		title:        cases.Title(language.English),
	}
	for alias, m := range n.aliases {
		key := clean(m.city)
		n.metroAliases[key] = append(n.metroAliases[key], alias)
	}
	// map iteration order is random; Variants must not be
	for _, list := range n.metroAliases {
		slices.Sort(list)
	}
	return n
}

var defaultNormalizer = NewNormalizer()

// Normalize runs the default Normalizer.
func Normalize(input string) Location {
	return defaultNormalizer.Normalize(input)
}

// Normalize canonicalizes a city name. Non-empty input always yields at least the
// title-case and upper-case forms of the literal input.
func (n *Normalizer) Normalize(input string) Location {
	literal := strings.Join(strings.Fields(input), " ")
	cleaned := clean(input)
	if literal == "" || cleaned == "" {
		if literal == "" {
			return Location{}
		}
		return Location{City: literal, Variants: n.caseForms(literal), Confidence: 0.3}
	}

	loc := Location{Confidence: 0.8}
	vs := newVariantSet()

	base := cleaned
	if m, ok := n.aliases[cleaned]; ok {
		base = clean(m.city)
		loc.State = m.state
		loc.Confidence = 0.95
	}

	forms := expandPrefix(base)
	if len(forms) > 1 {
		loc.Confidence = max(loc.Confidence, 0.9)
	}
	loc.City = n.title.String(forms[0])

	for _, f := range forms {
		vs.add(n.caseForms(f)...)
	}
	for _, f := range forms {
		if strings.Contains(f, " ") {
			vs.add(compact(f))
		}
	}

	// Short abbreviations ("la", "kc") would substring-match unrelated cities.
	for _, alias := range n.metroAliases[base] {
		if len(alias) >= minReverseAlias {
			vs.add(n.caseForms(alias)...)
		}
	}
	if base == cleaned || len(cleaned) >= minReverseAlias {
		vs.add(n.caseForms(cleaned)...)
		vs.add(n.caseForms(literal)...)
	}

	loc.Variants = vs.list()
	return loc
}

// Parse splits "City, ST" input and normalizes the city part.
func (n *Normalizer) Parse(input string) Location {
	city, state := SplitCityState(input)
	var loc Location
	if city != "" {
		loc = n.Normalize(city)
	} else {
		loc.Confidence = 0.9
	}
	if state != "" {
		loc.State = state
	}
	return loc
}

// Parse runs the default Normalizer.
func Parse(input string) Location {
	return defaultNormalizer.Parse(input)
}

// SplitCityState splits a combined location string: two comma-separated parts map to
// city and state, a lone two-letter state code maps to state, anything else is a city.
func SplitCityState(s string) (city, state string) {
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	switch {
	case len(parts) == 0:
		return "", ""
	case len(parts) == 2:
		if code, ok := StateCode(parts[1]); ok {
			return parts[0], code
		}
		if len(parts[1]) == 2 {
			return parts[0], strings.ToUpper(parts[1])
		}
		return parts[0], ""
	case len(parts) == 1 && len(parts[0]) == 2 && IsStateCode(parts[0]):
		return "", strings.ToUpper(parts[0])
	default:
		return strings.Join(parts, ", "), ""
	}
}

// MatchesAny applies the data store's substring test (ILIKE '%variant%') in memory.
func MatchesAny(stored string, variants []string) bool {
	s := strings.ToLower(stored)
	for _, v := range variants {
		if v != "" && strings.Contains(s, strings.ToLower(v)) {
			return true
		}
	}
	return false
}

func (n *Normalizer) caseForms(s string) []string {
	return []string{n.title.String(s), strings.ToUpper(s)}
}

// expandPrefix returns base plus its prefix-family alternatives, canonical spelling first.
func expandPrefix(base string) []string {
	tokens := strings.Fields(base)
	for i, tok := range tokens {
		if i == len(tokens)-1 {
			break
		}
		for _, family := range prefixFamilies {
			if !contains(family, tok) {
				continue
			}
			out := make([]string, 0, len(family))
			for _, member := range family {
				alt := append([]string{}, tokens...)
				alt[i] = member
				out = append(out, strings.Join(alt, " "))
			}
			return out
		}
	}
	return []string{base}
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// clean folds diacritics, drops apostrophes, turns other punctuation into spaces,
// lower-cases and collapses whitespace. Abbreviation dots are dropped ("st." -> "st").
func clean(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		switch {
		case r == '\'' || r == '’' || r == '.':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func compact(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type variantSet struct {
	seen  map[string]struct{}
	order []string
}

func newVariantSet() *variantSet {
	return &variantSet{seen: make(map[string]struct{})}
}

func (v *variantSet) add(items ...string) {
	for _, s := range items {
		if s == "" {
			continue
		}
		if _, ok := v.seen[s]; ok {
			continue
		}
		v.seen[s] = struct{}{}
		v.order = append(v.order, s)
	}
}

func (v *variantSet) list() []string { return v.order }

// buildMetroAliases maps cleaned aliases to their metro.
func buildMetroAliases() map[string]metro {
	return map[string]metro{
		"nyc":           {"New York", "NY"},
		"new york city": {"New York", "NY"},
		"la":            {"Los Angeles", "CA"},
		"l a":           {"Los Angeles", "CA"},
		"sf":            {"San Francisco", "CA"},
		"san fran":      {"San Francisco", "CA"},
		"stl":           {"St Louis", "MO"},
		"kc":            {"Kansas City", "MO"},
		"philly":        {"Philadelphia", "PA"},
		"dc":            {"Washington", "DC"},
		"washington dc": {"Washington", "DC"},
		"vegas":         {"Las Vegas", "NV"},
		"nola":          {"New Orleans", "LA"},
		"atl":           {"Atlanta", "GA"},
	}
}
