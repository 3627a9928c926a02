package planner

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/Turnstyle/ria-hunter-sub007/internal/location"
	"github.com/Turnstyle/ria-hunter-sub007/internal/storage"
)

var (
	superlativePattern = regexp.MustCompile(`(?i)\b(largest|biggest|top(\s+\d+)?|smallest|highest|lowest|leading|most|fewest|richest)\b`)
	ascendingPattern   = regexp.MustCompile(`(?i)\b(smallest|lowest|fewest)\b`)
	executivePattern   = regexp.MustCompile(`(?i)\b(ceo|cfo|coo|cio|cco|founder|founders|president|executives?|managing (partner|director)|principal|owner|who (is|runs|owns|leads)|named|person|people|contact)\b`)
	employeesPattern   = regexp.MustCompile(`(?i)\b(employees|staff|headcount|people)\b`)
	fundsPattern       = regexp.MustCompile(`(?i)\bmost\s+(private\s+)?funds\b`)
	privateFundPattern = regexp.MustCompile(`(?i)\b(private\s+funds?|venture|vc|hedge\s+funds?|private\s+equity)\b`)
	minAUMPattern      = regexp.MustCompile(`(?i)(?:over|above|more than|greater than|at least|exceeding|>)\s*\$?\s*([\d,]+(?:\.\d+)?)\s*(k|thousand|mm|m|mil|million|bn|b|billion|t|tn|trillion)?\b`)
	stateTokenPattern  = regexp.MustCompile(`\b[A-Z]{2}\b`)
	inPhrasePattern    = regexp.MustCompile(`(?i)\bin\s+`)
)

// phraseStops end an "in <place>" phrase.
var phraseStops = map[string]bool{
	"with": true, "that": true, "who": true, "which": true, "whose": true, "over": true,
	"above": true, "under": true, "managing": true, "having": true, "for": true, "by": true,
	"and": true, "or": true, "offering": true, "specializing": true, "focused": true,
	"sorted": true, "ranked": true, "ordered": true, "terms": true,
}

var placeSuffixes = []string{" metro area", " metro", " area", " region"}

// ambiguousPlaces are place names that the location regexes tend to miss or mangle.
var ambiguousPlaces = []struct {
	pattern *regexp.Regexp
	name    string
	state   string
}{
	{regexp.MustCompile(`(?i)\b(st\.?|saint)\s+louis\b`), "St. Louis", "MO"},
	{regexp.MustCompile(`(?i)\bstl\b`), "St. Louis", "MO"},
	{regexp.MustCompile(`(?i)\bnew york city\b|\bnyc\b`), "New York", "NY"},
	{regexp.MustCompile(`(?i)\blos angeles\b`), "Los Angeles", "CA"},
	{regexp.MustCompile(`(?i)\bsan francisco\b`), "San Francisco", "CA"},
	{regexp.MustCompile(`(?i)\bkansas city\b`), "Kansas City", "MO"},
	{regexp.MustCompile(`(?i)\b(fort|ft\.?)\s+worth\b`), "Fort Worth", "TX"},
	{regexp.MustCompile(`(?i)\b(st\.?|saint)\s+paul\b`), "St. Paul", "MN"},
	{regexp.MustCompile(`(?i)\blas vegas\b`), "Las Vegas", "NV"},
	{regexp.MustCompile(`(?i)\bwashington,?\s+d\.?c\.?\b`), "Washington", "DC"},
}

// genericTerms carry no semantic signal beyond "find advisers".
var genericTerms = map[string]bool{
	"ria": true, "rias": true, "firm": true, "firms": true, "advisor": true, "advisors": true,
	"adviser": true, "advisers": true, "advisory": true, "investment": true, "registered": true,
	"company": true, "companies": true, "list": true, "show": true, "find": true, "give": true,
	"get": true, "me": true, "all": true, "top": true, "largest": true, "biggest": true,
	"smallest": true, "highest": true, "lowest": true, "most": true, "leading": true,
	"aum": true, "assets": true, "under": true, "management": true, "by": true, "ranked": true,
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "of": true, "with": true, "from": true, "is": true,
	"are": true, "what": true, "which": true, "who": true, "where": true, "how": true,
	"many": true, "that": true, "their": true, "there": true, "please": true, "near": true,
	"based": true, "located": true, "area": true, "metro": true,
}

// detectLocation runs the deterministic location rules. The "in <place>" phrase wins,
// then the ambiguous place table, then a full state name. A literal upper-case state
// code fills in the state when nothing else supplied one.
func detectLocation(query string) *location.Location {
	var loc location.Location

	// "venture funds in St. Louis": the last usable "in" phrase names the place.
	matches := inPhrasePattern.FindAllStringIndex(query, -1)
	for i := len(matches) - 1; i >= 0 && loc.IsZero(); i-- {
		if phrase := trimPlacePhrase(query[matches[i][1]:]); phrase != "" {
			loc = placeFromPhrase(phrase)
		}
	}

	if loc.City == "" {
		for _, p := range ambiguousPlaces {
			if p.pattern.MatchString(query) {
				state := loc.State
				loc = location.Normalize(p.name)
				loc.State = p.state
				if state != "" {
					loc.State = state
				}
				break
			}
		}
	}

	if loc.IsZero() {
		if code := stateFromName(query); code != "" {
			loc.State = code
			loc.Confidence = 0.85
		}
	}

	if loc.State == "" && !isAllUpper(query) {
		for _, tok := range stateTokenPattern.FindAllString(query, -1) {
			if location.IsStateCode(tok) {
				loc.State = tok
				if loc.Confidence == 0 {
					loc.Confidence = 0.8
				}
				break
			}
		}
	}

	if loc.IsZero() {
		return nil
	}
	return &loc
}

// placeFromPhrase interprets "St. Louis, MO", "Missouri" or "Austin".
func placeFromPhrase(phrase string) location.Location {
	city, state := location.SplitCityState(phrase)
	if state == "" && city != "" {
		if code, ok := location.StateCode(city); ok {
			return location.Location{State: code, Confidence: 0.85}
		}
		city, state = splitTrailingState(city)
	}
	if city == "" {
		return location.Location{State: state, Confidence: 0.85}
	}
	if state == "" && !looksLikePlace(city) {
		return location.Location{}
	}
	loc := location.Normalize(city)
	if state != "" {
		loc.State = state
	}
	for _, p := range ambiguousPlaces {
		if loc.State == "" && p.pattern.MatchString(city) {
			loc.State = p.state
		}
	}
	return loc
}

// splitTrailingState handles "St. Louis MO" and "Austin Texas".
func splitTrailingState(s string) (string, string) {
	words := strings.Fields(s)
	if len(words) < 2 {
		return s, ""
	}
	last := words[len(words)-1]
	if len(last) == 2 && location.IsStateCode(last) {
		return strings.Join(words[:len(words)-1], " "), strings.ToUpper(last)
	}
	for n := 2; n >= 1; n-- {
		if len(words) <= n {
			continue
		}
		if code, ok := location.StateCode(strings.Join(words[len(words)-n:], " ")); ok && len(words[len(words)-1]) > 2 {
			return strings.Join(words[:len(words)-n], " "), code
		}
	}
	return s, ""
}

func trimPlacePhrase(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "?!;:()\""); i >= 0 {
		s = s[:i]
	}
	words := strings.Fields(s)
	for i, w := range words {
		if phraseStops[strings.ToLower(strings.Trim(w, ",."))] {
			words = words[:i]
			break
		}
	}
	out := strings.TrimRight(strings.Join(words, " "), " ,")
	// a trailing sentence period, but keep abbreviation dots such as "St."
	if strings.HasSuffix(out, ".") && !strings.HasSuffix(strings.ToLower(out), "st.") {
		out = strings.TrimSuffix(out, ".")
	}
	lower := strings.ToLower(out)
	for _, suf := range placeSuffixes {
		if strings.HasSuffix(lower, suf) {
			out = strings.TrimSpace(out[:len(out)-len(suf)])
			break
		}
	}
	if strings.HasPrefix(strings.ToLower(out), "the ") {
		out = strings.TrimSpace(out[4:])
	}
	return out
}

// looksLikePlace rejects phrases such as "2023" or "private equity".
func looksLikePlace(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters < 2 {
		return false
	}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if genericTerms[w] || privateFundPattern.MatchString(w) {
			return false
		}
	}
	return true
}

// stateFromName finds the longest full state name in the query.
func stateFromName(query string) string {
	lower := " " + strings.Join(strings.Fields(strings.ToLower(stripPunct(query))), " ") + " "
	names := location.StateNames()
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	for _, name := range names {
		if strings.Contains(lower, " "+name+" ") {
			code, _ := location.StateCode(name)
			return code
		}
	}
	return ""
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

func stripPunct(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, s)
}

// deriveConstraints reads sort order, minimum AUM and the private fund requirement from phrasing.
func deriveConstraints(query string) Constraints {
	var c Constraints
	if superlativePattern.MatchString(query) {
		c.SortBy = storage.SortByAUM
		switch {
		case fundsPattern.MatchString(query):
			c.SortBy = storage.SortByFunds
		case employeesPattern.MatchString(query) && !executivePattern.MatchString(query):
			c.SortBy = storage.SortByEmployees
		}
		c.SortOrder = SortDesc
		if ascendingPattern.MatchString(query) {
			c.SortOrder = SortAsc
		}
	}
	if v, ok := parseMinAUM(query); ok {
		c.MinAUM = &v
	}
	c.RequirePrivateFunds = privateFundPattern.MatchString(query)
	return c
}

func parseMinAUM(query string) (float64, bool) {
	m := minAUMPattern.FindStringSubmatch(query)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "k", "thousand":
		v *= 1e3
	case "m", "mm", "mil", "million":
		v *= 1e6
	case "b", "bn", "billion":
		v *= 1e9
	case "t", "tn", "trillion":
		v *= 1e12
	}
	return v, true
}

func deriveIntent(query string, loc *location.Location) Intent {
	superlative := superlativePattern.MatchString(query)
	executive := executivePattern.MatchString(query)
	switch {
	case superlative && executive:
		return IntentMixed
	case superlative:
		return IntentSuperlative
	case executive:
		return IntentExecutive
	case loc != nil:
		return IntentLocation
	default:
		return IntentMixed
	}
}

// deriveHint picks the strategy hint. A query that is only a place plus ranking words
// has nothing to match semantically.
func deriveHint(query string, intent Intent, loc *location.Location) Strategy {
	if intent == IntentExecutive {
		return StrategyExecutive
	}
	if loc != nil && len(SignificantTerms(query, loc)) == 0 {
		return StrategyStructured
	}
	return StrategyHybrid
}

// SignificantTerms returns the lower-case query tokens left after removing stop words,
// generic directory terms, numbers and words that belong to the location.
func SignificantTerms(query string, loc *location.Location) []string {
	locWords := map[string]bool{}
	if loc != nil {
		for _, v := range append([]string{loc.City}, loc.Variants...) {
			for _, w := range strings.Fields(strings.ToLower(stripPunct(v))) {
				locWords[w] = true
			}
		}
		if loc.State != "" {
			locWords[strings.ToLower(loc.State)] = true
		}
	}

	var out []string
	seen := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(stripPunct(query))) {
		if len(w) < 2 || stopWords[w] || genericTerms[w] || locWords[w] || seen[w] {
			continue
		}
		if _, err := strconv.Atoi(w); err == nil {
			continue
		}
		if _, isState := location.StateCode(w); isState && len(w) > 2 {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
