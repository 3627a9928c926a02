package location

import "strings"

var stateNames = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR", "california": "CA",
	"colorado": "CO", "connecticut": "CT", "delaware": "DE", "district of columbia": "DC",
	"florida": "FL", "georgia": "GA", "hawaii": "HI", "idaho": "ID", "illinois": "IL",
	"indiana": "IN", "iowa": "IA", "kansas": "KS", "kentucky": "KY", "louisiana": "LA",
	"maine": "ME", "maryland": "MD", "massachusetts": "MA", "michigan": "MI", "minnesota": "MN",
	"mississippi": "MS", "missouri": "MO", "montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM", "new york": "NY",
	"north carolina": "NC", "north dakota": "ND", "ohio": "OH", "oklahoma": "OK", "oregon": "OR",
	"pennsylvania": "PA", "puerto rico": "PR", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT", "vermont": "VT",
	"virginia": "VA", "washington": "WA", "west virginia": "WV", "wisconsin": "WI", "wyoming": "WY",
}

var stateCodes = func() map[string]string {
	m := make(map[string]string, len(stateNames))
	for name, code := range stateNames {
		m[code] = name
	}
	return m
}()

// IsStateCode reports whether s is a two-letter US state or territory code (any case).
func IsStateCode(s string) bool {
	_, ok := stateCodes[strings.ToUpper(strings.TrimSpace(s))]
	return ok
}

// StateCode resolves a code or full state name to its two-letter code.
func StateCode(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if IsStateCode(s) {
		return strings.ToUpper(s), true
	}
	code, ok := stateNames[strings.Join(strings.Fields(strings.ToLower(s)), " ")]
	return code, ok
}

// StateNames returns the lower-case full names of all known states.
func StateNames() []string {
	out := make([]string, 0, len(stateNames))
	for name := range stateNames {
		out = append(out, name)
	}
	return out
}
