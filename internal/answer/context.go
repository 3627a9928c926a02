// Package answer renders retrieved firms into a text briefing, asks a generation provider
// to answer from it, and synthesizes a structured answer from the briefing when the
// provider is absent or its output cannot be used.
package answer

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Turnstyle/ria-hunter-sub007/internal/storage"
)

// Briefing defaults.
const (
	DefaultMaxContextRows = 25
	DefaultMaxExecutives  = 5
)

const (
	partSeparator = " | "
	queryPrefix   = "User query: "
	notePrefix    = "Note: "
)

var ventureTerms = regexp.MustCompile(`(?i)\b(venture|vc|startups?|seed|early[- ]stage|private\s+equity)\b`)

const (
	generalFraming = "The following registered investment advisers (RIAs) were retrieved from SEC Form ADV data; figures are as reported by each firm."
	ventureFraming = "The following registered investment advisers (RIAs) were retrieved from SEC Form ADV data, with private fund activity shown as the measure of venture and private markets exposure."
)

// Builder renders briefings.
type Builder struct {
	MaxRows       int
	MaxExecutives int
	title         cases.Caser
}

// NewBuilder creates a Builder. Non-positive limits take the defaults.
func NewBuilder(maxRows, maxExecutives int) *Builder {
	if maxRows <= 0 {
		maxRows = DefaultMaxContextRows
	}
	if maxExecutives <= 0 {
		maxExecutives = DefaultMaxExecutives
	}
	return &Builder{MaxRows: maxRows, MaxExecutives: maxExecutives, title: cases.Title(language.English)}
}

var defaultBuilder = NewBuilder(0, 0)

// BuildContext renders results with the default limits.
func BuildContext(results []storage.SearchResult, query string) string {
	return defaultBuilder.Build(results, query)
}

// Build renders a deterministic briefing: a header, one numbered line per firm for at most
// MaxRows firms, and Note lines describing what the data does not show.
func (b *Builder) Build(results []storage.SearchResult, query string) string {
	var sb strings.Builder
	sb.WriteString(queryPrefix)
	fmt.Fprintf(&sb, "%q", oneLine(query))
	sb.WriteString("\n")
	if ventureTerms.MatchString(query) {
		sb.WriteString(ventureFraming)
	} else {
		sb.WriteString(generalFraming)
	}
	sb.WriteString("\n\n")

	shown := results
	if len(shown) > b.MaxRows {
		shown = shown[:b.MaxRows]
	}
	unscored := 0
	for i := range shown {
		r := &shown[i]
		sb.WriteString(b.line(i+1, r))
		sb.WriteString("\n")
		if r.Source == storage.SourceSupplement || r.Source == storage.SourceAUMScan {
			unscored++
		}
	}

	var notes []string
	switch {
	case len(results) == 0:
		notes = append(notes, "No matching firms were found in the available data.")
	case len(results) > len(shown):
		notes = append(notes, fmt.Sprintf("Showing the first %d of %d matching firms.", len(shown), len(results)))
	}
	if unscored > 0 {
		notes = append(notes, fmt.Sprintf("%d firm(s) were added by size at the requested location and have no relevance score.", unscored))
	}
	if len(notes) > 0 {
		sb.WriteString("\n")
		for _, n := range notes {
			sb.WriteString(notePrefix)
			sb.WriteString(n)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func (b *Builder) line(rank int, r *storage.SearchResult) string {
	head := fmt.Sprintf("%d. %s", rank, field(r.LegalName, "Unnamed firm"))
	if loc := b.place(r); loc != "" {
		head += " - " + loc
	}
	parts := []string{head}

	if aum := r.ResolvedAUM(); aum > 0 {
		parts = append(parts, "AUM: "+FormatMoney(aum))
	}
	if n := r.ResolvedFundCount(); n > 0 {
		funds := fmt.Sprintf("Private funds: %.0f", n)
		if r.PrivateFundAUM.Positive() {
			funds += fmt.Sprintf(" (%s)", FormatMoney(r.PrivateFundAUM.Value))
		}
		parts = append(parts, funds)
	}
	if rel := relevance(r); rel != "" {
		parts = append(parts, "Relevance: "+rel)
	}
	if len(r.Executives) > 0 {
		execs := r.Executives[:min(len(r.Executives), b.MaxExecutives)]
		names := make([]string, 0, len(execs))
		for _, e := range execs {
			name := field(e.Name, "")
			if name == "" {
				continue
			}
			if title := field(e.Title, ""); title != "" {
				name += " (" + title + ")"
			}
			names = append(names, name)
		}
		if len(names) > 0 {
			parts = append(parts, "Executives: "+strings.Join(names, "; "))
		}
	}
	return strings.Join(parts, partSeparator)
}

func (b *Builder) place(r *storage.SearchResult) string {
	city := field(r.City, "")
	if city != "" {
		city = b.title.String(strings.ToLower(city))
	}
	state := strings.ToUpper(field(r.State, ""))
	switch {
	case city != "" && state != "":
		return city + ", " + state
	case city != "":
		return city
	default:
		return state
	}
}

func relevance(r *storage.SearchResult) string {
	if r.Similarity != nil && *r.Similarity > 0 {
		return fmt.Sprintf("%.1f%%", *r.Similarity*100)
	}
	if r.ActivityScore != nil && *r.ActivityScore > 0 {
		return fmt.Sprintf("activity score %.2f", *r.ActivityScore)
	}
	return ""
}

// FormatMoney renders a dollar amount with a magnitude suffix.
func FormatMoney(v float64) string {
	switch {
	case v >= 1e12:
		return fmt.Sprintf("$%.1fT", v/1e12)
	case v >= 1e9:
		return fmt.Sprintf("$%.1fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.1fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.1fK", v/1e3)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

// field collapses whitespace and removes the part separator from stored text.
func field(s, fallback string) string {
	s = oneLine(strings.ReplaceAll(s, "|", "/"))
	if s == "" {
		return fallback
	}
	return s
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
