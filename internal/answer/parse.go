package answer

import (
	"regexp"
	"strconv"
	"strings"
)

// Entry is one firm line of a briefing.
type Entry struct {
	Rank    int
	Name    string
	Details []string
}

// ParsedContext is a briefing parsed back into rows.
type ParsedContext struct {
	Query   string
	Entries []Entry
	Notes   []string
}

var entryLine = regexp.MustCompile(`^(\d+)\.\s+(.+)$`)

// ParseContext parses text produced by Build. Lines it does not recognize are ignored.
func ParseContext(briefing string) ParsedContext {
	var pc ParsedContext
	for _, raw := range strings.Split(briefing, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
		case strings.HasPrefix(line, queryPrefix):
			q := strings.TrimPrefix(line, queryPrefix)
			if unq, err := strconv.Unquote(q); err == nil {
				q = unq
			}
			pc.Query = q
		case strings.HasPrefix(line, notePrefix):
			pc.Notes = append(pc.Notes, strings.TrimSpace(strings.TrimPrefix(line, notePrefix)))
		default:
			m := entryLine.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			rank, _ := strconv.Atoi(m[1])
			pc.Entries = append(pc.Entries, parseEntry(rank, m[2]))
		}
	}
	return pc
}

func parseEntry(rank int, body string) Entry {
	parts := strings.Split(body, partSeparator)
	e := Entry{Rank: rank, Name: strings.TrimSpace(parts[0])}
	if i := strings.LastIndex(e.Name, " - "); i > 0 {
		e.Details = append(e.Details, "Location: "+strings.TrimSpace(e.Name[i+3:]))
		e.Name = strings.TrimSpace(e.Name[:i])
	}
	for _, p := range parts[1:] {
		if p = strings.TrimSpace(p); p != "" {
			e.Details = append(e.Details, p)
		}
	}
	return e
}
