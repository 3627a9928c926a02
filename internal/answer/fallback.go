package answer

import (
	"fmt"
	"regexp"
	"strings"
)

// Sentinel is the phrase providers return when they decline to answer.
const Sentinel = "temporarily unable to generate a detailed response"

// DefaultFallbackEntries is how many firms a synthesized answer lists.
const DefaultFallbackEntries = 10

var (
	sourcesLine = regexp.MustCompile(`(?mi)^\s*sources:\s*\d+\s+rias?\s+from\s+semantic\s+search\.?\s*$`)
	listMarker  = regexp.MustCompile(`^[ \t]*(?:\*\*)?(\d{1,3})(?:[.)]|[ \t]+-|:)(?:\*\*)?[ \t]+`)
	numbered    = regexp.MustCompile(`^\d{1,3}\. `)
)

// IsUnusable reports whether generated text must be replaced by the synthesized answer.
func IsUnusable(text string) bool {
	t := strings.TrimSpace(text)
	return t == "" || strings.Contains(strings.ToLower(t), Sentinel)
}

// SourcesLine is the mandatory closing line for n firms.
func SourcesLine(n int) string {
	return fmt.Sprintf("Sources: %d RIAs from semantic search.", n)
}

// HasSourcesLine reports whether text already closes with a sources line.
func HasSourcesLine(text string) bool {
	return sourcesLine.MatchString(text)
}

// NormalizeGeneratedText returns the synthesized answer when text is unusable, and the
// reformatted text otherwise.
func NormalizeGeneratedText(text, briefing string) string {
	return normalizeGenerated(text, ParseContext(briefing), DefaultFallbackEntries)
}

func normalizeGenerated(text string, pc ParsedContext, maxEntries int) string {
	if IsUnusable(text) {
		return synthesize(pc, maxEntries)
	}
	return reformat(text, len(pc.Entries))
}

// reformat normalizes numbered-list markers to "N. ", puts a blank line before each item
// and appends the sources line when missing.
func reformat(text string, sources int) string {
	lines := strings.Split(strings.ReplaceAll(strings.TrimSpace(text), "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines)+8)
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if m := listMarker.FindStringSubmatchIndex(line); m != nil {
			line = line[m[2]:m[3]] + ". " + line[m[1]:]
		}
		if numbered.MatchString(line) && len(out) > 0 && out[len(out)-1] != "" {
			out = append(out, "")
		}
		if line == "" && len(out) > 0 && out[len(out)-1] == "" {
			continue
		}
		out = append(out, line)
	}
	result := strings.Join(out, "\n")
	if !HasSourcesLine(result) {
		result += "\n\n" + SourcesLine(sources)
	}
	return result
}

// synthesize builds the answer directly from the briefing: up to maxEntries firms with their
// detail lines, the briefing's notes, and exactly one sources line.
func synthesize(pc ParsedContext, maxEntries int) string {
	if maxEntries <= 0 {
		maxEntries = DefaultFallbackEntries
	}
	var sb strings.Builder
	switch {
	case len(pc.Entries) == 0:
		sb.WriteString("No registered investment advisers in the available data matched this question.\n")
	case pc.Query != "":
		fmt.Fprintf(&sb, "Here are the firms that best match %q, based on SEC Form ADV data:\n", pc.Query)
	default:
		sb.WriteString("Here are the firms that best match your question, based on SEC Form ADV data:\n")
	}

	for i, e := range pc.Entries {
		if i == maxEntries {
			break
		}
		fmt.Fprintf(&sb, "\n%d. %s\n", i+1, e.Name)
		for _, d := range e.Details {
			sb.WriteString("   - ")
			sb.WriteString(d)
			sb.WriteString("\n")
		}
	}
	if len(pc.Entries) > maxEntries {
		fmt.Fprintf(&sb, "\n%d more firm(s) matched and are included in the full result set.\n", len(pc.Entries)-maxEntries)
	}

	if len(pc.Notes) > 0 {
		sb.WriteString("\n")
		for _, n := range pc.Notes {
			sb.WriteString("Note: ")
			sb.WriteString(n)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	sb.WriteString(SourcesLine(len(pc.Entries)))
	return sb.String()
}
