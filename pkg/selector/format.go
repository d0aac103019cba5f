package selector

import (
	"regexp"
	"strings"
	"time"

	"github.com/engramdb/engram/pkg/entry"
)

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// entrySeparator sits between formatted entries in a document.
const entrySeparator = "\n\n"

// Format renders one entry as its dated tag header followed by normalized
// content.
func Format(e *entry.Entry) string {
	header := e.Tag
	if header == "" {
		at, err := e.ParsedTime()
		if err != nil {
			at = time.Now()
		}
		header = entry.TagFor(e.FileType, at)
	}
	return header + "\n" + Normalize(e.Content)
}

// Normalize collapses runs of three or more newlines to a blank line and
// strips trailing whitespace from every line. Leading indentation is kept
// so code blocks survive.
func Normalize(text string) string {
	text = excessNewlines.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// FormatAll renders entries in order, separated by blank lines.
func FormatAll(entries []*entry.Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, Format(e))
	}
	return strings.Join(parts, entrySeparator)
}

// FormatAsDocument groups entries by type, in the canonical type order,
// each group under an uppercase section heading. Types with no entries are
// omitted.
func FormatAsDocument(entries []*entry.Entry) string {
	byType := make(map[entry.FileType][]*entry.Entry)
	for _, e := range entries {
		byType[e.FileType] = append(byType[e.FileType], e)
	}

	var b strings.Builder
	for _, t := range entry.AllFileTypes {
		group := byType[t]
		if len(group) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## ")
		b.WriteString(strings.ToUpper(string(t)))
		b.WriteString("\n\n")
		b.WriteString(FormatAll(group))
	}
	return b.String()
}
