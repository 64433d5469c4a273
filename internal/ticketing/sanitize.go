package ticketing

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SanitizeText strips markup and collapses whitespace into a single line.
func SanitizeText(raw string) string {
	return strings.Join(strings.Fields(markupText(raw)), " ")
}

// SanitizeTextarea strips markup but keeps line breaks.
func SanitizeTextarea(raw string) string {
	lines := strings.Split(strings.ReplaceAll(markupText(raw), "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, strings.Join(strings.Fields(line), " "))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func markupText(raw string) string {
	if !strings.ContainsAny(raw, "<&") {
		return raw
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	doc.Find("script,style").Remove()
	return doc.Text()
}
