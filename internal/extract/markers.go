package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jonathan/resume-intake/internal/layout"
)

var rowMarkerRe = regexp.MustCompile(`(?m)^EXPERIENCE_ROW_(\d+):`)

// CountRowMarkers returns the number of distinct EXPERIENCE_ROW_n markers in text
func CountRowMarkers(text string) int {
	seen := make(map[string]struct{})
	for _, m := range rowMarkerRe.FindAllStringSubmatch(text, -1) {
		seen[m[1]] = struct{}{}
	}
	return len(seen)
}

// RenderMarked flattens a document into text. Every table with data rows is
// wrapped in numbered table markers and each data row gets a marker numbered
// across the whole document. It returns the text and the row count.
func RenderMarked(doc *layout.Document) (string, int) {
	var sb strings.Builder
	tableNo, rowNo := 0, 0

	for _, b := range doc.Body {
		if b.Table == nil {
			sb.WriteString(b.Paragraph)
			sb.WriteString("\n")
			continue
		}

		rows := b.Table.DataRows()
		if len(rows) == 0 {
			for _, row := range b.Table.Rows {
				sb.WriteString(strings.Join(row, " | "))
				sb.WriteString("\n")
			}
			continue
		}

		tableNo++
		fmt.Fprintf(&sb, "\nEXPERIENCE TABLE %d START\n", tableNo)
		fmt.Fprintf(&sb, "TOTAL_EXPERIENCE_ROWS: %d\n", len(rows))
		if b.Table.HasHeader() {
			fmt.Fprintf(&sb, "COLUMNS: %s\n", strings.Join(b.Table.Rows[0], " | "))
		}
		for _, row := range rows {
			rowNo++
			fmt.Fprintf(&sb, "EXPERIENCE_ROW_%d: %s\n", rowNo, strings.Join(row, " | "))
		}
		fmt.Fprintf(&sb, "EXPERIENCE TABLE %d END\n\n", tableNo)
	}

	if len(doc.Headers) > 0 {
		sb.WriteString("\nHEADER CONTENT:\n")
		sb.WriteString(strings.Join(doc.Headers, "\n"))
		sb.WriteString("\n")
	}
	if len(doc.Footers) > 0 {
		sb.WriteString("\nFOOTER CONTENT:\n")
		sb.WriteString(strings.Join(doc.Footers, "\n"))
		sb.WriteString("\n")
	}

	return strings.TrimSpace(sb.String()), rowNo
}
