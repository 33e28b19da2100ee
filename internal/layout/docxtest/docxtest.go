// Package docxtest writes minimal DOCX files for tests.
package docxtest

import (
	"archive/zip"
	"html"
	"os"
	"strings"
	"testing"
)

// Content describes the document to write. Body entries are either a string
// paragraph or a [][]string table.
type Content struct {
	Body    []any
	Headers []string
	Footers []string
}

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

// Write creates a DOCX at path and fails the test on error
func Write(t testing.TB, path string, c Content) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create docx: %v", err)
	}
	zw := zip.NewWriter(f)

	add := func(name, body string) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	add("[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`)

	var body strings.Builder
	for _, b := range c.Body {
		switch v := b.(type) {
		case string:
			body.WriteString(paragraph(v))
		case [][]string:
			body.WriteString(table(v))
		default:
			t.Fatalf("unsupported body element %T", b)
		}
	}
	add("word/document.xml", `<?xml version="1.0" encoding="UTF-8"?><w:document `+wordNS+`><w:body>`+body.String()+`</w:body></w:document>`)

	if len(c.Headers) > 0 {
		add("word/header1.xml", part("hdr", c.Headers))
	}
	if len(c.Footers) > 0 {
		add("word/footer1.xml", part("ftr", c.Footers))
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close docx: %v", err)
	}
}

// ExperienceRows returns a header row plus n experience rows
func ExperienceRows(n int) [][]string {
	rows := [][]string{{"Role", "Company", "Duration"}}
	for i := 1; i <= n; i++ {
		rows = append(rows, []string{
			"Engineer " + string(rune('A'+i-1)),
			"Company " + string(rune('A'+i-1)),
			"2019 - 2020",
		})
	}
	return rows
}

func paragraph(text string) string {
	return `<w:p><w:r><w:t xml:space="preserve">` + html.EscapeString(text) + `</w:t></w:r></w:p>`
}

func table(rows [][]string) string {
	var sb strings.Builder
	sb.WriteString("<w:tbl>")
	for _, row := range rows {
		sb.WriteString("<w:tr>")
		for _, cell := range row {
			sb.WriteString("<w:tc>" + paragraph(cell) + "</w:tc>")
		}
		sb.WriteString("</w:tr>")
	}
	sb.WriteString("</w:tbl>")
	return sb.String()
}

func part(root string, lines []string) string {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(paragraph(l))
	}
	return `<?xml version="1.0" encoding="UTF-8"?><w:` + root + ` ` + wordNS + `>` + sb.String() + `</w:` + root + `>`
}
