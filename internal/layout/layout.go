// Package layout holds the structural view of a word-processing document:
// body paragraphs and tables in reading order, plus header and footer text.
package layout

import (
	"strings"
	"unicode"
)

// maxHeaderCellLen bounds how long a header cell label may be
const maxHeaderCellLen = 40

// headerKeywords are words that identify a table's column header row
var headerKeywords = map[string]bool{
	"role":             true,
	"company":          true,
	"duration":         true,
	"client":           true,
	"employer":         true,
	"organization":     true,
	"organisation":     true,
	"designation":      true,
	"position":         true,
	"period":           true,
	"project":          true,
	"location":         true,
	"domain":           true,
	"responsibilities": true,
}

// Table is a grid of cell text, one slice per row
type Table struct {
	Rows [][]string
}

// Block is one body element: either a paragraph or a table
type Block struct {
	Paragraph string
	Table     *Table
}

// Document is the reading-order content of a document
type Document struct {
	Body    []Block
	Headers []string
	Footers []string
}

// AddParagraph appends non-blank paragraph text to the body
func (d *Document) AddParagraph(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	d.Body = append(d.Body, Block{Paragraph: text})
}

// AddTable appends a table to the body, dropping rows whose cells are all blank
func (d *Document) AddTable(rows [][]string) {
	t := &Table{}
	for _, row := range rows {
		cells := make([]string, len(row))
		blank := true
		for i, c := range row {
			cells[i] = normalizeSpace(c)
			if cells[i] != "" {
				blank = false
			}
		}
		if !blank {
			t.Rows = append(t.Rows, cells)
		}
	}
	if len(t.Rows) > 0 {
		d.Body = append(d.Body, Block{Table: t})
	}
}

// Tables returns the body tables in order
func (d *Document) Tables() []*Table {
	var out []*Table
	for _, b := range d.Body {
		if b.Table != nil {
			out = append(out, b.Table)
		}
	}
	return out
}

// HasHeader reports whether the first row is a column header: every cell is
// non-empty and short, and at least one cell names a header keyword.
func (t *Table) HasHeader() bool {
	if len(t.Rows) == 0 {
		return false
	}
	keyword := false
	for _, cell := range t.Rows[0] {
		if cell == "" || len([]rune(cell)) > maxHeaderCellLen {
			return false
		}
		for _, w := range strings.FieldsFunc(strings.ToLower(cell), notLetter) {
			if headerKeywords[w] {
				keyword = true
			}
		}
	}
	return keyword
}

// DataRows returns the rows that are not the column header
func (t *Table) DataRows() [][]string {
	if t.HasHeader() {
		return t.Rows[1:]
	}
	return t.Rows
}

func notLetter(r rune) bool {
	return !unicode.IsLetter(r)
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
