package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/resume-intake/internal/layout"
)

const blockSelector = "p, h1, h2, h3, h4, h5, h6, li, table"

// ParseHTMLLayout reads the structure of an office HTML export. Content in
// div[title=header] and div[title=footer] becomes header and footer text.
func ParseHTMLLayout(r io.Reader) (*layout.Document, error) {
	dom, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc := &layout.Document{}

	dom.Find(`div[title="header"]`).Each(func(_ int, s *goquery.Selection) {
		doc.Headers = append(doc.Headers, blockLines(s)...)
	})
	dom.Find(`div[title="footer"]`).Each(func(_ int, s *goquery.Selection) {
		doc.Footers = append(doc.Footers, blockLines(s)...)
	})

	dom.Find("body").Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered(`div[title="header"], div[title="footer"]`).Length() > 0 {
			return
		}
		if s.ParentsFiltered("table, li").Length() > 0 {
			return
		}
		if goquery.NodeName(s) == "table" {
			doc.AddTable(tableRows(s))
			return
		}
		doc.AddParagraph(cleanText(s.Text()))
	})

	return doc, nil
}

func tableRows(table *goquery.Selection) [][]string {
	var rows [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		// rows of nested tables belong to their own table
		if !tr.ParentsFiltered("table").First().IsSelection(table) {
			return
		}
		var cells []string
		tr.ChildrenFiltered("td, th").Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, cleanText(td.Text()))
		})
		rows = append(rows, cells)
	})
	return rows
}

func blockLines(s *goquery.Selection) []string {
	var lines []string
	s.Find("p, td, th, li").Each(func(_ int, b *goquery.Selection) {
		if b.Find("p").Length() > 0 {
			return
		}
		if t := cleanText(b.Text()); t != "" {
			lines = append(lines, t)
		}
	})
	return lines
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
