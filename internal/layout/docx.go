package layout

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// ReadDOCX parses an OOXML word-processing file
func ReadDOCX(filePath string) (*Document, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open docx archive: %w", err)
	}
	defer func() { _ = zr.Close() }()

	return readDOCX(&zr.Reader)
}

func readDOCX(zr *zip.Reader) (*Document, error) {
	var body *zip.File
	var headers, footers []*zip.File
	for _, f := range zr.File {
		name := f.Name
		switch {
		case name == "word/document.xml":
			body = f
		case path.Dir(name) == "word" && strings.HasPrefix(path.Base(name), "header") && strings.HasSuffix(name, ".xml"):
			headers = append(headers, f)
		case path.Dir(name) == "word" && strings.HasPrefix(path.Base(name), "footer") && strings.HasSuffix(name, ".xml"):
			footers = append(footers, f)
		}
	}
	if body == nil {
		return nil, fmt.Errorf("docx archive has no word/document.xml")
	}

	doc := &Document{}
	if err := parsePart(body, doc); err != nil {
		return nil, err
	}

	var err error
	if doc.Headers, err = partLines(headers); err != nil {
		return nil, err
	}
	if doc.Footers, err = partLines(footers); err != nil {
		return nil, err
	}
	return doc, nil
}

// partLines flattens header or footer parts into text lines, tables included
func partLines(files []*zip.File) ([]string, error) {
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	var lines []string
	seen := make(map[string]bool)
	for _, f := range files {
		part := &Document{}
		if err := parsePart(f, part); err != nil {
			return nil, err
		}
		for _, b := range part.Body {
			if b.Table != nil {
				for _, row := range b.Table.Rows {
					if l := strings.Join(nonEmpty(row), " | "); l != "" && !seen[l] {
						seen[l] = true
						lines = append(lines, l)
					}
				}
				continue
			}
			if !seen[b.Paragraph] {
				seen[b.Paragraph] = true
				lines = append(lines, b.Paragraph)
			}
		}
	}
	return lines, nil
}

func parsePart(f *zip.File, doc *Document) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	if err := parseWordML(rc, doc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", f.Name, err)
	}
	return nil
}

type tableBuilder struct {
	rows [][]string
	row  []string
	cell []string
}

// parseWordML walks WordprocessingML tokens. Paragraphs inside a table cell
// become the cell's text; a nested table is flattened into its parent cell.
func parseWordML(r io.Reader, doc *Document) error {
	dec := xml.NewDecoder(r)

	var (
		stack  []*tableBuilder
		para   strings.Builder
		inText bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "tbl":
				stack = append(stack, &tableBuilder{})
			case "tr":
				if len(stack) > 0 {
					stack[len(stack)-1].row = nil
				}
			case "tc":
				if len(stack) > 0 {
					stack[len(stack)-1].cell = nil
				}
			case "p":
				para.Reset()
			case "t":
				inText = true
			case "tab":
				para.WriteString(" ")
			case "br", "cr":
				para.WriteString(" ")
			}

		case xml.CharData:
			if inText {
				para.Write(el)
			}

		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				text := strings.TrimSpace(para.String())
				para.Reset()
				if len(stack) > 0 {
					tb := stack[len(stack)-1]
					if text != "" {
						tb.cell = append(tb.cell, text)
					}
				} else {
					doc.AddParagraph(text)
				}
			case "tc":
				if len(stack) > 0 {
					tb := stack[len(stack)-1]
					tb.row = append(tb.row, strings.Join(tb.cell, " "))
					tb.cell = nil
				}
			case "tr":
				if len(stack) > 0 {
					tb := stack[len(stack)-1]
					tb.rows = append(tb.rows, tb.row)
					tb.row = nil
				}
			case "tbl":
				if len(stack) == 0 {
					continue
				}
				tb := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if len(stack) > 0 {
					parent := stack[len(stack)-1]
					for _, row := range tb.rows {
						if l := strings.Join(nonEmpty(row), " "); l != "" {
							parent.cell = append(parent.cell, l)
						}
					}
					continue
				}
				doc.AddTable(tb.rows)
			}
		}
	}
}

func nonEmpty(cells []string) []string {
	out := make([]string, 0, len(cells))
	for _, c := range cells {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
