package layout

import (
	"html"
	"strings"
)

const htmlStyle = `body{font-family:Helvetica,Arial,sans-serif;font-size:10pt;margin:0}` +
	`table{border-collapse:collapse;width:100%;margin:8pt 0}` +
	`td,th{border:1px solid #444;padding:3pt;vertical-align:top}` +
	`.hdr,.ftr{color:#555;font-size:9pt}`

// HTML renders the document as a standalone printable page
func (d *Document) HTML() string {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><style>")
	sb.WriteString(htmlStyle)
	sb.WriteString("</style></head><body>\n")

	for _, h := range d.Headers {
		sb.WriteString(`<p class="hdr">` + html.EscapeString(h) + "</p>\n")
	}

	for _, b := range d.Body {
		if b.Table == nil {
			sb.WriteString("<p>" + html.EscapeString(b.Paragraph) + "</p>\n")
			continue
		}
		sb.WriteString("<table>\n")
		for i, row := range b.Table.Rows {
			tag := "td"
			if i == 0 && b.Table.HasHeader() {
				tag = "th"
			}
			sb.WriteString("<tr>")
			for _, cell := range row {
				sb.WriteString("<" + tag + ">" + html.EscapeString(cell) + "</" + tag + ">")
			}
			sb.WriteString("</tr>\n")
		}
		sb.WriteString("</table>\n")
	}

	for _, f := range d.Footers {
		sb.WriteString(`<p class="ftr">` + html.EscapeString(f) + "</p>\n")
	}

	sb.WriteString("</body></html>\n")
	return sb.String()
}
