package layout

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-intake/internal/layout/docxtest"
)

func TestReadDOCX_BodyTablesHeadersFooters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cv.docx")
	docxtest.Write(t, path, docxtest.Content{
		Body: []any{
			"Jane Doe",
			"Senior Engineer",
			docxtest.ExperienceRows(3),
			"Certifications: CKA",
		},
		Headers: []string{"jane@example.com"},
		Footers: []string{"Page footer"},
	})

	doc, err := ReadDOCX(path)
	require.NoError(t, err)

	require.Len(t, doc.Body, 4)
	assert.Equal(t, "Jane Doe", doc.Body[0].Paragraph)
	require.NotNil(t, doc.Body[2].Table)
	assert.Equal(t, "Certifications: CKA", doc.Body[3].Paragraph)

	tables := doc.Tables()
	require.Len(t, tables, 1)
	assert.Len(t, tables[0].Rows, 4)
	assert.True(t, tables[0].HasHeader())
	assert.Len(t, tables[0].DataRows(), 3)
	assert.Equal(t, []string{"Engineer A", "Company A", "2019 - 2020"}, tables[0].DataRows()[0])

	assert.Equal(t, []string{"jane@example.com"}, doc.Headers)
	assert.Equal(t, []string{"Page footer"}, doc.Footers)
}

func TestReadDOCX_NotAnArchive(t *testing.T) {
	_, err := ReadDOCX(filepath.Join("testdata", "missing.docx"))
	assert.Error(t, err)
}

func TestParseWordML_NestedTableFlattened(t *testing.T) {
	xml := `<w:document xmlns:w="w"><w:body><w:tbl>
		<w:tr><w:tc><w:p><w:r><w:t>Outer</w:t></w:r></w:p>
			<w:tbl><w:tr><w:tc><w:p><w:r><w:t>Inner</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
		</w:tc></w:tr>
	</w:tbl></w:body></w:document>`

	doc := &Document{}
	require.NoError(t, parseWordML(strings.NewReader(xml), doc))

	tables := doc.Tables()
	require.Len(t, tables, 1)
	assert.Equal(t, [][]string{{"Outer Inner"}}, tables[0].Rows)
}

func TestTable_HasHeader(t *testing.T) {
	tests := []struct {
		name string
		rows [][]string
		want bool
	}{
		{"keyword header", [][]string{{"Role", "Company", "Duration"}, {"a", "b", "c"}}, true},
		{"case and punctuation", [][]string{{"CLIENT/PROJECT", "Period"}}, true},
		{"data row only", [][]string{{"Engineer", "Acme", "2019"}}, false},
		{"blank cell", [][]string{{"Role", "", "Duration"}}, false},
		{"long cell", [][]string{{"Role", strings.Repeat("company ", 10)}}, false},
		{"empty table", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := &Table{Rows: tt.rows}
			assert.Equal(t, tt.want, tbl.HasHeader())
		})
	}
}

func TestDocument_AddTableDropsBlankRows(t *testing.T) {
	doc := &Document{}
	doc.AddTable([][]string{{" ", ""}, {"a  b", "c"}})
	doc.AddTable([][]string{{"", ""}})

	tables := doc.Tables()
	require.Len(t, tables, 1)
	assert.Equal(t, [][]string{{"a b", "c"}}, tables[0].Rows)
}

func TestDocument_HTML(t *testing.T) {
	doc := &Document{Headers: []string{"head"}, Footers: []string{"foot"}}
	doc.AddParagraph("R&D <lead>")
	doc.AddTable([][]string{{"Role", "Company"}, {"Dev", "Acme"}})

	out := doc.HTML()
	assert.Contains(t, out, "<p>R&amp;D &lt;lead&gt;</p>")
	assert.Contains(t, out, "<th>Role</th>")
	assert.Contains(t, out, "<td>Acme</td>")
	assert.Less(t, strings.Index(out, `class="hdr">head`), strings.Index(out, "R&amp;D"))
	assert.Greater(t, strings.Index(out, "foot"), strings.Index(out, "Acme"))
}
