// Package extract turns documents into oracle input: rasterized pages for
// visual extraction, or flattened text with table row markers for textual
// extraction.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jonathan/resume-intake/internal/convert"
	"github.com/jonathan/resume-intake/internal/layout"
	"github.com/jonathan/resume-intake/internal/tasks"
)

// MinDPI keeps the rasterization zoom at or above 4x of the 72 DPI PDF base
const MinDPI = 72 * 4

// DefaultDPI is the requested rasterization resolution
const DefaultDPI = 300

// ProgressFunc reports done out of total units of work
type ProgressFunc func(done, total int)

// Rasterizer renders every page of a PDF
type Rasterizer interface {
	Name() string
	Rasterize(ctx context.Context, path string, dpi int, onPage ProgressFunc) ([]Page, error)
}

// PDFTexter reads the text of every page of a PDF
type PDFTexter interface {
	Name() string
	PageTexts(ctx context.Context, path string) ([]string, error)
}

// Document is the flattened text of a source document
type Document struct {
	Text string
	// RowMarkers is the number of distinct experience row markers in Text
	RowMarkers int
	Pages      int
	// Tables counts the tables of a word-processing source, marked or not
	Tables int
}

// Extractor produces pages or text from uploaded documents
type Extractor struct {
	rasterizers []Rasterizer
	texters     []PDFTexter
	runner      convert.Runner
	office      []string
	tempDir     string
	logger      zerolog.Logger
}

// Option configures an Extractor
type Option func(*Extractor)

// WithRasterizers replaces the rasterizer chain
func WithRasterizers(r ...Rasterizer) Option {
	return func(e *Extractor) { e.rasterizers = r }
}

// WithPDFTexters replaces the PDF text chain
func WithPDFTexters(t ...PDFTexter) Option {
	return func(e *Extractor) { e.texters = t }
}

// WithOfficeBinaries sets the binaries used to read legacy .doc files
func WithOfficeBinaries(bins ...string) Option {
	return func(e *Extractor) { e.office = bins }
}

// WithTempDir sets where scratch files are written
func WithTempDir(dir string) Option {
	return func(e *Extractor) { e.tempDir = dir }
}

// WithLogger sets the extractor logger
func WithLogger(l zerolog.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// New creates an Extractor that prefers MuPDF and falls back to poppler
func New(runner convert.Runner, opts ...Option) *Extractor {
	e := &Extractor{
		runner: runner,
		office: convert.DefaultOfficeBinaries,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	poppler := PopplerBackend{Runner: runner, TempDir: e.tempDir}
	if e.rasterizers == nil {
		e.rasterizers = []Rasterizer{FitzBackend{}, poppler}
	}
	if e.texters == nil {
		e.texters = []PDFTexter{FitzBackend{}, poppler}
	}
	return e
}

// Rasterize renders every page of the PDF at max(dpi, MinDPI)
func (e *Extractor) Rasterize(ctx context.Context, path string, dpi int, onPage ProgressFunc) ([]Page, error) {
	if dpi < MinDPI {
		dpi = MinDPI
	}
	if onPage == nil {
		onPage = func(int, int) {}
	}

	var errs []error
	for _, r := range e.rasterizers {
		pages, err := e.rasterizeWith(ctx, r, path, dpi, onPage)
		if err == nil && len(pages) > 0 {
			e.logger.Debug().Str("backend", r.Name()).Int("pages", len(pages)).Int("dpi", dpi).Msg("extract.rasterized")
			return pages, nil
		}
		if err == nil {
			err = errors.New("no pages")
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &ExtractionError{Mode: tasks.StrategyVisual, Message: "canceled", Cause: ctxErr}
		}
		errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		e.logger.Warn().Str("backend", r.Name()).Err(err).Msg("extract.rasterize.failed")
	}
	return nil, &ExtractionError{Mode: tasks.StrategyVisual, Message: "could not rasterize document", Cause: errors.Join(errs...)}
}

func (e *Extractor) rasterizeWith(ctx context.Context, r Rasterizer, path string, dpi int, onPage ProgressFunc) (pages []Page, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return r.Rasterize(ctx, path, dpi, onPage)
}

// ExtractText flattens the document at path. Tables in word-processing
// documents are emitted with experience table and row markers.
func (e *Extractor) ExtractText(ctx context.Context, path, ext string) (Document, error) {
	var (
		doc Document
		err error
	)
	switch strings.ToLower(ext) {
	case ".pdf":
		doc, err = e.pdfText(ctx, path)
	case ".docx":
		doc, err = e.layoutText(layout.ReadDOCX(path))
	case ".doc":
		doc, err = e.layoutText(e.readLegacyDoc(ctx, path))
	default:
		return Document{}, &ExtractionError{Mode: tasks.StrategyTextual, Message: fmt.Sprintf("unsupported extension %q", ext)}
	}
	if err != nil {
		var ee *ExtractionError
		if errors.As(err, &ee) {
			return Document{}, err
		}
		return Document{}, &ExtractionError{Mode: tasks.StrategyTextual, Message: "could not read " + ext + " document", Cause: err}
	}
	if strings.TrimSpace(doc.Text) == "" {
		return Document{}, &ExtractionError{Mode: tasks.StrategyTextual, Message: "document contains no text"}
	}

	e.logger.Debug().
		Str("ext", ext).
		Int("chars", len(doc.Text)).
		Int("row_markers", doc.RowMarkers).
		Int("tables", doc.Tables).
		Msg("extract.text")
	return doc, nil
}

func (e *Extractor) pdfText(ctx context.Context, path string) (Document, error) {
	var errs []error
	for _, t := range e.texters {
		pages, err := t.PageTexts(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return Document{}, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
			e.logger.Warn().Str("backend", t.Name()).Err(err).Msg("extract.pdftext.failed")
			continue
		}
		text := joinPages(pages)
		if strings.TrimSpace(text) == "" {
			errs = append(errs, fmt.Errorf("%s: no text", t.Name()))
			continue
		}
		return Document{Text: text, RowMarkers: CountRowMarkers(text), Pages: len(pages)}, nil
	}
	return Document{}, errors.Join(errs...)
}

func (e *Extractor) layoutText(doc *layout.Document, err error) (Document, error) {
	if err != nil {
		return Document{}, err
	}
	text, rows := RenderMarked(doc)
	return Document{Text: text, RowMarkers: rows, Tables: len(doc.Tables())}, nil
}

// readLegacyDoc exports a .doc to HTML with office and reads its structure
func (e *Extractor) readLegacyDoc(ctx context.Context, path string) (*layout.Document, error) {
	dir, err := os.MkdirTemp(e.tempDir, "doc-html-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	out, err := convert.ConvertWithOffice(ctx, e.runner, e.office, path, dir, "html")
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Clean(out))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return ParseHTMLLayout(f)
}

func joinPages(pages []string) string {
	var sb strings.Builder
	for i, p := range pages {
		if i > 0 {
			fmt.Fprintf(&sb, "\n--- PAGE %d ---\n", i+1)
		}
		sb.WriteString(strings.TrimRight(p, " \n"))
	}
	return strings.TrimSpace(sb.String())
}
