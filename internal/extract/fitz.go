package extract

import (
	"context"
	"fmt"

	"github.com/gen2brain/go-fitz"
)

// FitzBackend renders and reads PDFs through MuPDF
type FitzBackend struct{}

func (FitzBackend) Name() string { return "mupdf" }

func (FitzBackend) Rasterize(ctx context.Context, path string, dpi int, onPage ProgressFunc) ([]Page, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = doc.Close() }()

	total := doc.NumPage()
	pages := make([]Page, 0, total)
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(i, float64(dpi))
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", i+1, err)
		}
		pages = append(pages, Page{Number: i + 1, Image: img})
		onPage(i+1, total)
	}
	return pages, nil
}

func (FitzBackend) PageTexts(ctx context.Context, path string) ([]string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = doc.Close() }()

	texts := make([]string, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", i+1, err)
		}
		texts = append(texts, text)
	}
	return texts, nil
}
