package convert

import (
	"context"
	"fmt"
	"os"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/jonathan/resume-intake/internal/layout"
)

// PrintFunc turns a standalone HTML page into PDF bytes
type PrintFunc func(ctx context.Context, html string) ([]byte, error)

// RenderConverter rebuilds a DOCX as HTML and prints it to PDF. It keeps the
// text and table structure but not the original styling.
type RenderConverter struct {
	printPDF PrintFunc
}

// NewRenderConverter creates the render backend. A nil print function uses
// headless Chrome.
func NewRenderConverter(printPDF PrintFunc) *RenderConverter {
	if printPDF == nil {
		printPDF = ChromePrint
	}
	return &RenderConverter{printPDF: printPDF}
}

func (c *RenderConverter) Name() string { return "render" }

func (c *RenderConverter) Supports(ext string) bool {
	return ext == ".docx"
}

func (c *RenderConverter) Convert(ctx context.Context, in, outDir string) (string, error) {
	doc, err := layout.ReadDOCX(in)
	if err != nil {
		return "", &ConversionError{Backend: c.Name(), Cause: err}
	}

	pdf, err := c.printPDF(ctx, doc.HTML())
	if err != nil {
		return "", &ConversionError{Backend: c.Name(), Cause: err}
	}
	if len(pdf) == 0 {
		return "", &ConversionError{Backend: c.Name(), Cause: fmt.Errorf("printer returned no bytes")}
	}

	out := OutputPath(in, outDir, "pdf")
	if err := os.WriteFile(out, pdf, 0o600); err != nil {
		return "", &ConversionError{Backend: c.Name(), Cause: err}
	}
	return out, nil
}

// ChromePrint loads html into a headless browser tab and prints it as A4.
// Requires Chrome/Chromium to be installed on the system.
func ChromePrint(ctx context.Context, html string) ([]byte, error) {
	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var pdf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("browser print failed: %w", err)
	}
	return pdf, nil
}
