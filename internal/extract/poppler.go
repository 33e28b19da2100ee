package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jonathan/resume-intake/internal/convert"
)

// PopplerBackend shells out to pdftoppm and pdftotext
type PopplerBackend struct {
	Runner  convert.Runner
	TempDir string
}

func (PopplerBackend) Name() string { return "poppler" }

// Rasterize runs `pdftoppm -r <dpi> -png <in> <tmp>/page`
func (b PopplerBackend) Rasterize(ctx context.Context, path string, dpi int, onPage ProgressFunc) ([]Page, error) {
	tmp, err := os.MkdirTemp(b.TempDir, "pdftoppm-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	prefix := filepath.Join(tmp, "page")
	if _, stderr, err := b.Runner.Run(ctx, "pdftoppm", "-r", strconv.Itoa(dpi), "-png", path, prefix); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (%s)", err, strings.TrimSpace(string(stderr)))
	}

	files, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no images")
	}
	sort.Slice(files, func(i, j int) bool { return pageIndex(files[i]) < pageIndex(files[j]) })

	pages := make([]Page, 0, len(files))
	for i, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		pages = append(pages, Page{Number: i + 1, PNG: data})
		onPage(i+1, len(files))
	}
	return pages, nil
}

// PageTexts runs `pdftotext -layout -enc UTF-8 -eol unix <in> -` and splits on form feeds
func (b PopplerBackend) PageTexts(ctx context.Context, path string) ([]string, error) {
	stdout, stderr, err := b.Runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w (%s)", err, strings.TrimSpace(string(stderr)))
	}
	pages := strings.Split(string(stdout), "\f")
	if n := len(pages); n > 1 && strings.TrimSpace(pages[n-1]) == "" {
		pages = pages[:n-1]
	}
	return pages, nil
}

// pageIndex parses N from ".../page-N.png"; pdftoppm zero-pads by page count
func pageIndex(name string) int {
	base := strings.TrimSuffix(filepath.Base(name), ".png")
	n, err := strconv.Atoi(base[strings.LastIndex(base, "-")+1:])
	if err != nil {
		return 0
	}
	return n
}
