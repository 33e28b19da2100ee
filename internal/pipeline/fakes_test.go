package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-intake/internal/convert"
	"github.com/jonathan/resume-intake/internal/db"
	"github.com/jonathan/resume-intake/internal/extract"
	"github.com/jonathan/resume-intake/internal/llm"
	"github.com/jonathan/resume-intake/internal/tasks"
)

type fakeNormalizer struct {
	mu     sync.Mutex
	result func(path string) convert.Result
	err    error
	calls  int
}

func (f *fakeNormalizer) Normalize(_ context.Context, path, ext string, _ tasks.Strategy) (convert.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return convert.Result{}, f.err
	}
	if f.result != nil {
		return f.result(path), nil
	}
	return convert.Result{Path: path, Ext: ext}, nil
}

type fakeExtractor struct {
	mu         sync.Mutex
	pages      int
	rasterErr  error
	doc        extract.Document
	textErr    error
	panicOn    string
	rasterized []string
	texted     []string
}

func (f *fakeExtractor) Rasterize(_ context.Context, path string, _ int, onPage extract.ProgressFunc) ([]extract.Page, error) {
	f.mu.Lock()
	f.rasterized = append(f.rasterized, path)
	f.mu.Unlock()
	if f.panicOn == "rasterize" {
		panic("rasterizer exploded")
	}
	if f.rasterErr != nil {
		return nil, f.rasterErr
	}
	pages := make([]extract.Page, f.pages)
	for i := range pages {
		pages[i] = extract.Page{Number: i + 1, PNG: []byte("png")}
		onPage(i+1, f.pages)
	}
	return pages, nil
}

func (f *fakeExtractor) ExtractText(_ context.Context, path, _ string) (extract.Document, error) {
	f.mu.Lock()
	f.texted = append(f.texted, path)
	f.mu.Unlock()
	if f.panicOn == "text" {
		panic("reader exploded")
	}
	if f.textErr != nil {
		return extract.Document{}, f.textErr
	}
	return f.doc, nil
}

// fakeOracle answers per mode; by default it returns a profile with one
// experience entry per declared row marker.
type fakeOracle struct {
	mu      sync.Mutex
	answers map[tasks.Strategy]string
	errs    map[tasks.Strategy]error
	calls   []llm.Content
}

func (f *fakeOracle) Extract(_ context.Context, c llm.Content) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if err := f.errs[c.Mode]; err != nil {
		return "", err
	}
	if a, ok := f.answers[c.Mode]; ok {
		return a, nil
	}
	rows := c.RowMarkers
	if c.Mode == tasks.StrategyVisual {
		rows = 2
	}
	return "```json\n" + profileJSON(rows) + "\n```", nil
}

func (f *fakeOracle) Close() error { return nil }

func (f *fakeOracle) modes() []tasks.Strategy {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]tasks.Strategy, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Mode)
	}
	return out
}

type memHistory struct {
	mu   sync.Mutex
	recs []*db.HistoryRecord
	err  error
}

func (m *memHistory) SaveHistory(_ context.Context, rec *db.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memHistory) records() []*db.HistoryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*db.HistoryRecord(nil), m.recs...)
}

// failingRunner reports every external binary as missing
type failingRunner struct{}

func (failingRunner) Run(context.Context, string, ...string) ([]byte, []byte, error) {
	return nil, []byte("not installed"), errors.New("executable file not found in $PATH")
}

func failingPrint(context.Context, string) ([]byte, error) {
	return nil, errors.New("no browser available")
}

func profileJSON(rows int) string {
	entries := make([]string, rows)
	for i := range entries {
		entries[i] = fmt.Sprintf(`{"company": "Company %d", "role": "Engineer", "startDate": "2019", "endDate": "2020", "responsibilities": ["Built things"]}`, i+1)
	}
	return `{"name": "Jane Doe", "email": "jane@example.com", "mobile": "555 0100",` +
		` "skills": [{"Languages": ["golang"]}], "education": ["B.Sc."], "professional_experience": ["Engineer"],` +
		` "certifications": [], "experience_data": [` + strings.Join(entries, ", ") + `]}`
}

// submit creates an upload file and a pending task pointing at it
func submit(t *testing.T, reg *tasks.Registry, ext string, strategy tasks.Strategy) (string, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload"+ext)
	require.NoError(t, os.WriteFile(path, []byte("document bytes"), 0o600))
	id := reg.Create(tasks.Metadata{
		Filename:  "jane" + ext,
		Size:      14,
		Extension: ext,
		Strategy:  strategy,
		Checksum:  "sum",
	}, tasks.Resources{InputPath: path})
	return id, path
}
