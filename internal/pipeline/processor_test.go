package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-intake/internal/convert"
	"github.com/jonathan/resume-intake/internal/db"
	"github.com/jonathan/resume-intake/internal/extract"
	"github.com/jonathan/resume-intake/internal/layout/docxtest"
	"github.com/jonathan/resume-intake/internal/tasks"
)

type harness struct {
	reg        *tasks.Registry
	normalizer *fakeNormalizer
	extractor  *fakeExtractor
	oracle     *fakeOracle
	history    *memHistory
	proc       *Processor
}

func newHarness(t *testing.T, opts ...ProcessorOption) *harness {
	t.Helper()
	h := &harness{
		reg:        tasks.NewRegistry(),
		normalizer: &fakeNormalizer{},
		extractor: &fakeExtractor{
			pages: 2,
			doc:   extract.Document{Text: "Jane Doe\nExperience", RowMarkers: 3},
		},
		oracle:  &fakeOracle{},
		history: &memHistory{},
	}
	opts = append([]ProcessorOption{WithHistory(h.history)}, opts...)
	h.proc = NewProcessor(h.reg, h.normalizer, h.extractor, h.oracle, opts...)
	return h
}

func (h *harness) task(t *testing.T, id string) tasks.Task {
	t.Helper()
	task, err := h.reg.Get(id)
	require.NoError(t, err)
	return task
}

func TestProcess_VisualPDF(t *testing.T) {
	h := newHarness(t)
	id, input := submit(t, h.reg, ".pdf", tasks.StrategyVisual)

	h.proc.Process(context.Background(), id)

	task := h.task(t, id)
	assert.Equal(t, tasks.StatusCompleted, task.Status)
	assert.Equal(t, tasks.StageCompletion, task.Stage)
	assert.Equal(t, 100, task.Progress)
	assert.Equal(t, tasks.StrategyVisual, task.Method)
	assert.Empty(t, task.Error)
	require.NotNil(t, task.Result)
	assert.Equal(t, "Jane Doe", task.Result.Name)
	assert.Len(t, task.Result.ExperienceData, 2)

	assert.Equal(t, 0, h.normalizer.calls, "pdf needs no conversion")
	assert.Equal(t, []string{input}, h.extractor.rasterized)
	assert.Empty(t, h.extractor.texted)
	assert.Equal(t, []tasks.Strategy{tasks.StrategyVisual}, h.oracle.modes())
	assert.NoFileExists(t, input)

	recs := h.history.records()
	require.Len(t, recs, 1)
	assert.Equal(t, db.StatusCompleted, recs[0].Status)
	assert.Equal(t, "visual", recs[0].Method)
	assert.Equal(t, id, recs[0].TaskID)
	assert.Equal(t, "jane.pdf", recs[0].Filename)
	assert.Equal(t, ".pdf", recs[0].FileType)
	assert.Equal(t, "sum", recs[0].Checksum)
	assert.Empty(t, recs[0].ErrorMessage)

	var stored map[string]any
	require.NoError(t, json.Unmarshal(recs[0].Profile, &stored))
	assert.Equal(t, "Jane Doe", stored["name"])
}

func TestProcess_TextualStrategy(t *testing.T) {
	h := newHarness(t)
	id, input := submit(t, h.reg, ".docx", tasks.StrategyTextual)

	h.proc.Process(context.Background(), id)

	task := h.task(t, id)
	assert.Equal(t, tasks.StatusCompleted, task.Status)
	assert.Equal(t, tasks.StrategyTextual, task.Method)
	require.NotNil(t, task.Result)
	assert.Len(t, task.Result.ExperienceData, 3)

	assert.Equal(t, 0, h.normalizer.calls, "textual requests are never converted")
	assert.Empty(t, h.extractor.rasterized)
	assert.Equal(t, []string{input}, h.extractor.texted)

	h.oracle.mu.Lock()
	require.Len(t, h.oracle.calls, 1)
	assert.Equal(t, 3, h.oracle.calls[0].RowMarkers)
	assert.Equal(t, "Jane Doe\nExperience", h.oracle.calls[0].Text)
	h.oracle.mu.Unlock()
}

func TestProcess_RasterizeFailureFallsBackToTextual(t *testing.T) {
	h := newHarness(t)
	h.extractor.rasterErr = errors.New("no rasterizer available")
	id, input := submit(t, h.reg, ".pdf", tasks.StrategyVisual)

	h.proc.Process(context.Background(), id)

	task := h.task(t, id)
	assert.Equal(t, tasks.StatusCompleted, task.Status)
	assert.Equal(t, tasks.StrategyTextual, task.Method)
	assert.Equal(t, []string{input}, h.extractor.texted)
	assert.Equal(t, []tasks.Strategy{tasks.StrategyTextual}, h.oracle.modes())

	recs := h.history.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "textual", recs[0].Method)
}

func TestProcess_VisualOracleFailureFallsBackOnce(t *testing.T) {
	h := newHarness(t)
	h.oracle.errs = map[tasks.Strategy]error{tasks.StrategyVisual: errors.New("model overloaded")}
	id, _ := submit(t, h.reg, ".pdf", tasks.StrategyVisual)

	h.proc.Process(context.Background(), id)

	task := h.task(t, id)
	assert.Equal(t, tasks.StatusCompleted, task.Status)
	assert.Equal(t, tasks.StrategyTextual, task.Method)
	assert.Equal(t, []tasks.Strategy{tasks.StrategyVisual, tasks.StrategyTextual}, h.oracle.modes())
	assert.Len(t, h.extractor.rasterized, 1)
}

func TestProcess_TextualFailureIsTerminal(t *testing.T) {
	h := newHarness(t)
	h.oracle.errs = map[tasks.Strategy]error{tasks.StrategyTextual: errors.New("quota exceeded")}
	id, input := submit(t, h.reg, ".pdf", tasks.StrategyTextual)

	h.proc.Process(context.Background(), id)

	task := h.task(t, id)
	assert.Equal(t, tasks.StatusFailed, task.Status)
	assert.Equal(t, tasks.StageTextExtraction, task.Stage)
	assert.Contains(t, task.Error, "quota exceeded")
	assert.Nil(t, task.Result)
	assert.Empty(t, h.extractor.rasterized, "textual failure never retries visually")
	assert.NoFileExists(t, input)

	recs := h.history.records()
	require.Len(t, recs, 1)
	assert.Equal(t, db.StatusFailed, recs[0].Status)
	assert.Equal(t, "textual", recs[0].Method)
	assert.Contains(t, recs[0].ErrorMessage, "quota exceeded")
	assert.JSONEq(t, `{}`, string(recs[0].Profile))
}

func TestProcess_FallbackFailureIsTerminal(t *testing.T) {
	h := newHarness(t)
	h.extractor.rasterErr = errors.New("corrupt pdf")
	h.extractor.textErr = errors.New("no text layer")
	id, _ := submit(t, h.reg, ".pdf", tasks.StrategyVisual)

	h.proc.Process(context.Background(), id)

	task := h.task(t, id)
	assert.Equal(t, tasks.StatusFailed, task.Status)
	assert.Equal(t, tasks.StrategyTextual, task.Method)
	assert.Contains(t, task.Error, "no text layer")
	assert.Len(t, h.extractor.rasterized, 1)
	assert.Len(t, h.extractor.texted, 1)
	assert.Empty(t, h.oracle.modes())
}

func TestProcess_ConvertedDerivativeIsRasterizedAndRemoved(t *testing.T) {
	h := newHarness(t)
	var derived string
	h.normalizer.result = func(path string) convert.Result {
		derived = filepath.Join(filepath.Dir(path), "upload.pdf")
		require.NoError(t, os.WriteFile(derived, []byte("%PDF-1.7"), 0o600))
		return convert.Result{Path: derived, Ext: ".pdf", Backend: "office"}
	}
	id, input := submit(t, h.reg, ".docx", tasks.StrategyVisual)

	h.proc.Process(context.Background(), id)

	task := h.task(t, id)
	assert.Equal(t, tasks.StatusCompleted, task.Status)
	assert.Equal(t, tasks.StrategyVisual, task.Method)
	assert.Equal(t, 1, h.normalizer.calls)
	assert.Equal(t, []string{derived}, h.extractor.rasterized)
	assert.NoFileExists(t, input)
	assert.NoFileExists(t, derived)
}

func TestProcess_DegradedConversionSkipsVisual(t *testing.T) {
	h := newHarness(t)
	h.normalizer.result = func(path string) convert.Result {
		return convert.Result{Path: path, Ext: ".docx", Degraded: true, Failures: []error{errors.New("office missing")}}
	}
	id, input := submit(t, h.reg, ".docx", tasks.StrategyVisual)

	h.proc.Process(context.Background(), id)

	task := h.task(t, id)
	assert.Equal(t, tasks.StatusCompleted, task.Status)
	assert.Equal(t, tasks.StrategyTextual, task.Method)
	assert.Empty(t, h.extractor.rasterized)
	assert.Equal(t, []string{input}, h.extractor.texted)
}

func TestProcess_ParseFailureIsTerminal(t *testing.T) {
	h := newHarness(t)
	h.oracle.answers = map[tasks.Strategy]string{tasks.StrategyVisual: "Sorry, I cannot read this document."}
	id, _ := submit(t, h.reg, ".pdf", tasks.StrategyVisual)

	h.proc.Process(context.Background(), id)

	task := h.task(t, id)
	assert.Equal(t, tasks.StatusFailed, task.Status)
	assert.Equal(t, tasks.StageParsing, task.Stage)
	assert.Equal(t, tasks.StrategyVisual, task.Method)
	assert.NotEmpty(t, task.Error)
	assert.Equal(t, []tasks.Strategy{tasks.StrategyVisual}, h.oracle.modes())
}

func TestProcess_PanicBecomesFailure(t *testing.T) {
	h := newHarness(t)
	h.extractor.panicOn = "rasterize"
	id, input := submit(t, h.reg, ".pdf", tasks.StrategyVisual)

	require.NotPanics(t, func() { h.proc.Process(context.Background(), id) })

	task := h.task(t, id)
	assert.Equal(t, tasks.StatusFailed, task.Status)
	assert.Contains(t, task.Error, "internal error")
	assert.Contains(t, task.Error, "rasterizer exploded")
	assert.NoFileExists(t, input)

	recs := h.history.records()
	require.Len(t, recs, 1)
	assert.Equal(t, db.StatusFailed, recs[0].Status)
}

func TestProcess_CanceledContext(t *testing.T) {
	h := newHarness(t)
	id, input := submit(t, h.reg, ".pdf", tasks.StrategyVisual)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.proc.Process(ctx, id)

	task := h.task(t, id)
	assert.Equal(t, tasks.StatusFailed, task.Status)
	assert.Contains(t, task.Error, context.Canceled.Error())
	assert.Empty(t, h.extractor.rasterized)
	assert.NoFileExists(t, input)
}

func TestProcess_PersistenceFailureKeepsOutcome(t *testing.T) {
	var logs bytes.Buffer
	h := newHarness(t, WithLogger(zerolog.New(&logs)))
	h.history.err = errors.New("database is locked")
	id, _ := submit(t, h.reg, ".pdf", tasks.StrategyVisual)

	h.proc.Process(context.Background(), id)

	task := h.task(t, id)
	assert.Equal(t, tasks.StatusCompleted, task.Status)
	assert.Contains(t, logs.String(), "pipeline.persist.failed")
	assert.Contains(t, logs.String(), "database is locked")
}

func TestProcess_RowMismatchIsLogged(t *testing.T) {
	var logs bytes.Buffer
	h := newHarness(t, WithLogger(zerolog.New(&logs)))
	h.oracle.answers = map[tasks.Strategy]string{tasks.StrategyTextual: profileJSON(1)}
	id, _ := submit(t, h.reg, ".docx", tasks.StrategyTextual)

	h.proc.Process(context.Background(), id)

	task := h.task(t, id)
	require.Equal(t, tasks.StatusCompleted, task.Status)
	assert.Len(t, task.Result.ExperienceData, 1)
	assert.Contains(t, logs.String(), "pipeline.rows.mismatch")
}

func TestProcess_UnknownTask(t *testing.T) {
	h := newHarness(t)
	require.NotPanics(t, func() { h.proc.Process(context.Background(), "missing") })
	assert.Empty(t, h.history.records())
}

func TestProcess_ObservedStatusIsMonotonic(t *testing.T) {
	h := newHarness(t)
	h.extractor.pages = 5
	id, _ := submit(t, h.reg, ".pdf", tasks.StrategyVisual)

	ch, cancel, err := h.reg.Subscribe(id)
	require.NoError(t, err)
	defer cancel()

	var seen []tasks.Task
	done := make(chan struct{})
	go func() {
		defer close(done)
		for snap := range ch {
			seen = append(seen, snap)
		}
	}()

	h.proc.Process(context.Background(), id)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("subscription did not close after the task finished")
	}

	require.NotEmpty(t, seen)
	rank := map[tasks.Status]int{
		tasks.StatusPending:    0,
		tasks.StatusProcessing: 1,
		tasks.StatusCompleted:  2,
		tasks.StatusFailed:     2,
	}
	for i := 1; i < len(seen); i++ {
		prev, cur := seen[i-1], seen[i]
		assert.GreaterOrEqual(t, rank[cur.Status], rank[prev.Status])
		if cur.Stage == prev.Stage && cur.Status == prev.Status {
			assert.GreaterOrEqual(t, cur.Progress, prev.Progress, "progress within %s", cur.Stage)
		}
	}
	last := seen[len(seen)-1]
	assert.Equal(t, tasks.StatusCompleted, last.Status)
	assert.Equal(t, 100, last.Progress)
}

func TestProcess_DocxWithoutConvertersUsesTextTables(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "upload.docx")
	docxtest.Write(t, input, docxtest.Content{
		Body: []any{"Jane Doe", "Professional Experience", docxtest.ExperienceRows(3)},
	})

	converters, err := convert.Build([]string{"office", "unoconv", "render"}, failingRunner{}, failingPrint)
	require.NoError(t, err)
	normalizer := convert.NewNormalizer(converters, time.Second, zerolog.Nop())
	extractor := extract.New(failingRunner{}, extract.WithTempDir(dir))

	reg := tasks.NewRegistry()
	oracle := &fakeOracle{}
	history := &memHistory{}
	proc := NewProcessor(reg, normalizer, extractor, oracle, WithHistory(history))

	id := reg.Create(tasks.Metadata{
		Filename:  "jane.docx",
		Extension: ".docx",
		Strategy:  tasks.StrategyVisual,
	}, tasks.Resources{InputPath: input})

	proc.Process(context.Background(), id)

	task, err := reg.Get(id)
	require.NoError(t, err)
	require.Equal(t, tasks.StatusCompleted, task.Status, task.Error)
	assert.Equal(t, tasks.StrategyTextual, task.Method)
	require.NotNil(t, task.Result)
	assert.Len(t, task.Result.ExperienceData, 3)
	assert.Equal(t, []tasks.Strategy{tasks.StrategyTextual}, oracle.modes())
	assert.NoFileExists(t, input)

	recs := history.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "textual", recs[0].Method)
}

func TestProcess_ConcurrentTasksStayIndependent(t *testing.T) {
	h := newHarness(t)
	visualID, _ := submit(t, h.reg, ".pdf", tasks.StrategyVisual)
	textualID, _ := submit(t, h.reg, ".docx", tasks.StrategyTextual)

	var wg sync.WaitGroup
	for _, id := range []string{visualID, textualID} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			h.proc.Process(context.Background(), id)
		}(id)
	}
	wg.Wait()

	v := h.task(t, visualID)
	x := h.task(t, textualID)
	assert.Equal(t, tasks.StatusCompleted, v.Status)
	assert.Equal(t, tasks.StatusCompleted, x.Status)
	assert.Equal(t, tasks.StrategyVisual, v.Method)
	assert.Equal(t, tasks.StrategyTextual, x.Method)
	assert.Len(t, v.Result.ExperienceData, 2)
	assert.Len(t, x.Result.ExperienceData, 3)
	assert.Len(t, h.history.records(), 2)
}
