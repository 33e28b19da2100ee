package intake

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-intake/internal/db"
	"github.com/jonathan/resume-intake/internal/tasks"
	"github.com/jonathan/resume-intake/internal/types"
)

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

type fakeQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (q *fakeQueue) Enqueue(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, id)
	return nil
}

func newService(t *testing.T, opts ...Option) (*Service, *tasks.Registry, *fakeQueue, string) {
	t.Helper()
	reg := tasks.NewRegistry()
	q := &fakeQueue{}
	dir := t.TempDir()
	opts = append([]Option{WithWorkDir(dir)}, opts...)
	return NewService(reg, q, opts...), reg, q, dir
}

func pdfRequest() SubmitRequest {
	return SubmitRequest{
		Filename: "Jane Doe.pdf",
		MIMEType: "application/pdf",
		Data:     []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n"),
	}
}

func TestSubmit_Accepts(t *testing.T) {
	svc, reg, q, dir := newService(t)

	resp, err := svc.Submit(context.Background(), pdfRequest())
	require.NoError(t, err)
	assert.Equal(t, "processing", resp.Status)
	assert.Equal(t, []string{resp.TaskID}, q.ids)

	task, err := reg.Get(resp.TaskID)
	require.NoError(t, err)
	assert.Equal(t, tasks.StatusPending, task.Status)
	assert.Equal(t, tasks.StageUpload, task.Stage)
	assert.Equal(t, tasks.StrategyVisual, task.Metadata.Strategy)
	assert.Equal(t, ".pdf", task.Metadata.Extension)
	assert.Equal(t, "Jane Doe.pdf", task.Metadata.Filename)
	assert.Equal(t, "application/pdf", task.Metadata.DetectedMIME)
	assert.Len(t, task.Metadata.Checksum, 64)

	assert.Equal(t, dir, filepath.Dir(task.Resources.InputPath))
	data, err := os.ReadFile(task.Resources.InputPath)
	require.NoError(t, err)
	assert.Equal(t, pdfRequest().Data, data)
}

func TestSubmit_StrategyAndMIMEParameters(t *testing.T) {
	svc, reg, _, _ := newService(t)

	req := SubmitRequest{
		Filename: "cv.DOCX",
		MIMEType: docxMIME + "; charset=binary",
		Data:     []byte("PK\x03\x04 not really a zip"),
		Strategy: "textual",
	}
	resp, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)

	task, err := reg.Get(resp.TaskID)
	require.NoError(t, err)
	assert.Equal(t, tasks.StrategyTextual, task.Metadata.Strategy)
	assert.Equal(t, ".docx", task.Metadata.Extension)
}

func TestSubmit_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		req   SubmitRequest
		field string
	}{
		{
			name:  "text file",
			req:   SubmitRequest{Filename: "notes.txt", MIMEType: "text/plain", Data: []byte("hello")},
			field: "filename",
		},
		{
			name:  "pdf declared as word",
			req:   SubmitRequest{Filename: "cv.pdf", MIMEType: "application/msword", Data: []byte("%PDF")},
			field: "mime_type",
		},
		{
			name:  "docx declared as pdf",
			req:   SubmitRequest{Filename: "cv.docx", MIMEType: "application/pdf", Data: []byte("PK")},
			field: "mime_type",
		},
		{
			name:  "empty body",
			req:   SubmitRequest{Filename: "cv.pdf", MIMEType: "application/pdf", Data: []byte{}},
			field: "data",
		},
		{
			name:  "missing filename",
			req:   SubmitRequest{MIMEType: "application/pdf", Data: []byte("%PDF")},
			field: "filename",
		},
		{
			name:  "unknown strategy",
			req:   SubmitRequest{Filename: "cv.pdf", MIMEType: "application/pdf", Data: []byte("%PDF"), Strategy: "ocr"},
			field: "strategy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, reg, q, dir := newService(t)

			resp, err := svc.Submit(context.Background(), tt.req)
			assert.Nil(t, resp)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)

			assert.Empty(t, reg.List(), "no task may be created")
			assert.Empty(t, q.ids)
			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestSubmit_TooLarge(t *testing.T) {
	svc, reg, _, _ := newService(t, WithMaxUploadBytes(8))

	_, err := svc.Submit(context.Background(), pdfRequest())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "file", verr.Field)
	assert.Empty(t, reg.List())
}

func TestSubmit_EnqueueFailureFailsTask(t *testing.T) {
	svc, reg, q, dir := newService(t)
	full := errors.New("processing queue is full")
	q.err = full

	resp, err := svc.Submit(context.Background(), pdfRequest())
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, full)

	all := reg.List()
	require.Len(t, all, 1)
	assert.Equal(t, tasks.StatusFailed, all[0].Status)
	assert.Contains(t, all[0].Error, "queue is full")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "the stored upload is removed")
}

func TestSubmit_ConcurrentSubmissionsAreDistinct(t *testing.T) {
	svc, reg, _, _ := newService(t)

	var wg sync.WaitGroup
	ids := make([]string, 2)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := svc.Submit(context.Background(), pdfRequest())
			if assert.NoError(t, err) {
				ids[i] = resp.TaskID
			}
		}(i)
	}
	wg.Wait()

	assert.NotEqual(t, ids[0], ids[1])

	require.NoError(t, reg.Update(ids[0], func(t *tasks.Task) {
		t.Status = tasks.StatusProcessing
		t.Stage = tasks.StageParsing
		t.Progress = 70
	}))
	other, err := reg.Get(ids[1])
	require.NoError(t, err)
	assert.Equal(t, tasks.StatusPending, other.Status)
	assert.Equal(t, 0, other.Progress)
}

func TestPoll(t *testing.T) {
	svc, reg, _, _ := newService(t)
	resp, err := svc.Submit(context.Background(), pdfRequest())
	require.NoError(t, err)

	poll, err := svc.Poll(resp.TaskID, nil)
	require.NoError(t, err)
	assert.Equal(t, tasks.StatusPending, poll.Status)
	assert.Nil(t, poll.Data)
	assert.Nil(t, poll.Error)

	require.NoError(t, reg.Update(resp.TaskID, func(t *tasks.Task) {
		t.Status = tasks.StatusCompleted
		t.Stage = tasks.StageCompletion
		t.Progress = 100
		t.Result = &types.Profile{Name: "Jane"}
	}))

	poll, err = svc.Poll(resp.TaskID, nil)
	require.NoError(t, err)
	assert.Equal(t, tasks.StatusCompleted, poll.Status)
	require.NotNil(t, poll.Data)
	assert.Equal(t, "Jane", poll.Data.Name)
	assert.Nil(t, poll.Error)

	out, err := json.Marshal(poll)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"error":null`)
}

func TestPoll_Failed(t *testing.T) {
	svc, reg, _, _ := newService(t)
	resp, err := svc.Submit(context.Background(), pdfRequest())
	require.NoError(t, err)
	require.NoError(t, reg.Update(resp.TaskID, func(t *tasks.Task) {
		t.Status = tasks.StatusFailed
		t.Error = "textual oracle call failed"
	}))

	poll, err := svc.Poll(resp.TaskID, nil)
	require.NoError(t, err)
	assert.Nil(t, poll.Data)
	require.NotNil(t, poll.Error)
	assert.Equal(t, "textual oracle call failed", *poll.Error)
}

func TestPoll_UnknownAndForeign(t *testing.T) {
	svc, _, _, _ := newService(t)

	_, err := svc.Poll("no-such-task", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	alice, bob := uuid.New(), uuid.New()
	req := pdfRequest()
	req.OwnerID = &alice
	resp, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Poll(resp.TaskID, &bob)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Poll(resp.TaskID, &alice)
	assert.NoError(t, err)

	_, _, err = svc.Watch(resp.TaskID, &bob)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWatch(t *testing.T) {
	svc, reg, _, _ := newService(t)
	resp, err := svc.Submit(context.Background(), pdfRequest())
	require.NoError(t, err)

	ch, cancel, err := svc.Watch(resp.TaskID, nil)
	require.NoError(t, err)
	defer cancel()

	first := <-ch
	assert.Equal(t, tasks.StatusPending, first.Status)

	require.NoError(t, reg.Update(resp.TaskID, func(t *tasks.Task) {
		t.Status = tasks.StatusFailed
		t.Error = "boom"
	}))
	last := <-ch
	assert.Equal(t, tasks.StatusFailed, last.Status)
	_, open := <-ch
	assert.False(t, open)
}

func newHistory(t *testing.T) db.HistoryStore {
	t.Helper()
	store, err := db.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func saveRecord(t *testing.T, store db.HistoryStore, owner *uuid.UUID) *db.HistoryRecord {
	t.Helper()
	rec := &db.HistoryRecord{
		TaskID:   uuid.NewString(),
		Filename: "cv.pdf",
		FileSize: 10,
		Status:   db.StatusCompleted,
		FileType: ".pdf",
		Method:   "visual",
		Profile:  json.RawMessage(`{"name": "Jane"}`),
		OwnerID:  owner,
	}
	require.NoError(t, store.SaveHistory(context.Background(), rec))
	return rec
}

func TestHistory_Disabled(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.ListHistory(ctx, 0, 0, nil)
	assert.ErrorIs(t, err, ErrHistoryDisabled)
	_, err = svc.GetHistory(ctx, uuid.NewString(), nil)
	assert.ErrorIs(t, err, ErrHistoryDisabled)
	assert.ErrorIs(t, svc.DeleteHistory(ctx, uuid.NewString(), nil), ErrHistoryDisabled)
}

func TestHistory_ListGetDelete(t *testing.T) {
	store := newHistory(t)
	svc, _, _, _ := newService(t, WithHistory(store))
	ctx := context.Background()

	empty, err := svc.ListHistory(ctx, 0, 0, nil)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	rec := saveRecord(t, store, nil)
	saveRecord(t, store, nil)

	items, err := svc.ListHistory(ctx, 0, 0, nil)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = svc.ListHistory(ctx, 1, 1, nil)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = svc.ListHistory(ctx, -1, 0, nil)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	got, err := svc.GetHistory(ctx, rec.ID.String(), nil)
	require.NoError(t, err)
	assert.Equal(t, rec.TaskID, got.TaskID)
	assert.JSONEq(t, `{"name": "Jane"}`, string(got.Profile))

	_, err = svc.GetHistory(ctx, "not-a-uuid", nil)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.GetHistory(ctx, uuid.NewString(), nil)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.DeleteHistory(ctx, rec.ID.String(), nil))
	assert.ErrorIs(t, svc.DeleteHistory(ctx, rec.ID.String(), nil), ErrNotFound)
	_, err = svc.GetHistory(ctx, rec.ID.String(), nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHistory_OwnerScoping(t *testing.T) {
	store := newHistory(t)
	svc, _, _, _ := newService(t, WithHistory(store))
	ctx := context.Background()

	alice, bob := uuid.New(), uuid.New()
	mine := saveRecord(t, store, &alice)
	saveRecord(t, store, &bob)

	items, err := svc.ListHistory(ctx, 0, 0, &alice)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, mine.ID, items[0].ID)

	_, err = svc.GetHistory(ctx, mine.ID.String(), &bob)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.DeleteHistory(ctx, mine.ID.String(), &bob), ErrNotFound)

	require.NoError(t, svc.DeleteHistory(ctx, mine.ID.String(), &alice))
}
