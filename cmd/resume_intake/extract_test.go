package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-intake/internal/db"
	"github.com/jonathan/resume-intake/internal/layout/docxtest"
	"github.com/jonathan/resume-intake/internal/types"
)

const extractedProfile = `{"name": "Jane Doe", "email": "jane@example.com", "mobile": "555 0100",
 "skills": [{"Languages": ["Go"]}], "education": ["B.Sc."], "professional_experience": ["Engineer"],
 "certifications": [], "experience_data": [
  {"company": "Company A", "role": "Engineer A", "startDate": "2019", "endDate": "2020", "responsibilities": ["Built things"]},
  {"company": "Company B", "role": "Engineer B", "startDate": "2019", "endDate": "2020", "responsibilities": ["Built things"]},
  {"company": "Company C", "role": "Engineer C", "startDate": "2019", "endDate": "2020", "responsibilities": ["Built things"]}]}`

// newChatServer fakes an OpenAI-compatible endpoint that always answers content
func newChatServer(t *testing.T, content string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-4o",
			"choices": []any{map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

// extractConfig writes a config without converters that talks to baseURL
func extractConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`work_dir: %s
convert:
  backends: []
oracle:
  provider: openai
  model: gpt-4o
  api_key: sk-test
  base_url: %s/v1/
database:
  driver: sqlite
  url: %s
`, filepath.Join(dir, "work"), baseURL, filepath.Join(dir, "history.db"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func writeResume(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jane.docx")
	docxtest.Write(t, path, docxtest.Content{Body: []any{
		"Jane Doe",
		"jane@example.com",
		docxtest.ExperienceRows(3),
	}})
	return path
}

func TestExtractCommand_DocxToJSON(t *testing.T) {
	isolateEnv(t)
	ts, calls := newChatServer(t, "```json\n"+extractedProfile+"\n```")
	cfgPath := extractConfig(t, ts.URL)
	outPath := filepath.Join(t.TempDir(), "profile.json")

	_, _, err := execute(t, "extract", "--config", cfgPath, "--in", writeResume(t), "--out", outPath, "--quiet")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var p types.Profile
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, "Jane Doe", p.Name)
	assert.Len(t, p.ExperienceData, 3)

	entries, err := os.ReadDir(filepath.Join(filepath.Dir(cfgPath), "work"))
	require.NoError(t, err)
	assert.Empty(t, entries, "uploaded copy should be removed")
}

func TestExtractCommand_SaveRecordsHistory(t *testing.T) {
	isolateEnv(t)
	ts, _ := newChatServer(t, extractedProfile)
	cfgPath := extractConfig(t, ts.URL)

	out, status, err := execute(t, "extract", "--config", cfgPath, "--in", writeResume(t), "--save")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "Jane Doe"`)
	assert.Contains(t, status, "Extracted jane.docx using textual extraction")

	store, err := db.Open(context.Background(), "sqlite", filepath.Join(filepath.Dir(cfgPath), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	items, err := store.ListHistory(context.Background(), db.HistoryFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "jane.docx", items[0].Filename)
	assert.Equal(t, db.StatusCompleted, items[0].Status)
	assert.Equal(t, "textual", items[0].Method)
}

func TestExtractCommand_Failure(t *testing.T) {
	isolateEnv(t)
	ts, _ := newChatServer(t, "I could not read this resume.")
	cfgPath := extractConfig(t, ts.URL)

	_, _, err := execute(t, "extract", "--config", cfgPath, "--in", writeResume(t), "--quiet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extraction failed")
}

func TestExtractCommand_Validation(t *testing.T) {
	isolateEnv(t)
	ts, _ := newChatServer(t, extractedProfile)
	cfgPath := extractConfig(t, ts.URL)

	txt := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("hello"), 0o600))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing input", []string{"extract", "--config", cfgPath}, "required flag"},
		{"unreadable input", []string{"extract", "--config", cfgPath, "--in", "/does/not/exist.pdf"}, "failed to read input"},
		{"unsupported type", []string{"extract", "--config", cfgPath, "--in", txt}, "only PDF, DOC, or DOCX"},
		{"bad strategy", []string{"extract", "--config", cfgPath, "--in", writeResume(t), "--strategy", "ocr"}, "strategy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
