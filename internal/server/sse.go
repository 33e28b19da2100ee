package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/resume-intake/internal/intake"
	"github.com/jonathan/resume-intake/internal/tasks"
)

// Progress stream event names
const (
	eventProgress = "progress"
	eventComplete = "complete"
	eventError    = "error"
)

var errStreamingUnsupported = errors.New("streaming not supported")

// progressStream writes task snapshots as Server-Sent Events. Each event
// carries a sequence id so clients can tell updates apart.
type progressStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	taskID  string
	seq     int
}

// terminalEvent is the payload of the final event of a stream
type terminalEvent struct {
	TaskID string `json:"task_id"`
	*intake.PollResponse
}

func newProgressStream(w http.ResponseWriter, taskID string) (*progressStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &progressStream{w: w, flusher: flusher, taskID: taskID}, nil
}

// Snapshot sends the event matching the task's status: progress while it
// runs, complete or error once it terminates.
func (s *progressStream) Snapshot(t tasks.Task) error {
	resp := intake.NewPollResponse(t)
	switch t.Status {
	case tasks.StatusCompleted:
		return s.send(eventComplete, terminalEvent{TaskID: s.taskID, PollResponse: resp})
	case tasks.StatusFailed:
		return s.send(eventError, terminalEvent{TaskID: s.taskID, PollResponse: resp})
	default:
		return s.send(eventProgress, resp)
	}
}

// Gone reports a task that disappeared while being watched
func (s *progressStream) Gone() error {
	return s.send(eventError, map[string]string{"task_id": s.taskID, "error": "task not found"})
}

// KeepAlive writes a comment line so idle proxies keep the connection open
func (s *progressStream) KeepAlive() error {
	if _, err := fmt.Fprint(s.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *progressStream) send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	s.seq++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.seq, event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
