package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jonathan/resume-intake/internal/intake"
	"github.com/jonathan/resume-intake/internal/server/middleware"
)

// multipartOverhead is the room left for form fields and part headers
const multipartOverhead = 1 << 20

// keepAliveInterval spaces comment lines on idle progress streams
const keepAliveInterval = 15 * time.Second

// handleUpload accepts a multipart upload and schedules it
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.fail(w, r, err)
			return
		}
		s.errorResponse(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp, err := s.service.Submit(r.Context(), intake.SubmitRequest{
		Filename: header.Filename,
		MIMEType: header.Header.Get("Content-Type"),
		Data:     data,
		Strategy: r.FormValue("strategy"),
		OwnerID:  middleware.Owner(r),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, resp)
}

// handleProgress returns the current state of a task
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.Poll(r.PathValue("task_id"), middleware.Owner(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleProgressStream pushes every task update as a server-sent event until
// the task terminates or the client goes away
func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("task_id")
	updates, cancel, err := s.service.Watch(id, middleware.Owner(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer cancel()

	stream, err := newProgressStream(w, id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := stream.KeepAlive(); err != nil {
				return
			}
		case snap, ok := <-updates:
			if !ok {
				// evicted while streaming
				_ = stream.Gone()
				return
			}
			if err := stream.Snapshot(snap); err != nil || snap.Status.Terminal() {
				return
			}
		}
	}
}

// handleListHistory returns history summaries
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid offset")
		return
	}

	items, err := s.service.ListHistory(r.Context(), limit, offset, middleware.Owner(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, items)
}

// handleGetHistory returns one full history record
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.GetHistory(r.Context(), r.PathValue("id"), middleware.Owner(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, rec)
}

// handleDeleteHistory removes one history record
func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteHistory(r.Context(), r.PathValue("id"), middleware.Owner(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"message": "deleted"})
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
