package web

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/lvcoi/ytdl-web/internal/apperr"
	"github.com/lvcoi/ytdl-web/internal/formats"
	"github.com/lvcoi/ytdl-web/internal/jobs"
)

type formatsRequest struct {
	URL string `json:"url"`
}

type formatsResponse struct {
	Formats []formats.Descriptor `json:"formats"`
}

type downloadRequest struct {
	URL    string `json:"url"`
	Format string `json:"format"`
}

type downloadResponse struct {
	DownloadID string `json:"download_id"`
}

// progressResponse keeps "error" present as null while the job is healthy.
type progressResponse struct {
	Progress float64 `json:"progress"`
	Status   string  `json:"status"`
	Error    *string `json:"error"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) *requestError {
	ct := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || mediaType != "application/json" {
		return &requestError{http.StatusUnsupportedMediaType, "content type must be application/json"}
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return &requestError{http.StatusRequestEntityTooLarge, "request body too large"}
		}
		return &requestError{http.StatusBadRequest, "invalid JSON payload"}
	}
	if err := dec.Decode(new(struct{})); err != io.EOF {
		return &requestError{http.StatusBadRequest, "invalid JSON payload"}
	}
	return nil
}

func (s *Server) handleGetFormats(w http.ResponseWriter, r *http.Request) {
	var req formatsRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err.status, err.message)
		return
	}
	list, err := s.formats.List(r.Context(), req.URL)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, formatsResponse{Formats: list})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err.status, err.message)
		return
	}
	id, err := s.jobs.Submit(req.URL, req.Format)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, downloadResponse{DownloadID: id})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	rec, err := s.jobs.Query(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) && !s.strictNotFound {
			writeJSON(w, http.StatusOK, errorResponse{Error: err.Error()})
			return
		}
		s.writeAppError(w, err)
		return
	}
	resp := progressResponse{Progress: rec.Progress, Status: string(rec.Status)}
	if rec.Error != "" {
		msg := rec.Error
		resp.Error = &msg
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active_downloads": s.jobs.ActiveCount(),
		"tracked_jobs":     s.jobs.TrackedCount(),
		"uptime":           time.Since(s.startedAt).Truncate(time.Second).String(),
	})
}

// writeAppError maps categorized errors to their status; anything else is an
// internal error whose detail stays in the log.
func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	switch apperr.CategoryOf(err) {
	case apperr.CategoryInternal:
		s.log.WithError(err).Error("request failed")
		writeJSONError(w, status, "internal server error")
		return
	case apperr.CategoryValidation, apperr.CategoryNotFound:
		s.log.WithError(err).Debug("request rejected")
	default:
		s.log.WithError(err).Info("request failed")
	}
	writeJSONError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
