package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/fosrc/pkg/agent"
	"github.com/kadirpekel/fosrc/pkg/conversation"
	"github.com/kadirpekel/fosrc/pkg/ingest"
	"github.com/kadirpekel/fosrc/pkg/model"
	"github.com/kadirpekel/fosrc/pkg/ratelimit"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

type questionRequest struct {
	Question string `json:"question"`
}

// AnswerResponse carries the model's markdown and its sanitized HTML form.
type AnswerResponse struct {
	SessionID  string      `json:"session_id,omitempty"`
	Answer     string      `json:"answer"`
	HTML       string      `json:"html"`
	Iterations int         `json:"iterations,omitempty"`
	Exhausted  bool        `json:"exhausted,omitempty"`
	Compacted  bool        `json:"compacted,omitempty"`
	Usage      model.Usage `json:"usage"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.App().Metrics.Handler().ServeHTTP(w, r)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, conversation.ErrEmptyQuestion)
		return
	}

	turn, err := s.App().Answer(r.Context(), req.Question)
	s.charge(r, turn)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.answer(turn.Answer, turn))
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.App().Sessions.Create()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.App().Sessions.List()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.App().Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.App().Sessions.Delete(chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.App().Sessions.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSessionMessage(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reply, err := s.App().Sessions.Ask(r.Context(), chi.URLParam(r, "id"), req.Question)
	if reply != nil {
		s.charge(r, reply.Turn)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := s.answer(reply.Answer, reply.Turn)
	resp.SessionID = reply.SessionID
	resp.Compacted = reply.Compacted
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	s.withUpload(w, r, func(path string) {
		language := formValue(r, "language", ingest.LanguageEnglish)
		summary, err := s.App().Ingest.Summarize(r.Context(), path, language)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"language": language,
			"summary":  summary,
			"html":     s.render.HTML(summary),
		})
	})
}

func (s *Server) handleCite(w http.ResponseWriter, r *http.Request) {
	s.withUpload(w, r, func(path string) {
		style := formValue(r, "style", ingest.StyleAPA)
		citation, err := s.App().Ingest.Cite(r.Context(), path, style)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"style": style, "citation": citation})
	})
}

func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	s.withUpload(w, r, func(path string) {
		res, err := s.App().Ingest.Ingest(r.Context(), path, r.FormValue("citation"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	})
}

// charge bills the caller for the tokens a turn consumed, including
// failed turns.
func (s *Server) charge(r *http.Request, turn *agent.Turn) {
	if s.limiter == nil || turn == nil {
		return
	}
	s.limiter.RecordTokens(ratelimit.ClientIdentity(r), turn.Usage.TotalTokens)
}

func (s *Server) answer(text string, turn *agent.Turn) AnswerResponse {
	resp := AnswerResponse{Answer: text, HTML: s.render.HTML(text)}
	if turn != nil {
		resp.Iterations = turn.Iteration
		resp.Exhausted = turn.Exhausted != nil
		resp.Usage = turn.Usage
	}
	return resp
}

// withUpload stores the multipart "file" field under its own base name in a
// temporary directory and calls fn with the path. The directory is removed
// afterwards.
func (s *Server) withUpload(w http.ResponseWriter, r *http.Request, fn func(path string)) {
	if r.ContentLength > s.cfg.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", s.cfg.MaxUploadBytes))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(min(s.cfg.MaxUploadBytes, 32<<20)); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing file field: %w", err))
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	ext := strings.ToLower(filepath.Ext(name))
	if !slices.Contains(ingest.SupportedExtensions(), ext) {
		writeError(w, http.StatusUnsupportedMediaType, fmt.Errorf("%w: %q", ingest.ErrUnsupportedFormat, ext))
		return
	}

	dir, err := os.MkdirTemp("", "fosrc-upload-*")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, name)
	if err := writeFile(path, file); err != nil {
		s.fail(w, r, err)
		return
	}
	fn(path)
}

func writeFile(path string, src io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formValue(r *http.Request, key, fallback string) string {
	if v := strings.TrimSpace(r.FormValue(key)); v != "" {
		return v
	}
	return fallback
}

// fail maps domain errors to status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, conversation.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, conversation.ErrEmptyQuestion),
		errors.Is(err, ingest.ErrUnsupportedLanguage),
		errors.Is(err, ingest.ErrUnsupportedStyle):
		status = http.StatusBadRequest
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, ingest.ErrNoText):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, conversation.ErrTooManySessions):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= 500 {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
