package httpadapter

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
	"github.com/kirillkom/grading-assistant/internal/core/ports"
)

type sessionResponse struct {
	ID        string          `json:"id"`
	CreatedAt string          `json:"created_at"`
	Settings  domain.Settings `json:"settings"`
	Exams     []string        `json:"exams"`
	Graded    []string        `json:"graded"`
}

func describeSession(s *domain.Session) sessionResponse {
	s.Lock()
	defer s.Unlock()
	return sessionResponse{
		ID:        s.ID,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
		Settings:  s.Settings(),
		Exams:     s.ExamNames(),
		Graded:    s.GradedNames(),
	}
}

func (rt *Router) listAttachments(w http.ResponseWriter, r *http.Request) {
	files, err := rt.pipeline.Attachments(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (rt *Router) splitCandidates(w http.ResponseWriter, r *http.Request) {
	names, err := rt.pipeline.SplitCandidates(r.Context(), batchParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": names})
}

func (rt *Router) batchJournal(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, r, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	items, err := rt.journal.History(r.Context(), batchParam(r), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// batchParam decodes the batch path segment. chi matches on the raw path when the
// name carries escaped slashes.
func batchParam(r *http.Request) string {
	raw := chi.URLParam(r, "batch")
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}

func (rt *Router) openSession(w http.ResponseWriter, _ *http.Request) {
	s := rt.sessions.Open(rt.settings.Current())
	writeJSON(w, http.StatusCreated, describeSession(s))
}

func (rt *Router) session(w http.ResponseWriter, r *http.Request) (*domain.Session, bool) {
	s, err := rt.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return s, true
}

func (rt *Router) closeSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := rt.session(w, r); !ok {
		return
	}
	rt.sessions.Close(chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) sessionExams(w http.ResponseWriter, r *http.Request) {
	s, ok := rt.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, describeSession(s))
}

// sessionSettings replaces the settings snapshot of a live session.
func (rt *Router) sessionSettings(w http.ResponseWriter, r *http.Request) {
	s, ok := rt.session(w, r)
	if !ok {
		return
	}
	var settings domain.Settings
	if err := decodeJSON(r, &settings); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	if err := settings.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	s.Lock()
	s.SetSettings(settings)
	s.Unlock()
	writeJSON(w, http.StatusOK, describeSession(s))
}

func (rt *Router) normalize(w http.ResponseWriter, r *http.Request) {
	s, ok := rt.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Batch string          `json:"batch"`
		Files []ports.RawFile `json:"files"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	report, err := rt.pipeline.Normalize(r.Context(), s, ports.NormalizeRequest{Batch: req.Batch, Files: req.Files})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) split(w http.ResponseWriter, r *http.Request) {
	s, ok := rt.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Batch string   `json:"batch"`
		Files []string `json:"files"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	report, err := rt.pipeline.Split(r.Context(), s, ports.SplitRequest{Batch: req.Batch, Files: req.Files})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// examSelection names exams by session key or markdown name. Batch, when set,
// restricts bare names to that batch.
type examSelection struct {
	Batch string   `json:"batch"`
	Exams []string `json:"exams"`
}

func (rt *Router) grade(w http.ResponseWriter, r *http.Request) {
	s, ok := rt.session(w, r)
	if !ok {
		return
	}
	var req examSelection
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	report, err := rt.pipeline.Grade(r.Context(), s, ports.GradeRequest{Batch: req.Batch, Exams: req.Exams})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) deliver(w http.ResponseWriter, r *http.Request) {
	s, ok := rt.session(w, r)
	if !ok {
		return
	}
	var req examSelection
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	report, err := rt.pipeline.Deliver(r.Context(), s, ports.DeliverRequest{Batch: req.Batch, Exams: req.Exams})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
