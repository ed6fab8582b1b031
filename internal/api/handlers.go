package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/MikeSquared-Agency/glossa/internal/extractor"
	"github.com/MikeSquared-Agency/glossa/internal/processor"
	"github.com/MikeSquared-Agency/glossa/internal/store"
)

type analysisRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
	User string `json:"user" validate:"max=64"`
}

type selectionRequest struct {
	Action string `json:"action" validate:"required,oneof=select_all unselect_all select deselect clear"`
	Key    string `json:"key" validate:"required_if=Action select,required_if=Action deselect"`
}

type analysisResponse struct {
	Entry   *store.Entry           `json:"entry,omitempty"`
	Error   *extractor.IngestError `json:"error,omitempty"`
	Saved   bool                   `json:"saved"`
	Notices []processor.Notice     `json:"notices"`
}

type historyResponse struct {
	Entries     []store.Entry      `json:"entries"`
	Total       int                `json:"total"`
	Languages   []string           `json:"languages"`
	Selected    []string           `json:"selected"`
	AllSelected bool               `json:"all_selected"`
	ReadOnly    bool               `json:"read_only"`
	Notices     []processor.Notice `json:"notices"`
}

type deleteResponse struct {
	Requested int                `json:"requested"`
	Deleted   int                `json:"deleted"`
	Missing   []string           `json:"missing,omitempty"`
	Message   string             `json:"message"`
	Notices   []processor.Notice `json:"notices"`
}

// withSession runs fn holding the caller's session; a new session loads
// the history first.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request, fn func(st *processor.State)) {
	sess := s.sessions.acquire(w, r)
	defer s.sessions.release(sess)
	if sess.fresh {
		sess.state = s.proc.Refresh(r.Context(), sess.state)
		sess.fresh = false
	}
	fn(sess.state)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %s", strings.ToLower(verrs[0].Field()), verrs[0].Tag()))
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// createAnalysis handles POST /api/v1/analyses
func (s *Server) createAnalysis(w http.ResponseWriter, r *http.Request) {
	var req analysisRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "invalid text: required")
		return
	}

	s.withSession(w, r, func(st *processor.State) {
		st = s.proc.Submit(r.Context(), st, extractor.Request{Text: req.Text, User: req.User})
		resp := analysisResponse{Entry: st.Last, Notices: st.TakeNotices()}

		if st.Last == nil {
			ie := extractor.AsIngestError(st.LastErr)
			resp.Error = ie
			if ie == nil {
				resp.Error = &extractor.IngestError{Detail: st.LastErr.Error()}
			}
			writeJSON(w, analysisStatus(st.LastErr), resp)
			return
		}

		resp.Saved = st.LastErr == nil && !st.ReadOnly
		writeJSON(w, http.StatusCreated, resp)
	})
}

func analysisStatus(err error) int {
	ie := extractor.AsIngestError(err)
	if ie == nil {
		return http.StatusBadGateway
	}
	switch ie.Kind {
	case extractor.KindInvalidInput:
		return http.StatusBadRequest
	case extractor.KindMalformedOutput, extractor.KindIncompleteSchema:
		return http.StatusUnprocessableEntity
	case extractor.KindTimeout:
		return http.StatusGatewayTimeout
	case extractor.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// listHistory handles GET /api/v1/history?q=&lang=
func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.withSession(w, r, func(st *processor.State) {
		st = s.proc.Refresh(r.Context(), st)
		st = s.proc.Search(st, q.Get("q"))
		if q.Has("lang") && q.Get("lang") != "" {
			lang := q.Get("lang")
			st = s.proc.FilterLanguage(st, &lang)
		} else {
			st = s.proc.FilterLanguage(st, nil)
		}
		writeJSON(w, http.StatusOK, s.history(st))
	})
}

func (s *Server) history(st *processor.State) historyResponse {
	view := st.View()
	if view == nil {
		view = []store.Entry{}
	}
	return historyResponse{
		Entries:     view,
		Total:       len(st.Snapshot),
		Languages:   nonNil(st.Languages()),
		Selected:    st.Selection.Keys(),
		AllSelected: st.Selection.All(),
		ReadOnly:    st.ReadOnly,
		Notices:     st.TakeNotices(),
	}
}

// deleteEntry handles DELETE /api/v1/history/{timestamp}
func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "timestamp"))
	if err != nil || key == "" {
		writeError(w, http.StatusBadRequest, "invalid timestamp")
		return
	}
	s.withSession(w, r, func(st *processor.State) {
		st = s.proc.DeleteOne(r.Context(), st, key)
		s.writeDelete(w, st)
	})
}

// updateSelection handles POST /api/v1/history/selection
func (s *Server) updateSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.withSession(w, r, func(st *processor.State) {
		switch req.Action {
		case "select_all":
			st = s.proc.SelectAll(st, true)
		case "unselect_all":
			st = s.proc.SelectAll(st, false)
		case "select":
			st = s.proc.Select(st, req.Key, true)
		case "deselect":
			st = s.proc.Select(st, req.Key, false)
		case "clear":
			st.Selection.Clear()
		}
		writeJSON(w, http.StatusOK, s.history(st))
	})
}

// deleteSelected handles POST /api/v1/history/delete-selected
func (s *Server) deleteSelected(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(st *processor.State) {
		st = s.proc.DeleteSelected(r.Context(), st)
		s.writeDelete(w, st)
	})
}

func (s *Server) writeDelete(w http.ResponseWriter, st *processor.State) {
	resp := deleteResponse{Notices: st.TakeNotices()}
	if st.LastDelete != nil {
		resp.Requested = st.LastDelete.Requested
		resp.Deleted = st.LastDelete.Deleted
		resp.Missing = st.LastDelete.Missing
		resp.Message = st.LastDelete.String()
	}

	status := http.StatusOK
	switch {
	case st.LastErr != nil:
		status = http.StatusBadGateway
	case st.LastDelete == nil && st.ReadOnly:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// exportHistory handles GET /api/v1/history/export
func (s *Server) exportHistory(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(st *processor.State) {
		st = s.proc.Refresh(r.Context(), st)

		var buf bytes.Buffer
		name, err := s.proc.Export(st, &buf)
		if err != nil {
			s.logger.Error("export failed", "error", err)
			writeError(w, http.StatusInternalServerError, "export failed")
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	})
}

// speak handles GET /api/v1/speech?text=&lang=
func (s *Server) speak(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusBadRequest, "invalid text: required")
		return
	}
	audio, err := s.proc.Speak(r.Context(), text, r.URL.Query().Get("lang"))
	if err != nil {
		s.logger.Warn("speech failed", "error", err)
		writeError(w, http.StatusBadGateway, "speech synthesis failed")
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
