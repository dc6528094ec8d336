package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/marcus/dealbook/internal/docstore"
	"github.com/marcus/dealbook/internal/serverdb"
)

// DocResponse is the body of GET /v1/docs/{key}.
type DocResponse struct {
	Doc       json.RawMessage `json:"doc"`
	Revision  int64           `json:"revision"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PutResponse is the body of a successful PUT /v1/docs/{key}.
type PutResponse struct {
	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WritesResponse is the body of GET /v1/docs/{key}/writes.
type WritesResponse struct {
	Writes []serverdb.WriteEntry `json:"writes"`
}

// etag formats a revision as a strong entity tag.
func etag(rev int64) string {
	return `"` + strconv.FormatInt(rev, 10) + `"`
}

// parseETag accepts `"12"`, `W/"12"` or a bare 12.
func parseETag(v string) (int64, bool) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "W/")
	v = strings.Trim(v, `"`)
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (s *Server) handleGetDoc(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !docstore.ValidKey(key) {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid document key")
		return
	}

	rec, err := s.store.GetDocument(r.Context(), key)
	if errors.Is(err, docstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "document not found")
		return
	}
	if err != nil {
		logFor(r.Context()).Error("get document", "key", key, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to read document")
		return
	}
	s.metrics.RecordRead()

	w.Header().Set("ETag", etag(rec.Revision))
	if inm := r.Header.Get("If-None-Match"); inm != "" {
		if rev, ok := parseETag(inm); ok && rev == rec.Revision {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	writeJSON(w, http.StatusOK, DocResponse{Doc: rec.Doc, Revision: rec.Revision, UpdatedAt: rec.UpdatedAt})
}

func (s *Server) handlePutDoc(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !docstore.ValidKey(key) {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid document key")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "document exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "failed to read body")
		return
	}
	if !isJSONObject(body) {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidDocument, "document must be a JSON object")
		return
	}

	var cond serverdb.Precondition
	if im := r.Header.Get("If-Match"); im != "" {
		rev, ok := parseETag(im)
		if !ok {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid If-Match header")
			return
		}
		cond.IfMatch = rev
	}
	if strings.TrimSpace(r.Header.Get("If-None-Match")) == "*" {
		cond.IfAbsent = true
	}

	rec, err := s.store.PutDocument(r.Context(), key, body, cond)
	if errors.Is(err, docstore.ErrPreconditionFailed) {
		s.metrics.RecordConflict()
		logFor(r.Context()).Info("write precondition failed", "key", key, "if_match", cond.IfMatch, "if_absent", cond.IfAbsent)
		writeError(w, http.StatusPreconditionFailed, ErrCodePreconditionFailed, "document changed since it was read")
		return
	}
	if err != nil {
		logFor(r.Context()).Error("put document", "key", key, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to write document")
		return
	}
	s.metrics.RecordWrite(len(body))

	w.Header().Set("ETag", etag(rec.Revision))
	writeJSON(w, http.StatusOK, PutResponse{Revision: rec.Revision, UpdatedAt: rec.UpdatedAt})
}

func (s *Server) handleListWrites(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	writes, err := s.store.RecentWrites(r.Context(), key, limit)
	if err != nil {
		logFor(r.Context()).Error("list writes", "key", key, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list writes")
		return
	}
	if writes == nil {
		writes = []serverdb.WriteEntry{}
	}
	writeJSON(w, http.StatusOK, WritesResponse{Writes: writes})
}

func isJSONObject(b []byte) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal(b, &obj) == nil && obj != nil
}
