package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"vanishbin/internal/apperror"
	"vanishbin/internal/paste"
)

const (
	healthTimeout = 3 * time.Second
	isoMillis     = "2006-01-02T15:04:05.000Z07:00"
)

type createRequest struct {
	Content    json.RawMessage `json:"content"`
	TTLSeconds json.RawMessage `json:"ttl_seconds"`
	MaxViews   json.RawMessage `json:"max_views"`
}

type createResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type pasteResponse struct {
	Content        string  `json:"content"`
	RemainingViews *int    `json:"remaining_views"`
	ExpiresAt      *string `json:"expires_at"`
}

type healthResponse struct {
	OK bool `json:"ok"`
}

func (s *Server) handleAPICreate(w http.ResponseWriter, r *http.Request) {
	// JSON escaping can expand content up to six times.
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.pastes.MaxBytes())*6+4096)

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, apperror.ValidationFailed("content", fmt.Sprintf("Content exceeds the %d byte limit", s.pastes.MaxBytes())))
			return
		}
		s.writeError(w, r, apperror.ValidationFailed("", "Request body must be a JSON object"))
		return
	}

	in := paste.CreateInput{
		Content:    decodeContent(req.Content),
		TTLSeconds: decodeLimit(req.TTLSeconds),
		MaxViews:   decodeLimit(req.MaxViews),
	}
	created, err := s.pastes.Create(r.Context(), in, s.now(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, createResponse{
		ID:  created.ID,
		URL: s.canonicalURL(r, created.ID),
	})
}

func (s *Server) handleAPIGet(w http.ResponseWriter, r *http.Request) {
	view, err := s.pastes.Read(r.Context(), chi.URLParam(r, "id"), s.now(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := pasteResponse{
		Content:        view.Paste.Content,
		RemainingViews: view.RemainingViews,
	}
	if !view.ExpiresAt.IsZero() {
		formatted := view.ExpiresAt.UTC().Format(isoMillis)
		resp.ExpiresAt = &formatted
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := s.pastes.Healthy(ctx); err != nil {
		s.writeJSON(w, http.StatusInternalServerError, healthResponse{OK: false})
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{OK: true})
}

// decodeContent returns the JSON string value of raw, or "" for anything
// that is not a string.
func decodeContent(raw json.RawMessage) string {
	var content string
	if len(raw) == 0 || json.Unmarshal(raw, &content) != nil {
		return ""
	}
	return content
}

// invalidLimit stands in for values that are present but not integers, so
// the service reports them against the right field.
const invalidLimit = -1

// decodeLimit maps a JSON limit to nil (absent or null), its integral value,
// or invalidLimit. Integral floats such as 10.0 are accepted.
func decodeLimit(raw json.RawMessage) *int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	n := invalidLimit
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil && f == math.Trunc(f) && math.Abs(f) <= math.MaxInt32 {
		n = int(f)
	}
	return &n
}
