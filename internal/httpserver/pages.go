package httpserver

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"

	"vanishbin/internal/apperror"
	"vanishbin/internal/paste"
)

var ttlChoices = []ttlOption{
	{Value: "", Label: "No time limit"},
	{Value: "60", Label: "1 minute"},
	{Value: "600", Label: "10 minutes"},
	{Value: "3600", Label: "1 hour"},
	{Value: "86400", Label: "1 day"},
	{Value: "604800", Label: "7 days"},
}

const defaultTTL = "3600"

type ttlOption struct {
	Value string
	Label string
}

type option struct {
	Value    string
	Label    string
	Selected bool
}

type indexPageData struct {
	TTLOptions []option
	Content    string
	MaxViews   string
	Error      string
	MaxBytes   int
	Mode       string
}

type viewPageData struct {
	ID          string
	Content     string
	Views       int
	MaxViews    int
	HasDeadline bool
	ExpiresAtMs int64
	ExpiresIn   string
	Canonical   string
}

type errorPageData struct {
	Heading string
	Message string
}

type titled interface {
	PageTitle() string
}

func (d indexPageData) PageTitle() string {
	return "New Paste · vanishbin"
}

func (d viewPageData) PageTitle() string {
	return fmt.Sprintf("Paste - %s", d.ID)
}

func (d errorPageData) PageTitle() string {
	if d.Heading == "" {
		return "vanishbin"
	}
	return d.Heading
}

var (
	pageMissing   = errorPageData{Heading: "Paste Not Found", Message: "The paste doesn't exist, has expired, or exceeded its view limit."}
	pageExpired   = errorPageData{Heading: "Paste Expired", Message: "This paste has expired."}
	pageExhausted = errorPageData{Heading: "View Limit Exceeded", Message: "This paste has exceeded its view limit."}
	pageGone      = errorPageData{Heading: "Paste Expired", Message: "This paste has expired and is no longer available."}
	pageInternal  = errorPageData{Heading: "Internal Server Error", Message: "Something went wrong. Please try again."}
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "index", s.indexData(defaultTTL, "", "", ""))
}

func (s *Server) handleFormCreate(w http.ResponseWriter, r *http.Request) {
	maxBody := int64(s.pastes.MaxBytes())*3 + 4096
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseForm(); err != nil {
		s.render(w, http.StatusBadRequest, "index", s.indexData(defaultTTL, "", "", "Unable to parse form"))
		return
	}

	content := r.FormValue("content")
	ttl := r.FormValue("ttl_seconds")
	maxViews := r.FormValue("max_views")

	in := paste.CreateInput{
		Content:    content,
		TTLSeconds: formLimit(ttl),
		MaxViews:   formLimit(maxViews),
	}
	created, err := s.pastes.Create(r.Context(), in, s.now(r))
	if err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			_, msg := s.errorStatus(err)
			s.render(w, http.StatusBadRequest, "index", s.indexData(ttl, maxViews, content, msg))
			return
		}
		s.serverError(w, err)
		return
	}
	http.Redirect(w, r, "/p/"+created.ID, http.StatusSeeOther)
}

// formLimit parses an optional positive integer form field. Unparsable input
// becomes invalidLimit.
func formLimit(v string) *int {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		n = invalidLimit
	}
	return &n
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	now := s.now(r)
	view, err := s.pastes.Read(r.Context(), id, now)
	if err != nil {
		s.pageError(w, err)
		return
	}

	data := viewPageData{
		ID:        view.Paste.ID,
		Content:   view.Paste.Content,
		Views:     view.Paste.Views,
		MaxViews:  view.Paste.MaxViews,
		Canonical: s.canonicalURL(r, view.Paste.ID),
	}
	if !view.ExpiresAt.IsZero() {
		data.HasDeadline = true
		data.ExpiresAtMs = view.ExpiresAt.UnixMilli()
		data.ExpiresIn = remaining(view.ExpiresAt, now)
	}
	w.Header().Set("Cache-Control", "no-store")
	s.render(w, http.StatusOK, "view", data)
}

func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	view, err := s.pastes.Read(r.Context(), chi.URLParam(r, "id"), s.now(r))
	if err != nil {
		status, msg := s.errorStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("internal error", "error", err)
		}
		http.Error(w, msg, status)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = io.WriteString(w, view.Paste.Content)
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.pastes.Peek(r.Context(), id, s.now(r)); err != nil {
		s.pageError(w, err)
		return
	}

	png, err := qrcode.Encode(s.canonicalURL(r, id), qrcode.Medium, 256)
	if err != nil {
		s.serverError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (s *Server) handleExpiredPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "error", pageGone)
}

// pageError renders the HTML page for a failed read. Pages name the reason
// a paste is unavailable even when the JSON API does not.
func (s *Server) pageError(w http.ResponseWriter, err error) {
	reason, ok := apperror.ReasonOf(err)
	if !ok {
		s.serverError(w, err)
		return
	}
	page := pageMissing
	switch reason {
	case apperror.ReasonExpired:
		page = pageExpired
	case apperror.ReasonViewLimit:
		page = pageExhausted
	}
	s.render(w, http.StatusNotFound, "error", page)
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	title := "vanishbin"
	if t, ok := data.(titled); ok {
		if pt := t.PageTitle(); pt != "" {
			title = pt
		}
	}
	body := &bytes.Buffer{}
	bodyTemplate := name + "-body"
	if err := s.templates.ExecuteTemplate(body, bodyTemplate, data); err != nil {
		s.handleTemplateError(w, bodyTemplate, err)
		return
	}
	layoutBuf := &bytes.Buffer{}
	layoutData := struct {
		Title string
		Body  template.HTML
	}{
		Title: title,
		Body:  template.HTML(body.String()),
	}
	if err := s.templates.ExecuteTemplate(layoutBuf, "layout", layoutData); err != nil {
		s.handleTemplateError(w, "layout", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = layoutBuf.WriteTo(w)
}

func (s *Server) handleTemplateError(w http.ResponseWriter, name string, err error) {
	s.logger.Error("render template", "error", err, "template", name)
	http.Error(w, "Template error", http.StatusInternalServerError)
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.logger.Error("internal error", "error", err)
	s.render(w, http.StatusInternalServerError, "error", pageInternal)
}

func (s *Server) indexData(selectedTTL, maxViews, content, errMsg string) indexPageData {
	opts := make([]option, 0, len(ttlChoices))
	for _, c := range ttlChoices {
		opts = append(opts, option{
			Value:    c.Value,
			Label:    c.Label,
			Selected: c.Value == selectedTTL,
		})
	}
	return indexPageData{
		TTLOptions: opts,
		Content:    content,
		MaxViews:   maxViews,
		Error:      errMsg,
		MaxBytes:   s.pastes.MaxBytes(),
		Mode:       s.pastes.Mode(),
	}
}

// remaining renders the time left before expires in whole seconds, rounded
// up, matching the client-side countdown.
func remaining(expires time.Time, now time.Time) string {
	if now.After(expires) {
		return "Expired"
	}
	return fmt.Sprintf("%ds", int(math.Ceil(expires.Sub(now).Seconds())))
}
