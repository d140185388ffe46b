package httpserver

import (
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"vanishbin/internal/clock"
	"vanishbin/internal/metrics"
	"vanishbin/internal/paste"
	"vanishbin/internal/security"
	"vanishbin/web"
)

// Config captures server configuration.
type Config struct {
	Service        *paste.Service
	Clock          clock.Clock
	TrustProxy     bool
	BaseURL        string
	OpaqueNotFound bool
	Logger         *slog.Logger
	Metrics        *metrics.Recorder
	Fingerprinter  *security.Fingerprinter
}

// Server wraps HTTP handling logic.
type Server struct {
	pastes         *paste.Service
	clock          clock.Clock
	router         chi.Router
	templates      *template.Template
	trustProxy     bool
	baseURL        *url.URL
	opaqueNotFound bool
	logger         *slog.Logger
	metrics        *metrics.Recorder
	fingerprints   *security.Fingerprinter
}

// New constructs a new Server instance.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("paste service required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	tmpl, err := template.New("layout").Funcs(template.FuncMap{
		"formatSize": formatSize,
	}).ParseFS(web.Templates, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	var parsedBase *url.URL
	if cfg.BaseURL != "" {
		parsedBase, err = url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url: %w", err)
		}
		if parsedBase.Scheme == "" || parsedBase.Host == "" {
			return nil, errors.New("base url must include scheme and host")
		}
		parsedBase.Path = strings.TrimSuffix(parsedBase.Path, "/")
	}

	srv := &Server{
		pastes:         cfg.Service,
		clock:          cfg.Clock,
		router:         chi.NewRouter(),
		templates:      tmpl,
		trustProxy:     cfg.TrustProxy,
		baseURL:        parsedBase,
		opaqueNotFound: cfg.OpaqueNotFound,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		fingerprints:   cfg.Fingerprinter,
	}
	srv.routes()
	return srv, nil
}

// Handler returns the underlying router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	if s.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(RequestLogger(s.logger, s.metrics, func(r *http.Request) string {
		return s.fingerprints.Fingerprint(ClientIP(r, s.trustProxy))
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "text/html", "text/css", "application/json"))

	fileServer := http.FileServer(http.FS(web.Static))
	r.Handle("/static/*", http.StripPrefix("/", fileServer))

	r.Get("/", s.handleIndex)
	r.Post("/pastes", s.handleFormCreate)
	r.Get("/expired", s.handleExpiredPage)

	r.Route("/p/{id}", func(pr chi.Router) {
		pr.Get("/", s.handleView)
		pr.Get("/raw", s.handleRaw)
		pr.Get("/qr", s.handleQR)
	})

	r.Route("/api", func(ar chi.Router) {
		ar.Get("/healthz", s.handleHealthz)
		ar.Post("/pastes", s.handleAPICreate)
		ar.Get("/pastes/{id}", s.handleAPIGet)
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
}

// now is the request's notion of the current time.
func (s *Server) now(r *http.Request) time.Time {
	return clock.FromRequest(r, s.clock).Now()
}

func (s *Server) isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if s.baseURL != nil && s.baseURL.Scheme == "https" {
		return true
	}
	if s.trustProxy {
		proto := strings.ToLower(r.Header.Get("X-Forwarded-Proto"))
		if proto == "https" {
			return true
		}
	}
	return false
}

func (s *Server) canonicalURL(r *http.Request, id string) string {
	if s.baseURL != nil {
		u := *s.baseURL
		if id != "" {
			u.Path = strings.TrimSuffix(u.Path, "/") + "/p/" + id
		}
		return u.String()
	}

	scheme := "http"
	if s.isSecureRequest(r) {
		scheme = "https"
	}
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	path := "/"
	if id != "" {
		path = "/p/" + id
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, path)
}

func formatSize(size int) string {
	if size < 1024 {
		return fmt.Sprintf("%d B", size)
	}
	const unit = 1024.0
	kb := float64(size)
	for _, suffix := range []string{"KB", "MB", "GB"} {
		kb /= unit
		if kb < unit {
			return fmt.Sprintf("%.1f %s", kb, suffix)
		}
	}
	return fmt.Sprintf("%d B", size)
}
