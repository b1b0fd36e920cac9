package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"

	"github.com/tikgrab/tikgrab/pkg/tikgrab"
)

// Config carries the router-level settings.
type Config struct {
	// APIKey is required on every request except the health probes.
	APIKey string

	// RequestTimeout bounds a whole request, including the upstream
	// extraction and fetch on a cache miss. Zero means 120s.
	RequestTimeout time.Duration

	// Logger, when set, enables structured request logging.
	Logger *httplog.Logger
}

// NewRouter builds the HTTP API. Health probes stay open; the download and
// video record endpoints sit behind the API key.
func NewRouter(service tikgrab.Service, cfg Config) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if cfg.Logger != nil {
		r.Use(httplog.RequestLogger(cfg.Logger, []string{"/healthz", "/healthz/ready"}))
	}
	r.Use(middleware.Recoverer)

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	r.Use(middleware.Timeout(timeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.PlainText(w, r, http.StatusText(http.StatusOK))
	})
	r.Get("/healthz/ready", func(w http.ResponseWriter, r *http.Request) {
		render.PlainText(w, r, http.StatusText(http.StatusOK))
	})

	downloadsHandler := NewDownloadsHandler(service)
	videosHandler := NewVideosHandler(service)

	r.Group(func(r chi.Router) {
		r.Use(APIKeyAuth(cfg.APIKey))
		r.Mount("/download", downloadsHandler.Routes())
		r.Mount("/videos", videosHandler.Routes())
	})

	return r
}
