// Package api exposes data box operations over HTTP for the web backend.
//
// Every route under /boxes/{box} resolves the named data box, builds the
// provider store for it and runs one filestore.Store operation. Errors are
// written as JSON with a status derived from the error kind.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/cloudbox/internal/boxstore"
	"github.com/koustreak/cloudbox/internal/config"
	"github.com/koustreak/cloudbox/internal/filestore"
	"github.com/koustreak/cloudbox/internal/logger"
	"github.com/koustreak/cloudbox/internal/metrics"
)

// DefaultMaxUploadBytes caps request bodies on PUT /files when Options
// leaves it unset.
const DefaultMaxUploadBytes = 256 << 20

// Opener builds the store for a named data box.
type Opener func(ctx context.Context, name string) (filestore.Store, error)

// Options configures a Server.
type Options struct {
	Boxes boxstore.Store
	Env   filestore.Env

	// Open overrides how stores are built. Defaults to boxstore.Open over
	// Boxes and Env.
	Open Opener

	MaxUploadBytes int64
	Log            *logger.Logger
}

// Server holds the API handlers.
type Server struct {
	boxes     boxstore.Store
	open      Opener
	maxUpload int64
	log       *logger.Logger
}

// New creates a Server.
func New(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logger.L()
	}
	s := &Server{
		boxes:     opts.Boxes,
		open:      opts.Open,
		maxUpload: opts.MaxUploadBytes,
		log:       log,
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUploadBytes
	}
	if s.open == nil {
		env := opts.Env
		if env.Log == nil {
			env.Log = log
		}
		env = env.Defaults()
		s.open = func(ctx context.Context, name string) (filestore.Store, error) {
			st, _, err := boxstore.Open(ctx, s.boxes, name, env)
			return st, err
		}
	}
	return s
}

// Router returns the chi router serving every route.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/boxes", func(r chi.Router) {
		r.Get("/", s.handleListBoxes)
		r.Route("/{box}", func(r chi.Router) {
			r.Get("/test", s.handleTest)
			r.Get("/contents", s.handleContents)
			r.Put("/files/*", s.handleUpload)
			r.Get("/files/*", s.handleDownload)
			r.Get("/signed-url", s.handleSignedURL)
			r.Get("/buckets", s.handleListBuckets)
			r.Post("/buckets", s.handleCreateBucket)
		})
	})
	return r
}

// HTTPServer wraps Router in an *http.Server configured from cfg.
func (s *Server) HTTPServer(cfg config.ServerConfig) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Router(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
}

// logRequests traces each request with its status and duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.DebugWith("http request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
	})
}
