// Package server exposes the repository over HTTP: listing, thumbnails,
// file serving, health and metrics.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crs4/moodle.omero-repository/internal/api"
	"github.com/crs4/moodle.omero-repository/internal/browse"
	"github.com/crs4/moodle.omero-repository/internal/cache"
	"github.com/crs4/moodle.omero-repository/internal/config"
	"github.com/crs4/moodle.omero-repository/internal/logging"
	"github.com/crs4/moodle.omero-repository/internal/refs"
)

const sessionCookieName = "omero_repo_session"

type sessionKeyType struct{}

var sessionKey sessionKeyType

// Server wires the browse resolver, the reference cache, and the reference
// store behind a chi router.
type Server struct {
	cfg      *config.Config
	resolver *browse.Resolver
	cache    *cache.ReferenceCache
	client   *api.Client
	refs     *refs.Store
	logger   *logging.Logger
}

func New(cfg *config.Config, resolver *browse.Resolver, rc *cache.ReferenceCache, client *api.Client, store *refs.Store, logger *logging.Logger) *Server {
	return &Server{
		cfg:      cfg,
		resolver: resolver,
		cache:    rc,
		client:   client,
		refs:     store,
		logger:   logger.Component("server"),
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/repository", func(r chi.Router) {
		r.Use(s.withSession)
		r.Get("/list", s.handleList)
		r.Get("/thumbnail", s.handleThumbnail)
		r.Get("/file/{refID}", s.handleFile)
	})
	return r
}

// ListenAndServe runs until ctx is cancelled, then drains with a short
// shutdown grace period.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", srv.Addr).Msg("http server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// withSession guarantees a session id cookie so the resolver can keep
// per-visitor breadcrumb state.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
			id = c.Value
		} else {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookieName,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, id)))
	})
}

func sessionID(r *http.Request) string {
	if id, ok := r.Context().Value(sessionKey).(string); ok {
		return id
	}
	return ""
}
