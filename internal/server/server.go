// Package server exposes a scoring session over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/Ayoubbar/geomapscore/internal/config"
	"github.com/Ayoubbar/geomapscore/internal/renderer"
	"github.com/Ayoubbar/geomapscore/internal/session"
	"github.com/Ayoubbar/geomapscore/internal/store"
)

// Server serves one session. Runs may be nil when history is disabled.
type Server struct {
	sess      *session.Session
	runs      *store.RunStore
	font      renderer.FontRenderer
	maxUpload int64
	maxPixels int
	origins   []string
}

// New returns a Server over sess.
func New(sess *session.Session, runs *store.RunStore, cfg config.Config) *Server {
	return &Server{
		sess:      sess,
		runs:      runs,
		font:      renderer.NewFaceFont(),
		maxUpload: cfg.MaxUploadBytes(),
		maxPixels: cfg.MaxPixels,
		origins:   cfg.CORSOrigins,
	}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.health)

	r.Post("/legend", s.calibrate)
	r.Get("/legend", s.getLegend)
	r.Get("/legend.png", s.legendImage)

	r.Post("/score", s.score)
	r.Get("/score/image.png", s.resultImage)
	r.Get("/score/heat.png", s.heatImage)
	r.Get("/score/map.csv", s.scoreCSV)

	r.Get("/probe", s.probe)
	r.Get("/runs", s.listRuns)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg config.Config) error {
	var runs *store.RunStore
	if cfg.DBDriver != "" && cfg.DBDriver != "none" {
		dbh, err := store.Open(ctx, store.Driver(cfg.DBDriver), cfg.DBDSN)
		if err != nil {
			return fmt.Errorf("opening run history: %w", err)
		}
		defer dbh.Close()
		runs = store.NewRunStore(dbh)
		log.Info().Str("driver", cfg.DBDriver).Msg("run history enabled")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           New(session.New(), runs, cfg).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func parseLimit(v string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 && n <= 1000 {
		return n
	}
	return def
}
