// Package server exposes the enrichment pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Tutortoise/face-enrichment-service/logging"
	"github.com/Tutortoise/face-enrichment-service/models"
	"github.com/Tutortoise/face-enrichment-service/pipeline"
)

const (
	maxUploadBytes  = 10 << 20
	shutdownTimeout = 10 * time.Second
)

// Pool is the subset of pipeline.Pool the handlers use.
type Pool interface {
	Acquire(ctx context.Context) (*pipeline.Pipeline, error)
	Release(p *pipeline.Pipeline)
	Metrics() pipeline.PoolMetrics
	LastErrors() []error
}

// Recorder persists the results of a request. store.Store implements it.
type Recorder interface {
	SaveResults(ctx context.Context, requestID, source string, faces []models.EnrichedFace) error
}

// Options tunes request handling.
type Options struct {
	// Threshold is the detection confidence used when a request does not set one.
	Threshold float64
	// CropPadding is the padding of the square crops returned with crops=true.
	CropPadding float64
	// Debug logs per-request stage timings.
	Debug bool
	// Recorder, when set, stores every successful detection.
	Recorder Recorder
	Logger   *slog.Logger
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	pool   Pool
	opts   Options
	log    *slog.Logger
	router *mux.Router
}

func New(pool Pool, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.L()
	}
	s := &Server{
		pool: pool,
		opts: opts,
		log:  opts.Logger.With("component", "server"),
	}

	r := mux.NewRouter()
	r.HandleFunc("/detect", s.handleDetect).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.addMonitoringRoutes(r)
	s.router = r

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Handler:      s.router,
		Addr:         addr,
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.log.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}
