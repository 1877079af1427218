// Package server hosts build artifacts for local development along with
// the status of the last build and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/starfederation/datastar-go/datastar"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/multibuild/internal/logfields"
	"github.com/leapstack-labs/multibuild/internal/orchestrator"
	"github.com/leapstack-labs/multibuild/internal/server/notifier"
)

// Config holds configuration for the dev server.
type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:8080".
	Addr string
	// OutDir is the artifact directory served at /.
	OutDir string
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// Server is the dev server.
type Server struct {
	addr     string
	outDir   string
	metrics  http.Handler
	logger   *slog.Logger
	notifier *notifier.Notifier

	mu     sync.RWMutex
	status *orchestrator.Summary
}

// New creates a server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		addr:     cfg.Addr,
		outDir:   cfg.OutDir,
		metrics:  cfg.Metrics,
		logger:   logger,
		notifier: notifier.New(),
	}
}

// SetReport publishes rep as the current status and notifies listeners.
func (s *Server) SetReport(rep *orchestrator.Report) {
	summary := rep.Summary()
	s.mu.Lock()
	s.status = &summary
	s.mu.Unlock()
	s.notifier.Broadcast(rep.RunID)
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		s.requestLogger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Get("/status", s.handleStatus)
	r.Get("/events", s.handleEvents)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Handle("/*", http.FileServer(http.Dir(s.outDir)))
	return r
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting dev server", "addr", "http://"+ln.Addr().String(), logfields.Path(s.outDir))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down dev server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if status == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "no build has completed yet"})
		return
	}
	_ = json.NewEncoder(w).Encode(status)
}

// EventBuild is the SSE event type sent after every build. Its data line
// is the run id.
const EventBuild datastar.EventType = "build"

// handleEvents streams an EventBuild event after every build.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	ch := s.notifier.Subscribe()
	defer s.notifier.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case runID := <-ch:
			if err := sse.Send(EventBuild, []string{runID}); err != nil {
				s.logger.Debug("event stream closed", logfields.Error(err))
				return
			}
		}
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			logfields.Path(r.URL.Path),
			"status", ww.Status(),
			logfields.Duration(time.Since(start)),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
