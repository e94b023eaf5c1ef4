package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/vango-go/livenotes/pkg/config"
	"github.com/vango-go/livenotes/pkg/gateway/handlers"
	"github.com/vango-go/livenotes/pkg/gateway/lifecycle"
	"github.com/vango-go/livenotes/pkg/gateway/mw"
	"github.com/vango-go/livenotes/pkg/metrics"
)

// Deps are the application services the bridge exposes.
type Deps struct {
	Orchestrator handlers.Orchestrator
	// OrchestratorDone is closed when the orchestrator stops; optional.
	OrchestratorDone <-chan struct{}
	History          handlers.HistoryStore
	Settings         handlers.SettingsStore
	Metrics          *metrics.Metrics
}

type Server struct {
	cfg       config.Config
	logger    *slog.Logger
	mux       *http.ServeMux
	deps      Deps
	lifecycle *lifecycle.Lifecycle
}

func New(cfg config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		deps:      deps,
		lifecycle: &lifecycle.Lifecycle{},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Lifecycle: s.lifecycle, OrchestratorDone: s.deps.OrchestratorDone})
	if s.deps.Metrics != nil {
		s.mux.Handle("/metrics", s.deps.Metrics.Handler())
	}

	s.mux.Handle("/v1/live", handlers.LiveHandler{
		Orchestrator: s.deps.Orchestrator,
		Config: handlers.LiveConfig{
			PingInterval:   s.cfg.LiveWSPingInterval,
			WriteTimeout:   s.cfg.LiveWSWriteTimeout,
			AllowedOrigins: s.cfg.CORSAllowedOrigins,
		},
		Logger:    s.logger,
		Lifecycle: s.lifecycle,
	})
	s.mux.Handle("/v1/session", handlers.SessionHandler{Orchestrator: s.deps.Orchestrator})
	s.mux.Handle("/v1/history", handlers.HistoryListHandler{Store: s.deps.History})
	s.mux.Handle("/v1/history/{id}", handlers.HistoryItemHandler{Store: s.deps.History})
	s.mux.Handle("/v1/settings", handlers.SettingsHandler{Store: s.deps.Settings})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg.CORSAllowedOrigins, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// ListenAndServe serves until ctx is cancelled, then drains: readiness turns
// false, open live connections get ShutdownGracePeriod to close, and the
// listener is shut down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("bridge listening", "addr", ln.Addr().String())
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.lifecycle.SetDraining(true)
	grace := s.cfg.ShutdownGracePeriod
	if grace <= 0 {
		grace = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	s.logger.Info("bridge draining", "live_connections", s.lifecycle.OpenConns())
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("bridge shutdown", "error", err)
	}
	if err := s.lifecycle.Wait(shutdownCtx); err != nil {
		s.logger.Warn("live connections still open after grace period", "live_connections", s.lifecycle.OpenConns())
		_ = httpServer.Close()
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
