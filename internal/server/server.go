// File: internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/voicepilot/internal/auth"
	"github.com/xkilldash9x/voicepilot/internal/channel"
	"github.com/xkilldash9x/voicepilot/internal/config"
	"github.com/xkilldash9x/voicepilot/internal/engine"
)

// Server exposes the engine over HTTP: a WebSocket for the audio channel and
// a handful of JSON endpoints the host application calls.
type Server struct {
	cfg      config.ServerConfig
	engine   *engine.Engine
	verifier *auth.Verifier
	upgrader *websocket.Upgrader
	logger   *zap.Logger
}

// New wires a server around an engine.
func New(cfg config.ServerConfig, eng *engine.Engine, verifier *auth.Verifier, logger *zap.Logger) (*Server, error) {
	if eng == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if verifier == nil {
		return nil, errors.New("verifier cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		engine:   eng,
		verifier: verifier,
		upgrader: channel.NewUpgrader(cfg.AllowedOrigins),
		logger:   logger.Named("server"),
	}, nil
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.verifier.Middleware)
		// The WebSocket is long lived and stays out of the request logger.
		r.Get("/voice", s.handleVoice)

		r.Group(func(r chi.Router) {
			r.Use(s.requestLogger)
			r.Get("/sessions", s.handleListSessions)
			r.Get("/sessions/{id}/snapshot", s.handleSnapshot)
			r.Post("/sessions/{id}/mounted", s.handleMounted)
			r.Post("/sessions/{id}/restart", s.handleRestart)
			r.Delete("/sessions/{id}", s.handleClose)
			r.Post("/logout", s.handleLogout)
		})
	})
	return r
}

// Run serves until ctx ends, then drains connections and closes every
// session.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		// Request contexts, and with them open audio channels, end with ctx.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Server listening", zap.String("address", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down server")

		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		s.engine.Shutdown(shutdownCtx)
		if err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
